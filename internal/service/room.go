package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"naval-battle/internal/domain"
	"naval-battle/internal/fleet"
	"naval-battle/internal/repository"

	"github.com/sirupsen/logrus"
)

const (
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomCodeLength   = 6
)

// Archiver 接收已结束的对局，用于异步归档。
type Archiver interface {
	Archive(ctx context.Context, room *domain.Room) error
}

// RoomService 负责房间生命周期：创建、加入、确认布阵和订阅。
type RoomService struct {
	store    repository.RoomStore
	archiver Archiver
	newCode  func() (string, error)
}

// NewRoomService 创建 RoomService 实例。archiver 可以为 nil，此时不归档。
func NewRoomService(store repository.RoomStore, archiver Archiver) *RoomService {
	if store == nil {
		panic("RoomStore cannot be nil for RoomService")
	}
	return &RoomService{
		store:    store,
		archiver: archiver,
		newCode:  generateRoomCode,
	}
}

// CreateRoom 创建房间，创建者总是 slot1。房间码冲突不做检查。
func (s *RoomService) CreateRoom(ctx context.Context, playerID string) (string, domain.Slot, error) {
	logCtx := logrus.WithField("player_id", playerID)

	roomID, err := s.newCode()
	if err != nil {
		logCtx.WithError(err).Error("Failed to generate room code")
		return "", domain.SlotNone, fmt.Errorf("generate room code: %w", err)
	}
	logCtx = logCtx.WithField("room_id", roomID)

	room := &domain.Room{
		ID:        roomID,
		Status:    domain.StatusWaiting,
		Slot1:     &domain.SlotState{PlayerID: playerID},
		Attacks:   []domain.Attack{},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateDocument(ctx, repository.RoomPath(roomID), room); err != nil {
		logCtx.WithError(err).Error("Failed to write new room")
		return "", domain.SlotNone, mapRepoError(err)
	}

	logCtx.Info("Room created")
	return roomID, domain.Slot1, nil
}

// JoinRoom 以 slot2 加入房间。必须基于一次权威读取判断是否可加入；
// 两个玩家同时加入的竞争窗口依然存在，这里不处理。
func (s *RoomService) JoinRoom(ctx context.Context, roomID, playerID string) (string, domain.Slot, error) {
	roomID = NormalizeRoomID(roomID)
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "player_id": playerID})

	room, err := s.store.ReadDocument(ctx, repository.RoomPath(roomID))
	if err != nil {
		mapped := mapRepoError(err)
		if errors.Is(mapped, ErrNotFound) {
			logCtx.Warn("JoinRoom: room not found")
		} else {
			logCtx.WithError(err).Error("JoinRoom: failed to read room")
		}
		return "", domain.SlotNone, mapped
	}
	if room.Status != domain.StatusWaiting || room.Occupied(domain.Slot2) {
		logCtx.WithField("status", room.Status).Warn("JoinRoom: room not joinable")
		return "", domain.SlotNone, ErrNotJoinable
	}
	if room.SlotOf(playerID) == domain.Slot1 {
		logCtx.Warn("JoinRoom: player already holds slot1")
		return "", domain.SlotNone, ErrNotJoinable
	}

	err = s.store.PatchFields(ctx, repository.RoomPath(roomID), repository.Fields{
		repository.SlotField(domain.Slot2, repository.FieldPlayerID): playerID,
		repository.SlotField(domain.Slot2, repository.FieldReady):    false,
		repository.FieldStatus: domain.StatusPlacing,
	})
	if err != nil {
		logCtx.WithError(err).Error("JoinRoom: failed to claim slot2")
		return "", domain.SlotNone, mapRepoError(err)
	}

	logCtx.Info("Player joined room")
	return roomID, domain.Slot2, nil
}

// MarkReady 写入座位的舰队并设置 ready=true。只负责写入，不决定开局。
// 舰队一旦确认就不可更改：座位已就绪或房间不在布阵阶段时拒绝写入。
func (s *RoomService) MarkReady(ctx context.Context, roomID string, slot domain.Slot, f domain.Fleet) error {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "slot": slot})
	if !slot.Valid() {
		return ErrInvalidSlot
	}
	if err := fleet.Validate(f); err != nil {
		logCtx.WithError(err).Warn("MarkReady: fleet rejected")
		return fmt.Errorf("%w: %w", ErrInvalidFleet, err)
	}

	room, err := s.store.ReadDocument(ctx, repository.RoomPath(roomID))
	if err != nil {
		logCtx.WithError(err).Warn("MarkReady: failed to read room")
		return mapRepoError(err)
	}
	if room.Status != domain.StatusPlacing {
		logCtx.WithField("status", room.Status).Warn("MarkReady: room not in placement phase")
		return ErrNotPlacing
	}
	if st := room.SlotState(slot); st != nil && st.Ready {
		logCtx.Warn("MarkReady: fleet already confirmed")
		return ErrAlreadyReady
	}

	err = s.store.PatchFields(ctx, repository.SlotPath(roomID, slot), repository.Fields{
		repository.FieldFleet: f,
		repository.FieldReady: true,
	})
	if err != nil {
		logCtx.WithError(err).Error("MarkReady: failed to write fleet")
		return mapRepoError(err)
	}
	logCtx.Info("Fleet confirmed")
	return nil
}

// GetRoom 读取房间当前文档。
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	room, err := s.store.ReadDocument(ctx, repository.RoomPath(NormalizeRoomID(roomID)))
	if err != nil {
		return nil, mapRepoError(err)
	}
	return room, nil
}

// Subscribe 为 slot 打开一个会话，会话通过 Events() 按序交付边沿事件。
func (s *RoomService) Subscribe(ctx context.Context, roomID string, slot domain.Slot) (*Session, error) {
	if !slot.Valid() {
		return nil, ErrInvalidSlot
	}
	roomID = NormalizeRoomID(roomID)
	sess := newSession(s.store, roomID, slot, s.archiver)
	unsubscribe, err := s.store.Subscribe(ctx, repository.RoomPath(roomID), sess.onSnapshot)
	if err != nil {
		logrus.WithFields(logrus.Fields{"room_id": roomID, "slot": slot}).WithError(err).Error("Failed to subscribe to room")
		sess.Unsubscribe()
		return nil, mapRepoError(err)
	}
	sess.attach(unsubscribe)
	return sess, nil
}

// NormalizeRoomID 去掉空白并转为大写。
func NormalizeRoomID(roomID string) string {
	return strings.ToUpper(strings.TrimSpace(roomID))
}

func generateRoomCode() (string, error) {
	return readRoomCode(rand.Reader)
}

// readRoomCode 丢弃 >= codeByteLimit 的字节，使每个字符等概率。
func readRoomCode(r io.Reader) (string, error) {
	const codeByteLimit = 256 - 256%len(roomCodeAlphabet)
	code := make([]byte, 0, roomCodeLength)
	buf := make([]byte, roomCodeLength*2)
	for len(code) < roomCodeLength {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= codeByteLimit {
				continue
			}
			code = append(code, roomCodeAlphabet[int(b)%len(roomCodeAlphabet)])
			if len(code) == roomCodeLength {
				break
			}
		}
	}
	return string(code), nil
}
