package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"naval-battle/internal/dto"
	"naval-battle/internal/grid"
	"naval-battle/internal/service"

	"github.com/sirupsen/logrus"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// 处理一条攻击消息的超时
	attackTimeout = 5 * time.Second
)

// HubMessage 定义了在 Hub 内部通道传递的消息类型
type HubMessage struct {
	Type     string // "register", "unregister", "attack"
	PlayerID string
	Client   *Client
	RawData  []byte
}

// Hub 按玩家维护 WebSocket 连接和对局会话，把会话事件推送给该玩家的所有连接。
// 每个玩家同一时间只有一个会话，双方会话彼此独立，Hub 不做任何裁决。
type Hub struct {
	messageChan chan HubMessage
	done        chan struct{}
	stopOnce    sync.Once

	clients   map[string]map[*Client]bool
	clientsMu sync.RWMutex

	sessions   map[string]*service.Session
	sessionsMu sync.Mutex
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub() *Hub {
	return &Hub{
		messageChan: make(chan HubMessage, 512),
		done:        make(chan struct{}),
		clients:     make(map[string]map[*Client]bool),
		sessions:    make(map[string]*service.Session),
	}
}

// Run 启动 Hub 的主事件处理循环，应在单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")
	for {
		select {
		case <-h.done:
			log.Info("Hub is shutting down...")
			return
		case msg := <-h.messageChan:
			switch msg.Type {
			case "register":
				h.registerClient(msg.Client)
			case "unregister":
				h.unregisterClient(msg.Client)
			case "attack":
				// 攻击涉及存储读写，不阻塞主循环
				go h.handleClientMessage(msg)
			default:
				log.Warnf("Hub: Received unknown message type: %s from player %s", msg.Type, msg.PlayerID)
			}
		}
	}
}

// Stop 停止主循环并关闭所有会话
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.sessionsMu.Lock()
		sessions := h.sessions
		h.sessions = make(map[string]*service.Session)
		h.sessionsMu.Unlock()
		for _, sess := range sessions {
			sess.Unsubscribe()
		}
	})
}

// QueueMessage 将消息放入 Hub 的处理队列 (非阻塞)，队列已满时返回 false。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithFields(logrus.Fields{
			"message_type": msg.Type,
			"player_id":    msg.PlayerID,
		}).Warn("Hub message channel full, dropping message")
		return false
	}
}

// --- 会话管理 ---

// Attach 为玩家绑定会话，替换并关闭旧会话，然后开始转发事件。
func (h *Hub) Attach(playerID string, sess *service.Session) {
	h.sessionsMu.Lock()
	old := h.sessions[playerID]
	h.sessions[playerID] = sess
	h.sessionsMu.Unlock()
	if old != nil && old != sess {
		old.Unsubscribe()
	}
	logrus.WithFields(logrus.Fields{
		"player_id": playerID,
		"room_id":   sess.RoomID(),
		"slot":      sess.Slot(),
	}).Info("Session attached")
	go h.forward(playerID, sess)
}

// Session 返回玩家当前的会话
func (h *Hub) Session(playerID string) (*service.Session, bool) {
	h.sessionsMu.Lock()
	defer h.sessionsMu.Unlock()
	sess, ok := h.sessions[playerID]
	return sess, ok
}

// Detach 关闭玩家的会话，没有会话时返回 false
func (h *Hub) Detach(playerID string) bool {
	h.sessionsMu.Lock()
	sess, ok := h.sessions[playerID]
	delete(h.sessions, playerID)
	h.sessionsMu.Unlock()
	if ok {
		sess.Unsubscribe()
	}
	return ok
}

// State 构造玩家会话的当前状态
func (h *Hub) State(playerID string) (dto.StateDTO, bool) {
	sess, ok := h.Session(playerID)
	if !ok {
		return dto.StateDTO{}, false
	}
	dealt, taken := sess.Damage()
	return dto.StateDTO{
		Type:   dto.MessageState,
		RoomID: sess.RoomID(),
		Slot:   sess.Slot(),
		Turn:   sess.Turn(),
		Room:   sess.Room(),
		Dealt:  damageDTO(dealt),
		Taken:  damageDTO(taken),
	}, true
}

// forward 把会话事件推送给玩家的所有连接，直到会话关闭
func (h *Hub) forward(playerID string, sess *service.Session) {
	for ev := range sess.Events() {
		h.sendToPlayer(playerID, dto.NewEventDTO(sess.RoomID(), ev))
	}
	h.sessionsMu.Lock()
	if h.sessions[playerID] == sess {
		delete(h.sessions, playerID)
	}
	h.sessionsMu.Unlock()
	logrus.WithFields(logrus.Fields{"player_id": playerID, "room_id": sess.RoomID()}).Debug("Session event stream ended")
}

// --- 连接管理 ---

func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	playerID := client.PlayerID()
	h.clientsMu.Lock()
	if _, ok := h.clients[playerID]; !ok {
		h.clients[playerID] = make(map[*Client]bool)
	}
	h.clients[playerID][client] = true
	h.clientsMu.Unlock()
	logrus.WithField("player_id", playerID).Info("Client registered to Hub")

	// 新连接先收到一次当前状态
	if state, ok := h.State(playerID); ok {
		h.sendToClient(client, state)
	}
}

func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to unregister a nil client")
		return
	}
	playerID := client.PlayerID()
	h.clientsMu.Lock()
	if conns, ok := h.clients[playerID]; ok {
		if _, exists := conns[client]; exists {
			delete(conns, client)
			close(client.send)
			if len(conns) == 0 {
				delete(h.clients, playerID)
			}
		}
	}
	h.clientsMu.Unlock()
	logrus.WithField("player_id", playerID).Info("Client unregistered from Hub")
}

// handleClientMessage 处理客户端发来的攻击消息，结果只回给发送者
func (h *Hub) handleClientMessage(msg HubMessage) {
	logCtx := logrus.WithField("player_id", msg.PlayerID)

	var in dto.ClientMessage
	if err := json.Unmarshal(msg.RawData, &in); err != nil || in.Type != "attack" {
		logCtx.Warn("Hub: Malformed client message")
		h.sendToClient(msg.Client, dto.ErrorDTO{Type: dto.MessageError, Message: "malformed message"})
		return
	}
	sess, ok := h.Session(msg.PlayerID)
	if !ok {
		h.sendToClient(msg.Client, dto.ErrorDTO{Type: dto.MessageError, Message: "no active room"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), attackTimeout)
	defer cancel()
	outcome, applied, err := sess.SubmitAttack(ctx, in.Cell)
	if err != nil {
		logCtx.WithError(err).WithField("cell", in.Cell).Warn("Hub: Attack rejected")
		h.sendToClient(msg.Client, dto.ErrorDTO{Type: dto.MessageError, Message: ClientError(err)})
		return
	}
	h.sendToClient(msg.Client, dto.AttackResultDTO{
		Type:    dto.MessageResult,
		Cell:    grid.DOMID(outcome.Cell),
		Result:  outcome.Result,
		ShipID:  outcome.ShipID,
		Applied: applied,
	})
}

// ClientError 把服务层错误转换为可以展示给玩家的文本
func ClientError(err error) string {
	switch {
	case errors.Is(err, service.ErrNotYourTurn),
		errors.Is(err, service.ErrNotPlaying),
		errors.Is(err, service.ErrInvalidCell),
		errors.Is(err, service.ErrSessionClosed):
		return err.Error()
	case errors.Is(err, service.ErrConnectivity):
		return "connection problem, please retry"
	}
	return "unexpected error"
}

func (h *Hub) sendToPlayer(playerID string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).Error("Hub: Failed to marshal outgoing message")
		return
	}
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for client := range h.clients[playerID] {
		select {
		case client.send <- data:
		default:
			logrus.WithField("player_id", playerID).Warn("Client send channel full, message dropped")
		}
	}
}

func (h *Hub) sendToClient(client *Client, payload interface{}) {
	if client == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).Error("Hub: Failed to marshal outgoing message")
		return
	}
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	if !h.clients[client.PlayerID()][client] {
		return
	}
	select {
	case client.send <- data:
	default:
		logrus.WithField("player_id", client.PlayerID()).Warn("Client send channel full, message dropped")
	}
}

func damageDTO(r service.DamageReport) dto.DamageDTO {
	return dto.DamageDTO{Hits: r.Hits, Misses: r.Misses, Sunk: r.Sunk, Defeated: r.Defeated}
}
