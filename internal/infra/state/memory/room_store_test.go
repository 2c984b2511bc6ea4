package memorystate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"naval-battle/internal/domain"
	"naval-battle/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	rooms []*domain.Room
}

func (r *recorder) onChange(room *domain.Room) {
	r.mu.Lock()
	r.rooms = append(r.rooms, room)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func (r *recorder) last() *domain.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms[len(r.rooms)-1]
}

func TestRoomStore_CreateReadPatch(t *testing.T) {
	ctx := context.Background()
	s := NewRoomStore()

	_, err := s.ReadDocument(ctx, repository.RoomPath("NOPE00"))
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, s.CreateDocument(ctx, repository.RoomPath("ABC123"), &domain.Room{
		Status: domain.StatusWaiting,
		Slot1:  &domain.SlotState{PlayerID: "p1"},
	}))
	require.NoError(t, s.PatchFields(ctx, repository.RoomPath("ABC123"), repository.Fields{
		repository.SlotField(domain.Slot2, repository.FieldPlayerID): "p2",
		repository.FieldStatus: domain.StatusPlacing,
	}))

	room, err := s.ReadDocument(ctx, repository.RoomPath("ABC123"))
	require.NoError(t, err)
	assert.Equal(t, "ABC123", room.ID)
	assert.Equal(t, domain.StatusPlacing, room.Status)
	assert.Equal(t, "p2", room.Slot2.PlayerID)

	// 返回的是副本
	room.Slot1.PlayerID = "mutated"
	again, _ := s.ReadDocument(ctx, repository.RoomPath("ABC123"))
	assert.Equal(t, "p1", again.Slot1.PlayerID)
}

func TestRoomStore_AppendKeysIncrease(t *testing.T) {
	ctx := context.Background()
	s := NewRoomStore()
	require.NoError(t, s.CreateDocument(ctx, repository.RoomPath("R1"), &domain.Room{Status: domain.StatusPlaying}))

	var keys []string
	for _, cell := range []string{"A1", "B2", "C3"} {
		key, err := s.AppendToList(ctx, repository.AttacksPath("R1"), domain.Attack{Cell: cell, AttackerSlot: domain.Slot1, Result: domain.ResultMiss})
		require.NoError(t, err)
		keys = append(keys, key)
	}
	assert.Less(t, keys[0], keys[1])
	assert.Less(t, keys[1], keys[2])

	room, err := s.ReadDocument(ctx, repository.RoomPath("R1"))
	require.NoError(t, err)
	require.Len(t, room.Attacks, 3)
	assert.Equal(t, "C3", room.Attacks[2].Cell)
	assert.Equal(t, keys[2], room.Attacks[2].Key)

	_, err = s.AppendToList(ctx, repository.RoomPath("R1"), domain.Attack{})
	assert.ErrorIs(t, err, repository.ErrInvalidPath)
}

func TestRoomStore_SubscribeDeliversAndStops(t *testing.T) {
	ctx := context.Background()
	s := NewRoomStore(WithDuplicateDelivery(1))
	require.NoError(t, s.CreateDocument(ctx, repository.RoomPath("R2"), &domain.Room{Status: domain.StatusWaiting}))

	rec := &recorder{}
	unsubscribe, err := s.Subscribe(ctx, repository.RoomPath("R2"), rec.onChange)
	require.NoError(t, err)

	// 初始快照
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.PatchFields(ctx, repository.RoomPath("R2"), repository.Fields{repository.FieldStatus: domain.StatusPlacing}))
	// 每次写入重复投递一次
	require.Eventually(t, func() bool { return rec.count() == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.StatusPlacing, rec.last().Status)

	unsubscribe()
	unsubscribe()
	require.NoError(t, s.PatchFields(ctx, repository.RoomPath("R2"), repository.Fields{repository.FieldStatus: domain.StatusPlaying}))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 3, rec.count())
}

func TestRoomStore_Failure(t *testing.T) {
	ctx := context.Background()
	s := NewRoomStore()
	boom := errors.New("network down")
	s.SetFailure(boom)

	err := s.CreateDocument(ctx, repository.RoomPath("R3"), &domain.Room{})
	assert.ErrorIs(t, err, boom)
	_, err = s.ReadDocument(ctx, repository.RoomPath("R3"))
	assert.ErrorIs(t, err, boom)

	s.SetFailure(nil)
	assert.NoError(t, s.CreateDocument(ctx, repository.RoomPath("R3"), &domain.Room{}))
}
