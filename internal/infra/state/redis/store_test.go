package redisstate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"naval-battle/internal/domain"
	"naval-battle/internal/repository"
)

func newTestStore(t *testing.T) (*RoomStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRoomStore(client, "test:"), mr
}

func TestRoomStore_CreateAndRead(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	_, err := store.ReadDocument(ctx, repository.RoomPath("NOPE00"))
	assert.ErrorIs(t, err, repository.ErrNotFound)

	fleet := domain.Fleet{"destroyer": {"A1", "A2"}}
	require.NoError(t, store.CreateDocument(ctx, repository.RoomPath("ABC123"), &domain.Room{
		Status: domain.StatusWaiting,
		Slot1:  &domain.SlotState{PlayerID: "p1", Fleet: fleet},
	}))
	assert.True(t, mr.Exists("test:room:ABC123"))
	assert.True(t, mr.Exists("test:room:ABC123:slot1"))

	room, err := store.ReadDocument(ctx, repository.RoomPath("ABC123"))
	require.NoError(t, err)
	assert.Equal(t, "ABC123", room.ID)
	assert.Equal(t, domain.StatusWaiting, room.Status)
	require.NotNil(t, room.Slot1)
	assert.Equal(t, "p1", room.Slot1.PlayerID)
	assert.False(t, room.Slot1.Ready)
	assert.Equal(t, fleet, room.Slot1.Fleet)
	assert.Nil(t, room.Slot2)
	assert.Empty(t, room.Attacks)
	assert.False(t, room.CreatedAt.IsZero())
}

func TestRoomStore_PatchFields(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	require.NoError(t, store.CreateDocument(ctx, repository.RoomPath("R1"), &domain.Room{
		Status: domain.StatusWaiting,
		Slot1:  &domain.SlotState{PlayerID: "p1"},
	}))

	require.NoError(t, store.PatchFields(ctx, repository.RoomPath("R1"), repository.Fields{
		repository.SlotField(domain.Slot2, repository.FieldPlayerID): "p2",
		repository.FieldStatus: domain.StatusPlacing,
	}))
	require.NoError(t, store.PatchFields(ctx, repository.SlotPath("R1", domain.Slot1), repository.Fields{
		repository.FieldReady: true,
		repository.FieldFleet: domain.Fleet{"destroyer": {"J9", "J10"}},
	}))
	require.NoError(t, store.PatchFields(ctx, repository.RoomPath("R1"), repository.Fields{
		repository.FieldCurrentTurn: domain.Slot1,
	}))

	room, err := store.ReadDocument(ctx, repository.RoomPath("R1"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPlacing, room.Status)
	assert.Equal(t, domain.Slot1, room.CurrentTurn)
	assert.Equal(t, "p2", room.Slot2.PlayerID)
	assert.True(t, room.Slot1.Ready)
	assert.Equal(t, []string{"J9", "J10"}, room.Slot1.Fleet["destroyer"])

	// nil 清除字段
	require.NoError(t, store.PatchFields(ctx, repository.RoomPath("R1"), repository.Fields{
		repository.FieldCurrentTurn: nil,
		string(domain.Slot2):        nil,
	}))
	room, err = store.ReadDocument(ctx, repository.RoomPath("R1"))
	require.NoError(t, err)
	assert.Equal(t, domain.SlotNone, room.CurrentTurn)
	assert.Nil(t, room.Slot2)

	err = store.PatchFields(ctx, repository.RoomPath("R1"), repository.Fields{"score": 3})
	assert.ErrorIs(t, err, repository.ErrInvalidField)
}

func TestRoomStore_AppendToList(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	require.NoError(t, store.CreateDocument(ctx, repository.RoomPath("R2"), &domain.Room{Status: domain.StatusPlaying}))

	var keys []string
	for i, cell := range []string{"A1", "B2", "C3"} {
		key, err := store.AppendToList(ctx, repository.AttacksPath("R2"), domain.Attack{
			Cell:         cell,
			AttackerSlot: domain.Slot1,
			Result:       domain.ResultMiss,
			Timestamp:    int64(1000 + i),
		})
		require.NoError(t, err)
		require.NotEmpty(t, key)
		keys = append(keys, key)
	}

	room, err := store.ReadDocument(ctx, repository.RoomPath("R2"))
	require.NoError(t, err)
	require.Len(t, room.Attacks, 3)
	for i, a := range room.Attacks {
		assert.Equal(t, keys[i], a.Key)
	}
	assert.Equal(t, "C3", room.Attacks[2].Cell)
	assert.Equal(t, domain.Slot1, room.Attacks[2].AttackerSlot)
	assert.Equal(t, domain.ResultMiss, room.Attacks[2].Result)
	assert.Equal(t, int64(1002), room.Attacks[2].Timestamp)

	_, err = store.AppendToList(ctx, repository.RoomPath("R2"), domain.Attack{})
	assert.ErrorIs(t, err, repository.ErrInvalidPath)
}

func TestRoomStore_Subscribe(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	require.NoError(t, store.CreateDocument(ctx, repository.RoomPath("R3"), &domain.Room{Status: domain.StatusWaiting}))

	var (
		mu   sync.Mutex
		seen []domain.Status
	)
	unsubscribe, err := store.Subscribe(ctx, repository.RoomPath("R3"), func(room *domain.Room) {
		mu.Lock()
		seen = append(seen, room.Status)
		mu.Unlock()
	})
	require.NoError(t, err)
	statuses := func() []domain.Status {
		mu.Lock()
		defer mu.Unlock()
		return append([]domain.Status(nil), seen...)
	}

	require.Eventually(t, func() bool { return len(statuses()) >= 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, domain.StatusWaiting, statuses()[0])

	require.NoError(t, store.PatchFields(ctx, repository.RoomPath("R3"), repository.Fields{repository.FieldStatus: domain.StatusPlacing}))
	require.Eventually(t, func() bool {
		got := statuses()
		return len(got) >= 2 && got[len(got)-1] == domain.StatusPlacing
	}, 2*time.Second, 10*time.Millisecond)

	unsubscribe()
	unsubscribe()
	n := len(statuses())
	require.NoError(t, store.PatchFields(ctx, repository.RoomPath("R3"), repository.Fields{repository.FieldStatus: domain.StatusPlaying}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, len(statuses()))
}

func TestRateLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := NewRateLimiter(client, "test:")

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "1.2.3.4", 3, time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := limiter.Allow(ctx, "1.2.3.4", 3, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(2 * time.Second)
	ok, err = limiter.Allow(ctx, "1.2.3.4", 3, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
