package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"naval-battle/internal/domain"
	memorystate "naval-battle/internal/infra/state/memory"
	"naval-battle/internal/repository"
	"naval-battle/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

type collector struct {
	mu     sync.Mutex
	events []domain.Event
	closed bool
}

func collect(s *service.Session) *collector {
	c := &collector{}
	go func() {
		for ev := range s.Events() {
			c.mu.Lock()
			c.events = append(c.events, ev)
			c.mu.Unlock()
		}
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
	}()
	return c
}

func (c *collector) count(typ domain.EventType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func (c *collector) index(match func(domain.Event) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, ev := range c.events {
		if match(ev) {
			return i
		}
	}
	return -1
}

func (c *collector) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeArchiver struct {
	mu    sync.Mutex
	rooms []*domain.Room
}

func (f *fakeArchiver) Archive(ctx context.Context, room *domain.Room) error {
	f.mu.Lock()
	f.rooms = append(f.rooms, room)
	f.mu.Unlock()
	return nil
}

func (f *fakeArchiver) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rooms)
}

func waitTurn(t *testing.T, s *service.Session, slot domain.Slot) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Turn() == slot }, waitFor, 5*time.Millisecond)
}

func attack(t *testing.T, s *service.Session, cell string, want domain.AttackResult) {
	t.Helper()
	waitTurn(t, s, s.Slot())
	out, applied, err := s.SubmitAttack(context.Background(), cell)
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, want, out.Result, "attack on %s", cell)
}

func TestSession_FullMatchScenario(t *testing.T) {
	ctx := context.Background()
	store := memorystate.NewRoomStore(memorystate.WithDuplicateDelivery(1))
	archiver := &fakeArchiver{}
	svc := service.NewRoomService(store, archiver)

	roomID, slot, err := svc.CreateRoom(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, domain.Slot1, slot)
	room, err := svc.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaiting, room.Status)

	s1, err := svc.Subscribe(ctx, roomID, domain.Slot1)
	require.NoError(t, err)
	defer s1.Unsubscribe()
	c1 := collect(s1)

	_, slot, err = svc.JoinRoom(ctx, roomID, "p2")
	require.NoError(t, err)
	require.Equal(t, domain.Slot2, slot)
	room, err = svc.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPlacing, room.Status)
	assert.Equal(t, "p1", room.Slot1.PlayerID)
	assert.Equal(t, "p2", room.Slot2.PlayerID)

	s2, err := svc.Subscribe(ctx, roomID, domain.Slot2)
	require.NoError(t, err)
	defer s2.Unsubscribe()
	c2 := collect(s2)

	// 每个座位只有一艘船，直接写入布阵
	require.NoError(t, store.PatchFields(ctx, repository.SlotPath(roomID, domain.Slot1), repository.Fields{
		repository.FieldFleet: domain.Fleet{"cruiser": {"A1", "A2", "A3"}},
		repository.FieldReady: true,
	}))
	require.NoError(t, store.PatchFields(ctx, repository.SlotPath(roomID, domain.Slot2), repository.Fields{
		repository.FieldFleet: domain.Fleet{"destroyer": {"C5", "C6"}},
		repository.FieldReady: true,
	}))

	waitTurn(t, s1, domain.Slot1)
	waitTurn(t, s2, domain.Slot1)
	room, err = svc.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPlaying, room.Status)

	// slot2 还不能行动
	_, _, err = s2.SubmitAttack(ctx, "A1")
	assert.ErrorIs(t, err, service.ErrNotYourTurn)

	attack(t, s1, "J10", domain.ResultMiss)
	waitTurn(t, s2, domain.Slot2)
	attack(t, s2, "A1", domain.ResultHit)

	// 重复攻击是空操作：不追加记录，不换手
	waitTurn(t, s1, domain.Slot1)
	out, applied, err := s1.SubmitAttack(ctx, "cell-J10")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, "J10", out.Cell)
	room, err = svc.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Len(t, room.Attacks, 2)
	assert.Equal(t, domain.Slot1, room.CurrentTurn)

	attack(t, s1, "B9", domain.ResultMiss)
	attack(t, s2, "A2", domain.ResultHit)
	attack(t, s1, "B8", domain.ResultMiss)
	attack(t, s2, "A3", domain.ResultFinished)

	room, err = svc.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinished, room.Status)
	assert.Equal(t, domain.Slot2, room.Winner)
	require.Len(t, room.Attacks, 6)

	// 每条非终局攻击之后，行动方都是另一方
	seen := map[domain.AttackKey]bool{}
	for i, a := range room.Attacks {
		assert.False(t, seen[a.DedupKey()], "duplicate attack %v", a.DedupKey())
		seen[a.DedupKey()] = true
		if i > 0 {
			assert.NotEqual(t, room.Attacks[i-1].AttackerSlot, a.AttackerSlot)
		}
	}

	require.Eventually(t, func() bool {
		return c1.count(domain.EventFinished) == 1 && c2.count(domain.EventFinished) == 1
	}, waitFor, 5*time.Millisecond)

	_, _, err = s2.SubmitAttack(ctx, "C5")
	assert.ErrorIs(t, err, service.ErrNotPlaying)

	// 重复投递下每个边沿只触发一次
	for _, c := range []*collector{c1, c2} {
		assert.Equal(t, 1, c.count(domain.EventJoined))
		assert.Equal(t, 1, c.count(domain.EventBothReady))
		assert.Equal(t, 6, c.count(domain.EventTurnChanged))
		assert.Equal(t, 6, c.count(domain.EventAttacksChanged))
	}
	bothReady := c2.index(func(ev domain.Event) bool { return ev.Type == domain.EventBothReady })
	playing := c2.index(func(ev domain.Event) bool {
		return ev.Type == domain.EventStatusChanged && ev.Status == domain.StatusPlaying
	})
	assert.True(t, bothReady >= 0 && bothReady < playing)

	// 只有胜方归档一次
	require.Eventually(t, func() bool { return archiver.count() == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, domain.Slot2, archiver.rooms[0].Winner)

	dealt, taken := s2.Damage()
	assert.True(t, dealt.Defeated)
	assert.Equal(t, []string{"cruiser"}, dealt.Sunk)
	assert.Equal(t, []string{"J10", "B9", "B8"}, taken.Misses)
}

func TestSession_OnlySlot1StartsMatch(t *testing.T) {
	ctx := context.Background()
	store := memorystate.NewRoomStore()
	svc := service.NewRoomService(store, nil)

	roomID, _, err := svc.CreateRoom(ctx, "p1")
	require.NoError(t, err)
	_, _, err = svc.JoinRoom(ctx, roomID, "p2")
	require.NoError(t, err)

	s2, err := svc.Subscribe(ctx, roomID, domain.Slot2)
	require.NoError(t, err)
	defer s2.Unsubscribe()
	c2 := collect(s2)

	require.NoError(t, svc.MarkReady(ctx, roomID, domain.Slot1, validFleet()))
	require.NoError(t, svc.MarkReady(ctx, roomID, domain.Slot2, validFleet()))
	require.Eventually(t, func() bool { return c2.count(domain.EventBothReady) == 1 }, waitFor, 5*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	room, err := svc.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPlacing, room.Status)
	assert.Equal(t, domain.SlotNone, room.CurrentTurn)

	// slot1 订阅后看到双方就绪，负责开局
	s1, err := svc.Subscribe(ctx, roomID, domain.Slot1)
	require.NoError(t, err)
	defer s1.Unsubscribe()
	waitTurn(t, s1, domain.Slot1)
	waitTurn(t, s2, domain.Slot1)

	out, applied, err := s1.SubmitAttack(ctx, "A1")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, domain.ResultHit, out.Result)
	assert.Equal(t, "carrier", out.ShipID)
}

func TestSession_Errors(t *testing.T) {
	ctx := context.Background()
	store := memorystate.NewRoomStore()
	svc := service.NewRoomService(store, nil)

	roomID, _, err := svc.CreateRoom(ctx, "p1")
	require.NoError(t, err)
	s1, err := svc.Subscribe(ctx, roomID, domain.Slot1)
	require.NoError(t, err)
	c1 := collect(s1)

	_, _, err = s1.SubmitAttack(ctx, "K1")
	assert.ErrorIs(t, err, service.ErrInvalidCell)
	_, _, err = s1.SubmitAttack(ctx, "A1")
	assert.ErrorIs(t, err, service.ErrNotPlaying)

	_, err = svc.Subscribe(ctx, roomID, domain.Slot("slot9"))
	assert.ErrorIs(t, err, service.ErrInvalidSlot)

	s1.Unsubscribe()
	s1.Unsubscribe()
	require.Eventually(t, c1.isClosed, waitFor, 5*time.Millisecond)
	_, _, err = s1.SubmitAttack(ctx, "A1")
	assert.ErrorIs(t, err, service.ErrSessionClosed)
}

func TestSession_AppendFailureReleasesCell(t *testing.T) {
	ctx := context.Background()
	store := memorystate.NewRoomStore()
	svc := service.NewRoomService(store, nil)

	roomID, _, err := svc.CreateRoom(ctx, "p1")
	require.NoError(t, err)
	_, _, err = svc.JoinRoom(ctx, roomID, "p2")
	require.NoError(t, err)
	s1, err := svc.Subscribe(ctx, roomID, domain.Slot1)
	require.NoError(t, err)
	defer s1.Unsubscribe()

	require.NoError(t, svc.MarkReady(ctx, roomID, domain.Slot1, validFleet()))
	require.NoError(t, svc.MarkReady(ctx, roomID, domain.Slot2, validFleet()))
	waitTurn(t, s1, domain.Slot1)

	store.SetFailure(errors.New("network down"))
	_, applied, err := s1.SubmitAttack(ctx, "B2")
	assert.ErrorIs(t, err, service.ErrConnectivity)
	assert.False(t, applied)

	store.SetFailure(nil)
	out, applied, err := s1.SubmitAttack(ctx, "B2")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, domain.ResultMiss, out.Result)
}

func TestRoomService_SubscribeStoreDown(t *testing.T) {
	store := memorystate.NewRoomStore()
	store.SetFailure(errors.New("network down"))
	svc := service.NewRoomService(store, nil)

	_, err := svc.Subscribe(context.Background(), "ROOM01", domain.Slot1)
	assert.ErrorIs(t, err, service.ErrConnectivity)
}
