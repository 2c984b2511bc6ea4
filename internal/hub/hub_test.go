package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"naval-battle/internal/domain"
	"naval-battle/internal/dto"
	memorystate "naval-battle/internal/infra/state/memory"
	"naval-battle/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFleet() domain.Fleet {
	return domain.Fleet{
		"carrier":    {"A1", "A2", "A3", "A4", "A5"},
		"battleship": {"C1", "D1", "E1", "F1"},
		"cruiser":    {"H3", "H4", "H5"},
		"submarine":  {"J8", "J9", "J10"},
		"destroyer":  {"E7", "F7"},
	}
}

// readUntil 读取 client 的推送，直到 match 返回 true
func readUntil(t *testing.T, c *Client, match func(map[string]interface{}) bool) map[string]interface{} {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case raw := <-c.send:
			var msg map[string]interface{}
			require.NoError(t, json.Unmarshal(raw, &msg))
			if match(msg) {
				return msg
			}
		case <-deadline:
			t.Fatal("timed out waiting for hub message")
			return nil
		}
	}
}

func isEvent(ev domain.EventType) func(map[string]interface{}) bool {
	return func(msg map[string]interface{}) bool {
		return msg["type"] == dto.MessageEvent && msg["event"] == string(ev)
	}
}

func isType(typ string) func(map[string]interface{}) bool {
	return func(msg map[string]interface{}) bool { return msg["type"] == typ }
}

func TestHub_ForwardsEventsAndAttacks(t *testing.T) {
	ctx := context.Background()
	svc := service.NewRoomService(memorystate.NewRoomStore(memorystate.WithDuplicateDelivery(1)), nil)
	h := NewHub()
	defer h.Stop()

	roomID, _, err := svc.CreateRoom(ctx, "p1")
	require.NoError(t, err)
	s1, err := svc.Subscribe(ctx, roomID, domain.Slot1)
	require.NoError(t, err)

	c1 := NewClient(h, nil, "p1")
	h.registerClient(c1)
	h.Attach("p1", s1)

	_, _, err = svc.JoinRoom(ctx, roomID, "p2")
	require.NoError(t, err)
	s2, err := svc.Subscribe(ctx, roomID, domain.Slot2)
	require.NoError(t, err)
	h.Attach("p2", s2)

	readUntil(t, c1, isEvent(domain.EventJoined))

	require.NoError(t, svc.MarkReady(ctx, roomID, domain.Slot1, testFleet()))
	require.NoError(t, svc.MarkReady(ctx, roomID, domain.Slot2, testFleet()))
	turn := readUntil(t, c1, isEvent(domain.EventTurnChanged))
	assert.Equal(t, "slot1", turn["slot"])

	h.handleClientMessage(HubMessage{Type: "attack", PlayerID: "p1", Client: c1, RawData: []byte(`{"type":"attack","cell":"cell-a1"}`)})
	result := readUntil(t, c1, isType(dto.MessageResult))
	assert.Equal(t, "cell-A1", result["cell"])
	assert.Equal(t, "hit", result["result"])
	assert.Equal(t, true, result["applied"])

	// 换手之后再攻击会被拒绝
	h.handleClientMessage(HubMessage{Type: "attack", PlayerID: "p1", Client: c1, RawData: []byte(`{"type":"attack","cell":"B2"}`)})
	rejected := readUntil(t, c1, isType(dto.MessageError))
	assert.Equal(t, service.ErrNotYourTurn.Error(), rejected["message"])

	h.handleClientMessage(HubMessage{Type: "attack", PlayerID: "p1", Client: c1, RawData: []byte(`{not json`)})
	malformed := readUntil(t, c1, isType(dto.MessageError))
	assert.Equal(t, "malformed message", malformed["message"])

	require.Eventually(t, func() bool {
		state, ok := h.State("p1")
		return ok && state.Slot == domain.Slot1 && len(state.Dealt.Hits) == 1 && state.Dealt.Hits[0] == "A1"
	}, 2*time.Second, 5*time.Millisecond)

	// 新连接先收到当前状态
	c1b := NewClient(h, nil, "p1")
	h.registerClient(c1b)
	readUntil(t, c1b, isType(dto.MessageState))

	assert.True(t, h.Detach("p1"))
	assert.False(t, h.Detach("p1"))
	_, ok := h.Session("p1")
	assert.False(t, ok)
	_, _, err = s1.SubmitAttack(ctx, "B2")
	assert.ErrorIs(t, err, service.ErrSessionClosed)

	h.unregisterClient(c1)
	_, open := <-c1.send
	for open {
		_, open = <-c1.send
	}
}

func TestHub_AttachReplacesSession(t *testing.T) {
	ctx := context.Background()
	svc := service.NewRoomService(memorystate.NewRoomStore(), nil)
	h := NewHub()
	defer h.Stop()

	first, _, err := svc.CreateRoom(ctx, "p1")
	require.NoError(t, err)
	second, _, err := svc.CreateRoom(ctx, "p1")
	require.NoError(t, err)

	s1, err := svc.Subscribe(ctx, first, domain.Slot1)
	require.NoError(t, err)
	s2, err := svc.Subscribe(ctx, second, domain.Slot1)
	require.NoError(t, err)

	h.Attach("p1", s1)
	h.Attach("p1", s2)

	select {
	case <-s1.Done():
	case <-time.After(time.Second):
		t.Fatal("replaced session was not closed")
	}
	sess, ok := h.Session("p1")
	require.True(t, ok)
	assert.Equal(t, second, sess.RoomID())
}

func TestClientError(t *testing.T) {
	assert.Equal(t, "not your turn", ClientError(service.ErrNotYourTurn))
	assert.Equal(t, "connection problem, please retry", ClientError(service.ErrConnectivity))
	assert.Equal(t, "unexpected error", ClientError(assert.AnError))
}
