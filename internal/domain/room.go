package domain

import "time"

// Slot 表示对局中的两个固定座位之一。
type Slot string

const (
	SlotNone Slot = ""
	Slot1    Slot = "slot1"
	Slot2    Slot = "slot2"
)

// Valid 判断是否为 slot1 或 slot2。
func (s Slot) Valid() bool { return s == Slot1 || s == Slot2 }

// Other 返回对手座位；对无效座位返回 SlotNone。
func (s Slot) Other() Slot {
	switch s {
	case Slot1:
		return Slot2
	case Slot2:
		return Slot1
	}
	return SlotNone
}

// Status 房间生命周期：waiting -> placing -> playing -> finished，只能前进。
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlacing  Status = "placing"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

func (s Status) rank() int {
	switch s {
	case StatusWaiting:
		return 1
	case StatusPlacing:
		return 2
	case StatusPlaying:
		return 3
	case StatusFinished:
		return 4
	}
	return 0
}

// Valid 判断状态是否是已知的四种之一。
func (s Status) Valid() bool { return s.rank() > 0 }

// Before 判断 s 在生命周期上是否早于 o。
func (s Status) Before(o Status) bool { return s.rank() < o.rank() }

// SlotState 是一个座位的共享字段。Fleet 在 ready 之后不再变化。
type SlotState struct {
	PlayerID string `json:"playerId"`
	Ready    bool   `json:"ready"`
	Fleet    Fleet  `json:"fleet,omitempty"`
}

// Room 是每局对战唯一的共享文档，也是订阅推送的快照内容。
type Room struct {
	ID          string     `json:"id"`
	Status      Status     `json:"status"`
	Slot1       *SlotState `json:"slot1,omitempty"`
	Slot2       *SlotState `json:"slot2,omitempty"`
	CurrentTurn Slot       `json:"currentTurn,omitempty"`
	Attacks     []Attack   `json:"attacks"`
	Winner      Slot       `json:"winner,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// SlotState 返回指定座位的状态，座位为空时返回 nil。
func (r *Room) SlotState(s Slot) *SlotState {
	switch s {
	case Slot1:
		return r.Slot1
	case Slot2:
		return r.Slot2
	}
	return nil
}

// Occupied 判断座位是否已有玩家。
func (r *Room) Occupied(s Slot) bool {
	st := r.SlotState(s)
	return st != nil && st.PlayerID != ""
}

// BothReady 判断两个座位是否都已确认布阵。
func (r *Room) BothReady() bool {
	return r.Slot1 != nil && r.Slot1.Ready && r.Slot2 != nil && r.Slot2.Ready
}

// SlotOf 返回玩家所在座位。
func (r *Room) SlotOf(playerID string) Slot {
	if r.Slot1 != nil && r.Slot1.PlayerID == playerID {
		return Slot1
	}
	if r.Slot2 != nil && r.Slot2.PlayerID == playerID {
		return Slot2
	}
	return SlotNone
}

// Clone 深拷贝，快照在多个 goroutine 之间传递时使用。
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	out := *r
	out.Slot1 = r.Slot1.clone()
	out.Slot2 = r.Slot2.clone()
	out.Attacks = append([]Attack(nil), r.Attacks...)
	return &out
}

func (s *SlotState) clone() *SlotState {
	if s == nil {
		return nil
	}
	out := *s
	out.Fleet = s.Fleet.Clone()
	return &out
}
