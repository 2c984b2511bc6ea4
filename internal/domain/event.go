package domain

// EventType 标识订阅流中的语义事件。
type EventType string

const (
	EventJoined         EventType = "joined"
	EventStatusChanged  EventType = "status_changed"
	EventBothReady      EventType = "both_ready"
	EventTurnChanged    EventType = "turn_changed"
	EventAttacksChanged EventType = "attacks_changed"
	EventFinished       EventType = "finished"
)

// Event 是从快照差分得出的一次边沿，每个逻辑变化只出现一次。
//
//   - Joined: Room 有效
//   - StatusChanged: Status 有效
//   - BothReady: 无附加字段
//   - TurnChanged: Slot 为新的行动方
//   - AttacksChanged: Attacks 为完整列表，Fresh 为尚未处理过的记录
//   - Finished: Slot 为胜者
type Event struct {
	Type    EventType `json:"type"`
	Slot    Slot      `json:"slot,omitempty"`
	Status  Status    `json:"status,omitempty"`
	Attacks []Attack  `json:"attacks,omitempty"`
	Fresh   []Attack  `json:"fresh,omitempty"`
	Room    *Room     `json:"room,omitempty"`
}
