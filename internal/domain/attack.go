package domain

// AttackResult 是一次攻击的结算结果。
type AttackResult string

const (
	ResultMiss     AttackResult = "miss"
	ResultHit      AttackResult = "hit"
	ResultSunk     AttackResult = "sunk"
	ResultFinished AttackResult = "finished" // 击沉对方最后一艘船，取代 hit/sunk
)

// Valid 判断结果是否为已知取值。
func (r AttackResult) Valid() bool {
	switch r {
	case ResultMiss, ResultHit, ResultSunk, ResultFinished:
		return true
	}
	return false
}

// IsHit 判断结果是否命中了船只（包括击沉和终局）。
func (r AttackResult) IsHit() bool {
	return r == ResultHit || r == ResultSunk || r == ResultFinished
}

// Attack 是 attacks 列表中的一条记录，只追加、不修改。
// Key 由存储生成，按房间单调递增；Timestamp 仅用于展示。
type Attack struct {
	Key          string       `json:"key,omitempty"`
	Cell         string       `json:"cell"`
	AttackerSlot Slot         `json:"attackerSlot"`
	Result       AttackResult `json:"result"`
	Timestamp    int64        `json:"ts,omitempty"`
}

// AttackKey 是 (attackerSlot, cell) 去重键。
type AttackKey struct {
	Slot Slot
	Cell string
}

// DedupKey 返回该记录的去重键。
func (a Attack) DedupKey() AttackKey {
	return AttackKey{Slot: a.AttackerSlot, Cell: a.Cell}
}
