package service

import "naval-battle/internal/domain"

// AttackLedger 记录已经处理过的 (attackerSlot, cell)。
// 快照推送的是完整列表且可能重复，任何记录都只在首次出现时被处理。
type AttackLedger struct {
	seen  map[domain.AttackKey]struct{}
	order []domain.Attack
}

// NewAttackLedger 创建空账本。
func NewAttackLedger() *AttackLedger {
	return &AttackLedger{seen: make(map[domain.AttackKey]struct{})}
}

// Record 登记一条记录，已登记过时返回 false。
func (l *AttackLedger) Record(a domain.Attack) bool {
	k := a.DedupKey()
	if _, ok := l.seen[k]; ok {
		return false
	}
	l.seen[k] = struct{}{}
	l.order = append(l.order, a)
	return true
}

// Seen 判断 key 是否已登记。
func (l *AttackLedger) Seen(k domain.AttackKey) bool {
	if l == nil {
		return false
	}
	_, ok := l.seen[k]
	return ok
}

// Len 返回已登记的记录数。
func (l *AttackLedger) Len() int {
	if l == nil {
		return 0
	}
	return len(l.order)
}

// Cells 返回 slot 攻击过的格子，按登记顺序。
func (l *AttackLedger) Cells(slot domain.Slot) []string {
	if l == nil {
		return nil
	}
	var cells []string
	for _, a := range l.order {
		if a.AttackerSlot == slot {
			cells = append(cells, a.Cell)
		}
	}
	return cells
}

// Attacks 返回去重后的记录副本。
func (l *AttackLedger) Attacks() []domain.Attack {
	if l == nil {
		return nil
	}
	return append([]domain.Attack(nil), l.order...)
}

// Clone 返回独立副本。
func (l *AttackLedger) Clone() *AttackLedger {
	c := NewAttackLedger()
	if l == nil {
		return c
	}
	for k := range l.seen {
		c.seen[k] = struct{}{}
	}
	c.order = append(c.order, l.order...)
	return c
}
