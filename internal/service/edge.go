package service

import "naval-battle/internal/domain"

// Observed 是边沿检测器保留的“上次观察到的值”。零值表示尚未观察到任何快照。
// Detect 不会修改传入的 Observed，旧值可以安全地保留或比较。
type Observed struct {
	Joined      bool
	Status      domain.Status
	BothReady   bool
	Turn        domain.Slot
	AttackCount int
	Finished    bool
	Ledger      *AttackLedger
}

// Detect 对比上次观察值和新快照，返回本次发生的边沿事件及新的观察值。
// 重复投递同一快照不会产生任何事件。事件顺序固定：
// Joined, StatusChanged, BothReady, TurnChanged, AttacksChanged, Finished。
func Detect(prev Observed, room *domain.Room) ([]domain.Event, Observed) {
	if room == nil {
		return nil, prev
	}
	next := prev
	var events []domain.Event

	if !prev.Joined && room.Occupied(domain.Slot1) && room.Occupied(domain.Slot2) {
		next.Joined = true
		events = append(events, domain.Event{Type: domain.EventJoined, Room: room.Clone()})
	}

	// 状态只前进：晚到的旧快照不会让状态回退
	if room.Status.Valid() && prev.Status.Before(room.Status) {
		next.Status = room.Status
		events = append(events, domain.Event{Type: domain.EventStatusChanged, Status: room.Status})
	}

	if !prev.BothReady && room.BothReady() && room.Status == domain.StatusPlacing {
		next.BothReady = true
		events = append(events, domain.Event{Type: domain.EventBothReady})
	}

	if room.CurrentTurn.Valid() && room.CurrentTurn != prev.Turn {
		next.Turn = room.CurrentTurn
		events = append(events, domain.Event{Type: domain.EventTurnChanged, Slot: room.CurrentTurn})
	}

	if len(room.Attacks) > prev.AttackCount {
		next.AttackCount = len(room.Attacks)
		var fresh []domain.Attack
		for _, a := range room.Attacks {
			if !next.Ledger.Seen(a.DedupKey()) {
				if next.Ledger == prev.Ledger {
					next.Ledger = prev.Ledger.Clone()
				}
				next.Ledger.Record(a)
				fresh = append(fresh, a)
			}
		}
		events = append(events, domain.Event{
			Type:    domain.EventAttacksChanged,
			Attacks: append([]domain.Attack(nil), room.Attacks...),
			Fresh:   fresh,
		})
	}

	if !prev.Finished && room.Status == domain.StatusFinished && room.Winner.Valid() {
		next.Finished = true
		events = append(events, domain.Event{Type: domain.EventFinished, Slot: room.Winner})
	}

	return events, next
}
