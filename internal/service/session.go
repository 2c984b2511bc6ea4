package service

import (
	"context"
	"sync"
	"time"

	"naval-battle/internal/domain"
	"naval-battle/internal/grid"
	"naval-battle/internal/repository"

	"github.com/sirupsen/logrus"
)

// writeTimeout 限制会话在回调中发起的写入（开局、归档）。
const writeTimeout = 5 * time.Second

// Session 是一个座位对一个房间的订阅。快照经 Detect 转为边沿事件，
// 按到达顺序通过唯一的 Events() 通道交付。会话之间互不共享状态。
type Session struct {
	store    repository.RoomStore
	archiver Archiver
	roomID   string
	slot     domain.Slot
	log      *logrus.Entry

	mu          sync.Mutex
	observed    Observed
	room        *domain.Room
	turn        domain.Slot
	myCells     map[string]struct{}
	inFlight    bool
	unsettled   *Outcome
	queue       []domain.Event
	closed      bool
	archived    bool
	unsubscribe func()

	wake      chan struct{}
	done      chan struct{}
	events    chan domain.Event
	closeOnce sync.Once
}

func newSession(store repository.RoomStore, roomID string, slot domain.Slot, archiver Archiver) *Session {
	s := &Session{
		store:    store,
		archiver: archiver,
		roomID:   roomID,
		slot:     slot,
		log:      logrus.WithFields(logrus.Fields{"room_id": roomID, "slot": slot}),
		myCells:  make(map[string]struct{}),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		events:   make(chan domain.Event),
	}
	go s.pump()
	return s
}

// RoomID 返回会话所在房间。
func (s *Session) RoomID() string { return s.roomID }

// Slot 返回会话所在座位。
func (s *Session) Slot() domain.Slot { return s.slot }

// Events 返回按序交付的事件通道，会话关闭后通道被关闭。
func (s *Session) Events() <-chan domain.Event { return s.events }

// Done 在会话关闭后被关闭。
func (s *Session) Done() <-chan struct{} { return s.done }

// Room 返回最近一次收到的快照副本，尚未收到时返回 nil。
func (s *Session) Room() *domain.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room.Clone()
}

// Turn 返回本地认为的当前行动方。
func (s *Session) Turn() domain.Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turn
}

// Unsubscribe 释放快照监听并关闭事件通道，可重复调用。
func (s *Session) Unsubscribe() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		unsubscribe := s.unsubscribe
		s.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
		close(s.done)
		s.log.Debug("Session closed")
	})
}

func (s *Session) attach(unsubscribe func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		unsubscribe()
		return
	}
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
}

// onSnapshot 是存储的快照回调。同一订阅的回调按序调用。
func (s *Session) onSnapshot(room *domain.Room) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	events, next := Detect(s.observed, room)
	s.observed = next
	s.room = room.Clone()

	var startMatch, archive bool
	for _, ev := range events {
		switch ev.Type {
		case domain.EventBothReady:
			startMatch = s.slot == domain.Slot1
		case domain.EventTurnChanged:
			s.turn = ev.Slot
		case domain.EventAttacksChanged:
			for _, a := range ev.Fresh {
				if a.AttackerSlot == s.slot {
					s.myCells[a.Cell] = struct{}{}
				}
			}
		case domain.EventFinished:
			s.turn = domain.SlotNone
			if ev.Slot == s.slot && s.archiver != nil && !s.archived {
				s.archived = true
				archive = true
			}
		}
	}
	s.queue = append(s.queue, events...)
	s.mu.Unlock()

	if len(events) > 0 {
		s.notify()
	}
	if startMatch {
		s.startMatch()
	}
	if archive {
		s.archiveMatch(room)
	}
}

// startMatch 由 slot1 在观察到双方就绪后执行，slot2 只观察。
// slot1 在此之前断开时对局不会开始，这里没有补救。
func (s *Session) startMatch() {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	err := s.store.PatchFields(ctx, repository.RoomPath(s.roomID), repository.Fields{
		repository.FieldStatus:      domain.StatusPlaying,
		repository.FieldCurrentTurn: domain.Slot1,
	})
	if err != nil {
		s.log.WithError(err).Error("Failed to start match")
		return
	}
	s.log.Info("Match started")
}

func (s *Session) archiveMatch(room *domain.Room) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.archiver.Archive(ctx, room); err != nil {
		s.log.WithError(err).Error("Failed to enqueue match archive")
		return
	}
	s.log.Info("Match archive enqueued")
}

// SubmitAttack 攻击对手的 cell。重复攻击同一格是空操作，返回 applied=false，
// 与当前是否轮到己方无关。先追加攻击记录，再写回合或胜者；两次写入之间对方可能观察到中间状态。
func (s *Session) SubmitAttack(ctx context.Context, rawCell string) (Outcome, bool, error) {
	cell, ok := grid.Normalize(rawCell)
	if !ok {
		return Outcome{}, false, ErrInvalidCell
	}
	logCtx := s.log.WithField("cell", cell)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Outcome{}, false, ErrSessionClosed
	}
	if _, dup := s.myCells[cell]; dup {
		unsettled := s.unsettled
		if unsettled == nil || unsettled.Cell != cell || s.inFlight {
			s.mu.Unlock()
			logCtx.Debug("Duplicate attack ignored")
			return Outcome{Cell: cell}, false, nil
		}
		// 攻击已追加但回合没写成功，重新提交同一格时补写回合
		s.unsettled = nil
		s.inFlight = true
		s.mu.Unlock()
		logCtx.Info("Retrying turn write for unsettled attack")
		return s.settle(ctx, *unsettled, logCtx)
	}
	if s.observed.Status != domain.StatusPlaying || s.room == nil {
		s.mu.Unlock()
		return Outcome{}, false, ErrNotPlaying
	}
	// 上一次攻击的写入尚未完成时不能再攻击
	if s.turn != s.slot || s.inFlight || s.unsettled != nil {
		s.mu.Unlock()
		return Outcome{}, false, ErrNotYourTurn
	}
	opponent := s.room.SlotState(s.slot.Other())
	if opponent == nil || len(opponent.Fleet) == 0 {
		s.mu.Unlock()
		return Outcome{}, false, ErrNotPlaying
	}
	prior := make([]string, 0, len(s.myCells))
	for c := range s.myCells {
		prior = append(prior, c)
	}
	outcome := ResolveAttack(cell, opponent.Fleet, prior)
	// 先占位，防止快照到达前同一格被再次提交
	s.myCells[cell] = struct{}{}
	s.inFlight = true
	s.mu.Unlock()

	_, err := s.store.AppendToList(ctx, repository.AttacksPath(s.roomID), domain.Attack{
		Cell:         cell,
		AttackerSlot: s.slot,
		Result:       outcome.Result,
		Timestamp:    time.Now().UnixMilli(),
	})
	if err != nil {
		s.mu.Lock()
		delete(s.myCells, cell)
		s.inFlight = false
		s.mu.Unlock()
		logCtx.WithError(err).Error("Failed to append attack")
		return Outcome{}, false, mapRepoError(err)
	}
	return s.settle(ctx, outcome, logCtx)
}

// settle 在攻击记录追加之后写回合或胜者。写入失败时攻击保留在日志中，
// 会话停在这一步：其他格子被拒绝，重新提交同一格会重试这次写入。
func (s *Session) settle(ctx context.Context, outcome Outcome, logCtx *logrus.Entry) (Outcome, bool, error) {
	next := NextTurn(s.slot, outcome.Result)
	fields := repository.Fields{}
	if outcome.Result == domain.ResultFinished {
		fields[repository.FieldWinner] = s.slot
		fields[repository.FieldStatus] = domain.StatusFinished
	} else {
		fields[repository.FieldCurrentTurn] = next
	}
	if err := s.store.PatchFields(ctx, repository.RoomPath(s.roomID), fields); err != nil {
		s.mu.Lock()
		s.inFlight = false
		s.unsettled = &outcome
		s.mu.Unlock()
		logCtx.WithError(err).Error("Failed to write turn after attack")
		return outcome, true, mapRepoError(err)
	}

	s.mu.Lock()
	s.inFlight = false
	queued := false
	if s.turn == s.slot && !answered(s.room, s.slot, outcome.Cell) {
		s.turn = next
		// 与边沿检测器保持一致：之后的快照如果合并了对方的回击，仍能检测到回合回到己方
		if next.Valid() && s.observed.Turn != next && !s.closed {
			s.observed.Turn = next
			s.queue = append(s.queue, domain.Event{Type: domain.EventTurnChanged, Slot: next})
			queued = true
		}
	}
	s.mu.Unlock()
	if queued {
		s.notify()
	}

	logCtx.WithField("result", outcome.Result).Info("Attack resolved")
	return outcome, true, nil
}

// Damage 返回己方对对手以及对手对己方造成的战损视图。
func (s *Session) Damage() (dealt, taken DamageReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return DamageReport{}, DamageReport{}
	}
	attacks := s.observed.Ledger.Attacks()
	if opp := s.room.SlotState(s.slot.Other()); opp != nil {
		dealt = FleetDamage(opp.Fleet, attacks, s.slot)
	}
	if me := s.room.SlotState(s.slot); me != nil {
		taken = FleetDamage(me.Fleet, attacks, s.slot.Other())
	}
	return dealt, taken
}

// answered 判断快照里己方对 cell 的攻击之后是否已经有对方的回击。
func answered(room *domain.Room, slot domain.Slot, cell string) bool {
	if room == nil {
		return false
	}
	for i, a := range room.Attacks {
		if a.AttackerSlot == slot && a.Cell == cell {
			return i < len(room.Attacks)-1
		}
	}
	return false
}

func (s *Session) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump 把队列中的事件逐个送入 events，会话关闭后关闭 events。
func (s *Session) pump() {
	defer close(s.events)
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			if s.closed || len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			ev := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
		}
	}
}
