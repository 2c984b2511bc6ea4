// Package memorystate 提供进程内的 RoomStore 实现，语义与 Redis 实现一致：
// 订阅时立即推送当前文档，之后每次写入推送完整文档，可配置重复投递。
package memorystate

import (
	"context"
	"fmt"
	"sync"

	"naval-battle/internal/domain"
	"naval-battle/internal/repository"

	"github.com/sirupsen/logrus"
)

// Option 配置 RoomStore。
type Option func(*RoomStore)

// WithDuplicateDelivery 让每次推送额外重复 n 次，用来模拟至少一次投递。
func WithDuplicateDelivery(n int) Option {
	return func(s *RoomStore) { s.duplicates = n }
}

// RoomStore 是 repository.RoomStore 的内存实现。
type RoomStore struct {
	mu         sync.Mutex
	rooms      map[string]*domain.Room
	seq        map[string]int64
	subs       map[string]map[int]*subscriber
	nextSubID  int
	duplicates int
	failure    error
}

var _ repository.RoomStore = (*RoomStore)(nil)

// NewRoomStore 创建空的内存存储。
func NewRoomStore(opts ...Option) *RoomStore {
	s := &RoomStore{
		rooms: make(map[string]*domain.Room),
		seq:   make(map[string]int64),
		subs:  make(map[string]map[int]*subscriber),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetFailure 让之后的所有操作返回 err，传 nil 恢复。用于模拟存储不可达。
func (s *RoomStore) SetFailure(err error) {
	s.mu.Lock()
	s.failure = err
	s.mu.Unlock()
}

func (s *RoomStore) CreateDocument(ctx context.Context, path string, room *domain.Room) error {
	p, err := repository.ParsePath(path)
	if err != nil {
		return err
	}
	if !p.IsRoom() {
		return fmt.Errorf("%w: create expects a room path, got %q", repository.ErrInvalidPath, path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return fmt.Errorf("memory: create %s: %w", path, s.failure)
	}
	doc := room.Clone()
	doc.ID = p.RoomID
	if doc.Attacks == nil {
		doc.Attacks = []domain.Attack{}
	}
	s.rooms[p.RoomID] = doc
	s.seq[p.RoomID] = 0
	s.notifyLocked(p.RoomID)
	return nil
}

func (s *RoomStore) PatchFields(ctx context.Context, path string, fields repository.Fields) error {
	p, err := repository.ParsePath(path)
	if err != nil {
		return err
	}
	ops, err := repository.ResolveFields(p, fields)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return fmt.Errorf("memory: patch %s: %w", path, s.failure)
	}
	room, ok := s.rooms[p.RoomID]
	if !ok {
		// 与实时数据库一致：对不存在的路径打补丁会隐式创建文档
		room = &domain.Room{ID: p.RoomID, Attacks: []domain.Attack{}}
		s.rooms[p.RoomID] = room
	}
	repository.ApplyFields(room, ops)
	s.notifyLocked(p.RoomID)
	return nil
}

func (s *RoomStore) ReadDocument(ctx context.Context, path string) (*domain.Room, error) {
	p, err := repository.ParsePath(path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return nil, fmt.Errorf("memory: read %s: %w", path, s.failure)
	}
	room, ok := s.rooms[p.RoomID]
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	return room.Clone(), nil
}

func (s *RoomStore) AppendToList(ctx context.Context, path string, attack domain.Attack) (string, error) {
	p, err := repository.ParsePath(path)
	if err != nil {
		return "", err
	}
	if !p.IsAttacks() {
		return "", fmt.Errorf("%w: append expects an attacks path, got %q", repository.ErrInvalidPath, path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return "", fmt.Errorf("memory: append %s: %w", path, s.failure)
	}
	room, ok := s.rooms[p.RoomID]
	if !ok {
		room = &domain.Room{ID: p.RoomID}
		s.rooms[p.RoomID] = room
	}
	s.seq[p.RoomID]++
	attack.Key = fmt.Sprintf("%012d", s.seq[p.RoomID])
	room.Attacks = append(room.Attacks, attack)
	s.notifyLocked(p.RoomID)
	return attack.Key, nil
}

func (s *RoomStore) Subscribe(ctx context.Context, path string, onChange func(*domain.Room)) (func(), error) {
	p, err := repository.ParsePath(path)
	if err != nil {
		return nil, err
	}
	if onChange == nil {
		return nil, fmt.Errorf("memory: subscribe %s: nil callback", path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return nil, fmt.Errorf("memory: subscribe %s: %w", path, s.failure)
	}

	sub := newSubscriber(onChange)
	id := s.nextSubID
	s.nextSubID++
	if s.subs[p.RoomID] == nil {
		s.subs[p.RoomID] = make(map[int]*subscriber)
	}
	s.subs[p.RoomID][id] = sub
	go sub.run()

	if room, ok := s.rooms[p.RoomID]; ok {
		sub.push(room.Clone())
	}
	logrus.WithFields(logrus.Fields{"room_id": p.RoomID, "subscriber": id}).Debug("memory: subscriber installed")

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs[p.RoomID], id)
			if len(s.subs[p.RoomID]) == 0 {
				delete(s.subs, p.RoomID)
			}
			s.mu.Unlock()
			sub.stop()
		})
	}, nil
}

// notifyLocked 向房间的所有订阅者推送当前文档，调用方需持有 s.mu。
func (s *RoomStore) notifyLocked(roomID string) {
	room, ok := s.rooms[roomID]
	if !ok {
		return
	}
	for _, sub := range s.subs[roomID] {
		for i := 0; i <= s.duplicates; i++ {
			sub.push(room.Clone())
		}
	}
}

// subscriber 用无界队列按顺序投递快照，写入方不会被慢回调阻塞。
type subscriber struct {
	onChange func(*domain.Room)

	mu     sync.Mutex
	queue  []*domain.Room
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newSubscriber(onChange func(*domain.Room)) *subscriber {
	return &subscriber{
		onChange: onChange,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (s *subscriber) push(room *domain.Room) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, room)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.queue = nil
		close(s.done)
	}
	s.mu.Unlock()
}

func (s *subscriber) run() {
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
			next := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			s.onChange(next)
		}
	}
}
