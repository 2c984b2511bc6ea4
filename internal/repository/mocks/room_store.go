package mocks

import (
	"context"

	"naval-battle/internal/domain"
	"naval-battle/internal/repository"

	"github.com/stretchr/testify/mock"
)

// RoomStore 是 repository.RoomStore 的 testify mock。
type RoomStore struct {
	mock.Mock
}

var _ repository.RoomStore = (*RoomStore)(nil)

func (m *RoomStore) CreateDocument(ctx context.Context, path string, room *domain.Room) error {
	args := m.Called(ctx, path, room)
	return args.Error(0)
}

func (m *RoomStore) PatchFields(ctx context.Context, path string, fields repository.Fields) error {
	args := m.Called(ctx, path, fields)
	return args.Error(0)
}

func (m *RoomStore) ReadDocument(ctx context.Context, path string) (*domain.Room, error) {
	args := m.Called(ctx, path)
	room, _ := args.Get(0).(*domain.Room)
	return room, args.Error(1)
}

func (m *RoomStore) AppendToList(ctx context.Context, path string, attack domain.Attack) (string, error) {
	args := m.Called(ctx, path, attack)
	return args.String(0), args.Error(1)
}

func (m *RoomStore) Subscribe(ctx context.Context, path string, onChange func(*domain.Room)) (func(), error) {
	args := m.Called(ctx, path, onChange)
	unsubscribe, _ := args.Get(0).(func())
	return unsubscribe, args.Error(1)
}
