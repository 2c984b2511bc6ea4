package mocks

import (
	"context"

	"naval-battle/internal/domain"
	"naval-battle/internal/repository"

	"github.com/stretchr/testify/mock"
)

// MatchRepository 是 repository.MatchRepository 的 testify mock。
type MatchRepository struct {
	mock.Mock
}

var _ repository.MatchRepository = (*MatchRepository)(nil)

func (m *MatchRepository) Save(ctx context.Context, record *domain.MatchRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MatchRepository) FindByRoomID(ctx context.Context, roomID string) (*domain.MatchRecord, error) {
	args := m.Called(ctx, roomID)
	record, _ := args.Get(0).(*domain.MatchRecord)
	return record, args.Error(1)
}
