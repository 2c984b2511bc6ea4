package repository

import (
	"context"

	"naval-battle/internal/domain"
)

// MatchRepository 定义已结束对局的归档存储（MySQL）。
type MatchRepository interface {
	// Save 保存一条归档记录。同一 RoomID 已存在时返回 ErrDuplicateEntry。
	Save(ctx context.Context, record *domain.MatchRecord) error

	// FindByRoomID 查找归档，不存在时返回 ErrNotFound。
	FindByRoomID(ctx context.Context, roomID string) (*domain.MatchRecord, error)
}
