package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"naval-battle/internal/domain"
	"naval-battle/internal/repository"
)

// GormMatchRepository 是 MatchRepository 接口的 GORM 实现
type GormMatchRepository struct {
	db *gorm.DB
}

var _ repository.MatchRepository = (*GormMatchRepository)(nil)

// NewGormMatchRepository 创建 GormMatchRepository 实例
func NewGormMatchRepository(db *gorm.DB) *GormMatchRepository {
	if db == nil {
		panic("database connection cannot be nil for GormMatchRepository")
	}
	return &GormMatchRepository{db: db}
}

// Save 插入一条归档记录，room_id 冲突时返回 ErrDuplicateEntry
func (r *GormMatchRepository) Save(ctx context.Context, record *domain.MatchRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		if isDuplicateEntry(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save match record (room_id: %s): %w", record.RoomID, err)
	}
	return nil
}

// FindByRoomID 根据房间码查找归档
func (r *GormMatchRepository) FindByRoomID(ctx context.Context, roomID string) (*domain.MatchRecord, error) {
	var record domain.MatchRecord
	err := r.db.WithContext(ctx).Where("room_id = ?", roomID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("gorm: find match by room id '%s': %w", roomID, err)
	}
	return &record, nil
}

// isDuplicateEntry 判断是否为 MySQL 唯一约束冲突 (1062)
func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
