package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// MatchRecord 是已结束对局的归档记录（MySQL）。两端可能都会提交，RoomID 唯一。
type MatchRecord struct {
	ID          uint      `gorm:"primaryKey"`
	RoomID      string    `gorm:"uniqueIndex;size:16;not null"`
	Slot1Player string    `gorm:"size:64;not null"`
	Slot2Player string    `gorm:"size:64;not null"`
	Winner      string    `gorm:"size:8;not null"`
	AttackCount int       `gorm:"not null"`
	Attacks     string    `gorm:"type:text;not null"` // JSON 编码的 attacks 列表
	StartedAt   time.Time `gorm:"index"`
	FinishedAt  time.Time `gorm:"index;not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

// SetAttacks 将 attacks 序列化到 Attacks 字段。
func (m *MatchRecord) SetAttacks(attacks []Attack) error {
	if attacks == nil {
		attacks = []Attack{}
	}
	bytes, err := json.Marshal(attacks)
	if err != nil {
		return fmt.Errorf("failed to marshal match attacks: %w", err)
	}
	m.Attacks = string(bytes)
	m.AttackCount = len(attacks)
	return nil
}

// ParseAttacks 解析 Attacks 字段。
func (m *MatchRecord) ParseAttacks() ([]Attack, error) {
	var attacks []Attack
	if m.Attacks == "" {
		return attacks, nil
	}
	if err := json.Unmarshal([]byte(m.Attacks), &attacks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match attacks: %w", err)
	}
	return attacks, nil
}

// NewMatchRecord 从已结束的房间文档构建归档记录。
func NewMatchRecord(room *Room, finishedAt time.Time) (*MatchRecord, error) {
	if room == nil || room.Status != StatusFinished || !room.Winner.Valid() {
		return nil, fmt.Errorf("room is not finished")
	}
	record := &MatchRecord{
		RoomID:     room.ID,
		Winner:     string(room.Winner),
		StartedAt:  room.CreatedAt,
		FinishedAt: finishedAt,
	}
	if room.Slot1 != nil {
		record.Slot1Player = room.Slot1.PlayerID
	}
	if room.Slot2 != nil {
		record.Slot2Player = room.Slot2.PlayerID
	}
	if err := record.SetAttacks(room.Attacks); err != nil {
		return nil, err
	}
	return record, nil
}
