package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"naval-battle/internal/domain"
)

// MigrateDB 迁移归档表
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}
	if err := db.AutoMigrate(&domain.MatchRecord{}); err != nil {
		return fmt.Errorf("failed to auto-migrate match records: %w", err)
	}
	logrus.Info("Database migration completed successfully")
	return nil
}
