package db

import (
	"gorm.io/gorm"

	"github.com/yungbote/narrativeforge-backend/internal/domain/jobs"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&jobs.ContentJob{},
	)
}
