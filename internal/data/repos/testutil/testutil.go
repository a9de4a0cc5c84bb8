package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/narrativeforge-backend/internal/data/db"
	"github.com/yungbote/narrativeforge-backend/internal/domain/jobs"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/logger"
)

var (
	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB opens a fresh in-memory sqlite database with every table migrated.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		tb.Fatalf("sql db: %v", err)
	}
	// each new connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrateAll(gdb); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	return gdb
}

func SeedJob(tb testing.TB, ctx context.Context, tx *gorm.DB, in jobs.JobInput, mutate func(*jobs.ContentJob)) *jobs.ContentJob {
	tb.Helper()
	raw, err := json.Marshal(in)
	if err != nil {
		tb.Fatalf("marshal input: %v", err)
	}
	job := &jobs.ContentJob{
		Stage:   jobs.StageInput,
		Status:  jobs.StatusPending,
		Payload: datatypes.JSON(raw),
	}
	if mutate != nil {
		mutate(job)
	}
	if err := tx.WithContext(ctx).Create(job).Error; err != nil {
		tb.Fatalf("seed job: %v", err)
	}
	return job
}
