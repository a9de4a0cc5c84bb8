package app

import (
	"testing"
	"time"

	"github.com/yungbote/narrativeforge-backend/internal/data/db"
	"github.com/yungbote/narrativeforge-backend/internal/jobs/pipeline/content_build"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/logger"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("RUN_MODE", "")
	t.Setenv("JOB_DEADLINE_SECONDS", "")
	t.Setenv("EMPTY_RESEARCH_POLICY", "")
	cfg := LoadConfig(logger.Nop())
	if cfg.RunMode != RunModeAll || !cfg.runsAPI() || !cfg.runsWorker() {
		t.Fatalf("run mode: %s", cfg.RunMode)
	}
	if cfg.Pipeline.Deadline != 5*time.Minute {
		t.Fatalf("deadline: want=5m got=%s", cfg.Pipeline.Deadline)
	}
	if cfg.Pipeline.EmptyResearch != content_build.EmptyResearchFail {
		t.Fatalf("empty research: want=fail got=%s", cfg.Pipeline.EmptyResearch)
	}
	if cfg.Worker.Concurrency != 4 {
		t.Fatalf("concurrency: want=4 got=%d", cfg.Worker.Concurrency)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("RUN_MODE", "Worker")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("JOB_DEADLINE_SECONDS", "90")
	t.Setenv("EMPTY_RESEARCH_POLICY", "skip")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, ,https://b.example.com")
	cfg := LoadConfig(logger.Nop())
	if cfg.runsAPI() || !cfg.runsWorker() {
		t.Fatalf("run mode: %s", cfg.RunMode)
	}
	if cfg.DB.Driver != db.DriverSQLite {
		t.Fatalf("driver: want=sqlite got=%s", cfg.DB.Driver)
	}
	if cfg.Pipeline.Deadline != 90*time.Second || cfg.Pipeline.EmptyResearch != content_build.EmptyResearchSkip {
		t.Fatalf("pipeline: %+v", cfg.Pipeline)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example.com" {
		t.Fatalf("cors: %v", cfg.CORSOrigins)
	}

	t.Setenv("RUN_MODE", "sideways")
	if cfg := LoadConfig(logger.Nop()); cfg.RunMode != RunModeAll {
		t.Fatalf("unknown run mode: want=all got=%s", cfg.RunMode)
	}
}
