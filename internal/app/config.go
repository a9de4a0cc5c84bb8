package app

import (
	"strings"
	"time"

	"github.com/yungbote/narrativeforge-backend/internal/data/db"
	"github.com/yungbote/narrativeforge-backend/internal/jobs/pipeline/content_build"
	"github.com/yungbote/narrativeforge-backend/internal/jobs/worker"
	"github.com/yungbote/narrativeforge-backend/internal/observability"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/envutil"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/logger"
	"github.com/yungbote/narrativeforge-backend/internal/platform/gcp"
	"github.com/yungbote/narrativeforge-backend/internal/platform/openai"
	"github.com/yungbote/narrativeforge-backend/internal/platform/scrape"
	"github.com/yungbote/narrativeforge-backend/internal/platform/search"
	"github.com/yungbote/narrativeforge-backend/internal/realtime/bus"
)

// RunMode selects which halves of the process start.
const (
	RunModeAll    = "all"
	RunModeAPI    = "api"
	RunModeWorker = "worker"
)

type Config struct {
	RunMode     string
	HTTPAddr    string
	CORSOrigins []string
	PromptsPath string

	DB          db.Config
	OpenAI      openai.Config
	LLMRetries  int
	Temperature float64
	Scrape      scrape.Config
	Search      search.Config
	Transcribe  gcp.TranscriptionConfig
	Redis       bus.RedisConfig

	Pipeline content_build.Config
	Worker   worker.Config

	MetricsEnabled bool
	MetricsAddr    string
	Otel           observability.OtelConfig
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		RunMode:     strings.ToLower(envutil.String("RUN_MODE", RunModeAll)),
		HTTPAddr:    envutil.String("HTTP_ADDR", ":8080"),
		CORSOrigins: splitList(envutil.String("CORS_ORIGINS", "")),
		PromptsPath: envutil.String("PROMPTS_PATH", ""),

		DB: db.Config{
			Driver:     strings.ToLower(envutil.String("DB_DRIVER", db.DriverPostgres)),
			Host:       envutil.String("POSTGRES_HOST", "localhost"),
			Port:       envutil.String("POSTGRES_PORT", "5432"),
			User:       envutil.String("POSTGRES_USER", "postgres"),
			Password:   envutil.String("POSTGRES_PASSWORD", ""),
			Name:       envutil.String("POSTGRES_NAME", "narrativeforge"),
			SSLMode:    envutil.String("POSTGRES_SSLMODE", "disable"),
			SQLitePath: envutil.String("SQLITE_PATH", ""),
		},
		OpenAI: openai.Config{
			APIKey:              envutil.String("OPENAI_API_KEY", ""),
			BaseURL:             envutil.String("OPENAI_BASE_URL", ""),
			Model:               envutil.String("OPENAI_MODEL", ""),
			Timeout:             envutil.Seconds("OPENAI_TIMEOUT_SECONDS", 120*time.Second),
			NoTemperatureModels: envutil.String("OPENAI_NO_TEMPERATURE_MODELS", ""),
		},
		LLMRetries:  envutil.Int("LLM_MAX_RETRIES", 3),
		Temperature: envutil.Float("OPENAI_TEMPERATURE", 0.7),
		Scrape: scrape.Config{
			APIKey:     envutil.String("SCRAPE_API_KEY", ""),
			BaseURL:    envutil.String("SCRAPE_BASE_URL", ""),
			Timeout:    envutil.Seconds("SCRAPE_TIMEOUT_SECONDS", 60*time.Second),
			MaxRetries: envutil.Int("SCRAPE_MAX_RETRIES", 2),
		},
		Search: search.Config{
			APIKey:     envutil.String("SEARCH_API_KEY", ""),
			BaseURL:    envutil.String("SEARCH_BASE_URL", ""),
			Timeout:    envutil.Seconds("SEARCH_TIMEOUT_SECONDS", 30*time.Second),
			MaxRetries: envutil.Int("SEARCH_MAX_RETRIES", 2),
		},
		Transcribe: gcp.TranscriptionConfig{
			Credentials:  envutil.String("GOOGLE_CREDENTIALS", ""),
			LanguageCode: envutil.String("TRANSCRIBE_LANGUAGE", ""),
			Timeout:      envutil.Seconds("TRANSCRIBE_TIMEOUT_SECONDS", 3*time.Minute),
		},
		Redis: bus.RedisConfig{
			Addr:     envutil.String("REDIS_ADDR", ""),
			Password: envutil.String("REDIS_PASSWORD", ""),
			DB:       envutil.Int("REDIS_DB", 0),
			Channel:  envutil.String("REDIS_CHANNEL", ""),
		},
		Pipeline: content_build.Config{
			Deadline:      envutil.Seconds("JOB_DEADLINE_SECONDS", 5*time.Minute),
			EmptyResearch: content_build.ParseEmptyResearchPolicy(envutil.String("EMPTY_RESEARCH_POLICY", "fail")),
			SearchResults: envutil.Int("SEARCH_MAX_RESULTS", 5),
			SearchDepth:   search.Depth(envutil.String("SEARCH_DEPTH", string(search.DepthAdvanced))),
			BatchSize:     envutil.Int("BATCH_SIZE", 3),
		},
		Worker: worker.Config{
			Concurrency:  envutil.Int("WORKER_CONCURRENCY", 4),
			PollInterval: envutil.Seconds("WORKER_POLL_SECONDS", time.Second),
			StaleAfter:   envutil.Seconds("WORKER_STALE_SECONDS", 2*time.Minute),
		},
		MetricsEnabled: envutil.Bool("METRICS_ENABLED", true),
		MetricsAddr:    envutil.String("METRICS_ADDR", ""),
		Otel: observability.OtelConfig{
			Enabled:     envutil.Bool("OTEL_ENABLED", false),
			ServiceName: envutil.String("OTEL_SERVICE_NAME", "narrativeforge"),
			Environment: envutil.String("OTEL_ENVIRONMENT", "development"),
			Version:     envutil.String("OTEL_SERVICE_VERSION", ""),
			Endpoint:    envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:     observability.ParseHeaders(envutil.String("OTEL_EXPORTER_OTLP_HEADERS", "")),
			Insecure:    envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false),
			SampleRatio: envutil.Float("OTEL_SAMPLE_RATIO", 1),
		},
	}
	switch cfg.RunMode {
	case RunModeAll, RunModeAPI, RunModeWorker:
	default:
		log.Warn("Unknown RUN_MODE; running api and worker", "run_mode", cfg.RunMode)
		cfg.RunMode = RunModeAll
	}
	if cfg.DB.Driver != db.DriverSQLite && cfg.DB.Driver != db.DriverPostgres {
		log.Warn("Unknown DB_DRIVER; using postgres", "db_driver", cfg.DB.Driver)
		cfg.DB.Driver = db.DriverPostgres
	}
	return cfg
}

func (c Config) runsAPI() bool    { return c.RunMode != RunModeWorker }
func (c Config) runsWorker() bool { return c.RunMode != RunModeAPI }

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
