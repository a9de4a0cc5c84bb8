package app

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/narrativeforge-backend/internal/data/db"
	repos "github.com/yungbote/narrativeforge-backend/internal/data/repos/jobs"
	"github.com/yungbote/narrativeforge-backend/internal/enrich"
	httpserver "github.com/yungbote/narrativeforge-backend/internal/http"
	httpH "github.com/yungbote/narrativeforge-backend/internal/http/handlers"
	"github.com/yungbote/narrativeforge-backend/internal/jobs/pipeline/content_build"
	"github.com/yungbote/narrativeforge-backend/internal/jobs/worker"
	"github.com/yungbote/narrativeforge-backend/internal/modules/content"
	"github.com/yungbote/narrativeforge-backend/internal/modules/content/prompts"
	"github.com/yungbote/narrativeforge-backend/internal/observability"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/logger"
	"github.com/yungbote/narrativeforge-backend/internal/realtime"
	"github.com/yungbote/narrativeforge-backend/internal/realtime/bus"
	"github.com/yungbote/narrativeforge-backend/internal/services"
)

type App struct {
	Log     *logger.Logger
	DB      *gorm.DB
	Cfg     Config
	Server  *httpserver.Server
	Worker  *worker.Worker
	SSEHub  *realtime.SSEHub
	Metrics *observability.Metrics

	dbService *db.Service
	bus       *bus.RedisBus
	clients   Clients
	otelStop  func(context.Context) error
	cancel    context.CancelFunc
	stopped   chan struct{}
	closeOnce sync.Once
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	dbs, err := db.NewService(log, cfg.DB)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := db.AutoMigrateAll(dbs.DB()); err != nil {
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}

	catalogue, err := loadCatalogue(cfg.PromptsPath)
	if err != nil {
		log.Sync()
		return nil, err
	}

	a := &App{
		Log:       log,
		DB:        dbs.DB(),
		Cfg:       cfg,
		SSEHub:    realtime.NewSSEHub(log),
		Metrics:   observability.Init(cfg.MetricsEnabled),
		dbService: dbs,
		otelStop:  observability.InitOTel(context.Background(), log, cfg.Otel),
		stopped:   make(chan struct{}),
	}

	var eventBus bus.Bus
	if cfg.Redis.Configured() {
		rb, err := bus.NewRedisBus(log, cfg.Redis)
		if err != nil {
			log.Warn("Redis bus unavailable; events stay local to this process", "error", err)
		} else {
			a.bus = rb
			eventBus = rb
		}
	}

	repo := repos.NewContentJobRepo(a.DB, log)
	notifier := services.NewJobNotifier(log, a.SSEHub, eventBus)
	jobService := services.NewJobService(log, repo, notifier)

	if cfg.runsAPI() {
		serviceName := ""
		if cfg.Otel.Enabled {
			serviceName = cfg.Otel.ServiceName
		}
		a.Server = httpserver.NewServer(httpserver.RouterConfig{
			Log:             log,
			ServiceName:     serviceName,
			CORSOrigins:     cfg.CORSOrigins,
			Metrics:         a.Metrics,
			JobHandler:      httpH.NewJobHandler(jobService),
			RealtimeHandler: httpH.NewRealtimeHandler(log, a.SSEHub, jobService),
			HealthHandler:   httpH.NewHealthHandler(a.ping),
		})
	}

	if cfg.runsWorker() {
		a.clients = wireClients(context.Background(), log, cfg)
		pipeline := content_build.NewContentBuildPipeline(log, cfg.Pipeline, content_build.Deps{
			Planner:     content.NewPlanner(log, a.clients.LLM, catalogue, ""),
			Synthesizer: content.NewSynthesizer(log, a.clients.LLM, catalogue, ""),
			Narratives:  content.NewNarrativeGenerator(log, a.clients.LLM, catalogue, ""),
			Generator:   content.NewContentGenerator(log, a.clients.LLM, catalogue, ""),
			Extractor:   enrich.NewExtractor(log, a.clients.Scraper),
			Searcher:    enrich.NewSearcher(log, a.clients.Searcher),
			Transcriber: enrich.NewTranscriber(log, a.clients.Transcriber),
		})
		a.Worker = worker.NewWorker(log, cfg.Worker, repo, pipeline, notifier)
	}

	return a, nil
}

func loadCatalogue(path string) (*prompts.Catalogue, error) {
	if path == "" {
		return prompts.Default()
	}
	c, err := prompts.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load prompts %s: %w", path, err)
	}
	return c, nil
}

func (a *App) ping(ctx context.Context) error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Start launches the background side: bus forwarding, collectors and the worker pool.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.bus != nil && a.Server != nil {
		if err := a.bus.StartForwarder(ctx, a.SSEHub.Broadcast); err != nil {
			a.Log.Warn("Redis forwarder failed to start", "error", err)
		}
		a.Metrics.StartRedisCollector(ctx, a.Log, a.bus.Client(), 15*time.Second)
	}
	a.Metrics.StartJobQueueCollector(ctx, a.Log, a.DB, "content_jobs", 15*time.Second)
	if a.Cfg.MetricsAddr != "" {
		a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
	}

	if a.Worker != nil {
		a.Worker.Start(ctx)
	}
}

// Run blocks serving HTTP. Worker-only processes block until Close.
func (a *App) Run() error {
	if a == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Server == nil {
		<-a.stopped
		return nil
	}
	a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTPAddr)
	return a.Server.Run(a.Cfg.HTTPAddr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.closeOnce.Do(func() { a.close() })
}

func (a *App) close() {
	defer close(a.stopped)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if a.Server != nil {
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			a.Log.Warn("HTTP shutdown failed", "error", err)
		}
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Worker != nil {
		a.Worker.Wait()
	}
	if a.bus != nil {
		_ = a.bus.Close()
	}
	a.clients.Close()
	if a.otelStop != nil {
		_ = a.otelStop(shutdownCtx)
	}
	if a.dbService != nil {
		_ = a.dbService.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
