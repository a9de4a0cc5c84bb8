package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	repos "github.com/yungbote/narrativeforge-backend/internal/data/repos/jobs"
	"github.com/yungbote/narrativeforge-backend/internal/jobs/runtime"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/logger"
	"github.com/yungbote/narrativeforge-backend/internal/services"
)

type Config struct {
	Concurrency  int
	PollInterval time.Duration
	// StaleAfter is how long a processing job may go without a heartbeat before
	// another worker takes it over.
	StaleAfter time.Duration
}

type Worker struct {
	log     *logger.Logger
	cfg     Config
	repo    repos.ContentJobRepo
	handler runtime.Handler
	notify  services.JobNotifier
	wg      sync.WaitGroup
}

func NewWorker(baseLog *logger.Logger, cfg Config, repo repos.ContentJobRepo, handler runtime.Handler, notify services.JobNotifier) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * time.Minute
	}
	return &Worker{
		log:     baseLog.With("component", "JobWorker"),
		cfg:     cfg,
		repo:    repo,
		handler: handler,
		notify:  notify,
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting job worker pool", "concurrency", w.cfg.Concurrency)
	for i := 0; i < w.cfg.Concurrency; i++ {
		workerID := i + 1
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.runLoop(ctx, workerID)
		}()
	}
}

// Wait blocks until every loop has returned after ctx was canceled.
func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			// drain the queue before waiting for the next tick
			for w.RunOnce(ctx, workerID) {
				if ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// RunOnce claims and runs at most one job. It reports whether a job was claimed.
func (w *Worker) RunOnce(ctx context.Context, workerID int) bool {
	job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, w.cfg.StaleAfter)
	if err != nil {
		w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
		return false
	}
	if job == nil {
		return false
	}
	w.log.Info("Claimed content job", "worker_id", workerID, "job_id", job.ID, "stage", job.Stage, "attempts", job.Attempts)

	jc := runtime.NewContext(ctx, job, w.repo, w.notify, w.log)
	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("Job handler panic",
					"worker_id", workerID,
					"job_id", job.ID,
					"panic", r,
				)
				jc.Fail(job.Stage, fmt.Errorf("panic: %v", r))
			}
		}()

		if runErr := w.handler.Run(jc); runErr != nil {
			// the pipeline records its own failures; this covers misuse
			jc.Fail(job.Stage, runErr)
		}
	}()
	return true
}
