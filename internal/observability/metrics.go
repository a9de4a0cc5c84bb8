package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/narrativeforge-backend/internal/pkg/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	llmRequests *CounterVec
	llmLatency  *HistogramVec

	stageLatency *HistogramVec
	stageTotal   *CounterVec

	optionalService *CounterVec
	batchDropped    *CounterVec

	jobTerminal *CounterVec
	queueDepth  *GaugeVec

	redisUp   *Gauge
	redisPing *Gauge
}

var (
	initMu   sync.Mutex
	instance *Metrics
)

// Current returns the process-wide registry, or nil when metrics are disabled.
// Every Metrics method is nil-safe.
func Current() *Metrics {
	initMu.Lock()
	defer initMu.Unlock()
	return instance
}

// Init builds the registry once. Disabled metrics leave Current() nil.
func Init(enabled bool) *Metrics {
	initMu.Lock()
	defer initMu.Unlock()
	if !enabled {
		return nil
	}
	if instance == nil {
		instance = New()
	}
	return instance
}

// New builds a standalone registry. Tests use it directly.
func New() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("nf_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"nf_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		),
		apiInflight: NewGauge("nf_api_inflight_requests", "In-flight API requests."),
		llmRequests: NewCounterVec("nf_llm_requests_total", "LLM attempts by model/status.", []string{"model", "status"}),
		llmLatency: NewHistogramVec(
			"nf_llm_request_duration_seconds",
			"LLM attempt latency in seconds by model/status.",
			[]string{"model", "status"},
			[]float64{0.5, 1, 2, 5, 10, 20, 40, 60, 120, 180},
		),
		stageLatency: NewHistogramVec(
			"nf_pipeline_stage_duration_seconds",
			"Pipeline stage duration in seconds by stage/status.",
			[]string{"stage", "status"},
			[]float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		),
		stageTotal:      NewCounterVec("nf_pipeline_stage_total", "Pipeline stage outcomes by stage/status.", []string{"stage", "status"}),
		optionalService: NewCounterVec("nf_optional_service_total", "Optional service outcomes (ok/unavailable/degraded/invalid).", []string{"service", "outcome"}),
		batchDropped:    NewCounterVec("nf_batch_dropped_total", "Batch items dropped by reason (nil/error/panic).", []string{"reason"}),
		jobTerminal:     NewCounterVec("nf_jobs_terminal_total", "Jobs reaching a terminal or parked state.", []string{"status"}),
		queueDepth:      NewGaugeVec("nf_job_queue_depth", "Content jobs by status.", []string{"status"}),
		redisUp:         NewGauge("nf_redis_up", "Redis ping success (1/0)."),
		redisPing:       NewGauge("nf_redis_ping_seconds", "Redis ping latency in seconds."),
	}
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type promWriter interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range []promWriter{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency,
		m.stageLatency, m.stageTotal,
		m.optionalService, m.batchDropped,
		m.jobTerminal, m.queueDepth,
		m.redisUp, m.redisPing,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	method = orUnknown(method)
	route = orUnknown(route)
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

// ObserveLLMRequest records one provider attempt (not one logical call).
func (m *Metrics) ObserveLLMRequest(model, status string, dur time.Duration) {
	if m == nil {
		return
	}
	model = orUnknown(model)
	status = orUnknown(status)
	m.llmRequests.Inc(model, status)
	if dur > 0 {
		m.llmLatency.Observe(dur.Seconds(), model, status)
	}
}

func (m *Metrics) LLMRequests(model, status string) float64 {
	if m == nil {
		return 0
	}
	return m.llmRequests.Value(model, status)
}

func (m *Metrics) ObserveStage(stage, status string, dur time.Duration) {
	if m == nil {
		return
	}
	stage = orUnknown(stage)
	status = orUnknown(status)
	m.stageTotal.Inc(stage, status)
	m.stageLatency.Observe(dur.Seconds(), stage, status)
}

func (m *Metrics) StageCount(stage, status string) float64 {
	if m == nil {
		return 0
	}
	return m.stageTotal.Value(stage, status)
}

func (m *Metrics) IncOptionalService(service, outcome string) {
	if m == nil {
		return
	}
	m.optionalService.Inc(orUnknown(service), orUnknown(outcome))
}

func (m *Metrics) OptionalServiceCount(service, outcome string) float64 {
	if m == nil {
		return 0
	}
	return m.optionalService.Value(service, outcome)
}

func (m *Metrics) IncBatchDropped(reason string) {
	if m == nil {
		return
	}
	m.batchDropped.Inc(orUnknown(reason))
}

func (m *Metrics) IncJobTerminal(status string) {
	if m == nil {
		return
	}
	m.jobTerminal.Inc(orUnknown(status))
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *redis.Client, interval time.Duration) {
	if m == nil || rdb == nil {
		return
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

// StartJobQueueCollector samples job counts per status from the given table.
func (m *Metrics) StartJobQueueCollector(ctx context.Context, log *logger.Logger, db *gorm.DB, table string, interval time.Duration) {
	if m == nil || db == nil {
		return
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	statuses := []string{"pending", "processing", "completed", "failed"}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, s := range statuses {
					m.queueDepth.Set(0, s)
				}
				var rows []struct {
					Status string
					Count  int64
				}
				if err := db.WithContext(ctx).
					Table(table).
					Select("status, count(*) as count").
					Where("deleted_at IS NULL").
					Group("status").
					Scan(&rows).Error; err != nil {
					if log != nil {
						log.Warn("metrics: job queue depth query failed", "error", err)
					}
					continue
				}
				for _, row := range rows {
					m.queueDepth.Set(float64(row.Count), orUnknown(strings.TrimSpace(row.Status)))
				}
			}
		}
	}()
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return s
}
