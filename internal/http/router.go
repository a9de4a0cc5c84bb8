package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/narrativeforge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/narrativeforge-backend/internal/http/middleware"
	"github.com/yungbote/narrativeforge-backend/internal/observability"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigins []string
	Metrics     *observability.Metrics

	JobHandler      *httpH.JobHandler
	RealtimeHandler *httpH.RealtimeHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.AttachRequestContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", func(c *gin.Context) { cfg.Metrics.WriteHTTP(c.Writer, c.Request) })
	}

	api := r.Group("/api")
	{
		// Jobs
		if cfg.JobHandler != nil {
			api.POST("/jobs", cfg.JobHandler.CreateJob)
			api.GET("/jobs/:id", cfg.JobHandler.GetJob)
			api.GET("/jobs/:id/result", cfg.JobHandler.GetResult)
			api.POST("/jobs/:id/select", cfg.JobHandler.SelectNarrative)
			api.POST("/jobs/:id/abandon", cfg.JobHandler.AbandonJob)
			api.POST("/jobs/:id/restart", cfg.JobHandler.RestartJob)
			api.POST("/jobs/:id/timeout", cfg.JobHandler.DeclareTimeout)
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			api.GET("/jobs/:id/events", cfg.RealtimeHandler.JobEvents)
			api.GET("/events", cfg.RealtimeHandler.OwnerEvents)
		}
	}

	return r
}
