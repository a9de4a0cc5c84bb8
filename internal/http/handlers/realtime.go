package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/narrativeforge-backend/internal/http/response"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/logger"
	"github.com/yungbote/narrativeforge-backend/internal/realtime"
	"github.com/yungbote/narrativeforge-backend/internal/services"
)

type RealtimeHandler struct {
	Log  *logger.Logger
	Hub  *realtime.SSEHub
	jobs services.JobService
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub, jobs services.JobService) *RealtimeHandler {
	return &RealtimeHandler{Log: log.With("handler", "RealtimeHandler"), Hub: hub, jobs: jobs}
}

// GET /api/jobs/:id/events streams progress for one job.
func (h *RealtimeHandler) JobEvents(c *gin.Context) {
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}
	job, err := h.jobs.Get(dbctx.Context{Ctx: c.Request.Context()}, jobID)
	if err != nil {
		respondServiceError(c, err, "job_not_found")
		return
	}
	client := h.Hub.NewSSEClient(job.OwnerID)
	h.Hub.AddChannel(client, realtime.JobChannel(job.ID))
	h.serve(c, client)
}

// GET /api/events streams every job event of the calling owner.
func (h *RealtimeHandler) OwnerEvents(c *gin.Context) {
	owner := ""
	if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil {
		owner = rd.OwnerID
	}
	if owner == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_owner", errors.New("X-Owner-Id header is required"))
		return
	}
	client := h.Hub.NewSSEClient(owner)
	h.Hub.AddChannel(client, owner)
	h.serve(c, client)
}

func (h *RealtimeHandler) serve(c *gin.Context, client *realtime.SSEClient) {
	h.Log.Debug("SSE stream open", "client_id", client.ID.String(), "owner_id", client.OwnerID)
	h.Hub.ServeHTTP(c.Writer, c.Request, client)
	h.Hub.CloseClient(client)
}
