package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/narrativeforge-backend/internal/domain/jobs"
	"github.com/yungbote/narrativeforge-backend/internal/http/response"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/narrativeforge-backend/internal/platform/apierr"
	"github.com/yungbote/narrativeforge-backend/internal/services"
)

type JobHandler struct {
	jobs services.JobService
}

func NewJobHandler(jobs services.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// POST /api/jobs
func (h *JobHandler) CreateJob(c *gin.Context) {
	var in jobs.JobInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	job, err := h.jobs.Submit(dbctx.Context{Ctx: c.Request.Context()}, in)
	if err != nil {
		respondServiceError(c, err, "create_job_failed")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job.StatusView()})
}

// GET /api/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}
	job, err := h.jobs.Get(dbctx.Context{Ctx: c.Request.Context()}, jobID)
	if err != nil {
		respondServiceError(c, err, "job_not_found")
		return
	}
	response.RespondOK(c, gin.H{"job": job.StatusView()})
}

// GET /api/jobs/:id/result
func (h *JobHandler) GetResult(c *gin.Context) {
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}
	res, err := h.jobs.Result(dbctx.Context{Ctx: c.Request.Context()}, jobID)
	if err != nil {
		respondServiceError(c, err, "job_not_found")
		return
	}
	response.RespondOK(c, res)
}

// POST /api/jobs/:id/select
func (h *JobHandler) SelectNarrative(c *gin.Context) {
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}
	var req struct {
		NarrativeID string `json:"narrative_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	job, err := h.jobs.SelectNarrative(dbctx.Context{Ctx: c.Request.Context()}, jobID, req.NarrativeID)
	if err != nil {
		respondServiceError(c, err, "select_narrative_failed")
		return
	}
	response.RespondOK(c, gin.H{"job": job.StatusView()})
}

// POST /api/jobs/:id/abandon
func (h *JobHandler) AbandonJob(c *gin.Context) {
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}
	job, err := h.jobs.Abandon(dbctx.Context{Ctx: c.Request.Context()}, jobID)
	if err != nil {
		respondServiceError(c, err, "abandon_job_failed")
		return
	}
	response.RespondOK(c, gin.H{"job": job.StatusView()})
}

// POST /api/jobs/:id/restart
func (h *JobHandler) RestartJob(c *gin.Context) {
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}
	job, err := h.jobs.Restart(dbctx.Context{Ctx: c.Request.Context()}, jobID)
	if err != nil {
		respondServiceError(c, err, "restart_job_failed")
		return
	}
	response.RespondOK(c, gin.H{"job": job.StatusView()})
}

// POST /api/jobs/:id/timeout
func (h *JobHandler) DeclareTimeout(c *gin.Context) {
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	// body is optional
	_ = c.ShouldBindJSON(&req)
	job, err := h.jobs.DeclareTimeout(dbctx.Context{Ctx: c.Request.Context()}, jobID, req.Reason)
	if err != nil {
		respondServiceError(c, err, "timeout_job_failed")
		return
	}
	response.RespondOK(c, gin.H{"job": job.StatusView()})
}

func parseJobID(c *gin.Context) (uuid.UUID, bool) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return uuid.Nil, false
	}
	return jobID, true
}

func respondServiceError(c *gin.Context, err error, fallbackCode string) {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		code := ae.Code
		if code == "" {
			code = fallbackCode
		}
		response.RespondError(c, ae.Status, code, ae)
		return
	}
	response.RespondError(c, http.StatusInternalServerError, fallbackCode, err)
}
