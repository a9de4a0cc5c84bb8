package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	repos "github.com/yungbote/narrativeforge-backend/internal/data/repos/jobs"
	"github.com/yungbote/narrativeforge-backend/internal/domain/jobs"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/logger"
	"github.com/yungbote/narrativeforge-backend/internal/services"
)

/*
Context is the execution handle for one claimed content job.
Pipelines never touch the content_jobs row directly; every write goes through
Checkpoint/Park/Fail/Succeed, each a single guarded UPDATE that is rejected once
the job is terminal (abandoned, timed out by an observer, or already finished) or
once the row carries a claim other than the one this run was started with
(restarted, or reclaimed after a stale heartbeat).
*/
type Context struct {
	Ctx    context.Context
	Job    *jobs.ContentJob
	Repo   repos.ContentJobRepo
	Notify services.JobNotifier
	Log    *logger.Logger

	claim    uuid.UUID
	input    jobs.JobInput
	inputErr error
}

// Handler runs one claimed job to a terminal state or a park.
type Handler interface {
	Run(ctx *Context) error
}

// persistTimeout bounds writes made after the run context was canceled.
const persistTimeout = 10 * time.Second

func NewContext(ctx context.Context, job *jobs.ContentJob, repo repos.ContentJobRepo, notify services.JobNotifier, log *logger.Logger) *Context {
	if log == nil {
		log = logger.Nop()
	}
	c := &Context{
		Ctx:    ctx,
		Job:    job,
		Repo:   repo,
		Notify: notify,
	}
	if job != nil {
		c.Log = log.With("job_id", job.ID.String())
		if job.ClaimID != nil {
			c.claim = *job.ClaimID
		}
	} else {
		c.Log = log
	}
	c.inputErr = c.decodeInput()
	c.applyTraceData()
	return c
}

func (c *Context) decodeInput() error {
	if c.Job == nil || len(c.Job.Payload) == 0 {
		return fmt.Errorf("job payload is empty")
	}
	if err := json.Unmarshal(c.Job.Payload, &c.input); err != nil {
		return fmt.Errorf("decode job payload: %w", err)
	}
	return nil
}

func (c *Context) applyTraceData() {
	if c.Ctx == nil || (c.input.TraceID == "" && c.input.RequestID == "") {
		return
	}
	c.Ctx = ctxutil.WithTraceData(c.Ctx, &ctxutil.TraceData{
		TraceID:   c.input.TraceID,
		RequestID: c.input.RequestID,
	})
}

// Input returns the decoded submission payload.
func (c *Context) Input() (jobs.JobInput, error) {
	return c.input, c.inputErr
}

func (c *Context) jobID() uuid.UUID {
	if c == nil || c.Job == nil {
		return uuid.Nil
	}
	return c.Job.ID
}

// Claim is the token this run holds on the job; uuid.Nil when unclaimed.
func (c *Context) Claim() uuid.UUID { return c.claim }

// persist runs fn with a context that survives cancellation of the run itself, so a
// timed-out run can still record its failure.
func (c *Context) persist(fn func(dbc dbctx.Context) (bool, error)) bool {
	base := c.Ctx
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(base), persistTimeout)
	defer cancel()
	ok, err := fn(dbctx.Context{Ctx: ctx})
	if err != nil {
		c.Log.Warn("Job state write failed", "error", err)
		return false
	}
	return ok
}

func encodeState(state any) datatypes.JSON {
	if state == nil {
		return nil
	}
	b, err := json.Marshal(state)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

// Checkpoint persists stage, progress and the pipeline state together. It returns
// false when the write was rejected, which means the run must stop.
func (c *Context) Checkpoint(stage string, pct int, msg string, state any) bool {
	if c.Repo == nil || c.jobID() == uuid.Nil {
		return false
	}
	raw := encodeState(state)
	ok := c.persist(func(dbc dbctx.Context) (bool, error) {
		return c.Repo.SaveCheckpoint(dbc, c.Job.ID, c.claim, repos.Checkpoint{Stage: stage, Percent: pct, Message: msg, State: raw})
	})
	if !ok {
		return false
	}
	now := time.Now().UTC()
	c.Job.Stage = stage
	c.Job.Percent = pct
	c.Job.Message = msg
	c.Job.HeartbeatAt = &now
	if raw != nil {
		c.Job.State = raw
	}
	if c.Notify != nil {
		c.Notify.JobProgress(c.Job, stage, pct, msg)
	}
	return true
}

// Park releases the job until a narrative is selected.
func (c *Context) Park(stage string, pct int, msg string, state any) bool {
	if c.Repo == nil || c.jobID() == uuid.Nil {
		return false
	}
	raw := encodeState(state)
	ok := c.persist(func(dbc dbctx.Context) (bool, error) {
		return c.Repo.ParkForSelection(dbc, c.Job.ID, c.claim, repos.Checkpoint{Stage: stage, Percent: pct, Message: msg, State: raw})
	})
	if !ok {
		return false
	}
	c.Job.Status = jobs.StatusPending
	c.Job.Stage = stage
	c.Job.Percent = pct
	c.Job.Message = msg
	c.Job.AwaitingSelection = true
	c.Job.ClaimID = nil
	c.Job.LockedAt = nil
	if raw != nil {
		c.Job.State = raw
	}
	if c.Notify != nil {
		c.Notify.JobAwaitingSelection(c.Job)
	}
	return true
}

// Fail records err verbatim as the terminal error.
func (c *Context) Fail(stage string, err error) bool {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	if c.Repo == nil || c.jobID() == uuid.Nil {
		return false
	}
	ok := c.persist(func(dbc dbctx.Context) (bool, error) {
		return c.Repo.MarkFailed(dbc, c.Job.ID, c.claim, stage, msg)
	})
	if !ok {
		return false
	}
	now := time.Now().UTC()
	c.Job.Status = jobs.StatusFailed
	if stage != "" {
		c.Job.Stage = stage
	}
	c.Job.Message = ""
	c.Job.Error = msg
	c.Job.ClaimID = nil
	c.Job.LockedAt = nil
	c.Job.FinishedAt = &now
	c.Log.Warn("Content job failed", "stage", stage, "error", msg)
	if c.Notify != nil {
		c.Notify.JobFailed(c.Job, stage, msg)
	}
	return true
}

func (c *Context) Succeed(result any, state any) bool {
	if c.Repo == nil || c.jobID() == uuid.Nil {
		return false
	}
	res := encodeState(result)
	raw := encodeState(state)
	ok := c.persist(func(dbc dbctx.Context) (bool, error) {
		return c.Repo.MarkCompleted(dbc, c.Job.ID, c.claim, res, raw)
	})
	if !ok {
		return false
	}
	now := time.Now().UTC()
	c.Job.Status = jobs.StatusCompleted
	c.Job.Stage = jobs.StageCompleted
	c.Job.Percent = 100
	c.Job.Message = ""
	c.Job.Error = ""
	c.Job.Result = res
	c.Job.ClaimID = nil
	c.Job.LockedAt = nil
	c.Job.FinishedAt = &now
	if raw != nil {
		c.Job.State = raw
	}
	if c.Notify != nil {
		c.Notify.JobDone(c.Job)
	}
	return true
}

// Heartbeat keeps the claim fresh so the stale sweep leaves this run alone.
func (c *Context) Heartbeat() {
	if c.Repo == nil || c.jobID() == uuid.Nil {
		return
	}
	c.persist(func(dbc dbctx.Context) (bool, error) {
		return true, c.Repo.Heartbeat(dbc, c.Job.ID, c.claim)
	})
}

// Stopped reports whether the run lost the job: someone outside made it terminal,
// or it was restarted or reclaimed under a different claim.
func (c *Context) Stopped() (bool, error) {
	if c.Repo == nil || c.jobID() == uuid.Nil {
		return false, nil
	}
	var cur *jobs.ContentJob
	var loadErr error
	c.persist(func(dbc dbctx.Context) (bool, error) {
		cur, loadErr = c.Repo.GetByID(dbc, c.Job.ID)
		return true, nil
	})
	if loadErr != nil {
		return false, loadErr
	}
	if cur == nil {
		return true, nil
	}
	if cur.IsTerminal() {
		return true, nil
	}
	return c.claim != uuid.Nil && !cur.HeldBy(c.claim), nil
}
