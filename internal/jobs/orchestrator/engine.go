package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	jobrt "github.com/yungbote/narrativeforge-backend/internal/jobs/runtime"
	"github.com/yungbote/narrativeforge-backend/internal/observability"
)

// Outcome tells the engine how a stage ended when it returned no error.
type Outcome int

const (
	Done Outcome = iota
	Skipped
	// Park stops the run and waits for outside input (a narrative selection).
	Park
)

type Stage[D any] struct {
	Name     string
	StartPct int
	EndPct   int
	StartMsg string
	DoneMsg  string
	ParkMsg  string
	// IsDone lets a resumed run recognise work that is already in the checkpoint.
	IsDone func(d *D) bool
	Run    func(ctx *jobrt.Context, d *D) (Outcome, error)
}

var (
	// ErrDeadline is the cancellation cause when the run outlives Engine.Deadline.
	ErrDeadline = errors.New("job deadline exceeded")
	errStopped  = errors.New("job stopped externally")
)

type Engine[D any] struct {
	// Deadline bounds a single run. Zero disables it.
	Deadline time.Duration
	// WatchInterval is how often the run heartbeats and checks for abandonment.
	WatchInterval time.Duration
	StateVersion  int
	// Result builds the value stored on completion.
	Result func(d *D) any
}

func NewEngine[D any](deadline time.Duration, result func(d *D) any) *Engine[D] {
	return &Engine[D]{
		Deadline:      deadline,
		WatchInterval: time.Second,
		StateVersion:  1,
		Result:        result,
	}
}

// Run executes stages in order for one claimed job. Stage errors end the job as
// failed with the error text verbatim; the returned error is reserved for misuse.
func (e *Engine[D]) Run(jc *jobrt.Context, stages []Stage[D]) error {
	if jc == nil || jc.Job == nil {
		return fmt.Errorf("nil job context")
	}
	if err := validateStages(stages); err != nil {
		jc.Fail(jc.Job.Stage, err)
		return nil
	}
	st, err := LoadState[D](jc.Job.State, e.StateVersion)
	if err != nil {
		jc.Fail(jc.Job.Stage, err)
		return nil
	}

	runCtx, cancel := e.runContext(jc.Ctx)
	defer cancel(nil)
	stopWatch := e.watch(runCtx, jc, cancel)
	defer stopWatch()

	rc := *jc
	rc.Ctx = runCtx

	for i := range stages {
		def := stages[i]
		ss := st.EnsureStage(def.Name)
		if ss.Settled() {
			continue
		}
		if def.IsDone != nil && def.IsDone(&st.Data) {
			markFinished(ss, StageSucceeded, "")
			continue
		}
		if e.interrupted(&rc, def.Name) {
			return nil
		}

		markStarted(ss)
		if !rc.Checkpoint(def.Name, e.progress(st, def.StartPct), msgOr(def.StartMsg, "starting "+def.Name), st) {
			rc.Log.Info("Checkpoint rejected; stopping run", "stage", def.Name)
			return nil
		}

		outcome, runErr := e.runStage(&rc, runCtx, def, &st.Data)
		if runErr != nil {
			if stopped := context.Cause(runCtx); runCtx.Err() != nil {
				if errors.Is(stopped, errStopped) {
					rc.Log.Info("Run canceled by external stop", "stage", def.Name)
					return nil
				}
				if errors.Is(stopped, ErrDeadline) {
					runErr = e.timeoutError()
				}
			}
			markFinished(ss, StageFailed, runErr.Error())
			if rc.Fail(def.Name, runErr) {
				observability.Current().IncJobTerminal("failed")
			}
			return nil
		}

		switch outcome {
		case Park:
			markFinished(ss, StageAwaiting, "")
			rc.Park(def.Name, e.progress(st, def.EndPct), msgOr(def.ParkMsg, "awaiting input"), st)
			return nil
		case Skipped:
			markFinished(ss, StageSkipped, "")
		default:
			markFinished(ss, StageSucceeded, "")
		}
		if !rc.Checkpoint(def.Name, e.progress(st, def.EndPct), msgOr(def.DoneMsg, def.Name+" done"), st) {
			rc.Log.Info("Checkpoint rejected; stopping run", "stage", def.Name)
			return nil
		}
	}

	if e.interrupted(&rc, "") {
		return nil
	}
	var result any
	if e.Result != nil {
		result = e.Result(&st.Data)
	}
	if rc.Succeed(result, st) {
		observability.Current().IncJobTerminal("completed")
	}
	return nil
}

func (e *Engine[D]) runContext(parent context.Context) (context.Context, context.CancelCauseFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancelCause(parent)
	if e.Deadline <= 0 {
		return ctx, cancel
	}
	tctx, tcancel := context.WithTimeoutCause(ctx, e.Deadline, ErrDeadline)
	return tctx, func(cause error) {
		tcancel()
		cancel(cause)
	}
}

// watch heartbeats the claim and cancels the run once the row turns terminal
// behind its back (abandon or an observer timeout) or its claim is retired by a
// restart or a reclaim.
func (e *Engine[D]) watch(ctx context.Context, jc *jobrt.Context, cancel context.CancelCauseFunc) func() {
	interval := e.WatchInterval
	if interval <= 0 {
		interval = time.Second
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				jc.Heartbeat()
				if stopped, err := jc.Stopped(); err == nil && stopped {
					cancel(errStopped)
					return
				}
			}
		}
	}()
	return func() { close(done) }
}

// interrupted is the stage-boundary check. A deadline overrun fails the job here
// when no stage error surfaced it first.
func (e *Engine[D]) interrupted(rc *jobrt.Context, stage string) bool {
	if rc.Ctx.Err() != nil {
		if errors.Is(context.Cause(rc.Ctx), ErrDeadline) {
			if rc.Fail(stage, e.timeoutError()) {
				observability.Current().IncJobTerminal("failed")
			}
		}
		return true
	}
	stopped, err := rc.Stopped()
	if err != nil {
		rc.Log.Warn("Status check failed", "stage", stage, "error", err)
		return false
	}
	if stopped {
		rc.Log.Info("Job no longer runnable; stopping", "stage", stage)
	}
	return stopped
}

func (e *Engine[D]) timeoutError() error {
	return fmt.Errorf("job timed out after %s", e.Deadline)
}

func (e *Engine[D]) runStage(rc *jobrt.Context, runCtx context.Context, def Stage[D], d *D) (outcome Outcome, err error) {
	spanCtx, span := otel.Tracer("narrativeforge/jobs").Start(runCtx, "stage."+def.Name)
	span.SetAttributes(attribute.String("job.id", rc.Job.ID.String()), attribute.String("job.stage", def.Name))
	rc.Ctx = spanCtx
	start := time.Now()
	defer func() {
		rc.Ctx = runCtx
		status := "ok"
		switch {
		case err != nil:
			status = "error"
			span.SetStatus(codes.Error, err.Error())
		case outcome == Skipped:
			status = "skipped"
		case outcome == Park:
			status = "parked"
		}
		span.End()
		observability.Current().ObserveStage(def.Name, status, time.Since(start))
	}()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panicked: %v", def.Name, r)
		}
	}()
	return def.Run(rc, d)
}

// progress keeps the reported percent monotonic across stages.
func (e *Engine[D]) progress(st *State[D], pct int) int {
	if pct < st.LastProgress {
		return st.LastProgress
	}
	st.LastProgress = pct
	return pct
}

func validateStages[D any](stages []Stage[D]) error {
	if len(stages) == 0 {
		return fmt.Errorf("no stages defined")
	}
	seen := map[string]bool{}
	for _, s := range stages {
		if s.Name == "" {
			return fmt.Errorf("stage with empty name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate stage %q", s.Name)
		}
		if s.Run == nil {
			return fmt.Errorf("stage %q: Run is nil", s.Name)
		}
		if s.StartPct > s.EndPct {
			return fmt.Errorf("stage %q: start percent after end percent", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

func msgOr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
