package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/narrativeforge-backend/internal/observability"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/backoff"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/httpx"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/logger"
)

// Provider is the LLM boundary. Any provider exposing this shape is substitutable.
type Provider interface {
	GenerateText(ctx context.Context, model string, system string, user string, temperature float64) (string, error)
}

// ErrEmptyResponse marks a 2xx reply with no usable text (rate limiting and
// content filtering both look like this).
var ErrEmptyResponse = errors.New("empty response from model")

// CallError is returned once every attempt has failed.
type CallError struct {
	Model    string
	Attempts int
	Cause    error
}

func (e *CallError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("llm call to %s failed after %d attempt(s): %v", e.Model, e.Attempts, e.Cause)
}

func (e *CallError) Unwrap() error { return e.Cause }

type CallerConfig struct {
	DefaultModel string
	Temperature  float64
	MaxRetries   int
	Policy       backoff.Policy
}

// Caller wraps a Provider with retry, exponential backoff and empty-response detection.
type Caller struct {
	log      *logger.Logger
	provider Provider
	cfg      CallerConfig
	sleep    backoff.Sleeper
}

func NewCaller(log *logger.Logger, provider Provider, cfg CallerConfig) *Caller {
	if cfg.Policy.Base <= 0 {
		cfg.Policy = backoff.Default()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Caller{
		log:      log.With("service", "ResilientCaller"),
		provider: provider,
		cfg:      cfg,
		sleep:    backoff.Sleep,
	}
}

// WithSleeper replaces the wait between attempts. Tests use it to skip real delays.
func (c *Caller) WithSleeper(s backoff.Sleeper) *Caller {
	clone := *c
	clone.sleep = s
	return &clone
}

func (c *Caller) DefaultModel() string { return c.cfg.DefaultModel }

func (c *Caller) MaxRetries() int { return c.cfg.MaxRetries }

// Call performs up to maxRetries+1 attempts. Whitespace-only output counts as a
// failed attempt. An empty model falls back to the configured default.
func (c *Caller) Call(ctx context.Context, model, system, user string, maxRetries int) (string, error) {
	if c == nil || c.provider == nil {
		return "", errors.New("llm provider not configured")
	}
	if strings.TrimSpace(model) == "" {
		model = c.cfg.DefaultModel
	}
	ctx, span := otel.Tracer("narrativeforge/llm").Start(ctx, "llm.call")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", model), attribute.Int("llm.max_retries", maxRetries))

	policy := c.cfg.Policy.WithMaxRetries(maxRetries)
	var text string
	attempts, err := policy.Retry(ctx, c.sleep,
		func(attempt int, wait time.Duration, err error) {
			c.log.Warn("LLM call retrying",
				"model", model,
				"attempt", attempt+1,
				"max_attempts", policy.Attempts(),
				"sleep", wait.String(),
				"error", err.Error(),
			)
		},
		func(attempt int) error {
			start := time.Now()
			out, err := c.provider.GenerateText(ctx, model, system, user, c.cfg.Temperature)
			if err == nil && strings.TrimSpace(out) == "" {
				err = ErrEmptyResponse
			}
			observeLLM(model, err, time.Since(start))
			if err != nil {
				if !httpx.IsRetryableError(err) {
					return backoff.Permanent(err)
				}
				return err
			}
			text = out
			return nil
		},
	)
	span.SetAttributes(attribute.Int("llm.attempts", attempts))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", &CallError{Model: model, Attempts: attempts, Cause: unwrapPermanent(err)}
	}
	return text, nil
}

// Default runs Call with the default model and the configured retry budget.
func (c *Caller) Default(ctx context.Context, system, user string) (string, error) {
	return c.Call(ctx, "", system, user, c.cfg.MaxRetries)
}

func unwrapPermanent(err error) error {
	if backoff.IsPermanent(err) {
		if inner := errors.Unwrap(err); inner != nil {
			return inner
		}
	}
	return err
}

func observeLLM(model string, err error, dur time.Duration) {
	m := observability.Current()
	if m == nil {
		return
	}
	status := "ok"
	switch {
	case errors.Is(err, ErrEmptyResponse):
		status = "empty"
	case err != nil:
		status = "error"
	}
	m.ObserveLLMRequest(model, status, dur)
}
