package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/narrativeforge-backend/internal/pkg/httpx"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/logger"
)

type scriptedProvider struct {
	mu      sync.Mutex
	replies []reply
	calls   int
	models  []string
}

type reply struct {
	text string
	err  error
}

func (p *scriptedProvider) GenerateText(_ context.Context, model, _, _ string, _ float64) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.models = append(p.models, model)
	idx := p.calls
	p.calls++
	if idx >= len(p.replies) {
		idx = len(p.replies) - 1
	}
	r := p.replies[idx]
	return r.text, r.err
}

func recordingSleeper(waits *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return ctx.Err()
	}
}

func newTestCaller(p Provider, waits *[]time.Duration) *Caller {
	c := NewCaller(logger.Nop(), p, CallerConfig{DefaultModel: "test-model", MaxRetries: 2})
	return c.WithSleeper(recordingSleeper(waits))
}

func TestCallEmptyTextIsRetriedExactlyNPlusOneTimes(t *testing.T) {
	for n := 0; n <= 3; n++ {
		var waits []time.Duration
		p := &scriptedProvider{replies: []reply{{text: "  \n\t "}}}
		c := newTestCaller(p, &waits)

		_, err := c.Call(context.Background(), "", "sys", "user", n)
		if err == nil {
			t.Fatalf("n=%d: expected error", n)
		}
		if p.calls != n+1 {
			t.Fatalf("n=%d: want %d calls, got %d", n, n+1, p.calls)
		}
		var ce *CallError
		if !errors.As(err, &ce) {
			t.Fatalf("n=%d: expected CallError, got %T", n, err)
		}
		if ce.Attempts != n+1 || !errors.Is(err, ErrEmptyResponse) {
			t.Fatalf("n=%d: unexpected CallError %+v", n, ce)
		}
		for i, w := range waits {
			if want := time.Duration(1<<i) * time.Second; w != want {
				t.Fatalf("n=%d wait %d: want=%v got=%v", n, i, want, w)
			}
		}
	}
}

func TestCallRecoversAfterTransientFailure(t *testing.T) {
	var waits []time.Duration
	p := &scriptedProvider{replies: []reply{
		{err: errors.New("connection reset")},
		{text: ""},
		{text: "final answer"},
	}}
	c := newTestCaller(p, &waits)

	out, err := c.Call(context.Background(), "", "sys", "user", 2)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out != "final answer" || p.calls != 3 {
		t.Fatalf("unexpected: out=%q calls=%d", out, p.calls)
	}
	if len(waits) != 2 || waits[0] != time.Second || waits[1] != 2*time.Second {
		t.Fatalf("waits: %v", waits)
	}
	if p.models[0] != "test-model" {
		t.Fatalf("default model not applied: %v", p.models)
	}
}

func TestCallDoesNotRetryClientErrors(t *testing.T) {
	var waits []time.Duration
	p := &scriptedProvider{replies: []reply{{err: &httpx.StatusError{Service: "openai", StatusCode: 401, Body: "bad key"}}}}
	c := newTestCaller(p, &waits)

	_, err := c.Call(context.Background(), "m", "sys", "user", 2)
	var ce *CallError
	if !errors.As(err, &ce) || ce.Attempts != 1 {
		t.Fatalf("expected single attempt CallError, got %v", err)
	}
	var se *httpx.StatusError
	if !errors.As(err, &se) || se.StatusCode != 401 {
		t.Fatalf("cause not preserved: %v", err)
	}
}

func TestCallStopsWhenContextCanceled(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{text: ""}}}
	c := NewCaller(logger.Nop(), p, CallerConfig{DefaultModel: "m"})
	ctx, cancel := context.WithCancel(context.Background())
	c = c.WithSleeper(func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	})

	_, err := c.Call(ctx, "", "s", "u", 5)
	if err == nil || p.calls != 1 {
		t.Fatalf("expected abort after first attempt, calls=%d err=%v", p.calls, err)
	}
}
