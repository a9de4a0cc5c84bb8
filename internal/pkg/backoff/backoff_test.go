package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func noSleep(waits *[]time.Duration) Sleeper {
	return func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return ctx.Err()
	}
}

func TestDelayIsPowerOfTwoSeconds(t *testing.T) {
	p := Default()
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, w := range want {
		if got := p.Delay(i); got != w {
			t.Fatalf("Delay(%d): want=%v got=%v", i, w, got)
		}
	}
}

func TestDelayCapped(t *testing.T) {
	p := Policy{Base: time.Second, Factor: 2, Max: 3 * time.Second}
	if got := p.Delay(5); got != 3*time.Second {
		t.Fatalf("Delay capped: got=%v", got)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	for n := 0; n <= 4; n++ {
		var waits []time.Duration
		calls := 0
		attempts, err := Default().WithMaxRetries(n).Retry(context.Background(), noSleep(&waits), nil, func(int) error {
			calls++
			return errors.New("nope")
		})
		if err == nil {
			t.Fatalf("n=%d: expected error", n)
		}
		if calls != n+1 || attempts != n+1 {
			t.Fatalf("n=%d: want %d calls, got calls=%d attempts=%d", n, n+1, calls, attempts)
		}
		if len(waits) != n {
			t.Fatalf("n=%d: want %d waits, got %d", n, n, len(waits))
		}
	}
}

func TestRetryStopsOnSuccess(t *testing.T) {
	var waits []time.Duration
	attempts, err := Default().Retry(context.Background(), noSleep(&waits), nil, func(attempt int) error {
		if attempt < 1 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil || attempts != 2 {
		t.Fatalf("want success after 2 attempts, got attempts=%d err=%v", attempts, err)
	}
	if len(waits) != 1 || waits[0] != time.Second {
		t.Fatalf("waits: %v", waits)
	}
}

func TestRetryPermanent(t *testing.T) {
	var waits []time.Duration
	sentinel := errors.New("bad request")
	attempts, err := Default().Retry(context.Background(), noSleep(&waits), nil, func(int) error {
		return Permanent(sentinel)
	})
	if attempts != 1 || !errors.Is(err, sentinel) {
		t.Fatalf("permanent: attempts=%d err=%v", attempts, err)
	}
}

func TestRetryContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Default().Retry(ctx, Sleep, nil, func(int) error {
		calls++
		return nil
	})
	if calls != 0 || !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled: calls=%d err=%v", calls, err)
	}
}

func TestDefaultPolling(t *testing.T) {
	p := DefaultPolling()
	if p.Interval != 2*time.Second || p.Ceiling != 5*time.Minute || p.Retry.Attempts() != 4 {
		t.Fatalf("unexpected polling defaults: %+v", p)
	}
}
