// Package backoff is the single retry/backoff policy shared by the LLM call layer
// and by polling clients, so both sides agree on timing constants.
package backoff

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// Base is the delay after the first failed attempt.
	Base   time.Duration
	Factor float64
	// Max caps a single delay; zero means uncapped.
	Max time.Duration
	// JitterFrac spreads each delay by +/- the given fraction.
	JitterFrac float64
}

// Default is 3 attempts with delays of 1s then 2s (2^attempt seconds).
func Default() Policy {
	return Policy{MaxRetries: 2, Base: time.Second, Factor: 2}
}

func (p Policy) WithMaxRetries(n int) Policy {
	if n < 0 {
		n = 0
	}
	p.MaxRetries = n
	return p
}

func (p Policy) Attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Delay returns the wait after the failed attempt with 0-based index attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	factor := p.Factor
	if factor <= 0 {
		factor = 2
	}
	d := time.Duration(float64(p.Base) * math.Pow(factor, float64(attempt)))
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	if p.JitterFrac > 0 && d > 0 {
		delta := float64(d) * p.JitterFrac
		d = time.Duration(float64(d) - delta + rand.Float64()*2*delta)
	}
	return d
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Retry calls fn until it succeeds, returns a permanent error, the policy is
// exhausted, or ctx is done. It reports how many attempts were made.
// OnRetry, when set, is called before each wait.
func (p Policy) Retry(ctx context.Context, sleep Sleeper, onRetry func(attempt int, wait time.Duration, err error), fn func(attempt int) error) (int, error) {
	if sleep == nil {
		sleep = Sleep
	}
	attempts := p.Attempts()
	var last error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if last == nil {
				last = err
			}
			return attempt, last
		}
		err := fn(attempt)
		if err == nil {
			return attempt + 1, nil
		}
		last = err
		if IsPermanent(err) {
			return attempt + 1, err
		}
		if attempt == attempts-1 {
			break
		}
		wait := p.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt, wait, err)
		}
		if serr := sleep(ctx, wait); serr != nil {
			return attempt + 1, last
		}
	}
	return attempts, last
}

// Polling is the client-side contract for watching a job.
type Polling struct {
	Interval time.Duration
	Ceiling  time.Duration
	Retry    Policy
}

// DefaultPolling polls every 2s, retries a failed poll 3 times with the shared
// policy, and gives up after 5 minutes.
func DefaultPolling() Polling {
	return Polling{
		Interval: 2 * time.Second,
		Ceiling:  5 * time.Minute,
		Retry:    Default().WithMaxRetries(3),
	}
}
