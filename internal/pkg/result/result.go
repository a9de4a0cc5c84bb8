// Package result holds the envelope returned at every external-call boundary.
// An envelope separates "the operation failed" (Success=false) from
// "the operation succeeded with nothing to report" (Success=true, Data=nil).
package result

import "errors"

type Envelope[T any] struct {
	Success bool   `json:"success"`
	Data    *T     `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func OK[T any](v T) Envelope[T] {
	return Envelope[T]{Success: true, Data: &v}
}

// Empty is a successful envelope with no data: an optional input that is unavailable.
func Empty[T any]() Envelope[T] {
	return Envelope[T]{Success: true}
}

func Fail[T any](err error) Envelope[T] {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Envelope[T]{Success: false, Error: msg}
}

func Failf[T any](msg string) Envelope[T] {
	return Envelope[T]{Success: false, Error: msg}
}

func (e Envelope[T]) HasData() bool {
	return e.Success && e.Data != nil
}

// Err returns nil for successful envelopes and the recorded message otherwise.
func (e Envelope[T]) Err() error {
	if e.Success {
		return nil
	}
	if e.Error == "" {
		return errors.New("unknown error")
	}
	return errors.New(e.Error)
}
