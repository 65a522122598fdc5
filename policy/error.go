package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error wraps a policy failure with the path of connectors it propagated
// through, the input that triggered it, and timing information. Every
// policy primitive in this package returns one of these (as an `error`)
// rather than a bare error, so the executor can attribute a module failure
// to the exact wrapper (timeout vs retry vs circuit breaker) that raised it.
type Error[T any] struct {
	Timestamp time.Time
	InputData T
	Err       error
	Path      []Name
	Duration  time.Duration
	Timeout   bool
	Canceled  bool
}

// Error implements the error interface.
func (e *Error[T]) Error() string {
	if e == nil {
		return "<nil>"
	}
	path := strings.Join(e.Path, " -> ")
	if path == "" {
		path = "unknown"
	}
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s timed out after %v: %v", path, e.Duration, e.Err)
	case e.Canceled:
		return fmt.Sprintf("%s canceled after %v: %v", path, e.Duration, e.Err)
	default:
		return fmt.Sprintf("%s failed after %v: %v", path, e.Duration, e.Err)
	}
}

// Unwrap supports errors.Is/errors.As against the underlying cause.
func (e *Error[T]) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsTimeout reports whether the failure was a timeout, including a bare
// context.DeadlineExceeded bubbling up from an uninstrumented caller.
func (e *Error[T]) IsTimeout() bool {
	return e != nil && (e.Timeout || errors.Is(e.Err, context.DeadlineExceeded))
}

// IsCanceled reports whether the failure was due to cancellation.
func (e *Error[T]) IsCanceled() bool {
	return e != nil && (e.Canceled || errors.Is(e.Err, context.Canceled))
}

// wrapPath prepends name to an existing *Error[T]'s path, or builds a fresh
// Error[T] around a plain error. Every connector in this package uses this
// to build its contribution to the path without duplicating the plumbing.
func wrapPath[T any](name Name, data T, err error, at time.Time) *Error[T] {
	var existing *Error[T]
	if errors.As(err, &existing) {
		existing.Path = append([]Name{name}, existing.Path...)
		return existing
	}
	return &Error[T]{
		Err:       err,
		InputData: data,
		Path:      []Name{name},
		Timestamp: at,
		Timeout:   errors.Is(err, context.DeadlineExceeded),
		Canceled:  errors.Is(err, context.Canceled),
	}
}

// Sentinel errors surfaced by specific connectors, matching the taxonomy
// in the runtime error contract (see exec.ModuleError).
var (
	// ErrCircuitOpen is returned by CircuitBreaker when it is rejecting
	// calls without invoking the wrapped processor.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrRateLimited is returned by RateLimiter in drop mode.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrRetryExhausted matches, under errors.Is, the *RetryExhaustedError
	// Retry returns once every attempt fails.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)
