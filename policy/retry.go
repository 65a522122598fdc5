package policy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// BackoffStrategy selects how the delay between attempts grows.
type BackoffStrategy int

const (
	// BackoffFixed reuses the base delay for every attempt.
	BackoffFixed BackoffStrategy = iota
	// BackoffLinear scales the base delay by the attempt number: base*n.
	BackoffLinear
	// BackoffExponential doubles the base delay each attempt: base*2^(n-1).
	BackoffExponential
)

// Metric keys for Retry connector observability.
const (
	RetryAttemptsTotal  = metricz.Key("retry.attempts.total")
	RetrySuccessesTotal = metricz.Key("retry.successes.total")
	RetryFailuresTotal  = metricz.Key("retry.failures.total")
	RetryAttemptCurrent = metricz.Key("retry.attempt.current")
	RetryDelayTotalMs   = metricz.Key("retry.delay.total.ms")
)

// Span names and tags for Retry connector.
const (
	RetryProcessSpan = tracez.Key("retry.process")
	RetryAttemptSpan = tracez.Key("retry.attempt")

	RetryTagConnector    = tracez.Tag("retry.connector")
	RetryTagMaxAttempts  = tracez.Tag("retry.max_attempts")
	RetryTagAttempt      = tracez.Tag("retry.attempt")
	RetryTagAttemptsUsed = tracez.Tag("retry.attempts_used")
	RetryTagSuccess      = tracez.Tag("retry.success")
	RetryTagExhausted    = tracez.Tag("retry.exhausted")
	RetryTagError        = tracez.Tag("retry.error")
	RetryTagCanceled     = tracez.Tag("retry.canceled")
	RetryTagDelay        = tracez.Tag("retry.delay")

	RetryEventAttempt   = hookz.Key("retry.attempt")
	RetryEventSuccess   = hookz.Key("retry.success")
	RetryEventExhausted = hookz.Key("retry.exhausted")
)

// RetryEvent is emitted via hookz for each attempt and for the final outcome.
type RetryEvent struct {
	Timestamp     time.Time
	Error         error
	Name          Name
	ProcessorName Name
	AttemptNumber int
	MaxAttempts   int
	Duration      time.Duration
	TotalDuration time.Duration
	Delay         time.Duration
	AttemptsUsed  int
	Success       bool
}

// RetryExhaustedError is returned once every attempt of a Retry connector
// has failed, carrying the attempt count and each attempt's error.
type RetryExhaustedError struct {
	Attempts int
	Errors   []error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Errors[len(e.Errors)-1])
}

func (e *RetryExhaustedError) Unwrap() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}

// Is makes errors.Is(err, ErrRetryExhausted) hold for a RetryExhaustedError.
func (e *RetryExhaustedError) Is(target error) bool { return target == ErrRetryExhausted }

// Retry retries processor up to maxAttempts times, waiting between attempts
// according to strategy. maxAttempts is `maxRetries + 1` in the vocabulary
// of executeWithRetry: a maxRetries of 2 means up to 3 total attempts.
type Retry[T any] struct {
	processor   Chainable[T]
	clock       clockz.Clock
	name        Name
	baseDelay   time.Duration
	maxDelay    time.Duration
	strategy    BackoffStrategy
	mu          sync.RWMutex
	maxAttempts int

	metrics *metricz.Registry
	tracer  *tracez.Tracer
	hooks   *hookz.Hooks[RetryEvent]
}

// NewRetry constructs a Retry connector. A baseDelay of 0 retries
// immediately with no wait between attempts, regardless of strategy.
func NewRetry[T any](name Name, processor Chainable[T], maxAttempts int, strategy BackoffStrategy, baseDelay, maxDelay time.Duration) *Retry[T] {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	registry := metricz.New()
	registry.Counter(RetryAttemptsTotal)
	registry.Counter(RetrySuccessesTotal)
	registry.Counter(RetryFailuresTotal)
	registry.Counter(RetryDelayTotalMs)
	registry.Gauge(RetryAttemptCurrent)

	return &Retry[T]{
		name:        name,
		processor:   processor,
		maxAttempts: maxAttempts,
		strategy:    strategy,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		clock:       clockz.RealClock,
		metrics:     registry,
		tracer:      tracez.New(),
		hooks:       hookz.New[RetryEvent](),
	}
}

// delayForAttempt computes the wait before retry n (1-based), that is
// after the n-th failed attempt: base*n for Linear, base*2^(n-1) for
// Exponential, capped at maxDelay.
func (r *Retry[T]) delayForAttempt(n int) time.Duration {
	if r.baseDelay <= 0 {
		return 0
	}
	var d time.Duration
	switch r.strategy {
	case BackoffLinear:
		d = r.baseDelay * time.Duration(n)
	case BackoffExponential:
		d = r.baseDelay * time.Duration(1<<uint(n-1))
	default:
		d = r.baseDelay
	}
	if r.maxDelay > 0 && d > r.maxDelay {
		d = r.maxDelay
	}
	return d
}

// Process implements Chainable.
func (r *Retry[T]) Process(ctx context.Context, data T) (T, error) {
	r.mu.RLock()
	processor := r.processor
	maxAttempts := r.maxAttempts
	r.mu.RUnlock()

	ctx, span := r.tracer.StartSpan(ctx, RetryProcessSpan)
	defer span.Finish()
	span.SetTag(RetryTagMaxAttempts, fmt.Sprintf("%d", maxAttempts))
	span.SetTag(RetryTagConnector, r.name)

	var errs []error
	var lastResult T
	totalStart := r.clock.Now()

	for i := 0; i < maxAttempts; i++ {
		attemptNum := i + 1
		if attemptNum > 1 {
			delay := r.delayForAttempt(attemptNum - 1)
			if delay > 0 {
				r.metrics.Counter(RetryDelayTotalMs).Add(float64(delay.Milliseconds()))
				select {
				case <-r.clock.After(delay):
				case <-ctx.Done():
					return data, wrapPath(r.name, data, ctx.Err(), r.clock.Now())
				}
			}
		}

		r.metrics.Gauge(RetryAttemptCurrent).Set(float64(attemptNum))
		attemptCtx, attemptSpan := r.tracer.StartSpan(ctx, RetryAttemptSpan)
		attemptSpan.SetTag(RetryTagAttempt, fmt.Sprintf("%d", attemptNum))
		r.metrics.Counter(RetryAttemptsTotal).Inc()

		attemptStart := r.clock.Now()
		result, err := processor.Process(attemptCtx, data)
		attemptDuration := r.clock.Now().Sub(attemptStart)

		if r.hooks.ListenerCount(RetryEventAttempt) > 0 {
			_ = r.hooks.Emit(ctx, RetryEventAttempt, RetryEvent{ //nolint:errcheck
				Name:          r.name,
				ProcessorName: processor.Name(),
				AttemptNumber: attemptNum,
				MaxAttempts:   maxAttempts,
				Success:       err == nil,
				Error:         err,
				Duration:      attemptDuration,
				Timestamp:     r.clock.Now(),
			})
		}

		if err == nil {
			attemptSpan.SetTag(RetryTagSuccess, "true")
			attemptSpan.Finish()
			span.SetTag(RetryTagSuccess, "true")
			span.SetTag(RetryTagAttemptsUsed, fmt.Sprintf("%d", attemptNum))
			r.metrics.Counter(RetrySuccessesTotal).Inc()
			r.metrics.Gauge(RetryAttemptCurrent).Set(0)

			totalDuration := r.clock.Now().Sub(totalStart)
			if r.hooks.ListenerCount(RetryEventSuccess) > 0 {
				_ = r.hooks.Emit(ctx, RetryEventSuccess, RetryEvent{ //nolint:errcheck
					Name: r.name, ProcessorName: processor.Name(), AttemptNumber: attemptNum,
					MaxAttempts: maxAttempts, Success: true, TotalDuration: totalDuration,
					AttemptsUsed: attemptNum, Timestamp: r.clock.Now(),
				})
			}
			return result, nil
		}

		attemptSpan.SetTag(RetryTagSuccess, "false")
		attemptSpan.SetTag(RetryTagError, err.Error())
		attemptSpan.Finish()
		errs = append(errs, err)
		lastResult = result

		if ctx.Err() != nil {
			span.SetTag(RetryTagSuccess, "false")
			span.SetTag(RetryTagCanceled, "true")
			r.metrics.Gauge(RetryAttemptCurrent).Set(0)
			return data, wrapPath(r.name, data, ctx.Err(), r.clock.Now())
		}
	}

	span.SetTag(RetryTagSuccess, "false")
	span.SetTag(RetryTagExhausted, "true")
	span.SetTag(RetryTagAttemptsUsed, fmt.Sprintf("%d", maxAttempts))
	r.metrics.Counter(RetryFailuresTotal).Inc()
	r.metrics.Gauge(RetryAttemptCurrent).Set(0)

	totalDuration := r.clock.Now().Sub(totalStart)
	if r.hooks.ListenerCount(RetryEventExhausted) > 0 {
		_ = r.hooks.Emit(ctx, RetryEventExhausted, RetryEvent{ //nolint:errcheck
			Name: r.name, ProcessorName: processor.Name(), MaxAttempts: maxAttempts,
			Success: false, Error: errs[len(errs)-1], TotalDuration: totalDuration,
			AttemptsUsed: maxAttempts, Timestamp: r.clock.Now(),
		})
	}

	exhausted := &RetryExhaustedError{Attempts: maxAttempts, Errors: errs}
	return lastResult, wrapPath(r.name, data, exhausted, r.clock.Now())
}

// SetMaxAttempts updates the maximum number of retry attempts.
func (r *Retry[T]) SetMaxAttempts(n int) *Retry[T] {
	if n < 1 {
		n = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxAttempts = n
	return r
}

// WithClock installs a fake clock for deterministic backoff tests.
func (r *Retry[T]) WithClock(clock clockz.Clock) *Retry[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = clock
	return r
}

// Name implements Chainable.
func (r *Retry[T]) Name() Name {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.name
}

// Metrics returns the metrics registry for this connector.
func (r *Retry[T]) Metrics() *metricz.Registry { return r.metrics }

// Tracer returns the tracer for this connector.
func (r *Retry[T]) Tracer() *tracez.Tracer { return r.tracer }

// Close shuts down observability components.
func (r *Retry[T]) Close() error {
	if r.tracer != nil {
		r.tracer.Close()
	}
	r.hooks.Close()
	return nil
}

// OnAttempt registers a handler invoked after each attempt.
func (r *Retry[T]) OnAttempt(handler func(context.Context, RetryEvent) error) error {
	_, err := r.hooks.Hook(RetryEventAttempt, handler)
	return err
}

// OnSuccess registers a handler invoked when an attempt succeeds.
func (r *Retry[T]) OnSuccess(handler func(context.Context, RetryEvent) error) error {
	_, err := r.hooks.Hook(RetryEventSuccess, handler)
	return err
}

// OnExhausted registers a handler invoked once every attempt fails.
func (r *Retry[T]) OnExhausted(handler func(context.Context, RetryEvent) error) error {
	_, err := r.hooks.Hook(RetryEventExhausted, handler)
	return err
}
