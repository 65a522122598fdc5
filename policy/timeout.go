package policy

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Metric/span/hook keys for the Timeout connector.
const (
	TimeoutProcessedTotal = metricz.Key("timeout.processed.total")
	TimeoutSuccessesTotal = metricz.Key("timeout.successes.total")
	TimeoutTimeoutsTotal  = metricz.Key("timeout.timeouts.total")
	TimeoutDurationMs     = metricz.Key("timeout.duration.ms")

	TimeoutProcessSpan = tracez.Key("timeout.process")
	TimeoutTagDuration = tracez.Tag("timeout.duration")
	TimeoutTagSuccess  = tracez.Tag("timeout.success")
	TimeoutTagTimedOut = tracez.Tag("timeout.timed_out")

	TimeoutEventTimeout = hookz.Key("timeout.timeout")
)

// TimeoutEvent is emitted whenever an operation is canceled for exceeding
// its configured deadline.
type TimeoutEvent struct {
	Timestamp time.Time
	Name      Name
	Duration  time.Duration
	Elapsed   time.Duration
}

// Timeout enforces a hard deadline on the wrapped processor.
// The wrapped operation is canceled via context when duration elapses; a
// processor that ignores ctx may keep running in the background after
// Process returns.
type Timeout[T any] struct {
	processor Chainable[T]
	clock     clockz.Clock
	name      Name
	duration  time.Duration
	mu        sync.RWMutex
	metrics   *metricz.Registry
	tracer    *tracez.Tracer
	hooks     *hookz.Hooks[TimeoutEvent]
}

// NewTimeout constructs a Timeout connector.
func NewTimeout[T any](name Name, processor Chainable[T], duration time.Duration) *Timeout[T] {
	metrics := metricz.New()
	metrics.Counter(TimeoutProcessedTotal)
	metrics.Counter(TimeoutSuccessesTotal)
	metrics.Counter(TimeoutTimeoutsTotal)
	metrics.Gauge(TimeoutDurationMs)

	return &Timeout[T]{
		name:      name,
		processor: processor,
		duration:  duration,
		clock:     clockz.RealClock,
		metrics:   metrics,
		tracer:    tracez.New(),
		hooks:     hookz.New[TimeoutEvent](),
	}
}

type timeoutResult[T any] struct {
	result T
	err    error
}

// Process implements Chainable.
func (t *Timeout[T]) Process(ctx context.Context, data T) (T, error) {
	t.mu.RLock()
	processor, duration, clock := t.processor, t.duration, t.clock
	t.mu.RUnlock()

	t.metrics.Counter(TimeoutProcessedTotal).Inc()
	start := clock.Now()

	ctx, span := t.tracer.StartSpan(ctx, TimeoutProcessSpan)
	span.SetTag(TimeoutTagDuration, duration.String())
	defer span.Finish()

	ctx, cancel := clock.WithTimeout(ctx, duration)
	defer cancel()

	resultCh := make(chan timeoutResult[T], 1)
	go func() {
		result, err := processor.Process(ctx, data)
		select {
		case resultCh <- timeoutResult[T]{result: result, err: err}:
		case <-ctx.Done():
		}
	}()

	select {
	case res := <-resultCh:
		elapsed := clock.Now().Sub(start)
		t.metrics.Gauge(TimeoutDurationMs).Set(float64(elapsed.Milliseconds()))
		if res.err != nil {
			span.SetTag(TimeoutTagSuccess, "false")
			return res.result, wrapPath(t.name, data, res.err, clock.Now())
		}
		span.SetTag(TimeoutTagSuccess, "true")
		t.metrics.Counter(TimeoutSuccessesTotal).Inc()
		return res.result, nil
	case <-ctx.Done():
		elapsed := clock.Now().Sub(start)
		span.SetTag(TimeoutTagSuccess, "false")
		span.SetTag(TimeoutTagTimedOut, "true")
		t.metrics.Counter(TimeoutTimeoutsTotal).Inc()
		t.metrics.Gauge(TimeoutDurationMs).Set(float64(elapsed.Milliseconds()))

		if t.hooks.ListenerCount(TimeoutEventTimeout) > 0 {
			_ = t.hooks.Emit(ctx, TimeoutEventTimeout, TimeoutEvent{ //nolint:errcheck
				Name: t.name, Duration: duration, Elapsed: elapsed, Timestamp: clock.Now(),
			})
		}
		var zero T
		return zero, wrapPath(t.name, data, ctx.Err(), clock.Now())
	}
}

// SetDuration updates the configured timeout.
func (t *Timeout[T]) SetDuration(d time.Duration) *Timeout[T] {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.duration = d
	return t
}

// WithClock installs a fake clock for deterministic tests.
func (t *Timeout[T]) WithClock(clock clockz.Clock) *Timeout[T] {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clock = clock
	return t
}

// Name implements Chainable.
func (t *Timeout[T]) Name() Name {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.name
}

// OnTimeout registers a handler invoked when the deadline is exceeded.
func (t *Timeout[T]) OnTimeout(handler func(context.Context, TimeoutEvent) error) error {
	_, err := t.hooks.Hook(TimeoutEventTimeout, handler)
	return err
}

// Close shuts down observability components.
func (t *Timeout[T]) Close() error {
	if t.tracer != nil {
		t.tracer.Close()
	}
	t.hooks.Close()
	return nil
}
