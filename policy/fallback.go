package policy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Metric/span/hook keys for the Fallback connector.
const (
	FallbackProcessedTotal = metricz.Key("fallback.processed.total")
	FallbackSuccessesTotal = metricz.Key("fallback.successes.total")
	FallbackAllFailedTotal = metricz.Key("fallback.all_failed.total")
	FallbackDurationMs     = metricz.Key("fallback.duration.ms")

	FallbackProcessSpan      = tracez.Key("fallback.process")
	FallbackTagSuccess       = tracez.Tag("fallback.success")
	FallbackTagPrimaryFailed = tracez.Tag("fallback.primary_failed")

	FallbackEventActivated = hookz.Key("fallback.activated")
	FallbackEventExhausted = hookz.Key("fallback.exhausted")
)

// FallbackEvent is emitted when the fallback path is taken.
type FallbackEvent struct {
	Timestamp     time.Time
	PrimaryError  error
	FallbackError error
	Name          Name
	Recovered     bool
}

// Fallback runs op, and on any failure runs fallback exactly once — the
// fallback itself is never retried.
type Fallback[T any] struct {
	op       Chainable[T]
	fallback Chainable[T]
	name     Name
	mu       sync.RWMutex
	metrics  *metricz.Registry
	tracer   *tracez.Tracer
	hooks    *hookz.Hooks[FallbackEvent]
}

// NewFallback constructs a Fallback connector around a primary op and a
// single fallback processor.
func NewFallback[T any](name Name, op, fallback Chainable[T]) *Fallback[T] {
	metrics := metricz.New()
	metrics.Counter(FallbackProcessedTotal)
	metrics.Counter(FallbackSuccessesTotal)
	metrics.Counter(FallbackAllFailedTotal)
	metrics.Gauge(FallbackDurationMs)

	return &Fallback[T]{
		name:     name,
		op:       op,
		fallback: fallback,
		metrics:  metrics,
		tracer:   tracez.New(),
		hooks:    hookz.New[FallbackEvent](),
	}
}

// Process implements Chainable.
func (f *Fallback[T]) Process(ctx context.Context, data T) (T, error) {
	f.mu.RLock()
	op, fallback := f.op, f.fallback
	f.mu.RUnlock()

	f.metrics.Counter(FallbackProcessedTotal).Inc()
	start := time.Now()
	ctx, span := f.tracer.StartSpan(ctx, FallbackProcessSpan)
	defer func() {
		f.metrics.Gauge(FallbackDurationMs).Set(float64(time.Since(start).Milliseconds()))
		span.Finish()
	}()

	result, err := op.Process(ctx, data)
	if err == nil {
		span.SetTag(FallbackTagSuccess, "true")
		f.metrics.Counter(FallbackSuccessesTotal).Inc()
		return result, nil
	}

	span.SetTag(FallbackTagPrimaryFailed, "true")
	primaryErr := err

	fbResult, fbErr := fallback.Process(ctx, data)
	if fbErr == nil {
		span.SetTag(FallbackTagSuccess, "true")
		f.metrics.Counter(FallbackSuccessesTotal).Inc()
		if f.hooks.ListenerCount(FallbackEventActivated) > 0 {
			_ = f.hooks.Emit(ctx, FallbackEventActivated, FallbackEvent{ //nolint:errcheck
				Name: f.name, PrimaryError: primaryErr, Recovered: true, Timestamp: time.Now(),
			})
		}
		return fbResult, nil
	}

	span.SetTag(FallbackTagSuccess, "false")
	f.metrics.Counter(FallbackAllFailedTotal).Inc()
	if f.hooks.ListenerCount(FallbackEventExhausted) > 0 {
		_ = f.hooks.Emit(ctx, FallbackEventExhausted, FallbackEvent{ //nolint:errcheck
			Name: f.name, PrimaryError: primaryErr, FallbackError: fbErr, Recovered: false, Timestamp: time.Now(),
		})
	}
	return fbResult, wrapPath(f.name, data, fmt.Errorf("primary failed (%w) and fallback failed: %w", primaryErr, fbErr), time.Now())
}

// Name implements Chainable.
func (f *Fallback[T]) Name() Name {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.name
}

// OnActivated registers a handler invoked when the fallback recovers a failure.
func (f *Fallback[T]) OnActivated(handler func(context.Context, FallbackEvent) error) error {
	_, err := f.hooks.Hook(FallbackEventActivated, handler)
	return err
}

// OnExhausted registers a handler invoked when both op and fallback fail.
func (f *Fallback[T]) OnExhausted(handler func(context.Context, FallbackEvent) error) error {
	_, err := f.hooks.Hook(FallbackEventExhausted, handler)
	return err
}

// Close shuts down observability components.
func (f *Fallback[T]) Close() error {
	if f.tracer != nil {
		f.tracer.Close()
	}
	f.hooks.Close()
	return nil
}
