package policy

import (
	"math"
	"sync"
	"time"

	"context"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// RateLimiter modes.
const (
	ModeWait = "wait"
	ModeDrop = "drop"
)

// RateLimiter is a token-bucket limiter: `count` tokens replenish every
// `per` duration, capped at `count`, with fractional refills so a limiter
// checked faster than its interval still makes steady progress. It is
// STATEFUL — construct once per module/key and reuse.
type RateLimiter[T any] struct {
	lastRefill time.Time
	clock      clockz.Clock
	name       Name
	mode       string
	count      float64
	per        time.Duration
	tokens     float64
	mu         sync.Mutex
}

// NewRateLimiter builds a limiter allowing `count` operations per `per`
// duration, starting with a full bucket.
func NewRateLimiter[T any](name Name, count float64, per time.Duration) *RateLimiter[T] {
	return &RateLimiter[T]{
		name:       name,
		count:      count,
		per:        per,
		tokens:     count,
		lastRefill: clockz.RealClock.Now(),
		mode:       ModeWait,
		clock:      clockz.RealClock,
	}
}

// ratePerSecond converts the count/per configuration to a refill rate.
func (r *RateLimiter[T]) ratePerSecond() float64 {
	if r.per <= 0 {
		return math.Inf(1)
	}
	return r.count / r.per.Seconds()
}

// refill must be called with mu held.
func (r *RateLimiter[T]) refill() {
	now := r.clock.Now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.lastRefill = now
	rate := r.ratePerSecond()
	if math.IsInf(rate, 1) {
		r.tokens = r.count
		return
	}
	r.tokens = math.Min(r.count, r.tokens+elapsed*rate)
}

// Process implements Chainable: in wait mode it blocks (honoring ctx) until
// a token is free; in drop mode it fails fast with ErrRateLimited.
func (r *RateLimiter[T]) Process(ctx context.Context, data T) (T, error) {
	for {
		r.mu.Lock()
		r.refill()
		if r.tokens >= 1 {
			r.tokens--
			capitan.Info(ctx, SignalRateLimiterAllowed, FieldName.Field(r.name), FieldRate.Field(r.ratePerSecond()))
			r.mu.Unlock()
			return data, nil
		}
		mode := r.mode
		wait := r.waitForNextToken()
		r.mu.Unlock()

		if mode == ModeDrop {
			capitan.Error(ctx, SignalRateLimiterDropped, FieldName.Field(r.name), FieldMode.Field(mode))
			return data, wrapPath(r.name, data, ErrRateLimited, r.clock.Now())
		}

		capitan.Warn(ctx, SignalRateLimiterThrottled, FieldName.Field(r.name), FieldDelaySeconds.Field(wait.Seconds()))
		select {
		case <-r.clock.After(wait):
		case <-ctx.Done():
			return data, wrapPath(r.name, data, ctx.Err(), r.clock.Now())
		}
	}
}

// waitForNextToken must be called with mu held, after refill.
func (r *RateLimiter[T]) waitForNextToken() time.Duration {
	rate := r.ratePerSecond()
	if rate <= 0 {
		return time.Duration(math.MaxInt64)
	}
	if math.IsInf(rate, 1) {
		return 0
	}
	needed := 1 - r.tokens
	if needed <= 0 {
		return 0
	}
	return time.Duration(needed / rate * float64(time.Second))
}

// SetMode switches between wait and drop semantics.
func (r *RateLimiter[T]) SetMode(mode string) *RateLimiter[T] {
	if mode != ModeWait && mode != ModeDrop {
		return r
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = mode
	return r
}

// WithClock installs a fake clock for deterministic tests.
func (r *RateLimiter[T]) WithClock(clock clockz.Clock) *RateLimiter[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = clock
	r.lastRefill = clock.Now()
	return r
}

// AvailableTokens reports the current bucket level, refilling first.
func (r *RateLimiter[T]) AvailableTokens() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill()
	return r.tokens
}

// Name implements Chainable.
func (r *RateLimiter[T]) Name() Name { return r.name }
