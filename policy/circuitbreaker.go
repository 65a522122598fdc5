package policy

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// breaker states.
const (
	stateClosed   = "closed"
	stateOpen     = "open"
	stateHalfOpen = "half-open"
)

// CircuitBreaker implements a three-state circuit breaker: Closed lets
// calls through and counts consecutive failures; Open rejects calls
// immediately until resetTimeout elapses; HalfOpen admits up to
// halfOpenMaxProbes concurrent probes and decides the next state from their
// outcome. It is a STATEFUL connector: construct one per module name and
// reuse it across calls (typically via CircuitBreakerRegistry.GetOrCreate)
// so the failure count is actually tracked.
type CircuitBreaker[T any] struct {
	lastOpenedAt     time.Time
	processor        Chainable[T]
	clock            clockz.Clock
	name             Name
	state            string
	mu               sync.Mutex
	resetTimeout     time.Duration
	generation       int
	failureThreshold int
	halfOpenMaxProbes int
	halfOpenInFlight int
	failures         int

	successesTotal  uint64
	failuresTotal   uint64
	rejectedTotal   uint64
}

// NewCircuitBreaker constructs a CircuitBreaker around processor.
func NewCircuitBreaker[T any](name Name, processor Chainable[T], failureThreshold int, resetTimeout time.Duration, halfOpenMaxProbes int) *CircuitBreaker[T] {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	if halfOpenMaxProbes < 1 {
		halfOpenMaxProbes = 1
	}
	return &CircuitBreaker[T]{
		name:              name,
		processor:         processor,
		failureThreshold:  failureThreshold,
		resetTimeout:      resetTimeout,
		halfOpenMaxProbes: halfOpenMaxProbes,
		state:             stateClosed,
		clock:             clockz.RealClock,
	}
}

// Process implements Chainable.
func (cb *CircuitBreaker[T]) Process(ctx context.Context, data T) (T, error) {
	cb.mu.Lock()

	if cb.state == stateOpen && cb.clock.Since(cb.lastOpenedAt) > cb.resetTimeout {
		cb.state = stateHalfOpen
		cb.failures = 0
		cb.halfOpenInFlight = 0
		cb.generation++
		capitan.Warn(ctx, SignalCircuitBreakerHalfOpen,
			FieldName.Field(cb.name),
			FieldState.Field(cb.state),
			FieldGeneration.Field(cb.generation),
		)
	}

	switch cb.state {
	case stateOpen:
		cb.rejectedTotal++
		capitan.Error(ctx, SignalCircuitBreakerRejected, FieldName.Field(cb.name), FieldState.Field(cb.state))
		cb.mu.Unlock()
		return data, wrapPath(cb.name, data, ErrCircuitOpen, cb.clock.Now())
	case stateHalfOpen:
		if cb.halfOpenInFlight >= cb.halfOpenMaxProbes {
			cb.rejectedTotal++
			cb.mu.Unlock()
			return data, wrapPath(cb.name, data, ErrCircuitOpen, cb.clock.Now())
		}
		cb.halfOpenInFlight++
	}

	generation := cb.generation
	cb.mu.Unlock()

	result, err := cb.processor.Process(ctx, data)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == stateHalfOpen {
		cb.halfOpenInFlight--
	}
	if cb.generation != generation {
		// A reset or a concurrent transition already moved us to a new
		// generation; this result belongs to a stale epoch.
		return result, err
	}

	if err != nil {
		cb.onFailure(ctx)
		return result, wrapPath(cb.name, data, err, cb.clock.Now())
	}
	cb.onSuccess(ctx)
	return result, nil
}

func (cb *CircuitBreaker[T]) onSuccess(ctx context.Context) {
	cb.successesTotal++
	switch cb.state {
	case stateClosed:
		cb.failures = 0
	case stateHalfOpen:
		cb.state = stateClosed
		cb.failures = 0
		cb.generation++
		capitan.Info(ctx, SignalCircuitBreakerClosed, FieldName.Field(cb.name), FieldState.Field(cb.state))
	}
}

func (cb *CircuitBreaker[T]) onFailure(ctx context.Context) {
	cb.failuresTotal++
	cb.lastOpenedAt = cb.clock.Now()
	switch cb.state {
	case stateClosed:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.state = stateOpen
			cb.generation++
			capitan.Error(ctx, SignalCircuitBreakerOpened,
				FieldName.Field(cb.name), FieldState.Field(cb.state), FieldFailures.Field(cb.failures), FieldFailureThreshold.Field(cb.failureThreshold))
		}
	case stateHalfOpen:
		cb.state = stateOpen
		cb.failures = 0
		cb.generation++
		capitan.Error(ctx, SignalCircuitBreakerOpened, FieldName.Field(cb.name), FieldState.Field(cb.state))
	}
}

// State returns the current state, resolving an elapsed Open->HalfOpen
// transition without mutating the breaker.
func (cb *CircuitBreaker[T]) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == stateOpen && cb.clock.Since(cb.lastOpenedAt) > cb.resetTimeout {
		return stateHalfOpen
	}
	return cb.state
}

// Stats reports the breaker's current counters.
type CircuitBreakerStats struct {
	State             string
	ConsecutiveFailures int
	Successes         uint64
	Failures          uint64
	Rejected          uint64
}

// Stats returns a snapshot of the breaker's counters.
func (cb *CircuitBreaker[T]) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	state := cb.state
	if cb.state == stateOpen && cb.clock.Since(cb.lastOpenedAt) > cb.resetTimeout {
		state = stateHalfOpen
	}
	return CircuitBreakerStats{
		State:               state,
		ConsecutiveFailures: cb.failures,
		Successes:           cb.successesTotal,
		Failures:            cb.failuresTotal,
		Rejected:            cb.rejectedTotal,
	}
}

// Reset forces the breaker back to Closed, e.g. for operator intervention.
func (cb *CircuitBreaker[T]) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = stateClosed
	cb.failures = 0
	cb.halfOpenInFlight = 0
	cb.generation++
}

// WithClock installs a fake clock, used by tests that need deterministic
// control over resetTimeout elapsing.
func (cb *CircuitBreaker[T]) WithClock(clock clockz.Clock) *CircuitBreaker[T] {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.clock = clock
	return cb
}

// Name implements Chainable.
func (cb *CircuitBreaker[T]) Name() Name { return cb.name }

// CircuitBreakerRegistry is a race-safe keyed registry of circuit breakers,
// so that two module-option calls for the same module name share the same
// stateful breaker instance, racing getOrCreate calls safely.
type CircuitBreakerRegistry[T any] struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker[T]
}

// NewCircuitBreakerRegistry constructs an empty registry.
func NewCircuitBreakerRegistry[T any]() *CircuitBreakerRegistry[T] {
	return &CircuitBreakerRegistry[T]{breakers: make(map[string]*CircuitBreaker[T])}
}

// GetOrCreate returns the breaker for key, constructing it with factory on
// first use. Subsequent calls with the same key ignore factory and return
// the existing instance.
func (r *CircuitBreakerRegistry[T]) GetOrCreate(key string, factory func() *CircuitBreaker[T]) *CircuitBreaker[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[key]; ok {
		return cb
	}
	cb := factory()
	r.breakers[key] = cb
	return cb
}
