// Package exec implements the module-options executor (C6) and the
// concurrent DAG executor (C7): composing the policy primitives of
// package policy around a single module invocation in the fixed order
// spec.md §4.6 prescribes, and driving a whole pipeline's ready-set
// scheduling loop.
package exec

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/loom-run/loom/ir"
	"github.com/loom-run/loom/policy"
	"github.com/loom-run/loom/sched"
	"github.com/loom-run/loom/values"
)

// Operation is a raw module invocation: inputs in, a CValue (or error) out.
type Operation func(ctx context.Context, input values.CValue) (values.CValue, error)

// Executor owns the process-wide, module-keyed policy registries
// (cache backends, circuit breakers, rate limiters, concurrency
// limiters) so that two calls to the same moduleId share state, per
// spec.md §5 "process-wide, mutated by getOrCreate".
type Executor struct {
	mu           sync.Mutex
	breakers     *policy.CircuitBreakerRegistry[values.CValue]
	limiters     map[string]*policy.ConcurrencyLimiter[values.CValue]
	rateLimiters map[string]*policy.RateLimiter[values.CValue]
	caches       map[string]*policy.LRUCache[values.CValue]
	scheduler    *sched.Scheduler
	logger       *zerolog.Logger
}

// defaultPriority is the effective priority assigned to a module call
// admitted through the scheduler whose options name no priority.
const defaultPriority = 50

// NewExecutor constructs an Executor. When scheduler is non-nil, every
// call that does not take the fast path is admitted through it, at
// opts.Priority or, when that is unset, defaultPriority. logger may be nil.
func NewExecutor(logger *zerolog.Logger, scheduler *sched.Scheduler) *Executor {
	return &Executor{
		breakers:     policy.NewCircuitBreakerRegistry[values.CValue](),
		limiters:     make(map[string]*policy.ConcurrencyLimiter[values.CValue]),
		rateLimiters: make(map[string]*policy.RateLimiter[values.CValue]),
		caches:       make(map[string]*policy.LRUCache[values.CValue]),
		scheduler:    scheduler,
		logger:       logger,
	}
}

// ExecuteWithOptions runs op through the policy stack configured by
// opts, in composition order (inside-out): timeout -> retry ->
// fallback -> error-strategy -> cache -> concurrency limiter -> rate
// limiter -> circuit breaker. If opts is the zero value and fallback is
// nil, op runs directly (fast path).
func (ex *Executor) ExecuteWithOptions(
	ctx context.Context,
	moduleID, moduleName string,
	op Operation,
	opts ir.ModuleCallOptions,
	outputType values.CType,
	input values.CValue,
	fallback Operation,
) (values.CValue, error) {
	if isZeroOptions(opts) && fallback == nil {
		return op(ctx, input)
	}

	var chain policy.Chainable[values.CValue] = policy.ProcessorFunc[values.CValue]{
		Fn: op, FuncName: moduleName,
	}

	if opts.TimeoutMs != nil {
		chain = policy.NewTimeout[values.CValue](moduleName, chain, time.Duration(*opts.TimeoutMs)*time.Millisecond)
	}

	if opts.Retry != nil {
		strategy := policy.BackoffFixed
		switch opts.Backoff {
		case "Linear":
			strategy = policy.BackoffLinear
		case "Exponential":
			strategy = policy.BackoffExponential
		}
		base := time.Duration(0)
		if opts.DelayMs != nil {
			base = time.Duration(*opts.DelayMs) * time.Millisecond
		}
		// ModuleCallOptions exposes no max-delay knob, so leave the cap
		// unbounded; delayForAttempt treats maxDelay<=0 as no cap.
		chain = policy.NewRetry[values.CValue](moduleName, chain, *opts.Retry+1, strategy, base, 0)
	}

	if fallback != nil {
		fb := policy.ProcessorFunc[values.CValue]{Fn: fallback, FuncName: moduleName + ".fallback"}
		chain = policy.NewFallback[values.CValue](moduleName, chain, fb)
	}

	if opts.OnError != "" && opts.OnError != "Propagate" {
		strategy := policy.ErrorPropagate
		switch opts.OnError {
		case "Skip":
			strategy = policy.ErrorSkip
		case "Log":
			strategy = policy.ErrorLog
		case "Wrap":
			strategy = policy.ErrorWrap
		}
		zero := func() values.CValue { return values.Zero(outputType) }
		chain = policy.NewErrorStrategyConverter[values.CValue](moduleName, moduleName, chain, strategy, ex.logger, zero)
	}

	if opts.CacheMs != nil {
		cache := ex.cacheFor(moduleID)
		inner := chain
		cacheChain := policy.ProcessorFunc[values.CValue]{
			FuncName: moduleName,
			Fn: func(ctx context.Context, v values.CValue) (values.CValue, error) {
				key := policy.CacheKey(moduleName, "", map[string]string{"input": v.String()})
				ttl := time.Duration(*opts.CacheMs) * time.Millisecond
				return cache.GetOrCompute(ctx, key, ttl, func(ctx context.Context) (values.CValue, error) {
					return inner.Process(ctx, v)
				})
			},
		}
		chain = cacheChain
	}

	if opts.Concurrency != nil {
		limiter := ex.concurrencyLimiterFor(moduleID, chain, *opts.Concurrency)
		chain = limiter
	}

	if opts.ThrottleCount != nil && opts.ThrottlePerMs != nil {
		rl := ex.rateLimiterFor(moduleID, chain, float64(*opts.ThrottleCount), time.Duration(*opts.ThrottlePerMs)*time.Millisecond)
		inner := chain
		chain = policy.ProcessorFunc[values.CValue]{
			FuncName: moduleName,
			Fn: func(ctx context.Context, v values.CValue) (values.CValue, error) {
				if _, err := rl.Process(ctx, v); err != nil {
					return values.CValue{}, err
				}
				return inner.Process(ctx, v)
			},
		}
	}

	if opts.CircuitBreaker != nil {
		cfg := opts.CircuitBreaker
		chain = ex.breakers.GetOrCreate(moduleID, func() *policy.CircuitBreaker[values.CValue] {
			return policy.NewCircuitBreaker[values.CValue](moduleName, chain, cfg.FailureThreshold,
				time.Duration(cfg.ResetDurationMs)*time.Millisecond, cfg.HalfOpenMaxProbes)
		})
	}

	if ex.scheduler == nil {
		return chain.Process(ctx, input)
	}
	priority := defaultPriority
	if opts.Priority != nil {
		priority = *opts.Priority
	}
	release, err := ex.scheduler.Acquire(ctx, priority)
	if err != nil {
		var zero values.CValue
		return zero, err
	}
	defer release()
	return chain.Process(ctx, input)
}

func (ex *Executor) cacheFor(moduleID string) *policy.LRUCache[values.CValue] {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if c, ok := ex.caches[moduleID]; ok {
		return c
	}
	c := policy.NewLRUCache[values.CValue](moduleID, 1024)
	ex.caches[moduleID] = c
	return c
}

func (ex *Executor) concurrencyLimiterFor(moduleID string, chain policy.Chainable[values.CValue], max int) *policy.ConcurrencyLimiter[values.CValue] {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if l, ok := ex.limiters[moduleID]; ok {
		return l
	}
	l := policy.NewConcurrencyLimiter[values.CValue](moduleID, chain, max)
	ex.limiters[moduleID] = l
	return l
}

func (ex *Executor) rateLimiterFor(moduleID string, chain policy.Chainable[values.CValue], count float64, per time.Duration) *policy.RateLimiter[values.CValue] {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if r, ok := ex.rateLimiters[moduleID]; ok {
		return r
	}
	r := policy.NewRateLimiter[values.CValue](moduleID, count, per)
	ex.rateLimiters[moduleID] = r
	return r
}

func isZeroOptions(o ir.ModuleCallOptions) bool {
	return o.Retry == nil && o.DelayMs == nil && o.TimeoutMs == nil && !o.Lazy &&
		o.CacheMs == nil && o.ThrottleCount == nil && o.ThrottlePerMs == nil &&
		o.Concurrency == nil && o.OnError == "" && o.CircuitBreaker == nil && o.Priority == nil
}
