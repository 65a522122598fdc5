package policy

import "github.com/zoobzio/capitan"

// Signal constants for policy connector events, following the
// "<connector>.<event>" pattern so a listener subscribed to a prefix sees
// every lifecycle event for that connector family.
const (
	SignalCircuitBreakerOpened   capitan.Signal = "circuitbreaker.opened"
	SignalCircuitBreakerClosed   capitan.Signal = "circuitbreaker.closed"
	SignalCircuitBreakerHalfOpen capitan.Signal = "circuitbreaker.half-open"
	SignalCircuitBreakerRejected capitan.Signal = "circuitbreaker.rejected"

	SignalRateLimiterThrottled capitan.Signal = "ratelimiter.throttled"
	SignalRateLimiterDropped   capitan.Signal = "ratelimiter.dropped"
	SignalRateLimiterAllowed   capitan.Signal = "ratelimiter.allowed"

	SignalConcurrencySaturated capitan.Signal = "concurrency.saturated"
	SignalConcurrencyAcquired  capitan.Signal = "concurrency.acquired"
	SignalConcurrencyReleased  capitan.Signal = "concurrency.released"

	SignalRetryAttemptFail capitan.Signal = "retry.attempt-fail"
	SignalRetryExhausted   capitan.Signal = "retry.exhausted"

	SignalFallbackAttempt capitan.Signal = "fallback.attempt"
	SignalFallbackFailed  capitan.Signal = "fallback.failed"

	SignalTimeoutTriggered capitan.Signal = "timeout.triggered"

	SignalCacheHit  capitan.Signal = "cache.hit"
	SignalCacheMiss capitan.Signal = "cache.miss"
)

// Field keys shared across connector signals. Using capitan's typed keys
// instead of raw map[string]any keeps every emitted event machine-parseable
// without per-connector marshaling code.
var (
	FieldName      = capitan.NewStringKey("name")
	FieldError     = capitan.NewStringKey("error")
	FieldTimestamp = capitan.NewFloat64Key("timestamp")

	FieldState            = capitan.NewStringKey("state")
	FieldFailures          = capitan.NewIntKey("failures")
	FieldFailureThreshold  = capitan.NewIntKey("failure_threshold")
	FieldGeneration        = capitan.NewIntKey("generation")

	FieldRate  = capitan.NewFloat64Key("rate")
	FieldBurst = capitan.NewIntKey("burst")
	FieldMode  = capitan.NewStringKey("mode")

	FieldActive = capitan.NewIntKey("active")
	FieldLimit  = capitan.NewIntKey("limit")

	FieldAttempt     = capitan.NewIntKey("attempt")
	FieldMaxAttempts = capitan.NewIntKey("max_attempts")

	FieldDelaySeconds = capitan.NewFloat64Key("delay_seconds")
	FieldDuration     = capitan.NewFloat64Key("duration")

	FieldCacheKey = capitan.NewStringKey("cache_key")
)
