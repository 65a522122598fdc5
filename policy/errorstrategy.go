package policy

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// ErrorStrategy selects how a module failure is converted once every
// upstream wrapper (timeout, retry, fallback) has given up.
type ErrorStrategy int

const (
	// ErrorPropagate lets the failure surface unchanged.
	ErrorPropagate ErrorStrategy = iota
	// ErrorSkip replaces the failure with the zero value of V.
	ErrorSkip
	// ErrorLog records the failure and then propagates it.
	ErrorLog
	// ErrorWrap converts the failure into a ModuleError carried as a value
	// rather than an error return.
	ErrorWrap
)

// ModuleError is the value ErrorWrap produces: moduleName, the underlying
// error, and when it occurred.
type ModuleError struct {
	ModuleName string
	Err        error
	Timestamp  time.Time
}

func (e *ModuleError) Error() string { return e.ModuleName + ": " + e.Err.Error() }
func (e *ModuleError) Unwrap() error { return e.Err }

// ErrorStrategyConverter applies an ErrorStrategy to the outcome of a
// Chainable. In the module-options executor's composition order it sits
// between fallback and the cache wrapper.
type ErrorStrategyConverter[T any] struct {
	processor  Chainable[T]
	name       Name
	moduleName string
	strategy   ErrorStrategy
	logger     *zerolog.Logger
	zeroValue  func() T
}

// NewErrorStrategyConverter constructs a converter. zeroValue must produce
// the declared zero value for T (empty string/0/0.0/false/empty
// collection/CNone/first union variant) — for plain Go types the generic
// zero value is correct, while package exec passes values.Zero of the
// module's declared output type.
func NewErrorStrategyConverter[T any](name, moduleName Name, processor Chainable[T], strategy ErrorStrategy, logger *zerolog.Logger, zeroValue func() T) *ErrorStrategyConverter[T] {
	if zeroValue == nil {
		zeroValue = func() T { var z T; return z }
	}
	return &ErrorStrategyConverter[T]{
		name: name, moduleName: moduleName, processor: processor,
		strategy: strategy, logger: logger, zeroValue: zeroValue,
	}
}

// Process implements Chainable.
func (e *ErrorStrategyConverter[T]) Process(ctx context.Context, data T) (T, error) {
	result, err := e.processor.Process(ctx, data)
	if err == nil {
		return result, nil
	}

	switch e.strategy {
	case ErrorSkip:
		return e.zeroValue(), nil
	case ErrorLog:
		if e.logger != nil {
			e.logger.Error().Err(err).Str("module", e.moduleName).Msg("module execution failed")
		}
		return result, wrapPath(e.name, data, err, time.Now())
	case ErrorWrap:
		// Process cannot carry the ModuleError as a value; callers that
		// need the Result<V, ModuleError> shape use WrapOutcome instead.
		return result, wrapPath(e.name, data, err, time.Now())
	default:
		return result, wrapPath(e.name, data, err, time.Now())
	}
}

// WrapOutcome runs processor and, under ErrorWrap, returns the ModuleError
// as a value alongside a nil error instead of propagating it — callers
// needing the Result<V, ModuleError> shape use this instead of Process,
// since Chainable's signature cannot itself carry a tagged union.
func (e *ErrorStrategyConverter[T]) WrapOutcome(ctx context.Context, data T) (T, *ModuleError, error) {
	result, err := e.processor.Process(ctx, data)
	if err == nil {
		return result, nil, nil
	}
	switch e.strategy {
	case ErrorSkip:
		return e.zeroValue(), nil, nil
	case ErrorLog:
		if e.logger != nil {
			e.logger.Error().Err(err).Str("module", e.moduleName).Msg("module execution failed")
		}
		return result, nil, wrapPath(e.name, data, err, time.Now())
	case ErrorWrap:
		return result, &ModuleError{ModuleName: e.moduleName, Err: err, Timestamp: time.Now()}, nil
	default:
		return result, nil, wrapPath(e.name, data, err, time.Now())
	}
}

// Name implements Chainable.
func (e *ErrorStrategyConverter[T]) Name() Name { return e.name }
