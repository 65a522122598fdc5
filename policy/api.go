// Package policy provides the reusable execution-policy primitives that the
// DAG executor wraps around a single module invocation: caching, rate
// limiting, concurrency limits, circuit breaking, retry/backoff, timeout,
// fallback, and error-strategy conversion.
//
// Every primitive implements the same interface so they compose by simple
// nesting, the way the runtime's option stack in package exec builds it:
//
//	type Chainable[T any] interface {
//	    Process(context.Context, T) (T, error)
//	    Name() Name
//	}
//
// A policy wraps another Chainable and is itself a Chainable, so
// timeout(retry(fallback(circuitBreaker(op)))) is just nested construction.
// The DAG executor is the only caller that needs to know the composition
// order; policies themselves stay single-purpose and independently testable.
package policy

import "context"

// Name identifies a processor or connector for logging, tracing, and the
// path carried on a ModuleError.
type Name = string

// Chainable is implemented by every policy primitive and by the raw module
// invocation they wrap. T is almost always values.CValue when policies are
// assembled by the executor, but the primitives stay generic so they can be
// unit-tested against plain Go types.
type Chainable[T any] interface {
	Process(context.Context, T) (T, error)
	Name() Name
}

// ProcessorFunc adapts a plain function to Chainable without a dedicated
// wrapper type. It is how the executor bridges a module's run function into
// the policy stack.
type ProcessorFunc[T any] struct {
	Fn       func(context.Context, T) (T, error)
	FuncName Name
}

// Process implements Chainable.
func (p ProcessorFunc[T]) Process(ctx context.Context, v T) (T, error) { return p.Fn(ctx, v) }

// Name implements Chainable.
func (p ProcessorFunc[T]) Name() Name { return p.FuncName }
