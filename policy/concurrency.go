package policy

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
)

// ConcurrencyLimiterStats reports a limiter's current counters.
type ConcurrencyLimiterStats struct {
	Active    int
	Peak      int
	Total     uint64
	Waiting   int
	Available int
}

// ConcurrencyLimiter bounds the number of in-flight calls to the wrapped
// processor using a counting semaphore: acquire, track active/peak/total,
// run, release on any exit path.
type ConcurrencyLimiter[T any] struct {
	processor     Chainable[T]
	name          Name
	sem           chan struct{}
	maxConcurrent int

	mu      sync.Mutex
	active  int
	peak    int
	waiting int
	total   uint64
}

// NewConcurrencyLimiter constructs a limiter admitting at most maxConcurrent
// concurrent calls into processor.
func NewConcurrencyLimiter[T any](name Name, processor Chainable[T], maxConcurrent int) *ConcurrencyLimiter[T] {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &ConcurrencyLimiter[T]{
		name:          name,
		processor:     processor,
		sem:           make(chan struct{}, maxConcurrent),
		maxConcurrent: maxConcurrent,
	}
}

// Process implements Chainable.
func (c *ConcurrencyLimiter[T]) Process(ctx context.Context, data T) (T, error) {
	c.mu.Lock()
	c.waiting++
	if c.active >= c.maxConcurrent {
		capitan.Warn(ctx, SignalConcurrencySaturated, FieldName.Field(c.name), FieldActive.Field(c.active), FieldLimit.Field(c.maxConcurrent))
	}
	c.mu.Unlock()

	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		c.mu.Lock()
		c.waiting--
		c.mu.Unlock()
		var zero T
		return zero, wrapPath(c.name, data, ctx.Err(), time.Now())
	}

	c.mu.Lock()
	c.waiting--
	c.active++
	c.total++
	if c.active > c.peak {
		c.peak = c.active
	}
	active := c.active
	c.mu.Unlock()
	capitan.Info(ctx, SignalConcurrencyAcquired, FieldName.Field(c.name), FieldActive.Field(active), FieldLimit.Field(c.maxConcurrent))

	defer func() {
		<-c.sem
		c.mu.Lock()
		c.active--
		active := c.active
		c.mu.Unlock()
		capitan.Info(ctx, SignalConcurrencyReleased, FieldName.Field(c.name), FieldActive.Field(active), FieldLimit.Field(c.maxConcurrent))
	}()

	result, err := c.processor.Process(ctx, data)
	if err != nil {
		return result, wrapPath(c.name, data, err, time.Now())
	}
	return result, nil
}

// TryAcquire attempts a non-blocking permit acquisition, returning whether
// it succeeded; callers that succeed must call the returned release func.
func (c *ConcurrencyLimiter[T]) TryAcquire() (release func(), ok bool) {
	select {
	case c.sem <- struct{}{}:
		c.mu.Lock()
		c.active++
		c.total++
		if c.active > c.peak {
			c.peak = c.active
		}
		c.mu.Unlock()
		return func() {
			<-c.sem
			c.mu.Lock()
			c.active--
			c.mu.Unlock()
		}, true
	default:
		return nil, false
	}
}

// Active reports the current in-flight count.
func (c *ConcurrencyLimiter[T]) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Available reports the remaining permits.
func (c *ConcurrencyLimiter[T]) Available() int {
	return c.maxConcurrent - c.Active()
}

// Stats returns a snapshot of the limiter's counters.
func (c *ConcurrencyLimiter[T]) Stats() ConcurrencyLimiterStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConcurrencyLimiterStats{
		Active:    c.active,
		Peak:      c.peak,
		Total:     c.total,
		Waiting:   c.waiting,
		Available: c.maxConcurrent - c.active,
	}
}

// Name implements Chainable.
func (c *ConcurrencyLimiter[T]) Name() Name { return c.name }
