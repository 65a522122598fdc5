// Package sched implements the priority / global scheduler (C9): a
// counting semaphore bounding total concurrency, fronted by a priority
// queue with starvation-prevention aging. It is the last admission gate
// a module call passes through before its operation actually runs.
package sched

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// ErrClosed is returned by Acquire once the scheduler has been shut down.
var ErrClosed = errors.New("scheduler is closed")

// QueueFullError is returned by Acquire when the wait queue is already
// at capacity.
type QueueFullError struct {
	CurrentSize int
	MaxSize     int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("scheduler queue full: %d/%d", e.CurrentSize, e.MaxSize)
}

// Config bounds and tunes a Scheduler.
type Config struct {
	MaxConcurrency   int
	MaxQueueSize     int
	AgingEvery       time.Duration
	BoostPerInterval int
}

// ApplyDefaults fills in zero fields with sensible bounds: one
// concurrent task, a queue of 1024 waiters, a five-second aging
// interval, and a one-point boost per interval.
func (c *Config) ApplyDefaults() {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 1
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 1024
	}
	if c.AgingEvery <= 0 {
		c.AgingEvery = 5 * time.Second
	}
	if c.BoostPerInterval <= 0 {
		c.BoostPerInterval = 1
	}
}

// Scheduler is a bounded-concurrency priority queue: Acquire blocks
// until either a concurrency permit is free and this call holds the
// highest effective priority among waiters, or ctx is done, or the
// queue is already full at submission time.
type Scheduler struct {
	cfg   Config
	clock clockz.Clock

	mu     sync.Mutex
	q      waiterHeap
	nextID uint64
	active int
	closed bool

	closeCh chan struct{}
	done    chan struct{}
}

// New constructs a Scheduler and starts its background aging loop.
func New(cfg Config) *Scheduler {
	cfg.ApplyDefaults()
	s := &Scheduler{
		cfg:     cfg,
		clock:   clockz.RealClock,
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
	heap.Init(&s.q)
	go s.agingLoop()
	return s
}

// WithClock overrides the scheduler's clock, for deterministic aging
// tests. Must be called before any Acquire.
func (s *Scheduler) WithClock(clock clockz.Clock) *Scheduler {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
	return s
}

// Acquire waits for a concurrency permit, honoring priority and the
// aging boost, and returns a release func the caller must invoke
// exactly once when the protected operation finishes.
func (s *Scheduler) Acquire(ctx context.Context, priority int) (release func(), err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.active < s.cfg.MaxConcurrency && s.q.Len() == 0 {
		s.active++
		s.mu.Unlock()
		capitan.Info(ctx, SignalAdmitted, FieldPriority.Field(priority), FieldEffective.Field(priority))
		return s.releaseFunc(), nil
	}
	if s.q.Len() >= s.cfg.MaxQueueSize {
		size := s.q.Len()
		s.mu.Unlock()
		capitan.Warn(ctx, SignalRejected, FieldQueueSize.Field(size), FieldMaxQueueSize.Field(s.cfg.MaxQueueSize))
		return nil, &QueueFullError{CurrentSize: size, MaxSize: s.cfg.MaxQueueSize}
	}

	s.nextID++
	w := &waiter{
		id: s.nextID, priority: priority, effective: priority,
		submittedAt: s.clock.Now(), notify: make(chan struct{}),
	}
	heap.Push(&s.q, w)
	queueSize := s.q.Len()
	s.mu.Unlock()
	capitan.Info(ctx, SignalQueued, FieldTaskID.Field(int(w.id)), FieldPriority.Field(priority), FieldQueueSize.Field(queueSize))
	s.dispatch()

	select {
	case <-w.notify:
		capitan.Info(ctx, SignalAdmitted, FieldTaskID.Field(int(w.id)), FieldPriority.Field(priority), FieldEffective.Field(w.effective))
		return s.releaseFunc(), nil
	case <-ctx.Done():
		s.mu.Lock()
		if w.granted {
			// Dispatcher already handed us the slot; honor it and
			// release immediately so concurrency accounting stays
			// correct, rather than leaking a permit.
			s.mu.Unlock()
			s.release()
			return nil, ctx.Err()
		}
		if w.index >= 0 {
			heap.Remove(&s.q, w.index)
		}
		s.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (s *Scheduler) releaseFunc() func() {
	var once sync.Once
	return func() { once.Do(s.release) }
}

func (s *Scheduler) release() {
	s.mu.Lock()
	s.active--
	s.mu.Unlock()
	s.dispatch()
}

// dispatch hands out as many permits as are currently available to the
// highest-effective-priority waiters.
func (s *Scheduler) dispatch() {
	s.mu.Lock()
	now := s.clock.Now()
	before := make(map[uint64]int, len(s.q))
	for _, w := range s.q {
		before[w.id] = w.effective
	}
	s.q.recomputeEffective(now, s.cfg.BoostPerInterval)
	heap.Init(&s.q)
	for _, w := range s.q {
		if w.effective > before[w.id] {
			waited := now.Sub(w.submittedAt).Seconds()
			capitan.Info(context.Background(), SignalAged, FieldTaskID.Field(int(w.id)),
				FieldEffective.Field(w.effective), FieldWaitSeconds.Field(waited))
		}
	}
	var granted []*waiter
	for s.active < s.cfg.MaxConcurrency && s.q.Len() > 0 {
		w := heap.Pop(&s.q).(*waiter)
		w.granted = true
		s.active++
		granted = append(granted, w)
	}
	s.mu.Unlock()
	for _, w := range granted {
		close(w.notify)
	}
}

// agingLoop periodically recomputes effective priorities so waiters
// age even while no new task submits or completes.
func (s *Scheduler) agingLoop() {
	defer close(s.done)
	for {
		select {
		case <-s.clock.After(s.cfg.AgingEvery):
			s.dispatch()
		case <-s.closeCh:
			return
		}
	}
}

// Close cancels the aging loop and causes every subsequent Acquire to
// fail with ErrClosed. Waiters already queued remain queued until
// their context is canceled by the caller.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	close(s.closeCh)
	<-s.done
	return nil
}

// Len reports the number of tasks currently waiting for a permit.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.Len()
}

// Active reports the number of permits currently held.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
