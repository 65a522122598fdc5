package sched

import (
	"context"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func TestSchedulerAdmitsImmediatelyWhenBelowCapacity(t *testing.T) {
	s := New(Config{MaxConcurrency: 2, MaxQueueSize: 4})
	defer s.Close()

	release, err := s.Acquire(context.Background(), 50)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if s.Active() != 1 {
		t.Fatalf("expected 1 active permit, got %d", s.Active())
	}
	release()
	if s.Active() != 0 {
		t.Fatalf("expected 0 active permits after release, got %d", s.Active())
	}
}

func TestSchedulerQueuesAndDispatchesHighestPriorityFirst(t *testing.T) {
	s := New(Config{MaxConcurrency: 1, MaxQueueSize: 4})
	defer s.Close()

	holdRelease, err := s.Acquire(context.Background(), 50)
	if err != nil {
		t.Fatalf("initial Acquire: %v", err)
	}

	type result struct {
		priority int
		order    int
	}
	orderCh := make(chan result, 2)
	var seq int

	go func() {
		s.Acquire(context.Background(), 10) //nolint:errcheck
		seq++
		orderCh <- result{priority: 10, order: seq}
	}()
	time.Sleep(20 * time.Millisecond)
	go func() {
		s.Acquire(context.Background(), 90) //nolint:errcheck
		seq++
		orderCh <- result{priority: 90, order: seq}
	}()
	time.Sleep(20 * time.Millisecond)

	if s.Len() != 2 {
		t.Fatalf("expected 2 queued waiters, got %d", s.Len())
	}

	holdRelease()

	first := <-orderCh
	if first.priority != 90 {
		t.Fatalf("expected the higher-priority waiter admitted first, got priority %d", first.priority)
	}
}

func TestSchedulerRejectsWhenQueueFull(t *testing.T) {
	s := New(Config{MaxConcurrency: 1, MaxQueueSize: 1})
	defer s.Close()

	_, err := s.Acquire(context.Background(), 50)
	if err != nil {
		t.Fatalf("initial Acquire: %v", err)
	}

	go func() { s.Acquire(context.Background(), 50) }() //nolint:errcheck
	time.Sleep(20 * time.Millisecond)

	_, err = s.Acquire(context.Background(), 50)
	qf, ok := err.(*QueueFullError)
	if !ok {
		t.Fatalf("expected *QueueFullError, got %v", err)
	}
	if qf.MaxSize != 1 {
		t.Fatalf("unexpected QueueFullError: %+v", qf)
	}
}

func TestSchedulerCancelWhileQueued(t *testing.T) {
	s := New(Config{MaxConcurrency: 1, MaxQueueSize: 4})
	defer s.Close()

	_, err := s.Acquire(context.Background(), 50)
	if err != nil {
		t.Fatalf("initial Acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := s.Acquire(ctx, 50)
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for cancellation to unblock Acquire")
	}
	if s.Len() != 0 {
		t.Fatalf("expected the canceled waiter removed from the queue, got len %d", s.Len())
	}
}

func TestSchedulerCloseRejectsFurtherAcquires(t *testing.T) {
	s := New(Config{MaxConcurrency: 1, MaxQueueSize: 4})
	s.Close()

	_, err := s.Acquire(context.Background(), 50)
	if err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestWaiterHeapRecomputeEffectiveAppliesAgingBoost(t *testing.T) {
	clock := clockz.NewFakeClock()
	now := clock.Now()
	h := waiterHeap{
		&waiter{id: 1, priority: 0, submittedAt: now.Add(-26 * time.Second)},
		&waiter{id: 2, priority: 50, submittedAt: now},
	}
	h.recomputeEffective(now, 1)
	if h[0].effective != 5 {
		t.Fatalf("expected a waiter waiting 26s to gain a +5 boost, got %d", h[0].effective)
	}
	if h[1].effective != 50 {
		t.Fatalf("expected a freshly submitted waiter's effective priority unchanged, got %d", h[1].effective)
	}
}

func TestWaiterHeapRecomputeEffectiveCapsAt100(t *testing.T) {
	clock := clockz.NewFakeClock()
	now := clock.Now()
	h := waiterHeap{&waiter{id: 1, priority: 95, submittedAt: now.Add(-1000 * time.Second)}}
	h.recomputeEffective(now, 10)
	if h[0].effective != 100 {
		t.Fatalf("expected effective priority capped at 100, got %d", h[0].effective)
	}
}
