package exec

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/loom-run/loom/ir"
	"github.com/loom-run/loom/sched"
	"github.com/loom-run/loom/values"
)

func intPtr(i int) *int { return &i }

func TestExecuteWithOptionsFastPath(t *testing.T) {
	ex := NewExecutor(nil, nil)
	called := 0
	op := func(ctx context.Context, v values.CValue) (values.CValue, error) {
		called++
		return values.Int(v.Int + 1), nil
	}

	out, err := ex.ExecuteWithOptions(context.Background(), "mod-1", "increment", op, ir.ModuleCallOptions{}, values.CType{Kind: values.KindInt}, values.Int(41), nil)
	if err != nil {
		t.Fatalf("ExecuteWithOptions: %v", err)
	}
	if out.Int != 42 {
		t.Fatalf("expected 42, got %d", out.Int)
	}
	if called != 1 {
		t.Fatalf("expected op called once, got %d", called)
	}
}

func TestExecuteWithOptionsRetrySucceedsAfterFailures(t *testing.T) {
	ex := NewExecutor(nil, nil)
	attempts := 0
	op := func(ctx context.Context, v values.CValue) (values.CValue, error) {
		attempts++
		if attempts < 3 {
			return values.CValue{}, errors.New("transient")
		}
		return values.String("ok"), nil
	}

	maxAttempts := 3
	opts := ir.ModuleCallOptions{Retry: intPtr(maxAttempts - 1), Backoff: "Fixed", DelayMs: intPtr(1)}
	out, err := ex.ExecuteWithOptions(context.Background(), "mod-retry", "flaky", op, opts, values.CType{Kind: values.KindString}, values.CValue{}, nil)
	if err != nil {
		t.Fatalf("ExecuteWithOptions: %v", err)
	}
	if out.Str != "ok" {
		t.Fatalf("expected ok, got %q", out.Str)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteWithOptionsRetryExponentialBackoffGrows(t *testing.T) {
	ex := NewExecutor(nil, nil)
	var gaps []time.Duration
	last := time.Time{}
	attempts := 0
	op := func(ctx context.Context, v values.CValue) (values.CValue, error) {
		now := time.Now()
		if !last.IsZero() {
			gaps = append(gaps, now.Sub(last))
		}
		last = now
		attempts++
		if attempts < 3 {
			return values.CValue{}, errors.New("transient")
		}
		return values.String("ok"), nil
	}

	opts := ir.ModuleCallOptions{Retry: intPtr(2), Backoff: "Exponential", DelayMs: intPtr(20)}
	if _, err := ex.ExecuteWithOptions(context.Background(), "mod-backoff", "flaky", op, opts, values.CType{Kind: values.KindString}, values.CValue{}, nil); err != nil {
		t.Fatalf("ExecuteWithOptions: %v", err)
	}
	if len(gaps) != 2 {
		t.Fatalf("expected 2 retry gaps, got %d", len(gaps))
	}
	if gaps[1] < (gaps[0]*3)/2 {
		t.Fatalf("expected the second gap to be at least 1.5x the first, got %v then %v", gaps[0], gaps[1])
	}
}

func TestExecuteWithOptionsFallbackActivates(t *testing.T) {
	ex := NewExecutor(nil, nil)
	primary := func(ctx context.Context, v values.CValue) (values.CValue, error) {
		return values.CValue{}, errors.New("primary down")
	}
	fallback := func(ctx context.Context, v values.CValue) (values.CValue, error) {
		return values.String("fallback value"), nil
	}

	out, err := ex.ExecuteWithOptions(context.Background(), "mod-fb", "withFallback", primary, ir.ModuleCallOptions{OnError: ""}, values.CType{Kind: values.KindString}, values.CValue{}, fallback)
	if err != nil {
		t.Fatalf("ExecuteWithOptions: %v", err)
	}
	if out.Str != "fallback value" {
		t.Fatalf("expected fallback value, got %q", out.Str)
	}
}

func TestExecuteWithOptionsErrorStrategySkip(t *testing.T) {
	ex := NewExecutor(nil, nil)
	op := func(ctx context.Context, v values.CValue) (values.CValue, error) {
		return values.CValue{}, errors.New("boom")
	}

	out, err := ex.ExecuteWithOptions(context.Background(), "mod-skip", "skippy", op, ir.ModuleCallOptions{OnError: "Skip"}, values.CType{Kind: values.KindInt}, values.CValue{}, nil)
	if err != nil {
		t.Fatalf("expected Skip to absorb the error, got %v", err)
	}
	if out.Kind != values.KindInt || out.Int != 0 {
		t.Fatalf("expected zero Int value, got %+v", out)
	}
}

func TestExecuteWithOptionsErrorStrategyPropagate(t *testing.T) {
	ex := NewExecutor(nil, nil)
	wantErr := errors.New("boom")
	op := func(ctx context.Context, v values.CValue) (values.CValue, error) {
		return values.CValue{}, wantErr
	}

	_, err := ex.ExecuteWithOptions(context.Background(), "mod-prop", "propagates", op, ir.ModuleCallOptions{OnError: "Propagate"}, values.CType{Kind: values.KindInt}, values.CValue{}, nil)
	if err == nil {
		t.Fatal("expected the error to propagate")
	}
}

func TestExecuteWithOptionsCacheSharesResultAcrossCalls(t *testing.T) {
	ex := NewExecutor(nil, nil)
	calls := 0
	op := func(ctx context.Context, v values.CValue) (values.CValue, error) {
		calls++
		return values.Int(calls), nil
	}

	opts := ir.ModuleCallOptions{CacheMs: intPtr(60_000)}
	first, err := ex.ExecuteWithOptions(context.Background(), "mod-cache", "cached", op, opts, values.CType{Kind: values.KindInt}, values.Int(7), nil)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := ex.ExecuteWithOptions(context.Background(), "mod-cache", "cached", op, opts, values.CType{Kind: values.KindInt}, values.Int(7), nil)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if first.Int != second.Int {
		t.Fatalf("expected cached result to be reused: %d vs %d", first.Int, second.Int)
	}
	if calls != 1 {
		t.Fatalf("expected op to run once under cache, got %d calls", calls)
	}
}

func TestExecuteWithOptionsTimeoutCancelsSlowOp(t *testing.T) {
	ex := NewExecutor(nil, nil)
	op := func(ctx context.Context, v values.CValue) (values.CValue, error) {
		select {
		case <-time.After(200 * time.Millisecond):
			return values.String("too slow"), nil
		case <-ctx.Done():
			return values.CValue{}, ctx.Err()
		}
	}

	opts := ir.ModuleCallOptions{TimeoutMs: intPtr(10)}
	_, err := ex.ExecuteWithOptions(context.Background(), "mod-timeout", "slow", op, opts, values.CType{Kind: values.KindString}, values.CValue{}, nil)
	if err == nil {
		t.Fatal("expected a timeout error")
	}
}

func TestExecuteWithOptionsCircuitBreakerOpensAfterFailures(t *testing.T) {
	ex := NewExecutor(nil, nil)
	op := func(ctx context.Context, v values.CValue) (values.CValue, error) {
		return values.CValue{}, errors.New("down")
	}
	opts := ir.ModuleCallOptions{
		CircuitBreaker: &ir.CircuitBreakerConfig{FailureThreshold: 2, ResetDurationMs: 60_000, HalfOpenMaxProbes: 1},
	}

	for i := 0; i < 2; i++ {
		if _, err := ex.ExecuteWithOptions(context.Background(), "mod-cb", "breaks", op, opts, values.CType{Kind: values.KindInt}, values.CValue{}, nil); err == nil {
			t.Fatalf("call %d: expected the underlying error", i)
		}
	}

	_, err := ex.ExecuteWithOptions(context.Background(), "mod-cb", "breaks", op, opts, values.CType{Kind: values.KindInt}, values.CValue{}, nil)
	if err == nil {
		t.Fatal("expected the breaker to be open and reject the third call")
	}
}

func TestExecuteWithOptionsSchedulerRejectsOnClosedScheduler(t *testing.T) {
	scheduler := sched.New(sched.Config{MaxConcurrency: 1, MaxQueueSize: 1})
	scheduler.Close()
	ex := NewExecutor(nil, scheduler)

	op := func(ctx context.Context, v values.CValue) (values.CValue, error) {
		return v, nil
	}
	opts := ir.ModuleCallOptions{Priority: intPtr(10)}
	_, err := ex.ExecuteWithOptions(context.Background(), "mod-sched", "scheduled", op, opts, values.CType{Kind: values.KindInt}, values.Int(1), nil)
	if err != sched.ErrClosed {
		t.Fatalf("expected sched.ErrClosed, got %v", err)
	}
}

func TestExecuteWithOptionsSchedulerAdmitsAndRuns(t *testing.T) {
	scheduler := sched.New(sched.Config{MaxConcurrency: 2, MaxQueueSize: 4})
	defer scheduler.Close()
	ex := NewExecutor(nil, scheduler)

	op := func(ctx context.Context, v values.CValue) (values.CValue, error) {
		return values.Int(v.Int + 1), nil
	}
	opts := ir.ModuleCallOptions{Priority: intPtr(75)}
	out, err := ex.ExecuteWithOptions(context.Background(), "mod-sched-2", "scheduled", op, opts, values.CType{Kind: values.KindInt}, values.Int(9), nil)
	if err != nil {
		t.Fatalf("ExecuteWithOptions: %v", err)
	}
	if out.Int != 10 {
		t.Fatalf("expected 10, got %d", out.Int)
	}
	if scheduler.Active() != 0 {
		t.Fatalf("expected the permit released after completion, got %d active", scheduler.Active())
	}
}
