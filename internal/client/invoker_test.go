package client

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap"
)

// recordedSleeps replaces the invoker's pause so tests count retries without
// waiting.
func recordedSleeps(inv *Invoker) *[]time.Duration {
	var sleeps []time.Duration
	inv.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return &sleeps
}

func TestInvokeSucceedsFirstAttempt(t *testing.T) {
	inv := NewInvoker(zap.NewNop())
	sleeps := recordedSleeps(inv)

	calls := 0
	ok, err := inv.Invoke(context.Background(), "describe_instances", Options{}, func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil || !ok {
		t.Fatalf("Invoke() = (%v, %v), want (true, nil)", ok, err)
	}
	if calls != 1 || len(*sleeps) != 0 {
		t.Errorf("calls = %d, sleeps = %d, want 1 and 0", calls, len(*sleeps))
	}
}

func TestInvokeRefusedExhaustsBoundedRetries(t *testing.T) {
	inv := NewInvoker(zap.NewNop())
	sleeps := recordedSleeps(inv)

	calls := 0
	ok, err := inv.Invoke(context.Background(), "run_instances", Options{}, func(ctx context.Context) error {
		calls++
		return fmt.Errorf("dial failed: %w", syscall.ECONNREFUSED)
	})
	if ok {
		t.Fatal("Invoke() returned ok for an unreachable agent")
	}

	var unavailable *ServiceUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("Invoke() error = %v, want ServiceUnavailableError", err)
	}
	if unavailable.Call != "run_instances" {
		t.Errorf("Call = %q, want run_instances", unavailable.Call)
	}
	if len(*sleeps) != 5 {
		t.Fatalf("retry sleeps = %d, want exactly 5", len(*sleeps))
	}
	for _, d := range *sleeps {
		if d != time.Second {
			t.Errorf("retry sleep = %v, want 1s", d)
		}
	}
	if calls != 6 {
		t.Errorf("attempts = %d, want 6", calls)
	}
}

func TestInvokeRefusedToleratedReturnsSentinel(t *testing.T) {
	inv := NewInvoker(zap.NewNop())
	recordedSleeps(inv)

	ok, err := inv.Invoke(context.Background(), "describe_instances", Options{TolerateFailure: true}, func(ctx context.Context) error {
		return syscall.ECONNREFUSED
	})
	if ok || err != nil {
		t.Errorf("Invoke() = (%v, %v), want the (false, nil) sentinel", ok, err)
	}
}

func TestInvokeTimeoutToleratedReturnsSentinelImmediately(t *testing.T) {
	inv := NewInvoker(zap.NewNop())
	sleeps := recordedSleeps(inv)

	calls := 0
	ok, err := inv.Invoke(context.Background(), "describe_instances", Options{
		Timeout:         time.Minute,
		TolerateFailure: true,
	}, func(ctx context.Context) error {
		calls++
		return context.DeadlineExceeded
	})
	if ok || err != nil {
		t.Errorf("Invoke() = (%v, %v), want the (false, nil) sentinel", ok, err)
	}
	if calls != 1 || len(*sleeps) != 0 {
		t.Errorf("calls = %d, sleeps = %d, want a single attempt with no retry", calls, len(*sleeps))
	}
}

func TestInvokeTimeoutRetriesUntilSuccess(t *testing.T) {
	inv := NewInvoker(zap.NewNop())
	recordedSleeps(inv)

	calls := 0
	ok, err := inv.Invoke(context.Background(), "describe_instances", Options{Timeout: time.Minute}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return context.DeadlineExceeded
		}
		return nil
	})
	if !ok || err != nil {
		t.Fatalf("Invoke() = (%v, %v), want (true, nil)", ok, err)
	}
	if calls != 3 {
		t.Errorf("attempts = %d, want 3", calls)
	}
}

func TestInvokeTransportNoiseAlwaysRetried(t *testing.T) {
	inv := NewInvoker(zap.NewNop())
	sleeps := recordedSleeps(inv)

	calls := 0
	// RetryOnError is off; transport noise must still be retried.
	ok, err := inv.Invoke(context.Background(), "terminate_instances", Options{}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("write: %w", syscall.ECONNRESET)
		}
		return nil
	})
	if !ok || err != nil {
		t.Fatalf("Invoke() = (%v, %v), want (true, nil)", ok, err)
	}
	if len(*sleeps) != 2 {
		t.Errorf("retry sleeps = %d, want 2", len(*sleeps))
	}
}

func TestInvokeUnclassifiedFailsWhenRetryDisabled(t *testing.T) {
	inv := NewInvoker(zap.NewNop())
	recordedSleeps(inv)

	boom := errors.New("boom")
	ok, err := inv.Invoke(context.Background(), "attach_disk", Options{}, func(ctx context.Context) error {
		return boom
	})
	if ok {
		t.Fatal("Invoke() returned ok for a failing call")
	}

	var unexpected *UnexpectedCallError
	if !errors.As(err, &unexpected) {
		t.Fatalf("Invoke() error = %v, want UnexpectedCallError", err)
	}
	if unexpected.Call != "attach_disk" || unexpected.Kind != "unknown" {
		t.Errorf("error = %+v, want call attach_disk, kind unknown", unexpected)
	}
	if !errors.Is(err, boom) {
		t.Error("UnexpectedCallError does not wrap the original error")
	}
}

func TestInvokeUnclassifiedRetriedWhenEnabled(t *testing.T) {
	inv := NewInvoker(zap.NewNop())
	sleeps := recordedSleeps(inv)

	calls := 0
	ok, err := inv.Invoke(context.Background(), "run_instances", Options{RetryOnError: true}, func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("flaky")
		}
		return nil
	})
	if !ok || err != nil {
		t.Fatalf("Invoke() = (%v, %v), want (true, nil)", ok, err)
	}
	if len(*sleeps) != 1 {
		t.Errorf("retry sleeps = %d, want 1", len(*sleeps))
	}
}

func TestInvokeStopsWhenContextCancelled(t *testing.T) {
	inv := NewInvoker(zap.NewNop())
	recordedSleeps(inv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := inv.Invoke(ctx, "run_instances", Options{RetryOnError: true}, func(ctx context.Context) error {
		return errors.New("flaky")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Invoke() error = %v, want context.Canceled", err)
	}
}
