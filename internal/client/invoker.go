package client

import (
	"context"
	"time"

	"go.uber.org/zap"

	"vmbroker/internal/rpc"
)

const (
	// retryPause is the delay between retried attempts.
	retryPause = time.Second
	// maxRefusedRetries bounds retries when the agent is unreachable.
	maxRefusedRetries = 5
)

// Options controls how one remote call is retried.
type Options struct {
	// Timeout bounds each attempt, including connect time. Zero means no
	// timeout.
	Timeout time.Duration
	// RetryOnError retries unclassified failures instead of surfacing them.
	RetryOnError bool
	// TolerateFailure degrades exhausted connection retries and timeouts to
	// a "no result" return instead of an error.
	TolerateFailure bool
}

// Operation is a single remote call attempt.
type Operation func(ctx context.Context) error

// Invoker executes remote calls under a timeout and a classified retry
// policy. Connection refusals get a bounded number of retries, transport
// noise is always retried, timeouts retry until the caller's context expires,
// and anything else is governed by Options.RetryOnError.
type Invoker struct {
	log   *zap.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

// NewInvoker creates an invoker that logs retries to log.
func NewInvoker(log *zap.Logger) *Invoker {
	return &Invoker{log: log, sleep: sleepContext}
}

// Invoke runs op until it succeeds, its failure class gives up, or ctx is
// done. It returns (true, nil) on success and (false, nil) as the "no
// result" sentinel when a tolerated failure was absorbed.
func (inv *Invoker) Invoke(ctx context.Context, label string, opts Options, op Operation) (bool, error) {
	refused := 0

	for {
		err := inv.attempt(ctx, opts.Timeout, op)
		if err == nil {
			return true, nil
		}
		if ctx.Err() != nil {
			// Caller cancelled or its deadline passed; no retry loop
			// survives that.
			return false, ctx.Err()
		}

		class := rpc.Classify(err)
		switch class {
		case rpc.FailureRefused:
			refused++
			if refused > maxRefusedRetries {
				if opts.TolerateFailure {
					inv.log.Warn("agent unreachable, tolerated",
						zap.String("call", label), zap.Error(err))
					return false, nil
				}
				inv.log.Error("agent unreachable, giving up",
					zap.String("call", label),
					zap.Int("attempts", refused),
					zap.Error(err))
				return false, &ServiceUnavailableError{Call: label, Err: err}
			}
			inv.log.Warn("agent unreachable, retrying",
				zap.String("call", label),
				zap.Int("attempt", refused),
				zap.Error(err))
			if err := inv.sleep(ctx, retryPause); err != nil {
				return false, err
			}

		case rpc.FailureTimeout:
			refused = 0
			if opts.TolerateFailure {
				inv.log.Warn("call timed out, tolerated",
					zap.String("call", label), zap.Error(err))
				return false, nil
			}
			// Historical behavior: timeouts retry without bound. The
			// caller's context is the only cap.
			inv.log.Warn("call timed out, retrying",
				zap.String("call", label), zap.Error(err))

		case rpc.FailureTransport:
			refused = 0
			inv.log.Warn("transport error, retrying",
				zap.String("call", label), zap.Error(err))
			if err := inv.sleep(ctx, retryPause); err != nil {
				return false, err
			}

		default:
			refused = 0
			if !opts.RetryOnError {
				inv.log.Error("call failed",
					zap.String("call", label),
					zap.String("kind", class.String()),
					zap.Error(err))
				return false, &UnexpectedCallError{Call: label, Kind: class.String(), Err: err}
			}
			inv.log.Warn("call failed, retrying",
				zap.String("call", label), zap.Error(err))
			if err := inv.sleep(ctx, retryPause); err != nil {
				return false, err
			}
		}
	}
}

func (inv *Invoker) attempt(ctx context.Context, timeout time.Duration, op Operation) error {
	if timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(attemptCtx)
}

// sleepContext pauses for d but wakes early when ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
