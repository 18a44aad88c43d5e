package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryPolicy retries an operation with exponential backoff. The delay for
// attempt n is Multiplier * 2^n clamped to [Min, Max].
type RetryPolicy struct {
	Attempts   int
	Multiplier time.Duration
	Min        time.Duration
	Max        time.Duration
}

// DefaultRetryPolicy matches the backoff used against the warehouses and
// the metadata catalog: three attempts, waits between 4 and 10 seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:   3,
		Multiplier: 2 * time.Second,
		Min:        4 * time.Second,
		Max:        10 * time.Second,
	}
}

// RetryExecutor runs operations under a RetryPolicy. Permanent errors, as
// classified by IsRetryableError, abort immediately.
type RetryExecutor struct {
	policy RetryPolicy
	clock  Clock
	logger *slog.Logger
}

func NewRetryExecutor(policy RetryPolicy, clock Clock, logger *slog.Logger) *RetryExecutor {
	if policy.Attempts <= 0 {
		policy.Attempts = 1
	}
	if clock == nil {
		clock = NewRealClock()
	}
	return &RetryExecutor{policy: policy, clock: clock, logger: logger}
}

// Execute runs fn up to the configured number of attempts.
func (re *RetryExecutor) Execute(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < re.policy.Attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				re.logger.Debug("operation succeeded after retry", "op", op, "attempt", attempt+1)
			}
			return nil
		}
		lastErr = err

		if !IsRetryableError(err) {
			re.logger.Debug("operation failed with permanent error", "op", op, "error", err)
			return err
		}
		if attempt == re.policy.Attempts-1 {
			break
		}

		delay := re.policy.delay(attempt)
		re.logger.Warn("operation failed, retrying",
			"op", op, "attempt", attempt+1, "attempts", re.policy.Attempts, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-re.clock.After(delay):
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, re.policy.Attempts, lastErr)
}

// delay computes the wait before the next attempt after a failed attempt n.
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.Multiplier
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > p.Max {
			break
		}
	}
	if d < p.Min {
		d = p.Min
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	return d
}
