package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// zeroDelayPolicy removes all waits so tests do not sleep.
func zeroDelayPolicy(attempts int) RetryPolicy {
	return RetryPolicy{Attempts: attempts}
}

func TestRetryExecutorSucceedsFirstAttempt(t *testing.T) {
	re := NewRetryExecutor(zeroDelayPolicy(3), NewFakeClock(time.Now()), testLogger())

	calls := 0
	err := re.Execute(context.Background(), "op", func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryExecutorRetriesTransientErrors(t *testing.T) {
	re := NewRetryExecutor(zeroDelayPolicy(3), NewFakeClock(time.Now()), testLogger())

	calls := 0
	err := re.Execute(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExecutorExhaustsAttempts(t *testing.T) {
	re := NewRetryExecutor(zeroDelayPolicy(3), NewFakeClock(time.Now()), testLogger())

	calls := 0
	err := re.Execute(context.Background(), "query", func(context.Context) error {
		calls++
		return fmt.Errorf("read: %w", ErrConnectionUnavailable)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, ErrConnectionUnavailable)
	assert.Contains(t, err.Error(), "query failed after 3 attempts")
}

func TestRetryExecutorPermanentErrorAbortsImmediately(t *testing.T) {
	re := NewRetryExecutor(zeroDelayPolicy(5), NewFakeClock(time.Now()), testLogger())

	calls := 0
	err := re.Execute(context.Background(), "op", func(context.Context) error {
		calls++
		return fmt.Errorf("bad spec: %w", ErrMalformedAssertion)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, ErrMalformedAssertion)
}

func TestRetryExecutorContextCancelledDuringBackoff(t *testing.T) {
	// Delay is non-zero and the fake clock never advances, so the executor
	// must bail out on context cancellation instead.
	policy := RetryPolicy{Attempts: 3, Multiplier: time.Second, Min: time.Second, Max: time.Second}
	re := NewRetryExecutor(policy, NewFakeClock(time.Now()), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	calls := 0
	go func() {
		defer close(done)
		err := re.Execute(ctx, "op", func(context.Context) error {
			calls++
			return errors.New("timeout")
		})
		assert.ErrorIs(t, err, context.Canceled)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("executor did not observe context cancellation")
	}
	assert.Equal(t, 1, calls)
}

func TestRetryPolicyDelay(t *testing.T) {
	p := DefaultRetryPolicy()

	// 2s doubles per attempt but is clamped to [4s, 10s].
	assert.Equal(t, 4*time.Second, p.delay(0))
	assert.Equal(t, 4*time.Second, p.delay(1))
	assert.Equal(t, 8*time.Second, p.delay(2))
	assert.Equal(t, 10*time.Second, p.delay(3))
	assert.Equal(t, 10*time.Second, p.delay(10))
}
