package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fileforge/fileforge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayFor_BoundarySequence(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: 5 * time.Second, BackoffMultiplier: 2, Jitter: false}
	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		5 * time.Second,
		5 * time.Second,
	}
	for attempt, exp := range want {
		assert.Equal(t, exp, delayFor(cfg, attempt), "attempt %d", attempt)
	}
}

func TestDelayFor_JitterStaysWithinBoundAndFloor(t *testing.T) {
	cfg := Config{InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, BackoffMultiplier: 2, Jitter: true}
	for attempt := 0; attempt < 5; attempt++ {
		d := delayFor(cfg, attempt)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond, "jittered delay never drops below the floor")
		base := min(cfg.InitialDelay<<attempt, cfg.MaxDelay)
		assert.LessOrEqual(t, d, max(100*time.Millisecond, base+base/10), "jittered delay stays within +10% of the unjittered delay")
	}
}

func TestExecute_SucceedsOnFirstAttempt(t *testing.T) {
	exec := NewExecutor(Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiplier: 2})
	calls := 0
	result, err := Execute(context.Background(), exec, func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
}

func TestExecute_RetriesTransientFailuresThenSucceeds(t *testing.T) {
	exec := NewExecutor(Config{MaxRetries: 5, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiplier: 1})
	calls := 0
	result, err := Execute(context.Background(), exec, func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("connection reset by peer")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, calls)
}

func TestExecute_PermanentErrorAbortsImmediately(t *testing.T) {
	exec := NewExecutor(Config{MaxRetries: 5, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiplier: 1})
	calls := 0
	_, err := Execute(context.Background(), exec, func(ctx context.Context) (int, error) {
		calls++
		return 0, domain.PermanentErrorf("invalid file")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Len(t, exhausted.Attempts, 1)
	assert.Equal(t, Permanent, exhausted.Attempts[0].Classification)
}

func TestExecute_ExhaustsRetriesAndWrapsHistory(t *testing.T) {
	exec := NewExecutor(Config{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiplier: 1})
	calls := 0
	_, err := Execute(context.Background(), exec, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("timeout reaching upstream")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls) // MaxRetries+1 total attempts

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Len(t, exhausted.Attempts, 3)
	for _, a := range exhausted.Attempts {
		assert.False(t, a.Success)
		assert.Equal(t, Retryable, a.Classification)
	}
}

func TestExecute_HonorsContextCancellation(t *testing.T) {
	exec := NewExecutor(Config{MaxRetries: 10, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, BackoffMultiplier: 2})
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := Execute(ctx, exec, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("temporary network error")
	})
	require.Error(t, err)
	assert.Less(t, calls, 11)
}
