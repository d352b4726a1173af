package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kiranshivaraju/logsweep/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{Attempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	got, err := retry.Do(context.Background(), fastPolicy(3), func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	got, err := retry.Do(context.Background(), fastPolicy(3), func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errTransient
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsBudget(t *testing.T) {
	calls := 0
	_, err := retry.Do(context.Background(), fastPolicy(3), func(context.Context) (int, error) {
		calls++
		return 0, errTransient
	})
	assert.ErrorIs(t, err, errTransient)
	assert.Contains(t, err.Error(), "all 3 attempts failed")
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	_, err := retry.Do(context.Background(), fastPolicy(3), func(context.Context) (int, error) {
		calls++
		return 0, retry.Permanent(errTransient)
	})
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, errTransient, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetryableFilter(t *testing.T) {
	calls := 0
	p := fastPolicy(5)
	p.Retryable = func(err error) bool { return !errors.Is(err, errTransient) }

	_, err := retry.Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, errTransient
	})
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := retry.Policy{Attempts: 3, BaseDelay: time.Hour}

	calls := 0
	_, err := retry.Do(ctx, p, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errTransient
	})
	assert.ErrorIs(t, err, errTransient)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_SingleAttemptReturnsErrorUnwrapped(t *testing.T) {
	_, err := retry.Do(context.Background(), fastPolicy(1), func(context.Context) (int, error) {
		return 0, errTransient
	})
	assert.Equal(t, errTransient, err)
}
