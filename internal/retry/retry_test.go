package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func instantSleep(ctx context.Context, d time.Duration) error { return nil }

func TestDo_SucceedsAfterRetryableFailures(t *testing.T) {
	attempts := 0
	policy := Policy{
		Retryable: func(err error) bool { return errors.Is(err, errTransient) },
		Sleep:     instantSleep,
	}

	err := policy.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	terminal := errors.New("terminal")
	attempts := 0
	policy := Policy{
		Retryable: func(err error) bool { return errors.Is(err, errTransient) },
		Sleep:     instantSleep,
	}

	err := policy.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return terminal
	})

	require.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, attempts)
}

func TestDo_MaxRetriesBoundsRetriesNotAttempts(t *testing.T) {
	attempts := 0
	policy := Policy{
		Retryable:  func(error) bool { return true },
		MaxRetries: 2,
		Sleep:      instantSleep,
	}

	err := policy.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errTransient
	})

	require.ErrorIs(t, err, errTransient)
	// One initial attempt plus two retries.
	assert.Equal(t, 3, attempts)
}

func TestDo_TimeoutStopsLoop(t *testing.T) {
	attempts := 0
	policy := Policy{
		Retryable: func(error) bool { return true },
		Timeout:   30 * time.Millisecond,
		BaseDelay: time.Millisecond,
		Jitter:    0,
		Sleep: func(ctx context.Context, d time.Duration) error {
			time.Sleep(20 * time.Millisecond)
			return nil
		},
	}

	err := policy.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errTransient
	})

	require.ErrorIs(t, err, errTransient)
	assert.LessOrEqual(t, attempts, 3)
}

func TestDo_DelayDoublesAndCaps(t *testing.T) {
	var delays []time.Duration
	policy := Policy{
		Retryable:  func(error) bool { return true },
		MaxRetries: 4,
		BaseDelay:  10 * time.Millisecond,
		MaxDelay:   25 * time.Millisecond,
		Jitter:     0,
		Sleep: func(ctx context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
	}

	_ = policy.Do(context.Background(), func(ctx context.Context) error {
		return errTransient
	})

	require.Len(t, delays, 4)
	assert.Equal(t, 10*time.Millisecond, delays[0])
	assert.Equal(t, 20*time.Millisecond, delays[1])
	assert.Equal(t, 25*time.Millisecond, delays[2])
	assert.Equal(t, 25*time.Millisecond, delays[3])
}

func TestDo_OnRetryObservesAttempts(t *testing.T) {
	var observed []int
	policy := Policy{
		Retryable:  func(error) bool { return true },
		MaxRetries: 2,
		Sleep:      instantSleep,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			observed = append(observed, attempt)
		},
	}

	_ = policy.Do(context.Background(), func(ctx context.Context) error {
		return errTransient
	})

	assert.Equal(t, []int{1, 2}, observed)
}

func TestDo_CanceledContextStopsSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := Policy{
		Retryable: func(error) bool { return true },
		BaseDelay: time.Hour,
	}

	err := policy.Do(ctx, func(ctx context.Context) error {
		return errTransient
	})

	require.ErrorIs(t, err, context.Canceled)
}
