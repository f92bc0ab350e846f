// Package retry wraps an operation with exponential backoff and a
// caller-supplied retry predicate.
package retry

import (
	"context"
	"math/rand"
	"time"
)

const (
	// DefaultBaseDelay is the first backoff interval.
	DefaultBaseDelay = 1 * time.Second

	// DefaultMaxDelay caps the interval between attempts.
	DefaultMaxDelay = 30 * time.Minute

	// DefaultJitter is the maximum random addition to each interval.
	DefaultJitter = 5 * time.Second
)

// Policy describes how an operation is retried. Retryable classifies which
// errors are worth another attempt; everything else terminates the loop
// immediately. MaxRetries bounds the number of retries after the first
// attempt and Timeout bounds total elapsed time; zero means unbounded, and
// when both are set whichever fires first stops the loop.
type Policy struct {
	Retryable  func(error) bool
	MaxRetries int
	Timeout    time.Duration

	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    time.Duration

	// OnRetry is invoked before each backoff sleep.
	OnRetry func(attempt int, delay time.Duration, err error)

	// Sleep is swappable for tests; defaults to a context-aware sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Do runs op until it succeeds, fails terminally, or the stop condition
// fires. The last retryable error is returned when the loop gives up.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	baseDelay := p.BaseDelay
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	jitter := p.Jitter
	if jitter < 0 {
		jitter = DefaultJitter
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	start := time.Now()
	delay := baseDelay

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		if p.MaxRetries > 0 && attempt > p.MaxRetries {
			return err
		}
		if p.Timeout > 0 && time.Since(start) >= p.Timeout {
			return err
		}

		wait := delay
		if jitter > 0 {
			wait += time.Duration(rand.Int63n(int64(jitter)))
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, err)
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

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
