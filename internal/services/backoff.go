package services

import "time"

const (
	defaultRetryBaseDelay = time.Second
	defaultRetryMaxDelay  = 10 * time.Second
)

// Backoff computes exponential retry delays.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff returns the repository retry timing: 1s base doubling to a
// 10s cap.
func DefaultBackoff() Backoff {
	return Backoff{Base: defaultRetryBaseDelay, Max: defaultRetryMaxDelay}
}

// Delay returns the wait before the next try after the given 1-based attempt.
// Attempt 1 -> base, attempt 2 -> base*2, attempt 3 -> base*4, capped at Max.
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = defaultRetryBaseDelay
	}
	maxDelay := b.Max
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	return b.Clamp(delay)
}

// Clamp bounds a delay to the backoff maximum. Provider-supplied holds pass
// through here so a hostile Retry-After cannot stall a job.
func (b Backoff) Clamp(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	maxDelay := b.Max
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

// Sleeper performs retry waits. Tests inject one to avoid real sleeps.
type Sleeper func(time.Duration)
