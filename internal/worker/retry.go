package worker

import "time"

// RetryPolicy describes the backoff applied between delivery attempts
// of a single outbox event.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// NextDelay returns how long to wait before the given attempt.
// Attempts are 1-based; the first retry waits InitialDelay, each
// subsequent one multiplies by BackoffFactor up to MaxDelay.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	initial := r.InitialDelay
	if initial <= 0 {
		initial = time.Second
	}
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = 2
	}

	delay := float64(initial)
	for i := 1; i < attempt; i++ {
		delay *= factor
		if r.MaxDelay > 0 && delay >= float64(r.MaxDelay) {
			return r.MaxDelay
		}
	}

	if delay <= 0 {
		return time.Second
	}
	return time.Duration(delay)
}
