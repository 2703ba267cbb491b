package notification

import "time"

// baseRetryDelay is the backoff unit: attempt n waits base * 2^n.
const baseRetryDelay = 5 * time.Minute

// maxRetryDelay caps the backoff so raising MaxAttempts cannot produce
// unbounded waits. Unreachable at the default MaxAttempts of 3.
const maxRetryDelay = 6 * time.Hour

// RetryScheduler computes retry eligibility and backoff timing. It runs no
// clock of its own; the poller that discovers due records drives it.
type RetryScheduler struct{}

// NewRetryScheduler creates a RetryScheduler.
func NewRetryScheduler() *RetryScheduler {
	return &RetryScheduler{}
}

// NextRetryDelay returns the exponential backoff delay for the given attempt
// number: attempt 1 → 10m, attempt 2 → 20m, attempt 3 → 40m.
func (s *RetryScheduler) NextRetryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := baseRetryDelay * (1 << uint(attempt))
	if d > maxRetryDelay || d <= 0 {
		return maxRetryDelay
	}
	return d
}

// CanRetry reports whether the record is eligible for a retry at the given
// time: failed status, attempts remaining, and not expired.
func (s *RetryScheduler) CanRetry(rec *Record, now time.Time) bool {
	return rec.CanRetry(now)
}
