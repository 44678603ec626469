package queue

import (
	"math/rand"
	"time"
)

// RetryPolicy decides how often and how late a failed task runs again.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration
	// Jitter is the fraction of the delay that is randomized, 0..1.
	Jitter float64
}

// ShouldRetry reports whether a task that just failed on attempt may run again.
func (p RetryPolicy) ShouldRetry(attempt int, err error) bool {
	if IsPermanent(err) {
		return false
	}
	return attempt < p.MaxAttempts
}

// Backoff returns the delay before the run following a failed attempt:
// Base*2^(attempt-1), capped at Max, with up to Jitter of it randomized.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.Base
	for i := 1; i < attempt && i < 32; i++ {
		if p.Max > 0 && delay >= p.Max {
			break
		}
		delay *= 2
	}
	if p.Max > 0 && delay > p.Max {
		delay = p.Max
	}
	if p.Jitter > 0 && delay > 0 {
		spread := time.Duration(float64(delay) * p.Jitter)
		if spread > 0 {
			delay = delay - spread + time.Duration(rand.Int63n(int64(spread)+1))
		}
	}
	return delay
}
