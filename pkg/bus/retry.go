package bus

import (
	"math"
	"time"
)

// RetryPolicy configures the bus's exponential backoff (spec §4.4:
// "exponential backoff min(initial x multiplier^retry, maxBackoff) with
// defaults 1s, x2, 30s cap, 3 retries").
type RetryPolicy struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultRetryPolicy returns the spec's documented defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2,
	}
}

// Backoff returns the delay before retry attempt n (n starts at 1 for
// the first retry after an initial failure).
func (p RetryPolicy) Backoff(n int) time.Duration {
	delay := float64(p.InitialBackoff) * math.Pow(p.BackoffMultiplier, float64(n-1))
	if delay > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	return time.Duration(delay)
}

// ExceedsRetries reports whether retryCount has exhausted the policy.
func (p RetryPolicy) ExceedsRetries(retryCount int) bool {
	return retryCount > p.MaxRetries
}
