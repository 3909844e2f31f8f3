package safety

import (
	"sync"
	"time"
)

// RateLimits is the rolling-window maxima the rate limiter gate enforces
// (spec §4.6 gate 3 defaults: 10/minute, 100/hour, 500/day).
type RateLimits struct {
	PerMinute int64
	PerHour   int64
	PerDay    int64
}

// DefaultRateLimits returns the spec's documented defaults.
func DefaultRateLimits() RateLimits {
	return RateLimits{PerMinute: 10, PerHour: 100, PerDay: 500}
}

type window struct {
	duration time.Duration
	limit    int64
}

func (l RateLimits) windows() []window {
	return []window{
		{time.Minute, l.PerMinute},
		{time.Hour, l.PerHour},
		{24 * time.Hour, l.PerDay},
	}
}

// rollingCounter is an in-memory rolling-window usage tracker, generalized
// from the teacher's ratelimit.MemoryStore (one amount+windowEnd record per
// key) down to a single scope (change id) instead of session/user.
type rollingCounter struct {
	mu      sync.Mutex
	amount  map[time.Duration]int64
	windowEnd map[time.Duration]time.Time
	cooldownUntil time.Time
}

// RateLimiter enforces RateLimits per change id plus the post-failure
// cooldown (spec §4.6 gate 3).
type RateLimiter struct {
	limits RateLimits
	mu     sync.Mutex
	byChange map[string]*rollingCounter
}

// NewRateLimiter constructs a RateLimiter with the given limits.
func NewRateLimiter(limits RateLimits) *RateLimiter {
	return &RateLimiter{limits: limits, byChange: make(map[string]*rollingCounter)}
}

func (rl *RateLimiter) counterFor(changeID string) *rollingCounter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	c, ok := rl.byChange[changeID]
	if !ok {
		c = &rollingCounter{amount: make(map[time.Duration]int64), windowEnd: make(map[time.Duration]time.Time)}
		rl.byChange[changeID] = c
	}
	return c
}

// Check reports whether changeID may proceed without recording a new
// attempt, returning the limit-breach reason and cooldown detail when not.
func (rl *RateLimiter) Check(changeID string) (allowed bool, reason string) {
	c := rl.counterFor(changeID)
	now := time.Now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Before(c.cooldownUntil) {
		return false, "post-failure cooldown active"
	}
	for _, w := range rl.limits.windows() {
		end, ok := c.windowEnd[w.duration]
		amount := c.amount[w.duration]
		if ok && end.Before(now) {
			amount = 0
		}
		if amount >= w.limit {
			return false, "rate limit exceeded for window"
		}
	}
	return true, ""
}

// RecordAttempt increments the rolling counters for changeID.
func (rl *RateLimiter) RecordAttempt(changeID string) {
	c := rl.counterFor(changeID)
	now := time.Now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range rl.limits.windows() {
		end, ok := c.windowEnd[w.duration]
		if !ok || end.Before(now) {
			c.amount[w.duration] = 0
			c.windowEnd[w.duration] = now.Add(w.duration)
		}
		c.amount[w.duration]++
	}
}

// RecordFailure starts the post-failure cooldown for changeID (spec §4.6
// gate 3: "Additional cooldown of 30s after any recorded failure").
func (rl *RateLimiter) RecordFailure(changeID string) {
	c := rl.counterFor(changeID)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cooldownUntil = time.Now().UTC().Add(RateLimitCooldown)
}
