package safety

import (
	"fmt"
	"time"
)

// Controller is the Safety Controller (spec §4.6): consulted before any
// automated apply, it runs five gates in order and short-circuits on the
// first block.
type Controller struct {
	blockList *BlockList
	overrides *OverrideStore
	limiter   *RateLimiter
	failures  *FailureTracker
}

// Config configures a Controller's gate parameters.
type Config struct {
	ManualBlockListPath string
	RateLimits          RateLimits
}

// New constructs a Controller. ManualBlockListPath may be empty, in which
// case the manual block gate never fires.
func New(cfg Config) (*Controller, error) {
	bl, err := NewBlockList(cfg.ManualBlockListPath)
	if err != nil {
		return nil, fmt.Errorf("safety: load block list: %w", err)
	}
	return &Controller{
		blockList: bl,
		overrides: NewOverrideStore(),
		limiter:   NewRateLimiter(cfg.RateLimits),
		failures:  NewFailureTracker(),
	}, nil
}

// Check runs the five gates, in spec order, for req.
func (c *Controller) Check(req Request) CheckResult {
	if c.blockList.Blocked(req.ChangeID) {
		return blocked(ReasonManualBlock, "change id is on the manual block list")
	}

	if c.overrides.Active(req.ChangeID) {
		return safe(isolationFor(req))
	}

	if allowed, reason := c.limiter.Check(req.ChangeID); !allowed {
		return blocked(ReasonRateLimitExceeded, reason)
	}

	if n := c.failures.Count(req.ChangeID); n >= FailureThreshold {
		return blocked(ReasonConsecutiveFailures, fmt.Sprintf("%d failures within the last %s", n, FailureWindow))
	}

	return confidenceGate(req)
}

// RecordAttempt records a successful apply attempt against the rate
// limiter's rolling windows. Call this after Check returns an allowed
// result and the apply proceeds.
func (c *Controller) RecordAttempt(changeID string) {
	c.limiter.RecordAttempt(changeID)
}

// RecordFailure records a failed apply: it starts the rate limiter's
// post-failure cooldown and appends to the failure tracker's window.
func (c *Controller) RecordFailure(changeID string) {
	c.limiter.RecordFailure(changeID)
	c.failures.RecordFailure(changeID)
}

// GrantOverride records a human override for changeID, bypassing every
// gate but the manual block list until ttl elapses.
func (c *Controller) GrantOverride(changeID, grantedBy string, ttl time.Duration) {
	c.overrides.Grant(changeID, grantedBy, ttl)
	c.failures.Reset(changeID)
}

// RevokeOverride removes any active override for changeID.
func (c *Controller) RevokeOverride(changeID string) {
	c.overrides.Revoke(changeID)
}

// Close releases resources the Controller holds (the block list's file
// watcher).
func (c *Controller) Close() error {
	return c.blockList.Close()
}
