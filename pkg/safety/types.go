// Package safety implements the Safety Controller (spec §4.6): five
// ordered gates consulted before any automated apply, short-circuiting on
// the first block. It generalizes the teacher's ratelimit.Scope/CheckResult
// rolling-window rate limiter (pkg/ratelimit, now superseded by this
// package) from {session,user} scopes to a single changeId scope, and adds
// the four gates the teacher's limiter never had: manual block list, human
// override, consecutive-failure tracking, and confidence/isolation.
package safety

import (
	"time"

	"github.com/forgeflow/orchestrator/pkg/model"
)

// Status is the outcome classification of a safety check (spec §4.6).
type Status string

const (
	StatusSafe             Status = "SAFE"
	StatusWarning          Status = "WARNING"
	StatusBlocked          Status = "BLOCKED"
	StatusOverrideRequired Status = "OVERRIDE_REQUIRED"
)

// Isolation is the sandboxing level a change's assessed risk requires.
type Isolation string

const (
	IsolationNone    Isolation = "none"
	IsolationSandbox Isolation = "sandbox"
	IsolationFull    Isolation = "full"
)

// Reason enumerates the named block reasons the spec requires gates to
// report.
type Reason string

const (
	ReasonManualBlock         Reason = "manual_block"
	ReasonRateLimitExceeded   Reason = "rate_limit_exceeded"
	ReasonConsecutiveFailures Reason = "consecutive_failures"
	ReasonLowConfidence       Reason = "low_confidence"
)

// CheckResult is the Safety Controller's verdict for one change id (spec
// §4.6: "{allowed, status, reason, details, recommendations}").
type CheckResult struct {
	Allowed         bool
	Status          Status
	Reason          Reason
	Details         string
	Isolation       Isolation
	Recommendations []string
}

// Request is the input a caller submits for a safety check.
type Request struct {
	ChangeID   string
	Confidence float64
	Risk       model.RiskLevel
	Production bool
}

// safe builds an allowed, SAFE result.
func safe(isolation Isolation) CheckResult {
	return CheckResult{Allowed: true, Status: StatusSafe, Isolation: isolation}
}

// blocked builds a denied, BLOCKED result with the given reason.
func blocked(reason Reason, details string) CheckResult {
	return CheckResult{Allowed: false, Status: StatusBlocked, Reason: reason, Details: details}
}

// FailureWindow is the window the failure tracker counts consecutive
// failures over (spec §4.6 gate 4: "per change id, count failures in a
// 10 min window").
const FailureWindow = 10 * time.Minute

// FailureThreshold is the count that trips the failure-tracker gate.
const FailureThreshold = 3

// RateLimitCooldown is the extra cooldown the rate limiter gate imposes
// after any recorded failure (spec §4.6 gate 3).
const RateLimitCooldown = 30 * time.Second
