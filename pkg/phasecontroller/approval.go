package phasecontroller

import "time"

// ApprovalDecision is the outcome a human (or an overriding policy) attaches
// to an approval token (spec §4.3 submitApproval).
type ApprovalDecision string

const (
	DecisionApprove ApprovalDecision = "approve"
	DecisionReject  ApprovalDecision = "reject"
	DecisionRevise  ApprovalDecision = "revise"
)

// ApprovalToken gates dispatch for an execution parked at an
// approval-required phase until a decision arrives or the token expires
// (spec §4.3 "Approval gates").
type ApprovalToken struct {
	ExecutionID string
	Phase       int
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Resolved    bool
	Decision    ApprovalDecision
	Feedback    string
}

// Expired reports whether now is past the token's expiry and it has not yet
// been resolved by a decision.
func (t *ApprovalToken) Expired(now time.Time) bool {
	return !t.Resolved && now.After(t.ExpiresAt)
}

// DefaultApprovalExpiry is the spec's documented default approval-token TTL.
const DefaultApprovalExpiry = time.Hour
