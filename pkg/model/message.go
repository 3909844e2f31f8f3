package model

import "time"

// Priority is a message's delivery priority class (spec §4.4).
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// String renders the priority the way queue names and metrics labels use.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	case PriorityLow:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

// MessageType is the routing unit's semantic kind.
type MessageType string

const (
	MessagePhaseEntry         MessageType = "phase_entry"
	MessageExecution          MessageType = "execution"
	MessageValidationGate     MessageType = "validation_gate"
	MessageDeploymentApproval MessageType = "deployment_approval"
	MessageEscalation         MessageType = "escalation"
	MessagePhaseTransition    MessageType = "phase_transition"
)

// upgradesToCritical lists message types that always dispatch at CRITICAL
// priority, regardless of the phase's base priority (spec §4.4).
var upgradesToCritical = map[MessageType]bool{
	MessageEscalation:         true,
	MessageDeploymentApproval: true,
	MessageValidationGate:     true,
}

// UpgradesPriority reports whether t unconditionally escalates to CRITICAL.
func (t MessageType) UpgradesPriority() bool {
	return upgradesToCritical[t]
}

// MessageStatus is a Message's lifecycle status.
type MessageStatus string

const (
	MessagePending      MessageStatus = "pending"
	MessageProcessing   MessageStatus = "processing"
	MessageCompleted    MessageStatus = "completed"
	MessageFailed       MessageStatus = "failed"
	MessageRetrying     MessageStatus = "retrying"
	MessageDeadLettered MessageStatus = "dead-lettered"
)

// Message is a routing unit dispatched by the Message Bus.
type Message struct {
	ID             string         `json:"id"`
	ExecutionID    string         `json:"executionId"`
	Phase          int            `json:"phase"`
	Type           MessageType    `json:"type"`
	Payload        map[string]any `json:"payload,omitempty"`
	Targets        []string       `json:"targets"`
	Priority       Priority       `json:"priority"`
	NeedsApproval  bool           `json:"needsApproval"`
	CreatedAt      time.Time      `json:"createdAt"`
	RetryCount     int            `json:"retryCount"`
	Status         MessageStatus  `json:"status"`
	LastError      string         `json:"lastError,omitempty"`
	NextAttemptAt  time.Time      `json:"nextAttemptAt,omitempty"`
}

// EffectivePriority computes the dispatch priority per spec §4.4: the
// phase's base priority, upgraded to CRITICAL for certain message types.
func EffectivePriority(basePriority Priority, t MessageType) Priority {
	if t.UpgradesPriority() {
		return PriorityCritical
	}
	return basePriority
}
