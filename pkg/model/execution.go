// Package model holds the entity types of the orchestrator's data model
// (spec §3): Execution, Phase State, Checkpoint, Artifact, Message, Error
// Log Entry, Error Pattern, Fix Proposal, Backup Record, Audit Record,
// Validation Result, Alert. Types here are plain data plus the invariant
// checks that must hold over them; no component-specific behavior lives
// here.
package model

import "time"

// ExecutionStatus is the lifecycle status of an Execution.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionPaused    ExecutionStatus = "paused"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether the execution can no longer transition.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionCancelled:
		return true
	}
	return false
}

// PhaseStatus is the lifecycle status of a single Phase State.
type PhaseStatus string

const (
	PhasePending    PhaseStatus = "pending"
	PhaseInProgress PhaseStatus = "in-progress"
	PhaseCompleted  PhaseStatus = "completed"
	PhaseFailed     PhaseStatus = "failed"
	PhaseSkipped    PhaseStatus = "skipped"
)

// validPhaseEdges enumerates the only legal Phase State status transitions
// (spec §3 invariant: "transitions only along pending -> in-progress ->
// {completed, failed, skipped}. No other edges.").
var validPhaseEdges = map[PhaseStatus]map[PhaseStatus]bool{
	PhasePending:    {PhaseInProgress: true},
	PhaseInProgress: {PhaseCompleted: true, PhaseFailed: true, PhaseSkipped: true},
}

// CanTransition reports whether from -> to is a legal Phase State edge.
func CanTransition(from, to PhaseStatus) bool {
	edges, ok := validPhaseEdges[from]
	if !ok {
		return false
	}
	return edges[to]
}

// PhaseState is one (execution, phase) slot.
type PhaseState struct {
	Phase           int               `json:"phase"`
	Name            string            `json:"name"`
	Status          PhaseStatus       `json:"status"`
	AssignedAgents  []string          `json:"assignedAgents,omitempty"`
	StartedAt       *time.Time        `json:"startedAt,omitempty"`
	EndedAt         *time.Time        `json:"endedAt,omitempty"`
	Outputs         map[string]any    `json:"outputs,omitempty"`
	Error           string            `json:"error,omitempty"`
	ArtifactIDs     []string          `json:"artifactIds,omitempty"`
	Attempt         int               `json:"attempt"`
	ExtraAttributes map[string]string `json:"extraAttributes,omitempty"`
}

// Transition moves the phase state to `to` if legal, recording timestamps.
func (p *PhaseState) Transition(to PhaseStatus, now time.Time) error {
	if !CanTransition(p.Status, to) {
		return &InvariantError{
			Invariant: "phase-state-edge",
			Detail:    "illegal phase status transition " + string(p.Status) + " -> " + string(to),
		}
	}
	if p.Status == PhasePending && to == PhaseInProgress {
		p.StartedAt = &now
	}
	if to == PhaseCompleted || to == PhaseFailed || to == PhaseSkipped {
		p.EndedAt = &now
	}
	p.Status = to
	return nil
}

// Execution is a single run of the twelve-phase workflow.
type Execution struct {
	ID            string          `json:"id"`
	ProjectName   string          `json:"projectName"`
	Status        ExecutionStatus `json:"status"`
	CurrentPhase  int             `json:"currentPhase"`
	Phases        []PhaseState    `json:"phases"`
	Context       map[string]any  `json:"context,omitempty"`
	Events        []ExecutionEvent `json:"events,omitempty"`
	StartedAt     time.Time       `json:"startedAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
	TotalDuration time.Duration   `json:"totalDuration"`
}

// ExecutionEvent is an append-only log entry attached to an Execution.
type ExecutionEvent struct {
	At      time.Time      `json:"at"`
	Kind    string         `json:"kind"`
	Detail  string         `json:"detail,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// AppendEvent appends to the execution's event log and bumps UpdatedAt.
func (e *Execution) AppendEvent(kind, detail string, payload map[string]any) {
	e.Events = append(e.Events, ExecutionEvent{At: time.Now().UTC(), Kind: kind, Detail: detail, Payload: payload})
	e.UpdatedAt = time.Now().UTC()
}

// CurrentPhaseState returns a pointer to the phase state at CurrentPhase,
// or nil if out of range.
func (e *Execution) CurrentPhaseState() *PhaseState {
	if e.CurrentPhase < 0 || e.CurrentPhase >= len(e.Phases) {
		return nil
	}
	return &e.Phases[e.CurrentPhase]
}

// PhaseStateAt returns a pointer to the phase state at index idx, or nil.
func (e *Execution) PhaseStateAt(idx int) *PhaseState {
	if idx < 0 || idx >= len(e.Phases) {
		return nil
	}
	return &e.Phases[idx]
}

// CheckpointReason enumerates why a Checkpoint was captured.
type CheckpointReason string

const (
	CheckpointWorkflowStart CheckpointReason = "workflow-start"
	CheckpointPhaseComplete CheckpointReason = "phase-complete"
	CheckpointError         CheckpointReason = "error"
	CheckpointManual        CheckpointReason = "manual"
)

// Checkpoint is an immutable snapshot of an execution at a point in time.
type Checkpoint struct {
	ID              string           `json:"checkpointId"`
	ExecutionID     string           `json:"executionId"`
	Phase           int              `json:"phase"`
	Reason          CheckpointReason `json:"reason"`
	CreatedAt       time.Time        `json:"createdAt"`
	ExecutionState  Execution        `json:"executionState"`
	AdditionalState map[string]any   `json:"additionalState,omitempty"`
}

// InvariantError reports a violation of one of the spec §3 invariants.
type InvariantError struct {
	Invariant string
	Detail    string
}

func (e *InvariantError) Error() string {
	return "invariant " + e.Invariant + " violated: " + e.Detail
}
