// Package phasecontroller implements the Phase Controller (spec §4.3): it
// owns the Execution lifecycle, walks the fixed workflow graph declared by
// pkg/workflowdef, creates and expires approval tokens, and drives the
// parallel fan-out/join at phases 9 and 10. It dispatches phase-entry
// messages through pkg/bus, persists checkpoints through pkg/statestore, and
// emits pkg/events notifications at every transition.
package phasecontroller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/forgeflow/orchestrator/pkg/bus"
	"github.com/forgeflow/orchestrator/pkg/events"
	"github.com/forgeflow/orchestrator/pkg/model"
	"github.com/forgeflow/orchestrator/pkg/statestore"
	"github.com/forgeflow/orchestrator/pkg/workflowdef"
)

// ProjectConfig is the opaque caller-supplied configuration a new execution
// starts from (spec §4.3 start(projectConfig)).
type ProjectConfig struct {
	ProjectName string
	Context     map[string]any
}

// Controller owns Execution lifecycles for every in-flight run.
type Controller struct {
	graph        *workflowdef.Graph
	store        *statestore.Store
	bus          *bus.Bus
	events       *events.Bus
	tracer       trace.Tracer
	approvalTTL  time.Duration
	checkpointKeep int

	mu       sync.Mutex
	tokens   map[string]*ApprovalToken // executionId -> current token
	joins    map[string]*joinState     // executionId -> fan-out join bookkeeping
}

type joinState struct {
	group    string
	siblings map[int]bool // phase -> completed
}

// Option configures a Controller at construction time.
type Option func(*Controller)

// WithApprovalTTL overrides the default one-hour approval token expiry.
func WithApprovalTTL(d time.Duration) Option {
	return func(c *Controller) { c.approvalTTL = d }
}

// WithCheckpointRetention sets how many checkpoints PruneCheckpoints keeps
// per execution after each phase-complete checkpoint.
func WithCheckpointRetention(keep int) Option {
	return func(c *Controller) { c.checkpointKeep = keep }
}

// New constructs a Controller over the fixed workflow graph.
func New(store *statestore.Store, b *bus.Bus, eventBus *events.Bus, opts ...Option) *Controller {
	c := &Controller{
		graph:       workflowdef.Default(),
		store:       store,
		bus:         b,
		events:      eventBus,
		tracer:      trace.NewNoopTracerProvider().Tracer("phasecontroller"),
		approvalTTL: DefaultApprovalExpiry,
		checkpointKeep: 20,
		tokens:      make(map[string]*ApprovalToken),
		joins:       make(map[string]*joinState),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UseTracer swaps in a real tracer provider's tracer, in place of the noop
// default, for callers that wire up OpenTelemetry.
func (c *Controller) UseTracer(t trace.Tracer) {
	c.tracer = t
}

// Start creates a new Execution at phase 0, persists its initial checkpoint,
// and dispatches the first phase_entry message (spec §4.3 start).
func (c *Controller) Start(ctx context.Context, cfg ProjectConfig) (string, error) {
	ctx, span := c.tracer.Start(ctx, "phasecontroller.start")
	defer span.End()

	phases := make([]model.PhaseState, c.graph.TotalPhases())
	for i := 0; i < c.graph.TotalPhases(); i++ {
		p, _ := c.graph.Phase(i)
		phases[i] = model.PhaseState{Phase: i, Name: p.Name, Status: model.PhasePending}
	}

	now := time.Now().UTC()
	exec := &model.Execution{
		ID:          uuid.NewString(),
		ProjectName: cfg.ProjectName,
		Status:      model.ExecutionRunning,
		Phases:      phases,
		Context:     cfg.Context,
		StartedAt:   now,
		UpdatedAt:   now,
	}
	exec.AppendEvent("execution-started", "", nil)

	if err := c.store.SaveExecution(exec); err != nil {
		return "", fmt.Errorf("phasecontroller: save execution: %w", err)
	}
	if err := c.checkpoint(exec, model.CheckpointWorkflowStart); err != nil {
		return "", err
	}

	span.SetAttributes(attribute.String("execution.id", exec.ID))

	if err := c.enterPhase(ctx, exec, 0); err != nil {
		return "", err
	}
	return exec.ID, nil
}

// RecordAgentOutput appends artifacts an agent produced and merges its
// output into the current phase's outputs map (spec §4.3 recordAgentOutput).
func (c *Controller) RecordAgentOutput(ctx context.Context, executionID, agentID string, output map[string]any, artifacts []model.Artifact) error {
	_, span := c.tracer.Start(ctx, "phasecontroller.recordAgentOutput", trace.WithAttributes(
		attribute.String("execution.id", executionID), attribute.String("agent.id", agentID)))
	defer span.End()

	exec, err := c.store.LoadExecution(executionID)
	if err != nil {
		return fmt.Errorf("phasecontroller: load execution %s: %w", executionID, err)
	}

	ps := exec.CurrentPhaseState()
	if ps == nil {
		return fmt.Errorf("phasecontroller: execution %s has no current phase state", executionID)
	}

	for _, a := range artifacts {
		if err := c.store.SaveArtifact(a); err != nil {
			return fmt.Errorf("phasecontroller: save artifact %s: %w", a.ID, err)
		}
		ps.ArtifactIDs = append(ps.ArtifactIDs, a.ID)
	}
	if ps.Outputs == nil {
		ps.Outputs = make(map[string]any)
	}
	for k, v := range output {
		ps.Outputs[k] = v
	}
	if !contains(ps.AssignedAgents, agentID) {
		ps.AssignedAgents = append(ps.AssignedAgents, agentID)
	}
	exec.UpdatedAt = time.Now().UTC()

	return c.store.SaveExecution(exec)
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// EvaluateTransition looks up the outcome of reason occurring at the
// execution's current phase and drives the execution across it: persisting
// a phase-complete checkpoint, entering the next phase (or fanning out,
// joining, escalating, rolling back, or terminating) (spec §4.3
// evaluateTransition).
func (c *Controller) EvaluateTransition(ctx context.Context, executionID string, reason workflowdef.TransitionReason) (int, error) {
	ctx, span := c.tracer.Start(ctx, "phasecontroller.evaluateTransition", trace.WithAttributes(
		attribute.String("execution.id", executionID), attribute.String("reason", string(reason))))
	defer span.End()

	exec, err := c.store.LoadExecution(executionID)
	if err != nil {
		return 0, fmt.Errorf("phasecontroller: load execution %s: %w", executionID, err)
	}
	if exec.Status.IsTerminal() {
		return 0, fmt.Errorf("phasecontroller: execution %s is already terminal (%s)", executionID, exec.Status)
	}

	fromPhase := exec.CurrentPhase
	outcome, ok := c.graph.Evaluate(fromPhase, reason)
	if !ok {
		return 0, fmt.Errorf("phasecontroller: no transition from phase %d on reason %q", fromPhase, reason)
	}

	ps := exec.CurrentPhaseState()
	if ps != nil && ps.Status == model.PhaseInProgress {
		if err := ps.Transition(model.PhaseCompleted, time.Now().UTC()); err != nil {
			return 0, fmt.Errorf("phasecontroller: %w", err)
		}
	}
	exec.UpdatedAt = time.Now().UTC()
	if err := c.store.SaveExecution(exec); err != nil {
		return 0, err
	}
	if err := c.checkpoint(exec, model.CheckpointPhaseComplete); err != nil {
		return 0, err
	}
	c.bus.RecordTransition()

	switch {
	case outcome.Escalation:
		return c.escalate(ctx, exec, fromPhase)
	case outcome.Rollback:
		return c.rollback(ctx, exec, fromPhase)
	case outcome.Terminal:
		return c.complete(ctx, exec)
	case len(outcome.FanOut) > 0:
		return fromPhase, c.fanOut(ctx, exec, outcome.FanOut)
	case outcome.Join:
		return c.join(ctx, exec, fromPhase, outcome.NextPhase)
	default:
		if err := c.enterPhase(ctx, exec, outcome.NextPhase); err != nil {
			return 0, err
		}
		return outcome.NextPhase, nil
	}
}

// SubmitApproval resolves the approval token parked at executionID's
// current phase (spec §4.3 submitApproval). Phases 0, 1, 2 and 3 have a
// decision-driven edge declared in the transition table, so the decision
// directly advances the execution. Phases 4 and 5 are approval-required but
// their table edges are keyed on automated signals (validation gates,
// deployment outcome) rather than the decision itself, and phase 11's only
// edge is completion: there, approving
// only releases the execution's suspended dispatch and the subsequent
// evaluateTransition call (triggered by that automated signal) does the
// advancing. Rejecting always halts the release regardless of phase.
func (c *Controller) SubmitApproval(ctx context.Context, executionID string, phase int, decision ApprovalDecision, feedback string) (int, error) {
	c.mu.Lock()
	token, ok := c.tokens[executionID]
	c.mu.Unlock()
	if !ok || token.Phase != phase || token.Resolved {
		return 0, fmt.Errorf("phasecontroller: no open approval token for execution %s at phase %d", executionID, phase)
	}

	token.Resolved = true
	token.Decision = decision
	token.Feedback = feedback

	c.bus.RecordApprovalGate()
	c.events.Publish(ctx, events.Event{Topic: events.TopicApprovalDecided, Payload: map[string]any{
		"executionId": executionID, "phase": phase, "decision": decision, "feedback": feedback,
	}})

	reason, err := approvalReason(phase, decision)
	if err != nil {
		return 0, err
	}
	if _, ok := c.graph.Evaluate(phase, reason); !ok {
		// No table edge for this (phase, reason): the decision only
		// resolves the token, it does not itself advance the phase.
		return phase, nil
	}
	return c.EvaluateTransition(ctx, executionID, reason)
}

// approvalReason maps a human decision to the transition-table reason it
// triggers. Phase 2 is special-cased: a revise decision there maps onto the
// major_changes back-edge the spec names for that phase specifically.
func approvalReason(phase int, decision ApprovalDecision) (workflowdef.TransitionReason, error) {
	switch decision {
	case DecisionApprove:
		return workflowdef.ReasonApproved, nil
	case DecisionReject:
		return workflowdef.ReasonRejected, nil
	case DecisionRevise:
		if phase == 2 {
			return workflowdef.ReasonMajorChanges, nil
		}
		return workflowdef.ReasonRevised, nil
	default:
		return "", fmt.Errorf("phasecontroller: unknown approval decision %q", decision)
	}
}

// enterPhase transitions the execution into phase idx: marks its phase
// state in-progress, opens an approval token if required, and publishes a
// phase_entry message through the bus.
func (c *Controller) enterPhase(ctx context.Context, exec *model.Execution, idx int) error {
	p, ok := c.graph.Phase(idx)
	if !ok {
		return fmt.Errorf("phasecontroller: unknown phase %d", idx)
	}

	exec.CurrentPhase = idx
	ps := exec.PhaseStateAt(idx)
	if ps == nil {
		return fmt.Errorf("phasecontroller: execution %s missing phase state %d", exec.ID, idx)
	}
	if ps.Status == model.PhasePending {
		if err := ps.Transition(model.PhaseInProgress, time.Now().UTC()); err != nil {
			return fmt.Errorf("phasecontroller: %w", err)
		}
	}
	exec.AppendEvent("phase-entered", p.Name, nil)
	if err := c.store.SaveExecution(exec); err != nil {
		return err
	}

	if p.ApprovalRequired {
		c.openApprovalToken(exec.ID, idx)
	}

	c.events.Publish(ctx, events.Event{Topic: events.TopicPhaseTransition, Payload: map[string]any{
		"executionId": exec.ID, "phase": idx, "name": p.Name,
	}})

	_, err := c.bus.Publish(ctx, model.Message{
		ExecutionID:   exec.ID,
		Phase:         idx,
		Type:          model.MessagePhaseEntry,
		Targets:       p.ParticipatingAgents,
		NeedsApproval: p.ApprovalRequired,
		Payload:       map[string]any{"phase": idx, "name": p.Name},
	})
	return err
}

// openApprovalToken parks the execution behind a fresh approval token,
// superseding any prior one for the execution (spec §4.3 "Approval gates").
func (c *Controller) openApprovalToken(executionID string, phase int) {
	now := time.Now().UTC()
	c.mu.Lock()
	c.tokens[executionID] = &ApprovalToken{
		ExecutionID: executionID,
		Phase:       phase,
		CreatedAt:   now,
		ExpiresAt:   now.Add(c.approvalTTL),
	}
	c.mu.Unlock()
}

// ExpireOverdueApprovals resolves every open, expired approval token as
// rejected (the spec's default expiry behavior) and drives the resulting
// transition. Intended to be polled periodically by the caller.
func (c *Controller) ExpireOverdueApprovals(ctx context.Context) error {
	now := time.Now().UTC()
	c.mu.Lock()
	var expired []*ApprovalToken
	for _, t := range c.tokens {
		if t.Expired(now) {
			expired = append(expired, t)
		}
	}
	c.mu.Unlock()

	for _, t := range expired {
		if _, err := c.SubmitApproval(ctx, t.ExecutionID, t.Phase, DecisionReject, "approval token expired"); err != nil {
			return err
		}
	}
	return nil
}

// fanOut issues independent phase_entry messages for every phase in group,
// tracking join completion (spec §4.3 "Parallel semantics").
func (c *Controller) fanOut(ctx context.Context, exec *model.Execution, group []int) error {
	c.mu.Lock()
	c.joins[exec.ID] = &joinState{group: "final-fanout", siblings: make(map[int]bool, len(group))}
	for _, idx := range group {
		c.joins[exec.ID].siblings[idx] = false
	}
	c.mu.Unlock()

	for _, idx := range group {
		if err := c.enterPhase(ctx, exec, idx); err != nil {
			return err
		}
		exec, _ = c.store.LoadExecution(exec.ID)
	}
	return nil
}

// join marks fromPhase complete within its fan-out group and advances to
// nextPhase only once every sibling has reached a terminal state (spec
// §4.3 "The join point is reached only when both Phase States reach
// completed").
func (c *Controller) join(ctx context.Context, exec *model.Execution, fromPhase, nextPhase int) (int, error) {
	c.mu.Lock()
	js, ok := c.joins[exec.ID]
	if !ok {
		c.mu.Unlock()
		return 0, fmt.Errorf("phasecontroller: join reached for execution %s with no open fan-out", exec.ID)
	}
	js.siblings[fromPhase] = true
	allDone := true
	for _, done := range js.siblings {
		if !done {
			allDone = false
			break
		}
	}
	if allDone {
		delete(c.joins, exec.ID)
	}
	c.mu.Unlock()

	if !allDone {
		return fromPhase, nil
	}
	if err := c.enterPhase(ctx, exec, nextPhase); err != nil {
		return 0, err
	}
	return nextPhase, nil
}

// escalate halts the execution pending human action and emits a CRITICAL
// escalation message (spec §4.3: "ESCALATION produces a CRITICAL escalation
// message and halts the execution").
func (c *Controller) escalate(ctx context.Context, exec *model.Execution, phase int) (int, error) {
	exec.Status = model.ExecutionPaused
	exec.AppendEvent("escalated", fmt.Sprintf("phase %d", phase), nil)
	if err := c.store.SaveExecution(exec); err != nil {
		return 0, err
	}
	if err := c.checkpoint(exec, model.CheckpointError); err != nil {
		return 0, err
	}

	c.events.Publish(ctx, events.Event{Topic: events.TopicAlertRaised, Payload: map[string]any{
		"executionId": exec.ID, "phase": phase, "kind": "escalation",
	}})
	_, err := c.bus.Publish(ctx, model.Message{
		ExecutionID: exec.ID, Phase: phase, Type: model.MessageEscalation,
		Payload: map[string]any{"reason": "transition_escalation"},
	})
	return phase, err
}

// rollback marks the execution rolled back pending the Rollback Manager's
// unwind (spec §4.7.6); the Phase Controller itself only records the
// transition, the actual restore happens in pkg/learning/rollback.
func (c *Controller) rollback(ctx context.Context, exec *model.Execution, phase int) (int, error) {
	exec.Status = model.ExecutionPaused
	exec.AppendEvent("rollback-triggered", fmt.Sprintf("phase %d", phase), nil)
	if err := c.store.SaveExecution(exec); err != nil {
		return 0, err
	}
	c.events.Publish(ctx, events.Event{Topic: events.TopicFixRolledBack, Payload: map[string]any{
		"executionId": exec.ID, "phase": phase,
	}})
	return phase, nil
}

// complete marks the execution finished after phase 11's final sign-off.
func (c *Controller) complete(ctx context.Context, exec *model.Execution) (int, error) {
	now := time.Now().UTC()
	exec.Status = model.ExecutionCompleted
	exec.CompletedAt = &now
	exec.TotalDuration = now.Sub(exec.StartedAt)
	exec.AppendEvent("execution-completed", "", nil)
	if err := c.store.SaveExecution(exec); err != nil {
		return 0, err
	}
	return exec.CurrentPhase, c.checkpoint(exec, model.CheckpointPhaseComplete)
}

// Cancel transitions the execution to cancelled, drops its pending bus
// messages, and discards any open approval token or join bookkeeping (spec
// §5 "Cancellation").
func (c *Controller) Cancel(ctx context.Context, executionID string) error {
	exec, err := c.store.LoadExecution(executionID)
	if err != nil {
		return fmt.Errorf("phasecontroller: load execution %s: %w", executionID, err)
	}
	exec.Status = model.ExecutionCancelled
	exec.AppendEvent("cancelled", "", nil)
	if err := c.store.SaveExecution(exec); err != nil {
		return err
	}

	c.bus.Cancel(executionID)

	c.mu.Lock()
	delete(c.tokens, executionID)
	delete(c.joins, executionID)
	c.mu.Unlock()
	return nil
}

// checkpoint persists an immutable snapshot of exec and prunes older ones
// past the retention window (spec §3 "pruned by retention policy").
func (c *Controller) checkpoint(exec *model.Execution, reason model.CheckpointReason) error {
	chk := model.Checkpoint{
		ID:             fmt.Sprintf("chk-%d-%s", time.Now().UTC().UnixNano(), uuid.NewString()[:8]),
		ExecutionID:    exec.ID,
		Phase:          exec.CurrentPhase,
		Reason:         reason,
		CreatedAt:      time.Now().UTC(),
		ExecutionState: *exec,
	}
	if err := c.store.SaveCheckpoint(chk); err != nil {
		return fmt.Errorf("phasecontroller: save checkpoint: %w", err)
	}
	return c.store.PruneCheckpoints(exec.ID, c.checkpointKeep)
}
