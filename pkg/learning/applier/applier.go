// Package applier implements the Apply Engine (spec §4.7.5): every apply
// is wrapped in a transaction over a Backup Record snapshot, with
// optional post-apply verification and auto-rollback-on-failure, and an
// unconditional audit write with integrity hash.
package applier

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/forgeflow/orchestrator/pkg/events"
	"github.com/forgeflow/orchestrator/pkg/model"
	"github.com/forgeflow/orchestrator/pkg/statestore"
)

// BackupRetention is how long a backup remains eligible for restore
// before it is considered expired (spec §5).
const BackupRetention = 72 * time.Hour

// Config tunes the Apply Engine's verification behavior.
type Config struct {
	VerifyAfterApply      bool
	AutoRollbackOnFailure bool
}

// Engine is the Apply Engine.
type Engine struct {
	store  *statestore.Store
	events *events.Bus
	state  *State
	cfg    Config
	now    func() time.Time
}

// New constructs an Engine over store, publishing lifecycle events on
// eventBus (which may be nil).
func New(store *statestore.Store, eventBus *events.Bus, state *State, cfg Config) *Engine {
	return &Engine{store: store, events: eventBus, state: state, cfg: cfg, now: time.Now}
}

// Result is what Apply returns: the audit record it wrote, and whether
// the change ended up rolled back during post-apply verification.
type Result struct {
	Audit      model.AuditRecord
	BackupID   string
	RolledBack bool
}

// Apply runs the five-step transaction of spec §4.7.5 for proposal,
// proposed by proposedBy and optionally approved by approvedBy.
func (e *Engine) Apply(ctx context.Context, proposal model.FixProposal, proposedBy, approvedBy string) (Result, error) {
	start := e.now()

	// Step 1: snapshot + backup with both checksums.
	snapshot := e.state.Snapshot()
	backup, err := model.NewBackupRecord("bkp-"+uuid.NewString(), proposal.ChangeID, snapshot, BackupRetention, start)
	if err != nil {
		return Result{}, fmt.Errorf("applier: build backup: %w", err)
	}
	if err := e.store.SaveBackup(backup); err != nil {
		return Result{}, fmt.Errorf("applier: save backup: %w", err)
	}

	// Step 2/3: begin transaction, mutate by change type. A literal
	// transaction log isn't needed for an in-process, single-writer
	// state: State's mutators already apply atomically under its lock,
	// so "begin/commit" here is the ordering guarantee, not a WAL.
	expectedKey, applyErr := e.mutate(proposal)

	execBlock := model.ExecutionBlock{Status: model.OutcomeSuccess, Duration: e.now().Sub(start)}
	appliedAt := e.now()
	execBlock.AppliedAt = &appliedAt

	rolledBack := false
	if applyErr != nil {
		execBlock.Status = model.OutcomeFailed
		execBlock.Error = applyErr.Error()
	} else if e.cfg.VerifyAfterApply && expectedKey != "" && !e.state.hasKey(expectedKey) {
		execBlock.Status = model.OutcomeFailed
		execBlock.Error = "post-apply verification failed: expected key not present"
		if e.cfg.AutoRollbackOnFailure {
			e.state.Restore(snapshot)
			execBlock.Status = model.OutcomeRolledBack
			rolledBack = true
			if e.events != nil {
				e.events.Publish(ctx, events.Event{Topic: events.TopicFixRolledBack, Payload: proposal.ChangeID})
			}
		}
	}

	audit := model.AuditRecord{
		AuditID: "aud-" + uuid.NewString(),
		ChangeID: proposal.ChangeID,
		Timestamp: start,
		Decision: model.DecisionBlock{
			ProposedBy:        proposedBy,
			ApprovedBy:        approvedBy,
			Reasoning:         proposal.Change.Rationale,
			Confidence:        proposal.Confidence,
			RecommendedAction: string(proposal.Strategy),
		},
		Execution: execBlock,
		Impact: model.ImpactBlock{
			ErrorsResolved: 1,
		},
		Metadata: model.AuditMetadata{
			ExecutionID: proposal.SourceErrorID,
			System:      "self-learning-pipeline",
			Version:     "1",
		},
	}
	if err := audit.Seal(); err != nil {
		return Result{}, fmt.Errorf("applier: seal audit: %w", err)
	}
	if err := e.store.SaveAudit(audit); err != nil {
		return Result{}, fmt.Errorf("applier: save audit: %w", err)
	}
	if e.events != nil {
		e.events.Publish(ctx, events.Event{Topic: events.TopicFixApplied, Payload: audit})
	}

	if applyErr != nil {
		return Result{Audit: audit, BackupID: backup.ID}, applyErr
	}
	return Result{Audit: audit, BackupID: backup.ID, RolledBack: rolledBack}, nil
}

// mutate dispatches the change by type, returning the key that
// post-apply verification should look for.
func (e *Engine) mutate(proposal model.FixProposal) (expectedKey string, err error) {
	change := proposal.Change
	switch change.Type {
	case model.ChangeValidationRule, model.ChangeTypeCheck:
		e.state.setValidationRule(change.Target, change.NewValue)
		return change.Target, nil
	case model.ChangeDefaultValue, model.ChangeConfigUpdate:
		e.state.setConfig(change.Target, change.NewValue)
		return change.Target, nil
	case model.ChangeErrorHandling, model.ChangeConditionCheck, model.ChangeGenericFix:
		e.state.recordIntent(proposal.ChangeID, intentRecord{
			Target:      change.Target,
			Rationale:   change.Rationale,
			CodeExample: change.CodeExample,
			Timestamp:   e.now().Unix(),
		})
		return "intent:" + proposal.ChangeID, nil
	default:
		return "", fmt.Errorf("applier: unknown change type %q", change.Type)
	}
}
