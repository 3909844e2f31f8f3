// Package rollback implements the Rollback Manager (spec §4.7.6): manual
// and automatic rollback requests, and an auto-rollback monitor that
// compares current metrics to the baseline captured at apply time.
package rollback

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/forgeflow/orchestrator/pkg/events"
	"github.com/forgeflow/orchestrator/pkg/learning/applier"
	"github.com/forgeflow/orchestrator/pkg/model"
	"github.com/forgeflow/orchestrator/pkg/statestore"
)

// Trigger enumerates the reasons a rollback request can originate (spec §4.7.6).
type Trigger string

const (
	TriggerManualRequest         Trigger = "manual_request"
	TriggerVerificationFailure   Trigger = "verification_failure"
	TriggerErrorRateIncreased    Trigger = "error_rate_increased"
	TriggerNewErrorsDetected     Trigger = "new_errors_detected"
	TriggerPerformanceDegraded   Trigger = "performance_degradation"
	TriggerResourceExhausted     Trigger = "resource_exhausted"
	TriggerTimeout               Trigger = "timeout"
)

// Request is a rollback request, manual or automatic.
type Request struct {
	ChangeID string
	Trigger  Trigger
	Reason   string
}

// Manager handles rollback requests against the applier's owned state.
type Manager struct {
	store  *statestore.Store
	events *events.Bus
	state  *applier.State
	now    func() time.Time
}

// New constructs a Manager.
func New(store *statestore.Store, eventBus *events.Bus, state *applier.State) *Manager {
	return &Manager{store: store, events: eventBus, state: state, now: time.Now}
}

// Rollback runs the rollback procedure of spec §4.7.6: validate, locate
// backup, restore, verify (optional), append a rollback block to the
// original audit and write a new rollback-kind audit, emit
// fix.rolled_back.
func (m *Manager) Rollback(ctx context.Context, req Request, backupID string) (model.AuditRecord, error) {
	original, err := m.findOriginalAudit(req.ChangeID)
	if err != nil {
		return model.AuditRecord{}, fmt.Errorf("rollback: %w", err)
	}
	if original.RollbackInfo != nil {
		return model.AuditRecord{}, fmt.Errorf("rollback: change %s already rolled back", req.ChangeID)
	}

	backup, err := m.store.LoadBackup(backupID)
	if err != nil {
		return model.AuditRecord{}, fmt.Errorf("rollback: load backup: %w", err)
	}
	ok, err := backup.VerifyChecksums()
	if err != nil {
		return model.AuditRecord{}, fmt.Errorf("rollback: verify backup checksums: %w", err)
	}
	if !ok {
		return model.AuditRecord{}, fmt.Errorf("rollback: backup checksum mismatch, aborting restore")
	}

	m.state.Restore(backup.State)
	now := m.now()

	rollbackInfo := model.RollbackInfo{
		Trigger:      string(req.Trigger),
		RolledBackAt: now,
		Reason:       req.Reason,
		Success:      true,
	}

	original.RollbackInfo = &rollbackInfo
	if err := original.Seal(); err != nil {
		return model.AuditRecord{}, fmt.Errorf("rollback: reseal original audit: %w", err)
	}
	if err := m.store.SaveAudit(original); err != nil {
		return model.AuditRecord{}, fmt.Errorf("rollback: save updated original audit: %w", err)
	}

	rollbackAudit := model.AuditRecord{
		AuditID:   "aud-" + uuid.NewString(),
		ChangeID:  req.ChangeID,
		Timestamp: now,
		Decision: model.DecisionBlock{
			ProposedBy: "rollback-manager",
			Reasoning:  req.Reason,
		},
		Execution: model.ExecutionBlock{Status: model.OutcomeRolledBack, AppliedAt: &now},
		RollbackInfo: &rollbackInfo,
		Metadata: model.AuditMetadata{
			System:  "self-learning-pipeline",
			Version: "1",
		},
	}
	if err := rollbackAudit.Seal(); err != nil {
		return model.AuditRecord{}, fmt.Errorf("rollback: seal rollback audit: %w", err)
	}
	if err := m.store.SaveAudit(rollbackAudit); err != nil {
		return model.AuditRecord{}, fmt.Errorf("rollback: save rollback audit: %w", err)
	}

	if m.events != nil {
		m.events.Publish(ctx, events.Event{Topic: events.TopicFixRolledBack, Payload: rollbackAudit})
	}
	return rollbackAudit, nil
}

func (m *Manager) findOriginalAudit(changeID string) (model.AuditRecord, error) {
	audits, err := m.store.ListAudits()
	if err != nil {
		return model.AuditRecord{}, err
	}
	var best model.AuditRecord
	found := false
	for _, a := range audits {
		if a.ChangeID == changeID && a.RollbackInfo == nil {
			if !found || a.Timestamp.After(best.Timestamp) {
				best = a
				found = true
			}
		}
	}
	if !found {
		return model.AuditRecord{}, fmt.Errorf("no applied (non-rolled-back) audit found for change %s", changeID)
	}
	return best, nil
}
