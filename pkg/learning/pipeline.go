// Package learning wires the seven self-learning sub-packages (errorlog,
// analysis, generator, validator, applier, rollback, audit) into the
// single pipeline spec.md §4.7 describes: capture an error, analyze its
// root cause, generate candidate fixes, validate and (subject to the
// Safety Controller) apply the best one, auditing every step.
package learning

import (
	"context"
	"fmt"

	"github.com/forgeflow/orchestrator/pkg/events"
	"github.com/forgeflow/orchestrator/pkg/learning/analysis"
	"github.com/forgeflow/orchestrator/pkg/learning/applier"
	"github.com/forgeflow/orchestrator/pkg/learning/audit"
	"github.com/forgeflow/orchestrator/pkg/learning/errorlog"
	"github.com/forgeflow/orchestrator/pkg/learning/generator"
	"github.com/forgeflow/orchestrator/pkg/learning/rollback"
	"github.com/forgeflow/orchestrator/pkg/learning/validator"
	"github.com/forgeflow/orchestrator/pkg/model"
	"github.com/forgeflow/orchestrator/pkg/safety"
	"github.com/forgeflow/orchestrator/pkg/statestore"
)

// Config tunes the pipeline's auto-apply policy (spec §6 "autoApply",
// "confidenceThreshold", "requireAllGates").
type Config struct {
	AutoApply           bool
	ConfidenceThreshold float64
	ValidatorMode       validator.Mode
	ApplierConfig       applier.Config
}

func (c *Config) setDefaults() {
	if c.ConfidenceThreshold == 0 {
		c.ConfidenceThreshold = 0.8
	}
	if c.ValidatorMode == "" {
		c.ValidatorMode = validator.ModeStrict
	}
}

// Pipeline is the Self-Learning Pipeline (spec §4.7): the coordinator that
// drives one error occurrence from capture through to an applied (or
// pending) fix.
type Pipeline struct {
	cfg Config

	ErrorLog  *errorlog.Logger
	Analysis  *analysis.Engine
	Generator *generator.Generator
	Validator *validator.Validator
	Safety    *safety.Controller
	Applier   *applier.Engine
	Rollback  *rollback.Manager
	Audit     *audit.Trail

	store  *statestore.Store
	events *events.Bus
}

// New constructs a Pipeline over an already-open store and a Safety
// Controller, wiring every stage to the same event bus so pkg/monitor can
// observe the whole pipeline from one subscription set.
func New(cfg Config, store *statestore.Store, eventBus *events.Bus, safetyCtrl *safety.Controller, applierState *applier.State) (*Pipeline, error) {
	cfg.setDefaults()

	trail, err := audit.New(store)
	if err != nil {
		return nil, fmt.Errorf("learning: build audit trail: %w", err)
	}

	return &Pipeline{
		cfg:       cfg,
		ErrorLog:  errorlog.New(eventBus),
		Analysis:  analysis.New(eventBus),
		Generator: generator.New(),
		Validator: validator.NewWithThreshold(cfg.ValidatorMode, cfg.ConfidenceThreshold),
		Safety:    safetyCtrl,
		Applier:   applier.New(store, eventBus, applierState, cfg.ApplierConfig),
		Rollback:  rollback.New(store, eventBus, applierState),
		Audit:     trail,
		store:     store,
		events:    eventBus,
	}, nil
}

// Outcome summarizes what HandleError did with one captured error.
type Outcome struct {
	Entry      model.ErrorLogEntry
	Analysis   analysis.Result
	Proposals  []model.FixProposal
	AutoApplied *applier.Result
	Pending    []string // change ids left pending human review
}

// HandleError runs capture -> analyze -> generate for one error
// occurrence, persists every generated proposal as pending, and - when
// AutoApply is enabled - validates and applies the highest-confidence
// proposal immediately if the Safety Controller allows it.
func (p *Pipeline) HandleError(ctx context.Context, in errorlog.CaptureInput) (Outcome, error) {
	entry := p.ErrorLog.Capture(ctx, in)
	result := p.Analysis.Analyze(ctx, entry)
	proposals := p.Generator.Generate(entry, result, generator.MinConfidence)

	out := Outcome{Entry: entry, Analysis: result, Proposals: proposals}
	if len(proposals) == 0 {
		return out, nil
	}

	for _, prop := range proposals {
		if err := p.store.SaveProposal(prop); err != nil {
			return out, fmt.Errorf("learning: save proposal %s: %w", prop.ChangeID, err)
		}
		if p.events != nil {
			p.events.Publish(ctx, events.Event{Topic: events.TopicFixProposed, Payload: prop})
		}
		out.Pending = append(out.Pending, prop.ChangeID)
	}

	if !p.cfg.AutoApply {
		return out, nil
	}

	best := proposals[0]
	for _, prop := range proposals[1:] {
		if prop.Confidence > best.Confidence {
			best = prop
		}
	}
	if best.Confidence < p.cfg.ConfidenceThreshold {
		return out, nil
	}

	applyResult, _, err := p.ApplyProposal(ctx, best.ChangeID, "self-learning-pipeline", "", false)
	if err != nil {
		return out, nil // leave it pending; auto-apply is best-effort
	}
	out.AutoApplied = applyResult
	out.Pending = removeChangeID(out.Pending, best.ChangeID)
	return out, nil
}

// ApplyProposal validates a pending proposal and, unless dryRun is set,
// runs it through the Safety Controller and the Apply Engine. It returns
// the validation result alongside the apply result (nil when dryRun or
// when validation/safety rejected the proposal).
func (p *Pipeline) ApplyProposal(ctx context.Context, changeID, proposedBy, approvedBy string, dryRun bool) (*applier.Result, model.ValidationResult, error) {
	proposal, err := p.store.LoadProposal(changeID)
	if err != nil {
		return nil, model.ValidationResult{}, fmt.Errorf("learning: no pending proposal %s: %w", changeID, err)
	}

	validation := p.Validator.Validate(ctx, proposal)
	if p.events != nil {
		p.events.Publish(ctx, events.Event{Topic: events.TopicFixValidated, Payload: validation})
	}
	if dryRun || !validation.Approved {
		return nil, validation, nil
	}

	check := p.Safety.Check(safety.Request{ChangeID: changeID, Confidence: validation.OverallConfidence, Risk: proposal.Risk})
	if !check.Allowed {
		if p.events != nil {
			p.events.Publish(ctx, events.Event{Topic: events.TopicSafetyBlocked, Payload: check})
		}
		return nil, validation, fmt.Errorf("learning: safety controller blocked %s: %s", changeID, check.Details)
	}

	result, err := p.Applier.Apply(ctx, proposal, proposedBy, approvedBy)
	if err != nil {
		p.Safety.RecordFailure(changeID)
		return &result, validation, err
	}
	p.Safety.RecordAttempt(changeID)
	p.Analysis.Registry().RecordKnownFix(proposal.PatternHash, model.KnownFix{
		ChangeID:         changeID,
		Strategy:         string(proposal.Strategy),
		Effectiveness:    validation.OverallConfidence,
		ApplicationCount: 1,
	})
	_ = p.store.DeleteProposal(changeID)
	return &result, validation, nil
}

// RevertChange locates the most recent backup for changeID and rolls it
// back through the Rollback Manager.
func (p *Pipeline) RevertChange(ctx context.Context, changeID, reason string) (model.AuditRecord, error) {
	backups, err := p.store.ListBackups()
	if err != nil {
		return model.AuditRecord{}, fmt.Errorf("learning: list backups: %w", err)
	}

	var latest *model.BackupRecord
	for i := range backups {
		b := backups[i]
		if b.ChangeID != changeID {
			continue
		}
		if latest == nil || b.CreatedAt.After(latest.CreatedAt) {
			latest = &b
		}
	}
	if latest == nil {
		return model.AuditRecord{}, fmt.Errorf("learning: no backup found for change %s", changeID)
	}

	return p.Rollback.Rollback(ctx, rollback.Request{
		ChangeID: changeID,
		Trigger:  rollback.TriggerManualRequest,
		Reason:   reason,
	}, latest.ID)
}

func removeChangeID(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
