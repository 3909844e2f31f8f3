// Package audit implements the Audit Trail (spec §4.7.7): an append-only
// store keyed by audit id with a secondary change-id index, durable via
// pkg/statestore, supporting integrity verification and reporting.
package audit

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/forgeflow/orchestrator/pkg/model"
	"github.com/forgeflow/orchestrator/pkg/statestore"
)

// Filter narrows GetAuditHistory queries.
type Filter struct {
	ChangeID string
	From     time.Time
	To       time.Time
}

// IntegrityReport is the result of verifying every record's hash.
type IntegrityReport struct {
	Total   int
	Valid   int
	Invalid []string // audit ids whose stored hash doesn't match a recomputation
}

// Report is generateReport's output (spec §4.7.7).
type Report struct {
	From                   time.Time
	To                     time.Time
	Summary                map[model.ExecutionOutcomeStatus]int
	TotalImpact            model.ImpactBlock
	ConfidenceDistribution map[string]int // bucketed by 0.1 steps, e.g. "0.7-0.8"
	RecentChanges          []model.AuditRecord
}

// Trail is the Audit Trail.
type Trail struct {
	store *statestore.Store

	mu          sync.RWMutex
	byID        map[string]model.AuditRecord
	byChangeID  map[string][]string // changeId -> audit ids, insertion order
	order       []string            // audit ids in insertion order
}

// New constructs a Trail backed by store. Durable records already on
// disk are loaded eagerly so a restart recovers full history.
func New(store *statestore.Store) (*Trail, error) {
	t := &Trail{
		store:      store,
		byID:       make(map[string]model.AuditRecord),
		byChangeID: make(map[string][]string),
	}
	existing, err := store.ListAudits()
	if err != nil {
		return nil, fmt.Errorf("audit: load existing records: %w", err)
	}
	for _, a := range existing {
		t.index(a)
	}
	return t, nil
}

func (t *Trail) index(a model.AuditRecord) {
	t.byID[a.AuditID] = a
	t.byChangeID[a.ChangeID] = append(t.byChangeID[a.ChangeID], a.AuditID)
	t.order = append(t.order, a.AuditID)
}

// record persists a (possibly updated) audit record and indexes it.
func (t *Trail) record(a model.AuditRecord) error {
	if err := t.store.SaveAudit(a); err != nil {
		return fmt.Errorf("audit: save: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.byID[a.AuditID]; !exists {
		t.index(a)
	} else {
		t.byID[a.AuditID] = a
	}
	return nil
}

// RecordDecision appends an audit record for a proposed/approved/rejected
// decision, before any apply attempt.
func (t *Trail) RecordDecision(changeID string, decision model.DecisionBlock) (model.AuditRecord, error) {
	a := model.AuditRecord{
		AuditID:   "aud-" + changeID + "-decision",
		ChangeID:  changeID,
		Timestamp: time.Now(),
		Decision:  decision,
		Execution: model.ExecutionBlock{Status: model.OutcomePending},
		Metadata:  model.AuditMetadata{System: "self-learning-pipeline", Version: "1"},
	}
	if err := a.Seal(); err != nil {
		return model.AuditRecord{}, err
	}
	return a, t.record(a)
}

// RecordExecution appends or updates the execution-outcome audit record
// for a change (typically the one the Apply Engine already wrote).
func (t *Trail) RecordExecution(a model.AuditRecord) error {
	if err := a.Seal(); err != nil {
		return err
	}
	return t.record(a)
}

// RecordRollback appends the audit record a rollback produced.
func (t *Trail) RecordRollback(a model.AuditRecord) error {
	if err := a.Seal(); err != nil {
		return err
	}
	return t.record(a)
}

// GetAuditHistory returns every record matching filter, newest first.
func (t *Trail) GetAuditHistory(filter Filter) []model.AuditRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []model.AuditRecord
	for _, id := range t.order {
		a := t.byID[id]
		if filter.ChangeID != "" && a.ChangeID != filter.ChangeID {
			continue
		}
		if !filter.From.IsZero() && a.Timestamp.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && a.Timestamp.After(filter.To) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// VerifyIntegrity recomputes every record's integrity hash and flags
// mismatches (spec §4.7.7: "a mismatch is a fatal system event").
func (t *Trail) VerifyIntegrity() (IntegrityReport, error) {
	t.mu.RLock()
	records := make([]model.AuditRecord, 0, len(t.byID))
	for _, a := range t.byID {
		records = append(records, a)
	}
	t.mu.RUnlock()

	report := IntegrityReport{Total: len(records)}
	for _, a := range records {
		ok, err := a.VerifyIntegrity()
		if err != nil {
			return report, fmt.Errorf("audit: verify %s: %w", a.AuditID, err)
		}
		if ok {
			report.Valid++
		} else {
			report.Invalid = append(report.Invalid, a.AuditID)
		}
	}
	sort.Strings(report.Invalid)
	return report, nil
}

// GenerateReport summarises records in [from, to] by execution status,
// cumulative impact, and confidence distribution.
func (t *Trail) GenerateReport(from, to time.Time) Report {
	records := t.GetAuditHistory(Filter{From: from, To: to})

	report := Report{
		From:                   from,
		To:                     to,
		Summary:                make(map[model.ExecutionOutcomeStatus]int),
		ConfidenceDistribution: make(map[string]int),
	}
	for _, a := range records {
		report.Summary[a.Execution.Status]++
		report.TotalImpact.ErrorsResolved += a.Impact.ErrorsResolved
		report.TotalImpact.NewErrorsIntroduced += a.Impact.NewErrorsIntroduced
		report.TotalImpact.PerformanceImpact += a.Impact.PerformanceImpact
		report.ConfidenceDistribution[confidenceBucket(a.Decision.Confidence)]++
	}
	if len(records) > 10 {
		records = records[:10]
	}
	report.RecentChanges = records
	return report
}

func confidenceBucket(c float64) string {
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	lo := float64(int(c*10)) / 10
	hi := lo + 0.1
	return fmt.Sprintf("%.1f-%.1f", lo, hi)
}
