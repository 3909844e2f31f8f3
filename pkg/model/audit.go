package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ExecutionOutcomeStatus is the status block of an Audit Record's execution
// section (spec §3).
type ExecutionOutcomeStatus string

const (
	OutcomePending     ExecutionOutcomeStatus = "pending"
	OutcomeSuccess     ExecutionOutcomeStatus = "success"
	OutcomeFailed      ExecutionOutcomeStatus = "failed"
	OutcomeRolledBack  ExecutionOutcomeStatus = "rolled-back"
	OutcomeRejected    ExecutionOutcomeStatus = "rejected"
	OutcomeBlocked     ExecutionOutcomeStatus = "blocked"
)

// DecisionBlock records who proposed/approved a change and why.
type DecisionBlock struct {
	ProposedBy        string  `json:"proposedBy"`
	ApprovedBy        string  `json:"approvedBy,omitempty"`
	Reasoning         string  `json:"reasoning"`
	Confidence        float64 `json:"confidence"`
	RecommendedAction string  `json:"recommendedAction"`
}

// ExecutionBlock records the outcome of attempting to apply a change.
type ExecutionBlock struct {
	Status    ExecutionOutcomeStatus `json:"status"`
	AppliedAt *time.Time             `json:"appliedAt,omitempty"`
	Duration  time.Duration          `json:"duration"`
	Error     string                 `json:"error,omitempty"`
}

// ImpactBlock records the measured effect of an applied change.
type ImpactBlock struct {
	ErrorsResolved       int     `json:"errorsResolved"`
	NewErrorsIntroduced  int     `json:"newErrorsIntroduced"`
	PerformanceImpact    float64 `json:"performanceImpact"`
}

// RollbackInfo records a rollback performed against a change, if any.
type RollbackInfo struct {
	Trigger    string    `json:"trigger"`
	RolledBackAt time.Time `json:"rolledBackAt"`
	Reason     string    `json:"reason"`
	Success    bool      `json:"success"`
}

// AuditMetadata carries request-scoped tags for a record.
type AuditMetadata struct {
	ExecutionID string `json:"executionId,omitempty"`
	UserID      string `json:"userId,omitempty"`
	System      string `json:"system"`
	Version     string `json:"version"`
}

// AuditRecord is the append-only log entry of spec §3/§6. IntegrityHash is
// SHA-256 over the canonical JSON encoding of every other field.
type AuditRecord struct {
	AuditID       string        `json:"auditId"`
	ChangeID      string        `json:"changeId"`
	Timestamp     time.Time     `json:"timestamp"`
	Decision      DecisionBlock `json:"decision"`
	Execution     ExecutionBlock `json:"execution"`
	Impact        ImpactBlock   `json:"impact"`
	RollbackInfo  *RollbackInfo `json:"rollbackInfo"`
	Metadata      AuditMetadata `json:"metadata"`
	IntegrityHash string        `json:"integrityHash"`
}

// hashable is AuditRecord without the IntegrityHash field, so the hash
// never depends on itself.
type hashable struct {
	AuditID      string         `json:"auditId"`
	ChangeID     string         `json:"changeId"`
	Timestamp    time.Time      `json:"timestamp"`
	Decision     DecisionBlock  `json:"decision"`
	Execution    ExecutionBlock `json:"execution"`
	Impact       ImpactBlock    `json:"impact"`
	RollbackInfo *RollbackInfo  `json:"rollbackInfo"`
	Metadata     AuditMetadata  `json:"metadata"`
}

// ComputeIntegrityHash computes SHA-256(canonicalJSON(record \ integrityHash)).
func (r AuditRecord) ComputeIntegrityHash() (string, error) {
	h := hashable{
		AuditID:      r.AuditID,
		ChangeID:     r.ChangeID,
		Timestamp:    r.Timestamp,
		Decision:     r.Decision,
		Execution:    r.Execution,
		Impact:       r.Impact,
		RollbackInfo: r.RollbackInfo,
		Metadata:     r.Metadata,
	}
	data, err := CanonicalJSON(h)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Seal computes and sets IntegrityHash.
func (r *AuditRecord) Seal() error {
	hash, err := r.ComputeIntegrityHash()
	if err != nil {
		return err
	}
	r.IntegrityHash = hash
	return nil
}

// VerifyIntegrity reports whether the stored IntegrityHash matches a fresh
// computation, per spec §4.7.7 verifyIntegrity.
func (r AuditRecord) VerifyIntegrity() (bool, error) {
	hash, err := r.ComputeIntegrityHash()
	if err != nil {
		return false, err
	}
	return hash == r.IntegrityHash, nil
}
