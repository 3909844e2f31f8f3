// Package validator implements the Fix Validator (spec §4.7.4): five
// gates, each a named capability registered by gate name, run in
// sequence against a proposal to produce an overall confidence and an
// approve/reject verdict.
package validator

import (
	"context"
	"time"

	"github.com/forgeflow/orchestrator/pkg/model"
	"github.com/forgeflow/orchestrator/pkg/registry"
)

// Gate is the polymorphic capability every validation stage implements
// (spec §9: "each gate is a capability with one method (validate)").
type Gate interface {
	Name() model.GateName
	Validate(ctx context.Context, proposal model.FixProposal) model.GateResult
}

// GateFunc adapts a plain function to the Gate interface.
type GateFunc struct {
	name model.GateName
	fn   func(ctx context.Context, proposal model.FixProposal) model.GateResult
}

func (g GateFunc) Name() model.GateName { return g.name }
func (g GateFunc) Validate(ctx context.Context, proposal model.FixProposal) model.GateResult {
	start := time.Now()
	r := g.fn(ctx, proposal)
	r.Gate = g.name
	r.Duration = time.Since(start)
	return r
}

// Mode selects how strictly Validator.Validate interprets gate failures.
type Mode string

const (
	ModeStrict  Mode = "strict"
	ModeRelaxed Mode = "relaxed"
)

// Validator runs a registry of gates against proposals.
type Validator struct {
	gates     *registry.BaseRegistry[Gate]
	mode      Mode
	threshold float64
}

// defaultConfidenceThreshold matches the pipeline's own default (spec
// §4.7.6 "confidence threshold, default 0.8").
const defaultConfidenceThreshold = 0.8

// New constructs a Validator with the five default gates registered in
// spec order (type, logic, sandbox, regression, impact), approving at
// the default confidence threshold of 0.8.
func New(mode Mode) *Validator {
	return NewWithThreshold(mode, defaultConfidenceThreshold)
}

// NewWithThreshold is New but with an explicit approval confidence
// threshold, so a caller can keep the validator's own Approved verdict
// consistent with a pipeline's configured ConfidenceThreshold.
func NewWithThreshold(mode Mode, threshold float64) *Validator {
	if threshold <= 0 {
		threshold = defaultConfidenceThreshold
	}
	v := &Validator{gates: registry.NewBaseRegistry[Gate](), mode: mode, threshold: threshold}
	for _, g := range defaultGates() {
		_ = v.gates.Register(string(g.Name()), g)
	}
	return v
}

// RegisterGate overrides or adds a gate (e.g. to inject a sandbox runner
// backed by a real execution environment).
func (v *Validator) RegisterGate(g Gate) {
	_ = v.gates.Remove(string(g.Name()))
	_ = v.gates.Register(string(g.Name()), g)
}

// Validate runs every registered gate against proposal and computes the
// overall verdict per spec §4.7.4, returning model.ValidationResult so
// callers (the Phase Controller, the Monitor) consume the shared type.
func (v *Validator) Validate(ctx context.Context, proposal model.FixProposal) model.ValidationResult {
	gates := v.gates.List()

	var results []model.GateResult
	for _, g := range gates {
		results = append(results, g.Validate(ctx, proposal))
	}

	result := model.ValidationResult{ChangeID: proposal.ChangeID, Gates: results}
	passed := result.PassedGateCount()
	result.AllGatesPassed = passed == len(gates)

	overall := proposal.Confidence * (0.5 + 0.5*float64(passed)/float64(len(gates)))
	for _, g := range results {
		if g.Passed {
			continue
		}
		switch g.Severity {
		case model.GateError:
			overall *= 0.5
		case model.GateWarning:
			overall *= 0.8
		}
	}
	result.OverallConfidence = overall

	switch v.mode {
	case ModeRelaxed:
		result.Approved = !result.HasErrorSeverityFailure() && overall >= v.threshold
	default:
		result.Approved = result.AllGatesPassed && overall >= v.threshold
	}
	return result
}
