package model

import "time"

// Strategy is one of the enumerated fix-generation strategies (spec §4.3/§4.7.3).
type Strategy string

const (
	StrategyUpdateParameter       Strategy = "update_parameter"
	StrategyAddValidation         Strategy = "add_validation"
	StrategySetDefaultValue       Strategy = "set_default_value"
	StrategyFixLogic              Strategy = "fix_logic"
	StrategyAddCondition          Strategy = "add_condition"
	StrategyRefactorFlow          Strategy = "refactor_flow"
	StrategyUpdateDependency      Strategy = "update_dependency"
	StrategyAddDependency         Strategy = "add_dependency"
	StrategyChangeSkill           Strategy = "change_skill"
	StrategyStrengthenValidation  Strategy = "strengthen_validation"
	StrategyAddErrorHandling      Strategy = "add_error_handling"
	StrategyImproveLogging        Strategy = "improve_logging"
	StrategyUpdateConfig          Strategy = "update_config"
	StrategyAddConfigOption       Strategy = "add_config_option"
)

// RiskLevel is a fix proposal's assessed risk.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ChangeType classifies what kind of mutation a fix proposal performs; the
// Apply Engine switches on this to decide where state lands (spec §4.7.5).
type ChangeType string

const (
	ChangeValidationRule ChangeType = "validation_rule"
	ChangeTypeCheck      ChangeType = "type_check"
	ChangeDefaultValue   ChangeType = "default_value"
	ChangeConfigUpdate   ChangeType = "config_update"
	ChangeErrorHandling  ChangeType = "error_handling"
	ChangeConditionCheck ChangeType = "condition_check"
	ChangeGenericFix     ChangeType = "generic_fix"
)

// ProposedChange describes the concrete mutation a Fix Proposal recommends.
type ProposedChange struct {
	Type        ChangeType `json:"type"`
	Target      string     `json:"target"`
	OldValue    any        `json:"oldValue,omitempty"`
	NewValue    any        `json:"newValue,omitempty"`
	Rationale   string     `json:"rationale"`
	CodeExample string     `json:"codeExample,omitempty"`
}

// ImpactAssessment estimates the blast radius of applying a change.
type ImpactAssessment struct {
	AffectedAgents  []string `json:"affectedAgents,omitempty"`
	AffectedSkills  []string `json:"affectedSkills,omitempty"`
	SideEffects     []string `json:"sideEffects,omitempty"`
	Breakages       []string `json:"breakages,omitempty"`
}

// RiskScore computes the impact-analysis gate's risk score (spec §4.7.4):
//
//	risk = 0.1*|affectedAgents| + 0.05*|affectedSkills| + 0.15*|sideEffects|
//	     + 0.25*|breakages| + {0.15 medium / 0.3 high strategy risk}
//
// capped at 1.0.
func (ia ImpactAssessment) RiskScore(strategyRisk RiskLevel) float64 {
	score := 0.1*float64(len(ia.AffectedAgents)) +
		0.05*float64(len(ia.AffectedSkills)) +
		0.15*float64(len(ia.SideEffects)) +
		0.25*float64(len(ia.Breakages))

	switch strategyRisk {
	case RiskMedium:
		score += 0.15
	case RiskHigh:
		score += 0.3
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// RollbackPlan describes how an applied change can be reverted.
type RollbackPlan struct {
	Reversible          bool          `json:"reversible"`
	EstimatedRollback   time.Duration `json:"estimatedRollbackTime"`
	Dependencies        []string      `json:"dependencies,omitempty"`
}

// ProposalStatus is a Fix Proposal's lifecycle status.
type ProposalStatus string

const (
	ProposalProposed   ProposalStatus = "proposed"
	ProposalValidated  ProposalStatus = "validated"
	ProposalApproved   ProposalStatus = "approved"
	ProposalApplied    ProposalStatus = "applied"
	ProposalRolledBack ProposalStatus = "rolled-back"
	ProposalRejected   ProposalStatus = "rejected"
)

// FixProposal is a candidate change with strategy, confidence, impact, and
// rollback plan (spec §3, §4.7.3).
type FixProposal struct {
	ChangeID      string           `json:"changeId"`
	SourceErrorID string           `json:"sourceErrorId"`
	PatternHash   string           `json:"patternHash"`
	Change        ProposedChange   `json:"change"`
	Strategy      Strategy         `json:"primaryStrategy"`
	Alternatives  []Strategy       `json:"alternatives,omitempty"`
	Confidence    float64          `json:"confidence"`
	Impact        ImpactAssessment `json:"impact"`
	Risk          RiskLevel        `json:"risk"`
	Rollback      RollbackPlan     `json:"rollbackPlan"`
	Status        ProposalStatus   `json:"status"`
	CreatedAt     time.Time        `json:"createdAt"`
}
