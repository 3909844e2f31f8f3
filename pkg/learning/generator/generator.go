// Package generator implements the Fix Generator (spec §4.7.3): a
// per-category strategy catalogue that proposes up to three fix
// candidates per error, scored by root-cause confidence, evidence, and
// risk factors.
package generator

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/forgeflow/orchestrator/pkg/learning/analysis"
	"github.com/forgeflow/orchestrator/pkg/model"
)

// MinConfidence is the default floor below which a proposal is discarded.
const MinConfidence = 0.3

// MaxProposals is the maximum number of proposals returned per error.
const MaxProposals = 3

// strategySpec is one catalogue entry: a strategy plus how it derives a
// ProposedChange and risk level from an error/root-cause pair.
type strategySpec struct {
	strategy Strategy
	risk     model.RiskLevel
	build    func(entry model.ErrorLogEntry) model.ProposedChange
}

// Strategy aliases model.Strategy so callers don't need two imports for
// the same enum in common usage.
type Strategy = model.Strategy

// catalogue maps error category to its candidate strategies, in priority
// order (first entries are tried first when truncating to MaxProposals).
var catalogue = map[model.ErrorCategory][]strategySpec{
	model.CategoryMissingParameter: {
		{model.StrategyAddValidation, model.RiskLow, func(e model.ErrorLogEntry) model.ProposedChange {
			return model.ProposedChange{Type: model.ChangeValidationRule, Target: e.Agent, Rationale: "require the missing parameter before dispatch"}
		}},
		{model.StrategySetDefaultValue, model.RiskMedium, func(e model.ErrorLogEntry) model.ProposedChange {
			return model.ProposedChange{Type: model.ChangeDefaultValue, Target: e.Agent, Rationale: "supply a safe default for the missing parameter"}
		}},
	},
	model.CategoryInvalidParameter: {
		{model.StrategyStrengthenValidation, model.RiskLow, func(e model.ErrorLogEntry) model.ProposedChange {
			return model.ProposedChange{Type: model.ChangeValidationRule, Target: e.Agent, Rationale: "tighten input validation"}
		}},
	},
	model.CategoryTypeMismatch: {
		{model.StrategyAddValidation, model.RiskLow, func(e model.ErrorLogEntry) model.ProposedChange {
			return model.ProposedChange{Type: model.ChangeTypeCheck, Target: e.Agent, Rationale: "enforce expected type before use"}
		}},
	},
	model.CategoryLogicFailure: {
		{model.StrategyFixLogic, model.RiskHigh, func(e model.ErrorLogEntry) model.ProposedChange {
			return model.ProposedChange{Type: model.ChangeGenericFix, Target: e.Agent, Rationale: "correct the faulty branch"}
		}},
		{model.StrategyAddCondition, model.RiskMedium, func(e model.ErrorLogEntry) model.ProposedChange {
			return model.ProposedChange{Type: model.ChangeConditionCheck, Target: e.Agent, Rationale: "guard the failing branch with an explicit condition"}
		}},
	},
	model.CategorySequenceError: {
		{model.StrategyRefactorFlow, model.RiskHigh, func(e model.ErrorLogEntry) model.ProposedChange {
			return model.ProposedChange{Type: model.ChangeGenericFix, Target: e.Agent, Rationale: "reorder the offending steps"}
		}},
	},
	model.CategorySkillNotFound: {
		{model.StrategyChangeSkill, model.RiskMedium, func(e model.ErrorLogEntry) model.ProposedChange {
			return model.ProposedChange{Type: model.ChangeGenericFix, Target: e.Skill, Rationale: "route to an available equivalent skill"}
		}},
	},
	model.CategoryDependencyNotFound: {
		{model.StrategyAddDependency, model.RiskMedium, func(e model.ErrorLogEntry) model.ProposedChange {
			return model.ProposedChange{Type: model.ChangeGenericFix, Target: e.Agent, Rationale: "register the missing dependency"}
		}},
	},
	model.CategoryDependencyError: {
		{model.StrategyUpdateDependency, model.RiskMedium, func(e model.ErrorLogEntry) model.ProposedChange {
			return model.ProposedChange{Type: model.ChangeGenericFix, Target: e.Agent, Rationale: "pin the dependency to a known-good version"}
		}},
	},
	model.CategoryConfigMissing: {
		{model.StrategyAddConfigOption, model.RiskLow, func(e model.ErrorLogEntry) model.ProposedChange {
			return model.ProposedChange{Type: model.ChangeConfigUpdate, Target: e.Agent, Rationale: "add the missing configuration option"}
		}},
	},
	model.CategoryConfigInvalid: {
		{model.StrategyUpdateConfig, model.RiskLow, func(e model.ErrorLogEntry) model.ProposedChange {
			return model.ProposedChange{Type: model.ChangeConfigUpdate, Target: e.Agent, Rationale: "correct the invalid configuration value"}
		}},
	},
	model.CategorySkillTimeout: {
		{model.StrategyImproveLogging, model.RiskLow, func(e model.ErrorLogEntry) model.ProposedChange {
			return model.ProposedChange{Type: model.ChangeGenericFix, Target: e.Skill, Rationale: "log timing detail ahead of a timeout tuning change"}
		}},
	},
	model.CategoryTimeout: {
		{model.StrategyAddErrorHandling, model.RiskMedium, func(e model.ErrorLogEntry) model.ProposedChange {
			return model.ProposedChange{Type: model.ChangeErrorHandling, Target: e.Agent, Rationale: "add a bounded retry around the slow call"}
		}},
	},
}

// fallbackStrategy is used for categories with no catalogue entry.
var fallbackStrategy = strategySpec{
	strategy: model.StrategyAddErrorHandling,
	risk:     model.RiskHigh,
	build: func(e model.ErrorLogEntry) model.ProposedChange {
		return model.ProposedChange{Type: model.ChangeErrorHandling, Target: e.Agent, Rationale: "wrap the failure point with error handling pending further analysis"}
	},
}

// Generator is the Fix Generator.
type Generator struct {
	now func() time.Time
}

// New constructs a Generator.
func New() *Generator {
	return &Generator{now: time.Now}
}

// Generate produces up to MaxProposals proposals for entry given its
// analysis.Result, discarding any below minConfidence (0 means use
// MinConfidence).
func (g *Generator) Generate(entry model.ErrorLogEntry, result analysis.Result, minConfidence float64) []model.FixProposal {
	if minConfidence <= 0 {
		minConfidence = MinConfidence
	}

	specs := catalogue[entry.Category]
	if len(specs) == 0 {
		specs = []strategySpec{fallbackStrategy}
	}

	knownFix := result.Pattern != nil && len(result.Pattern.KnownFixes) > 0

	var proposals []model.FixProposal
	for _, spec := range specs {
		if len(proposals) >= MaxProposals {
			break
		}
		confidence := confidenceFor(result.RootCause, result.Confidence, spec.risk, knownFix)
		if confidence < minConfidence {
			continue
		}

		change := spec.build(entry)
		var alternatives []model.Strategy
		for _, alt := range specs {
			if alt.strategy != spec.strategy {
				alternatives = append(alternatives, alt.strategy)
			}
		}

		proposals = append(proposals, model.FixProposal{
			ChangeID:      fmt.Sprintf("chg-%s", uuid.NewString()),
			SourceErrorID: entry.ID,
			PatternHash:   entry.PatternHash,
			Change:        change,
			Strategy:      spec.strategy,
			Alternatives:  alternatives,
			Confidence:    confidence,
			Risk:          spec.risk,
			Status:        model.ProposalProposed,
			CreatedAt:     g.now(),
		})
	}
	return proposals
}

// confidenceFor computes spec §4.7.3's confidence formula: root-cause
// confidence x evidence score x risk factors (known fix +0.15, low-risk
// +0.1, high-risk -0.2), capped to [0, 1].
func confidenceFor(rc analysis.RootCause, evidenceAdjustedConfidence float64, risk model.RiskLevel, knownFix bool) float64 {
	confidence := rc.Confidence * rc.Evidence
	if evidenceAdjustedConfidence > 0 {
		confidence = evidenceAdjustedConfidence * rc.Evidence
	}

	if knownFix {
		confidence += 0.15
	}
	switch risk {
	case model.RiskLow:
		confidence += 0.1
	case model.RiskHigh:
		confidence -= 0.2
	}

	if confidence > 1.0 {
		confidence = 1.0
	}
	if confidence < 0 {
		confidence = 0
	}
	return confidence
}
