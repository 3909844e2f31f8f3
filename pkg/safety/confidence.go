package safety

import "github.com/forgeflow/orchestrator/pkg/model"

// confidenceGate implements spec §4.6 gate 5: required confidence varies by
// risk level, with bands below the threshold yielding OVERRIDE_REQUIRED or
// WARNING instead of an outright block, and isolation requirement derived
// from risk (always full in a production context).
func confidenceGate(req Request) CheckResult {
	required := 0.7
	if req.Risk == model.RiskHigh {
		required = 0.9
	}

	isolation := isolationFor(req)

	switch {
	case req.Confidence < 0.5:
		return CheckResult{
			Allowed: false, Status: StatusOverrideRequired, Reason: ReasonLowConfidence,
			Details: "confidence below 0.5 requires a human override", Isolation: isolation,
		}
	case req.Confidence < required || req.Confidence <= 0.85:
		return CheckResult{
			Allowed: true, Status: StatusWarning, Isolation: isolation,
			Details: "confidence in the 0.5-0.85 warning band; proceeding under WARNING",
		}
	default:
		return CheckResult{Allowed: true, Status: StatusSafe, Isolation: isolation}
	}
}

// isolationFor derives the isolation requirement from risk and context
// (spec §4.6: "risk low -> none, medium -> sandbox, high -> full;
// production context always requires full isolation").
func isolationFor(req Request) Isolation {
	if req.Production {
		return IsolationFull
	}
	switch req.Risk {
	case model.RiskHigh:
		return IsolationFull
	case model.RiskMedium:
		return IsolationSandbox
	default:
		return IsolationNone
	}
}
