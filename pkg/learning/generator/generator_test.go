package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeflow/orchestrator/pkg/learning/analysis"
	"github.com/forgeflow/orchestrator/pkg/model"
)

func TestGenerate_MissingParameterProducesAddValidation(t *testing.T) {
	g := New()
	entry := model.ErrorLogEntry{ID: "e1", Category: model.CategoryMissingParameter, Agent: "agent-1"}
	result := analysis.Result{RootCause: analysis.RootCause{Kind: "missing_parameter", Evidence: 0.9, Confidence: 0.9}, Confidence: 0.9}

	proposals := g.Generate(entry, result, 0)
	require.NotEmpty(t, proposals)
	assert.Equal(t, model.StrategyAddValidation, proposals[0].Strategy)
	assert.Equal(t, model.RiskLow, proposals[0].Risk)
}

func TestGenerate_CapsAtMaxProposals(t *testing.T) {
	g := New()
	entry := model.ErrorLogEntry{ID: "e1", Category: model.CategoryMissingParameter}
	result := analysis.Result{RootCause: analysis.RootCause{Evidence: 1.0, Confidence: 1.0}, Confidence: 1.0}

	proposals := g.Generate(entry, result, 0)
	assert.LessOrEqual(t, len(proposals), MaxProposals)
}

func TestGenerate_DiscardsBelowMinConfidence(t *testing.T) {
	g := New()
	entry := model.ErrorLogEntry{ID: "e1", Category: model.CategoryLogicFailure}
	result := analysis.Result{RootCause: analysis.RootCause{Kind: "unclassified", Evidence: 0.3, Confidence: 0.3}, Confidence: 0.3}

	proposals := g.Generate(entry, result, 0.9)
	assert.Empty(t, proposals)
}

func TestGenerate_KnownFixBoostsConfidence(t *testing.T) {
	g := New()
	entry := model.ErrorLogEntry{ID: "e1", Category: model.CategoryConfigMissing}
	base := analysis.Result{RootCause: analysis.RootCause{Evidence: 0.8, Confidence: 0.8}, Confidence: 0.8}
	withFix := analysis.Result{
		RootCause: analysis.RootCause{Evidence: 0.8, Confidence: 0.8},
		Confidence: 0.8,
		Pattern:   &model.ErrorPattern{KnownFixes: []model.KnownFix{{ChangeID: "c1"}}},
	}

	p1 := g.Generate(entry, base, 0)
	p2 := g.Generate(entry, withFix, 0)
	require.NotEmpty(t, p1)
	require.NotEmpty(t, p2)
	assert.Greater(t, p2[0].Confidence, p1[0].Confidence)
}

func TestGenerate_FallsBackForUnknownCategory(t *testing.T) {
	g := New()
	entry := model.ErrorLogEntry{ID: "e1", Category: model.CategoryUnknown}
	result := analysis.Result{RootCause: analysis.RootCause{Evidence: 0.9, Confidence: 0.9}, Confidence: 0.9}

	proposals := g.Generate(entry, result, 0)
	require.NotEmpty(t, proposals)
	assert.Equal(t, model.StrategyAddErrorHandling, proposals[0].Strategy)
}

func TestGenerate_HighRiskReducesConfidence(t *testing.T) {
	g := New()
	entry := model.ErrorLogEntry{ID: "e1", Category: model.CategorySequenceError}
	result := analysis.Result{RootCause: analysis.RootCause{Evidence: 0.8, Confidence: 0.8}, Confidence: 0.8}

	proposals := g.Generate(entry, result, 0)
	require.NotEmpty(t, proposals)
	assert.Less(t, proposals[0].Confidence, 0.8)
}
