package workflowdef

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_HasTwelvePhases(t *testing.T) {
	g := Default()
	assert.Equal(t, 12, g.TotalPhases())
	assert.Len(t, g.Phases(), 12)
}

func TestPhase_UnknownIndexFails(t *testing.T) {
	g := Default()
	_, ok := g.Phase(12)
	assert.False(t, ok)
	_, ok = g.Phase(-1)
	assert.False(t, ok)
}

func TestApprovalRequiredPhases(t *testing.T) {
	g := Default()
	wantApproval := map[int]bool{0: true, 1: true, 2: true, 3: true, 4: true, 5: true, 11: true}
	for i := 0; i < 12; i++ {
		p, ok := g.Phase(i)
		require.True(t, ok)
		assert.Equal(t, wantApproval[i], p.ApprovalRequired, "phase %d", i)
	}
}

func TestPhase4_RequiresAutoValidationGates(t *testing.T) {
	g := Default()
	p, _ := g.Phase(4)
	assert.NotEmpty(t, p.AutoValidationGates)
}

func TestEvaluate_LinearApprovalChain(t *testing.T) {
	g := Default()
	for from := 0; from < 4; from++ {
		o, ok := g.Evaluate(from, ReasonApproved)
		require.True(t, ok, "phase %d approve", from)
		assert.Equal(t, from+1, o.NextPhase)
	}
}

func TestEvaluate_CostTooHighStaysAtPhase2(t *testing.T) {
	g := Default()
	o, ok := g.Evaluate(2, ReasonCostTooHigh)
	require.True(t, ok)
	assert.Equal(t, 2, o.NextPhase)
}

func TestEvaluate_MajorChangesReturnsToPhase1(t *testing.T) {
	g := Default()
	o, ok := g.Evaluate(2, ReasonMajorChanges)
	require.True(t, ok)
	assert.Equal(t, 1, o.NextPhase)
}

func TestEvaluate_ValidationFailedRegeneratesPhase4(t *testing.T) {
	g := Default()
	o, ok := g.Evaluate(4, ReasonValidationFailed)
	require.True(t, ok)
	assert.Equal(t, 4, o.NextPhase)
}

func TestEvaluate_DeploymentRejectedTriggersRollback(t *testing.T) {
	g := Default()
	o, ok := g.Evaluate(5, ReasonDeploymentRejected)
	require.True(t, ok)
	assert.True(t, o.Rollback)
}

func TestEvaluate_DeploymentFailedTriggersEscalation(t *testing.T) {
	g := Default()
	o, ok := g.Evaluate(5, ReasonDeploymentFailed)
	require.True(t, ok)
	assert.True(t, o.Escalation)
}

func TestEvaluate_Phase8FansOutToNineAndTen(t *testing.T) {
	g := Default()
	o, ok := g.Evaluate(8, ReasonComplete)
	require.True(t, ok)
	assert.ElementsMatch(t, []int{9, 10}, o.FanOut)
}

func TestEvaluate_NineAndTenJoinAtEleven(t *testing.T) {
	g := Default()
	for _, phase := range []int{9, 10} {
		o, ok := g.Evaluate(phase, ReasonComplete)
		require.True(t, ok)
		assert.True(t, o.Join)
		assert.Equal(t, 11, o.NextPhase)
	}
}

func TestEvaluate_EleventhPhaseCompleteIsTerminal(t *testing.T) {
	g := Default()
	o, ok := g.Evaluate(11, ReasonComplete)
	require.True(t, ok)
	assert.True(t, o.Terminal)
}

func TestEvaluate_EscalateAlwaysAvailable(t *testing.T) {
	g := Default()
	for i := 0; i < 12; i++ {
		o, ok := g.Evaluate(i, ReasonEscalate)
		require.True(t, ok, "phase %d", i)
		assert.True(t, o.Escalation)
	}
}

func TestEvaluate_UnknownEdgeFails(t *testing.T) {
	g := Default()
	_, ok := g.Evaluate(0, ReasonValidationPassed)
	assert.False(t, ok)
}

func TestParallelSiblings(t *testing.T) {
	g := Default()
	assert.ElementsMatch(t, []int{10}, g.ParallelSiblings(9))
	assert.ElementsMatch(t, []int{9}, g.ParallelSiblings(10))
	assert.Nil(t, g.ParallelSiblings(0))
}
