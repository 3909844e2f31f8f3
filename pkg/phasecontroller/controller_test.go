package phasecontroller

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeflow/orchestrator/pkg/bus"
	"github.com/forgeflow/orchestrator/pkg/events"
	"github.com/forgeflow/orchestrator/pkg/model"
	"github.com/forgeflow/orchestrator/pkg/statestore"
	"github.com/forgeflow/orchestrator/pkg/workflowdef"
)

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(context.Context, string, model.Message) error { return nil }

func newTestController(t *testing.T, opts ...Option) *Controller {
	t.Helper()
	store, err := statestore.Open(t.TempDir())
	require.NoError(t, err)
	b := bus.New(bus.DefaultRetryPolicy(), noopDispatcher{}, events.New(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	return New(store, b, events.New(), opts...)
}

func TestStart_CreatesExecutionAtPhaseZero(t *testing.T) {
	c := newTestController(t)
	id, err := c.Start(context.Background(), ProjectConfig{ProjectName: "demo"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	exec, err := c.store.LoadExecution(id)
	require.NoError(t, err)
	assert.Equal(t, 0, exec.CurrentPhase)
	assert.Equal(t, model.PhaseInProgress, exec.Phases[0].Status)
	assert.Equal(t, model.ExecutionRunning, exec.Status)
}

func TestStart_OpensApprovalTokenForPhaseZero(t *testing.T) {
	c := newTestController(t)
	id, err := c.Start(context.Background(), ProjectConfig{})
	require.NoError(t, err)

	c.mu.Lock()
	tok, ok := c.tokens[id]
	c.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, 0, tok.Phase)
	assert.False(t, tok.Resolved)
}

func TestEvaluateTransition_LinearApprovalChain(t *testing.T) {
	c := newTestController(t)
	id, err := c.Start(context.Background(), ProjectConfig{})
	require.NoError(t, err)

	next, err := c.EvaluateTransition(context.Background(), id, workflowdef.ReasonApproved)
	require.NoError(t, err)
	assert.Equal(t, 1, next)

	exec, err := c.store.LoadExecution(id)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseCompleted, exec.Phases[0].Status)
	assert.Equal(t, model.PhaseInProgress, exec.Phases[1].Status)
}

func TestEvaluateTransition_CostTooHighReEntersPhaseTwo(t *testing.T) {
	c := newTestController(t)
	id, err := c.Start(context.Background(), ProjectConfig{})
	require.NoError(t, err)
	_, err = c.EvaluateTransition(context.Background(), id, workflowdef.ReasonApproved)
	require.NoError(t, err)
	_, err = c.EvaluateTransition(context.Background(), id, workflowdef.ReasonApproved)
	require.NoError(t, err)

	next, err := c.EvaluateTransition(context.Background(), id, workflowdef.ReasonCostTooHigh)
	require.NoError(t, err)
	assert.Equal(t, 2, next)
}

func TestEvaluateTransition_DeploymentFailedEscalates(t *testing.T) {
	c := newTestController(t)
	id, err := c.Start(context.Background(), ProjectConfig{})
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err = c.EvaluateTransition(context.Background(), id, workflowdef.ReasonApproved)
		require.NoError(t, err)
	}
	_, err = c.EvaluateTransition(context.Background(), id, workflowdef.ReasonValidationPassed)
	require.NoError(t, err)

	_, err = c.EvaluateTransition(context.Background(), id, workflowdef.ReasonDeploymentFailed)
	require.NoError(t, err)

	exec, err := c.store.LoadExecution(id)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionPaused, exec.Status)
}

func TestSubmitApproval_UnknownTokenFails(t *testing.T) {
	c := newTestController(t)
	_, err := c.SubmitApproval(context.Background(), "ghost", 0, DecisionApprove, "")
	assert.Error(t, err)
}

func TestSubmitApproval_ApproveAdvancesPhase(t *testing.T) {
	c := newTestController(t)
	id, err := c.Start(context.Background(), ProjectConfig{})
	require.NoError(t, err)

	next, err := c.SubmitApproval(context.Background(), id, 0, DecisionApprove, "looks good")
	require.NoError(t, err)
	assert.Equal(t, 1, next)
}

func TestExpireOverdueApprovals_ResolvesTokenWithoutAdvancing(t *testing.T) {
	// Phase 0's table only declares an edge for "approved"; rejection on
	// expiry resolves the token (so it is no longer open) but leaves the
	// phase in-progress, since no back-edge is declared for it.
	c := newTestController(t, WithApprovalTTL(time.Millisecond))
	id, err := c.Start(context.Background(), ProjectConfig{})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, c.ExpireOverdueApprovals(context.Background()))

	c.mu.Lock()
	tok := c.tokens[id]
	c.mu.Unlock()
	assert.True(t, tok.Resolved)
	assert.Equal(t, DecisionReject, tok.Decision)

	exec, err := c.store.LoadExecution(id)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseInProgress, exec.Phases[0].Status)
}

func TestFanOutAndJoin_AdvancesOnlyWhenBothSiblingsComplete(t *testing.T) {
	c := newTestController(t)
	id, err := c.Start(context.Background(), ProjectConfig{})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err = c.EvaluateTransition(ctx, id, workflowdef.ReasonApproved)
		require.NoError(t, err)
		if i == 3 {
			_, err = c.EvaluateTransition(ctx, id, workflowdef.ReasonValidationPassed)
			require.NoError(t, err)
		}
	}
	_, err = c.EvaluateTransition(ctx, id, workflowdef.ReasonDeploymentSucceeded)
	require.NoError(t, err)
	_, err = c.EvaluateTransition(ctx, id, workflowdef.ReasonPassed)
	require.NoError(t, err)
	_, err = c.EvaluateTransition(ctx, id, workflowdef.ReasonComplete)
	require.NoError(t, err)

	next, err := c.EvaluateTransition(ctx, id, workflowdef.ReasonComplete)
	require.NoError(t, err)
	assert.Equal(t, 8, next)

	exec, err := c.store.LoadExecution(id)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseInProgress, exec.Phases[9].Status)
	assert.Equal(t, model.PhaseInProgress, exec.Phases[10].Status)

	// Phase 9 completes; join should not yet release since phase 10 is open.
	exec.CurrentPhase = 9
	require.NoError(t, c.store.SaveExecution(exec))
	next, err = c.EvaluateTransition(ctx, id, workflowdef.ReasonComplete)
	require.NoError(t, err)
	assert.Equal(t, 9, next)

	exec, err = c.store.LoadExecution(id)
	require.NoError(t, err)
	exec.CurrentPhase = 10
	require.NoError(t, c.store.SaveExecution(exec))
	next, err = c.EvaluateTransition(ctx, id, workflowdef.ReasonComplete)
	require.NoError(t, err)
	assert.Equal(t, 11, next)
}

func TestCancel_MarksExecutionCancelled(t *testing.T) {
	c := newTestController(t)
	id, err := c.Start(context.Background(), ProjectConfig{})
	require.NoError(t, err)

	require.NoError(t, c.Cancel(context.Background(), id))

	exec, err := c.store.LoadExecution(id)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionCancelled, exec.Status)
}
