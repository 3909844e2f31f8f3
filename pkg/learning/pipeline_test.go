package learning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeflow/orchestrator/pkg/events"
	"github.com/forgeflow/orchestrator/pkg/learning/applier"
	"github.com/forgeflow/orchestrator/pkg/learning/errorlog"
	"github.com/forgeflow/orchestrator/pkg/learning/rollback"
	"github.com/forgeflow/orchestrator/pkg/model"
	"github.com/forgeflow/orchestrator/pkg/safety"
	"github.com/forgeflow/orchestrator/pkg/statestore"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	store, err := statestore.Open(t.TempDir())
	require.NoError(t, err)

	safetyCtrl, err := safety.New(safety.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = safetyCtrl.Close() })

	p, err := New(Config{ValidatorMode: "strict"}, store, events.New(), safetyCtrl, applier.NewState())
	require.NoError(t, err)
	return p
}

// highConfidenceProposal clears both the validator's 0.8 approval bar and
// the safety controller's 0.85 confidence-gate bar when every validation
// gate passes, matching validator.goodProposal's shape so the logic gate's
// "rationale mentions validation" check also passes.
func highConfidenceProposal(changeID string) model.FixProposal {
	return model.FixProposal{
		ChangeID:   changeID,
		Confidence: 0.95,
		Risk:       model.RiskLow,
		Change: model.ProposedChange{
			Type:      model.ChangeValidationRule,
			Target:    "agent.userId",
			Rationale: "require the missing parameter before dispatch",
		},
	}
}

func TestHandleError_GeneratesAndPersistsProposals(t *testing.T) {
	p := newTestPipeline(t)
	out, err := p.HandleError(context.Background(), errorlog.CaptureInput{
		ErrorType: "ValidationError",
		Message:   "Parameter 'userId' is required",
		Agent:     "agent-1",
	})
	require.NoError(t, err)
	assert.Equal(t, model.CategoryMissingParameter, out.Entry.Category)
	require.NotEmpty(t, out.Proposals)
	assert.NotEmpty(t, out.Pending)

	saved, err := p.store.ListProposals()
	require.NoError(t, err)
	assert.Len(t, saved, len(out.Proposals))
}

func TestHandleError_NoProposalsWhenConfidenceTooLow(t *testing.T) {
	p := newTestPipeline(t)
	out, err := p.HandleError(context.Background(), errorlog.CaptureInput{
		ErrorType: "Weird",
		Message:   "something completely unclassified happened",
	})
	require.NoError(t, err)
	assert.Empty(t, out.Proposals)
	assert.Empty(t, out.Pending)
}

func TestApplyProposal_DryRunDoesNotPersistOrDelete(t *testing.T) {
	p := newTestPipeline(t)
	proposal := highConfidenceProposal("chg-dry")
	require.NoError(t, p.store.SaveProposal(proposal))

	applyResult, validation, err := p.ApplyProposal(context.Background(), "chg-dry", "tester", "", true)
	require.NoError(t, err)
	assert.Nil(t, applyResult)
	assert.True(t, validation.Approved)

	_, err = p.store.LoadProposal("chg-dry")
	assert.NoError(t, err, "dry run must not delete the pending proposal")
}

func TestApplyProposal_AppliesAndClearsPendingProposal(t *testing.T) {
	p := newTestPipeline(t)
	proposal := highConfidenceProposal("chg-apply")
	require.NoError(t, p.store.SaveProposal(proposal))

	applyResult, validation, err := p.ApplyProposal(context.Background(), "chg-apply", "tester", "approver", false)
	require.NoError(t, err)
	require.True(t, validation.Approved)
	require.NotNil(t, applyResult)
	assert.Equal(t, model.OutcomeSuccess, applyResult.Audit.Execution.Status)

	_, err = p.store.LoadProposal("chg-apply")
	assert.Error(t, err, "a successfully applied proposal must be removed from the pending set")
}

func TestApplyProposal_RejectedByValidationStaysPending(t *testing.T) {
	p := newTestPipeline(t)
	proposal := model.FixProposal{
		ChangeID:   "chg-bad-type",
		Confidence: 0.95,
		Risk:       model.RiskLow,
		Change: model.ProposedChange{
			Type:      model.ChangeValidationRule,
			Target:    "agent.userId",
			Rationale: "require the missing parameter before dispatch",
			OldValue:  "x",
			NewValue:  5, // type mismatch fails the type gate
		},
	}
	require.NoError(t, p.store.SaveProposal(proposal))

	applyResult, validation, err := p.ApplyProposal(context.Background(), "chg-bad-type", "tester", "", false)
	require.NoError(t, err)
	assert.Nil(t, applyResult)
	assert.False(t, validation.Approved)

	_, err = p.store.LoadProposal("chg-bad-type")
	assert.NoError(t, err, "a validation-rejected proposal stays pending for a later retry")
}

func TestApplyProposal_MissingProposalReturnsError(t *testing.T) {
	p := newTestPipeline(t)
	_, _, err := p.ApplyProposal(context.Background(), "ghost", "tester", "", false)
	assert.Error(t, err)
}

func TestRevertChange_RollsBackMostRecentBackup(t *testing.T) {
	p := newTestPipeline(t)
	proposal := highConfidenceProposal("chg-revert")
	require.NoError(t, p.store.SaveProposal(proposal))

	_, _, err := p.ApplyProposal(context.Background(), "chg-revert", "tester", "approver", false)
	require.NoError(t, err)

	record, err := p.RevertChange(context.Background(), "chg-revert", "regression found in production")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeRolledBack, record.Execution.Status)
	require.NotNil(t, record.RollbackInfo)
	assert.Equal(t, string(rollback.TriggerManualRequest), record.RollbackInfo.Trigger)
}

func TestRevertChange_NoBackupReturnsError(t *testing.T) {
	p := newTestPipeline(t)
	_, err := p.RevertChange(context.Background(), "never-applied", "test")
	assert.Error(t, err)
}
