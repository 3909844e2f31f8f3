package applier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeflow/orchestrator/pkg/model"
	"github.com/forgeflow/orchestrator/pkg/statestore"
)

func newTestEngine(t *testing.T, cfg Config) (*Engine, *statestore.Store, *State) {
	t.Helper()
	store, err := statestore.Open(t.TempDir())
	require.NoError(t, err)
	state := NewState()
	return New(store, nil, state, cfg), store, state
}

func validationProposal() model.FixProposal {
	return model.FixProposal{
		ChangeID:   "chg-1",
		Confidence: 0.8,
		Strategy:   model.StrategyAddValidation,
		Risk:       model.RiskLow,
		Change: model.ProposedChange{
			Type:      model.ChangeValidationRule,
			Target:    "agent-1.userId",
			NewValue:  "required",
			Rationale: "require userId",
		},
	}
}

func TestApply_ValidationRuleWritesStateAndAudit(t *testing.T) {
	e, _, state := newTestEngine(t, Config{})
	result, err := e.Apply(context.Background(), validationProposal(), "analyzer", "human-1")
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeSuccess, result.Audit.Execution.Status)
	ok, err := result.Audit.VerifyIntegrity()
	require.NoError(t, err)
	assert.True(t, ok)

	snap := state.Snapshot()
	assert.Equal(t, "required", snap.ValidationRules["agent-1.userId"])
}

func TestApply_BackupExistsWithMatchingChecksums(t *testing.T) {
	e, store, _ := newTestEngine(t, Config{})

	result, err := e.Apply(context.Background(), validationProposal(), "analyzer", "")
	require.NoError(t, err)
	require.NotEmpty(t, result.BackupID)

	backup, err := store.LoadBackup(result.BackupID)
	require.NoError(t, err)
	ok, err := backup.VerifyChecksums()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, result.Audit.ChangeID, backup.ChangeID)
}

func TestApply_VerificationPassesForRealWrite(t *testing.T) {
	e, _, state := newTestEngine(t, Config{VerifyAfterApply: true, AutoRollbackOnFailure: true})

	before := state.Snapshot()
	p := validationProposal()
	p.Change.Type = model.ChangeConfigUpdate
	p.Change.Target = "agent-1.retries"
	p.Change.NewValue = 3

	result, err := e.Apply(context.Background(), p, "analyzer", "")
	require.NoError(t, err)
	assert.False(t, result.RolledBack)
	assert.NotEqual(t, before, state.Snapshot())
}

func TestState_RestoreRevertsMutationByteForByte(t *testing.T) {
	state := NewState()
	before := state.Snapshot()

	state.setConfig("k1", "v1")
	assert.NotEqual(t, before, state.Snapshot())

	state.Restore(before)
	assert.Equal(t, before, state.Snapshot())
}

func TestApply_UnknownChangeTypeStillWritesAudit(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{})
	p := validationProposal()
	p.Change.Type = "not_a_real_type"

	result, err := e.Apply(context.Background(), p, "analyzer", "")
	require.Error(t, err)
	assert.Equal(t, model.OutcomeFailed, result.Audit.Execution.Status)

	ok, verr := result.Audit.VerifyIntegrity()
	require.NoError(t, verr)
	assert.True(t, ok)
}
