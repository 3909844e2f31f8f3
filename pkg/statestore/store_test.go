package statestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeflow/orchestrator/pkg/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestSaveLoadExecution_RoundTrips(t *testing.T) {
	s := newTestStore(t)
	exec := &model.Execution{ID: "exec-1", ProjectName: "demo", Status: model.ExecutionRunning, StartedAt: time.Now().UTC()}

	require.NoError(t, s.SaveExecution(exec))
	loaded, err := s.LoadExecution("exec-1")
	require.NoError(t, err)
	assert.Equal(t, exec.ID, loaded.ID)
	assert.Equal(t, exec.ProjectName, loaded.ProjectName)
}

func TestLoadExecution_MissingReturnsError(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LoadExecution("ghost")
	assert.Error(t, err)
}

func TestListExecutionIDs_SortedAndComplete(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"exec-b", "exec-a", "exec-c"} {
		require.NoError(t, s.SaveExecution(&model.Execution{ID: id, StartedAt: time.Now().UTC()}))
	}
	ids, err := s.ListExecutionIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"exec-a", "exec-b", "exec-c"}, ids)
}

func TestSaveLoadCheckpoint_RoundTrips(t *testing.T) {
	s := newTestStore(t)
	chk := model.Checkpoint{ID: "chk-0001", ExecutionID: "exec-1", Phase: 2, Reason: model.CheckpointPhaseComplete, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.SaveCheckpoint(chk))

	list, err := s.ListCheckpoints("exec-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "chk-0001", list[0].ID)
}

func TestListCheckpoints_NoExecutionReturnsEmpty(t *testing.T) {
	s := newTestStore(t)
	list, err := s.ListCheckpoints("nope")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPruneCheckpoints_KeepsNewestN(t *testing.T) {
	s := newTestStore(t)
	for i := 1; i <= 5; i++ {
		chk := model.Checkpoint{ID: idFor(i), ExecutionID: "exec-1", CreatedAt: time.Now().UTC()}
		require.NoError(t, s.SaveCheckpoint(chk))
	}
	require.NoError(t, s.PruneCheckpoints("exec-1", 2))
	list, err := s.ListCheckpoints("exec-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, idFor(4), list[0].ID)
	assert.Equal(t, idFor(5), list[1].ID)
}

func idFor(i int) string {
	return "chk-000" + string(rune('0'+i))
}

func TestSaveArtifact_RejectsHashMismatch(t *testing.T) {
	s := newTestStore(t)
	a := model.Artifact{ID: "art-1", Content: []byte("hello"), ContentHash: "deadbeef"}
	err := s.SaveArtifact(a)
	assert.Error(t, err)
}

func TestSaveLoadArtifact_RoundTrips(t *testing.T) {
	s := newTestStore(t)
	content := []byte("resource \"aws_s3_bucket\" \"b\" {}")
	a := model.Artifact{
		ID: "art-2", Name: "main.tf", Kind: model.ArtifactInfrastructure,
		Phase: 4, Agent: "infra-generator", Content: content,
		ContentHash: model.HashContent(content), Size: int64(len(content)),
		Version: 1, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.SaveArtifact(a))

	meta, err := s.LoadArtifactMeta("art-2")
	require.NoError(t, err)
	assert.Equal(t, "main.tf", meta.Name)
	assert.Equal(t, model.ArtifactInfrastructure, meta.Kind)

	loadedContent, err := s.LoadArtifactContent("art-2")
	require.NoError(t, err)
	assert.Equal(t, content, loadedContent)
}

func TestSaveLoadBackup_RoundTrips(t *testing.T) {
	s := newTestStore(t)
	b, err := model.NewBackupRecord("backup-1", "change-1", model.SystemState{}, 24*time.Hour, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, s.SaveBackup(b))

	loaded, err := s.LoadBackup("backup-1")
	require.NoError(t, err)
	assert.Equal(t, b.MD5Sum, loaded.MD5Sum)
	assert.Equal(t, b.SHA256Sum, loaded.SHA256Sum)
}

func TestSaveLoadAudit_RoundTripsAndVerifies(t *testing.T) {
	s := newTestStore(t)
	rec := model.AuditRecord{
		AuditID: "audit-1", ChangeID: "change-1", Timestamp: time.Now().UTC(),
		Decision: model.DecisionBlock{ProposedBy: "fix-generator", Reasoning: "recurring pattern", Confidence: 0.9},
		Metadata: model.AuditMetadata{System: "orchestrator", Version: "0.1.0"},
	}
	require.NoError(t, rec.Seal())
	require.NoError(t, s.SaveAudit(rec))

	loaded, err := s.LoadAudit("audit-1")
	require.NoError(t, err)
	ok, err := loaded.VerifyIntegrity()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSaveLoadProposal_RoundTrips(t *testing.T) {
	s := newTestStore(t)
	p := model.FixProposal{ChangeID: "change-9", Strategy: model.StrategyUpdateParameter}
	require.NoError(t, s.SaveProposal(p))

	loaded, err := s.LoadProposal("change-9")
	require.NoError(t, err)
	assert.Equal(t, p.ChangeID, loaded.ChangeID)
	assert.Equal(t, p.Strategy, loaded.Strategy)
}

func TestLoadProposal_MissingReturnsError(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LoadProposal("ghost")
	assert.Error(t, err)
}

func TestListProposals_ReturnsAllSaved(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"change-a", "change-b"} {
		require.NoError(t, s.SaveProposal(model.FixProposal{ChangeID: id}))
	}
	list, err := s.ListProposals()
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestDeleteProposal_RemovesIt(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveProposal(model.FixProposal{ChangeID: "change-z"}))
	require.NoError(t, s.DeleteProposal("change-z"))

	_, err := s.LoadProposal("change-z")
	assert.Error(t, err)
}

func TestDeleteProposal_MissingIsNotAnError(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.DeleteProposal("never-existed"))
}

func TestListBackups_ReturnsAllSaved(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	b1, err := model.NewBackupRecord("backup-a", "change-1", model.SystemState{}, 24*time.Hour, now)
	require.NoError(t, err)
	b2, err := model.NewBackupRecord("backup-b", "change-2", model.SystemState{}, 24*time.Hour, now.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, s.SaveBackup(b1))
	require.NoError(t, s.SaveBackup(b2))

	list, err := s.ListBackups()
	require.NoError(t, err)
	require.Len(t, list, 2)
	changeIDs := []string{list[0].ChangeID, list[1].ChangeID}
	assert.ElementsMatch(t, []string{"change-1", "change-2"}, changeIDs)
}

func TestListAudits_SortedByID(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"audit-b", "audit-a"} {
		rec := model.AuditRecord{AuditID: id, ChangeID: "c", Timestamp: time.Now().UTC(), Metadata: model.AuditMetadata{System: "orchestrator", Version: "0.1.0"}}
		require.NoError(t, rec.Seal())
		require.NoError(t, s.SaveAudit(rec))
	}
	list, err := s.ListAudits()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "audit-a", list[0].AuditID)
	assert.Equal(t, "audit-b", list[1].AuditID)
}
