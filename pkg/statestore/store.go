// Package statestore persists Executions, Checkpoints, and Artifacts to
// the on-disk layout of spec §6, with every write going through an
// atomic write-to-temp-then-rename so a crash mid-write never corrupts a
// record. An optional SQL index (see sqlindex.go) mirrors a queryable
// summary of audit records and error patterns for the cases where a
// directory scan is too slow.
package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/forgeflow/orchestrator/pkg/model"
)

// Store is the root of the on-disk state tree (spec §6 "Persistent state
// layout"):
//
//	<root>/state/executions/<executionId>.json
//	<root>/state/checkpoints/<executionId>/chk-<ts>-<rand>.json
//	<root>/artifacts/<artifactId>.meta.json
//	<root>/artifacts/<artifactId>.content
//	<root>/backups/<backupId>.json
//	<root>/audit/<auditId>.json
//	<root>/proposals/<changeId>.json
//	<root>/cache/
type Store struct {
	root  string
	index *SQLIndex
}

// Open ensures the directory tree under root exists and returns a Store
// rooted there. The JSON tree is always the source of truth.
func Open(root string) (*Store, error) {
	dirs := []string{
		filepath.Join(root, "state", "executions"),
		filepath.Join(root, "state", "checkpoints"),
		filepath.Join(root, "artifacts"),
		filepath.Join(root, "backups"),
		filepath.Join(root, "audit"),
		filepath.Join(root, "proposals"),
		filepath.Join(root, "cache"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("statestore: create %s: %w", d, err)
		}
	}
	return &Store{root: root}, nil
}

// WithSQLIndex attaches idx as the Store's queryable mirror. SaveAudit
// will keep it in sync from then on; idx may be nil to detach.
func (s *Store) WithSQLIndex(idx *SQLIndex) {
	s.index = idx
}

func (s *Store) executionPath(id string) string {
	return filepath.Join(s.root, "state", "executions", id+".json")
}

func (s *Store) checkpointDir(executionID string) string {
	return filepath.Join(s.root, "state", "checkpoints", executionID)
}

func (s *Store) artifactMetaPath(id string) string {
	return filepath.Join(s.root, "artifacts", id+".meta.json")
}

func (s *Store) artifactContentPath(id string) string {
	return filepath.Join(s.root, "artifacts", id+".content")
}

func (s *Store) backupPath(id string) string {
	return filepath.Join(s.root, "backups", id+".json")
}

func (s *Store) auditPath(id string) string {
	return filepath.Join(s.root, "audit", id+".json")
}

func (s *Store) proposalPath(changeID string) string {
	return filepath.Join(s.root, "proposals", changeID+".json")
}

// SaveExecution persists exec's full state, superseding any prior copy.
func (s *Store) SaveExecution(exec *model.Execution) error {
	data, err := json.MarshalIndent(exec, "", "  ")
	if err != nil {
		return fmt.Errorf("statestore: marshal execution %s: %w", exec.ID, err)
	}
	return writeFileAtomic(s.executionPath(exec.ID), data, 0o644)
}

// LoadExecution reads the execution record for id.
func (s *Store) LoadExecution(id string) (*model.Execution, error) {
	raw, err := os.ReadFile(s.executionPath(id))
	if err != nil {
		return nil, fmt.Errorf("statestore: load execution %s: %w", id, err)
	}
	var exec model.Execution
	if err := json.Unmarshal(raw, &exec); err != nil {
		return nil, fmt.Errorf("statestore: decode execution %s: %w", id, err)
	}
	return &exec, nil
}

// ListExecutionIDs returns every execution id with a persisted record.
func (s *Store) ListExecutionIDs() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "state", "executions"))
	if err != nil {
		return nil, fmt.Errorf("statestore: list executions: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// SaveCheckpoint persists an immutable checkpoint under its execution's
// checkpoint directory. Checkpoints are never mutated after creation.
func (s *Store) SaveCheckpoint(chk model.Checkpoint) error {
	data, err := json.MarshalIndent(chk, "", "  ")
	if err != nil {
		return fmt.Errorf("statestore: marshal checkpoint %s: %w", chk.ID, err)
	}
	path := filepath.Join(s.checkpointDir(chk.ExecutionID), chk.ID+".json")
	return writeFileAtomic(path, data, 0o644)
}

// ListCheckpoints returns every checkpoint saved for executionID, oldest
// first (checkpoint ids embed a sortable timestamp prefix).
func (s *Store) ListCheckpoints(executionID string) ([]model.Checkpoint, error) {
	entries, err := os.ReadDir(s.checkpointDir(executionID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("statestore: list checkpoints for %s: %w", executionID, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]model.Checkpoint, 0, len(names))
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(s.checkpointDir(executionID), name))
		if err != nil {
			return nil, fmt.Errorf("statestore: read checkpoint %s: %w", name, err)
		}
		var chk model.Checkpoint
		if err := json.Unmarshal(raw, &chk); err != nil {
			return nil, fmt.Errorf("statestore: decode checkpoint %s: %w", name, err)
		}
		out = append(out, chk)
	}
	return out, nil
}

// PruneCheckpoints deletes checkpoints for executionID, keeping only the
// newest keep of them (by name order, i.e. the embedded timestamp), implementing the
// retention policy named in spec §3 ("pruned by retention policy").
func (s *Store) PruneCheckpoints(executionID string, keep int) error {
	entries, err := os.ReadDir(s.checkpointDir(executionID))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("statestore: prune checkpoints for %s: %w", executionID, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) <= keep {
		return nil
	}
	for _, name := range names[:len(names)-keep] {
		if err := os.Remove(filepath.Join(s.checkpointDir(executionID), name)); err != nil {
			return fmt.Errorf("statestore: remove checkpoint %s: %w", name, err)
		}
	}
	return nil
}

// artifactMeta is the on-disk metadata record for an artifact (spec §6).
type artifactMeta struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Kind        model.ArtifactKind `json:"kind"`
	Phase       int                `json:"phase"`
	Agent       string             `json:"agent"`
	ContentHash string             `json:"contentHash"`
	Size        int64              `json:"size"`
	CreatedAt   string             `json:"createdAt"`
	Version     int                `json:"version"`
}

// SaveArtifact writes an artifact's metadata and content as two separate
// files: metadata is small and read often, content may be large and is
// only read on demand.
func (s *Store) SaveArtifact(a model.Artifact) error {
	if !a.VerifyHash() {
		return fmt.Errorf("statestore: artifact %s content hash mismatch", a.ID)
	}
	meta := artifactMeta{
		ID: a.ID, Name: a.Name, Kind: a.Kind, Phase: a.Phase, Agent: a.Agent,
		ContentHash: a.ContentHash, Size: a.Size, CreatedAt: a.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		Version: a.Version,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("statestore: marshal artifact meta %s: %w", a.ID, err)
	}
	if err := writeFileAtomic(s.artifactContentPath(a.ID), a.Content, 0o644); err != nil {
		return err
	}
	return writeFileAtomic(s.artifactMetaPath(a.ID), data, 0o644)
}

// LoadArtifactMeta reads an artifact's metadata without its content.
func (s *Store) LoadArtifactMeta(id string) (model.Artifact, error) {
	raw, err := os.ReadFile(s.artifactMetaPath(id))
	if err != nil {
		return model.Artifact{}, fmt.Errorf("statestore: load artifact meta %s: %w", id, err)
	}
	var meta artifactMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return model.Artifact{}, fmt.Errorf("statestore: decode artifact meta %s: %w", id, err)
	}
	return model.Artifact{
		ID: meta.ID, Name: meta.Name, Kind: meta.Kind, Phase: meta.Phase, Agent: meta.Agent,
		ContentHash: meta.ContentHash, Size: meta.Size, Version: meta.Version,
	}, nil
}

// LoadArtifactContent reads an artifact's raw content blob.
func (s *Store) LoadArtifactContent(id string) ([]byte, error) {
	data, err := os.ReadFile(s.artifactContentPath(id))
	if err != nil {
		return nil, fmt.Errorf("statestore: load artifact content %s: %w", id, err)
	}
	return data, nil
}

// SaveBackup persists an immutable backup record.
func (s *Store) SaveBackup(b model.BackupRecord) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("statestore: marshal backup %s: %w", b.ID, err)
	}
	return writeFileAtomic(s.backupPath(b.ID), data, 0o644)
}

// LoadBackup reads a backup record.
func (s *Store) LoadBackup(id string) (model.BackupRecord, error) {
	raw, err := os.ReadFile(s.backupPath(id))
	if err != nil {
		return model.BackupRecord{}, fmt.Errorf("statestore: load backup %s: %w", id, err)
	}
	var b model.BackupRecord
	if err := json.Unmarshal(raw, &b); err != nil {
		return model.BackupRecord{}, fmt.Errorf("statestore: decode backup %s: %w", id, err)
	}
	return b, nil
}

// ListBackups returns every backup record under the backups directory,
// ordered by backup id.
func (s *Store) ListBackups() ([]model.BackupRecord, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "backups"))
	if err != nil {
		return nil, fmt.Errorf("statestore: list backups: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, strings.TrimSuffix(e.Name(), ".json"))
		}
	}
	sort.Strings(names)

	out := make([]model.BackupRecord, 0, len(names))
	for _, id := range names {
		b, err := s.LoadBackup(id)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// SaveProposal persists a fix proposal awaiting review or auto-apply,
// keyed by its change id. Unlike audit records, proposals are mutable
// (a pending proposal is deleted once applied or rejected).
func (s *Store) SaveProposal(p model.FixProposal) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("statestore: marshal proposal %s: %w", p.ChangeID, err)
	}
	return writeFileAtomic(s.proposalPath(p.ChangeID), data, 0o644)
}

// LoadProposal reads a pending proposal by change id.
func (s *Store) LoadProposal(changeID string) (model.FixProposal, error) {
	raw, err := os.ReadFile(s.proposalPath(changeID))
	if err != nil {
		return model.FixProposal{}, fmt.Errorf("statestore: load proposal %s: %w", changeID, err)
	}
	var p model.FixProposal
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.FixProposal{}, fmt.Errorf("statestore: decode proposal %s: %w", changeID, err)
	}
	return p, nil
}

// ListProposals returns every pending proposal, ordered by change id.
func (s *Store) ListProposals() ([]model.FixProposal, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "proposals"))
	if err != nil {
		return nil, fmt.Errorf("statestore: list proposals: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, strings.TrimSuffix(e.Name(), ".json"))
		}
	}
	sort.Strings(names)

	out := make([]model.FixProposal, 0, len(names))
	for _, id := range names {
		p, err := s.LoadProposal(id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// DeleteProposal removes a pending proposal once it has been applied,
// rejected, or superseded. Deleting an already-absent proposal is not an
// error.
func (s *Store) DeleteProposal(changeID string) error {
	if err := os.Remove(s.proposalPath(changeID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("statestore: delete proposal %s: %w", changeID, err)
	}
	return nil
}

// SaveAudit writes an audit record, replacing any record already stored
// under the same id. Superseding writes (e.g. a rollback recording its
// RollbackInfo on the original record) keep the original id.
func (s *Store) SaveAudit(a model.AuditRecord) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("statestore: marshal audit %s: %w", a.AuditID, err)
	}
	if err := writeFileAtomic(s.auditPath(a.AuditID), data, 0o644); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.IndexAudit(a); err != nil {
			return fmt.Errorf("statestore: mirror audit %s into sql index: %w", a.AuditID, err)
		}
	}
	return nil
}

// LoadAudit reads a single audit record.
func (s *Store) LoadAudit(id string) (model.AuditRecord, error) {
	raw, err := os.ReadFile(s.auditPath(id))
	if err != nil {
		return model.AuditRecord{}, fmt.Errorf("statestore: load audit %s: %w", id, err)
	}
	var a model.AuditRecord
	if err := json.Unmarshal(raw, &a); err != nil {
		return model.AuditRecord{}, fmt.Errorf("statestore: decode audit %s: %w", id, err)
	}
	return a, nil
}

// ListAudits returns every audit record under the audit directory,
// ordered by audit id.
func (s *Store) ListAudits() ([]model.AuditRecord, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "audit"))
	if err != nil {
		return nil, fmt.Errorf("statestore: list audit: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, strings.TrimSuffix(e.Name(), ".json"))
		}
	}
	sort.Strings(names)

	out := make([]model.AuditRecord, 0, len(names))
	for _, id := range names {
		a, err := s.LoadAudit(id)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
