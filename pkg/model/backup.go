package model

import (
	"crypto/md5"  //nolint:gosec // spec-mandated alongside SHA-256, not used for security
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// SystemState is the mutable state snapshot a Backup Record preserves:
// agent definitions, skill configurations, validation rules, system config
// (spec §3, §5 "systemState... mutated only by the Apply Engine").
type SystemState struct {
	AgentDefinitions   map[string]any `json:"agentDefinitions,omitempty"`
	SkillConfigs       map[string]any `json:"skillConfigurations,omitempty"`
	ValidationRules    map[string]any `json:"validationRules,omitempty"`
	SystemConfig       map[string]any `json:"systemConfig,omitempty"`
}

// Clone returns a deep-enough copy for snapshot/restore purposes. Values
// under each map are treated as immutable once stored (they are always
// replaced wholesale, never mutated in place), so a shallow map copy per
// key is sufficient to prevent aliasing between the live state and a
// snapshot.
func (s SystemState) Clone() SystemState {
	clone := SystemState{
		AgentDefinitions: make(map[string]any, len(s.AgentDefinitions)),
		SkillConfigs:     make(map[string]any, len(s.SkillConfigs)),
		ValidationRules:  make(map[string]any, len(s.ValidationRules)),
		SystemConfig:     make(map[string]any, len(s.SystemConfig)),
	}
	for k, v := range s.AgentDefinitions {
		clone.AgentDefinitions[k] = v
	}
	for k, v := range s.SkillConfigs {
		clone.SkillConfigs[k] = v
	}
	for k, v := range s.ValidationRules {
		clone.ValidationRules[k] = v
	}
	for k, v := range s.SystemConfig {
		clone.SystemConfig[k] = v
	}
	return clone
}

// BackupRecord is an immutable snapshot of SystemState taken before any
// apply (spec §3, §4.7.5 step 1).
type BackupRecord struct {
	ID          string      `json:"id"`
	ChangeID    string      `json:"changeId"`
	State       SystemState `json:"state"`
	MD5Sum      string      `json:"md5"`
	SHA256Sum   string      `json:"sha256"`
	CreatedAt   time.Time   `json:"createdAt"`
	ExpiresAt   time.Time   `json:"expiresAt"`
}

// NewBackupRecord snapshots state into an immutable BackupRecord with both
// checksums computed over its canonical JSON encoding.
func NewBackupRecord(id, changeID string, state SystemState, retention time.Duration, now time.Time) (BackupRecord, error) {
	snapshot := state.Clone()
	data, err := CanonicalJSON(snapshot)
	if err != nil {
		return BackupRecord{}, err
	}
	md5sum := md5.Sum(data) //nolint:gosec
	sha := sha256.Sum256(data)
	return BackupRecord{
		ID:        id,
		ChangeID:  changeID,
		State:     snapshot,
		MD5Sum:    hex.EncodeToString(md5sum[:]),
		SHA256Sum: hex.EncodeToString(sha[:]),
		CreatedAt: now,
		ExpiresAt: now.Add(retention),
	}, nil
}

// VerifyChecksums recomputes both checksums over the record's stored state
// and reports whether they still match (spec §5: "Backup System's checksums
// are the source of truth on restore; a checksum mismatch aborts restore").
func (b BackupRecord) VerifyChecksums() (bool, error) {
	data, err := CanonicalJSON(b.State)
	if err != nil {
		return false, err
	}
	md5sum := md5.Sum(data) //nolint:gosec
	sha := sha256.Sum256(data)
	return hex.EncodeToString(md5sum[:]) == b.MD5Sum && hex.EncodeToString(sha[:]) == b.SHA256Sum, nil
}

// IsExpired reports whether the backup has passed its retention window.
func (b BackupRecord) IsExpired(now time.Time) bool {
	return now.After(b.ExpiresAt)
}
