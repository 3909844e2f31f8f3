package applier

import (
	"sync"

	"github.com/forgeflow/orchestrator/pkg/model"
)

// State is the single owner of the orchestrator's mutable system state
// (spec §9: "the current system state must be owned by a single
// component (Apply Engine); all other components read a snapshot"). All
// mutation flows through Engine.Apply and State.Restore (used by rollback).
type State struct {
	mu    sync.RWMutex
	state model.SystemState
}

// NewState returns an empty State.
func NewState() *State {
	return &State{state: model.SystemState{
		AgentDefinitions: map[string]any{},
		SkillConfigs:     map[string]any{},
		ValidationRules:  map[string]any{},
		SystemConfig:     map[string]any{},
	}}
}

// Snapshot returns a deep-enough copy for read-only inspection.
func (s *State) Snapshot() model.SystemState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Restore replaces the live state wholesale, used on rollback.
func (s *State) Restore(snapshot model.SystemState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = snapshot.Clone()
}

func (s *State) setValidationRule(target string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ValidationRules[target] = value
}

func (s *State) setConfig(target string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SystemConfig[target] = value
}

// intentRecord is what a generic-fix / error-handling / condition-check
// change records, keyed by change id, rather than mutating a specific
// subsystem (spec §4.7.5 step 3).
type intentRecord struct {
	Target      string
	Rationale   string
	CodeExample string
	Timestamp   int64
}

func (s *State) recordIntent(changeID string, rec intentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.SystemConfig == nil {
		s.state.SystemConfig = map[string]any{}
	}
	s.state.SystemConfig["intent:"+changeID] = rec
}

// hasKey reports whether a key exists directly under systemConfig or
// validationRules, for the apply engine's post-apply verification.
func (s *State) hasKey(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.state.SystemConfig[key]; ok {
		return true
	}
	if _, ok := s.state.ValidationRules[key]; ok {
		return true
	}
	return false
}
