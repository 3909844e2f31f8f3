// Package agentregistry maps workflow phases to the agents capable of
// handling them (spec §4.1). It treats an agent as an opaque callable: the
// registry knows an agent's id, role, tier and schema identifiers, never
// what the agent actually computes.
package agentregistry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/forgeflow/orchestrator/pkg/registry"
)

// Descriptor is everything the registry knows about one agent.
type Descriptor struct {
	ID            string   `json:"id"`
	Role          string   `json:"role"`
	Tier          string   `json:"tier"`
	Capabilities  []string `json:"capabilities"`
	Phases        []int    `json:"phases"`
	Priority      int      `json:"priority"` // lower runs first within a phase
	Predecessors  []string `json:"predecessors,omitempty"`
	Successors    []string `json:"successors,omitempty"`
	InputSchemaID  string  `json:"inputSchemaId"`
	OutputSchemaID string  `json:"outputSchemaId"`
}

// Error is returned for UnknownPhase/UnknownAgent lookup failures (spec §4.1).
type Error struct {
	Op      string
	Subject string
	Kind    string // "UnknownPhase" or "UnknownAgent"
}

func (e *Error) Error() string {
	return fmt.Sprintf("agentregistry: %s: %s %q", e.Op, e.Kind, e.Subject)
}

func unknownPhase(op string, phase int) error {
	return &Error{Op: op, Subject: fmt.Sprintf("%d", phase), Kind: "UnknownPhase"}
}

func unknownAgent(op, id string) error {
	return &Error{Op: op, Subject: id, Kind: "UnknownAgent"}
}

// Registry is an immutable-during-execution agent catalog with phase and
// tier secondary indices. Reloads are versioned and must only be applied
// between executions (spec §4.1); Registry itself does not enforce that
// boundary, the caller does by only swapping it out at a safe point.
type Registry struct {
	*registry.BaseRegistry[Descriptor]
	mu      sync.RWMutex
	byPhase map[int][]string
	byTier  map[string][]string
	version int
	health  map[string]bool
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		BaseRegistry: registry.NewBaseRegistry[Descriptor](),
		byPhase:      make(map[int][]string),
		byTier:       make(map[string][]string),
		health:       make(map[string]bool),
	}
}

// SetHealth records id's last-known liveness as reported by a discovery
// overlay (spec §4.1). It never touches phase/tier routing, which stays
// governed by the static descriptor set regardless of liveness.
func (r *Registry) SetHealth(id string, healthy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.health[id] = healthy
}

// IsHealthy reports id's last-known liveness. An agent never reconciled
// against a discovery overlay is assumed healthy.
func (r *Registry) IsHealthy(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	healthy, ok := r.health[id]
	return !ok || healthy
}

// RegisterAgent adds an agent descriptor and its secondary index entries.
// An id that is already registered is rejected, not replaced.
func (r *Registry) RegisterAgent(d Descriptor) error {
	if d.ID == "" {
		return fmt.Errorf("agentregistry: RegisterAgent: id cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.Register(d.ID, d); err != nil {
		return fmt.Errorf("agentregistry: RegisterAgent: %w", err)
	}

	for _, p := range d.Phases {
		r.byPhase[p] = appendSorted(r.byPhase[p], d.ID, r)
	}
	if d.Tier != "" {
		r.byTier[d.Tier] = append(r.byTier[d.Tier], d.ID)
	}
	r.version++
	return nil
}

// appendSorted inserts id into ids, keeping the slice ordered by each
// agent's declared Priority (spec §4.1 "ordered by declared role priority").
func appendSorted(ids []string, id string, r *Registry) []string {
	ids = append(ids, id)
	sort.SliceStable(ids, func(i, j int) bool {
		a, _ := r.Get(ids[i])
		b, _ := r.Get(ids[j])
		return a.Priority < b.Priority
	})
	return ids
}

// AgentsForPhase returns agent ids registered for phase, ordered by
// declared priority.
func (r *Registry) AgentsForPhase(phase int) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, ok := r.byPhase[phase]
	if !ok {
		return nil, unknownPhase("AgentsForPhase", phase)
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}

// AgentsByCapability filters phase's agents down to those declaring
// capability.
func (r *Registry) AgentsByCapability(phase int, capability string) ([]string, error) {
	ids, err := r.AgentsForPhase(phase)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, id := range ids {
		d, ok := r.Get(id)
		if !ok {
			continue
		}
		for _, c := range d.Capabilities {
			if c == capability {
				out = append(out, id)
				break
			}
		}
	}
	return out, nil
}

// AgentsByTier returns every agent id registered under tier.
func (r *Registry) AgentsByTier(tier string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byTier[tier]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// Descriptor returns the full descriptor for id, failing UnknownAgent.
func (r *Registry) Descriptor(id string) (Descriptor, error) {
	d, ok := r.Get(id)
	if !ok {
		return Descriptor{}, unknownAgent("Descriptor", id)
	}
	return d, nil
}

// Version returns the registry's reload generation counter.
func (r *Registry) Version() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}
