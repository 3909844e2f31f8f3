package agentregistry

import (
	"encoding/json"
	"fmt"
	"log/slog"

	consulapi "github.com/hashicorp/consul/api"
)

// ConsulSync overlays dynamically registered agents from a Consul
// catalog onto a static Registry: the static map from phase to agent
// stays authoritative, Consul only supplies instances for agent ids the
// static config already declares. This mirrors the teacher's config
// system treating Consul as one of several interchangeable backing
// stores behind the same Config shape, but scoped here to agent
// liveness rather than whole-config hot reload.
type ConsulSync struct {
	client *consulapi.Client
	prefix string
	tags   []string
	logger *slog.Logger
}

// NewConsulSync connects to the Consul agent at addr.
func NewConsulSync(addr, prefix string, tags []string, logger *slog.Logger) (*ConsulSync, error) {
	cfg := consulapi.DefaultConfig()
	cfg.Address = addr
	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("agentregistry: consul client: %w", err)
	}
	return &ConsulSync{client: client, prefix: prefix, tags: tags, logger: logger}, nil
}

// consulAgentMeta is the JSON payload stored under each KV key, one per
// live agent id, describing where its plugin binary currently lives.
type consulAgentMeta struct {
	AgentID string `json:"agentId"`
	Address string `json:"address"`
	Healthy bool   `json:"healthy"`
}

// Sync queries Consul's health-checked service catalog under s.prefix
// and returns the set of agent ids currently reporting healthy. It does
// not mutate reg directly; callers decide whether to gate dispatch on
// the result (the registry's phase map stays static regardless).
func (s *ConsulSync) Sync() (map[string]consulAgentMeta, error) {
	services, _, err := s.client.Health().State("passing", &consulapi.QueryOptions{})
	if err != nil {
		return nil, fmt.Errorf("agentregistry: consul health query: %w", err)
	}

	out := make(map[string]consulAgentMeta, len(services))
	for _, entry := range services {
		if !hasAllTags(entry.ServiceTags, s.tags) {
			continue
		}
		kv, _, err := s.client.KV().Get(s.prefix+"/"+entry.ServiceID, nil)
		if err != nil || kv == nil {
			continue
		}
		var meta consulAgentMeta
		if err := json.Unmarshal(kv.Value, &meta); err != nil {
			s.logger.Warn("agentregistry: malformed consul agent metadata", "key", kv.Key, "error", err)
			continue
		}
		meta.Healthy = true
		out[meta.AgentID] = meta
	}
	return out, nil
}

// Apply runs Sync and reconciles its result onto reg's per-agent health
// state; it never mutates reg's static phase/tier routing.
func (s *ConsulSync) Apply(reg *Registry) error {
	live, err := s.Sync()
	if err != nil {
		return err
	}
	for _, d := range reg.List() {
		_, healthy := live[d.ID]
		reg.SetHealth(d.ID, healthy)
	}
	return nil
}

func hasAllTags(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}
