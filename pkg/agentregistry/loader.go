package agentregistry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// manifest is the on-disk shape of an agent registry file (spec §4.1
// "static or file-backed catalogue").
type manifest struct {
	Agents []Descriptor `yaml:"agents"`
}

// LoadFile reads a YAML manifest of agent descriptors and registers every
// one into a fresh Registry. A missing path is not an error; it yields an
// empty registry that RegisterAgent (or Consul discovery) can populate
// later.
func LoadFile(path string) (*Registry, error) {
	r := New()
	if path == "" {
		return r, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("agentregistry: read %s: %w", path, err)
	}

	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("agentregistry: parse %s: %w", path, err)
	}

	for _, d := range m.Agents {
		if err := r.RegisterAgent(d); err != nil {
			return nil, fmt.Errorf("agentregistry: load %s: %w", path, err)
		}
	}
	return r, nil
}
