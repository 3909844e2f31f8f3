package agentregistry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_EmptyPathReturnsEmptyRegistry(t *testing.T) {
	r, err := LoadFile("")
	require.NoError(t, err)
	_, err = r.AgentsForPhase(0)
	assert.Error(t, err)
}

func TestLoadFile_MissingFileReturnsEmptyRegistry(t *testing.T) {
	r, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	_, err = r.AgentsForPhase(0)
	assert.Error(t, err)
}

func TestLoadFile_ValidManifestRegistersAgents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	yaml := `
agents:
  - id: requirements-analyst
    role: requirements
    tier: standard
    phases: [0]
    priority: 1
  - id: architecture-designer
    role: architecture
    tier: premium
    phases: [1]
    priority: 1
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	r, err := LoadFile(path)
	require.NoError(t, err)

	ids, err := r.AgentsForPhase(0)
	require.NoError(t, err)
	assert.Equal(t, []string{"requirements-analyst"}, ids)

	ids, err = r.AgentsForPhase(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"architecture-designer"}, ids)
}

func TestLoadFile_MalformedYAMLReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agents: [not, a, map"), 0o644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoadFile_DuplicateIDPropagatesRegisterError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dup.yaml")
	yaml := `
agents:
  - id: requirements-analyst
    role: requirements
    phases: [0]
  - id: requirements-analyst
    role: requirements
    phases: [0]
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}
