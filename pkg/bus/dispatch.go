package bus

import (
	"context"
	"fmt"

	"github.com/forgeflow/orchestrator/pkg/agentregistry"
	"github.com/forgeflow/orchestrator/pkg/model"
)

// PluginDispatcher dispatches messages to agents launched as go-plugin
// subprocesses, keyed by agent id (spec §1: the core treats an agent as
// an opaque callable it invokes with an input envelope).
type PluginDispatcher struct {
	handles map[string]*agentregistry.PluginHandle
}

// NewPluginDispatcher wraps an already-launched set of agent plugin
// handles, keyed by agent id.
func NewPluginDispatcher(handles map[string]*agentregistry.PluginHandle) *PluginDispatcher {
	return &PluginDispatcher{handles: handles}
}

// Dispatch invokes the plugin handle for agentID with an envelope built
// from m. It returns an error (without interpreting the agent's
// payload) if invocation fails or the agent reports one in its envelope.
func (d *PluginDispatcher) Dispatch(ctx context.Context, agentID string, m model.Message) error {
	handle, ok := d.handles[agentID]
	if !ok {
		return fmt.Errorf("bus: no plugin handle registered for agent %s", agentID)
	}

	in := agentregistry.InputEnvelope{
		ExecutionID: m.ExecutionID,
		Phase:       m.Phase,
		AgentID:     agentID,
		Payload:     m.Payload,
	}

	out, err := handle.Invoke(in)
	if err != nil {
		return fmt.Errorf("bus: invoke agent %s: %w", agentID, err)
	}
	if out.Error != "" {
		return fmt.Errorf("bus: agent %s reported error: %s", agentID, out.Error)
	}
	return nil
}
