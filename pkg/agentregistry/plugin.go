package agentregistry

import (
	"fmt"
	"net/rpc"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	hcplugin "github.com/hashicorp/go-plugin"
)

// handshakeConfig gates which plugin binaries the host will talk to; it
// mirrors the magic-cookie convention used to keep accidental non-plugin
// executables from being dispensed as agents.
var handshakeConfig = hcplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "ORCHESTRATOR_AGENT_PLUGIN",
	MagicCookieValue: "orchestrator_agent_v1",
}

// Invoker is the contract a plugin-hosted agent implements. It receives
// an opaque InputEnvelope and returns an opaque OutputEnvelope: the core
// never inspects Payload's contents (spec §1).
type Invoker interface {
	Invoke(in InputEnvelope) (OutputEnvelope, error)
}

// invokerPlugin adapts Invoker to go-plugin's net/rpc transport.
type invokerPlugin struct {
	Impl Invoker
}

func (p *invokerPlugin) Server(*hcplugin.MuxBroker) (interface{}, error) {
	return &invokerRPCServer{impl: p.Impl}, nil
}

func (p *invokerPlugin) Client(b *hcplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &invokerRPCClient{client: c}, nil
}

type invokerRPCServer struct {
	impl Invoker
}

func (s *invokerRPCServer) Invoke(args InputEnvelope, resp *OutputEnvelope) error {
	out, err := s.impl.Invoke(args)
	*resp = out
	return err
}

// invokerRPCClient is the host-side stub dispensed by plugin.Client; it
// satisfies Invoker by making a blocking net/rpc call into the plugin
// subprocess.
type invokerRPCClient struct {
	client *rpc.Client
}

func (c *invokerRPCClient) Invoke(in InputEnvelope) (OutputEnvelope, error) {
	var resp OutputEnvelope
	err := c.client.Call("Plugin.Invoke", in, &resp)
	return resp, err
}

// PluginHandle owns a launched agent subprocess and its RPC stub. Kill
// must be called once the agent is no longer needed to avoid leaking the
// child process.
type PluginHandle struct {
	AgentID string
	client  *hcplugin.Client
	invoker Invoker
}

// LaunchPlugin starts the executable at path as an agent subprocess and
// returns a handle to invoke it through (spec §4.1: agents are opaque
// callables; go-plugin is how the core reaches across the process
// boundary to one).
func LaunchPlugin(agentID, path string, args ...string) (*PluginHandle, error) {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "orchestrator-agent-plugin",
		Level: hclog.Warn,
	})

	client := hcplugin.NewClient(&hcplugin.ClientConfig{
		HandshakeConfig: handshakeConfig,
		Plugins: map[string]hcplugin.Plugin{
			"invoker": &invokerPlugin{},
		},
		Cmd:    exec.Command(path, args...),
		Logger: logger,
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("agentregistry: launch plugin %s: %w", agentID, err)
	}

	raw, err := rpcClient.Dispense("invoker")
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("agentregistry: dispense plugin %s: %w", agentID, err)
	}

	invoker, ok := raw.(Invoker)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("agentregistry: plugin %s does not implement Invoker", agentID)
	}

	return &PluginHandle{AgentID: agentID, client: client, invoker: invoker}, nil
}

// Invoke dispatches in to the plugin subprocess.
func (h *PluginHandle) Invoke(in InputEnvelope) (OutputEnvelope, error) {
	return h.invoker.Invoke(in)
}

// Kill terminates the plugin subprocess.
func (h *PluginHandle) Kill() {
	h.client.Kill()
}
