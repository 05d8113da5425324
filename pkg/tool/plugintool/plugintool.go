// Package plugintool loads external tools as subprocesses over
// hashicorp/go-plugin's net/rpc transport, grounded on the teacher's
// pkg/plugins/grpc loader (same handshake/dispense/Kill lifecycle), adapted
// to the simpler net/rpc protocol since this codebase carries no protobuf
// service definitions to generate a gRPC one from.
package plugintool

import (
	"encoding/gob"
	"net/rpc"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"

	"github.com/aiwhisperer/core/pkg/aiwerrors"
	"github.com/aiwhisperer/core/pkg/tool"
)

func init() {
	gob.Register(map[string]any{})
}

// Handshake is the magic cookie every external tool plugin binary must
// echo back before a connection is trusted.
var Handshake = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "AIWHISPERER_PLUGIN",
	MagicCookieValue: "aiwhisperer_tool_plugin_v1",
}

// CallRequest is the RPC payload for a tool invocation.
type CallRequest struct {
	AgentName      string
	FunctionCallID string
	Args           map[string]any
}

// Descriptor is the static metadata an external tool reports about itself.
type Descriptor struct {
	Name             string
	Description      string
	RequiresApproval bool
	Schema           map[string]any
}

// RPCTool is the interface an external tool process implements, dispensed
// through go-plugin's net/rpc bridge.
type RPCTool interface {
	Describe() (Descriptor, error)
	Call(req CallRequest) (map[string]any, error)
}

// Plugin is the go-plugin Plugin implementation for RPCTool, supplying
// both halves (Server runs in the plugin process, Client runs in ours).
type Plugin struct {
	Impl RPCTool
}

func (p *Plugin) Server(*goplugin.MuxBroker) (interface{}, error) {
	return &rpcServer{impl: p.Impl}, nil
}

func (p *Plugin) Client(_ *goplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &rpcClient{client: c}, nil
}

type rpcServer struct {
	impl RPCTool
}

func (s *rpcServer) Describe(_ struct{}, resp *Descriptor) error {
	d, err := s.impl.Describe()
	*resp = d
	return err
}

func (s *rpcServer) Call(req CallRequest, resp *map[string]any) error {
	out, err := s.impl.Call(req)
	*resp = out
	return err
}

type rpcClient struct {
	client *rpc.Client
}

func (c *rpcClient) Describe() (Descriptor, error) {
	var resp Descriptor
	err := c.client.Call("Plugin.Describe", struct{}{}, &resp)
	return resp, err
}

func (c *rpcClient) Call(req CallRequest) (map[string]any, error) {
	var resp map[string]any
	err := c.client.Call("Plugin.Call", req, &resp)
	return resp, err
}

// ExternalTool is a tool.CallableTool backed by a subprocess dispensed and
// supervised by go-plugin. One ExternalTool owns one subprocess for its
// entire lifetime; call Close when the tool is no longer needed.
type ExternalTool struct {
	path   string
	client *goplugin.Client
	rpc    RPCTool
	desc   Descriptor
}

// Load starts the plugin binary at path, performs the handshake, and
// fetches its descriptor. The returned ExternalTool owns the subprocess
// until Close is called.
func Load(path string) (*ExternalTool, error) {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "aiwhisperer-plugin",
		Level:  hclog.Warn,
		Output: nil,
	})

	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]goplugin.Plugin{
			"tool": &Plugin{},
		},
		Cmd:    exec.Command(path),
		Logger: logger,
		AllowedProtocols: []goplugin.Protocol{
			goplugin.ProtocolNetRPC,
		},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, aiwerrors.Wrap(aiwerrors.KindConnection, "dial plugin rpc client", err)
	}

	raw, err := rpcClient.Dispense("tool")
	if err != nil {
		client.Kill()
		return nil, aiwerrors.Wrap(aiwerrors.KindConnection, "dispense plugin", err)
	}

	impl, ok := raw.(RPCTool)
	if !ok {
		client.Kill()
		return nil, aiwerrors.New(aiwerrors.KindConnection, "plugin does not implement RPCTool")
	}

	desc, err := impl.Describe()
	if err != nil {
		client.Kill()
		return nil, aiwerrors.Wrap(aiwerrors.KindConnection, "describe plugin tool", err)
	}

	return &ExternalTool{path: path, client: client, rpc: impl, desc: desc}, nil
}

func (t *ExternalTool) Name() string            { return t.desc.Name }
func (t *ExternalTool) Description() string     { return t.desc.Description }
func (t *ExternalTool) RequiresApproval() bool   { return t.desc.RequiresApproval }
func (t *ExternalTool) Schema() map[string]any  { return t.desc.Schema }

func (t *ExternalTool) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	out, err := t.rpc.Call(CallRequest{
		AgentName:      ctx.AgentName(),
		FunctionCallID: ctx.FunctionCallID(),
		Args:           args,
	})
	if err != nil {
		return nil, aiwerrors.Wrap(aiwerrors.KindToolExecution, "call plugin tool "+t.desc.Name, err)
	}
	return out, nil
}

// Close terminates the plugin subprocess.
func (t *ExternalTool) Close() {
	t.client.Kill()
}

var _ tool.CallableTool = (*ExternalTool)(nil)
