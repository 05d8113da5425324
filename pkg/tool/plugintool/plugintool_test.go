package plugintool_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aiwhisperer/core/pkg/tool/plugintool"
)

type fakeRPCTool struct {
	descriptor plugintool.Descriptor
	lastReq    plugintool.CallRequest
}

func (f *fakeRPCTool) Describe() (plugintool.Descriptor, error) {
	return f.descriptor, nil
}

func (f *fakeRPCTool) Call(req plugintool.CallRequest) (map[string]any, error) {
	f.lastReq = req
	return map[string]any{"echo": req.Args["value"]}, nil
}

func TestPluginServesDescribeAndCallOverRPC(t *testing.T) {
	impl := &fakeRPCTool{descriptor: plugintool.Descriptor{
		Name:        "echo_tool",
		Description: "echoes its input",
		Schema:      map[string]any{"type": "object"},
	}}

	server := &plugintool.Plugin{Impl: impl}
	srv, err := server.Server(nil)
	require.NoError(t, err)

	rpcSrv, ok := srv.(interface {
		Describe(struct{}, *plugintool.Descriptor) error
		Call(plugintool.CallRequest, *map[string]any) error
	})
	require.True(t, ok)

	var desc plugintool.Descriptor
	require.NoError(t, rpcSrv.Describe(struct{}{}, &desc))
	require.Equal(t, "echo_tool", desc.Name)

	var out map[string]any
	require.NoError(t, rpcSrv.Call(plugintool.CallRequest{AgentName: "a1", Args: map[string]any{"value": "hi"}}, &out))
	require.Equal(t, "hi", out["echo"])
	require.Equal(t, "a1", impl.lastReq.AgentName)
}
