package mcpserver_test

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/aiwhisperer/core/pkg/mcpserver"
	"github.com/aiwhisperer/core/pkg/tool"
)

type fakeTool struct{}

func (fakeTool) Name() string             { return "echo" }
func (fakeTool) Description() string      { return "echoes input" }
func (fakeTool) RequiresApproval() bool   { return false }
func (fakeTool) Schema() map[string]any   { return map[string]any{"type": "object"} }
func (fakeTool) Call(_ tool.Context, args map[string]any) (map[string]any, error) {
	return map[string]any{"echo": args["value"]}, nil
}

type fakeSource struct{ tools []tool.Tool }

func (f fakeSource) Available(_ context.Context, _ string, _ tool.Predicate) []tool.Tool {
	return f.tools
}

func TestNewRegistersAvailableToolsWithoutPanicking(t *testing.T) {
	src := fakeSource{tools: []tool.Tool{fakeTool{}}}
	require.NotPanics(t, func() {
		mcpserver.New("aiwhisperer", "0.1.0", src, "planner")
	})
}

func TestFakeToolCallEchoesValue(t *testing.T) {
	var tl fakeTool
	out, err := tl.Call(nil, map[string]any{"value": "hi"})
	require.NoError(t, err)
	require.Equal(t, "hi", out["echo"])
	_ = mcp.NewToolResultText
}
