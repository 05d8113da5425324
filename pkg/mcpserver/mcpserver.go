// Package mcpserver exposes a tool registry over the Model Context
// Protocol, the reverse direction of the teacher's pkg/tool/mcptoolset
// (which consumes external MCP servers as tools). Here every tool already
// registered with pkg/tool/registry.Registry is published so editor
// clients (or any MCP-speaking agent) can call it directly.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	aiwlog "github.com/aiwhisperer/core/pkg/logger"
	"github.com/aiwhisperer/core/pkg/tool"
)

// ToolSource resolves the tools a caller should see. pkg/tool/registry.Registry
// satisfies this via Available.
type ToolSource interface {
	Available(ctx context.Context, agentName string, predicate tool.Predicate) []tool.Tool
}

// Server adapts a ToolSource into an MCP server.
type Server struct {
	name    string
	version string
	source  ToolSource
	agent   string
	mcp     *server.MCPServer
}

// New creates an MCP server named name/version that serves the tools
// ToolSource exposes to agent (mcpserver has no per-caller identity of its
// own, so every MCP client shares one agent's tool exposure).
func New(name, version string, source ToolSource, agent string) *Server {
	s := &Server{name: name, version: version, source: source, agent: agent}
	s.mcp = server.NewMCPServer(name, version)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	for _, t := range s.source.Available(context.Background(), s.agent, nil) {
		ct, ok := t.(tool.CallableTool)
		if !ok {
			continue
		}
		s.mcp.AddTool(toMCPTool(ct), s.handlerFor(ct))
	}
}

func toMCPTool(t tool.CallableTool) mcp.Tool {
	schema := t.Schema()
	raw, err := json.Marshal(schema)
	if err != nil || schema == nil {
		raw = []byte(`{"type":"object"}`)
	}
	return mcp.NewToolWithRawSchema(t.Name(), t.Description(), raw)
}

func (s *Server) handlerFor(t tool.CallableTool) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)
		result, err := t.Call(toolContext{Context: ctx, agent: s.agent, callID: req.Params.Name}, args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		rendered, err := json.Marshal(result)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(rendered)), nil
	}
}

// toolContext adapts a context.Context plus static identity into a
// tool.Context for calls originating from an MCP client rather than the AI
// loop.
type toolContext struct {
	context.Context
	agent  string
	callID string
}

func (c toolContext) AgentName() string      { return c.agent }
func (c toolContext) FunctionCallID() string { return c.callID }

// ServeStdio blocks serving the MCP protocol over stdin/stdout, the
// transport editor integrations (Claude Desktop, Cursor, etc.) expect.
func (s *Server) ServeStdio() error {
	aiwlog.Get().Info("mcp server starting", "name", s.name, "transport", "stdio")
	return server.ServeStdio(s.mcp)
}
