// Package tool defines the contract tools expose to the AI loop.
//
// Tools are capabilities an agent can invoke mid-turn: reading a file,
// checking a mailbox, running an external plugin process. The interface
// hierarchy keeps a synchronous CallableTool as the common case and adds
// StreamingTool for tools that want to yield incremental output before
// their final result.
//
// # Tool Interface Hierarchy
//
//	Tool (base)
//	  ├── CallableTool   - synchronous execution, single result
//	  └── StreamingTool  - incremental chunks via iter.Seq2, then a final result
//
// # Creating Tools
//
// Concrete tools implement CallableTool directly, e.g.:
//
//	readFile := filetool.NewReadFile(guard, 0)
//	reg.RegisterSpec("read_file", func() (tool.Tool, error) { return readFile, nil })
package tool

import (
	"context"
	"iter"
)

// Tool defines the base interface every tool implements.
type Tool interface {
	// Name returns the unique name of the tool, as the model will call it.
	Name() string

	// Description returns a human-readable description of what the tool
	// does. Used by the model to decide when to invoke it.
	Description() string

	// RequiresApproval indicates whether this tool needs human approval
	// before execution. The AI loop in pkg/loop does not read it, so
	// execution does not pause for approval.
	RequiresApproval() bool
}

// CallableTool extends Tool with synchronous execution.
type CallableTool interface {
	Tool

	// Call executes the tool with the given arguments and blocks until
	// completion.
	Call(ctx Context, args map[string]any) (map[string]any, error)

	// Schema returns the JSON schema for the tool's parameters, or nil if
	// the tool takes no parameters.
	Schema() map[string]any
}

// StreamingTool extends Tool with incremental output.
//
// Use StreamingTool for long-running operations where partial output
// improves the experience (e.g. running an external command).
type StreamingTool interface {
	Tool

	// CallStreaming executes the tool and yields incremental results.
	// Each yielded Result is a chunk of output; the final Result has
	// Streaming set to false.
	CallStreaming(ctx Context, args map[string]any) iter.Seq2[*Result, error]

	// Schema returns the JSON schema for the tool's parameters.
	Schema() map[string]any
}

// Result is one chunk of tool output.
type Result struct {
	// Content is the output content, typically a string or structured data.
	Content any

	// Streaming indicates this is an intermediate chunk, not the final
	// result.
	Streaming bool

	// Error is set if an error occurred producing this chunk.
	Error string

	// Metadata carries optional additional data about this result.
	Metadata map[string]any
}

// Context is the execution context passed to a tool invocation.
type Context interface {
	context.Context

	// AgentName returns the name of the agent invoking the tool.
	AgentName() string

	// FunctionCallID returns the unique ID of this tool invocation, as
	// assigned by the model.
	FunctionCallID() string
}

// Toolset groups related tools and resolves them dynamically, enabling
// lazy loading: tools are only materialized when the registry asks for
// them.
type Toolset interface {
	// Name returns the name of this toolset.
	Name() string

	// Tools returns the available tools for the given agent context.
	Tools(ctx context.Context, agentName string) ([]Tool, error)
}

// Predicate determines whether a tool should be exposed to the model.
// Used to filter tools based on agent, permissions, or configuration.
type Predicate func(agentName string, tool Tool) bool

// StringPredicate creates a Predicate that allows only the named tools.
func StringPredicate(allowedTools []string) Predicate {
	allowed := make(map[string]bool, len(allowedTools))
	for _, name := range allowedTools {
		allowed[name] = true
	}
	return func(_ string, tool Tool) bool {
		return allowed[tool.Name()]
	}
}

// AllowAll returns a Predicate that allows all tools.
func AllowAll() Predicate {
	return func(_ string, _ Tool) bool { return true }
}

// DenyAll returns a Predicate that denies all tools.
func DenyAll() Predicate {
	return func(_ string, _ Tool) bool { return false }
}

// Combine combines multiple predicates with AND logic.
func Combine(predicates ...Predicate) Predicate {
	return func(agentName string, tool Tool) bool {
		for _, p := range predicates {
			if !p(agentName, tool) {
				return false
			}
		}
		return true
	}
}

// Or combines multiple predicates with OR logic.
func Or(predicates ...Predicate) Predicate {
	return func(agentName string, tool Tool) bool {
		for _, p := range predicates {
			if p(agentName, tool) {
				return true
			}
		}
		return false
	}
}

// Not negates a predicate.
func Not(p Predicate) Predicate {
	return func(agentName string, tool Tool) bool {
		return !p(agentName, tool)
	}
}

// Definition is a tool definition shaped for LLM function calling
// (OpenAI-compatible `tools[]` entries).
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToDefinition converts a tool to a Definition, pulling the schema from
// whichever tool interface it implements.
func ToDefinition(t Tool) Definition {
	def := Definition{
		Name:        t.Name(),
		Description: t.Description(),
	}
	switch typed := t.(type) {
	case CallableTool:
		def.Parameters = typed.Schema()
	case StreamingTool:
		def.Parameters = typed.Schema()
	}
	return def
}

// Call represents a model's request to invoke a tool.
type Call struct {
	ID   string
	Name string
	Args map[string]any
}

// Invocation represents the result of a tool invocation, shaped for
// appending to conversation history as a tool-role message.
type Invocation struct {
	ToolCallID string
	Content    string
	Error      string
	Metadata   map[string]any
}
