// Package registry is the lazy tool registry: tool factories are
// registered up front but only constructed on first access, and the set of
// tools exposed to a given agent passes through an exposure predicate
// before being turned into OpenAI-compatible tool definitions.
//
// Grounded on AIWhisperer's original LazyToolRegistry (manifest of
// module/class specs, loaded on first get_tool call) and on the generic
// BaseRegistry[T] pattern used throughout this codebase.
package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aiwhisperer/core/pkg/aiwerrors"
	aiwlog "github.com/aiwhisperer/core/pkg/logger"
	baseregistry "github.com/aiwhisperer/core/pkg/registry"
	"github.com/aiwhisperer/core/pkg/tool"
)

// Factory constructs a tool on first access. Kept separate from the tool
// itself so construction (opening files, dialing plugin processes) is
// deferred until the tool is actually needed.
type Factory func() (tool.Tool, error)

// Registry is a lazy, agent-aware tool registry.
type Registry struct {
	mu       sync.RWMutex
	specs    map[string]Factory
	loaded   *baseregistry.BaseRegistry[tool.Tool]
	failed   map[string]error
	toolsets []tool.Toolset
	exposure map[string]exposureSetting
	logger   *slog.Logger
}

// exposureSetting records an agent's persisted tool-exposure preference:
// either "all tools enabled" or an explicit allow-list of custom tools.
type exposureSetting struct {
	allAllowed bool
	custom     map[string]bool
}

// New creates an empty lazy registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = aiwlog.Get()
	}
	return &Registry{
		specs:    make(map[string]Factory),
		loaded:   baseregistry.NewBaseRegistry[tool.Tool](),
		failed:   make(map[string]error),
		exposure: make(map[string]exposureSetting),
		logger:   logger,
	}
}

// RegisterSpec registers a tool factory under name without constructing it.
func (r *Registry) RegisterSpec(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[name] = factory
}

// RegisterToolset adds a toolset whose tools are resolved dynamically per
// agent (e.g. an MCP server's tool list).
func (r *Registry) RegisterToolset(ts tool.Toolset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toolsets = append(r.toolsets, ts)
}

// Get returns the named tool, constructing it on first access. A tool that
// previously failed to construct returns the cached error without retrying.
func (r *Registry) Get(name string) (tool.Tool, error) {
	if t, ok := r.loaded.Get(name); ok {
		return t, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.loaded.Get(name); ok {
		return t, nil
	}
	if err, failed := r.failed[name]; failed {
		return nil, err
	}

	factory, ok := r.specs[name]
	if !ok {
		return nil, aiwerrors.New(aiwerrors.KindToolNotFound, "tool not registered: "+name)
	}

	t, err := factory()
	if err != nil {
		wrapped := aiwerrors.Wrap(aiwerrors.KindToolExecution, "construct tool "+name, err)
		r.failed[name] = wrapped
		r.logger.Error("tool failed to load", "tool", name, "error", err)
		return nil, wrapped
	}
	_ = r.loaded.Register(name, t)
	r.logger.Debug("tool loaded", "tool", name)
	return t, nil
}

// Names returns every registered tool name without constructing any tool.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	return names
}

// SetAllToolsEnabled persists an agent's preference to see every registered
// tool, overriding any custom allow-list.
func (r *Registry) SetAllToolsEnabled(agentName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exposure[agentName] = exposureSetting{allAllowed: true}
}

// SetCustomTools persists an agent's explicit allow-list of tool names.
func (r *Registry) SetCustomTools(agentName string, names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	custom := make(map[string]bool, len(names))
	for _, n := range names {
		custom[n] = true
	}
	r.exposure[agentName] = exposureSetting{custom: custom}
}

// isExposed reports whether tool name is exposed to agentName given its
// persisted exposure setting. Agents with no setting see every tool.
func (r *Registry) isExposed(agentName, name string) bool {
	r.mu.RLock()
	setting, ok := r.exposure[agentName]
	r.mu.RUnlock()
	if !ok || setting.allAllowed {
		return true
	}
	return setting.custom[name]
}

// Available resolves every tool exposed to agentName: statically registered
// specs filtered by predicate and exposure setting, plus toolset-contributed
// tools, constructing each eagerly. A tool that fails to construct is
// skipped and logged rather than failing the whole resolution.
func (r *Registry) Available(ctx context.Context, agentName string, predicate tool.Predicate) []tool.Tool {
	if predicate == nil {
		predicate = tool.AllowAll()
	}

	var out []tool.Tool
	for _, name := range r.Names() {
		if !r.isExposed(agentName, name) {
			continue
		}
		t, err := r.Get(name)
		if err != nil {
			continue
		}
		if predicate(agentName, t) {
			out = append(out, t)
		}
	}

	r.mu.RLock()
	toolsets := append([]tool.Toolset(nil), r.toolsets...)
	r.mu.RUnlock()
	for _, ts := range toolsets {
		tools, err := ts.Tools(ctx, agentName)
		if err != nil {
			r.logger.Warn("toolset failed to resolve tools", "toolset", ts.Name(), "error", err)
			continue
		}
		for _, t := range tools {
			if r.isExposed(agentName, t.Name()) && predicate(agentName, t) {
				out = append(out, t)
			}
		}
	}
	return out
}

// Definitions converts the tools available to agentName into OpenAI-
// compatible function-calling definitions for inclusion in a chat request.
func (r *Registry) Definitions(ctx context.Context, agentName string, predicate tool.Predicate) []tool.Definition {
	available := r.Available(ctx, agentName, predicate)
	defs := make([]tool.Definition, 0, len(available))
	for _, t := range available {
		defs = append(defs, tool.ToDefinition(t))
	}
	return defs
}
