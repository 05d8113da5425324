// Package loopmanager owns one loop.Loop per agent, creating it lazily on
// first use and reporting which models are currently active.
package loopmanager

import (
	"sync"

	"github.com/aiwhisperer/core/pkg/aiservice"
	aictx "github.com/aiwhisperer/core/pkg/context"
	"github.com/aiwhisperer/core/pkg/loop"
)

// Factory constructs a Loop for a newly registered agent.
type Factory func(agentName string) *loop.Loop

// Manager is a registry of per-agent loops, created on demand.
type Manager struct {
	mu      sync.Mutex
	loops   map[string]*loop.Loop
	models  map[string]string
	factory Factory
}

// New creates a Manager that builds loops with factory.
func New(factory Factory) *Manager {
	return &Manager{
		loops:   make(map[string]*loop.Loop),
		models:  make(map[string]string),
		factory: factory,
	}
}

// GetOrCreate returns the existing loop for agentName, constructing one via
// the factory on first access.
func (m *Manager) GetOrCreate(agentName string, model string) *loop.Loop {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.loops[agentName]; ok {
		return l
	}
	l := m.factory(agentName)
	m.loops[agentName] = l
	m.models[agentName] = model
	return l
}

// Remove drops an agent's loop, e.g. when its session is torn down.
func (m *Manager) Remove(agentName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.loops, agentName)
	delete(m.models, agentName)
}

// ActiveModels returns the model each currently tracked agent is using.
func (m *Manager) ActiveModels() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.models))
	for k, v := range m.models {
		out[k] = v
	}
	return out
}

// NewLoopFactory builds the Factory most callers want: one loop.Loop per
// agent sharing a single aiservice.Client and tool lister, with a fresh
// context store and the given tool executor.
func NewLoopFactory(client *aiservice.Client, registry loop.ToolLister, exec loop.Executor, opts loop.Options, systemPrompt func(agentName string) string) Factory {
	return func(agentName string) *loop.Loop {
		store := aictx.New(systemPrompt(agentName))
		return loop.New(agentName, client, store, registry, exec, opts)
	}
}
