package loopmanager_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aiwhisperer/core/pkg/aiservice"
	"github.com/aiwhisperer/core/pkg/loop"
	"github.com/aiwhisperer/core/pkg/loopmanager"
)

func TestGetOrCreateReusesSameLoop(t *testing.T) {
	built := 0
	m := loopmanager.New(func(agentName string) *loop.Loop {
		built++
		client := aiservice.New(aiservice.Config{BaseURL: "http://unused", APIKey: "k"})
		return loopmanager.NewLoopFactory(client, nil, nil, loop.Options{Model: "m"}, func(string) string { return "" })(agentName)
	})

	l1 := m.GetOrCreate("agent1", "openai/gpt-4o")
	l2 := m.GetOrCreate("agent1", "openai/gpt-4o")
	require.Same(t, l1, l2)
	require.Equal(t, 1, built)
}

func TestActiveModelsReportsPerAgent(t *testing.T) {
	m := loopmanager.New(func(agentName string) *loop.Loop {
		client := aiservice.New(aiservice.Config{BaseURL: "http://unused", APIKey: "k"})
		return loopmanager.NewLoopFactory(client, nil, nil, loop.Options{Model: "m"}, func(string) string { return "" })(agentName)
	})

	m.GetOrCreate("agent1", "openai/gpt-4o")
	m.GetOrCreate("agent2", "anthropic/claude-3-5-sonnet")

	models := m.ActiveModels()
	require.Equal(t, "openai/gpt-4o", models["agent1"])
	require.Equal(t, "anthropic/claude-3-5-sonnet", models["agent2"])
}

func TestRemoveDropsAgent(t *testing.T) {
	m := loopmanager.New(func(agentName string) *loop.Loop {
		client := aiservice.New(aiservice.Config{BaseURL: "http://unused", APIKey: "k"})
		return loopmanager.NewLoopFactory(client, nil, nil, loop.Options{Model: "m"}, func(string) string { return "" })(agentName)
	})
	m.GetOrCreate("agent1", "m")
	m.Remove("agent1")
	require.Empty(t, m.ActiveModels())
}
