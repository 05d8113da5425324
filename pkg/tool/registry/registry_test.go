package registry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aiwhisperer/core/pkg/tool"
	"github.com/aiwhisperer/core/pkg/tool/registry"
)

type fakeTool struct {
	name string
}

func (f *fakeTool) Name() string            { return f.name }
func (f *fakeTool) Description() string     { return "fake tool " + f.name }
func (f *fakeTool) RequiresApproval() bool  { return false }
func (f *fakeTool) Schema() map[string]any  { return nil }
func (f *fakeTool) Call(_ tool.Context, _ map[string]any) (map[string]any, error) {
	return map[string]any{"ok": true}, nil
}

var _ tool.CallableTool = (*fakeTool)(nil)

type fakeToolset struct {
	name  string
	tools []tool.Tool
}

func (f *fakeToolset) Name() string { return f.name }
func (f *fakeToolset) Tools(_ context.Context, _ string) ([]tool.Tool, error) {
	return f.tools, nil
}

func TestLazyConstructionOnlyOnFirstAccess(t *testing.T) {
	built := 0
	r := registry.New(nil)
	r.RegisterSpec("read_file", func() (tool.Tool, error) {
		built++
		return &fakeTool{name: "read_file"}, nil
	})

	require.Equal(t, 0, built)
	_, err := r.Get("read_file")
	require.NoError(t, err)
	require.Equal(t, 1, built)

	_, err = r.Get("read_file")
	require.NoError(t, err)
	require.Equal(t, 1, built, "second Get must not reconstruct")
}

func TestFailedConstructionIsCachedNotRetried(t *testing.T) {
	attempts := 0
	r := registry.New(nil)
	r.RegisterSpec("broken", func() (tool.Tool, error) {
		attempts++
		return nil, errors.New("boom")
	})

	_, err1 := r.Get("broken")
	require.Error(t, err1)
	_, err2 := r.Get("broken")
	require.Error(t, err2)
	require.Equal(t, 1, attempts)
}

func TestUnknownToolIsNotFound(t *testing.T) {
	r := registry.New(nil)
	_, err := r.Get("nope")
	require.Error(t, err)
}

func TestExposureAllowsEverythingByDefault(t *testing.T) {
	r := registry.New(nil)
	r.RegisterSpec("a", func() (tool.Tool, error) { return &fakeTool{name: "a"}, nil })
	r.RegisterSpec("b", func() (tool.Tool, error) { return &fakeTool{name: "b"}, nil })

	available := r.Available(context.Background(), "agent1", nil)
	require.Len(t, available, 2)
}

func TestCustomExposureRestrictsTools(t *testing.T) {
	r := registry.New(nil)
	r.RegisterSpec("a", func() (tool.Tool, error) { return &fakeTool{name: "a"}, nil })
	r.RegisterSpec("b", func() (tool.Tool, error) { return &fakeTool{name: "b"}, nil })
	r.SetCustomTools("agent1", []string{"a"})

	available := r.Available(context.Background(), "agent1", nil)
	require.Len(t, available, 1)
	require.Equal(t, "a", available[0].Name())
}

func TestAllToolsEnabledOverridesCustom(t *testing.T) {
	r := registry.New(nil)
	r.RegisterSpec("a", func() (tool.Tool, error) { return &fakeTool{name: "a"}, nil })
	r.SetCustomTools("agent1", []string{})
	r.SetAllToolsEnabled("agent1")

	available := r.Available(context.Background(), "agent1", nil)
	require.Len(t, available, 1)
}

func TestToolsetContributesDynamicTools(t *testing.T) {
	r := registry.New(nil)
	r.RegisterToolset(&fakeToolset{name: "mcp", tools: []tool.Tool{&fakeTool{name: "remote_tool"}}})

	available := r.Available(context.Background(), "agent1", nil)
	require.Len(t, available, 1)
	require.Equal(t, "remote_tool", available[0].Name())
}

func TestDefinitionsListAvailableTools(t *testing.T) {
	r := registry.New(nil)
	r.RegisterSpec("a", func() (tool.Tool, error) { return &fakeTool{name: "a"}, nil })

	defs := r.Definitions(context.Background(), "agent1", nil)
	require.Len(t, defs, 1)
	require.Equal(t, "a", defs[0].Name)
}
