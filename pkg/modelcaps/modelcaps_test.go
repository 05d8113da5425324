package modelcaps_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aiwhisperer/core/pkg/modelcaps"
)

func TestExactMatch(t *testing.T) {
	table := modelcaps.New(nil)
	rec := table.Get("openai/gpt-4o")
	require.True(t, rec.MultiTool)
	require.True(t, rec.StructuredOutput)
	require.Equal(t, 10, rec.MaxToolsPerTurn)
}

func TestPrefixFallback(t *testing.T) {
	table := modelcaps.New(nil)
	rec := table.Get("anthropic/claude-3-5-sonnet-20241022")
	require.True(t, rec.MultiTool)
}

func TestUnknownModelUsesDefault(t *testing.T) {
	table := modelcaps.New(nil)
	rec := table.Get("some-vendor/unknown-model")
	require.Equal(t, modelcaps.DefaultRecord, rec)
}

func TestQuirks(t *testing.T) {
	table := modelcaps.New(nil)
	require.True(t, table.HasQuirk("google/gemini-pro", modelcaps.QuirkNoToolsWithStructuredOutput))
	require.True(t, table.HasQuirk("anthropic/claude-3-opus", modelcaps.QuirkStructuredOutputHidden))
	require.False(t, table.HasQuirk("openai/gpt-4o", modelcaps.QuirkNoToolsWithStructuredOutput))
}

func TestRegisterOverride(t *testing.T) {
	table := modelcaps.New(nil)
	table.Register("custom/model", modelcaps.Record{MultiTool: true, MaxToolsPerTurn: 4})
	rec := table.Get("custom/model")
	require.True(t, rec.MultiTool)
	require.Equal(t, 4, rec.MaxToolsPerTurn)
}

func TestSupportsHelpers(t *testing.T) {
	table := modelcaps.New(nil)
	require.True(t, table.SupportsMultiTool("openai/gpt-4o"))
	require.True(t, table.SupportsStructuredOutput("openai/gpt-4o"))
	require.False(t, table.SupportsMultiTool("openai/gpt-4"))
}
