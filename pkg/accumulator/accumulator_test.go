package accumulator_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aiwhisperer/core/pkg/accumulator"
	"github.com/aiwhisperer/core/pkg/aiwerrors"
)

func TestSingleChunkCall(t *testing.T) {
	acc := accumulator.New()
	acc.AddChunk([]accumulator.Delta{
		{Index: 0, ID: "call_1", Type: "function", Function: accumulator.DeltaFunction{Name: "read_file", Arguments: `{"path":"a.txt"}`}},
	})

	calls, err := acc.ToolCalls()
	require.NoError(t, err)
	require.Len(t, calls, 1)
	require.Equal(t, "call_1", calls[0].ID)
	require.Equal(t, "read_file", calls[0].Name)
	require.Equal(t, "a.txt", calls[0].Arguments["path"])
}

func TestFragmentedArgumentsAcrossChunks(t *testing.T) {
	// Simulates a model streaming one tool call's arguments a few
	// characters at a time across many SSE events, identified by a stable
	// index.
	fragments := []string{`{"pa`, `th":`, `"a.t`, `xt"}`}

	acc := accumulator.New()
	acc.AddChunk([]accumulator.Delta{
		{Index: 0, ID: "call_1", Type: "function", Function: accumulator.DeltaFunction{Name: "read_file"}},
	})
	for _, frag := range fragments {
		acc.AddChunk([]accumulator.Delta{
			{Index: 0, Function: accumulator.DeltaFunction{Arguments: frag}},
		})
	}

	calls, err := acc.ToolCalls()
	require.NoError(t, err)
	require.Len(t, calls, 1)
	require.Equal(t, "a.txt", calls[0].Arguments["path"])
}

func TestFragmentPermutationsAllReassembleIdentically(t *testing.T) {
	full := `{"path":"a.txt","recursive":true}`
	breaks := [][]int{
		{},
		{1},
		{5, 10},
		{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20},
	}

	for _, bp := range breaks {
		fragments := splitAt(full, bp)
		acc := accumulator.New()
		acc.AddChunk([]accumulator.Delta{
			{Index: 0, ID: "call_1", Type: "function", Function: accumulator.DeltaFunction{Name: "read_file"}},
		})
		for _, frag := range fragments {
			if frag == "" {
				continue
			}
			acc.AddChunk([]accumulator.Delta{{Index: 0, Function: accumulator.DeltaFunction{Arguments: frag}}})
		}
		calls, err := acc.ToolCalls()
		require.NoError(t, err)
		require.Len(t, calls, 1)
		require.Equal(t, "a.txt", calls[0].Arguments["path"])
		require.Equal(t, true, calls[0].Arguments["recursive"])
	}
}

func splitAt(s string, points []int) []string {
	if len(points) == 0 {
		return []string{s}
	}
	var out []string
	prev := 0
	for _, p := range points {
		if p <= prev || p >= len(s) {
			continue
		}
		out = append(out, s[prev:p])
		prev = p
	}
	out = append(out, s[prev:])
	return out
}

func TestInterleavedMultipleToolCallsByIndex(t *testing.T) {
	acc := accumulator.New()
	// Two concurrent tool calls whose fragments arrive interleaved; only
	// the index distinguishes them, matching parallel-tool-call streams.
	acc.AddChunk([]accumulator.Delta{
		{Index: 0, ID: "call_a", Type: "function", Function: accumulator.DeltaFunction{Name: "read_file", Arguments: `{"pa`}},
		{Index: 1, ID: "call_b", Type: "function", Function: accumulator.DeltaFunction{Name: "write_file", Arguments: `{"pa`}},
	})
	acc.AddChunk([]accumulator.Delta{
		{Index: 0, Function: accumulator.DeltaFunction{Arguments: `th":"a"}`}},
		{Index: 1, Function: accumulator.DeltaFunction{Arguments: `th":"b"}`}},
	})

	calls, err := acc.ToolCalls()
	require.NoError(t, err)
	require.Len(t, calls, 2)
	require.Equal(t, "call_a", calls[0].ID)
	require.Equal(t, "a", calls[0].Arguments["path"])
	require.Equal(t, "call_b", calls[1].ID)
	require.Equal(t, "b", calls[1].Arguments["path"])
}

func TestIncompleteCallIsExcluded(t *testing.T) {
	acc := accumulator.New()
	// Missing a function name: never becomes "complete".
	acc.AddChunk([]accumulator.Delta{{Index: 0, ID: "call_1"}})

	calls, err := acc.ToolCalls()
	require.NoError(t, err)
	require.Empty(t, calls)
}

func TestNoArgumentsCallDefaultsToEmptyObject(t *testing.T) {
	acc := accumulator.New()
	acc.AddChunk([]accumulator.Delta{
		{Index: 0, ID: "call_1", Type: "function", Function: accumulator.DeltaFunction{Name: "list_agents"}},
	})

	calls, err := acc.ToolCalls()
	require.NoError(t, err)
	require.Len(t, calls, 1)
	require.Empty(t, calls[0].Arguments)
}

func TestMalformedArgumentsYieldsMalformedStreamError(t *testing.T) {
	acc := accumulator.New()
	acc.AddChunk([]accumulator.Delta{
		{Index: 0, ID: "call_1", Type: "function", Function: accumulator.DeltaFunction{Name: "read_file", Arguments: `{not json`}},
	})

	_, err := acc.ToolCalls()
	require.Error(t, err)
	kind, ok := aiwerrors.KindOf(err)
	require.True(t, ok)
	require.Equal(t, aiwerrors.KindMalformedStream, kind)
}

func TestResetClearsState(t *testing.T) {
	acc := accumulator.New()
	acc.AddChunk([]accumulator.Delta{{Index: 0, ID: "call_1", Function: accumulator.DeltaFunction{Name: "x"}}})
	require.True(t, acc.Pending())
	acc.Reset()
	require.False(t, acc.Pending())
	calls, err := acc.ToolCalls()
	require.NoError(t, err)
	require.Empty(t, calls)
}
