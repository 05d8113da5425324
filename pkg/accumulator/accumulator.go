// Package accumulator reassembles fragmented streaming tool-call deltas
// into complete tool calls, grounded on AIWhisperer's original
// ToolCallAccumulator and on the index-keyed delta.tool_calls[] accumulation
// used by the OpenAI-compatible chat/completions streaming wire format.
package accumulator

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/aiwhisperer/core/pkg/aiwerrors"
)

// DeltaFunction is the function fragment of one streamed tool-call delta.
type DeltaFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// Delta is one chunk of a streamed tool call, keyed by Index per the
// chat/completions SSE wire format (delta.tool_calls[].index).
type Delta struct {
	Index    int           `json:"index"`
	ID       string        `json:"id,omitempty"`
	Type     string        `json:"type,omitempty"`
	Function DeltaFunction `json:"function,omitempty"`
}

// ToolCall is a fully reassembled tool call with arguments parsed as JSON.
type ToolCall struct {
	ID        string
	Type      string
	Name      string
	Arguments map[string]any
}

type building struct {
	id       string
	toolType string
	name     string
	argsBuf  strings.Builder
}

// Accumulator groups streamed tool-call deltas by index and reassembles
// them into complete calls as the stream progresses.
type Accumulator struct {
	calls map[int]*building
	order []int
}

// New returns an empty Accumulator.
func New() *Accumulator {
	return &Accumulator{calls: make(map[int]*building)}
}

// AddChunk folds one batch of streamed deltas (as received in a single SSE
// event) into the accumulator's running state.
func (a *Accumulator) AddChunk(deltas []Delta) {
	for _, d := range deltas {
		b, ok := a.calls[d.Index]
		if !ok {
			b = &building{}
			a.calls[d.Index] = b
			a.order = append(a.order, d.Index)
		}
		if d.ID != "" {
			b.id = d.ID
		}
		if d.Type != "" {
			b.toolType = d.Type
		}
		if d.Function.Name != "" {
			b.name = d.Function.Name
		}
		if d.Function.Arguments != "" {
			b.argsBuf.WriteString(d.Function.Arguments)
		}
	}
}

// Reset clears all accumulated state, ready for the next assistant turn.
func (a *Accumulator) Reset() {
	a.calls = make(map[int]*building)
	a.order = nil
}

// Pending reports whether any index has accumulated at least one fragment.
func (a *Accumulator) Pending() bool {
	return len(a.calls) > 0
}

// rawComplete returns, in index order, the building entries that have both
// an id and a function name — the minimum needed to call a tool.
func (a *Accumulator) rawComplete() []*building {
	indices := make([]int, 0, len(a.calls))
	for idx := range a.calls {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	out := make([]*building, 0, len(indices))
	for _, idx := range indices {
		b := a.calls[idx]
		if b.id != "" && b.name != "" {
			out = append(out, b)
		}
	}
	return out
}

// ToolCalls returns the complete tool calls accumulated so far, with
// arguments parsed from JSON. A call whose argument buffer is empty is
// treated as an empty object, matching how models emit no-argument calls.
// A non-empty buffer that fails to parse as JSON yields a malformed-stream
// error naming the offending tool call id.
func (a *Accumulator) ToolCalls() ([]ToolCall, error) {
	raw := a.rawComplete()
	out := make([]ToolCall, 0, len(raw))
	for _, b := range raw {
		args := map[string]any{}
		buf := b.argsBuf.String()
		if strings.TrimSpace(buf) != "" {
			if err := json.Unmarshal([]byte(buf), &args); err != nil {
				return nil, aiwerrors.Wrap(aiwerrors.KindMalformedStream,
					"parse tool call arguments for "+b.id, err)
			}
		}
		toolType := b.toolType
		if toolType == "" {
			toolType = "function"
		}
		out = append(out, ToolCall{
			ID:        b.id,
			Type:      toolType,
			Name:      b.name,
			Arguments: args,
		})
	}
	return out, nil
}
