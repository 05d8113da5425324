package continuation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aiwhisperer/core/pkg/continuation"
)

func TestExplicitContinueSignal(t *testing.T) {
	s := continuation.New(continuation.DefaultPolicy(), time.Unix(0, 0))
	resp := map[string]any{
		"continuation": map[string]any{"status": "CONTINUE", "reason": "more work"},
	}
	state := s.ShouldContinue(time.Unix(1, 0), resp, "")
	require.Equal(t, continuation.DecisionContinue, state.Decision)
}

func TestExplicitTerminateSignal(t *testing.T) {
	s := continuation.New(continuation.DefaultPolicy(), time.Unix(0, 0))
	resp := map[string]any{
		"continuation": map[string]any{"status": "TERMINATE"},
	}
	state := s.ShouldContinue(time.Unix(1, 0), resp, "")
	require.Equal(t, continuation.DecisionTerminate, state.Decision)
}

func TestNoSignalDefaultsToTerminateWhenExplicitRequired(t *testing.T) {
	policy := continuation.DefaultPolicy()
	policy.RequireExplicitSignal = true
	s := continuation.New(policy, time.Unix(0, 0))

	state := s.ShouldContinue(time.Unix(1, 0), map[string]any{}, "CONTINUE doing more")
	require.Equal(t, continuation.DecisionTerminate, state.Decision)
}

func TestPatternFallbackWhenSignalNotRequired(t *testing.T) {
	policy := continuation.DefaultPolicy()
	policy.RequireExplicitSignal = false
	s := continuation.New(policy, time.Unix(0, 0))

	state := s.ShouldContinue(time.Unix(1, 0), map[string]any{}, "I will CONTINUE now")
	require.Equal(t, continuation.DecisionContinue, state.Decision)
}

func TestTerminationPatternTakesPrecedence(t *testing.T) {
	policy := continuation.DefaultPolicy()
	policy.RequireExplicitSignal = false
	s := continuation.New(policy, time.Unix(0, 0))

	state := s.ShouldContinue(time.Unix(1, 0), map[string]any{}, "CONTINUE but actually TERMINATE")
	require.Equal(t, continuation.DecisionTerminate, state.Decision)
}

func TestMaxIterationsForcesTerminate(t *testing.T) {
	policy := continuation.Policy{MaxIterations: 2, RequireExplicitSignal: false}
	s := continuation.New(policy, time.Unix(0, 0))

	resp := map[string]any{"continuation": map[string]any{"status": "CONTINUE"}}
	s1 := s.ShouldContinue(time.Unix(1, 0), resp, "")
	require.Equal(t, continuation.DecisionContinue, s1.Decision)
	s2 := s.ShouldContinue(time.Unix(2, 0), resp, "")
	require.Equal(t, continuation.DecisionTerminate, s2.Decision)
}

func TestTimeoutForcesTerminate(t *testing.T) {
	policy := continuation.Policy{MaxIterations: 1000, Timeout: 10 * time.Second, RequireExplicitSignal: false}
	s := continuation.New(policy, time.Unix(0, 0))

	resp := map[string]any{"continuation": map[string]any{"status": "CONTINUE"}}
	state := s.ShouldContinue(time.Unix(20, 0), resp, "")
	require.Equal(t, continuation.DecisionTerminate, state.Decision)
}

func TestExtractNextActionPrefersExplicit(t *testing.T) {
	state := continuation.State{NextAction: map[string]any{"type": "tool_call", "tool": "x"}}
	action := continuation.ExtractNextAction(state, nil)
	require.Equal(t, "x", action["tool"])
}

func TestExtractNextActionFallsBackToPendingToolCall(t *testing.T) {
	pending := []map[string]any{{"name": "read_file", "arguments": map[string]any{"path": "a.txt"}}}
	action := continuation.ExtractNextAction(continuation.State{}, pending)
	require.Equal(t, "read_file", action["tool"])
}

func TestUpdateContextSummarizesLongResponses(t *testing.T) {
	s := continuation.New(continuation.DefaultPolicy(), time.Unix(0, 0))
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}
	s.UpdateContext(time.Unix(1, 0), string(long))
	history := s.History()
	require.Len(t, history, 1)
	require.LessOrEqual(t, len(history[0]), 203)
}

func TestResetClearsCounters(t *testing.T) {
	s := continuation.New(continuation.DefaultPolicy(), time.Unix(0, 0))
	s.ShouldContinue(time.Unix(1, 0), map[string]any{}, "")
	require.Equal(t, 1, s.IterationCount())
	s.Reset(time.Unix(5, 0))
	require.Equal(t, 0, s.IterationCount())
}
