// Package continuation decides, after each assistant turn, whether the AI
// loop should continue iterating or hand control back, grounded on
// AIWhisperer's original ContinuationStrategy.
package continuation

import (
	"regexp"
	"strings"
	"time"
)

// Decision is the loop's instruction after evaluating one turn.
type Decision string

const (
	DecisionContinue  Decision = "CONTINUE"
	DecisionTerminate Decision = "TERMINATE"
)

// Progress describes how far a multi-step task has gotten, when the model
// reports structured progress.
type Progress struct {
	CurrentStep          int
	TotalSteps           int
	CompletionPercentage float64
	StepsCompleted       []string
	StepsRemaining       []string
}

// State is the continuation signal extracted from one assistant turn,
// either explicit (the model reported a continuation field) or inferred
// from pattern matching.
type State struct {
	Decision   Decision
	Reason     string
	NextAction map[string]any
	Progress   *Progress
}

// Policy configures one agent's continuation behavior.
type Policy struct {
	// MaxIterations bounds how many turns a single task may take before
	// the strategy forces termination regardless of the model's signal.
	MaxIterations int

	// Timeout bounds wall-clock time similarly.
	Timeout time.Duration

	// RequireExplicitSignal, when true, only continues on an explicit
	// continuation field in the response; when false, falls back to
	// pattern matching against the response text.
	RequireExplicitSignal bool
}

// DefaultPolicy matches the conservative defaults of the original
// strategy: 10 iterations, 5 minute timeout, explicit signal required.
func DefaultPolicy() Policy {
	return Policy{
		MaxIterations:         10,
		Timeout:               5 * time.Minute,
		RequireExplicitSignal: true,
	}
}

var continuationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bCONTINUE\b`),
	regexp.MustCompile(`(?i)"status"\s*:\s*"CONTINUE"`),
}

var terminationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bTERMINATE\b`),
	regexp.MustCompile(`(?i)task.*completed`),
	regexp.MustCompile(`(?i)"status"\s*:\s*"TERMINATE"`),
}

// historyEntry is one iteration's summary, kept to bound memory and give
// get_progress-style callers recent context without the full response.
type historyEntry struct {
	iteration int
	summary   string
	at        time.Time
}

// Strategy tracks one task's continuation state across iterations.
type Strategy struct {
	policy    Policy
	startedAt time.Time
	iteration int
	history   []historyEntry
}

// New creates a Strategy under policy, with its clock starting now.
func New(policy Policy, now time.Time) *Strategy {
	return &Strategy{policy: policy, startedAt: now}
}

// Reset restarts the iteration counter and clears history, for a fresh
// task on the same agent.
func (s *Strategy) Reset(now time.Time) {
	s.startedAt = now
	s.iteration = 0
	s.history = nil
}

// IterationCount returns the number of turns evaluated so far.
func (s *Strategy) IterationCount() int { return s.iteration }

// ElapsedTime returns wall-clock time since the strategy started or was
// last reset, as of now.
func (s *Strategy) ElapsedTime(now time.Time) time.Duration {
	return now.Sub(s.startedAt)
}

// checkSafetyLimits reports whether either the iteration or timeout cap
// has been reached.
func (s *Strategy) checkSafetyLimits(now time.Time) bool {
	if s.policy.MaxIterations > 0 && s.iteration >= s.policy.MaxIterations {
		return true
	}
	if s.policy.Timeout > 0 && s.ElapsedTime(now) >= s.policy.Timeout {
		return true
	}
	return false
}

// ShouldContinue evaluates one assistant turn's response and decides
// whether to continue. response may carry an explicit "continuation"
// field (a map with "status"/"reason"/"next_action"/"progress" entries);
// responseText is the full assistant text, used for pattern-based
// fallback when RequireExplicitSignal is false.
func (s *Strategy) ShouldContinue(now time.Time, response map[string]any, responseText string) State {
	s.iteration++

	if s.checkSafetyLimits(now) {
		return State{Decision: DecisionTerminate, Reason: "safety limit reached"}
	}

	if cont, ok := response["continuation"].(map[string]any); ok {
		return parseExplicitState(cont)
	}

	if s.policy.RequireExplicitSignal {
		return State{Decision: DecisionTerminate, Reason: "no explicit continuation signal"}
	}

	return patternFallback(responseText)
}

func parseExplicitState(cont map[string]any) State {
	status, _ := cont["status"].(string)
	reason, _ := cont["reason"].(string)
	decision := DecisionTerminate
	if strings.EqualFold(status, string(DecisionContinue)) {
		decision = DecisionContinue
	}
	state := State{Decision: decision, Reason: reason}
	if na, ok := cont["next_action"].(map[string]any); ok {
		state.NextAction = na
	}
	if p, ok := cont["progress"].(map[string]any); ok {
		state.Progress = parseProgress(p)
	}
	return state
}

func parseProgress(p map[string]any) *Progress {
	prog := &Progress{}
	if v, ok := p["current_step"].(int); ok {
		prog.CurrentStep = v
	}
	if v, ok := p["total_steps"].(int); ok {
		prog.TotalSteps = v
	}
	if v, ok := p["completion_percentage"].(float64); ok {
		prog.CompletionPercentage = v
	}
	return prog
}

// patternFallback matches AIWhisperer's original precedence: an explicit
// TERMINATE pattern always wins over a CONTINUE pattern, and absence of
// either defaults to terminate (a model that doesn't signal is assumed
// done rather than looped forever).
func patternFallback(text string) State {
	for _, p := range terminationPatterns {
		if p.MatchString(text) {
			return State{Decision: DecisionTerminate, Reason: "matched termination pattern"}
		}
	}
	for _, p := range continuationPatterns {
		if p.MatchString(text) {
			return State{Decision: DecisionContinue, Reason: "matched continuation pattern"}
		}
	}
	return State{Decision: DecisionTerminate, Reason: "no pattern matched"}
}

// ExtractNextAction returns the next tool the loop should invoke: the
// explicit next_action from State if present, otherwise the first pending
// tool call from the turn's tool calls, converted to the same shape.
func ExtractNextAction(state State, pendingToolCalls []map[string]any) map[string]any {
	if state.NextAction != nil {
		return state.NextAction
	}
	if len(pendingToolCalls) == 0 {
		return nil
	}
	first := pendingToolCalls[0]
	return map[string]any{
		"type":       "tool_call",
		"tool":       first["name"],
		"parameters": first["arguments"],
	}
}

// summarize keeps the first 200 bytes of response and appends "..." when
// it was longer, matching the original strategy's history-compaction
// behavior.
func summarize(response string) string {
	const limit = 200
	if len(response) <= limit {
		return response
	}
	return response[:limit] + "..."
}

// UpdateContext appends this iteration's summary to the strategy's bounded
// history.
func (s *Strategy) UpdateContext(now time.Time, response string) {
	s.history = append(s.history, historyEntry{
		iteration: s.iteration,
		summary:   summarize(response),
		at:        now,
	})
}

// GetProgress returns the iteration count and elapsed time, for status
// reporting.
func (s *Strategy) GetProgress(now time.Time) (iteration int, elapsed time.Duration) {
	return s.iteration, s.ElapsedTime(now)
}

// History returns the accumulated per-iteration summaries in order.
func (s *Strategy) History() []string {
	out := make([]string, len(s.history))
	for i, h := range s.history {
		out[i] = h.summary
	}
	return out
}
