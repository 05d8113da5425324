// Package loop is the per-turn AI loop state machine: it drives one agent
// through NOT_STARTED -> ASSEMBLE_STREAM -> PROCESS_TOOL_RESULT -> ... ->
// SHUTDOWN, turning a streamed model response into explicit result events
// rather than exceptions.
//
// Grounded on AIWhisperer's original ai_loopy.py (the turn loop driving
// tool execution between model calls) and on a streaming provider
// interface returning a channel of chunks.
package loop

import (
	"context"
	"fmt"

	"github.com/aiwhisperer/core/pkg/accumulator"
	"github.com/aiwhisperer/core/pkg/aiservice"
	"github.com/aiwhisperer/core/pkg/aiwerrors"
	aictx "github.com/aiwhisperer/core/pkg/context"
	"github.com/aiwhisperer/core/pkg/continuation"
	"github.com/aiwhisperer/core/pkg/modelcaps"
	"github.com/aiwhisperer/core/pkg/tool"
)

// State names one phase of the loop's state machine, reported for
// observability and tests.
type State string

const (
	StateNotStarted       State = "NOT_STARTED"
	StateAssembleStream    State = "ASSEMBLE_STREAM"
	StateProcessToolResult State = "PROCESS_TOOL_RESULT"
	StateDone              State = "DONE"
	StateShutdown          State = "SHUTDOWN"
)

// EventKind distinguishes the payload carried by an Event.
type EventKind string

const (
	EventText        EventKind = "text"
	EventToolCall    EventKind = "tool_call"
	EventToolResult  EventKind = "tool_result"
	EventEndOfTurn   EventKind = "end_of_turn"
	EventStreamError EventKind = "stream_error"
)

// Event is one unit of progress emitted while running a turn. Exactly one
// payload field is populated, selected by Kind — callers switch on Kind
// instead of relying on a nil check, so a zero-value Event never resembles
// a real (if empty) chunk.
type Event struct {
	Kind        EventKind
	Text        string
	ToolCall    accumulator.ToolCall
	ToolOutcome ToolOutcome
	Err         error
	Decision    continuation.Decision
}

// ToolOutcome is the result of executing one requested tool call.
type ToolOutcome struct {
	ToolCallID string
	Content    string
	Err        error
}

// Executor invokes one tool call and returns its textual result, given the
// invoking agent's name.
type Executor func(ctx context.Context, agentName string, call accumulator.ToolCall) (string, error)

// Options configures a Loop.
type Options struct {
	Model              string
	Temperature        float64
	MaxTokens          int
	Reasoning          *aiservice.ReasoningConfig
	// MaxIterations bounds internal tool-call round-trips within a single
	// Run call before the loop forces an iteration-limit error.
	MaxIterations int
	// Caps, if set, trims a turn's tool calls to what Model can actually
	// handle (single-call models, or a MaxToolsPerTurn cap) instead of
	// forwarding every requested call and letting the provider reject it.
	Caps *modelcaps.Table
}

// DefaultMaxIterations is the conservative default iteration cap.
const DefaultMaxIterations = 1000

// Loop drives one agent's turn: stream a response, execute any requested
// tools, and repeat until the model stops requesting tools or
// MaxIterations is reached. No continuation policy is consulted.
type Loop struct {
	agentName string
	client    *aiservice.Client
	store     *aictx.Store
	registry  ToolLister
	exec      Executor
	opts      Options
	state     State
}

// ToolLister resolves the tool definitions exposed to an agent, kept as a
// narrow interface so Loop does not depend on the concrete registry type.
type ToolLister interface {
	Definitions(ctx context.Context, agentName string, predicate tool.Predicate) []tool.Definition
}

// New creates a Loop for one agent.
func New(agentName string, client *aiservice.Client, store *aictx.Store, registry ToolLister, exec Executor, opts Options) *Loop {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	return &Loop{
		agentName: agentName,
		client:    client,
		store:     store,
		registry:  registry,
		exec:      exec,
		opts:      opts,
		state:     StateNotStarted,
	}
}

// State returns the loop's current phase.
func (l *Loop) State() State { return l.state }

// Store returns the loop's context store, e.g. for periodic persistence of
// conversation history.
func (l *Loop) Store() *aictx.Store { return l.store }

// RestoreStore replaces the loop's context store, e.g. to seed it from a
// persisted snapshot before the owning session starts processing tasks.
func (l *Loop) RestoreStore(store *aictx.Store) { l.store = store }

func (l *Loop) toolDefinitions(ctx context.Context) []aiservice.Tool {
	defs := l.registry.Definitions(ctx, l.agentName, nil)
	out := make([]aiservice.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, aiservice.Tool{
			Type: "function",
			Function: aiservice.ToolFunction{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return out
}

// Run drives the turn to completion, sending events on the returned
// channel. The channel is closed when the turn ends, whether by reaching
// EventEndOfTurn or EventStreamError. Run does not itself add the user's
// prompt to the context store; callers do that before invoking Run.
func (l *Loop) Run(ctx context.Context) <-chan Event {
	out := make(chan Event, 32)
	go l.run(ctx, out)
	return out
}

func (l *Loop) run(ctx context.Context, out chan<- Event) {
	defer close(out)

	for iteration := 0; ; iteration++ {
		if iteration >= l.opts.MaxIterations {
			out <- Event{Kind: EventStreamError, Err: aiwerrors.New(aiwerrors.KindIterationLimit,
				fmt.Sprintf("turn exceeded %d internal iterations", l.opts.MaxIterations))}
			l.state = StateShutdown
			return
		}

		l.state = StateAssembleStream
		req := aiservice.Request{
			Model:       l.opts.Model,
			Messages:    l.withSystemPrompt(),
			Tools:       l.toolDefinitions(ctx),
			Temperature: l.opts.Temperature,
			MaxTokens:   l.opts.MaxTokens,
			Reasoning:   l.opts.Reasoning,
		}

		chunks, errCh := l.client.Stream(ctx, req)

		var text string
		var calls []accumulator.ToolCall
		for chunk := range chunks {
			switch chunk.Type {
			case aiservice.ChunkText:
				text += chunk.Text
				out <- Event{Kind: EventText, Text: chunk.Text}
			case aiservice.ChunkToolCall:
				calls = append(calls, chunk.ToolCall)
				out <- Event{Kind: EventToolCall, ToolCall: chunk.ToolCall}
			case aiservice.ChunkDone:
			}
		}
		if err := <-errCh; err != nil {
			out <- Event{Kind: EventStreamError, Err: err}
			l.state = StateShutdown
			return
		}

		calls = l.capCalls(calls)

		assistantCalls := make([]aictx.ToolCall, 0, len(calls))
		for _, c := range calls {
			assistantCalls = append(assistantCalls, aictx.ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Arguments})
		}
		l.store.AddAssistant(text, assistantCalls)

		if len(calls) == 0 {
			out <- Event{Kind: EventEndOfTurn, Text: text}
			l.state = StateDone
			return
		}

		l.state = StateProcessToolResult
		for _, call := range calls {
			content, err := l.exec(ctx, l.agentName, call)
			outcome := ToolOutcome{ToolCallID: call.ID, Content: content, Err: err}
			if err != nil {
				outcome.Content = err.Error()
			}
			l.store.AddToolResult(call.ID, outcome.Content)
			out <- Event{Kind: EventToolResult, ToolOutcome: outcome}
		}
		// Loop back for another model turn now that tool results are in
		// the context.
	}
}

// capCalls trims calls to what l.opts.Model's capability record allows,
// dropping calls the provider would otherwise reject mid-turn.
func (l *Loop) capCalls(calls []accumulator.ToolCall) []accumulator.ToolCall {
	if l.opts.Caps == nil || len(calls) == 0 {
		return calls
	}
	max := l.opts.Caps.Get(l.opts.Model).MaxToolsPerTurn
	if max < 0 || len(calls) <= max {
		return calls
	}
	return calls[:max]
}

func (l *Loop) withSystemPrompt() []aictx.Message {
	history := l.store.History()
	if l.store.SystemPrompt == "" {
		return history
	}
	out := make([]aictx.Message, 0, len(history)+1)
	out = append(out, aictx.Message{Role: aictx.RoleSystem, Content: l.store.SystemPrompt})
	out = append(out, history...)
	return out
}
