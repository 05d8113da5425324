package loop_test

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aiwhisperer/core/pkg/accumulator"
	"github.com/aiwhisperer/core/pkg/aiservice"
	aictx "github.com/aiwhisperer/core/pkg/context"
	"github.com/aiwhisperer/core/pkg/loop"
	"github.com/aiwhisperer/core/pkg/modelcaps"
	"github.com/aiwhisperer/core/pkg/tool"
)

type emptyToolLister struct{}

func (emptyToolLister) Definitions(_ context.Context, _ string, _ tool.Predicate) []tool.Definition {
	return nil
}

func sseServer(events []string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		bw := bufio.NewWriter(w)
		for _, ev := range events {
			fmt.Fprintf(bw, "data: %s\n\n", ev)
			bw.Flush()
			flusher.Flush()
		}
	}))
}

func collect(t *testing.T, events <-chan loop.Event) []loop.Event {
	t.Helper()
	var out []loop.Event
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out collecting loop events")
		}
	}
}

func TestRunEndsTurnWithNoToolCalls(t *testing.T) {
	srv := sseServer([]string{
		`{"choices":[{"delta":{"content":"hello"},"finish_reason":"stop"}]}`,
		"[DONE]",
	})
	defer srv.Close()

	client := aiservice.New(aiservice.Config{BaseURL: srv.URL, APIKey: "k"})
	store := aictx.New("be helpful")
	store.AddUser("hi")

	l := loop.New("agent1", client, store, emptyToolLister{}, nil, loop.Options{Model: "m"})
	events := collect(t, l.Run(context.Background()))

	var sawEnd bool
	for _, ev := range events {
		if ev.Kind == loop.EventEndOfTurn {
			sawEnd = true
			require.Equal(t, "hello", ev.Text)
		}
	}
	require.True(t, sawEnd)
	require.Equal(t, loop.StateDone, l.State())
}

func TestRunExecutesToolCallThenCompletesOnNextTurn(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		flusher := w.(http.Flusher)
		bw := bufio.NewWriter(w)
		if calls == 1 {
			fmt.Fprintf(bw, "data: %s\n\n", `{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"read_file","arguments":"{}"}}]},"finish_reason":"tool_calls"}]}`)
			fmt.Fprintf(bw, "data: [DONE]\n\n")
		} else {
			fmt.Fprintf(bw, "data: %s\n\n", `{"choices":[{"delta":{"content":"done reading"},"finish_reason":"stop"}]}`)
			fmt.Fprintf(bw, "data: [DONE]\n\n")
		}
		bw.Flush()
		flusher.Flush()
	}))
	defer srv.Close()

	client := aiservice.New(aiservice.Config{BaseURL: srv.URL, APIKey: "k"})
	store := aictx.New("")
	store.AddUser("read a.txt")

	executed := false
	exec := func(_ context.Context, agentName string, call accumulator.ToolCall) (string, error) {
		executed = true
		require.Equal(t, "agent1", agentName)
		require.Equal(t, "read_file", call.Name)
		return "file contents", nil
	}

	l := loop.New("agent1", client, store, emptyToolLister{}, exec, loop.Options{Model: "m"})
	events := collect(t, l.Run(context.Background()))

	require.True(t, executed)
	var sawToolResult, sawEnd bool
	for _, ev := range events {
		if ev.Kind == loop.EventToolResult {
			sawToolResult = true
			require.Equal(t, "file contents", ev.ToolOutcome.Content)
		}
		if ev.Kind == loop.EventEndOfTurn {
			sawEnd = true
			require.Equal(t, "done reading", ev.Text)
		}
	}
	require.True(t, sawToolResult)
	require.True(t, sawEnd)
	require.Equal(t, 2, calls)
}

func TestRunCapsToolCallsToModelCapability(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		flusher := w.(http.Flusher)
		bw := bufio.NewWriter(w)
		if calls == 1 {
			fmt.Fprintf(bw, "data: %s\n\n", `{"choices":[{"delta":{"tool_calls":[`+
				`{"index":0,"id":"call_1","type":"function","function":{"name":"read_file","arguments":"{}"}},`+
				`{"index":1,"id":"call_2","type":"function","function":{"name":"read_file","arguments":"{}"}}`+
				`]},"finish_reason":"tool_calls"}]}`)
		} else {
			fmt.Fprintf(bw, "data: %s\n\n", `{"choices":[{"delta":{"content":"done"},"finish_reason":"stop"}]}`)
		}
		fmt.Fprintf(bw, "data: [DONE]\n\n")
		bw.Flush()
		flusher.Flush()
	}))
	defer srv.Close()

	client := aiservice.New(aiservice.Config{BaseURL: srv.URL, APIKey: "k"})
	store := aictx.New("")
	store.AddUser("read two files")

	var executed []string
	exec := func(_ context.Context, _ string, call accumulator.ToolCall) (string, error) {
		executed = append(executed, call.ID)
		return "ok", nil
	}

	caps := modelcaps.New(nil)
	caps.Register("single-tool-model", modelcaps.Record{MultiTool: false, MaxToolsPerTurn: 1})

	l := loop.New("agent1", client, store, emptyToolLister{}, exec, loop.Options{Model: "single-tool-model", Caps: caps})
	collect(t, l.Run(context.Background()))

	require.Equal(t, []string{"call_1"}, executed)
}

func TestRunStopsAtIterationLimit(t *testing.T) {
	srv := sseServer([]string{
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"loop_forever","arguments":"{}"}}]},"finish_reason":"tool_calls"}]}`,
		"[DONE]",
	})
	defer srv.Close()

	client := aiservice.New(aiservice.Config{BaseURL: srv.URL, APIKey: "k"})
	store := aictx.New("")
	store.AddUser("go")

	exec := func(_ context.Context, _ string, _ accumulator.ToolCall) (string, error) {
		return "ok", nil
	}

	l := loop.New("agent1", client, store, emptyToolLister{}, exec, loop.Options{Model: "m", MaxIterations: 2})
	events := collect(t, l.Run(context.Background()))

	last := events[len(events)-1]
	require.Equal(t, loop.EventStreamError, last.Kind)
	require.Equal(t, loop.StateShutdown, l.State())
}
