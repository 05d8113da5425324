package sessionmanager_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	aictx "github.com/aiwhisperer/core/pkg/context"
	"github.com/aiwhisperer/core/pkg/loop"
	"github.com/aiwhisperer/core/pkg/mailbox"
	"github.com/aiwhisperer/core/pkg/session"
	"github.com/aiwhisperer/core/pkg/sessionmanager"
	"github.com/aiwhisperer/core/pkg/tool"

	"github.com/aiwhisperer/core/pkg/aiservice"
)

type notifySink struct {
	mu     sync.Mutex
	events []sessionmanager.Notification
}

func (n *notifySink) record(ev sessionmanager.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *notifySink) snapshot() []sessionmanager.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]sessionmanager.Notification, len(n.events))
	copy(out, n.events)
	return out
}

func textOnlyServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"" + reply + "\"}}]}\n\n"))
		flusher.Flush()
		w.Write([]byte("data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}],\"usage\":{\"prompt_tokens\":1,\"completion_tokens\":1,\"total_tokens\":2}}\n\n"))
		flusher.Flush()
		w.Write([]byte("data: [DONE]\n\n"))
		flusher.Flush()
	}))
}

func newTestLoop(t *testing.T, agentName, reply string) (*loop.Loop, *httptest.Server) {
	t.Helper()
	srv := textOnlyServer(t, reply)
	client := aiservice.New(aiservice.Config{BaseURL: srv.URL, APIKey: "k"})
	store := aictx.New("you are a test agent")
	l := loop.New(agentName, client, store, nopLister{}, nil, loop.Options{Model: "gpt-4", MaxIterations: 5})
	return l, srv
}

type nopLister struct{}

func (nopLister) Definitions(ctx context.Context, agentName string, predicate tool.Predicate) []tool.Definition {
	return nil
}

func TestCreateAgentSessionProcessesQueuedTask(t *testing.T) {
	sink := &notifySink{}
	mb := mailbox.New()
	mgr := sessionmanager.New(mb, sink.record, nil)

	l, srv := newTestLoop(t, "agent1", "hello there")
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := mgr.CreateAgentSession(ctx, "agent1", l, true)
	require.Equal(t, session.StateActive, sess.State())

	require.NoError(t, mgr.SendTaskToAgent("agent1", "do something"))

	require.Eventually(t, func() bool {
		for _, ev := range sink.snapshot() {
			if ev.Method == "async.task.completed" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	mgr.Stop()
	require.Equal(t, session.StateStopped, mgr.AgentStates()["agent1"])
}

func TestMailDeliveryWakesSleepingAgent(t *testing.T) {
	sink := &notifySink{}
	mb := mailbox.New()
	mgr := sessionmanager.New(mb, sink.record, nil)

	l, srv := newTestLoop(t, "agent2", "got mail")
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr.CreateAgentSession(ctx, "agent2", l, true)
	require.NoError(t, mgr.SleepAgent("agent2", 0))
	require.Equal(t, session.StateSleeping, mgr.AgentStates()["agent2"])

	mb.Send(mailbox.Mail{ToAgent: "agent2", Subject: "hi", Body: "hi"})

	require.Eventually(t, func() bool {
		return mgr.AgentStates()["agent2"] == session.StateActive
	}, 2*time.Second, 10*time.Millisecond)

	mgr.Stop()
}

func TestSendTaskToUnknownAgentErrors(t *testing.T) {
	mgr := sessionmanager.New(mailbox.New(), nil, nil)
	err := mgr.SendTaskToAgent("ghost", "x")
	require.Error(t, err)
}

func TestBroadcastEventReachesSink(t *testing.T) {
	sink := &notifySink{}
	mgr := sessionmanager.New(mailbox.New(), sink.record, nil)
	mgr.BroadcastEvent("system.shutdown", map[string]any{"reason": "test"})

	events := sink.snapshot()
	require.Len(t, events, 1)
	require.Equal(t, "system.shutdown", events[0].Method)
}

func TestAgentStatesReportsAllAgents(t *testing.T) {
	mgr := sessionmanager.New(mailbox.New(), nil, nil)
	ctx := context.Background()

	l1, srv1 := newTestLoop(t, "a", "x")
	defer srv1.Close()
	l2, srv2 := newTestLoop(t, "b", "y")
	defer srv2.Close()

	mgr.CreateAgentSession(ctx, "a", l1, false)
	mgr.CreateAgentSession(ctx, "b", l2, false)

	states := mgr.AgentStates()
	require.Len(t, states, 2)
	require.Equal(t, session.StateIdle, states["a"])
	require.Equal(t, session.StateIdle, states["b"])
}
