// Package sessionmanager is the async multi-agent coordinator: one
// cooperative processor goroutine per agent session, mailbox delivery
// turned into queued tasks, and a notification stream mirroring
// AIWhisperer's original async.*/agent.*/ai_loop.* event taxonomy.
//
// Grounded on AIWhisperer's original AsyncAgentSessionManager (per-agent
// processor loop, sleep/wake handling, task lifecycle notifications) and
// on pkg/loop and pkg/session for the primitives it orchestrates.
package sessionmanager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aiwhisperer/core/pkg/aiwerrors"
	"github.com/aiwhisperer/core/pkg/loop"
	aiwlog "github.com/aiwhisperer/core/pkg/logger"
	"github.com/aiwhisperer/core/pkg/mailbox"
	"github.com/aiwhisperer/core/pkg/session"
)

// Notification is one event emitted to observers, shaped after the
// original method/params notification envelope.
type Notification struct {
	Method string
	Params map[string]any
}

// NotificationSink receives every notification the manager emits.
type NotificationSink func(Notification)

// errorBudget is the number of consecutive processing errors after which
// the manager logs that an agent has exceeded its budget. Tasks keep being
// delivered and the agent is not stopped, matching the "non-self-stopping"
// design.
const errorBudget = 5

type managedSession struct {
	sess            *session.Session
	loop            *loop.Loop
	agentName       string
	consecutiveErrs int
	stopped         chan struct{}
}

// Manager coordinates every agent's session, processor goroutine, and
// mailbox-derived task delivery.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*managedSession
	mailbox  *mailbox.Mailbox
	sink     NotificationSink
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// New creates a Manager wired to mb for inter-agent mail and sink for
// notifications.
func New(mb *mailbox.Mailbox, sink NotificationSink, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = aiwlog.Get()
	}
	if sink == nil {
		sink = func(Notification) {}
	}
	m := &Manager{
		sessions: make(map[string]*managedSession),
		mailbox:  mb,
		sink:     sink,
		logger:   logger,
	}
	mb.RegisterNotificationHandler(m.onMail)
	return m
}

func (m *Manager) notify(method string, params map[string]any) {
	m.sink(Notification{Method: method, Params: params})
}

func (m *Manager) onMail(recipient string, mail mailbox.Mail) {
	m.mu.Lock()
	ms, ok := m.sessions[recipient]
	m.mu.Unlock()
	if !ok {
		return
	}
	_ = ms.sess.Enqueue(session.Task{
		ID:      mail.MessageID,
		Kind:    "mail",
		Payload: mail,
	})
	if ms.sess.State() == session.StateSleeping {
		_ = ms.sess.Wake()
	}
}

// CreateAgentSession registers agentName with its loop and, if autoStart
// is true, launches its processor goroutine immediately.
func (m *Manager) CreateAgentSession(ctx context.Context, agentName string, l *loop.Loop, autoStart bool) *session.Session {
	sess := session.New(agentName, session.DefaultTaskQueueCapacity, func(name string, from, to session.State) {
		m.notify("agent.state_changed", map[string]any{"agent": name, "from": string(from), "to": string(to)})
	})

	m.mu.Lock()
	m.sessions[agentName] = &managedSession{sess: sess, loop: l, agentName: agentName, stopped: make(chan struct{})}
	m.mu.Unlock()

	if autoStart {
		m.startProcessor(ctx, agentName)
	}
	return sess
}

func (m *Manager) startProcessor(ctx context.Context, agentName string) {
	m.mu.Lock()
	ms, ok := m.sessions[agentName]
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := ms.sess.Start(); err != nil {
		m.logger.Warn("session already started", "agent", agentName, "error", err)
		return
	}

	m.wg.Add(1)
	go m.processAgent(ctx, ms)
}

func (m *Manager) processAgent(ctx context.Context, ms *managedSession) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			_ = ms.sess.Stop()
			return
		case <-ms.stopped:
			return
		case task, ok := <-ms.sess.Tasks():
			if !ok {
				return
			}
			m.processTask(ctx, ms, task)
		case <-ms.sess.WakeSignal():
		}

		if ms.sess.State() == session.StateStopped {
			return
		}
	}
}

func (m *Manager) processTask(ctx context.Context, ms *managedSession, task session.Task) {
	m.notify("async.task.started", map[string]any{"agent": ms.agentName, "task_id": task.ID})

	switch p := task.Payload.(type) {
	case mailbox.Mail:
		ms.loop.Store().AddUser(p.Body)
	case string:
		ms.loop.Store().AddUser(p)
	case nil:
	default:
		ms.loop.Store().AddUser(fmt.Sprint(p))
	}

	events := ms.loop.Run(ctx)
	var final string
	var failed error
	for ev := range events {
		switch ev.Kind {
		case loop.EventStreamError:
			failed = ev.Err
		case loop.EventEndOfTurn:
			final = ev.Text
		}
	}

	if failed != nil {
		ms.consecutiveErrs++
		m.notify("async.task.error", map[string]any{"agent": ms.agentName, "task_id": task.ID, "error": failed.Error()})
		if ms.consecutiveErrs >= errorBudget {
			m.logger.Error("agent exceeded error budget (session stays up)",
				"agent", ms.agentName, "consecutive_errors", ms.consecutiveErrs)
		}
		return
	}

	ms.consecutiveErrs = 0
	m.notify("async.task.completed", map[string]any{"agent": ms.agentName, "task_id": task.ID, "response": final})
}

// SendTaskToAgent enqueues a task directly, bypassing the mailbox. Returns
// a queue-overflow error immediately if the agent's queue is full.
func (m *Manager) SendTaskToAgent(agentName string, payload any) error {
	m.mu.Lock()
	ms, ok := m.sessions[agentName]
	m.mu.Unlock()
	if !ok {
		return aiwerrors.New(aiwerrors.KindInvalidArguments, "unknown agent "+agentName)
	}
	return ms.sess.Enqueue(session.Task{Kind: "direct", Payload: payload})
}

// SleepAgent puts agentName to sleep for duration (zero means indefinite,
// until explicitly woken).
func (m *Manager) SleepAgent(agentName string, duration time.Duration) error {
	m.mu.Lock()
	ms, ok := m.sessions[agentName]
	m.mu.Unlock()
	if !ok {
		return aiwerrors.New(aiwerrors.KindInvalidArguments, "unknown agent "+agentName)
	}
	if err := ms.sess.Sleep(); err != nil {
		return err
	}
	if duration > 0 {
		time.AfterFunc(duration, func() { _ = ms.sess.Wake() })
	}
	return nil
}

// WakeAgent wakes a sleeping agent.
func (m *Manager) WakeAgent(agentName string) error {
	m.mu.Lock()
	ms, ok := m.sessions[agentName]
	m.mu.Unlock()
	if !ok {
		return aiwerrors.New(aiwerrors.KindInvalidArguments, "unknown agent "+agentName)
	}
	return ms.sess.Wake()
}

// BroadcastEvent sends a notification to all observers without targeting
// a specific agent.
func (m *Manager) BroadcastEvent(event string, data map[string]any) {
	m.notify(event, data)
}

// AgentStates returns each tracked agent's current state, for status
// reporting.
func (m *Manager) AgentStates() map[string]session.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]session.State, len(m.sessions))
	for name, ms := range m.sessions {
		out[name] = ms.sess.State()
	}
	return out
}

// Stop transitions every tracked session to STOPPED and waits for their
// processor goroutines to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	sessions := make([]*managedSession, 0, len(m.sessions))
	for _, ms := range m.sessions {
		sessions = append(sessions, ms)
	}
	m.mu.Unlock()

	for _, ms := range sessions {
		_ = ms.sess.Stop()
		close(ms.stopped)
	}
	m.wg.Wait()
}
