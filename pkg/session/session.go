// Package session is the per-agent session state machine:
// IDLE/ACTIVE/SLEEPING/WAITING/STOPPED, a bounded task queue, and wake
// signaling, grounded on AIWhisperer's original AgentSession/AgentState.
package session

import (
	"sync"
	"time"

	"github.com/aiwhisperer/core/pkg/aiwerrors"
)

// State is one phase of an agent session's lifecycle.
type State string

const (
	StateIdle     State = "IDLE"
	StateActive   State = "ACTIVE"
	StateSleeping State = "SLEEPING"
	StateWaiting  State = "WAITING"
	StateStopped  State = "STOPPED"
	StateError    State = "ERROR"
)

// validTransitions enumerates every allowed state change; anything not
// listed here is rejected.
var validTransitions = map[State]map[State]bool{
	StateIdle:     {StateActive: true, StateStopped: true},
	StateActive:   {StateSleeping: true, StateWaiting: true, StateStopped: true, StateError: true, StateIdle: true},
	StateSleeping: {StateActive: true, StateStopped: true},
	StateWaiting:  {StateActive: true, StateStopped: true},
	StateError:    {StateStopped: true, StateActive: true},
	StateStopped:  {},
}

// DefaultTaskQueueCapacity bounds a session's pending task queue.
const DefaultTaskQueueCapacity = 100

// Task is one unit of work queued for an agent to process.
type Task struct {
	ID      string
	Kind    string
	Payload any
}

// StateChangeHandler is invoked on every successful transition.
type StateChangeHandler func(agentName string, from, to State)

// Session tracks one agent's lifecycle state and pending task queue.
type Session struct {
	mu            sync.Mutex
	agentName     string
	state         State
	lastActivity  time.Time
	errorMessage  string
	tasks         chan Task
	wake          chan struct{}
	onStateChange StateChangeHandler
}

// New creates an IDLE session for agentName with a bounded task queue.
func New(agentName string, queueCapacity int, onStateChange StateChangeHandler) *Session {
	if queueCapacity <= 0 {
		queueCapacity = DefaultTaskQueueCapacity
	}
	return &Session{
		agentName:     agentName,
		state:         StateIdle,
		lastActivity:  time.Now(),
		tasks:         make(chan Task, queueCapacity),
		wake:          make(chan struct{}, 1),
		onStateChange: onStateChange,
	}
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) transition(to State) error {
	s.mu.Lock()
	from := s.state
	allowed := validTransitions[from][to]
	if !allowed {
		s.mu.Unlock()
		return aiwerrors.New(aiwerrors.KindInvalidArguments,
			"invalid session transition from "+string(from)+" to "+string(to))
	}
	s.state = to
	s.lastActivity = time.Now()
	if to != StateError {
		s.errorMessage = ""
	}
	s.mu.Unlock()

	if s.onStateChange != nil {
		s.onStateChange(s.agentName, from, to)
	}
	return nil
}

// Start transitions IDLE -> ACTIVE.
func (s *Session) Start() error { return s.transition(StateActive) }

// Stop transitions to STOPPED from any non-terminal state. Stopping an
// already-stopped session is a no-op.
func (s *Session) Stop() error {
	if s.State() == StateStopped {
		return nil
	}
	return s.transition(StateStopped)
}

// Sleep transitions ACTIVE -> SLEEPING.
func (s *Session) Sleep() error { return s.transition(StateSleeping) }

// Wake transitions SLEEPING -> ACTIVE and signals any blocked waiter.
func (s *Session) Wake() error {
	if err := s.transition(StateActive); err != nil {
		return err
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Wait transitions ACTIVE -> WAITING, e.g. while blocked on a synchronous
// reply from another agent.
func (s *Session) Wait() error { return s.transition(StateWaiting) }

// Resume transitions WAITING -> ACTIVE.
func (s *Session) Resume() error { return s.transition(StateActive) }

// Fail transitions to ERROR, recording msg.
func (s *Session) Fail(msg string) error {
	if err := s.transition(StateError); err != nil {
		return err
	}
	s.mu.Lock()
	s.errorMessage = msg
	s.mu.Unlock()
	return nil
}

// ErrorMessage returns the message recorded by the last Fail, if the
// session is currently in ERROR state.
func (s *Session) ErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorMessage
}

// LastActivity returns the time of the session's last successful
// transition.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Enqueue adds a task to the session's bounded queue. Returns a
// queue-overflow error immediately if the queue is full, rather than
// blocking the caller.
func (s *Session) Enqueue(t Task) error {
	select {
	case s.tasks <- t:
		return nil
	default:
		return aiwerrors.New(aiwerrors.KindQueueOverflow,
			"task queue full for agent "+s.agentName)
	}
}

// Tasks returns the channel tasks are delivered on, for the session's
// processing loop to range over.
func (s *Session) Tasks() <-chan Task { return s.tasks }

// WakeSignal returns the channel signaled by Wake, for a processing loop
// blocked in SLEEPING to select on.
func (s *Session) WakeSignal() <-chan struct{} { return s.wake }

// QueueLen reports how many tasks are currently queued.
func (s *Session) QueueLen() int { return len(s.tasks) }
