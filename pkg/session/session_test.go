package session_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aiwhisperer/core/pkg/aiwerrors"
	"github.com/aiwhisperer/core/pkg/session"
)

func TestInitialStateIsIdle(t *testing.T) {
	s := session.New("agent1", 0, nil)
	require.Equal(t, session.StateIdle, s.State())
}

func TestStartTransitionsToActive(t *testing.T) {
	s := session.New("agent1", 0, nil)
	require.NoError(t, s.Start())
	require.Equal(t, session.StateActive, s.State())
}

func TestInvalidTransitionRejected(t *testing.T) {
	s := session.New("agent1", 0, nil)
	err := s.Sleep() // IDLE -> SLEEPING is not allowed
	require.Error(t, err)
	kind, ok := aiwerrors.KindOf(err)
	require.True(t, ok)
	require.Equal(t, aiwerrors.KindInvalidArguments, kind)
}

func TestSleepWakeCycle(t *testing.T) {
	s := session.New("agent1", 0, nil)
	require.NoError(t, s.Start())
	require.NoError(t, s.Sleep())
	require.Equal(t, session.StateSleeping, s.State())
	require.NoError(t, s.Wake())
	require.Equal(t, session.StateActive, s.State())

	select {
	case <-s.WakeSignal():
	default:
		t.Fatal("expected wake signal to be set")
	}
}

func TestWaitResumeCycle(t *testing.T) {
	s := session.New("agent1", 0, nil)
	require.NoError(t, s.Start())
	require.NoError(t, s.Wait())
	require.Equal(t, session.StateWaiting, s.State())
	require.NoError(t, s.Resume())
	require.Equal(t, session.StateActive, s.State())
}

func TestStopIsIdempotent(t *testing.T) {
	s := session.New("agent1", 0, nil)
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	require.Equal(t, session.StateStopped, s.State())
}

func TestFailRecordsErrorMessage(t *testing.T) {
	s := session.New("agent1", 0, nil)
	require.NoError(t, s.Start())
	require.NoError(t, s.Fail("boom"))
	require.Equal(t, session.StateError, s.State())
	require.Equal(t, "boom", s.ErrorMessage())
}

func TestEnqueueOverflowsWithBoundedQueue(t *testing.T) {
	s := session.New("agent1", 1, nil)
	require.NoError(t, s.Enqueue(session.Task{ID: "1"}))
	err := s.Enqueue(session.Task{ID: "2"})
	require.Error(t, err)
	kind, ok := aiwerrors.KindOf(err)
	require.True(t, ok)
	require.Equal(t, aiwerrors.KindQueueOverflow, kind)
}

func TestStateChangeHandlerFires(t *testing.T) {
	var transitions [][2]session.State
	s := session.New("agent1", 0, func(_ string, from, to session.State) {
		transitions = append(transitions, [2]session.State{from, to})
	})
	require.NoError(t, s.Start())
	require.Len(t, transitions, 1)
	require.Equal(t, session.StateIdle, transitions[0][0])
	require.Equal(t, session.StateActive, transitions[0][1])
}
