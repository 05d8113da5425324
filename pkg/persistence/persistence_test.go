package persistence_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aiwhisperer/core/pkg/persistence"
)

type fakeState struct {
	Counter int `json:"counter"`
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	m, err := persistence.New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, m.Save("agent1", "sess-1", time.Unix(100, 0), fakeState{Counter: 5}))

	snap, err := m.Load("agent1")
	require.NoError(t, err)
	require.Equal(t, "sess-1", snap.SessionID)

	var state fakeState
	require.NoError(t, json.Unmarshal(snap.State, &state))
	require.Equal(t, 5, state.Counter)
}

func TestLoadMissingSnapshotErrors(t *testing.T) {
	m, err := persistence.New(t.TempDir())
	require.NoError(t, err)
	_, err = m.Load("nonexistent")
	require.Error(t, err)
}

func TestDeleteIsIdempotent(t *testing.T) {
	m, err := persistence.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, m.Delete("nonexistent"))
}

func TestListReturnsSavedAgents(t *testing.T) {
	m, err := persistence.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, m.Save("agent1", "s", time.Unix(1, 0), fakeState{}))
	require.NoError(t, m.Save("agent2", "s", time.Unix(1, 0), fakeState{}))

	names, err := m.List()
	require.NoError(t, err)
	require.Equal(t, []string{"agent1", "agent2"}, names)
}

func TestCleanupRemovesOldSnapshots(t *testing.T) {
	m, err := persistence.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, m.Save("old", "s", time.Unix(0, 0), fakeState{}))
	require.NoError(t, m.Save("fresh", "s", time.Unix(1000, 0), fakeState{}))

	removed, err := m.Cleanup(time.Unix(1000, 0), 100*time.Second)
	require.NoError(t, err)
	require.Equal(t, []string{"old"}, removed)

	names, err := m.List()
	require.NoError(t, err)
	require.Equal(t, []string{"fresh"}, names)
}
