// Package persistence durably snapshots per-agent state to disk (spec
// C12): atomic JSON writes (temp file + fsync + rename), a wrapper
// envelope carrying save metadata, age-based cleanup, and restore that
// never auto-starts the restored agent.
//
// Grounded on AIWhisperer's original StatePersistenceManager (file-based
// JSON storage with atomic operations, one file per agent) and on this
// codebase's config loader style of read-then-decode.
package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aiwhisperer/core/pkg/aiwerrors"
)

// envelope wraps a caller's state with metadata needed to validate and
// age-out snapshots without inspecting their payload.
type envelope struct {
	SavedAt   time.Time       `json:"_saved_at"`
	SessionID string          `json:"_session_id"`
	Version   int             `json:"_version"`
	State     json.RawMessage `json:"state"`
}

// envelopeVersion is bumped whenever the envelope shape changes
// incompatibly.
const envelopeVersion = 1

// Manager persists agent state under a directory, one file per agent.
type Manager struct {
	mu  sync.Mutex
	dir string
}

// New creates a Manager rooted at dir, creating dir if it does not exist.
func New(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, aiwerrors.Wrap(aiwerrors.KindPersistence, "create state directory", err)
	}
	return &Manager{dir: dir}, nil
}

func (m *Manager) pathFor(agentName string) string {
	return filepath.Join(m.dir, agentName+".json")
}

// Save atomically writes agentName's state: marshal to a temp file in the
// same directory, fsync it, then rename over the final path. A rename is
// atomic on the same filesystem, so a crash mid-write never leaves a
// partially-written snapshot visible under the final name.
func (m *Manager) Save(agentName, sessionID string, now time.Time, state any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, err := json.Marshal(state)
	if err != nil {
		return aiwerrors.Wrap(aiwerrors.KindPersistence, "marshal agent state", err)
	}
	env := envelope{SavedAt: now, SessionID: sessionID, Version: envelopeVersion, State: raw}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return aiwerrors.Wrap(aiwerrors.KindPersistence, "marshal envelope", err)
	}

	final := m.pathFor(agentName)
	tmp := final + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return aiwerrors.Wrap(aiwerrors.KindPersistence, "open temp snapshot file", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return aiwerrors.Wrap(aiwerrors.KindPersistence, "write temp snapshot file", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return aiwerrors.Wrap(aiwerrors.KindPersistence, "fsync temp snapshot file", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return aiwerrors.Wrap(aiwerrors.KindPersistence, "close temp snapshot file", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return aiwerrors.Wrap(aiwerrors.KindPersistence, "rename snapshot into place", err)
	}
	return nil
}

// Snapshot is a loaded, un-typed state along with its save metadata.
type Snapshot struct {
	SavedAt   time.Time
	SessionID string
	State     json.RawMessage
}

// Load reads agentName's snapshot. Restoring a snapshot never resumes the
// agent's session itself — callers decide separately whether and how to
// restart processing, per the restore-without-auto-start invariant.
func (m *Manager) Load(agentName string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.pathFor(agentName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, aiwerrors.Wrap(aiwerrors.KindPersistence, "no snapshot for agent "+agentName, err)
		}
		return nil, aiwerrors.Wrap(aiwerrors.KindPersistence, "read snapshot", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, aiwerrors.Wrap(aiwerrors.KindPersistence, "decode snapshot envelope", err)
	}
	if env.Version != envelopeVersion {
		return nil, aiwerrors.New(aiwerrors.KindPersistence, "unsupported snapshot version")
	}
	return &Snapshot{SavedAt: env.SavedAt, SessionID: env.SessionID, State: env.State}, nil
}

// Delete removes agentName's snapshot, if any. It is not an error for the
// snapshot to already be absent.
func (m *Manager) Delete(agentName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.Remove(m.pathFor(agentName)); err != nil && !os.IsNotExist(err) {
		return aiwerrors.Wrap(aiwerrors.KindPersistence, "delete snapshot", err)
	}
	return nil
}

// List returns the agent names with a persisted snapshot.
func (m *Manager) List() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, aiwerrors.Wrap(aiwerrors.KindPersistence, "list snapshot directory", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

// Cleanup deletes snapshots older than maxAge relative to now, returning
// the agent names it removed.
func (m *Manager) Cleanup(now time.Time, maxAge time.Duration) ([]string, error) {
	names, err := m.List()
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, name := range names {
		snap, err := m.Load(name)
		if err != nil {
			continue
		}
		if now.Sub(snap.SavedAt) > maxAge {
			if err := m.Delete(name); err != nil {
				return removed, err
			}
			removed = append(removed, name)
		}
	}
	return removed, nil
}
