package archive_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aiwhisperer/core/pkg/archive"
	"github.com/aiwhisperer/core/pkg/mailbox"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "archive.db")
	reg := archive.NewRegistry()
	store, err := reg.Open("default", &archive.Config{Backend: "sqlite", DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	mail := mailbox.Mail{
		MessageID: "m1",
		FromAgent: "planner",
		ToAgent:   "researcher",
		Subject:   "task",
		Body:      "go do the thing",
		Priority:  mailbox.PriorityNormal,
		Status:    mailbox.StatusUnread,
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, store.Append(ctx, mail))

	reply := mailbox.Mail{
		MessageID: "m2",
		FromAgent: "researcher",
		ToAgent:   "planner",
		Subject:   "Re: task",
		Body:      "done",
		Priority:  mailbox.PriorityNormal,
		Status:    mailbox.StatusUnread,
		ReplyTo:   "m1",
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, store.Append(ctx, reply))

	thread, err := store.Thread(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, thread, 2)

	recent, err := store.Recent(ctx, "researcher", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
}

func TestConfigDefaultsAndValidate(t *testing.T) {
	cfg := &archive.Config{}
	cfg.SetDefaults()
	require.Equal(t, "sqlite", cfg.Backend)
	require.NoError(t, cfg.Validate())

	bad := &archive.Config{Backend: "mongo", DSN: "x"}
	require.Error(t, bad.Validate())
}
