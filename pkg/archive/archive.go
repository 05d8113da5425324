// Package archive is the durable mailbox archive: every mail message
// delivered through the in-memory pkg/mailbox.Mailbox is additionally
// persisted to one
// pluggable SQL backend (sqlite/postgres/mysql) behind a single Store
// interface, grounded on the teacher's pkg/databases multi-backend
// registry pattern.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/aiwhisperer/core/pkg/aiwerrors"
	"github.com/aiwhisperer/core/pkg/mailbox"
	"github.com/aiwhisperer/core/pkg/registry"
)

// Store persists and retrieves archived mail. Implementations are
// swappable at configuration time by backend name.
type Store interface {
	// Append durably records a delivered or archived message.
	Append(ctx context.Context, mail mailbox.Mail) error

	// Thread returns messageID's own message and the messages that reply
	// directly to it, oldest first. Replies to those replies, and the
	// message messageID itself replies to, are not included.
	Thread(ctx context.Context, messageID string) ([]mailbox.Mail, error)

	// Recent returns the most recently archived messages for recipient,
	// newest first, bounded by limit.
	Recent(ctx context.Context, recipient string, limit int) ([]mailbox.Mail, error)

	// Close releases the backend's resources (DB connections, etc).
	Close() error
}

// Config selects and configures a Store backend.
type Config struct {
	// Backend is one of "sqlite", "postgres", "mysql".
	Backend string `yaml:"backend,omitempty"`

	// DSN is the backend-specific data source name: a file path for
	// sqlite, or a connection string for postgres/mysql.
	DSN string `yaml:"dsn,omitempty"`
}

// SetDefaults applies default values to Config.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "sqlite"
	}
	if c.DSN == "" && c.Backend == "sqlite" {
		c.DSN = "aiwhisperer_archive.db"
	}
}

// Validate checks Config for errors.
func (c *Config) Validate() error {
	switch c.Backend {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("archive: unsupported backend %q (valid: sqlite, postgres, mysql)", c.Backend)
	}
	if c.DSN == "" {
		return fmt.Errorf("archive: dsn is required for backend %q", c.Backend)
	}
	return nil
}

// Registry manages named Store instances, one per configured archive.
type Registry struct {
	*registry.BaseRegistry[Store]
}

// NewRegistry creates an empty archive registry.
func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Store]()}
}

// Open constructs a Store from cfg, registers it under name, and returns
// it.
func (r *Registry) Open(name string, cfg *Config) (Store, error) {
	if cfg == nil {
		return nil, aiwerrors.New(aiwerrors.KindConfig, "archive config cannot be nil")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, aiwerrors.Wrap(aiwerrors.KindConfig, "invalid archive config", err)
	}

	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case "sqlite":
		store, err = newSQLiteStore(cfg.DSN)
	case "postgres":
		store, err = newPostgresStore(cfg.DSN)
	case "mysql":
		store, err = newMySQLStore(cfg.DSN)
	default:
		return nil, aiwerrors.New(aiwerrors.KindConfig, "unsupported archive backend: "+cfg.Backend)
	}
	if err != nil {
		return nil, aiwerrors.Wrap(aiwerrors.KindPersistence, "open archive store", err)
	}
	if regErr := r.Register(name, store); regErr != nil {
		_ = store.Close()
		return nil, aiwerrors.Wrap(aiwerrors.KindPersistence, "register archive store", regErr)
	}
	return store, nil
}

// rowTimestamp is the layout archived timestamps are stored and parsed in.
const rowTimestamp = time.RFC3339Nano

// NotificationHandler adapts a Store into a mailbox.NotificationHandler,
// so every message delivered through a mailbox.Mailbox is durably archived
// as it arrives. Persistence errors are logged by the caller, not
// returned, matching the mailbox's fire-and-forget handler contract.
func NotificationHandler(ctx context.Context, store Store, onError func(error)) mailbox.NotificationHandler {
	return func(_ string, mail mailbox.Mail) {
		if err := store.Append(ctx, mail); err != nil && onError != nil {
			onError(err)
		}
	}
}
