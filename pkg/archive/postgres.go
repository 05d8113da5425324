package archive

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/aiwhisperer/core/pkg/mailbox"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS archived_mail (
	message_id TEXT PRIMARY KEY,
	from_agent TEXT NOT NULL,
	to_agent   TEXT NOT NULL,
	subject    TEXT,
	body       TEXT,
	priority   TEXT,
	status     TEXT,
	reply_to   TEXT,
	ts         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_archived_mail_to_agent ON archived_mail(to_agent, ts);
CREATE INDEX IF NOT EXISTS idx_archived_mail_reply_to ON archived_mail(reply_to);
`

type postgresStore struct {
	db *sql.DB
}

func newPostgresStore(dsn string) (Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &postgresStore{db: db}, nil
}

func (s *postgresStore) Append(ctx context.Context, m mailbox.Mail) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO archived_mail
		(message_id, from_agent, to_agent, subject, body, priority, status, reply_to, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (message_id) DO UPDATE SET status = EXCLUDED.status`,
		m.MessageID, m.FromAgent, m.ToAgent, m.Subject, m.Body,
		string(m.Priority), string(m.Status), m.ReplyTo, m.Timestamp,
	)
	return err
}

func (s *postgresStore) Thread(ctx context.Context, messageID string) ([]mailbox.Mail, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, from_agent, to_agent, subject, body, priority, status, reply_to, ts
		 FROM archived_mail WHERE message_id = $1 OR reply_to = $1 ORDER BY ts ASC`,
		messageID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMailTZ(rows)
}

func (s *postgresStore) Recent(ctx context.Context, recipient string, limit int) ([]mailbox.Mail, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, from_agent, to_agent, subject, body, priority, status, reply_to, ts
		 FROM archived_mail WHERE to_agent = $1 ORDER BY ts DESC LIMIT $2`,
		recipient, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMailTZ(rows)
}

func (s *postgresStore) Close() error {
	return s.db.Close()
}

func scanMailTZ(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]mailbox.Mail, error) {
	var out []mailbox.Mail
	for rows.Next() {
		var (
			m        mailbox.Mail
			priority string
			status   string
		)
		if err := rows.Scan(&m.MessageID, &m.FromAgent, &m.ToAgent, &m.Subject, &m.Body, &priority, &status, &m.ReplyTo, &m.Timestamp); err != nil {
			return nil, err
		}
		m.Priority = mailbox.Priority(priority)
		m.Status = mailbox.Status(status)
		out = append(out, m)
	}
	return out, rows.Err()
}
