package archive

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aiwhisperer/core/pkg/mailbox"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS archived_mail (
	message_id TEXT PRIMARY KEY,
	from_agent TEXT NOT NULL,
	to_agent   TEXT NOT NULL,
	subject    TEXT,
	body       TEXT,
	priority   TEXT,
	status     TEXT,
	reply_to   TEXT,
	ts         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_archived_mail_to_agent ON archived_mail(to_agent, ts);
CREATE INDEX IF NOT EXISTS idx_archived_mail_reply_to ON archived_mail(reply_to);
`

type sqlStore struct {
	db *sql.DB
}

func newSQLiteStore(dsn string) (Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqlStore{db: db}, nil
}

func (s *sqlStore) Append(ctx context.Context, m mailbox.Mail) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO archived_mail
		(message_id, from_agent, to_agent, subject, body, priority, status, reply_to, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.MessageID, m.FromAgent, m.ToAgent, m.Subject, m.Body,
		string(m.Priority), string(m.Status), m.ReplyTo, m.Timestamp.Format(rowTimestamp),
	)
	return err
}

func (s *sqlStore) Thread(ctx context.Context, messageID string) ([]mailbox.Mail, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, from_agent, to_agent, subject, body, priority, status, reply_to, ts
		 FROM archived_mail WHERE message_id = ? OR reply_to = ? ORDER BY ts ASC`,
		messageID, messageID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMail(rows)
}

func (s *sqlStore) Recent(ctx context.Context, recipient string, limit int) ([]mailbox.Mail, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, from_agent, to_agent, subject, body, priority, status, reply_to, ts
		 FROM archived_mail WHERE to_agent = ? ORDER BY ts DESC LIMIT ?`,
		recipient, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMail(rows)
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

func scanMail(rows interface {
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
			ts       string
		)
		if err := rows.Scan(&m.MessageID, &m.FromAgent, &m.ToAgent, &m.Subject, &m.Body, &priority, &status, &m.ReplyTo, &ts); err != nil {
			return nil, err
		}
		m.Priority = mailbox.Priority(priority)
		m.Status = mailbox.Status(status)
		if parsed, err := time.Parse(rowTimestamp, ts); err == nil {
			m.Timestamp = parsed
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
