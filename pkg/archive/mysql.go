package archive

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/aiwhisperer/core/pkg/mailbox"
)

const mysqlSchema = `
CREATE TABLE IF NOT EXISTS archived_mail (
	message_id VARCHAR(191) PRIMARY KEY,
	from_agent VARCHAR(255) NOT NULL,
	to_agent   VARCHAR(255) NOT NULL,
	subject    TEXT,
	body       TEXT,
	priority   VARCHAR(32),
	status     VARCHAR(32),
	reply_to   VARCHAR(191),
	ts         DATETIME NOT NULL,
	INDEX idx_to_agent (to_agent, ts),
	INDEX idx_reply_to (reply_to)
);
`

type mysqlStore struct {
	db *sql.DB
}

func newMySQLStore(dsn string) (Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(mysqlSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &mysqlStore{db: db}, nil
}

func (s *mysqlStore) Append(ctx context.Context, m mailbox.Mail) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO archived_mail
		(message_id, from_agent, to_agent, subject, body, priority, status, reply_to, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE status = VALUES(status)`,
		m.MessageID, m.FromAgent, m.ToAgent, m.Subject, m.Body,
		string(m.Priority), string(m.Status), m.ReplyTo, m.Timestamp.UTC().Format("2006-01-02 15:04:05"),
	)
	return err
}

func (s *mysqlStore) Thread(ctx context.Context, messageID string) ([]mailbox.Mail, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, from_agent, to_agent, subject, body, priority, status, reply_to, ts
		 FROM archived_mail WHERE message_id = ? OR reply_to = ? ORDER BY ts ASC`,
		messageID, messageID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMailDateTime(rows)
}

func (s *mysqlStore) Recent(ctx context.Context, recipient string, limit int) ([]mailbox.Mail, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, from_agent, to_agent, subject, body, priority, status, reply_to, ts
		 FROM archived_mail WHERE to_agent = ? ORDER BY ts DESC LIMIT ?`,
		recipient, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMailDateTime(rows)
}

func (s *mysqlStore) Close() error {
	return s.db.Close()
}

func scanMailDateTime(rows interface {
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
			ts       time.Time
		)
		if err := rows.Scan(&m.MessageID, &m.FromAgent, &m.ToAgent, &m.Subject, &m.Body, &priority, &status, &m.ReplyTo, &ts); err != nil {
			return nil, err
		}
		m.Priority = mailbox.Priority(priority)
		m.Status = mailbox.Status(status)
		m.Timestamp = ts
		out = append(out, m)
	}
	return out, rows.Err()
}
