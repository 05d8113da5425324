// Package mailbox is the inter-agent mail system: per-recipient inboxes,
// unread counts, reply threading and archival, grounded on AIWhisperer's
// original MailboxSystem.
package mailbox

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aiwhisperer/core/pkg/aiwerrors"
)

// Priority is the urgency of a piece of mail.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Status is the read/reply lifecycle state of a piece of mail.
type Status string

const (
	StatusUnread   Status = "unread"
	StatusRead     Status = "read"
	StatusReplied  Status = "replied"
	StatusArchived Status = "archived"
)

// UserRecipient is the implicit recipient name used when a message has no
// explicit ToAgent, matching the original mailbox's "user" fallback.
const UserRecipient = "user"

// Mail is a single message routed through the mailbox.
type Mail struct {
	MessageID string
	FromAgent string
	ToAgent   string
	Subject   string
	Body      string
	Priority  Priority
	Timestamp time.Time
	Status    Status
	ReplyTo   string
	Metadata  map[string]any
}

// NotificationHandler is invoked synchronously whenever new mail arrives
// for a recipient, letting the session manager wake a sleeping agent.
type NotificationHandler func(recipient string, mail Mail)

// Mailbox is the mail system shared by every agent in a run.
type Mailbox struct {
	mu           sync.Mutex
	inboxes      map[string][]Mail
	unreadCounts map[string]int
	archive      []Mail
	byID         map[string]*Mail
	handlers     []NotificationHandler
}

// New creates an empty Mailbox.
func New() *Mailbox {
	return &Mailbox{
		inboxes:      make(map[string][]Mail),
		unreadCounts: make(map[string]int),
		byID:         make(map[string]*Mail),
	}
}

// RegisterNotificationHandler adds a handler invoked on every delivered
// message, in registration order.
func (m *Mailbox) RegisterNotificationHandler(h NotificationHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// Send delivers mail, assigning a message ID and timestamp if not already
// set. The recipient defaults to UserRecipient when ToAgent is empty.
func (m *Mailbox) Send(mail Mail) Mail {
	m.mu.Lock()

	if mail.MessageID == "" {
		mail.MessageID = uuid.NewString()
	}
	if mail.Timestamp.IsZero() {
		mail.Timestamp = time.Now().UTC()
	}
	if mail.Status == "" {
		mail.Status = StatusUnread
	}
	if mail.Priority == "" {
		mail.Priority = PriorityNormal
	}
	recipient := mail.ToAgent
	if recipient == "" {
		recipient = UserRecipient
	}

	m.inboxes[recipient] = append(m.inboxes[recipient], mail)
	m.unreadCounts[recipient]++
	stored := mail
	m.byID[stored.MessageID] = &stored

	handlers := append([]NotificationHandler(nil), m.handlers...)
	m.mu.Unlock()

	for _, h := range handlers {
		h(recipient, mail)
	}
	return mail
}

// CheckMail returns agentName's unread mail and marks it read, resetting
// its unread count to zero.
func (m *Mailbox) CheckMail(agentName string) []Mail {
	m.mu.Lock()
	defer m.mu.Unlock()

	inbox := m.inboxes[agentName]
	var unread []Mail
	for i := range inbox {
		if inbox[i].Status == StatusUnread {
			inbox[i].Status = StatusRead
			if stored, ok := m.byID[inbox[i].MessageID]; ok {
				stored.Status = StatusRead
			}
			unread = append(unread, inbox[i])
		}
	}
	m.unreadCounts[agentName] = 0
	return unread
}

// GetAllMail returns agentName's mail, optionally including read and
// archived messages, most recent last.
func (m *Mailbox) GetAllMail(agentName string, includeRead, includeArchived bool) []Mail {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Mail
	for _, mail := range m.inboxes[agentName] {
		if mail.Status == StatusRead && !includeRead {
			continue
		}
		out = append(out, mail)
	}
	if includeArchived {
		for _, mail := range m.archive {
			if mail.ToAgent == agentName || (agentName == UserRecipient && mail.ToAgent == "") {
				out = append(out, mail)
			}
		}
	}
	return out
}

// HasUnreadMail reports whether agentName has any unread mail.
func (m *Mailbox) HasUnreadMail(agentName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unreadCounts[agentName] > 0
}

// GetUnreadCount returns agentName's current unread count.
func (m *Mailbox) GetUnreadCount(agentName string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unreadCounts[agentName]
}

// ReplyToMail sends reply as a response to originalMessageID, marking the
// original message replied. Returns an invalid-arguments error if the
// original message is unknown.
func (m *Mailbox) ReplyToMail(originalMessageID string, reply Mail) (Mail, error) {
	m.mu.Lock()
	original, ok := m.byID[originalMessageID]
	if !ok {
		m.mu.Unlock()
		return Mail{}, aiwerrors.New(aiwerrors.KindInvalidArguments,
			"no mail found with id "+originalMessageID)
	}
	original.Status = StatusReplied
	recipient := original.ToAgent
	if recipient == "" {
		recipient = UserRecipient
	}
	for i := range m.inboxes[recipient] {
		if m.inboxes[recipient][i].MessageID == originalMessageID {
			m.inboxes[recipient][i].Status = StatusReplied
		}
	}
	m.mu.Unlock()

	reply.ReplyTo = originalMessageID
	return m.Send(reply), nil
}

// ArchiveMail moves messageID out of its recipient's active inbox into the
// archive.
func (m *Mailbox) ArchiveMail(messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.byID[messageID]
	if !ok {
		return aiwerrors.New(aiwerrors.KindInvalidArguments, "no mail found with id "+messageID)
	}
	recipient := stored.ToAgent
	if recipient == "" {
		recipient = UserRecipient
	}
	inbox := m.inboxes[recipient]
	for i, mail := range inbox {
		if mail.MessageID == messageID {
			mail.Status = StatusArchived
			m.archive = append(m.archive, mail)
			m.inboxes[recipient] = append(inbox[:i], inbox[i+1:]...)
			stored.Status = StatusArchived
			break
		}
	}
	return nil
}

// GetConversationThread reconstructs the full thread containing messageID
// by walking both backward (via ReplyTo) and forward (messages that reply
// to this one) through the reply graph, returning every message sorted by
// timestamp. A visited-set guards against cycles in malformed data.
func (m *Mailbox) GetConversationThread(messageID string) []Mail {
	m.mu.Lock()
	defer m.mu.Unlock()

	visited := make(map[string]bool)
	var thread []Mail

	var walk func(id string)
	walk = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		stored, ok := m.byID[id]
		if !ok {
			return
		}
		thread = append(thread, *stored)

		if stored.ReplyTo != "" {
			walk(stored.ReplyTo)
		}
		for otherID, other := range m.byID {
			if other.ReplyTo == id && !visited[otherID] {
				walk(otherID)
			}
		}
	}
	walk(messageID)

	sortByTimestamp(thread)
	return thread
}

func sortByTimestamp(mails []Mail) {
	for i := 1; i < len(mails); i++ {
		for j := i; j > 0 && mails[j].Timestamp.Before(mails[j-1].Timestamp); j-- {
			mails[j], mails[j-1] = mails[j-1], mails[j]
		}
	}
}
