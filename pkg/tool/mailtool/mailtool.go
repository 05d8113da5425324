// Package mailtool exposes an agent's mailbox and sleep/wake controls as
// tools the AI loop can call mid-turn, grounded on the teacher's pattern of
// thin tool wrappers around an existing subsystem (pkg/mailbox and
// pkg/sessionmanager) rather than a new one.
package mailtool

import (
	"time"

	"github.com/aiwhisperer/core/pkg/aiwerrors"
	"github.com/aiwhisperer/core/pkg/mailbox"
	"github.com/aiwhisperer/core/pkg/tool"
)

// Sleeper puts an agent to sleep and wakes it again. pkg/sessionmanager.Manager
// satisfies this.
type Sleeper interface {
	SleepAgent(agentName string, duration time.Duration) error
}

// CheckMailArgs defines the parameters for checking mail.
type CheckMailArgs struct {
	IncludeRead     bool `json:"include_read,omitempty" jsonschema:"description=Include already-read mail,default=false"`
	IncludeArchived bool `json:"include_archived,omitempty" jsonschema:"description=Include archived mail,default=false"`
}

// CheckMail is the check_mail tool: returns the calling agent's mail from
// its own mailbox inbox.
type CheckMail struct {
	mailbox *mailbox.Mailbox
}

// NewCheckMail creates the check_mail tool over mb.
func NewCheckMail(mb *mailbox.Mailbox) *CheckMail {
	return &CheckMail{mailbox: mb}
}

func (t *CheckMail) Name() string          { return "check_mail" }
func (t *CheckMail) RequiresApproval() bool { return false }

func (t *CheckMail) Description() string {
	return "Check your mailbox for new mail from other agents or the user. Marks unread mail as read."
}

func (t *CheckMail) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"include_read": map[string]any{
				"type":        "boolean",
				"description": "Include already-read mail",
			},
			"include_archived": map[string]any{
				"type":        "boolean",
				"description": "Include archived mail",
			},
		},
	}
}

func (t *CheckMail) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	agentName := ctx.AgentName()
	includeRead, _ := args["include_read"].(bool)
	includeArchived, _ := args["include_archived"].(bool)

	var mail []mailbox.Mail
	if includeRead || includeArchived {
		mail = t.mailbox.GetAllMail(agentName, includeRead, includeArchived)
	} else {
		mail = t.mailbox.CheckMail(agentName)
	}

	items := make([]map[string]any, 0, len(mail))
	for _, m := range mail {
		items = append(items, map[string]any{
			"message_id": m.MessageID,
			"from":       m.FromAgent,
			"subject":    m.Subject,
			"body":       m.Body,
			"priority":   string(m.Priority),
			"status":     string(m.Status),
			"reply_to":   m.ReplyTo,
			"timestamp":  m.Timestamp,
		})
	}

	return map[string]any{
		"mail":          items,
		"count":         len(items),
		"has_more_mail": t.mailbox.HasUnreadMail(agentName),
		"unread_count":  t.mailbox.GetUnreadCount(agentName),
	}, nil
}

var _ tool.CallableTool = (*CheckMail)(nil)

// AgentSleepArgs defines the parameters for going to sleep.
type AgentSleepArgs struct {
	DurationSeconds int `json:"duration_seconds,omitempty" jsonschema:"description=How long to sleep before automatically waking; 0 sleeps until explicitly woken by incoming mail,minimum=0"`
}

// AgentSleep is the agent_sleep tool: suspends the calling agent's session
// until woken by a timer or by new mail, per C13's continuation contract.
type AgentSleep struct {
	sleeper Sleeper
}

// NewAgentSleep creates the agent_sleep tool over sleeper.
func NewAgentSleep(sleeper Sleeper) *AgentSleep {
	return &AgentSleep{sleeper: sleeper}
}

func (t *AgentSleep) Name() string          { return "agent_sleep" }
func (t *AgentSleep) RequiresApproval() bool { return false }

func (t *AgentSleep) Description() string {
	return "Suspend execution until new mail arrives or an optional timeout elapses. Use when waiting on another agent's response."
}

func (t *AgentSleep) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"duration_seconds": map[string]any{
				"type":        "integer",
				"description": "How long to sleep before automatically waking; 0 sleeps until explicitly woken by incoming mail",
				"minimum":     0,
			},
		},
	}
}

func (t *AgentSleep) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	agentName := ctx.AgentName()
	seconds, _ := args["duration_seconds"].(float64)
	if seconds < 0 {
		return nil, aiwerrors.New(aiwerrors.KindInvalidArguments, "duration_seconds must not be negative")
	}

	duration := time.Duration(seconds) * time.Second
	if err := t.sleeper.SleepAgent(agentName, duration); err != nil {
		return nil, aiwerrors.Wrap(aiwerrors.KindToolExecution, "sleep agent", err)
	}

	return map[string]any{
		"agent":            agentName,
		"sleeping":         true,
		"duration_seconds": seconds,
	}, nil
}

var _ tool.CallableTool = (*AgentSleep)(nil)
