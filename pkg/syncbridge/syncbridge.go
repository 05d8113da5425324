// Package syncbridge lets one agent delegate a task to another over the
// mailbox and block for its reply, turning mailbox's fire-and-forget
// messaging into a synchronous request/response call.
//
// Grounded on AIWhisperer's original SynchronousAgentExecutor: the
// "execute tool: <name>" task-string convention, and request/response
// correlation by request ID. The original polls CheckMail on a 100ms
// timer and matches replies by a "Re: Task Request" subject prefix; this
// port keeps the polling cadence but correlates replies via mailbox's
// ReplyTo threading instead of subject-string parsing.
package syncbridge

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/aiwhisperer/core/pkg/aiwerrors"
	"github.com/aiwhisperer/core/pkg/mailbox"
)

const toolTaskPrefix = "execute tool:"

// DefaultTimeout bounds how long WaitForResponse blocks when the caller
// does not specify one.
const DefaultTimeout = 30 * time.Second

const pollInterval = 100 * time.Millisecond

// Status is the outcome of a delegated task.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusTimeout   Status = "timeout"
)

// TaskRequest is the payload sent as mail body when delegating a task.
type TaskRequest struct {
	RequestID  string         `json:"request_id"`
	FromAgent  string         `json:"from_agent"`
	ToAgent    string         `json:"to_agent"`
	Task       string         `json:"task"`
	Parameters map[string]any `json:"parameters"`
	Timeout    float64        `json:"timeout"`
}

// TaskResponse is the payload sent back as the reply's mail body.
type TaskResponse struct {
	RequestID string `json:"request_id"`
	Status    Status `json:"status"`
	Result    any    `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ToolExecutor runs one named tool for the requesting agent, mirroring
// loop.Executor's shape so the same tool wiring can back both.
type ToolExecutor func(ctx context.Context, agentName, toolName string, parameters map[string]any) (any, error)

// IDGenerator produces a unique request ID; tests can substitute a
// deterministic one.
type IDGenerator func() string

// Bridge delegates tasks between agents over a Mailbox and blocks the
// caller until a correlated reply arrives or the wait times out.
type Bridge struct {
	mailbox *mailbox.Mailbox
	exec    ToolExecutor
	nextID  IDGenerator
}

// New creates a Bridge over mb. exec may be nil if this side of the
// bridge never receives delegated tasks (only sends them).
func New(mb *mailbox.Mailbox, exec ToolExecutor, nextID IDGenerator) *Bridge {
	if nextID == nil {
		nextID = defaultIDGenerator()
	}
	return &Bridge{mailbox: mb, exec: exec, nextID: nextID}
}

func defaultIDGenerator() IDGenerator {
	var n int
	return func() string {
		n++
		return "req-" + itoa(n)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := make([]byte, 0, 8)
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// SendTaskRequest delegates task to toAgent and returns the mail's
// message ID, used by WaitForResponse to correlate the reply.
func (b *Bridge) SendTaskRequest(fromAgent, toAgent, task string, parameters map[string]any, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	reqID := b.nextID()
	body, err := json.Marshal(TaskRequest{
		RequestID:  reqID,
		FromAgent:  fromAgent,
		ToAgent:    toAgent,
		Task:       task,
		Parameters: parameters,
		Timeout:    timeout.Seconds(),
	})
	if err != nil {
		return "", aiwerrors.Wrap(aiwerrors.KindInvalidArguments, "marshal task request", err)
	}

	sent := b.mailbox.Send(mailbox.Mail{
		FromAgent: fromAgent,
		ToAgent:   toAgent,
		Subject:   "Task Request: " + task,
		Body:      string(body),
		Priority:  mailbox.PriorityHigh,
		Metadata:  map[string]any{"request_id": reqID},
	})
	return sent.MessageID, nil
}

// WaitForResponse blocks until agentName receives a reply threaded to
// requestMessageID, ctx is cancelled, or timeout elapses (whichever
// first). It polls the mailbox on a fixed cadence, mirroring the
// original's 100ms poll loop.
func (b *Bridge) WaitForResponse(ctx context.Context, agentName, requestMessageID string, timeout time.Duration) TaskResponse {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if resp, ok := b.findReply(agentName, requestMessageID); ok {
			return resp
		}
		if time.Now().After(deadline) {
			return TaskResponse{Status: StatusTimeout, Error: "request timed out"}
		}
		select {
		case <-ctx.Done():
			return TaskResponse{Status: StatusTimeout, Error: ctx.Err().Error()}
		case <-ticker.C:
		}
	}
}

func (b *Bridge) findReply(agentName, requestMessageID string) (TaskResponse, bool) {
	for _, m := range b.mailbox.CheckMail(agentName) {
		if m.ReplyTo != requestMessageID {
			continue
		}
		var resp TaskResponse
		if err := json.Unmarshal([]byte(m.Body), &resp); err != nil {
			continue
		}
		return resp, true
	}
	return TaskResponse{}, false
}

// ExecuteTaskRequest handles a task delegated to agentName: it recognizes
// the "execute tool: <name>" convention and runs it through exec,
// otherwise it reports the task as acknowledged but unimplemented, then
// mails a reply threaded back to the original request.
func (b *Bridge) ExecuteTaskRequest(ctx context.Context, agentName string, req TaskRequest, originalMessageID string) {
	resp := b.runTask(ctx, agentName, req)

	body, err := json.Marshal(resp)
	if err != nil {
		body, _ = json.Marshal(TaskResponse{RequestID: req.RequestID, Status: StatusError, Error: err.Error()})
	}

	reply := mailbox.Mail{
		FromAgent: agentName,
		ToAgent:   req.FromAgent,
		Subject:   "Re: Task Request: " + req.Task,
		Body:      string(body),
		Priority:  mailbox.PriorityHigh,
	}
	_, _ = b.mailbox.ReplyToMail(originalMessageID, reply)
}

func (b *Bridge) runTask(ctx context.Context, agentName string, req TaskRequest) TaskResponse {
	if strings.HasPrefix(req.Task, toolTaskPrefix) {
		toolName := strings.TrimSpace(strings.TrimPrefix(req.Task, toolTaskPrefix))
		if b.exec == nil {
			return TaskResponse{RequestID: req.RequestID, Status: StatusError, Error: "no tool executor configured"}
		}
		result, err := b.exec(ctx, agentName, toolName, req.Parameters)
		if err != nil {
			return TaskResponse{RequestID: req.RequestID, Status: StatusError, Error: err.Error()}
		}
		return TaskResponse{RequestID: req.RequestID, Status: StatusCompleted, Result: result}
	}

	return TaskResponse{
		RequestID: req.RequestID,
		Status:    StatusCompleted,
		Result:    "task '" + req.Task + "' acknowledged but not implemented",
	}
}
