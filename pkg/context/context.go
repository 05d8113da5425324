// Package context is the per-agent conversation store: an ordered list of
// messages plus a dedicated system-prompt slot, with JSON serialization
// for persistence.
package context

import (
	"encoding/json"

	"github.com/aiwhisperer/core/pkg/aiwerrors"
)

// storeVersion is written into every serialized store and checked on load
// so a future incompatible format change fails loudly instead of silently
// misreading old state.
const storeVersion = 1

// Role identifies the speaker of a Message, matching the
// chat/completions wire roles.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall mirrors the wire shape of an assistant message's tool call, kept
// here (rather than importing pkg/accumulator) to avoid a dependency cycle
// between the context store and the streaming layer.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Message is one turn in the conversation.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Store holds one agent's conversation: a system prompt plus an ordered
// message history.
type Store struct {
	Version      int       `json:"version"`
	SystemPrompt string    `json:"system_prompt"`
	Messages     []Message `json:"messages"`
}

// New creates an empty Store with the given system prompt.
func New(systemPrompt string) *Store {
	return &Store{
		Version:      storeVersion,
		SystemPrompt: systemPrompt,
		Messages:     nil,
	}
}

// Add appends a message to the history.
func (s *Store) Add(msg Message) {
	s.Messages = append(s.Messages, msg)
}

// AddUser appends a user message.
func (s *Store) AddUser(content string) {
	s.Add(Message{Role: RoleUser, Content: content})
}

// AddAssistant appends an assistant message, optionally carrying tool
// calls it requested.
func (s *Store) AddAssistant(content string, calls []ToolCall) {
	s.Add(Message{Role: RoleAssistant, Content: content, ToolCalls: calls})
}

// AddToolResult appends a tool-role message reporting the outcome of one
// tool call back to the model.
func (s *Store) AddToolResult(toolCallID, content string) {
	s.Add(Message{Role: RoleTool, Content: content, ToolCallID: toolCallID})
}

// SetSystemPrompt replaces the system prompt slot.
func (s *Store) SetSystemPrompt(prompt string) {
	s.SystemPrompt = prompt
}

// History returns the full message history in order. The returned slice is
// a copy; mutating it does not affect the store.
func (s *Store) History() []Message {
	out := make([]Message, len(s.Messages))
	copy(out, s.Messages)
	return out
}

// Clear removes all history but keeps the system prompt.
func (s *Store) Clear() {
	s.Messages = nil
}

// Len returns the number of messages in history (excluding the system
// prompt, which is not itself a history entry).
func (s *Store) Len() int {
	return len(s.Messages)
}

// MarshalJSON serializes the store for persistence.
func (s *Store) MarshalJSON() ([]byte, error) {
	type alias Store
	a := alias(*s)
	a.Version = storeVersion
	return json.Marshal(a)
}

// Load deserializes a previously persisted store, validating its version.
func Load(data []byte) (*Store, error) {
	var s Store
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, aiwerrors.Wrap(aiwerrors.KindPersistence, "decode context store", err)
	}
	if s.Version != storeVersion {
		return nil, aiwerrors.New(aiwerrors.KindPersistence,
			"unsupported context store version")
	}
	return &s, nil
}
