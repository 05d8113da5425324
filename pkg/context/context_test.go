package context_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	aictx "github.com/aiwhisperer/core/pkg/context"
)

func TestAddAndHistoryOrdering(t *testing.T) {
	s := aictx.New("you are a helpful agent")
	s.AddUser("hello")
	s.AddAssistant("hi there", nil)
	s.AddUser("do a thing")

	hist := s.History()
	require.Len(t, hist, 3)
	require.Equal(t, aictx.RoleUser, hist[0].Role)
	require.Equal(t, aictx.RoleAssistant, hist[1].Role)
	require.Equal(t, "do a thing", hist[2].Content)
}

func TestHistoryIsACopy(t *testing.T) {
	s := aictx.New("")
	s.AddUser("one")
	hist := s.History()
	hist[0].Content = "mutated"
	require.Equal(t, "one", s.History()[0].Content)
}

func TestClearKeepsSystemPrompt(t *testing.T) {
	s := aictx.New("system prompt")
	s.AddUser("hi")
	s.Clear()
	require.Equal(t, 0, s.Len())
	require.Equal(t, "system prompt", s.SystemPrompt)
}

func TestToolResultRoundTrip(t *testing.T) {
	s := aictx.New("")
	s.AddAssistant("", []aictx.ToolCall{{ID: "call_1", Name: "read_file", Arguments: map[string]any{"path": "a.txt"}}})
	s.AddToolResult("call_1", `{"content":"hello"}`)

	hist := s.History()
	require.Len(t, hist, 2)
	require.Equal(t, "call_1", hist[0].ToolCalls[0].ID)
	require.Equal(t, "call_1", hist[1].ToolCallID)
}

func TestMarshalAndLoadRoundTrip(t *testing.T) {
	s := aictx.New("sys")
	s.AddUser("hello")
	s.AddAssistant("hi", nil)

	data, err := s.MarshalJSON()
	require.NoError(t, err)

	loaded, err := aictx.Load(data)
	require.NoError(t, err)
	require.Equal(t, "sys", loaded.SystemPrompt)
	require.Equal(t, 2, loaded.Len())
}

func TestLoadRejectsBadVersion(t *testing.T) {
	_, err := aictx.Load([]byte(`{"version": 99, "system_prompt": "", "messages": []}`))
	require.Error(t, err)
}

func TestLoadRejectsGarbage(t *testing.T) {
	_, err := aictx.Load([]byte(`not json`))
	require.Error(t, err)
}
