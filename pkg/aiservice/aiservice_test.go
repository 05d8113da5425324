package aiservice_test

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aiwhisperer/core/pkg/aiservice"
	"github.com/aiwhisperer/core/pkg/aiwerrors"
	aictx "github.com/aiwhisperer/core/pkg/context"
)

func TestCompleteParsesTextResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"hello there"},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`)
	}))
	defer srv.Close()

	client := aiservice.New(aiservice.Config{BaseURL: srv.URL, APIKey: "test"})
	resp, err := client.Complete(context.Background(), aiservice.Request{
		Model:    "openai/gpt-4o",
		Messages: []aictx.Message{{Role: aictx.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	require.Equal(t, "hello there", resp.Content)
	require.Equal(t, 7, resp.Usage.TotalTokens)
}

func TestCompleteParsesToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"read_file","arguments":"{\"path\":\"a.txt\"}"}}]},"finish_reason":"tool_calls"}],"usage":{}}`)
	}))
	defer srv.Close()

	client := aiservice.New(aiservice.Config{BaseURL: srv.URL, APIKey: "test"})
	resp, err := client.Complete(context.Background(), aiservice.Request{Model: "m", Messages: nil})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	require.Equal(t, "read_file", resp.ToolCalls[0].Name)
	require.Equal(t, "a.txt", resp.ToolCalls[0].Arguments["path"])
}

func TestCompleteMapsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"unauthorized"}`)
	}))
	defer srv.Close()

	client := aiservice.New(aiservice.Config{BaseURL: srv.URL, APIKey: "bad"})
	_, err := client.Complete(context.Background(), aiservice.Request{Model: "m"})
	require.Error(t, err)
	kind, ok := aiwerrors.KindOf(err)
	require.True(t, ok)
	require.Equal(t, aiwerrors.KindAuth, kind)
}

func TestCompleteMapsRateLimitError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	client := aiservice.New(aiservice.Config{BaseURL: srv.URL, APIKey: "k"})
	_, err := client.Complete(context.Background(), aiservice.Request{Model: "m"})
	kind, ok := aiwerrors.KindOf(err)
	require.True(t, ok)
	require.Equal(t, aiwerrors.KindRateLimit, kind)
}

func sseServer(t *testing.T, events []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		bw := bufio.NewWriter(w)
		for _, ev := range events {
			fmt.Fprintf(bw, "data: %s\n\n", ev)
			bw.Flush()
			flusher.Flush()
		}
	}))
}

func TestStreamEmitsTextThenToolCallThenDone(t *testing.T) {
	events := []string{
		`{"choices":[{"delta":{"content":"Hel"},"finish_reason":null}]}`,
		`{"choices":[{"delta":{"content":"lo"},"finish_reason":null}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"read_file","arguments":"{\"path\":"}}]},"finish_reason":null}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"a.txt\"}"}}]},"finish_reason":"tool_calls"}]}`,
		"[DONE]",
	}
	srv := sseServer(t, events)
	defer srv.Close()

	client := aiservice.New(aiservice.Config{BaseURL: srv.URL, APIKey: "k"})
	out, errCh := client.Stream(context.Background(), aiservice.Request{Model: "m"})

	var texts []string
	var toolCalls int
	var sawDone bool
loop:
	for {
		select {
		case chunk, ok := <-out:
			if !ok {
				break loop
			}
			switch chunk.Type {
			case aiservice.ChunkText:
				texts = append(texts, chunk.Text)
			case aiservice.ChunkToolCall:
				toolCalls++
				require.Equal(t, "read_file", chunk.ToolCall.Name)
				require.Equal(t, "a.txt", chunk.ToolCall.Arguments["path"])
			case aiservice.ChunkDone:
				sawDone = true
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for stream")
		}
	}

	require.NoError(t, drain(errCh))
	require.Equal(t, []string{"Hel", "lo"}, texts)
	require.Equal(t, 1, toolCalls)
	require.True(t, sawDone)
}

func drain(errCh <-chan error) error {
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}
