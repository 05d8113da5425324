// Package aiservice is the chat/completions client: it assembles requests,
// issues both synchronous and streaming calls against an OpenAI-compatible
// endpoint, and maps transport/API failures onto the error-kind taxonomy.
//
// Grounded on an OpenAI-compatible provider client (request/response
// shapes, the bufio SSE reader, the "data: " / "[DONE]" framing) and on
// AIWhisperer's original OpenRouter AI service (reasoning-token payload
// fields, per-call timeout selection).
package aiservice

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aiwhisperer/core/pkg/accumulator"
	"github.com/aiwhisperer/core/pkg/aiwerrors"
	aictx "github.com/aiwhisperer/core/pkg/context"
)

// Tool mirrors one OpenAI-compatible tool definition included in a
// chat/completions request.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction is the function half of Tool.
type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ReasoningConfig controls the model's reasoning-token budget. A Max of 0
// with Exclude unset is treated as "not configured"; set Exclude true to
// request zero reasoning tokens explicitly.
type ReasoningConfig struct {
	Exclude bool
	Max     int
}

// Request is the provider-agnostic shape of one completion call.
type Request struct {
	Model           string
	Messages        []aictx.Message
	Tools           []Tool
	Temperature     float64
	MaxTokens       int
	ResponseFormat  map[string]any
	Reasoning       *ReasoningConfig
}

// Usage reports token accounting for a completed call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is the result of a non-streaming call.
type Completion struct {
	Content   string
	ToolCalls []accumulator.ToolCall
	Usage     Usage
}

// ChunkType distinguishes the payload carried by a streamed Chunk.
type ChunkType string

const (
	ChunkText     ChunkType = "text"
	ChunkToolCall ChunkType = "tool_call"
	ChunkDone     ChunkType = "done"
)

// Chunk is one unit of a streamed response. Text is set for ChunkText,
// ToolCall for ChunkToolCall, and Usage for ChunkDone.
type Chunk struct {
	Type     ChunkType
	Text     string
	ToolCall accumulator.ToolCall
	Usage    Usage
}

// Client is an OpenAI-compatible chat/completions client.
type Client struct {
	baseURL    string
	apiKey     string
	siteURL    string
	appName    string
	httpClient *http.Client

	completeTimeout time.Duration
	streamTimeout   time.Duration
}

// Config configures a new Client.
type Config struct {
	BaseURL string
	APIKey  string
	SiteURL string
	AppName string
	// CompleteTimeout bounds a non-streaming call. Zero uses 60s.
	CompleteTimeout time.Duration
	// StreamTimeout bounds a streaming call, including reading its body.
	// Zero uses 60s.
	StreamTimeout time.Duration
}

// New creates a Client from cfg.
func New(cfg Config) *Client {
	completeTimeout := cfg.CompleteTimeout
	if completeTimeout <= 0 {
		completeTimeout = 60 * time.Second
	}
	streamTimeout := cfg.StreamTimeout
	if streamTimeout <= 0 {
		streamTimeout = 60 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		siteURL: cfg.SiteURL,
		appName: cfg.AppName,
		httpClient: &http.Client{
			Timeout: 0, // per-call timeout is applied via context
		},
		completeTimeout: completeTimeout,
		streamTimeout:   streamTimeout,
	}
}

type wireMessage struct {
	Role       string            `json:"role"`
	Content    string            `json:"content,omitempty"`
	ToolCalls  []wireToolCallOut `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
}

type wireToolCallOut struct {
	ID       string              `json:"id"`
	Type     string              `json:"type"`
	Function wireToolCallOutFunc `json:"function"`
}

type wireToolCallOutFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireReasoning struct {
	Exclude bool `json:"exclude,omitempty"`
	Max     int  `json:"max_reasoning_tokens,omitempty"`
}

type wirePayload struct {
	Model          string         `json:"model"`
	Messages       []wireMessage  `json:"messages"`
	Tools          []Tool         `json:"tools,omitempty"`
	ToolChoice     string         `json:"tool_choice,omitempty"`
	Temperature    float64        `json:"temperature,omitempty"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	Stream         bool           `json:"stream"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
	Reasoning      *wireReasoning `json:"reasoning,omitempty"`
}

func buildPayload(req Request, stream bool) wirePayload {
	messages := make([]wireMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		wm := wireMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			wm.ToolCalls = append(wm.ToolCalls, wireToolCallOut{
				ID:   tc.ID,
				Type: "function",
				Function: wireToolCallOutFunc{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		messages = append(messages, wm)
	}

	payload := wirePayload{
		Model:          req.Model,
		Messages:       messages,
		Tools:          req.Tools,
		Temperature:    req.Temperature,
		MaxTokens:      req.MaxTokens,
		Stream:         stream,
		ResponseFormat: req.ResponseFormat,
	}
	if len(req.Tools) > 0 {
		payload.ToolChoice = "auto"
	}
	if req.Reasoning != nil {
		if req.Reasoning.Exclude {
			payload.Reasoning = &wireReasoning{Exclude: true}
		} else if req.Reasoning.Max > 0 {
			payload.Reasoning = &wireReasoning{Max: req.Reasoning.Max}
		}
	}
	return payload
}

func (c *Client) newRequest(ctx context.Context, payload wirePayload) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, aiwerrors.Wrap(aiwerrors.KindSchema, "marshal request payload", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, aiwerrors.Wrap(aiwerrors.KindConnection, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.siteURL != "" {
		httpReq.Header.Set("HTTP-Referer", c.siteURL)
	}
	if c.appName != "" {
		httpReq.Header.Set("X-Title", c.appName)
	}
	return httpReq, nil
}

// classifyStatus maps an HTTP status code to a taxonomy Kind.
func classifyStatus(status int) aiwerrors.Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return aiwerrors.KindAuth
	case status == http.StatusTooManyRequests:
		return aiwerrors.KindRateLimit
	case status >= 500:
		return aiwerrors.KindService
	default:
		return aiwerrors.KindService
	}
}

type wireResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// Complete issues a non-streaming chat/completions call.
func (c *Client) Complete(ctx context.Context, req Request) (*Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.completeTimeout)
	defer cancel()

	payload := buildPayload(req, false)
	httpReq, err := c.newRequest(ctx, payload)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, aiwerrors.Wrap(aiwerrors.KindTimeout, "chat completion request timed out", err)
		}
		return nil, aiwerrors.Wrap(aiwerrors.KindConnection, "chat completion request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, aiwerrors.Wrap(aiwerrors.KindConnection, "read response body", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, aiwerrors.New(classifyStatus(resp.StatusCode),
			fmt.Sprintf("chat completion returned status %d: %s", resp.StatusCode, string(body)))
	}

	var wr wireResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return nil, aiwerrors.Wrap(aiwerrors.KindSchema, "decode chat completion response", err)
	}
	if wr.Error != nil {
		return nil, aiwerrors.New(aiwerrors.KindService, wr.Error.Message)
	}
	if len(wr.Choices) == 0 {
		return nil, aiwerrors.New(aiwerrors.KindSchema, "chat completion response has no choices")
	}

	choice := wr.Choices[0]
	var calls []accumulator.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, aiwerrors.Wrap(aiwerrors.KindMalformedStream, "parse tool call arguments", err)
			}
		}
		calls = append(calls, accumulator.ToolCall{ID: tc.ID, Type: tc.Type, Name: tc.Function.Name, Arguments: args})
	}

	return &Completion{
		Content:   choice.Message.Content,
		ToolCalls: calls,
		Usage: Usage{
			PromptTokens:     wr.Usage.PromptTokens,
			CompletionTokens: wr.Usage.CompletionTokens,
			TotalTokens:      wr.Usage.TotalTokens,
		},
	}, nil
}

type wireStreamResponse struct {
	Choices []struct {
		Delta struct {
			Content   string                  `json:"content,omitempty"`
			ToolCalls []accumulator.Delta     `json:"tool_calls,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Stream issues a streaming chat/completions call and returns a channel of
// Chunks. The channel is closed after a ChunkDone chunk or on error; errors
// are delivered by closing errCh with the failure.
func (c *Client) Stream(ctx context.Context, req Request) (<-chan Chunk, <-chan error) {
	out := make(chan Chunk, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		streamCtx, cancel := context.WithTimeout(ctx, c.streamTimeout)
		defer cancel()

		payload := buildPayload(req, true)
		httpReq, err := c.newRequest(streamCtx, payload)
		if err != nil {
			errCh <- err
			return
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if streamCtx.Err() != nil {
				errCh <- aiwerrors.Wrap(aiwerrors.KindTimeout, "streaming request timed out", err)
				return
			}
			errCh <- aiwerrors.Wrap(aiwerrors.KindConnection, "streaming request failed", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			errCh <- aiwerrors.New(classifyStatus(resp.StatusCode),
				fmt.Sprintf("streaming request returned status %d: %s", resp.StatusCode, string(body)))
			return
		}

		acc := accumulator.New()
		reader := bufio.NewReader(resp.Body)
		var totalUsage Usage

		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				if err == io.EOF {
					break
				}
				errCh <- aiwerrors.Wrap(aiwerrors.KindConnection, "read stream", err)
				return
			}

			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			if !bytes.HasPrefix(line, []byte("data: ")) {
				continue
			}
			line = line[len("data: "):]
			if bytes.Equal(line, []byte("[DONE]")) {
				break
			}

			var sr wireStreamResponse
			if err := json.Unmarshal(line, &sr); err != nil {
				errCh <- aiwerrors.Wrap(aiwerrors.KindMalformedStream, "decode stream chunk", err)
				return
			}
			if sr.Error != nil {
				errCh <- aiwerrors.New(aiwerrors.KindService, sr.Error.Message)
				return
			}
			if sr.Usage != nil {
				totalUsage = Usage{
					PromptTokens:     sr.Usage.PromptTokens,
					CompletionTokens: sr.Usage.CompletionTokens,
					TotalTokens:      sr.Usage.TotalTokens,
				}
			}
			if len(sr.Choices) == 0 {
				continue
			}
			choice := sr.Choices[0]

			if choice.Delta.Content != "" {
				select {
				case out <- Chunk{Type: ChunkText, Text: choice.Delta.Content}:
				case <-ctx.Done():
					return
				}
			}
			if len(choice.Delta.ToolCalls) > 0 {
				acc.AddChunk(choice.Delta.ToolCalls)
			}

			if choice.FinishReason == "tool_calls" || choice.FinishReason == "stop" {
				calls, err := acc.ToolCalls()
				if err != nil {
					errCh <- err
					return
				}
				for _, call := range calls {
					select {
					case out <- Chunk{Type: ChunkToolCall, ToolCall: call}:
					case <-ctx.Done():
						return
					}
				}
				break
			}
		}

		select {
		case out <- Chunk{Type: ChunkDone, Usage: totalUsage}:
		case <-ctx.Done():
		}
	}()

	return out, errCh
}
