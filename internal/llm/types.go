package llm

import (
	"encoding/json"
	"fmt"
)

// Request types for OpenAI-compatible chat completion APIs

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Tools       []Tool    `json:"tools,omitempty"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type ToolCall struct {
	Index    int              `json:"index"`
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function ToolCallFunction `json:"function"`
}

type ToolCallFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// Response types

type ChatResponse struct {
	ID      string    `json:"id"`
	Choices []Choice  `json:"choices"`
	Usage   *Usage    `json:"usage,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// Usage contains token usage from the API response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Choice struct {
	Index        int    `json:"index"`
	Delta        *Delta `json:"delta,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
}

type Delta struct {
	Role      string     `json:"role,omitempty"`
	Content   Content    `json:"content,omitempty"`
	Reasoning string     `json:"reasoning,omitempty"` // OpenRouter-style reasoning text
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Content is a delta's content: either a plain string or a list of typed
// parts ({type: text} or {type: thinking}).
type Content struct {
	Text  string
	Parts []ContentPart
}

type ContentPart struct {
	Type     string   `json:"type"`
	Text     string   `json:"text,omitempty"`
	Thinking Thinking `json:"thinking,omitempty"`
}

func (c *Content) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &c.Text)
	}
	return json.Unmarshal(data, &c.Parts)
}

// Thinking is a thinking part's payload: a string or a list of
// {type: text, text} nodes.
type Thinking []string

func (t *Thinking) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Thinking{s}
		return nil
	}
	var nodes []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &nodes); err != nil {
		return err
	}
	for _, n := range nodes {
		if n.Type == "text" {
			*t = append(*t, n.Text)
		}
	}
	return nil
}

type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

type EventType string

const (
	EventText     EventType = "text"
	EventThinking EventType = "thinking"
	EventStatus   EventType = "status"
	EventToolCall EventType = "tool_call"
	EventDone     EventType = "done"
)

// StreamEvent represents a parsed event from the SSE stream.
type StreamEvent struct {
	Type     EventType
	Content  string    // text, thinking and status events
	ToolCall *ToolCall // tool_call events, after accumulation
	Usage    *Usage    // done events, if available
}

// UpstreamError is a non-200, non-429 response.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%v: %d - %s", ErrRequestFailed, e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error { return ErrRequestFailed }
