package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/youruser/magide/internal/actions"
	"github.com/youruser/magide/internal/logging"
)

var (
	ErrRequestFailed     = errors.New("API request failed")
	ErrStreamError       = errors.New("stream error")
	ErrRateLimitExceeded = errors.New("rate limit exceeded (max retries)")
	ErrStreamTimeout     = errors.New("stream idle timeout")
	log                  = logging.Get()

	errRateLimited = errors.New("rate limited")
)

const (
	DefaultMaxRetries = 10
	DefaultMaxBackoff = 60 * time.Second
)

// Config configures a Client.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxRetries  int
	MaxBackoff  time.Duration
	// StreamIdleTimeout aborts a response that sends nothing for this long.
	// Zero disables it.
	StreamIdleTimeout time.Duration
	// NativeTools attaches the action tool schemas to every request.
	NativeTools bool
	HTTPClient  *http.Client
}

// Client handles communication with the LLM API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	sleep      func(ctx context.Context, d time.Duration) error

	mu    sync.RWMutex
	model string
}

// NewClient creates a new LLM client. With MaxRetries at zero the first
// 429 fails the request.
func NewClient(cfg Config) *Client {
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{cfg: cfg, httpClient: httpClient, sleep: sleepContext, model: cfg.Model}
}

// SetModel switches the model used by subsequent requests.
func (c *Client) SetModel(model string) {
	c.mu.Lock()
	c.model = model
	c.mu.Unlock()
}

func (c *Client) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// StreamCallback is called for each event in the stream.
type StreamCallback func(event StreamEvent)

// StreamResult is everything a finished stream produced. Text includes the
// synthetic action block built from native tool calls.
type StreamResult struct {
	Text      string
	Thinking  string
	ToolCalls []ToolCall
	Actions   []actions.Action
	Usage     *Usage
}

// Backoff returns the wait before retry attempt+1: 2^attempt seconds,
// capped at max.
func Backoff(attempt int, max time.Duration) time.Duration {
	if attempt >= 30 {
		return max
	}
	d := time.Second << attempt
	if d > max {
		return max
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ChatStream sends system followed by history and streams the response.
// It returns once the stream ends or retries are exhausted. On a stream
// failure the returned result holds whatever arrived first.
func (c *Client) ChatStream(ctx context.Context, system string, history []Message, callback StreamCallback) (*StreamResult, error) {
	allMessages := make([]Message, 0, len(history)+1)
	allMessages = append(allMessages, Message{Role: RoleSystem, Content: system})
	allMessages = append(allMessages, history...)

	reqBody := ChatRequest{
		Model:       c.Model(),
		Messages:    allMessages,
		Stream:      true,
		Temperature: c.cfg.Temperature,
	}
	if c.cfg.NativeTools {
		reqBody.Tools = DefaultTools()
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	if log.Enabled() {
		log.Debug("HTTP POST %s/chat/completions (model: %s, messages: %d, ~%d tokens, tools: %d)",
			c.cfg.BaseURL, reqBody.Model, len(allMessages), ConversationTokens(system, history), len(reqBody.Tools))
	}

	for attempt := 0; ; attempt++ {
		result, err := c.stream(ctx, bodyBytes, callback)
		if !errors.Is(err, errRateLimited) {
			return result, err
		}
		if attempt >= c.cfg.MaxRetries {
			log.Error("rate limited after %d retries", attempt)
			return nil, ErrRateLimitExceeded
		}

		wait := Backoff(attempt, c.cfg.MaxBackoff)
		callback(StreamEvent{
			Type:    EventStatus,
			Content: fmt.Sprintf("Rate limited. Retrying in %ds...", int(wait/time.Second)),
		})
		log.Info("HTTP 429, retry %d in %s", attempt+1, wait)
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// stream performs one request. The idle timer cancels the request context
// with ErrStreamTimeout as its cause.
func (c *Client) stream(ctx context.Context, body []byte, callback StreamCallback) (*StreamResult, error) {
	streamCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var idle *time.Timer
	if c.cfg.StreamIdleTimeout > 0 {
		idle = time.AfterFunc(c.cfg.StreamIdleTimeout, func() { cancel(ErrStreamTimeout) })
		defer idle.Stop()
	}

	req, err := http.NewRequestWithContext(streamCtx, "POST", c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if cause := context.Cause(streamCtx); cause != nil {
			return nil, cause
		}
		log.Error("HTTP request failed: %v", err)
		return nil, err
	}
	defer resp.Body.Close()

	log.Debug("HTTP response status: %d", resp.StatusCode)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, errRateLimited
	default:
		data, _ := io.ReadAll(resp.Body)
		log.Error("API error %d: %s", resp.StatusCode, string(data))
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	var reader io.Reader = resp.Body
	if idle != nil {
		reader = &idleReader{r: resp.Body, timer: idle, timeout: c.cfg.StreamIdleTimeout}
	}
	return processStream(streamCtx, reader, callback)
}

// idleReader pushes the idle deadline back whenever bytes arrive.
type idleReader struct {
	r       io.Reader
	timer   *time.Timer
	timeout time.Duration
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n > 0 {
		ir.timer.Reset(ir.timeout)
	}
	return n, err
}

// processStream reads SSE events, forwards them to callback, and turns
// accumulated tool calls into actions once the stream ends.
func processStream(ctx context.Context, reader io.Reader, callback StreamCallback) (*StreamResult, error) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	result := &StreamResult{}
	var text, thinking strings.Builder
	emit := func(ev StreamEvent) {
		switch ev.Type {
		case EventText:
			text.WriteString(ev.Content)
		case EventThinking:
			thinking.WriteString(ev.Content)
		}
		log.Stream(string(ev.Type), ev.Content)
		callback(ev)
	}
	partial := func() *StreamResult {
		result.Text = text.String()
		result.Thinking = thinking.String()
		return result
	}

	toolCalls := make(map[int]*ToolCall)
	log.Debug("Starting SSE stream processing")

	for scanner.Scan() {
		if ctx.Err() != nil {
			return partial(), context.Cause(ctx)
		}

		data, ok := strings.CutPrefix(scanner.Text(), "data:")
		if !ok {
			continue
		}
		data = strings.TrimPrefix(data, " ")
		if data == "[DONE]" {
			log.Debug("SSE stream received [DONE]")
			break
		}

		var resp ChatResponse
		if err := json.Unmarshal([]byte(data), &resp); err != nil {
			log.Debug("skipping malformed chunk: %v", err)
			continue
		}

		if resp.Error != nil {
			return partial(), fmt.Errorf("%w: %s", ErrStreamError, resp.Error.Message)
		}
		if resp.Usage != nil {
			result.Usage = resp.Usage
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta == nil {
			continue
		}
		delta := resp.Choices[0].Delta

		if delta.Content.Text != "" {
			emit(StreamEvent{Type: EventText, Content: delta.Content.Text})
		}
		for _, part := range delta.Content.Parts {
			switch part.Type {
			case "text":
				if part.Text != "" {
					emit(StreamEvent{Type: EventText, Content: part.Text})
				}
			case "thinking":
				for _, t := range part.Thinking {
					emit(StreamEvent{Type: EventThinking, Content: t})
				}
			}
		}
		if delta.Reasoning != "" {
			emit(StreamEvent{Type: EventThinking, Content: delta.Reasoning})
		}

		// Tool calls arrive in pieces keyed by index.
		for _, tc := range delta.ToolCalls {
			existing, ok := toolCalls[tc.Index]
			if !ok {
				existing = &ToolCall{Index: tc.Index, ID: tc.ID, Type: tc.Type}
				toolCalls[tc.Index] = existing
			}
			if tc.Function.Name != "" {
				existing.Function.Name = tc.Function.Name
			}
			existing.Function.Arguments += tc.Function.Arguments
		}
	}

	if err := scanner.Err(); err != nil {
		// A cancelled context closes the body; report the cause instead
		// of the I/O error it produced.
		if ctx.Err() != nil {
			return partial(), context.Cause(ctx)
		}
		log.Error("SSE scanner error: %v", err)
		return partial(), err
	}

	result.ToolCalls, result.Actions = finalizeToolCalls(toolCalls, emit)
	if len(result.Actions) > 0 {
		block, err := json.MarshalIndent(actions.Batch{Actions: result.Actions}, "", "  ")
		if err == nil {
			emit(StreamEvent{Type: EventText, Content: "\n\n```json\n" + string(block) + "\n```"})
		}
	}

	out := partial()
	callback(StreamEvent{Type: EventDone, Usage: out.Usage})
	return out, nil
}

// finalizeToolCalls parses accumulated calls in index order, repairing
// arguments with trailing garbage. Calls that cannot be recovered are
// dropped.
func finalizeToolCalls(calls map[int]*ToolCall, emit func(StreamEvent)) ([]ToolCall, []actions.Action) {
	indices := make([]int, 0, len(calls))
	for idx := range calls {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	var ordered []ToolCall
	var recovered []actions.Action
	for _, idx := range indices {
		tc := calls[idx]
		ordered = append(ordered, *tc)
		log.ToolCall(tc.Function.Name, tc.Function.Arguments)
		emit(StreamEvent{Type: EventToolCall, ToolCall: tc})

		if tc.Function.Name == "" {
			log.Warn("dropping tool call %d without a function name", idx)
			continue
		}
		args, err := actions.DecodeTruncated(tc.Function.Arguments)
		if err != nil {
			log.Warn("failed to parse %s arguments: %v", tc.Function.Name, err)
			continue
		}
		recovered = append(recovered, actions.FromToolCall(tc.Function.Name, args))
	}
	return ordered, recovered
}
