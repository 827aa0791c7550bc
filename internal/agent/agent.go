// Package agent drives conversation turns: request, stream, parse actions,
// execute, and continue after read_file without user input.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/youruser/magide/internal/actions"
	"github.com/youruser/magide/internal/llm"
	"github.com/youruser/magide/internal/logging"
	"github.com/youruser/magide/internal/storage"
)

var (
	ErrTurnActive   = errors.New("a turn is already in progress")
	ErrEmptyMessage = errors.New("message is empty")
	ErrMaxToolDepth = errors.New("too many read_file continuations in one turn")

	log = logging.Get()
)

type State int

const (
	Idle State = iota
	Sending
	Streaming
	ParsingActions
	Executing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	case Streaming:
		return "streaming"
	case ParsingActions:
		return "parsing"
	case Executing:
		return "executing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const (
	DefaultHistoryWindow = 10
	DefaultMaxToolDepth  = 8
)

// Transport streams one chat completion.
type Transport interface {
	ChatStream(ctx context.Context, system string, history []llm.Message, cb llm.StreamCallback) (*llm.StreamResult, error)
}

// ModelSetter is implemented by transports that can switch models.
type ModelSetter interface {
	SetModel(model string)
}

// Observer receives lifecycle and streaming callbacks on the turn's
// goroutine.
type Observer interface {
	OnState(State)
	OnText(chunk string)
	OnThinking(chunk string)
	OnStatus(msg string)
	OnAction(actions.Result)
	OnRefresh()
	OnError(error)
}

// NopObserver ignores every callback. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) OnState(State)           {}
func (NopObserver) OnText(string)           {}
func (NopObserver) OnThinking(string)       {}
func (NopObserver) OnStatus(string)         {}
func (NopObserver) OnAction(actions.Result) {}
func (NopObserver) OnRefresh()              {}
func (NopObserver) OnError(error)           {}

// TurnResult describes one call to Send.
type TurnResult struct {
	ID       string
	Text     string
	Thinking string
	Actions  []actions.Result
	// Steps counts model requests, including read_file continuations.
	Steps int
	// Err is the failure that ended the turn, if any.
	Err error
}

// Orchestrator owns the conversation history and runs turns one at a time.
type Orchestrator struct {
	transport Transport
	store     storage.Store
	exec      *actions.Executor
	observer  Observer

	historyWindow int
	tokenBudget   int
	maxToolDepth  int
	refresh       func(ctx context.Context) error

	mu      sync.Mutex
	state   State
	history []llm.Message
}

type Option func(*Orchestrator)

func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithHistoryWindow sets how many trailing messages each request carries.
func WithHistoryWindow(n int) Option {
	return func(o *Orchestrator) { o.historyWindow = n }
}

// WithTokenBudget further trims the window to roughly n tokens.
func WithTokenBudget(n int) Option {
	return func(o *Orchestrator) { o.tokenBudget = n }
}

func WithMaxToolDepth(n int) Option {
	return func(o *Orchestrator) { o.maxToolDepth = n }
}

// WithRefresh runs fn after each applied batch, e.g. to reload an open
// editor buffer.
func WithRefresh(fn func(ctx context.Context) error) Option {
	return func(o *Orchestrator) { o.refresh = fn }
}

func New(transport Transport, store storage.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		transport:     transport,
		store:         store,
		observer:      NopObserver{},
		historyWindow: DefaultHistoryWindow,
		maxToolDepth:  DefaultMaxToolDepth,
	}
	for _, opt := range opts {
		opt(o)
	}
	var execOpts []actions.Option
	if o.refresh != nil {
		execOpts = append(execOpts, actions.WithRefresh(o.refresh))
	}
	o.exec = actions.NewExecutor(store, execOpts...)
	return o
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.observer.OnState(s)
}

// History returns a copy of the conversation so far.
func (o *Orchestrator) History() []llm.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]llm.Message(nil), o.history...)
}

// Reset clears the conversation. It fails while a turn is running.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != Idle {
		return ErrTurnActive
	}
	o.history = nil
	return nil
}

// SetModel switches the model when the transport supports it.
func (o *Orchestrator) SetModel(model string) bool {
	ms, ok := o.transport.(ModelSetter)
	if ok {
		ms.SetModel(model)
	}
	return ok
}

func (o *Orchestrator) appendMessage(role, content string) {
	o.mu.Lock()
	o.history = append(o.history, llm.Message{Role: role, Content: content})
	o.mu.Unlock()
}

// window returns the trailing messages sent with the next request.
func (o *Orchestrator) window() []llm.Message {
	o.mu.Lock()
	msgs := o.history
	if o.historyWindow > 0 && len(msgs) > o.historyWindow {
		msgs = msgs[len(msgs)-o.historyWindow:]
	}
	msgs = append([]llm.Message(nil), msgs...)
	o.mu.Unlock()
	return llm.TrimToTokenBudget(msgs, o.tokenBudget)
}

// Send runs one user turn to completion. Only ErrTurnActive and
// ErrEmptyMessage are returned as errors; failures during the turn are
// reported on TurnResult.Err and to the observer.
func (o *Orchestrator) Send(ctx context.Context, text string) (*TurnResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	o.mu.Lock()
	if o.state != Idle {
		o.mu.Unlock()
		return nil, ErrTurnActive
	}
	o.state = Sending
	o.history = append(o.history, llm.Message{Role: llm.RoleUser, Content: text})
	o.mu.Unlock()
	o.observer.OnState(Sending)
	defer o.setState(Idle)

	turn := &TurnResult{ID: uuid.New().String()}
	tlog := log.With("turn", turn.ID)
	tlog.Info("turn started (%d chars)", len(text))

	continuations := 0
	for {
		turn.Steps++
		more, err := o.step(ctx, turn, tlog)
		if err != nil {
			turn.Err = err
			o.observer.OnError(err)
			tlog.Warn("turn ended with error: %v", err)
			return turn, nil
		}
		if !more {
			tlog.Info("turn finished after %d step(s), %d action(s)", turn.Steps, len(turn.Actions))
			return turn, nil
		}

		continuations++
		if continuations > o.maxToolDepth {
			turn.Err = ErrMaxToolDepth
			o.observer.OnError(ErrMaxToolDepth)
			tlog.Warn("stopping after %d read_file continuations", o.maxToolDepth)
			return turn, nil
		}
		o.setState(Streaming)
	}
}

// step performs one request and applies its actions. It reports whether
// a read_file result was queued and the model must be asked again.
func (o *Orchestrator) step(ctx context.Context, turn *TurnResult, tlog *logging.Logger) (bool, error) {
	system, err := SystemPrompt(ctx, o.store)
	if err != nil {
		return false, fmt.Errorf("build system prompt: %w", err)
	}

	streaming := o.State() == Streaming
	res, err := o.transport.ChatStream(ctx, system, o.window(), func(ev llm.StreamEvent) {
		if !streaming && (ev.Type == llm.EventText || ev.Type == llm.EventThinking) {
			streaming = true
			o.setState(Streaming)
		}
		switch ev.Type {
		case llm.EventText:
			o.observer.OnText(ev.Content)
		case llm.EventThinking:
			o.observer.OnThinking(ev.Content)
		case llm.EventStatus:
			o.observer.OnStatus(ev.Content)
		}
	})
	if res != nil {
		turn.Text = joinSteps(turn.Text, res.Text)
		turn.Thinking += res.Thinking
	}
	if err != nil {
		return false, err
	}

	if strings.TrimSpace(res.Text) != "" {
		o.appendMessage(llm.RoleAssistant, res.Text)
	}

	o.setState(ParsingActions)
	batch, err := actions.Parse(res.Text)
	if err != nil {
		tlog.Warn("ignoring action batch: %v", err)
	}
	if len(batch) == 0 {
		return false, nil
	}

	o.setState(Executing)
	report := o.exec.Apply(ctx, batch)
	for _, r := range report.Results {
		turn.Actions = append(turn.Actions, r)
		o.observer.OnAction(r)
	}
	if report.Refreshed {
		o.observer.OnRefresh()
	}
	if report.Continuation == nil {
		return false, nil
	}
	tlog.Debug("read_file %s, continuing", report.Continuation.Path)
	o.appendMessage(llm.RoleSystem, report.Continuation.Message)
	return true, nil
}

func joinSteps(prev, next string) string {
	if prev == "" {
		return next
	}
	if next == "" {
		return prev
	}
	return prev + "\n\n" + next
}
