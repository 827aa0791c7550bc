package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/youruser/magide/internal/storage"
)

var ErrUnknownAction = errors.New("unknown action type")

// NotFoundContent is returned to the model when read_file misses.
const NotFoundContent = "// Not found"

// Stats counts changed lines for one action.
type Stats struct {
	Added   int
	Removed int
}

// Result is the outcome of a single action.
type Result struct {
	Action  Action
	Stats   Stats
	Err     error
	Skipped bool
}

// ToolResult is the content returned by a read_file action. Message is the
// system message appended to the conversation.
type ToolResult struct {
	Path    string
	Content string
	Message string
}

// Report summarizes a batch.
type Report struct {
	Results []Result
	// Continuation is set when a read_file ended the batch early; the
	// conversation must continue without user input.
	Continuation *ToolResult
	Refreshed    bool
}

// Failed returns the results that carry an error.
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Executor applies batches to a store, one action at a time.
type Executor struct {
	store   storage.Store
	refresh func(ctx context.Context) error
}

type Option func(*Executor)

// WithRefresh registers a hook run after every batch that did not end in a
// read_file, once the store's own view has been refreshed.
func WithRefresh(fn func(ctx context.Context) error) Option {
	return func(e *Executor) { e.refresh = fn }
}

func NewExecutor(store storage.Store, opts ...Option) *Executor {
	e := &Executor{store: store}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply runs the batch in order. Storage failures are recorded per action
// and do not stop the batch; a read_file does.
func (e *Executor) Apply(ctx context.Context, batch []Action) *Report {
	report := &Report{}

	for _, a := range batch {
		if err := ctx.Err(); err != nil {
			report.Results = append(report.Results, Result{Action: a, Err: err, Skipped: true})
			continue
		}

		if a.Type == ReadFile {
			res, tr := e.read(ctx, a)
			report.Results = append(report.Results, res)
			report.Continuation = tr
			return report
		}

		report.Results = append(report.Results, e.apply(ctx, a))
	}

	if err := e.store.Refresh(ctx); err != nil {
		log.Warn("workspace refresh failed: %v", err)
	}
	if e.refresh != nil {
		if err := e.refresh(ctx); err != nil {
			log.Warn("refresh hook failed: %v", err)
		}
	}
	report.Refreshed = true
	return report
}

func (e *Executor) apply(ctx context.Context, a Action) Result {
	res := Result{Action: a}
	if a.Path == "" {
		res.Skipped = true
		return res
	}

	switch a.Type {
	case CreateFile:
		res.Err = e.store.Write(ctx, a.Path, a.Content)
		res.Stats.Added = lineCount(a.Content)

	case UpdateFile:
		old := ""
		rec, err := e.store.Read(ctx, a.Path)
		if err != nil {
			res.Err = err
			return res
		}
		if rec != nil {
			old = rec.Content
		}
		res.Err = e.store.Write(ctx, a.Path, a.Content)
		switch delta := lineCount(a.Content) - lineCount(old); {
		case delta > 0:
			res.Stats.Added = delta
		case delta < 0:
			res.Stats.Removed = -delta
		default:
			res.Stats = Stats{Added: 1, Removed: 1}
		}

	case DeleteFile:
		rec, err := e.store.Read(ctx, a.Path)
		if err != nil {
			res.Err = err
			return res
		}
		if rec != nil {
			res.Stats.Removed = lineCount(rec.Content)
		}
		res.Err = e.store.Delete(ctx, a.Path)

	case CreateFolder:
		res.Err = e.store.CreateFolder(ctx, a.Path)

	default:
		res.Err = fmt.Errorf("%w: %q", ErrUnknownAction, a.Type)
	}

	if res.Err != nil {
		log.Warn("%s %s failed: %v", a.Type, a.Path, res.Err)
	} else {
		log.Debug("%s %s (+%d -%d)", a.Type, a.Path, res.Stats.Added, res.Stats.Removed)
	}
	return res
}

func (e *Executor) read(ctx context.Context, a Action) (Result, *ToolResult) {
	res := Result{Action: a}
	content := NotFoundContent

	rec, err := e.store.Read(ctx, a.Path)
	switch {
	case err != nil:
		res.Err = err
	case rec != nil:
		content = sliceLines(rec.Content, a.StartLine, a.EndLine)
	}

	return res, &ToolResult{
		Path:    a.Path,
		Content: content,
		Message: fmt.Sprintf("[Tool Result] %s Content:\n```\n%s\n```", a.Path, content),
	}
}

// lineCount counts newline-separated lines; empty text is one line.
func lineCount(s string) int {
	return strings.Count(s, "\n") + 1
}

// sliceLines returns lines start..end (1-indexed, inclusive). Zero bounds
// mean the start or end of the file.
func sliceLines(content string, start, end int) string {
	if start <= 0 && end <= 0 {
		return content
	}
	lines := strings.Split(content, "\n")
	if start <= 0 {
		start = 1
	}
	if end <= 0 || end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}
