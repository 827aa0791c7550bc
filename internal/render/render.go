// Package render formats conversation output for the terminal: action
// cards, status lines, errors, file trees and assistant markdown.
package render

import (
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"

	"github.com/youruser/magide/internal/actions"
	"github.com/youruser/magide/internal/storage"
)

const defaultWidth = 80

type Renderer struct {
	out   io.Writer
	color bool
	width int
	st    styles
	md    *glamour.TermRenderer
}

type Option func(*Renderer)

// WithColor toggles ANSI styling. Without it output is plain text.
func WithColor(on bool) Option {
	return func(r *Renderer) { r.color = on }
}

func WithWidth(w int) Option {
	return func(r *Renderer) { r.width = w }
}

func New(out io.Writer, opts ...Option) (*Renderer, error) {
	r := &Renderer{out: out, color: true, width: defaultWidth}
	for _, opt := range opts {
		opt(r)
	}
	if r.width <= 0 {
		r.width = defaultWidth
	}

	style := "notty"
	if r.color {
		r.st = colorStyles(lipgloss.NewRenderer(out))
		style = "dark"
	} else {
		r.st = plainStyles()
	}

	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(r.width),
	)
	if err != nil {
		return nil, fmt.Errorf("markdown renderer: %w", err)
	}
	r.md = md
	return r, nil
}

// Label names what an action did, as shown on its card.
func Label(t actions.Type) string {
	switch t {
	case actions.CreateFile:
		return "Created"
	case actions.DeleteFile:
		return "Deleted"
	case actions.CreateFolder:
		return "Folder"
	case actions.ReadFile:
		return "Analyzed"
	}
	return "Edited"
}

// Card renders one executed action, e.g. "Created  JS  app.js +12".
func (r *Renderer) Card(res actions.Result) string {
	p := res.Action.Path
	if p == "" {
		p = "unknown.txt"
	}
	name := path.Base(p)
	ext := strings.TrimPrefix(path.Ext(name), ".")
	if ext == "" {
		ext = name
	}

	parts := []string{
		r.st.label.Render(Label(res.Action.Type)),
		r.st.badge.Render(strings.ToUpper(ext)),
		r.st.file.Render(name),
	}
	if stats := r.stats(res); stats != "" {
		parts = append(parts, stats)
	}
	switch {
	case res.Err != nil:
		parts = append(parts, r.st.err.Render("failed: "+res.Err.Error()))
	case res.Skipped:
		parts = append(parts, r.st.muted.Render("skipped"))
	}
	return r.st.card.Render(strings.Join(parts, " "))
}

func (r *Renderer) stats(res actions.Result) string {
	a := res.Action
	switch a.Type {
	case actions.ReadFile:
		start, end := "1", "end"
		if a.StartLine > 0 {
			start = strconv.Itoa(a.StartLine)
		}
		if a.EndLine > 0 {
			end = strconv.Itoa(a.EndLine)
		}
		return r.st.muted.Render("Read lines " + start + "-" + end)
	case actions.CreateFolder, actions.DeleteFile:
		return ""
	}
	if res.Err != nil || res.Skipped {
		return ""
	}

	var out []string
	if res.Stats.Added > 0 {
		out = append(out, r.st.added.Render(fmt.Sprintf("+%d", res.Stats.Added)))
	}
	if res.Stats.Removed > 0 {
		out = append(out, r.st.removed.Render(fmt.Sprintf("-%d", res.Stats.Removed)))
	}
	if len(out) == 0 {
		return r.st.added.Render("~")
	}
	return strings.Join(out, " ")
}

// Working describes a batch that is still streaming in, or "" when text
// has no open action block.
func Working(text string) string {
	lower := strings.ToLower(text)
	open, fence := -1, ""
	for _, f := range []string{"```", "~~~"} {
		if i := strings.LastIndex(lower, f+"json"); i > open {
			open, fence = i, f
		}
	}
	if open < 0 || strings.Contains(text[open+len(fence)+len("json"):], fence) {
		return ""
	}
	switch {
	case strings.Contains(text, "update_file"), strings.Contains(text, "create_file"):
		return "Writing updates..."
	case strings.Contains(text, "read_file"):
		return "Reading file..."
	}
	return "Processing..."
}

// Markdown renders assistant text with action payloads removed.
func (r *Renderer) Markdown(text string) (string, error) {
	body := actions.StripActionBlocks(text)
	if body == "" {
		return "", nil
	}
	out, err := r.md.Render(body)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(out, "\n") + "\n", nil
}

// Tree renders the workspace tree below root.
func (r *Renderer) Tree(root *storage.Node) string {
	t := tree.Root(r.st.title.Render("/")).Enumerator(tree.RoundedEnumerator)
	addChildren(t, root, r.st)
	return t.String()
}

func addChildren(t *tree.Tree, n *storage.Node, st styles) {
	for _, c := range n.SortedChildren() {
		if !c.IsFolder() {
			t.Child(c.Name)
			continue
		}
		sub := tree.Root(st.title.Render(c.Name + "/"))
		addChildren(sub, c, st)
		t.Child(sub)
	}
}

func (r *Renderer) Action(res actions.Result) {
	fmt.Fprintln(r.out, r.Card(res))
}

func (r *Renderer) Status(msg string) {
	fmt.Fprintln(r.out, r.st.status.Render(msg))
}

func (r *Renderer) Thinking(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	fmt.Fprintln(r.out, r.st.muted.Render(text))
}

func (r *Renderer) Error(err error) {
	fmt.Fprintln(r.out, r.st.err.Render("Error: "+err.Error()))
}

// Print renders assistant markdown, falling back to the stripped raw text
// when markdown rendering fails.
func (r *Renderer) Print(text string) {
	out, err := r.Markdown(text)
	if err != nil {
		fmt.Fprintln(r.out, actions.StripActionBlocks(text))
		return
	}
	fmt.Fprint(r.out, out)
}

func (r *Renderer) Writer() io.Writer { return r.out }
