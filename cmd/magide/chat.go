package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/youruser/magide/internal/actions"
	"github.com/youruser/magide/internal/agent"
	"github.com/youruser/magide/internal/render"
	"github.com/youruser/magide/internal/storage"
)

const chatHelp = `Commands:
  /tree            show the workspace
  /refresh         rescan the workspace and reload open files
  /open <path>     show a file and keep it open for /write
  /write <path>    replace a file; end input with a line holding a single "."
  /model <id>      switch model
  /clear           forget the conversation
  /exit            quit`

func chatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Start an interactive session",
		Action: func(c *cli.Context) error {
			ws, err := openWorkspace(c, true)
			if err != nil {
				return err
			}
			defer ws.Close(c.Context)
			return runChat(c, ws)
		},
	}
}

func runChat(c *cli.Context, ws *workspace) error {
	out := c.App.Writer
	scanner := bufio.NewScanner(c.App.Reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Fprintf(out, "magide %s, model %s. /help for commands.\n", versionString(), ws.client.Model())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			if _, err := ws.orch.Send(c.Context, line); err != nil {
				ws.out.Error(err)
			}
			if c.Context.Err() != nil {
				return nil
			}
			continue
		}

		quit, err := runSlash(c, ws, scanner, line)
		if err != nil {
			ws.out.Error(err)
		}
		if quit {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return cli.Exit(fmt.Sprintf("read input: %v", err), 1)
	}
	return nil
}

// runSlash executes one REPL command and reports whether to quit.
func runSlash(c *cli.Context, ws *workspace, scanner *bufio.Scanner, line string) (bool, error) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/exit", "/quit":
		return true, nil
	case "/help":
		fmt.Fprintln(c.App.Writer, chatHelp)
	case "/clear":
		if err := ws.orch.Reset(); err != nil {
			return false, err
		}
		ws.out.Status("Conversation cleared.")
	case "/tree":
		return false, printTree(c, ws)
	case "/refresh":
		if err := ws.store.Refresh(c.Context); err != nil {
			return false, err
		}
		if err := ws.editor.Reload(c.Context); err != nil {
			return false, err
		}
		return false, printTree(c, ws)
	case "/model":
		if arg == "" {
			fmt.Fprintln(c.App.Writer, ws.client.Model())
			return false, nil
		}
		ws.orch.SetModel(arg)
		ws.out.Status("Model set to " + arg)
	case "/open":
		if arg == "" {
			return false, errors.New("/open needs a path")
		}
		content, lang, err := ws.editor.Open(c.Context, arg)
		if err != nil {
			return false, err
		}
		ws.out.Status(fmt.Sprintf("%s (%s)", arg, lang))
		fmt.Fprintln(c.App.Writer, content)
	case "/write":
		return false, writeFile(c, ws, scanner, arg)
	default:
		return false, fmt.Errorf("unknown command %s, try /help", cmd)
	}
	return false, nil
}

// writeFile feeds typed lines into the editor session the way keystrokes
// would arrive, then flushes.
func writeFile(c *cli.Context, ws *workspace, scanner *bufio.Scanner, path string) error {
	if path == "" {
		return errors.New("/write needs a path")
	}
	_, _, err := ws.editor.Open(c.Context, path)
	if errors.Is(err, storage.ErrNotFound) {
		if err := ws.store.Write(c.Context, path, ""); err != nil {
			return err
		}
		_, _, err = ws.editor.Open(c.Context, path)
	}
	if err != nil {
		return err
	}

	var lines []string
	for scanner.Scan() {
		if scanner.Text() == "." {
			break
		}
		lines = append(lines, scanner.Text())
		if err := ws.editor.Change(path, strings.Join(lines, "\n")); err != nil {
			return err
		}
	}
	if err := ws.editor.Flush(c.Context); err != nil {
		return err
	}
	ws.out.Status(fmt.Sprintf("Saved %s (%d lines)", path, len(lines)))
	return nil
}

// printer renders orchestrator callbacks. Assistant text is buffered and
// shown as markdown once the response is complete.
type printer struct {
	agent.NopObserver
	r *render.Renderer

	text     strings.Builder
	working  string
	thinking bool
}

func newPrinter(r *render.Renderer) *printer {
	return &printer{r: r}
}

func (p *printer) OnState(s agent.State) {
	switch s {
	case agent.Sending:
		p.thinking = false
		p.working = ""
	case agent.ParsingActions, agent.Idle:
		p.flush()
	}
}

func (p *printer) OnText(chunk string) {
	p.text.WriteString(chunk)
	if w := render.Working(p.text.String()); w != "" && w != p.working {
		p.working = w
		p.r.Status(w)
	}
}

func (p *printer) OnThinking(string) {
	if !p.thinking {
		p.thinking = true
		p.r.Status("Thinking...")
	}
}

func (p *printer) OnStatus(msg string)         { p.r.Status(msg) }
func (p *printer) OnAction(res actions.Result) { p.r.Action(res) }
func (p *printer) OnError(err error)           { p.flush(); p.r.Error(err) }

func (p *printer) flush() {
	if p.text.Len() == 0 {
		return
	}
	p.r.Print(p.text.String())
	p.text.Reset()
	p.working = ""
}
