package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/youruser/magide/internal/preview"
)

func askCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Run a single turn and exit",
		ArgsUsage: "<prompt>",
		Action: func(c *cli.Context) error {
			prompt := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if prompt == "" {
				return cli.Exit("ask: prompt is required", 2)
			}
			ws, err := openWorkspace(c, true)
			if err != nil {
				return err
			}
			defer ws.Close(c.Context)

			turn, err := ws.orch.Send(c.Context, prompt)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if turn.Err != nil {
				// already shown by the observer
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

func treeCommand() *cli.Command {
	return &cli.Command{
		Name:  "tree",
		Usage: "Print the workspace tree",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "refresh", Usage: "Rescan the directory first (real mode)"},
		},
		Action: func(c *cli.Context) error {
			ws, err := openWorkspace(c, false)
			if err != nil {
				return err
			}
			defer ws.Close(c.Context)

			if c.Bool("refresh") {
				if err := ws.store.Refresh(c.Context); err != nil {
					return cli.Exit(fmt.Sprintf("refresh: %v", err), 1)
				}
			}
			return printTree(c, ws)
		},
	}
}

func printTree(c *cli.Context, ws *workspace) error {
	root, err := ws.store.Tree(c.Context)
	if err != nil {
		return cli.Exit(fmt.Sprintf("tree: %v", err), 1)
	}
	fmt.Fprintln(c.App.Writer, ws.out.Tree(root))
	return nil
}

func catCommand() *cli.Command {
	return &cli.Command{
		Name:      "cat",
		Usage:     "Print a workspace file",
		ArgsUsage: "<path>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("cat: exactly one path is required", 2)
			}
			ws, err := openWorkspace(c, false)
			if err != nil {
				return err
			}
			defer ws.Close(c.Context)

			rec, err := ws.store.Read(c.Context, c.Args().First())
			if err != nil {
				return cli.Exit(fmt.Sprintf("cat: %v", err), 1)
			}
			if rec == nil {
				return cli.Exit(fmt.Sprintf("cat: %s: no such file", c.Args().First()), 1)
			}
			fmt.Fprint(c.App.Writer, rec.Content)
			if !strings.HasSuffix(rec.Content, "\n") {
				fmt.Fprintln(c.App.Writer)
			}
			return nil
		},
	}
}

func previewCommand() *cli.Command {
	return &cli.Command{
		Name:  "preview",
		Usage: "Build a self-contained HTML preview of the workspace",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Value:   "preview.html",
				Usage:   "Output file, - for stdout",
			},
		},
		Action: func(c *cli.Context) error {
			ws, err := openWorkspace(c, false)
			if err != nil {
				return err
			}
			defer ws.Close(c.Context)

			page, err := preview.Build(c.Context, ws.store)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if c.String("out") == "-" {
				fmt.Fprintln(c.App.Writer, page.HTML)
				return nil
			}
			if err := os.WriteFile(c.String("out"), []byte(page.HTML), 0o644); err != nil {
				return cli.Exit(fmt.Sprintf("preview: %v", err), 1)
			}
			if page.Entry == "" {
				ws.out.Status("No index.html found, wrote placeholder to " + c.String("out"))
				return nil
			}
			for _, m := range page.Missing {
				ws.out.Status("not found: " + m)
			}
			ws.out.Status(fmt.Sprintf("Built %s from %s (%d files inlined)", c.String("out"), page.Entry, len(page.Inlined)))
			return nil
		},
	}
}
