// Package main provides the magide CLI: a chat loop with a coding model that
// edits a virtual or on-disk workspace through structured actions.
//
// Usage:
//
//	magide [--config file] [--dir path] [--model id] <command>
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"

	"github.com/urfave/cli/v2"

	"github.com/youruser/magide/internal/logging"
)

var (
	// version is set via -ldflags at build time.
	version = "dev"

	log = logging.Get()
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	defer log.Close()

	app := newApp(os.Stdin, os.Stdout, os.Stderr)
	if err := app.RunContext(ctx, os.Args); err != nil {
		// ExitErrHandler already exited for cli.ExitCoder errors.
		os.Exit(1)
	}
}

func newApp(in io.Reader, out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:           "magide",
		Usage:          "Chat with a coding model that edits your workspace",
		Version:        versionString(),
		Reader:         in,
		Writer:         out,
		ErrWriter:      errOut,
		ExitErrHandler: exitErrHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file (default ~/.config/magide/config.yaml)",
				EnvVars: []string{"MAGIDE_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Usage:   "Work on this directory instead of the virtual workspace",
			},
			&cli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Usage:   "Model id, overrides the config",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output",
			},
		},
		Commands: []*cli.Command{
			chatCommand(),
			askCommand(),
			treeCommand(),
			catCommand(),
			previewCommand(),
		},
	}
}

func versionString() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && len(setting.Value) >= 7 {
			return version + " (" + setting.Value[:7] + ")"
		}
	}
	return version
}

// exitErrHandler prints the message of cli.Exit errors and exits with their
// code; anything else exits 1.
func exitErrHandler(c *cli.Context, err error) {
	if err == nil {
		return
	}
	errOut := io.Writer(os.Stderr)
	if c != nil && c.App != nil && c.App.ErrWriter != nil {
		errOut = c.App.ErrWriter
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(errOut, msg)
		}
		cli.OsExiter(code)
		return
	}

	fmt.Fprintf(errOut, "Error: %v\n", err)
	cli.OsExiter(1)
}
