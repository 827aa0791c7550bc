package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/youruser/magide/internal/agent"
	"github.com/youruser/magide/internal/config"
	"github.com/youruser/magide/internal/editor"
	"github.com/youruser/magide/internal/llm"
	"github.com/youruser/magide/internal/render"
	"github.com/youruser/magide/internal/storage"
	"github.com/youruser/magide/internal/storage/kv"
)

// workspace is everything a command needs, built from flags and config.
type workspace struct {
	cfg        *config.Config
	store      storage.Store
	closeStore func() error
	out        *render.Renderer

	// set only for commands that talk to the model
	client *llm.Client
	orch   *agent.Orchestrator
	editor *editor.Session
}

func loadConfig(c *cli.Context, needModel bool) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.LoadFrom(path)
	} else {
		cfg, err = config.Load()
	}
	switch {
	case err == nil:
	case errors.Is(err, config.ErrNoConfig) && !needModel:
		cfg = config.Defaults()
	case errors.Is(err, config.ErrNoConfig):
		dir, _ := config.Dir()
		return nil, cli.Exit(fmt.Sprintf("no config found; create %s/config.yaml with at least api_key", dir), 1)
	default:
		return nil, cli.Exit(fmt.Sprintf("config: %v", err), 1)
	}

	if dir := c.String("dir"); dir != "" {
		cfg.Workspace.Mode = config.ModeReal
		cfg.Workspace.Dir = dir
	}
	if model := c.String("model"); model != "" {
		cfg.Model = model
	}
	if err := cfg.Validate(); err != nil {
		return nil, cli.Exit(fmt.Sprintf("config: %v", err), 1)
	}
	return cfg, nil
}

func storageOptions(cfg *config.Config) storage.Options {
	opts := storage.Options{
		SnapshotKey: cfg.Store.Key,
		Codec:       cfg.Store.Codec,
		KV: kv.Config{
			Backend:     cfg.Store.Backend,
			Path:        cfg.Store.Path,
			URL:         cfg.Store.URL,
			Bucket:      cfg.Store.Bucket,
			Prefix:      cfg.Store.Prefix,
			Region:      cfg.Store.Region,
			Endpoint:    cfg.Store.Endpoint,
			S3PathStyle: cfg.Store.S3PathStyle,
		},
	}
	if cfg.Workspace.Mode == config.ModeReal {
		opts.Dir = cfg.Workspace.Dir
	}
	return opts
}

func clientConfig(cfg *config.Config) llm.Config {
	lc := llm.Config{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Temperature: *cfg.Temperature,
		MaxRetries:  *cfg.MaxRetries,
		MaxBackoff:  cfg.MaxBackoff.Duration,
		NativeTools: cfg.NativeTools,
	}
	if cfg.StreamIdleTimeout != nil {
		lc.StreamIdleTimeout = cfg.StreamIdleTimeout.Duration
	}
	return lc
}

// openWorkspace opens storage and, when needModel is set, the model client,
// editor session and orchestrator.
func openWorkspace(c *cli.Context, needModel bool) (*workspace, error) {
	cfg, err := loadConfig(c, needModel)
	if err != nil {
		return nil, err
	}

	out, err := render.New(c.App.Writer, render.WithColor(!c.Bool("no-color")))
	if err != nil {
		return nil, err
	}

	store, closeStore, err := storage.Open(c.Context, storageOptions(cfg))
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("open workspace: %v", err), 1)
	}
	ws := &workspace{cfg: cfg, store: store, closeStore: closeStore, out: out}
	log.Info("workspace opened (mode: %s, backend: %s)", cfg.Workspace.Mode, cfg.Store.Backend)

	if !needModel {
		return ws, nil
	}

	ws.client = llm.NewClient(clientConfig(cfg))
	ws.editor = editor.NewSession(store,
		editor.WithDelay(cfg.AutosaveDelay.Duration),
		editor.WithSaveHook(func(path string, err error) {
			if err != nil {
				out.Error(fmt.Errorf("save %s: %w", path, err))
			}
		}),
	)
	ws.orch = agent.New(ws.client, store,
		agent.WithObserver(newPrinter(out)),
		agent.WithHistoryWindow(cfg.HistoryWindow),
		agent.WithTokenBudget(cfg.MaxHistoryTokens),
		agent.WithMaxToolDepth(cfg.MaxToolDepth),
		agent.WithRefresh(ws.editor.Reload),
	)
	return ws, nil
}

func (ws *workspace) Close(ctx context.Context) error {
	var errs []error
	if ws.editor != nil {
		errs = append(errs, ws.editor.Close(ctx))
	}
	if ws.closeStore != nil {
		errs = append(errs, ws.closeStore())
	}
	return errors.Join(errs...)
}
