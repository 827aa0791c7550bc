package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFrom(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		path := writeConfig(t, `
api_key: sk-test-123
base_url: https://api.example.com/v1
model: mistral-small
temperature: 0.2
max_retries: 3
max_backoff: 5s
workspace:
  mode: real
  dir: /tmp/project
`)
		cfg, err := LoadFrom(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.APIKey != "sk-test-123" {
			t.Errorf("APIKey = %q", cfg.APIKey)
		}
		if cfg.BaseURL != "https://api.example.com/v1" {
			t.Errorf("BaseURL = %q", cfg.BaseURL)
		}
		if cfg.Model != "mistral-small" {
			t.Errorf("Model = %q", cfg.Model)
		}
		if *cfg.Temperature != 0.2 {
			t.Errorf("Temperature = %v", *cfg.Temperature)
		}
		if *cfg.MaxRetries != 3 {
			t.Errorf("MaxRetries = %d", *cfg.MaxRetries)
		}
		if cfg.MaxBackoff.Duration != 5*time.Second {
			t.Errorf("MaxBackoff = %v", cfg.MaxBackoff)
		}
		if cfg.Workspace.Mode != ModeReal || cfg.Workspace.Dir != "/tmp/project" {
			t.Errorf("Workspace = %+v", cfg.Workspace)
		}
	})

	t.Run("defaults applied", func(t *testing.T) {
		cfg, err := LoadFrom(writeConfig(t, `api_key: sk-test-123`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.BaseURL != "https://api.mistral.ai/v1" {
			t.Errorf("BaseURL = %q, want default", cfg.BaseURL)
		}
		if cfg.Model != "magistral-medium-latest" {
			t.Errorf("Model = %q, want default", cfg.Model)
		}
		if *cfg.Temperature != 0.5 {
			t.Errorf("Temperature = %v, want 0.5", *cfg.Temperature)
		}
		if *cfg.MaxRetries != 10 {
			t.Errorf("MaxRetries = %d, want 10", *cfg.MaxRetries)
		}
		if cfg.MaxBackoff.Duration != time.Minute {
			t.Errorf("MaxBackoff = %v, want 1m", cfg.MaxBackoff)
		}
		if cfg.StreamIdleTimeout.Duration != 2*time.Minute {
			t.Errorf("StreamIdleTimeout = %v, want 2m", cfg.StreamIdleTimeout)
		}
		if cfg.HistoryWindow != 10 || cfg.MaxToolDepth != 8 {
			t.Errorf("HistoryWindow=%d MaxToolDepth=%d", cfg.HistoryWindow, cfg.MaxToolDepth)
		}
		if cfg.AutosaveDelay.Duration != 500*time.Millisecond {
			t.Errorf("AutosaveDelay = %v", cfg.AutosaveDelay)
		}
		if cfg.Workspace.Mode != ModeVirtual {
			t.Errorf("Workspace.Mode = %q", cfg.Workspace.Mode)
		}
		if cfg.Store.Backend != "file" || cfg.Store.Key != "magide_vfs" || cfg.Store.Codec != "json" {
			t.Errorf("Store = %+v", cfg.Store)
		}
	})

	t.Run("explicit zero retries kept", func(t *testing.T) {
		cfg, err := LoadFrom(writeConfig(t, "api_key: k\nmax_retries: 0\nstream_idle_timeout: 0s\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if *cfg.MaxRetries != 0 {
			t.Errorf("MaxRetries = %d, want 0", *cfg.MaxRetries)
		}
		if cfg.StreamIdleTimeout.Duration != 0 {
			t.Errorf("StreamIdleTimeout = %v, want 0", cfg.StreamIdleTimeout)
		}
	})

	t.Run("json is accepted", func(t *testing.T) {
		cfg, err := LoadFrom(writeConfig(t, `{"api_key": "sk-json", "model": "m"}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.APIKey != "sk-json" || cfg.Model != "m" {
			t.Errorf("cfg = %+v", cfg)
		}
	})

	t.Run("env expansion", func(t *testing.T) {
		t.Setenv("MAGIDE_TEST_KEY", "sk-from-env")
		cfg, err := LoadFrom(writeConfig(t, "api_key: ${MAGIDE_TEST_KEY}\nmodel: ${MAGIDE_UNSET_MODEL:-fallback}\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.APIKey != "sk-from-env" {
			t.Errorf("APIKey = %q", cfg.APIKey)
		}
		if cfg.Model != "fallback" {
			t.Errorf("Model = %q", cfg.Model)
		}
	})

	errCases := []struct {
		name    string
		content string
		want    error
	}{
		{"missing api key", `model: x`, ErrNoAPIKey},
		{"unset env api key", `api_key: ${MAGIDE_DEFINITELY_UNSET}`, ErrNoAPIKey},
		{"invalid yaml", "api_key: [unterminated", ErrInvalidYAML},
		{"bad mode", "api_key: k\nworkspace:\n  mode: cloud\n", ErrInvalidMode},
		{"real without dir", "api_key: k\nworkspace:\n  mode: real\n", ErrNoWorkspaceDir},
		{"bad backend", "api_key: k\nstore:\n  backend: etcd\n", ErrInvalidBackend},
		{"bad codec", "api_key: k\nstore:\n  codec: xml\n", ErrInvalidCodec},
	}
	for _, tc := range errCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFrom(writeConfig(t, tc.content))
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}

	t.Run("file not found", func(t *testing.T) {
		_, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
		if err != ErrNoConfig {
			t.Errorf("err = %v, want ErrNoConfig", err)
		}
	})
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("MAGIDE_A", "alpha")
	t.Setenv("MAGIDE_EMPTY", "")

	tests := []struct {
		in, want string
	}{
		{"${MAGIDE_A}", "alpha"},
		{"x-${MAGIDE_A}-y", "x-alpha-y"},
		{"${MAGIDE_EMPTY:-dflt}", "dflt"},
		{"${MAGIDE_NOPE}", ""},
		{"$MAGIDE_A", "$MAGIDE_A"},
	}
	for _, tt := range tests {
		if got := ExpandEnv(tt.in); got != tt.want {
			t.Errorf("ExpandEnv(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.APIKey != "" {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
	if cfg.Workspace.Mode != ModeVirtual || cfg.Model != "magistral-medium-latest" {
		t.Errorf("cfg = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}
