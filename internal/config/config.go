package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrNoConfig       = errors.New("config file not found")
	ErrNoAPIKey       = errors.New("api_key not set in config")
	ErrInvalidYAML    = errors.New("invalid config YAML")
	ErrInvalidMode    = errors.New("workspace.mode must be \"virtual\" or \"real\"")
	ErrNoWorkspaceDir = errors.New("workspace.dir is required in real mode")
	ErrInvalidBackend = errors.New("store.backend must be \"file\", \"memory\", \"sqlite\", \"redis\" or \"s3\"")
	ErrInvalidCodec   = errors.New("store.codec must be \"json\" or \"msgpack\"")
)

const (
	ModeVirtual = "virtual"
	ModeReal    = "real"
)

// Config holds the global magide configuration.
type Config struct {
	APIKey            string    `yaml:"api_key"`
	BaseURL           string    `yaml:"base_url"`
	Model             string    `yaml:"model"`
	Temperature       *float64  `yaml:"temperature"`
	MaxRetries        *int      `yaml:"max_retries"`         // 429 retries before giving up (default: 10)
	MaxBackoff        Duration  `yaml:"max_backoff"`         // Cap on a single 429 wait (default: 60s)
	StreamIdleTimeout *Duration `yaml:"stream_idle_timeout"` // Abort a silent stream after this long; 0 disables (default: 2m)
	NativeTools       bool      `yaml:"native_tools"`        // Attach action tool schemas to requests
	HistoryWindow     int       `yaml:"history_window"`      // Trailing messages sent per request (default: 10)
	MaxHistoryTokens  int       `yaml:"max_history_tokens"`  // Optional token budget for history; 0 disables
	MaxToolDepth      int       `yaml:"max_tool_depth"`      // read_file continuations per turn (default: 8)
	AutosaveDelay     Duration  `yaml:"autosave_delay"`      // Editor quiet window (default: 500ms)
	Workspace         Workspace `yaml:"workspace"`
	Store             Store     `yaml:"store"`
}

// Workspace selects the storage mode.
type Workspace struct {
	Mode string `yaml:"mode"`
	Dir  string `yaml:"dir"`
}

// Store configures the key-value backend for the virtual workspace snapshot.
type Store struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	URL         string `yaml:"url"`
	Bucket      string `yaml:"bucket"`
	Prefix      string `yaml:"prefix"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
	Key         string `yaml:"key"`
	Codec       string `yaml:"codec"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "500ms", "2m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Dir returns the magide config directory (~/.config/magide).
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "magide"), nil
}

// Load reads the config from ~/.config/magide/config.yaml.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(filepath.Join(dir, "config.yaml"))
}

// LoadFrom reads the config from a specific path. ${VAR} and ${VAR:-default}
// references are expanded before decoding.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoConfig
		}
		return nil, err
	}
	return Parse(data)
}

// Defaults returns a config with every default applied and no API key, for
// commands that never contact the model.
func Defaults() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// Parse decodes, defaults and validates raw config bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.mistral.ai/v1"
	}
	if c.Model == "" {
		c.Model = "magistral-medium-latest"
	}
	if c.Temperature == nil {
		t := 0.5
		c.Temperature = &t
	}
	if c.MaxRetries == nil {
		n := 10
		c.MaxRetries = &n
	}
	if c.MaxBackoff.Duration <= 0 {
		c.MaxBackoff.Duration = 60 * time.Second
	}
	if c.StreamIdleTimeout == nil {
		c.StreamIdleTimeout = &Duration{2 * time.Minute}
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 10
	}
	if c.MaxToolDepth <= 0 {
		c.MaxToolDepth = 8
	}
	if c.AutosaveDelay.Duration <= 0 {
		c.AutosaveDelay.Duration = 500 * time.Millisecond
	}
	if c.Workspace.Mode == "" {
		c.Workspace.Mode = ModeVirtual
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "file"
	}
	if c.Store.Key == "" {
		c.Store.Key = "magide_vfs"
	}
	if c.Store.Codec == "" {
		c.Store.Codec = "json"
	}
	if c.Store.Backend == "file" && c.Store.Path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Store.Path = filepath.Join(home, ".magide", "store")
		}
	}
	if c.Store.Backend == "sqlite" && c.Store.Path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Store.Path = filepath.Join(home, ".magide", "magide.db")
		}
	}
}

// Validate checks enum fields and mode requirements.
func (c *Config) Validate() error {
	switch c.Workspace.Mode {
	case ModeVirtual:
	case ModeReal:
		if c.Workspace.Dir == "" {
			return ErrNoWorkspaceDir
		}
	default:
		return ErrInvalidMode
	}
	switch c.Store.Backend {
	case "file", "memory", "sqlite", "redis", "s3":
	default:
		return ErrInvalidBackend
	}
	switch c.Store.Codec {
	case "json", "msgpack":
	default:
		return ErrInvalidCodec
	}
	return nil
}
