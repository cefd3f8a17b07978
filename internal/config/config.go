// Package config loads folio settings from a YAML file with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level folio configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store"`
	Remote   RemoteConfig   `yaml:"remote"`
	Sync     SyncConfig     `yaml:"sync"`
	Paginate PaginateConfig `yaml:"paginate"`
	Adapter  AdapterConfig  `yaml:"adapter"`
	Source   SourceConfig   `yaml:"source"`
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
}

// StoreConfig selects the local progress store.
type StoreConfig struct {
	Backend string `yaml:"backend"` // json | sqlite
	Dir     string `yaml:"dir"`
	Path    string `yaml:"path"` // sqlite database file
}

// RemoteConfig points at the progress mirror. Empty URL and project mean
// offline reading.
type RemoteConfig struct {
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Project     string `yaml:"firestore_project"`
	Collection  string `yaml:"firestore_collection"`
	Credentials string `yaml:"credentials_file"`
}

// SyncConfig holds the remote send thresholds.
type SyncConfig struct {
	MinInterval time.Duration `yaml:"min_interval"`
	MaxInterval time.Duration `yaml:"max_interval"`
}

// PaginateConfig holds reflow pagination settings.
type PaginateConfig struct {
	Overlap float64 `yaml:"overlap"`
}

// AdapterConfig controls fixed-layout engine loading.
type AdapterConfig struct {
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// SourceConfig controls book fetching.
type SourceConfig struct {
	MaxSize     int64  `yaml:"max_size"`
	Credentials string `yaml:"credentials_file"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
	File  string `yaml:"file"`
}

// ServerConfig configures progressd.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	DB        string `yaml:"db"`
	TokenHash string `yaml:"token_hash"` // bcrypt hash of the accepted bearer token
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// DefaultPath returns XDG_CONFIG_HOME/folio/config.yaml or
// ~/.config/folio/config.yaml.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "folio", "config.yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "folio", "config.yaml")
}

// Load reads path, or DefaultPath when path is empty, then applies
// environment overrides and defaults. A missing default file is not an
// error; a missing explicit file is.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FOLIO_REMOTE_URL"); v != "" {
		c.Remote.URL = v
	}
	if v := os.Getenv("FOLIO_REMOTE_TOKEN"); v != "" {
		c.Remote.Token = v
	}
	if v := os.Getenv("FOLIO_FIRESTORE_PROJECT"); v != "" {
		c.Remote.Project = v
	}
	if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" && c.Remote.Credentials == "" {
		c.Remote.Credentials = v
	}
	if v := os.Getenv("FOLIO_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("FOLIO_STATE_DIR"); v != "" {
		c.Store.Dir = v
	}
}

func (c *Config) applyDefaults() {
	if c.Store.Backend == "" {
		c.Store.Backend = "json"
	}
	if c.Sync.MinInterval <= 0 {
		c.Sync.MinInterval = time.Second
	}
	if c.Sync.MaxInterval <= 0 {
		c.Sync.MaxInterval = 3 * time.Second
	}
	if c.Paginate.Overlap <= 0 || c.Paginate.Overlap > 1 {
		c.Paginate.Overlap = 0.9
	}
	if c.Adapter.Retries < 0 {
		c.Adapter.Retries = 0
	}
	if c.Adapter.Retries == 0 {
		c.Adapter.Retries = 2
	}
	if c.Adapter.RetryDelay <= 0 {
		c.Adapter.RetryDelay = 500 * time.Millisecond
	}
	if c.Source.MaxSize <= 0 {
		c.Source.MaxSize = 512 << 20
	}
	if c.Source.Credentials == "" {
		c.Source.Credentials = c.Remote.Credentials
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8089"
	}
	if c.Server.DB == "" {
		c.Server.DB = "progressd.db"
	}
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "json", "sqlite":
	default:
		return fmt.Errorf("config: unknown store backend %q (want json or sqlite)", c.Store.Backend)
	}
	if c.Sync.MinInterval > c.Sync.MaxInterval {
		return fmt.Errorf("config: sync min_interval %s exceeds max_interval %s", c.Sync.MinInterval, c.Sync.MaxInterval)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: log level %q: %w", s, err)
	}
	return l, nil
}

// NewLogger builds a text logger at the configured level writing to w.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := ParseLevel(c.Log.Level)
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// OpenLogFile opens the configured log file for appending, or
// StateDir-relative folio.log when none is set.
func (c *Config) OpenLogFile(stateDir string) (*os.File, error) {
	path := c.Log.File
	if path == "" {
		path = filepath.Join(stateDir, "folio.log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return f, nil
}
