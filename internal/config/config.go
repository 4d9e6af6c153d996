// Package config handles configuration loading and validation for retouch.
package config

import (
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the retouch configuration.
type Config struct {
	Backend    BackendConfig    `toml:"backend" json:"backend" yaml:"backend"`
	Brush      BrushConfig      `toml:"brush" json:"brush" yaml:"brush"`
	Sync       SyncConfig       `toml:"sync" json:"sync" yaml:"sync"`
	Display    DisplayConfig    `toml:"display" json:"display" yaml:"display"`
	Generation GenerationConfig `toml:"generation" json:"generation" yaml:"generation"`
	Logging    LoggingConfig    `toml:"logging" json:"logging" yaml:"logging"`
}

// BackendConfig configures the processing backend connection.
type BackendConfig struct {
	URL        string            `toml:"url" json:"url" yaml:"url"`
	TimeoutSec int               `toml:"timeout_sec" json:"timeout_sec" yaml:"timeout_sec"`
	Headers    map[string]string `toml:"headers,omitempty" json:"headers,omitempty" yaml:"headers,omitempty"`
}

// BrushConfig holds the initial brush settings.
type BrushConfig struct {
	Size  float64 `toml:"size" json:"size" yaml:"size"`
	Color string  `toml:"color" json:"color" yaml:"color"`
}

// SyncConfig configures the mutation queues.
type SyncConfig struct {
	MaskDebounceMs int `toml:"mask_debounce_ms" json:"mask_debounce_ms" yaml:"mask_debounce_ms"`
}

// DisplayConfig configures the layer displays and rendering.
type DisplayConfig struct {
	FadeMs   int    `toml:"fade_ms" json:"fade_ms" yaml:"fade_ms"`
	PoolSize int    `toml:"pool_size" json:"pool_size" yaml:"pool_size"`
	Effect   string `toml:"effect" json:"effect" yaml:"effect"`
}

// GenerationConfig configures the translation model.
type GenerationConfig struct {
	Model          string       `toml:"model" json:"model" yaml:"model"`
	Language       string       `toml:"language" json:"language" yaml:"language"`
	PollAttempts   int          `toml:"poll_attempts" json:"poll_attempts" yaml:"poll_attempts"`
	PollIntervalMs int          `toml:"poll_interval_ms" json:"poll_interval_ms" yaml:"poll_interval_ms"`
	OpenAI         OpenAIConfig `toml:"openai" json:"openai" yaml:"openai"`
}

// OpenAIConfig configures the OpenAI-compatible translation endpoint.
type OpenAIConfig struct {
	Endpoint string `toml:"endpoint" json:"endpoint" yaml:"endpoint"`
	APIKey   string `toml:"api_key" json:"api_key" yaml:"api_key"`
	Model    string `toml:"model" json:"model" yaml:"model"`
	Prompt   string `toml:"prompt" json:"prompt" yaml:"prompt"`
}

// LoggingConfig configures the log output.
type LoggingConfig struct {
	Level  string `toml:"level" json:"level" yaml:"level"`
	Format string `toml:"format" json:"format" yaml:"format"`
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	out := *c
	out.Backend.Headers = maps.Clone(c.Backend.Headers)
	return &out
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with RETOUCH_.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("RETOUCH_BACKEND_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("RETOUCH_OPENAI_ENDPOINT"); v != "" {
		c.Generation.OpenAI.Endpoint = v
	}
	if v := os.Getenv("RETOUCH_OPENAI_API_KEY"); v != "" {
		c.Generation.OpenAI.APIKey = v
	}
	if v := os.Getenv("RETOUCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

// BackendTimeout returns the per-request backend timeout.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSec) * time.Second
}

// MaskDebounce returns the inactivity window of the mask queue.
func (c *Config) MaskDebounce() time.Duration {
	return time.Duration(c.Sync.MaskDebounceMs) * time.Millisecond
}

// FadeDuration returns the display cross-fade duration.
func (c *Config) FadeDuration() time.Duration {
	return time.Duration(c.Display.FadeMs) * time.Millisecond
}

// PollInterval returns the delay between model readiness polls.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Generation.PollIntervalMs) * time.Millisecond
}

// LogLevel returns the configured slog level.
func (c *Config) LogLevel() slog.Level {
	switch c.Logging.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger returns a logger writing to w in the configured format. level,
// when non-nil, is set to the configured level and may be changed later.
func (c *Config) NewLogger(w io.Writer, level *slog.LevelVar) *slog.Logger {
	if level == nil {
		level = new(slog.LevelVar)
	}
	level.Set(c.LogLevel())
	opts := &slog.HandlerOptions{Level: level}
	if c.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ConfigDir returns the retouch configuration directory.
// Uses RETOUCH_CONFIG_DIR when set.
func ConfigDir() string {
	if v := os.Getenv("RETOUCH_CONFIG_DIR"); v != "" {
		return v
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "retouch")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".retouch")
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}
