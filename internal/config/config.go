// Package config loads the service configuration and the seed definition
// files. Both are YAML with strict field validation so a typo in a key is a
// load error, not a silently ignored setting.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when a field is absent from the config file.
const (
	DefaultDatabasePath   = "millflow.db"
	DefaultHTTPAddr       = ":8080"
	DefaultBatchLimit     = 10
	DefaultHandlerTimeout = 30 * time.Second
)

// Config is the service configuration.
type Config struct {
	// DatabasePath is the SQLite database file location.
	DatabasePath string `yaml:"database_path"`

	// HTTPAddr is the listen address for the HTTP API.
	HTTPAddr string `yaml:"http_addr"`

	// BatchLimit caps how many pending events one dispatch pass claims.
	BatchLimit int `yaml:"batch_limit"`

	// HandlerTimeout bounds a single handler action's execution,
	// e.g. "30s" or "2m".
	HandlerTimeout Duration `yaml:"handler_timeout"`
}

// Duration wraps time.Duration with YAML parsing of strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns a Config with every field at its default.
func Default() Config {
	return Config{
		DatabasePath:   DefaultDatabasePath,
		HTTPAddr:       DefaultHTTPAddr,
		BatchLimit:     DefaultBatchLimit,
		HandlerTimeout: Duration(DefaultHandlerTimeout),
	}
}

// Load reads and parses a config YAML file, filling absent fields with
// defaults. A missing file is not an error; it yields the defaults, so the
// binary runs without any config file at all.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("http_addr is required")
	}
	if c.BatchLimit <= 0 {
		return fmt.Errorf("batch_limit must be positive, got %d", c.BatchLimit)
	}
	if c.HandlerTimeout <= 0 {
		return fmt.Errorf("handler_timeout must be positive")
	}
	return nil
}
