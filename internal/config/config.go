// Package config persists midiport CLI settings as JSON.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/leandrodaf/midiport/sdk/contracts"
)

// Config is the on-disk configuration.
type Config struct {
	Backend      string `json:"backend,omitempty"`
	SinkCapacity int    `json:"sinkCapacity,omitempty"`
	Overflow     string `json:"overflow,omitempty"` // "drop-oldest" or "drop-newest"
	LogLevel     string `json:"logLevel,omitempty"`
	LogFile      string `json:"logFile,omitempty"`
	LastPort     string `json:"lastPort,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		SinkCapacity: 1024,
		Overflow:     contracts.DropOldest.String(),
		LogLevel:     "info",
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "midiport"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from the default path, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at path. A missing file yields the defaults;
// fields absent from the file keep their default values.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to the default path
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the config to path, creating its directory.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate rejects values the client cannot use.
func (c *Config) Validate() error {
	if c.SinkCapacity < 0 {
		return fmt.Errorf("sinkCapacity must not be negative, got %d", c.SinkCapacity)
	}
	if _, err := ParseOverflow(c.Overflow); err != nil {
		return err
	}
	return nil
}

// ParseOverflow maps a policy name to an OverflowPolicy. The empty name
// means drop-oldest.
func ParseOverflow(name string) (contracts.OverflowPolicy, error) {
	switch name {
	case "", contracts.DropOldest.String():
		return contracts.DropOldest, nil
	case contracts.DropNewest.String():
		return contracts.DropNewest, nil
	}
	return 0, fmt.Errorf("unknown overflow policy %q", name)
}

// Options converts the config into client options.
func (c *Config) Options() []contracts.Option {
	overflow, _ := ParseOverflow(c.Overflow)
	opts := []contracts.Option{
		contracts.WithLogLevel(contracts.ParseLogLevel(c.LogLevel)),
		contracts.WithSinkCapacity(c.SinkCapacity),
		contracts.WithOverflowPolicy(overflow),
	}
	if c.Backend != "" {
		opts = append(opts, contracts.WithBackend(c.Backend))
	}
	if c.LogFile != "" {
		opts = append(opts, contracts.WithLogFile(c.LogFile))
	}
	return opts
}
