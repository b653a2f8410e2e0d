package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"coldstash/internal/scheduler"
)

// Config is the client configuration, loaded from a YAML file in the
// state directory.
type Config struct {
	Endpoint string `yaml:"endpoint"`
	Region   string `yaml:"region"`
	BaseDir  string `yaml:"base_dir"`

	Log struct {
		Level string `yaml:"level,omitempty"`
	} `yaml:"log,omitempty"`

	// Tiers overrides the per-tier upload concurrency. Zero values keep
	// the core-count defaults.
	Tiers struct {
		VerySmall int `yaml:"very_small,omitempty"`
		Small     int `yaml:"small,omitempty"`
		Medium    int `yaml:"medium,omitempty"`
		Large     int `yaml:"large,omitempty"`
	} `yaml:"tiers,omitempty"`
}

func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("endpoint must be an absolute URL")
	}
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	if c.BaseDir == "" {
		return fmt.Errorf("base_dir is required")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	return nil
}

// Limits merges the configured tier overrides over the core-count
// defaults.
func (c *Config) Limits(cores int) scheduler.Limits {
	l := scheduler.DefaultLimits(cores)
	if c.Tiers.VerySmall > 0 {
		l.VerySmall = c.Tiers.VerySmall
	}
	if c.Tiers.Small > 0 {
		l.Small = c.Tiers.Small
	}
	if c.Tiers.Medium > 0 {
		l.Medium = c.Tiers.Medium
	}
	if c.Tiers.Large > 0 {
		l.Large = c.Tiers.Large
	}
	return l
}

// RecordDir is where upload records persist.
func (c *Config) RecordDir() string {
	return filepath.Join(c.BaseDir, "uploads")
}

// LogPath is the structured log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.BaseDir, "logs", "coldstash.log")
}

// LockPath guards against two client processes sharing one state
// directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.BaseDir, "coldstash.lock")
}
