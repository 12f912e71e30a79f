// Package config provides configuration file support for carestore.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the carestore configuration.
type Config struct {
	Backend   string          `yaml:"backend"` // file, sqlite
	Lock      LockConfig      `yaml:"lock"`
	Retention RetentionConfig `yaml:"retention"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LockConfig configures the lock coordinator.
type LockConfig struct {
	AcquireTimeout string `yaml:"acquire_timeout"`
	LeaseTTL       string `yaml:"lease_ttl"`
	PollInterval   string `yaml:"poll_interval"`
}

// RetentionConfig configures the session retention sweep.
type RetentionConfig struct {
	MaxSessionAge string `yaml:"max_session_age"`
	SweepSchedule string `yaml:"sweep_schedule"` // standard 5-field cron, UTC
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Backend: "file",
		Lock: LockConfig{
			AcquireTimeout: "5s",
			LeaseTTL:       "30s",
			PollInterval:   "25ms",
		},
		Retention: RetentionConfig{
			MaxSessionAge: "168h",
			SweepSchedule: "0 3 * * *",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from <storeDir>/config.yaml.
// Returns default config if the file doesn't exist.
func Load(storeDir string) (*Config, error) {
	cfg := Default()
	cfgPath := filepath.Join(storeDir, "config.yaml")

	data, err := os.ReadFile(cfgPath)
	if os.IsNotExist(err) {
		return cfg, nil // no config file is OK, use defaults
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes configuration to <storeDir>/config.yaml.
func Save(storeDir string, cfg *Config) error {
	cfgPath := filepath.Join(storeDir, "config.yaml")

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(cfgPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// MaxSessionAge parses the retention age, falling back to 7 days.
func (c *Config) MaxSessionAge() time.Duration {
	if d, err := time.ParseDuration(c.Retention.MaxSessionAge); err == nil && d > 0 {
		return d
	}
	return 7 * 24 * time.Hour
}

// AcquireTimeout parses the lock acquire timeout, falling back to 5s.
func (c *Config) AcquireTimeout() time.Duration {
	if d, err := time.ParseDuration(c.Lock.AcquireTimeout); err == nil && d > 0 {
		return d
	}
	return 5 * time.Second
}

// LeaseTTL parses the lock lease TTL, falling back to 30s.
func (c *Config) LeaseTTL() time.Duration {
	if d, err := time.ParseDuration(c.Lock.LeaseTTL); err == nil && d > 0 {
		return d
	}
	return 30 * time.Second
}

// PollInterval parses the lock poll interval, falling back to 25ms.
func (c *Config) PollInterval() time.Duration {
	if d, err := time.ParseDuration(c.Lock.PollInterval); err == nil && d > 0 {
		return d
	}
	return 25 * time.Millisecond
}
