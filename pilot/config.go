package pilot

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	Listen        string              `yaml:"listen"`
	SnapshotMode  string              `yaml:"snapshot_mode"` // ai | expect
	Browser       BrowserConfig       `yaml:"browser"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`  // attach to an existing Chrome instead of launching
	Stealth          string        `yaml:"stealth"` // headless | headful
	XvfbDisplay      string        `yaml:"xvfb_display"`
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
}

// ObservabilityConfig controls the local event database.
type ObservabilityConfig struct {
	Path              string        `yaml:"path"` // empty disables persistence
	RetentionDays     int           `yaml:"retention_days"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pilot: read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("pilot: parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8750"
	}
	if c.SnapshotMode == "" {
		c.SnapshotMode = "ai"
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Observability.RetentionDays <= 0 {
		c.Observability.RetentionDays = 14
	}
	if c.Observability.HeartbeatInterval <= 0 {
		c.Observability.HeartbeatInterval = 15 * time.Second
	}
}
