package editor

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the vedit configuration. Zero values take defaults.
type Config struct {
	Addr        string        `yaml:"addr"`
	JournalPath string        `yaml:"journal_path"` // empty disables the journal
	Session     SessionConfig `yaml:"session"`
	Import      ImportConfig  `yaml:"import"`
	Preview     PreviewConfig `yaml:"preview"`
	MCP         MCPConfig     `yaml:"mcp"`
}

// SessionConfig bounds the session hub.
type SessionConfig struct {
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	MaxSessions   int           `yaml:"max_sessions"`
}

// ImportConfig controls document import.
type ImportConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
	Sanitize bool  `yaml:"sanitize"`
}

// PreviewConfig controls the headless browser used for screenshots and
// element lookups. It is disabled by default.
type PreviewConfig struct {
	Enabled         bool          `yaml:"enabled"`
	RemoteURL       string        `yaml:"remote_url"`
	MemoryLimit     int64         `yaml:"memory_limit"`
	RecycleInterval time.Duration `yaml:"recycle_interval"`
}

// MCPConfig toggles the MCP endpoint.
type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

func (c *Config) defaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.Session.IdleTimeout <= 0 {
		c.Session.IdleTimeout = 2 * time.Hour
	}
	if c.Session.SweepInterval <= 0 {
		c.Session.SweepInterval = time.Minute
	}
	if c.Session.MaxSessions <= 0 {
		c.Session.MaxSessions = 256
	}
	if c.Import.MaxBytes <= 0 {
		c.Import.MaxBytes = 5 << 20
	}
	if c.Preview.MemoryLimit <= 0 {
		c.Preview.MemoryLimit = 1 << 30
	}
	if c.Preview.RecycleInterval <= 0 {
		c.Preview.RecycleInterval = 4 * time.Hour
	}
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{MCP: MCPConfig{Enabled: true}}
	cfg.defaults()
	return cfg
}

// LoadConfigFile reads a YAML config file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{MCP: MCPConfig{Enabled: true}}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("editor: config %s: %w", path, err)
	}
	cfg.defaults()
	return cfg, nil
}
