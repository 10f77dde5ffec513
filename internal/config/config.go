package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// HTTP
	HTTPHost         string        `envconfig:"HTTP_HOST" default:"0.0.0.0"`
	HTTPPort         int           `envconfig:"HTTP_PORT" default:"8000"`
	HTTPReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"30s"`
	HTTPWriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`
	CORSOrigins      string        `envconfig:"CORS_ORIGINS" default:"*"`
	ShutdownTimeout  time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`

	// Storage
	DataDir     string `envconfig:"DATA_DIR" default:"data/projects"`
	TemplateDir string `envconfig:"TEMPLATE_DIR"` // optional seed directory for new projects

	// Collaborator
	ClaudeBin             string        `envconfig:"CLAUDE_BIN"` // empty = auto-detect
	ClaudeTimeout         time.Duration `envconfig:"CLAUDE_TIMEOUT" default:"5m"`
	ClaudeSkipPermissions bool          `envconfig:"CLAUDE_SKIP_PERMISSIONS" default:"true"`

	// Jobs
	JobQueueSize int `envconfig:"JOB_QUEUE_SIZE" default:"1000"`
	JobRetention int `envconfig:"JOB_RETENTION" default:"0"` // 0 keeps every job
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}

// IsDevelopment returns true when running in the development environment.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// TemplatesEnabled returns true if new projects should be seeded from TemplateDir.
func (c *Config) TemplatesEnabled() bool {
	return c.TemplateDir != ""
}

// Validate checks values envconfig cannot express as constraints.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR must not be empty")
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT %d out of range", c.HTTPPort)
	}
	if c.ClaudeTimeout <= 0 {
		return fmt.Errorf("CLAUDE_TIMEOUT must be positive, got %s", c.ClaudeTimeout)
	}
	if c.JobQueueSize <= 0 {
		return fmt.Errorf("JOB_QUEUE_SIZE must be positive, got %d", c.JobQueueSize)
	}
	if c.JobRetention < 0 {
		return fmt.Errorf("JOB_RETENTION must not be negative, got %d", c.JobRetention)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return LoadWithPrefix("")
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		if prefix == "" {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return nil, fmt.Errorf("loading config with prefix %s: %w", prefix, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
