// ABOUTME: Configuration loading and parsing for handoff-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete handoff-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Limits   LimitsConfig   `yaml:"limits"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds the listen address for the WebSocket/HTTP server
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds the transcript archive location.
// An empty path disables durable archiving; transcripts then live only in
// memory, matching the historical behavior.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LimitsConfig holds optional growth bounds for the conversation registry.
// Both default to zero, which means unbounded (the compatibility default).
type LimitsConfig struct {
	MaxTranscriptLines int `yaml:"max_transcript_lines"`

	ConversationTTL time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	ConversationTTLRaw string `yaml:"conversation_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
// Defaults are filled in for optional fields.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Limits.MaxTranscriptLines < 0 {
		return fmt.Errorf("limits.max_transcript_lines must not be negative")
	}
	if c.Limits.ConversationTTL < 0 {
		return fmt.Errorf("limits.conversation_ttl must not be negative")
	}

	if c.Metrics.Enabled && c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Limits.ConversationTTLRaw != "" {
		cfg.Limits.ConversationTTL, err = time.ParseDuration(cfg.Limits.ConversationTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing conversation_ttl %q: %w", cfg.Limits.ConversationTTLRaw, err)
		}
	}

	return nil
}
