// ABOUTME: Configuration loading and parsing for helpdesk-console
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete helpdesk-console configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Journal JournalConfig `yaml:"journal"`
	Timing  TimingConfig  `yaml:"timing"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds backend endpoint configuration
type ServerConfig struct {
	APIBase string `yaml:"api_base"` // e.g. https://support.example.com
	WSBase  string `yaml:"ws_base"`  // e.g. wss://support.example.com
}

// AuthConfig holds the agent's access token. The token is issued by the
// backend's login flow; the console only consumes it.
type AuthConfig struct {
	Token string `yaml:"token"`
}

// JournalConfig holds the local session/message cache configuration
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TimingConfig holds the intervals driving reconnection, polling and alerts
type TimingConfig struct {
	ReconnectDelay       time.Duration `yaml:"-"`
	SessionPollInterval  time.Duration `yaml:"-"`
	BackstopInterval     time.Duration `yaml:"-"`
	TimeoutPollInterval  time.Duration `yaml:"-"`
	AlertDismiss         time.Duration `yaml:"-"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`

	// Raw string values for YAML unmarshaling
	ReconnectDelayRaw      string `yaml:"reconnect_delay"`
	SessionPollIntervalRaw string `yaml:"session_poll_interval"`
	BackstopIntervalRaw    string `yaml:"backstop_interval"`
	TimeoutPollIntervalRaw string `yaml:"timeout_poll_interval"`
	AlertDismissRaw        string `yaml:"alert_dismiss"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default timing values. The polling intervals match what the backend
// expects from its web console.
const (
	DefaultReconnectDelay       = 3 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultSessionPollInterval  = 10 * time.Second
	DefaultBackstopInterval     = 30 * time.Second
	DefaultTimeoutPollInterval  = 10 * time.Second
	DefaultAlertDismiss         = 3 * time.Second
)

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

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns a Config with all timing defaults applied, for callers
// that configure the endpoints programmatically.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
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
func (c *Config) Validate() error {
	if c.Server.APIBase == "" {
		return fmt.Errorf("server.api_base is required")
	}
	if c.Server.WSBase == "" {
		return fmt.Errorf("server.ws_base is required")
	}
	if c.Auth.Token == "" {
		return fmt.Errorf("auth.token is required")
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("journal.path is required when journal is enabled")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Timing.ReconnectDelay == 0 {
		c.Timing.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Timing.MaxReconnectAttempts == 0 {
		c.Timing.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Timing.SessionPollInterval == 0 {
		c.Timing.SessionPollInterval = DefaultSessionPollInterval
	}
	if c.Timing.BackstopInterval == 0 {
		c.Timing.BackstopInterval = DefaultBackstopInterval
	}
	if c.Timing.TimeoutPollInterval == 0 {
		c.Timing.TimeoutPollInterval = DefaultTimeoutPollInterval
	}
	if c.Timing.AlertDismiss == 0 {
		c.Timing.AlertDismiss = DefaultAlertDismiss
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	durations := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{cfg.Timing.ReconnectDelayRaw, "reconnect_delay", &cfg.Timing.ReconnectDelay},
		{cfg.Timing.SessionPollIntervalRaw, "session_poll_interval", &cfg.Timing.SessionPollInterval},
		{cfg.Timing.BackstopIntervalRaw, "backstop_interval", &cfg.Timing.BackstopInterval},
		{cfg.Timing.TimeoutPollIntervalRaw, "timeout_poll_interval", &cfg.Timing.TimeoutPollInterval},
		{cfg.Timing.AlertDismissRaw, "alert_dismiss", &cfg.Timing.AlertDismiss},
	}

	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", d.name, d.raw, err)
		}
		*d.dst = parsed
	}

	return nil
}
