// ABOUTME: Tests for YAML config loading, env expansion and duration parsing
// ABOUTME: Covers defaults, validation failures and missing files

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  api_base: https://support.example.com
  ws_base: wss://support.example.com
auth:
  token: test-token
journal:
  enabled: true
  path: /tmp/helpdesk.db
timing:
  reconnect_delay: 5s
  max_reconnect_attempts: 3
  session_poll_interval: 15s
  backstop_interval: 1m
  timeout_poll_interval: 20s
  alert_dismiss: 2s
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://support.example.com", cfg.Server.APIBase)
	assert.Equal(t, "wss://support.example.com", cfg.Server.WSBase)
	assert.Equal(t, "test-token", cfg.Auth.Token)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Timing.ReconnectDelay)
	assert.Equal(t, 3, cfg.Timing.MaxReconnectAttempts)
	assert.Equal(t, 15*time.Second, cfg.Timing.SessionPollInterval)
	assert.Equal(t, time.Minute, cfg.Timing.BackstopInterval)
	assert.Equal(t, 20*time.Second, cfg.Timing.TimeoutPollInterval)
	assert.Equal(t, 2*time.Second, cfg.Timing.AlertDismiss)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_TimingDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  api_base: https://support.example.com
  ws_base: wss://support.example.com
auth:
  token: test-token
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultReconnectDelay, cfg.Timing.ReconnectDelay)
	assert.Equal(t, DefaultMaxReconnectAttempts, cfg.Timing.MaxReconnectAttempts)
	assert.Equal(t, DefaultSessionPollInterval, cfg.Timing.SessionPollInterval)
	assert.Equal(t, DefaultBackstopInterval, cfg.Timing.BackstopInterval)
	assert.Equal(t, DefaultTimeoutPollInterval, cfg.Timing.TimeoutPollInterval)
	assert.Equal(t, DefaultAlertDismiss, cfg.Timing.AlertDismiss)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("HELPDESK_TEST_TOKEN", "secret-from-env")
	path := writeConfig(t, `
server:
  api_base: https://support.example.com
  ws_base: wss://support.example.com
auth:
  token: ${HELPDESK_TEST_TOKEN}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-from-env", cfg.Auth.Token)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
server:
  api_base: https://support.example.com
  ws_base: wss://support.example.com
auth:
  token: test-token
timing:
  reconnect_delay: not-a-duration
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reconnect_delay")
}

func TestValidate_RequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing api_base", func(c *Config) { c.Server.APIBase = "" }, "api_base"},
		{"missing ws_base", func(c *Config) { c.Server.WSBase = "" }, "ws_base"},
		{"missing token", func(c *Config) { c.Auth.Token = "" }, "token"},
		{"journal enabled without path", func(c *Config) { c.Journal.Enabled = true; c.Journal.Path = "" }, "journal.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Server: ServerConfig{APIBase: "https://a", WSBase: "wss://a"},
				Auth:   AuthConfig{Token: "tok"},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultReconnectDelay, cfg.Timing.ReconnectDelay)
	assert.Equal(t, DefaultMaxReconnectAttempts, cfg.Timing.MaxReconnectAttempts)
}
