package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	v.Set("config_file", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, time.Hour, cfg.ReauthInterval)
	assert.Equal(t, 10*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 5*time.Second, cfg.ProbeInterval)
	assert.False(t, cfg.Kiosk)
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
mode: debug
control_url: ws://companion.local/ws
reauth_url: http://companion.local/api/v1/reauth
reauth_interval: 30m
log_level: debug
`)
	t.Setenv("INTERCOM_KIOSK", "true")
	t.Setenv("INTERCOM_STATUS_ADDR", "127.0.0.1:9999")

	v := viper.New()
	v.Set("config_file", path)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, "ws://companion.local/ws", cfg.ControlURL)
	assert.Equal(t, "http://companion.local/api/v1/reauth", cfg.ReauthURL)
	assert.Equal(t, 30*time.Minute, cfg.ReauthInterval)
	assert.True(t, cfg.Kiosk)
	assert.Equal(t, "127.0.0.1:9999", cfg.StatusAddr)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
}

func TestLoad_ExplicitValuesWin(t *testing.T) {
	path := writeConfig(t, "control_url: ws://from-file/ws\n")
	v := viper.New()
	v.Set("config_file", path)
	v.Set("control_url", "ws://from-flag/ws")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "ws://from-flag/ws", cfg.ControlURL)
}

func TestValidate(t *testing.T) {
	valid := Config{
		Mode:             "release",
		LogLevel:         "info",
		ReauthInterval:   time.Hour,
		HandshakeTimeout: time.Second,
		WriteTimeout:     time.Second,
		ProbeInterval:    time.Second,
		EventBuffer:      1,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Mode = "prod" }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
		{"zero reauth interval", func(c *Config) { c.ReauthInterval = 0 }},
		{"zero handshake timeout", func(c *Config) { c.HandshakeTimeout = 0 }},
		{"negative write timeout", func(c *Config) { c.WriteTimeout = -time.Second }},
		{"zero probe interval", func(c *Config) { c.ProbeInterval = 0 }},
		{"no event buffer", func(c *Config) { c.EventBuffer = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
