package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode             string        `mapstructure:"mode"`
	LogLevel         string        `mapstructure:"log_level"`
	StatusAddr       string        `mapstructure:"status_addr"`
	ControlURL       string        `mapstructure:"control_url"`
	ReauthURL        string        `mapstructure:"reauth_url"`
	Kiosk            bool          `mapstructure:"kiosk"`
	Username         string        `mapstructure:"username"`
	ReauthInterval   time.Duration `mapstructure:"reauth_interval"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	ProbeAddr        string        `mapstructure:"probe_addr"`
	ProbeInterval    time.Duration `mapstructure:"probe_interval"`
	EventBuffer      int           `mapstructure:"event_buffer"`
}

// Load reads config/config.<CONFIG_ENV>.yaml (or config_file when set),
// then applies INTERCOM_* environment overrides and anything already set
// on v, such as bound command line flags.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	v.SetConfigType("yaml")
	v.SetEnvPrefix("INTERCOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("status_addr", "127.0.0.1:8090")
	v.SetDefault("control_url", "")
	v.SetDefault("reauth_url", "")
	v.SetDefault("kiosk", false)
	v.SetDefault("username", "")
	v.SetDefault("reauth_interval", "1h")
	v.SetDefault("handshake_timeout", "10s")
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("probe_addr", "1.1.1.1:443")
	v.SetDefault("probe_interval", "5s")
	v.SetDefault("event_buffer", 16)

	fileName := v.GetString("config_file")
	if fileName == "" {
		env := v.GetString("config_env")
		if env == "" {
			env = os.Getenv("CONFIG_ENV")
		}
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Str("status_addr", cfg.StatusAddr).
		Bool("kiosk", cfg.Kiosk).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Mode {
	case "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("mode %q: want debug, release or test", c.Mode))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.ReauthInterval <= 0 {
		errs = append(errs, errors.New("reauth_interval must be positive"))
	}
	if c.HandshakeTimeout <= 0 {
		errs = append(errs, errors.New("handshake_timeout must be positive"))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, errors.New("write_timeout must be positive"))
	}
	if c.ProbeInterval <= 0 {
		errs = append(errs, errors.New("probe_interval must be positive"))
	}
	if c.EventBuffer < 1 {
		errs = append(errs, errors.New("event_buffer must be at least 1"))
	}
	return errors.Join(errs...)
}

// Level returns the parsed log level, info when unset.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
