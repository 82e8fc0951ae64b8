// Package config loads the countbridge configuration.
//
// Configuration is read from a YAML file and then overlaid with environment
// variables of the form COUNTBRIDGE_<SECTION>__<KEY>, for example
// COUNTBRIDGE_PUSH__ENABLED=false or COUNTBRIDGE_PUSH__CONNECTION__URI=http://gw:9091.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/nomis52/countbridge/logging"
)

const (
	// EnvPrefix is the prefix of environment variable overrides.
	EnvPrefix = "COUNTBRIDGE_"

	defaultPushInterval = 60 * time.Second
	defaultPushTimeout  = 30 * time.Second
	defaultPushProtocol = "pushgateway"
	defaultListenAddr   = ":8080"

	redacted = "REDACTED"
)

// Config represents the complete application configuration
type Config struct {
	// Source is the job label. Pull output carries it only when Instance is
	// also set; the push path falls back to "unknown".
	Source string `yaml:"source"`
	// Instance is the instance label. The push path falls back to the hostname.
	Instance string         `yaml:"instance"`
	Push     PushConfig     `yaml:"push"`
	Listener ListenerConfig `yaml:"listener"`
	Logging  logging.Config `yaml:"logging"`
}

// PushConfig controls periodic delivery to a remote endpoint.
type PushConfig struct {
	Enabled bool `yaml:"enabled"`
	// Protocol is "pushgateway" or "remote_write".
	Protocol string        `yaml:"protocol"`
	Interval time.Duration `yaml:"interval"`
	// Schedule is a cron expression. When set it replaces Interval.
	Schedule   string           `yaml:"schedule"`
	Timeout    time.Duration    `yaml:"timeout"`
	Timestamps bool             `yaml:"timestamps"`
	Connection ConnectionConfig `yaml:"connection"`
}

// ListenerConfig holds HTTP server listener settings.
type ListenerConfig struct {
	Addr string `yaml:"addr"`
	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
}

// Default returns a Config with every default applied. Push is enabled.
func Default() Config {
	cfg := Config{
		Push: PushConfig{Enabled: true},
	}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults sets reasonable default values for optional fields
func (c *Config) SetDefaults() {
	if c.Push.Protocol == "" {
		c.Push.Protocol = defaultPushProtocol
	}
	if c.Push.Interval == 0 {
		c.Push.Interval = defaultPushInterval
	}
	if c.Push.Timeout == 0 {
		c.Push.Timeout = defaultPushTimeout
	}
	if c.Listener.Addr == "" {
		c.Listener.Addr = defaultListenAddr
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

// Validate performs basic validation on the configuration. Connection
// parameters are not checked here: a bad connection disables pushing at
// runtime instead of failing startup.
func (c *Config) Validate() error {
	switch c.Push.Protocol {
	case "pushgateway", "remote_write":
	default:
		return fmt.Errorf("push protocol must be pushgateway or remote_write, got %q", c.Push.Protocol)
	}
	if c.Push.Interval <= 0 {
		return fmt.Errorf("push interval must be positive")
	}
	if c.Push.Timeout <= 0 {
		return fmt.Errorf("push timeout must be positive")
	}
	if c.Listener.Addr == "" {
		return fmt.Errorf("listener address is required")
	}
	if (c.Listener.TLSCert == "") != (c.Listener.TLSKey == "") {
		return fmt.Errorf("listener tls_cert and tls_key must be set together")
	}
	return nil
}

// Redacted returns a copy of the config with secrets replaced.
func (c Config) Redacted() Config {
	if c.Push.Connection.Password != "" {
		c.Push.Connection.Password = redacted
	}
	return c
}

// LoadConfig reads the YAML config file at path, applies environment
// overrides, defaults and validation.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// COUNTBRIDGE_PUSH__CONNECTION__URI -> push.connection.uri
	envTransformer := func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformer), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	// Unmarshal over the defaults so that absent keys keep them.
	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
