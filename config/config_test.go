package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "countbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestConfig_Validate(t *testing.T) {
	valid := Default()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "remote write", mutate: func(c *Config) { c.Push.Protocol = "remote_write" }},
		{name: "unknown protocol", mutate: func(c *Config) { c.Push.Protocol = "statsd" }, wantErr: true},
		{name: "zero interval", mutate: func(c *Config) { c.Push.Interval = 0 }, wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.Push.Timeout = -time.Second }, wantErr: true},
		{name: "empty listener", mutate: func(c *Config) { c.Listener.Addr = "" }, wantErr: true},
		{name: "tls pair", mutate: func(c *Config) { c.Listener.TLSCert, c.Listener.TLSKey = "c.pem", "k.pem" }},
		{name: "tls cert only", mutate: func(c *Config) { c.Listener.TLSCert = "c.pem" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()
	if cfg.Push.Interval != 60*time.Second {
		t.Errorf("Push.Interval default = %v, want %v", cfg.Push.Interval, 60*time.Second)
	}
	if cfg.Push.Timeout != 30*time.Second {
		t.Errorf("Push.Timeout default = %v, want %v", cfg.Push.Timeout, 30*time.Second)
	}
	if cfg.Push.Protocol != "pushgateway" {
		t.Errorf("Push.Protocol default = %v, want %v", cfg.Push.Protocol, "pushgateway")
	}
	if cfg.Listener.Addr != ":8080" {
		t.Errorf("Listener.Addr default = %v, want %v", cfg.Listener.Addr, ":8080")
	}
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
}

func TestDefault_PushEnabled(t *testing.T) {
	assert.True(t, Default().Push.Enabled)
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `source: Test
instance: host-1
push:
  interval: 15s
  schedule: "*/5 * * * *"
  timeout: 5s
  timestamps: true
  connection:
    protocol: http
    host: localhost
    port: 9091
    username: pusher
    password: secret
listener:
  addr: 127.0.0.1:9000
logging:
  level: debug
  format: text
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "Test", cfg.Source)
	assert.Equal(t, "host-1", cfg.Instance)
	assert.True(t, cfg.Push.Enabled, "push stays enabled when the key is absent")
	assert.Equal(t, "pushgateway", cfg.Push.Protocol)
	assert.Equal(t, 15*time.Second, cfg.Push.Interval)
	assert.Equal(t, "*/5 * * * *", cfg.Push.Schedule)
	assert.Equal(t, 5*time.Second, cfg.Push.Timeout)
	assert.True(t, cfg.Push.Timestamps)
	assert.Equal(t, "localhost", cfg.Push.Connection.Host)
	assert.Equal(t, 9091, cfg.Push.Connection.Port)
	assert.Equal(t, "pusher", cfg.Push.Connection.Username)
	assert.Equal(t, "127.0.0.1:9000", cfg.Listener.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
}

func TestLoadConfig_PushDisabled(t *testing.T) {
	path := writeConfig(t, `push:
  enabled: false
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, cfg.Push.Enabled)
	assert.Equal(t, 60*time.Second, cfg.Push.Interval)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `source: FromFile
push:
  enabled: true
  connection:
    uri: http://file:9091
`)

	t.Setenv("COUNTBRIDGE_SOURCE", "FromEnv")
	t.Setenv("COUNTBRIDGE_PUSH__ENABLED", "false")
	t.Setenv("COUNTBRIDGE_PUSH__CONNECTION__URI", "http://env:9091")
	t.Setenv("COUNTBRIDGE_LISTENER__ADDR", ":9999")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "FromEnv", cfg.Source)
	assert.False(t, cfg.Push.Enabled)
	assert.Equal(t, "http://env:9091", cfg.Push.Connection.URI)
	assert.Equal(t, ":9999", cfg.Listener.Addr)
}

func TestLoadConfig_NoFile(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid protocol", func(t *testing.T) {
		path := writeConfig(t, `push:
  protocol: carrier-pigeon
`)
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfig(t, "push: [unterminated\n")
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})
}

func TestConfig_Redacted(t *testing.T) {
	cfg := Default()
	cfg.Push.Connection.Username = "pusher"
	cfg.Push.Connection.Password = "secret"

	r := cfg.Redacted()
	assert.Equal(t, "REDACTED", r.Push.Connection.Password)
	assert.Equal(t, "pusher", r.Push.Connection.Username)
	assert.Equal(t, "secret", cfg.Push.Connection.Password, "receiver is untouched")
}

func TestConnectionConfig_Resolve(t *testing.T) {
	tests := []struct {
		name    string
		conn    ConnectionConfig
		want    string
		wantErr error
	}{
		{name: "uri", conn: ConnectionConfig{URI: "http://gw:9091"}, want: "http://gw:9091"},
		{name: "uri trailing slash", conn: ConnectionConfig{URI: "https://gw.example.com/"}, want: "https://gw.example.com"},
		{name: "uri wins over parts", conn: ConnectionConfig{URI: "http://a:1", Host: "b", Port: 2}, want: "http://a:1"},
		{name: "parts", conn: ConnectionConfig{Protocol: "http", Host: "localhost", Port: 9091}, want: "http://localhost:9091"},
		{name: "default protocol", conn: ConnectionConfig{Host: "localhost", Port: 9091}, want: "http://localhost:9091"},
		{name: "no port", conn: ConnectionConfig{Protocol: "https", Host: "gw"}, want: "https://gw"},
		{name: "nothing", conn: ConnectionConfig{}, wantErr: ErrNoConnection},
		{name: "bad scheme", conn: ConnectionConfig{URI: "ftp://gw"}, wantErr: errAny},
		{name: "uri without host", conn: ConnectionConfig{URI: "http://"}, wantErr: errAny},
		{name: "bad protocol", conn: ConnectionConfig{Protocol: "tcp", Host: "gw"}, wantErr: errAny},
		{name: "bad port", conn: ConnectionConfig{Host: "gw", Port: 70000}, wantErr: errAny},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.conn.Resolve()
			if tt.wantErr != nil {
				require.Error(t, err)
				if !errors.Is(tt.wantErr, errAny) {
					assert.ErrorIs(t, err, tt.wantErr)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// errAny marks cases where any error is acceptable.
var errAny = errors.New("any error")
