package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ErrNoConnection is returned when neither a URI nor a host is configured.
var ErrNoConnection = errors.New("connection is not configured")

// ConnectionConfig locates the push endpoint, either by URI or by its parts.
type ConnectionConfig struct {
	URI      string `yaml:"uri"`
	Protocol string `yaml:"protocol"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Resolve returns the base URI of the endpoint. An explicit URI wins over
// protocol, host and port.
func (c ConnectionConfig) Resolve() (string, error) {
	if c.URI != "" {
		u, err := url.Parse(c.URI)
		if err != nil {
			return "", fmt.Errorf("parsing connection uri: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return "", fmt.Errorf("connection uri %q: scheme must be http or https", c.URI)
		}
		if u.Host == "" {
			return "", fmt.Errorf("connection uri %q: missing host", c.URI)
		}
		return strings.TrimSuffix(u.String(), "/"), nil
	}

	if c.Host == "" {
		return "", ErrNoConnection
	}

	protocol := c.Protocol
	if protocol == "" {
		protocol = "http"
	}
	if protocol != "http" && protocol != "https" {
		return "", fmt.Errorf("connection protocol must be http or https, got %q", protocol)
	}
	if c.Port < 0 || c.Port > 65535 {
		return "", fmt.Errorf("connection port %d out of range", c.Port)
	}

	host := c.Host
	if c.Port != 0 {
		host += ":" + strconv.Itoa(c.Port)
	}
	return protocol + "://" + host, nil
}
