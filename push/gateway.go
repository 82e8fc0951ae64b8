// Package push delivers counter snapshots to remote collectors.
//
// Two protocols are supported:
//   - Gateway: HTTP PUT of the text exposition format to a Prometheus
//     Pushgateway, grouped by job and instance
//   - RemoteWriter: Prometheus remote write (snappy compressed protobuf),
//     as accepted by VictoriaMetrics and Prometheus itself
//
// Both satisfy cache.Saver. Neither retries: a failed push returns an error
// and the next scheduled flush sends fresh data.
package push

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/nomis52/countbridge/counters"
	"github.com/nomis52/countbridge/render"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests.
	DefaultTimeout = 30 * time.Second

	// UnknownJob is used when no job name is configured.
	UnknownJob = "unknown"

	// maxErrorBody bounds how much of a failed response is kept in the error.
	maxErrorBody = 4096
)

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	// URL is the base URL of the Pushgateway (e.g., "http://localhost:9091").
	URL string
	// Job is the job grouping key. Defaults to UnknownJob.
	Job string
	// Instance is the instance grouping key. Defaults to the local hostname.
	Instance string
	// Username and Password enable HTTP basic auth when Username is set.
	Username string
	Password string
	// Timeout is the HTTP client timeout. Defaults to DefaultTimeout.
	Timeout time.Duration
	// Timestamps includes each sample's update time in the pushed body.
	Timestamps bool
}

// Gateway pushes snapshots to a Pushgateway.
type Gateway struct {
	url        string
	httpClient *http.Client
	username   string
	password   string
	timestamps bool
	logger     *slog.Logger
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) GatewayOption {
	return func(g *Gateway) {
		g.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		g.logger = l
	}
}

// NewGateway creates a Gateway. It fails only when the instance must be
// derived from the hostname and the hostname cannot be read.
func NewGateway(cfg GatewayConfig, opts ...GatewayOption) (*Gateway, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("pushgateway URL is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	job, instance, err := groupingKey(cfg.Job, cfg.Instance)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		url:        strings.TrimSuffix(cfg.URL, "/") + Route(job, instance),
		httpClient: &http.Client{Timeout: timeout},
		username:   cfg.Username,
		password:   cfg.Password,
		timestamps: cfg.Timestamps,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Route returns the Pushgateway path for a job and instance.
func Route(job, instance string) string {
	return "/metrics/job/" + job + "/instance/" + instance
}

// URL returns the full push URL.
func (g *Gateway) URL() string {
	return g.url
}

// Save renders the snapshot without labels, since job and instance are
// already part of the URL, and PUTs it to the gateway.
func (g *Gateway) Save(ctx context.Context, snapshot counters.Snapshot) error {
	body := render.Text(snapshot, render.Options{Timestamps: g.timestamps})

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, g.url, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", render.ContentType)
	if g.username != "" {
		req.SetBasicAuth(g.username, g.password)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	g.logger.Debug("pushed counters", "url", g.url, "count", len(snapshot))
	return nil
}

// Close releases idle connections.
func (g *Gateway) Close() error {
	g.httpClient.CloseIdleConnections()
	return nil
}

// groupingKey applies the job and instance defaults.
func groupingKey(job, instance string) (string, string, error) {
	if job == "" {
		job = UnknownJob
	}
	if instance == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return "", "", fmt.Errorf("getting hostname: %w", err)
		}
		instance = hostname
	}
	return job, instance, nil
}
