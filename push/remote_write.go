package push

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/prometheus/prompb"

	"github.com/nomis52/countbridge/counters"
	"github.com/nomis52/countbridge/render"
)

// RemoteWriteConfig configures a RemoteWriter.
type RemoteWriteConfig struct {
	// URL is the base URL of the remote write endpoint (e.g., "http://localhost:8428").
	URL string
	// Job is the job label for all series. Defaults to UnknownJob.
	Job string
	// Instance is the instance label for all series. Defaults to the local hostname.
	Instance string
	// Username and Password enable HTTP basic auth when Username is set.
	Username string
	Password string
	// Timeout is the HTTP client timeout. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// RemoteWriter pushes snapshots using the Prometheus remote write protocol.
type RemoteWriter struct {
	url        string
	httpClient *http.Client
	job        string
	instance   string
	username   string
	password   string
	logger     *slog.Logger
	now        func() time.Time
}

// RemoteWriteOption configures a RemoteWriter.
type RemoteWriteOption func(*RemoteWriter)

// WithRemoteWriteLogger sets the logger.
func WithRemoteWriteLogger(l *slog.Logger) RemoteWriteOption {
	return func(w *RemoteWriter) {
		w.logger = l
	}
}

// NewRemoteWriter creates a RemoteWriter.
func NewRemoteWriter(cfg RemoteWriteConfig, opts ...RemoteWriteOption) (*RemoteWriter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("remote write URL is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	job, instance, err := groupingKey(cfg.Job, cfg.Instance)
	if err != nil {
		return nil, err
	}

	w := &RemoteWriter{
		url:        strings.TrimSuffix(cfg.URL, "/") + "/api/v1/write",
		httpClient: &http.Client{Timeout: timeout},
		job:        job,
		instance:   instance,
		username:   cfg.Username,
		password:   cfg.Password,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Save converts the snapshot to time series and sends one write request.
func (w *RemoteWriter) Save(ctx context.Context, snapshot counters.Snapshot) error {
	samples := render.Samples(snapshot)
	if len(samples) == 0 {
		return nil
	}

	timeseries := make([]prompb.TimeSeries, 0, len(samples))
	for _, s := range samples {
		timeseries = append(timeseries, w.sampleToTimeSeries(s))
	}

	data, err := proto.Marshal(&prompb.WriteRequest{Timeseries: timeseries})
	if err != nil {
		return fmt.Errorf("marshaling write request: %w", err)
	}

	compressed := snappy.Encode(nil, data)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}

	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	if w.username != "" {
		req.SetBasicAuth(w.username, w.password)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	w.logger.Debug("wrote counters", "url", w.url, "series", len(timeseries))
	return nil
}

// Close releases idle connections.
func (w *RemoteWriter) Close() error {
	w.httpClient.CloseIdleConnections()
	return nil
}

// sampleToTimeSeries converts a sample to a single-sample TimeSeries.
func (w *RemoteWriter) sampleToTimeSeries(s render.Sample) prompb.TimeSeries {
	timestamp := s.TimestampMs
	if timestamp == 0 {
		timestamp = w.now().UnixMilli()
	}

	return prompb.TimeSeries{
		Labels: []prompb.Label{
			{Name: "__name__", Value: s.Name},
			{Name: "job", Value: w.job},
			{Name: "instance", Value: w.instance},
		},
		Samples: []prompb.Sample{{Value: s.Value, Timestamp: timestamp}},
	}
}
