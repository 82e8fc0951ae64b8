// Package server provides the HTTP surface of countbridge.
//
// # Endpoints
//
//   - GET /metrics - Current counters in Prometheus text format
//   - GET /metricsandreset - Current counters, cleared after reading
//   - GET /health - Simple health check, returns "ok"
//   - GET /api/status - Bridge state and build info as JSON
//   - GET /config - Returns current configuration as YAML, secrets redacted
//   - GET /internal/metrics - The bridge's own Prometheus metrics
//
// Every request is itself recorded into the bridged counters (request count,
// latency, last request time and last status).
//
// # Example
//
//	srv, err := server.New(cfg, counters, server.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/nomis52/countbridge/bridge"
	"github.com/nomis52/countbridge/config"
	"github.com/nomis52/countbridge/metrics"
	"github.com/nomis52/countbridge/render"
	"github.com/nomis52/countbridge/server/handlers"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// Server is the countbridge HTTP server.
type Server struct {
	cfg      *config.Config
	counters *bridge.Counters
	registry *metrics.ScrapeRegistry
	logger   *slog.Logger
	addr     string
}

// Option configures a Server.
type Option func(*Server) error

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) error {
		s.logger = l
		return nil
	}
}

// WithListenAddr overrides the listener address from the configuration.
func WithListenAddr(addr string) Option {
	return func(s *Server) error {
		if addr == "" {
			return errors.New("listen address must not be empty")
		}
		s.addr = addr
		return nil
	}
}

// WithRegistry serves reg on /internal/metrics. By default a fresh registry
// with the Go and process collectors is used.
func WithRegistry(reg *metrics.ScrapeRegistry) Option {
	return func(s *Server) error {
		s.registry = reg
		return nil
	}
}

// New creates a Server for cfg serving the given counters.
func New(cfg *config.Config, counters *bridge.Counters, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		counters: counters,
		logger:   slog.Default(),
		addr:     cfg.Listener.Addr,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.registry == nil {
		reg, err := metrics.NewScrapeRegistry()
		if err != nil {
			return nil, fmt.Errorf("creating registry: %w", err)
		}
		s.registry = reg
	}
	return s, nil
}

// Config returns the running configuration.
func (s *Server) Config() *config.Config {
	return s.cfg
}

// Pull routes render the counter store and are left out of request
// instrumentation.
const (
	metricsPath         = "/metrics"
	metricsAndResetPath = "/metricsandreset"
)

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return instrument(mux, s.counters, metricsPath, metricsAndResetPath)
}

// Run opens the counters, serves HTTP and blocks until ctx is cancelled or
// the listener fails. On return the server is shut down and the counters
// closed.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}

	httpServer := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}

	useTLS := s.cfg.Listener.TLSCert != ""
	if useTLS {
		certs, err := newCertReloader(s.cfg.Listener.TLSCert, s.cfg.Listener.TLSKey, s.logger)
		if err != nil {
			ln.Close()
			return err
		}
		httpServer.TLSConfig = certs.tlsConfig()
	}

	if err := s.counters.Open(ctx); err != nil {
		ln.Close()
		return fmt.Errorf("opening counters: %w", err)
	}
	defer func() {
		if err := s.counters.Close(context.Background()); err != nil {
			s.logger.Error("failed to close counters", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"addr", ln.Addr().String(),
			"tls", useTLS,
		)
		var err error
		if useTLS {
			err = httpServer.ServeTLS(ln, "", "")
		} else {
			err = httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	pull := render.Options{Labels: s.counters.Labels(), Timestamps: true}

	mux.Handle("GET "+metricsPath, handlers.NewMetricsHandler(s.logger, s.counters, pull))
	mux.Handle("GET "+metricsAndResetPath, handlers.NewMetricsAndResetHandler(s.logger, s.counters, pull))
	mux.HandleFunc("GET /health", handlers.HandleHealth)
	mux.Handle("GET /api/status", handlers.NewStatusHandler(s.counters))
	mux.Handle("GET /config", handlers.NewConfigHandler(s))
	mux.Handle("GET /internal/metrics", s.registry.Handler())
}
