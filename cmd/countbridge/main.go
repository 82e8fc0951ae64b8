package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/nomis52/countbridge/bridge"
	"github.com/nomis52/countbridge/buildinfo"
	"github.com/nomis52/countbridge/config"
	"github.com/nomis52/countbridge/logging"
	"github.com/nomis52/countbridge/metrics"
	"github.com/nomis52/countbridge/server"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "countbridge",
		Usage:   "Serve application counters to Prometheus by pull and push",
		Version: buildinfo.Get().String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "path to the YAML config file",
				EnvVars:  []string{"COUNTBRIDGE_CONFIG"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "listen",
				Aliases: []string{"l"},
				Usage:   "listen address, overrides listener.addr",
			},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	registry, err := metrics.NewScrapeRegistry()
	if err != nil {
		return fmt.Errorf("failed to create metrics registry: %w", err)
	}
	flushMetrics, err := metrics.NewFlushMetrics(registry)
	if err != nil {
		return fmt.Errorf("failed to register flush metrics: %w", err)
	}

	counters, err := bridge.New(*cfg,
		bridge.WithLogger(logger.Logger),
		bridge.WithFlushMetrics(flushMetrics),
	)
	if err != nil {
		return fmt.Errorf("failed to create counters: %w", err)
	}

	opts := []server.Option{
		server.WithLogger(logger.Logger),
		server.WithRegistry(registry),
	}
	if addr := c.String("listen"); addr != "" {
		opts = append(opts, server.WithListenAddr(addr))
	}
	srv, err := server.New(cfg, counters, opts...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go reloadOnHangup(ctx, c.String("config"), logger)

	build := buildinfo.Get()
	logger.Info("starting countbridge",
		"version", build.Version,
		"commit", build.GitCommit,
		"push_enabled", cfg.Push.Enabled,
	)

	return srv.Run(ctx)
}

// reloadOnHangup re-reads the log level from the config file on every SIGHUP
// until ctx is done.
func reloadOnHangup(ctx context.Context, path string, logger *logging.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	reloadLoop(ctx, hup, path, logger)
}

func reloadLoop(ctx context.Context, signals <-chan os.Signal, path string, logger *logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			if err := reloadLogLevel(path, logger); err != nil {
				logger.Error("failed to reload log level", "error", err)
				continue
			}
			logger.Info("reloaded log level", "level", logger.Level().String())
		}
	}
}

// reloadLogLevel applies the log level from the config file at path. Other
// settings need a restart.
func reloadLogLevel(path string, logger *logging.Logger) error {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return logger.SetLevel(cfg.Logging.Level)
}
