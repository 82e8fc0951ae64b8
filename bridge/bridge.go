// Package bridge ties the counter store, the snapshot cache and the push
// transport together behind an open/close lifecycle.
//
// Counters is what application code records into. The HTTP pull handlers
// read from Cache, and when push is enabled Open starts a loop that delivers
// snapshots to the configured endpoint.
//
// Example usage:
//
//	c, err := bridge.New(cfg, bridge.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := c.Open(ctx); err != nil {
//	    return err
//	}
//	defer c.Close(context.Background())
//
//	c.Increment("orders.created")
//	c.Stats("orders.latency_ms", 12.5)
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nomis52/countbridge/cache"
	"github.com/nomis52/countbridge/config"
	"github.com/nomis52/countbridge/counters"
	"github.com/nomis52/countbridge/metrics"
	"github.com/nomis52/countbridge/push"
	"github.com/nomis52/countbridge/render"
)

// Counters records application counters and relays them by pull and push.
type Counters struct {
	cfg      config.Config
	store    *counters.Store
	logger   *slog.Logger
	metrics  *metrics.FlushMetrics
	schedule cron.Schedule

	mu        sync.Mutex
	opened    bool
	cache     *cache.Cache
	transport push.Transport
}

// Option configures Counters.
type Option func(*Counters)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Counters) {
		c.logger = l
	}
}

// WithStore records into an existing store instead of a new one.
func WithStore(s *counters.Store) Option {
	return func(c *Counters) {
		c.store = s
	}
}

// WithFlushMetrics sets the instruments recorded by the push loop.
func WithFlushMetrics(m *metrics.FlushMetrics) Option {
	return func(c *Counters) {
		c.metrics = m
	}
}

// WithFlushSchedule overrides the push interval and cron expression from the
// configuration.
func WithFlushSchedule(s cron.Schedule) Option {
	return func(c *Counters) {
		c.schedule = s
	}
}

// New creates Counters for cfg. Nothing is pushed until Open is called.
func New(cfg config.Config, opts ...Option) (*Counters, error) {
	c := &Counters{
		cfg:     cfg,
		logger:  slog.Default(),
		metrics: metrics.NopFlushMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = counters.NewStore()
	}

	pull, err := cache.New(c.store, cache.WithLogger(c.logger))
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}
	c.cache = pull
	return c, nil
}

// Open starts pushing if push is enabled. Open is idempotent. A push endpoint
// that cannot be resolved is logged and leaves push disabled; Open still
// succeeds so the pull path keeps working.
//
// The flush loop runs until ctx is cancelled or Close is called.
func (c *Counters) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opened {
		return nil
	}
	c.opened = true

	if !c.cfg.Push.Enabled {
		c.logger.Info("push disabled, serving pull requests only")
		return nil
	}

	baseURL, err := c.cfg.Push.Connection.Resolve()
	if err != nil {
		c.logger.Warn("connection to push endpoint is not configured", "error", err)
		return nil
	}

	transport, err := push.New(push.Target{
		Protocol:   c.cfg.Push.Protocol,
		URL:        baseURL,
		Job:        c.cfg.Source,
		Instance:   c.cfg.Instance,
		Username:   c.cfg.Push.Connection.Username,
		Password:   c.cfg.Push.Connection.Password,
		Timeout:    c.cfg.Push.Timeout,
		Timestamps: c.cfg.Push.Timestamps,
	}, c.logger)
	if err != nil {
		c.logger.Warn("connection to push endpoint is not configured", "error", err)
		return nil
	}

	pusher, err := cache.New(c.store,
		cache.WithSaver(transport),
		cache.WithLogger(c.logger),
		cache.WithMetrics(c.metrics),
		c.scheduleOption(),
	)
	if err != nil {
		c.logger.Warn("invalid push schedule, push disabled", "error", err)
		_ = transport.Close()
		return nil
	}

	pusher.Start(ctx)
	c.cache = pusher
	c.transport = transport

	c.logger.Info("pushing counters",
		"url", baseURL,
		"protocol", c.cfg.Push.Protocol,
		"next_flush", pusher.NextFlush(),
	)
	return nil
}

func (c *Counters) scheduleOption() cache.Option {
	switch {
	case c.schedule != nil:
		return cache.WithSchedule(c.schedule)
	case c.cfg.Push.Schedule != "":
		return cache.WithCronSpec(c.cfg.Push.Schedule)
	default:
		return cache.WithInterval(c.cfg.Push.Interval)
	}
}

// Close stops the push loop and closes the transport. Counters that were not
// yet pushed stay in the store. Close is idempotent.
func (c *Counters) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.opened {
		return nil
	}
	c.opened = false

	c.cache.Stop()

	var err error
	if c.transport != nil {
		err = c.transport.Close()
		c.transport = nil
	}
	return err
}

// IsOpen reports whether Open has been called without a matching Close.
func (c *Counters) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened
}

// PushEnabled reports whether a push loop is running.
func (c *Counters) PushEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport != nil && c.cache.Running()
}

// Status summarises the state of the bridge.
type Status struct {
	Open        bool       `json:"open"`
	PushEnabled bool       `json:"push_enabled"`
	Counters    int        `json:"counters"`
	NextFlush   *time.Time `json:"next_flush,omitempty"`
}

// Status returns the current state. NextFlush is set only while pushing.
func (c *Counters) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		Open:        c.opened,
		PushEnabled: c.transport != nil && c.cache.Running(),
		Counters:    c.store.Len(),
	}
	if s.PushEnabled {
		next := c.cache.NextFlush()
		s.NextFlush = &next
	}
	return s
}

// Cache returns the cache serving pull reads.
func (c *Counters) Cache() *cache.Cache {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache
}

// ReadAll returns the current counters without clearing them.
func (c *Counters) ReadAll() counters.Snapshot {
	return c.Cache().ReadAll()
}

// ReadAndReset returns the current counters and clears them.
func (c *Counters) ReadAndReset() counters.Snapshot {
	return c.Cache().ReadAndReset()
}

// Store returns the underlying counter store.
func (c *Counters) Store() *counters.Store {
	return c.store
}

// Labels returns the job and instance labels for pull output. They are taken
// from the configuration as is; pull output omits labels unless both are set.
func (c *Counters) Labels() render.Labels {
	return render.Labels{Job: c.cfg.Source, Instance: c.cfg.Instance}
}

// Increment adds one to the named increment counter.
func (c *Counters) Increment(name string) {
	c.store.Increment(name)
}

// IncrementBy adds v to the named increment counter.
func (c *Counters) IncrementBy(name string, v float64) {
	c.store.IncrementBy(name, v)
}

// Last records the most recent value of name.
func (c *Counters) Last(name string, v float64) {
	c.store.Last(name, v)
}

// TimestampNow records the current time under name.
func (c *Counters) TimestampNow(name string) {
	c.store.TimestampNow(name)
}

// Timestamp records t under name.
func (c *Counters) Timestamp(name string, t time.Time) {
	c.store.Timestamp(name, t)
}

// Stats adds an observation to the named statistics counter.
func (c *Counters) Stats(name string, v float64) {
	c.store.Stats(name, v)
}

// BeginTiming starts a timer whose elapsed milliseconds are recorded as a
// statistics observation when the returned func is called.
func (c *Counters) BeginTiming(name string) func() {
	start := time.Now()
	return func() {
		c.store.Stats(name, float64(time.Since(start).Microseconds())/1000)
	}
}
