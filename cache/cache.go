// Package cache serves counter snapshots to readers and flushes them to a
// Saver on a schedule.
//
// Pull readers use ReadAll or ReadAndReset. The push path drains the store on
// every scheduled tick and hands the snapshot to the Saver. Delivery is at
// most once: a snapshot whose Save fails is dropped, not restored.
//
// Example usage:
//
//	c, err := cache.New(store, cache.WithSaver(gateway), cache.WithInterval(time.Minute))
//	if err != nil {
//	    return err
//	}
//	c.Start(ctx)
//	defer c.Stop()
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nomis52/countbridge/counters"
	"github.com/nomis52/countbridge/metrics"
)

// DefaultInterval is the flush period used when none is configured.
const DefaultInterval = 60 * time.Second

// ErrInvalidSchedule is returned when a cron schedule cannot be parsed.
var ErrInvalidSchedule = errors.New("invalid flush schedule")

// Saver receives flushed snapshots.
type Saver interface {
	Save(ctx context.Context, snapshot counters.Snapshot) error
}

// Cache wraps a counter store with read, reset and scheduled flush policies.
type Cache struct {
	store    *counters.Store
	saver    Saver
	schedule cron.Schedule
	logger   *slog.Logger
	metrics  *metrics.FlushMetrics

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	flushMu sync.Mutex
}

// Option configures a Cache.
type Option func(*Cache) error

// WithSaver sets the destination for scheduled flushes. Without a saver the
// cache never starts a flush loop.
func WithSaver(s Saver) Option {
	return func(c *Cache) error {
		c.saver = s
		return nil
	}
}

// WithInterval flushes at a fixed period. Periods under a second are rounded
// up to one second.
func WithInterval(d time.Duration) Option {
	return func(c *Cache) error {
		if d <= 0 {
			return fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidSchedule, d)
		}
		c.schedule = cron.Every(d)
		return nil
	}
}

// WithCronSpec flushes according to a standard 5 field cron expression.
func WithCronSpec(spec string) Option {
	return func(c *Cache) error {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		schedule, err := parser.Parse(spec)
		if err != nil {
			return errors.Join(ErrInvalidSchedule, err)
		}
		c.schedule = schedule
		return nil
	}
}

// WithSchedule sets the flush schedule directly.
func WithSchedule(s cron.Schedule) Option {
	return func(c *Cache) error {
		c.schedule = s
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) error {
		c.logger = l
		return nil
	}
}

// WithMetrics sets the instruments recorded by flushes.
func WithMetrics(m *metrics.FlushMetrics) Option {
	return func(c *Cache) error {
		c.metrics = m
		return nil
	}
}

// New creates a Cache over store.
func New(store *counters.Store, opts ...Option) (*Cache, error) {
	c := &Cache{
		store:    store,
		schedule: cron.Every(DefaultInterval),
		logger:   slog.Default(),
		metrics:  metrics.NopFlushMetrics(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ReadAll returns the current counters without clearing them.
func (c *Cache) ReadAll() counters.Snapshot {
	return c.store.GetAll()
}

// ReadAndReset returns the current counters and clears them atomically.
func (c *Cache) ReadAndReset() counters.Snapshot {
	return c.store.Drain()
}

// Flush drains the store and hands the snapshot to the saver. An empty store
// is not saved. The drained counters are not restored if Save fails.
func (c *Cache) Flush(ctx context.Context) error {
	if c.saver == nil {
		return nil
	}

	// At most one snapshot is in flight.
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	snapshot := c.store.Drain()
	if len(snapshot) == 0 {
		return nil
	}

	c.metrics.Flushes.Inc()
	c.metrics.FlushedCounters.Set(float64(len(snapshot)))

	start := time.Now()
	err := c.saver.Save(ctx, snapshot)
	c.metrics.PushDuration.Set(time.Since(start).Seconds())
	if err != nil {
		c.metrics.Failures.Inc()
		return fmt.Errorf("saving %d counters: %w", len(snapshot), err)
	}
	return nil
}

// Start launches the flush loop in a goroutine and returns immediately. It is
// a no-op when no saver is configured or the loop is already running. The
// loop exits when ctx is cancelled or Stop is called.
func (c *Cache) Start(ctx context.Context) {
	if c.saver == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.loop(ctx, c.done)
}

// Running reports whether the flush loop is active. It turns false once the
// loop has exited, whether through Stop or cancellation of the Start context.
func (c *Cache) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// Stop cancels the flush loop and waits for it to exit. Stop is idempotent.
func (c *Cache) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// NextFlush returns the next scheduled flush time.
func (c *Cache) NextFlush() time.Time {
	return c.schedule.Next(time.Now())
}

func (c *Cache) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		// A cancelled parent context ends the loop without Stop.
		c.mu.Lock()
		if c.done == done {
			c.cancel, c.done = nil, nil
		}
		c.mu.Unlock()
		close(done)
	}()

	for {
		nextRun := c.schedule.Next(time.Now())
		wait := time.Until(nextRun)

		c.logger.Debug("waiting for next flush",
			"next_flush", nextRun,
			"wait_duration", wait,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.logger.Debug("flush loop shutting down")
			return
		case <-timer.C:
			c.tick(ctx)
		}
	}
}

// tick runs one scheduled flush. Failures are logged and never escape.
func (c *Cache) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("flush panicked", "panic", r)
		}
	}()

	if err := c.Flush(ctx); err != nil {
		c.logger.Error("failed to push counters", "error", err)
	}
}
