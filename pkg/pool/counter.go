package pool

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/dbpool/pkg/logger"
	"github.com/ajitpratap0/dbpool/pkg/poolerrors"
)

const (
	// CheckOutTimeCapacity is the number of check-out times retained
	CheckOutTimeCapacity = 10000
	// DefaultSnapshotSize is the number of occupancy samples retained
	DefaultSnapshotSize = 1000
	// DefaultSnapshotInterval is the occupancy sampling period
	DefaultSnapshotInterval = 10 * time.Millisecond
)

// OccupancyFunc reports the live size, in-use and waiting counts of a pool.
type OccupancyFunc func() (size, inUse, waiting int)

// Counter collects the statistics of one pool. Increments are single atomic
// operations so the checkout path never waits on a reader. The check-out
// time histogram and the snapshot ring each have their own lock.
type Counter struct {
	created         atomic.Int64
	destroyed       atomic.Int64
	requests        atomic.Int64
	requestsWindow  atomic.Int64
	failed          atomic.Int64
	failedWindow    atomic.Int64
	delayed         atomic.Int64
	delayedWindow   atomic.Int64
	resetDate       atomic.Int64 // unix millis
	windowStart     atomic.Int64 // unix millis
	collectCheckOut atomic.Bool

	checkOutTimes *histogram

	snapshotMu   sync.Mutex
	ring         *snapshotRing
	stop         chan struct{}
	done         chan struct{}
	closed       bool
	occupancy    OccupancyFunc
	interval     time.Duration
	snapshotSize int

	logger *zap.Logger
}

// CounterOption configures a Counter
type CounterOption func(*Counter)

// WithSnapshotSize sets the number of occupancy samples retained
func WithSnapshotSize(size int) CounterOption {
	return func(c *Counter) {
		if size > 0 {
			c.snapshotSize = size
		}
	}
}

// WithCounterLogger sets the logger
func WithCounterLogger(l *zap.Logger) CounterOption {
	return func(c *Counter) {
		c.logger = l
	}
}

// NewCounter creates a counter that samples occupancy every interval once
// snapshot collection is enabled. A zero interval selects
// DefaultSnapshotInterval; a negative one is a config error.
func NewCounter(occupancy OccupancyFunc, interval time.Duration, opts ...CounterOption) (*Counter, error) {
	if interval < 0 {
		return nil, poolerrors.New(poolerrors.ErrorTypeConfig, "snapshot interval must not be negative").
			WithDetail("snapshot_interval", interval)
	}
	if interval == 0 {
		interval = DefaultSnapshotInterval
	}
	if occupancy == nil {
		occupancy = func() (int, int, int) { return 0, 0, 0 }
	}

	c := &Counter{
		checkOutTimes: newHistogram(CheckOutTimeCapacity),
		occupancy:     occupancy,
		interval:      interval,
		snapshotSize:  DefaultSnapshotSize,
		logger:        logger.Get(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "statistics_counter"))

	now := time.Now().UnixMilli()
	c.resetDate.Store(now)
	c.windowStart.Store(now)
	return c, nil
}

// IncrementCreated counts a physical connection opened
func (c *Counter) IncrementCreated() {
	c.created.Add(1)
}

// IncrementDestroyed counts a physical connection closed
func (c *Counter) IncrementDestroyed() {
	c.destroyed.Add(1)
}

// IncrementRequests counts a checkout attempt that passed authentication
func (c *Counter) IncrementRequests() {
	c.requests.Add(1)
	c.requestsWindow.Add(1)
}

// IncrementFailedRequests counts a checkout that ended in an error
func (c *Counter) IncrementFailedRequests() {
	c.failed.Add(1)
	c.failedWindow.Add(1)
}

// IncrementDelayedRequests counts a checkout that found the pool exhausted
// and had to wait
func (c *Counter) IncrementDelayedRequests() {
	c.delayed.Add(1)
	c.delayedWindow.Add(1)
}

// AddCheckOutTime records a check-out time in microseconds. The oldest
// sample is dropped once CheckOutTimeCapacity samples are held.
func (c *Counter) AddCheckOutTime(micros int64) {
	c.checkOutTimes.add(micros)
}

// CheckOutTimes returns the retained check-out times, oldest first.
func (c *Counter) CheckOutTimes() []int64 {
	return c.checkOutTimes.values()
}

// SetCollectCheckOutTimes switches check-out time collection. Switching it
// off discards the retained samples.
func (c *Counter) SetCollectCheckOutTimes(enabled bool) {
	if c.collectCheckOut.Swap(enabled) && !enabled {
		c.checkOutTimes.reset()
	}
}

// CollectCheckOutTimes reports whether check-out times are collected
func (c *Counter) CollectCheckOutTimes() bool {
	return c.collectCheckOut.Load()
}

// SetCollectSnapshots starts or stops the occupancy sampler. Enabling
// allocates a fresh ring so no sample of an earlier series survives.
func (c *Counter) SetCollectSnapshots(enabled bool) {
	c.snapshotMu.Lock()
	if enabled == (c.ring != nil) || (enabled && c.closed) {
		c.snapshotMu.Unlock()
		return
	}

	if enabled {
		c.ring = newSnapshotRing(c.snapshotSize)
		c.stop = make(chan struct{})
		c.done = make(chan struct{})
		go c.sample(c.stop, c.done)
		c.snapshotMu.Unlock()
		c.logger.Info("snapshot collection enabled",
			zap.Duration("interval", c.interval),
			zap.Int("size", c.snapshotSize))
		return
	}

	stop, done := c.detachSampler()
	c.snapshotMu.Unlock()
	close(stop)
	<-done
	c.logger.Info("snapshot collection disabled")
}

// CollectSnapshots reports whether the sampler is running
func (c *Counter) CollectSnapshots() bool {
	c.snapshotMu.Lock()
	defer c.snapshotMu.Unlock()
	return c.ring != nil
}

// detachSampler clears the ring and returns the running sampler's
// channels. Must be called with snapshotMu held.
func (c *Counter) detachSampler() (stop, done chan struct{}) {
	stop, done = c.stop, c.done
	c.ring = nil
	c.stop = nil
	c.done = nil
	return stop, done
}

func (c *Counter) sample(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			size, inUse, waiting := c.occupancy()

			c.snapshotMu.Lock()
			if c.stop == stop && c.ring != nil {
				c.ring.record(time.Now().UnixMilli(), size, inUse, waiting)
			}
			c.snapshotMu.Unlock()
		}
	}
}

// Collect assembles the counter part of a Statistics report.
//
// Each call restarts the per-second window: the rates are the requests
// counted since the previous call divided by the seconds elapsed since it.
// The check-out time samples are summarized and cleared. Snapshot samples
// with Timestamp >= since are copied when collection is on; a negative
// since skips the snapshot.
func (c *Counter) Collect(since int64) Statistics {
	current := time.Now()
	now := current.UnixMilli()

	stats := Statistics{
		Timestamp:       current,
		ResetTime:       time.UnixMilli(c.resetDate.Load()),
		Created:         c.created.Load(),
		Destroyed:       c.destroyed.Load(),
		Requests:        c.requests.Load(),
		DelayedRequests: c.delayed.Load(),
		FailedRequests:  c.failed.Load(),
	}

	requests := c.requestsWindow.Swap(0)
	delayed := c.delayedWindow.Swap(0)
	failed := c.failedWindow.Swap(0)
	elapsed := float64(now-c.windowStart.Swap(now)) / 1000
	if elapsed > 0 {
		stats.RequestsPerSecond = float64(requests) / elapsed
		stats.DelayedRequestsPerSecond = float64(delayed) / elapsed
		stats.FailedRequestsPerSecond = float64(failed) / elapsed
	}

	stats.CheckOutTimeSamples, stats.AverageTime, stats.MinimumTime, stats.MaximumTime = c.checkOutTimes.drain()

	if since >= 0 {
		c.snapshotMu.Lock()
		if c.ring != nil {
			stats.Snapshot = c.ring.since(since)
		}
		c.snapshotMu.Unlock()
	}
	return stats
}

// Counts reads the lifetime counters without touching the rate window or
// the check-out times.
func (c *Counter) Counts() Counts {
	return Counts{
		Created:         c.created.Load(),
		Destroyed:       c.destroyed.Load(),
		Requests:        c.requests.Load(),
		DelayedRequests: c.delayed.Load(),
		FailedRequests:  c.failed.Load(),
	}
}

// Reset zeroes the lifetime counters, clears the check-out times and
// records the reset time. The snapshot series and the per-second window
// are left alone.
func (c *Counter) Reset() {
	c.created.Store(0)
	c.destroyed.Store(0)
	c.requests.Store(0)
	c.delayed.Store(0)
	c.failed.Store(0)
	c.checkOutTimes.reset()
	c.resetDate.Store(time.Now().UnixMilli())
}

// Close stops the sampler and clears the snapshot ring and the check-out
// times. Calling it again does nothing.
func (c *Counter) Close() {
	c.snapshotMu.Lock()
	if c.closed {
		c.snapshotMu.Unlock()
		return
	}
	c.closed = true
	stop, done := c.detachSampler()
	c.snapshotMu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	c.checkOutTimes.reset()
}
