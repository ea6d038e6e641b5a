// Package channel is the default pool driver. It keeps idle connections in
// a LIFO list, caps the number of physical connections and queues callers
// FIFO while the pool is exhausted.
//
// Import it for its side effect of registering the "channel" driver:
//
//	import _ "github.com/ajitpratap0/dbpool/pkg/pool/channel"
package channel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/dbpool/pkg/config"
	"github.com/ajitpratap0/dbpool/pkg/database"
	"github.com/ajitpratap0/dbpool/pkg/logger"
	"github.com/ajitpratap0/dbpool/pkg/pool"
	"github.com/ajitpratap0/dbpool/pkg/poolerrors"
)

// Name is the registered driver name
const Name = config.DefaultDriver

func init() {
	pool.RegisterDriver(Name, func(ctx context.Context, source pool.DataSource, cfg config.PoolConfig, l *zap.Logger) (pool.Driver, error) {
		d, err := New(ctx, source, cfg, l)
		if err != nil {
			return nil, err
		}
		return d, nil
	})
}

type idleConn struct {
	conn  database.Connection
	since time.Time
}

// Driver is a bounded connection pool.
type Driver struct {
	source pool.DataSource
	logger *zap.Logger

	mu      sync.Mutex
	idle    []idleConn // oldest first
	open    int        // physical connections, idle or checked out
	inUse   int        // checked out, including ones still opening
	waiters []chan database.Connection
	closed  bool

	maximumPoolSize     int
	minimumPoolSize     int
	idleTimeout         time.Duration
	cleanupInterval     time.Duration
	maximumCheckOutTime time.Duration

	cleanupTicker *time.Ticker
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// New creates a driver, opens cfg.MinimumPoolSize connections and starts
// the idle cleanup loop. A failed warm-up is logged; the pool then opens
// connections on demand.
func New(ctx context.Context, source pool.DataSource, cfg config.PoolConfig, l *zap.Logger) (*Driver, error) {
	cfg.ApplyDefaults()
	if err := config.ValidatePoolSize(cfg.MinimumPoolSize, cfg.MaximumPoolSize); err != nil {
		return nil, err
	}
	if l == nil {
		l = logger.Get()
	}

	d := &Driver{
		source:              source,
		logger:              l.With(zap.String("component", "channel_driver")),
		maximumPoolSize:     cfg.MaximumPoolSize,
		minimumPoolSize:     cfg.MinimumPoolSize,
		idleTimeout:         cfg.IdleTimeout,
		cleanupInterval:     cfg.CleanupInterval,
		maximumCheckOutTime: cfg.CheckoutTimeout,
		stopCh:              make(chan struct{}),
	}

	d.warmUp(ctx)

	d.cleanupTicker = time.NewTicker(d.cleanupInterval)
	d.wg.Add(1)
	go d.cleanupLoop()

	return d, nil
}

func (d *Driver) warmUp(ctx context.Context) {
	for i := 0; i < d.minimumPoolSize; i++ {
		conn, err := d.source.Connection(ctx)
		if err != nil {
			d.logger.Warn("pool warm-up stopped",
				zap.Int("opened", i),
				zap.Int("minimum_pool_size", d.minimumPoolSize),
				zap.Error(err))
			return
		}
		d.mu.Lock()
		d.open++
		d.idle = append(d.idle, idleConn{conn: conn, since: time.Now()})
		d.mu.Unlock()
	}
}

// FetchConnection implements pool.Driver. It prefers the most recently
// returned idle connection, opens a new one while below the maximum size
// and otherwise waits up to the maximum check-out time.
func (d *Driver) FetchConnection(ctx context.Context) (database.Connection, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, poolerrors.New(poolerrors.ErrorTypeState, "pool driver is closed")
	}

	if n := len(d.idle); n > 0 {
		ic := d.idle[n-1]
		d.idle = d.idle[:n-1]
		d.inUse++
		d.mu.Unlock()
		return d.handle(ic.conn), nil
	}

	if d.open < d.maximumPoolSize {
		d.open++
		d.inUse++
		d.mu.Unlock()
		return d.openReserved(ctx)
	}

	ch := make(chan database.Connection, 1)
	d.waiters = append(d.waiters, ch)
	wait := d.maximumCheckOutTime
	d.mu.Unlock()
	d.source.Delayed()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case conn, ok := <-ch:
		if !ok {
			return nil, poolerrors.New(poolerrors.ErrorTypeState, "pool driver closed while waiting")
		}
		if conn == nil {
			return d.openReserved(ctx)
		}
		return d.handle(conn), nil
	case <-timer.C:
		return nil, d.abandon(ch, poolerrors.New(poolerrors.ErrorTypeTimeout, "timed out waiting for a connection").
			WithDetail("maximum_check_out_time", wait))
	case <-ctx.Done():
		return nil, d.abandon(ch, poolerrors.Wrap(ctx.Err(), poolerrors.ErrorTypeTimeout, "checkout cancelled"))
	}
}

// openReserved opens a connection for a slot already counted in open and
// inUse, giving the slot back on failure.
func (d *Driver) openReserved(ctx context.Context) (database.Connection, error) {
	conn, err := d.source.Connection(ctx)
	if err != nil {
		d.mu.Lock()
		d.open--
		d.inUse--
		d.grantSlotsLocked()
		d.mu.Unlock()
		return nil, err
	}
	return d.handle(conn), nil
}

// abandon withdraws a waiter. A connection or slot handed over in the
// meantime is released again.
func (d *Driver) abandon(ch chan database.Connection, err error) error {
	d.mu.Lock()
	for i, w := range d.waiters {
		if w == ch {
			d.waiters = append(d.waiters[:i], d.waiters[i+1:]...)
			d.mu.Unlock()
			return err
		}
	}
	d.mu.Unlock()

	conn, ok := <-ch
	switch {
	case !ok:
	case conn == nil:
		d.mu.Lock()
		d.open--
		d.inUse--
		d.grantSlotsLocked()
		d.mu.Unlock()
	default:
		d.put(conn)
	}
	return err
}

// grantSlotsLocked lets waiters open new connections while there is room.
func (d *Driver) grantSlotsLocked() {
	for len(d.waiters) > 0 && d.open < d.maximumPoolSize {
		ch := d.waiters[0]
		d.waiters = d.waiters[1:]
		d.open++
		d.inUse++
		ch <- nil
	}
}

func (d *Driver) put(conn database.Connection) {
	d.mu.Lock()
	d.inUse--

	if d.closed || conn.IsClosed() || d.open > d.maximumPoolSize {
		d.open--
		d.grantSlotsLocked()
		d.mu.Unlock()
		d.destroy(conn)
		return
	}

	if len(d.waiters) > 0 {
		ch := d.waiters[0]
		d.waiters = d.waiters[1:]
		d.inUse++
		ch <- conn
		d.mu.Unlock()
		return
	}

	d.idle = append(d.idle, idleConn{conn: conn, since: time.Now()})
	d.mu.Unlock()
}

func (d *Driver) discard(conn database.Connection) error {
	d.mu.Lock()
	d.inUse--
	d.open--
	d.grantSlotsLocked()
	d.mu.Unlock()
	return conn.Close()
}

func (d *Driver) destroy(conn database.Connection) {
	if err := conn.Close(); err != nil {
		d.logger.Debug("failed to close connection", zap.Error(err))
	}
}

func (d *Driver) cleanupLoop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.cleanupTicker.C:
			d.cleanup()
		case <-d.stopCh:
			return
		}
	}
}

// cleanup closes connections idle for longer than the idle timeout, oldest
// first, without going below the minimum pool size.
func (d *Driver) cleanup() {
	d.mu.Lock()
	now := time.Now()
	var evicted []database.Connection
	for len(d.idle) > 0 && d.open > d.minimumPoolSize && now.Sub(d.idle[0].since) > d.idleTimeout {
		evicted = append(evicted, d.idle[0].conn)
		d.idle = d.idle[1:]
		d.open--
	}
	remaining := d.open
	d.mu.Unlock()

	for _, conn := range evicted {
		d.destroy(conn)
	}
	if len(evicted) > 0 {
		d.logger.Debug("evicted idle connections",
			zap.Int("evicted", len(evicted)),
			zap.Int("open", remaining))
	}
}

// Available implements pool.Driver
func (d *Driver) Available() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.idle)
}

// InUse implements pool.Driver
func (d *Driver) InUse() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inUse
}

// Waiting implements pool.Driver
func (d *Driver) Waiting() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.waiters)
}

// Occupancy implements pool.Driver
func (d *Driver) Occupancy() pool.Occupancy {
	d.mu.Lock()
	defer d.mu.Unlock()
	return pool.Occupancy{
		Size:      len(d.idle) + d.inUse,
		InUse:     d.inUse,
		Available: len(d.idle),
		Waiting:   len(d.waiters),
	}
}

// MaximumPoolSize implements pool.Driver
func (d *Driver) MaximumPoolSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maximumPoolSize
}

// SetMaximumPoolSize implements pool.Driver. Shrinking closes surplus idle
// connections at once; surplus checked-out ones are closed when returned.
func (d *Driver) SetMaximumPoolSize(size int) error {
	d.mu.Lock()
	if err := config.ValidatePoolSize(d.minimumPoolSize, size); err != nil {
		d.mu.Unlock()
		return err
	}
	d.maximumPoolSize = size

	var surplus []database.Connection
	for len(d.idle) > 0 && d.open > d.maximumPoolSize {
		surplus = append(surplus, d.idle[0].conn)
		d.idle = d.idle[1:]
		d.open--
	}
	d.grantSlotsLocked()
	d.mu.Unlock()

	for _, conn := range surplus {
		d.destroy(conn)
	}
	return nil
}

// MinimumPoolSize implements pool.Driver
func (d *Driver) MinimumPoolSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.minimumPoolSize
}

// SetMinimumPoolSize implements pool.Driver
func (d *Driver) SetMinimumPoolSize(size int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := config.ValidatePoolSize(size, d.maximumPoolSize); err != nil {
		return err
	}
	d.minimumPoolSize = size
	return nil
}

// IdleTimeout implements pool.Driver
func (d *Driver) IdleTimeout() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.idleTimeout
}

// SetIdleTimeout implements pool.Driver
func (d *Driver) SetIdleTimeout(timeout time.Duration) error {
	if err := config.ValidatePositive("idle_timeout", timeout); err != nil {
		return err
	}
	d.mu.Lock()
	d.idleTimeout = timeout
	d.mu.Unlock()
	return nil
}

// CleanupInterval implements pool.Driver
func (d *Driver) CleanupInterval() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cleanupInterval
}

// SetCleanupInterval implements pool.Driver
func (d *Driver) SetCleanupInterval(interval time.Duration) error {
	if err := config.ValidatePositive("cleanup_interval", interval); err != nil {
		return err
	}
	d.mu.Lock()
	d.cleanupInterval = interval
	d.cleanupTicker.Reset(interval)
	d.mu.Unlock()
	return nil
}

// MaximumCheckOutTime implements pool.Driver
func (d *Driver) MaximumCheckOutTime() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maximumCheckOutTime
}

// SetMaximumCheckOutTime implements pool.Driver
func (d *Driver) SetMaximumCheckOutTime(timeout time.Duration) error {
	if err := config.ValidatePositive("maximum_check_out_time", timeout); err != nil {
		return err
	}
	d.mu.Lock()
	d.maximumCheckOutTime = timeout
	d.mu.Unlock()
	return nil
}

// Close implements pool.Driver. Waiting callers fail with a state error.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	idle := d.idle
	d.idle = nil
	d.open -= len(idle)
	waiters := d.waiters
	d.waiters = nil
	d.mu.Unlock()

	close(d.stopCh)
	d.cleanupTicker.Stop()
	d.wg.Wait()

	for _, ch := range waiters {
		close(ch)
	}
	for _, ic := range idle {
		d.destroy(ic.conn)
	}

	d.logger.Debug("driver closed", zap.Int("closed_idle", len(idle)))
	return nil
}

func (d *Driver) handle(conn database.Connection) database.Connection {
	return &pooledConn{Connection: conn, driver: d}
}

// pooledConn is a checked-out connection. Close returns it to the pool.
type pooledConn struct {
	database.Connection
	driver   *Driver
	returned atomic.Bool
}

func (c *pooledConn) Close() error {
	if !c.returned.CompareAndSwap(false, true) {
		return nil
	}
	c.driver.put(c.Connection)
	return nil
}

// Discard closes the connection instead of returning it to the pool.
func (c *pooledConn) Discard() error {
	if !c.returned.CompareAndSwap(false, true) {
		return nil
	}
	return c.driver.discard(c.Connection)
}

func (c *pooledConn) IsClosed() bool {
	return c.returned.Load() || c.Connection.IsClosed()
}

func (c *pooledConn) Unwrap() database.Connection {
	return c.Connection
}
