package pool

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/dbpool/pkg/auth"
	"github.com/ajitpratap0/dbpool/pkg/config"
	"github.com/ajitpratap0/dbpool/pkg/database"
	"github.com/ajitpratap0/dbpool/pkg/logger"
	"github.com/ajitpratap0/dbpool/pkg/poolerrors"
)

const tracerName = "github.com/ajitpratap0/dbpool/pkg/pool"

// Observer is told about every authenticated checkout once it completes.
type Observer interface {
	ObserveCheckout(pool string, elapsed time.Duration, err error)
}

// Occupancy is the live state of the driver. Size is Available + InUse.
type Occupancy struct {
	Size      int
	InUse     int
	Available int
	Waiting   int
}

// Wrapper authenticates callers against the pool user, checks connections
// out of a Driver and keeps the pool statistics.
type Wrapper struct {
	name         string
	url          string
	factory      database.ConnectionFactory
	user         auth.User
	driver       Driver
	source       *countingDataSource
	counter      *Counter
	creationTime time.Time

	validateOnCheckout atomic.Bool
	closed             atomic.Bool

	observer Observer
	tracer   trace.Tracer
	logger   *zap.Logger
}

type options struct {
	name          string
	driverFactory DriverFactory
	observer      Observer
	tracer        trace.Tracer
	logger        *zap.Logger
}

// Option configures a Wrapper
type Option func(*options)

// WithName names the pool in logs, spans and metrics
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithDriver uses factory instead of looking up the configured driver
func WithDriver(factory DriverFactory) Option {
	return func(o *options) {
		o.driverFactory = factory
	}
}

// WithObserver reports every checkout to observer
func WithObserver(observer Observer) Option {
	return func(o *options) {
		o.observer = observer
	}
}

// WithTracer sets the tracer for checkout spans
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Open creates the connection factory named by cfg.Database and wraps a
// pool around it, authenticated as the configured user.
func Open(ctx context.Context, cfg config.PoolConfig, opts ...Option) (*Wrapper, error) {
	factory, err := database.NewFactory(cfg.Database.Type, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	user := auth.NewUser(cfg.Database.Username, cfg.Database.Password)
	return New(ctx, factory, user, cfg, opts...)
}

// New creates a pool whose driver opens connections through factory as
// user. Callers of Connection must present the same credential.
func New(ctx context.Context, factory database.ConnectionFactory, user auth.User, cfg config.PoolConfig, opts ...Option) (*Wrapper, error) {
	if factory == nil {
		return nil, poolerrors.New(poolerrors.ErrorTypeValidation, "connection factory is required")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{
		name:   cfg.Name,
		tracer: otel.Tracer(tracerName),
		logger: logger.Get(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	url := database.RedactURL(factory.URL())
	if o.name == "" {
		o.name = url
	}
	if o.driverFactory == nil {
		df, err := lookupDriver(cfg.Driver)
		if err != nil {
			return nil, err
		}
		o.driverFactory = df
	}

	w := &Wrapper{
		name:         o.name,
		url:          url,
		factory:      factory,
		user:         user.Copy(),
		creationTime: time.Now(),
		observer:     o.observer,
		tracer:       o.tracer,
		logger:       o.logger.With(zap.String("component", "pool"), zap.String("pool", o.name)),
	}

	counter, err := NewCounter(w.occupancy, cfg.Statistics.SnapshotInterval,
		WithSnapshotSize(cfg.Statistics.SnapshotSize),
		WithCounterLogger(w.logger))
	if err != nil {
		return nil, err
	}
	w.counter = counter
	w.source = newDataSource(factory, w.url, w.user, counter, w.logger)

	driver, err := o.driverFactory(ctx, w.source, cfg, w.logger)
	if err != nil {
		counter.Close()
		return nil, poolerrors.Wrap(err, poolerrors.GetType(err), "failed to create pool driver").
			WithDetail("driver", cfg.Driver).
			WithDetail("url", url)
	}
	w.driver = driver

	w.validateOnCheckout.Store(cfg.ValidateOnCheckout)
	counter.SetCollectCheckOutTimes(cfg.Statistics.CollectCheckOutTimes)
	counter.SetCollectSnapshots(cfg.Statistics.CollectSnapshots)

	w.logger.Info("pool created",
		zap.String("url", url),
		zap.String("username", w.user.Username),
		zap.String("driver", cfg.Driver),
		zap.Int("maximum_pool_size", cfg.MaximumPoolSize),
		zap.Int("minimum_pool_size", cfg.MinimumPoolSize))
	return w, nil
}

// Connection checks a connection out of the pool for user.
//
// user must match the pool user, otherwise an authentication error is
// returned and no statistic changes. Driver failures and connections that
// fail validation count as failed requests and surface as connection
// errors carrying the pool URL and username. Closing the returned
// connection checks it back in.
func (w *Wrapper) Connection(ctx context.Context, user auth.User) (conn database.Connection, err error) {
	if w.closed.Load() {
		return nil, poolerrors.New(poolerrors.ErrorTypeState, "pool is closed").
			WithDetail("pool", w.name)
	}
	if mismatch := w.user.Verify(user); mismatch != auth.Match {
		w.logger.Warn("authentication failed",
			zap.String("username", user.Username),
			zap.String("reason", string(mismatch)))
		return nil, poolerrors.Newf(poolerrors.ErrorTypeAuthentication, "authentication failed: %s", mismatch).
			WithDetail("url", w.url).
			WithDetail("username", user.Username)
	}

	ctx, span := w.tracer.Start(ctx, "pool.checkout", trace.WithAttributes(
		attribute.String("pool.name", w.name),
		attribute.String("db.user", user.Username),
		attribute.String("server.address", w.url),
	))
	defer span.End()

	w.counter.IncrementRequests()
	collect := w.counter.CollectCheckOutTimes()
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		if collect {
			w.counter.AddCheckOutTime(elapsed.Microseconds())
		}
		if w.observer != nil {
			w.observer.ObserveCheckout(w.name, elapsed, err)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	conn, err = w.driver.FetchConnection(ctx)
	if err != nil {
		w.counter.IncrementFailedRequests()
		w.logger.Warn("failed to fetch connection", zap.Error(err))

		errType := poolerrors.GetType(err)
		if errType != poolerrors.ErrorTypeTimeout && errType != poolerrors.ErrorTypeState {
			errType = poolerrors.ErrorTypeConnection
		}
		return nil, poolerrors.Wrap(err, errType, "failed to fetch connection").
			WithDetail("url", w.url).
			WithDetail("username", w.user.Username)
	}

	if w.validateOnCheckout.Load() && !w.factory.ConnectionValid(ctx, database.Underlying(conn)) {
		w.counter.IncrementFailedRequests()
		w.logger.Warn("connection failed validation")
		discard(conn)
		return nil, poolerrors.New(poolerrors.ErrorTypeConnection, "connection failed validation").
			WithDetail("url", w.url).
			WithDetail("username", w.user.Username)
	}

	return conn, nil
}

// discard removes an unusable connection from the pool.
func discard(conn database.Connection) {
	if d, ok := conn.(Discarder); ok {
		_ = d.Discard()
		return
	}
	_ = conn.Close()
}

// Close stops statistics collection and closes the driver. Calling it more
// than once is not an error.
func (w *Wrapper) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}

	w.counter.Close()
	if err := w.driver.Close(); err != nil {
		return poolerrors.Wrap(err, poolerrors.ErrorTypeConnection, "failed to close pool driver").
			WithDetail("pool", w.name)
	}

	w.logger.Info("pool closed")
	return nil
}

// IsClosed reports whether Close has been called
func (w *Wrapper) IsClosed() bool {
	return w.closed.Load()
}

// Statistics reports the pool statistics. See Counter.Collect for the
// meaning of since and the per-second rates.
func (w *Wrapper) Statistics(since int64) Statistics {
	stats := w.counter.Collect(since)
	stats.Username = w.user.Username
	stats.CreationTime = w.creationTime

	occ := w.Occupancy()
	stats.Size = occ.Size
	stats.InUse = occ.InUse
	stats.Available = occ.Available
	stats.Waiting = occ.Waiting
	return stats
}

// ResetStatistics zeroes the lifetime counters and clears the check-out
// times. Snapshot collection is not affected.
func (w *Wrapper) ResetStatistics() {
	w.counter.Reset()
	w.logger.Debug("statistics reset")
}

// Counts reads the lifetime counters without side effects
func (w *Wrapper) Counts() Counts {
	return w.counter.Counts()
}

// Occupancy reads the live driver state
func (w *Wrapper) Occupancy() Occupancy {
	return w.driver.Occupancy()
}

func (w *Wrapper) occupancy() (size, inUse, waiting int) {
	occ := w.Occupancy()
	return occ.Size, occ.InUse, occ.Waiting
}

// SetCollectCheckOutTimes switches check-out time collection
func (w *Wrapper) SetCollectCheckOutTimes(enabled bool) {
	w.counter.SetCollectCheckOutTimes(enabled)
}

// CollectCheckOutTimes reports whether check-out times are collected
func (w *Wrapper) CollectCheckOutTimes() bool {
	return w.counter.CollectCheckOutTimes()
}

// SetCollectSnapshotStatistics starts or stops occupancy sampling
func (w *Wrapper) SetCollectSnapshotStatistics(enabled bool) {
	w.counter.SetCollectSnapshots(enabled)
}

// CollectSnapshotStatistics reports whether occupancy is sampled
func (w *Wrapper) CollectSnapshotStatistics() bool {
	return w.counter.CollectSnapshots()
}

// SetValidateOnCheckout switches validation of checked-out connections
func (w *Wrapper) SetValidateOnCheckout(enabled bool) {
	w.validateOnCheckout.Store(enabled)
}

// ValidateOnCheckout reports whether checked-out connections are validated
func (w *Wrapper) ValidateOnCheckout() bool {
	return w.validateOnCheckout.Load()
}

// MaximumPoolSize returns the driver's maximum pool size
func (w *Wrapper) MaximumPoolSize() int {
	return w.driver.MaximumPoolSize()
}

// SetMaximumPoolSize sets the driver's maximum pool size
func (w *Wrapper) SetMaximumPoolSize(size int) error {
	return w.tuned("maximum_pool_size", w.driver.SetMaximumPoolSize(size))
}

// MinimumPoolSize returns the driver's minimum pool size
func (w *Wrapper) MinimumPoolSize() int {
	return w.driver.MinimumPoolSize()
}

// SetMinimumPoolSize sets the driver's minimum pool size
func (w *Wrapper) SetMinimumPoolSize(size int) error {
	return w.tuned("minimum_pool_size", w.driver.SetMinimumPoolSize(size))
}

// IdleTimeout returns the driver's idle timeout
func (w *Wrapper) IdleTimeout() time.Duration {
	return w.driver.IdleTimeout()
}

// SetIdleTimeout sets the driver's idle timeout
func (w *Wrapper) SetIdleTimeout(d time.Duration) error {
	return w.tuned("idle_timeout", w.driver.SetIdleTimeout(d))
}

// CleanupInterval returns the driver's cleanup interval
func (w *Wrapper) CleanupInterval() time.Duration {
	return w.driver.CleanupInterval()
}

// SetCleanupInterval sets the driver's cleanup interval
func (w *Wrapper) SetCleanupInterval(d time.Duration) error {
	return w.tuned("cleanup_interval", w.driver.SetCleanupInterval(d))
}

// MaximumCheckOutTime returns how long a checkout may wait
func (w *Wrapper) MaximumCheckOutTime() time.Duration {
	return w.driver.MaximumCheckOutTime()
}

// SetMaximumCheckOutTime sets how long a checkout may wait
func (w *Wrapper) SetMaximumCheckOutTime(d time.Duration) error {
	return w.tuned("maximum_check_out_time", w.driver.SetMaximumCheckOutTime(d))
}

func (w *Wrapper) tuned(param string, err error) error {
	if err != nil {
		w.logger.Debug("invalid tuning parameter", zap.String("parameter", param), zap.Error(err))
	}
	return err
}

// DataSource returns the counting data source the driver opens connections
// through.
func (w *Wrapper) DataSource() DataSource {
	return w.source
}

// Name returns the pool name
func (w *Wrapper) Name() string {
	return w.name
}

// URL returns the connection factory URL
func (w *Wrapper) URL() string {
	return w.url
}

// Username returns the pool user's name
func (w *Wrapper) Username() string {
	return w.user.Username
}
