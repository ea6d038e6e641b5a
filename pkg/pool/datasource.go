package pool

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ajitpratap0/dbpool/pkg/auth"
	"github.com/ajitpratap0/dbpool/pkg/database"
	"github.com/ajitpratap0/dbpool/pkg/poolerrors"
)

// DataSource is what a Driver opens physical connections through. Every
// connection it returns is counted as created, and counted as destroyed
// when it is closed.
type DataSource interface {
	// Connection opens a connection as the pool user.
	Connection(ctx context.Context) (database.Connection, error)
	// ConnectAs opens a connection after checking user against the pool user.
	ConnectAs(ctx context.Context, user auth.User) (database.Connection, error)
	// URL returns the factory URL with any credential removed.
	URL() string
	// Delayed records a checkout that found the pool exhausted and had to
	// wait for a connection.
	Delayed()
}

// countingDataSource sits between a driver and the connection factory.
type countingDataSource struct {
	factory database.ConnectionFactory
	url     string
	user    auth.User
	counter *Counter
	logger  *zap.Logger
}

func newDataSource(factory database.ConnectionFactory, url string, user auth.User, counter *Counter, l *zap.Logger) *countingDataSource {
	return &countingDataSource{
		factory: factory,
		url:     url,
		user:    user,
		counter: counter,
		logger:  l,
	}
}

func (ds *countingDataSource) URL() string {
	return ds.url
}

func (ds *countingDataSource) Delayed() {
	ds.counter.IncrementDelayedRequests()
}

func (ds *countingDataSource) Connection(ctx context.Context) (database.Connection, error) {
	return ds.open(ctx)
}

func (ds *countingDataSource) ConnectAs(ctx context.Context, user auth.User) (database.Connection, error) {
	if mismatch := ds.user.Verify(user); mismatch != auth.Match {
		return nil, poolerrors.New(poolerrors.ErrorTypeAuthentication, string(mismatch)).
			WithDetail("url", ds.url).
			WithDetail("username", user.Username)
	}
	return ds.open(ctx)
}

func (ds *countingDataSource) open(ctx context.Context) (database.Connection, error) {
	conn, err := ds.factory.CreateConnection(ctx, ds.user)
	if err != nil {
		return nil, err
	}
	ds.counter.IncrementCreated()
	ds.logger.Debug("physical connection created", zap.String("username", ds.user.Username))
	return &trackedConnection{Connection: conn, ds: ds}, nil
}

// trackedConnection counts its own close exactly once.
type trackedConnection struct {
	database.Connection
	ds     *countingDataSource
	closed atomic.Bool
}

func (c *trackedConnection) Close() error {
	if c.Connection.IsClosed() || !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.ds.counter.IncrementDestroyed()
	c.ds.logger.Debug("physical connection destroyed", zap.String("username", c.ds.user.Username))
	return c.Connection.Close()
}

func (c *trackedConnection) Unwrap() database.Connection {
	return c.Connection
}
