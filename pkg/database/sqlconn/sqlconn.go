// Package sqlconn adapts database/sql drivers to database.ConnectionFactory.
//
// Drivers that expose a driver.Connector (go-sql-driver/mysql, gosnowflake)
// are opened directly through the connector, bypassing sql.DB and its own
// pool, so that every physical connection is owned by a dbpool pool.
package sqlconn

import (
	"context"
	"database/sql/driver"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ajitpratap0/dbpool/pkg/auth"
	"github.com/ajitpratap0/dbpool/pkg/database"
	"github.com/ajitpratap0/dbpool/pkg/logger"
	"github.com/ajitpratap0/dbpool/pkg/poolerrors"
)

// ConnectorFunc builds a connector that authenticates as user.
type ConnectorFunc func(user auth.User) (driver.Connector, error)

// Classifier maps a driver error to an error type. Returning "" keeps the
// default ErrorTypeConnection.
type Classifier func(err error) poolerrors.ErrorType

// Factory is a database.ConnectionFactory over a driver.Connector.
type Factory struct {
	url       string
	connector ConnectorFunc
	classify  Classifier
	logger    *zap.Logger
}

// Option configures a Factory
type Option func(*Factory)

// WithClassifier installs a driver specific error classifier
func WithClassifier(c Classifier) Option {
	return func(f *Factory) {
		f.classify = c
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(f *Factory) {
		f.logger = l
	}
}

// New creates a factory for url using connector to open connections.
func New(url string, connector ConnectorFunc, opts ...Option) *Factory {
	f := &Factory{
		url:       url,
		connector: connector,
		logger:    logger.Get(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With(zap.String("component", "sqlconn"), zap.String("url", database.RedactURL(url)))
	return f
}

// URL implements database.ConnectionFactory
func (f *Factory) URL() string {
	return f.url
}

// CreateConnection implements database.ConnectionFactory
func (f *Factory) CreateConnection(ctx context.Context, user auth.User) (database.Connection, error) {
	connector, err := f.connector(user)
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeConfig, "failed to build connector").
			WithDetail("url", database.RedactURL(f.url)).
			WithDetail("username", user.Username)
	}

	dc, err := connector.Connect(ctx)
	if err != nil {
		errType := poolerrors.ErrorTypeConnection
		if f.classify != nil {
			if t := f.classify(err); t != "" {
				errType = t
			}
		}
		return nil, poolerrors.Wrap(err, errType, "failed to open connection").
			WithDetail("url", database.RedactURL(f.url)).
			WithDetail("username", user.Username)
	}

	f.logger.Debug("connection opened", zap.String("username", user.Username))
	return &Conn{conn: dc}, nil
}

// ConnectionValid implements database.ConnectionFactory. A connection is
// valid when it is open, its driver reports it valid and, if the driver
// supports it, a ping succeeds.
func (f *Factory) ConnectionValid(ctx context.Context, conn database.Connection) bool {
	c, ok := database.Underlying(conn).(*Conn)
	if !ok || c.IsClosed() {
		return false
	}
	if v, ok := c.conn.(driver.Validator); ok && !v.IsValid() {
		return false
	}
	if p, ok := c.conn.(driver.Pinger); ok {
		return p.Ping(ctx) == nil
	}
	return true
}

// Conn is a physical connection opened through a driver.Connector.
type Conn struct {
	conn   driver.Conn
	closed atomic.Bool
}

// Close closes the driver connection once
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.conn.Close()
}

// IsClosed reports whether Close has been called
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Raw returns the driver connection
func (c *Conn) Raw() driver.Conn {
	return c.conn
}

// FromConnection returns the driver connection underneath a pooled handle.
func FromConnection(conn database.Connection) (driver.Conn, bool) {
	c, ok := database.Underlying(conn).(*Conn)
	if !ok {
		return nil, false
	}
	return c.conn, true
}
