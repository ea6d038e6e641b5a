// Package postgres provides a PostgreSQL connection factory built on
// github.com/jackc/pgx/v5. Import it for its side effect of registering the
// "postgres" database type.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/ajitpratap0/dbpool/pkg/auth"
	"github.com/ajitpratap0/dbpool/pkg/database"
	"github.com/ajitpratap0/dbpool/pkg/logger"
	"github.com/ajitpratap0/dbpool/pkg/poolerrors"
)

// TypeName is the registered database type
const TypeName = "postgres"

// SQLSTATE codes for rejected credentials.
const (
	invalidPassword          = "28P01"
	invalidAuthorizationSpec = "28000"
)

const (
	defaultValidationTimeout = 5 * time.Second
	defaultClosingTimeout    = 5 * time.Second
)

func init() {
	database.MustRegister(TypeName, func(url string) (database.ConnectionFactory, error) {
		return NewFactory(url)
	})
}

// Factory opens pgx connections for one connection string.
type Factory struct {
	url               string
	base              *pgx.ConnConfig
	healthQuery       string
	validationTimeout time.Duration
	logger            *zap.Logger
}

// Option configures a Factory
type Option func(*Factory)

// WithHealthQuery validates connections by running query instead of a ping
func WithHealthQuery(query string) Option {
	return func(f *Factory) {
		f.healthQuery = query
	}
}

// WithValidationTimeout bounds a single validation round trip
func WithValidationTimeout(d time.Duration) Option {
	return func(f *Factory) {
		f.validationTimeout = d
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(f *Factory) {
		f.logger = l
	}
}

// NewFactory parses a connection string such as
// "postgres://db:5432/orders?sslmode=disable". Credentials in the string are
// replaced by the user of each connection.
func NewFactory(connString string, opts ...Option) (*Factory, error) {
	base, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeConfig, "failed to parse PostgreSQL connection string").
			WithDetail("url", database.RedactURL(connString))
	}

	f := &Factory{
		url:               database.RedactURL(connString),
		base:              base,
		validationTimeout: defaultValidationTimeout,
		logger:            logger.Get(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With(zap.String("component", "postgres_factory"), zap.String("url", f.url))
	return f, nil
}

// URL implements database.ConnectionFactory
func (f *Factory) URL() string {
	return f.url
}

// CreateConnection implements database.ConnectionFactory
func (f *Factory) CreateConnection(ctx context.Context, user auth.User) (database.Connection, error) {
	cfg := f.base.Copy()
	cfg.User = user.Username
	cfg.Password = string(user.Password)

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		errType := poolerrors.ErrorTypeConnection
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && (pgErr.Code == invalidPassword || pgErr.Code == invalidAuthorizationSpec) {
			errType = poolerrors.ErrorTypeAuthentication
		}
		return nil, poolerrors.Wrap(err, errType, "failed to connect to PostgreSQL").
			WithDetail("url", f.url).
			WithDetail("username", user.Username)
	}

	f.logger.Debug("connection opened",
		zap.String("username", user.Username),
		zap.Uint32("backend_pid", conn.PgConn().PID()))
	return &Conn{conn: conn}, nil
}

// ConnectionValid implements database.ConnectionFactory
func (f *Factory) ConnectionValid(ctx context.Context, conn database.Connection) bool {
	c, ok := database.Underlying(conn).(*Conn)
	if !ok || c.IsClosed() {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, f.validationTimeout)
	defer cancel()

	if f.healthQuery == "" {
		return c.conn.Ping(ctx) == nil
	}
	_, err := c.conn.Exec(ctx, f.healthQuery)
	return err == nil
}

// Conn is a pgx connection owned by a pool.
type Conn struct {
	conn *pgx.Conn
}

// Close closes the pgx connection
func (c *Conn) Close() error {
	if c.conn.IsClosed() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultClosingTimeout)
	defer cancel()
	return c.conn.Close(ctx)
}

// IsClosed reports whether the connection is closed
func (c *Conn) IsClosed() bool {
	return c.conn.IsClosed()
}

// Pgx returns the pgx connection
func (c *Conn) Pgx() *pgx.Conn {
	return c.conn
}

// FromConnection returns the pgx connection underneath a pooled handle.
//
//	handle, err := wrapper.Connection(ctx, user)
//	...
//	defer handle.Close()
//	pgxConn, _ := postgres.FromConnection(handle)
//	rows, err := pgxConn.Query(ctx, "SELECT id FROM orders")
func FromConnection(conn database.Connection) (*pgx.Conn, bool) {
	c, ok := database.Underlying(conn).(*Conn)
	if !ok {
		return nil, false
	}
	return c.conn, true
}
