package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ajitpratap0/dbpool/pkg/auth"
	"github.com/ajitpratap0/dbpool/pkg/database"
	"github.com/ajitpratap0/dbpool/pkg/poolerrors"
)

// FakeFactory is an in-memory database.ConnectionFactory.
type FakeFactory struct {
	url string

	nextID  atomic.Int64
	opened  atomic.Int64
	closed  atomic.Int64
	invalid atomic.Bool

	mu        sync.Mutex
	createErr error
	conns     []*FakeConnection
}

// NewFakeFactory creates a factory reporting url
func NewFakeFactory(url string) *FakeFactory {
	return &FakeFactory{url: url}
}

// URL implements database.ConnectionFactory
func (f *FakeFactory) URL() string {
	return f.url
}

// CreateConnection implements database.ConnectionFactory
func (f *FakeFactory) CreateConnection(ctx context.Context, user auth.User) (database.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeConnection, "connect cancelled")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return nil, f.createErr
	}

	conn := &FakeConnection{
		ID:       f.nextID.Add(1),
		Username: user.Username,
		factory:  f,
	}
	f.conns = append(f.conns, conn)
	f.opened.Add(1)
	return conn, nil
}

// ConnectionValid implements database.ConnectionFactory. Connections are
// valid until closed, invalidated, or while InvalidateAll is in effect.
func (f *FakeFactory) ConnectionValid(_ context.Context, conn database.Connection) bool {
	fc, ok := conn.(*FakeConnection)
	if !ok {
		return false
	}
	return !fc.IsClosed() && !fc.invalid.Load() && !f.invalid.Load()
}

// FailCreate makes CreateConnection return err until called with nil
func (f *FakeFactory) FailCreate(err error) {
	f.mu.Lock()
	f.createErr = err
	f.mu.Unlock()
}

// InvalidateAll makes ConnectionValid report false for every connection
func (f *FakeFactory) InvalidateAll(invalid bool) {
	f.invalid.Store(invalid)
}

// Opened returns the number of connections created
func (f *FakeFactory) Opened() int64 {
	return f.opened.Load()
}

// Closed returns the number of connections closed
func (f *FakeFactory) Closed() int64 {
	return f.closed.Load()
}

// Connections returns every connection created so far
func (f *FakeFactory) Connections() []*FakeConnection {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*FakeConnection, len(f.conns))
	copy(out, f.conns)
	return out
}

// FakeConnection is a connection created by FakeFactory.
type FakeConnection struct {
	ID       int64
	Username string

	factory *FakeFactory
	closed  atomic.Bool
	invalid atomic.Bool
}

// Close implements database.Connection
func (c *FakeConnection) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.factory.closed.Add(1)
	}
	return nil
}

// IsClosed implements database.Connection
func (c *FakeConnection) IsClosed() bool {
	return c.closed.Load()
}

// Invalidate makes the connection fail validation
func (c *FakeConnection) Invalidate() {
	c.invalid.Store(true)
}

// FakeOf returns the FakeConnection beneath any wrapping layers
func FakeOf(conn database.Connection) (*FakeConnection, bool) {
	fc, ok := database.Underlying(conn).(*FakeConnection)
	return fc, ok
}
