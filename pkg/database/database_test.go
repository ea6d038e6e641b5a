package database

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/dbpool/pkg/auth"
	"github.com/ajitpratap0/dbpool/pkg/poolerrors"
)

type stubConn struct{ closed bool }

func (c *stubConn) Close() error   { c.closed = true; return nil }
func (c *stubConn) IsClosed() bool { return c.closed }

type wrapConn struct {
	Connection
}

func (w wrapConn) Unwrap() Connection { return w.Connection }

type stubFactory struct{ url string }

func (f stubFactory) URL() string { return f.url }
func (f stubFactory) CreateConnection(context.Context, auth.User) (Connection, error) {
	return &stubConn{}, nil
}
func (f stubFactory) ConnectionValid(_ context.Context, c Connection) bool { return !c.IsClosed() }

func TestUnderlying(t *testing.T) {
	inner := &stubConn{}
	wrapped := wrapConn{wrapConn{inner}}

	assert.Same(t, inner, Underlying(wrapped))
	assert.Same(t, inner, Underlying(inner))
	assert.Equal(t, wrapConn{}, Underlying(wrapConn{}))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("stub", func(url string) (ConnectionFactory, error) {
		return stubFactory{url: url}, nil
	}))
	require.NoError(t, r.Register("broken", func(string) (ConnectionFactory, error) {
		return nil, errors.New("bad url")
	}))

	err := r.Register("stub", nil)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeConfig))

	f, err := r.NewFactory("stub", "stub://here")
	require.NoError(t, err)
	assert.Equal(t, "stub://here", f.URL())

	_, err = r.NewFactory("missing", "x")
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeConfig))

	_, err = r.NewFactory("broken", "x")
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeConfig))

	assert.Equal(t, []string{"broken", "stub"}, r.Types())
}

func TestRedactURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"url userinfo", "postgres://scott:tiger@db:5432/orders", "postgres://scott@db:5432/orders"},
		{"url without credential", "postgres://db:5432/orders", "postgres://db:5432/orders"},
		{"url password parameter", "postgres://db:5432/orders?password=hunter2", "postgres://db:5432/orders"},
		{"url password among parameters", "postgres://scott@db:5432/orders?sslmode=disable&password=hunter2", "postgres://scott@db:5432/orders?sslmode=disable"},
		{"dsn userinfo", "scott:tiger@tcp(db:3306)/orders", "scott@tcp(db:3306)/orders"},
		{"dsn without credential", "tcp(db:3306)/orders", "tcp(db:3306)/orders"},
		{"dsn password parameter", "scott@tcp(db:3306)/orders?parseTime=true&password=hunter2", "scott@tcp(db:3306)/orders?parseTime=true&password=xxxxx"},
		{"keyword value", "host=db port=5432 user=scott password=hunter2 dbname=orders", "host=db port=5432 user=scott password=xxxxx dbname=orders"},
		{"keyword value quoted", "host=db password='hun ter2' dbname=orders", "host=db password=xxxxx dbname=orders"},
		{"keyword value leading", "password = hunter2 host=db", "password=xxxxx host=db"},
		{"keyword value with at sign", "host=db user=scott@corp password=hunter2", "host=db user=scott@corp password=xxxxx"},
		{"keyword value without password", "host=db user=scott dbname=orders", "host=db user=scott dbname=orders"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RedactURL(tt.in)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "hunter2")
			assert.NotContains(t, got, "tiger")
		})
	}
}
