package sqlconn

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/dbpool/pkg/auth"
	"github.com/ajitpratap0/dbpool/pkg/poolerrors"
)

var errAccessDenied = errors.New("access denied")

type fakeDriverConn struct {
	closed  int
	valid   bool
	pingErr error
}

func (c *fakeDriverConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("unsupported") }
func (c *fakeDriverConn) Close() error                        { c.closed++; return nil }
func (c *fakeDriverConn) Begin() (driver.Tx, error)           { return nil, errors.New("unsupported") }
func (c *fakeDriverConn) IsValid() bool                       { return c.valid }
func (c *fakeDriverConn) Ping(context.Context) error          { return c.pingErr }

type fakeConnector struct {
	conn *fakeDriverConn
	err  error
}

func (c fakeConnector) Connect(context.Context) (driver.Conn, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.conn, nil
}
func (c fakeConnector) Driver() driver.Driver { return nil }

func newFactory(t *testing.T, conn *fakeDriverConn, err error) *Factory {
	return New("fake://db", func(user auth.User) (driver.Connector, error) {
		if user.Username == "" {
			return nil, errors.New("no user")
		}
		return fakeConnector{conn: conn, err: err}, nil
	},
		WithLogger(zaptest.NewLogger(t)),
		WithClassifier(func(err error) poolerrors.ErrorType {
			if errors.Is(err, errAccessDenied) {
				return poolerrors.ErrorTypeAuthentication
			}
			return ""
		}))
}

func TestCreateAndValidate(t *testing.T) {
	raw := &fakeDriverConn{valid: true}
	f := newFactory(t, raw, nil)
	ctx := context.Background()

	conn, err := f.CreateConnection(ctx, auth.NewUser("scott", "tiger"))
	require.NoError(t, err)
	assert.Equal(t, "fake://db", f.URL())
	assert.True(t, f.ConnectionValid(ctx, conn))

	dc, ok := FromConnection(conn)
	require.True(t, ok)
	assert.Same(t, raw, dc)

	raw.pingErr = errors.New("broken pipe")
	assert.False(t, f.ConnectionValid(ctx, conn))

	raw.pingErr = nil
	raw.valid = false
	assert.False(t, f.ConnectionValid(ctx, conn))

	raw.valid = true
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.Equal(t, 1, raw.closed)
	assert.True(t, conn.IsClosed())
	assert.False(t, f.ConnectionValid(ctx, conn))
}

func TestCreateConnectionErrors(t *testing.T) {
	ctx := context.Background()

	_, err := newFactory(t, nil, errAccessDenied).CreateConnection(ctx, auth.NewUser("scott", "tiger"))
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeAuthentication))
	assert.NotContains(t, err.Error(), "tiger")

	_, err = newFactory(t, nil, errors.New("connection refused")).CreateConnection(ctx, auth.NewUser("scott", "tiger"))
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeConnection))

	_, err = newFactory(t, nil, nil).CreateConnection(ctx, auth.User{})
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeConfig))
}
