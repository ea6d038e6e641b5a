package mysql

import (
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/dbpool/pkg/database"
	"github.com/ajitpratap0/dbpool/pkg/poolerrors"
)

func TestNewFactory(t *testing.T) {
	f, err := NewFactory("root:hunter2@tcp(db:3306)/orders?parseTime=true")
	require.NoError(t, err)
	assert.NotContains(t, f.URL(), "hunter2")
}

func TestNewFactoryInvalidDSN(t *testing.T) {
	_, err := NewFactory("tcp(db:3306)orders")
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeConfig))
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, database.Types(), TypeName)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, poolerrors.ErrorTypeAuthentication, classify(&mysql.MySQLError{Number: 1045, Message: "Access denied"}))
	assert.Equal(t, poolerrors.ErrorType(""), classify(&mysql.MySQLError{Number: 1146}))
	assert.Equal(t, poolerrors.ErrorType(""), classify(errors.New("dial tcp: connection refused")))
}
