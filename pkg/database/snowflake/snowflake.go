// Package snowflake provides a Snowflake connection factory built on
// github.com/snowflakedb/gosnowflake. Import it for its side effect of
// registering the "snowflake" database type.
package snowflake

import (
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/snowflakedb/gosnowflake"

	"github.com/ajitpratap0/dbpool/pkg/auth"
	"github.com/ajitpratap0/dbpool/pkg/database"
	"github.com/ajitpratap0/dbpool/pkg/database/sqlconn"
	"github.com/ajitpratap0/dbpool/pkg/poolerrors"
)

// TypeName is the registered database type
const TypeName = "snowflake"

// errIncorrectCredentials is returned by the server for a bad login.
const errIncorrectCredentials = 390100

// placeholder credential used to parse DSNs that carry none; the driver
// refuses a DSN without a user.
const placeholder = "dbpool:dbpool@"

func init() {
	database.MustRegister(TypeName, func(url string) (database.ConnectionFactory, error) {
		return NewFactory(url)
	})
}

// NewFactory parses a DSN such as "account/db/schema?warehouse=wh".
// Credentials in the DSN are replaced by the user of each connection.
func NewFactory(dsn string, opts ...sqlconn.Option) (*sqlconn.Factory, error) {
	parse := dsn
	if !strings.Contains(dsn, "@") {
		parse = placeholder + dsn
	}
	base, err := gosnowflake.ParseDSN(parse)
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeConfig, "invalid Snowflake DSN").
			WithDetail("url", database.RedactURL(dsn))
	}

	connector := func(user auth.User) (driver.Connector, error) {
		cfg := *base
		cfg.User = user.Username
		cfg.Password = string(user.Password)
		return gosnowflake.NewConnector(gosnowflake.SnowflakeDriver{}, cfg), nil
	}

	opts = append([]sqlconn.Option{sqlconn.WithClassifier(classify)}, opts...)
	return sqlconn.New(database.RedactURL(dsn), connector, opts...), nil
}

func classify(err error) poolerrors.ErrorType {
	var sfErr *gosnowflake.SnowflakeError
	if errors.As(err, &sfErr) && sfErr.Number == errIncorrectCredentials {
		return poolerrors.ErrorTypeAuthentication
	}
	return ""
}
