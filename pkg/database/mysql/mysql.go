// Package mysql provides a MySQL connection factory built on
// github.com/go-sql-driver/mysql. Import it for its side effect of
// registering the "mysql" database type.
package mysql

import (
	"database/sql/driver"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/ajitpratap0/dbpool/pkg/auth"
	"github.com/ajitpratap0/dbpool/pkg/database"
	"github.com/ajitpratap0/dbpool/pkg/database/sqlconn"
	"github.com/ajitpratap0/dbpool/pkg/poolerrors"
)

// TypeName is the registered database type
const TypeName = "mysql"

// Server error numbers that mean the credential was rejected.
const (
	erDBAccessDenied     = 1044
	erAccessDenied       = 1045
	erAccessDeniedNoPass = 1698
)

func init() {
	database.MustRegister(TypeName, func(url string) (database.ConnectionFactory, error) {
		return NewFactory(url)
	})
}

// NewFactory parses a DSN such as "tcp(db:3306)/orders?parseTime=true".
// Credentials in the DSN are replaced by the user of each connection.
func NewFactory(dsn string, opts ...sqlconn.Option) (*sqlconn.Factory, error) {
	base, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeConfig, "invalid MySQL DSN").
			WithDetail("url", database.RedactURL(dsn))
	}

	connector := func(user auth.User) (driver.Connector, error) {
		cfg := base.Clone()
		cfg.User = user.Username
		cfg.Passwd = string(user.Password)
		return mysql.NewConnector(cfg)
	}

	opts = append([]sqlconn.Option{sqlconn.WithClassifier(classify)}, opts...)
	return sqlconn.New(database.RedactURL(dsn), connector, opts...), nil
}

func classify(err error) poolerrors.ErrorType {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case erDBAccessDenied, erAccessDenied, erAccessDeniedNoPass:
			return poolerrors.ErrorTypeAuthentication
		}
	}
	return ""
}
