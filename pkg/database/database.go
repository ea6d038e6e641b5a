// Package database defines the contracts between a pool and the code that
// opens physical database connections.
//
// A ConnectionFactory knows one database URL and opens connections for a
// user. Pools never see driver types; they hold Connection values and hand
// them back to the factory for validation. Factories for concrete databases
// live in sub-packages and register themselves by type name:
//
//	import _ "github.com/ajitpratap0/dbpool/pkg/database/postgres"
//
//	factory, err := database.NewFactory("postgres", "postgres://db:5432/orders")
package database

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/ajitpratap0/dbpool/pkg/auth"
)

// Connection is a handle on a physical or pooled database connection.
type Connection interface {
	// Close releases the connection. Closing twice is not an error.
	Close() error
	// IsClosed reports whether Close has been called or the link is gone.
	IsClosed() bool
}

// ConnectionFactory opens and validates physical connections for one URL.
type ConnectionFactory interface {
	// URL returns the connection string without credentials.
	URL() string
	// CreateConnection opens a new connection authenticated as user. It
	// fails with a connection error on I/O failure and an authentication
	// error when the database rejects the credential.
	CreateConnection(ctx context.Context, user auth.User) (Connection, error)
	// ConnectionValid reports whether conn is still usable.
	ConnectionValid(ctx context.Context, conn Connection) bool
}

// Unwrapper is implemented by connections that decorate another connection.
type Unwrapper interface {
	Unwrap() Connection
}

// Underlying strips every decorating layer from conn and returns the
// connection created by the factory.
func Underlying(conn Connection) Connection {
	for {
		u, ok := conn.(Unwrapper)
		if !ok {
			return conn
		}
		inner := u.Unwrap()
		if inner == nil {
			return conn
		}
		conn = inner
	}
}

// redactedPassword replaces a password in a keyword/value connection string.
const redactedPassword = "xxxxx"

// keywordPassword matches a password setting in a keyword/value DSN such as
// "host=db user=scott password='s3 cret'".
var keywordPassword = regexp.MustCompile(`(?i)(^|\s)password\s*=\s*('(?:[^'\\]|\\.)*'|\S*)`)

// queryPassword matches a password query parameter.
var queryPassword = regexp.MustCompile(`(?i)([?&])password=[^&]*`)

// RedactURL removes any credential embedded in a connection string so it
// can be logged or put into an error. It handles URLs (userinfo and a
// password query parameter), user:password@ DSNs and keyword/value DSNs.
func RedactURL(s string) string {
	if u, err := url.Parse(s); err == nil && u.Scheme != "" && u.Host != "" {
		if u.User != nil {
			u.User = url.User(u.User.Username())
		}
		if q := u.Query(); q.Has("password") {
			q.Del("password")
			u.RawQuery = q.Encode()
		}
		return u.String()
	}

	if !strings.Contains(s, "://") && keywordPassword.MatchString(s) {
		return keywordPassword.ReplaceAllString(s, "${1}password="+redactedPassword)
	}

	// DSN forms such as user:password@tcp(host:3306)/db?password=...
	if at := strings.LastIndex(s, "@"); at >= 0 {
		userinfo := s[:at]
		if colon := strings.Index(userinfo, ":"); colon >= 0 && !strings.Contains(userinfo, "/") {
			s = userinfo[:colon] + s[at:]
		}
	}
	return queryPassword.ReplaceAllString(s, "${1}password="+redactedPassword)
}
