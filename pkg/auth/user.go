// Package auth holds the credential a pool authenticates its callers against.
package auth

import (
	"crypto/subtle"
	"strings"
)

// User is a database username and password.
//
// Usernames compare case-insensitively, passwords byte for byte. The
// password is never rendered by String or by any error in this module.
type User struct {
	Username string
	Password []byte
}

// NewUser creates a user, copying the password bytes.
func NewUser(username, password string) User {
	return User{Username: username, Password: []byte(password)}
}

// Parse reads "username:password" or a bare "username" with an empty password.
func Parse(s string) User {
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return NewUser(s[:i], s[i+1:])
	}
	return NewUser(s, "")
}

// Mismatch describes why a submitted credential was rejected.
type Mismatch string

const (
	// Match means the credential is accepted
	Match Mismatch = ""
	// WrongUsername means the usernames differ
	WrongUsername Mismatch = "wrong username"
	// WrongPassword means the passwords differ
	WrongPassword Mismatch = "wrong password"
)

// Verify compares a submitted credential with u and returns the reason it
// does not match, or Match.
func (u User) Verify(submitted User) Mismatch {
	if !strings.EqualFold(u.Username, submitted.Username) {
		return WrongUsername
	}
	if subtle.ConstantTimeCompare(u.Password, submitted.Password) != 1 {
		return WrongPassword
	}
	return Match
}

// Equal reports whether the two users carry the same credential.
func (u User) Equal(other User) bool {
	return u.Verify(other) == Match
}

// Copy returns a user that shares no memory with u.
func (u User) Copy() User {
	pw := make([]byte, len(u.Password))
	copy(pw, u.Password)
	return User{Username: u.Username, Password: pw}
}

// String returns the username only.
func (u User) String() string {
	return u.Username
}
