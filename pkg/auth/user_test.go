package auth

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerify(t *testing.T) {
	pool := NewUser("Admin", "secret")

	assert.Equal(t, Match, pool.Verify(NewUser("admin", "secret")))
	assert.Equal(t, Match, pool.Verify(NewUser("ADMIN", "secret")))
	assert.Equal(t, WrongUsername, pool.Verify(NewUser("root", "secret")))
	assert.Equal(t, WrongPassword, pool.Verify(NewUser("admin", "Secret")))
	assert.Equal(t, WrongPassword, pool.Verify(NewUser("admin", "secret ")))
	assert.Equal(t, WrongPassword, pool.Verify(User{Username: "admin"}))
}

func TestParse(t *testing.T) {
	u := Parse("scott:ti:ger")
	assert.Equal(t, "scott", u.Username)
	assert.Equal(t, []byte("ti:ger"), u.Password)

	u = Parse("scott")
	assert.Equal(t, "scott", u.Username)
	assert.Empty(t, u.Password)
}

func TestStringHidesPassword(t *testing.T) {
	u := NewUser("scott", "tiger")
	assert.Equal(t, "scott", fmt.Sprint(u))
}

func TestCopy(t *testing.T) {
	u := NewUser("scott", "tiger")
	c := u.Copy()
	c.Password[0] = 'T'

	assert.Equal(t, []byte("tiger"), u.Password)
	assert.False(t, u.Equal(c))
}
