package poolerrors

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeConnection, "nothing"))
}

func TestWrapKeepsStructuredStack(t *testing.T) {
	inner := New(ErrorTypeTimeout, "waited too long")
	outer := Wrap(inner, ErrorTypeConnection, "unable to fetch connection")

	require.NotNil(t, outer)
	assert.Equal(t, inner.Stack, outer.Stack)
	assert.True(t, errors.Is(outer, inner))
	assert.True(t, IsType(outer, ErrorTypeConnection))
	assert.Equal(t, "connection: unable to fetch connection: timeout: waited too long", outer.Error())
}

func TestWrapForeignCapturesStack(t *testing.T) {
	err := Wrap(io.EOF, ErrorTypeConnection, "read failed")

	assert.NotEmpty(t, err.Stack)
	assert.ErrorIs(t, err, io.EOF)
}

func TestIsRetryable(t *testing.T) {
	cases := map[ErrorType]bool{
		ErrorTypeConnection:     true,
		ErrorTypeTimeout:        true,
		ErrorTypeAuthentication: false,
		ErrorTypeConfig:         false,
		ErrorTypeState:          false,
		ErrorTypeValidation:     false,
		ErrorTypeInternal:       false,
	}
	for errType, want := range cases {
		assert.Equal(t, want, IsRetryable(New(errType, "x")), string(errType))
	}
	assert.False(t, IsRetryable(io.EOF))
}

func TestWithDetail(t *testing.T) {
	err := Newf(ErrorTypeConfig, "maximum pool size %d out of range", 0).
		WithDetail("minimum", 4)

	assert.Equal(t, "config: maximum pool size 0 out of range", err.Error())
	assert.Equal(t, 4, err.Details["minimum"])
}
