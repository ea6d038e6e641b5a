package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestInitReplacesGlobal(t *testing.T) {
	require.NoError(t, Init(Config{Level: "debug", Encoding: "console"}))
	first := Get()
	require.NoError(t, Init(Config{Level: "warn"}))
	second := Get()

	assert.NotSame(t, first, second)
	assert.False(t, second.Core().Enabled(zapcore.DebugLevel))
}

func TestWithContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), PoolKey, "orders")
	ctx = context.WithValue(ctx, UsernameKey, "scott")

	assert.NotNil(t, WithContext(ctx))
}
