package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracingStdout(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultTracingConfig()
	cfg.Exporter = ExporterStdout
	cfg.Writer = &buf
	cfg.SamplingRate = 1

	tp, err := InitTracing(cfg)
	require.NoError(t, err)

	_, span := Tracer().Start(context.Background(), "pool.checkout")
	span.End()

	require.NoError(t, tp.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "pool.checkout")
	assert.Contains(t, buf.String(), "dbpool")
}

func TestInitTracingNeverSample(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultTracingConfig()
	cfg.Exporter = ExporterStdout
	cfg.Writer = &buf
	cfg.SamplingRate = 0

	tp, err := InitTracing(cfg)
	require.NoError(t, err)

	_, span := Tracer().Start(context.Background(), "pool.checkout")
	assert.False(t, span.SpanContext().IsSampled())
	span.End()

	require.NoError(t, tp.Shutdown(context.Background()))
	assert.Empty(t, buf.String())
}

func TestInitTracingUnknownExporter(t *testing.T) {
	cfg := DefaultTracingConfig()
	cfg.Exporter = "jaeger"
	_, err := InitTracing(cfg)
	assert.Error(t, err)
}

func TestShutdownWithoutProvider(t *testing.T) {
	assert.NotPanics(t, func() { _ = Shutdown(context.Background()) })
}
