// Package observability sets up OpenTelemetry tracing for dbpool. Every
// checkout runs in a "pool.checkout" span on the global tracer provider
// unless the pool was given its own tracer.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/ajitpratap0/dbpool/pkg/logger"
)

// Exporter names
const (
	ExporterStdout = "stdout"
	ExporterNone   = "none"
)

// TracingConfig contains tracing configuration
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	SamplingRate   float64
	Exporter       string    // "stdout" or "none"
	Writer         io.Writer // stdout exporter destination, os.Stdout when nil
	BatchTimeout   time.Duration
}

// DefaultTracingConfig returns a configuration read from the environment
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName:    "dbpool",
		ServiceVersion: "1.0.0",
		Environment:    getEnv("ENVIRONMENT", "development"),
		SamplingRate:   getRate("TRACING_SAMPLING_RATE", 0.1),
		Exporter:       getEnv("TRACING_EXPORTER", ExporterNone),
		BatchTimeout:   5 * time.Second,
	}
}

// InitTracing installs a tracer provider as the global provider. The
// caller owns the provider and should shut it down on exit.
func InitTracing(cfg TracingConfig) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Configure sampling
	var sampler sdktrace.Sampler
	switch {
	case cfg.SamplingRate <= 0:
		sampler = sdktrace.NeverSample()
	case cfg.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	}

	switch cfg.Exporter {
	case ExporterNone, "":
	case ExporterStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(cfg.BatchTimeout)))
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp, nil
}

// Tracer returns the dbpool tracer of the global provider
func Tracer() trace.Tracer {
	return otel.Tracer("github.com/ajitpratap0/dbpool")
}

// Shutdown flushes the global tracer provider and the logger.
func Shutdown(ctx context.Context) error {
	var errs []error

	if tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); ok {
		if err := tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer: %w", err))
		}
	}
	if err := logger.Sync(); err != nil && !isConsoleSyncError(err) {
		errs = append(errs, fmt.Errorf("failed to sync logger: %w", err))
	}

	return errors.Join(errs...)
}

// isConsoleSyncError reports the errors fsync returns for stdout and
// stderr, see https://github.com/uber-go/zap/issues/328
func isConsoleSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "bad file descriptor") ||
		strings.Contains(msg, "invalid argument") ||
		strings.Contains(msg, "inappropriate ioctl")
}

// getEnv gets environment variable with default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getRate(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}
