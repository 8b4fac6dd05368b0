// Package telemetry installs the global OpenTelemetry tracer provider used
// by the pipeline. Spans are written as JSON to a trace file; with no file
// configured the global no-op provider is left in place.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const DefaultServiceName = "cbuildbot"

// Config controls where spans go.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// TraceFile receives one JSON document per finished span. Empty
	// disables tracing.
	TraceFile string
}

// ShutdownFunc flushes pending spans and releases the trace file.
type ShutdownFunc func(context.Context) error

// Setup installs a tracer provider for cfg. The returned shutdown func is
// never nil.
func Setup(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	if ctx == nil {
		return nil, errors.New("telemetry: nil context")
	}
	noop := func(context.Context) error { return nil }
	if cfg.TraceFile == "" {
		return noop, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}

	file, err := os.OpenFile(cfg.TraceFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return noop, fmt.Errorf("telemetry: open trace file: %w", err)
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(file))
	if err != nil {
		_ = file.Close()
		return noop, fmt.Errorf("telemetry: create exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		var errs []error
		if err := tp.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := file.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := errors.Join(errs...); err != nil {
			return fmt.Errorf("telemetry: shutdown: %w", err)
		}
		return nil
	}, nil
}
