// Package telemetry bootstraps the process-wide otel TracerProvider that
// internal/pipeline's span helpers write into. Without a call to Setup,
// otel.Tracer calls throughout the module are bound to the no-op
// provider and every span is silently discarded.
package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config controls tracer provider construction.
type Config struct {
	ServiceName string
	// PrettyPrint writes indented span JSON to stdout; off by default so
	// production logs stay one-span-per-line.
	PrettyPrint bool
}

// Setup installs a process-wide TracerProvider exporting spans to stdout
// via a batch span processor, and returns a shutdown func the caller
// should defer to flush pending spans on exit.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "ts-vision-core"
	}

	exporterOpts := []stdouttrace.Option{stdouttrace.WithWriter(os.Stdout)}
	if cfg.PrettyPrint {
		exporterOpts = append(exporterOpts, stdouttrace.WithPrettyPrint())
	}

	exporter, err := stdouttrace.New(exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: new stdout exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
