// Package observability wires structured logging for the worker and job
// runner binaries: a plain log/slog logger by default, or an OpenTelemetry
// bridge when enabled, following the same Setup/shutdown shape as the
// original multi-signal (trace/metric/log) provider this package used to
// expose — trimmed down to the one signal the reconciliation core actually
// emits: structured logs.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// DefaultServiceName identifies this module's logs when OTEL_SERVICE_NAME
// is not set.
const DefaultServiceName = "al-tool"

// Config controls whether logs are bridged through the OTel SDK.
type Config struct {
	Enabled     bool
	ServiceName string
}

// Setup installs a slog logger appropriate for cfg and returns a shutdown
// func that flushes any buffered log records. When cfg.Enabled is false it
// returns a plain JSON logger to stdout and a no-op shutdown func, no OTel
// plumbing involved.
func Setup(ctx context.Context, cfg Config) (*slog.Logger, func(context.Context) error, error) {
	if !cfg.Enabled {
		logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
		return logger, func(context.Context) error { return nil }, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = DefaultServiceName
	}

	res, err := newResource(ctx, serviceName)
	if err != nil {
		return nil, nil, err
	}

	exporter, err := stdoutlog.New(stdoutlog.WithPrettyPrint())
	if err != nil {
		return nil, nil, fmt.Errorf("observability: create log exporter: %w", err)
	}

	provider := log.NewLoggerProvider(
		log.WithProcessor(log.NewBatchProcessor(exporter)),
		log.WithResource(res),
	)

	logger := otelslog.NewLogger(serviceName, otelslog.WithLoggerProvider(provider))
	return logger, provider.Shutdown, nil
}

// newResource merges the SDK defaults with OTEL_RESOURCE_ATTRIBUTES and the
// given service name, tolerating the partial-resource errors that
// resource.Merge reports for schema conflicts (non-fatal: the resource is
// still usable).
func newResource(ctx context.Context, serviceName string) (*resource.Resource, error) {
	serviceResource, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
		resource.WithSchemaURL(semconv.SchemaURL),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	res, err := resource.Merge(resource.Default(), serviceResource)
	if err != nil {
		if errors.Is(err, resource.ErrPartialResource) || errors.Is(err, resource.ErrSchemaURLConflict) {
			return res, nil
		}
		return nil, fmt.Errorf("observability: merge resources: %w", err)
	}
	return res, nil
}
