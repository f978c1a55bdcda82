package bootstrap

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"pagepilot/internal/config"
)

const (
	exporterStdout = "stdout"
	exporterNone   = "none"
)

// setupTracing installs the global tracer provider. With the none exporter
// spans are still created but never leave the process.
func setupTracing(lc fx.Lifecycle, config *config.Config, logger *zap.Logger) error {
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName("pagepilot"),
		),
	)
	if err != nil {
		return fmt.Errorf("create trace resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	switch config.TelemetryConfig.TracingExporter {
	case exporterStdout:
		exporter, err := stdouttrace.New(
			stdouttrace.WithPrettyPrint(),
		)
		if err != nil {
			return fmt.Errorf("create trace exporter: %w", err)
		}

		opts = append(opts, sdktrace.WithBatcher(exporter))
	case exporterNone, "":
	default:
		return fmt.Errorf("unknown TRACING_EXPORTER %q", config.TelemetryConfig.TracingExporter)
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	logger.Debug("Tracing configured", zap.String("exporter", config.TelemetryConfig.TracingExporter))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})

	return nil
}
