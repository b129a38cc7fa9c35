// Package tracing installs the OpenTelemetry tracer provider. Packages create
// spans through otel.Tracer; with telemetry disabled those spans are no-ops.
package tracing

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/steamfamilyzap/kgbot/internal/config"
)

// ShutdownFunc flushes pending spans.
type ShutdownFunc func(ctx context.Context) error

func noop(context.Context) error { return nil }

// Setup configures OTLP export from cfg. The returned shutdown must be
// called before exit.
func Setup(ctx context.Context, cfg config.TelemetryConfig, version string) (ShutdownFunc, error) {
	if !cfg.Enabled {
		return noop, nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return noop, err
	}

	name := cfg.ServiceName
	if name == "" {
		name = "kgbot"
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", name),
		attribute.String("service.version", version),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	slog.Info("otel tracing enabled", "endpoint", cfg.Endpoint, "protocol", protocolOf(cfg))
	return tp.Shutdown, nil
}

func protocolOf(cfg config.TelemetryConfig) string {
	if cfg.Protocol == "" {
		return "grpc"
	}
	return cfg.Protocol
}

func newExporter(ctx context.Context, cfg config.TelemetryConfig) (sdktrace.SpanExporter, error) {
	switch protocolOf(cfg) {
	case "grpc":
		opts := []otlptracegrpc.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create otlp grpc exporter: %w", err)
		}
		return exp, nil
	case "http":
		opts := []otlptracehttp.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		exp, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create otlp http exporter: %w", err)
		}
		return exp, nil
	}
	return nil, fmt.Errorf("unknown telemetry protocol %q (want grpc or http)", cfg.Protocol)
}
