// Package tracing wires OpenTelemetry span export for pipeline runs.
package tracing

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"

	"ecommerce-analytics-pipeline/internal/config"
	"ecommerce-analytics-pipeline/pkg/logger"
)

// InstrumentationName identifies spans emitted by this module.
const InstrumentationName = "ecommerce-analytics-pipeline"

// Shutdown flushes and stops span export.
type Shutdown func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Init installs a global tracer provider. Spans are batched to the OTLP
// endpoint when one is configured and written to w (stdout when nil)
// otherwise. When tracing is disabled the global no-op provider is left in
// place.
func Init(ctx context.Context, log *logger.Logger, cfg config.TracingConfig, w io.Writer) (Shutdown, error) {
	if !cfg.Enabled {
		return noopShutdown, nil
	}
	if w == nil {
		w = os.Stdout
	}
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = InstrumentationName
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil && log != nil {
		log.Warn("otel resource init failed (continuing)", "error", err)
	}

	var export sdktrace.TracerProviderOption
	if endpoint := strings.TrimSpace(cfg.OTLPEndpoint); endpoint != "" {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return noopShutdown, err
		}
		export = sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second))
	} else {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return noopShutdown, err
		}
		export = sdktrace.WithSyncer(exporter)
	}

	tp := sdktrace.NewTracerProvider(export, sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	if log != nil {
		log.Info("otel tracing initialized", "service", serviceName, "endpoint", cfg.OTLPEndpoint)
	}
	return tp.Shutdown, nil
}

// Tracer returns the module tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}
