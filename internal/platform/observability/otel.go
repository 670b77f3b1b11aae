package observability

import (
	"context"
	"errors"
	"fmt"

	"productservice/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type shutdownFunc func(context.Context) error

func newResource() (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

func joinShutdown(fns []shutdownFunc) shutdownFunc {
	return func(ctx context.Context) error {
		var err error
		for _, fn := range fns {
			err = errors.Join(err, fn(ctx))
		}
		return err
	}
}

// SetupLoggingSDK installs the global OTLP/HTTP logger provider. Without an endpoint it
// leaves the default no-op provider in place.
func SetupLoggingSDK(ctx context.Context, cfg *config.Config) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []shutdownFunc
	shutdown = joinShutdown(shutdownFuncs)
	if !cfg.OtelEnabled() {
		return shutdown, nil
	}

	res, err := newResource()
	if err != nil {
		return shutdown, err
	}

	logExporter, err := otlploghttp.New(ctx,
		otlploghttp.WithEndpoint(cfg.OtelEndpoint),
		otlploghttp.WithURLPath(config.LogsPath),
		otlploghttp.WithHeaders(map[string]string{"Authorization": cfg.OtelAuthHeader}),
	)
	if err != nil {
		return shutdown, fmt.Errorf("OTLP Log Exporter: %w", err)
	}

	logProcessor := sdklog.NewBatchProcessor(logExporter,
		sdklog.WithExportTimeout(config.ExportTimeout),
		sdklog.WithMaxQueueSize(config.MaxQueueSize),
	)
	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(logProcessor),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(loggerProvider)
	shutdownFuncs = append(shutdownFuncs, loggerProvider.Shutdown)

	return joinShutdown(shutdownFuncs), nil
}

// SetupTracingSDK installs the propagator and, when an endpoint is configured, the global
// OTLP/HTTP tracer provider. The returned provider is never nil.
func SetupTracingSDK(ctx context.Context, cfg *config.Config) (tp trace.TracerProvider, shutdown func(context.Context) error, err error) {
	var shutdownFuncs []shutdownFunc

	// W3C trace context travels in message headers between services.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tp = noop.NewTracerProvider()
	shutdown = joinShutdown(shutdownFuncs)
	if !cfg.OtelEnabled() {
		return tp, shutdown, nil
	}

	res, err := newResource()
	if err != nil {
		return tp, shutdown, err
	}

	traceExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OtelEndpoint),
		otlptracehttp.WithURLPath(config.TracesPath),
		otlptracehttp.WithHeaders(map[string]string{"Authorization": cfg.OtelAuthHeader}),
	)
	if err != nil {
		return tp, shutdown, fmt.Errorf("OTLP Trace Exporter: %w", err)
	}

	traceProcessor := sdktrace.NewBatchSpanProcessor(traceExporter,
		sdktrace.WithExportTimeout(config.ExportTimeout),
		sdktrace.WithMaxQueueSize(config.MaxQueueSize),
	)
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(traceProcessor),
	)
	otel.SetTracerProvider(tracerProvider)
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)

	return tracerProvider, joinShutdown(shutdownFuncs), nil
}
