// Package telemetry bootstraps the simulator's logging, tracing and
// metrics stack. It mirrors internal/service/telemetry.go from the
// sibling multi-cluster scheduler this simulator was adapted from,
// but returns its providers as plain values owned by the caller
// (the driver, via a Simulation) instead of stashing them behind a
// package-level singleton, and falls back to no-op tracer/meter
// providers when no collector endpoint is configured so the
// simulator runs standalone by default.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Config configures the telemetry stack. ServiceName and CollectorURL
// mirror the SERVICE_NAME / OTEL_EXPORTER_OTLP_ENDPOINT environment
// variables the teacher reads directly; here they're passed in
// explicitly so the Simulation stays free of package-level globals.
type Config struct {
	ServiceName  string
	CollectorURL string // empty disables OTLP export; no-op providers are used
	Insecure     bool
	LogEnvironment string // "development", "both", or "" (file-only)
}

// Providers bundles the constructed logger, tracer and meter together
// with their shutdown hook.
type Providers struct {
	Logger   zerolog.Logger
	Tracer   trace.Tracer
	Meter    metric.Meter
	Shutdown func(context.Context) error
}

// New builds the logging/tracing/metrics stack described by cfg.
func New(ctx context.Context, cfg Config) (*Providers, error) {
	logger := newLogger(cfg)

	if cfg.CollectorURL == "" {
		return &Providers{
			Logger:   logger,
			Tracer:   tracenoop.NewTracerProvider().Tracer(cfg.ServiceName),
			Meter:    metricnoop.NewMeterProvider().Meter(cfg.ServiceName),
			Shutdown: func(context.Context) error { return nil },
		}, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: building resource: %w", err)
	}

	secureOption := otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, ""))
	metricSecureOption := otlpmetricgrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, ""))
	if cfg.Insecure {
		secureOption = otlptracegrpc.WithInsecure()
		metricSecureOption = otlpmetricgrpc.WithTLSCredentials(insecure.NewCredentials())
	}

	traceExp, err := otlptrace.New(ctx, otlptracegrpc.NewClient(secureOption, otlptracegrpc.WithEndpoint(cfg.CollectorURL)))
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp), sdktrace.WithResource(res))

	metricExp, err := otlpmetricgrpc.New(ctx, metricSecureOption, otlpmetricgrpc.WithEndpoint(cfg.CollectorURL))
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(10*time.Second))),
	)

	shutdown := func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return err
		}
		return mp.Shutdown(ctx)
	}

	return &Providers{
		Logger:   logger,
		Tracer:   tp.Tracer(cfg.ServiceName + "Tracer"),
		Meter:    mp.Meter(cfg.ServiceName),
		Shutdown: shutdown,
	}, nil
}

func newLogger(cfg Config) zerolog.Logger {
	var output io.Writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	if cfg.LogEnvironment != "development" {
		if err := os.MkdirAll("logs", 0750); err != nil {
			fmt.Fprintf(os.Stderr, "telemetry: couldn't create log dir: %v\n", err)
			return zerolog.New(output).With().Timestamp().Logger()
		}
		name := fmt.Sprintf("logs/%s-log-%s", cfg.ServiceName, time.Now().Format(time.RFC3339))
		f, err := os.Create(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "telemetry: couldn't create log file: %v\n", err)
		} else if cfg.LogEnvironment == "both" {
			output = zerolog.MultiLevelWriter(output, f)
		} else {
			output = f
		}
	}
	return zerolog.New(output).With().Timestamp().Logger()
}
