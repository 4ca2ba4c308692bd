// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry wires the OpenTelemetry SDK for the hub.
//
// Be opinionated about the API, flexible about the backend: hub packages
// use otel.Tracer directly, and operators swap backends through exporter
// configuration rather than code. Traces default to OTLP (Jaeger speaks
// it natively), metrics default to Prometheus scraped from /metrics.
//
// Standard OTel environment variables are honored:
//
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint (default: localhost:4317)
//   - OTEL_TRACES_EXPORTER: otlp, stdout, or none (default: otlp)
//   - OTEL_METRICS_EXPORTER: prometheus, stdout, or none (default: prometheus)
//   - ALEUTIAN_ENV: environment name (default: development)
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

var (
	// ErrNilContext indicates a nil context.Context was passed.
	ErrNilContext = errors.New("nil context")

	// ErrUnknownExporter indicates an unrecognized exporter name.
	ErrUnknownExporter = errors.New("unknown exporter type")
)

// Config controls the telemetry stack.
type Config struct {
	// ServiceName identifies the hub in traces and metrics.
	ServiceName string `json:"service_name"`

	// ServiceVersion is the hub's version string.
	ServiceVersion string `json:"service_version"`

	// Environment is the deployment environment name.
	Environment string `json:"environment"`

	// TraceExporter selects "otlp", "stdout", or "none".
	TraceExporter string `json:"trace_exporter"`

	// MetricExporter selects "prometheus", "stdout", or "none".
	MetricExporter string `json:"metric_exporter"`

	// OTLPEndpoint is the OTLP receiver for traces.
	OTLPEndpoint string `json:"otlp_endpoint"`

	// OTLPInsecure disables TLS for the OTLP connection.
	OTLPInsecure bool `json:"otlp_insecure"`
}

// DefaultConfig returns development defaults, overridable through the
// standard OTel environment variables.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "aleutian-hub",
		ServiceVersion: "1.0.0",
		Environment:    getEnvOr("ALEUTIAN_ENV", "development"),
		TraceExporter:  getEnvOr("OTEL_TRACES_EXPORTER", "otlp"),
		MetricExporter: getEnvOr("OTEL_METRICS_EXPORTER", "prometheus"),
		OTLPEndpoint:   getEnvOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTLPInsecure:   true,
	}
}

// Init sets up the OpenTelemetry tracer and meter providers and the W3C
// propagator.
//
// Description:
//
//	After Init returns, otel.Tracer() and otel.Meter() are configured
//	for every hub package. The returned shutdown drains exporters and
//	must be called on exit.
//
// Inputs:
//
//	ctx - Context for exporter construction.
//	cfg - Telemetry configuration. DefaultConfig() for dev defaults.
//
// Outputs:
//
//	shutdown - Cleanup function. Must be called.
//	error - Non-nil if an exporter failed to build.
//
// Thread Safety: Call once at startup.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	var shutdownFuncs []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdownFuncs {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			return fmt.Errorf("shutdown errors: %v", errs)
		}
		return nil
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)

	// W3C trace context + baggage, so agent-side callers can correlate
	// hub spans with their own.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.TraceExporter != "none" {
		tp, err := initTracer(ctx, cfg, res)
		if err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		otel.SetTracerProvider(tp)
		shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
	}

	if cfg.MetricExporter != "none" {
		mp, err := initMeter(cfg, res)
		if err != nil {
			return nil, fmt.Errorf("init meter: %w", err)
		}
		otel.SetMeterProvider(mp)
		shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
	}

	return shutdown, nil
}

func initTracer(ctx context.Context, cfg Config, res *resource.Resource) (*trace.TracerProvider, error) {
	var exporter trace.SpanExporter
	var err error

	switch cfg.TraceExporter {
	case "otlp", "jaeger":
		// Jaeger speaks OTLP natively since 1.35
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)

	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.TraceExporter)
	}

	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	return trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.AlwaysSample()),
	), nil
}

// prometheusHandler stores the exporter's HTTP handler for /metrics.
var (
	prometheusHandler   http.Handler
	prometheusHandlerMu sync.RWMutex
)

// MetricsHandler returns the /metrics handler, or nil when the
// Prometheus exporter is not in use.
//
// Thread Safety: Safe for concurrent use.
func MetricsHandler() http.Handler {
	prometheusHandlerMu.RLock()
	defer prometheusHandlerMu.RUnlock()
	return prometheusHandler
}

func initMeter(cfg Config, res *resource.Resource) (*metric.MeterProvider, error) {
	switch cfg.MetricExporter {
	case "prometheus":
		exporter, err := promexporter.New()
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}

		// The OTel prometheus exporter registers with the default
		// registry, so promhttp.Handler() serves both the hub's promauto
		// counters and any OTel instruments.
		prometheusHandlerMu.Lock()
		prometheusHandler = promhttp.Handler()
		prometheusHandlerMu.Unlock()

		return metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(exporter),
		), nil

	case "stdout":
		exporter, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}

		return metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(metric.NewPeriodicReader(exporter)),
		), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.MetricExporter)
	}
}

// getEnvOr returns the environment variable value or the fallback.
func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
