// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tsp

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for TSP operations.
var (
	tracer = otel.Tracer("aleutian.hub.tsp")
	meter  = otel.Meter("aleutian.hub.tsp")
)

// Metrics for TSP client operations.
var (
	requestLatency metric.Float64Histogram
	requestTotal   metric.Int64Counter
	connectTotal   metric.Int64Counter
	connectionLost metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		requestLatency, err = meter.Float64Histogram(
			"tsp_request_duration_seconds",
			metric.WithDescription("Duration of TSP requests"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		requestTotal, err = meter.Int64Counter(
			"tsp_request_total",
			metric.WithDescription("Total number of TSP requests"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		connectTotal, err = meter.Int64Counter(
			"tsp_connect_total",
			metric.WithDescription("Total number of TSP connection attempts"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		connectionLost, err = meter.Int64Counter(
			"tsp_connection_lost_total",
			metric.WithDescription("Total number of TSP connections lost mid-stream"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startRequestSpan creates a span for one TSP request.
func startRequestSpan(ctx context.Context, server, method string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "tsp."+method,
		trace.WithAttributes(
			attribute.String("tsp.server", server),
			attribute.String("tsp.method", method),
		),
	)
}

// recordRequestMetrics records metrics for one TSP request.
func recordRequestMetrics(ctx context.Context, server, method string, duration time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("server", server),
		attribute.String("method", method),
		attribute.Bool("success", success),
	)
	requestLatency.Record(ctx, duration.Seconds(), attrs)
	requestTotal.Add(ctx, 1, attrs)
}

// recordConnect records a connection attempt.
func recordConnect(ctx context.Context, server string, kind TransportKind, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	connectTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("server", server),
		attribute.String("transport", string(kind)),
		attribute.Bool("success", success),
	))
}

// recordConnectionLost records a connection failing mid-stream.
func recordConnectionLost(ctx context.Context, server string) {
	if err := initMetrics(); err != nil {
		return
	}
	connectionLost.Add(ctx, 1, metric.WithAttributes(
		attribute.String("server", server),
	))
}
