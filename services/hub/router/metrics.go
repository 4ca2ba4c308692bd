// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package router

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	oteltrace "go.opentelemetry.io/otel/trace"
)

var (
	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_router_dispatch_total",
		Help: "Tool dispatches by server and outcome",
	}, []string{"server", "outcome"})

	dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hub_router_dispatch_duration_seconds",
		Help:    "Tool dispatch latency by server",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"server"})

	connectedServers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_router_connected_servers",
		Help: "Tool servers currently connected",
	})
)

// recordDispatch counts one dispatch outcome. A zero elapsed means the call
// never reached a server, so no latency sample is taken.
func recordDispatch(server, outcome string, elapsed time.Duration) {
	dispatchTotal.WithLabelValues(server, outcome).Inc()
	if elapsed > 0 {
		dispatchDuration.WithLabelValues(server).Observe(elapsed.Seconds())
	}
}

// RecordConnectedServers updates the connected-servers gauge.
func RecordConnectedServers(n int) {
	connectedServers.Set(float64(n))
}

// dispatchTracer returns the router's tracer.
func dispatchTracer() oteltrace.Tracer {
	return otel.Tracer("aleutian.hub.router")
}
