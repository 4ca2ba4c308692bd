// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hub

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianHub/services/hub/session"
)

var (
	frontRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_front_requests_total",
		Help: "Front-door requests by operation and outcome",
	}, []string{"op", "outcome"})

	frontDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hub_front_request_duration_seconds",
		Help:    "Front-door request latency by operation",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"op"})

	frontToolsReturned = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hub_front_tools_returned",
		Help:    "Tools returned per list request",
		Buckets: []float64{0, 5, 10, 15, 20, 25, 30, 40, 50, 75, 100},
	})

	frontTokenReduction = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hub_front_session_token_reduction",
		Help:    "Token reduction per ended session versus the full catalog",
		Buckets: []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
	})

	frontSessionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_front_sessions_ended_total",
		Help: "Sessions retired by cause",
	}, []string{"cause"})
)

// recordFrontRequest counts one front-door operation outcome.
func recordFrontRequest(op, outcome string, elapsed time.Duration) {
	frontRequests.WithLabelValues(op, outcome).Inc()
	frontDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// recordToolsReturned samples the size of one returned tool set.
func recordToolsReturned(n int) {
	frontToolsReturned.Observe(float64(n))
}

// recordSessionEnd counts a retired session and, when the session did
// any planning, samples its token reduction.
func recordSessionEnd(sum session.Summary, cause string) {
	frontSessionsEnded.WithLabelValues(cause).Inc()
	if sum.Metrics.TokensBaseline > 0 {
		frontTokenReduction.Observe(sum.TokenReduction)
	}
}

// frontTracer returns the front door's tracer.
func frontTracer() oteltrace.Tracer {
	return otel.Tracer("aleutian.hub.front")
}
