// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package planner

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	planDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_planner_decisions_total",
		Help: "Load decisions produced, by strategy and outcome.",
	}, []string{"strategy", "outcome"})

	planSelectedTools = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hub_planner_selected_tools",
		Help:    "Tools per load decision.",
		Buckets: []float64{1, 2, 5, 10, 15, 20, 25, 30},
	})

	planEstimatedTokens = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hub_planner_estimated_tokens",
		Help:    "Estimated token cost per load decision.",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000},
	})

	planCapped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_planner_capped_total",
		Help: "Load decisions trimmed by the tool cap.",
	})
)

func recordDecision(d *LoadDecision, capped bool) {
	outcome := "ok"
	if d.FallbackReason != "" {
		outcome = "fallback"
	}
	planDecisions.WithLabelValues(string(d.Strategy), outcome).Inc()
	planSelectedTools.Observe(float64(len(d.Tools)))
	planEstimatedTokens.Observe(float64(d.EstimatedTokens))
	if capped {
		planCapped.Inc()
	}
}

func planTracer() trace.Tracer {
	return otel.Tracer("aleutian.hub.planner")
}

func startPlanSpan(ctx context.Context, strategy Strategy) (context.Context, trace.Span) {
	return planTracer().Start(ctx, "planner.plan",
		trace.WithAttributes(attribute.String("strategy", string(strategy))))
}

func annotatePlanSpan(span trace.Span, d *LoadDecision) {
	span.SetAttributes(
		attribute.Int("tools", len(d.Tools)),
		attribute.Int("estimated_tokens", d.EstimatedTokens),
		attribute.Float64("confidence_mean", d.ConfidenceMean),
		attribute.Bool("fallback", d.FallbackReason != ""),
	)
}
