// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package detector

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

var (
	detectionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_detector_detections_total",
		Help: "Detections by fallback tag",
	}, []string{"fallback_tag"})

	detectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hub_detector_duration_seconds",
		Help:    "Detection latency end to end",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	})

	analyzerDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_detector_analyzer_drops_total",
		Help: "Analyzer signals dropped from a detection",
	}, []string{"signal"})
)

// recordDetection counts one finished detection.
func recordDetection(tag FallbackTag, elapsed time.Duration) {
	detectionTotal.WithLabelValues(string(tag)).Inc()
	detectionDuration.Observe(elapsed.Seconds())
}

// recordAnalyzerDrop counts one dropped analyzer signal.
func recordAnalyzerDrop(kind SignalKind) {
	analyzerDrops.WithLabelValues(string(kind)).Inc()
}

// startDetectSpan opens the per-detection trace span.
func startDetectSpan(ctx context.Context, query string) (context.Context, oteltrace.Span) {
	return otel.Tracer("aleutian.hub.detector").Start(ctx, "detector.Detect",
		oteltrace.WithAttributes(attribute.Int("query_length", len(query))))
}

// annotateSpan records the detection outcome on the span.
func annotateSpan(span oteltrace.Span, result *DetectionResult) {
	span.SetAttributes(
		attribute.String("fallback_tag", string(result.FallbackTag)),
		attribute.Float64("max_confidence", result.MaxConfidence()),
		attribute.Int("enabled_categories", len(result.Enabled())),
		attribute.Float64("detection_ms", result.DetectionMs),
	)
}
