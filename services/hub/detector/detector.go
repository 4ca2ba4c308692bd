// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package detector turns a query plus workspace context into per-category
// confidence scores for the loading planner.
//
// # Description
//
// Four analyzers (keyword, context, environment, session) run in parallel
// and emit raw per-category scores. The scorer combines them with fixed
// weights, the calibrator maps the sums through per-category curves, and
// the decision step enables categories against tier thresholds, applying a
// fallback chain when the scores are too weak or too close to trust. A
// failed analyzer drops its signal; detection itself never fails, it falls
// back.
//
// # Thread Safety
//
// Detector is immutable after New and safe for concurrent use.
package detector

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianHub/services/hub/catalog"
)

// Fallback chain bands over the maximum calibrated score.
const (
	highConfidence   = 0.8 // keep as scored
	mediumConfidence = 0.4 // widen with next-best T2
	ambiguityGap     = 0.2 // top two closer than this is a coin flip
	expansionFloor   = 0.3 // minimum score for a widened-in category
	expansionLimit   = 2   // categories added by the widening step
	safeConfidence   = 0.5 // floor for safe-default categories
)

// Detector scores queries against the closed category set.
type Detector struct {
	cfg *Config
}

// New creates a detector over the given configuration.
func New(cfg *Config) *Detector {
	return &Detector{cfg: cfg}
}

// Detect produces the category decision for one query.
//
// Description:
//
//	Deterministic for fixed inputs. Analyzer errors drop that signal with
//	a warning; a blown budget or an internal panic returns the safe
//	default tagged accordingly. The result is always non-nil.
//
// Inputs:
//
//	ctx - Caller deadline; the detection budget is layered on top.
//	query - Raw query text. Empty is valid and yields the safe default.
//	qctx - Workspace context. Nil is treated as empty.
//	opts - Effective thresholds and budget, already strategy-scaled.
//
// Outputs:
//
//	*DetectionResult - Never nil.
//
// Thread Safety: Safe for concurrent use.
func (d *Detector) Detect(ctx context.Context, query string, qctx *Context, opts Options) (result *DetectionResult) {
	start := time.Now()
	if qctx == nil {
		qctx = &Context{}
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Detection panicked",
				slog.Any("panic", r),
				slog.String("query_prefix", prefix(query, 80)))
			result = d.safeDefault(qctx, nil, nil, FallbackError)
			result.DetectionMs = float64(time.Since(start).Microseconds()) / 1000
			recordDetection(result.FallbackTag, time.Since(start))
		}
	}()

	ctx, span := startDetectSpan(ctx, query)
	defer span.End()

	budget := opts.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}
	budgetCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	lowered := strings.ToLower(strings.TrimSpace(query))
	signals, panicked := d.runAnalyzers(budgetCtx, lowered, qctx)
	if panicked {
		result = d.safeDefault(qctx, nil, nil, FallbackError)
		result.DetectionMs = float64(time.Since(start).Microseconds()) / 1000
		recordDetection(result.FallbackTag, time.Since(start))
		annotateSpan(span, result)
		return result
	}

	if budgetCtx.Err() != nil {
		result = d.safeDefault(qctx, nil, signals, FallbackTimeout)
		result.DetectionMs = float64(time.Since(start).Microseconds()) / 1000
		recordDetection(result.FallbackTag, time.Since(start))
		annotateSpan(span, result)
		return result
	}

	complexity := queryComplexity(d.cfg, lowered)
	combined := combineSignals(signals)
	scores := calibrate(d.cfg, combined, complexity)

	result = d.decide(scores, signals, qctx, opts, complexity)
	result.DetectionMs = float64(time.Since(start).Microseconds()) / 1000
	recordDetection(result.FallbackTag, time.Since(start))
	annotateSpan(span, result)
	return result
}

// runAnalyzers fans the four analyzers out and gathers whatever survived.
// An analyzer returning an error drops its signal; an analyzer panicking
// poisons the whole detection so the caller falls back to error handling.
func (d *Detector) runAnalyzers(ctx context.Context, lowered string, qctx *Context) (map[SignalKind]map[catalog.Category]float64, bool) {
	kinds := AllSignals()
	results := make([]map[catalog.Category]float64, len(kinds))
	panics := make([]bool, len(kinds))

	g, gCtx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		i, kind := i, kind // Capture loop variables

		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Analyzer panicked",
						slog.String("signal", string(kind)),
						slog.Any("panic", r))
					panics[i] = true
				}
			}()

			scores, err := d.runAnalyzer(gCtx, kind, lowered, qctx)
			if err != nil {
				slog.Warn("Analyzer dropped",
					slog.String("signal", string(kind)),
					slog.String("error", err.Error()))
				recordAnalyzerDrop(kind)
				return nil // Degraded signal, not a failed detection.
			}
			results[i] = scores
			return nil
		})
	}
	_ = g.Wait()

	signals := make(map[SignalKind]map[catalog.Category]float64, len(kinds))
	for i, kind := range kinds {
		if panics[i] {
			return nil, true
		}
		if len(results[i]) > 0 {
			signals[kind] = results[i]
		}
	}
	return signals, false
}

func (d *Detector) runAnalyzer(ctx context.Context, kind SignalKind, lowered string, qctx *Context) (map[catalog.Category]float64, error) {
	switch kind {
	case SignalKeyword:
		return analyzeKeywords(ctx, d.cfg, lowered)
	case SignalContext:
		return analyzeContext(ctx, lowered, qctx)
	case SignalEnvironment:
		return analyzeEnvironment(ctx, qctx)
	case SignalSession:
		return analyzeHistory(ctx, lowered, qctx)
	default:
		return nil, nil
	}
}

// decide turns calibrated scores into category enablement plus a fallback
// tag.
//
// Description:
//
//	T1 is always on. T2 enables at the effective threshold, or at the
//	bias-shrunk threshold for new users and complex queries. T3 enables
//	at its own threshold. The chain then runs in order: a confident
//	maximum stands as scored; an ambiguous top pair yields the safe
//	default before any widening; a medium maximum widens to the next-best
//	T2 categories; bias-only activations are kept and tagged; anything
//	weaker yields the safe default.
func (d *Detector) decide(scores map[catalog.Category]float64, signals map[SignalKind]map[catalog.Category]float64, qctx *Context, opts Options, complexity float64) *DetectionResult {
	enabled := make(map[catalog.Category]bool, len(catalog.AllCategories()))
	for _, cat := range catalog.CategoriesInTier(catalog.TierT1) {
		enabled[cat] = true
	}

	t2Thr := opts.T2Threshold
	biasThr := t2Thr
	biasActive := qctx.NewUser || complexity > complexHigh
	if biasActive && opts.BiasMultiplier > 0 {
		biasThr = t2Thr * opts.BiasMultiplier
	}

	biasActivated := false
	for _, cat := range catalog.CategoriesInTier(catalog.TierT2) {
		s := scores[cat]
		switch {
		case s >= t2Thr:
			enabled[cat] = true
		case biasActive && s >= biasThr:
			enabled[cat] = true
			biasActivated = true
		default:
			enabled[cat] = false
		}
	}
	for _, cat := range catalog.CategoriesInTier(catalog.TierT3) {
		enabled[cat] = scores[cat] >= opts.T3Threshold
	}

	max, runnerUp := topTwo(scores)
	switch {
	case max >= highConfidence:
		return newResult(enabled, scores, signals, FallbackNone)

	case max-runnerUp <= ambiguityGap:
		return d.safeDefault(qctx, scores, signals, FallbackSafeDefault)

	case max >= mediumConfidence:
		expandT2(enabled, scores)
		return newResult(enabled, scores, signals, FallbackMediumConfidence)

	case biasActivated:
		return newResult(enabled, scores, signals, FallbackConservativeBias)

	default:
		return d.safeDefault(qctx, scores, signals, FallbackSafeDefault)
	}
}

// expandT2 additionally enables the best-scoring T2 categories above the
// expansion floor, up to the expansion limit.
func expandT2(enabled map[catalog.Category]bool, scores map[catalog.Category]float64) {
	cands := catalog.CategoriesInTier(catalog.TierT2)
	sort.SliceStable(cands, func(i, j int) bool {
		return scores[cands[i]] > scores[cands[j]]
	})
	added := 0
	for _, cat := range cands {
		if added == expansionLimit {
			break
		}
		if scores[cat] < expansionFloor {
			break
		}
		enabled[cat] = true
		added++
	}
}

// topTwo returns the two highest scores, zero-filled.
func topTwo(scores map[catalog.Category]float64) (max, runnerUp float64) {
	for _, s := range scores {
		if s > max {
			max, runnerUp = s, max
		} else if s > runnerUp {
			runnerUp = s
		}
	}
	return max, runnerUp
}

// safeDefault builds the core+git+analysis result with contextual bumps.
//
// Description:
//
//	Used by the weak-signal, ambiguity, timeout, and error paths.
//	Enabled categories get their confidence raised to at least
//	safeConfidence so the planner's git gate and ranking still work on a
//	result that carries no real signal.
func (d *Detector) safeDefault(qctx *Context, scores map[catalog.Category]float64, signals map[SignalKind]map[catalog.Category]float64, tag FallbackTag) *DetectionResult {
	enabled := make(map[catalog.Category]bool, len(catalog.AllCategories()))
	for _, cat := range catalog.AllCategories() {
		enabled[cat] = false
	}
	enabled[catalog.CategoryCore] = true
	enabled[catalog.CategoryGit] = true
	enabled[catalog.CategoryAnalysis] = true

	if qctx.ProjectType == "security" {
		enabled[catalog.CategorySecurity] = true
	}
	if qctx.HasTestDirectories {
		enabled[catalog.CategoryTest] = true
	}
	if hasCodeExtension(qctx.FileExtensions) {
		enabled[catalog.CategoryQuality] = true
	}

	result := newResult(enabled, scores, signals, tag)
	for cat, on := range enabled {
		if on && result.Confidence[cat] < safeConfidence {
			result.Confidence[cat] = safeConfidence
		}
	}
	return result
}

// newResult assembles a DetectionResult, copying the score map so later
// mutation of inputs cannot reach a published result.
func newResult(enabled map[catalog.Category]bool, scores map[catalog.Category]float64, signals map[SignalKind]map[catalog.Category]float64, tag FallbackTag) *DetectionResult {
	conf := make(map[catalog.Category]float64, len(scores))
	for cat, s := range scores {
		conf[cat] = s
	}
	return &DetectionResult{
		Categories:  enabled,
		Confidence:  conf,
		Signals:     signals,
		FallbackTag: tag,
	}
}

// prefix truncates a string for log fields.
func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
