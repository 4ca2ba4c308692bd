// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package planner turns detection results into load decisions.
//
// # Description
//
// The planner consumes a frozen catalog view plus a detector result and
// selects the tool set a session should carry: the essential core, git T1
// behind a confidence gate, the best T2 category within the strategy's
// budget, T3 categories past their threshold, and the closure over declared
// tool dependencies. Session overrides are applied before selection and a
// hard tool cap is applied after it. A panic anywhere inside planning
// degrades to a fixed fallback decision; planning never returns an error.
//
// # Thread Safety
//
// Planner is immutable after New and safe for concurrent use. Decisions are
// built from frozen views and never alias planner state.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/AleutianAI/AleutianHub/services/hub/catalog"
	"github.com/AleutianAI/AleutianHub/services/hub/detector"
)

const (
	// gitConfidenceGate is the post-override confidence below which the
	// git T1 tools stay unloaded.
	gitConfidenceGate = 0.3

	// t2ToolBonus raises a T2 category's rank when it has tools to offer.
	t2ToolBonus = 0.5

	// fallbackConfidence is the flat confidence reported by the failure
	// path and by safe-default categories.
	fallbackConfidence = 0.5

	// DefaultMaxTools is the decision-wide tool cap when none is
	// configured.
	DefaultMaxTools = 25
)

// Planner selects tool sets against a catalog view.
type Planner struct {
	t2Base   float64
	t3Base   float64
	maxTools int
}

// New creates a planner.
//
// Inputs:
//
//	t2Base - Base T2 threshold before strategy scaling. <= 0 uses the
//	    detector default.
//	t3Base - Base T3 threshold before strategy scaling. <= 0 uses the
//	    detector default.
//	maxTools - Decision-wide tool cap. <= 0 uses DefaultMaxTools.
func New(t2Base, t3Base float64, maxTools int) *Planner {
	if t2Base <= 0 {
		t2Base = detector.DefaultT2Threshold
	}
	if t3Base <= 0 {
		t3Base = detector.DefaultT3Threshold
	}
	if maxTools <= 0 {
		maxTools = DefaultMaxTools
	}
	return &Planner{t2Base: t2Base, t3Base: t3Base, maxTools: maxTools}
}

// DetectorOptions returns the strategy-scaled knobs to hand the detector.
func (p *Planner) DetectorOptions(strategy Strategy) detector.Options {
	opts := detector.DefaultOptions()
	opts.T2Threshold, opts.T3Threshold = strategy.Thresholds(p.t2Base, p.t3Base)
	return opts
}

// Plan produces the load decision for one turn.
//
// Description:
//
//	Deterministic for fixed inputs: every ranking is totally ordered with
//	ID tie-breaks and confidence sums run in fixed category order. A nil
//	detection result or a panic inside selection yields the fallback
//	decision with the cause recorded; the result is always non-nil.
//
// Inputs:
//
//	ctx - Tracing only; planning is pure in-memory work.
//	view - Frozen catalog snapshot to select from.
//	det - Detection result, typically cache- or detector-produced.
//	strategy - Session strategy; invalid values plan as CONSERVATIVE.
//	ov - Optional session overrides, nil for none.
//
// Outputs:
//
//	*LoadDecision - Never nil.
//
// Thread Safety: Safe for concurrent use.
func (p *Planner) Plan(ctx context.Context, view *catalog.View, det *detector.DetectionResult, strategy Strategy, ov *Overrides) (decision *LoadDecision) {
	_, span := startPlanSpan(ctx, strategy)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Planning panicked", slog.Any("panic", r))
			decision = p.fallbackDecision(view, fmt.Sprintf("panic: %v", r))
			recordDecision(decision, false)
			annotatePlanSpan(span, decision)
		}
	}()

	if !strategy.Valid() {
		slog.Warn("Unknown strategy, planning conservatively",
			slog.String("strategy", string(strategy)))
		strategy = StrategyConservative
	}
	if view == nil {
		decision = p.fallbackDecision(nil, "nil catalog view")
		recordDecision(decision, false)
		annotatePlanSpan(span, decision)
		return decision
	}
	if det == nil {
		decision = p.fallbackDecision(view, "nil detection result")
		recordDecision(decision, false)
		annotatePlanSpan(span, decision)
		return decision
	}

	enabled, conf := copyDetection(det)
	applied, forced, strategy := applyOverrides(enabled, conf, strategy, ov)
	kn := strategy.knobRow()

	sel := newSelection(view)
	p.selectT1(sel, conf)
	p.selectT2(sel, enabled, conf, forced, kn)
	p.selectT3(sel, enabled, conf, forced, kn, strategy)
	sel.closeDependencies()
	capped := p.applyCap(sel, conf)

	decision = sel.decision(conf, strategy, applied)
	recordDecision(decision, capped)
	annotatePlanSpan(span, decision)
	return decision
}

// copyDetection lifts the detection maps into mutable planning state.
func copyDetection(det *detector.DetectionResult) (map[catalog.Category]bool, map[catalog.Category]float64) {
	enabled := make(map[catalog.Category]bool, len(det.Categories))
	for cat, on := range det.Categories {
		enabled[cat] = on
	}
	conf := make(map[catalog.Category]float64, len(det.Confidence))
	for cat, c := range det.Confidence {
		conf[cat] = c
	}
	return enabled, conf
}

// applyOverrides mutates the planning state per the override block.
//
// Description:
//
//	Force turns a category on at full confidence; disable turns it off
//	and zeroes its confidence so gates reading confidence (git T1)
//	respect it too. Disable is applied after force and wins on conflict.
//	A strategy override swaps the knob row for the rest of planning.
func applyOverrides(enabled map[catalog.Category]bool, conf map[catalog.Category]float64, strategy Strategy, ov *Overrides) ([]string, map[catalog.Category]bool, Strategy) {
	forced := make(map[catalog.Category]bool)
	if ov.Empty() {
		return nil, forced, strategy
	}

	var applied []string
	for _, cat := range ov.Force {
		if !cat.Valid() {
			slog.Warn("Ignoring force of unknown category", slog.String("category", string(cat)))
			continue
		}
		enabled[cat] = true
		conf[cat] = 1.0
		forced[cat] = true
		applied = append(applied, "force:"+string(cat))
	}
	for _, cat := range ov.Disable {
		if !cat.Valid() {
			slog.Warn("Ignoring disable of unknown category", slog.String("category", string(cat)))
			continue
		}
		enabled[cat] = false
		conf[cat] = 0
		delete(forced, cat)
		applied = append(applied, "disable:"+string(cat))
	}
	if ov.Strategy != "" {
		if ov.Strategy.Valid() {
			strategy = ov.Strategy
			applied = append(applied, "strategy:"+string(ov.Strategy))
		} else {
			slog.Warn("Ignoring unknown strategy override",
				slog.String("strategy", string(ov.Strategy)))
		}
	}
	return applied, forced, strategy
}

// selectT1 adds the always-on floor: core category T1, every essential
// tool, and the git T1 set when its confidence clears the gate.
func (p *Planner) selectT1(sel *selection, conf map[catalog.Category]float64) {
	sel.addAll(sel.view.CategoryTier(catalog.CategoryCore, catalog.TierT1))
	sel.addAll(sel.view.Essential())
	if conf[catalog.CategoryGit] >= gitConfidenceGate {
		sel.addAll(sel.view.CategoryTier(catalog.CategoryGit, catalog.TierT1))
	}
}

// selectT2 adds the T2 subsets of the winning categories.
//
// Description:
//
//	Forced categories load outside the budget; charging them against
//	maxT2 would let a force evict the natural winner and break the
//	monotone-force guarantee. The rest rank by confidence plus a bonus
//	for actually having T2 tools, and the top maxT2 load. Ties fall back
//	to the fixed category order.
func (p *Planner) selectT2(sel *selection, enabled map[catalog.Category]bool, conf map[catalog.Category]float64, forced map[catalog.Category]bool, kn knobs) {
	type ranked struct {
		cat   catalog.Category
		score float64
	}
	var eligible []ranked
	for _, cat := range catalog.CategoriesInTier(catalog.TierT2) {
		if !enabled[cat] {
			continue
		}
		if forced[cat] {
			sel.addAll(sel.view.CategoryTier(cat, catalog.TierT2))
			continue
		}
		score := conf[cat]
		if sel.view.HasTier(cat, catalog.TierT2) {
			score += t2ToolBonus
		}
		eligible = append(eligible, ranked{cat: cat, score: score})
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].score > eligible[j].score
	})
	for i, r := range eligible {
		if i == kn.maxT2 {
			break
		}
		sel.addAll(sel.view.CategoryTier(r.cat, catalog.TierT2))
	}
}

// selectT3 adds the T3 subsets of categories past the effective threshold,
// best first, within the budget. Forced categories load outside it.
func (p *Planner) selectT3(sel *selection, enabled map[catalog.Category]bool, conf map[catalog.Category]float64, forced map[catalog.Category]bool, kn knobs, strategy Strategy) {
	_, t3Thr := strategy.Thresholds(p.t2Base, p.t3Base)

	type ranked struct {
		cat   catalog.Category
		score float64
	}
	var eligible []ranked
	for _, cat := range catalog.CategoriesInTier(catalog.TierT3) {
		if !enabled[cat] {
			continue
		}
		if forced[cat] {
			sel.addAll(sel.view.CategoryTier(cat, catalog.TierT3))
			continue
		}
		if conf[cat] < t3Thr {
			continue
		}
		eligible = append(eligible, ranked{cat: cat, score: conf[cat]})
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].score > eligible[j].score
	})
	for i, r := range eligible {
		if i == kn.maxT3 {
			break
		}
		sel.addAll(sel.view.CategoryTier(r.cat, catalog.TierT3))
	}
}

// fallbackDecision is the failure-path answer: every T1 tool plus the
// analysis and debug T2 subsets, flat confidence, conservative strategy.
func (p *Planner) fallbackDecision(view *catalog.View, cause string) *LoadDecision {
	d := &LoadDecision{
		TierBreakdown:  map[catalog.Tier][]string{},
		ConfidenceMean: fallbackConfidence,
		Strategy:       StrategyConservative,
		FallbackReason: cause,
	}
	if view == nil {
		return d
	}

	sel := newSelection(view)
	for _, desc := range view.All() {
		if desc.Tier == catalog.TierT1 {
			sel.add(desc)
		}
	}
	sel.addAll(view.CategoryTier(catalog.CategoryAnalysis, catalog.TierT2))
	sel.addAll(view.CategoryTier(catalog.CategoryDebug, catalog.TierT2))
	sel.closeDependencies()
	p.applyCap(sel, nil)

	built := sel.decision(nil, StrategyConservative, nil)
	d.Tools = built.Tools
	d.TierBreakdown = built.TierBreakdown
	d.EstimatedTokens = built.EstimatedTokens
	return d
}
