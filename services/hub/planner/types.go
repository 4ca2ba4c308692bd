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
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianHub/services/hub/catalog"
)

// =============================================================================
// Strategies
// =============================================================================

// Strategy selects the knob row used for threshold scaling and category
// budgets.
type Strategy string

const (
	// StrategyConservative keeps more tools loaded by shrinking both
	// thresholds.
	StrategyConservative Strategy = "CONSERVATIVE"

	// StrategyBalanced uses the configured thresholds unchanged.
	StrategyBalanced Strategy = "BALANCED"

	// StrategyAggressive raises both thresholds to trim harder.
	StrategyAggressive Strategy = "AGGRESSIVE"

	// StrategyUserControlled plans like StrategyConservative and then
	// applies the session's overrides last.
	StrategyUserControlled Strategy = "USER_CONTROLLED"
)

// AllStrategies returns the valid strategies in display order.
func AllStrategies() []Strategy {
	return []Strategy{
		StrategyConservative,
		StrategyBalanced,
		StrategyAggressive,
		StrategyUserControlled,
	}
}

// Valid reports whether s is a member of the strategy set.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyConservative, StrategyBalanced, StrategyAggressive, StrategyUserControlled:
		return true
	}
	return false
}

// ParseStrategy maps user input onto a Strategy, accepting any case and
// hyphens for underscores.
func ParseStrategy(in string) (Strategy, error) {
	norm := strings.ToUpper(strings.TrimSpace(in))
	norm = strings.ReplaceAll(norm, "-", "_")
	s := Strategy(norm)
	if !s.Valid() {
		return "", fmt.Errorf("unknown strategy %q (valid: %v)", in, AllStrategies())
	}
	return s, nil
}

// Effective threshold ceiling. An aggressive multiplier may not push a
// threshold to or past 1.0, which would disable a tier outright.
const maxThreshold = 0.99

// knobs is one row of the strategy table.
type knobs struct {
	t2Mult float64
	t3Mult float64
	maxT2  int
	maxT3  int
}

func (s Strategy) knobRow() knobs {
	switch s {
	case StrategyBalanced:
		return knobs{t2Mult: 1.0, t3Mult: 1.0, maxT2: 1, maxT3: 1}
	case StrategyAggressive:
		return knobs{t2Mult: 1.05, t3Mult: 1.05, maxT2: 1, maxT3: 1}
	default:
		// Conservative; user-controlled shares the row and differs only
		// in when overrides land.
		return knobs{t2Mult: 0.9, t3Mult: 0.9, maxT2: 1, maxT3: 1}
	}
}

// Thresholds returns the effective T2/T3 enable thresholds under the
// strategy, capped below 1.
func (s Strategy) Thresholds(baseT2, baseT3 float64) (t2, t3 float64) {
	kn := s.knobRow()
	t2 = baseT2 * kn.t2Mult
	t3 = baseT3 * kn.t3Mult
	if t2 > maxThreshold {
		t2 = maxThreshold
	}
	if t3 > maxThreshold {
		t3 = maxThreshold
	}
	return t2, t3
}

// =============================================================================
// Overrides
// =============================================================================

// Overrides is a session's sticky category and strategy adjustments.
// Force wins over detection, disable wins over force.
type Overrides struct {
	Force    []catalog.Category `json:"force_categories,omitempty"`
	Disable  []catalog.Category `json:"disable_categories,omitempty"`
	Strategy Strategy           `json:"strategy,omitempty"`
}

// Empty reports whether the overrides change nothing.
func (o *Overrides) Empty() bool {
	return o == nil || (len(o.Force) == 0 && len(o.Disable) == 0 && o.Strategy == "")
}

// =============================================================================
// Decisions
// =============================================================================

// LoadDecision is the planner's answer: which tools a session should have
// loaded for its next turn.
//
// # Description
//
// Tools is sorted by ID and TierBreakdown partitions it by tier. A non-empty
// FallbackReason marks a decision produced by the failure path rather than
// selection. Decisions are immutable once returned and safe to cache.
type LoadDecision struct {
	Tools            []string                  `json:"tools"`
	TierBreakdown    map[catalog.Tier][]string `json:"tier_breakdown"`
	EstimatedTokens  int                       `json:"estimated_tokens"`
	ConfidenceMean   float64                   `json:"confidence_mean"`
	Strategy         Strategy                  `json:"strategy"`
	FallbackReason   string                    `json:"fallback_reason,omitempty"`
	OverridesApplied []string                  `json:"overrides_applied,omitempty"`
}

// Contains reports whether the decision includes the tool ID.
func (d *LoadDecision) Contains(id string) bool {
	for _, t := range d.Tools {
		if t == id {
			return true
		}
	}
	return false
}
