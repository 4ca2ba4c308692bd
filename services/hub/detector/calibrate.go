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
	"strings"

	"github.com/AleutianAI/AleutianHub/services/hub/catalog"
)

// Complexity modifier bands. Long multi-clause queries match many keyword
// sets at once, so their scores shrink x0.8 (the conservative bias shrinks
// their thresholds in step); short queries stretch x1.1 so a single strong
// keyword still clears the bar.
const (
	complexHigh      = 0.8
	complexLow       = 0.3
	complexShrink    = 0.8
	complexStretch   = 1.1
	complexWordNorm  = 30.0
	complexTokenNorm = 5.0
)

// value maps a raw score through the curve: linear interpolation between
// anchors, nearest-segment extrapolation outside them.
func (c curve) value(raw float64) float64 {
	a := c.anchors
	if raw <= a[0][0] {
		return extrapolate(a[0], a[1], raw)
	}
	last := len(a) - 1
	if raw >= a[last][0] {
		return extrapolate(a[last-1], a[last], raw)
	}
	for i := 1; i <= last; i++ {
		if raw <= a[i][0] {
			return interpolate(a[i-1], a[i], raw)
		}
	}
	return a[last][1]
}

func interpolate(lo, hi [2]float64, x float64) float64 {
	t := (x - lo[0]) / (hi[0] - lo[0])
	return lo[1] + t*(hi[1]-lo[1])
}

func extrapolate(lo, hi [2]float64, x float64) float64 {
	slope := (hi[1] - lo[1]) / (hi[0] - lo[0])
	return lo[1] + slope*(x-lo[0])
}

// queryComplexity scores how much the query is asking for at once, in
// [0,1]: half from length, half from coordination and breadth words.
func queryComplexity(cfg *Config, query string) float64 {
	fields := strings.Fields(query)
	hits := 0
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:'\"()[]{}")
		if _, ok := cfg.complexity[f]; ok {
			hits++
		}
	}
	words := float64(len(fields)) / complexWordNorm
	if words > 1 {
		words = 1
	}
	tokens := float64(hits) / complexTokenNorm
	if tokens > 1 {
		tokens = 1
	}
	return 0.5*words + 0.5*tokens
}

// complexityModifier converts a complexity score into the multiplier
// applied after curve calibration.
func complexityModifier(complexity float64) float64 {
	switch {
	case complexity > complexHigh:
		return complexShrink
	case complexity < complexLow:
		return complexStretch
	default:
		return 1.0
	}
}

// calibrate maps raw combined scores through the per-category curves and
// applies the complexity modifier, clamping to [0,1].
func calibrate(cfg *Config, combined map[catalog.Category]float64, complexity float64) map[catalog.Category]float64 {
	mod := complexityModifier(complexity)
	out := make(map[catalog.Category]float64, len(combined))
	for cat, raw := range combined {
		v := cfg.curves[cat].value(raw) * mod
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		out[cat] = v
	}
	return out
}
