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
	"strings"

	"github.com/AleutianAI/AleutianHub/services/hub/catalog"
)

// Keyword set weights. A fired set contributes base_confidence x weight.
const (
	directWeight     = 1.0
	contextualWeight = 0.7
	actionWeight     = 0.5
)

// analyzeKeywords scores every category from the query text alone.
//
// Description:
//
//	Each of a category's three sets fires at most once, when any of its
//	entries is a substring of the lowercased query; fired sets add
//	base_confidence x set weight and the sum is clamped to [0,1]. Pure
//	function of the query, so results are cacheable by query alone.
//
// Inputs:
//
//	ctx - Detection deadline.
//	cfg - Immutable keyword tables.
//	query - Lowercased query text.
//
// Outputs:
//
//	map - Per-category scores; zero-score categories are omitted.
//	error - Only the context error when the budget expired mid-run.
func analyzeKeywords(ctx context.Context, cfg *Config, query string) (map[catalog.Category]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if query == "" {
		return nil, nil
	}

	scores := make(map[catalog.Category]float64)
	for cat, sets := range cfg.keywords {
		score := 0.0
		if anyKeyword(query, sets.Direct) {
			score += sets.BaseConfidence * directWeight
		}
		if anyKeyword(query, sets.Contextual) {
			score += sets.BaseConfidence * contextualWeight
		}
		if anyKeyword(query, sets.Action) {
			score += sets.BaseConfidence * actionWeight
		}
		if score > 1 {
			score = 1
		}
		if score > 0 {
			scores[cat] = score
		}
	}
	return scores, nil
}

// anyKeyword reports whether any entry of the set occurs in the query.
func anyKeyword(query string, set []string) bool {
	for _, k := range set {
		if strings.Contains(query, k) {
			return true
		}
	}
	return false
}
