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

// Session-analyzer knobs.
const (
	historyWindow    = 10  // entries considered for usage frequency
	similarityWindow = 4   // previous queries compared for similarity
	usageCap         = 0.6 // frequency score ceiling
	similarityBoost  = 0.3 // added when the query repeats a recent one
	boostedCap       = 0.8 // ceiling after the boost
	similarityThresh = 0.7 // Jaccard threshold for "same question again"
)

// analyzeHistory scores categories from what the session actually used.
//
// Description:
//
//	Usage frequency is the share of recent turns that used a tool of the
//	category, capped at usageCap so history never outvotes the query
//	itself. When the current query is a near repeat of a recent one
//	(Jaccard over word sets above similarityThresh), every nonzero score
//	gets a boost: the user is still on the same task, so the categories
//	that served it keep serving it.
func analyzeHistory(ctx context.Context, query string, qctx *Context) (map[catalog.Category]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	history := qctx.History
	if len(history) == 0 {
		return nil, nil
	}
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	used := make(map[catalog.Category]int)
	for _, entry := range history {
		seen := make(map[catalog.Category]struct{}, len(entry.Categories))
		for _, cat := range entry.Categories {
			if _, dup := seen[cat]; dup {
				continue
			}
			seen[cat] = struct{}{}
			used[cat]++
		}
	}

	scores := make(map[catalog.Category]float64, len(used))
	for cat, count := range used {
		s := float64(count) / float64(len(history))
		if s > usageCap {
			s = usageCap
		}
		scores[cat] = s
	}

	if repeatsRecentQuery(query, history) {
		for cat, s := range scores {
			s += similarityBoost
			if s > boostedCap {
				s = boostedCap
			}
			scores[cat] = s
		}
	}
	return scores, nil
}

// repeatsRecentQuery reports whether the query's word set nearly matches
// any of the last similarityWindow queries.
func repeatsRecentQuery(query string, history []HistoryEntry) bool {
	current := tokenSet(query)
	if len(current) == 0 {
		return false
	}
	start := len(history) - similarityWindow
	if start < 0 {
		start = 0
	}
	for _, entry := range history[start:] {
		if jaccard(current, tokenSet(entry.Query)) > similarityThresh {
			return true
		}
	}
	return false
}

// tokenSet splits a query into its lowercased word set, stripping edge
// punctuation.
func tokenSet(q string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range strings.Fields(strings.ToLower(q)) {
		f = strings.Trim(f, ".,!?;:'\"()[]{}")
		if f != "" {
			out[f] = struct{}{}
		}
	}
	return out
}

// jaccard computes |a intersect b| / |a union b| over token sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
