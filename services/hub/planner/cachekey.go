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
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"
	"strings"
)

// CacheKey derives the decision-cache key for one planning input.
//
// Description:
//
//	The key hashes the normalized query (lowercased, whitespace
//	collapsed), the session strategy, and a canonical rendering of the
//	override set with both category lists sorted, so equivalent inputs
//	share an entry regardless of ordering or casing. NUL separators keep
//	field boundaries unambiguous.
func CacheKey(query string, strategy Strategy, ov *Overrides) string {
	h := sha256.New()
	io.WriteString(h, normalizeQuery(query))
	h.Write([]byte{0})
	io.WriteString(h, string(strategy))
	h.Write([]byte{0})
	if !ov.Empty() {
		io.WriteString(h, "force="+strings.Join(sortedNames(ov.Force), ","))
		h.Write([]byte{0})
		io.WriteString(h, "disable="+strings.Join(sortedNames(ov.Disable), ","))
		h.Write([]byte{0})
		io.WriteString(h, "strategy="+string(ov.Strategy))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

func sortedNames[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	sort.Strings(out)
	return out
}
