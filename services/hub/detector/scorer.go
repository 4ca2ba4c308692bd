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

import "github.com/AleutianAI/AleutianHub/services/hub/catalog"

// signalWeight is each analyzer's global weight in the combined score.
var signalWeight = map[SignalKind]float64{
	SignalKeyword:     1.0,
	SignalContext:     0.7,
	SignalEnvironment: 0.6,
	SignalSession:     0.8,
}

// signalConfidence is how much each analyzer's own output is trusted.
// Environment flags are near-ground-truth; session history is the
// weakest witness for what the user wants right now.
var signalConfidence = map[SignalKind]float64{
	SignalKeyword:     1.0,
	SignalContext:     0.8,
	SignalEnvironment: 0.9,
	SignalSession:     0.7,
}

// combineSignals merges per-analyzer scores into one score per category.
//
// Description:
//
//	Per category: sum over signals of score x signal weight x signal
//	confidence. Dropped analyzers are simply absent from the input. If
//	the resulting maximum exceeds 1.0, every score is scaled down
//	proportionally so relative order survives the clamp.
func combineSignals(signals map[SignalKind]map[catalog.Category]float64) map[catalog.Category]float64 {
	combined := make(map[catalog.Category]float64)
	for kind, scores := range signals {
		w := signalWeight[kind] * signalConfidence[kind]
		for cat, s := range scores {
			combined[cat] += s * w
		}
	}

	max := 0.0
	for _, s := range combined {
		if s > max {
			max = s
		}
	}
	if max > 1.0 {
		for cat := range combined {
			combined[cat] /= max
		}
	}
	return combined
}
