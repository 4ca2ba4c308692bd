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
	"time"

	"github.com/AleutianAI/AleutianHub/services/hub/catalog"
)

// =============================================================================
// Signal kinds
// =============================================================================

// SignalKind identifies one of the four analyzers feeding the scorer.
type SignalKind string

const (
	SignalKeyword     SignalKind = "keyword"
	SignalContext     SignalKind = "context"
	SignalEnvironment SignalKind = "environment"
	SignalSession     SignalKind = "session"
)

// AllSignals returns the signal kinds in scorer order.
func AllSignals() []SignalKind {
	return []SignalKind{SignalKeyword, SignalContext, SignalEnvironment, SignalSession}
}

// =============================================================================
// Fallback tags
// =============================================================================

// FallbackTag records why a detection result is not a plain high-confidence
// answer. The zero-ish value FallbackNone means the scores stood on their own.
type FallbackTag string

const (
	// FallbackNone tags a confident result kept as scored.
	FallbackNone FallbackTag = "none"

	// FallbackMediumConfidence tags a mid-confidence result widened with
	// the next-best T2 categories.
	FallbackMediumConfidence FallbackTag = "medium_confidence_expansion"

	// FallbackConservativeBias tags a result whose only enabled T2
	// categories crossed the bias-shrunk threshold, not the normal one.
	FallbackConservativeBias FallbackTag = "conservative_bias"

	// FallbackSafeDefault tags the core+git+analysis default used when
	// scores are too weak or too close to trust.
	FallbackSafeDefault FallbackTag = "safe_default"

	// FallbackFullLoad tags a synthetic result produced with filtering
	// disabled; every category is on and no detection ran.
	FallbackFullLoad FallbackTag = "full_load_fallback"

	// FallbackError tags the safe default returned after a panic or other
	// internal failure.
	FallbackError FallbackTag = "error_fallback"

	// FallbackTimeout tags the safe default returned when detection blew
	// its time budget.
	FallbackTimeout FallbackTag = "timeout"
)

// =============================================================================
// Inputs
// =============================================================================

// Context carries the workspace facts detection runs against. All fields are
// optional; the zero value is an empty workspace.
type Context struct {
	// FileExtensions lists extensions of files the conversation touches,
	// with leading dots (".py", ".go").
	FileExtensions []string `json:"file_extensions,omitempty"`

	// ProjectType is a coarse project label ("security", "library", ...).
	ProjectType string `json:"project_type,omitempty"`

	HasUncommittedChanges bool `json:"has_uncommitted_changes,omitempty"`
	HasMergeConflicts     bool `json:"has_merge_conflicts,omitempty"`

	// RecentCommits counts commits in the recent window.
	RecentCommits int `json:"recent_commits,omitempty"`

	HasTestDirectories bool `json:"has_test_directories,omitempty"`
	HasSecurityFiles   bool `json:"has_security_files,omitempty"`
	HasCIFiles         bool `json:"has_ci_files,omitempty"`
	HasDocs            bool `json:"has_docs,omitempty"`

	// NewUser activates the conservative bias on T2 thresholds.
	NewUser bool `json:"new_user,omitempty"`

	// History holds the session's recent turns, newest last. Injected by
	// the session layer, never read from the wire.
	History []HistoryEntry `json:"-"`
}

// HistoryEntry is one past turn as the session analyzer sees it.
type HistoryEntry struct {
	// Query is the turn's raw query text.
	Query string

	// Categories are the categories of the tools the turn actually used.
	Categories []catalog.Category

	// ToolsUsed lists the hub-wide IDs of the tools called in the turn.
	ToolsUsed []string
}

// =============================================================================
// Options
// =============================================================================

// Default detection knobs. The planner scales the thresholds per strategy
// before handing them to Detect.
const (
	DefaultT2Threshold    = 0.25
	DefaultT3Threshold    = 0.55
	DefaultBiasMultiplier = 0.8
	DefaultBudget         = 50 * time.Millisecond
)

// Options are the per-call detection knobs.
type Options struct {
	// T2Threshold is the effective enable threshold for T2 categories.
	T2Threshold float64

	// T3Threshold is the effective enable threshold for T3 categories.
	T3Threshold float64

	// BiasMultiplier shrinks T2Threshold for new users and complex
	// queries. 1.0 disables the bias.
	BiasMultiplier float64

	// Budget bounds total detection time; exceeded budgets return the
	// safe default tagged FallbackTimeout.
	Budget time.Duration
}

// DefaultOptions returns the stock knobs.
func DefaultOptions() Options {
	return Options{
		T2Threshold:    DefaultT2Threshold,
		T3Threshold:    DefaultT3Threshold,
		BiasMultiplier: DefaultBiasMultiplier,
		Budget:         DefaultBudget,
	}
}

// =============================================================================
// Result
// =============================================================================

// DetectionResult is the detector's answer for one query.
//
// # Description
//
// Categories holds the on/off decision per category; Confidence the
// calibrated score that produced it. Signals preserves each analyzer's raw
// output for observability and tests. Results are immutable once returned.
type DetectionResult struct {
	Categories map[catalog.Category]bool    `json:"categories"`
	Confidence map[catalog.Category]float64 `json:"confidence"`

	// Signals maps analyzer -> category -> raw score. Dropped analyzers
	// are absent.
	Signals map[SignalKind]map[catalog.Category]float64 `json:"signals,omitempty"`

	FallbackTag FallbackTag `json:"fallback_tag"`

	// DetectionMs is wall-clock detection time in milliseconds.
	DetectionMs float64 `json:"detection_ms"`
}

// Enabled returns the enabled categories in the stable catalog order.
func (r *DetectionResult) Enabled() []catalog.Category {
	var out []catalog.Category
	for _, c := range catalog.AllCategories() {
		if r.Categories[c] {
			out = append(out, c)
		}
	}
	return out
}

// MaxConfidence returns the highest calibrated score across categories.
func (r *DetectionResult) MaxConfidence() float64 {
	max := 0.0
	for _, v := range r.Confidence {
		if v > max {
			max = v
		}
	}
	return max
}
