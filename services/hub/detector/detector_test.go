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
	"reflect"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianHub/services/hub/catalog"
)

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	for _, cat := range catalog.AllCategories() {
		sets, ok := cfg.Keywords(cat)
		if !ok {
			t.Errorf("no keyword sets for %s", cat)
			continue
		}
		if sets.BaseConfidence <= 0 || sets.BaseConfidence > 1 {
			t.Errorf("%s base confidence = %v", cat, sets.BaseConfidence)
		}
		if len(sets.Direct) == 0 {
			t.Errorf("%s has no direct keywords", cat)
		}
		if _, ok := cfg.curves[cat]; !ok {
			t.Errorf("no calibration curve for %s", cat)
		}
	}

	if sets, _ := cfg.Keywords(catalog.CategoryGit); sets.BaseConfidence != 0.9 {
		t.Errorf("git base confidence = %v, want 0.9", sets.BaseConfidence)
	}
	if _, ok := cfg.Keywords(catalog.Category("nope")); ok {
		t.Error("Keywords(nope) ok = true, want false")
	}
	if len(cfg.complexity) == 0 {
		t.Error("no complexity tokens loaded")
	}
}

func TestDetect_GitQuery(t *testing.T) {
	d := New(loadTestConfig(t))

	result := d.Detect(context.Background(), "help me commit my changes and push to remote", &Context{}, DefaultOptions())

	if result.FallbackTag != FallbackNone {
		t.Errorf("fallback tag = %q, want %q", result.FallbackTag, FallbackNone)
	}
	want := []catalog.Category{catalog.CategoryCore, catalog.CategoryGit}
	if got := result.Enabled(); !reflect.DeepEqual(got, want) {
		t.Errorf("enabled = %v, want %v", got, want)
	}
	// Three git keywords hit but the direct set fires once: raw 0.9, and
	// the curve plus the short-query stretch saturate it.
	if got := result.Confidence[catalog.CategoryGit]; !almostEqual(got, 1.0) {
		t.Errorf("git confidence = %v, want 1.0", got)
	}
	if got := result.Signals[SignalKeyword][catalog.CategoryGit]; !almostEqual(got, 0.9) {
		t.Errorf("raw keyword signal = %v, want 0.9", got)
	}
	if len(result.Signals) != 1 {
		t.Errorf("signals = %v, want keyword only", result.Signals)
	}
	if result.DetectionMs < 0 {
		t.Errorf("detection ms = %v", result.DetectionMs)
	}
}

func TestDetect_DebugWithEnvironment(t *testing.T) {
	d := New(loadTestConfig(t))
	qctx := &Context{
		HasTestDirectories: true,
		FileExtensions:     []string{".py"},
	}

	result := d.Detect(context.Background(), "debug the failing authentication tests", qctx, DefaultOptions())

	if result.FallbackTag != FallbackNone {
		t.Errorf("fallback tag = %q, want %q", result.FallbackTag, FallbackNone)
	}
	want := []catalog.Category{catalog.CategoryCore, catalog.CategoryGit, catalog.CategoryDebug, catalog.CategoryTest}
	if got := result.Enabled(); !reflect.DeepEqual(got, want) {
		t.Errorf("enabled = %v, want %v", got, want)
	}

	// Keyword 0.85 through the top curve segment, stretched by the short
	// query: 0.8825 x 1.1.
	if got := result.Confidence[catalog.CategoryDebug]; !almostEqual(got, 0.97075) {
		t.Errorf("debug confidence = %v, want 0.97075", got)
	}
	// Keyword 0.8 plus the test-directory boost clamps to 1 after the
	// stretch.
	if got := result.Confidence[catalog.CategoryTest]; !almostEqual(got, 1.0) {
		t.Errorf("test confidence = %v, want 1.0", got)
	}
	// The .py extension alone is far below the T2 threshold.
	if got := result.Confidence[catalog.CategoryQuality]; !almostEqual(got, 0.1386) {
		t.Errorf("quality confidence = %v, want 0.1386", got)
	}

	if got := result.Signals[SignalKeyword][catalog.CategoryDebug]; !almostEqual(got, 0.85) {
		t.Errorf("raw debug keyword = %v, want 0.85", got)
	}
	if got := result.Signals[SignalEnvironment][catalog.CategoryTest]; !almostEqual(got, envTestDirs) {
		t.Errorf("raw test environment = %v, want %v", got, envTestDirs)
	}
	if got := result.Signals[SignalContext][catalog.CategoryQuality]; !almostEqual(got, codeExtCredit) {
		t.Errorf("raw quality context = %v, want %v", got, codeExtCredit)
	}
	if got := result.MaxConfidence(); !almostEqual(got, 1.0) {
		t.Errorf("max confidence = %v, want 1.0", got)
	}
}

func TestDetect_SecurityAudit(t *testing.T) {
	d := New(loadTestConfig(t))
	qctx := &Context{HasSecurityFiles: true}

	result := d.Detect(context.Background(), "perform security audit on the payment module", qctx, DefaultOptions())

	if result.FallbackTag != FallbackNone {
		t.Errorf("fallback tag = %q, want %q", result.FallbackTag, FallbackNone)
	}
	want := []catalog.Category{catalog.CategoryCore, catalog.CategoryGit, catalog.CategorySecurity}
	if got := result.Enabled(); !reflect.DeepEqual(got, want) {
		t.Errorf("enabled = %v, want %v", got, want)
	}
	// Keyword 0.9 plus the security-files boost overflows; proportional
	// scaling and the curve keep it saturated.
	if got := result.Confidence[catalog.CategorySecurity]; !almostEqual(got, 1.0) {
		t.Errorf("security confidence = %v, want 1.0", got)
	}
	if got := result.Signals[SignalKeyword][catalog.CategorySecurity]; !almostEqual(got, 0.9) {
		t.Errorf("raw security keyword = %v, want 0.9", got)
	}
}

func TestDetect_EmptyQuery(t *testing.T) {
	d := New(loadTestConfig(t))

	result := d.Detect(context.Background(), "", &Context{}, DefaultOptions())

	if result.FallbackTag != FallbackSafeDefault {
		t.Errorf("fallback tag = %q, want %q", result.FallbackTag, FallbackSafeDefault)
	}
	want := []catalog.Category{catalog.CategoryCore, catalog.CategoryGit, catalog.CategoryAnalysis}
	if got := result.Enabled(); !reflect.DeepEqual(got, want) {
		t.Errorf("enabled = %v, want %v", got, want)
	}
	for _, cat := range want {
		if got := result.Confidence[cat]; !almostEqual(got, safeConfidence) {
			t.Errorf("%s confidence = %v, want %v", cat, got, safeConfidence)
		}
	}
	if len(result.Signals) != 0 {
		t.Errorf("signals = %v, want none", result.Signals)
	}
}

func TestDetect_SessionBoost(t *testing.T) {
	d := New(loadTestConfig(t))
	qctx := &Context{
		History: []HistoryEntry{
			{Query: "explain the architecture", Categories: []catalog.Category{catalog.CategoryAnalysis}},
			{Query: "help me understand this codebase architecture", Categories: []catalog.Category{catalog.CategoryAnalysis}},
		},
	}

	result := d.Detect(context.Background(), "help me understand the codebase architecture", qctx, DefaultOptions())

	if result.FallbackTag != FallbackNone {
		t.Errorf("fallback tag = %q, want %q", result.FallbackTag, FallbackNone)
	}
	if !result.Categories[catalog.CategoryAnalysis] {
		t.Error("analysis not enabled")
	}
	if got := result.Confidence[catalog.CategoryAnalysis]; !almostEqual(got, 1.0) {
		t.Errorf("analysis confidence = %v, want 1.0", got)
	}
	// Frequency capped at 0.6, then the near-repeat boost up to the
	// boosted ceiling.
	if got := result.Signals[SignalSession][catalog.CategoryAnalysis]; !almostEqual(got, boostedCap) {
		t.Errorf("raw session signal = %v, want %v", got, boostedCap)
	}
	// Direct and contextual keyword sets both fire and clamp.
	if got := result.Signals[SignalKeyword][catalog.CategoryAnalysis]; !almostEqual(got, 1.0) {
		t.Errorf("raw keyword signal = %v, want 1.0", got)
	}
}

func TestDetect_SafeDefaultBumps(t *testing.T) {
	d := New(loadTestConfig(t))
	qctx := &Context{
		ProjectType:        "security",
		HasTestDirectories: true,
		FileExtensions:     []string{".go"},
	}

	result := d.Detect(context.Background(), "", qctx, DefaultOptions())

	if result.FallbackTag != FallbackSafeDefault {
		t.Errorf("fallback tag = %q, want %q", result.FallbackTag, FallbackSafeDefault)
	}
	want := []catalog.Category{
		catalog.CategoryCore, catalog.CategoryGit, catalog.CategoryAnalysis,
		catalog.CategoryQuality, catalog.CategoryTest, catalog.CategorySecurity,
	}
	if got := result.Enabled(); !reflect.DeepEqual(got, want) {
		t.Errorf("enabled = %v, want %v", got, want)
	}
	for _, cat := range want {
		if got := result.Confidence[cat]; got < safeConfidence {
			t.Errorf("%s confidence = %v, want >= %v", cat, got, safeConfidence)
		}
	}
}

func TestDetect_BudgetExceeded(t *testing.T) {
	d := New(loadTestConfig(t))
	opts := DefaultOptions()
	opts.Budget = time.Nanosecond

	result := d.Detect(context.Background(), "commit my changes", nil, opts)

	if result.FallbackTag != FallbackTimeout {
		t.Errorf("fallback tag = %q, want %q", result.FallbackTag, FallbackTimeout)
	}
	want := []catalog.Category{catalog.CategoryCore, catalog.CategoryGit, catalog.CategoryAnalysis}
	if got := result.Enabled(); !reflect.DeepEqual(got, want) {
		t.Errorf("enabled = %v, want %v", got, want)
	}
}

func TestDetect_AnalyzerPanic(t *testing.T) {
	// A nil config blows up the keyword analyzer inside its goroutine.
	d := New(nil)

	result := d.Detect(context.Background(), "commit my changes", &Context{}, DefaultOptions())

	if result.FallbackTag != FallbackError {
		t.Errorf("fallback tag = %q, want %q", result.FallbackTag, FallbackError)
	}
	want := []catalog.Category{catalog.CategoryCore, catalog.CategoryGit, catalog.CategoryAnalysis}
	if got := result.Enabled(); !reflect.DeepEqual(got, want) {
		t.Errorf("enabled = %v, want %v", got, want)
	}
}

func TestDetect_CalibrationPanic(t *testing.T) {
	// Keyword tables without curves panic in the calibration step, on the
	// caller's own goroutine rather than an analyzer's.
	d := New(&Config{
		keywords: map[catalog.Category]KeywordSets{
			catalog.CategoryGit: {BaseConfidence: 0.9, Direct: []string{"commit"}},
		},
		complexity: map[string]struct{}{"and": {}},
	})

	result := d.Detect(context.Background(), "commit my changes", &Context{}, DefaultOptions())

	if result.FallbackTag != FallbackError {
		t.Errorf("fallback tag = %q, want %q", result.FallbackTag, FallbackError)
	}
	if !result.Categories[catalog.CategoryCore] {
		t.Error("core not enabled in the error fallback")
	}
}

func TestDecide_FallbackChain(t *testing.T) {
	d := New(loadTestConfig(t))

	t.Run("ambiguous top pair yields safe default", func(t *testing.T) {
		scores := map[catalog.Category]float64{
			catalog.CategoryDebug: 0.6,
			catalog.CategoryTest:  0.55,
		}
		result := d.decide(scores, nil, &Context{}, DefaultOptions(), 0.5)

		if result.FallbackTag != FallbackSafeDefault {
			t.Errorf("fallback tag = %q, want %q", result.FallbackTag, FallbackSafeDefault)
		}
		if result.Categories[catalog.CategoryDebug] {
			t.Error("debug enabled, want dropped by the ambiguity fallback")
		}
		// The measured score survives in the confidence map even though
		// the category lost.
		if got := result.Confidence[catalog.CategoryDebug]; !almostEqual(got, 0.6) {
			t.Errorf("debug confidence = %v, want 0.6", got)
		}
		if got := result.Confidence[catalog.CategoryCore]; !almostEqual(got, safeConfidence) {
			t.Errorf("core confidence = %v, want %v", got, safeConfidence)
		}
	})

	t.Run("medium confidence widens past the threshold", func(t *testing.T) {
		opts := DefaultOptions()
		opts.T2Threshold = 0.5
		scores := map[catalog.Category]float64{
			catalog.CategoryDebug:   0.6,
			catalog.CategoryQuality: 0.35,
		}
		result := d.decide(scores, nil, &Context{}, opts, 0.5)

		if result.FallbackTag != FallbackMediumConfidence {
			t.Errorf("fallback tag = %q, want %q", result.FallbackTag, FallbackMediumConfidence)
		}
		if !result.Categories[catalog.CategoryDebug] {
			t.Error("debug not enabled")
		}
		// Quality missed the raised threshold but sits above the
		// expansion floor.
		if !result.Categories[catalog.CategoryQuality] {
			t.Error("quality not widened in")
		}
		if result.Categories[catalog.CategoryAnalysis] {
			t.Error("analysis enabled with a zero score")
		}
	})

	t.Run("new user bias keeps weak categories", func(t *testing.T) {
		scores := map[catalog.Category]float64{catalog.CategoryDebug: 0.23}
		result := d.decide(scores, nil, &Context{NewUser: true}, DefaultOptions(), 0.5)

		if result.FallbackTag != FallbackConservativeBias {
			t.Errorf("fallback tag = %q, want %q", result.FallbackTag, FallbackConservativeBias)
		}
		if !result.Categories[catalog.CategoryDebug] {
			t.Error("debug not enabled through the bias threshold")
		}
	})

	t.Run("complex query activates the bias too", func(t *testing.T) {
		scores := map[catalog.Category]float64{catalog.CategoryDebug: 0.23}
		result := d.decide(scores, nil, &Context{}, DefaultOptions(), 0.85)

		if result.FallbackTag != FallbackConservativeBias {
			t.Errorf("fallback tag = %q, want %q", result.FallbackTag, FallbackConservativeBias)
		}
	})

	t.Run("weak scores without bias fall back", func(t *testing.T) {
		scores := map[catalog.Category]float64{catalog.CategoryExternal: 0.25}
		result := d.decide(scores, nil, &Context{}, DefaultOptions(), 0.5)

		if result.FallbackTag != FallbackSafeDefault {
			t.Errorf("fallback tag = %q, want %q", result.FallbackTag, FallbackSafeDefault)
		}
		if result.Categories[catalog.CategoryExternal] {
			t.Error("external enabled below its tier threshold")
		}
	})

	t.Run("t3 enables at its own threshold", func(t *testing.T) {
		scores := map[catalog.Category]float64{
			catalog.CategoryInfrastructure: 0.9,
			catalog.CategoryExternal:       0.5,
		}
		result := d.decide(scores, nil, &Context{}, DefaultOptions(), 0.5)

		if result.FallbackTag != FallbackNone {
			t.Errorf("fallback tag = %q, want %q", result.FallbackTag, FallbackNone)
		}
		if !result.Categories[catalog.CategoryInfrastructure] {
			t.Error("infrastructure not enabled at 0.9")
		}
		if result.Categories[catalog.CategoryExternal] {
			t.Error("external enabled at 0.5, below the T3 threshold")
		}
	})
}
