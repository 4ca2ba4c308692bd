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
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianHub/services/hub/catalog"
)

//go:embed keywords.yaml
var embeddedKeywords []byte

//go:embed calibration.yaml
var embeddedCalibration []byte

// =============================================================================
// Config
// =============================================================================

// KeywordSets holds one category's keyword tables and base confidence.
type KeywordSets struct {
	BaseConfidence float64
	Direct         []string
	Contextual     []string
	Action         []string
}

// Config is the detector's immutable configuration: keyword tables,
// calibration curves, and complexity tokens, loaded once at startup. The
// detector is a pure function over a Config, which keeps it testable
// without touching the filesystem.
type Config struct {
	keywords   map[catalog.Category]KeywordSets
	curves     map[catalog.Category]curve
	complexity map[string]struct{}
}

// Keywords returns the keyword sets for a category.
func (c *Config) Keywords(cat catalog.Category) (KeywordSets, bool) {
	k, ok := c.keywords[cat]
	return k, ok
}

// =============================================================================
// Loading
// =============================================================================

type keywordsYAML struct {
	Version    int `yaml:"version"`
	Categories []struct {
		Name           string   `yaml:"name"`
		BaseConfidence float64  `yaml:"base_confidence"`
		Direct         []string `yaml:"direct"`
		Contextual     []string `yaml:"contextual"`
		Action         []string `yaml:"action"`
	} `yaml:"categories"`
}

type calibrationYAML struct {
	Version          int                     `yaml:"version"`
	Curves           map[string][][2]float64 `yaml:"curves"`
	ComplexityTokens []string                `yaml:"complexity_tokens"`
}

// LoadConfig parses the embedded keyword and calibration tables.
//
// Description:
//
//	Both tables are validated on load: every category must come from the
//	closed set, base confidences must sit in (0, 1], every category needs
//	a curve, and curve anchors must be strictly increasing in raw score
//	and non-decreasing in calibrated score. A config that loads is safe
//	to share across goroutines for the life of the process.
//
// Outputs:
//
//	*Config - The parsed configuration. Nil on error.
//	error - Non-nil if either table is malformed.
func LoadConfig() (*Config, error) {
	var kw keywordsYAML
	if err := yaml.Unmarshal(embeddedKeywords, &kw); err != nil {
		return nil, fmt.Errorf("parse keyword table: %w", err)
	}
	var cal calibrationYAML
	if err := yaml.Unmarshal(embeddedCalibration, &cal); err != nil {
		return nil, fmt.Errorf("parse calibration table: %w", err)
	}

	cfg := &Config{
		keywords:   make(map[catalog.Category]KeywordSets, len(kw.Categories)),
		curves:     make(map[catalog.Category]curve, len(cal.Curves)),
		complexity: make(map[string]struct{}, len(cal.ComplexityTokens)),
	}

	for _, entry := range kw.Categories {
		cat, err := catalog.ParseCategory(entry.Name)
		if err != nil {
			return nil, fmt.Errorf("keyword table: %w", err)
		}
		if entry.BaseConfidence <= 0 || entry.BaseConfidence > 1 {
			return nil, fmt.Errorf("keyword table: %s base confidence %v outside (0,1]",
				cat, entry.BaseConfidence)
		}
		for _, set := range [][]string{entry.Direct, entry.Contextual, entry.Action} {
			for _, k := range set {
				if len(k) < 3 {
					return nil, fmt.Errorf("keyword table: %s keyword %q shorter than 3 chars", cat, k)
				}
			}
		}
		cfg.keywords[cat] = KeywordSets{
			BaseConfidence: entry.BaseConfidence,
			Direct:         entry.Direct,
			Contextual:     entry.Contextual,
			Action:         entry.Action,
		}
	}

	for name, anchors := range cal.Curves {
		cat, err := catalog.ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("calibration table: %w", err)
		}
		cv, err := newCurve(anchors)
		if err != nil {
			return nil, fmt.Errorf("calibration table: %s: %w", cat, err)
		}
		cfg.curves[cat] = cv
	}

	// Every category must be fully specified; a silent hole would make
	// one category undetectable.
	for _, cat := range catalog.AllCategories() {
		if _, ok := cfg.keywords[cat]; !ok {
			return nil, fmt.Errorf("keyword table: no entry for %s", cat)
		}
		if _, ok := cfg.curves[cat]; !ok {
			return nil, fmt.Errorf("calibration table: no curve for %s", cat)
		}
	}

	for _, tok := range cal.ComplexityTokens {
		cfg.complexity[tok] = struct{}{}
	}
	if len(cfg.complexity) == 0 {
		return nil, fmt.Errorf("calibration table: no complexity tokens")
	}
	return cfg, nil
}

// curve is a validated piecewise-linear calibration curve.
type curve struct {
	anchors [][2]float64
}

func newCurve(anchors [][2]float64) (curve, error) {
	if len(anchors) < 2 {
		return curve{}, fmt.Errorf("need at least 2 anchors, have %d", len(anchors))
	}
	sorted := make([][2]float64, len(anchors))
	copy(sorted, anchors)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i][0] < sorted[j][0] })
	for i := 1; i < len(sorted); i++ {
		if sorted[i][0] == sorted[i-1][0] {
			return curve{}, fmt.Errorf("duplicate anchor at raw=%v", sorted[i][0])
		}
		if sorted[i][1] < sorted[i-1][1] {
			return curve{}, fmt.Errorf("calibrated score decreases at raw=%v", sorted[i][0])
		}
	}
	return curve{anchors: sorted}, nil
}
