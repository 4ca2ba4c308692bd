// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCategoryMapEmbedded(t *testing.T) {
	t.Setenv(categoryMapEnvVar, "")

	cm, err := LoadCategoryMap()
	if err != nil {
		t.Fatalf("LoadCategoryMap error: %v", err)
	}
	if cm.Source() != "embedded" {
		t.Errorf("Source = %q, want embedded", cm.Source())
	}
	if cm.RuleCount() == 0 {
		t.Error("embedded map has no rules")
	}
}

func TestLoadCategoryMapExternal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "map.yaml")
	content := []byte(`
version: 1
servers:
  - name: custom
    category: debug
    priority: 88
rules:
  - match: "custom__special"
    category: security
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(categoryMapEnvVar, path)

	cm, err := LoadCategoryMap()
	if err != nil {
		t.Fatalf("LoadCategoryMap error: %v", err)
	}
	if cm.Source() != "external" {
		t.Fatalf("Source = %q, want external", cm.Source())
	}

	d := cm.Describe("custom", "probe", "a probe", nil)
	if d.Category != CategoryDebug {
		t.Errorf("category = %v, want debug from server rule", d.Category)
	}
	if d.Priority != 88 {
		t.Errorf("priority = %d, want 88", d.Priority)
	}

	d = cm.Describe("custom", "special", "special tool", nil)
	if d.Category != CategorySecurity {
		t.Errorf("category = %v, want security from tool rule", d.Category)
	}
}

func TestLoadCategoryMapExternalInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "map.yaml")
	if err := os.WriteFile(path, []byte("servers: [{name: x, category: bogus}]"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(categoryMapEnvVar, path)

	_, err := LoadCategoryMap()
	if !errors.Is(err, ErrMapInvalid) {
		t.Errorf("error = %v, want ErrMapInvalid", err)
	}
}

func TestLoadCategoryMapMissingExternalFallsBack(t *testing.T) {
	t.Setenv(categoryMapEnvVar, filepath.Join(t.TempDir(), "does-not-exist.yaml"))

	cm, err := LoadCategoryMap()
	if err != nil {
		t.Fatalf("LoadCategoryMap error: %v", err)
	}
	if cm.Source() != "embedded" {
		t.Errorf("Source = %q, want embedded fallback", cm.Source())
	}
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		input   string
		want    bool
	}{
		{"git_status", "git_status", true},
		{"git_status", "git_status_2", false},
		{"git_*", "git_status", true},
		{"git_*", "digit_status", false},
		{"*_pipeline", "build_pipeline", true},
		{"*_pipeline", "pipeline_build", false},
		{"a*c", "abc", true},
		{"a*c", "ac", true},
		{"a.c", "abc", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.input, func(t *testing.T) {
			p, err := newMatchPattern(tt.pattern)
			if err != nil {
				t.Fatalf("newMatchPattern(%q) error: %v", tt.pattern, err)
			}
			if got := p.matches(tt.input); got != tt.want {
				t.Errorf("matches(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDescribeDefaults(t *testing.T) {
	cm, err := LoadCategoryMap()
	if err != nil {
		t.Fatalf("LoadCategoryMap error: %v", err)
	}

	t.Run("filesystem tools are essential core", func(t *testing.T) {
		d := cm.Describe("filesystem", "read_file", "Read a file from disk", nil)
		if d.Category != CategoryCore {
			t.Errorf("category = %v, want core", d.Category)
		}
		if !d.Essential {
			t.Error("filesystem tool not marked essential")
		}
		if d.Tier != TierT1 {
			t.Errorf("tier = %v, want T1", d.Tier)
		}
	})

	t.Run("git server tools", func(t *testing.T) {
		d := cm.Describe("mcp__git", "git_status", "Show working tree status", nil)
		if d.ID != "mcp__git__git_status" {
			t.Errorf("ID = %q, want mcp__git__git_status", d.ID)
		}
		if d.Category != CategoryGit {
			t.Errorf("category = %v, want git", d.Category)
		}
		if d.Tier != TierT1 {
			t.Errorf("tier = %v, want T1", d.Tier)
		}
	})

	t.Run("unknown server lands in default category", func(t *testing.T) {
		d := cm.Describe("weather", "forecast", "Get a weather forecast", nil)
		if d.Category != CategoryExternal {
			t.Errorf("category = %v, want external default", d.Category)
		}
		if d.Tier != TierT3 {
			t.Errorf("tier = %v, want T3", d.Tier)
		}
	})

	t.Run("git wildcard rule reclassifies foreign tools", func(t *testing.T) {
		d := cm.Describe("weather", "git_helper", "Git helper", nil)
		if d.Category != CategoryGit {
			t.Errorf("category = %v, want git via git_* rule", d.Category)
		}
	})

	t.Run("pinned token cost", func(t *testing.T) {
		d := cm.Describe("security-scanner", "deep_scan", "Scan everything", nil)
		if d.TokenCost != 220 {
			t.Errorf("token cost = %d, want pinned 220", d.TokenCost)
		}
	})

	t.Run("dependencies carried", func(t *testing.T) {
		d := cm.Describe("test-runner", "run_tests", "Run the test suite", nil)
		if len(d.Dependencies) != 1 || d.Dependencies[0] != "filesystem__read_file" {
			t.Errorf("dependencies = %v, want [filesystem__read_file]", d.Dependencies)
		}
	})

	t.Run("estimated cost when not pinned", func(t *testing.T) {
		d := cm.Describe("web-search", "search", "Search the web for a query string", nil)
		want := EstimateTokenCost("search", "Search the web for a query string", nil)
		if d.TokenCost != want {
			t.Errorf("token cost = %d, want estimate %d", d.TokenCost, want)
		}
	})
}
