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
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxCategoryMapSize is the maximum allowed category map file size (1MB).
	// Prevents memory issues from oversized external files.
	MaxCategoryMapSize = 1024 * 1024

	// MaxRulesInMap is the maximum number of match rules allowed.
	MaxRulesInMap = 500

	// categoryMapEnvVar names the environment variable holding an external
	// category map path.
	categoryMapEnvVar = "HUB_CATEGORY_MAP_PATH"
)

// =============================================================================
// Embedded Default Map
// =============================================================================

//go:embed category_map.yaml
var defaultCategoryMapYAML []byte

// =============================================================================
// YAML Schema
// =============================================================================

// categoryMapYAML is the root structure for YAML deserialization.
type categoryMapYAML struct {
	Version  int              `yaml:"version"`
	Defaults mapDefaultsYAML  `yaml:"defaults"`
	Servers  []serverRuleYAML `yaml:"servers"`
	Rules    []toolRuleYAML   `yaml:"rules"`
}

// mapDefaultsYAML holds fallback values for tools no rule matches.
type mapDefaultsYAML struct {
	Category string `yaml:"category"`
	Priority int    `yaml:"priority"`
}

// serverRuleYAML assigns category defaults to every tool a server exports.
type serverRuleYAML struct {
	Name      string `yaml:"name"`
	Category  string `yaml:"category"`
	Essential bool   `yaml:"essential,omitempty"`
	Priority  int    `yaml:"priority,omitempty"`
}

// toolRuleYAML overrides classification for tools matching a pattern.
// Patterns containing '*' are wildcards; anything else matches exactly.
// Rules apply in file order and the first match wins.
type toolRuleYAML struct {
	Match        string   `yaml:"match"`
	Category     string   `yaml:"category,omitempty"`
	Essential    *bool    `yaml:"essential,omitempty"`
	Priority     *int     `yaml:"priority,omitempty"`
	TokenCost    int      `yaml:"token_cost,omitempty"`
	Dependencies []string `yaml:"dependencies,omitempty"`
}

// =============================================================================
// Compiled Map
// =============================================================================

// CategoryMap classifies discovered tools into categories and tiers.
//
// # Description
//
// The map is loaded once at startup from the embedded default or an
// external YAML file named by HUB_CATEGORY_MAP_PATH. Servers get a default
// category; ordered match rules refine individual tools. Tools nothing
// matches land in the default category (external, tier T3), so an
// unclassified tool can only ever make the agent's surface smaller, not
// break discovery.
//
// # Thread Safety
//
// Read-only after construction. Safe to share across goroutines.
type CategoryMap struct {
	defaults  mapDefaults
	servers   []serverRule
	rules     []toolRule
	ruleCount int
	source    string
}

type mapDefaults struct {
	category Category
	priority int
}

type serverRule struct {
	pattern   *matchPattern
	category  Category
	essential bool
	priority  int
}

type toolRule struct {
	pattern      *matchPattern
	category     Category
	hasCategory  bool
	essential    *bool
	priority     *int
	tokenCost    int
	dependencies []string
}

// matchPattern matches either exactly or via a compiled wildcard regex.
type matchPattern struct {
	exact    string
	compiled *regexp.Regexp
}

// newMatchPattern compiles a rule pattern. Patterns containing '*' become
// anchored regexes with each '*' matching any run of characters; all other
// patterns match exactly.
func newMatchPattern(raw string) (*matchPattern, error) {
	if raw == "" {
		return nil, fmt.Errorf("newMatchPattern: empty pattern")
	}
	if !strings.Contains(raw, "*") {
		return &matchPattern{exact: raw}, nil
	}
	parts := strings.Split(raw, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	compiled, err := regexp.Compile("^" + strings.Join(parts, ".*") + "$")
	if err != nil {
		return nil, fmt.Errorf("newMatchPattern: compiling %q: %w", raw, err)
	}
	return &matchPattern{compiled: compiled}, nil
}

func (p *matchPattern) matches(s string) bool {
	if p.compiled != nil {
		return p.compiled.MatchString(s)
	}
	return p.exact == s
}

// =============================================================================
// Loading
// =============================================================================

// LoadCategoryMap loads the category map from the external file if one is
// configured, falling back to the embedded default.
//
// Description:
//
//	Checks HUB_CATEGORY_MAP_PATH first. A missing or unreadable external
//	file logs a warning and falls back to the embedded map rather than
//	failing startup; a present but invalid external file is an error so a
//	bad deploy is caught rather than silently ignored.
//
// Outputs:
//
//	*CategoryMap - The compiled map. Never nil on success.
//	error - Non-nil if parsing failed. Wraps ErrMapInvalid.
func LoadCategoryMap() (*CategoryMap, error) {
	if path := os.Getenv(categoryMapEnvVar); path != "" {
		data, err := readExternalMap(path)
		if err != nil {
			slog.Warn("External category map not readable, using embedded default",
				slog.String("path", path),
				slog.String("error", err.Error()))
		} else {
			cm, err := parseCategoryMap(data, "external")
			if err != nil {
				return nil, fmt.Errorf("parsing external category map %s: %w", path, err)
			}
			slog.Info("Loaded category map from external file",
				slog.String("path", path),
				slog.Int("rule_count", cm.ruleCount))
			return cm, nil
		}
	}

	cm, err := parseCategoryMap(defaultCategoryMapYAML, "embedded")
	if err != nil {
		return nil, fmt.Errorf("parsing embedded category map: %w", err)
	}
	slog.Debug("Using embedded category map",
		slog.Int("rule_count", cm.ruleCount))
	return cm, nil
}

// readExternalMap reads an external map file with path and size checks.
func readExternalMap(path string) ([]byte, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	if strings.Contains(absPath, "..") {
		return nil, fmt.Errorf("readExternalMap: path traversal not allowed: %s", absPath)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.Size() > MaxCategoryMapSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrMapTooLarge, info.Size(), MaxCategoryMapSize)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// parseCategoryMap parses and validates YAML data into a compiled map.
func parseCategoryMap(data []byte, source string) (*CategoryMap, error) {
	var raw categoryMapYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling YAML: %v", ErrMapInvalid, err)
	}
	if len(raw.Rules) > MaxRulesInMap {
		return nil, fmt.Errorf("%w: too many rules: %d (max %d)", ErrMapInvalid, len(raw.Rules), MaxRulesInMap)
	}

	cm := &CategoryMap{
		defaults: mapDefaults{category: CategoryExternal, priority: 50},
		source:   source,
	}
	if raw.Defaults.Category != "" {
		c, err := ParseCategory(raw.Defaults.Category)
		if err != nil {
			return nil, fmt.Errorf("%w: defaults: %v", ErrMapInvalid, err)
		}
		cm.defaults.category = c
	}
	if raw.Defaults.Priority > 0 {
		cm.defaults.priority = raw.Defaults.Priority
	}

	for i, s := range raw.Servers {
		if s.Name == "" {
			return nil, fmt.Errorf("%w: server at index %d has empty name", ErrMapInvalid, i)
		}
		c, err := ParseCategory(s.Category)
		if err != nil {
			return nil, fmt.Errorf("%w: server %s: %v", ErrMapInvalid, s.Name, err)
		}
		pattern, err := newMatchPattern(s.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: server %s: %v", ErrMapInvalid, s.Name, err)
		}
		priority := s.Priority
		if priority == 0 {
			priority = cm.defaults.priority
		}
		cm.servers = append(cm.servers, serverRule{
			pattern:   pattern,
			category:  c,
			essential: s.Essential,
			priority:  priority,
		})
	}

	for i, r := range raw.Rules {
		if r.Match == "" {
			return nil, fmt.Errorf("%w: rule at index %d has empty match", ErrMapInvalid, i)
		}
		pattern, err := newMatchPattern(r.Match)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %s: %v", ErrMapInvalid, r.Match, err)
		}
		tr := toolRule{
			pattern:      pattern,
			essential:    r.Essential,
			priority:     r.Priority,
			tokenCost:    r.TokenCost,
			dependencies: r.Dependencies,
		}
		if r.Category != "" {
			c, err := ParseCategory(r.Category)
			if err != nil {
				return nil, fmt.Errorf("%w: rule %s: %v", ErrMapInvalid, r.Match, err)
			}
			tr.category = c
			tr.hasCategory = true
		}
		cm.rules = append(cm.rules, tr)
		cm.ruleCount++
	}

	return cm, nil
}

// =============================================================================
// Classification
// =============================================================================

// Describe builds the full descriptor for one discovered tool.
//
// Description:
//
//	Applies the server rules first (default category for everything the
//	server exports), then the ordered tool rules against both the full
//	tool ID and the bare local name. The first matching rule in each pass
//	wins. The tier always derives from the final category.
//
// Inputs:
//
//	serverID - Name of the owning server.
//	localName - Tool name as the server advertises it.
//	description - Tool description from discovery.
//	schema - Raw input schema from discovery. May be nil.
//
// Outputs:
//
//	*ToolDescriptor - The classified descriptor. Never nil.
func (cm *CategoryMap) Describe(serverID, localName, description string, schema json.RawMessage) *ToolDescriptor {
	d := &ToolDescriptor{
		ID:             MakeToolID(serverID, localName),
		LocalName:      localName,
		Description:    description,
		OwningServerID: serverID,
		InputSchema:    schema,
		Category:       cm.defaults.category,
		Priority:       cm.defaults.priority,
	}

	for _, s := range cm.servers {
		if s.pattern.matches(serverID) {
			d.Category = s.category
			d.Essential = s.essential
			d.Priority = s.priority
			break
		}
	}

	for _, r := range cm.rules {
		if !r.pattern.matches(d.ID) && !r.pattern.matches(localName) {
			continue
		}
		if r.hasCategory {
			d.Category = r.category
		}
		if r.essential != nil {
			d.Essential = *r.essential
		}
		if r.priority != nil {
			d.Priority = *r.priority
		}
		if r.tokenCost > 0 {
			d.TokenCost = r.tokenCost
		}
		if len(r.dependencies) > 0 {
			d.Dependencies = append([]string(nil), r.dependencies...)
		}
		break
	}

	d.Tier = d.Category.Tier()
	if d.TokenCost == 0 {
		d.TokenCost = EstimateTokenCost(localName, description, schema)
	}
	return d
}

// Source reports where the map was loaded from ("embedded" or "external").
func (cm *CategoryMap) Source() string {
	return cm.source
}

// RuleCount returns the number of tool match rules.
func (cm *CategoryMap) RuleCount() int {
	return cm.ruleCount
}
