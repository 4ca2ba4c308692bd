// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog holds the virtual tool catalog aggregated from all
// connected back-end servers.
//
// # Description
//
// The catalog is the hub's single source of truth for which tools exist,
// which server owns each tool, and how each tool is classified for loading
// decisions. Tool descriptors are created at discovery time by applying the
// category map (see CategoryMap) to the raw tool listings returned by each
// back-end, and are immutable afterwards.
//
// # Thread Safety
//
// Registry is safe for concurrent use. ToolDescriptor values are immutable
// once published and may be shared freely.
package catalog

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// Categories
// =============================================================================

// Category is a semantic label for a task kind. The set is closed; values
// outside the constants below are rejected at load time.
type Category string

const (
	CategoryCore           Category = "core"
	CategoryGit            Category = "git"
	CategoryAnalysis       Category = "analysis"
	CategoryQuality        Category = "quality"
	CategoryDebug          Category = "debug"
	CategoryTest           Category = "test"
	CategorySecurity       Category = "security"
	CategoryExternal       Category = "external"
	CategoryInfrastructure Category = "infrastructure"
)

// categoryTiers maps every known category to its tier. Membership here
// defines the closed category set.
var categoryTiers = map[Category]Tier{
	CategoryCore:           TierT1,
	CategoryGit:            TierT1,
	CategoryAnalysis:       TierT2,
	CategoryQuality:        TierT2,
	CategoryDebug:          TierT2,
	CategoryTest:           TierT2,
	CategorySecurity:       TierT2,
	CategoryExternal:       TierT3,
	CategoryInfrastructure: TierT3,
}

// AllCategories returns every known category in a stable order.
func AllCategories() []Category {
	return []Category{
		CategoryCore,
		CategoryGit,
		CategoryAnalysis,
		CategoryQuality,
		CategoryDebug,
		CategoryTest,
		CategorySecurity,
		CategoryExternal,
		CategoryInfrastructure,
	}
}

// Valid reports whether c is a member of the closed category set.
func (c Category) Valid() bool {
	_, ok := categoryTiers[c]
	return ok
}

// Tier returns the tier the category belongs to. Unknown categories map to
// TierT3 so that a misconfigured tool is never promoted to always-load.
func (c Category) Tier() Tier {
	if t, ok := categoryTiers[c]; ok {
		return t
	}
	return TierT3
}

// ParseCategory converts a string into a Category.
//
// # Inputs
//
//   - s: Candidate category name (case-sensitive, lowercase by convention).
//
// # Outputs
//
//   - Category: The parsed category.
//   - error: Non-nil if s is not in the closed set.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

// CategoriesInTier returns the categories belonging to the given tier, in
// the stable AllCategories order.
func CategoriesInTier(t Tier) []Category {
	var out []Category
	for _, c := range AllCategories() {
		if c.Tier() == t {
			out = append(out, c)
		}
	}
	return out
}

// =============================================================================
// Tiers
// =============================================================================

// Tier is the coarse loading band for a tool: T1 always loads, T2 loads when
// the detector is confident enough, T3 loads only at high confidence.
type Tier string

const (
	TierT1 Tier = "T1"
	TierT2 Tier = "T2"
	TierT3 Tier = "T3"
)

// AllTiers returns the tiers in ascending order.
func AllTiers() []Tier {
	return []Tier{TierT1, TierT2, TierT3}
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierT1, TierT2, TierT3:
		return true
	}
	return false
}

// =============================================================================
// Tool Descriptors
// =============================================================================

// ToolIDSeparator joins a server name and a tool's local name into the
// hub-wide tool ID.
const ToolIDSeparator = "__"

// CoreServerID is the synthetic owning-server tag for core tools that have
// no live back-end. Calls routed to it fail with a server-unavailable error.
const CoreServerID = "hub-core"

// MakeToolID builds the hub-wide tool ID from a server name and the tool's
// local name on that server.
func MakeToolID(server, localName string) string {
	return server + ToolIDSeparator + localName
}

// ToolDescriptor describes one tool in the virtual catalog.
//
// # Description
//
// Descriptors are built at discovery time from the back-end's tool listing
// plus the category map, and never change afterwards. A new discovery pass
// replaces descriptors wholesale rather than mutating them.
type ToolDescriptor struct {
	// ID is the hub-wide identifier, unique across all servers. By
	// convention it is "<server>__<local_name>".
	ID string `json:"id"`

	// LocalName is the tool's name on the owning server, used verbatim in
	// tools/call requests.
	LocalName string `json:"local_name"`

	// Description is the tool's human-readable description from discovery.
	Description string `json:"description"`

	// OwningServerID names the back-end that serves this tool, or
	// CoreServerID for synthetic core entries.
	OwningServerID string `json:"owning_server_id"`

	// InputSchema is the tool's JSON schema, carried opaquely.
	InputSchema json.RawMessage `json:"input_schema,omitempty"`

	// Category is the tool's task category from the category map.
	Category Category `json:"category"`

	// Tier is derived from Category; denormalized for fast selection.
	Tier Tier `json:"tier"`

	// TokenCost estimates how many prompt tokens listing this tool costs.
	TokenCost int `json:"token_cost"`

	// Priority orders tools within a category when the planner has to cap
	// the result. Higher wins.
	Priority int `json:"priority"`

	// Dependencies lists tool IDs that must be co-loaded with this tool.
	Dependencies []string `json:"dependencies,omitempty"`

	// Essential marks the tool as part of the core-tools set that every
	// non-error decision must include.
	Essential bool `json:"essential,omitempty"`
}

// EstimateTokenCost approximates the prompt token cost of exposing a tool
// with the given name, description, and schema. Roughly four characters per
// token, with a floor so empty descriptors still count.
func EstimateTokenCost(name, description string, schema json.RawMessage) int {
	n := (len(name) + len(description) + len(schema)) / 4
	if n < 10 {
		n = 10
	}
	return n
}
