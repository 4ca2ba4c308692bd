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
	"sort"
	"sync"
)

// Registry is the union catalog of all discovered tools.
//
// Description:
//
//	Holds the current descriptor set keyed by tool ID, server, and
//	category. Discovery replaces a server's descriptors wholesale under
//	the write lock; reads take the read lock and return copies, so a
//	rediscovery can never tear a caller's view of a single server.
//
// Thread Safety:
//
//	All methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]*ToolDescriptor
	byServer map[string][]*ToolDescriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:     make(map[string]*ToolDescriptor),
		byServer: make(map[string][]*ToolDescriptor),
	}
}

// ReplaceServer installs the descriptor set for one server, replacing any
// previous set from the same server.
//
// Description:
//
//	Used at discovery and explicit rediscovery. Descriptors whose ID
//	collides with a tool owned by a different server are dropped; exactly
//	one server owns any tool ID at a time, and the first owner wins.
//
// Inputs:
//
//	serverID - The owning server's name.
//	descs - The new descriptor set for that server.
//
// Outputs:
//
//	int - Number of descriptors installed (collisions excluded).
func (r *Registry) ReplaceServer(serverID string, descs []*ToolDescriptor) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, old := range r.byServer[serverID] {
		delete(r.byID, old.ID)
	}
	delete(r.byServer, serverID)

	installed := make([]*ToolDescriptor, 0, len(descs))
	for _, d := range descs {
		if existing, ok := r.byID[d.ID]; ok && existing.OwningServerID != serverID {
			continue
		}
		r.byID[d.ID] = d
		installed = append(installed, d)
	}
	if len(installed) > 0 {
		r.byServer[serverID] = installed
	}
	return len(installed)
}

// RemoveServer drops all descriptors owned by the given server.
func (r *Registry) RemoveServer(serverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range r.byServer[serverID] {
		delete(r.byID, d.ID)
	}
	delete(r.byServer, serverID)
}

// Get returns the descriptor for the given tool ID.
//
// Thread Safety: Safe for concurrent use.
func (r *Registry) Get(id string) (*ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	return d, ok
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// TotalTokenCost sums the token cost over every registered tool. This is
// what a client would pay per turn with no filtering at all.
func (r *Registry) TotalTokenCost() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, d := range r.byID {
		total += d.TokenCost
	}
	return total
}

// ServerCount returns the number of tools per server.
func (r *Registry) ServerCount() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(r.byServer))
	for s, descs := range r.byServer {
		out[s] = len(descs)
	}
	return out
}

// All returns every descriptor sorted by ID.
func (r *Registry) All() []*ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ToolDescriptor, 0, len(r.byID))
	for _, d := range r.byID {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot captures an immutable view of the catalog for one planning pass.
//
// Description:
//
//	The planner reads the catalog several times while selecting tools; a
//	rediscovery between those reads would break decision determinism.
//	Snapshot copies the index once under the read lock so the planner
//	works against a frozen view.
//
// Outputs:
//
//	*View - Frozen catalog view. Never nil.
func (r *Registry) Snapshot() *View {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v := &View{
		byID:   make(map[string]*ToolDescriptor, len(r.byID)),
		byCat:  make(map[Category]map[Tier][]*ToolDescriptor),
		sorted: make([]*ToolDescriptor, 0, len(r.byID)),
	}
	for id, d := range r.byID {
		v.byID[id] = d
		v.sorted = append(v.sorted, d)
		tiers, ok := v.byCat[d.Category]
		if !ok {
			tiers = make(map[Tier][]*ToolDescriptor)
			v.byCat[d.Category] = tiers
		}
		tiers[d.Tier] = append(tiers[d.Tier], d)
		v.totalTokens += d.TokenCost
		if d.Essential {
			v.essential = append(v.essential, d)
		}
	}
	sort.Slice(v.sorted, func(i, j int) bool { return v.sorted[i].ID < v.sorted[j].ID })
	sort.Slice(v.essential, func(i, j int) bool { return v.essential[i].ID < v.essential[j].ID })
	for _, tiers := range v.byCat {
		for t := range tiers {
			descs := tiers[t]
			sort.Slice(descs, func(i, j int) bool {
				if descs[i].Priority != descs[j].Priority {
					return descs[i].Priority > descs[j].Priority
				}
				return descs[i].ID < descs[j].ID
			})
		}
	}
	return v
}

// =============================================================================
// Frozen View
// =============================================================================

// View is an immutable snapshot of the catalog taken by Registry.Snapshot.
//
// # Thread Safety
//
// View is read-only after construction and safe to share.
type View struct {
	byID        map[string]*ToolDescriptor
	byCat       map[Category]map[Tier][]*ToolDescriptor
	sorted      []*ToolDescriptor
	essential   []*ToolDescriptor
	totalTokens int
}

// Get returns the descriptor for the given tool ID.
func (v *View) Get(id string) (*ToolDescriptor, bool) {
	d, ok := v.byID[id]
	return d, ok
}

// All returns every descriptor sorted by ID. Callers must not mutate the
// returned slice.
func (v *View) All() []*ToolDescriptor {
	return v.sorted
}

// Count returns the number of tools in the view.
func (v *View) Count() int {
	return len(v.byID)
}

// CategoryTier returns the tools in the given category and tier, sorted by
// priority descending then ID. Callers must not mutate the returned slice.
func (v *View) CategoryTier(c Category, t Tier) []*ToolDescriptor {
	tiers, ok := v.byCat[c]
	if !ok {
		return nil
	}
	return tiers[t]
}

// HasTier reports whether the category has at least one tool in the tier.
func (v *View) HasTier(c Category, t Tier) bool {
	return len(v.CategoryTier(c, t)) > 0
}

// Essential returns the core-tools set, sorted by ID. Callers must not
// mutate the returned slice.
func (v *View) Essential() []*ToolDescriptor {
	return v.essential
}

// TotalTokenCost sums the token cost over every tool in the view. This is
// the token baseline a session's load decisions are measured against.
func (v *View) TotalTokenCost() int {
	return v.totalTokens
}
