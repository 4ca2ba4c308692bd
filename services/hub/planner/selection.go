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
	"log/slog"
	"sort"

	"github.com/AleutianAI/AleutianHub/services/hub/catalog"
)

// selection accumulates chosen descriptors during one planning pass.
type selection struct {
	view   *catalog.View
	chosen map[string]*catalog.ToolDescriptor
}

func newSelection(view *catalog.View) *selection {
	return &selection{
		view:   view,
		chosen: make(map[string]*catalog.ToolDescriptor),
	}
}

func (s *selection) add(d *catalog.ToolDescriptor) {
	s.chosen[d.ID] = d
}

func (s *selection) addAll(ds []*catalog.ToolDescriptor) {
	for _, d := range ds {
		s.chosen[d.ID] = d
	}
}

// closeDependencies adds the transitive closure over declared tool
// dependencies. Dependencies naming unregistered tools are skipped.
func (s *selection) closeDependencies() {
	queue := make([]string, 0, len(s.chosen))
	for id := range s.chosen {
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range s.chosen[id].Dependencies {
			if _, ok := s.chosen[dep]; ok {
				continue
			}
			desc, ok := s.view.Get(dep)
			if !ok {
				slog.Warn("Skipping unregistered dependency",
					slog.String("tool", id),
					slog.String("dependency", dep))
				continue
			}
			s.chosen[dep] = desc
			queue = append(queue, dep)
		}
	}
}

// applyCap trims the selection down to the planner's tool cap.
//
// Description:
//
//	Removal order: T3 tools by ascending category confidence, then T2
//	tools by ascending descriptor priority, then non-essential git T1.
//	Essential tools and the core category are never trimmed; if they
//	alone exceed the cap the decision collapses to exactly the essential
//	set, cap notwithstanding. Reports whether anything was trimmed.
func (p *Planner) applyCap(sel *selection, conf map[catalog.Category]float64) bool {
	if len(sel.chosen) <= p.maxTools {
		return false
	}

	for _, d := range capCandidates(sel, conf) {
		if len(sel.chosen) <= p.maxTools {
			break
		}
		delete(sel.chosen, d.ID)
	}
	if len(sel.chosen) > p.maxTools {
		// Only the untrimmable floor is left and it is still too big.
		floor := make(map[string]*catalog.ToolDescriptor)
		for _, d := range sel.view.Essential() {
			if _, ok := sel.chosen[d.ID]; ok {
				floor[d.ID] = d
			}
		}
		sel.chosen = floor
	}
	return true
}

// capCandidates lists the trimmable descriptors in removal order.
func capCandidates(sel *selection, conf map[catalog.Category]float64) []*catalog.ToolDescriptor {
	var t3, t2, git []*catalog.ToolDescriptor
	for _, d := range sel.chosen {
		if d.Essential || d.Category == catalog.CategoryCore {
			continue
		}
		switch {
		case d.Tier == catalog.TierT3:
			t3 = append(t3, d)
		case d.Tier == catalog.TierT2:
			t2 = append(t2, d)
		case d.Category == catalog.CategoryGit:
			git = append(git, d)
		}
	}

	sort.Slice(t3, func(i, j int) bool {
		ci, cj := conf[t3[i].Category], conf[t3[j].Category]
		if ci != cj {
			return ci < cj
		}
		if t3[i].Priority != t3[j].Priority {
			return t3[i].Priority < t3[j].Priority
		}
		return t3[i].ID < t3[j].ID
	})
	sort.Slice(t2, func(i, j int) bool {
		if t2[i].Priority != t2[j].Priority {
			return t2[i].Priority < t2[j].Priority
		}
		ci, cj := conf[t2[i].Category], conf[t2[j].Category]
		if ci != cj {
			return ci < cj
		}
		return t2[i].ID < t2[j].ID
	})
	sort.Slice(git, func(i, j int) bool {
		if git[i].Priority != git[j].Priority {
			return git[i].Priority < git[j].Priority
		}
		return git[i].ID < git[j].ID
	})

	out := make([]*catalog.ToolDescriptor, 0, len(t3)+len(t2)+len(git))
	out = append(out, t3...)
	out = append(out, t2...)
	out = append(out, git...)
	return out
}

// decision freezes the selection into a LoadDecision.
func (s *selection) decision(conf map[catalog.Category]float64, strategy Strategy, applied []string) *LoadDecision {
	ids := make([]string, 0, len(s.chosen))
	breakdown := map[catalog.Tier][]string{}
	tokens := 0
	for id, d := range s.chosen {
		ids = append(ids, id)
		breakdown[d.Tier] = append(breakdown[d.Tier], id)
		tokens += d.TokenCost
	}
	sort.Strings(ids)
	for _, tier := range breakdown {
		sort.Strings(tier)
	}

	return &LoadDecision{
		Tools:            ids,
		TierBreakdown:    breakdown,
		EstimatedTokens:  tokens,
		ConfidenceMean:   confidenceMean(conf),
		Strategy:         strategy,
		OverridesApplied: applied,
	}
}

// confidenceMean averages the observed confidences in fixed category order
// so repeated plans sum identically.
func confidenceMean(conf map[catalog.Category]float64) float64 {
	if len(conf) == 0 {
		return 0
	}
	sum := 0.0
	n := 0
	for _, cat := range catalog.AllCategories() {
		if c, ok := conf[cat]; ok {
			sum += c
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
