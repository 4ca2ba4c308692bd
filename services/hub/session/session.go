// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session tracks per-agent conversation state for the hub: recent
// turns for the session analyzer, sticky overrides driven by slash
// commands, and the counters behind the end-of-session token-reduction
// summary. A Store owns the sessions and retires idle ones.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianHub/services/hub/catalog"
	"github.com/AleutianAI/AleutianHub/services/hub/detector"
	"github.com/AleutianAI/AleutianHub/services/hub/planner"
)

// HistoryDepth is how many turns a session remembers.
const HistoryDepth = 10

// Turn is one completed exchange as the session records it.
type Turn struct {
	// Query is the turn's raw query text.
	Query string `json:"query"`

	// Categories are the categories enabled for the turn.
	Categories []catalog.Category `json:"categories,omitempty"`

	// ToolsUsed lists the hub-wide IDs of tools called during the turn.
	ToolsUsed []string `json:"tools_used,omitempty"`
}

// Metrics are a session's usage counters.
type Metrics struct {
	Detections     int64            `json:"detections"`
	Fallbacks      int64            `json:"fallbacks"`
	Errors         int64            `json:"errors"`
	TokensLoaded   int64            `json:"tokens_loaded"`
	TokensBaseline int64            `json:"tokens_baseline"`
	FunctionsUsed  map[string]int64 `json:"functions_used,omitempty"`
}

// Summary is a point-in-time snapshot of a session, safe to return to
// callers after the session itself is gone.
type Summary struct {
	ID         string           `json:"id"`
	UserID     string           `json:"user_id,omitempty"`
	Strategy   planner.Strategy `json:"strategy"`
	CreatedAt  time.Time        `json:"created_at"`
	LastActive time.Time        `json:"last_active"`
	Turns      int              `json:"turns"`
	Commands   []string         `json:"commands,omitempty"`
	Metrics    Metrics          `json:"metrics"`

	// TokenReduction is 1 - tokens_loaded/tokens_baseline: the share of
	// catalog tokens the hub kept out of the model's context.
	TokenReduction float64 `json:"token_reduction"`
}

// Session is one agent conversation's state.
//
// # Description
//
// Holds the turn history the session analyzer reads, the sticky overrides
// slash commands accumulate, and usage counters. The planning lock
// serializes detect-plan cycles so concurrent ListTools calls on the same
// session cannot interleave history reads with updates.
//
// # Thread Safety
//
// Safe for concurrent use.
type Session struct {
	id        string
	userID    string
	createdAt time.Time

	// planMu serializes re-planning; see BeginPlan.
	planMu sync.Mutex

	mu         sync.Mutex
	strategy   planner.Strategy
	overrides  planner.Overrides
	history    *RingBuffer[Turn]
	metrics    Metrics
	commands   []string
	lastActive time.Time
}

// NewSession creates a session.
//
// # Inputs
//
//   - id: Session ID. Empty generates a fresh UUID.
//   - userID: Owning user, may be empty.
//   - strategy: Base planning strategy. Invalid values fall back to
//     CONSERVATIVE.
//   - now: Creation time, also the initial activity stamp.
func NewSession(id, userID string, strategy planner.Strategy, now time.Time) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	if !strategy.Valid() {
		strategy = planner.StrategyConservative
	}
	return &Session{
		id:         id,
		userID:     userID,
		createdAt:  now,
		strategy:   strategy,
		history:    NewRingBuffer[Turn](HistoryDepth),
		metrics:    Metrics{FunctionsUsed: make(map[string]int64)},
		lastActive: now,
	}
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// UserID returns the owning user ID.
func (s *Session) UserID() string {
	return s.userID
}

// CreatedAt returns the creation time.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// BeginPlan acquires the session's planning lock. Pair with EndPlan.
func (s *Session) BeginPlan() {
	s.planMu.Lock()
}

// EndPlan releases the planning lock.
func (s *Session) EndPlan() {
	s.planMu.Unlock()
}

// Strategy returns the session's base strategy.
func (s *Session) Strategy() planner.Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strategy
}

// EffectiveStrategy returns the strategy the planner will use: the sticky
// override when set, the base strategy otherwise.
func (s *Session) EffectiveStrategy() planner.Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overrides.Strategy != "" {
		return s.overrides.Strategy
	}
	return s.strategy
}

// Overrides returns a copy of the session's sticky overrides. The copy is
// detached; later commands do not mutate it.
func (s *Session) Overrides() *planner.Overrides {
	s.mu.Lock()
	defer s.mu.Unlock()
	ov := planner.Overrides{
		Force:    append([]catalog.Category(nil), s.overrides.Force...),
		Disable:  append([]catalog.Category(nil), s.overrides.Disable...),
		Strategy: s.overrides.Strategy,
	}
	return &ov
}

// RecordTurn appends a turn to the session history.
func (s *Session) RecordTurn(query string, categories []catalog.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Push(Turn{
		Query:      query,
		Categories: append([]catalog.Category(nil), categories...),
	})
}

// History returns the recent turns as the detector consumes them, oldest
// first.
func (s *Session) History() []detector.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := s.history.Slice()
	if len(turns) == 0 {
		return nil
	}
	entries := make([]detector.HistoryEntry, len(turns))
	for i, t := range turns {
		entries[i] = detector.HistoryEntry{
			Query:      t.Query,
			Categories: t.Categories,
			ToolsUsed:  t.ToolsUsed,
		}
	}
	return entries
}

// RecordDecision accounts one load decision against the session.
//
// # Inputs
//
//   - tokensLoaded: The decision's estimated token cost.
//   - tokensBaseline: The full catalog's token cost at decision time.
//   - fallback: Whether the decision came from a fallback path.
func (s *Session) RecordDecision(tokensLoaded, tokensBaseline int, fallback bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.Detections++
	s.metrics.TokensLoaded += int64(tokensLoaded)
	s.metrics.TokensBaseline += int64(tokensBaseline)
	if fallback {
		s.metrics.Fallbacks++
	}
}

// RecordToolUse counts a successful tool call and attaches it to the
// newest turn.
func (s *Session) RecordToolUse(toolID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.FunctionsUsed[toolID]++
	s.history.UpdateNewest(func(t *Turn) {
		t.ToolsUsed = append(t.ToolsUsed, toolID)
	})
}

// RecordToolError counts a failed tool call.
func (s *Session) RecordToolError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.Errors++
}

// LastActive returns the last activity stamp.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// touch updates the activity stamp. The store calls it on every access.
func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = now
}

// Summary snapshots the session.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	strategy := s.strategy
	if s.overrides.Strategy != "" {
		strategy = s.overrides.Strategy
	}

	metrics := s.metrics
	metrics.FunctionsUsed = make(map[string]int64, len(s.metrics.FunctionsUsed))
	for k, v := range s.metrics.FunctionsUsed {
		metrics.FunctionsUsed[k] = v
	}

	return Summary{
		ID:             s.id,
		UserID:         s.userID,
		Strategy:       strategy,
		CreatedAt:      s.createdAt,
		LastActive:     s.lastActive,
		Turns:          s.history.Len(),
		Commands:       append([]string(nil), s.commands...),
		Metrics:        metrics,
		TokenReduction: tokenReduction(metrics.TokensLoaded, metrics.TokensBaseline),
	}
}

// tokenReduction computes 1 - loaded/baseline clamped to [0, 1]. A zero
// baseline means no decisions were made, reported as zero reduction.
func tokenReduction(loaded, baseline int64) float64 {
	if baseline <= 0 {
		return 0
	}
	r := 1 - float64(loaded)/float64(baseline)
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}
