// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hubcache

import (
	"context"

	"github.com/AleutianAI/AleutianHub/services/hub/planner"
)

// DecisionStore persists planner decisions keyed by their cache key.
//
// # Description
//
// A store sits behind the in-memory decision cache and survives hub
// restarts. Implementations must tolerate concurrent use. A Load miss is
// (nil, false, nil); errors are reserved for real failures (I/O,
// corruption) and callers treat them as misses after logging.
type DecisionStore interface {
	// Load returns the stored decision for the key, if present and fresh.
	Load(ctx context.Context, key string) (*planner.LoadDecision, bool, error)

	// Save stores the decision under the key with the store's TTL.
	Save(ctx context.Context, key string, decision *planner.LoadDecision) error

	// Close releases store resources. Safe to call more than once.
	Close() error
}

// NopStore is the DecisionStore used when persistence is disabled. It
// never finds anything and discards writes.
type NopStore struct{}

var _ DecisionStore = NopStore{}

// Load always misses.
func (NopStore) Load(ctx context.Context, key string) (*planner.LoadDecision, bool, error) {
	return nil, false, nil
}

// Save discards the decision.
func (NopStore) Save(ctx context.Context, key string, decision *planner.LoadDecision) error {
	return nil
}

// Close is a no-op.
func (NopStore) Close() error {
	return nil
}
