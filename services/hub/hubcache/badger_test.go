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
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianHub/services/hub/catalog"
	"github.com/AleutianAI/AleutianHub/services/hub/planner"
)

func openTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := OpenBadgerStore(InMemoryBadgerConfig())
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})
	return store
}

// sampleDecision keeps every field non-zero so a gob round trip preserves
// it exactly.
func sampleDecision() *planner.LoadDecision {
	return &planner.LoadDecision{
		Tools: []string{
			"filesystem__read_file",
			"mcp__git__git_status",
			"test-runner__run_tests",
		},
		TierBreakdown: map[catalog.Tier][]string{
			catalog.TierT1: {"filesystem__read_file", "mcp__git__git_status"},
			catalog.TierT2: {"test-runner__run_tests"},
		},
		EstimatedTokens:  130,
		ConfidenceMean:   0.85,
		Strategy:         planner.StrategyConservative,
		OverridesApplied: []string{"force:test"},
	}
}

// TestBadgerStore_RoundTrip verifies a saved decision reads back intact.
func TestBadgerStore_RoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	want := sampleDecision()

	require.NoError(t, store.Save(ctx, "key-1", want))

	got, found, err := store.Load(ctx, "key-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want, got)
}

// TestBadgerStore_Miss verifies an absent key is a clean miss, not an error.
func TestBadgerStore_Miss(t *testing.T) {
	store := openTestStore(t)

	got, found, err := store.Load(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

// TestBadgerStore_Overwrite verifies the latest save wins for a key.
func TestBadgerStore_Overwrite(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "key-1", sampleDecision()))

	second := sampleDecision()
	second.EstimatedTokens = 500
	require.NoError(t, store.Save(ctx, "key-1", second))

	got, found, err := store.Load(ctx, "key-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 500, got.EstimatedTokens)
}

// TestBadgerStore_TTLExpiry verifies entries vanish after the configured TTL.
func TestBadgerStore_TTLExpiry(t *testing.T) {
	cfg := InMemoryBadgerConfig()
	cfg.TTL = 25 * time.Millisecond
	store, err := OpenBadgerStore(cfg)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "key-1", sampleDecision()))

	_, found, err := store.Load(ctx, "key-1")
	require.NoError(t, err)
	require.True(t, found, "entry should be readable before expiry")

	time.Sleep(250 * time.Millisecond)

	_, found, err = store.Load(ctx, "key-1")
	require.NoError(t, err)
	assert.False(t, found, "entry should expire after TTL")
}

// TestBadgerStore_Corruption verifies damaged entries surface ErrStoreCorrupted
// instead of a silently wrong decision.
func TestBadgerStore_Corruption(t *testing.T) {
	t.Run("checksum mismatch", func(t *testing.T) {
		store := openTestStore(t)

		// Zero CRC over non-empty payload cannot match.
		raw := []byte{0, 0, 0, 0, 1, 2, 3}
		err := store.db.Update(func(txn *badger.Txn) error {
			return txn.Set(store.decisionKey("bad"), raw)
		})
		require.NoError(t, err)

		_, found, err := store.Load(context.Background(), "bad")
		assert.ErrorIs(t, err, ErrStoreCorrupted)
		assert.False(t, found)
	})

	t.Run("entry too short", func(t *testing.T) {
		store := openTestStore(t)

		err := store.db.Update(func(txn *badger.Txn) error {
			return txn.Set(store.decisionKey("short"), []byte{1, 2})
		})
		require.NoError(t, err)

		_, _, err = store.Load(context.Background(), "short")
		assert.ErrorIs(t, err, ErrStoreCorrupted)
	})
}

// TestBadgerStore_Closed verifies operations after Close fail with
// ErrStoreClosed and that Close itself is idempotent.
func TestBadgerStore_Closed(t *testing.T) {
	store, err := OpenBadgerStore(InMemoryBadgerConfig())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	ctx := context.Background()
	_, _, err = store.Load(ctx, "k")
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, store.Save(ctx, "k", sampleDecision()), ErrStoreClosed)
	assert.NoError(t, store.Close())
}

// TestBadgerStore_PersistsAcrossReopen verifies decisions survive a restart.
func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultBadgerConfig()
	cfg.Path = dir
	cfg.SyncWrites = false
	cfg.GCInterval = 0

	store, err := OpenBadgerStore(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	want := sampleDecision()
	require.NoError(t, store.Save(ctx, "key-1", want))
	require.NoError(t, store.Close())

	reopened, err := OpenBadgerStore(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	got, found, err := reopened.Load(ctx, "key-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want, got)
}

// TestBadgerStore_Validation verifies input checking on open, save, and load.
func TestBadgerStore_Validation(t *testing.T) {
	t.Run("path required", func(t *testing.T) {
		_, err := OpenBadgerStore(BadgerConfig{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "path")
	})

	t.Run("nil decision rejected", func(t *testing.T) {
		store := openTestStore(t)
		assert.Error(t, store.Save(context.Background(), "k", nil))
	})

	t.Run("cancelled context rejected", func(t *testing.T) {
		store := openTestStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, _, err := store.Load(ctx, "k")
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorIs(t, store.Save(ctx, "k", sampleDecision()), context.Canceled)
	})
}

// TestNopStore verifies the no-op store accepts everything and returns nothing.
func TestNopStore(t *testing.T) {
	var store DecisionStore = NopStore{}
	ctx := context.Background()

	assert.NoError(t, store.Save(ctx, "k", sampleDecision()))

	got, found, err := store.Load(ctx, "k")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)

	assert.NoError(t, store.Close())
}
