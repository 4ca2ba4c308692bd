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
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianHub/services/hub/planner"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrStoreCorrupted indicates a stored entry failed its checksum.
	ErrStoreCorrupted = errors.New("decision store: corrupted entry")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("decision store: closed")
)

// decisionKeyPrefix namespaces decision entries so future record kinds can
// share the same database.
const decisionKeyPrefix = "decision:"

// DefaultDecisionTTL is how long a persisted decision stays valid.
const DefaultDecisionTTL = time.Hour

// =============================================================================
// Configuration
// =============================================================================

// BadgerConfig holds configuration for the persistent decision store.
type BadgerConfig struct {
	// Path is the directory for BadgerDB files.
	// Required for persistent databases. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// TTL is the lifetime of stored decisions.
	// <= 0 uses DefaultDecisionTTL.
	TTL time.Duration

	// GCInterval is how often to run value log garbage collection.
	// 0 disables GC. GC never runs for in-memory databases.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	GCDiscardRatio float64

	// Logger for store operations. If nil, BadgerDB's internal logging
	// is disabled and the store logs to slog.Default().
	Logger *slog.Logger
}

// DefaultBadgerConfig returns production defaults: durable writes, hourly
// decision TTL, five-minute GC.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		SyncWrites:     true,
		TTL:            DefaultDecisionTTL,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryBadgerConfig returns configuration for tests: no disk I/O, no
// sync, no GC.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{
		InMemory:   true,
		SyncWrites: false,
		TTL:        DefaultDecisionTTL,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// =============================================================================
// BadgerStore
// =============================================================================

// BadgerStore is a DecisionStore backed by an embedded BadgerDB.
//
// # Description
//
// Decisions are gob-encoded with a CRC32 checksum prefix and written with
// the configured TTL, so stale decisions expire inside the database
// without a sweeper. An optional value-log GC goroutine reclaims space on
// persistent databases.
//
// # Thread Safety
//
// Safe for concurrent use.
type BadgerStore struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	gcStop chan struct{}
	gcDone chan struct{}
}

var _ DecisionStore = (*BadgerStore)(nil)

// OpenBadgerStore opens a decision store with the given configuration.
//
// Description:
//
//	Opens a BadgerDB at the configured path, or in memory, creating the
//	directory if needed. Starts the GC goroutine when GCInterval is set
//	on a persistent database.
//
// Inputs:
//   - cfg: Store configuration. Path is required unless InMemory is true.
//
// Outputs:
//   - *BadgerStore: The opened store. Caller must call Close() when done.
//   - error: Non-nil if the path is invalid or the database cannot open.
//
// Thread Safety: The returned store is safe for concurrent use.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent decision store")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultDecisionTTL
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil) // Disable BadgerDB's internal logging
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open decision store: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &BadgerStore{
		db:     db,
		ttl:    cfg.TTL,
		logger: logger.With(slog.String("component", "decision_store")),
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gcStop = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}

	return s, nil
}

// Load returns the stored decision for the key.
//
// Description:
//
//	Looks the key up in the database. Entries past their TTL are
//	reported as absent by BadgerDB itself. A checksum mismatch returns
//	ErrStoreCorrupted; the entry is overwritten by the next Save under
//	the same key.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - key: Planner cache key.
//
// Outputs:
//   - *planner.LoadDecision: The decision, or nil.
//   - bool: True if the key was present and decoded.
//   - error: Non-nil on I/O failure or corruption.
//
// Thread Safety: Safe for concurrent use.
func (s *BadgerStore) Load(ctx context.Context, key string) (*planner.LoadDecision, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if s.isClosed() {
		return nil, false, ErrStoreClosed
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.decisionKey(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		recordStoreOp("load", "miss")
		return nil, false, nil
	}
	if err != nil {
		recordStoreOp("load", "error")
		return nil, false, fmt.Errorf("load decision: %w", err)
	}

	decision, err := decodeDecision(data)
	if err != nil {
		recordStoreOp("load", "corrupt")
		s.logger.Warn("Dropping corrupted decision entry",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return nil, false, err
	}

	recordStoreOp("load", "hit")
	return decision, true, nil
}

// Save stores the decision under the key with the store's TTL.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - key: Planner cache key.
//   - decision: The decision to persist. Must not be nil.
//
// Outputs:
//   - error: Non-nil on encode or write failure.
//
// Thread Safety: Safe for concurrent use.
func (s *BadgerStore) Save(ctx context.Context, key string, decision *planner.LoadDecision) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if decision == nil {
		return errors.New("decision must not be nil")
	}
	if s.isClosed() {
		return ErrStoreClosed
	}

	data, err := encodeDecision(decision)
	if err != nil {
		recordStoreOp("save", "error")
		return fmt.Errorf("encode decision: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(s.decisionKey(key), data).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		recordStoreOp("save", "error")
		return fmt.Errorf("save decision: %w", err)
	}

	recordStoreOp("save", "ok")
	return nil
}

// Close stops garbage collection and closes the database.
//
// Thread Safety: Safe for concurrent use. Subsequent calls are no-ops.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	gcStop, gcDone := s.gcStop, s.gcDone
	s.mu.Unlock()

	if gcStop != nil {
		close(gcStop)
		<-gcDone
	}
	return s.db.Close()
}

func (s *BadgerStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *BadgerStore) decisionKey(key string) []byte {
	return []byte(decisionKeyPrefix + key)
}

// runGC triggers value log garbage collection on a fixed interval.
func (s *BadgerStore) runGC(interval time.Duration, ratio float64) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			// RunValueLogGC returns ErrNoRewrite when nothing needed
			// collecting, which is not a failure.
			err := s.db.RunValueLogGC(ratio)
			switch {
			case err == nil:
				s.logger.Debug("decision store value log GC completed")
			case !errors.Is(err, badger.ErrNoRewrite):
				s.logger.Warn("decision store value log GC error",
					slog.String("error", err.Error()))
			}
		}
	}
}

// =============================================================================
// Encoding
// =============================================================================

// encodeDecision gob-encodes a decision and prepends a CRC32 checksum:
// [4-byte CRC][gob data].
func encodeDecision(decision *planner.LoadDecision) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(decision); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}

	crc := crc32.ChecksumIEEE(buf.Bytes())

	result := make([]byte, 4+buf.Len())
	binary.BigEndian.PutUint32(result[:4], crc)
	copy(result[4:], buf.Bytes())

	return result, nil
}

// decodeDecision validates the CRC32 checksum and decodes the decision.
func decodeDecision(data []byte) (*planner.LoadDecision, error) {
	if len(data) < 5 { // 4-byte CRC + at least 1 byte data
		return nil, fmt.Errorf("%w: entry too short", ErrStoreCorrupted)
	}

	storedCRC := binary.BigEndian.Uint32(data[:4])
	gobData := data[4:]
	computedCRC := crc32.ChecksumIEEE(gobData)

	if storedCRC != computedCRC {
		return nil, fmt.Errorf("%w: stored=%08x computed=%08x", ErrStoreCorrupted, storedCRC, computedCRC)
	}

	var decision planner.LoadDecision
	dec := gob.NewDecoder(bytes.NewReader(gobData))
	if err := dec.Decode(&decision); err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}

	return &decision, nil
}
