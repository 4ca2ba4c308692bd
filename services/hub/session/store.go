// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianHub/services/hub/planner"
)

// DefaultIdleTTL retires sessions after half an hour without a request.
const DefaultIdleTTL = 30 * time.Minute

// defaultSweepInterval is how often the cleaner looks for idle sessions.
const defaultSweepInterval = time.Minute

// Store owns the hub's live sessions.
//
// # Description
//
// Find-or-create keyed by session ID, idle-TTL retirement via a
// background cleaner goroutine (ticker + done channel), and an optional
// evict hook so the owner can emit end-of-session summaries for sessions
// nobody closed explicitly.
//
// # Thread Safety
//
// Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	idleTTL         time.Duration
	defaultStrategy planner.Strategy
	logger          *slog.Logger

	// now is swappable so idle expiry is testable without sleeping.
	now func() time.Time

	cleanerMu sync.Mutex
	running   bool
	done      chan struct{}

	evictHook func(Summary)
}

// NewStore creates a session store.
//
// # Inputs
//
//   - idleTTL: Idle lifetime before a session is retired. <= 0 uses
//     DefaultIdleTTL.
//   - defaultStrategy: Base strategy for new sessions. Invalid values
//     fall back to CONSERVATIVE.
//   - logger: Store logger. Nil uses slog.Default().
func NewStore(idleTTL time.Duration, defaultStrategy planner.Strategy, logger *slog.Logger) *Store {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	if !defaultStrategy.Valid() {
		defaultStrategy = planner.StrategyConservative
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		sessions:        make(map[string]*Session),
		idleTTL:         idleTTL,
		defaultStrategy: defaultStrategy,
		logger:          logger.With(slog.String("component", "session_store")),
		now:             time.Now,
	}
}

// SetEvictHook registers a callback invoked with the summary of every
// session the cleaner retires. Must be set before StartCleaner.
func (st *Store) SetEvictHook(fn func(Summary)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.evictHook = fn
}

// FindOrCreate returns the session with the given ID, creating it when
// absent.
//
// # Description
//
// An empty ID creates a session under a fresh UUID. A non-empty unknown
// ID creates the session under the caller's ID, so an agent can mint its
// own session identifiers. Access stamps the session active either way.
//
// # Outputs
//
//   - *Session: The live session.
//   - bool: True if the session was created by this call.
func (st *Store) FindOrCreate(id, userID string) (*Session, bool) {
	now := st.now()

	st.mu.Lock()
	defer st.mu.Unlock()

	if id != "" {
		if sess, ok := st.sessions[id]; ok {
			sess.touch(now)
			return sess, false
		}
	}

	sess := NewSession(id, userID, st.defaultStrategy, now)
	st.sessions[sess.ID()] = sess
	recordSessionCreated(len(st.sessions))
	st.logger.Debug("Session created",
		slog.String("session_id", sess.ID()),
		slog.String("user_id", userID))
	return sess, true
}

// Get returns the session with the given ID and stamps it active.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	sess, ok := st.sessions[id]
	st.mu.RUnlock()

	if ok {
		sess.touch(st.now())
	}
	return sess, ok
}

// End removes the session and returns its final summary.
func (st *Store) End(id string) (Summary, bool) {
	st.mu.Lock()
	sess, ok := st.sessions[id]
	if ok {
		delete(st.sessions, id)
		recordSessionEnded(len(st.sessions))
	}
	st.mu.Unlock()

	if !ok {
		return Summary{}, false
	}
	return sess.Summary(), true
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Summaries snapshots every live session, sorted by ID.
func (st *Store) Summaries() []Summary {
	st.mu.RLock()
	sessions := make([]*Session, 0, len(st.sessions))
	for _, sess := range st.sessions {
		sessions = append(sessions, sess)
	}
	st.mu.RUnlock()

	out := make([]Summary, len(sessions))
	for i, sess := range sessions {
		out[i] = sess.Summary()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StartCleaner begins the background idle sweep.
//
// # Description
//
// Starts a goroutine that retires idle sessions at the given interval
// until StopCleaner is called. Returns an error if already running.
//
// # Inputs
//
//   - interval: Sweep cadence. <= 0 uses a one-minute default.
func (st *Store) StartCleaner(interval time.Duration) error {
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	st.cleanerMu.Lock()
	if st.running {
		st.cleanerMu.Unlock()
		return errors.New("session cleaner is already running")
	}
	st.running = true
	st.done = make(chan struct{}) // Reset for potential restart
	st.cleanerMu.Unlock()

	st.logger.Info("Session cleaner starting",
		slog.Duration("interval", interval),
		slog.Duration("idle_ttl", st.idleTTL))

	go st.runCleaner(interval)
	return nil
}

// StopCleaner stops the background sweep. Safe to call more than once.
func (st *Store) StopCleaner() {
	st.cleanerMu.Lock()
	defer st.cleanerMu.Unlock()

	if !st.running {
		return
	}
	close(st.done)
	st.running = false
}

func (st *Store) runCleaner(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-st.done:
			return
		case <-ticker.C:
			st.SweepNow()
		}
	}
}

// SweepNow retires every session idle past the TTL and returns how many
// were removed. The cleaner calls it on its ticker; tests call it
// directly.
func (st *Store) SweepNow() int {
	now := st.now()

	st.mu.Lock()
	var expired []*Session
	for id, sess := range st.sessions {
		if now.Sub(sess.LastActive()) > st.idleTTL {
			delete(st.sessions, id)
			expired = append(expired, sess)
		}
	}
	remaining := len(st.sessions)
	hook := st.evictHook
	st.mu.Unlock()

	if len(expired) == 0 {
		return 0
	}

	recordSessionsExpired(len(expired), remaining)
	for _, sess := range expired {
		summary := sess.Summary()
		st.logger.Info("Session retired idle",
			slog.String("session_id", summary.ID),
			slog.Int64("detections", summary.Metrics.Detections),
			slog.Float64("token_reduction", summary.TokenReduction))
		if hook != nil {
			hook(summary)
		}
	}
	return len(expired)
}
