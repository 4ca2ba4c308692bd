// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package hub is the front door of the tool-routing hub. It owns the
// live sessions, runs the detect-plan cycle that decides which tools an
// agent turn should load, dispatches tool calls through the router, and
// applies user override commands. The HTTP layer in handlers.go is a
// thin translation onto the methods here.
package hub

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianHub/services/hub/catalog"
	"github.com/AleutianAI/AleutianHub/services/hub/config"
	"github.com/AleutianAI/AleutianHub/services/hub/detector"
	"github.com/AleutianAI/AleutianHub/services/hub/hubcache"
	"github.com/AleutianAI/AleutianHub/services/hub/planner"
	"github.com/AleutianAI/AleutianHub/services/hub/router"
	"github.com/AleutianAI/AleutianHub/services/hub/session"
	"github.com/AleutianAI/AleutianHub/services/hub/tsp"
)

// ErrUnknownSession marks lookups for a session ID the store has no
// record of.
var ErrUnknownSession = errors.New("unknown session")

// ErrInvalidOverride marks request overrides that name a category or
// strategy the hub does not recognize.
var ErrInvalidOverride = errors.New("invalid override")

// cleanerInterval is how often the session store sweeps for idle
// sessions.
const cleanerInterval = time.Minute

// Dispatcher is the slice of the router the front door depends on.
// *router.Supervisor satisfies it; tests substitute in-process fakes.
type Dispatcher interface {
	CallTool(ctx context.Context, toolID string, args map[string]any) (*tsp.CallToolResult, error)
	Statuses() []router.ServerStatus
	ConnectedCount() int
	Refresh(ctx context.Context, serverID string) error
	Shutdown(ctx context.Context)
}

var _ Dispatcher = (*router.Supervisor)(nil)

// Deps collects the collaborators a Hub is built from.
//
// Registry and Supervisor are required. Detector defaults to one built
// from the embedded signal config, Store to the no-op decision store,
// and Logger to slog.Default.
type Deps struct {
	Registry   *catalog.Registry
	Supervisor Dispatcher
	Detector   *detector.Detector
	Store      hubcache.DecisionStore
	Logger     *slog.Logger
}

// Hub coordinates sessions, detection, planning, and dispatch.
//
// # Description
//
// One Hub serves the whole process. ListTools runs the per-turn
// detect-plan cycle, CallTool proxies tool invocations to the owning
// back end, ExecuteCommand applies sticky user overrides and re-plans,
// and EndSession closes a session out with its token accounting.
//
// # Thread Safety
//
// Safe for concurrent use. Per-session planning is serialized by the
// session's planning lock; everything else is guarded by the
// collaborators' own locks.
type Hub struct {
	cfg       config.Config
	registry  *catalog.Registry
	sup       Dispatcher
	det       *detector.Detector
	plan      *planner.Planner
	sessions  *session.Store
	store     hubcache.DecisionStore
	detCache  *hubcache.Cache[string, *detector.DetectionResult]
	decCache  *hubcache.Cache[string, *planner.LoadDecision]
	validator *argValidator
	logger    *slog.Logger
	start     time.Time
}

// New builds a Hub from the loaded configuration and its collaborators.
//
//	Inputs:
//	  - cfg: Validated hub configuration.
//	  - deps: Collaborators. Registry and Supervisor must be non-nil.
//
//	Outputs:
//	  - *Hub: Ready to serve, with the session cleaner running.
//	  - error: Missing required deps or detector config failure.
func New(cfg config.Config, deps Deps) (*Hub, error) {
	if deps.Registry == nil {
		return nil, errors.New("hub: nil registry")
	}
	if deps.Supervisor == nil {
		return nil, errors.New("hub: nil supervisor")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	det := deps.Detector
	if det == nil {
		dcfg, err := detector.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("hub: load detector config: %w", err)
		}
		det = detector.New(dcfg)
	}
	store := deps.Store
	if store == nil {
		store = hubcache.NopStore{}
	}

	h := &Hub{
		cfg:      cfg,
		registry: deps.Registry,
		sup:      deps.Supervisor,
		det:      det,
		plan:     planner.New(cfg.T2Threshold, cfg.T3Threshold, cfg.MaxTools),
		store:    store,
		logger:   logger,
		start:    time.Now(),
	}
	if cfg.Cache {
		h.detCache = hubcache.New[string, *detector.DetectionResult](
			"detection", hubcache.DefaultCapacity, cfg.DetectionTTL())
		h.decCache = hubcache.New[string, *planner.LoadDecision](
			"decision", hubcache.DefaultCapacity, cfg.DecisionTTL())
	}
	if cfg.ValidateArgs {
		h.validator = newArgValidator(logger)
	}

	h.sessions = session.NewStore(cfg.SessionTTL(), cfg.DefaultStrategy(), logger)
	h.sessions.SetEvictHook(func(sum session.Summary) {
		recordSessionEnd(sum, "evicted")
	})
	if err := h.sessions.StartCleaner(cleanerInterval); err != nil {
		return nil, fmt.Errorf("hub: start session cleaner: %w", err)
	}
	return h, nil
}

// filteringOn reports whether detection-driven filtering is active.
// When off, every turn loads the full catalog.
func (h *Hub) filteringOn() bool {
	return h.cfg.Enabled && h.cfg.Filtering
}

// =============================================================================
// ListTools
// =============================================================================

// ListTools answers the per-turn question: which tools should this
// query have loaded?
//
//	Inputs:
//	  - ctx: Request context. The list budget is applied on top.
//	  - req: Session binding, query, workspace context, overrides.
//
//	Outputs:
//	  - *ToolsResponse: Tool descriptors plus the decision summary.
//	  - error: Only for malformed overrides. Detection and planning
//	    failures degrade to broader tool sets instead of erroring.
func (h *Hub) ListTools(ctx context.Context, req ToolsRequest) (*ToolsResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.ListBudget())
	defer cancel()
	ctx, span := frontTracer().Start(ctx, "hub.ListTools")
	defer span.End()
	start := time.Now()

	reqOv, err := parseOverrides(req.Overrides)
	if err != nil {
		recordFrontRequest("tools", "invalid", time.Since(start))
		return nil, err
	}

	sess, created := h.sessions.FindOrCreate(req.SessionID, req.UserID)
	resp := h.planTools(ctx, sess, req.Query, req.Context, reqOv, req.Explain, true)
	resp.Created = created

	recordFrontRequest("tools", "ok", time.Since(start))
	recordToolsReturned(len(resp.Tools))
	return resp, nil
}

// planTools runs one detect-plan-respond cycle under the session's
// planning lock. recordTurn is false for command-driven re-plans, which
// must not pollute the conversation history.
func (h *Hub) planTools(ctx context.Context, sess *session.Session, query string, qctx *detector.Context, reqOv *planner.Overrides, explain, recordTurn bool) *ToolsResponse {
	sess.BeginPlan()
	defer sess.EndPlan()

	strategy := sess.EffectiveStrategy()
	if reqOv != nil && reqOv.Strategy != "" {
		strategy = reqOv.Strategy
	}
	ov := mergeOverrides(sess.Overrides(), reqOv)

	view := h.registry.Snapshot()
	baseline := view.TotalTokenCost()

	if !h.filteringOn() {
		decision := unionDecision(view, strategy, "filtering disabled")
		if recordTurn {
			sess.RecordTurn(query, categoriesOf(view, decision.Tools))
		}
		sess.RecordDecision(decision.EstimatedTokens, baseline, true)
		return buildResponse(sess, view, decision, baseline, nil, detector.FallbackFullLoad, false, explain)
	}

	key := planner.CacheKey(query, strategy, ov)
	if decision, ok := h.lookupDecision(ctx, key, view); ok {
		if recordTurn {
			sess.RecordTurn(query, categoriesOf(view, decision.Tools))
		}
		sess.RecordDecision(decision.EstimatedTokens, baseline, decision.FallbackReason != "")
		return buildResponse(sess, view, decision, baseline, nil, "", true, explain)
	}

	det := h.detect(ctx, sess, query, qctx, strategy)
	if !h.cfg.Fallback && (det.FallbackTag == detector.FallbackError || det.FallbackTag == detector.FallbackTimeout) {
		// With the safety net off, a broken detection loads everything
		// rather than guessing at a default subset.
		decision := unionDecision(view, strategy, "detection failed and fallback is disabled")
		if recordTurn {
			sess.RecordTurn(query, categoriesOf(view, decision.Tools))
		}
		sess.RecordDecision(decision.EstimatedTokens, baseline, true)
		return buildResponse(sess, view, decision, baseline, det, detector.FallbackFullLoad, false, explain)
	}

	if recordTurn {
		sess.RecordTurn(query, det.Enabled())
	}
	decision := h.plan.Plan(ctx, view, det, strategy, ov)
	h.saveDecision(ctx, key, decision)
	fallback := det.FallbackTag != detector.FallbackNone || decision.FallbackReason != ""
	sess.RecordDecision(decision.EstimatedTokens, baseline, fallback)
	return buildResponse(sess, view, decision, baseline, det, det.FallbackTag, false, explain)
}

// detect memoizes detection per query, workspace context, and session
// history. Detection is deterministic over those inputs, so an exact
// key is a pure cache. Error and timeout results are never cached.
func (h *Hub) detect(ctx context.Context, sess *session.Session, query string, qctx *detector.Context, strategy planner.Strategy) *detector.DetectionResult {
	history := sess.History()
	key := detectionKey(query, qctx, history)
	if h.detCache != nil {
		if det, ok := h.detCache.Get(key); ok {
			return det
		}
	}

	var scoped detector.Context
	if qctx != nil {
		scoped = *qctx
	}
	scoped.History = history

	opts := h.plan.DetectorOptions(strategy)
	opts.Budget = h.cfg.DetectionBudget()
	det := h.det.Detect(ctx, query, &scoped, opts)
	if h.detCache != nil && det.FallbackTag != detector.FallbackError && det.FallbackTag != detector.FallbackTimeout {
		h.detCache.Set(key, det)
	}
	return det
}

// lookupDecision checks the memory cache and behind it the persistent
// store. Hits must still resolve in the current catalog; a decision
// referencing tools a rediscovery removed is stale and dropped.
func (h *Hub) lookupDecision(ctx context.Context, key string, view *catalog.View) (*planner.LoadDecision, bool) {
	if h.decCache != nil {
		if d, ok := h.decCache.Get(key); ok && decisionValid(d, view) {
			return d, true
		}
	}
	d, ok, err := h.store.Load(ctx, key)
	if err != nil {
		h.logger.Warn("Decision store load failed", "error", err)
		return nil, false
	}
	if !ok || !decisionValid(d, view) {
		return nil, false
	}
	if h.decCache != nil {
		h.decCache.Set(key, d)
	}
	return d, true
}

// saveDecision writes a clean decision to both cache layers. Fallback
// decisions are not cached; the next turn should retry the real path.
func (h *Hub) saveDecision(ctx context.Context, key string, decision *planner.LoadDecision) {
	if decision.FallbackReason != "" {
		return
	}
	if h.decCache != nil {
		h.decCache.Set(key, decision)
	}
	if err := h.store.Save(ctx, key, decision); err != nil {
		h.logger.Warn("Decision store save failed", "error", err)
	}
}

// decisionValid reports whether every tool in the decision still
// resolves in the view.
func decisionValid(d *planner.LoadDecision, view *catalog.View) bool {
	if d == nil || len(d.Tools) == 0 {
		return false
	}
	for _, id := range d.Tools {
		if _, ok := view.Get(id); !ok {
			return false
		}
	}
	return true
}

// unionDecision loads the entire catalog, uncapped. Used when filtering
// is off and when detection breaks with the safety net disabled.
func unionDecision(view *catalog.View, strategy planner.Strategy, reason string) *planner.LoadDecision {
	d := &planner.LoadDecision{
		TierBreakdown:  make(map[catalog.Tier][]string),
		Strategy:       strategy,
		FallbackReason: reason,
	}
	for _, desc := range view.All() {
		d.Tools = append(d.Tools, desc.ID)
		d.TierBreakdown[desc.Tier] = append(d.TierBreakdown[desc.Tier], desc.ID)
		d.EstimatedTokens += desc.TokenCost
	}
	return d
}

// buildResponse materializes a decision into descriptors plus the
// summary the agent sees. det is nil on cache hits and full loads.
func buildResponse(sess *session.Session, view *catalog.View, decision *planner.LoadDecision, baseline int, det *detector.DetectionResult, tag detector.FallbackTag, cached, explain bool) *ToolsResponse {
	summary := DecisionSummary{
		Strategy:         decision.Strategy,
		Categories:       categoriesOf(view, decision.Tools),
		TierBreakdown:    decision.TierBreakdown,
		EstimatedTokens:  decision.EstimatedTokens,
		BaselineTokens:   baseline,
		ConfidenceMean:   decision.ConfidenceMean,
		FallbackTag:      tag,
		FallbackReason:   decision.FallbackReason,
		OverridesApplied: decision.OverridesApplied,
		Cached:           cached,
	}
	if det != nil {
		summary.DetectionMs = det.DetectionMs
	}
	resp := &ToolsResponse{
		SessionID: sess.ID(),
		Tools:     materialize(view, decision.Tools),
		Decision:  summary,
	}
	if explain && det != nil {
		resp.Explain = &ExplainPayload{
			Confidence:  det.Confidence,
			Signals:     det.Signals,
			FallbackTag: det.FallbackTag,
		}
	}
	return resp
}

// materialize resolves tool IDs to descriptors, preserving order. IDs
// that fell out of the catalog are skipped; decisionValid makes that
// impossible for cached decisions and Plan works from the same view.
func materialize(view *catalog.View, ids []string) []*catalog.ToolDescriptor {
	out := make([]*catalog.ToolDescriptor, 0, len(ids))
	for _, id := range ids {
		if d, ok := view.Get(id); ok {
			out = append(out, d)
		}
	}
	return out
}

// categoriesOf returns the distinct categories of the given tools in
// canonical category order.
func categoriesOf(view *catalog.View, ids []string) []catalog.Category {
	seen := make(map[catalog.Category]bool, len(ids))
	for _, id := range ids {
		if d, ok := view.Get(id); ok {
			seen[d.Category] = true
		}
	}
	var out []catalog.Category
	for _, c := range catalog.AllCategories() {
		if seen[c] {
			out = append(out, c)
		}
	}
	return out
}

// parseOverrides validates the wire override block. Unknown categories
// and strategies are rejected rather than silently dropped; the caller
// typed them and should know.
func parseOverrides(req *OverridesRequest) (*planner.Overrides, error) {
	if req == nil {
		return nil, nil
	}
	ov := &planner.Overrides{}
	for _, raw := range req.Force {
		c, err := catalog.ParseCategory(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: force category %q", ErrInvalidOverride, raw)
		}
		ov.Force = append(ov.Force, c)
	}
	for _, raw := range req.Disable {
		c, err := catalog.ParseCategory(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: disable category %q", ErrInvalidOverride, raw)
		}
		ov.Disable = append(ov.Disable, c)
	}
	if req.Strategy != "" {
		s, err := planner.ParseStrategy(req.Strategy)
		if err != nil {
			return nil, fmt.Errorf("%w: strategy %q", ErrInvalidOverride, req.Strategy)
		}
		ov.Strategy = s
	}
	if ov.Empty() {
		return nil, nil
	}
	return ov, nil
}

// mergeOverrides combines the session's sticky overrides with the
// request's one-shot overrides. The request is newer, so its force
// cancels a sticky disable of the same category and vice versa.
func mergeOverrides(sticky, request *planner.Overrides) *planner.Overrides {
	if sticky.Empty() {
		return request
	}
	if request.Empty() {
		return sticky
	}

	merged := &planner.Overrides{Strategy: sticky.Strategy}
	if request.Strategy != "" {
		merged.Strategy = request.Strategy
	}
	forced := make(map[catalog.Category]bool)
	disabled := make(map[catalog.Category]bool)
	for _, c := range sticky.Force {
		forced[c] = true
	}
	for _, c := range sticky.Disable {
		disabled[c] = true
	}
	for _, c := range request.Force {
		forced[c] = true
		delete(disabled, c)
	}
	for _, c := range request.Disable {
		disabled[c] = true
		delete(forced, c)
	}
	for _, c := range catalog.AllCategories() {
		if forced[c] {
			merged.Force = append(merged.Force, c)
		}
		if disabled[c] {
			merged.Disable = append(merged.Disable, c)
		}
	}
	return merged
}

// detectionKey fingerprints everything detection reads: the normalized
// query, the workspace context, and the session history.
func detectionKey(query string, qctx *detector.Context, history []detector.HistoryEntry) string {
	h := sha256.New()
	io.WriteString(h, strings.Join(strings.Fields(strings.ToLower(query)), " "))
	h.Write([]byte{0})
	if qctx != nil {
		exts := append([]string(nil), qctx.FileExtensions...)
		sort.Strings(exts)
		fmt.Fprintf(h, "%s|%s|%t|%t|%d|%t|%t|%t|%t|%t",
			strings.Join(exts, ","), qctx.ProjectType,
			qctx.HasUncommittedChanges, qctx.HasMergeConflicts, qctx.RecentCommits,
			qctx.HasTestDirectories, qctx.HasSecurityFiles, qctx.HasCIFiles,
			qctx.HasDocs, qctx.NewUser)
	}
	h.Write([]byte{0})
	for _, turn := range history {
		io.WriteString(h, turn.Query)
		for _, c := range turn.Categories {
			io.WriteString(h, string(c))
		}
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// =============================================================================
// CallTool
// =============================================================================

// CallTool proxies a tool invocation to its owning back end and records
// the use against the session.
//
//	Inputs:
//	  - ctx: Request context. The client timeout is applied on top.
//	  - req: Session, tool ID, arguments.
//
//	Outputs:
//	  - *CallResponse: The tool result. IsError marks a tool-level
//	    failure, including argument validation rejects.
//	  - error: *router.Error for dispatch failures (unknown tool,
//	    unavailable server, timeout, protocol error, overload).
func (h *Hub) CallTool(ctx context.Context, req CallRequest) (*CallResponse, error) {
	ctx, span := frontTracer().Start(ctx, "hub.CallTool")
	defer span.End()
	start := time.Now()

	sess, _ := h.sessions.FindOrCreate(req.SessionID, "")

	if h.validator != nil {
		if desc, ok := h.registry.Get(req.Tool); ok {
			if verr := h.validator.validate(desc, req.Args); verr != nil {
				// A reject is tool-shaped so the agent can read it and
				// retry, not a transport failure.
				sess.RecordToolUse(req.Tool)
				recordFrontRequest("call", "invalid_args", time.Since(start))
				return &CallResponse{
					SessionID:  sess.ID(),
					Tool:       req.Tool,
					Server:     desc.OwningServerID,
					Content:    tsp.TextContent("invalid arguments: " + verr.Error()),
					IsError:    true,
					DurationMs: time.Since(start).Milliseconds(),
				}, nil
			}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, h.cfg.ClientTimeout())
	defer cancel()
	result, err := h.sup.CallTool(callCtx, req.Tool, req.Args)
	elapsed := time.Since(start)
	if err != nil {
		sess.RecordToolError()
		recordFrontRequest("call", "error", elapsed)
		return nil, err
	}
	sess.RecordToolUse(req.Tool)
	recordFrontRequest("call", "ok", elapsed)

	var server string
	if desc, ok := h.registry.Get(req.Tool); ok {
		server = desc.OwningServerID
	}
	return &CallResponse{
		SessionID:  sess.ID(),
		Tool:       req.Tool,
		Server:     server,
		Content:    result.Content,
		IsError:    result.IsError,
		DurationMs: elapsed.Milliseconds(),
	}, nil
}

// =============================================================================
// Commands and sessions
// =============================================================================

// ExecuteCommand applies a user override command to the session and
// re-plans immediately so the agent sees the new tool set without
// waiting for its next query.
//
//	Outputs:
//	  - *CommandResult: The applied chip plus the re-planned tool set.
//	  - error: session.ErrUnknownCommand or session.ErrUnknownCategory
//	    for malformed commands.
func (h *Hub) ExecuteCommand(ctx context.Context, req CommandRequest) (*CommandResult, error) {
	ctx, span := frontTracer().Start(ctx, "hub.ExecuteCommand")
	defer span.End()
	start := time.Now()

	sess, _ := h.sessions.FindOrCreate(req.SessionID, "")
	chip, err := sess.ApplyCommand(req.Command)
	if err != nil {
		recordFrontRequest("command", "invalid", time.Since(start))
		return nil, err
	}

	// Commands are not conversation turns. The newest real query drives
	// detection again under the updated overrides.
	resp := h.planTools(ctx, sess, lastQuery(sess), nil, nil, false, false)
	recordFrontRequest("command", "ok", time.Since(start))
	return &CommandResult{
		SessionID: sess.ID(),
		Command:   req.Command,
		Applied:   chip,
		Strategy:  sess.EffectiveStrategy(),
		Tools:     resp.Tools,
		Decision:  resp.Decision,
	}, nil
}

// lastQuery returns the newest conversation query, or empty when the
// session has no history yet.
func lastQuery(sess *session.Session) string {
	hist := sess.History()
	if len(hist) == 0 {
		return ""
	}
	return hist[len(hist)-1].Query
}

// EndSession closes a session and returns its final summary, including
// the token reduction achieved against the full-catalog baseline.
func (h *Hub) EndSession(id string) (*session.Summary, error) {
	sum, ok := h.sessions.End(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	recordSessionEnd(sum, "closed")
	return &sum, nil
}

// SessionSummary returns a live session's summary without ending it.
func (h *Hub) SessionSummary(id string) (*session.Summary, error) {
	sess, ok := h.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	sum := sess.Summary()
	return &sum, nil
}

// =============================================================================
// Introspection
// =============================================================================

// Status reports the hub's view of itself: uptime, filtering state,
// per-server connection status, and catalog totals.
func (h *Hub) Status() *StatusResponse {
	statuses := h.sup.Statuses()
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return &StatusResponse{
		Status:    "healthy",
		Version:   ServiceVersion,
		UptimeSec: int64(time.Since(h.start).Seconds()),
		Filtering: h.filteringOn(),
		Strategy:  h.cfg.DefaultStrategy(),
		Sessions:  h.sessions.Len(),
		Servers:   statuses,
		Catalog:   h.catalogInfo(),
	}
}

// Catalog returns every tool the hub knows about, unfiltered.
func (h *Hub) Catalog() *CatalogResponse {
	view := h.registry.Snapshot()
	return &CatalogResponse{
		Tools: view.All(),
		Info:  h.catalogInfo(),
	}
}

func (h *Hub) catalogInfo() CatalogInfo {
	return CatalogInfo{
		Tools:     h.registry.Count(),
		TokenCost: h.registry.TotalTokenCost(),
		Servers:   h.registry.ServerCount(),
	}
}

// Ready reports whether the hub can serve useful answers. With the
// fallback safety net on, zero connected back ends still serves the
// built-in core set.
func (h *Hub) Ready() *ReadyResponse {
	n := h.sup.ConnectedCount()
	return &ReadyResponse{
		Ready:            n > 0 || h.cfg.Fallback,
		ConnectedServers: n,
	}
}

// RefreshServer forces tool rediscovery on one back end.
func (h *Hub) RefreshServer(ctx context.Context, name string) error {
	return h.sup.Refresh(ctx, name)
}

// Close shuts the hub down: the session cleaner stops, back ends
// disconnect, caches drop, and the decision store closes.
func (h *Hub) Close(ctx context.Context) error {
	h.sessions.StopCleaner()
	h.sup.Shutdown(ctx)
	if h.detCache != nil {
		h.detCache.Purge()
	}
	if h.decCache != nil {
		h.decCache.Purge()
	}
	return h.store.Close()
}
