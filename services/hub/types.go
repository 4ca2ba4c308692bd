// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hub

import (
	"github.com/AleutianAI/AleutianHub/services/hub/catalog"
	"github.com/AleutianAI/AleutianHub/services/hub/detector"
	"github.com/AleutianAI/AleutianHub/services/hub/planner"
	"github.com/AleutianAI/AleutianHub/services/hub/router"
	"github.com/AleutianAI/AleutianHub/services/hub/tsp"
)

// ServiceVersion is the hub service version.
const ServiceVersion = "1.0.0"

// =============================================================================
// Requests
// =============================================================================

// ToolsRequest asks for the tool set one turn should load.
type ToolsRequest struct {
	// SessionID binds the turn to a session. Empty creates a session
	// and the response carries the minted ID.
	SessionID string `json:"session_id,omitempty"`

	// UserID is the owning user, recorded on session creation only.
	UserID string `json:"user_id,omitempty"`

	// Query is the user's message text the detector scores.
	Query string `json:"query"`

	// Context is the agent's workspace snapshot. Optional; the hub fills
	// the session history itself.
	Context *detector.Context `json:"context,omitempty"`

	// Overrides apply for this turn only, layered over the session's
	// sticky overrides. Slash commands are the sticky path.
	Overrides *OverridesRequest `json:"overrides,omitempty"`

	// Explain asks for the detector's signal breakdown in the response.
	Explain bool `json:"explain,omitempty"`
}

// OverridesRequest is the wire form of per-turn overrides.
type OverridesRequest struct {
	Force    []string `json:"force,omitempty"`
	Disable  []string `json:"disable,omitempty"`
	Strategy string   `json:"strategy,omitempty"`
}

// CallRequest dispatches one tool call.
type CallRequest struct {
	// SessionID names the calling session. Unknown IDs are re-created so
	// an agent restart does not strand its tool calls.
	SessionID string `json:"session_id,omitempty"`

	// Tool is the hub-wide tool ID from a ToolsResponse.
	Tool string `json:"tool"`

	// Args are the tool arguments, forwarded untouched.
	Args map[string]any `json:"args,omitempty"`
}

// CommandRequest applies one slash command to a session.
type CommandRequest struct {
	SessionID string `json:"session_id,omitempty"`

	// Command is the raw slash command, e.g. "/load-security".
	Command string `json:"command"`
}

// =============================================================================
// Responses
// =============================================================================

// DecisionSummary describes how the returned tool set was chosen.
type DecisionSummary struct {
	// Strategy that governed the plan.
	Strategy planner.Strategy `json:"strategy"`

	// Categories covered by the returned tools, in catalog order.
	Categories []catalog.Category `json:"categories"`

	// TierBreakdown maps each tier to the tool IDs loaded from it.
	TierBreakdown map[catalog.Tier][]string `json:"tier_breakdown"`

	// EstimatedTokens is the prompt cost of the returned tools.
	EstimatedTokens int `json:"estimated_tokens"`

	// BaselineTokens is the prompt cost of the full catalog; the spread
	// between the two is what the hub saves.
	BaselineTokens int `json:"baseline_tokens"`

	// ConfidenceMean averages the enabled categories' scores.
	ConfidenceMean float64 `json:"confidence_mean"`

	// FallbackTag is the detector's fallback classification for the
	// turn; "none" for a clean detection.
	FallbackTag detector.FallbackTag `json:"fallback_tag,omitempty"`

	// FallbackReason carries the planner's failure cause when planning
	// itself degraded.
	FallbackReason string `json:"fallback_reason,omitempty"`

	// OverridesApplied lists the override chips that shaped the plan.
	OverridesApplied []string `json:"overrides_applied,omitempty"`

	// Cached is true when the decision came from the decision cache and
	// no detection ran.
	Cached bool `json:"cached,omitempty"`

	// DetectionMs is the detection wall time; zero on cached decisions.
	DetectionMs float64 `json:"detection_ms,omitempty"`
}

// ExplainPayload is the detector's working shown on request.
type ExplainPayload struct {
	Confidence  map[catalog.Category]float64                         `json:"confidence"`
	Signals     map[detector.SignalKind]map[catalog.Category]float64 `json:"signals,omitempty"`
	FallbackTag detector.FallbackTag                                 `json:"fallback_tag"`
}

// ToolsResponse is the loadable tool set for one turn.
type ToolsResponse struct {
	// SessionID echoes or mints the session.
	SessionID string `json:"session_id"`

	// Created is true when this request minted the session.
	Created bool `json:"created,omitempty"`

	// Tools are the descriptors to expose to the model.
	Tools []*catalog.ToolDescriptor `json:"tools"`

	// Decision summarizes how Tools was chosen.
	Decision DecisionSummary `json:"decision"`

	// Explain carries the signal breakdown when requested.
	Explain *ExplainPayload `json:"explain,omitempty"`
}

// CallResponse is a dispatched tool call's outcome.
//
// IsError mirrors the server's tool-level error flag. Hub and transport
// failures never arrive here; they surface as error envelopes instead.
type CallResponse struct {
	SessionID string `json:"session_id"`

	// Tool is the hub-wide ID that was called.
	Tool string `json:"tool"`

	// Server is the back-end that answered.
	Server string `json:"server"`

	// Content is the server's result content, verbatim.
	Content []tsp.ContentBlock `json:"content"`

	// IsError is the server's tool-level error flag, verbatim.
	IsError bool `json:"is_error,omitempty"`

	// DurationMs is the dispatch wall time.
	DurationMs int64 `json:"duration_ms"`
}

// CommandResult reports an applied slash command and the immediate
// re-plan it triggered.
type CommandResult struct {
	SessionID string `json:"session_id"`

	// Command is the raw command as received.
	Command string `json:"command"`

	// Applied is the normalized override chip, e.g. "force:security".
	Applied string `json:"applied"`

	// Strategy is the session's effective strategy after the command.
	Strategy planner.Strategy `json:"strategy"`

	// Tools and Decision are the re-planned tool set, computed against
	// the session's most recent query.
	Tools    []*catalog.ToolDescriptor `json:"tools"`
	Decision DecisionSummary           `json:"decision"`
}

// CatalogInfo summarizes the union catalog.
type CatalogInfo struct {
	// Tools is the total tool count across all servers.
	Tools int `json:"tools"`

	// TokenCost is the prompt cost of loading everything.
	TokenCost int `json:"token_cost"`

	// Servers maps server name to its tool count.
	Servers map[string]int `json:"servers"`
}

// StatusResponse is the hub's operational snapshot.
type StatusResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	UptimeSec int64  `json:"uptime_sec"`

	// Filtering is false when the hub serves the union catalog.
	Filtering bool `json:"filtering"`

	// Strategy is the configured default strategy.
	Strategy planner.Strategy `json:"strategy"`

	// Sessions is the live session count.
	Sessions int `json:"sessions"`

	// Servers is the per-server health snapshot, sorted by name.
	Servers []router.ServerStatus `json:"servers"`

	// Catalog summarizes the union catalog.
	Catalog CatalogInfo `json:"catalog"`
}

// CatalogResponse is the union catalog listing.
type CatalogResponse struct {
	Tools []*catalog.ToolDescriptor `json:"tools"`
	Info  CatalogInfo               `json:"info"`
}

// HealthResponse is the liveness answer.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse is the readiness answer.
type ReadyResponse struct {
	Ready bool `json:"ready"`

	// ConnectedServers is how many back-ends are currently ready.
	ConnectedServers int `json:"connected_servers"`
}

// ErrorResponse is the error envelope for every failed request.
type ErrorResponse struct {
	// Error is the human-readable message.
	Error string `json:"error"`

	// Code is the stable machine code, e.g. "UNKNOWN_TOOL".
	Code string `json:"code,omitempty"`

	// Server and Tool name the parties of a failed dispatch.
	Server string `json:"server,omitempty"`
	Tool   string `json:"tool,omitempty"`
}
