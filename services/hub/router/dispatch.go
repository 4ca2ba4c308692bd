// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package router

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianHub/services/hub/catalog"
	"github.com/AleutianAI/AleutianHub/services/hub/tsp"
)

// CallTool resolves a hub-wide tool ID and forwards the call to the owning
// server.
//
// Description:
//
//	The call is dispatched with the descriptor's local name; the hub-wide
//	ID is a catalog key, never parsed back into its parts. Transport and
//	protocol failures come back as *Error with a stable Kind so the front
//	door can map them onto its own error surface.
//
// Inputs:
//
//	ctx - Carries the caller's deadline. Without one the client applies
//	      its per-server default.
//	toolID - Hub-wide ID, e.g. "mcp__git__git_status".
//	args - Tool arguments, passed through untouched.
//
// Outputs:
//
//	*tsp.CallToolResult - The server's result. Tool-level failures arrive
//	      here with IsError set, not as a Go error.
//	error - *Error when the tool is unknown, the owner is down, or the
//	      call itself failed.
//
// Thread Safety: Safe for concurrent use.
func (s *Supervisor) CallTool(ctx context.Context, toolID string, args map[string]any) (*tsp.CallToolResult, error) {
	ctx, span := startDispatchSpan(ctx, toolID)
	defer span.End()

	desc, ok := s.registry.Get(toolID)
	if !ok {
		recordDispatch("", "unknown_tool", 0)
		return nil, newError(KindUnknownTool, "", toolID, "tool not found in catalog", nil)
	}
	span.SetAttributes(attribute.String("tsp.server", desc.OwningServerID))

	if desc.OwningServerID == catalog.CoreServerID {
		// Synthetic owner for unclaimed essential tools. Nothing answers
		// for it, so calls fail the same way a dead server would.
		recordDispatch(catalog.CoreServerID, "server_unavailable", 0)
		return nil, newError(KindServerUnavailable, catalog.CoreServerID, toolID,
			"tool has no live owning server", nil)
	}

	if s.isShuttingDown() {
		recordDispatch(desc.OwningServerID, "shutting_down", 0)
		return nil, newError(KindShuttingDown, desc.OwningServerID, toolID,
			"hub is shutting down", tsp.ErrShuttingDown)
	}

	client, ok := s.client(desc.OwningServerID)
	if !ok || client.State() != tsp.StateReady {
		recordDispatch(desc.OwningServerID, "server_unavailable", 0)
		return nil, newError(KindServerUnavailable, desc.OwningServerID, toolID,
			"owning server is not connected", failReasonOf(client))
	}

	start := time.Now()
	result, err := client.CallTool(ctx, desc.LocalName, args)
	elapsed := time.Since(start)

	if err != nil {
		kind := classifyCallError(err)
		recordDispatch(desc.OwningServerID, outcomeLabel(kind), elapsed)
		slog.Warn("Tool call failed",
			slog.String("tool", toolID),
			slog.String("server", desc.OwningServerID),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()))
		return nil, newError(kind, desc.OwningServerID, toolID, "tool call failed", err)
	}

	recordDispatch(desc.OwningServerID, "ok", elapsed)
	span.SetAttributes(attribute.Int64("tsp.duration_ms", elapsed.Milliseconds()))
	return result, nil
}

// failReasonOf extracts a fail reason without assuming the client exists.
func failReasonOf(client toolClient) error {
	if client == nil {
		return nil
	}
	return client.FailReason()
}

// classifyCallError maps a client error onto a dispatch error kind.
func classifyCallError(err error) ErrorKind {
	var rpcErr *tsp.RPCError
	switch {
	case errors.Is(err, tsp.ErrRequestTimeout):
		return KindTimeout
	case errors.Is(err, tsp.ErrServerOverloaded):
		return KindServerOverloaded
	case errors.Is(err, tsp.ErrShuttingDown):
		return KindShuttingDown
	case errors.Is(err, tsp.ErrClientNotReady), errors.Is(err, tsp.ErrServerCrashed):
		return KindServerUnavailable
	case errors.As(err, &rpcErr), errors.Is(err, tsp.ErrInvalidResponse):
		return KindProtocolError
	default:
		return KindProtocolError
	}
}

// outcomeLabel is the metrics label for a dispatch error kind.
func outcomeLabel(kind ErrorKind) string {
	switch kind {
	case KindTimeout:
		return "timeout"
	case KindServerOverloaded:
		return "overloaded"
	case KindShuttingDown:
		return "shutting_down"
	case KindServerUnavailable:
		return "server_unavailable"
	default:
		return "protocol_error"
	}
}

// startDispatchSpan opens the per-dispatch trace span.
func startDispatchSpan(ctx context.Context, toolID string) (context.Context, trace.Span) {
	return dispatchTracer().Start(ctx, "router.CallTool",
		trace.WithAttributes(attribute.String("tsp.tool_id", toolID)))
}
