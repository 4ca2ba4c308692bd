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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianHub/services/hub/router"
	"github.com/AleutianAI/AleutianHub/services/hub/session"
)

// Handlers contains the HTTP handlers for the hub.
type Handlers struct {
	hub *Hub
}

// NewHandlers creates handlers for the given hub.
func NewHandlers(h *Hub) *Handlers {
	return &Handlers{hub: h}
}

// HandleListTools handles POST /v1/hub/tools.
//
// Description:
//
//	Runs the per-turn detect-plan cycle and returns the tool set the
//	query should have loaded, with the decision summary. The explain
//	query parameter adds the per-category signal breakdown.
//
// Request Body:
//
//	ToolsRequest
//
// Response:
//
//	200 OK: ToolsResponse
//	400 Bad Request: Validation error or unknown override
func (h *Handlers) HandleListTools(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListTools")

	var req ToolsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	if c.Query("explain") == "true" {
		req.Explain = true
	}

	resp, err := h.hub.ListTools(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidOverride) {
			logger.Warn("Invalid overrides", "error", err)
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: err.Error(),
				Code:  "INVALID_OVERRIDE",
			})
			return
		}
		logger.Error("Tool listing failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "INTERNAL",
		})
		return
	}

	logger.Info("Tools listed",
		"session_id", resp.SessionID,
		"tools", len(resp.Tools),
		"estimated_tokens", resp.Decision.EstimatedTokens,
		"fallback_tag", string(resp.Decision.FallbackTag),
		"cached", resp.Decision.Cached)

	c.JSON(http.StatusOK, resp)
}

// HandleCallTool handles POST /v1/hub/call.
//
// Description:
//
//	Dispatches a tool call to its owning back end. Tool-level failures
//	come back as 200 with IsError set; routing failures map to HTTP
//	status codes by kind.
//
// Request Body:
//
//	CallRequest
//
// Response:
//
//	200 OK: CallResponse
//	400 Bad Request: Validation error
//	404 Not Found: Unknown tool
//	429 Too Many Requests: Owning server is overloaded
//	502 Bad Gateway: Back end answered with a protocol error
//	503 Service Unavailable: Owning server is down or hub is stopping
//	504 Gateway Timeout: Back end missed the deadline
func (h *Handlers) HandleCallTool(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCallTool")

	var req CallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	resp, err := h.hub.CallTool(c.Request.Context(), req)
	if err != nil {
		var rerr *router.Error
		if errors.As(err, &rerr) {
			logger.Warn("Dispatch failed",
				"tool", req.Tool,
				"kind", string(rerr.Kind),
				"error", err)
			c.JSON(dispatchStatus(rerr.Kind), ErrorResponse{
				Error:  err.Error(),
				Code:   string(rerr.Kind),
				Server: rerr.Server,
				Tool:   rerr.Tool,
			})
			return
		}
		logger.Error("Call failed", "tool", req.Tool, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "INTERNAL",
		})
		return
	}

	logger.Info("Tool called",
		"session_id", resp.SessionID,
		"tool", resp.Tool,
		"server", resp.Server,
		"is_error", resp.IsError,
		"duration_ms", resp.DurationMs)

	c.JSON(http.StatusOK, resp)
}

// HandleCommand handles POST /v1/hub/command.
//
// Description:
//
//	Applies a user override command to the session and returns the
//	re-planned tool set.
//
// Request Body:
//
//	CommandRequest
//
// Response:
//
//	200 OK: CommandResult
//	400 Bad Request: Validation error, unknown command, or unknown
//	category
func (h *Handlers) HandleCommand(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCommand")

	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	resp, err := h.hub.ExecuteCommand(c.Request.Context(), req)
	if err != nil {
		// Commands only fail on user input: unknown command, unknown
		// category, or a bad strategy name.
		errCode := "INVALID_COMMAND"
		if errors.Is(err, session.ErrUnknownCommand) {
			errCode = "UNKNOWN_COMMAND"
		} else if errors.Is(err, session.ErrUnknownCategory) {
			errCode = "UNKNOWN_CATEGORY"
		}

		logger.Warn("Command rejected", "command", req.Command, "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}

	logger.Info("Command applied",
		"session_id", resp.SessionID,
		"applied", resp.Applied,
		"strategy", string(resp.Strategy),
		"tools", len(resp.Tools))

	c.JSON(http.StatusOK, resp)
}

// HandleSessionSummary handles GET /v1/hub/sessions/:id.
//
// Response:
//
//	200 OK: session.Summary
//	404 Not Found: Unknown session
func (h *Handlers) HandleSessionSummary(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSessionSummary")

	sum, err := h.hub.SessionSummary(c.Param("id"))
	if err != nil {
		logger.Warn("Session lookup failed", "error", err)
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  "UNKNOWN_SESSION",
		})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// HandleEndSession handles DELETE /v1/hub/sessions/:id.
//
// Description:
//
//	Ends the session and returns its final summary, including the token
//	reduction achieved over its lifetime.
//
// Response:
//
//	200 OK: session.Summary
//	404 Not Found: Unknown session
func (h *Handlers) HandleEndSession(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleEndSession")

	sum, err := h.hub.EndSession(c.Param("id"))
	if err != nil {
		logger.Warn("Session end failed", "error", err)
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  "UNKNOWN_SESSION",
		})
		return
	}

	logger.Info("Session ended",
		"session_id", sum.ID,
		"turns", sum.Turns,
		"token_reduction", sum.TokenReduction)

	c.JSON(http.StatusOK, sum)
}

// HandleStatus handles GET /v1/hub/status.
//
// Response:
//
//	200 OK: StatusResponse
func (h *Handlers) HandleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Status())
}

// HandleCatalog handles GET /v1/hub/catalog.
//
// Response:
//
//	200 OK: CatalogResponse
func (h *Handlers) HandleCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Catalog())
}

// HandleRefresh handles POST /v1/hub/servers/:name/refresh.
//
// Description:
//
//	Forces tool rediscovery on one back end. The server's catalog entry
//	is rebuilt from its fresh tool list.
//
// Response:
//
//	200 OK: StatusResponse
//	404 Not Found: Unknown server
//	409 Conflict: Server is disabled
//	502 Bad Gateway: Reconnect or rediscovery failed
func (h *Handlers) HandleRefresh(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleRefresh")
	name := c.Param("name")

	if err := h.hub.RefreshServer(c.Request.Context(), name); err != nil {
		errCode := "REFRESH_FAILED"
		statusCode := http.StatusBadGateway

		if errors.Is(err, router.ErrUnknownServer) {
			statusCode = http.StatusNotFound
			errCode = "UNKNOWN_SERVER"
		} else if errors.Is(err, router.ErrServerDisabled) {
			statusCode = http.StatusConflict
			errCode = "SERVER_DISABLED"
		}

		logger.Warn("Refresh failed", "server", name, "error", err)
		c.JSON(statusCode, ErrorResponse{
			Error:  err.Error(),
			Code:   errCode,
			Server: name,
		})
		return
	}

	logger.Info("Server refreshed", "server", name)
	c.JSON(http.StatusOK, h.hub.Status())
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: ServiceVersion,
	})
}

// HandleReady handles GET /ready.
//
// Response:
//
//	200 OK: ReadyResponse when the hub can serve useful answers
//	503 Service Unavailable: ReadyResponse when it cannot
func (h *Handlers) HandleReady(c *gin.Context) {
	resp := h.hub.Ready()
	if !resp.Ready {
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// dispatchStatus maps a routing failure kind to an HTTP status.
func dispatchStatus(kind router.ErrorKind) int {
	switch kind {
	case router.KindUnknownTool:
		return http.StatusNotFound
	case router.KindServerUnavailable, router.KindShuttingDown:
		return http.StatusServiceUnavailable
	case router.KindTimeout:
		return http.StatusGatewayTimeout
	case router.KindProtocolError:
		return http.StatusBadGateway
	case router.KindServerOverloaded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// getOrCreateRequestID gets or creates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
