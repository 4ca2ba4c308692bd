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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all hub routes with the router.
//
// Description:
//
//	Registers all /v1/hub/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//	Liveness, readiness, and metrics endpoints are served at the server
//	root, not here.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/hub/tools - Detect and plan the tool set for a query
//	POST /v1/hub/call - Dispatch a tool call to its owning server
//	POST /v1/hub/command - Apply a user override command
//	GET  /v1/hub/sessions/:id - Get a live session summary
//	DELETE /v1/hub/sessions/:id - End a session
//	GET  /v1/hub/status - Hub, server, and catalog status
//	GET  /v1/hub/catalog - The full unfiltered tool catalog
//	POST /v1/hub/servers/:name/refresh - Force tool rediscovery
//
// Example:
//
//	handlers := hub.NewHandlers(h)
//
//	v1 := router.Group("/v1")
//	hub.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	group := rg.Group("/hub")
	{
		// Per-turn planning and dispatch
		group.POST("/tools", handlers.HandleListTools)
		group.POST("/call", handlers.HandleCallTool)
		group.POST("/command", handlers.HandleCommand)

		// Session lifecycle
		group.GET("/sessions/:id", handlers.HandleSessionSummary)
		group.DELETE("/sessions/:id", handlers.HandleEndSession)

		// Introspection
		group.GET("/status", handlers.HandleStatus)
		group.GET("/catalog", handlers.HandleCatalog)

		// Fleet management
		group.POST("/servers/:name/refresh", handlers.HandleRefresh)
	}
}
