// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tsp

import "encoding/json"

// JSONRPCVersion is the JSON-RPC version used by TSP.
const JSONRPCVersion = "2.0"

// ProtocolVersion is the TSP protocol revision the hub speaks. Sent in the
// initialize handshake; servers answering with a different revision are
// accepted as long as the handshake succeeds.
const ProtocolVersion = "2024-11-05"

// Method names for the TSP operations the hub uses.
const (
	MethodInitialize  = "initialize"
	MethodListTools   = "tools/list"
	MethodCallTool    = "tools/call"
	MethodPing        = "ping"
	NotifyInitialized = "notifications/initialized"
)

// =============================================================================
// JSON-RPC MESSAGE TYPES
// =============================================================================

// Request represents a JSON-RPC request.
type Request struct {
	// JSONRPC is the protocol version, always "2.0".
	JSONRPC string `json:"jsonrpc"`

	// ID is the request identifier. Omit for notifications.
	ID int64 `json:"id,omitempty"`

	// Method is the method to invoke.
	Method string `json:"method"`

	// Params contains the method parameters.
	Params any `json:"params,omitempty"`
}

// Notification represents a JSON-RPC notification (no ID, no response).
type Notification struct {
	// JSONRPC is the protocol version, always "2.0".
	JSONRPC string `json:"jsonrpc"`

	// Method is the method to invoke.
	Method string `json:"method"`

	// Params contains the method parameters.
	Params any `json:"params,omitempty"`
}

// Response represents a JSON-RPC response.
type Response struct {
	// JSONRPC is the protocol version, always "2.0".
	JSONRPC string `json:"jsonrpc"`

	// ID is the request identifier this response corresponds to.
	ID int64 `json:"id"`

	// Result contains the method result (mutually exclusive with Error).
	Result json.RawMessage `json:"result,omitempty"`

	// Error contains error information (mutually exclusive with Result).
	Error *RPCError `json:"error,omitempty"`
}

// =============================================================================
// HANDSHAKE TYPES
// =============================================================================

// Implementation identifies one side of the TSP handshake.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientCapabilities advertises what the hub supports. The hub only consumes
// tools, so the struct stays minimal.
type ClientCapabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

// ServerCapabilities reports what the back-end supports.
type ServerCapabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

// ToolsCapability marks tool support in a capability set.
type ToolsCapability struct {
	// ListChanged indicates the server emits notifications when its tool
	// list changes.
	ListChanged bool `json:"listChanged,omitempty"`
}

// InitializeParams is the payload of the initialize request.
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

// InitializeResult is the server's answer to initialize.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
}

// =============================================================================
// TOOL TYPES
// =============================================================================

// ToolInfo is one entry in a server's tools/list response. The input schema
// is carried opaquely; the hub never interprets it.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ListToolsResult is the tools/list response payload.
type ListToolsResult struct {
	Tools []ToolInfo `json:"tools"`
}

// CallToolParams is the tools/call request payload. Name is the tool's local
// name on the target server, not the hub-wide ID.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ContentBlock is one piece of tool output.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	// Data and MimeType carry non-text payloads (e.g. base64 images).
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// CallToolResult is the tools/call response payload.
//
// IsError distinguishes tool-level failures (the tool ran and reported a
// problem, e.g. a lint finding) from protocol-level failures, which arrive
// as JSON-RPC error responses instead.
type CallToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// TextContent builds a single-block text result, the common case for tool
// output in tests and synthetic responses.
func TextContent(text string) []ContentBlock {
	return []ContentBlock{{Type: "text", Text: text}}
}
