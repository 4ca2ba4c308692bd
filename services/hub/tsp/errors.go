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

import (
	"errors"
	"fmt"
)

// Sentinel errors for TSP operations.
var (
	// ErrClientNotReady indicates the client is not in the ready state.
	ErrClientNotReady = errors.New("tsp client not ready")

	// ErrClientAlreadyStarted indicates Connect was called twice.
	ErrClientAlreadyStarted = errors.New("tsp client already started")

	// ErrRequestTimeout indicates a request exceeded its deadline.
	ErrRequestTimeout = errors.New("tsp request timeout")

	// ErrServerOverloaded indicates the in-flight request limit was hit.
	ErrServerOverloaded = errors.New("tsp server overloaded")

	// ErrShuttingDown indicates the request was failed by a shutdown.
	ErrShuttingDown = errors.New("tsp client shutting down")

	// ErrServerCrashed indicates the transport failed mid-stream.
	ErrServerCrashed = errors.New("tsp server connection lost")

	// ErrHandshakeFailed indicates the initialize exchange failed.
	ErrHandshakeFailed = errors.New("tsp initialize failed")

	// ErrInvalidResponse indicates a response payload could not be parsed.
	ErrInvalidResponse = errors.New("invalid tsp response")

	// ErrTransportClosed indicates a write was attempted on a closed
	// transport.
	ErrTransportClosed = errors.New("tsp transport closed")
)

// RPCError is an error returned by the server inside a well-formed JSON-RPC
// error response. Receiving one does not tear down the connection; the
// server answered, it just answered with a failure.
//
// Codes follow the JSON-RPC spec:
//   - -32700: Parse error
//   - -32600: Invalid request
//   - -32601: Method not found
//   - -32602: Invalid params
//   - -32603: Internal error
//   - -32099 to -32000: Server error (reserved)
type RPCError struct {
	// Code is the JSON-RPC error code.
	Code int `json:"code"`

	// Message is the error message from the server.
	Message string `json:"message"`

	// Data contains optional additional data about the error.
	Data any `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("tsp error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("tsp error %d: %s", e.Code, e.Message)
}

// IsMethodNotFound returns true if the method is not supported by the server.
func (e *RPCError) IsMethodNotFound() bool {
	return e.Code == -32601
}

// IsInvalidParams returns true if the server rejected the arguments.
func (e *RPCError) IsInvalidParams() bool {
	return e.Code == -32602
}
