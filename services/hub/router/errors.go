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
	"errors"
	"fmt"
)

// ErrUnknownServer marks refresh requests naming a server the supervisor
// does not manage.
var ErrUnknownServer = errors.New("unknown server")

// ErrServerDisabled marks refresh requests naming a configured but
// disabled server.
var ErrServerDisabled = errors.New("server is disabled")

// ErrorKind classifies a routing failure for the agent-facing surface.
// Kinds are stable strings; clients branch on them.
type ErrorKind string

const (
	// KindUnknownTool means the tool ID resolves to nothing in the
	// catalog.
	KindUnknownTool ErrorKind = "UNKNOWN_TOOL"

	// KindServerUnavailable means the owning server is not connected or
	// not ready.
	KindServerUnavailable ErrorKind = "SERVER_UNAVAILABLE"

	// KindTimeout means the back-end did not answer within the deadline.
	KindTimeout ErrorKind = "TIMEOUT"

	// KindProtocolError means the back-end answered with a JSON-RPC
	// error or an unparseable payload.
	KindProtocolError ErrorKind = "PROTOCOL_ERROR"

	// KindServerOverloaded means the per-connection in-flight bound was
	// hit.
	KindServerOverloaded ErrorKind = "SERVER_OVERLOADED"

	// KindShuttingDown means the hub is stopping and refused the call.
	KindShuttingDown ErrorKind = "SHUTTING_DOWN"
)

// Error is the routing failure envelope. It names the tool and server so
// the agent can report something actionable, and wraps the underlying cause
// for the hub's own logs.
type Error struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// Server is the owning server's name, empty for unknown tools.
	Server string

	// Tool is the hub-wide tool ID that was called.
	Tool string

	// Message is a short human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Server != "" {
		return fmt.Sprintf("%s: tool %s on %s: %s", e.Kind, e.Tool, e.Server, e.Message)
	}
	return fmt.Sprintf("%s: tool %s: %s", e.Kind, e.Tool, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// newError builds a routing error.
func newError(kind ErrorKind, server, tool, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Server:  server,
		Tool:    tool,
		Message: message,
		Err:     err,
	}
}
