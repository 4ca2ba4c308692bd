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

import "context"

// TransportKind selects how the hub reaches a back-end server.
type TransportKind string

const (
	// TransportStdio spawns the server as a subprocess and speaks
	// newline-delimited JSON over its stdin/stdout.
	TransportStdio TransportKind = "stdio"

	// TransportSSE connects to an HTTP server: an SSE stream carries
	// server-to-client frames, POSTs carry client-to-server frames.
	TransportSSE TransportKind = "sse"
)

// Valid reports whether k is a known transport kind.
func (k TransportKind) Valid() bool {
	return k == TransportStdio || k == TransportSSE
}

// Transport is the byte-level framing under a TSP connection.
//
// Description:
//
//	A transport moves complete JSON-RPC frames in both directions and
//	knows nothing about their content. Conn owns the single reader
//	goroutine; writes may come from many goroutines and the transport
//	serializes them.
type Transport interface {
	// Start establishes the byte stream: spawns the subprocess or opens
	// the HTTP event stream. Must be called before any read or write.
	Start(ctx context.Context) error

	// WriteMessage sends one complete JSON-RPC frame.
	WriteMessage(ctx context.Context, data []byte) error

	// ReadMessage blocks until the next inbound frame arrives. Returns
	// io.EOF when the peer closes the stream cleanly.
	ReadMessage() ([]byte, error)

	// Close tears down the byte stream and releases the process or
	// connection. Safe to call more than once.
	Close() error
}
