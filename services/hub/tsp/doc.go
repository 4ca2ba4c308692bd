// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tsp implements the Tool Server Protocol client used by the hub to
// talk to back-end tool servers.
//
// TSP is JSON-RPC 2.0 over a byte transport. The hub always plays the client
// role: it opens the transport, performs the initialize handshake, lists the
// server's tools, and forwards tools/call requests on behalf of the agent.
//
// # Components
//
//   - Transport: byte-level framing (stdio subprocess or SSE over HTTP)
//   - Conn: JSON-RPC correlation layer (request IDs, pending map, read loop)
//   - Client: lifecycle state machine and the typed TSP operations
//
// # Thread Safety
//
// Client and Conn are safe for concurrent use after construction. Transports
// assume a single reader goroutine (the Conn read loop) and serialize writes
// internally.
//
// # Example
//
//	client := tsp.NewClient(tsp.ClientConfig{
//	    Name:      "mcp__git",
//	    Transport: tsp.TransportStdio,
//	    Command:   "mcp-git-server",
//	})
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Shutdown(context.Background())
//
//	tools, err := client.ListTools(ctx)
package tsp
