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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultMaxInFlight bounds the number of concurrently pending requests on
// one connection. Requests beyond the bound fail fast with
// ErrServerOverloaded instead of queueing without limit.
const DefaultMaxInFlight = 64

// =============================================================================
// CONNECTION
// =============================================================================

// Conn is the JSON-RPC correlation layer over a Transport.
//
// Description:
//
//	Assigns monotonically increasing request IDs, tracks pending requests,
//	and matches inbound responses to their waiters. A request that times
//	out is retired immediately; a late response to a retired ID is dropped
//	without affecting other requests.
//
// Thread Safety:
//
//	Safe for concurrent use. Multiple goroutines can send requests and
//	notifications simultaneously. ReadLoop must run in exactly one
//	goroutine.
type Conn struct {
	transport   Transport
	nextID      int64
	pending     map[int64]chan Response
	pendingMu   sync.Mutex
	closeErr    error
	maxInFlight int
	closed      int32 // atomic: 1 if closed
}

// NewConn creates a connection over the given transport.
//
// Inputs:
//
//	t - Started transport. Must not be nil.
//	maxInFlight - Pending request bound; 0 means DefaultMaxInFlight.
func NewConn(t Transport, maxInFlight int) *Conn {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	return &Conn{
		transport:   t,
		pending:     make(map[int64]chan Response),
		maxInFlight: maxInFlight,
	}
}

// Call sends a request and waits for the matching response.
//
// Description:
//
//	Blocks until the server answers, the context expires, or the
//	connection closes. A JSON-RPC error response is returned as an
//	*RPCError; the connection itself stays healthy in that case.
//
// Inputs:
//
//	ctx - Context carrying the request deadline.
//	method - TSP method name.
//	params - Method parameters, JSON-marshaled.
//
// Outputs:
//
//	*Response - The response with a non-nil Result.
//	error - ErrRequestTimeout, ErrServerOverloaded, an *RPCError from the
//	        server, or the connection's close cause.
//
// Thread Safety: Safe for concurrent use.
func (c *Conn) Call(ctx context.Context, method string, params any) (*Response, error) {
	if ctx == nil {
		return nil, fmt.Errorf("Call: ctx must not be nil")
	}
	if atomic.LoadInt32(&c.closed) == 1 {
		return nil, c.closeCause()
	}

	id := atomic.AddInt64(&c.nextID, 1)
	respCh := make(chan Response, 1)

	c.pendingMu.Lock()
	if c.closeErr != nil {
		err := c.closeErr
		c.pendingMu.Unlock()
		return nil, err
	}
	if len(c.pending) >= c.maxInFlight {
		c.pendingMu.Unlock()
		return nil, fmt.Errorf("%w: %d requests in flight", ErrServerOverloaded, c.maxInFlight)
	}
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	// Retire the ID on every exit path so late responses are dropped
	// instead of waking a departed caller.
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	req := Request{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	}
	if err := c.writeMessage(ctx, req); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %v", ErrRequestTimeout, method, ctx.Err())
	case resp, ok := <-respCh:
		if !ok {
			return nil, c.closeCause()
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return &resp, nil
	}
}

// Notify sends a notification (no response expected).
//
// Thread Safety: Safe for concurrent use.
func (c *Conn) Notify(ctx context.Context, method string, params any) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return c.closeCause()
	}
	return c.writeMessage(ctx, Notification{
		JSONRPC: JSONRPCVersion,
		Method:  method,
		Params:  params,
	})
}

// writeMessage marshals and writes one frame through the transport.
func (c *Conn) writeMessage(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return c.transport.WriteMessage(ctx, data)
}

// ReadLoop reads frames from the transport and dispatches responses.
//
// Description:
//
//	Runs until the transport fails or the context is cancelled. A clean
//	EOF and any undecodable frame both end the loop with an error; the
//	owner decides what that means for the client's lifecycle.
//
// Outputs:
//
//	error - ErrServerCrashed on EOF, ErrInvalidResponse on a corrupt
//	        frame, nil only after Close.
//
// Thread Safety: Must be called from a single goroutine.
func (c *Conn) ReadLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := c.transport.ReadMessage()
		if err != nil {
			if atomic.LoadInt32(&c.closed) == 1 {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return ErrServerCrashed
			}
			return fmt.Errorf("read: %w", err)
		}
		if err := c.handleMessage(msg); err != nil {
			if atomic.LoadInt32(&c.closed) == 1 {
				return nil
			}
			return err
		}
	}
}

// handleMessage dispatches one inbound frame.
func (c *Conn) handleMessage(msg []byte) error {
	if !json.Valid(msg) {
		return fmt.Errorf("%w: undecodable frame (%d bytes)", ErrInvalidResponse, len(msg))
	}

	var resp Response
	if err := json.Unmarshal(msg, &resp); err == nil && resp.ID != 0 {
		c.pendingMu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			// Buffered channel; the send never blocks while we hold
			// the lock.
			select {
			case ch <- resp:
			default:
			}
		}
		c.pendingMu.Unlock()
		if !ok {
			slog.Debug("Dropping response to retired request",
				slog.Int64("id", resp.ID))
		}
		return nil
	}

	// Server-initiated notifications (progress, log messages) are legal
	// but the hub has no use for them yet.
	slog.Debug("Ignoring server notification frame",
		slog.Int("bytes", len(msg)))
	return nil
}

// Close marks the connection closed and fails every pending request.
//
// Description:
//
//	Pending callers receive cause (ErrShuttingDown for an orderly
//	shutdown, ErrServerCrashed when the read loop died). Close does not
//	touch the transport; the owner closes that separately.
//
// Thread Safety: Safe for concurrent use. Only the first call's cause
// sticks.
func (c *Conn) Close(cause error) {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return
	}
	if cause == nil {
		cause = ErrTransportClosed
	}

	c.pendingMu.Lock()
	c.closeErr = cause
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

// closeCause returns the error pending callers see after Close.
func (c *Conn) closeCause() error {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if c.closeErr != nil {
		return c.closeErr
	}
	return ErrTransportClosed
}

// InFlight reports the number of currently pending requests.
func (c *Conn) InFlight() int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return len(c.pending)
}
