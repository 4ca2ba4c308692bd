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
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultRequestTimeout applies to requests whose context carries no
// deadline of its own.
const DefaultRequestTimeout = 30 * time.Second

// handshakeTimeout bounds the initialize exchange during Connect.
const handshakeTimeout = 15 * time.Second

// =============================================================================
// CLIENT STATE
// =============================================================================

// ClientState represents the lifecycle state of a TSP client.
type ClientState int

const (
	// StateInit is the initial state before Connect is called.
	StateInit ClientState = iota

	// StateConnecting means the transport is starting and the handshake
	// is in flight.
	StateConnecting

	// StateReady means the handshake finished and requests are accepted.
	StateReady

	// StateFailed means the transport died; the client is unusable.
	StateFailed

	// StateClosed means Shutdown was called.
	StateClosed
)

// String returns a human-readable state name.
func (s ClientState) String() string {
	names := []string{"init", "connecting", "ready", "failed", "closed"}
	if int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// =============================================================================
// CLIENT CONFIG
// =============================================================================

// ClientConfig describes one back-end tool server.
type ClientConfig struct {
	// Name is the server's unique name, used as the prefix of every tool
	// ID the server contributes.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Transport selects stdio or sse.
	Transport TransportKind `yaml:"transport" json:"transport" validate:"required,oneof=stdio sse"`

	// Command is the executable for stdio servers.
	Command string `yaml:"command,omitempty" json:"command,omitempty"`

	// Args are passed to the stdio command.
	Args []string `yaml:"args,omitempty" json:"args,omitempty"`

	// URL is the event-stream URL for sse servers.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`

	// Env is appended to the hub's environment for stdio servers.
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	// Enabled servers are connected at startup. Disabled entries stay in
	// the config for operators to flip on without editing topology.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Timeout applies per request when the caller's context has no
	// deadline. Zero means DefaultRequestTimeout.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Validate checks the config for contradictions before any connection work.
func (c ClientConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("client config: name must not be empty")
	}
	if !c.Transport.Valid() {
		return fmt.Errorf("client config %s: unknown transport %q", c.Name, c.Transport)
	}
	if c.Transport == TransportStdio && c.Command == "" {
		return fmt.Errorf("client config %s: stdio transport requires a command", c.Name)
	}
	if c.Transport == TransportSSE && c.URL == "" {
		return fmt.Errorf("client config %s: sse transport requires a url", c.Name)
	}
	return nil
}

// requestTimeout returns the effective per-request timeout.
func (c ClientConfig) requestTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultRequestTimeout
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is one TSP connection with its lifecycle state machine.
//
// Description:
//
//	A client is single-use: INIT -> CONNECTING -> READY, then either
//	FAILED (transport died) or CLOSED (orderly shutdown). A server
//	answering a request with a JSON-RPC error stays READY; only transport
//	corruption moves the client to FAILED. Reconnection means building a
//	new client.
//
// Thread Safety:
//
//	Safe for concurrent use after Connect returns.
type Client struct {
	config    ClientConfig
	transport Transport
	conn      *Conn

	state      ClientState
	stateMu    sync.RWMutex
	failReason error

	serverInfo Implementation

	ctx      context.Context
	cancel   context.CancelFunc
	readDone chan struct{}
}

// NewClient creates a client for the given config. The transport is built
// from the config at Connect time.
func NewClient(config ClientConfig) *Client {
	return &Client{
		config:   config,
		readDone: make(chan struct{}),
	}
}

// NewClientWithTransport creates a client over a caller-supplied transport.
// Used by tests and by anything embedding a server in-process.
func NewClientWithTransport(config ClientConfig, t Transport) *Client {
	c := NewClient(config)
	c.transport = t
	return c
}

// Connect starts the transport and performs the initialize handshake.
//
// Description:
//
//	On success the client is READY and accepts requests. On any failure
//	the client is FAILED and the transport is torn down; the caller
//	decides whether to build a replacement.
//
// Inputs:
//
//	ctx - Bounds the transport start and handshake, not the connection
//	      lifetime.
//
// Outputs:
//
//	error - ErrClientAlreadyStarted, a transport error, or
//	        ErrHandshakeFailed.
//
// Thread Safety: Safe for concurrent use; only the first caller connects.
func (c *Client) Connect(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("Connect: ctx must not be nil")
	}
	if err := c.config.Validate(); err != nil {
		return err
	}

	c.stateMu.Lock()
	if c.state != StateInit {
		c.stateMu.Unlock()
		return fmt.Errorf("%w: %s", ErrClientAlreadyStarted, c.config.Name)
	}
	c.state = StateConnecting
	c.stateMu.Unlock()

	if c.transport == nil {
		switch c.config.Transport {
		case TransportStdio:
			c.transport = NewStdioTransport(c.config.Command, c.config.Args, c.config.Env)
		case TransportSSE:
			c.transport = NewSSETransport(c.config.URL, nil)
		}
	}

	slog.Info("Connecting to tool server",
		slog.String("server", c.config.Name),
		slog.String("transport", string(c.config.Transport)))

	if err := c.transport.Start(ctx); err != nil {
		c.fail(fmt.Errorf("transport start: %w", err))
		recordConnect(ctx, c.config.Name, c.config.Transport, false)
		return fmt.Errorf("connect %s: %w", c.config.Name, err)
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.conn = NewConn(c.transport, 0)

	go func() {
		defer close(c.readDone)
		err := c.conn.ReadLoop(c.ctx)
		c.onReadExit(err)
	}()

	if err := c.handshake(ctx); err != nil {
		c.fail(err)
		c.conn.Close(ErrServerCrashed)
		_ = c.transport.Close()
		recordConnect(ctx, c.config.Name, c.config.Transport, false)
		return fmt.Errorf("connect %s: %w: %v", c.config.Name, ErrHandshakeFailed, err)
	}

	c.setState(StateReady)
	recordConnect(ctx, c.config.Name, c.config.Transport, true)

	slog.Info("Tool server ready",
		slog.String("server", c.config.Name),
		slog.String("server_name", c.serverInfo.Name),
		slog.String("server_version", c.serverInfo.Version))
	return nil
}

// handshake performs initialize plus the initialized notification.
func (c *Client) handshake(ctx context.Context) error {
	hsCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	params := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities: ClientCapabilities{
			Tools: &ToolsCapability{},
		},
		ClientInfo: Implementation{
			Name:    "aleutian-hub",
			Version: "1.0.0",
		},
	}

	resp, err := c.conn.Call(hsCtx, MethodInitialize, params)
	if err != nil {
		return fmt.Errorf("initialize request: %w", err)
	}

	var result InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return fmt.Errorf("%w: parse initialize result: %v", ErrInvalidResponse, err)
	}
	c.serverInfo = result.ServerInfo

	if result.ProtocolVersion != ProtocolVersion {
		slog.Warn("Tool server speaks a different protocol revision",
			slog.String("server", c.config.Name),
			slog.String("ours", ProtocolVersion),
			slog.String("theirs", result.ProtocolVersion))
	}

	if err := c.conn.Notify(hsCtx, NotifyInitialized, nil); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}
	return nil
}

// setState moves the client to the given lifecycle state.
func (c *Client) setState(s ClientState) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// fail moves the client to FAILED and records the reason.
func (c *Client) fail(err error) {
	c.stateMu.Lock()
	c.state = StateFailed
	c.failReason = err
	c.stateMu.Unlock()
}

// onReadExit handles the read loop ending.
func (c *Client) onReadExit(err error) {
	c.stateMu.Lock()
	state := c.state
	if state == StateReady || state == StateConnecting {
		c.state = StateFailed
		c.failReason = err
	}
	c.stateMu.Unlock()

	if state != StateReady && state != StateConnecting {
		// Orderly shutdown already ran.
		return
	}

	if err == nil {
		err = ErrServerCrashed
	}
	slog.Warn("Tool server connection lost",
		slog.String("server", c.config.Name),
		slog.String("error", err.Error()))
	recordConnectionLost(context.Background(), c.config.Name)

	c.conn.Close(fmt.Errorf("%w: %v", ErrServerCrashed, err))
	_ = c.transport.Close()
}

// =============================================================================
// OPERATIONS
// =============================================================================

// ListTools fetches the server's current tool listing.
//
// Outputs:
//
//	[]ToolInfo - The advertised tools. May be empty.
//	error - ErrClientNotReady, a request error, or a parse error.
//
// Thread Safety: Safe for concurrent use.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	resp, err := c.request(ctx, MethodListTools, nil)
	if err != nil {
		return nil, err
	}

	var result ListToolsResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("%w: parse tools/list result: %v", ErrInvalidResponse, err)
	}
	return result.Tools, nil
}

// CallTool invokes one tool by its local name on this server.
//
// Description:
//
//	A JSON-RPC error response surfaces as an *RPCError without touching
//	the client's state. A result with IsError set is returned as a normal
//	result; distinguishing tool failures from protocol failures is the
//	caller's concern.
//
// Inputs:
//
//	ctx - Context carrying the request deadline.
//	name - The tool's local name on this server.
//	args - Tool arguments, passed through opaquely. May be nil.
//
// Thread Safety: Safe for concurrent use.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*CallToolResult, error) {
	resp, err := c.request(ctx, MethodCallTool, CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, err
	}

	var result CallToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("%w: parse tools/call result: %v", ErrInvalidResponse, err)
	}
	return &result, nil
}

// Ping checks connection liveness.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.request(ctx, MethodPing, nil)
	return err
}

// request runs one TSP request with state checks, deadline, span, metrics.
func (c *Client) request(ctx context.Context, method string, params any) (*Response, error) {
	if ctx == nil {
		return nil, fmt.Errorf("request: ctx must not be nil")
	}
	if c.State() != StateReady {
		return nil, fmt.Errorf("%w: %s is %s", ErrClientNotReady, c.config.Name, c.State())
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.requestTimeout())
		defer cancel()
	}

	ctx, span := startRequestSpan(ctx, c.config.Name, method)
	defer span.End()

	start := time.Now()
	resp, err := c.conn.Call(ctx, method, params)
	recordRequestMetrics(ctx, c.config.Name, method, time.Since(start), err == nil)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return resp, nil
}

// =============================================================================
// SHUTDOWN AND ACCESSORS
// =============================================================================

// Shutdown closes the connection and releases the transport.
//
// Description:
//
//	Pending requests fail with ErrShuttingDown. Safe to call in any
//	state; repeated calls are no-ops.
//
// Thread Safety: Safe for concurrent use.
func (c *Client) Shutdown(ctx context.Context) error {
	c.stateMu.Lock()
	if c.state == StateClosed || c.state == StateInit {
		c.state = StateClosed
		c.stateMu.Unlock()
		return nil
	}
	c.state = StateClosed
	c.stateMu.Unlock()

	slog.Info("Shutting down tool server connection",
		slog.String("server", c.config.Name))

	if c.conn != nil {
		c.conn.Close(ErrShuttingDown)
	}
	if c.transport != nil {
		_ = c.transport.Close()
	}
	if c.cancel != nil {
		c.cancel()
	}

	if c.readDone != nil {
		select {
		case <-c.readDone:
		case <-time.After(time.Second):
		case <-ctx.Done():
		}
	}
	return nil
}

// State returns the current lifecycle state.
//
// Thread Safety: Safe for concurrent use.
func (c *Client) State() ClientState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// FailReason returns why the client entered FAILED, or nil.
func (c *Client) FailReason() error {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.failReason
}

// Name returns the configured server name.
func (c *Client) Name() string {
	return c.config.Name
}

// ServerInfo returns the implementation details the server reported during
// the handshake. Zero value before READY.
func (c *Client) ServerInfo() Implementation {
	return c.serverInfo
}

// InFlight reports the number of requests currently pending on this client.
func (c *Client) InFlight() int {
	if c.conn == nil {
		return 0
	}
	return c.conn.InFlight()
}
