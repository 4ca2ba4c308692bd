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
	"sync"
	"testing"
	"time"
)

// fakeServer drives the server side of a pipeTransport: it answers
// initialize, tools/list, and tools/call the way a real tool server would.
type fakeServer struct {
	pipe  *pipeTransport
	tools []ToolInfo

	// callHandler answers tools/call. Nil means echo the tool name.
	callHandler func(params CallToolParams) (any, *RPCError)

	mu            sync.Mutex
	initialized   bool
	initParams    InitializeParams
	notifications []string
}

func newFakeServer(tools []ToolInfo) *fakeServer {
	return &fakeServer{
		pipe:  newPipeTransport(),
		tools: tools,
	}
}

// run serves requests until the pipe closes.
func (f *fakeServer) run() {
	for {
		select {
		case frame := <-f.pipe.outbound:
			f.handle(frame)
		case <-f.pipe.closed:
			return
		}
	}
}

func (f *fakeServer) handle(frame []byte) {
	var req Request
	if err := json.Unmarshal(frame, &req); err != nil {
		return
	}

	if req.ID == 0 {
		f.mu.Lock()
		f.notifications = append(f.notifications, req.Method)
		f.mu.Unlock()
		return
	}

	switch req.Method {
	case MethodInitialize:
		raw, _ := json.Marshal(req.Params)
		var params InitializeParams
		_ = json.Unmarshal(raw, &params)
		f.mu.Lock()
		f.initialized = true
		f.initParams = params
		f.mu.Unlock()

		f.respond(req.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    ServerCapabilities{Tools: &ToolsCapability{}},
			ServerInfo:      Implementation{Name: "fake-server", Version: "0.1.0"},
		}, nil)

	case MethodListTools:
		f.respond(req.ID, ListToolsResult{Tools: f.tools}, nil)

	case MethodCallTool:
		raw, _ := json.Marshal(req.Params)
		var params CallToolParams
		_ = json.Unmarshal(raw, &params)

		if f.callHandler != nil {
			result, rpcErr := f.callHandler(params)
			f.respond(req.ID, result, rpcErr)
			return
		}
		f.respond(req.ID, CallToolResult{Content: TextContent("ran " + params.Name)}, nil)

	case MethodPing:
		f.respond(req.ID, struct{}{}, nil)

	default:
		f.respond(req.ID, nil, &RPCError{Code: -32601, Message: "method not found"})
	}
}

func (f *fakeServer) respond(id int64, result any, rpcErr *RPCError) {
	resp := map[string]any{"jsonrpc": JSONRPCVersion, "id": id}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	frame, _ := json.Marshal(resp)
	f.pipe.push(string(frame))
}

func (f *fakeServer) sawNotification(method string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.notifications {
		if n == method {
			return true
		}
	}
	return false
}

// connectedClient builds a READY client backed by a running fake server.
func connectedClient(t *testing.T, tools []ToolInfo) (*Client, *fakeServer) {
	t.Helper()
	fake := newFakeServer(tools)
	go fake.run()

	client := NewClientWithTransport(ClientConfig{
		Name:      "fake",
		Transport: TransportStdio,
		Command:   "unused-by-injected-transport",
		Enabled:   true,
		Timeout:   5 * time.Second,
	}, fake.pipe)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Shutdown(context.Background()) })
	return client, fake
}

func TestClient_Connect(t *testing.T) {
	t.Run("handshake reaches ready", func(t *testing.T) {
		client, fake := connectedClient(t, nil)

		if got := client.State(); got != StateReady {
			t.Fatalf("state = %v, want ready", got)
		}
		if got := client.ServerInfo().Name; got != "fake-server" {
			t.Errorf("server info name = %q, want fake-server", got)
		}

		fake.mu.Lock()
		params := fake.initParams
		fake.mu.Unlock()
		if params.ProtocolVersion != ProtocolVersion {
			t.Errorf("handshake protocolVersion = %q, want %q", params.ProtocolVersion, ProtocolVersion)
		}
		if params.ClientInfo.Name == "" {
			t.Error("handshake missing clientInfo")
		}

		// The initialized notification follows the handshake.
		deadline := time.After(2 * time.Second)
		for !fake.sawNotification(NotifyInitialized) {
			select {
			case <-deadline:
				t.Fatal("initialized notification never sent")
			case <-time.After(10 * time.Millisecond):
			}
		}
	})

	t.Run("second connect is rejected", func(t *testing.T) {
		client, _ := connectedClient(t, nil)
		err := client.Connect(context.Background())
		if !errors.Is(err, ErrClientAlreadyStarted) {
			t.Errorf("error = %v, want ErrClientAlreadyStarted", err)
		}
	})

	t.Run("invalid config is rejected before any work", func(t *testing.T) {
		client := NewClient(ClientConfig{Name: "x", Transport: "carrier-pigeon"})
		if err := client.Connect(context.Background()); err == nil {
			t.Error("expected config validation error")
		}
	})
}

func TestClientConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  ClientConfig
		wantErr bool
	}{
		{"valid stdio", ClientConfig{Name: "git", Transport: TransportStdio, Command: "server"}, false},
		{"valid sse", ClientConfig{Name: "web", Transport: TransportSSE, URL: "http://localhost:9090/sse"}, false},
		{"missing name", ClientConfig{Transport: TransportStdio, Command: "server"}, true},
		{"unknown transport", ClientConfig{Name: "x", Transport: "smoke-signal"}, true},
		{"stdio without command", ClientConfig{Name: "x", Transport: TransportStdio}, true},
		{"sse without url", ClientConfig{Name: "x", Transport: TransportSSE}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_ListTools(t *testing.T) {
	client, _ := connectedClient(t, []ToolInfo{
		{Name: "git_status", Description: "Show working tree status"},
		{Name: "git_commit", Description: "Record changes"},
	})

	tools, err := client.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("tool count = %d, want 2", len(tools))
	}
	if tools[0].Name != "git_status" {
		t.Errorf("first tool = %q, want git_status", tools[0].Name)
	}
}

func TestClient_CallTool(t *testing.T) {
	t.Run("returns the result", func(t *testing.T) {
		client, _ := connectedClient(t, nil)

		result, err := client.CallTool(context.Background(), "git_status", nil)
		if err != nil {
			t.Fatalf("CallTool: %v", err)
		}
		if len(result.Content) != 1 || result.Content[0].Text != "ran git_status" {
			t.Errorf("content = %+v, want single text block", result.Content)
		}
	})

	t.Run("tool-level failure is a result, not an error", func(t *testing.T) {
		client, fake := connectedClient(t, nil)
		fake.callHandler = func(params CallToolParams) (any, *RPCError) {
			return CallToolResult{Content: TextContent("lint found problems"), IsError: true}, nil
		}

		result, err := client.CallTool(context.Background(), "run_lint", nil)
		if err != nil {
			t.Fatalf("CallTool: %v", err)
		}
		if !result.IsError {
			t.Error("IsError not carried through")
		}
	})

	t.Run("rpc error leaves the client ready", func(t *testing.T) {
		client, fake := connectedClient(t, nil)
		fake.callHandler = func(params CallToolParams) (any, *RPCError) {
			return nil, &RPCError{Code: -32602, Message: "bad arguments"}
		}

		_, err := client.CallTool(context.Background(), "git_commit", map[string]any{"oops": true})
		var rpcErr *RPCError
		if !errors.As(err, &rpcErr) {
			t.Fatalf("error = %v, want *RPCError", err)
		}
		if got := client.State(); got != StateReady {
			t.Errorf("state after rpc error = %v, want ready", got)
		}

		// The connection still works.
		fake.callHandler = nil
		if _, err := client.CallTool(context.Background(), "git_status", nil); err != nil {
			t.Errorf("follow-up call failed: %v", err)
		}
	})

	t.Run("arguments pass through", func(t *testing.T) {
		client, fake := connectedClient(t, nil)

		got := make(chan CallToolParams, 1)
		fake.callHandler = func(params CallToolParams) (any, *RPCError) {
			got <- params
			return CallToolResult{Content: TextContent("ok")}, nil
		}

		_, err := client.CallTool(context.Background(), "search", map[string]any{"query": "tls handshake"})
		if err != nil {
			t.Fatalf("CallTool: %v", err)
		}
		params := <-got
		if params.Name != "search" {
			t.Errorf("name = %q, want search", params.Name)
		}
		if params.Arguments["query"] != "tls handshake" {
			t.Errorf("arguments = %v, want query preserved", params.Arguments)
		}
	})
}

func TestClient_TransportFailure(t *testing.T) {
	client, fake := connectedClient(t, nil)

	// Kill the transport under the client.
	_ = fake.pipe.Close()

	deadline := time.After(2 * time.Second)
	for client.State() != StateFailed {
		select {
		case <-deadline:
			t.Fatalf("state = %v, want failed after transport loss", client.State())
		case <-time.After(10 * time.Millisecond):
		}
	}

	if _, err := client.CallTool(context.Background(), "git_status", nil); !errors.Is(err, ErrClientNotReady) {
		t.Errorf("error = %v, want ErrClientNotReady", err)
	}
	if client.FailReason() == nil {
		t.Error("FailReason not recorded")
	}
}

func TestClient_Shutdown(t *testing.T) {
	client, _ := connectedClient(t, nil)

	if err := client.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if got := client.State(); got != StateClosed {
		t.Fatalf("state = %v, want closed", got)
	}
	if _, err := client.ListTools(context.Background()); !errors.Is(err, ErrClientNotReady) {
		t.Errorf("error = %v, want ErrClientNotReady", err)
	}

	// Repeated shutdown is a no-op.
	if err := client.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}

func TestClient_RequestBeforeConnect(t *testing.T) {
	client := NewClient(ClientConfig{Name: "idle", Transport: TransportStdio, Command: "unused"})
	if _, err := client.ListTools(context.Background()); !errors.Is(err, ErrClientNotReady) {
		t.Errorf("error = %v, want ErrClientNotReady before Connect", err)
	}
}

func TestTextContent(t *testing.T) {
	blocks := TextContent("hello")
	if len(blocks) != 1 || blocks[0].Type != "text" || blocks[0].Text != "hello" {
		t.Errorf("TextContent = %+v", blocks)
	}
}

// Guards against the fake drifting from the real decode path.
func TestFakeServerShape(t *testing.T) {
	fake := newFakeServer([]ToolInfo{{Name: "t"}})
	go fake.run()
	defer func() { _ = fake.pipe.Close() }()

	conn := NewConn(fake.pipe, 0)
	go func() { _ = conn.ReadLoop(context.Background()) }()
	defer conn.Close(nil)

	resp, err := conn.Call(context.Background(), MethodListTools, nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	var result ListToolsResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Tools) != 1 {
		t.Errorf("tools = %v, want 1 entry", result.Tools)
	}
}
