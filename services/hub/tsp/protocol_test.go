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
	"strings"
	"sync"
	"testing"
	"time"
)

// pipeTransport is an in-memory Transport for tests. Frames written by the
// code under test land in outbound; tests inject server frames via push.
type pipeTransport struct {
	inbound   chan []byte
	outbound  chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newPipeTransport() *pipeTransport {
	return &pipeTransport{
		inbound:  make(chan []byte, 64),
		outbound: make(chan []byte, 64),
		closed:   make(chan struct{}),
	}
}

func (t *pipeTransport) Start(_ context.Context) error { return nil }

func (t *pipeTransport) WriteMessage(_ context.Context, data []byte) error {
	select {
	case <-t.closed:
		return ErrTransportClosed
	default:
	}
	out := make([]byte, len(data))
	copy(out, data)
	t.outbound <- out
	return nil
}

func (t *pipeTransport) ReadMessage() ([]byte, error) {
	select {
	case frame := <-t.inbound:
		return frame, nil
	case <-t.closed:
		return nil, io.EOF
	}
}

func (t *pipeTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

func (t *pipeTransport) push(frame string) {
	t.inbound <- []byte(frame)
}

// nextOutbound returns the next frame the code under test wrote. Must be
// called from the test goroutine.
func (t *pipeTransport) nextOutbound(tb testing.TB) Request {
	tb.Helper()
	select {
	case frame := <-t.outbound:
		var req Request
		if err := json.Unmarshal(frame, &req); err != nil {
			tb.Fatalf("outbound frame not a request: %v: %s", err, frame)
		}
		return req
	case <-time.After(2 * time.Second):
		tb.Fatal("timeout waiting for outbound frame")
		return Request{}
	}
}

// reply answers the next outbound request with the given payload fragment.
// Safe to run in a goroutine.
func (t *pipeTransport) reply(body string) {
	frame := <-t.outbound
	var req Request
	_ = json.Unmarshal(frame, &req)
	t.push(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,%s}`, req.ID, body))
}

// startConn builds a Conn over a fresh pipe with its read loop running.
func startConn(t *testing.T, maxInFlight int) (*Conn, *pipeTransport, chan error) {
	t.Helper()
	pipe := newPipeTransport()
	conn := NewConn(pipe, maxInFlight)

	loopErr := make(chan error, 1)
	go func() { loopErr <- conn.ReadLoop(context.Background()) }()

	t.Cleanup(func() {
		conn.Close(nil)
		_ = pipe.Close()
	})
	return conn, pipe, loopErr
}

func TestConn_Call(t *testing.T) {
	t.Run("matches response to request", func(t *testing.T) {
		conn, pipe, _ := startConn(t, 0)

		go pipe.reply(`"result":{"ok":true}`)

		resp, err := conn.Call(context.Background(), "tools/list", nil)
		if err != nil {
			t.Fatalf("Call: %v", err)
		}
		if string(resp.Result) != `{"ok":true}` {
			t.Errorf("result = %s, want {\"ok\":true}", resp.Result)
		}
	})

	t.Run("returns RPCError for error response", func(t *testing.T) {
		conn, pipe, _ := startConn(t, 0)

		go pipe.reply(`"error":{"code":-32601,"message":"no such method"}`)

		_, err := conn.Call(context.Background(), "bogus/method", nil)
		var rpcErr *RPCError
		if !errors.As(err, &rpcErr) {
			t.Fatalf("error = %v, want *RPCError", err)
		}
		if !rpcErr.IsMethodNotFound() {
			t.Errorf("code = %d, want -32601", rpcErr.Code)
		}
	})

	t.Run("times out and retires the request", func(t *testing.T) {
		conn, pipe, _ := startConn(t, 0)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		idCh := make(chan int64, 1)
		go func() {
			frame := <-pipe.outbound
			var req Request
			_ = json.Unmarshal(frame, &req)
			idCh <- req.ID
		}()

		_, err := conn.Call(ctx, "tools/call", nil)
		if !errors.Is(err, ErrRequestTimeout) {
			t.Fatalf("error = %v, want ErrRequestTimeout", err)
		}
		if got := conn.InFlight(); got != 0 {
			t.Errorf("InFlight after timeout = %d, want 0", got)
		}

		// A late response to the retired ID must be dropped quietly.
		pipe.push(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":{}}`, <-idCh))
		time.Sleep(20 * time.Millisecond)
		if got := conn.InFlight(); got != 0 {
			t.Errorf("InFlight after late response = %d, want 0", got)
		}
	})

	t.Run("rejects requests past the in-flight bound", func(t *testing.T) {
		conn, pipe, _ := startConn(t, 1)

		started := make(chan struct{})
		go func() {
			close(started)
			// Never answered; occupies the only slot until the
			// test's cleanup closes the conn.
			_, _ = conn.Call(context.Background(), "tools/call", nil)
		}()
		<-started
		pipe.nextOutbound(t)

		_, err := conn.Call(context.Background(), "tools/call", nil)
		if !errors.Is(err, ErrServerOverloaded) {
			t.Errorf("error = %v, want ErrServerOverloaded", err)
		}
	})

	t.Run("nil context is rejected", func(t *testing.T) {
		conn, _, _ := startConn(t, 0)
		//nolint:staticcheck
		if _, err := conn.Call(nil, "x", nil); err == nil {
			t.Error("expected error for nil context")
		}
	})
}

func TestConn_Close(t *testing.T) {
	t.Run("fails pending requests with the cause", func(t *testing.T) {
		conn, pipe, _ := startConn(t, 0)

		errCh := make(chan error, 1)
		go func() {
			_, err := conn.Call(context.Background(), "tools/call", nil)
			errCh <- err
		}()
		pipe.nextOutbound(t)

		conn.Close(ErrShuttingDown)

		select {
		case err := <-errCh:
			if !errors.Is(err, ErrShuttingDown) {
				t.Errorf("error = %v, want ErrShuttingDown", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("pending call not released by Close")
		}
	})

	t.Run("rejects new calls with the cause", func(t *testing.T) {
		conn, _, _ := startConn(t, 0)
		conn.Close(ErrShuttingDown)

		_, err := conn.Call(context.Background(), "tools/list", nil)
		if !errors.Is(err, ErrShuttingDown) {
			t.Errorf("error = %v, want ErrShuttingDown", err)
		}
	})

	t.Run("is idempotent", func(t *testing.T) {
		conn, _, _ := startConn(t, 0)
		conn.Close(ErrShuttingDown)
		conn.Close(ErrServerCrashed)

		_, err := conn.Call(context.Background(), "x", nil)
		if !errors.Is(err, ErrShuttingDown) {
			t.Errorf("first close cause lost: %v", err)
		}
	})
}

func TestConn_ReadLoop(t *testing.T) {
	t.Run("EOF surfaces as crash", func(t *testing.T) {
		_, pipe, loopErr := startConn(t, 0)
		_ = pipe.Close()

		select {
		case err := <-loopErr:
			if !errors.Is(err, ErrServerCrashed) {
				t.Errorf("error = %v, want ErrServerCrashed", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("read loop did not exit on EOF")
		}
	})

	t.Run("undecodable frame ends the loop", func(t *testing.T) {
		_, pipe, loopErr := startConn(t, 0)
		pipe.push(`{"jsonrpc": truncated`)

		select {
		case err := <-loopErr:
			if !errors.Is(err, ErrInvalidResponse) {
				t.Errorf("error = %v, want ErrInvalidResponse", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("read loop did not exit on corrupt frame")
		}
	})

	t.Run("server notifications are ignored", func(t *testing.T) {
		conn, pipe, _ := startConn(t, 0)
		pipe.push(`{"jsonrpc":"2.0","method":"notifications/progress","params":{}}`)

		go pipe.reply(`"result":{}`)
		if _, err := conn.Call(context.Background(), "ping", nil); err != nil {
			t.Fatalf("Call after notification: %v", err)
		}
	})
}

func TestConn_Notify(t *testing.T) {
	conn, pipe, _ := startConn(t, 0)

	if err := conn.Notify(context.Background(), NotifyInitialized, nil); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	select {
	case frame := <-pipe.outbound:
		s := string(frame)
		if !strings.Contains(s, `"method":"notifications/initialized"`) {
			t.Errorf("missing method in: %s", s)
		}
		if strings.Contains(s, `"id":`) {
			t.Errorf("notification should not carry an ID: %s", s)
		}
	case <-time.After(time.Second):
		t.Fatal("notification never written")
	}
}

func TestConn_ConcurrentCalls(t *testing.T) {
	conn, pipe, _ := startConn(t, 0)

	// Echo server: answer every request with its own ID.
	go func() {
		for {
			select {
			case frame := <-pipe.outbound:
				var req Request
				if json.Unmarshal(frame, &req) == nil && req.ID != 0 {
					pipe.push(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":{"n":%d}}`, req.ID, req.ID))
				}
			case <-pipe.closed:
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := conn.Call(context.Background(), "ping", nil)
			if err != nil {
				t.Errorf("Call: %v", err)
				return
			}
			var result struct {
				N int64 `json:"n"`
			}
			if err := json.Unmarshal(resp.Result, &result); err != nil {
				t.Errorf("parse result: %v", err)
				return
			}
			if result.N != resp.ID {
				t.Errorf("response %d carried result for %d", resp.ID, result.N)
			}
		}()
	}
	wg.Wait()
}
