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
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	// sseEndpointWait is how long the first write waits for the server's
	// endpoint event before posting to the base URL directly.
	sseEndpointWait = 2 * time.Second

	// sseFrameBuffer bounds frames queued between the stream reader and
	// ReadMessage. Sized above the in-flight request bound so responses
	// are never dropped.
	sseFrameBuffer = 128
)

// SSETransport reaches a tool server over HTTP: a long-lived GET carries
// server-to-client frames as SSE events, POSTs carry client-to-server
// frames.
//
// Description:
//
//	Two server shapes are supported. Classic SSE servers announce a POST
//	endpoint in their first event and answer every POST on the event
//	stream. Newer servers skip the endpoint event and answer POSTs in the
//	response body; those bodies are fed into the same frame queue so the
//	connection layer sees one stream either way.
//
// Thread Safety: WriteMessage is safe for concurrent use. ReadMessage must
// be called from a single goroutine.
type SSETransport struct {
	baseURL string
	client  *http.Client

	mu         sync.Mutex
	postURL    string
	frames     chan []byte
	framesDone bool
	streamErr  error

	endpointCh chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	closeOnce  sync.Once
}

// NewSSETransport creates a transport for the given event-stream URL.
func NewSSETransport(baseURL string, client *http.Client) *SSETransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &SSETransport{
		baseURL:    baseURL,
		client:     client,
		frames:     make(chan []byte, sseFrameBuffer),
		endpointCh: make(chan struct{}),
	}
}

// Start opens the event stream.
//
// Description:
//
//	The GET itself honors the caller's deadline; once established, the
//	stream's lifetime is bound to the transport and survives the caller's
//	context.
func (t *SSETransport) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("Start: ctx must not be nil")
	}
	if _, err := url.Parse(t.baseURL); err != nil {
		return fmt.Errorf("invalid server url %q: %w", t.baseURL, err)
	}

	t.ctx, t.cancel = context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(t.ctx, http.MethodGet, t.baseURL, nil)
	if err != nil {
		t.cancel()
		return fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	type dialResult struct {
		resp *http.Response
		err  error
	}
	dialCh := make(chan dialResult, 1)
	go func() {
		resp, err := t.client.Do(req)
		dialCh <- dialResult{resp, err}
	}()

	var resp *http.Response
	select {
	case <-ctx.Done():
		t.cancel()
		return fmt.Errorf("open event stream: %w", ctx.Err())
	case r := <-dialCh:
		if r.err != nil {
			t.cancel()
			return fmt.Errorf("open event stream: %w", r.err)
		}
		resp = r.resp
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		t.cancel()
		return fmt.Errorf("event stream status %d from %s", resp.StatusCode, t.baseURL)
	}
	if ct := strings.ToLower(resp.Header.Get("Content-Type")); ct != "" && !strings.HasPrefix(ct, "text/event-stream") {
		_ = resp.Body.Close()
		t.cancel()
		return fmt.Errorf("unexpected content type %q from %s", resp.Header.Get("Content-Type"), t.baseURL)
	}

	go t.streamLoop(resp.Body)

	slog.Debug("Tool server event stream open",
		slog.String("url", t.baseURL))
	return nil
}

// streamLoop parses SSE events off the GET stream until it ends.
func (t *SSETransport) streamLoop(body io.ReadCloser) {
	defer func() { _ = body.Close() }()

	reader := bufio.NewReader(body)
	for {
		event, data, err := readSSEEvent(reader)
		if err != nil {
			t.finishStream(err)
			return
		}

		switch event {
		case "endpoint":
			t.setEndpoint(string(data))
		case "close":
			t.finishStream(io.EOF)
			return
		case "", "message", "response", "notification":
			if len(data) > 0 {
				t.deliver(data)
			}
		default:
			// Ping and other housekeeping events.
		}
	}
}

// readSSEEvent reads one SSE event: name plus accumulated data lines.
func readSSEEvent(reader *bufio.Reader) (string, []byte, error) {
	var event string
	var data []byte
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if event == "" && len(data) == 0 {
				continue
			}
			return event, data, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if after, ok := strings.CutPrefix(line, "event:"); ok {
			event = strings.TrimSpace(after)
			continue
		}
		if after, ok := strings.CutPrefix(line, "data:"); ok {
			if len(data) > 0 {
				data = append(data, '\n')
			}
			data = append(data, strings.TrimPrefix(after, " ")...)
			continue
		}
	}
}

// setEndpoint resolves the announced POST path against the base URL.
func (t *SSETransport) setEndpoint(raw string) {
	base, err := url.Parse(t.baseURL)
	if err != nil {
		return
	}
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		slog.Warn("Ignoring malformed endpoint event",
			slog.String("url", t.baseURL),
			slog.String("endpoint", raw))
		return
	}
	resolved := base.ResolveReference(ref).String()

	t.mu.Lock()
	first := t.postURL == ""
	t.postURL = resolved
	t.mu.Unlock()

	if first {
		close(t.endpointCh)
	}
	slog.Debug("Tool server announced message endpoint",
		slog.String("endpoint", resolved))
}

// deliver queues one inbound frame for ReadMessage.
func (t *SSETransport) deliver(frame []byte) {
	out := make([]byte, len(frame))
	copy(out, frame)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.framesDone {
		return
	}
	select {
	case t.frames <- out:
	default:
		slog.Warn("SSE frame queue full, dropping frame",
			slog.String("url", t.baseURL),
			slog.Int("bytes", len(out)))
	}
}

// finishStream records the stream's terminal error and closes the queue.
func (t *SSETransport) finishStream(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.framesDone {
		return
	}
	t.framesDone = true
	if t.ctx.Err() != nil {
		// Local close, not a server failure.
		t.streamErr = io.EOF
	} else if err != nil {
		t.streamErr = err
	} else {
		t.streamErr = io.EOF
	}
	close(t.frames)
}

// WriteMessage POSTs one frame to the server's message endpoint.
//
// Description:
//
//	Waits briefly for the endpoint announcement on a fresh connection,
//	then falls back to the base URL. A JSON body in the POST response is
//	treated as an inbound frame, which covers servers that answer
//	requests directly instead of over the stream.
//
// Thread Safety: Safe for concurrent use.
func (t *SSETransport) WriteMessage(ctx context.Context, data []byte) error {
	if t.ctx == nil || t.ctx.Err() != nil {
		return ErrTransportClosed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.resolvePostURL(ctx), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build post: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("post frame: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return fmt.Errorf("post frame status %d: %s", resp.StatusCode, string(raw))
	}

	if strings.HasPrefix(strings.ToLower(resp.Header.Get("Content-Type")), "application/json") {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameSize))
		if err == nil && len(bytes.TrimSpace(body)) > 0 {
			t.deliver(body)
		}
	}
	return nil
}

// resolvePostURL returns the message endpoint, waiting briefly for the
// announcement on a fresh connection.
func (t *SSETransport) resolvePostURL(ctx context.Context) string {
	t.mu.Lock()
	if t.postURL != "" {
		u := t.postURL
		t.mu.Unlock()
		return u
	}
	t.mu.Unlock()

	timer := time.NewTimer(sseEndpointWait)
	defer timer.Stop()
	select {
	case <-t.endpointCh:
		t.mu.Lock()
		u := t.postURL
		t.mu.Unlock()
		return u
	case <-timer.C:
	case <-ctx.Done():
	}
	return t.baseURL
}

// ReadMessage returns the next inbound frame from the event stream.
func (t *SSETransport) ReadMessage() ([]byte, error) {
	frame, ok := <-t.frames
	if !ok {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.streamErr != nil {
			return nil, t.streamErr
		}
		return nil, io.EOF
	}
	return frame, nil
}

// Close tears down the stream connection.
//
// Thread Safety: Safe to call more than once.
func (t *SSETransport) Close() error {
	t.closeOnce.Do(func() {
		if t.cancel != nil {
			t.cancel()
		}
	})
	return nil
}
