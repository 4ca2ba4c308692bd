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
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

const (
	// maxFrameSize caps a single inbound frame (10MB). Tool results are
	// text; anything larger indicates a runaway server.
	maxFrameSize = 10 * 1024 * 1024

	// stdioKillTimeout is how long Close waits for the process to exit
	// after stdin closes before killing it.
	stdioKillTimeout = 5 * time.Second
)

// StdioTransport runs a tool server as a subprocess and exchanges
// newline-delimited JSON frames over its stdin/stdout. Stderr is drained to
// the log so a chatty server cannot block on a full pipe.
//
// Thread Safety: WriteMessage is safe for concurrent use. ReadMessage must
// be called from a single goroutine.
type StdioTransport struct {
	command string
	args    []string
	env     map[string]string

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	scanner *bufio.Scanner
	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// NewStdioTransport creates a transport for the given command line. The env
// map is appended to the hub's own environment.
func NewStdioTransport(command string, args []string, env map[string]string) *StdioTransport {
	return &StdioTransport{
		command: command,
		args:    args,
		env:     env,
	}
}

// Start spawns the subprocess and wires up the pipes.
//
// Description:
//
//	The process lifetime is bound to the transport, not to the caller's
//	context; a request context expiring must not kill the server.
//
// Outputs:
//
//	error - Non-nil if the binary is missing or the process failed to
//	        start.
func (t *StdioTransport) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("Start: ctx must not be nil")
	}

	path, err := exec.LookPath(t.command)
	if err != nil {
		return fmt.Errorf("tool server binary %q not found: %w", t.command, err)
	}

	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.cmd = exec.CommandContext(t.ctx, path, t.args...)

	if len(t.env) > 0 {
		t.cmd.Env = os.Environ()
		for k, v := range t.env {
			t.cmd.Env = append(t.cmd.Env, k+"="+v)
		}
	}

	t.stdin, err = t.cmd.StdinPipe()
	if err != nil {
		t.cancel()
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := t.cmd.StdoutPipe()
	if err != nil {
		t.cancel()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := t.cmd.StderrPipe()
	if err != nil {
		t.cancel()
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := t.cmd.Start(); err != nil {
		t.cancel()
		return fmt.Errorf("start process: %w", err)
	}

	t.scanner = bufio.NewScanner(stdout)
	t.scanner.Buffer(make([]byte, 64*1024), maxFrameSize)

	go t.drainStderr(stderr)

	slog.Debug("Tool server process started",
		slog.String("command", path),
		slog.Int("pid", t.cmd.Process.Pid))
	return nil
}

// drainStderr forwards the server's stderr lines to the log.
func (t *StdioTransport) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4*1024), 256*1024)
	for scanner.Scan() {
		slog.Debug("Tool server stderr",
			slog.String("command", t.command),
			slog.String("line", scanner.Text()))
	}
}

// WriteMessage writes one frame followed by a newline.
//
// Thread Safety: Safe for concurrent use.
func (t *StdioTransport) WriteMessage(_ context.Context, data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.stdin == nil {
		return ErrTransportClosed
	}
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadMessage returns the next newline-delimited frame from stdout.
//
// Outputs:
//
//	[]byte - The frame without its trailing newline.
//	error - io.EOF when the process closes stdout; scanner errors
//	        otherwise (including frames over the size cap).
func (t *StdioTransport) ReadMessage() ([]byte, error) {
	for t.scanner.Scan() {
		line := t.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		// Scanner reuses its buffer between calls.
		out := make([]byte, len(line))
		copy(out, line)
		return out, nil
	}
	if err := t.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	return nil, io.EOF
}

// Close shuts the process down: closes stdin to signal EOF, waits briefly,
// then kills if it will not exit.
//
// Thread Safety: Safe to call more than once.
func (t *StdioTransport) Close() error {
	t.closeOnce.Do(func() {
		t.writeMu.Lock()
		if t.stdin != nil {
			_ = t.stdin.Close()
			t.stdin = nil
		}
		t.writeMu.Unlock()

		if t.cmd != nil && t.cmd.Process != nil {
			done := make(chan error, 1)
			go func() { done <- t.cmd.Wait() }()

			select {
			case <-time.After(stdioKillTimeout):
				slog.Warn("Tool server ignored EOF, killing",
					slog.String("command", t.command),
					slog.Int("pid", t.cmd.Process.Pid))
				_ = t.cmd.Process.Kill()
				<-done
			case err := <-done:
				if err != nil {
					slog.Debug("Tool server exited",
						slog.String("command", t.command),
						slog.String("result", err.Error()))
				}
			}
		}
		if t.cancel != nil {
			t.cancel()
		}
	})
	return t.closeErr
}
