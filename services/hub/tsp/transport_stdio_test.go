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
	"errors"
	"io"
	"os/exec"
	"testing"
)

// requireBinary skips the test when the helper binary is absent.
func requireBinary(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
}

func TestStdioTransport_Echo(t *testing.T) {
	requireBinary(t, "cat")

	transport := NewStdioTransport("cat", nil, nil)
	if err := transport.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = transport.Close() })

	frame := []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	if err := transport.WriteMessage(context.Background(), frame); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	got, err := transport.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if string(got) != string(frame) {
		t.Errorf("frame = %s, want %s", got, frame)
	}
}

func TestStdioTransport_EOFOnExit(t *testing.T) {
	requireBinary(t, "true")

	transport := NewStdioTransport("true", nil, nil)
	if err := transport.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = transport.Close() })

	if _, err := transport.ReadMessage(); !errors.Is(err, io.EOF) {
		t.Errorf("error = %v, want EOF after process exit", err)
	}
}

func TestStdioTransport_MissingBinary(t *testing.T) {
	transport := NewStdioTransport("definitely-not-a-real-tool-server", nil, nil)
	if err := transport.Start(context.Background()); err == nil {
		t.Error("expected error for missing binary")
		_ = transport.Close()
	}
}

func TestStdioTransport_WriteAfterClose(t *testing.T) {
	requireBinary(t, "cat")

	transport := NewStdioTransport("cat", nil, nil)
	if err := transport.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_ = transport.Close()

	err := transport.WriteMessage(context.Background(), []byte(`{}`))
	if !errors.Is(err, ErrTransportClosed) {
		t.Errorf("error = %v, want ErrTransportClosed", err)
	}
}
