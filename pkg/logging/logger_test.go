// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// waitForEntries polls the exporter until it holds want entries or the
// deadline passes. Export runs on its own goroutine, so tests cannot
// assert immediately after the log call.
func waitForEntries(t *testing.T, exporter *BufferedExporter, want int) []Entry {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entries := exporter.Entries()
		if len(entries) >= want {
			return entries
		}
		time.Sleep(10 * time.Millisecond)
	}
	entries := exporter.Entries()
	t.Fatalf("Expected %d entries, got %d", want, len(entries))
	return entries
}

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
		{Level(-1), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	tests := []struct {
		level Level
		want  slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{Level(99), slog.LevelInfo}, // Unknown defaults to Info
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			if got := tt.level.toSlogLevel(); got != tt.want {
				t.Errorf("Level.toSlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel_Ordering(t *testing.T) {
	if LevelDebug >= LevelInfo {
		t.Error("LevelDebug should be < LevelInfo")
	}
	if LevelInfo >= LevelWarn {
		t.Error("LevelInfo should be < LevelWarn")
	}
	if LevelWarn >= LevelError {
		t.Error("LevelWarn should be < LevelError")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{" info ", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"Error", LevelError},
		{"verbose", LevelInfo},
		{"", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Constructor Tests
// =============================================================================

func TestNew_ZeroConfig(t *testing.T) {
	logger := New(Config{})
	if logger == nil {
		t.Fatal("New() returned nil")
	}
	if logger.slog == nil {
		t.Error("logger.slog is nil")
	}
	defer logger.Close()
}

func TestNew_QuietStillLogs(t *testing.T) {
	// Quiet with no file and no exporter falls back to stderr rather
	// than dropping messages.
	logger := New(Config{Quiet: true})
	if logger.slog == nil {
		t.Error("logger.slog is nil in quiet mode")
	}
	defer logger.Close()
}

func TestNew_FileLogging(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		LogDir:  tmpDir,
		Service: "hub-test",
		Quiet:   true,
	})
	defer logger.Close()

	if logger.file == nil {
		t.Fatal("logger.file is nil when LogDir specified")
	}

	files, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("Failed to read dir: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("Expected 1 log file, got %d", len(files))
	}
	name := files[0].Name()
	if !strings.HasPrefix(name, "hub-test_") || !strings.HasSuffix(name, ".log") {
		t.Errorf("Log file name = %q, want hub-test_{date}.log", name)
	}
}

func TestNew_FileLogging_DefaultService(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{LogDir: tmpDir, Quiet: true})
	defer logger.Close()

	files, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("Failed to read dir: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("Expected 1 log file, got %d", len(files))
	}
	if !strings.HasPrefix(files[0].Name(), "hub_") {
		t.Errorf("Log file name = %q, want hub_{date}.log", files[0].Name())
	}
}

func TestNew_BadLogDir(t *testing.T) {
	// A file where the directory should be makes MkdirAll fail. The
	// logger must still come up, just without file output.
	tmpDir := t.TempDir()
	blocker := filepath.Join(tmpDir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0640); err != nil {
		t.Fatalf("Failed to create blocker file: %v", err)
	}

	logger := New(Config{LogDir: blocker, Quiet: true})
	defer logger.Close()

	if logger.file != nil {
		t.Error("logger.file should be nil when LogDir is unusable")
	}
	logger.Info("still works")
}

func TestDefault(t *testing.T) {
	logger := Default()
	defer logger.Close()

	if logger.config.Level != LevelInfo {
		t.Errorf("Default level = %v, want LevelInfo", logger.config.Level)
	}
	if logger.config.Service != "hub" {
		t.Errorf("Default service = %v, want hub", logger.config.Service)
	}
}

// =============================================================================
// Logging and Export Tests
// =============================================================================

func TestLogger_AllLevelsExport(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelDebug,
		Service:  "hub",
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	logger.Debug("debug message", "signal", "test_dir")
	logger.Info("info message", "count", 42)
	logger.Warn("warn message", "attempt", 2)
	logger.Error("error message", "error", "boom")

	entries := waitForEntries(t, exporter, 4)

	byMessage := make(map[string]Entry, len(entries))
	for _, e := range entries {
		byMessage[e.Message] = e
	}

	if e := byMessage["debug message"]; e.Level != LevelDebug {
		t.Errorf("debug entry level = %v, want LevelDebug", e.Level)
	}
	if e := byMessage["info message"]; e.Attrs["count"] != 42 {
		t.Errorf("info entry Attrs[count] = %v, want 42", e.Attrs["count"])
	}
	if e := byMessage["warn message"]; e.Service != "hub" {
		t.Errorf("warn entry service = %q, want hub", e.Service)
	}
	if e := byMessage["error message"]; e.Level != LevelError {
		t.Errorf("error entry level = %v, want LevelError", e.Level)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelWarn,
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	logger.Debug("filtered")
	logger.Info("filtered")
	logger.Warn("kept warn")
	logger.Error("kept error")

	entries := waitForEntries(t, exporter, 2)
	if len(entries) != 2 {
		t.Fatalf("Expected exactly 2 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Level < LevelWarn {
			t.Errorf("Entry %q below minimum level: %v", e.Message, e.Level)
		}
	}
}

func TestLogger_With(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelInfo,
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	child := logger.With("session_id", "abc123")
	if child.exporter == nil {
		t.Error("child logger lost the exporter")
	}
	if child.file != logger.file {
		t.Error("child logger should share the parent's file handle")
	}

	child.Info("child message")
	entries := waitForEntries(t, exporter, 1)
	if entries[0].Message != "child message" {
		t.Errorf("Message = %q, want 'child message'", entries[0].Message)
	}
}

func TestLogger_Slog(t *testing.T) {
	logger := New(Config{Quiet: true})
	defer logger.Close()

	if logger.Slog() == nil {
		t.Fatal("Slog() returned nil")
	}
	logger.Slog().Info("via slog directly")
}

func TestLogger_FileContent(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  tmpDir,
		Service: "hub",
		Quiet:   true,
	})

	logger.Info("tool dispatched", "tool_id", "mcp__git__git_status", "duration_ms", 12)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	files, err := os.ReadDir(tmpDir)
	if err != nil || len(files) != 1 {
		t.Fatalf("Expected 1 log file, got %d (err %v)", len(files), err)
	}
	data, err := os.ReadFile(filepath.Join(tmpDir, files[0].Name()))
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	content := string(data)
	for _, want := range []string{
		`"msg":"tool dispatched"`,
		`"service":"hub"`,
		`"tool_id":"mcp__git__git_status"`,
	} {
		if !strings.Contains(content, want) {
			t.Errorf("Log file missing %s:\n%s", want, content)
		}
	}
}

func TestLogger_ConcurrentUse(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelInfo,
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	const goroutines = 10
	const perGoroutine = 50

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				logger.Info("concurrent", "goroutine", id, "iteration", j)
			}
		}(i)
	}
	wg.Wait()

	entries := waitForEntries(t, exporter, goroutines*perGoroutine)
	if len(entries) != goroutines*perGoroutine {
		t.Errorf("Expected %d entries, got %d", goroutines*perGoroutine, len(entries))
	}
}

// =============================================================================
// Close Tests
// =============================================================================

func TestLogger_Close_NoResources(t *testing.T) {
	logger := New(Config{Quiet: true})
	if err := logger.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestLogger_Close_WithFile(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{LogDir: tmpDir, Service: "hub", Quiet: true})

	logger.Info("before close")
	if err := logger.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	// Second close surfaces the already-closed file error.
	if err := logger.Close(); err == nil {
		t.Error("Second Close() should fail on the closed file")
	}
}

// failingExporter errors on every method, for Close error paths.
type failingExporter struct{}

func (e *failingExporter) Export(ctx context.Context, entry Entry) error {
	return errors.New("export failed")
}

func (e *failingExporter) Flush(ctx context.Context) error {
	return errors.New("flush failed")
}

func (e *failingExporter) Close() error {
	return errors.New("close failed")
}

func TestLogger_Close_ExporterError(t *testing.T) {
	logger := New(Config{
		Exporter: &failingExporter{},
		Quiet:    true,
	})

	err := logger.Close()
	if err == nil {
		t.Fatal("Close() should surface exporter errors")
	}
	if !strings.Contains(err.Error(), "flush exporter") {
		t.Errorf("Close() error = %v, want flush error first", err)
	}
}

func TestLogger_ExportErrorDropped(t *testing.T) {
	// A failing Export must not disturb the log call itself.
	logger := New(Config{
		Exporter: &failingExporter{},
		Quiet:    true,
	})
	logger.Info("message survives export failure")
	time.Sleep(50 * time.Millisecond)
}

// =============================================================================
// Multi-Handler Tests
// =============================================================================

func TestMultiHandler(t *testing.T) {
	var bufA, bufB bytes.Buffer
	handlerA := slog.NewJSONHandler(&bufA, &slog.HandlerOptions{Level: slog.LevelDebug})
	handlerB := slog.NewJSONHandler(&bufB, &slog.HandlerOptions{Level: slog.LevelWarn})
	mh := &multiHandler{handlers: []slog.Handler{handlerA, handlerB}}

	t.Run("enabled if any child enabled", func(t *testing.T) {
		if !mh.Enabled(context.Background(), slog.LevelDebug) {
			t.Error("Enabled(Debug) = false, want true")
		}
	})

	t.Run("handle respects per-child levels", func(t *testing.T) {
		logger := slog.New(mh)
		logger.Info("info line")
		logger.Warn("warn line")

		if !strings.Contains(bufA.String(), "info line") {
			t.Error("Debug-level handler missing info line")
		}
		if strings.Contains(bufB.String(), "info line") {
			t.Error("Warn-level handler should not receive info line")
		}
		if !strings.Contains(bufB.String(), "warn line") {
			t.Error("Warn-level handler missing warn line")
		}
	})

	t.Run("with attrs propagates to children", func(t *testing.T) {
		bufA.Reset()
		logger := slog.New(mh.WithAttrs([]slog.Attr{slog.String("component", "hub")}))
		logger.Error("tagged line")

		if !strings.Contains(bufA.String(), `"component":"hub"`) {
			t.Errorf("Attr not propagated: %s", bufA.String())
		}
	})
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("No home directory: %v", err)
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"tilde", "~/logs", filepath.Join(home, "logs")},
		{"absolute", "/var/log/hub", "/var/log/hub"},
		{"relative", "logs/hub", "logs/hub"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := expandPath(tt.input); got != tt.want {
				t.Errorf("expandPath(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestArgsToMap(t *testing.T) {
	t.Run("pairs", func(t *testing.T) {
		m := argsToMap([]any{"key1", "value1", "key2", 123})
		if m["key1"] != "value1" || m["key2"] != 123 {
			t.Errorf("argsToMap() = %v", m)
		}
	})

	t.Run("odd trailing value dropped", func(t *testing.T) {
		m := argsToMap([]any{"key1", "value1", "dangling"})
		if len(m) != 1 {
			t.Errorf("Expected 1 entry, got %d: %v", len(m), m)
		}
	})

	t.Run("non-string key skipped", func(t *testing.T) {
		m := argsToMap([]any{42, "value", "key", "kept"})
		if _, ok := m["key"]; !ok || len(m) != 1 {
			t.Errorf("argsToMap() = %v, want only string-keyed pairs", m)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if m := argsToMap(nil); len(m) != 0 {
			t.Errorf("argsToMap(nil) = %v, want empty", m)
		}
	})
}

// =============================================================================
// Exporter Tests
// =============================================================================

func TestNopExporter(t *testing.T) {
	e := &NopExporter{}
	if err := e.Export(context.Background(), Entry{Message: "dropped"}); err != nil {
		t.Errorf("Export() error = %v", err)
	}
	if err := e.Flush(context.Background()); err != nil {
		t.Errorf("Flush() error = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestBufferedExporter(t *testing.T) {
	e := NewBufferedExporter()

	for i := 0; i < 3; i++ {
		entry := Entry{
			Timestamp: time.Now(),
			Level:     LevelInfo,
			Message:   "entry",
			Attrs:     map[string]any{"n": i},
		}
		if err := e.Export(context.Background(), entry); err != nil {
			t.Fatalf("Export() error = %v", err)
		}
	}

	entries := e.Entries()
	if len(entries) != 3 {
		t.Fatalf("Entries() len = %d, want 3", len(entries))
	}

	// The returned slice is a copy.
	entries[0].Message = "tampered"
	if e.Entries()[0].Message != "entry" {
		t.Error("Entries() should return a copy")
	}

	if err := e.Flush(context.Background()); err != nil {
		t.Errorf("Flush() error = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
