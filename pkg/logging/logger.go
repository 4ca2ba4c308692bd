// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging provides structured logging for the hub and its CLI.
//
// The hub runs as a long-lived daemon between an agent and its tool
// servers, so logs have three destinations with different audiences:
//
//   - stderr for the operator watching the process (text by default)
//   - an optional file for the daemon case, always JSON
//   - an optional Exporter for shipping entries to an aggregation system
//
// # Basic Usage
//
//	logger := logging.Default()
//	logger.Info("server connected", "server", "git", "tools", 12)
//
// # Daemon Usage
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.LevelInfo,
//	    LogDir:  "~/.aleutian/hub/logs",
//	    Service: "hub",
//	    Quiet:   true,
//	})
//	defer logger.Close()
//
// File logs are named {service}_{YYYY-MM-DD}.log and are always JSON
// so the agent-side tooling can tail and parse them.
//
// # Thread Safety
//
// Logger is safe for concurrent use. The underlying slog handlers are
// thread-safe and mutable state is mutex-protected.
//
// # Security Considerations
//
// Nothing here redacts call arguments. Tool call payloads can carry
// user file contents, so callers log metadata (tool id, byte counts,
// durations) rather than argument bodies.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// Log Levels
// =============================================================================

// Level represents log severity, ordered Debug < Info < Warn < Error.
// Setting a minimum level discards everything below it.
type Level int

const (
	// LevelDebug is for development troubleshooting. Detection signal
	// dumps and per-request plan traces live here.
	LevelDebug Level = iota

	// LevelInfo is for normal operation: sessions created, servers
	// connected, decisions served.
	LevelInfo

	// LevelWarn is for recoverable trouble: a back-end restart, a
	// detection timeout that fell back to the safe default.
	LevelWarn

	// LevelError is for failed operations the hub survives, such as a
	// tool call that could not be dispatched.
	LevelError
)

// String returns "DEBUG", "INFO", "WARN", "ERROR", or "UNKNOWN".
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// toSlogLevel bridges Level to the standard library's slog.Level.
func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel converts a level name to a Level. Matching is
// case-insensitive and unrecognized names fall back to LevelInfo, so a
// typo in an env var degrades to the default rather than silencing
// errors or flooding debug output.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// =============================================================================
// Configuration
// =============================================================================

// Config configures Logger behavior. The zero value writes Info and
// above to stderr as text, which is what hubctl wants.
type Config struct {
	// Level is the minimum level to emit. Default: LevelInfo.
	Level Level

	// LogDir enables file logging into the given directory. The file
	// is named "{Service}_{YYYY-MM-DD}.log", JSON formatted, appended
	// across restarts. Supports ~ expansion. The directory is created
	// with 0750 if missing. Default: "" (no file).
	LogDir string

	// Service is stamped on every entry as the "service" attribute.
	// It also names the log file. Default: "" (no attribute).
	Service string

	// JSON switches stderr output from text to JSON. File output is
	// always JSON regardless. Default: false.
	JSON bool

	// Quiet disables stderr output entirely. Used by the daemon once
	// file logging is up, and by hubctl when emitting machine-readable
	// output on stdout. Default: false.
	Quiet bool

	// Exporter receives a copy of each emitted entry asynchronously.
	// Export failures are dropped so a slow aggregation backend can
	// never stall a request path. Default: nil.
	Exporter Exporter
}

// =============================================================================
// Export Interface
// =============================================================================

// Exporter ships log entries to an external system.
//
// Export is called once per emitted entry from a short-lived goroutine
// with a one second deadline, so implementations buffer internally and
// upload in batches. Flush drains the buffer and is called during
// shutdown with a five second deadline, Close after Flush.
type Exporter interface {
	Export(ctx context.Context, entry Entry) error
	Flush(ctx context.Context) error
	Close() error
}

// Entry is the structured form handed to an Exporter.
type Entry struct {
	// Timestamp when the entry was emitted.
	Timestamp time.Time

	// Level of the entry.
	Level Level

	// Message is the primary log message.
	Message string

	// Service comes from Config.Service.
	Service string

	// Attrs holds the key-value pairs passed alongside the message.
	Attrs map[string]any
}

// =============================================================================
// Logger
// =============================================================================

// Logger wraps slog with multi-destination output and export.
//
// Child loggers from With share the parent's file handle and exporter,
// so only the root logger should be closed:
//
//	logger := logging.New(cfg)
//	defer logger.Close()
//	reqLog := logger.With("request_id", id)
type Logger struct {
	slog     *slog.Logger
	config   Config
	file     *os.File
	exporter Exporter
	mu       sync.Mutex
}

// New creates a Logger for the given configuration.
//
// Destinations are assembled in order: stderr unless Quiet, then the
// log file when LogDir is set. A file that cannot be opened is skipped
// rather than failing construction; losing file logs is better than a
// hub that will not start. When every destination is disabled the
// logger falls back to stderr so messages are never silently dropped.
//
// Callers must Close the returned logger to flush the exporter and
// sync the file.
func New(config Config) *Logger {
	var handlers []slog.Handler

	opts := &slog.HandlerOptions{
		Level: config.Level.toSlogLevel(),
	}

	if !config.Quiet {
		var stderrHandler slog.Handler
		if config.JSON {
			stderrHandler = slog.NewJSONHandler(os.Stderr, opts)
		} else {
			stderrHandler = slog.NewTextHandler(os.Stderr, opts)
		}
		handlers = append(handlers, stderrHandler)
	}

	logger := &Logger{
		config:   config,
		exporter: config.Exporter,
	}

	if config.LogDir != "" {
		logDir := expandPath(config.LogDir)
		if err := os.MkdirAll(logDir, 0750); err == nil {
			serviceName := config.Service
			if serviceName == "" {
				serviceName = "hub"
			}
			filename := fmt.Sprintf("%s_%s.log", serviceName, time.Now().Format("2006-01-02"))
			logPath := filepath.Join(logDir, filename)

			file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
			if err == nil {
				logger.file = file
				// File logs are always JSON for the tailing tooling.
				handlers = append(handlers, slog.NewJSONHandler(file, opts))
			}
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(os.Stderr, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}

	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{
			slog.String("service", config.Service),
		})
	}

	logger.slog = slog.New(handler)
	return logger
}

// Default returns a stderr-only text logger at Info level with the
// service attribute set to "hub".
func Default() *Logger {
	return New(Config{
		Level:   LevelInfo,
		Service: "hub",
	})
}

// Debug logs at Debug level. args are slog-style key-value pairs.
func (l *Logger) Debug(msg string, args ...any) {
	l.log(LevelDebug, msg, args...)
}

// Info logs at Info level.
func (l *Logger) Info(msg string, args ...any) {
	l.log(LevelInfo, msg, args...)
}

// Warn logs at Warn level.
func (l *Logger) Warn(msg string, args ...any) {
	l.log(LevelWarn, msg, args...)
}

// Error logs at Error level.
func (l *Logger) Error(msg string, args ...any) {
	l.log(LevelError, msg, args...)
}

// With returns a child Logger carrying additional attributes. The
// child shares the parent's file handle and exporter; closing either
// closes both.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:     l.slog.With(args...),
		config:   l.config,
		file:     l.file,
		exporter: l.exporter,
	}
}

// Slog returns the underlying slog.Logger for packages that take a
// *slog.Logger directly.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Close flushes the exporter, closes it, then syncs and closes the log
// file. Returns the first error encountered; later steps still run.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error

	if l.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.exporter.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush exporter: %w", err))
		}
		if err := l.exporter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close exporter: %w", err))
		}
	}

	if l.file != nil {
		if err := l.file.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("sync log file: %w", err))
		}
		if err := l.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log file: %w", err))
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// log writes to slog and, when an exporter is configured, hands a copy
// of the entry to it off the caller's goroutine.
func (l *Logger) log(level Level, msg string, args ...any) {
	switch level {
	case LevelDebug:
		l.slog.Debug(msg, args...)
	case LevelInfo:
		l.slog.Info(msg, args...)
	case LevelWarn:
		l.slog.Warn(msg, args...)
	case LevelError:
		l.slog.Error(msg, args...)
	}

	if l.exporter != nil && level >= l.config.Level {
		entry := Entry{
			Timestamp: time.Now(),
			Level:     level,
			Message:   msg,
			Service:   l.config.Service,
			Attrs:     argsToMap(args),
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = l.exporter.Export(ctx, entry) // Errors are dropped.
		}()
	}
}

// =============================================================================
// Multi-Handler (Internal)
// =============================================================================

// multiHandler fans a record out to several slog handlers, letting
// stderr stay text while the file stays JSON.
type multiHandler struct {
	handlers []slog.Handler
}

// Enabled reports whether any wrapped handler wants the level.
func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers the record to every enabled handler, stopping at the
// first error.
func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

// WithAttrs returns a multiHandler whose children all carry the attrs.
func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

// WithGroup returns a multiHandler whose children all open the group.
func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// =============================================================================
// Helper Functions
// =============================================================================

// expandPath expands a leading ~ to the user's home directory. Other
// paths pass through unchanged.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// argsToMap converts slog-style key-value args into an Entry.Attrs
// map. Keys that are not strings are skipped, as is a trailing value
// with no key.
func argsToMap(args []any) map[string]any {
	result := make(map[string]any)
	for i := 0; i < len(args)-1; i += 2 {
		if key, ok := args[i].(string); ok {
			result[key] = args[i+1]
		}
	}
	return result
}

// =============================================================================
// Built-in Exporters
// =============================================================================

// NopExporter discards every entry. Used where an Exporter is required
// but export is disabled.
type NopExporter struct{}

// Export discards the entry.
func (e *NopExporter) Export(ctx context.Context, entry Entry) error { return nil }

// Flush is a no-op.
func (e *NopExporter) Flush(ctx context.Context) error { return nil }

// Close is a no-op.
func (e *NopExporter) Close() error { return nil }

var _ Exporter = (*NopExporter)(nil)

// BufferedExporter collects entries in memory. Tests use it to assert
// on what was logged:
//
//	exporter := logging.NewBufferedExporter()
//	logger := logging.New(logging.Config{Exporter: exporter, Quiet: true})
//	logger.Info("session created", "session_id", id)
//	entries := exporter.Entries()
type BufferedExporter struct {
	mu      sync.Mutex
	entries []Entry
}

// NewBufferedExporter creates an empty BufferedExporter.
func NewBufferedExporter() *BufferedExporter {
	return &BufferedExporter{
		entries: make([]Entry, 0, 100),
	}
}

// Export appends the entry to the buffer.
func (e *BufferedExporter) Export(ctx context.Context, entry Entry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = append(e.entries, entry)
	return nil
}

// Flush is a no-op; entries are already in memory.
func (e *BufferedExporter) Flush(ctx context.Context) error { return nil }

// Close is a no-op.
func (e *BufferedExporter) Close() error { return nil }

// Entries returns a copy of the collected entries.
func (e *BufferedExporter) Entries() []Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := make([]Entry, len(e.entries))
	copy(result, e.entries)
	return result
}

var _ Exporter = (*BufferedExporter)(nil)
