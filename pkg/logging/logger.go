// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides the structured logger used across the tuner.
//
// It is a thin layer over the standard library's slog: human-readable
// text on stderr by default, optional JSON, and an optional dated log
// file mirrored alongside the primary output. Components that take a
// *slog.Logger directly (the measurer, the record store) get one via
// Slog().
//
// Basic usage:
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.LevelInfo,
//	    Service: "tensortune",
//	})
//	defer logger.Close()
//	logger.Info("tuning task", "func", task.FuncName)
//
// Logger is safe for concurrent use; the underlying slog handlers are
// thread-safe. Nothing is redacted: callers must keep secrets out of
// log attributes.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level is the minimum severity a logger emits, ordered
// Debug < Info < Warn < Error.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the lowercase level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel maps a configuration string to a Level. Unknown or empty
// values fall back to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Config controls logger construction.
type Config struct {
	// Level is the minimum severity emitted.
	Level Level

	// Service is attached to every record as the "service" attribute.
	Service string

	// JSON switches the primary output from text to JSON.
	JSON bool

	// LogDir, when set, mirrors every record as JSON into a dated
	// tensortune_<date>.log file under the directory. A leading "~"
	// expands to the user's home directory. Failure to open the file
	// is reported on stderr and file logging is skipped.
	LogDir string

	// Writer overrides the primary output destination. Defaults to
	// os.Stderr.
	Writer io.Writer
}

// Logger wraps a *slog.Logger plus the optional log file it owns.
type Logger struct {
	sl   *slog.Logger
	file *os.File
}

// New builds a logger from the config. It never fails: a broken LogDir
// degrades to primary-output-only logging.
func New(config Config) *Logger {
	w := config.Writer
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: config.Level.slogLevel()}

	var primary slog.Handler
	if config.JSON {
		primary = slog.NewJSONHandler(w, opts)
	} else {
		primary = slog.NewTextHandler(w, opts)
	}

	handlers := []slog.Handler{primary}
	var file *os.File
	if config.LogDir != "" {
		f, err := openLogFile(config.LogDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		} else {
			file = f
			handlers = append(handlers, slog.NewJSONHandler(f, opts))
		}
	}

	h := handlers[0]
	if len(handlers) > 1 {
		h = fanout(handlers)
	}
	sl := slog.New(h)
	if config.Service != "" {
		sl = sl.With("service", config.Service)
	}
	return &Logger{sl: sl, file: file}
}

var (
	defaultLogger *Logger
	defaultOnce   sync.Once
)

// Default returns a shared stderr logger at LevelInfo.
func Default() *Logger {
	defaultOnce.Do(func() {
		defaultLogger = New(Config{Level: LevelInfo, Service: "tensortune"})
	})
	return defaultLogger
}

// Debug logs at debug level with alternating key/value args.
func (l *Logger) Debug(msg string, args ...any) { l.sl.Debug(msg, args...) }

// Info logs at info level with alternating key/value args.
func (l *Logger) Info(msg string, args ...any) { l.sl.Info(msg, args...) }

// Warn logs at warn level with alternating key/value args.
func (l *Logger) Warn(msg string, args ...any) { l.sl.Warn(msg, args...) }

// Error logs at error level with alternating key/value args.
func (l *Logger) Error(msg string, args ...any) { l.sl.Error(msg, args...) }

// With returns a logger carrying the extra key/value pairs on every
// record. The derived logger shares the parent's log file; only the
// logger returned by New should Close it.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{sl: l.sl.With(args...), file: l.file}
}

// Slog exposes the underlying slog.Logger for components that take one
// directly.
func (l *Logger) Slog() *slog.Logger { return l.sl }

// Close closes the log file, if any. Safe to call on loggers without
// one, and idempotent.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func openLogFile(dir string) (*os.File, error) {
	dir = expandHome(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}
	name := fmt.Sprintf("tensortune_%s.log", time.Now().Format("2006-01-02"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// fanout delivers each record to every handler. A record is emitted
// when at least one handler's level admits it.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
