// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
		{"  error  ", LevelError},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
		{Level(99), "info"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestNew_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelWarn, Writer: &buf})

	logger.Debug("debug line")
	logger.Info("info line")
	logger.Warn("warn line")
	logger.Error("error line")

	out := buf.String()
	if strings.Contains(out, "debug line") || strings.Contains(out, "info line") {
		t.Errorf("output should not contain sub-warn records: %s", out)
	}
	if !strings.Contains(out, "warn line") || !strings.Contains(out, "error line") {
		t.Errorf("output missing warn/error records: %s", out)
	}
}

func TestNew_JSONCarriesServiceField(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Service: "tensortune", JSON: true, Writer: &buf})

	logger.Info("tuning task", "func", "matmul_main")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not one JSON record: %v\n%s", err, buf.String())
	}
	if rec["service"] != "tensortune" {
		t.Errorf("service = %v, want %q", rec["service"], "tensortune")
	}
	if rec["msg"] != "tuning task" {
		t.Errorf("msg = %v, want %q", rec["msg"], "tuning task")
	}
	if rec["func"] != "matmul_main" {
		t.Errorf("func = %v, want %q", rec["func"], "matmul_main")
	}
}

func TestNew_TextIsDefaultFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Writer: &buf})

	logger.Info("candidate measured", "time_ms", 12)

	out := buf.String()
	if !strings.Contains(out, "msg=") {
		t.Errorf("expected slog text format, got: %s", out)
	}
	if !strings.Contains(out, "time_ms=12") {
		t.Errorf("output missing attribute: %s", out)
	}
}

func TestWith_AddsFieldsToEveryRecord(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, JSON: true, Writer: &buf})

	taskLogger := logger.With("task_key", "abc123")
	taskLogger.Info("first")
	taskLogger.Info("second")

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if !strings.Contains(line, `"task_key":"abc123"`) {
			t.Errorf("record missing task_key: %s", line)
		}
	}
}

func TestLogDir_WritesDatedJSONFile(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, LogDir: dir, Writer: &buf})

	logger.Info("round complete", "round", 3)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "tensortune_*.log"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one tensortune_*.log file, got %v (err %v)", matches, err)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &rec); err != nil {
		t.Fatalf("file record is not JSON: %v\n%s", err, data)
	}
	if rec["msg"] != "round complete" {
		t.Errorf("file msg = %v, want %q", rec["msg"], "round complete")
	}
	// Primary output still gets the record.
	if !strings.Contains(buf.String(), "round complete") {
		t.Errorf("primary output missing record: %s", buf.String())
	}
}

func TestLogDir_BrokenDirDegradesToPrimary(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "occupied")
	if err := os.WriteFile(bad, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, LogDir: bad, Writer: &buf})
	defer logger.Close()

	logger.Info("still logging")
	if !strings.Contains(buf.String(), "still logging") {
		t.Errorf("primary output missing record: %s", buf.String())
	}
}

func TestClose_IsIdempotentWithoutFile(t *testing.T) {
	logger := New(Config{Level: LevelInfo, Writer: &bytes.Buffer{}})
	if err := logger.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestDefault_ReturnsSharedLogger(t *testing.T) {
	a := Default()
	b := Default()
	if a == nil || a != b {
		t.Error("Default() should return one shared logger")
	}
	if a.Slog() == nil {
		t.Error("Default().Slog() should not be nil")
	}
}

func TestSlog_WorksForComponentsTakingSlog(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelDebug, JSON: true, Writer: &buf})

	sl := logger.Slog()
	sl.Debug("builder started", "concurrency", 2)

	if !strings.Contains(buf.String(), `"concurrency":2`) {
		t.Errorf("slog output missing attribute: %s", buf.String())
	}
}
