// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefault verifies the baseline values validate on their own.
func TestDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Tuning.Parallelism)
	assert.Equal(t, 3, cfg.Tuning.Repeats)
	assert.Equal(t, int64(1), cfg.Tuning.Seed)
	assert.Equal(t, "./tensortune.db", cfg.Database.Path)
	assert.True(t, cfg.Database.SyncWrites)
	assert.Equal(t, "tensortune", cfg.Observability.ServiceName)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
	assert.Equal(t, "stdout", cfg.Observability.Exporter)
}

// TestLoadMissingFileUsesDefaults verifies a nonexistent path is not an
// error.
func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

// TestLoadFile verifies YAML settings override defaults while leaving
// the rest untouched.
func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tensortune.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tuning:
  parallelism: 8
  seed: 99
  unroll_options: [0, 64]
database:
  in_memory: true
observability:
  log_level: debug
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Tuning.Parallelism)
	assert.Equal(t, int64(99), cfg.Tuning.Seed)
	assert.Equal(t, []int{0, 64}, cfg.Tuning.UnrollOptions)
	assert.True(t, cfg.Database.InMemory)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	// Untouched by the file.
	assert.Equal(t, 3, cfg.Tuning.Repeats)
}

// TestEnvOverridesFile verifies the environment wins over file values.
func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tensortune.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tuning:\n  parallelism: 8\n"), 0o600))

	t.Setenv("TENSORTUNE_PARALLELISM", "16")
	t.Setenv("TENSORTUNE_UNROLL_OPTIONS", "0, 8, 16")
	t.Setenv("TENSORTUNE_DB_IN_MEMORY", "true")
	t.Setenv("TENSORTUNE_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Tuning.Parallelism)
	assert.Equal(t, []int{0, 8, 16}, cfg.Tuning.UnrollOptions)
	assert.True(t, cfg.Database.InMemory)
	assert.Equal(t, "warn", cfg.Observability.LogLevel)
}

// TestValidationRejectsBadValues verifies validation failures surface.
func TestValidationRejectsBadValues(t *testing.T) {
	t.Setenv("TENSORTUNE_PARALLELISM", "0")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

// TestValidationRejectsBadLevel verifies the log level enum.
func TestValidationRejectsBadLevel(t *testing.T) {
	t.Setenv("TENSORTUNE_LOG_LEVEL", "verbose")
	_, err := Load("")
	require.Error(t, err)
}

// TestValidationRejectsBadExporter verifies the exporter enum.
func TestValidationRejectsBadExporter(t *testing.T) {
	t.Setenv("TENSORTUNE_EXPORTER", "graphite")
	_, err := Load("")
	require.Error(t, err)
}

// TestLoadRejectsMalformedYAML verifies parse failures surface.
func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tensortune.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tuning: ["), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config file")
}
