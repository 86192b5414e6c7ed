// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads tuner configuration with priority: environment
// over file over defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// MaxConfigFileSize bounds how much of a config file is read. Config
// files are a few hundred bytes; anything bigger is a mistake.
const MaxConfigFileSize = 1 << 20

// validate is the package validator instance.
var validate = validator.New()

// Config is the full tuner configuration.
//
// Thread Safety: safe to read concurrently; not safe to modify after
// loading.
type Config struct {
	Tuning        TuningConfig        `yaml:"tuning"`
	Database      DatabaseConfig      `yaml:"database"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// TuningConfig contains search and measurement settings.
type TuningConfig struct {
	// Parallelism bounds concurrently measured candidates.
	Parallelism int `yaml:"parallelism" validate:"gte=1"`

	// Repeats is how many times the runner executes each candidate.
	Repeats int `yaml:"repeats" validate:"gte=1"`

	// Seed feeds the search rules' random sources. Fixed seeds make
	// tuning runs reproducible.
	Seed int64 `yaml:"seed"`

	// UnrollOptions overrides the AutoUnroll candidate set.
	UnrollOptions []int `yaml:"unroll_options" validate:"omitempty,dive,gte=0"`
}

// DatabaseConfig contains tuning-record store settings.
type DatabaseConfig struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string `yaml:"path"`

	// InMemory keeps records only for the process lifetime.
	InMemory bool `yaml:"in_memory"`

	// SyncWrites makes every record durable before returning.
	SyncWrites bool `yaml:"sync_writes"`
}

// ObservabilityConfig contains logging and telemetry settings.
type ObservabilityConfig struct {
	ServiceName    string `yaml:"service_name" validate:"required"`
	LogLevel       string `yaml:"log_level" validate:"oneof=debug info warn error"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	TracingEnabled bool   `yaml:"tracing_enabled"`

	// Exporter selects the telemetry backend: stdout, prometheus, or
	// otlp.
	Exporter string `yaml:"exporter" validate:"oneof=stdout prometheus otlp none"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Tuning: TuningConfig{
			Parallelism: 4,
			Repeats:     3,
			Seed:        1,
		},
		Database: DatabaseConfig{
			Path:       "./tensortune.db",
			SyncWrites: true,
		},
		Observability: ObservabilityConfig{
			ServiceName: "tensortune",
			LogLevel:    "info",
			Exporter:    "stdout",
		},
	}
}

// Load builds the configuration from defaults, then the optional YAML
// file at path, then environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	loadEnv(&cfg)

	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Size() > MaxConfigFileSize {
		return fmt.Errorf("config file %s is %d bytes, limit %d", path, info.Size(), MaxConfigFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("TENSORTUNE_PARALLELISM"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Tuning.Parallelism = i
		}
	}
	if v := os.Getenv("TENSORTUNE_REPEATS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Tuning.Repeats = i
		}
	}
	if v := os.Getenv("TENSORTUNE_SEED"); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Tuning.Seed = i
		}
	}
	if v := os.Getenv("TENSORTUNE_UNROLL_OPTIONS"); v != "" {
		var opts []int
		ok := true
		for _, part := range strings.Split(v, ",") {
			i, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				ok = false
				break
			}
			opts = append(opts, i)
		}
		if ok {
			cfg.Tuning.UnrollOptions = opts
		}
	}
	if v := os.Getenv("TENSORTUNE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("TENSORTUNE_DB_IN_MEMORY"); v != "" {
		cfg.Database.InMemory = v == "true" || v == "1"
	}
	if v := os.Getenv("TENSORTUNE_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("TENSORTUNE_METRICS_ENABLED"); v != "" {
		cfg.Observability.MetricsEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("TENSORTUNE_TRACING_ENABLED"); v != "" {
		cfg.Observability.TracingEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("TENSORTUNE_EXPORTER"); v != "" {
		cfg.Observability.Exporter = v
	}
}
