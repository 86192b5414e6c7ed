// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package measure

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

var meter = otel.Meter("tensortune.measure")

// Measurer measures batches of schedule candidates. Builds are gated by
// a semaphore sized to the builder's declared concurrency; the overall
// per-candidate fan-out is bounded by the measurer's parallelism.
//
// A failing candidate never fails the batch: build and run errors (and
// panics) are captured into that candidate's Result and the rest of the
// batch proceeds.
//
// Thread Safety: safe for concurrent use; Measure may be called from
// multiple goroutines.
type Measurer struct {
	builder Builder
	runner  Runner
	par     int
	logger  *slog.Logger

	buildSem *semaphore.Weighted

	metricsOnce   sync.Once
	buildLatency  metric.Float64Histogram
	runLatency    metric.Float64Histogram
	buildFailures metric.Int64Counter
	runFailures   metric.Int64Counter
	measured      metric.Int64Counter
}

// NewMeasurer builds a measurer over the given builder and runner.
// parallelism bounds concurrent candidates; values below 1 are raised
// to 1. A nil logger falls back to slog.Default().
func NewMeasurer(builder Builder, runner Runner, parallelism int, logger *slog.Logger) (*Measurer, error) {
	if builder == nil || runner == nil {
		return nil, fmt.Errorf("%w: builder and runner must be non-nil", ErrInvalidInput)
	}
	if parallelism < 1 {
		parallelism = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	bc := builder.Concurrency()
	if bc < 1 {
		bc = 1
	}
	return &Measurer{
		builder:  builder,
		runner:   runner,
		par:      parallelism,
		logger:   logger,
		buildSem: semaphore.NewWeighted(int64(bc)),
	}, nil
}

// initMetrics lazily initializes metrics. Failures degrade observability
// but never measurement.
func (m *Measurer) initMetrics() {
	m.metricsOnce.Do(func() {
		var initErrors []string

		var err error
		m.buildLatency, err = meter.Float64Histogram("measure_build_duration_seconds",
			metric.WithDescription("Time spent building one candidate"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "build_latency: "+err.Error())
		}

		m.runLatency, err = meter.Float64Histogram("measure_run_duration_seconds",
			metric.WithDescription("Time spent running one candidate"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "run_latency: "+err.Error())
		}

		m.buildFailures, err = meter.Int64Counter("measure_build_failure_total",
			metric.WithDescription("Number of failed candidate builds"),
		)
		if err != nil {
			initErrors = append(initErrors, "build_failures: "+err.Error())
		}

		m.runFailures, err = meter.Int64Counter("measure_run_failure_total",
			metric.WithDescription("Number of failed candidate runs"),
		)
		if err != nil {
			initErrors = append(initErrors, "run_failures: "+err.Error())
		}

		m.measured, err = meter.Int64Counter("measure_candidates_total",
			metric.WithDescription("Number of measured candidates"),
		)
		if err != nil {
			initErrors = append(initErrors, "measured: "+err.Error())
		}

		if len(initErrors) > 0 {
			m.logger.Error("failed to initialize some measurement metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

// Measure builds and runs every input and returns one result per input,
// in input order. The returned slice always has len(inputs) entries.
func (m *Measurer) Measure(ctx context.Context, inputs []Input) []Result {
	m.initMetrics()

	results := make([]Result, len(inputs))
	g := new(errgroup.Group)
	g.SetLimit(m.par)
	for i := range inputs {
		i := i
		g.Go(func() error {
			results[i] = m.measureOne(ctx, inputs[i])
			return nil
		})
	}
	// Workers never return errors; failures live in the results.
	_ = g.Wait()
	return results
}

func (m *Measurer) measureOne(ctx context.Context, in Input) Result {
	taskName := ""
	if in.Task != nil {
		taskName = in.Task.FuncName
	}
	attrs := metric.WithAttributes(attribute.String("task", taskName))

	built, err := m.build(ctx, in)
	if err != nil {
		if m.buildFailures != nil {
			m.buildFailures.Add(ctx, 1, attrs)
		}
		m.logger.Warn("candidate build failed",
			slog.String("task", taskName),
			slog.String("error", err.Error()),
		)
		return Result{ErrorMsg: fmt.Sprintf("Build failed, error: %s\n", err)}
	}

	detail, err := m.run(ctx, in, built)
	if err != nil {
		if m.runFailures != nil {
			m.runFailures.Add(ctx, 1, attrs)
		}
		m.logger.Warn("candidate run failed",
			slog.String("task", taskName),
			slog.String("error", err.Error()),
		)
		return Result{ErrorMsg: fmt.Sprintf("Run failed, error: %s\n", err)}
	}

	if m.measured != nil {
		m.measured.Add(ctx, 1, attrs)
	}
	return Result{ExecutionTime: detail.ExecutionTime}
}

// build runs the builder under the concurrency semaphore, converting
// panics into errors.
func (m *Measurer) build(ctx context.Context, in Input) (built BuildResult, err error) {
	if err := m.buildSem.Acquire(ctx, 1); err != nil {
		return BuildResult{}, err
	}
	defer m.buildSem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("builder panic: %v", r)
		}
	}()
	start := time.Now()
	built, err = m.builder.Build(ctx, in)
	if m.buildLatency != nil {
		m.buildLatency.Record(ctx, time.Since(start).Seconds())
	}
	return built, err
}

// run times the runner, converting panics into errors.
func (m *Measurer) run(ctx context.Context, in Input, built BuildResult) (detail RunDetail, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("runner panic: %v", r)
		}
	}()
	start := time.Now()
	detail, err = m.runner.Run(ctx, in, built)
	if m.runLatency != nil {
		m.runLatency.Record(ctx, time.Since(start).Seconds())
	}
	return detail, err
}
