// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/tensortune/services/autotune/database"
	"github.com/AleutianAI/tensortune/services/autotune/ir"
	"github.com/AleutianAI/tensortune/services/autotune/measure"
	"github.com/AleutianAI/tensortune/services/autotune/rules"
	"github.com/AleutianAI/tensortune/services/autotune/schedule"
	"github.com/AleutianAI/tensortune/services/autotune/storage/badger"
	"github.com/AleutianAI/tensortune/services/autotune/task"
	"github.com/AleutianAI/tensortune/services/autotune/telemetry"
	"github.com/AleutianAI/tensortune/services/autotune/trace"
)

func runTune(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		shutdown, err := telemetry.Init(ctx, telemetryConfig())
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("telemetry shutdown", "error", err.Error())
			}
		}()
	}

	module, err := buildWorkload(workload, dimM, dimN, dimK)
	if err != nil {
		return err
	}
	tasks, err := task.CreateTasks(module)
	if err != nil {
		return err
	}

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()
	records, err := database.New(db)
	if err != nil {
		return err
	}

	measurer, err := measure.NewMeasurer(
		measure.NewSimpleBuilder(),
		measure.NewSimpleRunner(cfg.Tuning.Repeats),
		cfg.Tuning.Parallelism,
		logger.Slog(),
	)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(cfg.Tuning.Seed))

	for _, t := range tasks {
		logger.Info("tuning task",
			"func", t.FuncName,
			"rounds", rounds,
		)

		scheds := generateCandidates(t, rng)
		inputs := make([]measure.Input, len(scheds))
		for i, sc := range scheds {
			inputs[i] = measure.Input{Task: t, Modules: []*ir.Module{sc.Module()}}
		}
		results := measurer.Measure(ctx, inputs)

		saved := 0
		for i, res := range results {
			if res.ErrorMsg != "" {
				logger.Warn("candidate discarded", "func", t.FuncName, "error", res.ErrorMsg)
				continue
			}
			st, err := scheds[i].Trace().Serialize()
			if err != nil {
				logger.Warn("trace serialization failed", "func", t.FuncName, "error", err.Error())
				continue
			}
			rec := &database.Record{
				TaskKey:       t.Key(),
				Trace:         st,
				ExecutionTime: res.ExecutionTime,
			}
			if err := records.Save(ctx, rec); err != nil {
				return fmt.Errorf("saving record: %w", err)
			}
			saved++
		}

		best, err := records.Best(ctx, t.Key())
		if err != nil {
			logger.Warn("no usable candidate", "func", t.FuncName)
			continue
		}
		logger.Info("task tuned",
			"func", t.FuncName,
			"saved", saved,
			"best_time", best.ExecutionTime.String(),
		)
		fmt.Printf("%s: best %s over %d recorded candidates\n",
			t.FuncName, best.ExecutionTime, saved)
	}
	return nil
}

// generateCandidates produces one schedule per round by running the rule
// set through its two-phase protocol with random apply choices. Round 0
// is always the unmodified baseline.
func generateCandidates(t *task.Task, rng *rand.Rand) []*schedule.Schedule {
	scheds := make([]*schedule.Schedule, 0, rounds)
	for r := 0; r < rounds; r++ {
		sched := schedule.New(t.Module.Copy())
		if r > 0 {
			applyRules(sched, rng)
		}
		scheds = append(scheds, sched)
	}
	return scheds
}

// applyRules runs the configured rule set over one schedule.
func applyRules(sched *schedule.Schedule, rng *rand.Rand) {
	ruleSet := []rules.Rule{
		rules.NewAutoUnroll(cfg.Tuning.UnrollOptions, rng),
	}
	for _, rule := range ruleSet {
		switch rule.Init(sched) {
		case rules.CannotApply:
			continue
		case rules.ApplyAndSkipThisRule:
			if err := rule.Apply(rng.Intn(rule.NumApplicable())); err != nil {
				logger.Warn("rule application failed", "rule", rule.Name(), "error", err.Error())
			}
		case rules.ApplyAndPruneOtherRules:
			if err := rule.Apply(rng.Intn(rule.NumApplicable())); err != nil {
				logger.Warn("rule application failed", "rule", rule.Name(), "error", err.Error())
			}
			return
		}
	}
}

// telemetryConfig maps the loaded observability settings onto the
// telemetry stack, turning disabled signals into "none" exporters.
func telemetryConfig() telemetry.Config {
	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceName = cfg.Observability.ServiceName
	tcfg.ServiceVersion = Version
	if cfg.Observability.TracingEnabled {
		tcfg.TraceExporter = cfg.Observability.Exporter
		// Prometheus only scrapes metrics; traces go to stdout.
		if tcfg.TraceExporter == "prometheus" {
			tcfg.TraceExporter = "stdout"
		}
	} else {
		tcfg.TraceExporter = "none"
	}
	if cfg.Observability.MetricsEnabled {
		tcfg.MetricExporter = cfg.Observability.Exporter
	} else {
		tcfg.MetricExporter = "none"
	}
	return tcfg
}

// openDatabase opens the record store per the loaded configuration.
func openDatabase() (*badger.DB, error) {
	if cfg.Database.InMemory {
		return badger.OpenDB(badger.InMemoryConfig())
	}
	bcfg := badger.DefaultConfig()
	bcfg.Path = cfg.Database.Path
	bcfg.SyncWrites = cfg.Database.SyncWrites
	bcfg.Logger = logger.Slog()
	return badger.OpenDB(bcfg)
}

// replayOnto replays a serialized trace against a fresh schedule over
// the module and returns the schedule.
func replayOnto(st *trace.SerializedTrace, mod *ir.Module) (*schedule.Schedule, error) {
	sched := schedule.New(mod)
	if _, err := trace.ReplaySerialized(st, sched); err != nil {
		return nil, err
	}
	return sched, nil
}
