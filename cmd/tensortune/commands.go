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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/tensortune/pkg/logging"
	"github.com/AleutianAI/tensortune/services/autotune/config"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	cfg    config.Config
	logger *logging.Logger

	configPath string
	workload   string
	dimM       int
	dimN       int
	dimK       int
	rounds     int

	rootCmd = &cobra.Command{
		Use:   "tensortune",
		Short: "An auto-tuner for tensor-program schedules",
		Long: `tensortune searches over loop transformations of lowered tensor
programs, measures the candidates, and keeps the fastest schedules in a
local record database for later reuse.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
			logger = logging.New(logging.Config{
				Level:   logging.ParseLevel(cfg.Observability.LogLevel),
				Service: cfg.Observability.ServiceName,
			})
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Close()
			}
		},
	}

	tuneCmd = &cobra.Command{
		Use:   "tune",
		Short: "Search, measure, and record schedules for a workload",
		RunE:  runTune,
	}

	replayCmd = &cobra.Command{
		Use:   "replay [trace.json]",
		Short: "Replay a serialized schedule trace onto a fresh workload",
		Args:  cobra.ExactArgs(1),
		RunE:  runReplay,
	}

	bestCmd = &cobra.Command{
		Use:   "best",
		Short: "Show the best recorded schedule for a workload",
		RunE:  runBest,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the tensortune version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("tensortune", Version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "tensortune.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&workload, "workload", "matmul", "Workload to operate on: matmul or elementwise")
	rootCmd.PersistentFlags().IntVar(&dimM, "m", 32, "First workload dimension")
	rootCmd.PersistentFlags().IntVar(&dimN, "n", 32, "Second workload dimension")
	rootCmd.PersistentFlags().IntVar(&dimK, "k", 32, "Reduction dimension (matmul only)")

	tuneCmd.Flags().IntVar(&rounds, "rounds", 8, "Number of candidate schedules per task")

	rootCmd.AddCommand(tuneCmd, replayCmd, bestCmd, versionCmd)
}
