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
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/tensortune/services/autotune/database"
	"github.com/AleutianAI/tensortune/services/autotune/ir"
	"github.com/AleutianAI/tensortune/services/autotune/task"
	"github.com/AleutianAI/tensortune/services/autotune/trace"
)

// maxTraceFileSize bounds how large a trace file the replay command will
// read.
const maxTraceFileSize = 16 << 20

func runReplay(cmd *cobra.Command, args []string) error {
	data, err := readTraceFile(args[0])
	if err != nil {
		return err
	}
	st, err := trace.Decode(data)
	if err != nil {
		return err
	}

	module, err := buildWorkload(workload, dimM, dimN, dimK)
	if err != nil {
		return err
	}
	tasks, err := task.CreateTasks(module)
	if err != nil {
		return err
	}
	if len(tasks) != 1 {
		return fmt.Errorf("workload %q has %d functions; replay needs exactly one", workload, len(tasks))
	}

	sched, err := replayOnto(st, tasks[0].Module)
	if err != nil {
		return err
	}
	fmt.Print(ir.SourceCode(sched.Module()))
	return nil
}

func runBest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

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

	for _, t := range tasks {
		best, err := records.Best(ctx, t.Key())
		if err != nil {
			fmt.Printf("%s: no records\n", t.FuncName)
			continue
		}
		fmt.Printf("%s: %s (%d steps, recorded %s)\n",
			t.FuncName, best.ExecutionTime, len(best.Trace.Steps),
			best.RecordedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func readTraceFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxTraceFileSize {
		return nil, fmt.Errorf("trace file %s is %d bytes, limit %d", path, info.Size(), maxTraceFileSize)
	}
	return os.ReadFile(path)
}
