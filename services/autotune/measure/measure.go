// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package measure turns candidate schedules into timing numbers: a
// builder lowers a candidate into a runnable artifact, a runner times
// it, and the measurer drives both concurrently over a batch of
// candidates.
package measure

import (
	"context"
	"errors"
	"time"

	"github.com/AleutianAI/tensortune/services/autotune/ir"
	"github.com/AleutianAI/tensortune/services/autotune/task"
)

// ErrInvalidInput is returned for nil or structurally empty arguments.
var ErrInvalidInput = errors.New("invalid input")

// Input is one measurement request: the tuning task plus the scheduled
// module candidates to build together.
type Input struct {
	Task    *task.Task
	Modules []*ir.Module
}

// BuildResult is a runnable artifact produced by a Builder.
type BuildResult struct {
	Artifact *ir.Module
	Source   string
}

// RunDetail is the raw timing a Runner reports for one artifact.
type RunDetail struct {
	ExecutionTime time.Duration
}

// Result is the outcome of measuring one input. Exactly one of
// ExecutionTime and ErrorMsg is meaningful: a failed build or run leaves
// ExecutionTime zero and records the stage diagnostic in ErrorMsg.
type Result struct {
	ExecutionTime time.Duration
	ErrorMsg      string
}

// Builder lowers a measurement input into a runnable artifact.
// Concurrency bounds how many Build calls the measurer may have in
// flight at once; implementations backed by an exclusive resource
// return 1.
type Builder interface {
	Build(ctx context.Context, in Input) (BuildResult, error)
	Concurrency() int
}

// Runner executes a built artifact and reports its timing.
type Runner interface {
	Run(ctx context.Context, in Input, built BuildResult) (RunDetail, error)
}
