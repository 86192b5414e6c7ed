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
	"time"

	"github.com/AleutianAI/tensortune/services/autotune/ir"
)

// SimpleRunner times an artifact by interpreting it repeatedly over
// deterministic synthetic inputs and averaging the wall time.
type SimpleRunner struct {
	repeats int
}

// NewSimpleRunner returns a runner that averages over the given number
// of repetitions; values below 1 are raised to 1.
func NewSimpleRunner(repeats int) *SimpleRunner {
	if repeats < 1 {
		repeats = 1
	}
	return &SimpleRunner{repeats: repeats}
}

// Run implements Runner.
func (r *SimpleRunner) Run(ctx context.Context, _ Input, built BuildResult) (RunDetail, error) {
	if built.Artifact == nil {
		return RunDetail{}, fmt.Errorf("%w: no artifact", ErrInvalidInput)
	}
	inputs := SyntheticInputs(built.Artifact)

	start := time.Now()
	for i := 0; i < r.repeats; i++ {
		if err := ctx.Err(); err != nil {
			return RunDetail{}, err
		}
		if _, err := built.Artifact.Execute(inputs); err != nil {
			return RunDetail{}, err
		}
	}
	return RunDetail{ExecutionTime: time.Since(start) / time.Duration(r.repeats)}, nil
}

// SyntheticInputs builds a deterministic value set for every input
// buffer of m. The ramp-with-wraparound pattern keeps values small while
// making most index mix-ups change the output.
func SyntheticInputs(m *ir.Module) map[string][]float64 {
	inputs := make(map[string][]float64)
	for _, buf := range m.Buffers {
		if !buf.IsInput {
			continue
		}
		data := make([]float64, buf.Size())
		for i := range data {
			data[i] = float64(i%17) + 0.5
		}
		inputs[buf.Name] = data
	}
	return inputs
}

var _ Runner = (*SimpleRunner)(nil)
