// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package task partitions a lowered module into independently tunable
// units.
package task

import (
	"errors"

	"github.com/google/uuid"

	"github.com/AleutianAI/tensortune/services/autotune/ir"
)

// ErrEmptyModule is returned when a module holds no functions to tune.
var ErrEmptyModule = errors.New("module has no functions")

// Task is one tunable unit: a single-function module carved out of a
// larger one, plus the buffers that function touches. Tasks are
// independent; tuning them concurrently is safe because each owns a
// structural copy of its subgraph.
type Task struct {
	ID       uuid.UUID
	FuncName string
	Module   *ir.Module
}

// Key returns the stable identity used for tuning-record storage. Two
// tasks over structurally identical single-function modules share a key,
// which is what lets a fresh process reuse earlier tuning records.
func (t *Task) Key() string {
	return ir.SourceCode(t.Module)
}

// CreateTasks splits m into one task per function. Each task's module is
// a structural copy restricted to that function and the buffers it
// references.
func CreateTasks(m *ir.Module) ([]*Task, error) {
	if len(m.Funcs) == 0 {
		return nil, ErrEmptyModule
	}
	tasks := make([]*Task, 0, len(m.Funcs))
	for i, f := range m.Funcs {
		sub := &ir.Module{Funcs: []*ir.Func{m.Funcs[i]}, Buffers: buffersOf(m, f)}
		tasks = append(tasks, &Task{
			ID:       uuid.New(),
			FuncName: f.Name,
			Module:   sub.Copy(),
		})
	}
	return tasks, nil
}

// buffersOf returns the module buffers referenced by f, in module table
// order.
func buffersOf(m *ir.Module, f *ir.Func) []*ir.Buffer {
	used := map[string]bool{}
	for _, b := range ir.CollectBlocks(f.Root) {
		for _, st := range b.Stores {
			used[st.Buffer] = true
			markLoads(st.Value, used)
			for _, ix := range st.Indices {
				markLoads(ix, used)
			}
		}
	}
	for _, a := range f.Args {
		used[a] = true
	}
	var out []*ir.Buffer
	for _, b := range m.Buffers {
		if used[b.Name] {
			out = append(out, b)
		}
	}
	return out
}

func markLoads(e ir.Expr, used map[string]bool) {
	ir.RewriteExprs(e, func(e ir.Expr) ir.Expr {
		if load, ok := e.(*ir.Load); ok {
			used[load.Buffer] = true
		}
		return e
	})
}
