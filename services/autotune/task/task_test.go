// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package task

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/tensortune/services/autotune/ir"
)

func twoFuncModule(t *testing.T) *ir.Module {
	t.Helper()
	p1 := ir.MatmulProgram("matmul_main", 4, 4, 4)
	p2, err := ir.ElementwiseProgram("ew_main", "X", []int{8, 8},
		ir.Stage{Name: "Y", Source: "X", Scale: 2})
	require.NoError(t, err)
	return &ir.Module{
		Funcs:   append(append([]*ir.Func(nil), p1.Funcs...), p2.Funcs...),
		Buffers: append(append([]*ir.Buffer(nil), p1.Buffers...), p2.Buffers...),
	}
}

// TestCreateTasksEmptyModule verifies the empty-module error.
func TestCreateTasksEmptyModule(t *testing.T) {
	_, err := CreateTasks(&ir.Module{})
	require.ErrorIs(t, err, ErrEmptyModule)
}

// TestCreateTasksOnePerFunction verifies each function becomes one task
// carrying only the buffers it touches.
func TestCreateTasksOnePerFunction(t *testing.T) {
	tasks, err := CreateTasks(twoFuncModule(t))
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	mm := tasks[0]
	assert.Equal(t, "matmul_main", mm.FuncName)
	require.Len(t, mm.Module.Funcs, 1)
	assert.NotNil(t, mm.Module.Buffer("A"))
	assert.NotNil(t, mm.Module.Buffer("B"))
	assert.NotNil(t, mm.Module.Buffer("C"))
	assert.Nil(t, mm.Module.Buffer("X"), "foreign buffer leaked into task")

	ew := tasks[1]
	assert.Equal(t, "ew_main", ew.FuncName)
	assert.NotNil(t, ew.Module.Buffer("X"))
	assert.NotNil(t, ew.Module.Buffer("Y"))
	assert.Nil(t, ew.Module.Buffer("A"))

	assert.NotEqual(t, uuid.Nil, mm.ID)
	assert.NotEqual(t, mm.ID, ew.ID)
}

// TestTaskModulesAreCopies verifies mutating a task leaves the source
// module intact.
func TestTaskModulesAreCopies(t *testing.T) {
	src := twoFuncModule(t)
	before := ir.SourceCode(src)

	tasks, err := CreateTasks(src)
	require.NoError(t, err)
	tasks[0].Module.Funcs[0].Root.Body[0].(*ir.Loop).Extent = 99

	assert.Equal(t, before, ir.SourceCode(src))
}

// TestTaskKeyStable verifies structurally identical tasks share a key
// and different ones do not.
func TestTaskKeyStable(t *testing.T) {
	t1, err := CreateTasks(ir.MatmulProgram("matmul_main", 4, 4, 4))
	require.NoError(t, err)
	t2, err := CreateTasks(ir.MatmulProgram("matmul_main", 4, 4, 4))
	require.NoError(t, err)
	t3, err := CreateTasks(ir.MatmulProgram("matmul_main", 8, 8, 8))
	require.NoError(t, err)

	assert.Equal(t, t1[0].Key(), t2[0].Key())
	assert.NotEqual(t, t1[0].Key(), t3[0].Key())
}
