// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rules

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/tensortune/services/autotune/ir"
	"github.com/AleutianAI/tensortune/services/autotune/schedule"
	"github.com/AleutianAI/tensortune/services/autotune/trace"
)

func elementwise(t *testing.T) *ir.Module {
	t.Helper()
	m, err := ir.ElementwiseProgram("ew_main", "A", []int{8, 8},
		ir.Stage{Name: "B", Source: "A", Scale: 2},
		ir.Stage{Name: "C", Source: "B", Offset: 1},
	)
	require.NoError(t, err)
	return m
}

// TestAutoUnrollMatmulEligible verifies a reduction block is an
// applicable target.
func TestAutoUnrollMatmulEligible(t *testing.T) {
	s := schedule.New(ir.MatmulProgram("matmul_main", 8, 8, 8))
	r := NewAutoUnroll(nil, rand.New(rand.NewSource(1)))

	assert.Equal(t, ApplyAndSkipThisRule, r.Init(s))
	assert.Equal(t, 1, r.NumApplicable())
}

// TestAutoUnrollSerialElementwiseNotEligible verifies purely serial
// elementwise nests are skipped.
func TestAutoUnrollSerialElementwiseNotEligible(t *testing.T) {
	s := schedule.New(elementwise(t))
	r := NewAutoUnroll(nil, rand.New(rand.NewSource(1)))

	assert.Equal(t, CannotApply, r.Init(s))
	assert.Equal(t, 0, r.NumApplicable())
}

// TestAutoUnrollEligibleAfterParallel verifies a non-serial enclosing
// loop makes a block applicable.
func TestAutoUnrollEligibleAfterParallel(t *testing.T) {
	s := schedule.New(elementwise(t))
	loops, err := s.GetLoopsByName("B")
	require.NoError(t, err)
	require.NoError(t, s.Parallel(loops[0]))

	r := NewAutoUnroll(nil, rand.New(rand.NewSource(1)))
	assert.Equal(t, ApplyAndSkipThisRule, r.Init(s))
	assert.Equal(t, 1, r.NumApplicable())
}

// twoReductionFunc builds one function whose root encloses two
// reduction blocks, each summing a row of its own input.
func twoReductionFunc() *ir.Module {
	m := &ir.Module{}
	m.AddBuffer(&ir.Buffer{Name: "A", Shape: []int{4, 4}, IsInput: true})
	m.AddBuffer(&ir.Buffer{Name: "B", Shape: []int{4, 4}, IsInput: true})
	m.AddBuffer(&ir.Buffer{Name: "C", Shape: []int{4}})
	m.AddBuffer(&ir.Buffer{Name: "D", Shape: []int{4}})

	reduceNest := func(name, src string) ir.Node {
		block := &ir.Block{
			Name:     name,
			IterVars: []ir.IterVar{{Name: "i0"}, {Name: "k0", Reduce: true}},
			Bindings: []ir.Expr{&ir.Var{Name: "i"}, &ir.Var{Name: "k"}},
			Stores: []*ir.Store{{
				Buffer:  name,
				Indices: []ir.Expr{&ir.Var{Name: "i0"}},
				Value:   &ir.Load{Buffer: src, Indices: []ir.Expr{&ir.Var{Name: "i0"}, &ir.Var{Name: "k0"}}},
				Reduce:  true,
			}},
		}
		return &ir.Loop{Var: "i", Extent: 4, Body: []ir.Node{
			&ir.Loop{Var: "k", Extent: 4, Body: []ir.Node{block}},
		}}
	}

	m.Funcs = append(m.Funcs, &ir.Func{
		Name: "rowsum_main",
		Args: []string{"A", "B", "C", "D"},
		Root: &ir.Block{Name: "root", Body: []ir.Node{
			reduceNest("C", "A"),
			reduceNest("D", "B"),
		}},
	})
	return m
}

// TestAutoUnrollDedupesRootTargets verifies two eligible blocks under
// one root count as a single target, annotated once.
func TestAutoUnrollDedupesRootTargets(t *testing.T) {
	m := twoReductionFunc()
	s := schedule.New(m)
	r := NewAutoUnroll(nil, rand.New(rand.NewSource(1)))

	require.Equal(t, ApplyAndSkipThisRule, r.Init(s))
	require.Equal(t, 1, r.NumApplicable())

	require.NoError(t, r.Apply(0))
	v, ok := m.Funcs[0].Root.Annotation(UnrollMaxStepKey)
	require.True(t, ok)
	assert.Contains(t, DefaultUnrollOptions, v)

	require.ErrorIs(t, r.Apply(1), ErrInvalidApplyIndex)
}

// TestAutoUnrollOneTargetPerRoot verifies each eligible function root
// counts once and applies independently.
func TestAutoUnrollOneTargetPerRoot(t *testing.T) {
	m := ir.MatmulProgram("mm_a", 4, 4, 4)
	b := ir.MatmulProgram("mm_b", 4, 4, 4)
	m.Funcs = append(m.Funcs, b.Funcs...)

	s := schedule.New(m)
	r := NewAutoUnroll([]int{32}, rand.New(rand.NewSource(1)))
	require.Equal(t, ApplyAndSkipThisRule, r.Init(s))
	require.Equal(t, 2, r.NumApplicable())

	require.NoError(t, r.Apply(0))
	require.NoError(t, r.Apply(1))
	for _, f := range m.Funcs {
		v, ok := f.Root.Annotation(UnrollMaxStepKey)
		require.True(t, ok)
		assert.Equal(t, 32, v)
	}
}

// TestAutoUnrollApplyAnnotatesRoot verifies Apply writes the annotation
// on the function root with a value from the option set.
func TestAutoUnrollApplyAnnotatesRoot(t *testing.T) {
	m := ir.MatmulProgram("matmul_main", 8, 8, 8)
	s := schedule.New(m)
	r := NewAutoUnroll(nil, rand.New(rand.NewSource(7)))

	require.Equal(t, ApplyAndSkipThisRule, r.Init(s))
	require.NoError(t, r.Apply(0))

	v, ok := m.Funcs[0].Root.Annotation(UnrollMaxStepKey)
	require.True(t, ok)
	assert.Contains(t, DefaultUnrollOptions, v)
}

// TestAutoUnrollCustomOptions verifies an injected option set is used
// verbatim.
func TestAutoUnrollCustomOptions(t *testing.T) {
	m := ir.MatmulProgram("matmul_main", 4, 4, 4)
	s := schedule.New(m)
	r := NewAutoUnroll([]int{16}, rand.New(rand.NewSource(1)))

	require.Equal(t, ApplyAndSkipThisRule, r.Init(s))
	require.NoError(t, r.Apply(0))

	v, ok := m.Funcs[0].Root.Annotation(UnrollMaxStepKey)
	require.True(t, ok)
	assert.Equal(t, 16, v)
}

// TestAutoUnrollApplyOutOfRange verifies the index bound.
func TestAutoUnrollApplyOutOfRange(t *testing.T) {
	s := schedule.New(ir.MatmulProgram("matmul_main", 4, 4, 4))
	r := NewAutoUnroll(nil, rand.New(rand.NewSource(1)))
	require.Equal(t, ApplyAndSkipThisRule, r.Init(s))

	require.ErrorIs(t, r.Apply(-1), ErrInvalidApplyIndex)
	require.ErrorIs(t, r.Apply(r.NumApplicable()), ErrInvalidApplyIndex)
}

// TestAutoUnrollDeterministicWithSeed verifies the same seed yields the
// same annotation value.
func TestAutoUnrollDeterministicWithSeed(t *testing.T) {
	pick := func(seed int64) any {
		m := ir.MatmulProgram("matmul_main", 8, 8, 8)
		s := schedule.New(m)
		r := NewAutoUnroll(nil, rand.New(rand.NewSource(seed)))
		require.Equal(t, ApplyAndSkipThisRule, r.Init(s))
		require.NoError(t, r.Apply(0))
		v, ok := m.Funcs[0].Root.Annotation(UnrollMaxStepKey)
		require.True(t, ok)
		return v
	}
	assert.Equal(t, pick(42), pick(42))
}

// TestAutoUnrollApplyIsReplayed verifies the annotation travels through
// the trace.
func TestAutoUnrollApplyIsReplayed(t *testing.T) {
	pristine := ir.MatmulProgram("matmul_main", 8, 8, 8)
	s := schedule.New(pristine.Copy())
	r := NewAutoUnroll([]int{32}, rand.New(rand.NewSource(1)))
	require.Equal(t, ApplyAndSkipThisRule, r.Init(s))
	require.NoError(t, r.Apply(0))

	replayed := schedule.New(pristine.Copy())
	_, err := trace.Replay(s.Trace(), replayed)
	require.NoError(t, err)
	assert.Equal(t, ir.SourceCode(s.Module()), ir.SourceCode(replayed.Module()))

	v, ok := replayed.Module().Funcs[0].Root.Annotation(UnrollMaxStepKey)
	require.True(t, ok)
	assert.Equal(t, 32, v)
}

// TestApplyTypeString covers the enum labels.
func TestApplyTypeString(t *testing.T) {
	assert.Equal(t, "CannotApply", CannotApply.String())
	assert.Equal(t, "ApplyAndSkipThisRule", ApplyAndSkipThisRule.String())
	assert.Equal(t, "ApplyAndPruneOtherRules", ApplyAndPruneOtherRules.String())
}
