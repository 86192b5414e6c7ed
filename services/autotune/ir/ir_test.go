// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ir

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSourceCodeDeterministic verifies repeated printing of the same
// module yields identical text.
func TestSourceCodeDeterministic(t *testing.T) {
	m := MatmulProgram("matmul_main", 4, 5, 6)
	first := SourceCode(m)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, SourceCode(m))
	}
}

// TestCopyPrintsIdentically verifies a structural copy prints the same
// source as the original.
func TestCopyPrintsIdentically(t *testing.T) {
	m, err := ElementwiseProgram("ew_main", "A", []int{8, 8},
		Stage{Name: "B", Source: "A", Scale: 2},
		Stage{Name: "C", Source: "B", Offset: 1},
	)
	require.NoError(t, err)

	cp := m.Copy()
	if diff := cmp.Diff(SourceCode(m), SourceCode(cp)); diff != "" {
		t.Errorf("copy prints differently (-orig +copy):\n%s", diff)
	}
}

// TestCopyIsIndependent verifies mutating a copy leaves the original
// untouched.
func TestCopyIsIndependent(t *testing.T) {
	m := MatmulProgram("matmul_main", 4, 4, 4)
	before := SourceCode(m)

	cp := m.Copy()
	cp.Funcs[0].Root.Body[0].(*Loop).Extent = 99
	cp.Buffers[0].Shape[0] = 99
	cp.Funcs[0].Root.Annotate("auto_unroll_max_step", 8)

	assert.Equal(t, before, SourceCode(m))
	assert.NotEqual(t, before, SourceCode(cp))
}

// TestExecuteElementwise verifies the interpreter over a two-stage
// elementwise pipeline: B = A * 2, C = B + 1.
func TestExecuteElementwise(t *testing.T) {
	m, err := ElementwiseProgram("ew_main", "A", []int{2, 3},
		Stage{Name: "B", Source: "A", Scale: 2},
		Stage{Name: "C", Source: "B", Offset: 1},
	)
	require.NoError(t, err)

	a := []float64{1, 2, 3, 4, 5, 6}
	out, err := m.Execute(map[string][]float64{"A": a})
	require.NoError(t, err)

	for i, v := range a {
		assert.Equal(t, v*2, out["B"][i], "B[%d]", i)
		assert.Equal(t, v*2+1, out["C"][i], "C[%d]", i)
	}
}

// TestExecuteMatmul verifies reduction stores accumulate over
// zero-initialized output buffers.
func TestExecuteMatmul(t *testing.T) {
	const mm, nn, kk = 2, 3, 4
	m := MatmulProgram("matmul_main", mm, nn, kk)

	a := make([]float64, mm*kk)
	b := make([]float64, kk*nn)
	for i := range a {
		a[i] = float64(i + 1)
	}
	for i := range b {
		b[i] = float64(i%5) - 2
	}
	out, err := m.Execute(map[string][]float64{"A": a, "B": b})
	require.NoError(t, err)

	for i := 0; i < mm; i++ {
		for j := 0; j < nn; j++ {
			var want float64
			for k := 0; k < kk; k++ {
				want += a[i*kk+k] * b[k*nn+j]
			}
			assert.InDelta(t, want, out["C"][i*nn+j], 1e-9, "C[%d,%d]", i, j)
		}
	}
}

// TestExecuteMissingInput verifies execution fails when an input buffer
// is not supplied.
func TestExecuteMissingInput(t *testing.T) {
	m := MatmulProgram("matmul_main", 2, 2, 2)
	_, err := m.Execute(map[string][]float64{"A": make([]float64, 4)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"B"`)
}

// TestExecuteWrongInputSize verifies a length check on supplied inputs.
func TestExecuteWrongInputSize(t *testing.T) {
	m := MatmulProgram("matmul_main", 2, 2, 2)
	_, err := m.Execute(map[string][]float64{
		"A": make([]float64, 3),
		"B": make([]float64, 4),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "elements")
}

// TestNameStateFresh verifies collision-free name generation.
func TestNameStateFresh(t *testing.T) {
	ns := NewNameState()
	assert.Equal(t, "i", ns.Fresh("i"))
	assert.Equal(t, "i_1", ns.Fresh("i"))
	assert.Equal(t, "i_2", ns.Fresh("i"))
	assert.Equal(t, "j", ns.Fresh("j"))
}

// TestNameStateSeedFromModule verifies seeding marks loop vars, block
// names, iter vars, and buffer names as taken.
func TestNameStateSeedFromModule(t *testing.T) {
	m := MatmulProgram("matmul_main", 2, 2, 2)
	ns := NewNameState()
	ns.SeedFromModule(m)

	for _, taken := range []string{"i", "j", "k", "i0", "i1", "k0", "A", "B", "C", "matmul_main"} {
		assert.NotEqual(t, taken, ns.Fresh(taken), "%q should be taken", taken)
	}
}

// TestBlockAnnotate verifies annotation set and replace semantics.
func TestBlockAnnotate(t *testing.T) {
	b := &Block{Name: "root"}
	b.Annotate("auto_unroll_max_step", 8)
	b.Annotate("auto_unroll_max_step", 32)

	v, ok := b.Annotation("auto_unroll_max_step")
	require.True(t, ok)
	assert.Equal(t, 32, v)
	assert.Len(t, b.Annotations, 1)

	_, ok = b.Annotation("missing")
	assert.False(t, ok)
}

// TestPrinterRendersLoopKinds verifies scheduled loop headers appear in
// printed output.
func TestPrinterRendersLoopKinds(t *testing.T) {
	m := MatmulProgram("matmul_main", 2, 2, 2)
	outer := m.Funcs[0].Root.Body[0].(*Loop)
	outer.Kind = ForParallel
	mid := outer.Body[0].(*Loop)
	mid.Kind = ForVectorized
	mid.VectorFactor = 4
	inner := mid.Body[0].(*Loop)
	inner.Kind = ForBound
	inner.ThreadAxis = "threadIdx.x"

	src := SourceCode(m)
	assert.True(t, strings.Contains(src, "parallel for (i, 0, 2)"), "parallel header:\n%s", src)
	assert.True(t, strings.Contains(src, "vectorize(4) for (j, 0, 2)"), "vectorize header:\n%s", src)
	assert.True(t, strings.Contains(src, "bind(threadIdx.x) for (k, 0, 2)"), "bind header:\n%s", src)
}
