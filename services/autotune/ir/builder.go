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

import "fmt"

// Stage describes one elementwise pipeline stage: Name = Source * Scale +
// Offset. Scale 1 and Offset 0 produce a plain copy.
type Stage struct {
	Name   string
	Source string
	Scale  float64
	Offset float64
}

var axisNames = []string{"i", "j", "k", "l"}

// ElementwiseProgram lowers a chain of elementwise stages over a common
// rectangular domain into a single function. The first stage reads the
// input placeholder, later stages read their predecessor. Loop variables
// are i, j, k by dimension; block iteration variables are i0, i1, i2.
//
// This stands in for the frontend lowering collaborator: the classic
// two-stage fixture is B = A, C = B over a 32x32 domain.
func ElementwiseProgram(funcName, input string, shape []int, stages ...Stage) (*Module, error) {
	if len(shape) == 0 || len(shape) > len(axisNames) {
		return nil, fmt.Errorf("unsupported domain rank %d", len(shape))
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("at least one stage required")
	}
	m := &Module{}
	m.AddBuffer(&Buffer{Name: input, Shape: append([]int(nil), shape...), IsInput: true})
	for _, st := range stages {
		m.AddBuffer(&Buffer{Name: st.Name, Shape: append([]int(nil), shape...)})
	}

	root := &Block{Name: "root"}
	for _, st := range stages {
		root.Body = append(root.Body, elementwiseNest(st, shape))
	}
	last := stages[len(stages)-1].Name
	m.Funcs = append(m.Funcs, &Func{
		Name: funcName,
		Args: []string{input, last},
		Root: root,
	})
	return m, nil
}

func elementwiseNest(st Stage, shape []int) Node {
	iters := make([]IterVar, len(shape))
	binds := make([]Expr, len(shape))
	idx := make([]Expr, len(shape))
	for d := range shape {
		iters[d] = IterVar{Name: fmt.Sprintf("i%d", d)}
		binds[d] = &Var{Name: axisNames[d]}
		idx[d] = &Var{Name: iters[d].Name}
	}
	var value Expr = &Load{Buffer: st.Source, Indices: cloneExprs(idx)}
	if st.Scale != 0 && st.Scale != 1 {
		value = &Binary{Op: OpMul, LHS: value, RHS: &FloatImm{Value: st.Scale}}
	}
	if st.Offset != 0 {
		value = &Binary{Op: OpAdd, LHS: value, RHS: &FloatImm{Value: st.Offset}}
	}
	block := &Block{
		Name:     st.Name,
		IterVars: iters,
		Bindings: binds,
		Stores: []*Store{{
			Buffer:  st.Name,
			Indices: idx,
			Value:   value,
		}},
	}
	var n Node = block
	for d := len(shape) - 1; d >= 0; d-- {
		n = &Loop{Var: axisNames[d], Extent: shape[d], Body: []Node{n}}
	}
	return n
}

// MatmulProgram lowers C[i,j] = sum_k A[i,k] * B[k,j], the
// reduction-carrying fixture used by the unroll rule and rfactor tests.
func MatmulProgram(funcName string, m, n, k int) *Module {
	mod := &Module{}
	mod.AddBuffer(&Buffer{Name: "A", Shape: []int{m, k}, IsInput: true})
	mod.AddBuffer(&Buffer{Name: "B", Shape: []int{k, n}, IsInput: true})
	mod.AddBuffer(&Buffer{Name: "C", Shape: []int{m, n}})

	block := &Block{
		Name: "C",
		IterVars: []IterVar{
			{Name: "i0"},
			{Name: "i1"},
			{Name: "k0", Reduce: true},
		},
		Bindings: []Expr{&Var{Name: "i"}, &Var{Name: "j"}, &Var{Name: "k"}},
		Stores: []*Store{{
			Buffer:  "C",
			Indices: []Expr{&Var{Name: "i0"}, &Var{Name: "i1"}},
			Value: &Binary{
				Op:  OpMul,
				LHS: &Load{Buffer: "A", Indices: []Expr{&Var{Name: "i0"}, &Var{Name: "k0"}}},
				RHS: &Load{Buffer: "B", Indices: []Expr{&Var{Name: "k0"}, &Var{Name: "i1"}}},
			},
			Reduce: true,
		}},
	}
	nest := &Loop{Var: "i", Extent: m, Body: []Node{
		&Loop{Var: "j", Extent: n, Body: []Node{
			&Loop{Var: "k", Extent: k, Body: []Node{block}},
		}},
	}}
	mod.Funcs = append(mod.Funcs, &Func{
		Name: funcName,
		Args: []string{"A", "B", "C"},
		Root: &Block{Name: "root", Body: []Node{nest}},
	})
	return mod
}

func cloneExprs(es []Expr) []Expr {
	out := make([]Expr, len(es))
	for i, e := range es {
		out[i] = CopyExpr(e)
	}
	return out
}
