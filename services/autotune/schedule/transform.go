// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package schedule

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/tensortune/services/autotune/ir"
)

// applySplit splits l into nested loops per factors. One factor may be
// -1 and is inferred; the product must equal the extent exactly.
func (s *Schedule) applySplit(l *ir.Loop, factors []int) ([]*ir.Loop, error) {
	if len(factors) < 2 {
		return nil, fmt.Errorf("%w: split needs at least two factors, got %d", ErrTransform, len(factors))
	}
	resolved := append([]int(nil), factors...)
	inferAt := -1
	known := 1
	for i, f := range resolved {
		switch {
		case f == -1:
			if inferAt >= 0 {
				return nil, fmt.Errorf("%w: more than one inferred split factor", ErrTransform)
			}
			inferAt = i
		case f >= 1:
			known *= f
		default:
			return nil, fmt.Errorf("%w: split factor %d", ErrTransform, f)
		}
	}
	if inferAt >= 0 {
		if known == 0 || l.Extent%known != 0 {
			return nil, fmt.Errorf("%w: cannot infer split factor: %d %% %d != 0",
				ErrTransform, l.Extent, known)
		}
		resolved[inferAt] = l.Extent / known
		known = l.Extent
	}
	if known != l.Extent {
		return nil, fmt.Errorf("%w: split factors %v do not cover extent %d",
			ErrTransform, factors, l.Extent)
	}

	// Build the nest inner-to-outer; the original body lands at the
	// innermost level.
	newLoops := make([]*ir.Loop, len(resolved))
	for i := range resolved {
		newLoops[i] = &ir.Loop{
			Var:    s.names.Fresh(fmt.Sprintf("%s_%d", l.Var, i)),
			Extent: resolved[i],
			Kind:   ir.ForSerial,
		}
	}
	newLoops[len(newLoops)-1].Body = l.Body
	for i := len(newLoops) - 2; i >= 0; i-- {
		newLoops[i].Body = []ir.Node{newLoops[i+1]}
	}

	// old var = ((v0 * e1 + v1) * e2 + v2) ...
	var repl ir.Expr = &ir.Var{Name: newLoops[0].Var}
	for i := 1; i < len(newLoops); i++ {
		repl = &ir.Binary{
			Op:  ir.OpAdd,
			LHS: &ir.Binary{Op: ir.OpMul, LHS: repl, RHS: &ir.IntImm{Value: resolved[i]}},
			RHS: &ir.Var{Name: newLoops[i].Var},
		}
	}
	ir.SubstVar(newLoops[0], l.Var, repl)

	parent, idx, err := s.parentOf(l)
	if err != nil {
		return nil, err
	}
	ir.ReplaceChild(parent, idx, newLoops[0])
	return newLoops, nil
}

// applyFuse collapses a directly nested loop chain into a single loop.
func (s *Schedule) applyFuse(chain []*ir.Loop) (*ir.Loop, error) {
	if err := checkChain(chain); err != nil {
		return nil, err
	}
	if len(chain) < 2 {
		return nil, fmt.Errorf("%w: fuse needs at least two loops", ErrTransform)
	}

	extent := 1
	varNames := make([]string, len(chain))
	for i, l := range chain {
		extent *= l.Extent
		varNames[i] = l.Var
	}
	fused := &ir.Loop{
		Var:    s.names.Fresh(strings.Join(varNames, "_") + "_fused"),
		Extent: extent,
		Kind:   ir.ForSerial,
		Body:   chain[len(chain)-1].Body,
	}

	// v_i = (fused / stride_i) % extent_i, with the div elided at
	// stride 1 and the mod elided on the outermost axis.
	stride := 1
	for i := len(chain) - 1; i >= 0; i-- {
		var repl ir.Expr = &ir.Var{Name: fused.Var}
		if stride > 1 {
			repl = &ir.Binary{Op: ir.OpDiv, LHS: repl, RHS: &ir.IntImm{Value: stride}}
		}
		if i > 0 {
			repl = &ir.Binary{Op: ir.OpMod, LHS: repl, RHS: &ir.IntImm{Value: chain[i].Extent}}
		}
		ir.SubstVar(fused, chain[i].Var, repl)
		stride *= chain[i].Extent
	}

	parent, idx, err := s.parentOf(chain[0])
	if err != nil {
		return nil, err
	}
	ir.ReplaceChild(parent, idx, fused)
	return fused, nil
}

// applyReorder places the selected loops, in the given order, at the
// positions they currently occupy within their common nest chain. Loop
// bodies stay attached to nest depths, not to loop headers.
func (s *Schedule) applyReorder(sel []*ir.Loop) error {
	if len(sel) == 0 {
		return fmt.Errorf("%w: empty loop list", ErrTransform)
	}
	if len(sel) == 1 {
		return nil
	}
	for i, a := range sel {
		for _, b := range sel[i+1:] {
			if a == b {
				return fmt.Errorf("%w: duplicate loop %q in reorder", ErrTransform, a.Var)
			}
		}
	}

	outer, inner, err := extremes(sel)
	if err != nil {
		return err
	}

	// Collect the chain from outer down to inner; every link on the way
	// must be a loop's sole statement or the reorder would relocate
	// unrelated siblings.
	var chain []*ir.Loop
	cur := outer
	for {
		chain = append(chain, cur)
		if cur == inner {
			break
		}
		if len(cur.Body) != 1 {
			return fmt.Errorf("%w: loop %q carries statements besides the nest", ErrTransform, cur.Var)
		}
		next, ok := cur.Body[0].(*ir.Loop)
		if !ok {
			return fmt.Errorf("%w: loops are not in one nest chain", ErrTransform)
		}
		cur = next
	}

	inSel := make(map[*ir.Loop]bool, len(sel))
	for _, l := range sel {
		inSel[l] = true
	}
	var positions []int
	for i, l := range chain {
		if inSel[l] {
			positions = append(positions, i)
		}
	}
	if len(positions) != len(sel) {
		return fmt.Errorf("%w: loops are not in one nest chain", ErrTransform)
	}

	newChain := append([]*ir.Loop(nil), chain...)
	for k, pos := range positions {
		newChain[pos] = sel[k]
	}

	parent, idx, err := s.parentOf(chain[0])
	if err != nil {
		return err
	}
	innerBody := chain[len(chain)-1].Body
	for i := 0; i < len(newChain)-1; i++ {
		newChain[i].Body = []ir.Node{newChain[i+1]}
	}
	newChain[len(newChain)-1].Body = innerBody
	ir.ReplaceChild(parent, idx, newChain[0])
	return nil
}

// extremes returns the loop containing all others and the loop contained
// by all others.
func extremes(sel []*ir.Loop) (outer, inner *ir.Loop, err error) {
	for _, cand := range sel {
		isOuter, isInner := true, true
		for _, other := range sel {
			if other == cand {
				continue
			}
			if !ir.ContainsNode(cand, other) {
				isOuter = false
			}
			if !ir.ContainsNode(other, cand) {
				isInner = false
			}
		}
		if isOuter {
			outer = cand
		}
		if isInner {
			inner = cand
		}
	}
	if outer == nil || inner == nil {
		return nil, nil, fmt.Errorf("%w: loops are not in one nest chain", ErrTransform)
	}
	return outer, inner, nil
}
