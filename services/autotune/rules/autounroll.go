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
	"fmt"
	"math/rand"

	"github.com/AleutianAI/tensortune/services/autotune/ir"
	"github.com/AleutianAI/tensortune/services/autotune/schedule"
	"github.com/AleutianAI/tensortune/services/autotune/trace"
)

// UnrollMaxStepKey is the annotation the lowering stage reads to bound
// automatic unrolling.
const UnrollMaxStepKey = "auto_unroll_max_step"

// DefaultUnrollOptions are the candidate unroll limits; 0 disables
// unrolling for the chosen function.
var DefaultUnrollOptions = []int{0, 8, 32, 128}

// AutoUnroll annotates a function's root block with a maximum unroll
// step picked from a fixed option set. A block is an applicable target
// when it carries a reduction axis or sits under a non-serial loop;
// pure serial elementwise nests gain nothing from unrolling pressure.
//
// The random choice comes from the injected source, so a search driver
// seeding its rules deterministically gets reproducible schedules.
type AutoUnroll struct {
	options []int
	rng     *rand.Rand

	sched      *schedule.Schedule
	applicable []ir.Node
}

// NewAutoUnroll builds the rule with the given option set and random
// source. A nil or empty options slice falls back to
// DefaultUnrollOptions.
func NewAutoUnroll(options []int, rng *rand.Rand) *AutoUnroll {
	if len(options) == 0 {
		options = DefaultUnrollOptions
	}
	return &AutoUnroll{
		options: append([]int(nil), options...),
		rng:     rng,
	}
}

// Name implements Rule.
func (r *AutoUnroll) Name() string { return "AutoUnroll" }

// Init implements Rule. It resolves every leaf block to its enclosing
// root block and collects each distinct applicable root once, so a
// function with several eligible blocks under one root contributes a
// single target.
func (r *AutoUnroll) Init(s *schedule.Schedule) ApplyType {
	r.sched = s
	r.applicable = nil
	seen := map[ir.Node]bool{}
	for _, blk := range s.GetAllBlocks() {
		root, err := s.GetRootBlock(blk)
		if err != nil || seen[root] {
			continue
		}
		seen[root] = true
		if r.meetCondition(root) {
			r.applicable = append(r.applicable, root)
		}
	}
	if len(r.applicable) == 0 {
		return CannotApply
	}
	return ApplyAndSkipThisRule
}

// NumApplicable implements Rule.
func (r *AutoUnroll) NumApplicable() int { return len(r.applicable) }

// Apply implements Rule. It annotates the index-th applicable root
// block.
func (r *AutoUnroll) Apply(index int) error {
	if index < 0 || index >= len(r.applicable) {
		return fmt.Errorf("%w: %d of %d", ErrInvalidApplyIndex, index, len(r.applicable))
	}
	step := r.options[r.rng.Intn(len(r.options))]
	return r.sched.Annotate(r.applicable[index], UnrollMaxStepKey, trace.IntAttr(step))
}

// meetCondition reports whether the root's subtree carries a reduction
// axis or a non-serial loop.
func (r *AutoUnroll) meetCondition(root ir.Node) bool {
	found := false
	ir.WalkNodes(root, func(n ir.Node) bool {
		switch n := n.(type) {
		case *ir.Block:
			for _, iv := range n.IterVars {
				if iv.Reduce {
					found = true
				}
			}
		case *ir.Loop:
			if n.Kind != ir.ForSerial {
				found = true
			}
		}
		return !found
	})
	return found
}

var _ Rule = (*AutoUnroll)(nil)
