// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package schedule implements the transformation engine: a Schedule
// wraps one ir.Module, applies loop and block primitives to it in place,
// and records every applied primitive into its own trace so the final
// schedule can be serialized and replayed elsewhere.
package schedule

import (
	"fmt"

	"github.com/AleutianAI/tensortune/services/autotune/ir"
	"github.com/AleutianAI/tensortune/services/autotune/trace"
)

// Schedule is one transformation session over a module. It satisfies
// trace.Session, so a serialized trace replays against a fresh Schedule
// built over a structural copy of the same module.
//
// All naming decisions go through a per-session NameState seeded from the
// module, which is what makes replayed names identical to the originals.
//
// Thread Safety: not safe for concurrent use.
type Schedule struct {
	module *ir.Module
	names  *ir.NameState
	trace  *trace.Trace
}

// New builds a session over m. The module is mutated in place by every
// primitive; callers wanting to keep the unscheduled form must pass a
// copy.
func New(m *ir.Module) *Schedule {
	ns := ir.NewNameState()
	ns.SeedFromModule(m)
	return &Schedule{module: m, names: ns, trace: trace.New()}
}

// Module returns the module being transformed.
func (s *Schedule) Module() *ir.Module { return s.module }

// Trace returns the session's own step log.
func (s *Schedule) Trace() *trace.Trace { return s.trace }

// record appends a step to the session trace. The step kinds recorded
// here are always registered with matching shapes, so a failed append
// indicates a defect in this package rather than bad user input.
func (s *Schedule) record(kind string, inputs []trace.Input, attrs []trace.Attr, outputs []ir.Node) {
	if err := s.trace.Append(trace.NewStep(kind, inputs, attrs, outputs)); err != nil {
		panic(fmt.Sprintf("schedule: recording %s: %v", kind, err))
	}
}

// ---- lookups ----

// GetAllBlocks returns every leaf schedule block in the module, in
// function order then left-to-right.
func (s *Schedule) GetAllBlocks() []ir.Node {
	var out []ir.Node
	for _, f := range s.module.Funcs {
		for _, b := range ir.CollectBlocks(f.Root) {
			out = append(out, b)
		}
	}
	s.record("GetAllBlocks", nil, nil, out)
	return out
}

// GetBlock returns the leaf block with the given name.
func (s *Schedule) GetBlock(blockName string) (ir.Node, error) {
	b, err := s.findBlock(blockName)
	if err != nil {
		return nil, err
	}
	s.record("GetBlock", nil,
		[]trace.Attr{{Name: "block_name", Value: trace.StringAttr(blockName)}},
		[]ir.Node{b})
	return b, nil
}

// GetLoops returns the loops enclosing block, outermost first.
func (s *Schedule) GetLoops(block ir.Node) ([]ir.Node, error) {
	b, err := s.asLeafBlock(block)
	if err != nil {
		return nil, err
	}
	loops, err := s.loopsOf(b)
	if err != nil {
		return nil, err
	}
	out := loopNodes(loops)
	s.record("GetLoops",
		[]trace.Input{{Name: "block", Handles: []ir.Node{block}}},
		nil, out)
	return out, nil
}

// GetLoopsByName returns the loops enclosing the named block, outermost
// first.
func (s *Schedule) GetLoopsByName(blockName string) ([]ir.Node, error) {
	b, err := s.findBlock(blockName)
	if err != nil {
		return nil, err
	}
	loops, err := s.loopsOf(b)
	if err != nil {
		return nil, err
	}
	out := loopNodes(loops)
	s.record("GetLoopsWithName", nil,
		[]trace.Attr{{Name: "block_name", Value: trace.StringAttr(blockName)}},
		out)
	return out, nil
}

// GetRootBlock returns the root block of the function whose body
// contains expr.
func (s *Schedule) GetRootBlock(expr ir.Node) (ir.Node, error) {
	f := s.funcContaining(expr)
	if f == nil {
		return nil, fmt.Errorf("%w: node is not part of this module", ErrBadHandle)
	}
	s.record("GetRootBlock",
		[]trace.Input{{Name: "expr", Handles: []ir.Node{expr}}},
		nil, []ir.Node{f.Root})
	return f.Root, nil
}

// ---- loop restructuring ----

// Split splits loop into len(factors) nested loops. At most one factor
// may be -1, which is inferred; the factors must multiply to exactly the
// loop extent.
func (s *Schedule) Split(loop ir.Node, factors []int) ([]ir.Node, error) {
	l, err := s.asLoop(loop)
	if err != nil {
		return nil, err
	}
	newLoops, err := s.applySplit(l, factors)
	if err != nil {
		return nil, err
	}
	out := loopNodes(newLoops)
	s.record("Split",
		[]trace.Input{{Name: "loop", Handles: []ir.Node{loop}}},
		[]trace.Attr{{Name: "factors", Value: trace.IntsAttr(factors)}},
		out)
	return out, nil
}

// SplitByName splits the loopIndex-th loop enclosing the named block.
func (s *Schedule) SplitByName(blockName string, loopIndex int, factors []int) ([]ir.Node, error) {
	l, err := s.loopByIndex(blockName, loopIndex)
	if err != nil {
		return nil, err
	}
	newLoops, err := s.applySplit(l, factors)
	if err != nil {
		return nil, err
	}
	out := loopNodes(newLoops)
	s.record("SplitWithName", nil,
		[]trace.Attr{
			{Name: "block_name", Value: trace.StringAttr(blockName)},
			{Name: "loop_index", Value: trace.IntAttr(loopIndex)},
			{Name: "factors", Value: trace.IntsAttr(factors)},
		}, out)
	return out, nil
}

// Fuse collapses a chain of directly nested loops into one loop whose
// extent is the product of the chain's extents.
func (s *Schedule) Fuse(loops []ir.Node) (ir.Node, error) {
	chain, err := s.asLoopChain(loops)
	if err != nil {
		return nil, err
	}
	fused, err := s.applyFuse(chain)
	if err != nil {
		return nil, err
	}
	s.record("Fuse",
		[]trace.Input{{Name: "loops", Handles: loops}},
		nil, []ir.Node{fused})
	return fused, nil
}

// FuseByName fuses the loops at the given indices enclosing the named
// block.
func (s *Schedule) FuseByName(blockName string, loopsIndex []int) (ir.Node, error) {
	chain, err := s.loopsByIndices(blockName, loopsIndex)
	if err != nil {
		return nil, err
	}
	fused, err := s.applyFuse(chain)
	if err != nil {
		return nil, err
	}
	s.record("FuseWithName", nil,
		[]trace.Attr{
			{Name: "block_name", Value: trace.StringAttr(blockName)},
			{Name: "loops_index", Value: trace.IntsAttr(loopsIndex)},
		}, []ir.Node{fused})
	return fused, nil
}

// FuseByBlock fuses the loops at the given indices enclosing block.
func (s *Schedule) FuseByBlock(block ir.Node, loopsIndex []int) (ir.Node, error) {
	b, err := s.asLeafBlock(block)
	if err != nil {
		return nil, err
	}
	chain, err := s.loopsByIndices(b.Name, loopsIndex)
	if err != nil {
		return nil, err
	}
	fused, err := s.applyFuse(chain)
	if err != nil {
		return nil, err
	}
	s.record("FuseWithBlock",
		[]trace.Input{{Name: "block", Handles: []ir.Node{block}}},
		[]trace.Attr{{Name: "loops_index", Value: trace.IntsAttr(loopsIndex)}},
		[]ir.Node{fused})
	return fused, nil
}

// Reorder rearranges loops within one nest chain so the given loops
// appear in the given order at their original chain positions.
func (s *Schedule) Reorder(loops []ir.Node) error {
	sel, err := s.asLoops(loops)
	if err != nil {
		return err
	}
	if err := s.applyReorder(sel); err != nil {
		return err
	}
	s.record("Reorder",
		[]trace.Input{{Name: "loops", Handles: loops}},
		nil, nil)
	return nil
}

// ReorderByBlock reorders the loops at the given indices enclosing block.
func (s *Schedule) ReorderByBlock(block ir.Node, loopsIndex []int) error {
	b, err := s.asLeafBlock(block)
	if err != nil {
		return err
	}
	sel, err := s.loopsByIndices(b.Name, loopsIndex)
	if err != nil {
		return err
	}
	if err := s.applyReorder(sel); err != nil {
		return err
	}
	s.record("ReorderWithBlock",
		[]trace.Input{{Name: "block", Handles: []ir.Node{block}}},
		[]trace.Attr{{Name: "loops_index", Value: trace.IntsAttr(loopsIndex)}},
		nil)
	return nil
}

// ReorderByName reorders the loops at the given indices enclosing the
// named block.
func (s *Schedule) ReorderByName(blockName string, loopsIndex []int) error {
	sel, err := s.loopsByIndices(blockName, loopsIndex)
	if err != nil {
		return err
	}
	if err := s.applyReorder(sel); err != nil {
		return err
	}
	s.record("ReorderWithName", nil,
		[]trace.Attr{
			{Name: "block_name", Value: trace.StringAttr(blockName)},
			{Name: "loops_index", Value: trace.IntsAttr(loopsIndex)},
		}, nil)
	return nil
}

// ---- iteration-order marking ----

// Parallel marks loop for parallel execution.
func (s *Schedule) Parallel(loop ir.Node) error {
	l, err := s.asLoop(loop)
	if err != nil {
		return err
	}
	l.Kind = ir.ForParallel
	s.record("Parallel",
		[]trace.Input{{Name: "loop", Handles: []ir.Node{loop}}},
		nil, nil)
	return nil
}

// Vectorize marks loop for vectorized execution with the given lane
// factor.
func (s *Schedule) Vectorize(loop ir.Node, factor int) error {
	l, err := s.asLoop(loop)
	if err != nil {
		return err
	}
	if factor <= 0 {
		return fmt.Errorf("%w: vectorize factor %d must be positive", ErrTransform, factor)
	}
	l.Kind = ir.ForVectorized
	l.VectorFactor = factor
	s.record("Vectorize",
		[]trace.Input{{Name: "loop", Handles: []ir.Node{loop}}},
		[]trace.Attr{{Name: "factor", Value: trace.IntAttr(factor)}},
		nil)
	return nil
}

// Unroll marks loop for full unrolling.
func (s *Schedule) Unroll(loop ir.Node) error {
	l, err := s.asLoop(loop)
	if err != nil {
		return err
	}
	l.Kind = ir.ForUnrolled
	s.record("Unroll",
		[]trace.Input{{Name: "loop", Handles: []ir.Node{loop}}},
		nil, nil)
	return nil
}

// Bind binds loop to a GPU thread axis such as "threadIdx.x".
func (s *Schedule) Bind(loop ir.Node, threadAxis string) error {
	l, err := s.asLoop(loop)
	if err != nil {
		return err
	}
	if threadAxis == "" {
		return fmt.Errorf("%w: empty thread axis", ErrTransform)
	}
	l.Kind = ir.ForBound
	l.ThreadAxis = threadAxis
	s.record("Bind",
		[]trace.Input{{Name: "loop", Handles: []ir.Node{loop}}},
		[]trace.Attr{{Name: "thread_axis", Value: trace.StringAttr(threadAxis)}},
		nil)
	return nil
}

// ---- block placement and materialization ----

// ComputeAt moves block's computation under loop, substituting the outer
// producer loop variables with the consumer's.
func (s *Schedule) ComputeAt(block, loop ir.Node) error {
	if err := s.applyComputeAt(block, loop, false); err != nil {
		return err
	}
	s.record("ComputeAt",
		[]trace.Input{
			{Name: "block", Handles: []ir.Node{block}},
			{Name: "loop", Handles: []ir.Node{loop}},
		}, nil, nil)
	return nil
}

// SimpleComputeAt is ComputeAt without the producer/consumer extent
// checks; it trusts the caller that the placement is legal.
func (s *Schedule) SimpleComputeAt(block, loop ir.Node) error {
	if err := s.applyComputeAt(block, loop, true); err != nil {
		return err
	}
	s.record("SimpleComputeAt",
		[]trace.Input{
			{Name: "block", Handles: []ir.Node{block}},
			{Name: "loop", Handles: []ir.Node{loop}},
		}, nil, nil)
	return nil
}

// ComputeInline removes block and substitutes its stored expression into
// every load of its buffer.
func (s *Schedule) ComputeInline(block ir.Node) error {
	if err := s.applyComputeInline(block); err != nil {
		return err
	}
	s.record("ComputeInline",
		[]trace.Input{{Name: "schedule_block", Handles: []ir.Node{block}}},
		nil, nil)
	return nil
}

// CacheRead stages the readBufferIndex-th buffer read by block into a new
// cache buffer in the given memory and redirects block's loads to it. It
// returns the new cache-fill block.
func (s *Schedule) CacheRead(block ir.Node, readBufferIndex int, memoryType string) (ir.Node, error) {
	cache, err := s.applyCacheRead(block, readBufferIndex, memoryType)
	if err != nil {
		return nil, err
	}
	s.record("CacheRead",
		[]trace.Input{{Name: "block", Handles: []ir.Node{block}}},
		[]trace.Attr{
			{Name: "read_buffer_index", Value: trace.IntAttr(readBufferIndex)},
			{Name: "memory_type", Value: trace.StringAttr(memoryType)},
		}, []ir.Node{cache})
	return cache, nil
}

// CacheWrite redirects block's writeBufferIndex-th store into a new cache
// buffer in the given memory and appends a write-back nest. It returns
// the new write-back block.
func (s *Schedule) CacheWrite(block ir.Node, writeBufferIndex int, memoryType string) (ir.Node, error) {
	cache, err := s.applyCacheWrite(block, writeBufferIndex, memoryType)
	if err != nil {
		return nil, err
	}
	s.record("CacheWrite",
		[]trace.Input{{Name: "block", Handles: []ir.Node{block}}},
		[]trace.Attr{
			{Name: "write_buffer_index", Value: trace.IntAttr(writeBufferIndex)},
			{Name: "memory_type", Value: trace.StringAttr(memoryType)},
		}, []ir.Node{cache})
	return cache, nil
}

// SyncThreads inserts a synchronization barrier directly before node, or
// after it when afterNode is set.
func (s *Schedule) SyncThreads(node ir.Node, afterNode bool) error {
	if err := s.applySyncThreads(node, afterNode); err != nil {
		return err
	}
	s.record("SyncThreads",
		[]trace.Input{{Name: "ir_node", Handles: []ir.Node{node}}},
		[]trace.Attr{{Name: "after_node", Value: trace.BoolAttr(afterNode)}},
		nil)
	return nil
}

// SetBuffer assigns the memory type of the buffer block writes. With
// fixed set, a buffer already placed in a different memory is an error
// instead of being moved.
func (s *Schedule) SetBuffer(block ir.Node, memoryType string, fixed bool) error {
	b, err := s.asLeafBlock(block)
	if err != nil {
		return err
	}
	if len(b.Stores) == 0 {
		return fmt.Errorf("%w: block %q writes no buffer", ErrTransform, b.Name)
	}
	buf := s.module.Buffer(b.Stores[0].Buffer)
	if buf == nil {
		return fmt.Errorf("%w: buffer %q", ErrBadHandle, b.Stores[0].Buffer)
	}
	if fixed && buf.MemType != "" && buf.MemType != memoryType {
		return fmt.Errorf("%w: buffer %q is fixed in %q memory", ErrTransform, buf.Name, buf.MemType)
	}
	buf.MemType = memoryType
	s.record("SetBuffer",
		[]trace.Input{{Name: "block", Handles: []ir.Node{block}}},
		[]trace.Attr{
			{Name: "memory_type", Value: trace.StringAttr(memoryType)},
			{Name: "fixed", Value: trace.BoolAttr(fixed)},
		}, nil)
	return nil
}

// Rfactor factors the reduction under rfLoop into a partial-result buffer
// with the rfLoop axis materialized at dimension rfAxis, plus a final
// reduction over that axis. It returns the new partial-result buffer.
func (s *Schedule) Rfactor(rfLoop ir.Node, rfAxis int) (ir.Node, error) {
	rf, err := s.applyRfactor(rfLoop, rfAxis)
	if err != nil {
		return nil, err
	}
	s.record("Rfactor",
		[]trace.Input{{Name: "rf_loop", Handles: []ir.Node{rfLoop}}},
		[]trace.Attr{{Name: "rf_axis", Value: trace.IntAttr(rfAxis)}},
		[]ir.Node{rf})
	return rf, nil
}

// ---- module-level operations ----

// MergeExprs folds every function body into the first function, which
// then carries the union of the argument lists.
func (s *Schedule) MergeExprs() error {
	if len(s.module.Funcs) == 0 {
		return fmt.Errorf("%w: module has no functions", ErrTransform)
	}
	first := s.module.Funcs[0]
	seen := map[string]bool{}
	for _, a := range first.Args {
		seen[a] = true
	}
	for _, f := range s.module.Funcs[1:] {
		first.Root.Body = append(first.Root.Body, f.Root.Body...)
		for _, a := range f.Args {
			if !seen[a] {
				first.Args = append(first.Args, a)
				seen[a] = true
			}
		}
	}
	s.module.Funcs = s.module.Funcs[:1]
	s.record("MergeExprs", nil, nil, nil)
	return nil
}

// Annotate attaches a scheduling hint to block. Both leaf blocks and
// function root blocks can carry annotations.
func (s *Schedule) Annotate(block ir.Node, key string, value trace.AttrValue) error {
	b, err := s.asBlock(block)
	if err != nil {
		return err
	}
	b.Annotate(key, value.Any())
	s.record("Annotate",
		[]trace.Input{{Name: "block", Handles: []ir.Node{block}}},
		[]trace.Attr{
			{Name: "key", Value: trace.StringAttr(key)},
			{Name: "value", Value: value},
		}, nil)
	return nil
}

// compile-time interface check
var _ trace.Session = (*Schedule)(nil)
