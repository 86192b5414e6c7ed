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

	"github.com/AleutianAI/tensortune/services/autotune/ir"
)

// applyComputeAt relocates block's nest into loop. The producer loops
// that correspond to the consumer loops enclosing (and including) loop
// are stripped and their variables substituted with the consumer's; the
// rest of the producer nest is inserted at the front of loop's body.
// With simple set, the producer/consumer extent checks are skipped.
func (s *Schedule) applyComputeAt(block, loop ir.Node, simple bool) error {
	b, err := s.asLeafBlock(block)
	if err != nil {
		return err
	}
	l, err := s.asLoop(loop)
	if err != nil {
		return err
	}
	if ir.ContainsNode(l, b) {
		return fmt.Errorf("%w: block %q already lives under the target loop", ErrTransform, b.Name)
	}
	bf, lf := s.funcContaining(b), s.funcContaining(l)
	if bf != lf {
		return fmt.Errorf("%w: block %q and the target loop are in different functions", ErrTransform, b.Name)
	}

	consPath, ok := pathToNode(lf.Root, l)
	if !ok {
		return fmt.Errorf("%w: target loop", ErrLoopNotFound)
	}
	consLoops := append(consPath, l)
	prodLoops, err := s.loopsOf(b)
	if err != nil {
		return err
	}

	strip := len(consLoops)
	if strip > len(prodLoops) {
		strip = len(prodLoops)
	}
	if !simple {
		if len(prodLoops) < len(consLoops) {
			return fmt.Errorf("%w: producer %q has %d loops, consumer placement needs %d",
				ErrTransform, b.Name, len(prodLoops), len(consLoops))
		}
		for i := 0; i < strip; i++ {
			if prodLoops[i].Extent != consLoops[i].Extent {
				return fmt.Errorf("%w: loop extent mismatch at depth %d: %d vs %d",
					ErrTransform, i, prodLoops[i].Extent, consLoops[i].Extent)
			}
		}
	}

	// Detach the producer nest from the root body.
	parent, idx, err := s.parentOf(prodLoops[0])
	if err != nil {
		return err
	}
	ir.ReplaceChild(parent, idx, nil)

	var remainder ir.Node = b
	if strip < len(prodLoops) {
		remainder = prodLoops[strip]
	}
	for i := 0; i < strip; i++ {
		ir.SubstVar(remainder, prodLoops[i].Var, &ir.Var{Name: consLoops[i].Var})
	}
	l.Body = append([]ir.Node{remainder}, l.Body...)
	return nil
}

// applyComputeInline removes block and substitutes its stored expression
// into every load of its buffer.
func (s *Schedule) applyComputeInline(block ir.Node) error {
	b, err := s.asLeafBlock(block)
	if err != nil {
		return err
	}
	if len(b.Stores) != 1 || b.Stores[0].Reduce {
		return fmt.Errorf("%w: block %q is not a single plain store", ErrTransform, b.Name)
	}
	st := b.Stores[0]
	for _, f := range s.module.Funcs {
		for _, a := range f.Args {
			if a == st.Buffer {
				return fmt.Errorf("%w: buffer %q is a function argument", ErrTransform, st.Buffer)
			}
		}
	}

	// Substituting a load of the inlined buffer means evaluating the
	// stored value with the block's iteration variables bound to the
	// load's index expressions.
	inline := func(load *ir.Load) ir.Expr {
		if len(load.Indices) != len(b.IterVars) {
			return load
		}
		byName := make(map[string]ir.Expr, len(b.IterVars))
		for i, iv := range b.IterVars {
			byName[iv.Name] = load.Indices[i]
		}
		return ir.RewriteExprs(ir.CopyExpr(st.Value), func(e ir.Expr) ir.Expr {
			if v, ok := e.(*ir.Var); ok {
				if repl, ok := byName[v.Name]; ok {
					return ir.CopyExpr(repl)
				}
			}
			return e
		})
	}
	rw := func(e ir.Expr) ir.Expr {
		if load, ok := e.(*ir.Load); ok && load.Buffer == st.Buffer {
			return inline(load)
		}
		return e
	}
	for _, f := range s.module.Funcs {
		for _, other := range ir.CollectBlocks(f.Root) {
			if other == b {
				continue
			}
			for _, os := range other.Stores {
				os.Value = ir.RewriteExprs(os.Value, rw)
				for i, ix := range os.Indices {
					os.Indices[i] = ir.RewriteExprs(ix, rw)
				}
			}
		}
	}

	// Drop the producer nest: walk up while the enclosing loop holds
	// nothing but this block.
	var top ir.Node = b
	for {
		parent, _, err := s.parentOf(top)
		if err != nil {
			return err
		}
		pl, ok := parent.(*ir.Loop)
		if !ok || len(ir.CollectBlocks(pl)) != 1 {
			break
		}
		top = pl
	}
	parent, idx, err := s.parentOf(top)
	if err != nil {
		return err
	}
	ir.ReplaceChild(parent, idx, nil)
	s.module.RemoveBuffer(st.Buffer)
	return nil
}

// loadedBuffers returns the distinct buffer names block reads, in order
// of first appearance.
func loadedBuffers(b *ir.Block) []string {
	var out []string
	seen := map[string]bool{}
	visit := func(e ir.Expr) ir.Expr {
		if load, ok := e.(*ir.Load); ok && !seen[load.Buffer] {
			seen[load.Buffer] = true
			out = append(out, load.Buffer)
		}
		return e
	}
	for _, st := range b.Stores {
		for _, ix := range st.Indices {
			ir.RewriteExprs(ix, visit)
		}
		ir.RewriteExprs(st.Value, visit)
	}
	return out
}

// cacheNest builds a copy nest over shape: the returned block assigns
// dst[iv...] = src[iv...] element by element.
func (s *Schedule) cacheNest(name, src, dst string, shape []int) (*ir.Loop, *ir.Block) {
	n := len(shape)
	iters := make([]ir.IterVar, n)
	binds := make([]ir.Expr, n)
	idx := make([]ir.Expr, n)
	loopVars := make([]string, n)
	for d := 0; d < n; d++ {
		loopVars[d] = s.names.Fresh(fmt.Sprintf("cache_ax%d", d))
		iters[d] = ir.IterVar{Name: s.names.Fresh(fmt.Sprintf("c%d", d))}
		binds[d] = &ir.Var{Name: loopVars[d]}
		idx[d] = &ir.Var{Name: iters[d].Name}
	}
	blk := &ir.Block{
		Name:     name,
		IterVars: iters,
		Bindings: binds,
		Stores: []*ir.Store{{
			Buffer:  dst,
			Indices: idx,
			Value:   &ir.Load{Buffer: src, Indices: cloneExprs(idx)},
		}},
	}
	var body ir.Node = blk
	for d := n - 1; d >= 0; d-- {
		body = &ir.Loop{Var: loopVars[d], Extent: shape[d], Kind: ir.ForSerial, Body: []ir.Node{body}}
	}
	return body.(*ir.Loop), blk
}

func cloneExprs(es []ir.Expr) []ir.Expr {
	out := make([]ir.Expr, len(es))
	for i, e := range es {
		out[i] = ir.CopyExpr(e)
	}
	return out
}

// applyCacheRead stages one of block's read buffers into a new cache
// buffer and redirects block's loads to it.
func (s *Schedule) applyCacheRead(block ir.Node, readBufferIndex int, memoryType string) (ir.Node, error) {
	b, err := s.asLeafBlock(block)
	if err != nil {
		return nil, err
	}
	reads := loadedBuffers(b)
	if readBufferIndex < 0 || readBufferIndex >= len(reads) {
		return nil, fmt.Errorf("%w: read buffer index %d of %d", ErrTransform, readBufferIndex, len(reads))
	}
	src := reads[readBufferIndex]
	srcBuf := s.module.Buffer(src)
	if srcBuf == nil {
		return nil, fmt.Errorf("%w: buffer %q", ErrBadHandle, src)
	}

	cacheName := s.names.Fresh(src + "_" + memoryType + "_temp_buffer")
	s.module.AddBuffer(&ir.Buffer{
		Name:    cacheName,
		Shape:   append([]int(nil), srcBuf.Shape...),
		MemType: memoryType,
	})

	nest, cacheBlk := s.cacheNest(cacheName, src, cacheName, srcBuf.Shape)

	// The fill nest goes directly before the consumer's outermost loop.
	loops, err := s.loopsOf(b)
	if err != nil {
		return nil, err
	}
	var anchor ir.Node = b
	if len(loops) > 0 {
		anchor = loops[0]
	}
	parent, idx, err := s.parentOf(anchor)
	if err != nil {
		return nil, err
	}
	ir.InsertChild(parent, idx, nest)

	rw := func(e ir.Expr) ir.Expr {
		if load, ok := e.(*ir.Load); ok && load.Buffer == src {
			return &ir.Load{Buffer: cacheName, Indices: load.Indices}
		}
		return e
	}
	for _, st := range b.Stores {
		st.Value = ir.RewriteExprs(st.Value, rw)
		for i, ix := range st.Indices {
			st.Indices[i] = ir.RewriteExprs(ix, rw)
		}
	}
	return cacheBlk, nil
}

// applyCacheWrite redirects one of block's written buffers into a new
// cache buffer and appends a write-back nest after block's own nest.
func (s *Schedule) applyCacheWrite(block ir.Node, writeBufferIndex int, memoryType string) (ir.Node, error) {
	b, err := s.asLeafBlock(block)
	if err != nil {
		return nil, err
	}
	var writes []string
	seen := map[string]bool{}
	for _, st := range b.Stores {
		if !seen[st.Buffer] {
			seen[st.Buffer] = true
			writes = append(writes, st.Buffer)
		}
	}
	if writeBufferIndex < 0 || writeBufferIndex >= len(writes) {
		return nil, fmt.Errorf("%w: write buffer index %d of %d", ErrTransform, writeBufferIndex, len(writes))
	}
	target := writes[writeBufferIndex]
	targetBuf := s.module.Buffer(target)
	if targetBuf == nil {
		return nil, fmt.Errorf("%w: buffer %q", ErrBadHandle, target)
	}

	cacheName := s.names.Fresh(target + "_" + memoryType + "_temp_buffer")
	s.module.AddBuffer(&ir.Buffer{
		Name:    cacheName,
		Shape:   append([]int(nil), targetBuf.Shape...),
		MemType: memoryType,
	})

	for _, st := range b.Stores {
		if st.Buffer == target {
			st.Buffer = cacheName
		}
	}

	nest, cacheBlk := s.cacheNest(cacheName, cacheName, target, targetBuf.Shape)

	loops, err := s.loopsOf(b)
	if err != nil {
		return nil, err
	}
	var anchor ir.Node = b
	if len(loops) > 0 {
		anchor = loops[0]
	}
	parent, idx, err := s.parentOf(anchor)
	if err != nil {
		return nil, err
	}
	ir.InsertChild(parent, idx+1, nest)
	return cacheBlk, nil
}

// applySyncThreads inserts a barrier next to node.
func (s *Schedule) applySyncThreads(node ir.Node, afterNode bool) error {
	switch node.(type) {
	case *ir.Loop, *ir.Block:
	default:
		return fmt.Errorf("%w: cannot anchor a barrier on %T", ErrBadHandle, node)
	}
	parent, idx, err := s.parentOf(node)
	if err != nil {
		return err
	}
	if afterNode {
		idx++
	}
	ir.InsertChild(parent, idx, &ir.SyncThreads{})
	return nil
}

// applyRfactor splits the reduction under rfLoop into a partial-result
// buffer, with rfLoop's axis materialized at dimension rfAxis, and a
// final reduction over that axis.
func (s *Schedule) applyRfactor(rfLoop ir.Node, rfAxis int) (ir.Node, error) {
	l, err := s.asLoop(rfLoop)
	if err != nil {
		return nil, err
	}
	blocks := ir.CollectBlocks(l)
	if len(blocks) != 1 {
		return nil, fmt.Errorf("%w: rfactor loop must enclose exactly one block, found %d", ErrTransform, len(blocks))
	}
	b := blocks[0]
	if len(b.Stores) != 1 || !b.Stores[0].Reduce {
		return nil, fmt.Errorf("%w: block %q is not a single reduction", ErrTransform, b.Name)
	}
	st := b.Stores[0]

	// The rfactor axis is the reduce iteration variable bound directly
	// to the rfactor loop's variable.
	rfIter := -1
	for i, bind := range b.Bindings {
		if v, ok := bind.(*ir.Var); ok && v.Name == l.Var && b.IterVars[i].Reduce {
			rfIter = i
			break
		}
	}
	if rfIter < 0 {
		return nil, fmt.Errorf("%w: loop %q does not bind a reduce axis of block %q", ErrTransform, l.Var, b.Name)
	}

	origBuf := s.module.Buffer(st.Buffer)
	if origBuf == nil {
		return nil, fmt.Errorf("%w: buffer %q", ErrBadHandle, st.Buffer)
	}
	if rfAxis < 0 || rfAxis > len(origBuf.Shape) {
		return nil, fmt.Errorf("%w: rfactor axis %d for rank %d", ErrTransform, rfAxis, len(origBuf.Shape))
	}

	rfName := s.names.Fresh(origBuf.Name + "_rf")
	rfShape := make([]int, 0, len(origBuf.Shape)+1)
	rfShape = append(rfShape, origBuf.Shape[:rfAxis]...)
	rfShape = append(rfShape, l.Extent)
	rfShape = append(rfShape, origBuf.Shape[rfAxis:]...)
	rfBuf := &ir.Buffer{Name: rfName, Shape: rfShape, MemType: origBuf.MemType}
	s.module.AddBuffer(rfBuf)

	// Partial block: the rfactor axis turns spatial, remaining reduce
	// axes keep accumulating.
	otherReduce := false
	for i, iv := range b.IterVars {
		if i != rfIter && iv.Reduce {
			otherReduce = true
		}
	}
	rfIndices := make([]ir.Expr, 0, len(st.Indices)+1)
	for _, ix := range st.Indices[:min(rfAxis, len(st.Indices))] {
		rfIndices = append(rfIndices, ir.CopyExpr(ix))
	}
	rfIndices = append(rfIndices, &ir.Var{Name: b.IterVars[rfIter].Name})
	for _, ix := range st.Indices[min(rfAxis, len(st.Indices)):] {
		rfIndices = append(rfIndices, ir.CopyExpr(ix))
	}

	partial := &ir.Block{
		Name:     rfName,
		IterVars: append([]ir.IterVar(nil), b.IterVars...),
		Bindings: cloneExprs(b.Bindings),
		Stores: []*ir.Store{{
			Buffer:  rfName,
			Indices: rfIndices,
			Value:   ir.CopyExpr(st.Value),
			Reduce:  otherReduce,
		}},
	}
	partial.IterVars[rfIter].Reduce = false

	loops, err := s.loopsOf(b)
	if err != nil {
		return nil, err
	}
	bp, bi, err := s.parentOf(b)
	if err != nil {
		return nil, err
	}
	ir.ReplaceChild(bp, bi, partial)

	// Final reduction: fresh spatial loops over the original shape plus
	// an innermost reduce loop over the rfactor extent.
	n := len(origBuf.Shape)
	finalIters := make([]ir.IterVar, n+1)
	finalBinds := make([]ir.Expr, n+1)
	spatialIdx := make([]ir.Expr, n)
	loopVars := make([]string, n+1)
	for d := 0; d < n; d++ {
		loopVars[d] = s.names.Fresh(fmt.Sprintf("rf_ax%d", d))
		finalIters[d] = ir.IterVar{Name: s.names.Fresh(fmt.Sprintf("r%d", d))}
		finalBinds[d] = &ir.Var{Name: loopVars[d]}
		spatialIdx[d] = &ir.Var{Name: finalIters[d].Name}
	}
	loopVars[n] = s.names.Fresh("rf_k")
	finalIters[n] = ir.IterVar{Name: s.names.Fresh("rk"), Reduce: true}
	finalBinds[n] = &ir.Var{Name: loopVars[n]}

	loadIdx := make([]ir.Expr, 0, n+1)
	for d := 0; d < rfAxis; d++ {
		loadIdx = append(loadIdx, ir.CopyExpr(spatialIdx[d]))
	}
	loadIdx = append(loadIdx, &ir.Var{Name: finalIters[n].Name})
	for d := rfAxis; d < n; d++ {
		loadIdx = append(loadIdx, ir.CopyExpr(spatialIdx[d]))
	}

	finalBlk := &ir.Block{
		Name:     s.names.Fresh(b.Name),
		IterVars: finalIters,
		Bindings: finalBinds,
		Stores: []*ir.Store{{
			Buffer:  origBuf.Name,
			Indices: spatialIdx,
			Value:   &ir.Load{Buffer: rfName, Indices: loadIdx},
			Reduce:  true,
		}},
	}
	var finalNest ir.Node = finalBlk
	extents := append(append([]int(nil), origBuf.Shape...), l.Extent)
	for d := n; d >= 0; d-- {
		finalNest = &ir.Loop{Var: loopVars[d], Extent: extents[d], Kind: ir.ForSerial, Body: []ir.Node{finalNest}}
	}

	var anchor ir.Node = partial
	if len(loops) > 0 {
		anchor = loops[0]
	}
	parent, idx, err := s.parentOf(anchor)
	if err != nil {
		return nil, err
	}
	ir.InsertChild(parent, idx+1, finalNest)
	return rfBuf, nil
}
