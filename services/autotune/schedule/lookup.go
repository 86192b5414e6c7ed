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

// findBlock locates the leaf block with the given name across all
// functions.
func (s *Schedule) findBlock(name string) (*ir.Block, error) {
	for _, f := range s.module.Funcs {
		for _, b := range ir.CollectBlocks(f.Root) {
			if b.Name == name {
				return b, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrBlockNotFound, name)
}

// funcContaining returns the function whose tree holds n, or nil.
func (s *Schedule) funcContaining(n ir.Node) *ir.Func {
	for _, f := range s.module.Funcs {
		if f.Root == n || ir.ContainsNode(f.Root, n) {
			return f
		}
	}
	return nil
}

// parentOf returns the node directly containing target and target's
// index in that body, searching every function.
func (s *Schedule) parentOf(target ir.Node) (ir.Node, int, error) {
	for _, f := range s.module.Funcs {
		if p, i := ir.FindParent(f.Root, target); p != nil {
			return p, i, nil
		}
	}
	return nil, -1, fmt.Errorf("%w: node is not part of this module", ErrBadHandle)
}

// asBlock resolves a handle to any block present in the module.
func (s *Schedule) asBlock(n ir.Node) (*ir.Block, error) {
	b, ok := n.(*ir.Block)
	if !ok {
		return nil, fmt.Errorf("%w: want a schedule block, got %T", ErrBadHandle, n)
	}
	if s.funcContaining(b) == nil {
		return nil, fmt.Errorf("%w: block %q is not part of this module", ErrBadHandle, b.Name)
	}
	return b, nil
}

// asLeafBlock resolves a handle to a leaf schedule block.
func (s *Schedule) asLeafBlock(n ir.Node) (*ir.Block, error) {
	b, err := s.asBlock(n)
	if err != nil {
		return nil, err
	}
	if b.IsRoot() {
		return nil, fmt.Errorf("%w: block %q is a root block", ErrBadHandle, b.Name)
	}
	return b, nil
}

// asLoop resolves a handle to a loop present in the module.
func (s *Schedule) asLoop(n ir.Node) (*ir.Loop, error) {
	l, ok := n.(*ir.Loop)
	if !ok {
		return nil, fmt.Errorf("%w: want a loop, got %T", ErrBadHandle, n)
	}
	if s.funcContaining(l) == nil {
		return nil, fmt.Errorf("%w: loop %q is not part of this module", ErrBadHandle, l.Var)
	}
	return l, nil
}

// asLoops resolves a handle list to loops.
func (s *Schedule) asLoops(ns []ir.Node) ([]*ir.Loop, error) {
	out := make([]*ir.Loop, 0, len(ns))
	for _, n := range ns {
		l, err := s.asLoop(n)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// asLoopChain resolves handles to loops and verifies each is the sole
// statement of the previous one's body.
func (s *Schedule) asLoopChain(ns []ir.Node) ([]*ir.Loop, error) {
	loops, err := s.asLoops(ns)
	if err != nil {
		return nil, err
	}
	if err := checkChain(loops); err != nil {
		return nil, err
	}
	return loops, nil
}

func checkChain(loops []*ir.Loop) error {
	if len(loops) == 0 {
		return fmt.Errorf("%w: empty loop list", ErrTransform)
	}
	for i := 0; i < len(loops)-1; i++ {
		if len(loops[i].Body) != 1 || loops[i].Body[0] != ir.Node(loops[i+1]) {
			return fmt.Errorf("%w: loop %q does not directly and solely contain loop %q",
				ErrTransform, loops[i].Var, loops[i+1].Var)
		}
	}
	return nil
}

// loopsOf returns the loops enclosing b, outermost first.
func (s *Schedule) loopsOf(b *ir.Block) ([]*ir.Loop, error) {
	f := s.funcContaining(b)
	if f == nil {
		return nil, fmt.Errorf("%w: block %q is not part of this module", ErrBadHandle, b.Name)
	}
	path, ok := pathToNode(f.Root, b)
	if !ok {
		return nil, fmt.Errorf("%w: enclosing %q", ErrLoopNotFound, b.Name)
	}
	return path, nil
}

// pathToNode returns the loops on the path from root down to target,
// outermost first.
func pathToNode(root *ir.Block, target ir.Node) ([]*ir.Loop, bool) {
	var path []*ir.Loop
	var walk func(n ir.Node) bool
	walk = func(n ir.Node) bool {
		if n == target {
			return true
		}
		switch n := n.(type) {
		case *ir.Loop:
			path = append(path, n)
			for _, c := range n.Body {
				if walk(c) {
					return true
				}
			}
			path = path[:len(path)-1]
		case *ir.Block:
			for _, c := range n.Body {
				if walk(c) {
					return true
				}
			}
		}
		return false
	}
	if walk(root) {
		return append([]*ir.Loop(nil), path...), true
	}
	return nil, false
}

// loopByIndex returns the i-th loop (outermost first) enclosing the
// named block.
func (s *Schedule) loopByIndex(blockName string, i int) (*ir.Loop, error) {
	b, err := s.findBlock(blockName)
	if err != nil {
		return nil, err
	}
	loops, err := s.loopsOf(b)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(loops) {
		return nil, fmt.Errorf("%w: index %d of %d loops around %q",
			ErrLoopNotFound, i, len(loops), blockName)
	}
	return loops[i], nil
}

// loopsByIndices returns the loops at the given indices (outermost
// first) enclosing the named block, in the order the indices are given.
func (s *Schedule) loopsByIndices(blockName string, idx []int) ([]*ir.Loop, error) {
	b, err := s.findBlock(blockName)
	if err != nil {
		return nil, err
	}
	loops, err := s.loopsOf(b)
	if err != nil {
		return nil, err
	}
	out := make([]*ir.Loop, 0, len(idx))
	for _, i := range idx {
		if i < 0 || i >= len(loops) {
			return nil, fmt.Errorf("%w: index %d of %d loops around %q",
				ErrLoopNotFound, i, len(loops), blockName)
		}
		out = append(out, loops[i])
	}
	return out, nil
}

func loopNodes(loops []*ir.Loop) []ir.Node {
	out := make([]ir.Node, len(loops))
	for i, l := range loops {
		out[i] = l
	}
	return out
}
