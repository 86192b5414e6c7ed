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

// WalkNodes visits n and its structural descendants in pre-order. The
// visit function returns false to skip a node's children. Expressions are
// not visited; use RewriteExprs for those.
func WalkNodes(n Node, visit func(Node) bool) {
	if n == nil || !visit(n) {
		return
	}
	switch n := n.(type) {
	case *Loop:
		for _, c := range n.Body {
			WalkNodes(c, visit)
		}
	case *Block:
		for _, c := range n.Body {
			WalkNodes(c, visit)
		}
	}
}

// FindParent returns the node whose body directly contains target, along
// with target's index in that body. The root block itself has no parent.
func FindParent(root *Block, target Node) (parent Node, index int) {
	var found Node
	idx := -1
	WalkNodes(root, func(n Node) bool {
		if found != nil {
			return false
		}
		var body []Node
		switch n := n.(type) {
		case *Loop:
			body = n.Body
		case *Block:
			body = n.Body
		default:
			return true
		}
		for i, c := range body {
			if c == target {
				found = n
				idx = i
				return false
			}
		}
		return true
	})
	return found, idx
}

// ReplaceChild swaps the i-th child of parent for repl. Passing a nil
// repl removes the child.
func ReplaceChild(parent Node, i int, repl Node) {
	switch p := parent.(type) {
	case *Loop:
		if repl == nil {
			p.Body = append(p.Body[:i], p.Body[i+1:]...)
		} else {
			p.Body[i] = repl
		}
	case *Block:
		if repl == nil {
			p.Body = append(p.Body[:i], p.Body[i+1:]...)
		} else {
			p.Body[i] = repl
		}
	}
}

// InsertChild inserts repl into parent's body at position i.
func InsertChild(parent Node, i int, repl Node) {
	switch p := parent.(type) {
	case *Loop:
		p.Body = append(p.Body[:i], append([]Node{repl}, p.Body[i:]...)...)
	case *Block:
		p.Body = append(p.Body[:i], append([]Node{repl}, p.Body[i:]...)...)
	}
}

// RewriteExprs applies rw bottom-up to every expression reachable from e
// and returns the rewritten expression.
func RewriteExprs(e Expr, rw func(Expr) Expr) Expr {
	switch e := e.(type) {
	case *Binary:
		lhs := RewriteExprs(e.LHS, rw)
		rhs := RewriteExprs(e.RHS, rw)
		if lhs != e.LHS || rhs != e.RHS {
			e = &Binary{Op: e.Op, LHS: lhs, RHS: rhs}
		}
		return rw(e)
	case *Load:
		changed := false
		idx := make([]Expr, len(e.Indices))
		for i, ix := range e.Indices {
			idx[i] = RewriteExprs(ix, rw)
			if idx[i] != ix {
				changed = true
			}
		}
		if changed {
			e = &Load{Buffer: e.Buffer, Indices: idx}
		}
		return rw(e)
	default:
		return rw(e)
	}
}

// SubstVar replaces every reference to the named loop variable inside the
// subtree with repl. Only binding expressions reference loop variables;
// leaf stores are written in terms of block iteration variables.
func SubstVar(n Node, name string, repl Expr) {
	WalkNodes(n, func(c Node) bool {
		if b, ok := c.(*Block); ok && !b.IsRoot() {
			for i, bind := range b.Bindings {
				b.Bindings[i] = RewriteExprs(bind, func(e Expr) Expr {
					if v, ok := e.(*Var); ok && v.Name == name {
						return repl
					}
					return e
				})
			}
		}
		return true
	})
}

// CollectBlocks returns every leaf schedule block under n, in
// left-to-right order.
func CollectBlocks(n Node) []*Block {
	var out []*Block
	WalkNodes(n, func(c Node) bool {
		if b, ok := c.(*Block); ok && !b.IsRoot() {
			out = append(out, b)
		}
		return true
	})
	return out
}

// ContainsNode reports whether target appears in the subtree rooted at n.
func ContainsNode(n Node, target Node) bool {
	found := false
	WalkNodes(n, func(c Node) bool {
		if c == target {
			found = true
		}
		return !found
	})
	if n == target {
		return true
	}
	return found
}
