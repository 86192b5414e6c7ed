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

// Copy returns a deep structural copy of the module: identical names and
// shape, fully independent node identity. Replaying a trace always
// happens against a copy, never against the module the trace was recorded
// on.
func (m *Module) Copy() *Module {
	out := &Module{
		Funcs:   make([]*Func, len(m.Funcs)),
		Buffers: make([]*Buffer, len(m.Buffers)),
	}
	for i, b := range m.Buffers {
		out.Buffers[i] = copyBuffer(b)
	}
	for i, f := range m.Funcs {
		out.Funcs[i] = &Func{
			Name: f.Name,
			Args: append([]string(nil), f.Args...),
			Root: copyBlock(f.Root),
		}
	}
	return out
}

func copyBuffer(b *Buffer) *Buffer {
	return &Buffer{
		Name:    b.Name,
		Shape:   append([]int(nil), b.Shape...),
		MemType: b.MemType,
		IsInput: b.IsInput,
	}
}

func copyNode(n Node) Node {
	switch n := n.(type) {
	case *Loop:
		body := make([]Node, len(n.Body))
		for i, c := range n.Body {
			body[i] = copyNode(c)
		}
		return &Loop{
			Var:          n.Var,
			Extent:       n.Extent,
			Kind:         n.Kind,
			VectorFactor: n.VectorFactor,
			ThreadAxis:   n.ThreadAxis,
			Body:         body,
		}
	case *Block:
		return copyBlock(n)
	case *SyncThreads:
		return &SyncThreads{}
	default:
		return n
	}
}

func copyBlock(b *Block) *Block {
	out := &Block{Name: b.Name}
	if b.IterVars != nil {
		out.IterVars = append([]IterVar(nil), b.IterVars...)
	}
	if b.Bindings != nil {
		out.Bindings = make([]Expr, len(b.Bindings))
		for i, e := range b.Bindings {
			out.Bindings[i] = CopyExpr(e)
		}
	}
	if b.Stores != nil {
		out.Stores = make([]*Store, len(b.Stores))
		for i, s := range b.Stores {
			out.Stores[i] = copyStore(s)
		}
	}
	if b.Body != nil {
		out.Body = make([]Node, len(b.Body))
		for i, c := range b.Body {
			out.Body[i] = copyNode(c)
		}
	}
	if b.Annotations != nil {
		out.Annotations = append([]Annotation(nil), b.Annotations...)
	}
	return out
}

func copyStore(s *Store) *Store {
	idx := make([]Expr, len(s.Indices))
	for i, e := range s.Indices {
		idx[i] = CopyExpr(e)
	}
	return &Store{
		Buffer:  s.Buffer,
		Indices: idx,
		Value:   CopyExpr(s.Value),
		Reduce:  s.Reduce,
	}
}

// CopyExpr deep-copies an expression tree.
func CopyExpr(e Expr) Expr {
	switch e := e.(type) {
	case *Var:
		return &Var{Name: e.Name}
	case *IntImm:
		return &IntImm{Value: e.Value}
	case *FloatImm:
		return &FloatImm{Value: e.Value}
	case *Binary:
		return &Binary{Op: e.Op, LHS: CopyExpr(e.LHS), RHS: CopyExpr(e.RHS)}
	case *Load:
		idx := make([]Expr, len(e.Indices))
		for i, ix := range e.Indices {
			idx[i] = CopyExpr(ix)
		}
		return &Load{Buffer: e.Buffer, Indices: idx}
	default:
		return e
	}
}
