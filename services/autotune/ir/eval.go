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

// Execute interprets the module over float64 buffers. Input buffers are
// taken from inputs (length-checked against the shape); all other buffers
// are allocated zero-filled, which realizes reduction initialization.
// Loop kinds are scheduling hints and do not change interpretation.
//
// The returned map holds every buffer, keyed by name.
func (m *Module) Execute(inputs map[string][]float64) (map[string][]float64, error) {
	bufs := make(map[string][]float64, len(m.Buffers))
	for _, b := range m.Buffers {
		if b.IsInput {
			data, ok := inputs[b.Name]
			if !ok {
				return nil, fmt.Errorf("missing input buffer %q", b.Name)
			}
			if len(data) != b.Size() {
				return nil, fmt.Errorf("input buffer %q: got %d elements, want %d",
					b.Name, len(data), b.Size())
			}
			bufs[b.Name] = append([]float64(nil), data...)
			continue
		}
		bufs[b.Name] = make([]float64, b.Size())
	}
	for _, f := range m.Funcs {
		env := make(map[string]int)
		for _, n := range f.Root.Body {
			if err := m.execNode(n, env, bufs); err != nil {
				return nil, fmt.Errorf("function %s: %w", f.Name, err)
			}
		}
	}
	return bufs, nil
}

func (m *Module) execNode(n Node, env map[string]int, bufs map[string][]float64) error {
	switch n := n.(type) {
	case *Loop:
		for v := 0; v < n.Extent; v++ {
			env[n.Var] = v
			for _, c := range n.Body {
				if err := m.execNode(c, env, bufs); err != nil {
					return err
				}
			}
		}
		delete(env, n.Var)
		return nil
	case *SyncThreads:
		return nil
	case *Block:
		return m.execBlock(n, env, bufs)
	default:
		return fmt.Errorf("unexecutable node %T", n)
	}
}

func (m *Module) execBlock(b *Block, env map[string]int, bufs map[string][]float64) error {
	local := make(map[string]int, len(b.IterVars))
	for i, iv := range b.IterVars {
		v, err := evalInt(b.Bindings[i], env)
		if err != nil {
			return fmt.Errorf("block %s binding %s: %w", b.Name, iv.Name, err)
		}
		local[iv.Name] = v
	}
	for _, s := range b.Stores {
		buf, ok := bufs[s.Buffer]
		if !ok {
			return fmt.Errorf("block %s stores to undeclared buffer %q", b.Name, s.Buffer)
		}
		flat, err := m.flatIndex(s.Buffer, s.Indices, local)
		if err != nil {
			return err
		}
		val, err := m.evalFloat(s.Value, local, bufs)
		if err != nil {
			return err
		}
		if s.Reduce {
			buf[flat] += val
		} else {
			buf[flat] = val
		}
	}
	return nil
}

func (m *Module) flatIndex(buffer string, indices []Expr, env map[string]int) (int, error) {
	b := m.Buffer(buffer)
	if b == nil {
		return 0, fmt.Errorf("undeclared buffer %q", buffer)
	}
	if len(indices) != len(b.Shape) {
		return 0, fmt.Errorf("buffer %q: %d indices for rank %d", buffer, len(indices), len(b.Shape))
	}
	flat := 0
	for d, ix := range indices {
		v, err := evalInt(ix, env)
		if err != nil {
			return 0, err
		}
		if v < 0 || v >= b.Shape[d] {
			return 0, fmt.Errorf("buffer %q: index %d out of range [0, %d)", buffer, v, b.Shape[d])
		}
		flat = flat*b.Shape[d] + v
	}
	return flat, nil
}

func evalInt(e Expr, env map[string]int) (int, error) {
	switch e := e.(type) {
	case *Var:
		v, ok := env[e.Name]
		if !ok {
			return 0, fmt.Errorf("unbound variable %q", e.Name)
		}
		return v, nil
	case *IntImm:
		return e.Value, nil
	case *Binary:
		lhs, err := evalInt(e.LHS, env)
		if err != nil {
			return 0, err
		}
		rhs, err := evalInt(e.RHS, env)
		if err != nil {
			return 0, err
		}
		switch e.Op {
		case OpAdd:
			return lhs + rhs, nil
		case OpSub:
			return lhs - rhs, nil
		case OpMul:
			return lhs * rhs, nil
		case OpDiv:
			if rhs == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			return lhs / rhs, nil
		case OpMod:
			if rhs == 0 {
				return 0, fmt.Errorf("modulo by zero")
			}
			return lhs % rhs, nil
		}
		return 0, fmt.Errorf("unknown operator %q", e.Op)
	default:
		return 0, fmt.Errorf("non-integer expression %T", e)
	}
}

func (m *Module) evalFloat(e Expr, env map[string]int, bufs map[string][]float64) (float64, error) {
	switch e := e.(type) {
	case *Var:
		v, err := evalInt(e, env)
		return float64(v), err
	case *IntImm:
		return float64(e.Value), nil
	case *FloatImm:
		return e.Value, nil
	case *Load:
		buf, ok := bufs[e.Buffer]
		if !ok {
			return 0, fmt.Errorf("load from undeclared buffer %q", e.Buffer)
		}
		flat, err := m.flatIndex(e.Buffer, e.Indices, env)
		if err != nil {
			return 0, err
		}
		return buf[flat], nil
	case *Binary:
		lhs, err := m.evalFloat(e.LHS, env, bufs)
		if err != nil {
			return 0, err
		}
		rhs, err := m.evalFloat(e.RHS, env, bufs)
		if err != nil {
			return 0, err
		}
		switch e.Op {
		case OpAdd:
			return lhs + rhs, nil
		case OpSub:
			return lhs - rhs, nil
		case OpMul:
			return lhs * rhs, nil
		case OpDiv:
			return lhs / rhs, nil
		case OpMod:
			return float64(int(lhs) % int(rhs)), nil
		}
		return 0, fmt.Errorf("unknown operator %q", e.Op)
	default:
		return 0, fmt.Errorf("unevaluable expression %T", e)
	}
}
