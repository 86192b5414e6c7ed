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
	"fmt"
	"strings"
)

// SourceCode renders the module as deterministic C-like source text. Two
// structurally identical modules always print byte-identically, which is
// the basis for the replay-equivalence checks.
func SourceCode(m *Module) string {
	var sb strings.Builder
	sb.WriteString("module {\n")
	for _, b := range m.Buffers {
		dims := make([]string, len(b.Shape))
		for i, d := range b.Shape {
			dims[i] = fmt.Sprintf("%d", d)
		}
		mem := b.MemType
		if mem == "" {
			mem = "global"
		}
		fmt.Fprintf(&sb, "  buffer %s: f32[%s] %s", b.Name, strings.Join(dims, ", "), mem)
		if b.IsInput {
			sb.WriteString(" input")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}\n")
	for _, f := range m.Funcs {
		printFunc(&sb, f)
	}
	return sb.String()
}

func printFunc(sb *strings.Builder, f *Func) {
	fmt.Fprintf(sb, "function %s (%s)\n{\n", f.Name, strings.Join(f.Args, ", "))
	for _, a := range f.Root.Annotations {
		fmt.Fprintf(sb, "  attrs {%s = %v}\n", a.Key, a.Value)
	}
	for _, n := range f.Root.Body {
		printNode(sb, n, 1)
	}
	sb.WriteString("}\n")
}

func printNode(sb *strings.Builder, n Node, depth int) {
	ind := strings.Repeat("  ", depth)
	switch n := n.(type) {
	case *Loop:
		fmt.Fprintf(sb, "%s%s for (%s, 0, %d)\n%s{\n", ind, loopHead(n), n.Var, n.Extent, ind)
		for _, c := range n.Body {
			printNode(sb, c, depth+1)
		}
		fmt.Fprintf(sb, "%s}\n", ind)
	case *Block:
		printBlock(sb, n, depth)
	case *SyncThreads:
		fmt.Fprintf(sb, "%s__sync_threads()\n", ind)
	}
}

func loopHead(l *Loop) string {
	switch l.Kind {
	case ForVectorized:
		return fmt.Sprintf("vectorize(%d)", l.VectorFactor)
	case ForBound:
		return fmt.Sprintf("bind(%s)", l.ThreadAxis)
	default:
		return l.Kind.String()
	}
}

func printBlock(sb *strings.Builder, b *Block, depth int) {
	ind := strings.Repeat("  ", depth)
	ivs := make([]string, len(b.IterVars))
	for i, iv := range b.IterVars {
		ivs[i] = iv.Name
		if iv.Reduce {
			ivs[i] += "(reduce)"
		}
	}
	binds := make([]string, len(b.Bindings))
	for i, e := range b.Bindings {
		binds[i] = ExprString(e)
	}
	fmt.Fprintf(sb, "%sScheduleBlock(%s) [%s] = bind(%s)\n%s{\n",
		ind, b.Name, strings.Join(ivs, ", "), strings.Join(binds, ", "), ind)
	for _, a := range b.Annotations {
		fmt.Fprintf(sb, "%s  attrs {%s = %v}\n", ind, a.Key, a.Value)
	}
	for _, s := range b.Stores {
		op := "="
		if s.Reduce {
			op = "+="
		}
		fmt.Fprintf(sb, "%s  %s[%s] %s %s\n",
			ind, s.Buffer, exprList(s.Indices), op, ExprString(s.Value))
	}
	fmt.Fprintf(sb, "%s}\n", ind)
}

func exprList(es []Expr) string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = ExprString(e)
	}
	return strings.Join(out, ", ")
}

// ExprString renders an expression. Nested binary operands are always
// parenthesized so the output is unambiguous without precedence rules.
func ExprString(e Expr) string {
	switch e := e.(type) {
	case *Var:
		return e.Name
	case *IntImm:
		return fmt.Sprintf("%d", e.Value)
	case *FloatImm:
		return fmt.Sprintf("%gf", e.Value)
	case *Binary:
		return fmt.Sprintf("%s %s %s", operand(e.LHS), e.Op, operand(e.RHS))
	case *Load:
		return fmt.Sprintf("%s[%s]", e.Buffer, exprList(e.Indices))
	default:
		return "?"
	}
}

func operand(e Expr) string {
	if _, ok := e.(*Binary); ok {
		return "(" + ExprString(e) + ")"
	}
	return ExprString(e)
}
