// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ir implements the loop-nest intermediate representation that the
// tuner schedules, prints, and executes.
//
// A Module holds one or more lowered functions. Each function body is a
// single root Block whose body is a tree of loops, leaf schedule blocks,
// and synchronization statements. Leaf blocks carry iteration variables
// (optionally reduction-carrying), binding expressions onto the enclosing
// loop variables, and store statements over named buffers.
//
// Everything in this package is deterministic: copying a module and
// applying the same transformations to both copies yields byte-identical
// printed source. Schedule transformations themselves live in the
// schedule package; this package only provides the data model, structural
// copy, name management, printing, and interpretation.
//
// Thread Safety:
//
//	Modules are plain data and are not safe for concurrent mutation.
//	A module is owned by one schedule session at a time.
package ir

// Node is any IR node that can be referenced by a schedule handle:
// loops, blocks, sync statements, and buffers.
type Node interface {
	node()
}

// Expr is an arithmetic expression over loop/iteration variables,
// immediates, and buffer loads.
type Expr interface {
	Node
	expr()
}

// Var references a loop variable or a block iteration variable by name.
type Var struct {
	Name string
}

// IntImm is an integer immediate.
type IntImm struct {
	Value int
}

// FloatImm is a floating-point immediate.
type FloatImm struct {
	Value float64
}

// BinOp is a binary arithmetic operator.
type BinOp string

// Supported binary operators.
const (
	OpAdd BinOp = "+"
	OpSub BinOp = "-"
	OpMul BinOp = "*"
	OpDiv BinOp = "/"
	OpMod BinOp = "%"
)

// Binary applies Op to LHS and RHS.
type Binary struct {
	Op  BinOp
	LHS Expr
	RHS Expr
}

// Load reads Buffer at Indices.
type Load struct {
	Buffer  string
	Indices []Expr
}

func (*Var) node()      {}
func (*IntImm) node()   {}
func (*FloatImm) node() {}
func (*Binary) node()   {}
func (*Load) node()     {}

func (*Var) expr()      {}
func (*IntImm) expr()   {}
func (*FloatImm) expr() {}
func (*Binary) expr()   {}
func (*Load) expr()     {}

// Store writes Value to Buffer at Indices. When Reduce is set the store
// accumulates (`+=`) instead of assigning; reduction buffers start
// zero-filled, so accumulation over zero-initialized storage realizes the
// reduction without a separate init statement.
type Store struct {
	Buffer  string
	Indices []Expr
	Value   Expr
	Reduce  bool
}

func (*Store) node() {}

// ForKind classifies a loop's iteration order.
type ForKind int

// Loop kinds. Everything except ForSerial is a non-sequential order.
const (
	ForSerial ForKind = iota
	ForParallel
	ForVectorized
	ForUnrolled
	ForBound
)

func (k ForKind) String() string {
	switch k {
	case ForSerial:
		return "serial"
	case ForParallel:
		return "parallel"
	case ForVectorized:
		return "vectorize"
	case ForUnrolled:
		return "unroll"
	case ForBound:
		return "bind"
	default:
		return "unknown"
	}
}

// Loop is a counted for-loop from 0 (inclusive) to Extent (exclusive).
type Loop struct {
	Var          string
	Extent       int
	Kind         ForKind
	VectorFactor int    // meaningful when Kind == ForVectorized
	ThreadAxis   string // meaningful when Kind == ForBound, e.g. "blockIdx.x"
	Body         []Node // *Loop, *Block, or *SyncThreads
}

func (*Loop) node() {}

// SyncThreads is an explicit synchronization barrier statement.
type SyncThreads struct{}

func (*SyncThreads) node() {}

// IterVar is a block iteration variable. Reduce marks a
// reduction-carrying axis.
type IterVar struct {
	Name   string
	Reduce bool
}

// Annotation is a scheduling hint attached to a block, interpreted by a
// later lowering stage (e.g. auto_unroll_max_step).
type Annotation struct {
	Key   string
	Value any
}

// Block is a schedule block. A root block (one per function) has
// IterVars == nil and carries the function body in Body. A leaf block
// carries iteration variables, their binding expressions over the
// enclosing loop variables, and store statements written in terms of the
// iteration variables.
type Block struct {
	Name        string
	IterVars    []IterVar
	Bindings    []Expr // len(Bindings) == len(IterVars) for leaf blocks
	Stores      []*Store
	Body        []Node // root blocks only
	Annotations []Annotation
}

func (*Block) node() {}

// IsRoot reports whether b is a function root block.
func (b *Block) IsRoot() bool {
	return b.IterVars == nil && b.Bindings == nil
}

// Annotate sets (or replaces) an annotation on the block.
func (b *Block) Annotate(key string, value any) {
	for i := range b.Annotations {
		if b.Annotations[i].Key == key {
			b.Annotations[i].Value = value
			return
		}
	}
	b.Annotations = append(b.Annotations, Annotation{Key: key, Value: value})
}

// Annotation returns the value for key and whether it is present.
func (b *Block) Annotation(key string) (any, bool) {
	for _, a := range b.Annotations {
		if a.Key == key {
			return a.Value, true
		}
	}
	return nil, false
}

// Buffer is a named tensor with a row-major shape. Input buffers are
// supplied by the caller at execution time; the rest are allocated
// zero-filled.
type Buffer struct {
	Name    string
	Shape   []int
	MemType string // "global", "local", "shared", ...
	IsInput bool
}

func (*Buffer) node() {}

// Size returns the flat element count of the buffer.
func (b *Buffer) Size() int {
	n := 1
	for _, d := range b.Shape {
		n *= d
	}
	return n
}

// Func is one lowered function: a name, ordered argument buffers, and a
// root block holding the body.
type Func struct {
	Name string
	Args []string
	Root *Block
}

// Module is an ordered collection of lowered functions plus the buffer
// table they operate on.
type Module struct {
	Funcs   []*Func
	Buffers []*Buffer
}

// Buffer returns the buffer with the given name, or nil.
func (m *Module) Buffer(name string) *Buffer {
	for _, b := range m.Buffers {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// AddBuffer appends a buffer to the module table.
func (m *Module) AddBuffer(b *Buffer) {
	m.Buffers = append(m.Buffers, b)
}

// RemoveBuffer drops the named buffer from the module table.
func (m *Module) RemoveBuffer(name string) {
	for i, b := range m.Buffers {
		if b.Name == name {
			m.Buffers = append(m.Buffers[:i], m.Buffers[i+1:]...)
			return
		}
	}
}
