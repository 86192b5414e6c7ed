// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package trace

import (
	"fmt"
	"sort"

	"github.com/AleutianAI/tensortune/services/autotune/ir"
)

// Invoker re-executes one primitive against a session during replay.
// Inputs arrive as resolved handle lists in the kind's declared input
// order; attrs arrive in the declared attribute order.
type Invoker func(s Session, inputs [][]ir.Node, attrs []AttrValue) ([]ir.Node, error)

// StepKind describes one replayable primitive: its parameter shape and
// its replay invoker. A primitive the transformation engine supports but
// that is absent here can be neither traced nor replayed.
type StepKind struct {
	Name   string
	Inputs []string // ordered input-handle parameter names
	Attrs  []string // ordered attribute names
	invoke Invoker
}

// registry is populated once at package init and read-only afterwards,
// so it is safely shared across all sessions and workers.
var registry = map[string]*StepKind{}

func register(k StepKind) {
	if _, dup := registry[k.Name]; dup {
		panic(fmt.Sprintf("trace: step kind %q registered twice", k.Name))
	}
	kk := k
	registry[k.Name] = &kk
}

// Lookup returns the registered kind, or ErrUnknownPrimitive.
func Lookup(name string) (*StepKind, error) {
	k, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPrimitive, name)
	}
	return k, nil
}

// Kinds returns all registered kind names, sorted.
func Kinds() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// single extracts the lone handle of the i-th input list.
func single(kind string, inputs [][]ir.Node, i int) (ir.Node, error) {
	if i >= len(inputs) || len(inputs[i]) != 1 {
		return nil, fmt.Errorf("%w: step %s wants exactly one handle for input %d",
			ErrPrecondition, kind, i)
	}
	return inputs[i][0], nil
}

func init() {
	register(StepKind{
		Name: "GetAllBlocks",
		invoke: func(s Session, _ [][]ir.Node, _ []AttrValue) ([]ir.Node, error) {
			return s.GetAllBlocks(), nil
		},
	})
	register(StepKind{
		Name:  "GetBlock",
		Attrs: []string{"block_name"},
		invoke: func(s Session, _ [][]ir.Node, attrs []AttrValue) ([]ir.Node, error) {
			name, err := attrs[0].StringVal()
			if err != nil {
				return nil, err
			}
			b, err := s.GetBlock(name)
			if err != nil {
				return nil, err
			}
			return []ir.Node{b}, nil
		},
	})
	register(StepKind{
		Name:   "GetLoops",
		Inputs: []string{"block"},
		invoke: func(s Session, inputs [][]ir.Node, _ []AttrValue) ([]ir.Node, error) {
			b, err := single("GetLoops", inputs, 0)
			if err != nil {
				return nil, err
			}
			return s.GetLoops(b)
		},
	})
	register(StepKind{
		Name:  "GetLoopsWithName",
		Attrs: []string{"block_name"},
		invoke: func(s Session, _ [][]ir.Node, attrs []AttrValue) ([]ir.Node, error) {
			name, err := attrs[0].StringVal()
			if err != nil {
				return nil, err
			}
			return s.GetLoopsByName(name)
		},
	})
	register(StepKind{
		Name:   "GetRootBlock",
		Inputs: []string{"expr"},
		invoke: func(s Session, inputs [][]ir.Node, _ []AttrValue) ([]ir.Node, error) {
			e, err := single("GetRootBlock", inputs, 0)
			if err != nil {
				return nil, err
			}
			b, err := s.GetRootBlock(e)
			if err != nil {
				return nil, err
			}
			return []ir.Node{b}, nil
		},
	})
	register(StepKind{
		Name:   "Split",
		Inputs: []string{"loop"},
		Attrs:  []string{"factors"},
		invoke: func(s Session, inputs [][]ir.Node, attrs []AttrValue) ([]ir.Node, error) {
			l, err := single("Split", inputs, 0)
			if err != nil {
				return nil, err
			}
			factors, err := attrs[0].IntsVal()
			if err != nil {
				return nil, err
			}
			return s.Split(l, factors)
		},
	})
	register(StepKind{
		Name:  "SplitWithName",
		Attrs: []string{"block_name", "loop_index", "factors"},
		invoke: func(s Session, _ [][]ir.Node, attrs []AttrValue) ([]ir.Node, error) {
			name, err := attrs[0].StringVal()
			if err != nil {
				return nil, err
			}
			idx, err := attrs[1].IntVal()
			if err != nil {
				return nil, err
			}
			factors, err := attrs[2].IntsVal()
			if err != nil {
				return nil, err
			}
			return s.SplitByName(name, idx, factors)
		},
	})
	register(StepKind{
		Name:   "Fuse",
		Inputs: []string{"loops"},
		invoke: func(s Session, inputs [][]ir.Node, _ []AttrValue) ([]ir.Node, error) {
			if len(inputs) != 1 {
				return nil, fmt.Errorf("%w: Fuse wants one loop list", ErrPrecondition)
			}
			fused, err := s.Fuse(inputs[0])
			if err != nil {
				return nil, err
			}
			return []ir.Node{fused}, nil
		},
	})
	register(StepKind{
		Name:  "FuseWithName",
		Attrs: []string{"block_name", "loops_index"},
		invoke: func(s Session, _ [][]ir.Node, attrs []AttrValue) ([]ir.Node, error) {
			name, err := attrs[0].StringVal()
			if err != nil {
				return nil, err
			}
			idx, err := attrs[1].IntsVal()
			if err != nil {
				return nil, err
			}
			fused, err := s.FuseByName(name, idx)
			if err != nil {
				return nil, err
			}
			return []ir.Node{fused}, nil
		},
	})
	register(StepKind{
		Name:   "FuseWithBlock",
		Inputs: []string{"block"},
		Attrs:  []string{"loops_index"},
		invoke: func(s Session, inputs [][]ir.Node, attrs []AttrValue) ([]ir.Node, error) {
			b, err := single("FuseWithBlock", inputs, 0)
			if err != nil {
				return nil, err
			}
			idx, err := attrs[0].IntsVal()
			if err != nil {
				return nil, err
			}
			fused, err := s.FuseByBlock(b, idx)
			if err != nil {
				return nil, err
			}
			return []ir.Node{fused}, nil
		},
	})
	register(StepKind{
		Name:   "Reorder",
		Inputs: []string{"loops"},
		invoke: func(s Session, inputs [][]ir.Node, _ []AttrValue) ([]ir.Node, error) {
			if len(inputs) != 1 {
				return nil, fmt.Errorf("%w: Reorder wants one loop list", ErrPrecondition)
			}
			return nil, s.Reorder(inputs[0])
		},
	})
	register(StepKind{
		Name:   "ReorderWithBlock",
		Inputs: []string{"block"},
		Attrs:  []string{"loops_index"},
		invoke: func(s Session, inputs [][]ir.Node, attrs []AttrValue) ([]ir.Node, error) {
			b, err := single("ReorderWithBlock", inputs, 0)
			if err != nil {
				return nil, err
			}
			idx, err := attrs[0].IntsVal()
			if err != nil {
				return nil, err
			}
			return nil, s.ReorderByBlock(b, idx)
		},
	})
	register(StepKind{
		Name:  "ReorderWithName",
		Attrs: []string{"block_name", "loops_index"},
		invoke: func(s Session, _ [][]ir.Node, attrs []AttrValue) ([]ir.Node, error) {
			name, err := attrs[0].StringVal()
			if err != nil {
				return nil, err
			}
			idx, err := attrs[1].IntsVal()
			if err != nil {
				return nil, err
			}
			return nil, s.ReorderByName(name, idx)
		},
	})
	register(StepKind{
		Name:   "Parallel",
		Inputs: []string{"loop"},
		invoke: func(s Session, inputs [][]ir.Node, _ []AttrValue) ([]ir.Node, error) {
			l, err := single("Parallel", inputs, 0)
			if err != nil {
				return nil, err
			}
			return nil, s.Parallel(l)
		},
	})
	register(StepKind{
		Name:   "Vectorize",
		Inputs: []string{"loop"},
		Attrs:  []string{"factor"},
		invoke: func(s Session, inputs [][]ir.Node, attrs []AttrValue) ([]ir.Node, error) {
			l, err := single("Vectorize", inputs, 0)
			if err != nil {
				return nil, err
			}
			factor, err := attrs[0].IntVal()
			if err != nil {
				return nil, err
			}
			return nil, s.Vectorize(l, factor)
		},
	})
	register(StepKind{
		Name:   "Unroll",
		Inputs: []string{"loop"},
		invoke: func(s Session, inputs [][]ir.Node, _ []AttrValue) ([]ir.Node, error) {
			l, err := single("Unroll", inputs, 0)
			if err != nil {
				return nil, err
			}
			return nil, s.Unroll(l)
		},
	})
	register(StepKind{
		Name:   "Bind",
		Inputs: []string{"loop"},
		Attrs:  []string{"thread_axis"},
		invoke: func(s Session, inputs [][]ir.Node, attrs []AttrValue) ([]ir.Node, error) {
			l, err := single("Bind", inputs, 0)
			if err != nil {
				return nil, err
			}
			axis, err := attrs[0].StringVal()
			if err != nil {
				return nil, err
			}
			return nil, s.Bind(l, axis)
		},
	})
	register(StepKind{
		Name:   "ComputeAt",
		Inputs: []string{"block", "loop"},
		invoke: func(s Session, inputs [][]ir.Node, _ []AttrValue) ([]ir.Node, error) {
			b, err := single("ComputeAt", inputs, 0)
			if err != nil {
				return nil, err
			}
			l, err := single("ComputeAt", inputs, 1)
			if err != nil {
				return nil, err
			}
			return nil, s.ComputeAt(b, l)
		},
	})
	register(StepKind{
		Name:   "SimpleComputeAt",
		Inputs: []string{"block", "loop"},
		invoke: func(s Session, inputs [][]ir.Node, _ []AttrValue) ([]ir.Node, error) {
			b, err := single("SimpleComputeAt", inputs, 0)
			if err != nil {
				return nil, err
			}
			l, err := single("SimpleComputeAt", inputs, 1)
			if err != nil {
				return nil, err
			}
			return nil, s.SimpleComputeAt(b, l)
		},
	})
	register(StepKind{
		Name:   "ComputeInline",
		Inputs: []string{"schedule_block"},
		invoke: func(s Session, inputs [][]ir.Node, _ []AttrValue) ([]ir.Node, error) {
			b, err := single("ComputeInline", inputs, 0)
			if err != nil {
				return nil, err
			}
			return nil, s.ComputeInline(b)
		},
	})
	register(StepKind{
		Name:   "CacheRead",
		Inputs: []string{"block"},
		Attrs:  []string{"read_buffer_index", "memory_type"},
		invoke: func(s Session, inputs [][]ir.Node, attrs []AttrValue) ([]ir.Node, error) {
			b, err := single("CacheRead", inputs, 0)
			if err != nil {
				return nil, err
			}
			idx, err := attrs[0].IntVal()
			if err != nil {
				return nil, err
			}
			mem, err := attrs[1].StringVal()
			if err != nil {
				return nil, err
			}
			cache, err := s.CacheRead(b, idx, mem)
			if err != nil {
				return nil, err
			}
			return []ir.Node{cache}, nil
		},
	})
	register(StepKind{
		Name:   "CacheWrite",
		Inputs: []string{"block"},
		Attrs:  []string{"write_buffer_index", "memory_type"},
		invoke: func(s Session, inputs [][]ir.Node, attrs []AttrValue) ([]ir.Node, error) {
			b, err := single("CacheWrite", inputs, 0)
			if err != nil {
				return nil, err
			}
			idx, err := attrs[0].IntVal()
			if err != nil {
				return nil, err
			}
			mem, err := attrs[1].StringVal()
			if err != nil {
				return nil, err
			}
			cache, err := s.CacheWrite(b, idx, mem)
			if err != nil {
				return nil, err
			}
			return []ir.Node{cache}, nil
		},
	})
	register(StepKind{
		Name:   "SyncThreads",
		Inputs: []string{"ir_node"},
		Attrs:  []string{"after_node"},
		invoke: func(s Session, inputs [][]ir.Node, attrs []AttrValue) ([]ir.Node, error) {
			n, err := single("SyncThreads", inputs, 0)
			if err != nil {
				return nil, err
			}
			after, err := attrs[0].BoolVal()
			if err != nil {
				return nil, err
			}
			return nil, s.SyncThreads(n, after)
		},
	})
	register(StepKind{
		Name:   "SetBuffer",
		Inputs: []string{"block"},
		Attrs:  []string{"memory_type", "fixed"},
		invoke: func(s Session, inputs [][]ir.Node, attrs []AttrValue) ([]ir.Node, error) {
			b, err := single("SetBuffer", inputs, 0)
			if err != nil {
				return nil, err
			}
			mem, err := attrs[0].StringVal()
			if err != nil {
				return nil, err
			}
			fixed, err := attrs[1].BoolVal()
			if err != nil {
				return nil, err
			}
			return nil, s.SetBuffer(b, mem, fixed)
		},
	})
	register(StepKind{
		Name:   "Rfactor",
		Inputs: []string{"rf_loop"},
		Attrs:  []string{"rf_axis"},
		invoke: func(s Session, inputs [][]ir.Node, attrs []AttrValue) ([]ir.Node, error) {
			l, err := single("Rfactor", inputs, 0)
			if err != nil {
				return nil, err
			}
			axis, err := attrs[0].IntVal()
			if err != nil {
				return nil, err
			}
			rf, err := s.Rfactor(l, axis)
			if err != nil {
				return nil, err
			}
			return []ir.Node{rf}, nil
		},
	})
	register(StepKind{
		Name: "MergeExprs",
		invoke: func(s Session, _ [][]ir.Node, _ []AttrValue) ([]ir.Node, error) {
			return nil, s.MergeExprs()
		},
	})
	register(StepKind{
		Name:   "Annotate",
		Inputs: []string{"block"},
		Attrs:  []string{"key", "value"},
		invoke: func(s Session, inputs [][]ir.Node, attrs []AttrValue) ([]ir.Node, error) {
			b, err := single("Annotate", inputs, 0)
			if err != nil {
				return nil, err
			}
			key, err := attrs[0].StringVal()
			if err != nil {
				return nil, err
			}
			return nil, s.Annotate(b, key, attrs[1])
		},
	})
}
