// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package measure

import (
	"context"
	"fmt"

	"github.com/AleutianAI/tensortune/services/autotune/ir"
)

// SimpleBuilder links an input's scheduled modules into one artifact and
// renders its source. It performs the structural checks a real code
// generator would reject on: duplicate functions, missing or conflicting
// buffer declarations.
type SimpleBuilder struct{}

// NewSimpleBuilder returns a builder backed by the in-process
// interpreter pipeline.
func NewSimpleBuilder() *SimpleBuilder { return &SimpleBuilder{} }

// Concurrency implements Builder. Linking mutates no shared state, but
// measurement hosts treat the build toolchain as an exclusive resource.
func (b *SimpleBuilder) Concurrency() int { return 1 }

// Build implements Builder.
func (b *SimpleBuilder) Build(_ context.Context, in Input) (BuildResult, error) {
	if len(in.Modules) == 0 {
		return BuildResult{}, fmt.Errorf("%w: no modules to build", ErrInvalidInput)
	}

	merged := &ir.Module{}
	funcNames := map[string]bool{}
	for _, m := range in.Modules {
		if m == nil {
			return BuildResult{}, fmt.Errorf("%w: nil module", ErrInvalidInput)
		}
		mc := m.Copy()
		for _, f := range mc.Funcs {
			if funcNames[f.Name] {
				return BuildResult{}, fmt.Errorf("duplicate function %q", f.Name)
			}
			funcNames[f.Name] = true
			merged.Funcs = append(merged.Funcs, f)
		}
		for _, buf := range mc.Buffers {
			if prev := merged.Buffer(buf.Name); prev != nil {
				if !sameShape(prev.Shape, buf.Shape) {
					return BuildResult{}, fmt.Errorf("buffer %q redeclared with shape %v, want %v",
						buf.Name, buf.Shape, prev.Shape)
				}
				continue
			}
			merged.AddBuffer(buf)
		}
	}

	if err := validate(merged); err != nil {
		return BuildResult{}, err
	}
	return BuildResult{Artifact: merged, Source: ir.SourceCode(merged)}, nil
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// validate checks that every buffer the artifact touches is declared
// with a matching rank.
func validate(m *ir.Module) error {
	check := func(name string, rank int) error {
		buf := m.Buffer(name)
		if buf == nil {
			return fmt.Errorf("undeclared buffer %q", name)
		}
		if len(buf.Shape) != rank {
			return fmt.Errorf("buffer %q accessed with rank %d, declared rank %d",
				name, rank, len(buf.Shape))
		}
		return nil
	}
	for _, f := range m.Funcs {
		for _, blk := range ir.CollectBlocks(f.Root) {
			for _, st := range blk.Stores {
				if err := check(st.Buffer, len(st.Indices)); err != nil {
					return fmt.Errorf("function %q block %q: %w", f.Name, blk.Name, err)
				}
				var loadErr error
				visit := func(e ir.Expr) ir.Expr {
					if load, ok := e.(*ir.Load); ok && loadErr == nil {
						loadErr = check(load.Buffer, len(load.Indices))
					}
					return e
				}
				ir.RewriteExprs(st.Value, visit)
				for _, ix := range st.Indices {
					ir.RewriteExprs(ix, visit)
				}
				if loadErr != nil {
					return fmt.Errorf("function %q block %q: %w", f.Name, blk.Name, loadErr)
				}
			}
		}
	}
	return nil
}

var _ Builder = (*SimpleBuilder)(nil)
