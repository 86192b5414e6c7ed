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

// NameState issues fresh, collision-free names within one schedule
// session. It replaces any process-wide naming counter: a session seeds
// its state from the names already present in its module, so replaying a
// trace against a structural copy regenerates the exact same names.
//
// Thread Safety: not safe for concurrent use; owned by one session.
type NameState struct {
	used map[string]struct{}
}

// NewNameState returns an empty naming state.
func NewNameState() *NameState {
	return &NameState{used: make(map[string]struct{})}
}

// SeedFromModule marks every loop variable, iteration variable, block
// name, and buffer name in m as taken.
func (s *NameState) SeedFromModule(m *Module) {
	for _, b := range m.Buffers {
		s.Mark(b.Name)
	}
	for _, f := range m.Funcs {
		s.Mark(f.Name)
		WalkNodes(f.Root, func(n Node) bool {
			switch n := n.(type) {
			case *Loop:
				s.Mark(n.Var)
			case *Block:
				s.Mark(n.Name)
				for _, iv := range n.IterVars {
					s.Mark(iv.Name)
				}
			}
			return true
		})
	}
}

// Mark records name as taken.
func (s *NameState) Mark(name string) {
	s.used[name] = struct{}{}
}

// Fresh returns base if it is unused, otherwise the first base_N (N >= 1)
// that is. The returned name is marked as taken.
func (s *NameState) Fresh(base string) string {
	if _, ok := s.used[base]; !ok {
		s.Mark(base)
		return base
	}
	for i := 1; ; i++ {
		name := fmt.Sprintf("%s_%d", base, i)
		if _, ok := s.used[name]; !ok {
			s.Mark(name)
			return name
		}
	}
}
