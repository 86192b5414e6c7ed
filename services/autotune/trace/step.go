// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package trace implements the trace/replay engine at the heart of the
// tuner: an append-only log of schedule-transformation steps, a static
// registry describing every replayable primitive, a positional JSON wire
// format, and a replay engine that re-executes a trace against a fresh
// session.
//
// Handles (ir.Node values) are meaningful only within one session or one
// replay run. They are never serialized by identity: the wire format
// expresses every cross-step reference as (producing step index, output
// index), resolved through a lookup table built fresh for each replay.
package trace

import "github.com/AleutianAI/tensortune/services/autotune/ir"

// Input is one named, ordered list of handle arguments to a step.
type Input struct {
	Name    string
	Handles []ir.Node
}

// Attr is one named literal attribute of a step.
type Attr struct {
	Name  string
	Value AttrValue
}

// Step records a single primitive invocation: the registry kind, the
// handle inputs, the literal attributes, and the handles the invocation
// produced. Steps are immutable once appended to a trace.
type Step struct {
	Kind    string
	Inputs  []Input
	Attrs   []Attr
	Outputs []ir.Node
}

// NewStep assembles a step. Inputs and attrs keep their given order; the
// registry validates them against the kind's declared parameter shape on
// append.
func NewStep(kind string, inputs []Input, attrs []Attr, outputs []ir.Node) Step {
	return Step{Kind: kind, Inputs: inputs, Attrs: attrs, Outputs: outputs}
}

// Input returns the handle list for the named input, or nil.
func (s *Step) Input(name string) []ir.Node {
	for _, in := range s.Inputs {
		if in.Name == name {
			return in.Handles
		}
	}
	return nil
}

// Attr returns the named attribute value and whether it is present.
func (s *Step) Attr(name string) (AttrValue, bool) {
	for _, a := range s.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return AttrValue{}, false
}
