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
	"encoding/json"
	"fmt"

	"github.com/AleutianAI/tensortune/services/autotune/ir"
)

// WireVersion is the serialization format version embedded in every
// encoded trace. Decoding rejects any other version.
const WireVersion = "1.0.0"

// HandleRef locates a handle positionally: the Output-th output of the
// Step-th step of the trace. Identity of the in-memory node never crosses
// the wire; position is the whole contract.
type HandleRef struct {
	Step   int `json:"step"`
	Output int `json:"output"`
}

// SerializedInput is one named input with its handle references.
type SerializedInput struct {
	Name    string      `json:"name"`
	Handles []HandleRef `json:"handles"`
}

// SerializedAttr is one named attribute with its typed value.
type SerializedAttr struct {
	Name  string    `json:"name"`
	Value AttrValue `json:"value"`
}

// SerializedStep is the wire form of one step. Outputs are recorded only
// by count; replay regenerates the actual nodes.
type SerializedStep struct {
	Kind        string            `json:"kind"`
	Inputs      []SerializedInput `json:"inputs,omitempty"`
	Attrs       []SerializedAttr  `json:"attrs,omitempty"`
	OutputCount int               `json:"output_count"`
}

// SerializedTrace is the self-contained wire form of a trace.
type SerializedTrace struct {
	Version string           `json:"version"`
	Steps   []SerializedStep `json:"steps"`
}

// Serialize converts the trace to its positional wire form. Every input
// handle must appear among the outputs of an earlier step; a handle with
// no such provenance fails with ErrDanglingHandle.
func (t *Trace) Serialize() (*SerializedTrace, error) {
	// Provenance index: node identity -> position of first production.
	seen := map[ir.Node]HandleRef{}

	out := &SerializedTrace{Version: WireVersion, Steps: make([]SerializedStep, 0, len(t.steps))}
	for si, s := range t.steps {
		ss := SerializedStep{Kind: s.Kind, OutputCount: len(s.Outputs)}
		for _, in := range s.Inputs {
			sin := SerializedInput{Name: in.Name, Handles: make([]HandleRef, 0, len(in.Handles))}
			for hi, h := range in.Handles {
				ref, ok := seen[h]
				if !ok {
					return nil, fmt.Errorf("%w: step %d (%s) input %q handle %d was not produced by any earlier step",
						ErrDanglingHandle, si, s.Kind, in.Name, hi)
				}
				sin.Handles = append(sin.Handles, ref)
			}
			ss.Inputs = append(ss.Inputs, sin)
		}
		for _, a := range s.Attrs {
			ss.Attrs = append(ss.Attrs, SerializedAttr{Name: a.Name, Value: a.Value})
		}
		out.Steps = append(out.Steps, ss)

		for oi, o := range s.Outputs {
			if _, dup := seen[o]; !dup {
				seen[o] = HandleRef{Step: si, Output: oi}
			}
		}
	}
	return out, nil
}

// Encode serializes the trace and renders it as JSON.
func (t *Trace) Encode() ([]byte, error) {
	st, err := t.Serialize()
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(st, "", "  ")
}

// Decode parses a JSON-encoded trace and validates its version and every
// step against the primitive registry.
func Decode(data []byte) (*SerializedTrace, error) {
	var st SerializedTrace
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decoding trace: %w", err)
	}
	if st.Version != WireVersion {
		return nil, fmt.Errorf("decoding trace: unsupported wire version %q, want %q", st.Version, WireVersion)
	}
	for i, ss := range st.Steps {
		kind, err := Lookup(ss.Kind)
		if err != nil {
			return nil, fmt.Errorf("decoding trace: step %d: %w", i, err)
		}
		if err := checkSerializedShape(kind, &ss); err != nil {
			return nil, fmt.Errorf("decoding trace: step %d: %w", i, err)
		}
		for _, in := range ss.Inputs {
			for _, ref := range in.Handles {
				if ref.Step < 0 || ref.Step >= i || ref.Output < 0 {
					return nil, fmt.Errorf("%w: step %d (%s) references step %d output %d",
						ErrDanglingHandle, i, ss.Kind, ref.Step, ref.Output)
				}
			}
		}
	}
	return &st, nil
}

func checkSerializedShape(k *StepKind, s *SerializedStep) error {
	if len(s.Inputs) != len(k.Inputs) {
		return fmt.Errorf("%w: step %s has %d inputs, want %d",
			ErrPrecondition, s.Kind, len(s.Inputs), len(k.Inputs))
	}
	for i, name := range k.Inputs {
		if s.Inputs[i].Name != name {
			return fmt.Errorf("%w: step %s input %d is %q, want %q",
				ErrPrecondition, s.Kind, i, s.Inputs[i].Name, name)
		}
	}
	if len(s.Attrs) != len(k.Attrs) {
		return fmt.Errorf("%w: step %s has %d attrs, want %d",
			ErrPrecondition, s.Kind, len(s.Attrs), len(k.Attrs))
	}
	for i, name := range k.Attrs {
		if s.Attrs[i].Name != name {
			return fmt.Errorf("%w: step %s attr %d is %q, want %q",
				ErrPrecondition, s.Kind, i, s.Attrs[i].Name, name)
		}
	}
	return nil
}
