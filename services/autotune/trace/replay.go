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

	"github.com/AleutianAI/tensortune/services/autotune/ir"
)

// Replay serializes the trace and re-executes it against a fresh session,
// typically one wrapping a structural copy of the original module. It
// returns the outputs of the last replayed step, or nil for an empty
// trace. The handles inside the original trace are never touched; every
// step resolves its inputs through the replay's own lookup table.
func Replay(t *Trace, s Session) ([]ir.Node, error) {
	st, err := t.Serialize()
	if err != nil {
		return nil, err
	}
	return ReplaySerialized(st, s)
}

// ReplaySerialized re-executes a wire-form trace against a session. Steps
// run strictly in order; each step's inputs are resolved positionally
// from the outputs of earlier replayed steps. A reference that falls
// outside a producing step's actual output list fails with
// ErrDanglingHandle. The outputs of the final step are returned.
func ReplaySerialized(st *SerializedTrace, s Session) ([]ir.Node, error) {
	produced := make([][]ir.Node, 0, len(st.Steps))
	var last []ir.Node
	for i, ss := range st.Steps {
		kind, err := Lookup(ss.Kind)
		if err != nil {
			return nil, fmt.Errorf("replaying step %d: %w", i, err)
		}
		if err := checkSerializedShape(kind, &ss); err != nil {
			return nil, fmt.Errorf("replaying step %d: %w", i, err)
		}

		inputs := make([][]ir.Node, 0, len(ss.Inputs))
		for _, in := range ss.Inputs {
			handles := make([]ir.Node, 0, len(in.Handles))
			for _, ref := range in.Handles {
				if ref.Step < 0 || ref.Step >= len(produced) ||
					ref.Output < 0 || ref.Output >= len(produced[ref.Step]) {
					return nil, fmt.Errorf("%w: step %d (%s) references step %d output %d",
						ErrDanglingHandle, i, ss.Kind, ref.Step, ref.Output)
				}
				handles = append(handles, produced[ref.Step][ref.Output])
			}
			inputs = append(inputs, handles)
		}

		attrs := make([]AttrValue, 0, len(ss.Attrs))
		for _, a := range ss.Attrs {
			attrs = append(attrs, a.Value)
		}

		outputs, err := kind.invoke(s, inputs, attrs)
		if err != nil {
			return nil, fmt.Errorf("replaying step %d (%s): %w", i, ss.Kind, err)
		}
		produced = append(produced, outputs)
		last = outputs
	}
	return last, nil
}
