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

import "fmt"

// Trace is the append-only, ordered log of transformation steps belonging
// to one schedule session. It mirrors 1:1 the primitive calls issued
// against the session and fully determines the session's final schedule.
//
// The trace is a pure recorder: callers execute primitives themselves and
// append the recorded step with its resulting outputs. Appending never
// re-executes anything.
//
// Thread Safety: a trace is exclusively owned by its session's caller;
// concurrent mutation must be serialized externally.
type Trace struct {
	steps []Step
}

// New returns an empty trace.
func New() *Trace {
	return &Trace{}
}

// Append validates the step kind against the primitive registry and
// appends the step. An unregistered kind fails with ErrUnknownPrimitive;
// a parameter shape that does not match the registry's declaration fails
// with ErrPrecondition. Appended steps are never mutated or removed.
func (t *Trace) Append(s Step) error {
	kind, err := Lookup(s.Kind)
	if err != nil {
		return err
	}
	if err := kind.checkShape(&s); err != nil {
		return err
	}
	t.steps = append(t.steps, s)
	return nil
}

// Steps returns the recorded steps in order. The returned slice is shared
// with the trace and must be treated as read-only.
func (t *Trace) Steps() []Step {
	return t.steps
}

// Len returns the number of recorded steps.
func (t *Trace) Len() int {
	return len(t.steps)
}

// checkShape verifies that a step carries exactly the input and attribute
// names the registry declares for its kind, in order.
func (k *StepKind) checkShape(s *Step) error {
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
