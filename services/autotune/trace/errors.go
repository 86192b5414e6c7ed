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

import "errors"

// Sentinel errors for the trace/replay engine. Structural faults are
// fatal to the current call: they indicate a corrupted trace or a logic
// defect that would otherwise produce a silently wrong schedule.
var (
	// ErrUnknownPrimitive is returned when a step references a kind that
	// is not in the primitive registry.
	ErrUnknownPrimitive = errors.New("unknown primitive kind")

	// ErrDanglingHandle is returned when a step input references a handle
	// position that no earlier step produced. A well-formed trace never
	// triggers this.
	ErrDanglingHandle = errors.New("dangling handle reference")

	// ErrPrecondition is returned when a step's shape or a primitive's
	// own precondition is violated.
	ErrPrecondition = errors.New("precondition violation")

	// ErrAttrType is returned when an attribute value does not carry the
	// kind the accessor asked for.
	ErrAttrType = errors.New("attribute type mismatch")
)
