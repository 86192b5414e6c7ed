// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package schedule

import "errors"

// Sentinel errors for the schedule-transformation engine.
var (
	// ErrBlockNotFound is returned when no schedule block with the
	// requested name exists in the module.
	ErrBlockNotFound = errors.New("schedule block not found")

	// ErrLoopNotFound is returned when a loop handle or loop index does
	// not resolve inside the module tree.
	ErrLoopNotFound = errors.New("loop not found")

	// ErrBadHandle is returned when a handle has the wrong node type for
	// the primitive, or does not belong to this session's module.
	ErrBadHandle = errors.New("bad handle")

	// ErrTransform is returned when a primitive's own precondition fails,
	// e.g. split factors that do not cover the loop extent.
	ErrTransform = errors.New("invalid transformation")
)
