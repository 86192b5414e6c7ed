// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"

	"github.com/AleutianAI/tensortune/services/autotune/ir"
)

// buildWorkload constructs the lowered module the commands operate on.
// Workload construction is deterministic, so a replayed trace meets the
// exact module it was recorded against.
func buildWorkload(name string, m, n, k int) (*ir.Module, error) {
	switch name {
	case "matmul":
		return ir.MatmulProgram("matmul_main", m, n, k), nil
	case "elementwise":
		return ir.ElementwiseProgram("elementwise_main", "A", []int{m, n},
			ir.Stage{Name: "B", Source: "A", Scale: 2},
			ir.Stage{Name: "C", Source: "B", Offset: 1},
		)
	default:
		return nil, fmt.Errorf("unknown workload %q (want matmul or elementwise)", name)
	}
}
