// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command tensortune tunes tensor-program schedules: it searches over
// schedule transformations for each function of a workload, measures
// the candidates, and stores the best-performing traces for reuse.
//
// Usage:
//
//	go run ./cmd/tensortune tune --workload matmul --m 32 --n 32 --k 32
//	go run ./cmd/tensortune replay best_trace.json --workload matmul
//	go run ./cmd/tensortune best --workload matmul
package main

import (
	"log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
