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

import "github.com/AleutianAI/tensortune/services/autotune/ir"

// Session is the capability contract the replay engine holds against the
// schedule-transformation engine. Every replayable primitive appears
// here; the registry is the only component that invokes these methods
// during replay, making it the sole seam between the trace engine and the
// transformation engine.
//
// Handle-taking methods resolve their targets through live ir.Node values
// produced by earlier calls in the same session. The *ByName variants
// resolve by a block's declared name instead, deliberately avoiding any
// ordering dependency on earlier handles.
type Session interface {
	// Lookups.
	GetAllBlocks() []ir.Node
	GetBlock(blockName string) (ir.Node, error)
	GetLoops(block ir.Node) ([]ir.Node, error)
	GetLoopsByName(blockName string) ([]ir.Node, error)
	GetRootBlock(expr ir.Node) (ir.Node, error)

	// Loop restructuring.
	Split(loop ir.Node, factors []int) ([]ir.Node, error)
	SplitByName(blockName string, loopIndex int, factors []int) ([]ir.Node, error)
	Fuse(loops []ir.Node) (ir.Node, error)
	FuseByName(blockName string, loopsIndex []int) (ir.Node, error)
	FuseByBlock(block ir.Node, loopsIndex []int) (ir.Node, error)
	Reorder(loops []ir.Node) error
	ReorderByBlock(block ir.Node, loopsIndex []int) error
	ReorderByName(blockName string, loopsIndex []int) error

	// Iteration-order marking.
	Parallel(loop ir.Node) error
	Vectorize(loop ir.Node, factor int) error
	Unroll(loop ir.Node) error
	Bind(loop ir.Node, threadAxis string) error

	// Block placement and materialization.
	ComputeAt(block, loop ir.Node) error
	SimpleComputeAt(block, loop ir.Node) error
	ComputeInline(block ir.Node) error
	CacheRead(block ir.Node, readBufferIndex int, memoryType string) (ir.Node, error)
	CacheWrite(block ir.Node, writeBufferIndex int, memoryType string) (ir.Node, error)
	SyncThreads(node ir.Node, afterNode bool) error
	SetBuffer(block ir.Node, memoryType string, fixed bool) error
	Rfactor(rfLoop ir.Node, rfAxis int) (ir.Node, error)

	// Module-level operations.
	MergeExprs() error
	Annotate(block ir.Node, key string, value AttrValue) error
}
