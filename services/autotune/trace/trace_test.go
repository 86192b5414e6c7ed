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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/tensortune/services/autotune/ir"
)

func loopHandle(name string) ir.Node { return &ir.Loop{Var: name, Extent: 4} }

// TestAppendUnknownKind verifies appending a step of an unregistered
// kind fails.
func TestAppendUnknownKind(t *testing.T) {
	tr := New()
	err := tr.Append(NewStep("Transmogrify", nil, nil, nil))
	require.ErrorIs(t, err, ErrUnknownPrimitive)
	assert.Equal(t, 0, tr.Len())
}

// TestAppendShapeMismatch verifies the registry rejects steps whose
// parameter shapes diverge from the declared ones.
func TestAppendShapeMismatch(t *testing.T) {
	tr := New()

	// Split declares one input ("loop") and one attr ("factors").
	err := tr.Append(NewStep("Split", nil, nil, nil))
	require.ErrorIs(t, err, ErrPrecondition)

	err = tr.Append(NewStep("Split",
		[]Input{{Name: "block", Handles: []ir.Node{loopHandle("i")}}},
		[]Attr{{Name: "factors", Value: IntsAttr([]int{2, 2})}},
		nil))
	require.ErrorIs(t, err, ErrPrecondition)

	err = tr.Append(NewStep("Split",
		[]Input{{Name: "loop", Handles: []ir.Node{loopHandle("i")}}},
		[]Attr{{Name: "splits", Value: IntsAttr([]int{2, 2})}},
		nil))
	require.ErrorIs(t, err, ErrPrecondition)
}

// TestAppendValidStep verifies a well-shaped step lands in the log.
func TestAppendValidStep(t *testing.T) {
	tr := New()
	l := loopHandle("i")
	require.NoError(t, tr.Append(NewStep("GetAllBlocks", nil, nil, []ir.Node{l})))
	require.NoError(t, tr.Append(NewStep("Unroll",
		[]Input{{Name: "loop", Handles: []ir.Node{l}}}, nil, nil)))

	assert.Equal(t, 2, tr.Len())
	assert.Equal(t, "GetAllBlocks", tr.Steps()[0].Kind)
	assert.Equal(t, "Unroll", tr.Steps()[1].Kind)
}

// TestSerializePositionalRefs verifies handles serialize as (step,
// output) positions.
func TestSerializePositionalRefs(t *testing.T) {
	tr := New()
	l0, l1 := loopHandle("i"), loopHandle("j")
	require.NoError(t, tr.Append(NewStep("GetLoopsWithName", nil,
		[]Attr{{Name: "block_name", Value: StringAttr("C")}},
		[]ir.Node{l0, l1})))
	require.NoError(t, tr.Append(NewStep("Fuse",
		[]Input{{Name: "loops", Handles: []ir.Node{l0, l1}}},
		nil, []ir.Node{loopHandle("i_j_fused")})))

	st, err := tr.Serialize()
	require.NoError(t, err)
	require.Len(t, st.Steps, 2)
	assert.Equal(t, WireVersion, st.Version)
	assert.Equal(t, 2, st.Steps[0].OutputCount)

	fuse := st.Steps[1]
	require.Len(t, fuse.Inputs, 1)
	assert.Equal(t, []HandleRef{{Step: 0, Output: 0}, {Step: 0, Output: 1}}, fuse.Inputs[0].Handles)
}

// TestSerializeDanglingHandle verifies an input handle no earlier step
// produced is rejected.
func TestSerializeDanglingHandle(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Append(NewStep("Unroll",
		[]Input{{Name: "loop", Handles: []ir.Node{loopHandle("i")}}}, nil, nil)))

	_, err := tr.Serialize()
	require.ErrorIs(t, err, ErrDanglingHandle)
}

// TestEncodeDecodeRoundTrip verifies the JSON wire form survives a
// round trip with attrs intact.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	tr := New()
	l := loopHandle("i")
	require.NoError(t, tr.Append(NewStep("GetLoopsWithName", nil,
		[]Attr{{Name: "block_name", Value: StringAttr("B")}},
		[]ir.Node{l})))
	require.NoError(t, tr.Append(NewStep("Split",
		[]Input{{Name: "loop", Handles: []ir.Node{l}}},
		[]Attr{{Name: "factors", Value: IntsAttr([]int{4, -1})}},
		[]ir.Node{loopHandle("i_0"), loopHandle("i_1")})))

	data, err := tr.Encode()
	require.NoError(t, err)

	st, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, st.Steps, 2)

	assert.Equal(t, "GetLoopsWithName", st.Steps[0].Kind)
	name := st.Steps[0].Attrs[0].Value
	got, err := name.StringVal()
	require.NoError(t, err)
	assert.Equal(t, "B", got)

	factors, err := st.Steps[1].Attrs[0].Value.IntsVal()
	require.NoError(t, err)
	assert.Equal(t, []int{4, -1}, factors)
	assert.Equal(t, 2, st.Steps[1].OutputCount)
}

// TestDecodeRejectsVersion verifies version mismatch detection.
func TestDecodeRejectsVersion(t *testing.T) {
	_, err := Decode([]byte(`{"version": "9.9.9", "steps": []}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wire version")
}

// TestDecodeRejectsUnknownKind verifies kind validation during decode.
func TestDecodeRejectsUnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"version": "1.0.0", "steps": [
		{"kind": "Transmogrify", "output_count": 0}
	]}`))
	require.ErrorIs(t, err, ErrUnknownPrimitive)
}

// TestDecodeRejectsForwardRef verifies a step cannot reference outputs
// of itself or of later steps.
func TestDecodeRejectsForwardRef(t *testing.T) {
	_, err := Decode([]byte(`{"version": "1.0.0", "steps": [
		{"kind": "Unroll",
		 "inputs": [{"name": "loop", "handles": [{"step": 0, "output": 0}]}],
		 "output_count": 0}
	]}`))
	require.ErrorIs(t, err, ErrDanglingHandle)
}

// TestAttrValueAccessors verifies typed accessors reject mismatched
// kinds.
func TestAttrValueAccessors(t *testing.T) {
	v := IntAttr(42)
	got, err := v.IntVal()
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	_, err = v.StringVal()
	require.ErrorIs(t, err, ErrAttrType)
	_, err = v.BoolVal()
	require.ErrorIs(t, err, ErrAttrType)
	_, err = StringAttr("x").IntsVal()
	require.ErrorIs(t, err, ErrAttrType)
}

// TestAttrValueJSONRoundTrip verifies each variant survives JSON.
func TestAttrValueJSONRoundTrip(t *testing.T) {
	cases := []AttrValue{
		BoolAttr(true),
		IntAttr(-3),
		FloatAttr(2.5),
		StringAttr("shared"),
		IntsAttr([]int{1, 2, 3}),
		StringsAttr([]string{"a", "b"}),
	}
	for _, want := range cases {
		data, err := json.Marshal(want)
		require.NoError(t, err, "kind %s", want.Kind)
		var got AttrValue
		require.NoError(t, json.Unmarshal(data, &got), "kind %s", want.Kind)
		assert.Equal(t, want, got, "kind %s", want.Kind)
	}
}

// TestStepAccessors verifies named lookups on a step.
func TestStepAccessors(t *testing.T) {
	l := loopHandle("i")
	s := NewStep("Vectorize",
		[]Input{{Name: "loop", Handles: []ir.Node{l}}},
		[]Attr{{Name: "factor", Value: IntAttr(8)}},
		nil)

	assert.Equal(t, []ir.Node{l}, s.Input("loop"))
	assert.Nil(t, s.Input("block"))

	v, ok := s.Attr("factor")
	require.True(t, ok)
	n, err := v.IntVal()
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	_, ok = s.Attr("missing")
	assert.False(t, ok)
}

// TestKindsRegistryComplete verifies every replayable primitive is
// registered under its wire name.
func TestKindsRegistryComplete(t *testing.T) {
	want := []string{
		"Annotate", "Bind", "CacheRead", "CacheWrite", "ComputeAt",
		"ComputeInline", "Fuse", "FuseWithBlock", "FuseWithName",
		"GetAllBlocks", "GetBlock", "GetLoops", "GetLoopsWithName",
		"GetRootBlock", "MergeExprs", "Parallel", "Reorder",
		"ReorderWithBlock", "ReorderWithName", "Rfactor", "SetBuffer",
		"SimpleComputeAt", "Split", "SplitWithName", "SyncThreads",
		"Unroll", "Vectorize",
	}
	assert.Equal(t, want, Kinds())

	for _, name := range want {
		k, err := Lookup(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, k.Name)
	}
}
