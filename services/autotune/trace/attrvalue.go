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
)

// AttrKind tags the variant carried by an AttrValue.
type AttrKind string

// Supported attribute kinds. The set is closed: steps only ever carry
// these literal shapes.
const (
	AttrBool    AttrKind = "bool"
	AttrInt     AttrKind = "int"
	AttrFloat   AttrKind = "float"
	AttrString  AttrKind = "string"
	AttrInts    AttrKind = "ints"
	AttrStrings AttrKind = "strings"
)

// AttrValue is the closed tagged union used for step attributes. Values
// are immutable once placed into a step.
type AttrValue struct {
	Kind    AttrKind
	Bool    bool
	Int     int
	Float   float64
	Str     string
	Ints    []int
	Strings []string
}

// Constructors for each variant.

func BoolAttr(v bool) AttrValue      { return AttrValue{Kind: AttrBool, Bool: v} }
func IntAttr(v int) AttrValue        { return AttrValue{Kind: AttrInt, Int: v} }
func FloatAttr(v float64) AttrValue  { return AttrValue{Kind: AttrFloat, Float: v} }
func StringAttr(v string) AttrValue  { return AttrValue{Kind: AttrString, Str: v} }
func IntsAttr(v []int) AttrValue     { return AttrValue{Kind: AttrInts, Ints: append([]int(nil), v...)} }
func StringsAttr(v []string) AttrValue {
	return AttrValue{Kind: AttrStrings, Strings: append([]string(nil), v...)}
}

// Typed accessors. Each returns ErrAttrType when the value carries a
// different kind, which surfaces malformed traces instead of zero values.

func (v AttrValue) BoolVal() (bool, error) {
	if v.Kind != AttrBool {
		return false, fmt.Errorf("%w: want %s, got %s", ErrAttrType, AttrBool, v.Kind)
	}
	return v.Bool, nil
}

func (v AttrValue) IntVal() (int, error) {
	if v.Kind != AttrInt {
		return 0, fmt.Errorf("%w: want %s, got %s", ErrAttrType, AttrInt, v.Kind)
	}
	return v.Int, nil
}

func (v AttrValue) FloatVal() (float64, error) {
	if v.Kind != AttrFloat {
		return 0, fmt.Errorf("%w: want %s, got %s", ErrAttrType, AttrFloat, v.Kind)
	}
	return v.Float, nil
}

func (v AttrValue) StringVal() (string, error) {
	if v.Kind != AttrString {
		return "", fmt.Errorf("%w: want %s, got %s", ErrAttrType, AttrString, v.Kind)
	}
	return v.Str, nil
}

func (v AttrValue) IntsVal() ([]int, error) {
	if v.Kind != AttrInts {
		return nil, fmt.Errorf("%w: want %s, got %s", ErrAttrType, AttrInts, v.Kind)
	}
	return v.Ints, nil
}

func (v AttrValue) StringsVal() ([]string, error) {
	if v.Kind != AttrStrings {
		return nil, fmt.Errorf("%w: want %s, got %s", ErrAttrType, AttrStrings, v.Kind)
	}
	return v.Strings, nil
}

// Any returns the dynamic value, used when attaching annotations to IR
// blocks.
func (v AttrValue) Any() any {
	switch v.Kind {
	case AttrBool:
		return v.Bool
	case AttrInt:
		return v.Int
	case AttrFloat:
		return v.Float
	case AttrString:
		return v.Str
	case AttrInts:
		return v.Ints
	case AttrStrings:
		return v.Strings
	default:
		return nil
	}
}

// attrValueJSON is the wire form: the kind tag plus exactly one value
// field.
type attrValueJSON struct {
	Kind    AttrKind `json:"kind"`
	Bool    *bool    `json:"bool,omitempty"`
	Int     *int     `json:"int,omitempty"`
	Float   *float64 `json:"float,omitempty"`
	Str     *string  `json:"string,omitempty"`
	Ints    []int    `json:"ints,omitempty"`
	Strings []string `json:"strings,omitempty"`
}

// MarshalJSON encodes the value tagged by kind.
func (v AttrValue) MarshalJSON() ([]byte, error) {
	out := attrValueJSON{Kind: v.Kind}
	switch v.Kind {
	case AttrBool:
		out.Bool = &v.Bool
	case AttrInt:
		out.Int = &v.Int
	case AttrFloat:
		out.Float = &v.Float
	case AttrString:
		out.Str = &v.Str
	case AttrInts:
		out.Ints = v.Ints
		if out.Ints == nil {
			out.Ints = []int{}
		}
	case AttrStrings:
		out.Strings = v.Strings
		if out.Strings == nil {
			out.Strings = []string{}
		}
	default:
		return nil, fmt.Errorf("%w: cannot marshal kind %q", ErrAttrType, v.Kind)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a tagged value.
func (v *AttrValue) UnmarshalJSON(data []byte) error {
	var in attrValueJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	out := AttrValue{Kind: in.Kind}
	switch in.Kind {
	case AttrBool:
		if in.Bool != nil {
			out.Bool = *in.Bool
		}
	case AttrInt:
		if in.Int != nil {
			out.Int = *in.Int
		}
	case AttrFloat:
		if in.Float != nil {
			out.Float = *in.Float
		}
	case AttrString:
		if in.Str != nil {
			out.Str = *in.Str
		}
	case AttrInts:
		out.Ints = in.Ints
	case AttrStrings:
		out.Strings = in.Strings
	default:
		return fmt.Errorf("%w: cannot unmarshal kind %q", ErrAttrType, in.Kind)
	}
	*v = out
	return nil
}
