// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rules implements schedule search rules. A rule follows a
// two-phase protocol: Init scans a schedule and reports how the search
// should proceed, then Apply transforms one of the applicable targets
// found by the scan.
package rules

import (
	"errors"

	"github.com/AleutianAI/tensortune/services/autotune/schedule"
)

// ApplyType tells the search driver what to do after a rule's scan.
type ApplyType int

const (
	// CannotApply means the scan found no applicable target; the rule
	// is skipped and the rest of the rule set still runs.
	CannotApply ApplyType = iota

	// ApplyAndSkipThisRule means the rule can be applied, after which it
	// must not run again on this schedule.
	ApplyAndSkipThisRule

	// ApplyAndPruneOtherRules means the rule can be applied and doing so
	// invalidates the remaining rules for this schedule.
	ApplyAndPruneOtherRules
)

func (t ApplyType) String() string {
	switch t {
	case CannotApply:
		return "CannotApply"
	case ApplyAndSkipThisRule:
		return "ApplyAndSkipThisRule"
	case ApplyAndPruneOtherRules:
		return "ApplyAndPruneOtherRules"
	default:
		return "Unknown"
	}
}

// ErrInvalidApplyIndex is returned by Apply when the index is outside
// [0, NumApplicable).
var ErrInvalidApplyIndex = errors.New("apply index out of range")

// Rule is one schedule search rule. Init must be called before
// NumApplicable or Apply; calling Init again rebinds the rule to a new
// schedule and discards the previous scan.
type Rule interface {
	// Name identifies the rule in logs and search telemetry.
	Name() string

	// Init scans s, remembers the applicable targets, and reports how
	// the search should proceed.
	Init(s *schedule.Schedule) ApplyType

	// NumApplicable returns the number of targets the last Init found.
	NumApplicable() int

	// Apply transforms the index-th applicable target on the schedule
	// given to the last Init.
	Apply(index int) error
}
