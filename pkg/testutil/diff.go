// Copyright (C) 2025-2026  Ambassador Labs (for civet)
//
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/pmezard/go-difflib/difflib"
)

var spewConfig = spew.ConfigState{
	Indent:                  "  ",
	DisableMethods:          true,
	DisableCapacities:       true,
	DisablePointerAddresses: true,
	SortKeys:                true,
}

// AssertEqualText compares two multi-line strings, reporting a mismatch as a
// unified diff rather than as two walls of text.
func AssertEqualText(t *testing.T, exp, act string) bool {
	t.Helper()
	if exp == act {
		return true
	}
	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(exp),
		B:        difflib.SplitLines(act),
		FromFile: "Expected",
		ToFile:   "Actual",
		Context:  3,
	})
	t.Errorf("Text diff:\n%s", diff)
	return false
}

// AssertEqualDump compares two values by their spew dumps, which both sidesteps
// unexported fields in reflect.DeepEqual-based asserts and yields a
// line-oriented diff on mismatch.
func AssertEqualDump(t *testing.T, exp, act interface{}) bool {
	t.Helper()
	return AssertEqualText(t, spewConfig.Sdump(exp), spewConfig.Sdump(act))
}
