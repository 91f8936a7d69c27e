// Package testutil collects the handful of test-only helpers shared
// across the v7 package's _test.go files, rather than duplicating a
// diff helper in every file that wants one.
package testutil

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
)

// Diff renders a unified diff between want and got, named like the
// teacher's own test failures so a mismatch reads as a patch instead
// of one opaque "not equal" line. Returns "" when want == got.
func Diff(name, want, got string) string {
	if want == got {
		return ""
	}
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(want),
		B:        difflib.SplitLines(got),
		FromFile: name + " (want)",
		ToFile:   name + " (got)",
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return fmt.Sprintf("(diff error: %v)\nwant:\n%s\ngot:\n%s", err, want, got)
	}
	return text
}
