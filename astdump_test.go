package v7

import (
	"testing"

	"github.com/v7lang/v7/internal/testutil"
)

// TestDumpASTGolden exercises the -t dump helper the CLI calls
// directly: parsing the same source twice must produce byte-identical
// dumps, since DumpAST has no hidden non-determinism (map iteration,
// pointer addresses, etc.) to leak into the output.
func TestDumpASTGolden(t *testing.T) {
	src := `
		function fib(n) {
			if (n < 2) { return n; }
			return fib(n - 1) + fib(n - 2);
		}
		var results = [];
		for (var i = 0; i < 5; i++) {
			results[i] = fib(i);
		}
	`

	ast1 := parseOK(t, src)
	ast2 := parseOK(t, src)

	want, got := DumpAST(ast1), DumpAST(ast2)
	if diff := testutil.Diff("dump-ast", want, got); diff != "" {
		t.Fatalf("DumpAST is not stable across an identical reparse:\n%s", diff)
	}
}
