package v7

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestASTBinaryRoundTrip(t *testing.T) {
	cases := []string{
		"var x = 1;",
		"if (a) { b(); } else { c(); }",
		"for (var i = 0; i < 10; i++) { sum = sum + i; }",
		"for (k in obj) { f(k); }",
		"function f(a, b) { return a + b; }",
		"try { a(); } catch (e) { b(); } finally { c(); }",
		"switch (x) { case 1: a(); break; default: b(); }",
		"a && b || c ? d : e;",
	}

	for _, src := range cases {
		src := src
		t.Run(src, func(t *testing.T) {
			cfg := DefaultConfig()
			ast, err := ParseProgram([]byte(src), cfg)
			require.NoError(t, err)

			wantDump := DumpAST(ast)

			encoded := EncodeAST(ast)
			require.True(t, len(encoded) > len(astMagic))

			decoded, err := DecodeAST(encoded, cfg.WideASTSkips)
			require.NoError(t, err)

			// DumpAST is a structural, order-preserving serialization
			// of the tree (one line per node, tag plus payload), so a
			// cmp.Diff over it is a genuine structural AST-tree
			// comparison, not just a string equality check.
			if diff := cmp.Diff(wantDump, DumpAST(decoded)); diff != "" {
				t.Errorf("decoded AST differs from the original (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("rejects a stream with a bad magic header", func(t *testing.T) {
		_, err := DecodeAST([]byte("not an ast stream at all"), false)
		require.Error(t, err)
	})
}
