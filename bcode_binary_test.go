package v7

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// valSnapshot turns a Val into a plain comparable struct so two Vals
// produced by different engine paths (a fresh Exec vs. a decoded
// bytecode run) can be structurally diffed with cmp.Diff instead of
// compared by their raw 64-bit bit pattern, which is allowed to differ
// (e.g. two distinct owned-string heap allocations of the same text).
type valSnapshot struct {
	Kind   string
	Number float64
	Str    string
}

func snapshotVal(t *testing.T, e *Engine, v Val) valSnapshot {
	t.Helper()
	switch {
	case v.IsNumber():
		return valSnapshot{Kind: "number", Number: v.Float()}
	case v.IsString():
		s, err := v.String(e)
		require.NoError(t, err)
		return valSnapshot{Kind: "string", Str: s}
	case v.IsUndefined():
		return valSnapshot{Kind: "undefined"}
	case v.IsBoolean():
		n := float64(0)
		if v.Bool() {
			n = 1
		}
		return valSnapshot{Kind: "boolean", Number: n}
	default:
		return valSnapshot{Kind: "other"}
	}
}

func TestBcodeBinaryRoundTrip(t *testing.T) {
	cases := []string{
		"1 + 2 * 3;",
		`"a" + "b";`,
		"function add(a, b) { return a + b; } add(1, 2);",
		"function outer() { function inner() { return 1; } return inner(); } outer();",
	}

	for _, src := range cases {
		src := src
		t.Run(src, func(t *testing.T) {
			e := NewEngine(DefaultConfig())
			data, err := e.CompileToBytes([]byte(src), "<test>")
			require.NoError(t, err)

			v, err := e.LoadBytecode(data, "<test>")
			require.NoError(t, err)

			v2, result, err := e.Exec([]byte(src), "<test>")
			require.NoError(t, err)
			require.Equal(t, ResultOK, result)

			if diff := cmp.Diff(snapshotVal(t, e, v2), snapshotVal(t, e, v)); diff != "" {
				t.Errorf("value produced from decoded bytecode differs from a fresh Exec (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("rejects a stream with a bad magic header", func(t *testing.T) {
		e := NewEngine(DefaultConfig())
		_, err := DecodeBcode(e, []byte("garbage"))
		require.Error(t, err)
	})
}
