package v7

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v7lang/v7/internal/testutil"
)

func TestDisassemble(t *testing.T) {
	e := NewEngine(DefaultConfig())
	ast, err := ParseProgram([]byte("1 + 2;"), e.Config())
	require.NoError(t, err)
	bc, err := e.Compile(ast, "<test>", false)
	require.NoError(t, err)

	t.Run("plain output has no ANSI escapes", func(t *testing.T) {
		out := Disassemble(e, bc, false)
		assert.NotContains(t, out, "\x1b[")
		assert.Contains(t, out, "add")
	})

	t.Run("colored output wraps mnemonics in ANSI escapes", func(t *testing.T) {
		out := Disassemble(e, bc, true)
		assert.Contains(t, out, "\x1b[")
	})

	t.Run("plain disassembly is stable across an identical recompile", func(t *testing.T) {
		ast2, err := ParseProgram([]byte("1 + 2;"), e.Config())
		require.NoError(t, err)
		bc2, err := e.Compile(ast2, "<test>", false)
		require.NoError(t, err)

		want, got := Disassemble(e, bc, false), Disassemble(e, bc2, false)
		if diff := testutil.Diff("disasm", want, got); diff != "" {
			t.Fatalf("Disassemble is not stable across an identical recompile:\n%s", diff)
		}
	})
}
