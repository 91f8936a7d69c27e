package v7

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanAll(t *testing.T, src string) []Token {
	t.Helper()
	lx := NewLexer([]byte(src))
	var toks []Token
	for {
		tok, err := lx.Next(true)
		require.NoError(t, err)
		toks = append(toks, tok)
		if tok.Kind == TokEOF {
			return toks
		}
	}
}

func TestLexer(t *testing.T) {
	t.Run("idents and keywords", func(t *testing.T) {
		toks := scanAll(t, "var x = foo;")
		require.Len(t, toks, 6) // var x = foo ; EOF
		assert.Equal(t, TokKeyword, toks[0].Kind)
		assert.Equal(t, "var", toks[0].Value)
		assert.Equal(t, TokIdent, toks[1].Kind)
		assert.Equal(t, "x", toks[1].Value)
	})

	t.Run("numbers", func(t *testing.T) {
		toks := scanAll(t, "3.14 0x10 10")
		assert.Equal(t, TokNumber, toks[0].Kind)
		assert.Equal(t, 3.14, toks[0].Num)
		assert.Equal(t, TokNumber, toks[1].Kind)
		assert.Equal(t, float64(16), toks[1].Num)
		assert.Equal(t, float64(10), toks[2].Num)
	})

	t.Run("strings decode escapes", func(t *testing.T) {
		toks := scanAll(t, `"a\nb"`)
		assert.Equal(t, TokString, toks[0].Kind)
		assert.Equal(t, "a\nb", toks[0].Value)
	})

	t.Run("newline tracked for ASI", func(t *testing.T) {
		toks := scanAll(t, "a\nb")
		assert.False(t, toks[0].NewlineBefore)
		assert.True(t, toks[1].NewlineBefore)
	})

	t.Run("punctuators", func(t *testing.T) {
		toks := scanAll(t, "=== !== <= >>>")
		assert.Equal(t, "===", toks[0].Value)
		assert.Equal(t, "!==", toks[1].Value)
		assert.Equal(t, "<=", toks[2].Value)
		assert.Equal(t, ">>>", toks[3].Value)
	})
}
