package v7

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseOK(t *testing.T, src string) *AST {
	t.Helper()
	ast, err := ParseProgram([]byte(src), DefaultConfig())
	require.NoError(t, err)
	return ast
}

func TestParserASTShape(t *testing.T) {
	t.Run("var declarator with initializer", func(t *testing.T) {
		ast := parseOK(t, "var x = 1;")
		dump := DumpAST(ast)
		assert.Contains(t, dump, "VarDeclarator")
		assert.Contains(t, dump, "NumberLit")
	})

	t.Run("if without else", func(t *testing.T) {
		ast := parseOK(t, "if (x) y;")
		dump := DumpAST(ast)
		assert.Contains(t, dump, "IfStmt")
		assert.NotContains(t, dump, "alternate")
	})

	t.Run("if with else", func(t *testing.T) {
		ast := parseOK(t, "if (x) y; else z;")
		root := ast.Root()
		require.True(t, root.Valid())
		assert.Equal(t, ASTProgram, root.Tag())
	})

	t.Run("classic for loop, var form", func(t *testing.T) {
		ast := parseOK(t, "for (var i = 0; i < 10; i++) {}")
		dump := DumpAST(ast)
		assert.Contains(t, dump, "ForStmt")
	})

	t.Run("classic for loop, bare expression form", func(t *testing.T) {
		ast := parseOK(t, "for (i = 0; i < 10; i++) {}")
		dump := DumpAST(ast)
		assert.Contains(t, dump, "ForStmt")
	})

	t.Run("for-in loop", func(t *testing.T) {
		ast := parseOK(t, "for (var k in obj) {}")
		dump := DumpAST(ast)
		assert.Contains(t, dump, "ForInStmt")
	})

	t.Run("try/catch/finally", func(t *testing.T) {
		ast := parseOK(t, "try { a(); } catch (e) { b(); } finally { c(); }")
		dump := DumpAST(ast)
		assert.Contains(t, dump, "TryStmt")
		assert.Contains(t, dump, "CatchClause")
	})

	t.Run("switch with default", func(t *testing.T) {
		ast := parseOK(t, "switch (x) { case 1: a(); break; default: b(); }")
		dump := DumpAST(ast)
		assert.Contains(t, dump, "SwitchStmt")
		assert.Contains(t, dump, "CaseClause")
	})

	t.Run("logical operators keep distinct op bytes", func(t *testing.T) {
		ast := parseOK(t, "a && b || c;")
		dump := DumpAST(ast)
		assert.True(t, strings.Contains(dump, "&&") && strings.Contains(dump, "||"))
	})

	t.Run("function declaration with params", func(t *testing.T) {
		ast := parseOK(t, "function f(a, b) { return a + b; }")
		dump := DumpAST(ast)
		assert.Contains(t, dump, "FunctionDecl")
		assert.Contains(t, dump, "ReturnStmt")
	})

	t.Run("syntax error reports a location", func(t *testing.T) {
		_, err := ParseProgram([]byte("var ;"), DefaultConfig())
		require.Error(t, err)
		se, ok := err.(SyntaxError)
		assert.True(t, ok)
		assert.Equal(t, 1, se.Loc.Line)
		assert.Equal(t, 5, se.Loc.Column)
	})
}
