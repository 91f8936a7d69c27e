package v7

import (
	"encoding/binary"
	"math"
)

// ASTTag identifies a node kind in the append-only AST buffer (spec
// §3 "AST: append-only tagged variable-length node buffer").
type ASTTag byte

const (
	ASTProgram ASTTag = iota
	ASTBlockStmt
	ASTVarDecl
	ASTVarDeclarator
	ASTFunctionDecl
	ASTFunctionExpr
	ASTExprStmt
	ASTEmptyStmt
	ASTIfStmt
	ASTForStmt
	ASTForInStmt
	ASTWhileStmt
	ASTDoWhileStmt
	ASTReturnStmt
	ASTBreakStmt
	ASTContinueStmt
	ASTThrowStmt
	ASTTryStmt
	ASTCatchClause
	ASTSwitchStmt
	ASTCaseClause
	ASTLabeledStmt
	ASTSequenceExpr
	ASTAssignExpr
	ASTConditionalExpr
	ASTLogicalExpr
	ASTBinaryExpr
	ASTUnaryExpr
	ASTUpdateExpr
	ASTCallExpr
	ASTNewExpr
	ASTMemberExpr
	ASTComputedMemberExpr
	ASTArrayExpr
	ASTObjectExpr
	ASTProperty
	ASTIdentifier
	ASTNumberLit
	ASTStringLit
	ASTBooleanLit
	ASTNullLit
	ASTThisExpr
	ASTRegexpLit
)

// AST is the append-only, skip-annotated node buffer the parser
// writes into and the compiler walks (spec §3/§4.3). Every node is
// `[tag byte][skip field][fixed payload][children...]`; skip holds
// the byte length of everything after the skip field for that node's
// own subtree, which lets a reader jump straight past a subtree
// without visiting it (used by the compiler's hoisting pre-pass and
// by Cursor.Next below).
//
// The skip field is 16-bit by default and 32-bit when the engine is
// configured for large ASTs (EngineConfig.WideASTSkips); once a
// subtree's byte length would overflow the configured width,
// has_overflow is set permanently and every later CloseNode fails with
// ASTTooLargeError (spec §3 "sticky has_overflow").
type AST struct {
	buf      []byte
	wide     bool
	overflow bool
}

func NewAST(wide bool) *AST { return &AST{wide: wide} }

func (a *AST) skipFieldSize() int {
	if a.wide {
		return 4
	}
	return 2
}

// OpenNode begins a node: writes its tag and a placeholder skip
// field, returning the skip field's offset so CloseNode can patch it
// once every child and payload byte has been appended.
func (a *AST) OpenNode(tag ASTTag) (skipOffset int) {
	a.buf = append(a.buf, byte(tag))
	skipOffset = len(a.buf)
	for i := 0; i < a.skipFieldSize(); i++ {
		a.buf = append(a.buf, 0)
	}
	return skipOffset
}

// CloseNode backpatches the skip field opened at skipOffset. Must be
// called exactly once, after every child of that node has been fully
// written.
func (a *AST) CloseNode(skipOffset int) error {
	if a.overflow {
		return ASTTooLargeError{Message: "AST exceeded its configured size after a prior overflow"}
	}
	n := len(a.buf) - (skipOffset + a.skipFieldSize())
	if a.wide {
		if uint64(n) > 0xFFFFFFFF {
			a.overflow = true
			return ASTTooLargeError{Message: "AST node subtree exceeds 32-bit skip width"}
		}
		binary.LittleEndian.PutUint32(a.buf[skipOffset:], uint32(n))
	} else {
		if n > 0xFFFF {
			a.overflow = true
			return ASTTooLargeError{Message: "AST node subtree exceeds 16-bit skip width; reconfigure with WideASTSkips"}
		}
		binary.LittleEndian.PutUint16(a.buf[skipOffset:], uint16(n))
	}
	return nil
}

// AddString appends a varint-length-prefixed UTF-8 payload, used for
// Identifier/StringLit/RegexpLit leaf payloads.
func (a *AST) AddString(s string) {
	a.buf = binary.AppendUvarint(a.buf, uint64(len(s)))
	a.buf = append(a.buf, s...)
}

// AddFloat64 appends an 8-byte little-endian float payload (NumberLit).
func (a *AST) AddFloat64(f float64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(f))
	a.buf = append(a.buf, tmp[:]...)
}

func (a *AST) AddByte(b byte) { a.buf = append(a.buf, b) }

func (a *AST) AddUint16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	a.buf = append(a.buf, tmp[:]...)
}

// Cursor walks a finished AST buffer. Cursors are plain (buf, pos)
// pairs, cheap to copy, matching the "move_to_children"/"skip_tree"
// traversal primitives of spec §3.
type Cursor struct {
	ast *AST
	pos int
}

func (a *AST) Root() Cursor { return Cursor{ast: a, pos: 0} }

func (c Cursor) Valid() bool { return c.pos < len(c.ast.buf) }

func (c Cursor) Tag() ASTTag { return ASTTag(c.ast.buf[c.pos]) }

func (c Cursor) skipValue() int {
	body := c.ast.buf[c.pos+1:]
	if c.ast.wide {
		return int(binary.LittleEndian.Uint32(body))
	}
	return int(binary.LittleEndian.Uint16(body))
}

// bodyStart is the offset immediately after the tag+skip header,
// where fixed payload bytes (if any) and then children begin.
func (c Cursor) bodyStart() int { return c.pos + 1 + c.ast.skipFieldSize() }

// End returns the offset one past this node's entire subtree, i.e.
// where its next sibling (if any) begins.
func (c Cursor) End() int { return c.bodyStart() + c.skipValue() }

// Next moves to this node's sibling, skipping the whole subtree
// without visiting any of it (spec's "skip_tree").
func (c Cursor) Next() Cursor { return Cursor{ast: c.ast, pos: c.End()} }

// ReadString decodes a varint-length string payload starting at
// offset, returning the string and the offset immediately after it.
func (c *AST) readString(offset int) (string, int) {
	n, w := binary.Uvarint(c.buf[offset:])
	start := offset + w
	return string(c.buf[start : start+int(n)]), start + int(n)
}

func (c *AST) readUint16(offset int) uint16 {
	return binary.LittleEndian.Uint16(c.buf[offset : offset+2])
}

func (c *AST) readFloat64(offset int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(c.buf[offset : offset+8]))
}

// AtChild returns a cursor positioned at offset bytes into this
// node's body (past tag+skip), used by node-specific decoders in
// parser.go/compiler.go that know their own node's fixed layout.
func (c Cursor) AtChild(bodyOffset int) Cursor {
	return Cursor{ast: c.ast, pos: c.bodyStart() + bodyOffset}
}
