package v7

import (
	"encoding/binary"
	"fmt"
)

// compiler walks a finished AST (ast.go) and emits a Bcode (bcode.go).
// One compiler instance lives for exactly one function or script body;
// nested function literals get their own compiler sharing the same
// engine (for literal/name interning).
type compiler struct {
	e  *Engine
	bc *Bcode

	tempCounter int
}

// newTemp allocates a hidden local binding invisible to script source
// (no valid JS identifier contains a NUL byte), used to stash an
// intermediate object/key/value reference whenever more than two items
// would otherwise have to coexist on the data stack — compound
// assignment and ++/-- against a property target, chiefly. Routing
// through a named binding instead of juggling stack rotations keeps
// every multi-step lvalue operation built from the same Get/Set primitives.
func (c *compiler) newTemp() string {
	c.tempCounter++
	return fmt.Sprintf("\x00t%d", c.tempCounter)
}

func (c *compiler) declareTemp(name string) {
	c.bc.localVars = append(c.bc.localVars, c.e.StringVal(name))
}

// Compile turns a parsed Program AST into its top-level script Bcode
// (spec §4.3 "AST -> Bcode"). source/strict are carried onto the
// resulting Bcode for SyntaxError/stack-trace reporting and the
// strict-mode checks OpSetPropLit and friends perform at runtime.
func (e *Engine) Compile(ast *AST, source string, strict bool) (*Bcode, error) {
	c := &compiler{e: e, bc: &Bcode{source: source, strict: strict}}
	prog := ast.Root()
	if prog.Tag() != ASTProgram {
		return nil, InternalError{Message: "Compile expects a Program root node"}
	}
	if err := c.compileFunctionLike(true, nil, childCursors(prog)); err != nil {
		return nil, err
	}
	return c.bc, nil
}

// childCursors enumerates a node's direct children by repeatedly
// skipping whole subtrees (Cursor.Next/End), never descending into
// grandchildren.
func childCursors(cur Cursor) []Cursor {
	var out []Cursor
	pos := cur.bodyStart()
	end := cur.End()
	for pos < end {
		ch := Cursor{ast: cur.ast, pos: pos}
		out = append(out, ch)
		pos = ch.End()
	}
	return out
}

// ---- literal / name table interning ----

func (c *compiler) addLit(v Val) int {
	for i, x := range c.bc.lit {
		if x == v {
			return i
		}
	}
	c.bc.lit = append(c.bc.lit, v)
	return len(c.bc.lit) - 1
}

func (c *compiler) addName(v Val) int {
	for i, x := range c.bc.names {
		if x == v {
			return i
		}
	}
	c.bc.names = append(c.bc.names, v)
	return len(c.bc.names) - 1
}

func (c *compiler) addNameString(s string) int { return c.addName(c.e.StringVal(s)) }

// ---- bytecode emission ----

func (c *compiler) emit(op Opcode) { c.bc.ops = append(c.bc.ops, byte(op)) }

func (c *compiler) emitUvarint(x uint64) {
	c.bc.ops = binary.AppendUvarint(c.bc.ops, x)
}

func (c *compiler) emitOpUvarint(op Opcode, x uint64) {
	c.emit(op)
	c.emitUvarint(x)
}

func (c *compiler) pc() int { return len(c.bc.ops) }

// emitI32Placeholder reserves 4 bytes for a later-patched absolute PC
// operand (used by jumps and try-frame targets, whose destination is
// only known once the surrounding construct finishes compiling).
func (c *compiler) emitI32Placeholder() int {
	pos := len(c.bc.ops)
	c.bc.ops = append(c.bc.ops, 0, 0, 0, 0)
	return pos
}

func (c *compiler) patchI32(pos int, value int) {
	binary.LittleEndian.PutUint32(c.bc.ops[pos:], uint32(int32(value)))
}

func (c *compiler) emitI32(value int) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(int32(value)))
	c.bc.ops = append(c.bc.ops, tmp[:]...)
}

func (c *compiler) emitLabelOperand(label string) {
	if label == "" {
		c.bc.ops = append(c.bc.ops, 0)
		return
	}
	c.bc.ops = append(c.bc.ops, 1)
	c.emitUvarint(uint64(c.addNameString(label)))
}

// ---- function-like compilation (shared by scripts and functions) ----

// compileFunctionLike compiles a statement list that forms a whole
// script or function body: it runs the hoisting pre-pass, binds
// hoisted function declarations up front, compiles every statement
// threading the completion-value seed (spec §4.5), and emits the
// epilogue. Scripts return their seed (the last completion value);
// functions always fall through to an implicit `return undefined`.
func (c *compiler) compileFunctionLike(isScript bool, params []string, stmts []Cursor) error {
	varNames, funcDecls := hoist(stmts)

	seen := map[string]bool{}
	for _, p := range params {
		if !seen[p] {
			seen[p] = true
			c.bc.localVars = append(c.bc.localVars, c.e.StringVal(p))
		}
	}
	for _, v := range varNames {
		if !seen[v] {
			seen[v] = true
			c.bc.localVars = append(c.bc.localVars, c.e.StringVal(v))
		}
	}
	for _, fd := range funcDecls {
		if !seen[fd.name] {
			seen[fd.name] = true
			c.bc.localVars = append(c.bc.localVars, c.e.StringVal(fd.name))
		}
	}
	c.bc.argCount = len(params)

	c.emit(OpPushUndefined) // the completion-value seed

	for _, fd := range funcDecls {
		if err := c.compileFunctionLiteral(fd.cur, ASTFunctionDecl); err != nil {
			return err
		}
		c.emitOpUvarint(OpSetVar, uint64(c.addNameString(fd.name)))
	}

	for _, st := range stmts {
		if err := c.compileStatement(st); err != nil {
			return err
		}
	}

	if isScript {
		c.emit(OpRet)
	} else {
		c.emit(OpPop)
		c.emit(OpPushUndefined)
		c.emit(OpRet)
	}
	return nil
}

type hoistedFunc struct {
	name string
	cur  Cursor
}

// hoist walks a function/script body collecting `var`-declared names
// and function declarations, without descending into nested function
// literals (those get their own hoisting scope when compiled
// separately). Function declarations are returned in source order so
// later ones correctly shadow earlier ones with the same name, matching
// how the prologue binds them one after another.
func hoist(stmts []Cursor) (vars []string, funcs []hoistedFunc) {
	for _, st := range stmts {
		hoistStatement(st, &vars, &funcs)
	}
	return
}

func hoistStatement(cur Cursor, vars *[]string, funcs *[]hoistedFunc) {
	switch cur.Tag() {
	case ASTVarDecl:
		for _, d := range childCursors(cur) {
			name, _ := cur.ast.readString(d.bodyStart() + 1)
			*vars = append(*vars, name)
		}
	case ASTFunctionDecl:
		name, _ := cur.ast.readString(cur.bodyStart())
		*funcs = append(*funcs, hoistedFunc{name: name, cur: cur})
	case ASTBlockStmt:
		for _, s := range childCursors(cur) {
			hoistStatement(s, vars, funcs)
		}
	case ASTIfStmt:
		hasAlt := cur.ast.buf[cur.bodyStart()] != 0
		kids := childCursors(cur)
		// kids[0]=test, kids[1]=consequent, kids[2]=alternate(if hasAlt)
		hoistStatement(kids[1], vars, funcs)
		if hasAlt {
			hoistStatement(kids[2], vars, funcs)
		}
	case ASTForStmt:
		flags := cur.ast.buf[cur.bodyStart()]
		kids := childCursors(cur)
		i := 0
		if flags&0b001 != 0 {
			if kids[i].Tag() == ASTVarDecl {
				hoistStatement(kids[i], vars, funcs)
			}
			i++
		}
		if flags&0b010 != 0 {
			i++
		}
		if flags&0b100 != 0 {
			i++
		}
		hoistStatement(kids[i], vars, funcs)
	case ASTForInStmt:
		isVarDecl := cur.ast.buf[cur.bodyStart()] != 0
		kids := childCursors(cur)
		if isVarDecl {
			name, _ := cur.ast.readString(kids[0].bodyStart() + 1)
			*vars = append(*vars, name)
		}
		hoistStatement(kids[2], vars, funcs)
	case ASTWhileStmt:
		kids := childCursors(cur)
		hoistStatement(kids[1], vars, funcs)
	case ASTDoWhileStmt:
		kids := childCursors(cur)
		hoistStatement(kids[0], vars, funcs)
	case ASTTryStmt:
		flags := cur.ast.buf[cur.bodyStart()]
		kids := childCursors(cur)
		i := 0
		hoistStatement(kids[i], vars, funcs) // try block
		i++
		if flags&1 != 0 {
			catchClause := kids[i]
			name, _ := cur.ast.readString(catchClause.bodyStart())
			*vars = append(*vars, name)
			catchKids := childCursors(catchClause)
			hoistStatement(catchKids[0], vars, funcs)
			i++
		}
		if flags&2 != 0 {
			hoistStatement(kids[i], vars, funcs)
		}
	case ASTSwitchStmt:
		kids := childCursors(cur)
		for _, cs := range kids[1:] {
			isCase := cur.ast.buf[cs.bodyStart()] != 0
			caseKids := childCursors(cs)
			start := 0
			if isCase {
				start = 1
			}
			for _, s := range caseKids[start:] {
				hoistStatement(s, vars, funcs)
			}
		}
	case ASTLabeledStmt:
		kids := childCursors(cur)
		hoistStatement(kids[0], vars, funcs)
	}
}

// ---- statement compilation ----

// compileStatement emits code that is stack-neutral overall: the only
// place the completion-value seed actually changes is ASTExprStmt's
// Swap;Pop pair, so every control-flow construct below just has to
// compile its nested statements in the right control-flow shape without
// otherwise touching the stack (spec §4.5).
func (c *compiler) compileStatement(cur Cursor) error {
	switch cur.Tag() {
	case ASTEmptyStmt, ASTFunctionDecl:
		return nil
	case ASTBlockStmt:
		for _, s := range childCursors(cur) {
			if err := c.compileStatement(s); err != nil {
				return err
			}
		}
		return nil
	case ASTVarDecl:
		for _, d := range childCursors(cur) {
			hasInit := cur.ast.buf[d.bodyStart()] != 0
			name, next := cur.ast.readString(d.bodyStart() + 1)
			if hasInit {
				initCur := Cursor{ast: cur.ast, pos: next}
				if err := c.compileExpr(initCur); err != nil {
					return err
				}
				c.emitOpUvarint(OpSetVar, uint64(c.addNameString(name)))
			}
		}
		return nil
	case ASTExprStmt:
		kids := childCursors(cur)
		if err := c.compileExpr(kids[0]); err != nil {
			return err
		}
		c.emit(OpSwap)
		c.emit(OpPop)
		return nil
	case ASTIfStmt:
		return c.compileIf(cur)
	case ASTForStmt:
		return c.compileFor(cur, "")
	case ASTForInStmt:
		return c.compileForIn(cur, "")
	case ASTWhileStmt:
		return c.compileWhile(cur, "")
	case ASTDoWhileStmt:
		return c.compileDoWhile(cur, "")
	case ASTReturnStmt:
		return c.compileReturn(cur)
	case ASTBreakStmt:
		return c.compileBreakContinue(cur, OpBreak)
	case ASTContinueStmt:
		return c.compileBreakContinue(cur, OpContinue)
	case ASTThrowStmt:
		kids := childCursors(cur)
		if err := c.compileExpr(kids[0]); err != nil {
			return err
		}
		c.emit(OpThrow)
		return nil
	case ASTTryStmt:
		return c.compileTry(cur)
	case ASTSwitchStmt:
		return c.compileSwitch(cur, "")
	case ASTLabeledStmt:
		return c.compileLabeled(cur)
	default:
		return InternalError{Message: "compileStatement: unexpected AST tag"}
	}
}

func (c *compiler) compileIf(cur Cursor) error {
	hasAlt := cur.ast.buf[cur.bodyStart()] != 0
	kids := childCursors(cur)
	if err := c.compileExpr(kids[0]); err != nil {
		return err
	}
	c.emit(OpJmpIfFalse)
	elsePos := c.emitI32Placeholder2()
	if err := c.compileStatement(kids[1]); err != nil {
		return err
	}
	if hasAlt {
		c.emit(OpJmp)
		endPos := c.emitI32Placeholder2()
		c.patchI32(elsePos, c.pc())
		if err := c.compileStatement(kids[2]); err != nil {
			return err
		}
		c.patchI32(endPos, c.pc())
	} else {
		c.patchI32(elsePos, c.pc())
	}
	return nil
}

// emitI32Placeholder2 is emitI32Placeholder without the redundant emit
// call ordering; kept as a thin alias for readability at call sites
// that already emitted the opcode immediately before.
func (c *compiler) emitI32Placeholder2() int { return c.emitI32Placeholder() }

func (c *compiler) compileReturn(cur Cursor) error {
	hasArg := cur.ast.buf[cur.bodyStart()] != 0
	if hasArg {
		kids := childCursors(cur)
		if err := c.compileExpr(kids[0]); err != nil {
			return err
		}
	} else {
		c.emit(OpPushUndefined)
	}
	c.emit(OpRet)
	return nil
}

func (c *compiler) compileBreakContinue(cur Cursor, op Opcode) error {
	hasLabel := cur.ast.buf[cur.bodyStart()] != 0
	label := ""
	if hasLabel {
		label, _ = cur.ast.readString(cur.bodyStart() + 1)
	}
	c.emit(op)
	c.emitLabelOperand(label)
	return nil
}

func (c *compiler) compileLabeled(cur Cursor) error {
	name, next := cur.ast.readString(cur.bodyStart())
	body := Cursor{ast: cur.ast, pos: next}
	switch body.Tag() {
	case ASTForStmt:
		return c.compileFor(body, name)
	case ASTForInStmt:
		return c.compileForIn(body, name)
	case ASTWhileStmt:
		return c.compileWhile(body, name)
	case ASTDoWhileStmt:
		return c.compileDoWhile(body, name)
	case ASTSwitchStmt:
		return c.compileSwitch(body, name)
	default:
		c.emit(OpPushTryFrame)
		c.bc.ops = append(c.bc.ops, byte(tryFrameSwitch))
		c.emitI32(0) // pc1 unused for a label-only entry
		breakPatch := c.emitI32Placeholder()
		c.emitLabelOperand(name)
		c.bc.ops = append(c.bc.ops, 1) // isLabelOnly
		if err := c.compileStatement(body); err != nil {
			return err
		}
		c.emit(OpPopTryFrame)
		c.patchI32(breakPatch, c.pc())
		return nil
	}
}

// ---- loops ----

func (c *compiler) compileWhile(cur Cursor, label string) error {
	kids := childCursors(cur)
	testPC := c.pc()
	if err := c.compileExpr(kids[0]); err != nil {
		return err
	}
	c.emit(OpJmpIfFalse)
	endPatch := c.emitI32Placeholder()

	c.emit(OpPushTryFrame)
	c.bc.ops = append(c.bc.ops, byte(tryFrameLoop))
	c.emitI32(testPC)
	breakPatch := c.emitI32Placeholder()
	c.emitLabelOperand(label)
	c.bc.ops = append(c.bc.ops, 0) // isLabelOnly

	if err := c.compileStatement(kids[1]); err != nil {
		return err
	}
	c.emit(OpPopTryFrame)
	c.emit(OpJmp)
	c.emitI32(testPC)

	c.patchI32(breakPatch, c.pc())
	c.patchI32(endPatch, c.pc())
	return nil
}

func (c *compiler) compileDoWhile(cur Cursor, label string) error {
	kids := childCursors(cur)
	bodyPC := c.pc()

	c.emit(OpPushTryFrame)
	c.bc.ops = append(c.bc.ops, byte(tryFrameLoop))
	condPCPlaceholder := c.emitI32Placeholder() // patched below once cond's pc is known
	breakPatch := c.emitI32Placeholder()
	c.emitLabelOperand(label)
	c.bc.ops = append(c.bc.ops, 0)

	if err := c.compileStatement(kids[0]); err != nil {
		return err
	}
	c.emit(OpPopTryFrame)

	condPC := c.pc()
	if err := c.compileExpr(kids[1]); err != nil {
		return err
	}
	c.emit(OpJmpIfTrue)
	c.emitI32(bodyPC)

	c.patchI32(condPCPlaceholder, condPC)
	c.patchI32(breakPatch, c.pc())
	return nil
}

func (c *compiler) compileFor(cur Cursor, label string) error {
	flags := cur.ast.buf[cur.bodyStart()]
	hasInit := flags&0b001 != 0
	hasTest := flags&0b010 != 0
	hasUpdate := flags&0b100 != 0
	kids := childCursors(cur)
	i := 0
	if hasInit {
		init := kids[i]
		i++
		if init.Tag() == ASTVarDecl {
			if err := c.compileStatement(init); err != nil {
				return err
			}
		} else {
			if err := c.compileExpr(init); err != nil {
				return err
			}
			c.emit(OpPop)
		}
	}
	var testCur, updateCur Cursor
	if hasTest {
		testCur = kids[i]
		i++
	}
	if hasUpdate {
		updateCur = kids[i]
		i++
	}
	body := kids[i]

	c.emit(OpJmp)
	testJump := c.emitI32Placeholder()

	updatePC := c.pc()
	if hasUpdate {
		if err := c.compileExpr(updateCur); err != nil {
			return err
		}
		c.emit(OpPop)
	}

	testPC := c.pc()
	c.patchI32(testJump, testPC)
	var endPatch int
	if hasTest {
		if err := c.compileExpr(testCur); err != nil {
			return err
		}
		c.emit(OpJmpIfFalse)
		endPatch = c.emitI32Placeholder()
	}

	continueTarget := testPC
	if hasUpdate {
		continueTarget = updatePC
	}

	c.emit(OpPushTryFrame)
	c.bc.ops = append(c.bc.ops, byte(tryFrameLoop))
	c.emitI32(continueTarget)
	breakPatch := c.emitI32Placeholder()
	c.emitLabelOperand(label)
	c.bc.ops = append(c.bc.ops, 0)

	if err := c.compileStatement(body); err != nil {
		return err
	}
	c.emit(OpPopTryFrame)
	c.emit(OpJmp)
	c.emitI32(continueTarget)

	endPC := c.pc()
	c.patchI32(breakPatch, endPC)
	if hasTest {
		c.patchI32(endPatch, endPC)
	}
	return nil
}

func (c *compiler) compileForIn(cur Cursor, label string) error {
	isVarDecl := cur.ast.buf[cur.bodyStart()] != 0
	kids := childCursors(cur)
	lhs := kids[0]
	objExpr := kids[1]
	body := kids[2]

	if isVarDecl {
		name, _ := cur.ast.readString(lhs.bodyStart() + 1)
		_ = name // declared via hoisting; nothing to emit here
	}
	if err := c.compileExpr(objExpr); err != nil {
		return err
	}

	c.emit(OpForInStart)
	continuePatch := c.emitI32Placeholder()
	breakPatch := c.emitI32Placeholder()
	c.emitLabelOperand(label)

	loopPC := c.pc()
	c.patchI32(continuePatch, loopPC)
	c.emit(OpForInNext)
	exhaustedPatch := c.emitI32Placeholder()

	// OpForInNext pushed the current property name; assign it to the
	// loop variable the same way a plain assignment would.
	if err := c.compileForInAssign(lhs); err != nil {
		return err
	}

	if err := c.compileStatement(body); err != nil {
		return err
	}
	c.emit(OpJmp)
	c.emitI32(loopPC)

	endPC := c.pc()
	c.patchI32(exhaustedPatch, endPC)
	c.patchI32(breakPatch, endPC)
	return nil
}

// compileForInAssign binds the just-enumerated property name (already
// pushed by OpForInNext) to the loop's left-hand side, a VarDeclarator
// for `for (var x in o)` or an arbitrary assignable expression for
// `for (x in o)` / `for (x.y in o)`.
func (c *compiler) compileForInAssign(lhs Cursor) error {
	if lhs.Tag() == ASTVarDeclarator {
		name, _ := lhs.ast.readString(lhs.bodyStart() + 1)
		c.emitOpUvarint(OpSetVar, uint64(c.addNameString(name)))
		return nil
	}
	if err := c.compileAssignTo(lhs); err != nil {
		return err
	}
	c.emit(OpPop)
	return nil
}

// ---- try/catch/finally ----

func (c *compiler) compileTry(cur Cursor) error {
	flags := cur.ast.buf[cur.bodyStart()]
	hasCatch := flags&1 != 0
	hasFinally := flags&2 != 0
	kids := childCursors(cur)
	i := 0
	block := kids[i]
	i++
	var catchClause Cursor
	if hasCatch {
		catchClause = kids[i]
		i++
	}
	var finallyBlock Cursor
	if hasFinally {
		finallyBlock = kids[i]
	}

	var finallyPatch int
	if hasFinally {
		c.emit(OpPushTryFrame)
		c.bc.ops = append(c.bc.ops, byte(tryFrameFinally))
		finallyPatch = c.emitI32Placeholder()
		c.emitI32(0) // pc2 unused
		c.emitLabelOperand("")
		c.bc.ops = append(c.bc.ops, 0)
	}

	var catchPatch int
	if hasCatch {
		c.emit(OpPushTryFrame)
		c.bc.ops = append(c.bc.ops, byte(tryFrameCatch))
		catchPatch = c.emitI32Placeholder()
		c.emitI32(0)
		c.emitLabelOperand("")
		c.bc.ops = append(c.bc.ops, 0)
	}

	if err := c.compileStatement(block); err != nil {
		return err
	}

	if hasCatch {
		c.emit(OpPopTryFrame)
	}
	c.emit(OpJmp)
	afterCatchJump := c.emitI32Placeholder()

	if hasCatch {
		c.patchI32(catchPatch, c.pc())
		// the thrown value is already on the stack, placed there by the
		// VM's unwind before jumping here.
		paramName, bodyOff := catchClause.ast.readString(catchClause.bodyStart())
		c.emitOpUvarint(OpSetVar, uint64(c.addNameString(paramName)))
		catchBody := Cursor{ast: catchClause.ast, pos: bodyOff}
		if err := c.compileStatement(catchBody); err != nil {
			return err
		}
	}
	c.patchI32(afterCatchJump, c.pc())

	if hasFinally {
		c.emit(OpPopTryFrame)
		c.patchI32(finallyPatch, c.pc())
		if err := c.compileStatement(finallyBlock); err != nil {
			return err
		}
		c.emit(OpLeaveFinally)
	}
	return nil
}

// ---- switch ----

func (c *compiler) compileSwitch(cur Cursor, label string) error {
	kids := childCursors(cur)
	disc := kids[0]
	cases := kids[1:]

	if err := c.compileExpr(disc); err != nil {
		return err
	}

	c.emit(OpPushTryFrame)
	c.bc.ops = append(c.bc.ops, byte(tryFrameSwitch))
	c.emitI32(0)
	breakPatch := c.emitI32Placeholder()
	c.emitLabelOperand(label)
	c.bc.ops = append(c.bc.ops, 0)

	bodyPatches := make([]int, len(cases))
	defaultIdx := -1
	for i, cs := range cases {
		isCase := cur.ast.buf[cs.bodyStart()] != 0
		if !isCase {
			defaultIdx = i
			continue
		}
		caseKids := childCursors(cs)
		c.emit(OpDup)
		if err := c.compileExpr(caseKids[0]); err != nil {
			return err
		}
		c.emit(OpStrictEq)
		c.emit(OpJmpIfFalse)
		skipPatch := c.emitI32Placeholder()
		c.emit(OpPop)
		c.emit(OpJmp)
		bodyPatches[i] = c.emitI32Placeholder()
		c.patchI32(skipPatch, c.pc())
	}
	c.emit(OpPop)
	noMatchPatch := -1
	if defaultIdx >= 0 {
		c.emit(OpJmp)
		bodyPatches[defaultIdx] = c.emitI32Placeholder()
	} else {
		c.emit(OpJmp)
		noMatchPatch = c.emitI32Placeholder()
	}

	for i, cs := range cases {
		c.patchI32(bodyPatches[i], c.pc())
		isCase := cur.ast.buf[cs.bodyStart()] != 0
		caseKids := childCursors(cs)
		start := 0
		if isCase {
			start = 1
		}
		for _, s := range caseKids[start:] {
			if err := c.compileStatement(s); err != nil {
				return err
			}
		}
	}

	c.emit(OpPopTryFrame)
	endPC := c.pc()
	c.patchI32(breakPatch, endPC)
	if noMatchPatch >= 0 {
		c.patchI32(noMatchPatch, endPC)
	}
	return nil
}
