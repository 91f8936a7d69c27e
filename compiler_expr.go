package v7

// binOpOpcodes maps binOpCode's byte (parser.go) to the VM opcode that
// implements it. Indices 21/22 ("&&"/"||") are never looked up here --
// ASTLogicalExpr compiles to a short-circuit jump sequence instead of a
// single opcode -- but are listed for completeness.
var binOpOpcodes = [23]Opcode{
	OpAdd, OpSub, OpMul, OpDiv, OpMod,
	OpShl, OpShr, OpUShr, OpBitAnd, OpBitOr, OpBitXor,
	OpEq, OpNeq, OpStrictEq, OpStrictNeq,
	OpLt, OpLe, OpGt, OpGe,
	OpInstanceOf, OpInProp,
	OpNop, OpNop, // &&, || -- unused, see above
}

var unaryOpcodes = [7]Opcode{
	OpPos, OpNeg, OpNot, OpBitNot, OpTypeOf, OpVoid, OpNop, // delete handled separately
}

// compileExpr compiles a single expression node, leaving exactly one
// value on the data stack.
func (c *compiler) compileExpr(cur Cursor) error {
	switch cur.Tag() {
	case ASTIdentifier:
		name, _ := cur.ast.readString(cur.bodyStart())
		c.emitOpUvarint(OpGetVar, uint64(c.addNameString(name)))
		return nil
	case ASTNumberLit:
		f := cur.ast.readFloat64(cur.bodyStart())
		c.emitOpUvarint(OpPushLit, uint64(c.addLit(NumberVal(f))))
		return nil
	case ASTStringLit:
		s, _ := cur.ast.readString(cur.bodyStart())
		c.emitOpUvarint(OpPushLit, uint64(c.addLit(c.e.StringVal(s))))
		return nil
	case ASTRegexpLit:
		s, _ := cur.ast.readString(cur.bodyStart())
		c.emitOpUvarint(OpPushLit, uint64(c.addLit(c.e.StringVal(s))))
		c.emit(OpNewRegexp)
		return nil
	case ASTBooleanLit:
		if cur.ast.buf[cur.bodyStart()] != 0 {
			c.emit(OpPushTrue)
		} else {
			c.emit(OpPushFalse)
		}
		return nil
	case ASTNullLit:
		c.emit(OpPushNull)
		return nil
	case ASTThisExpr:
		c.emit(OpPushThis)
		return nil
	case ASTFunctionExpr:
		return c.compileFunctionLiteral(cur, ASTFunctionExpr)
	case ASTArrayExpr:
		kids := childCursors(cur)
		for _, k := range kids {
			if err := c.compileExpr(k); err != nil {
				return err
			}
		}
		c.emitOpUvarint(OpNewArray, uint64(len(kids)))
		return nil
	case ASTObjectExpr:
		return c.compileObjectLit(cur)
	case ASTSequenceExpr:
		kids := childCursors(cur)
		if err := c.compileExpr(kids[0]); err != nil {
			return err
		}
		for _, k := range kids[1:] {
			c.emit(OpPop)
			if err := c.compileExpr(k); err != nil {
				return err
			}
		}
		return nil
	case ASTAssignExpr:
		return c.compileAssignExpr(cur)
	case ASTConditionalExpr:
		return c.compileConditionalExpr(cur)
	case ASTLogicalExpr:
		return c.compileLogicalExpr(cur)
	case ASTBinaryExpr:
		return c.compileBinaryExpr(cur)
	case ASTUnaryExpr:
		return c.compileUnaryExpr(cur)
	case ASTUpdateExpr:
		return c.compileUpdateExpr(cur)
	case ASTCallExpr:
		return c.compileCallExpr(cur)
	case ASTNewExpr:
		return c.compileNewExpr(cur)
	case ASTMemberExpr:
		name, _ := cur.ast.readString(cur.bodyStart())
		kids := childCursors(cur)
		if err := c.compileExpr(kids[0]); err != nil {
			return err
		}
		c.emitOpUvarint(OpGetPropLit, uint64(c.addNameString(name)))
		return nil
	case ASTComputedMemberExpr:
		kids := childCursors(cur)
		if err := c.compileExpr(kids[0]); err != nil {
			return err
		}
		if err := c.compileExpr(kids[1]); err != nil {
			return err
		}
		c.emit(OpGetProp)
		return nil
	default:
		return InternalError{Message: "compileExpr: unexpected AST tag"}
	}
}

func (c *compiler) compileObjectLit(cur Cursor) error {
	c.emit(OpNewObject)
	tmpObj := c.newTemp()
	c.declareTemp(tmpObj)
	c.emitOpUvarint(OpSetVar, uint64(c.addNameString(tmpObj)))

	seen := map[string]bool{}
	for _, prop := range childCursors(cur) {
		kind := prop.ast.buf[prop.bodyStart()]
		name, next := prop.ast.readString(prop.bodyStart() + 1)
		if kind == 0 && c.bc.strict {
			if seen[name] {
				return SyntaxError{Message: "duplicate data property '" + name + "' in object literal"}
			}
			seen[name] = true
		}
		valueCur := Cursor{ast: prop.ast, pos: next}

		c.emitOpUvarint(OpGetVar, uint64(c.addNameString(tmpObj)))
		if err := c.compileExpr(valueCur); err != nil {
			return err
		}
		switch kind {
		case 0:
			c.emitOpUvarint(OpSetPropLit, uint64(c.addNameString(name)))
		case 1:
			c.emitOpUvarint(OpSetGetterLit, uint64(c.addNameString(name)))
		case 2:
			c.emitOpUvarint(OpSetSetterLit, uint64(c.addNameString(name)))
		}
	}
	c.emitOpUvarint(OpGetVar, uint64(c.addNameString(tmpObj)))
	return nil
}

func (c *compiler) compileConditionalExpr(cur Cursor) error {
	kids := childCursors(cur)
	if err := c.compileExpr(kids[0]); err != nil {
		return err
	}
	c.emit(OpJmpIfFalse)
	elsePatch := c.emitI32Placeholder()
	if err := c.compileExpr(kids[1]); err != nil {
		return err
	}
	c.emit(OpJmp)
	endPatch := c.emitI32Placeholder()
	c.patchI32(elsePatch, c.pc())
	if err := c.compileExpr(kids[2]); err != nil {
		return err
	}
	c.patchI32(endPatch, c.pc())
	return nil
}

// compileLogicalExpr implements &&/|| as a short-circuit jump rather
// than a plain binary opcode: both operators yield the operand value
// itself (not a coerced boolean), so the jump test consumes a
// throwaway duplicate and leaves the original on the stack for either
// path to return.
func (c *compiler) compileLogicalExpr(cur Cursor) error {
	opByte := cur.ast.buf[cur.bodyStart()]
	kids := childCursors(cur)
	if err := c.compileExpr(kids[0]); err != nil {
		return err
	}
	c.emit(OpDup)
	if opByte == 21 { // &&
		c.emit(OpJmpIfFalse)
	} else { // ||
		c.emit(OpJmpIfTrue)
	}
	endPatch := c.emitI32Placeholder()
	c.emit(OpPop)
	if err := c.compileExpr(kids[1]); err != nil {
		return err
	}
	c.patchI32(endPatch, c.pc())
	return nil
}

func (c *compiler) compileBinaryExpr(cur Cursor) error {
	opByte := cur.ast.buf[cur.bodyStart()]
	kids := childCursors(cur)
	if err := c.compileExpr(kids[0]); err != nil {
		return err
	}
	if err := c.compileExpr(kids[1]); err != nil {
		return err
	}
	c.emit(binOpOpcodes[opByte])
	return nil
}

func (c *compiler) compileUnaryExpr(cur Cursor) error {
	opByte := cur.ast.buf[cur.bodyStart()]
	kids := childCursors(cur)
	if opByte == 6 { // delete
		return c.compileDelete(kids[0])
	}
	if err := c.compileExpr(kids[0]); err != nil {
		return err
	}
	c.emit(unaryOpcodes[opByte])
	return nil
}

// compileDelete resolves its operand as a reference rather than a
// value: only a member access is actually deletable, so anything else
// (an identifier, a literal) just yields true without evaluating for
// side effects, matching how a non-reference delete operand behaves.
func (c *compiler) compileDelete(operand Cursor) error {
	switch operand.Tag() {
	case ASTMemberExpr:
		name, _ := operand.ast.readString(operand.bodyStart())
		kids := childCursors(operand)
		if err := c.compileExpr(kids[0]); err != nil {
			return err
		}
		c.emitOpUvarint(OpPushLit, uint64(c.addLit(c.e.StringVal(name))))
		c.emit(OpDelProp)
		return nil
	case ASTComputedMemberExpr:
		kids := childCursors(operand)
		if err := c.compileExpr(kids[0]); err != nil {
			return err
		}
		if err := c.compileExpr(kids[1]); err != nil {
			return err
		}
		c.emit(OpDelProp)
		return nil
	default:
		c.emit(OpPushTrue)
		return nil
	}
}

// compileUpdateExpr compiles prefix/postfix ++/--. The identifier case
// only ever needs two stack slots (old, new) so Dup/Swap suffice;
// member targets stash object/key/old/new in hidden temps since three
// or more values would otherwise need to coexist on the stack at once.
func (c *compiler) compileUpdateExpr(cur Cursor) error {
	opByte := cur.ast.buf[cur.bodyStart()]
	prefix := cur.ast.buf[cur.bodyStart()+1] != 0
	kids := childCursors(cur)
	target := kids[0]

	delta := 1.0
	if opByte == 1 {
		delta = -1.0
	}
	deltaLit := uint64(c.addLit(NumberVal(delta)))

	switch target.Tag() {
	case ASTIdentifier:
		name, _ := target.ast.readString(target.bodyStart())
		nameIdx := uint64(c.addNameString(name))
		c.emitOpUvarint(OpGetVar, nameIdx)
		c.emit(OpPos)
		c.emit(OpDup)
		c.emitOpUvarint(OpPushLit, deltaLit)
		c.emit(OpAdd)
		c.emit(OpDup)
		c.emitOpUvarint(OpSetVar, nameIdx)
		if prefix {
			c.emit(OpSwap)
			c.emit(OpPop)
		} else {
			c.emit(OpPop)
		}
		return nil

	case ASTMemberExpr:
		name, _ := target.ast.readString(target.bodyStart())
		objKids := childCursors(target)
		tmpObj, tmpOld, tmpNew := c.newTemp(), c.newTemp(), c.newTemp()
		c.declareTemp(tmpObj)
		c.declareTemp(tmpOld)
		c.declareTemp(tmpNew)
		objIdx := uint64(c.addNameString(tmpObj))
		oldIdx := uint64(c.addNameString(tmpOld))
		newIdx := uint64(c.addNameString(tmpNew))
		nameIdx := uint64(c.addNameString(name))

		if err := c.compileExpr(objKids[0]); err != nil {
			return err
		}
		c.emitOpUvarint(OpSetVar, objIdx)
		c.emitOpUvarint(OpGetVar, objIdx)
		c.emitOpUvarint(OpGetPropLit, nameIdx)
		c.emit(OpPos)
		c.emitOpUvarint(OpSetVar, oldIdx)
		c.emitOpUvarint(OpGetVar, oldIdx)
		c.emitOpUvarint(OpPushLit, deltaLit)
		c.emit(OpAdd)
		c.emitOpUvarint(OpSetVar, newIdx)
		c.emitOpUvarint(OpGetVar, objIdx)
		c.emitOpUvarint(OpGetVar, newIdx)
		c.emitOpUvarint(OpSetPropLit, nameIdx)
		if prefix {
			c.emitOpUvarint(OpGetVar, newIdx)
		} else {
			c.emitOpUvarint(OpGetVar, oldIdx)
		}
		return nil

	case ASTComputedMemberExpr:
		objKids := childCursors(target)
		tmpObj, tmpKey, tmpOld, tmpNew := c.newTemp(), c.newTemp(), c.newTemp(), c.newTemp()
		c.declareTemp(tmpObj)
		c.declareTemp(tmpKey)
		c.declareTemp(tmpOld)
		c.declareTemp(tmpNew)
		objIdx := uint64(c.addNameString(tmpObj))
		keyIdx := uint64(c.addNameString(tmpKey))
		oldIdx := uint64(c.addNameString(tmpOld))
		newIdx := uint64(c.addNameString(tmpNew))

		if err := c.compileExpr(objKids[0]); err != nil {
			return err
		}
		c.emitOpUvarint(OpSetVar, objIdx)
		if err := c.compileExpr(objKids[1]); err != nil {
			return err
		}
		c.emitOpUvarint(OpSetVar, keyIdx)

		c.emitOpUvarint(OpGetVar, objIdx)
		c.emitOpUvarint(OpGetVar, keyIdx)
		c.emit(OpGetProp)
		c.emit(OpPos)
		c.emitOpUvarint(OpSetVar, oldIdx)
		c.emitOpUvarint(OpGetVar, oldIdx)
		c.emitOpUvarint(OpPushLit, deltaLit)
		c.emit(OpAdd)
		c.emitOpUvarint(OpSetVar, newIdx)

		c.emitOpUvarint(OpGetVar, objIdx)
		c.emitOpUvarint(OpGetVar, keyIdx)
		c.emitOpUvarint(OpGetVar, newIdx)
		c.emit(OpSetProp)
		if prefix {
			c.emitOpUvarint(OpGetVar, newIdx)
		} else {
			c.emitOpUvarint(OpGetVar, oldIdx)
		}
		return nil

	default:
		return InternalError{Message: "compileUpdateExpr: non-reference target"}
	}
}

// assignOpcodeFor maps an AssignExpr's compound-op byte (1..11) to the
// binary opcode that combines the current value with the right-hand
// side; byte 0 ("=") has no entry since it never combines.
func assignOpcodeFor(opByte byte) Opcode { return binOpOpcodes[opByte-1] }

// compileAssignExpr compiles `=` and compound assignment (`+=` etc.).
// Every target shape is reduced to: compute the final value, then
// store it via the same consuming Set opcode compileAssignTo's related
// helpers use, restoring a copy of the final value from a temp
// afterward since the store opcodes don't hand it back.
func (c *compiler) compileAssignExpr(cur Cursor) error {
	opByte := cur.ast.buf[cur.bodyStart()]
	kids := childCursors(cur)
	left, right := kids[0], kids[1]

	switch left.Tag() {
	case ASTIdentifier:
		name, _ := left.ast.readString(left.bodyStart())
		nameIdx := uint64(c.addNameString(name))
		if opByte == 0 {
			if err := c.compileExpr(right); err != nil {
				return err
			}
		} else {
			c.emitOpUvarint(OpGetVar, nameIdx)
			if err := c.compileExpr(right); err != nil {
				return err
			}
			c.emit(assignOpcodeFor(opByte))
		}
		c.emit(OpDup)
		c.emitOpUvarint(OpSetVar, nameIdx)
		return nil

	case ASTMemberExpr:
		name, _ := left.ast.readString(left.bodyStart())
		nameIdx := uint64(c.addNameString(name))
		objKids := childCursors(left)
		tmpObj, tmpVal := c.newTemp(), c.newTemp()
		c.declareTemp(tmpObj)
		c.declareTemp(tmpVal)
		objIdx := uint64(c.addNameString(tmpObj))
		valIdx := uint64(c.addNameString(tmpVal))

		if err := c.compileExpr(objKids[0]); err != nil {
			return err
		}
		c.emitOpUvarint(OpSetVar, objIdx)

		if opByte != 0 {
			c.emitOpUvarint(OpGetVar, objIdx)
			c.emitOpUvarint(OpGetPropLit, nameIdx)
		}
		if err := c.compileExpr(right); err != nil {
			return err
		}
		if opByte != 0 {
			c.emit(assignOpcodeFor(opByte))
		}
		c.emitOpUvarint(OpSetVar, valIdx)

		c.emitOpUvarint(OpGetVar, objIdx)
		c.emitOpUvarint(OpGetVar, valIdx)
		c.emitOpUvarint(OpSetPropLit, nameIdx)
		c.emitOpUvarint(OpGetVar, valIdx)
		return nil

	case ASTComputedMemberExpr:
		objKids := childCursors(left)
		tmpObj, tmpKey, tmpVal := c.newTemp(), c.newTemp(), c.newTemp()
		c.declareTemp(tmpObj)
		c.declareTemp(tmpKey)
		c.declareTemp(tmpVal)
		objIdx := uint64(c.addNameString(tmpObj))
		keyIdx := uint64(c.addNameString(tmpKey))
		valIdx := uint64(c.addNameString(tmpVal))

		if err := c.compileExpr(objKids[0]); err != nil {
			return err
		}
		c.emitOpUvarint(OpSetVar, objIdx)
		if err := c.compileExpr(objKids[1]); err != nil {
			return err
		}
		c.emitOpUvarint(OpSetVar, keyIdx)

		if opByte != 0 {
			c.emitOpUvarint(OpGetVar, objIdx)
			c.emitOpUvarint(OpGetVar, keyIdx)
			c.emit(OpGetProp)
		}
		if err := c.compileExpr(right); err != nil {
			return err
		}
		if opByte != 0 {
			c.emit(assignOpcodeFor(opByte))
		}
		c.emitOpUvarint(OpSetVar, valIdx)

		c.emitOpUvarint(OpGetVar, objIdx)
		c.emitOpUvarint(OpGetVar, keyIdx)
		c.emitOpUvarint(OpGetVar, valIdx)
		c.emit(OpSetProp)
		c.emitOpUvarint(OpGetVar, valIdx)
		return nil

	default:
		return InternalError{Message: "compileAssignExpr: invalid assignment target"}
	}
}

// compileAssignTo stores a value already sitting on top of the data
// stack into lhs, leaving that same value on the stack afterward. Used
// by for-in's loop-variable binding, the one assignment-target
// consumer that isn't itself an AssignExpr node.
func (c *compiler) compileAssignTo(lhs Cursor) error {
	switch lhs.Tag() {
	case ASTIdentifier:
		name, _ := lhs.ast.readString(lhs.bodyStart())
		c.emit(OpDup)
		c.emitOpUvarint(OpSetVar, uint64(c.addNameString(name)))
		return nil
	case ASTMemberExpr:
		name, _ := lhs.ast.readString(lhs.bodyStart())
		objKids := childCursors(lhs)
		tmpVal := c.newTemp()
		c.declareTemp(tmpVal)
		valIdx := uint64(c.addNameString(tmpVal))
		c.emitOpUvarint(OpSetVar, valIdx)
		if err := c.compileExpr(objKids[0]); err != nil {
			return err
		}
		c.emitOpUvarint(OpGetVar, valIdx)
		c.emitOpUvarint(OpSetPropLit, uint64(c.addNameString(name)))
		c.emitOpUvarint(OpGetVar, valIdx)
		return nil
	case ASTComputedMemberExpr:
		objKids := childCursors(lhs)
		tmpVal := c.newTemp()
		c.declareTemp(tmpVal)
		valIdx := uint64(c.addNameString(tmpVal))
		c.emitOpUvarint(OpSetVar, valIdx)
		if err := c.compileExpr(objKids[0]); err != nil {
			return err
		}
		if err := c.compileExpr(objKids[1]); err != nil {
			return err
		}
		c.emitOpUvarint(OpGetVar, valIdx)
		c.emit(OpSetProp)
		c.emitOpUvarint(OpGetVar, valIdx)
		return nil
	default:
		return InternalError{Message: "compileAssignTo: invalid assignment target"}
	}
}

// ---- calls / new / function literals ----

func (c *compiler) compileCallExpr(cur Cursor) error {
	kids := childCursors(cur)
	callee, args := kids[0], kids[1:]

	switch callee.Tag() {
	case ASTMemberExpr:
		name, _ := callee.ast.readString(callee.bodyStart())
		objKids := childCursors(callee)
		tmpThis := c.newTemp()
		c.declareTemp(tmpThis)
		thisIdx := uint64(c.addNameString(tmpThis))
		if err := c.compileExpr(objKids[0]); err != nil {
			return err
		}
		c.emitOpUvarint(OpSetVar, thisIdx)
		c.emitOpUvarint(OpGetVar, thisIdx)
		c.emitOpUvarint(OpGetPropLit, uint64(c.addNameString(name)))
		c.emitOpUvarint(OpGetVar, thisIdx)
	case ASTComputedMemberExpr:
		objKids := childCursors(callee)
		tmpThis := c.newTemp()
		c.declareTemp(tmpThis)
		thisIdx := uint64(c.addNameString(tmpThis))
		if err := c.compileExpr(objKids[0]); err != nil {
			return err
		}
		c.emitOpUvarint(OpSetVar, thisIdx)
		c.emitOpUvarint(OpGetVar, thisIdx)
		if err := c.compileExpr(objKids[1]); err != nil {
			return err
		}
		c.emit(OpGetProp)
		c.emitOpUvarint(OpGetVar, thisIdx)
	default:
		if err := c.compileExpr(callee); err != nil {
			return err
		}
		c.emit(OpPushUndefined)
	}

	for _, a := range args {
		if err := c.compileExpr(a); err != nil {
			return err
		}
	}
	c.emitOpUvarint(OpCall, uint64(len(args)))
	return nil
}

func (c *compiler) compileNewExpr(cur Cursor) error {
	kids := childCursors(cur)
	callee, args := kids[0], kids[1:]
	if err := c.compileExpr(callee); err != nil {
		return err
	}
	for _, a := range args {
		if err := c.compileExpr(a); err != nil {
			return err
		}
	}
	c.emitOpUvarint(OpNew, uint64(len(args)))
	return nil
}

// compileFunctionLiteral compiles a nested FunctionDecl/FunctionExpr
// node into its own Bcode (sharing the enclosing compiler's Engine for
// literal/name interning) and emits OpClosure to bind it to the
// current scope at runtime.
func (c *compiler) compileFunctionLiteral(cur Cursor, tag ASTTag) error {
	_, next := cur.ast.readString(cur.bodyStart())
	paramCount := int(cur.ast.readUint16(next))
	off := next + 2
	params := make([]string, paramCount)
	for i := 0; i < paramCount; i++ {
		var s string
		s, off = cur.ast.readString(off)
		params[i] = s
	}
	bodyCur := Cursor{ast: cur.ast, pos: off}
	stmts := childCursors(bodyCur)

	nc := &compiler{e: c.e, bc: &Bcode{source: c.bc.source, strict: c.bc.strict}}
	if err := nc.compileFunctionLike(false, params, stmts); err != nil {
		return err
	}
	idx := len(c.bc.nested)
	c.bc.nested = append(c.bc.nested, nc.bc)
	c.emitOpUvarint(OpClosure, uint64(idx))
	return nil
}
