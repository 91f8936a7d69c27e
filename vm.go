package v7

import (
	"encoding/binary"
	"math"
	"regexp"
	"strings"
)

// pendKind classifies the single unit of control-flow state the VM's
// unwind loop threads through try/catch/finally/loop/switch (spec
// §4.4.3): a return, an uncaught throw, or a break/continue looking
// for its target.
type pendKind uint8

const (
	pendNone pendKind = iota
	pendReturn
	pendThrow
	pendBreak
	pendContinue
)

type pend struct {
	kind  pendKind
	val   Val
	label string
}

func labelMatches(label string, entry *tryEntry) bool {
	if label == "" {
		return !entry.isLabelOnly
	}
	return entry.label == label
}

// unwind resolves one pending return/throw/break/continue against the
// current frame's try-stack, falling through to the caller frame (for
// return/throw only — a break/continue that escapes its whole
// function is a compiler bug, never a runtime condition) when nothing
// in the current frame intercepts it. See bcode.go's tryEntry doc and
// DESIGN.md for the full unification this implements.
func (e *Engine) unwind(act pend) error {
	e.pending = pend{}
	for {
		if len(e.frames) == 0 {
			return InternalError{Message: "unwind ran out of frames"}
		}
		f := &e.frames[len(e.frames)-1]

		for len(f.tryStack) > 0 {
			top := &f.tryStack[len(f.tryStack)-1]
			switch {
			case top.kind == tryFrameFinally:
				e.dataStack = e.dataStack[:f.base+1]
				f.tryStack = f.tryStack[:len(f.tryStack)-1]
				f.pc = top.pc1
				e.pending = act
				return nil

			case act.kind == pendThrow && top.kind == tryFrameCatch:
				e.dataStack = e.dataStack[:f.base+1]
				f.tryStack = f.tryStack[:len(f.tryStack)-1]
				if err := e.pushData(act.val); err != nil {
					return err
				}
				f.pc = top.pc1
				return nil

			case act.kind == pendBreak && (top.kind == tryFrameLoop || top.kind == tryFrameSwitch) && labelMatches(act.label, top):
				e.dataStack = e.dataStack[:f.base+1]
				f.tryStack = f.tryStack[:len(f.tryStack)-1]
				f.pc = top.pc2
				return nil

			case act.kind == pendContinue && top.kind == tryFrameLoop && labelMatches(act.label, top):
				e.dataStack = e.dataStack[:f.base+1]
				if top.forinNames == nil {
					f.tryStack = f.tryStack[:len(f.tryStack)-1]
				}
				f.pc = top.pc1
				return nil

			default:
				f.tryStack = f.tryStack[:len(f.tryStack)-1]
			}
		}

		switch act.kind {
		case pendThrow:
			e.dataStack = e.dataStack[:f.base]
			e.popFrame()
			if len(e.frames) == 0 {
				e.thrownValue = act.val
				e.hasThrown = true
				return ExecException{Val: act.val, Message: e.describeException(act.val)}
			}
		case pendReturn:
			result := act.val
			if f.isConstructor && !result.IsObject() {
				result = f.thisVal
			}
			e.dataStack = e.dataStack[:f.base]
			e.popFrame()
			return e.pushData(result)
		default:
			return InternalError{Message: "break/continue escaped its enclosing function"}
		}
	}
}

// ---- call scope setup ----

// makeCallScope builds the activation object a call's bytecode runs
// against: one property per hoisted var/function/param name (spec
// §4.3's hoisting pass already collected these into Bcode.localVars),
// plus an `arguments` array-like. Its proto links to the function's
// captured lexical scope, making lookupScope's chain walk also the
// scope chain walk (see runtime.go).
func (e *Engine) makeCallScope(bc *Bcode, closureScope Val, args []Val) Val {
	scope := e.newActivationScope(closureScope)
	for i, nameVal := range bc.localVars {
		v := Undefined
		if i < bc.argCount && i < len(args) {
			v = args[i]
		}
		e.heap.putProperty(scope, nameVal, v, 0, e)
	}
	argsArr := e.newDenseArray(append([]Val(nil), args...))
	e.heap.putProperty(scope, e.StringVal("arguments"), argsArr, PropDontEnum, e)
	return scope
}

// Call invokes fn with the given receiver and arguments (spec §4.8
// host API "call"). CFunctions run inline; script functions push a VM
// frame and drive the dispatch loop until it — and anything it calls
// via the flat OpCall/OpNew path — returns.
func (e *Engine) Call(fn Val, thisVal Val, args []Val) (Val, error) {
	switch {
	case fn.IsCFunction():
		if int(fn.CFunctionIndex()) >= len(e.cfunctions) {
			return e.ThrowErrorVal(ErrKindInternalError, "invalid cfunction reference")
		}
		return e.cfunctions[fn.CFunctionIndex()](e, thisVal, args)
	case fn.IsFunctionPtr():
		fc := e.heap.Function(fn.FunctionIndex())
		if fc.bcode == nil {
			return e.ThrowErrorVal(ErrKindTypeError, "value is not callable")
		}
		scope := e.makeCallScope(fc.bcode, fc.scope, args)
		if err := e.pushFrame(frame{bcode: fc.bcode, pc: 0, scopeObj: scope, thisVal: thisVal, base: len(e.dataStack)}); err != nil {
			return Undefined, err
		}
		return e.run()
	default:
		return e.ThrowErrorVal(ErrKindTypeError, "value is not callable")
	}
}

// Construct implements `new` for host callers (spec §4.8 host API;
// OpNew drives the same allocate-proto-bind-run shape inline via
// dispatchNew/run for script-to-script calls, to stay on the flat,
// non-recursive dispatch path).
func (e *Engine) Construct(fn Val, args []Val) (Val, error) {
	if err := e.dispatchNew(fn, args); err != nil {
		return Undefined, err
	}
	if fn.IsCFunction() {
		return e.popData(), nil
	}
	return e.run()
}

// ---- the dispatch loop ----

// run drives bytecode starting at the frame most recently pushed by
// Call/construct, until that frame (and every frame it pushes via the
// flat script-to-script OpCall/OpNew path) has returned. Script calls
// never recurse at the Go level here; only a CFunction that itself
// calls back into Engine.Call does, which is an ordinary nested run().
func (e *Engine) run() (Val, error) {
	startDepth := len(e.frames) - 1
	for {
		if len(e.frames) <= startDepth {
			return e.popData(), nil
		}
		if e.interrupted {
			e.interrupted = false
			return Undefined, InternalError{Message: "execution interrupted"}
		}
		f := &e.frames[len(e.frames)-1]
		if f.pc < 0 || f.pc >= len(f.bcode.ops) {
			return Undefined, InternalError{Message: "program counter ran off the end of bytecode"}
		}
		op := Opcode(f.bcode.ops[f.pc])
		f.pc++
		if err := e.step(f, op); err != nil {
			return Undefined, err
		}
	}
}

func readUvarintAt(ops []byte, pc *int) uint64 {
	v, n := binary.Uvarint(ops[*pc:])
	*pc += n
	return v
}

func readI32At(ops []byte, pc *int) int32 {
	v := int32(binary.LittleEndian.Uint32(ops[*pc:]))
	*pc += 4
	return v
}

func (e *Engine) readLabelOperand(bc *Bcode, pc *int) string {
	has := bc.ops[*pc]
	*pc++
	if has == 0 {
		return ""
	}
	idx := readUvarintAt(bc.ops, pc)
	s, _ := bc.names[idx].String(e)
	return s
}

func nameAt(bc *Bcode, idx uint64, e *Engine) string {
	s, _ := bc.names[idx].String(e)
	return s
}

// step executes exactly one opcode against frame f, which is always
// the current top of e.frames: every handler that pushes or pops a
// frame (OpCall/OpNew/OpRet/OpThrow/break/continue) returns
// immediately afterward rather than continuing to use f, since a
// frames append can relocate the backing array out from under it.
func (e *Engine) step(f *frame, op Opcode) error {
	bc := f.bcode
	switch op {
	case OpNop:
		return nil

	case OpPushLit:
		idx := readUvarintAt(bc.ops, &f.pc)
		return e.pushData(bc.lit[idx])
	case OpPushUndefined:
		return e.pushData(Undefined)
	case OpPushNull:
		return e.pushData(Null)
	case OpPushTrue:
		return e.pushData(True)
	case OpPushFalse:
		return e.pushData(False)
	case OpPushThis:
		return e.pushData(f.thisVal)
	case OpPop:
		e.popData()
		return nil
	case OpDup:
		v := e.dataStack[len(e.dataStack)-1]
		return e.pushData(v)
	case OpSwap:
		n := len(e.dataStack)
		e.dataStack[n-1], e.dataStack[n-2] = e.dataStack[n-2], e.dataStack[n-1]
		return nil

	case OpGetVar:
		idx := readUvarintAt(bc.ops, &f.pc)
		name := nameAt(bc, idx, e)
		owner, pidx, found := e.lookupScope(f.scopeObj, name)
		if !found {
			return e.ThrowError(ErrKindReferenceError, name+" is not defined")
		}
		v, err := e.propValue(pidx, owner)
		if err != nil {
			return err
		}
		return e.pushData(v)
	case OpSetVar:
		idx := readUvarintAt(bc.ops, &f.pc)
		name := nameAt(bc, idx, e)
		v := e.popData()
		owner, pidx, found := e.lookupScope(f.scopeObj, name)
		if found {
			p := e.heap.Property(pidx)
			if p.attrs&PropSetter != 0 {
				if _, err := e.Call(p.value, owner, []Val{v}); err != nil {
					return err
				}
				return nil
			}
			if p.attrs&PropReadOnly == 0 {
				p.value = v
			}
			return nil
		}
		// implicit global creation (sloppy-mode assignment to an
		// undeclared name).
		e.heap.putProperty(e.global, e.StringVal(name), v, 0, e)
		return nil

	case OpGetProp:
		key := e.popData()
		obj := e.popData()
		name, err := e.ToString(key)
		if err != nil {
			return err
		}
		v, err := e.GetProperty(obj, name)
		if err != nil {
			return err
		}
		return e.pushData(v)
	case OpSetProp:
		val := e.popData()
		key := e.popData()
		obj := e.popData()
		name, err := e.ToString(key)
		if err != nil {
			return err
		}
		if err := e.SetProperty(obj, name, val); err != nil {
			return err
		}
		return nil
	case OpDelProp:
		key := e.popData()
		obj := e.popData()
		name, err := e.ToString(key)
		if err != nil {
			return err
		}
		ok, err := e.DeleteProperty(obj, name)
		if err != nil {
			return err
		}
		return e.pushData(BoolVal(ok))
	case OpInProp:
		obj := e.popData()
		key := e.popData()
		if !obj.IsObject() {
			return e.ThrowError(ErrKindTypeError, "cannot use 'in' operator on a non-object")
		}
		name, err := e.ToString(key)
		if err != nil {
			return err
		}
		return e.pushData(BoolVal(e.HasProperty(obj, name)))
	case OpGetPropLit:
		idx := readUvarintAt(bc.ops, &f.pc)
		obj := e.popData()
		v, err := e.GetProperty(obj, nameAt(bc, idx, e))
		if err != nil {
			return err
		}
		return e.pushData(v)
	case OpSetPropLit:
		idx := readUvarintAt(bc.ops, &f.pc)
		val := e.popData()
		obj := e.popData()
		return e.SetProperty(obj, nameAt(bc, idx, e), val)
	case OpSetGetterLit:
		idx := readUvarintAt(bc.ops, &f.pc)
		fn := e.popData()
		obj := e.popData()
		e.heap.putProperty(obj, e.StringVal(nameAt(bc, idx, e)), fn, PropGetter|PropDontEnum, e)
		return nil
	case OpSetSetterLit:
		idx := readUvarintAt(bc.ops, &f.pc)
		fn := e.popData()
		obj := e.popData()
		e.heap.putProperty(obj, e.StringVal(nameAt(bc, idx, e)), fn, PropSetter|PropDontEnum, e)
		return nil

	case OpAdd:
		b, a := e.popData(), e.popData()
		v, err := e.opAdd(a, b)
		if err != nil {
			return err
		}
		return e.pushData(v)
	case OpSub:
		return e.binNumOp(func(a, b float64) float64 { return a - b })
	case OpMul:
		return e.binNumOp(func(a, b float64) float64 { return a * b })
	case OpDiv:
		return e.binNumOp(func(a, b float64) float64 { return a / b })
	case OpMod:
		return e.binNumOp(modFloat)
	case OpNeg:
		v := e.popData()
		n, err := e.ToNumber(v)
		if err != nil {
			return err
		}
		return e.pushData(NumberVal(-n))
	case OpPos:
		v := e.popData()
		n, err := e.ToNumber(v)
		if err != nil {
			return err
		}
		return e.pushData(NumberVal(n))
	case OpNot:
		v := e.popData()
		b, err := e.ToBoolean(v)
		if err != nil {
			return err
		}
		return e.pushData(BoolVal(!b))
	case OpBitNot:
		v := e.popData()
		n, err := e.ToNumber(v)
		if err != nil {
			return err
		}
		return e.pushData(NumberVal(float64(^toInt32(n))))
	case OpBitAnd:
		return e.binIntOp(func(a, b int32) int32 { return a & b })
	case OpBitOr:
		return e.binIntOp(func(a, b int32) int32 { return a | b })
	case OpBitXor:
		return e.binIntOp(func(a, b int32) int32 { return a ^ b })
	case OpShl:
		return e.binShiftOp(func(a int32, s uint) int32 { return a << s })
	case OpShr:
		return e.binShiftOp(func(a int32, s uint) int32 { return a >> s })
	case OpUShr:
		b, a := e.popData(), e.popData()
		na, err := e.ToNumber(a)
		if err != nil {
			return err
		}
		nb, err := e.ToNumber(b)
		if err != nil {
			return err
		}
		shift := toUint32(nb) & 31
		return e.pushData(NumberVal(float64(toUint32(na) >> shift)))

	case OpEq:
		b, a := e.popData(), e.popData()
		ok, err := e.abstractEquals(a, b)
		if err != nil {
			return err
		}
		return e.pushData(BoolVal(ok))
	case OpNeq:
		b, a := e.popData(), e.popData()
		ok, err := e.abstractEquals(a, b)
		if err != nil {
			return err
		}
		return e.pushData(BoolVal(!ok))
	case OpStrictEq:
		b, a := e.popData(), e.popData()
		ok, err := e.strictEquals(a, b)
		if err != nil {
			return err
		}
		return e.pushData(BoolVal(ok))
	case OpStrictNeq:
		b, a := e.popData(), e.popData()
		ok, err := e.strictEquals(a, b)
		if err != nil {
			return err
		}
		return e.pushData(BoolVal(!ok))
	case OpLt:
		b, a := e.popData(), e.popData()
		lt, undef, err := e.abstractLess(a, b)
		if err != nil {
			return err
		}
		return e.pushData(BoolVal(!undef && lt))
	case OpLe:
		b, a := e.popData(), e.popData()
		gt, undef, err := e.abstractLess(b, a)
		if err != nil {
			return err
		}
		return e.pushData(BoolVal(!undef && !gt))
	case OpGt:
		b, a := e.popData(), e.popData()
		gt, undef, err := e.abstractLess(b, a)
		if err != nil {
			return err
		}
		return e.pushData(BoolVal(!undef && gt))
	case OpGe:
		b, a := e.popData(), e.popData()
		lt, undef, err := e.abstractLess(a, b)
		if err != nil {
			return err
		}
		return e.pushData(BoolVal(!undef && !lt))
	case OpInstanceOf:
		b, a := e.popData(), e.popData()
		ok, err := e.instanceOf(a, b)
		if err != nil {
			return err
		}
		return e.pushData(BoolVal(ok))
	case OpTypeOf:
		v := e.popData()
		return e.pushData(e.StringVal(e.typeOf(v)))
	case OpVoid:
		e.popData()
		return e.pushData(Undefined)

	case OpNewObject:
		return e.pushData(e.newPlainObject())
	case OpNewArray:
		count := int(readUvarintAt(bc.ops, &f.pc))
		elems := make([]Val, count)
		for i := count - 1; i >= 0; i-- {
			elems[i] = e.popData()
		}
		return e.pushData(e.newDenseArray(elems))
	case OpNewRegexp:
		lit := e.popData()
		s, err := lit.String(e)
		if err != nil {
			return err
		}
		v, err := e.newRegexpFromLiteral(s)
		if err != nil {
			return err
		}
		return e.pushData(v)
	case OpClosure:
		idx := readUvarintAt(bc.ops, &f.pc)
		nested := bc.nested[idx]
		fidx := e.heap.allocFunction()
		fc := e.heap.Function(fidx)
		fc.bcode = nested
		fc.scope = f.scopeObj
		e.heap.putProperty(FunctionVal(fidx), e.StringVal("length"), NumberVal(float64(nested.argCount)), PropReadOnly|PropDontEnum, e)
		return e.pushData(FunctionVal(fidx))

	case OpJmp:
		f.pc = int(readI32At(bc.ops, &f.pc))
		return nil
	case OpJmpIfFalse:
		target := readI32At(bc.ops, &f.pc)
		v := e.popData()
		b, err := e.ToBoolean(v)
		if err != nil {
			return err
		}
		if !b {
			f.pc = int(target)
		}
		return nil
	case OpJmpIfTrue:
		target := readI32At(bc.ops, &f.pc)
		v := e.popData()
		b, err := e.ToBoolean(v)
		if err != nil {
			return err
		}
		if b {
			f.pc = int(target)
		}
		return nil

	case OpCall:
		argc := int(readUvarintAt(bc.ops, &f.pc))
		args := make([]Val, argc)
		for i := argc - 1; i >= 0; i-- {
			args[i] = e.popData()
		}
		thisVal := e.popData()
		callee := e.popData()
		return e.dispatchCall(callee, thisVal, args)
	case OpNew:
		argc := int(readUvarintAt(bc.ops, &f.pc))
		args := make([]Val, argc)
		for i := argc - 1; i >= 0; i-- {
			args[i] = e.popData()
		}
		callee := e.popData()
		return e.dispatchNew(callee, args)

	case OpRet:
		v := e.popData()
		return e.unwind(pend{kind: pendReturn, val: v})
	case OpThrow:
		v := e.popData()
		return e.unwind(pend{kind: pendThrow, val: v})
	case OpBreak:
		label := e.readLabelOperand(bc, &f.pc)
		return e.unwind(pend{kind: pendBreak, label: label})
	case OpContinue:
		label := e.readLabelOperand(bc, &f.pc)
		return e.unwind(pend{kind: pendContinue, label: label})

	case OpPushTryFrame:
		kind := tryFrameKind(bc.ops[f.pc])
		f.pc++
		pc1 := int(readI32At(bc.ops, &f.pc))
		pc2 := int(readI32At(bc.ops, &f.pc))
		label := e.readLabelOperand(bc, &f.pc)
		isLabelOnly := bc.ops[f.pc] != 0
		f.pc++
		f.tryStack = append(f.tryStack, tryEntry{kind: kind, pc1: pc1, pc2: pc2, label: label, isLabelOnly: isLabelOnly})
		return nil
	case OpPopTryFrame:
		f.tryStack = f.tryStack[:len(f.tryStack)-1]
		return nil
	case OpLeaveFinally:
		if e.pending.kind != pendNone {
			act := e.pending
			e.pending = pend{}
			return e.unwind(act)
		}
		return nil

	case OpWithEnter:
		target := e.popData()
		if !target.IsObject() {
			return e.ThrowError(ErrKindTypeError, "with statement target is not an object")
		}
		outer := f.scopeObj
		idx := e.heap.allocObject()
		cell := e.heap.Object(idx)
		cell.attrs |= AttrNotExtensible | AttrWithScope
		cell.proto = target
		cell.internal = outer
		f.scopeObj = ObjectVal(idx)
		return nil
	case OpWithLeave:
		cell := e.heap.Object(f.scopeObj.ObjectIndex())
		f.scopeObj = cell.internal
		return nil

	case OpForInStart:
		pc1 := int(readI32At(bc.ops, &f.pc))
		pc2 := int(readI32At(bc.ops, &f.pc))
		label := e.readLabelOperand(bc, &f.pc)
		target := e.popData()
		var names []string
		if target.IsObject() {
			names = e.enumerableKeys(target)
		}
		f.tryStack = append(f.tryStack, tryEntry{kind: tryFrameLoop, pc1: pc1, pc2: pc2, label: label, forinNames: names, forinIdx: 0})
		return nil
	case OpForInNext:
		exhausted := int(readI32At(bc.ops, &f.pc))
		top := &f.tryStack[len(f.tryStack)-1]
		if top.forinIdx >= len(top.forinNames) {
			f.tryStack = f.tryStack[:len(f.tryStack)-1]
			f.pc = exhausted
			return nil
		}
		name := top.forinNames[top.forinIdx]
		top.forinIdx++
		return e.pushData(e.StringVal(name))

	case OpHalt:
		f.pc = len(bc.ops)
		return nil

	default:
		return InternalError{Message: "unimplemented opcode in dispatch"}
	}
}

func modFloat(a, b float64) float64 { return math.Mod(a, b) }

// opAdd implements `+`, which alone among the binary operators must
// check for string operands before falling back to numeric addition
// (spec's ToPrimitive-then-branch-on-type addition algorithm).
func (e *Engine) opAdd(a, b Val) (Val, error) {
	pa, err := e.toPrimitive(a)
	if err != nil {
		return Undefined, err
	}
	pb, err := e.toPrimitive(b)
	if err != nil {
		return Undefined, err
	}
	if pa.IsString() || pb.IsString() {
		sa, err := e.ToString(pa)
		if err != nil {
			return Undefined, err
		}
		sb, err := e.ToString(pb)
		if err != nil {
			return Undefined, err
		}
		return e.StringVal(sa + sb), nil
	}
	na, err := e.ToNumber(pa)
	if err != nil {
		return Undefined, err
	}
	nb, err := e.ToNumber(pb)
	if err != nil {
		return Undefined, err
	}
	return NumberVal(na + nb), nil
}

// newRegexpFromLiteral parses bytecode-baked literal text of the form
// "/pattern/flags" (the lexer already validated the outer-slash shape;
// see lexer.go) and compiles it against Go's RE2 engine as a
// best-effort approximation of JS regex semantics (DESIGN.md).
func (e *Engine) newRegexpFromLiteral(lit string) (Val, error) {
	end := strings.LastIndexByte(lit, '/')
	if len(lit) < 2 || lit[0] != '/' || end <= 0 {
		return Undefined, e.ThrowError(ErrKindSyntaxError, "invalid regular expression literal")
	}
	pattern := lit[1:end]
	flags := lit[end+1:]
	goPattern := pattern
	if strings.ContainsRune(flags, 'i') {
		goPattern = "(?i)" + goPattern
	}
	if strings.ContainsRune(flags, 's') {
		goPattern = "(?s)" + goPattern
	}
	if strings.ContainsRune(flags, 'm') {
		goPattern = "(?m)" + goPattern
	}
	re, err := regexp.Compile(goPattern)
	if err != nil {
		return Undefined, e.ThrowError(ErrKindSyntaxError, "invalid regular expression: "+err.Error())
	}
	idx := len(e.regexps)
	e.regexps = append(e.regexps, regexpProgram{source: pattern, flags: flags, re: re})
	return mkVal(tagRegexp, uint64(idx)), nil
}

func (e *Engine) binNumOp(f func(a, b float64) float64) error {
	b, a := e.popData(), e.popData()
	na, err := e.ToNumber(a)
	if err != nil {
		return err
	}
	nb, err := e.ToNumber(b)
	if err != nil {
		return err
	}
	return e.pushData(NumberVal(f(na, nb)))
}

func (e *Engine) binIntOp(f func(a, b int32) int32) error {
	b, a := e.popData(), e.popData()
	na, err := e.ToNumber(a)
	if err != nil {
		return err
	}
	nb, err := e.ToNumber(b)
	if err != nil {
		return err
	}
	return e.pushData(NumberVal(float64(f(toInt32(na), toInt32(nb)))))
}

func (e *Engine) binShiftOp(f func(a int32, s uint) int32) error {
	b, a := e.popData(), e.popData()
	na, err := e.ToNumber(a)
	if err != nil {
		return err
	}
	nb, err := e.ToNumber(b)
	if err != nil {
		return err
	}
	shift := uint(toUint32(nb) & 31)
	return e.pushData(NumberVal(float64(f(toInt32(na), shift))))
}

// dispatchCall implements OpCall's three callee shapes: a CFunction
// runs inline (it is never bytecode-driven, so there is nothing to
// push a VM frame for); a script function pushes a frame and lets the
// enclosing run() loop pick it up next iteration (the flat,
// non-recursive call path); anything else throws TypeError.
func (e *Engine) dispatchCall(callee, thisVal Val, args []Val) error {
	switch {
	case callee.IsCFunction():
		if int(callee.CFunctionIndex()) >= len(e.cfunctions) {
			return e.ThrowError(ErrKindInternalError, "invalid cfunction reference")
		}
		v, err := e.cfunctions[callee.CFunctionIndex()](e, thisVal, args)
		if err != nil {
			return err
		}
		return e.pushData(v)
	case callee.IsFunctionPtr():
		fc := e.heap.Function(callee.FunctionIndex())
		if fc.bcode != nil {
			scope := e.makeCallScope(fc.bcode, fc.scope, args)
			return e.pushFrame(frame{bcode: fc.bcode, pc: 0, scopeObj: scope, thisVal: thisVal, base: len(e.dataStack)})
		}
		if fc.cfn >= 0 {
			v, err := e.cfunctions[fc.cfn](e, thisVal, args)
			if err != nil {
				return err
			}
			return e.pushData(v)
		}
		return e.ThrowError(ErrKindTypeError, "value is not callable")
	default:
		return e.ThrowError(ErrKindTypeError, "value is not callable")
	}
}

// dispatchNew implements OpNew/Construct's allocate-proto-bind step:
// a CFunction callee runs inline and its result is pushed directly;
// a script function pushes a frame and returns, keeping OpNew on the
// same flat, non-recursive dispatch path as dispatchCall.
func (e *Engine) dispatchNew(callee Val, args []Val) error {
	if callee.IsCFunction() {
		if int(callee.CFunctionIndex()) >= len(e.cfunctions) {
			return e.ThrowError(ErrKindInternalError, "invalid cfunction reference")
		}
		newObj := e.newPlainObject()
		result, err := e.cfunctions[callee.CFunctionIndex()](e, newObj, args)
		if err != nil {
			return err
		}
		if result.IsObject() {
			return e.pushData(result)
		}
		return e.pushData(newObj)
	}
	if !callee.IsFunctionPtr() {
		return e.ThrowError(ErrKindTypeError, "value is not a constructor")
	}
	fc := e.heap.Function(callee.FunctionIndex())
	if fc.bcode == nil && fc.cfn < 0 {
		return e.ThrowError(ErrKindTypeError, "value is not a constructor")
	}
	if fc.bcode == nil {
		// A CreateConstructor-wrapped host function (builtins.go's
		// installErrors): same allocate-proto-bind-run shape as the
		// CFunction branch above, except the prototype comes from this
		// function cell's own settable "prototype" property instead of a
		// freshly-allocated plain object.
		protoVal, err := e.GetProperty(callee, "prototype")
		if err != nil {
			return err
		}
		idx := e.heap.allocObject()
		newObj := ObjectVal(idx)
		if protoVal.IsObject() {
			e.heap.Object(idx).proto = protoVal
		} else {
			e.heap.Object(idx).proto = e.objectProto
		}
		result, err := e.cfunctions[fc.cfn](e, newObj, args)
		if err != nil {
			return err
		}
		if result.IsObject() {
			return e.pushData(result)
		}
		return e.pushData(newObj)
	}
	protoVal, err := e.GetProperty(callee, "prototype")
	if err != nil {
		return err
	}
	idx := e.heap.allocObject()
	newObj := ObjectVal(idx)
	if protoVal.IsObject() {
		e.heap.Object(idx).proto = protoVal
	} else {
		e.heap.Object(idx).proto = e.objectProto
	}
	scope := e.makeCallScope(fc.bcode, fc.scope, args)
	return e.pushFrame(frame{
		bcode: fc.bcode, pc: 0, scopeObj: scope, thisVal: newObj, base: len(e.dataStack),
		isConstructor: true, newTarget: callee,
	})
}

// ---- top-level script execution ----

// Exec compiles and runs src as a top-level script (spec §6.1's
// exec/compile/apply trio collapsed into one call for the common
// case), returning the script's completion value.
func (e *Engine) Exec(src []byte, source string) (Val, ExecResult, error) {
	ast, err := ParseProgram(src, e.config)
	if err != nil {
		return Undefined, classifyError(err), err
	}
	bc, err := e.Compile(ast, source, e.config.ForceStrict)
	if err != nil {
		return Undefined, classifyError(err), err
	}
	v, err := e.runTopLevel(bc)
	if err != nil {
		return Undefined, classifyError(err), err
	}
	return v, ResultOK, nil
}

// runTopLevel runs a script/eval Bcode directly against the global
// object rather than through makeCallScope: top-level `var`/function
// declarations are properties of the global object itself (so a
// later script or host lookup sees them), not of some throwaway
// wrapper scope the way a function call's locals are.
func (e *Engine) runTopLevel(bc *Bcode) (Val, error) {
	for _, nameVal := range bc.localVars {
		name, _ := nameVal.String(e)
		if _, found := e.heap.findProperty(e.global, name, e); !found {
			e.heap.putProperty(e.global, nameVal, Undefined, 0, e)
		}
	}
	if err := e.pushFrame(frame{bcode: bc, pc: 0, scopeObj: e.global, thisVal: e.global, base: len(e.dataStack)}); err != nil {
		return Undefined, err
	}
	return e.run()
}

func classifyError(err error) ExecResult {
	switch err.(type) {
	case SyntaxError:
		return ResultSyntaxError
	case ExecException:
		return ResultExecException
	case StackOverflowError:
		return ResultStackOverflow
	case ASTTooLargeError:
		return ResultASTTooLarge
	case InvalidArgError:
		return ResultInvalidArg
	default:
		return ResultInternalError
	}
}

// ParseJSON evaluates text as a JSON value by compiling it as a
// parenthesized expression script: every JSON value is already valid
// JS expression syntax, so this reuses the same lexer/parser/compiler/
// VM pipeline instead of a separate JSON grammar (SPEC_FULL's JSON
// supplement; see DESIGN.md).
func (e *Engine) ParseJSON(text string) (Val, error) {
	src := append([]byte("("), append([]byte(text), ')')...)
	ast, err := ParseProgram(src, e.config)
	if err != nil {
		return Undefined, e.ThrowError(ErrKindSyntaxError, "invalid JSON: "+err.Error())
	}
	bc, err := e.Compile(ast, "JSON.parse", e.config.ForceStrict)
	if err != nil {
		return Undefined, err
	}
	return e.runTopLevel(bc)
}
