package v7

import "regexp"

// installBuiltins wires the minimal standard-library surface SPEC_FULL
// §1 calls for beyond the bare host API: Object/Array/Function/String
// prototypes with the handful of methods script code actually expects
// to find, plus the JSON global. Everything here is a thin CFunction
// wrapper around the same Heap/GetProperty/ToString machinery the VM
// itself uses — there is no separate "native" code path.
func (e *Engine) installBuiltins() {
	e.objectProto = e.newPrototypeObject(Undefined)
	e.functionProto = e.newPrototypeObject(e.objectProto)
	e.arrayProto = e.newPrototypeObject(e.objectProto)
	e.stringProto = e.newPrototypeObject(e.objectProto)
	e.errorProto = e.newPrototypeObject(e.objectProto)

	e.defMethod(e.objectProto, "toString", func(e *Engine, this Val, args []Val) (Val, error) {
		return e.StringVal("[object Object]"), nil
	})
	e.defMethod(e.objectProto, "hasOwnProperty", func(e *Engine, this Val, args []Val) (Val, error) {
		name, err := argString(e, args, 0)
		if err != nil {
			return Undefined, err
		}
		_, found := e.heap.findProperty(this, name, e)
		return BoolVal(found), nil
	})

	e.defMethod(e.arrayProto, "push", func(e *Engine, this Val, args []Val) (Val, error) {
		cell, ok := e.denseCellOf(this)
		if !ok {
			return Undefined, e.ThrowErrorVal(ErrKindTypeError, "Array.prototype.push called on non-array")
		}
		cell.dense = append(cell.dense, args...)
		return NumberVal(float64(len(cell.dense))), nil
	})
	e.defMethod(e.arrayProto, "pop", func(e *Engine, this Val, args []Val) (Val, error) {
		cell, ok := e.denseCellOf(this)
		if !ok || len(cell.dense) == 0 {
			return Undefined, nil
		}
		v := cell.dense[len(cell.dense)-1]
		cell.dense = cell.dense[:len(cell.dense)-1]
		return v, nil
	})
	e.defMethod(e.arrayProto, "reverse", func(e *Engine, this Val, args []Val) (Val, error) {
		cell, ok := e.denseCellOf(this)
		if !ok {
			return this, nil
		}
		for i, j := 0, len(cell.dense)-1; i < j; i, j = i+1, j-1 {
			cell.dense[i], cell.dense[j] = cell.dense[j], cell.dense[i]
		}
		return this, nil
	})
	e.defMethod(e.arrayProto, "join", func(e *Engine, this Val, args []Val) (Val, error) {
		cell, ok := e.denseCellOf(this)
		if !ok {
			return e.StringVal(""), nil
		}
		sep := ","
		if len(args) > 0 && !args[0].IsUndefined() {
			s, err := e.ToString(args[0])
			if err != nil {
				return Undefined, err
			}
			sep = s
		}
		out := ""
		for i, el := range cell.dense {
			if i > 0 {
				out += sep
			}
			if el.IsUndefined() || el.IsNull() {
				continue
			}
			s, err := e.ToString(el)
			if err != nil {
				return Undefined, err
			}
			out += s
		}
		return e.StringVal(out), nil
	})
	e.defMethod(e.arrayProto, "indexOf", func(e *Engine, this Val, args []Val) (Val, error) {
		cell, ok := e.denseCellOf(this)
		if !ok || len(args) == 0 {
			return NumberVal(-1), nil
		}
		for i, el := range cell.dense {
			eq, err := e.strictEquals(el, args[0])
			if err != nil {
				return Undefined, err
			}
			if eq {
				return NumberVal(float64(i)), nil
			}
		}
		return NumberVal(-1), nil
	})
	e.defMethod(e.arrayProto, "slice", func(e *Engine, this Val, args []Val) (Val, error) {
		cell, ok := e.denseCellOf(this)
		if !ok {
			return e.newDenseArray(nil), nil
		}
		n := len(cell.dense)
		start, end := 0, n
		if len(args) > 0 {
			start = clampIndex(args[0].Float(), n)
		}
		if len(args) > 1 && !args[1].IsUndefined() {
			end = clampIndex(args[1].Float(), n)
		}
		if start > end {
			start = end
		}
		out := make([]Val, end-start)
		copy(out, cell.dense[start:end])
		return e.newDenseArray(out), nil
	})

	e.defMethod(e.functionProto, "call", func(e *Engine, this Val, args []Val) (Val, error) {
		var thisArg Val = Undefined
		var rest []Val
		if len(args) > 0 {
			thisArg = args[0]
			rest = args[1:]
		}
		return e.Call(this, thisArg, rest)
	})
	e.defMethod(e.functionProto, "apply", func(e *Engine, this Val, args []Val) (Val, error) {
		var thisArg Val = Undefined
		if len(args) > 0 {
			thisArg = args[0]
		}
		var rest []Val
		if len(args) > 1 {
			cell, ok := e.denseCellOf(args[1])
			if ok {
				rest = cell.dense
			}
		}
		return e.Call(this, thisArg, rest)
	})

	e.defMethod(e.stringProto, "charAt", func(e *Engine, this Val, args []Val) (Val, error) {
		s, err := e.ToString(this)
		if err != nil {
			return Undefined, err
		}
		idx := 0
		if len(args) > 0 {
			idx = int(args[0].Float())
		}
		r := []rune(s)
		if idx < 0 || idx >= len(r) {
			return e.StringVal(""), nil
		}
		return e.StringVal(string(r[idx])), nil
	})
	e.defMethod(e.stringProto, "indexOf", func(e *Engine, this Val, args []Val) (Val, error) {
		s, err := e.ToString(this)
		if err != nil {
			return Undefined, err
		}
		needle, err := argString(e, args, 0)
		if err != nil {
			return Undefined, err
		}
		for i := range s {
			if len(s[i:]) >= len(needle) && s[i:i+len(needle)] == needle {
				return NumberVal(float64(i)), nil
			}
		}
		return NumberVal(-1), nil
	})
	e.defMethod(e.stringProto, "slice", func(e *Engine, this Val, args []Val) (Val, error) {
		s, err := e.ToString(this)
		if err != nil {
			return Undefined, err
		}
		r := []rune(s)
		n := len(r)
		start, end := 0, n
		if len(args) > 0 {
			start = clampIndex(args[0].Float(), n)
		}
		if len(args) > 1 && !args[1].IsUndefined() {
			end = clampIndex(args[1].Float(), n)
		}
		if start > end {
			start = end
		}
		return e.StringVal(string(r[start:end])), nil
	})
	e.defMethod(e.stringProto, "split", func(e *Engine, this Val, args []Val) (Val, error) {
		s, err := e.ToString(this)
		if err != nil {
			return Undefined, err
		}
		if len(args) == 0 || args[0].IsUndefined() {
			return e.newDenseArray([]Val{e.StringVal(s)}), nil
		}
		sep, err := e.ToString(args[0])
		if err != nil {
			return Undefined, err
		}
		var parts []string
		if sep == "" {
			for _, r := range s {
				parts = append(parts, string(r))
			}
		} else {
			parts = splitString(s, sep)
		}
		vals := make([]Val, len(parts))
		for i, p := range parts {
			vals[i] = e.StringVal(p)
		}
		return e.newDenseArray(vals), nil
	})

	e.installJSON()
	e.installErrors()
}

// errorKinds lists every JS-visible error kind spec §7's taxonomy
// names, in the order their constructors are installed. ErrKindError
// must come first: every other kind's prototype chains to it.
var errorKinds = []string{
	ErrKindError,
	ErrKindTypeError,
	ErrKindSyntaxError,
	ErrKindReferenceError,
	ErrKindInternalError,
	ErrKindRangeError,
	ErrKindEvalError,
}

// installErrors wires the error-constructor table spec §4.7 calls out
// as its own GC root: one prototype per kind, each chained to
// errorProto (so `e instanceof Error` holds for every kind), and one
// global constructor function per kind, matching the
// allocate-name/message shape NewError already builds for errors
// raised by the VM itself (spec §7, builtins.go's defMethod idiom).
func (e *Engine) installErrors() {
	e.errorProtos = make(map[string]Val, len(errorKinds))
	e.errorCtors = make(map[string]Val, len(errorKinds))

	e.heap.putProperty(e.errorProto, e.StringVal("name"), e.StringVal(ErrKindError), PropDontEnum, e)
	e.heap.putProperty(e.errorProto, e.StringVal("message"), e.StringVal(""), PropDontEnum, e)

	for _, kind := range errorKinds {
		proto := e.errorProto
		if kind != ErrKindError {
			proto = e.newPrototypeObject(e.errorProto)
			e.heap.putProperty(proto, e.StringVal("name"), e.StringVal(kind), PropDontEnum, e)
		}
		e.errorProtos[kind] = proto

		kind := kind // capture for the closure below
		ctor := e.CreateConstructor(func(e *Engine, this Val, args []Val) (Val, error) {
			message := ""
			if len(args) > 0 && !args[0].IsUndefined() {
				s, err := e.ToString(args[0])
				if err != nil {
					return Undefined, err
				}
				message = s
			}
			return e.NewError(kind, message), nil
		})
		if err := e.SetProperty(ctor, "prototype", proto); err != nil {
			panic("installErrors: " + err.Error()) // unreachable: ctor is always a fresh function cell
		}
		e.heap.putProperty(proto, e.StringVal("constructor"), ctor, PropDontEnum, e)
		e.errorCtors[kind] = ctor
		e.heap.putProperty(e.global, e.StringVal(kind), ctor, PropDontEnum, e)
	}
}

func splitString(s, sep string) []string {
	var out []string
	for {
		i := indexOf(s, sep)
		if i < 0 {
			out = append(out, s)
			return out
		}
		out = append(out, s[:i])
		s = s[i+len(sep):]
	}
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func clampIndex(f float64, n int) int {
	i := int(f)
	if i < 0 {
		i += n
	}
	if i < 0 {
		i = 0
	}
	if i > n {
		i = n
	}
	return i
}

func argString(e *Engine, args []Val, i int) (string, error) {
	if i >= len(args) {
		return "undefined", nil
	}
	return e.ToString(args[i])
}

// newPrototypeObject creates a bare object used as a Function/Object/
// Array/String prototype, installed before installBuiltins' own
// method definitions run.
func (e *Engine) newPrototypeObject(proto Val) Val {
	idx := e.heap.allocObject()
	v := ObjectVal(idx)
	e.heap.Object(idx).proto = proto
	return v
}

func (e *Engine) defMethod(proto Val, name string, fn CFunction) {
	e.heap.putProperty(proto, e.StringVal(name), e.CreateFunction(fn), PropDontEnum, e)
}

// denseCellOf returns the backing objectCell for v if it is a dense
// array, creating nothing: callers that receive a non-array `this`
// (script code is free to borrow Array.prototype methods) get ok=false
// and decide their own fallback.
func (e *Engine) denseCellOf(v Val) (*objectCell, bool) {
	if !v.IsObjectPtr() {
		return nil, false
	}
	cell := e.heap.Object(v.ObjectIndex())
	if cell.attrs&AttrDenseArray == 0 {
		return nil, false
	}
	return cell, true
}

// newDenseArray allocates a fresh array object backed by elems (not
// copied by this call; pass a fresh slice when the caller must retain
// its own copy).
func (e *Engine) newDenseArray(elems []Val) Val {
	idx := e.heap.allocObject()
	cell := e.heap.Object(idx)
	cell.attrs |= AttrDenseArray
	cell.proto = e.arrayProto
	cell.dense = elems
	return ObjectVal(idx)
}

// installJSON wires the JSON global object's parse/stringify pair
// (SPEC_FULL's JSON stringification-mode supplement); parse is a thin
// wrapper over Compile+eval-an-expression rather than a hand-rolled
// JSON grammar, since a JSON value is already a valid JS expression.
func (e *Engine) installJSON() {
	jsonObj := e.newPrototypeObject(e.objectProto)
	e.defMethod(jsonObj, "stringify", func(e *Engine, this Val, args []Val) (Val, error) {
		if len(args) == 0 {
			return Undefined, nil
		}
		s, err := e.JSONStringify(args[0])
		if err != nil {
			return Undefined, err
		}
		return e.StringVal(s), nil
	})
	e.defMethod(jsonObj, "parse", func(e *Engine, this Val, args []Val) (Val, error) {
		text, err := argString(e, args, 0)
		if err != nil {
			return Undefined, err
		}
		return e.ParseJSON(text)
	})
	e.heap.putProperty(e.global, e.StringVal("JSON"), jsonObj, PropDontEnum, e)
}

// regexpProgram backs a tagRegexp Val (value.go): the engine compiles
// JS regexp literals best-effort against Go's RE2 engine rather than
// implementing backtracking, a deliberate simplification recorded in
// DESIGN.md. Source/flags are kept alongside the compiled program so
// RegExp.prototype.toString (when wired) can reproduce the literal.
type regexpProgram struct {
	source string
	flags  string
	re     *regexp.Regexp
}
