package v7

import (
	"math"
	"strconv"
	"strings"
)

// ThrowErrorVal is ThrowError for call sites that need a (Val, error)
// pair, matching CFunction's return shape.
func (e *Engine) ThrowErrorVal(kind, message string) (Val, error) {
	return Undefined, e.ThrowError(kind, message)
}

// ---- scope chain ----
//
// A frame's activation record is an ordinary heap object whose proto
// field (object.go's ordinary inheritance-chain pointer) doubles as
// the lexical parent link: scope objects are never exposed to script
// as `this` or returned from any expression, so reusing the same
// object/prototype-chain machinery real property lookups already use
// costs nothing and needs no separate representation (see DESIGN.md).
// The outermost scope is the global object itself, whose proto is
// Undefined, terminating the chain.
func (e *Engine) newActivationScope(parent Val) Val {
	idx := e.heap.allocObject()
	cell := e.heap.Object(idx)
	cell.attrs |= AttrNotExtensible // irrelevant for scope use, just not a normal extensible object
	cell.proto = parent
	return ObjectVal(idx)
}

func (e *Engine) lookupScope(scope Val, name string) (owner Val, idx int32, found bool) {
	cur := scope
	for {
		if e.heap.attrsOf(cur)&AttrWithScope != 0 {
			target := e.heap.prototypeOf(cur)
			for target.IsObject() {
				if i, ok := e.heap.findProperty(target, name, e); ok {
					return target, i, true
				}
				target = e.heap.prototypeOf(target)
			}
			cur = e.heap.Object(cur.ObjectIndex()).internal
			continue
		}
		if i, ok := e.heap.findProperty(cur, name, e); ok {
			return cur, i, true
		}
		parent := e.heap.prototypeOf(cur)
		if parent.IsUndefined() || parent.IsNull() {
			return Undefined, -1, false
		}
		cur = parent
	}
}

// ---- property access ----

func parseArrayIndex(name string) (int, bool) {
	if name == "" {
		return 0, false
	}
	for _, r := range name {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(name)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// propValue reads a property cell's effective value, invoking its
// getter (bound to receiver) when the cell is an accessor.
func (e *Engine) propValue(idx int32, receiver Val) (Val, error) {
	p := e.heap.Property(idx)
	if p.attrs&PropGetter != 0 {
		if p.value.IsUndefined() {
			return Undefined, nil
		}
		return e.Call(p.value, receiver, nil)
	}
	return p.value, nil
}

// GetProperty implements the VM's property-read opcodes (OpGetProp /
// OpGetPropLit), walking the prototype chain and dispatching to
// getters (spec §4.4.2's property-access semantics). Functions fall
// back to functionProto rather than their own .prototype object: see
// DESIGN.md for why functionCell.proto is reserved for the
// constructor-facing .prototype value instead of an inheritance link.
func (e *Engine) GetProperty(v Val, name string) (Val, error) {
	switch {
	case v.IsUndefined() || v.IsNull():
		return Undefined, e.ThrowError(ErrKindTypeError, "Cannot read property '"+name+"' of "+typeOfNullish(v))
	case v.IsString():
		return e.getStringProperty(v, name)
	case v.IsObject():
		return e.getObjectProperty(v, name, v)
	default:
		return Undefined, nil
	}
}

func typeOfNullish(v Val) string {
	if v.IsNull() {
		return "null"
	}
	return "undefined"
}

func (e *Engine) getStringProperty(v Val, name string) (Val, error) {
	s, err := v.String(e)
	if err != nil {
		return Undefined, err
	}
	r := []rune(s)
	if name == "length" {
		return NumberVal(float64(len(r))), nil
	}
	if i, ok := parseArrayIndex(name); ok {
		if i < len(r) {
			return e.StringVal(string(r[i])), nil
		}
		return Undefined, nil
	}
	return e.getObjectProperty(e.stringProto, name, v)
}

func (e *Engine) getObjectProperty(v Val, name string, receiver Val) (Val, error) {
	if v.IsObjectPtr() {
		cell := e.heap.Object(v.ObjectIndex())
		if cell.attrs&AttrDenseArray != 0 {
			if name == "length" {
				return NumberVal(float64(len(cell.dense))), nil
			}
			if i, ok := parseArrayIndex(name); ok {
				if i < len(cell.dense) {
					return cell.dense[i], nil
				}
				return Undefined, nil
			}
		}
	}
	if v.IsFunctionPtr() && name == "prototype" {
		fc := e.heap.Function(v.FunctionIndex())
		if fc.proto.IsUndefined() {
			fc.proto = e.newPrototypeObject(e.objectProto)
			e.heap.putProperty(fc.proto, e.StringVal("constructor"), v, PropDontEnum, e)
		}
		return fc.proto, nil
	}
	if idx, ok := e.heap.findProperty(v, name, e); ok {
		return e.propValue(idx, receiver)
	}
	if v.IsFunctionPtr() {
		if e.functionProto.IsUndefined() {
			return Undefined, nil
		}
		return e.getObjectProperty(e.functionProto, name, receiver)
	}
	parent := e.heap.prototypeOf(v)
	if parent.IsUndefined() || parent.IsNull() || !parent.IsObject() {
		return Undefined, nil
	}
	return e.getObjectProperty(parent, name, receiver)
}

// SetProperty implements OpSetProp / OpSetPropLit: own-property
// create-or-overwrite, dense array index/length growth, function
// .prototype reassignment, and setter dispatch.
func (e *Engine) SetProperty(v Val, name string, value Val) error {
	switch {
	case v.IsUndefined() || v.IsNull():
		return e.ThrowError(ErrKindTypeError, "Cannot set property '"+name+"' of "+typeOfNullish(v))
	case !v.IsObject():
		return nil // assigning a property onto a primitive is a silent no-op
	}

	if v.IsObjectPtr() {
		cell := e.heap.Object(v.ObjectIndex())
		if cell.attrs&AttrDenseArray != 0 {
			if name == "length" {
				n, err := e.ToNumber(value)
				if err != nil {
					return err
				}
				newLen := int(n)
				if newLen < 0 {
					return e.ThrowError(ErrKindRangeError, "invalid array length")
				}
				if newLen < len(cell.dense) {
					cell.dense = cell.dense[:newLen]
				} else {
					for len(cell.dense) < newLen {
						cell.dense = append(cell.dense, Undefined)
					}
				}
				return nil
			}
			if i, ok := parseArrayIndex(name); ok {
				for len(cell.dense) <= i {
					cell.dense = append(cell.dense, Undefined)
				}
				cell.dense[i] = value
				return nil
			}
		}
	}
	if v.IsFunctionPtr() && name == "prototype" {
		e.heap.Function(v.FunctionIndex()).proto = value
		return nil
	}
	if idx, ok := e.heap.findProperty(v, name, e); ok {
		p := e.heap.Property(idx)
		switch {
		case p.attrs&PropSetter != 0:
			if p.value.IsUndefined() {
				return nil
			}
			_, err := e.Call(p.value, v, []Val{value})
			return err
		case p.attrs&PropGetter != 0:
			return nil // accessor property with no setter: silent no-op
		case p.attrs&PropReadOnly != 0:
			return nil
		default:
			p.value = value
			return nil
		}
	}
	e.heap.putProperty(v, e.StringVal(name), value, 0, e)
	return nil
}

func (e *Engine) DeleteProperty(v Val, name string) (bool, error) {
	if !v.IsObject() {
		return true, nil
	}
	if v.IsObjectPtr() {
		cell := e.heap.Object(v.ObjectIndex())
		if cell.attrs&AttrDenseArray != 0 {
			if i, ok := parseArrayIndex(name); ok && i < len(cell.dense) {
				cell.dense[i] = Undefined
				return true, nil
			}
		}
	}
	return e.heap.deleteProperty(v, name, e), nil
}

// HasProperty implements the `in` operator and OpInProp, walking the
// same chain GetProperty does but stopping at existence rather than
// fetching a value (so it never invokes a getter).
func (e *Engine) HasProperty(v Val, name string) bool {
	if v.IsObjectPtr() {
		cell := e.heap.Object(v.ObjectIndex())
		if cell.attrs&AttrDenseArray != 0 {
			if name == "length" {
				return true
			}
			if i, ok := parseArrayIndex(name); ok {
				return i < len(cell.dense)
			}
		}
	}
	if v.IsFunctionPtr() && name == "prototype" {
		return true
	}
	if _, ok := e.heap.findProperty(v, name, e); ok {
		return true
	}
	if v.IsFunctionPtr() {
		if e.functionProto.IsUndefined() {
			return false
		}
		return e.HasProperty(e.functionProto, name)
	}
	parent := e.heap.prototypeOf(v)
	if parent.IsUndefined() || parent.IsNull() || !parent.IsObject() {
		return false
	}
	return e.HasProperty(parent, name)
}

// enumerableKeys collects for-in's enumeration list: own, then
// inherited, enumerable property names, each name visited once even
// if shadowed further up the chain (spec's for-in semantics).
func (e *Engine) enumerableKeys(v Val) []string {
	seen := map[string]bool{}
	var out []string
	cur := v
	for cur.IsObject() {
		if cur.IsObjectPtr() {
			cell := e.heap.Object(cur.ObjectIndex())
			if cell.attrs&AttrDenseArray != 0 {
				for i := range cell.dense {
					k := strconv.Itoa(i)
					if !seen[k] {
						seen[k] = true
						out = append(out, k)
					}
				}
			}
			e.collectOwnEnumerable(cell.properties, seen, &out)
		} else if cur.IsFunctionPtr() {
			fc := e.heap.Function(cur.FunctionIndex())
			e.collectOwnEnumerable(fc.properties, seen, &out)
		}
		cur = e.heap.prototypeOf(cur)
	}
	return out
}

func (e *Engine) collectOwnEnumerable(head int32, seen map[string]bool, out *[]string) {
	for i := head; i >= 0; i = e.heap.props[i].next {
		p := &e.heap.props[i]
		if p.attrs&(PropDontEnum|PropHidden) != 0 {
			continue
		}
		name, err := p.name.String(e)
		if err != nil {
			continue
		}
		if !seen[name] {
			seen[name] = true
			*out = append(*out, name)
		}
	}
}

// ---- coercions (spec §4.4.2/§6.4) ----

func (e *Engine) ToBoolean(v Val) (bool, error) {
	switch {
	case v.IsUndefined(), v.IsNull():
		return false, nil
	case v.IsBoolean():
		return v.Bool(), nil
	case v.IsNumber():
		f := v.Float()
		return f != 0 && !math.IsNaN(f), nil
	case v.IsString():
		s, err := v.String(e)
		if err != nil {
			return false, err
		}
		return s != "", nil
	default:
		return true, nil // objects/functions/regexps are always truthy
	}
}

func (e *Engine) ToNumber(v Val) (float64, error) {
	switch {
	case v.IsNumber():
		return v.Float(), nil
	case v.IsUndefined():
		return math.NaN(), nil
	case v.IsNull():
		return 0, nil
	case v.IsBoolean():
		if v.Bool() {
			return 1, nil
		}
		return 0, nil
	case v.IsString():
		s, err := v.String(e)
		if err != nil {
			return 0, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		f, perr := strconv.ParseFloat(s, 64)
		if perr != nil {
			return math.NaN(), nil
		}
		return f, nil
	case v.IsObject():
		p, err := e.toPrimitive(v)
		if err != nil {
			return 0, err
		}
		if p.IsObject() {
			return math.NaN(), nil
		}
		return e.ToNumber(p)
	default:
		return math.NaN(), nil
	}
}

// toPrimitive is a deliberately minimal ToPrimitive: without a wired
// valueOf/toString method-dispatch table, every object just uses its
// Default ToString rendering (spec §6.4), matching stringify.go's own
// pre-Call-machinery fallback.
func (e *Engine) toPrimitive(v Val) (Val, error) {
	if !v.IsObject() {
		return v, nil
	}
	s, err := e.ToString(v)
	if err != nil {
		return Undefined, err
	}
	return e.StringVal(s), nil
}

func toInt32(f float64) int32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int32(uint32(int64(math.Trunc(f))))
}

func toUint32(f float64) uint32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return uint32(int64(math.Trunc(f)))
}

// ---- equality / relational comparison (spec §4.4.2) ----

func sameType(a, b Val) bool {
	switch {
	case a.IsNumber() && b.IsNumber():
		return true
	case a.IsString() && b.IsString():
		return true
	case a.IsBoolean() && b.IsBoolean():
		return true
	case a.IsUndefined() && b.IsUndefined():
		return true
	case a.IsNull() && b.IsNull():
		return true
	case a.IsObject() && b.IsObject():
		return true
	case a.IsCFunction() && b.IsCFunction():
		return true
	default:
		return false
	}
}

func (e *Engine) strictEquals(a, b Val) (bool, error) {
	if !sameType(a, b) {
		return false, nil
	}
	switch {
	case a.IsNumber():
		return a.Float() == b.Float(), nil
	case a.IsString():
		sa, err := a.String(e)
		if err != nil {
			return false, err
		}
		sb, err := b.String(e)
		if err != nil {
			return false, err
		}
		return sa == sb, nil
	case a.IsBoolean():
		return a.Bool() == b.Bool(), nil
	case a.IsUndefined(), a.IsNull():
		return true, nil
	case a.IsObject():
		ai, afn, _ := a.AsObjectIndex()
		bi, bfn, _ := b.AsObjectIndex()
		return ai == bi && afn == bfn, nil
	case a.IsCFunction():
		return a.CFunctionIndex() == b.CFunctionIndex(), nil
	default:
		return false, nil
	}
}

func (e *Engine) abstractEquals(a, b Val) (bool, error) {
	if sameType(a, b) {
		return e.strictEquals(a, b)
	}
	switch {
	case a.IsNull() && b.IsUndefined(), a.IsUndefined() && b.IsNull():
		return true, nil
	case a.IsNumber() && b.IsString():
		nb, err := e.ToNumber(b)
		if err != nil {
			return false, err
		}
		return a.Float() == nb, nil
	case a.IsString() && b.IsNumber():
		na, err := e.ToNumber(a)
		if err != nil {
			return false, err
		}
		return na == b.Float(), nil
	case a.IsBoolean():
		na, err := e.ToNumber(a)
		if err != nil {
			return false, err
		}
		return e.abstractEquals(NumberVal(na), b)
	case b.IsBoolean():
		nb, err := e.ToNumber(b)
		if err != nil {
			return false, err
		}
		return e.abstractEquals(a, NumberVal(nb))
	case (a.IsNumber() || a.IsString()) && b.IsObject():
		pb, err := e.toPrimitive(b)
		if err != nil {
			return false, err
		}
		return e.abstractEquals(a, pb)
	case a.IsObject() && (b.IsNumber() || b.IsString()):
		pa, err := e.toPrimitive(a)
		if err != nil {
			return false, err
		}
		return e.abstractEquals(pa, b)
	default:
		return false, nil
	}
}

// abstractLess implements the spec's abstract relational comparison:
// undef is true exactly when either operand compares as NaN, in which
// case every one of <, <=, >, >= must yield false (spec §11.8.5).
func (e *Engine) abstractLess(a, b Val) (less bool, undef bool, err error) {
	pa, err := e.toPrimitive(a)
	if err != nil {
		return false, false, err
	}
	pb, err := e.toPrimitive(b)
	if err != nil {
		return false, false, err
	}
	if pa.IsString() && pb.IsString() {
		sa, err := pa.String(e)
		if err != nil {
			return false, false, err
		}
		sb, err := pb.String(e)
		if err != nil {
			return false, false, err
		}
		return sa < sb, false, nil
	}
	na, err := e.ToNumber(pa)
	if err != nil {
		return false, false, err
	}
	nb, err := e.ToNumber(pb)
	if err != nil {
		return false, false, err
	}
	if math.IsNaN(na) || math.IsNaN(nb) {
		return false, true, nil
	}
	return na < nb, false, nil
}

func (e *Engine) typeOf(v Val) string {
	switch {
	case v.IsUndefined():
		return "undefined"
	case v.IsNull():
		return "object"
	case v.IsBoolean():
		return "boolean"
	case v.IsNumber():
		return "number"
	case v.IsString():
		return "string"
	case v.IsFunction():
		return "function"
	default:
		return "object"
	}
}

func (e *Engine) instanceOf(obj, ctor Val) (bool, error) {
	if !ctor.IsFunctionPtr() {
		if ctor.IsCFunction() {
			return false, nil // host functions carry no .prototype object to compare against
		}
		return false, e.ThrowError(ErrKindTypeError, "Right-hand side of 'instanceof' is not callable")
	}
	if !obj.IsObject() {
		return false, nil
	}
	target := e.heap.Function(ctor.FunctionIndex()).proto
	if !target.IsObject() {
		return false, nil
	}
	cur := e.heap.prototypeOf(obj)
	for cur.IsObject() {
		if cur == target {
			return true, nil
		}
		cur = e.heap.prototypeOf(cur)
	}
	return false, nil
}

// ---- array / object construction helpers used by VM opcodes ----

func (e *Engine) newPlainObject() Val {
	idx := e.heap.allocObject()
	e.heap.Object(idx).proto = e.objectProto
	return ObjectVal(idx)
}
