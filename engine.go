package v7

import "fmt"

// CFunction is a host function bound into the engine (spec §4.8 host
// API: "create/get/set/call"). args excludes the receiver; thisVal is
// the call's this-binding. Returning an error is equivalent to
// throwing it as a JS exception from the VM's point of view.
type CFunction func(e *Engine, thisVal Val, args []Val) (Val, error)

// frame is one VM call-stack entry (spec §4.6's register list: "ops
// pointer, end pointer, literal pointer, current frame..."). scopeObj
// is the object arena entry backing the function's variable/argument
// bindings; it is itself a Val so closures can capture it directly as
// a nested function's scope chain parent.
type frame struct {
	bcode    *Bcode
	pc       int
	scopeObj Val
	thisVal  Val

	// base is len(Engine.dataStack) at the moment this frame started
	// running, i.e. just after the call's arguments were popped off and
	// before the callee pushes its own completion-value seed. Every
	// try-stack unwind within this frame truncates back to base+1
	// rather than tracking a per-entry depth (see bcode.go's tryEntry
	// doc): the seed discipline (spec §4.5) guarantees that is always
	// the right depth.
	base int

	// tryStack is this call's own try/catch/finally/loop/switch entries
	// (spec §4.4.3), local to the frame rather than a separate parallel
	// stack: a callee's try-protected regions must never be visible to
	// or unwound by its caller's OpThrow/break/continue handling.
	tryStack []tryEntry

	isConstructor bool
	newTarget     Val // the object a constructor call pre-allocated as `this`, Undefined for plain calls
}

// Engine is the root handle for one V7 virtual machine instance (spec
// §4 overview, §4.8 host API). One Engine owns exactly one Heap, one
// data stack, one global object and is never shared across goroutines
// concurrently (spec §5: single-threaded per instance).
type Engine struct {
	heap   *Heap
	config *EngineConfig

	global Val // the global object, an ordinary tagObject Val

	dataStack []Val
	frames    []frame

	// actBcodes is the stack of currently-executing Bcodes (spec
	// §4.7's GC root-set bullet: "literals and names of each bcode on
	// act_bcodes"). The top-level script/eval Bcode and every function
	// Bcode currently on the Go-level call stack appear here,
	// independent of whether a closure object also keeps them alive.
	actBcodes []*Bcode

	cfunctions []CFunction

	// Prototype objects wired by installBuiltins (builtins.go). Kept as
	// direct Engine fields rather than looked up by name each time a
	// new object/array/function/string needs its proto chain set, since
	// every object creation opcode touches one of these.
	objectProto   Val
	arrayProto    Val
	functionProto Val
	stringProto   Val
	errorProto    Val

	// errorProtos holds the per-kind Error.prototype objects installed by
	// installErrors (builtins.go), each chained to errorProto so
	// `e instanceof Error` holds for every kind (spec §7's taxonomy).
	// errorCtors is the matching kind->constructor table spec §4.7 calls
	// out by name as its own GC root, separate from walking global's own
	// properties.
	errorProtos map[string]Val
	errorCtors  map[string]Val

	foreignStrings []string

	regexps []regexpProgram

	// owned is the set of Vals the host has pinned outside the data
	// stack via the Own host API call (spec §4.8, SPEC_FULL §1.3);
	// Disown removes an entry. These are GC roots.
	owned []ownedSlot

	thrownValue   Val
	hasThrown     bool
	returnedValue Val

	// pending holds a return/break/continue/throw action suspended by a
	// finally block currently running (OpPushTryFrame's tryFrameFinally
	// case in unwind); OpLeaveFinally resumes it once the finally body
	// completes, unless the finally body itself produced a new action
	// that supersedes it.
	pending pend

	interrupted bool

	gcCount int
}

type ownedSlot struct {
	id  int
	val Val
}

// NewEngine allocates a fresh engine with its own heap, global object
// and configuration. A nil cfg falls back to DefaultConfig.
func NewEngine(cfg *EngineConfig) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	e := &Engine{
		heap:      newHeap(cfg),
		config:    cfg,
		dataStack: make([]Val, 0, cfg.MaxDataStackDepth),
	}
	globalIdx := e.heap.allocObject()
	e.global = ObjectVal(globalIdx)
	e.installGlobals()
	e.installBuiltins()
	return e
}

// Interrupt requests that the running VM loop stop at the next opcode
// boundary (spec §4.8 host API "interrupt"), e.g. from a signal
// handler or a watchdog goroutine.
func (e *Engine) Interrupt() { e.interrupted = true }

// pushFrame/popFrame manage the call stack, enforcing MaxCallDepth
// (spec §4.6 "stack depth limits produce StackOverflowError rather
// than a Go runtime stack overflow").
func (e *Engine) pushFrame(f frame) error {
	if len(e.frames) >= e.config.MaxCallDepth {
		return StackOverflowError{Message: fmt.Sprintf("call depth exceeded %d", e.config.MaxCallDepth)}
	}
	e.frames = append(e.frames, f)
	e.actBcodes = append(e.actBcodes, f.bcode)
	return nil
}

func (e *Engine) popFrame() {
	e.frames = e.frames[:len(e.frames)-1]
	e.actBcodes = e.actBcodes[:len(e.actBcodes)-1]
}

func (e *Engine) pushData(v Val) error {
	if len(e.dataStack) >= e.config.MaxDataStackDepth {
		return StackOverflowError{Message: fmt.Sprintf("data stack exceeded %d", e.config.MaxDataStackDepth)}
	}
	e.dataStack = append(e.dataStack, v)
	return nil
}

func (e *Engine) popData() Val {
	n := len(e.dataStack)
	v := e.dataStack[n-1]
	e.dataStack = e.dataStack[:n-1]
	return v
}

// throw records a pending exception, mirroring the C engine's
// thrown_error register plus a boolean flag rather than Go-level
// panic/recover, so the VM loop can unwind the try-stack explicitly
// (spec §4.4.3, §4.6).
func (e *Engine) throw(v Val) error {
	e.thrownValue = v
	e.hasThrown = true
	return ExecException{Val: v, Message: e.describeException(v)}
}

func (e *Engine) describeException(v Val) string {
	if v.IsObject() {
		if idx, isFn, ok := v.AsObjectIndex(); ok {
			if prop, found := e.heap.findProperty(v, "message", e); found {
				if s, err := e.heap.props[prop].value.String(e); err == nil {
					return s
				}
			}
			_ = idx
			_ = isFn
		}
	}
	if s, err := v.String(e); err == nil {
		return s
	}
	return "uncaught exception"
}

// ThrowError constructs and throws a standard Error-kind object (spec
// §7 error kinds / SPEC_FULL §1.1).
func (e *Engine) ThrowError(kind, message string) error {
	v := e.NewError(kind, message)
	return e.throw(v)
}

// NewError builds (but does not throw) an Error-kind object with
// name/message properties, matching the shape `new Error(message)`
// produces at the JS level. Its proto is kind's Error.prototype
// (installErrors, builtins.go) so `instanceof TypeError`/`instanceof
// Error` both hold, falling back to the bare errorProto for a kind
// with no installed constructor (internal callers that pass a
// descriptive kind string rather than one of the ErrKind* constants).
func (e *Engine) NewError(kind, message string) Val {
	idx := e.heap.allocObject()
	v := ObjectVal(idx)
	proto := e.errorProto
	if p, ok := e.errorProtos[kind]; ok {
		proto = p
	}
	e.heap.Object(idx).proto = proto
	e.heap.putProperty(v, e.StringVal("name"), e.StringVal(kind), PropDontEnum, e)
	e.heap.putProperty(v, e.StringVal("message"), e.StringVal(message), PropDontEnum, e)
	return v
}

// Own pins v so the garbage collector treats it as reachable until a
// matching Disown call (spec §4.8 host API "own/disown").
func (e *Engine) Own(v Val) int {
	id := 0
	if n := len(e.owned); n > 0 {
		id = e.owned[n-1].id + 1
	}
	e.owned = append(e.owned, ownedSlot{id: id, val: v})
	return id
}

// Disown releases a previous Own registration. Unknown ids are a
// no-op, matching the host API's tolerant "disown of anything, including
// things not owned, is ignored" contract.
func (e *Engine) Disown(id int) {
	for i, s := range e.owned {
		if s.id == id {
			e.owned = append(e.owned[:i], e.owned[i+1:]...)
			return
		}
	}
}

// CreateFunction registers a host CFunction and returns its callable
// Val (spec §4.8 host API "create").
func (e *Engine) CreateFunction(fn CFunction) Val {
	idx := uint32(len(e.cfunctions))
	e.cfunctions = append(e.cfunctions, fn)
	return CFunctionVal(idx)
}

// CreateConstructor is CreateFunction for the handful of host
// functions that also need to work behind `new` with a real,
// independently-settable `.prototype` (builtins.go's installErrors):
// a bare CFunctionVal has no function-arena cell to hang a prototype
// property off, so this wraps the CFunction in a function-arena cell
// instead, the same cell kind OpClosure uses for script functions,
// with cfn set rather than bcode.
func (e *Engine) CreateConstructor(fn CFunction) Val {
	idx := uint32(len(e.cfunctions))
	e.cfunctions = append(e.cfunctions, fn)
	fidx := e.heap.allocFunction()
	e.heap.Function(fidx).cfn = int32(idx)
	return FunctionVal(fidx)
}

// GlobalObject returns the engine's global object Val.
func (e *Engine) GlobalObject() Val { return e.global }
