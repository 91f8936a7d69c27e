package v7

// Attribute bits for Object.attributes (spec §3 "Object").
const (
	AttrNotExtensible uint8 = 1 << iota
	AttrDenseArray
	AttrIsFunction

	// AttrWithScope marks an activation object synthesized by
	// OpWithEnter: its proto is the `with` target (so ordinary
	// prototype-chain property lookups see the target's own chain),
	// while its internal field (otherwise unused on a scope object)
	// holds the enclosing lexical scope to resume at once the target's
	// chain is exhausted. lookupScope (runtime.go) special-cases it;
	// ordinary property access never needs to know about it.
	AttrWithScope
)

// Attribute bits for Property.attrs (spec §3 "Property").
const (
	PropReadOnly uint8 = 1 << iota
	PropDontEnum
	PropDontDelete
	PropHidden
	PropGetter
	PropSetter
)

// objectCell is the generic-object arena's cell. Function objects get
// their own arena (functionCell) because they additionally carry a
// Bcode handle; both share the same property-list/attrs shape, which
// is why GET/SET property opcodes in the VM treat IsObject() (the
// union of tagObject and tagFunction) uniformly.
type objectCell struct {
	alive      bool
	properties int32 // head index into the property arena, -1 if empty
	attrs      uint8
	proto      Val // Undefined, Null, or an object/function Val

	// internal holds the "first hidden property" payload an object
	// carries directly on the cell instead of in the property list;
	// a with-statement scope object stores its enclosing scope here.
	// Dense arrays use the dense field below, and regexps are their
	// own Val tag.
	internal Val
	dense    []Val // backing storage when AttrDenseArray is set

	freeNext uint32
}

// functionCell is the function arena's cell: a base object (inlined
// here rather than embedded, since Go has no cheap way to alias the
// "first word" the way the spec's C layout does) plus the lexical
// scope and compiled body.
type functionCell struct {
	alive      bool
	properties int32
	attrs      uint8
	proto      Val // reused as "prototype" property storage target

	scope Val // object Val: lexical parent frame at closure capture time
	bcode *Bcode

	// cfn indexes e.cfunctions when this function cell wraps a host
	// constructor (e.g. the global Error/TypeError/... constructors,
	// builtins.go's installErrors) rather than a script closure: -1 for
	// an ordinary closure, where bcode is authoritative instead. Plain
	// CFunctionVal host functions (print, etc.) never need a function
	// cell at all — this field only matters for the subset that must
	// also support `new` with a real, settable `.prototype` property,
	// which CFunctionVal has no backing storage for.
	cfn int32

	freeNext uint32
}

// propertyCell is the property arena's cell (spec §3 "Property").
type propertyCell struct {
	alive bool
	next  int32 // next property in the same object, -1 terminator
	name  Val   // a string Val
	value Val
	attrs uint8

	freeNext uint32
}

