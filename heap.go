package v7

import "github.com/davecgh/go-spew/spew"

// Heap owns the three cell arenas (generic objects, functions,
// properties) plus the owned-string heap (see stringheap.go). Each
// arena is a flat slice with a free-index stack standing in for the
// spec's "linked list of blocks threaded through the first word" —
// blocks are not modeled separately since Go slices already grow
// without the engine needing to manage block boundaries itself; the
// mark-sweep algorithm and arena-index-as-pointer design are
// preserved exactly (spec §4.7, §9).
type Heap struct {
	objects   []objectCell
	objFree   []uint32
	functions []functionCell
	funFree   []uint32
	props     []propertyCell
	propFree  []uint32

	strings *stringHeap

	cfg *EngineConfig
}

func newHeap(cfg *EngineConfig) *Heap {
	return &Heap{
		objects:   make([]objectCell, 0, cfg.ObjectArenaCells),
		functions: make([]functionCell, 0, cfg.FunctionArenaCells),
		props:     make([]propertyCell, 0, cfg.PropertyArenaCells),
		strings:   newStringHeap(cfg.StringHeapGCFillRatio),
		cfg:       cfg,
	}
}

// Stats reports each arena's live/allocated cell counts (spec §6.1's
// -mm flag).
type HeapStats struct {
	ObjectCells, ObjectFree     int
	FunctionCells, FunctionFree int
	PropertyCells, PropertyFree int
	StringHeapBytes             int
}

func (h *Heap) Stats() HeapStats {
	return HeapStats{
		ObjectCells:     len(h.objects),
		ObjectFree:      len(h.objFree),
		FunctionCells:   len(h.functions),
		FunctionFree:    len(h.funFree),
		PropertyCells:   len(h.props),
		PropertyFree:    len(h.propFree),
		StringHeapBytes: h.strings.byteLen(),
	}
}

// heapCensus is the verbose view Dump renders: occupancy counts plus
// every still-live cell's actual contents, as opposed to Stats' bare
// counts.
type heapCensus struct {
	Stats     HeapStats
	Objects   []objectCell
	Functions []functionCell
	Live      []propertyCell
}

// Dump renders a full heap census with go-spew: arena occupancy plus
// every live cell's contents, the same "print the whole structure,
// don't guess" style the teacher's test suite leans on for
// assertion-failure output. The CLI's -mm flag prints this instead of
// hand-rolling its own cell formatter.
func (h *Heap) Dump() string {
	live := make([]propertyCell, 0, len(h.props)-len(h.propFree))
	for _, p := range h.props {
		if p.alive {
			live = append(live, p)
		}
	}
	objs := make([]objectCell, 0, len(h.objects)-len(h.objFree))
	for _, o := range h.objects {
		if o.alive {
			objs = append(objs, o)
		}
	}
	funs := make([]functionCell, 0, len(h.functions)-len(h.funFree))
	for _, f := range h.functions {
		if f.alive {
			funs = append(funs, f)
		}
	}
	return spew.Sdump(heapCensus{
		Stats:     h.Stats(),
		Objects:   objs,
		Functions: funs,
		Live:      live,
	})
}

// ---- Object arena ----

func (h *Heap) allocObject() uint32 {
	if n := len(h.objFree); n > 0 {
		idx := h.objFree[n-1]
		h.objFree = h.objFree[:n-1]
		h.objects[idx] = objectCell{alive: true, properties: -1, proto: Undefined}
		return idx
	}
	h.objects = append(h.objects, objectCell{alive: true, properties: -1, proto: Undefined})
	return uint32(len(h.objects) - 1)
}

func (h *Heap) Object(idx uint32) *objectCell { return &h.objects[idx] }

// ---- Function arena ----

func (h *Heap) allocFunction() uint32 {
	if n := len(h.funFree); n > 0 {
		idx := h.funFree[n-1]
		h.funFree = h.funFree[:n-1]
		h.functions[idx] = functionCell{alive: true, properties: -1, proto: Undefined, scope: Undefined, cfn: -1}
		return idx
	}
	h.functions = append(h.functions, functionCell{alive: true, properties: -1, proto: Undefined, scope: Undefined, cfn: -1})
	return uint32(len(h.functions) - 1)
}

func (h *Heap) Function(idx uint32) *functionCell { return &h.functions[idx] }

// ---- Property arena ----

func (h *Heap) allocProperty() int32 {
	if n := len(h.propFree); n > 0 {
		idx := h.propFree[n-1]
		h.propFree = h.propFree[:n-1]
		h.props[idx] = propertyCell{alive: true, next: -1}
		return int32(idx)
	}
	h.props = append(h.props, propertyCell{alive: true, next: -1})
	return int32(len(h.props) - 1)
}

func (h *Heap) Property(idx int32) *propertyCell { return &h.props[idx] }

// ---- Shared property-list helpers (used by both object and function cells) ----

func (h *Heap) propertiesOf(v Val) (head *int32, ok bool) {
	switch v.tag() {
	case tagObject:
		return &h.objects[v.payload32()].properties, true
	case tagFunction:
		return &h.functions[v.payload32()].properties, true
	default:
		return nil, false
	}
}

func (h *Heap) prototypeOf(v Val) Val {
	switch v.tag() {
	case tagObject:
		return h.objects[v.payload32()].proto
	case tagFunction:
		return h.functions[v.payload32()].proto
	default:
		return Undefined
	}
}

func (h *Heap) attrsOf(v Val) uint8 {
	switch v.tag() {
	case tagObject:
		return h.objects[v.payload32()].attrs
	case tagFunction:
		return h.functions[v.payload32()].attrs
	default:
		return 0
	}
}

// findProperty walks the property list of object/function v looking
// for a property literally named name (own property only — no
// prototype walk, see Engine.GetProperty for that).
func (h *Heap) findProperty(v Val, name string, e *Engine) (idx int32, found bool) {
	head, ok := h.propertiesOf(v)
	if !ok {
		return -1, false
	}
	for i := *head; i >= 0; i = h.props[i].next {
		p := &h.props[i]
		pname, err := p.name.String(e)
		if err == nil && pname == name {
			return i, true
		}
	}
	return -1, false
}

// putProperty creates or overwrites an own property, pushing new
// properties onto the head of the object's list (O(1) insert; lookup
// stays O(n) in property count, matching the spec's linked-list
// design).
func (h *Heap) putProperty(v Val, name Val, value Val, attrs uint8, e *Engine) {
	nameStr, _ := name.String(e)
	if idx, found := h.findProperty(v, nameStr, e); found {
		h.props[idx].value = value
		h.props[idx].attrs = attrs
		return
	}
	head, ok := h.propertiesOf(v)
	if !ok {
		return
	}
	idx := h.allocProperty()
	h.props[idx].name = name
	h.props[idx].value = value
	h.props[idx].attrs = attrs
	h.props[idx].next = *head
	*head = idx
}

func (h *Heap) deleteProperty(v Val, name string, e *Engine) bool {
	head, ok := h.propertiesOf(v)
	if !ok {
		return false
	}
	prev := int32(-1)
	for i := *head; i >= 0; i = h.props[i].next {
		pname, err := h.props[i].name.String(e)
		if err == nil && pname == name {
			if h.props[i].attrs&PropDontDelete != 0 {
				return false
			}
			if prev < 0 {
				*head = h.props[i].next
			} else {
				h.props[prev].next = h.props[i].next
			}
			h.freeProperty(i)
			return true
		}
		prev = i
	}
	return false
}

func (h *Heap) freeProperty(idx int32) {
	h.props[idx] = propertyCell{}
	h.propFree = append(h.propFree, uint32(idx))
}
