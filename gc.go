package v7

// gcState accumulates mark results for one collection cycle (spec
// §4.7 "Garbage collection"). Object/function/property arenas are
// mark-sweep; the owned-string heap is mark-compact, which is why
// string-owned Val slots are collected into stringRefs during marking
// — they need a second, in-place rewrite once compact() tells us
// where surviving strings landed.
type gcState struct {
	markedObj  []bool
	markedFun  []bool
	markedProp []bool

	liveSerials map[uint16]bool
	stringRefs  []*Val
}

// GC runs a full collection: mark every Val reachable from a root,
// sweep the object/function/property arenas, then mark-compact the
// owned-string heap and rewrite every surviving reference (spec
// §4.7). Collection runs only when GC is called: maybeGC compares the
// string heap against its configured fill ratio, but no engine path
// calls maybeGC. GC is exposed as the "gc" host API call (spec §4.8)
// so embedders can run a pass, e.g. before measuring memory.
func (e *Engine) GC() {
	g := &gcState{
		markedObj:   make([]bool, len(e.heap.objects)),
		markedFun:   make([]bool, len(e.heap.functions)),
		markedProp:  make([]bool, len(e.heap.props)),
		liveSerials: make(map[uint16]bool),
	}

	e.gcMarkRoots(g)

	e.gcSweepObjects(g)
	e.gcSweepFunctions(g)
	e.gcSweepProperties(g)

	relocated := e.heap.strings.compact(g.liveSerials)
	for _, slot := range g.stringRefs {
		_, serial := (*slot).ownedOffsetSerial()
		if newOffset, ok := relocated[serial]; ok {
			*slot = ownedStringVal(newOffset, serial)
		}
	}

	e.gcCount++
}

// maybeGC triggers a collection if the owned-string heap has crossed
// its fill ratio (spec §4.7).
func (e *Engine) maybeGC() {
	if e.heap.strings.shouldCollect() {
		e.GC()
	}
}

func (e *Engine) gcMarkRoots(g *gcState) {
	e.gcMark(g, &e.global)
	e.gcMark(g, &e.thrownValue)
	e.gcMark(g, &e.returnedValue)
	e.gcMark(g, &e.pending.val)
	e.gcMark(g, &e.objectProto)
	e.gcMark(g, &e.arrayProto)
	e.gcMark(g, &e.functionProto)
	e.gcMark(g, &e.stringProto)
	e.gcMark(g, &e.errorProto)
	for kind := range e.errorProtos {
		v := e.errorProtos[kind]
		e.gcMark(g, &v)
		e.errorProtos[kind] = v
	}
	for kind := range e.errorCtors {
		v := e.errorCtors[kind]
		e.gcMark(g, &v)
		e.errorCtors[kind] = v
	}

	for i := range e.dataStack {
		e.gcMark(g, &e.dataStack[i])
	}
	for i := range e.owned {
		e.gcMark(g, &e.owned[i].val)
	}
	for i := range e.frames {
		e.gcMark(g, &e.frames[i].scopeObj)
		e.gcMark(g, &e.frames[i].thisVal)
		e.gcMark(g, &e.frames[i].newTarget)
	}
	for _, bc := range e.actBcodes {
		if bc == nil {
			continue
		}
		for i := range bc.lit {
			e.gcMark(g, &bc.lit[i])
		}
		for i := range bc.names {
			e.gcMark(g, &bc.names[i])
		}
	}
}

// gcMark traces the object graph reachable from *slot, marking arena
// cells and collecting owned-string slots for the post-compaction
// rewrite pass. Every recursive call takes the address of the Val
// actually stored in its container (a struct field or slice element)
// rather than a copy, so string relocation can write the new
// (offset, serial) pair back in place.
func (e *Engine) gcMark(g *gcState, slot *Val) {
	v := *slot
	switch v.tag() {
	case tagStringOwned:
		_, serial := v.ownedOffsetSerial()
		g.liveSerials[serial] = true
		g.stringRefs = append(g.stringRefs, slot)

	case tagObject:
		idx := v.payload32()
		if g.markedObj[idx] {
			return
		}
		g.markedObj[idx] = true
		cell := &e.heap.objects[idx]
		e.gcMark(g, &cell.proto)
		e.gcMark(g, &cell.internal)
		for i := range cell.dense {
			e.gcMark(g, &cell.dense[i])
		}
		e.gcMarkProps(g, cell.properties)

	case tagFunction:
		idx := v.payload32()
		if g.markedFun[idx] {
			return
		}
		g.markedFun[idx] = true
		cell := &e.heap.functions[idx]
		e.gcMark(g, &cell.proto)
		e.gcMark(g, &cell.scope)
		e.gcMarkProps(g, cell.properties)
		if cell.bcode != nil {
			for i := range cell.bcode.lit {
				e.gcMark(g, &cell.bcode.lit[i])
			}
			for i := range cell.bcode.names {
				e.gcMark(g, &cell.bcode.names[i])
			}
		}
	}
}

func (e *Engine) gcMarkProps(g *gcState, head int32) {
	for i := head; i >= 0; {
		if g.markedProp[i] {
			return
		}
		g.markedProp[i] = true
		p := &e.heap.props[i]
		e.gcMark(g, &p.name)
		e.gcMark(g, &p.value)
		i = p.next
	}
}

func (e *Engine) gcSweepObjects(g *gcState) {
	h := e.heap
	for i := range h.objects {
		if !h.objects[i].alive || g.markedObj[i] {
			continue
		}
		h.objects[i] = objectCell{}
		h.objFree = append(h.objFree, uint32(i))
	}
}

func (e *Engine) gcSweepFunctions(g *gcState) {
	h := e.heap
	for i := range h.functions {
		if !h.functions[i].alive || g.markedFun[i] {
			continue
		}
		h.functions[i] = functionCell{}
		h.funFree = append(h.funFree, uint32(i))
	}
}

func (e *Engine) gcSweepProperties(g *gcState) {
	h := e.heap
	for i := range h.props {
		if !h.props[i].alive || g.markedProp[i] {
			continue
		}
		h.freeProperty(int32(i))
	}
}
