package v7

import (
	"fmt"
	"os"
)

// installGlobals wires the handful of bindings the host API surface
// and the VM's own opcodes expect to already exist on a fresh engine:
// a self-reference so `this` at top level resolves, and a `print`
// CFunction host embedders can call from script for smoke-testing
// without wiring their own (spec §4.8's host API is deliberately
// small; anything beyond this is left to the embedder, per SPEC_FULL
// §1 Non-goals on a bundled standard library).
func (e *Engine) installGlobals() {
	e.heap.putProperty(e.global, e.StringVal("global"), e.global, PropDontEnum, e)

	print := e.CreateFunction(func(e *Engine, this Val, args []Val) (Val, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			s, err := e.ToString(a)
			if err != nil {
				return Undefined, err
			}
			parts[i] = s
		}
		fmt.Fprintln(os.Stdout, joinSpace(parts))
		return Undefined, nil
	})
	e.heap.putProperty(e.global, e.StringVal("print"), print, PropDontEnum, e)
}

func joinSpace(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}
