package v7

import (
	"fmt"
	"strings"

	"github.com/v7lang/v7/ascii"
)

// opcodeNames mirrors the teacher's Instruction.String() family, one
// mnemonic per Opcode (spec §4.4.1's disassembler).
var opcodeNames = [...]string{
	OpNop: "nop",

	OpPushLit: "push.lit", OpPushUndefined: "push.undefined", OpPushNull: "push.null",
	OpPushTrue: "push.true", OpPushFalse: "push.false", OpPushThis: "push.this",
	OpPop: "pop", OpDup: "dup", OpSwap: "swap",

	OpGetVar: "get.var", OpSetVar: "set.var",

	OpGetProp: "get.prop", OpSetProp: "set.prop", OpDelProp: "del.prop", OpInProp: "in.prop",
	OpGetPropLit: "get.prop.lit", OpSetPropLit: "set.prop.lit",
	OpSetGetterLit: "set.getter.lit", OpSetSetterLit: "set.setter.lit",

	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div", OpMod: "mod",
	OpNeg: "neg", OpPos: "pos", OpNot: "not", OpBitNot: "bitnot",
	OpBitAnd: "bitand", OpBitOr: "bitor", OpBitXor: "bitxor",
	OpShl: "shl", OpShr: "shr", OpUShr: "ushr",
	OpEq: "eq", OpNeq: "neq", OpStrictEq: "seq", OpStrictNeq: "sneq",
	OpLt: "lt", OpLe: "le", OpGt: "gt", OpGe: "ge",
	OpInstanceOf: "instanceof", OpTypeOf: "typeof", OpVoid: "void",

	OpNewObject: "new.object", OpNewArray: "new.array", OpNewRegexp: "new.regexp", OpClosure: "closure",

	OpJmp: "jmp", OpJmpIfFalse: "jmp.iffalse", OpJmpIfTrue: "jmp.iftrue",
	OpCall: "call", OpNew: "new", OpRet: "ret", OpThrow: "throw",
	OpBreak: "break", OpContinue: "continue",

	OpPushTryFrame: "try.push", OpPopTryFrame: "try.pop", OpLeaveFinally: "finally.leave",

	OpWithEnter: "with.enter", OpWithLeave: "with.leave",

	OpForInStart: "forin.start", OpForInNext: "forin.next",

	OpHalt: "halt",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return fmt.Sprintf("op(%d)", op)
}

// disasmFmt mirrors the teacher's FormatFunc-over-AsmFormatToken
// indirection (vm_program.go's prettyString): the same two-pass
// offset-then-mnemonic-then-operand layout is built once, and colored
// or plain rendering only differ in how each token is wrapped.
type disasmFmt func(s string, theme func(t *ascii.Theme) string) string

func plainFmt(s string, _ func(t *ascii.Theme) string) string { return s }

func coloredFmt(s string, pick func(t *ascii.Theme) string) string {
	return pick(&ascii.DefaultTheme) + s + ascii.Reset
}

// Disassemble renders bc's instruction stream as text, one instruction
// per line prefixed with its byte offset (spec §6.1's -c flag), and
// recurses into nested function bodies. When colored is true, output
// is styled the way vm_program.go's HighlightPrettyString colors its
// asm dump, reusing the same ascii.Theme.
func Disassemble(e *Engine, bc *Bcode, colored bool) string {
	var out strings.Builder
	format := disasmFmt(plainFmt)
	if colored {
		format = coloredFmt
	}
	disassembleOne(e, bc, format, &out, 0)
	return out.String()
}

func disassembleOne(e *Engine, bc *Bcode, format disasmFmt, out *strings.Builder, depth int) {
	prefix := strings.Repeat("  ", depth)
	out.WriteString(format(fmt.Sprintf("%s;; bcode argCount=%d strict=%v source=%s\n", prefix, bc.argCount, bc.strict, bc.source),
		func(t *ascii.Theme) string { return t.Comment }))

	pc := 0
	ops := bc.ops
	for pc < len(ops) {
		start := pc
		op := Opcode(ops[pc])
		pc++

		out.WriteString(format(fmt.Sprintf("%s%06d  ", prefix, start), func(t *ascii.Theme) string { return t.Comment }))
		out.WriteString(format(op.String(), func(t *ascii.Theme) string { return t.Operator }))

		switch op {
		case OpPushLit:
			idx := readUvarintAt(ops, &pc)
			out.WriteString(format(fmt.Sprintf(" %v", literalString(e, bc.lit[idx])), func(t *ascii.Theme) string { return t.Literal }))
		case OpGetVar, OpSetVar, OpGetPropLit, OpSetPropLit, OpSetGetterLit, OpSetSetterLit:
			idx := readUvarintAt(ops, &pc)
			out.WriteString(format(" "+nameAt(bc, idx, e), func(t *ascii.Theme) string { return t.Operand }))
		case OpNewArray, OpCall, OpNew:
			n := readUvarintAt(ops, &pc)
			out.WriteString(format(fmt.Sprintf(" argc=%d", n), func(t *ascii.Theme) string { return t.Literal }))
		case OpClosure:
			idx := readUvarintAt(ops, &pc)
			out.WriteString(format(fmt.Sprintf(" nested[%d]", idx), func(t *ascii.Theme) string { return t.Operand }))
		case OpJmp, OpJmpIfFalse, OpJmpIfTrue:
			target := readI32At(ops, &pc)
			out.WriteString(format(fmt.Sprintf(" l%d", target), func(t *ascii.Theme) string { return t.Label }))
		case OpBreak, OpContinue:
			has := ops[pc]
			pc++
			if has != 0 {
				idx := readUvarintAt(ops, &pc)
				out.WriteString(format(" "+nameAt(bc, idx, e), func(t *ascii.Theme) string { return t.Operand }))
			}
		case OpPushTryFrame:
			kind := tryFrameKind(ops[pc])
			pc++
			pc1 := readI32At(ops, &pc)
			pc2 := readI32At(ops, &pc)
			has := ops[pc]
			pc++
			label := ""
			if has != 0 {
				idx := readUvarintAt(ops, &pc)
				label = nameAt(bc, idx, e)
			}
			isLabelOnly := ops[pc]
			pc++
			out.WriteString(format(fmt.Sprintf(" kind=%d l%d l%d label=%q labelOnly=%v", kind, pc1, pc2, label, isLabelOnly != 0),
				func(t *ascii.Theme) string { return t.Operand }))
		case OpForInStart:
			pc1 := readI32At(ops, &pc)
			pc2 := readI32At(ops, &pc)
			has := ops[pc]
			pc++
			label := ""
			if has != 0 {
				idx := readUvarintAt(ops, &pc)
				label = nameAt(bc, idx, e)
			}
			out.WriteString(format(fmt.Sprintf(" l%d l%d label=%q", pc1, pc2, label), func(t *ascii.Theme) string { return t.Operand }))
		case OpForInNext:
			target := readI32At(ops, &pc)
			out.WriteString(format(fmt.Sprintf(" l%d", target), func(t *ascii.Theme) string { return t.Label }))
		}

		out.WriteString("\n")
	}

	for i, nested := range bc.nested {
		out.WriteString(format(fmt.Sprintf("%s;; nested[%d]:\n", prefix, i), func(t *ascii.Theme) string { return t.Comment }))
		disassembleOne(e, nested, format, out, depth+1)
	}
}

func literalString(e *Engine, v Val) string {
	s, err := v.String(e)
	if err != nil {
		return "<error>"
	}
	return s
}
