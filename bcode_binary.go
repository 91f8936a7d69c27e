package v7

import (
	"encoding/binary"
	"strconv"
)

// bcodeMagic is the binary bytecode stream's 9-byte magic (spec §6.3).
var bcodeMagic = [9]byte{'V', 0x07, 'B', 'C', 'O', 'D', 'E', ':', 0}

const (
	litTagNumber byte = 0
	litTagString byte = 1
	litTagRegexp byte = 2 // reserved: lit never holds a regexp, so no encoder/decoder branch uses it
)

// EncodeBcode serializes bc the way the host API's compile(src,
// binary?) hands a compiled function to another process (spec §6.3):
// a literal table, a names table, the raw ops stream, and finally
// every nested function body recursively. The spec folds nested
// functions into the literal table itself (tag 3); V7 keeps its own
// separate nested-Bcode table (bcode.go's Bcode.nested, indexed by
// OpClosure's operand) instead of a parallel literal kind, so nested
// bodies are written as their own length-prefixed section rather than
// literal tag 3 — see DESIGN.md for this deviation.
func EncodeBcode(e *Engine, bc *Bcode) ([]byte, error) {
	out := append([]byte(nil), bcodeMagic[:]...)
	var err error
	out, err = encodeBcodeNode(e, bc, out)
	return out, err
}

func encodeBcodeNode(e *Engine, bc *Bcode, out []byte) ([]byte, error) {
	out = binary.AppendUvarint(out, uint64(len(bc.lit)))
	for _, v := range bc.lit {
		enc, err := encodeLiteral(e, v)
		if err != nil {
			return nil, err
		}
		out = append(out, enc...)
	}

	out = binary.AppendUvarint(out, uint64(len(bc.names)))
	for _, v := range bc.names {
		s, err := v.String(e)
		if err != nil {
			return nil, err
		}
		out = appendLengthPrefixedString(out, s)
	}

	out = binary.AppendUvarint(out, uint64(bc.argCount))

	out = binary.AppendUvarint(out, uint64(len(bc.ops)))
	out = append(out, bc.ops...)

	out = binary.AppendUvarint(out, uint64(len(bc.nested)))
	for _, n := range bc.nested {
		var err error
		out, err = encodeBcodeNode(e, n, out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func encodeLiteral(e *Engine, v Val) ([]byte, error) {
	switch {
	case v.IsNumber():
		s := NumberToString(v.Float())
		out := []byte{litTagNumber}
		return appendLengthPrefixedString(out, s), nil
	case v.IsString():
		s, err := v.String(e)
		if err != nil {
			return nil, err
		}
		out := []byte{litTagString}
		return appendLengthPrefixedString(out, s), nil
	default:
		return nil, InvalidArgError{Message: "EncodeBcode: unsupported literal kind"}
	}
}

func appendLengthPrefixedString(out []byte, s string) []byte {
	out = binary.AppendUvarint(out, uint64(len(s)))
	out = append(out, s...)
	out = append(out, 0)
	return out
}

// DecodeBcode parses a stream produced by EncodeBcode. The returned
// Bcode is ready for the VM: it still needs source/strict set by the
// caller, since those aren't part of the wire format.
func DecodeBcode(e *Engine, data []byte) (*Bcode, error) {
	if len(data) < len(bcodeMagic) || [9]byte(data[:9]) != bcodeMagic {
		return nil, InternalError{Message: "binary bytecode stream has a bad magic header"}
	}
	bc, _, err := decodeBcodeNode(e, data[9:])
	return bc, err
}

func decodeBcodeNode(e *Engine, data []byte) (*Bcode, int, error) {
	pos := 0
	litCount, n := binary.Uvarint(data[pos:])
	pos += n
	bc := &Bcode{}
	for i := uint64(0); i < litCount; i++ {
		v, consumed, err := decodeLiteral(e, data[pos:])
		if err != nil {
			return nil, 0, err
		}
		bc.lit = append(bc.lit, v)
		pos += consumed
	}

	nameCount, n := binary.Uvarint(data[pos:])
	pos += n
	for i := uint64(0); i < nameCount; i++ {
		s, consumed := readLengthPrefixedString(data[pos:])
		bc.names = append(bc.names, e.StringVal(s))
		pos += consumed
	}

	argCount, n := binary.Uvarint(data[pos:])
	pos += n
	bc.argCount = int(argCount)

	opsLen, n := binary.Uvarint(data[pos:])
	pos += n
	bc.ops = append([]byte(nil), data[pos:pos+int(opsLen)]...)
	pos += int(opsLen)

	nestedCount, n := binary.Uvarint(data[pos:])
	pos += n
	for i := uint64(0); i < nestedCount; i++ {
		nested, consumed, err := decodeBcodeNode(e, data[pos:])
		if err != nil {
			return nil, 0, err
		}
		bc.nested = append(bc.nested, nested)
		pos += consumed
	}

	return bc, pos, nil
}

func decodeLiteral(e *Engine, data []byte) (Val, int, error) {
	tag := data[0]
	s, consumed := readLengthPrefixedString(data[1:])
	switch tag {
	case litTagNumber:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Undefined, 0, InternalError{Message: "DecodeBcode: corrupt number literal"}
		}
		return NumberVal(f), 1 + consumed, nil
	case litTagString:
		return e.StringVal(s), 1 + consumed, nil
	default:
		return Undefined, 0, InvalidArgError{Message: "DecodeBcode: unsupported literal tag"}
	}
}

func readLengthPrefixedString(data []byte) (string, int) {
	n, w := binary.Uvarint(data)
	s := string(data[w : w+int(n)])
	return s, w + int(n) + 1 // +1 for the trailing NUL
}
