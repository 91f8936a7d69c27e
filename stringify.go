package v7

import (
	"math"
	"strconv"
	"strings"
)

// ToString implements the engine's default ToString coercion (spec
// §6.4 "Default" stringification mode): primitives convert directly;
// no user toString/valueOf is called, so plain objects stringify to
// "[object Object]", arrays to a comma-joined element list, and
// functions to "function () { [native code] }".
func (e *Engine) ToString(v Val) (string, error) {
	switch {
	case v.IsUndefined():
		return "undefined", nil
	case v.IsNull():
		return "null", nil
	case v.IsBoolean():
		if v.Bool() {
			return "true", nil
		}
		return "false", nil
	case v.IsNumber():
		return NumberToString(v.Float()), nil
	case v.IsString():
		return v.String(e)
	case v.IsFunction():
		return "function () { [native code] }", nil
	case v.IsObjectPtr():
		idx := v.ObjectIndex()
		cell := e.heap.Object(idx)
		if cell.attrs&AttrDenseArray != 0 {
			parts := make([]string, len(cell.dense))
			for i, el := range cell.dense {
				if el.IsUndefined() || el.IsNull() {
					parts[i] = ""
					continue
				}
				s, err := e.ToString(el)
				if err != nil {
					return "", err
				}
				parts[i] = s
			}
			return strings.Join(parts, ","), nil
		}
		return "[object Object]", nil
	default:
		return "", InvalidArgError{Message: "value has no string conversion"}
	}
}

// NumberToString renders a float64 the way spec §6.5 describes:
// 10 significant digits, widened to 21 for very large or very small
// magnitudes, mirroring the "%.21g for |x|>=1e10 or <1e-6, else %.10g" split most embeddable
// JS engines use for Number-to-string.
func NumberToString(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		if math.Signbit(f) {
			return "0"
		}
		return "0"
	}

	abs := math.Abs(f)
	prec := 10
	if abs >= 1e10 || abs < 1e-6 {
		prec = 21
	}
	s := strconv.FormatFloat(f, 'g', prec, 64)
	return normalizeExponent(s)
}

// normalizeExponent turns Go's "e+09"/"e-07" exponent style into the
// "e+9"/"e-7" form JS's Number.prototype.toString produces.
func normalizeExponent(s string) string {
	idx := strings.IndexAny(s, "eE")
	if idx < 0 {
		return s
	}
	mantissa, exp := s[:idx], s[idx+1:]
	sign := "+"
	if len(exp) > 0 && (exp[0] == '+' || exp[0] == '-') {
		sign = string(exp[0])
		exp = exp[1:]
	}
	exp = strings.TrimLeft(exp, "0")
	if exp == "" {
		exp = "0"
	}
	return mantissa + "e" + sign + exp
}

// JSONStringify implements the "JSON" stringification mode (spec
// §6.4): like Default but string values are quoted/escaped and
// undefined/function properties of objects are skipped rather than
// printed, matching JSON.stringify's documented behavior.
func (e *Engine) JSONStringify(v Val) (string, error) {
	var b strings.Builder
	if err := e.jsonWrite(&b, v); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (e *Engine) jsonWrite(b *strings.Builder, v Val) error {
	switch {
	case v.IsUndefined(), v.IsFunction():
		b.WriteString("null")
		return nil
	case v.IsNull():
		b.WriteString("null")
		return nil
	case v.IsBoolean():
		if v.Bool() {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
		return nil
	case v.IsNumber():
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			b.WriteString("null")
			return nil
		}
		b.WriteString(NumberToString(f))
		return nil
	case v.IsString():
		s, err := v.String(e)
		if err != nil {
			return err
		}
		writeJSONQuoted(b, s)
		return nil
	case v.IsObjectPtr():
		idx := v.ObjectIndex()
		cell := e.heap.Object(idx)
		if cell.attrs&AttrDenseArray != 0 {
			b.WriteByte('[')
			for i, el := range cell.dense {
				if i > 0 {
					b.WriteByte(',')
				}
				if err := e.jsonWrite(b, el); err != nil {
					return err
				}
			}
			b.WriteByte(']')
			return nil
		}
		b.WriteByte('{')
		first := true
		for i := cell.properties; i >= 0; i = e.heap.props[i].next {
			p := &e.heap.props[i]
			if p.attrs&(PropDontEnum|PropHidden) != 0 {
				continue
			}
			if p.value.IsUndefined() || p.value.IsFunction() {
				continue
			}
			if !first {
				b.WriteByte(',')
			}
			first = false
			name, err := p.name.String(e)
			if err != nil {
				return err
			}
			writeJSONQuoted(b, name)
			b.WriteByte(':')
			if err := e.jsonWrite(b, p.value); err != nil {
				return err
			}
		}
		b.WriteByte('}')
		return nil
	default:
		return InvalidArgError{Message: "value cannot be JSON-stringified"}
	}
}

func writeJSONQuoted(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				b.WriteString(strconv.QuoteRune(r))
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
}

// DebugString implements the "Debug" stringification mode (spec
// §6.4): like Default, but strings are quoted; every other value is
// rendered by ToString.
func (e *Engine) DebugString(v Val) (string, error) {
	switch {
	case v.IsString():
		s, err := v.String(e)
		if err != nil {
			return "", err
		}
		var b strings.Builder
		writeJSONQuoted(&b, s)
		return b.String(), nil
	default:
		return e.ToString(v)
	}
}
