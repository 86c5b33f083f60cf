package vm

import (
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Value: tagged runtime value
// ---------------------------------------------------------------------------

// ValueKind identifies which field of a Value is meaningful.
type ValueKind uint8

const (
	KindNone ValueKind = iota
	KindNumber
	KindString
	KindArray
)

var valueKindNames = map[ValueKind]string{
	KindNone:   "none",
	KindNumber: "number",
	KindString: "string",
	KindArray:  "array",
}

func (k ValueKind) String() string {
	if name, ok := valueKindNames[k]; ok {
		return name
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a runtime value held in the constant pool, the variable table
// and on the operand stack. Arrays are built bottom-up and never cyclic.
type Value struct {
	Kind ValueKind `cbor:"1,keyasint"`
	Num  float64   `cbor:"2,keyasint,omitempty"`
	Str  string    `cbor:"3,keyasint,omitempty"`
	Arr  []Value   `cbor:"4,keyasint,omitempty"`
}

// None is the empty value stored in freshly created variable slots.
var None = Value{Kind: KindNone}

// NumberValue wraps a float64.
func NumberValue(n float64) Value {
	return Value{Kind: KindNumber, Num: n}
}

// StringValue wraps a string.
func StringValue(s string) Value {
	return Value{Kind: KindString, Str: s}
}

// ArrayValue wraps a list of values. The slice is copied.
func ArrayValue(elems ...Value) Value {
	arr := make([]Value, len(elems))
	for i, e := range elems {
		arr[i] = e.Clone()
	}
	return Value{Kind: KindArray, Arr: arr}
}

// IsNone reports whether v is the empty value.
func (v Value) IsNone() bool {
	return v.Kind == KindNone
}

// Clone returns a deep copy of v. Scalars are copied by value already; only
// arrays need their backing storage duplicated.
func (v Value) Clone() Value {
	if v.Kind != KindArray {
		return v
	}
	arr := make([]Value, len(v.Arr))
	for i, e := range v.Arr {
		arr[i] = e.Clone()
	}
	return Value{Kind: KindArray, Arr: arr}
}

// ToNumber coerces v to a float64. Strings are parsed as numbers; none and
// arrays never convert.
func (v Value) ToNumber() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Num, true
	case KindString:
		n, err := strconv.ParseFloat(v.Str, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// String renders v the way the print instruction shows it.
func (v Value) String() string {
	switch v.Kind {
	case KindNone:
		return "None"
	case KindNumber:
		return formatNumber(v.Num)
	case KindString:
		return v.Str
	case KindArray:
		var sb strings.Builder
		sb.WriteByte('[')
		for i, e := range v.Arr {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(e.String())
		}
		sb.WriteByte(']')
		return sb.String()
	default:
		return ""
	}
}

// Equal reports structural equality.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNumber:
		return v.Num == o.Num
	case KindString:
		return v.Str == o.Str
	case KindArray:
		if len(v.Arr) != len(o.Arr) {
			return false
		}
		for i := range v.Arr {
			if !v.Arr[i].Equal(o.Arr[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// formatNumber prints integral values without a fractional part (8, not 8.0).
func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
