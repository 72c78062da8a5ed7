package cosem

import (
	"bytes"
	"fmt"
	"math"
	"strings"
)

// Value is an immutable COSEM data value. The zero Value is null-data.
//
// Signed integers are held as int64, unsigned integers and enums as uint64,
// so a Value never silently changes kind when it is copied or compared.
type Value struct {
	tag Tag
	v   any
}

// Null returns the null-data value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{tag: TagBoolean, v: b} }

// Integer returns an integer (int8) value.
func Integer(n int8) Value { return Value{tag: TagInteger, v: int64(n)} }

// Long returns a long (int16) value.
func Long(n int16) Value { return Value{tag: TagLong, v: int64(n)} }

// DoubleLong returns a double-long (int32) value.
func DoubleLong(n int32) Value { return Value{tag: TagDoubleLong, v: int64(n)} }

// Long64 returns a long64 value.
func Long64(n int64) Value { return Value{tag: TagLong64, v: n} }

// Unsigned returns an unsigned (uint8) value.
func Unsigned(n uint8) Value { return Value{tag: TagUnsigned, v: uint64(n)} }

// LongUnsigned returns a long-unsigned (uint16) value.
func LongUnsigned(n uint16) Value { return Value{tag: TagLongUnsigned, v: uint64(n)} }

// DoubleLongUnsigned returns a double-long-unsigned (uint32) value.
func DoubleLongUnsigned(n uint32) Value { return Value{tag: TagDoubleLongUnsigned, v: uint64(n)} }

// Long64Unsigned returns a long64-unsigned value.
func Long64Unsigned(n uint64) Value { return Value{tag: TagLong64Unsigned, v: n} }

// Enum returns an enum value.
func Enum(n uint8) Value { return Value{tag: TagEnum, v: uint64(n)} }

// Float32 returns a float32 value.
func Float32(f float32) Value { return Value{tag: TagFloat32, v: f} }

// Float64 returns a float64 value.
func Float64(f float64) Value { return Value{tag: TagFloat64, v: f} }

// OctetString returns an octet-string value. The input is copied.
func OctetString(b []byte) Value {
	return Value{tag: TagOctetString, v: bytes.Clone(nonNil(b))}
}

// VisibleString returns a visible-string value. Use Validate to check that
// s only contains printable ASCII.
func VisibleString(s string) Value { return Value{tag: TagVisibleString, v: s} }

// UTF8String returns a utf8-string value.
func UTF8String(s string) Value { return Value{tag: TagUTF8String, v: s} }

// BitStringValue returns a bit-string value. The bits are copied.
func BitStringValue(b BitString) Value {
	return Value{tag: TagBitString, v: BitString{Bytes: bytes.Clone(nonNil(b.Bytes)), Len: b.Len}}
}

// DateTimeValue returns a date-time value.
func DateTimeValue(dt DateTime) Value { return Value{tag: TagDateTime, v: dt} }

// DateValue returns a date value.
func DateValue(d Date) Value { return Value{tag: TagDate, v: d} }

// TimeValue returns a time value.
func TimeValue(t Time) Value { return Value{tag: TagTime, v: t} }

// Array returns an array value. Elements should share one kind; Validate
// does not enforce this because COSEM uses arrays of null-or-value.
func Array(elems ...Value) Value {
	return Value{tag: TagArray, v: cloneElems(elems)}
}

// Structure returns a structure value.
func Structure(elems ...Value) Value {
	return Value{tag: TagStructure, v: cloneElems(elems)}
}

func cloneElems(elems []Value) []Value {
	out := make([]Value, len(elems))
	copy(out, elems)
	return out
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// FromInt returns a value of the integer kind t holding n. It fails with
// ErrOutOfRange when n does not fit, and ErrKindMismatch when t is not an
// integer or enum kind.
func FromInt(t Tag, n int64) (Value, error) {
	if !t.IsInteger() && t != TagEnum {
		return Value{}, fmt.Errorf("%w: %s is not an integer kind", ErrKindMismatch, t)
	}
	min, max := t.intRange()
	if n < min || (n > 0 && uint64(n) > max) {
		return Value{}, fmt.Errorf("%w: %d does not fit %s", ErrOutOfRange, n, t)
	}
	if t.IsSigned() {
		return Value{tag: t, v: n}, nil
	}
	return Value{tag: t, v: uint64(n)}, nil
}

// FromUint is like FromInt for unsigned inputs.
func FromUint(t Tag, n uint64) (Value, error) {
	if !t.IsInteger() && t != TagEnum {
		return Value{}, fmt.Errorf("%w: %s is not an integer kind", ErrKindMismatch, t)
	}
	_, max := t.intRange()
	if n > max {
		return Value{}, fmt.Errorf("%w: %d does not fit %s", ErrOutOfRange, n, t)
	}
	if t.IsSigned() {
		return Value{tag: t, v: int64(n)}, nil
	}
	return Value{tag: t, v: n}, nil
}

// FromFloat returns a numeric value of kind t. Integer kinds round f to
// the nearest integer.
func FromFloat(t Tag, f float64) (Value, error) {
	switch {
	case t == TagFloat32:
		return Float32(float32(f)), nil
	case t == TagFloat64:
		return Float64(f), nil
	case t.IsSigned():
		r := math.Round(f)
		if math.IsNaN(r) || r < -(1<<63) || r >= 1<<63 {
			return Value{}, fmt.Errorf("%w: %v does not fit %s", ErrOutOfRange, f, t)
		}
		return FromInt(t, int64(r))
	case t.IsUnsigned():
		r := math.Round(f)
		if math.IsNaN(r) || r < 0 || r >= 1<<64 {
			return Value{}, fmt.Errorf("%w: %v does not fit %s", ErrOutOfRange, f, t)
		}
		return FromUint(t, uint64(r))
	}
	return Value{}, fmt.Errorf("%w: %s is not numeric", ErrKindMismatch, t)
}

// Zero returns the neutral value of the numeric kind t.
func Zero(t Tag) (Value, error) {
	return FromFloat(t, 0)
}

// Tag returns the kind of v.
func (v Value) Tag() Tag { return v.tag }

// IsNull reports whether v is null-data.
func (v Value) IsNull() bool { return v.tag == TagNull }

// Bool returns the boolean held by v.
func (v Value) Bool() (bool, bool) {
	b, ok := v.v.(bool)
	return b, ok && v.tag == TagBoolean
}

// Int returns v as int64 for signed, unsigned and enum kinds when the
// value fits.
func (v Value) Int() (int64, bool) {
	switch n := v.v.(type) {
	case int64:
		return n, true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

// Uint returns v as uint64 for unsigned and enum kinds, and for
// non-negative signed values.
func (v Value) Uint() (uint64, bool) {
	switch n := v.v.(type) {
	case uint64:
		return n, true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	}
	return 0, false
}

// Float returns any numeric value as float64.
func (v Value) Float() (float64, bool) {
	switch n := v.v.(type) {
	case int64:
		return float64(n), v.tag.IsNumeric()
	case uint64:
		return float64(n), v.tag.IsNumeric()
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Bytes returns the contents of an octet-string. The returned slice must
// not be modified.
func (v Value) Bytes() ([]byte, bool) {
	b, ok := v.v.([]byte)
	return b, ok
}

// Text returns the contents of a visible-string or utf8-string.
func (v Value) Text() (string, bool) {
	s, ok := v.v.(string)
	return s, ok
}

// Bits returns the contents of a bit-string.
func (v Value) Bits() (BitString, bool) {
	b, ok := v.v.(BitString)
	return b, ok
}

// Elements returns the elements of an array or structure. The returned
// slice must not be modified.
func (v Value) Elements() ([]Value, bool) {
	e, ok := v.v.([]Value)
	return e, ok
}

// Len returns the element count of a container, the octet count of an
// octet-string, and 0 otherwise.
func (v Value) Len() int {
	switch x := v.v.(type) {
	case []Value:
		return len(x)
	case []byte:
		return len(x)
	}
	return 0
}

// Index returns element i of a container.
func (v Value) Index(i int) (Value, bool) {
	e, ok := v.Elements()
	if !ok || i < 0 || i >= len(e) {
		return Value{}, false
	}
	return e[i], true
}

// DateTime returns v as a date-time. An octet-string of 12 octets is
// accepted, since many attributes carry date-time in that form.
func (v Value) DateTime() (DateTime, bool) {
	switch x := v.v.(type) {
	case DateTime:
		return x, true
	case []byte:
		dt, err := ParseDateTime(x)
		return dt, err == nil
	}
	return DateTime{}, false
}

// Date returns v as a date, accepting an octet-string of 5 octets.
func (v Value) Date() (Date, bool) {
	switch x := v.v.(type) {
	case Date:
		return x, true
	case []byte:
		d, err := ParseDate(x)
		return d, err == nil
	}
	return Date{}, false
}

// Time returns v as a time, accepting an octet-string of 4 octets.
func (v Value) Time() (Time, bool) {
	switch x := v.v.(type) {
	case Time:
		return x, true
	case []byte:
		t, err := ParseTime(x)
		return t, err == nil
	}
	return Time{}, false
}

// Equal reports whether v and o are structurally equal. Floats compare by
// bit pattern. Date and time fields that are not specified on either side
// match any value.
func (v Value) Equal(o Value) bool {
	if v.tag != o.tag {
		return false
	}
	switch a := v.v.(type) {
	case nil:
		return o.v == nil
	case bool, int64, uint64, string:
		return v.v == o.v
	case float32:
		return math.Float32bits(a) == math.Float32bits(o.v.(float32))
	case float64:
		return math.Float64bits(a) == math.Float64bits(o.v.(float64))
	case []byte:
		return bytes.Equal(a, o.v.([]byte))
	case BitString:
		return a.Equal(o.v.(BitString))
	case DateTime:
		return a.Equal(o.v.(DateTime))
	case Date:
		return a.Equal(o.v.(Date))
	case Time:
		return a.Equal(o.v.(Time))
	case []Value:
		b := o.v.([]Value)
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if !a[i].Equal(b[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// String returns a human readable form, e.g. long-unsigned(5).
func (v Value) String() string {
	var sb strings.Builder
	v.format(&sb)
	return sb.String()
}

func (v Value) format(sb *strings.Builder) {
	sb.WriteString(v.tag.String())
	switch x := v.v.(type) {
	case nil:
		return
	case []byte:
		fmt.Fprintf(sb, "(%X)", x)
	case string:
		fmt.Fprintf(sb, "(%q)", x)
	case []Value:
		sb.WriteString("[")
		for i, e := range x {
			if i > 0 {
				sb.WriteString(", ")
			}
			e.format(sb)
		}
		sb.WriteString("]")
	default:
		fmt.Fprintf(sb, "(%v)", x)
	}
}
