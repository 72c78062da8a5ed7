package axdr

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/backkem/cosem/pkg/cosem"
)

// MaxDepth bounds container nesting accepted by the Reader.
const MaxDepth = 32

// Reader decodes A-XDR values from a byte slice.
type Reader struct {
	b   []byte
	off int
}

// NewReader creates a Reader over b.
func NewReader(b []byte) *Reader {
	return &Reader{b: b}
}

// Offset returns the number of octets consumed so far.
func (r *Reader) Offset() int { return r.off }

// Remaining returns the number of unread octets.
func (r *Reader) Remaining() int { return len(r.b) - r.off }

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || n > r.Remaining() {
		return nil, ErrUnexpectedEOF
	}
	p := r.b[r.off : r.off+n]
	r.off += n
	return p, nil
}

func (r *Reader) readLength() (int, error) {
	n, used, err := ReadLength(r.b[r.off:])
	if err != nil {
		return 0, err
	}
	r.off += used
	return n, nil
}

// ReadValue decodes the next value.
func (r *Reader) ReadValue() (cosem.Value, error) {
	return r.readValue(0)
}

func (r *Reader) readValue(depth int) (cosem.Value, error) {
	start := r.off
	t, err := r.take(1)
	if err != nil {
		return cosem.Value{}, err
	}
	tag := cosem.Tag(t[0])
	v, err := r.readContents(tag, depth)
	if err != nil {
		r.off = start
		return cosem.Value{}, err
	}
	return v, nil
}

func (r *Reader) readContents(tag cosem.Tag, depth int) (cosem.Value, error) {
	switch tag {
	case cosem.TagNull:
		return cosem.Null(), nil
	case cosem.TagArray, cosem.TagStructure:
		if depth >= MaxDepth {
			return cosem.Value{}, ErrTooDeep
		}
		n, err := r.readLength()
		if err != nil {
			return cosem.Value{}, err
		}
		// Every element takes at least one octet.
		if n > r.Remaining() {
			return cosem.Value{}, fmt.Errorf("%w: %d elements with %d octets left", ErrInvalidLength, n, r.Remaining())
		}
		elems := make([]cosem.Value, 0, n)
		for i := 0; i < n; i++ {
			e, err := r.readValue(depth + 1)
			if err != nil {
				return cosem.Value{}, fmt.Errorf("%s element %d: %w", tag, i, err)
			}
			elems = append(elems, e)
		}
		if tag == cosem.TagArray {
			return cosem.Array(elems...), nil
		}
		return cosem.Structure(elems...), nil
	case cosem.TagOctetString, cosem.TagVisibleString, cosem.TagUTF8String:
		n, err := r.readLength()
		if err != nil {
			return cosem.Value{}, err
		}
		if n > r.Remaining() {
			return cosem.Value{}, fmt.Errorf("%w: %s of %d octets with %d left", ErrInvalidLength, tag, n, r.Remaining())
		}
		p, _ := r.take(n)
		switch tag {
		case cosem.TagVisibleString:
			return cosem.VisibleString(string(p)), nil
		case cosem.TagUTF8String:
			return cosem.UTF8String(string(p)), nil
		}
		return cosem.OctetString(p), nil
	case cosem.TagBitString:
		bits, err := r.readLength()
		if err != nil {
			return cosem.Value{}, err
		}
		n := (bits + 7) / 8
		if n > r.Remaining() {
			return cosem.Value{}, fmt.Errorf("%w: bit-string of %d bits with %d octets left", ErrInvalidLength, bits, r.Remaining())
		}
		p, _ := r.take(n)
		return cosem.BitStringValue(cosem.BitString{Bytes: p, Len: bits}), nil
	case cosem.TagDateTime:
		p, err := r.take(cosem.DateTimeSize)
		if err != nil {
			return cosem.Value{}, err
		}
		dt, _ := cosem.ParseDateTime(p)
		return cosem.DateTimeValue(dt), nil
	case cosem.TagDate:
		p, err := r.take(cosem.DateSize)
		if err != nil {
			return cosem.Value{}, err
		}
		d, _ := cosem.ParseDate(p)
		return cosem.DateValue(d), nil
	case cosem.TagTime:
		p, err := r.take(cosem.TimeSize)
		if err != nil {
			return cosem.Value{}, err
		}
		t, _ := cosem.ParseTime(p)
		return cosem.TimeValue(t), nil
	case cosem.TagBoolean:
		p, err := r.take(1)
		if err != nil {
			return cosem.Value{}, err
		}
		return cosem.Bool(p[0] != 0), nil
	case cosem.TagFloat32:
		p, err := r.take(4)
		if err != nil {
			return cosem.Value{}, err
		}
		return cosem.Float32(math.Float32frombits(binary.BigEndian.Uint32(p))), nil
	case cosem.TagFloat64:
		p, err := r.take(8)
		if err != nil {
			return cosem.Value{}, err
		}
		return cosem.Float64(math.Float64frombits(binary.BigEndian.Uint64(p))), nil
	}
	if tag.IsInteger() || tag == cosem.TagEnum {
		p, err := r.take(tag.FixedSize())
		if err != nil {
			return cosem.Value{}, err
		}
		return readInteger(tag, p), nil
	}
	return cosem.Value{}, fmt.Errorf("%w 0x%02X", ErrUnknownTag, uint8(tag))
}

func readInteger(tag cosem.Tag, p []byte) cosem.Value {
	switch tag {
	case cosem.TagInteger:
		return cosem.Integer(int8(p[0]))
	case cosem.TagLong:
		return cosem.Long(int16(binary.BigEndian.Uint16(p)))
	case cosem.TagDoubleLong:
		return cosem.DoubleLong(int32(binary.BigEndian.Uint32(p)))
	case cosem.TagLong64:
		return cosem.Long64(int64(binary.BigEndian.Uint64(p)))
	case cosem.TagUnsigned:
		return cosem.Unsigned(p[0])
	case cosem.TagEnum:
		return cosem.Enum(p[0])
	case cosem.TagLongUnsigned:
		return cosem.LongUnsigned(binary.BigEndian.Uint16(p))
	case cosem.TagDoubleLongUnsigned:
		return cosem.DoubleLongUnsigned(binary.BigEndian.Uint32(p))
	default:
		return cosem.Long64Unsigned(binary.BigEndian.Uint64(p))
	}
}

// Decode decodes one value from the start of b and returns it with the
// number of octets consumed.
func Decode(b []byte) (cosem.Value, int, error) {
	r := NewReader(b)
	v, err := r.ReadValue()
	if err != nil {
		return cosem.Value{}, 0, err
	}
	return v, r.Offset(), nil
}

// DecodeAll decodes exactly one value spanning all of b.
func DecodeAll(b []byte) (cosem.Value, error) {
	v, n, err := Decode(b)
	if err != nil {
		return cosem.Value{}, err
	}
	if n != len(b) {
		return cosem.Value{}, fmt.Errorf("%w: %d octets after value", ErrTrailingData, len(b)-n)
	}
	return v, nil
}
