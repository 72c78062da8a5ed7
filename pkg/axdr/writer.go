// Package axdr implements the A-XDR encoding of COSEM data as defined in
// IEC 62056-6-2 and the DLMS Green Book.
//
// Every value is a type tag octet followed by its contents. Fixed-width
// numbers are big-endian; strings carry a length prefix; arrays and
// structures carry an element count followed by the encoded elements.
package axdr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/backkem/cosem/pkg/cosem"
)

// Writer encodes A-XDR elements to an io.Writer.
type Writer struct {
	w   io.Writer
	buf []byte
}

// NewWriter creates a new A-XDR Writer that writes to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) flush() error {
	_, err := w.w.Write(w.buf)
	w.buf = w.buf[:0]
	return err
}

// PutNull writes null-data.
func (w *Writer) PutNull() error {
	w.buf = append(w.buf, byte(cosem.TagNull))
	return w.flush()
}

// PutBool writes a boolean.
func (w *Writer) PutBool(b bool) error {
	var o byte
	if b {
		o = 1
	}
	w.buf = append(w.buf, byte(cosem.TagBoolean), o)
	return w.flush()
}

// PutInt writes a signed integer with the width of tag. The value is
// truncated to that width.
func (w *Writer) PutInt(tag cosem.Tag, v int64) error {
	return w.putFixed(tag, uint64(v))
}

// PutUint writes an unsigned integer or enum with the width of tag.
func (w *Writer) PutUint(tag cosem.Tag, v uint64) error {
	return w.putFixed(tag, v)
}

func (w *Writer) putFixed(tag cosem.Tag, v uint64) error {
	w.buf = append(w.buf, byte(tag))
	switch tag.FixedSize() {
	case 1:
		w.buf = append(w.buf, byte(v))
	case 2:
		w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(v))
	case 4:
		w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
	case 8:
		w.buf = binary.BigEndian.AppendUint64(w.buf, v)
	default:
		w.buf = w.buf[:0]
		return fmt.Errorf("axdr: %s is not a fixed-width number", tag)
	}
	return w.flush()
}

// PutFloat32 writes a float32.
func (w *Writer) PutFloat32(f float32) error {
	return w.putFixed(cosem.TagFloat32, uint64(math.Float32bits(f)))
}

// PutFloat64 writes a float64.
func (w *Writer) PutFloat64(f float64) error {
	return w.putFixed(cosem.TagFloat64, math.Float64bits(f))
}

// PutOctetString writes an octet-string.
func (w *Writer) PutOctetString(b []byte) error {
	return w.putBytes(cosem.TagOctetString, b)
}

// PutVisibleString writes a visible-string.
func (w *Writer) PutVisibleString(s string) error {
	return w.putBytes(cosem.TagVisibleString, []byte(s))
}

// PutUTF8String writes a utf8-string.
func (w *Writer) PutUTF8String(s string) error {
	return w.putBytes(cosem.TagUTF8String, []byte(s))
}

func (w *Writer) putBytes(tag cosem.Tag, b []byte) error {
	w.buf = append(w.buf, byte(tag))
	w.buf = AppendLength(w.buf, len(b))
	w.buf = append(w.buf, b...)
	return w.flush()
}

// PutBitString writes a bit-string. The length prefix counts bits.
func (w *Writer) PutBitString(b cosem.BitString) error {
	w.buf = append(w.buf, byte(cosem.TagBitString))
	w.buf = AppendLength(w.buf, b.Len)
	w.buf = append(w.buf, b.Bytes...)
	return w.flush()
}

// PutDateTime writes a 12-octet date-time.
func (w *Writer) PutDateTime(dt cosem.DateTime) error {
	w.buf = append(w.buf, byte(cosem.TagDateTime))
	w.buf = append(w.buf, dt.Bytes()...)
	return w.flush()
}

// PutDate writes a 5-octet date.
func (w *Writer) PutDate(d cosem.Date) error {
	w.buf = append(w.buf, byte(cosem.TagDate))
	w.buf = append(w.buf, d.Bytes()...)
	return w.flush()
}

// PutTime writes a 4-octet time.
func (w *Writer) PutTime(t cosem.Time) error {
	w.buf = append(w.buf, byte(cosem.TagTime))
	w.buf = append(w.buf, t.Bytes()...)
	return w.flush()
}

// StartArray writes an array header for n elements. The caller writes
// the n elements next.
func (w *Writer) StartArray(n int) error {
	return w.startContainer(cosem.TagArray, n)
}

// StartStructure writes a structure header for n elements.
func (w *Writer) StartStructure(n int) error {
	return w.startContainer(cosem.TagStructure, n)
}

func (w *Writer) startContainer(tag cosem.Tag, n int) error {
	w.buf = append(w.buf, byte(tag))
	w.buf = AppendLength(w.buf, n)
	return w.flush()
}

// PutValue writes v and all of its elements.
func (w *Writer) PutValue(v cosem.Value) error {
	tag := v.Tag()
	switch {
	case tag == cosem.TagNull:
		return w.PutNull()
	case tag == cosem.TagBoolean:
		b, _ := v.Bool()
		return w.PutBool(b)
	case tag.IsSigned():
		n, _ := v.Int()
		return w.PutInt(tag, n)
	case tag.IsUnsigned() || tag == cosem.TagEnum:
		n, _ := v.Uint()
		return w.PutUint(tag, n)
	case tag == cosem.TagFloat32:
		f, _ := v.Float()
		return w.PutFloat32(float32(f))
	case tag == cosem.TagFloat64:
		f, _ := v.Float()
		return w.PutFloat64(f)
	case tag == cosem.TagOctetString:
		b, _ := v.Bytes()
		return w.PutOctetString(b)
	case tag == cosem.TagVisibleString || tag == cosem.TagUTF8String:
		s, _ := v.Text()
		return w.putBytes(tag, []byte(s))
	case tag == cosem.TagBitString:
		b, _ := v.Bits()
		return w.PutBitString(b)
	case tag == cosem.TagDateTime:
		dt, _ := v.DateTime()
		return w.PutDateTime(dt)
	case tag == cosem.TagDate:
		d, _ := v.Date()
		return w.PutDate(d)
	case tag == cosem.TagTime:
		t, _ := v.Time()
		return w.PutTime(t)
	case tag.IsContainer():
		elems, _ := v.Elements()
		if err := w.startContainer(tag, len(elems)); err != nil {
			return err
		}
		for _, e := range elems {
			if err := w.PutValue(e); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("axdr: cannot encode %s", tag)
}

// Encode returns the A-XDR encoding of v. Values that fail
// cosem.Value.Validate are rejected.
func Encode(v cosem.Value) ([]byte, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := NewWriter(&buf).PutValue(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MustEncode is like Encode but panics on error.
func MustEncode(v cosem.Value) []byte {
	b, err := Encode(v)
	if err != nil {
		panic(err)
	}
	return b
}
