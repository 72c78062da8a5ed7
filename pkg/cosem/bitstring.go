package cosem

import (
	"bytes"
	"fmt"
	"strings"
)

// BitString is a sequence of Len bits packed most significant bit first.
// Unused trailing bits of the last octet are zero.
type BitString struct {
	Bytes []byte
	Len   int
}

// NewBitString builds a bit-string from individual bits.
func NewBitString(bits ...bool) BitString {
	b := BitString{Bytes: make([]byte, (len(bits)+7)/8), Len: len(bits)}
	for i, set := range bits {
		if set {
			b.Bytes[i/8] |= 0x80 >> (i % 8)
		}
	}
	return b
}

// Bit returns bit i. Bits outside the string read as false.
func (b BitString) Bit(i int) bool {
	if i < 0 || i >= b.Len || i/8 >= len(b.Bytes) {
		return false
	}
	return b.Bytes[i/8]&(0x80>>(i%8)) != 0
}

// Validate checks that the octet count matches Len and that padding bits
// are clear.
func (b BitString) Validate() error {
	if b.Len < 0 || len(b.Bytes) != (b.Len+7)/8 {
		return fmt.Errorf("%w: bit-string of %d bits in %d octets", ErrInvalidValue, b.Len, len(b.Bytes))
	}
	if pad := len(b.Bytes)*8 - b.Len; pad > 0 {
		if b.Bytes[len(b.Bytes)-1]&(1<<pad-1) != 0 {
			return fmt.Errorf("%w: bit-string padding bits set", ErrInvalidValue)
		}
	}
	return nil
}

// Equal reports whether both strings hold the same bits.
func (b BitString) Equal(o BitString) bool {
	return b.Len == o.Len && bytes.Equal(b.Bytes, o.Bytes)
}

// String renders the bits as 0 and 1 characters.
func (b BitString) String() string {
	var sb strings.Builder
	for i := 0; i < b.Len; i++ {
		if b.Bit(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}
