package axdr

import (
	"fmt"
	"math"
)

// maxLengthOctets bounds the long form of a length prefix.
const maxLengthOctets = 4

// AppendLength appends the A-XDR length prefix for n. Lengths below 128
// take one octet; longer ones are 0x80|k followed by k big-endian octets.
func AppendLength(b []byte, n int) []byte {
	if n < 0x80 {
		return append(b, byte(n))
	}
	var tmp [8]byte
	k := 0
	for v := uint64(n); v > 0; v >>= 8 {
		k++
		tmp[8-k] = byte(v)
	}
	b = append(b, 0x80|byte(k))
	return append(b, tmp[8-k:]...)
}

// ReadLength decodes a length prefix from the start of b and returns the
// length and the number of octets consumed.
func ReadLength(b []byte) (int, int, error) {
	if len(b) == 0 {
		return 0, 0, ErrUnexpectedEOF
	}
	first := b[0]
	if first < 0x80 {
		return int(first), 1, nil
	}
	k := int(first & 0x7F)
	if k == 0 || k > maxLengthOctets {
		return 0, 0, fmt.Errorf("%w: length prefix 0x%02X", ErrInvalidLength, first)
	}
	if len(b) < 1+k {
		return 0, 0, ErrUnexpectedEOF
	}
	var n uint64
	for _, o := range b[1 : 1+k] {
		n = n<<8 | uint64(o)
	}
	if n > math.MaxInt32 {
		return 0, 0, fmt.Errorf("%w: length %d", ErrInvalidLength, n)
	}
	return int(n), 1 + k, nil
}
