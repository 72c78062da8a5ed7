// Package obis implements the six-group OBIS code used as the logical name
// of COSEM objects.
package obis

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/backkem/cosem/pkg/cosem"
)

// Size is the encoded length of a logical name.
const Size = 6

// ErrInvalidCode is returned when a logical name cannot be parsed.
var ErrInvalidCode = errors.New("obis: invalid code")

// Code is a logical name A-B:C.D.E*F.
type Code [Size]byte

// New builds a code from its six value groups.
func New(a, b, c, d, e, f uint8) Code {
	return Code{a, b, c, d, e, f}
}

// FromBytes reads a code from exactly six octets.
func FromBytes(b []byte) (Code, error) {
	if len(b) != Size {
		return Code{}, fmt.Errorf("%w: need %d octets, got %d", ErrInvalidCode, Size, len(b))
	}
	var c Code
	copy(c[:], b)
	return c, nil
}

// FromValue reads a code from an octet-string value.
func FromValue(v cosem.Value) (Code, error) {
	b, ok := v.Bytes()
	if !ok {
		return Code{}, fmt.Errorf("%w: logical name must be octet-string, got %s", ErrInvalidCode, v.Tag())
	}
	return FromBytes(b)
}

// Parse accepts the reduced form "A-B:C.D.E*F", the same with the F group
// omitted (F defaults to 255), and the dotted form "A.B.C.D.E.F".
func Parse(s string) (Code, error) {
	s = strings.TrimSpace(s)
	var groups []string
	if strings.ContainsAny(s, "-:*") {
		rest := s
		a, rest, ok1 := strings.Cut(rest, "-")
		b, rest, ok2 := strings.Cut(rest, ":")
		if !ok1 || !ok2 {
			return Code{}, fmt.Errorf("%w: %q", ErrInvalidCode, s)
		}
		cde, f, hasF := strings.Cut(rest, "*")
		if !hasF {
			f = "255"
		}
		groups = append([]string{a, b}, strings.Split(cde, ".")...)
		groups = append(groups, f)
	} else {
		groups = strings.Split(s, ".")
	}
	if len(groups) != Size {
		return Code{}, fmt.Errorf("%w: %q has %d groups", ErrInvalidCode, s, len(groups))
	}
	var c Code
	for i, g := range groups {
		n, err := strconv.ParseUint(g, 10, 8)
		if err != nil {
			return Code{}, fmt.Errorf("%w: %q group %d: %v", ErrInvalidCode, s, i, err)
		}
		c[i] = uint8(n)
	}
	return c, nil
}

// MustParse is like Parse but panics on error. Intended for constants.
func MustParse(s string) Code {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Bytes returns the six octets of c.
func (c Code) Bytes() []byte {
	return append([]byte(nil), c[:]...)
}

// Value returns c as an octet-string value.
func (c Code) Value() cosem.Value {
	return cosem.OctetString(c[:])
}

// String renders c as A-B:C.D.E*F.
func (c Code) String() string {
	return fmt.Sprintf("%d-%d:%d.%d.%d*%d", c[0], c[1], c[2], c[3], c[4], c[5])
}

// MarshalText implements encoding.TextMarshaler.
func (c Code) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Code) UnmarshalText(b []byte) error {
	p, err := Parse(string(b))
	if err != nil {
		return err
	}
	*c = p
	return nil
}

// Well known logical names.
var (
	Clock              = New(0, 0, 1, 0, 0, 255)
	ActiveEnergyImport = New(1, 0, 1, 8, 0, 255)
	LoadProfile1       = New(1, 0, 99, 1, 0, 255)
	SpecialDaysTable   = New(0, 0, 11, 0, 0, 255)
	GlobalMeterReset   = New(0, 0, 10, 0, 0, 255)
	TariffScripts      = New(0, 0, 10, 0, 100, 255)
	SingleActionSched  = New(0, 0, 15, 0, 0, 255)
)
