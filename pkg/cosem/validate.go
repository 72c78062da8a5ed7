package cosem

import (
	"fmt"
	"unicode/utf8"
)

// Validate reports whether v may be encoded: strings use their character
// set, bit-strings are consistent, date and time fields are in range, and
// the same holds for every nested element.
func (v Value) Validate() error {
	if !v.tag.IsKnown() {
		return fmt.Errorf("%w: unknown tag %d", ErrInvalidValue, uint8(v.tag))
	}
	switch x := v.v.(type) {
	case string:
		if v.tag == TagVisibleString {
			for i := 0; i < len(x); i++ {
				if x[i] < 0x20 || x[i] > 0x7E {
					return fmt.Errorf("%w: visible-string octet 0x%02X at %d", ErrInvalidValue, x[i], i)
				}
			}
		} else if !utf8.ValidString(x) {
			return fmt.Errorf("%w: utf8-string is not valid UTF-8", ErrInvalidValue)
		}
	case BitString:
		return x.Validate()
	case DateTime:
		return x.Validate()
	case Date:
		return x.Validate()
	case Time:
		return x.Validate()
	case []Value:
		for i, e := range x {
			if err := e.Validate(); err != nil {
				return fmt.Errorf("%s element %d: %w", v.tag, i, err)
			}
		}
	}
	return nil
}

// IsValid reports whether Validate returns nil.
func (v Value) IsValid() bool {
	return v.Validate() == nil
}
