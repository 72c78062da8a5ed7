package axdr

import (
	"errors"
	"fmt"
)

// ErrMalformedEncoding is the base error for every decoding failure.
// All other decoding errors wrap it.
var ErrMalformedEncoding = errors.New("axdr: malformed encoding")

var (
	// ErrUnexpectedEOF is returned when the input ends inside an element.
	ErrUnexpectedEOF = fmt.Errorf("%w: unexpected end of input", ErrMalformedEncoding)

	// ErrUnknownTag is returned for a type tag outside the supported set.
	ErrUnknownTag = fmt.Errorf("%w: unknown type tag", ErrMalformedEncoding)

	// ErrInvalidLength is returned when a length prefix is malformed or
	// exceeds the remaining input.
	ErrInvalidLength = fmt.Errorf("%w: invalid length", ErrMalformedEncoding)

	// ErrTooDeep is returned when containers nest beyond MaxDepth.
	ErrTooDeep = fmt.Errorf("%w: nesting too deep", ErrMalformedEncoding)

	// ErrTrailingData is returned by DecodeAll when input remains after
	// the first value.
	ErrTrailingData = fmt.Errorf("%w: trailing data", ErrMalformedEncoding)
)
