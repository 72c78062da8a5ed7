package cosem

import "errors"

var (
	// ErrInvalidValue is returned when a value violates the constraints of
	// its kind (field ranges, character set, bit-string length).
	ErrInvalidValue = errors.New("cosem: invalid value")

	// ErrKindMismatch is returned when a value of one kind is used where
	// another kind is required.
	ErrKindMismatch = errors.New("cosem: value kind mismatch")

	// ErrOutOfRange is returned when a number does not fit the target kind.
	ErrOutOfRange = errors.New("cosem: value out of range")

	// ErrNotComparable is returned by Compare for kinds without an ordering
	// or for operands of unrelated kinds.
	ErrNotComparable = errors.New("cosem: values not comparable")

	// ErrNotSpecified is returned when a date/time with wildcard fields is
	// converted to an instant.
	ErrNotSpecified = errors.New("cosem: date-time not fully specified")
)
