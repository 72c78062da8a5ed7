package datamodel

import (
	"fmt"

	"github.com/backkem/cosem/pkg/cosem"
)

// Access selectors understood by Profile Generic buffer reads.
const (
	SelectorRange uint8 = 1
	SelectorEntry uint8 = 2
)

// AccessSelector is the selective-access-descriptor of a Get request.
type AccessSelector struct {
	Selector   uint8
	Parameters cosem.Value
}

// RangeDescriptor selects buffer entries whose restricting column lies
// within [From, To]. An empty Columns selects every column.
type RangeDescriptor struct {
	RestrictingObject CaptureObject
	From              cosem.Value
	To                cosem.Value
	Columns           []CaptureObject
}

// ParseRangeDescriptor decodes
// structure{restricting_object, from_value, to_value, selected_values}.
func ParseRangeDescriptor(v cosem.Value) (RangeDescriptor, error) {
	e, ok := v.Elements()
	if v.Tag() != cosem.TagStructure || !ok || len(e) != 4 {
		return RangeDescriptor{}, fmt.Errorf("%w: range descriptor must be a structure of 4", ErrTypeMismatch)
	}
	restricting, err := ParseCaptureObject(e[0])
	if err != nil {
		return RangeDescriptor{}, err
	}
	cols, err := parseColumns(e[3])
	if err != nil {
		return RangeDescriptor{}, err
	}
	return RangeDescriptor{RestrictingObject: restricting, From: e[1], To: e[2], Columns: cols}, nil
}

// Value encodes the descriptor.
func (d RangeDescriptor) Value() cosem.Value {
	cols := make([]cosem.Value, len(d.Columns))
	for i, c := range d.Columns {
		cols[i] = c.Value()
	}
	return cosem.Structure(d.RestrictingObject.Value(), d.From, d.To, cosem.Array(cols...))
}

func parseColumns(v cosem.Value) ([]CaptureObject, error) {
	e, ok := v.Elements()
	if v.Tag() != cosem.TagArray || !ok {
		return nil, fmt.Errorf("%w: selected_values must be an array", ErrTypeMismatch)
	}
	cols := make([]CaptureObject, 0, len(e))
	for _, c := range e {
		co, err := ParseCaptureObject(c)
		if err != nil {
			return nil, err
		}
		cols = append(cols, co)
	}
	return cols, nil
}

// EntryDescriptor selects buffer entries and columns by 1-based position.
// A To value of 0 means the last entry or column.
type EntryDescriptor struct {
	FromEntry  uint32
	ToEntry    uint32
	FromColumn uint16
	ToColumn   uint16
}

// ParseEntryDescriptor decodes structure{from_entry, to_entry,
// from_selected_value, to_selected_value}.
func ParseEntryDescriptor(v cosem.Value) (EntryDescriptor, error) {
	e, ok := v.Elements()
	if v.Tag() != cosem.TagStructure || !ok || len(e) != 4 ||
		e[0].Tag() != cosem.TagDoubleLongUnsigned || e[1].Tag() != cosem.TagDoubleLongUnsigned ||
		e[2].Tag() != cosem.TagLongUnsigned || e[3].Tag() != cosem.TagLongUnsigned {
		return EntryDescriptor{}, fmt.Errorf("%w: entry descriptor must be structure{double-long-unsigned x2, long-unsigned x2}", ErrTypeMismatch)
	}
	fe, _ := e[0].Uint()
	te, _ := e[1].Uint()
	fc, _ := e[2].Uint()
	tc, _ := e[3].Uint()
	d := EntryDescriptor{FromEntry: uint32(fe), ToEntry: uint32(te), FromColumn: uint16(fc), ToColumn: uint16(tc)}
	if d.FromEntry == 0 {
		d.FromEntry = 1
	}
	if d.FromColumn == 0 {
		d.FromColumn = 1
	}
	return d, nil
}

// Value encodes the descriptor.
func (d EntryDescriptor) Value() cosem.Value {
	return cosem.Structure(
		cosem.DoubleLongUnsigned(d.FromEntry),
		cosem.DoubleLongUnsigned(d.ToEntry),
		cosem.LongUnsigned(d.FromColumn),
		cosem.LongUnsigned(d.ToColumn),
	)
}
