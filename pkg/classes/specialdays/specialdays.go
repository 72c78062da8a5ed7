// Package specialdays implements the Special Days Table interface class
// (class_id 11).
//
// Entries map a date, possibly recurring through not-specified fields, to
// a day type. The table is kept in date order and answers day-type lookups
// for schedules and tariff calendars.
package specialdays

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/backkem/cosem/pkg/cosem"
	"github.com/backkem/cosem/pkg/datamodel"
	"github.com/backkem/cosem/pkg/obis"
)

// Class constants.
const (
	ClassID = datamodel.ClassSpecialDaysTable
	Version = 0
)

// Attribute IDs.
const (
	AttrEntries datamodel.AttributeID = 2
)

// Method IDs.
const (
	MethodInsert datamodel.MethodID = 1
	MethodDelete datamodel.MethodID = 2
)

// ErrNotFound is returned by Lookup when no entry covers the date.
var ErrNotFound = errors.New("specialdays: no entry for date")

// Entry is one spec_day_entry.
type Entry struct {
	Index uint16
	Date  cosem.Date
	DayID uint8
}

// Value encodes e as structure{long-unsigned, octet-string(5), unsigned}.
func (e Entry) Value() cosem.Value {
	return cosem.Structure(cosem.LongUnsigned(e.Index), cosem.OctetString(e.Date.Bytes()), cosem.Unsigned(e.DayID))
}

// ParseEntry decodes structure{long-unsigned, octet-string(5), unsigned}.
func ParseEntry(v cosem.Value) (Entry, error) {
	el, ok := v.Elements()
	if v.Tag() != cosem.TagStructure || !ok || len(el) != 3 ||
		el[0].Tag() != cosem.TagLongUnsigned || el[2].Tag() != cosem.TagUnsigned {
		return Entry{}, fmt.Errorf("%w: entry must be structure{long-unsigned, date, unsigned}", datamodel.ErrTypeMismatch)
	}
	if el[1].Tag() != cosem.TagOctetString && el[1].Tag() != cosem.TagDate {
		return Entry{}, fmt.Errorf("%w: specialday_date must be octet-string, got %s", datamodel.ErrTypeMismatch, el[1].Tag())
	}
	d, ok := el[1].Date()
	if !ok {
		return Entry{}, fmt.Errorf("%w: specialday_date must hold %d octets", datamodel.ErrInvalidValue, cosem.DateSize)
	}
	if err := d.Validate(); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", datamodel.ErrInvalidValue, err)
	}
	idx, _ := el[0].Uint()
	day, _ := el[2].Uint()
	return Entry{Index: uint16(idx), Date: d, DayID: uint8(day)}, nil
}

// compareEntries orders by year, month and day as encoded, then by index.
// Not-specified fields carry the highest octet values, so recurring dates
// sort after concrete ones of the same position.
func compareEntries(a, b Entry) int {
	switch {
	case a.Date.Year != b.Date.Year:
		return cmpInt(int(a.Date.Year), int(b.Date.Year))
	case a.Date.Month != b.Date.Month:
		return cmpInt(int(a.Date.Month), int(b.Date.Month))
	case a.Date.Day != b.Date.Day:
		return cmpInt(int(a.Date.Day), int(b.Date.Day))
	}
	return cmpInt(int(a.Index), int(b.Index))
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Config provides the initial state of a Special Days Table.
type Config struct {
	// LogicalName defaults to 0.0.11.0.0.255.
	LogicalName obis.Code
	Entries     []Entry
}

// Table implements the Special Days Table interface class.
type Table struct {
	datamodel.Base
	entries []Entry
}

// New creates a Special Days Table. Entries are sorted; duplicate indices
// are rejected.
func New(cfg Config) (*Table, error) {
	if cfg.LogicalName == (obis.Code{}) {
		cfg.LogicalName = obis.SpecialDaysTable
	}
	entries, err := normalize(cfg.Entries)
	if err != nil {
		return nil, fmt.Errorf("special days %s: %w", cfg.LogicalName, err)
	}
	return &Table{
		Base: datamodel.NewBase(ClassID, Version, cfg.LogicalName,
			[]datamodel.AttributeEntry{datamodel.NewReadOnlyAttribute(AttrEntries, "entries", cosem.TagArray)},
			[]datamodel.MethodEntry{
				datamodel.NewMethodEntry(MethodInsert, "insert"),
				datamodel.NewMethodEntry(MethodDelete, "delete"),
			},
		),
		entries: entries,
	}, nil
}

func normalize(in []Entry) ([]Entry, error) {
	out := slices.Clone(in)
	seen := make(map[uint16]bool, len(out))
	for _, e := range out {
		if seen[e.Index] {
			return nil, fmt.Errorf("%w: duplicate entry index %d", datamodel.ErrInvalidValue, e.Index)
		}
		seen[e.Index] = true
		if err := e.Date.Validate(); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", datamodel.ErrInvalidValue, e.Index, err)
		}
	}
	slices.SortFunc(out, compareEntries)
	return out, nil
}

// Entries returns the entries in date order.
func (t *Table) Entries() []Entry { return slices.Clone(t.entries) }

// Insert adds e, replacing any entry with the same index.
func (t *Table) Insert(e Entry) error {
	if err := e.Date.Validate(); err != nil {
		return fmt.Errorf("%w: %v", datamodel.ErrInvalidValue, err)
	}
	t.entries = slices.DeleteFunc(t.entries, func(x Entry) bool { return x.Index == e.Index })
	i, _ := slices.BinarySearchFunc(t.entries, e, compareEntries)
	t.entries = slices.Insert(t.entries, i, e)
	return nil
}

// Delete removes the entry with the given index. Deleting an absent index
// is not an error.
func (t *Table) Delete(index uint16) {
	t.entries = slices.DeleteFunc(t.entries, func(x Entry) bool { return x.Index == index })
}

// Lookup returns the day type for the concrete date d. Entries are tried in
// table order and the first whose date pattern matches wins.
func (t *Table) Lookup(d cosem.Date) (uint8, error) {
	for _, e := range t.entries {
		if e.Date.Matches(d) {
			return e.DayID, nil
		}
	}
	return 0, fmt.Errorf("%w %s", ErrNotFound, d)
}

// DayType implements the day-type lookup used by schedules.
func (t *Table) DayType(d cosem.Date) (uint8, bool) {
	id, err := t.Lookup(d)
	return id, err == nil
}

func (t *Table) entriesValue() cosem.Value {
	e := make([]cosem.Value, len(t.entries))
	for i, x := range t.entries {
		e[i] = x.Value()
	}
	return cosem.Array(e...)
}

func parseEntries(v cosem.Value) ([]Entry, error) {
	list, ok := v.Elements()
	if v.Tag() != cosem.TagArray || !ok {
		return nil, fmt.Errorf("%w: entries must be array", datamodel.ErrTypeMismatch)
	}
	out := make([]Entry, 0, len(list))
	for _, x := range list {
		e, err := ParseEntry(x)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return normalize(out)
}

// GetAttribute implements datamodel.Object.
func (t *Table) GetAttribute(ctx context.Context, id datamodel.AttributeID) (cosem.Value, error) {
	if err := t.CheckGet(ctx, id); err != nil {
		return cosem.Value{}, err
	}
	if id == datamodel.AttrLogicalName {
		return t.GetLogicalName(), nil
	}
	return t.entriesValue(), nil
}

// SetAttribute implements datamodel.Object. Entries change only through
// insert and delete.
func (t *Table) SetAttribute(ctx context.Context, id datamodel.AttributeID, v cosem.Value) error {
	return t.CheckSet(ctx, id, v)
}

// InvokeMethod implements datamodel.Object. insert takes a
// spec_day_entry, delete takes the entry index as long-unsigned.
func (t *Table) InvokeMethod(ctx context.Context, id datamodel.MethodID, param cosem.Value) (cosem.Value, error) {
	if err := t.CheckInvoke(ctx, id); err != nil {
		return cosem.Value{}, err
	}
	switch id {
	case MethodInsert:
		e, err := ParseEntry(param)
		if err != nil {
			return cosem.Value{}, t.MethodError(id, err)
		}
		if err := t.Insert(e); err != nil {
			return cosem.Value{}, t.MethodError(id, err)
		}
	case MethodDelete:
		if param.Tag() != cosem.TagLongUnsigned {
			return cosem.Value{}, t.MethodError(id, fmt.Errorf("%w: delete expects long-unsigned, got %s", datamodel.ErrTypeMismatch, param.Tag()))
		}
		n, _ := param.Uint()
		t.Delete(uint16(n))
	}
	return cosem.Null(), nil
}

// SaveState implements datamodel.Persistent.
func (t *Table) SaveState() (cosem.Value, error) { return t.entriesValue(), nil }

// LoadState implements datamodel.Persistent.
func (t *Table) LoadState(state cosem.Value) error {
	entries, err := parseEntries(state)
	if err != nil {
		return err
	}
	t.entries = entries
	return nil
}

var (
	_ datamodel.Object     = (*Table)(nil)
	_ datamodel.Persistent = (*Table)(nil)
)
