package profilegeneric

import (
	"context"
	"fmt"

	"github.com/backkem/cosem/pkg/classes/clock"
	"github.com/backkem/cosem/pkg/cosem"
	"github.com/backkem/cosem/pkg/datamodel"
)

// GetAttributeSelective implements datamodel.SelectiveReader. Only the
// buffer supports selective access.
func (p *ProfileGeneric) GetAttributeSelective(ctx context.Context, id datamodel.AttributeID, sel datamodel.AccessSelector) (cosem.Value, error) {
	if err := p.CheckGet(ctx, id); err != nil {
		return cosem.Value{}, err
	}
	if id != AttrBuffer {
		return cosem.Value{}, p.AttrError(id, fmt.Errorf("%w: selective access on attribute %d", datamodel.ErrInvalidValue, id))
	}
	var (
		v   cosem.Value
		err error
	)
	switch sel.Selector {
	case datamodel.SelectorRange:
		var rd datamodel.RangeDescriptor
		if rd, err = datamodel.ParseRangeDescriptor(sel.Parameters); err == nil {
			v, err = p.SelectRange(rd)
		}
	case datamodel.SelectorEntry:
		var ed datamodel.EntryDescriptor
		if ed, err = datamodel.ParseEntryDescriptor(sel.Parameters); err == nil {
			v, err = p.SelectEntries(ed)
		}
	default:
		err = fmt.Errorf("%w: access selector %d", datamodel.ErrInvalidValue, sel.Selector)
	}
	if err != nil {
		return cosem.Value{}, p.AttrError(id, err)
	}
	return v, nil
}

// isClockTime reports whether co names the time attribute of a clock.
func isClockTime(co datamodel.CaptureObject) bool {
	return co.Class == clock.ClassID && datamodel.AttributeID(co.Attribute) == clock.AttrTime
}

// SelectRange returns the rows whose restricting value lies in
// [From, To], inclusive on both ends. The restricting object is either a
// capture object or the clock time, which selects on the capture time of
// each row. No match yields an empty array.
func (p *ProfileGeneric) SelectRange(rd datamodel.RangeDescriptor) (cosem.Value, error) {
	col := columnOf(p.columns, rd.RestrictingObject)
	if col < 0 {
		// Data index is irrelevant for the restricting object lookup.
		for i, c := range p.columns {
			if c.Class == rd.RestrictingObject.Class && c.LogicalName == rd.RestrictingObject.LogicalName &&
				c.Attribute == rd.RestrictingObject.Attribute {
				col = i
				break
			}
		}
	}
	if col < 0 && !isClockTime(rd.RestrictingObject) {
		return cosem.Value{}, fmt.Errorf("%w: restricting object %s is not captured", datamodel.ErrInvalidValue, rd.RestrictingObject.Ref())
	}
	cols, err := p.selectColumns(rd.Columns)
	if err != nil {
		return cosem.Value{}, err
	}
	rows := []cosem.Value{}
	for i := 0; i < p.buf.Len(); i++ {
		e := p.entry(i)
		key := cosem.DateTimeValue(e.CapturedAt)
		if col >= 0 {
			key = e.Values[col]
		}
		lo, err := cosem.Compare(key, rd.From)
		if err != nil {
			return cosem.Value{}, fmt.Errorf("%w: from_value: %v", datamodel.ErrTypeMismatch, err)
		}
		hi, err := cosem.Compare(key, rd.To)
		if err != nil {
			return cosem.Value{}, fmt.Errorf("%w: to_value: %v", datamodel.ErrTypeMismatch, err)
		}
		if lo >= 0 && hi <= 0 {
			rows = append(rows, p.rowValue(e, cols))
		}
	}
	return cosem.Array(rows...), nil
}

// selectColumns maps a selected_values list to column positions. An empty
// list selects every column and returns nil.
func (p *ProfileGeneric) selectColumns(sel []datamodel.CaptureObject) ([]int, error) {
	if len(sel) == 0 {
		return nil, nil
	}
	cols := make([]int, len(sel))
	for i, co := range sel {
		c := columnOf(p.columns, co)
		if c < 0 {
			return nil, fmt.Errorf("%w: selected value %s is not captured", datamodel.ErrInvalidValue, co.Ref())
		}
		cols[i] = c
	}
	return cols, nil
}

// SelectEntries returns rows FromEntry..ToEntry and columns
// FromColumn..ToColumn, all 1-based and inclusive. A To of zero means the
// last row or column. A range starting past the end yields an empty
// array.
func (p *ProfileGeneric) SelectEntries(ed datamodel.EntryDescriptor) (cosem.Value, error) {
	ed.FromEntry = max(ed.FromEntry, 1)
	ed.FromColumn = max(ed.FromColumn, 1)
	n := uint32(p.buf.Len())
	last := ed.ToEntry
	if last == 0 || last > n {
		last = n
	}
	lastCol := int(ed.ToColumn)
	if lastCol == 0 || lastCol > len(p.columns) {
		lastCol = len(p.columns)
	}
	if ed.ToEntry != 0 && ed.FromEntry > ed.ToEntry {
		return cosem.Value{}, fmt.Errorf("%w: from_entry %d after to_entry %d", datamodel.ErrInvalidValue, ed.FromEntry, ed.ToEntry)
	}
	if int(ed.FromColumn) > lastCol && len(p.columns) > 0 {
		return cosem.Value{}, fmt.Errorf("%w: from_selected_value %d after %d", datamodel.ErrInvalidValue, ed.FromColumn, lastCol)
	}
	var cols []int
	if ed.FromColumn != 1 || lastCol != len(p.columns) {
		for c := int(ed.FromColumn); c <= lastCol; c++ {
			cols = append(cols, c-1)
		}
	}
	rows := []cosem.Value{}
	for i := ed.FromEntry; i <= last; i++ {
		rows = append(rows, p.rowValue(p.entry(int(i-1)), cols))
	}
	return cosem.Array(rows...), nil
}
