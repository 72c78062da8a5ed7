// Package profilegeneric implements the Profile Generic interface class
// (class_id 7, version 1).
//
// A profile captures the values of a list of attributes (the capture
// objects) into a bounded buffer, either on demand through the capture
// method or periodically on the clock tick. The buffer can be read whole
// or filtered by a range or entry selector.
package profilegeneric

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/cosem/pkg/cosem"
	"github.com/backkem/cosem/pkg/datamodel"
	"github.com/backkem/cosem/pkg/obis"
)

// Class constants.
const (
	ClassID = datamodel.ClassProfileGeneric
	Version = 1
)

// Attribute IDs.
const (
	AttrBuffer         datamodel.AttributeID = 2
	AttrCaptureObjects datamodel.AttributeID = 3
	AttrCapturePeriod  datamodel.AttributeID = 4
	AttrSortMethod     datamodel.AttributeID = 5
	AttrSortObject     datamodel.AttributeID = 6
	AttrEntriesInUse   datamodel.AttributeID = 7
	AttrProfileEntries datamodel.AttributeID = 8
)

// Method IDs.
const (
	MethodReset   datamodel.MethodID = 1
	MethodCapture datamodel.MethodID = 2
)

// SortMethod orders the buffer.
type SortMethod uint8

const (
	SortFIFO SortMethod = iota + 1
	SortLIFO
	SortLargest
	SortSmallest
	SortNearestToZero
	SortFarthestFromZero
)

func (s SortMethod) valid() bool { return s >= SortFIFO && s <= SortFarthestFromZero }

// Entry is one buffer row.
type Entry struct {
	// Values holds one value per capture object.
	Values []cosem.Value

	// CapturedAt is the time of capture.
	CapturedAt cosem.DateTime
}

// Config provides the initial state of a Profile Generic object.
type Config struct {
	LogicalName obis.Code

	// CaptureObjects are the columns.
	CaptureObjects []datamodel.CaptureObject

	// CapturePeriod enables periodic capture on tick. Zero disables it.
	CapturePeriod time.Duration

	// SortMethod defaults to SortFIFO.
	SortMethod SortMethod

	// SortObject is the column sorted on by the value-ordered methods.
	SortObject datamodel.CaptureObject

	// ProfileEntries is the buffer capacity. Zero disables capture.
	ProfileEntries uint32

	// Resolver finds the objects named by the capture objects.
	Resolver datamodel.Resolver

	// TimeSource stamps captured entries. Defaults to the system clock.
	TimeSource datamodel.TimeSource

	// LoggerFactory is the factory for creating loggers.
	// Optional: if nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

func (c *Config) applyDefaults() {
	if c.SortMethod == 0 {
		c.SortMethod = SortFIFO
	}
	if c.TimeSource == nil {
		c.TimeSource = datamodel.SystemTime{}
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Resolver == nil {
		return fmt.Errorf("profile generic %s: resolver required", c.LogicalName)
	}
	if !c.SortMethod.valid() {
		return fmt.Errorf("profile generic %s: invalid sort method %d", c.LogicalName, c.SortMethod)
	}
	if c.CapturePeriod < 0 || c.CapturePeriod%time.Second != 0 {
		return fmt.Errorf("profile generic %s: capture period must be a whole number of seconds", c.LogicalName)
	}
	if err := checkSortObject(c.SortMethod, c.SortObject, c.CaptureObjects); err != nil {
		return fmt.Errorf("profile generic %s: %w", c.LogicalName, err)
	}
	return nil
}

func checkSortObject(m SortMethod, so datamodel.CaptureObject, cols []datamodel.CaptureObject) error {
	if m == SortFIFO || m == SortLIFO {
		return nil
	}
	if columnOf(cols, so) < 0 {
		return fmt.Errorf("%w: sort object is not a capture object", datamodel.ErrInvalidValue)
	}
	return nil
}

func columnOf(cols []datamodel.CaptureObject, co datamodel.CaptureObject) int {
	for i, c := range cols {
		if c == co {
			return i
		}
	}
	return -1
}

// ProfileGeneric implements the Profile Generic interface class.
type ProfileGeneric struct {
	datamodel.Base
	resolver datamodel.Resolver
	clock    datamodel.TimeSource
	log      logging.LeveledLogger

	columns    []datamodel.CaptureObject
	period     time.Duration
	sortMethod SortMethod
	sortObject datamodel.CaptureObject
	buf        *ring[Entry]
	next       time.Time
}

// New creates a Profile Generic object.
func New(cfg Config) (*ProfileGeneric, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	attrs := []datamodel.AttributeEntry{
		datamodel.NewReadOnlyAttribute(AttrBuffer, "buffer", cosem.TagArray),
		datamodel.NewReadWriteAttribute(AttrCaptureObjects, "capture_objects", cosem.TagArray),
		datamodel.NewReadWriteAttribute(AttrCapturePeriod, "capture_period", cosem.TagDoubleLongUnsigned),
		datamodel.NewReadWriteAttribute(AttrSortMethod, "sort_method", cosem.TagEnum),
		datamodel.NewReadWriteAttribute(AttrSortObject, "sort_object", cosem.TagStructure),
		datamodel.NewReadOnlyAttribute(AttrEntriesInUse, "entries_in_use", cosem.TagDoubleLongUnsigned),
		datamodel.NewReadWriteAttribute(AttrProfileEntries, "profile_entries", cosem.TagDoubleLongUnsigned),
	}
	methods := []datamodel.MethodEntry{
		datamodel.NewMethodEntry(MethodReset, "reset"),
		datamodel.NewMethodEntry(MethodCapture, "capture"),
	}
	p := &ProfileGeneric{
		Base:       datamodel.NewBase(ClassID, Version, cfg.LogicalName, attrs, methods),
		resolver:   cfg.Resolver,
		clock:      cfg.TimeSource,
		columns:    append([]datamodel.CaptureObject(nil), cfg.CaptureObjects...),
		period:     cfg.CapturePeriod,
		sortMethod: cfg.SortMethod,
		sortObject: cfg.SortObject,
		buf:        newRing[Entry](cfg.ProfileEntries),
	}
	if cfg.LoggerFactory != nil {
		p.log = cfg.LoggerFactory.NewLogger("profilegeneric")
	}
	p.schedule(cfg.TimeSource.Now())
	return p, nil
}

func (p *ProfileGeneric) schedule(now time.Time) {
	if p.period > 0 {
		p.next = now.Truncate(p.period).Add(p.period)
	}
}

// CaptureObjects returns the columns.
func (p *ProfileGeneric) CaptureObjects() []datamodel.CaptureObject {
	return append([]datamodel.CaptureObject(nil), p.columns...)
}

// Entries returns the buffer rows in presentation order.
func (p *ProfileGeneric) Entries() []Entry { return p.buf.Slice() }

// EntriesInUse returns the number of rows.
func (p *ProfileGeneric) EntriesInUse() int { return p.buf.Len() }

// Capacity returns profile_entries.
func (p *ProfileGeneric) Capacity() int { return int(p.buf.Cap()) }

// Reset empties the buffer.
func (p *ProfileGeneric) Reset() { p.buf.Reset() }

// Capture reads every capture object and stores one entry. With a
// capacity of zero nothing is read or stored. A capture object that
// cannot be read fails the capture and leaves the buffer unchanged.
func (p *ProfileGeneric) Capture(ctx context.Context) error {
	if p.buf.Cap() == 0 {
		return nil
	}
	row := make([]cosem.Value, len(p.columns))
	for i, co := range p.columns {
		v, err := p.read(ctx, co)
		if err != nil {
			return fmt.Errorf("capture column %d (%s): %w", i+1, co.Ref(), err)
		}
		row[i] = v
	}
	p.insert(Entry{Values: row, CapturedAt: datamodel.CurrentDateTime(p.clock)})
	if p.log != nil {
		p.log.Tracef("%s: captured entry %d/%d", p.LogicalName(), p.buf.Len(), p.buf.Cap())
	}
	return nil
}

func (p *ProfileGeneric) read(ctx context.Context, co datamodel.CaptureObject) (cosem.Value, error) {
	if co.Class == ClassID && co.LogicalName == p.LogicalName() {
		return cosem.Value{}, fmt.Errorf("%w: profile captures itself", datamodel.ErrInvalidValue)
	}
	obj, err := p.resolver.Lookup(co.Class, co.LogicalName)
	if err != nil {
		return cosem.Value{}, err
	}
	v, err := obj.GetAttribute(ctx, datamodel.AttributeID(co.Attribute))
	if err != nil {
		return cosem.Value{}, err
	}
	if co.DataIndex == 0 {
		return v, nil
	}
	e, ok := v.Index(int(co.DataIndex) - 1)
	if !ok {
		return cosem.Value{}, fmt.Errorf("%w: data index %d out of range", datamodel.ErrInvalidValue, co.DataIndex)
	}
	return e, nil
}

// insert stores e according to the sort method. FIFO and LIFO both keep
// the most recent entries; they differ only in presentation order.
func (p *ProfileGeneric) insert(e Entry) {
	if p.sortMethod == SortFIFO || p.sortMethod == SortLIFO {
		p.buf.Push(e)
		return
	}
	col := columnOf(p.columns, p.sortObject)
	s := p.buf.Slice()
	pos := len(s)
	for i, o := range s {
		if p.before(e.Values[col], o.Values[col]) {
			pos = i
			break
		}
	}
	if pos == len(s) && p.buf.full() {
		return // ranks below every entry of a full buffer
	}
	s = append(s[:pos], append([]Entry{e}, s[pos:]...)...)
	if uint32(len(s)) > p.buf.Cap() {
		s = s[:p.buf.Cap()]
	}
	p.buf.Load(s)
}

// before reports whether a sorts strictly ahead of b.
func (p *ProfileGeneric) before(a, b cosem.Value) bool {
	switch p.sortMethod {
	case SortNearestToZero, SortFarthestFromZero:
		fa, oka := a.Float()
		fb, okb := b.Float()
		if !oka || !okb {
			return false
		}
		if p.sortMethod == SortNearestToZero {
			return math.Abs(fa) < math.Abs(fb)
		}
		return math.Abs(fa) > math.Abs(fb)
	}
	c, err := cosem.Compare(a, b)
	if err != nil {
		return false
	}
	if p.sortMethod == SortLargest {
		return c > 0
	}
	return c < 0
}

// Tick captures when a capture period boundary has passed. Boundaries
// missed entirely produce a single capture.
func (p *ProfileGeneric) Tick(ctx context.Context, now time.Time) error {
	if p.period <= 0 || now.Before(p.next) {
		return nil
	}
	p.schedule(now)
	if err := p.Capture(ctx); err != nil {
		if p.log != nil {
			p.log.Warnf("%s: periodic capture failed: %v", p.LogicalName(), err)
		}
		return err
	}
	return nil
}

func (p *ProfileGeneric) rowValue(e Entry, cols []int) cosem.Value {
	if cols == nil {
		return cosem.Structure(e.Values...)
	}
	out := make([]cosem.Value, len(cols))
	for i, c := range cols {
		out[i] = e.Values[c]
	}
	return cosem.Structure(out...)
}

// entry returns the i-th row in presentation order: newest first for
// LIFO, storage order otherwise.
func (p *ProfileGeneric) entry(i int) Entry {
	if p.sortMethod == SortLIFO {
		return p.buf.At(p.buf.Len() - 1 - i)
	}
	return p.buf.At(i)
}

func (p *ProfileGeneric) bufferValue() cosem.Value {
	rows := make([]cosem.Value, p.buf.Len())
	for i := range rows {
		rows[i] = p.rowValue(p.entry(i), nil)
	}
	return cosem.Array(rows...)
}

func (p *ProfileGeneric) columnsValue() cosem.Value {
	e := make([]cosem.Value, len(p.columns))
	for i, c := range p.columns {
		e[i] = c.Value()
	}
	return cosem.Array(e...)
}

// GetAttribute implements datamodel.Object.
func (p *ProfileGeneric) GetAttribute(ctx context.Context, id datamodel.AttributeID) (cosem.Value, error) {
	if err := p.CheckGet(ctx, id); err != nil {
		return cosem.Value{}, err
	}
	switch id {
	case datamodel.AttrLogicalName:
		return p.GetLogicalName(), nil
	case AttrBuffer:
		return p.bufferValue(), nil
	case AttrCaptureObjects:
		return p.columnsValue(), nil
	case AttrCapturePeriod:
		return cosem.DoubleLongUnsigned(uint32(p.period / time.Second)), nil
	case AttrSortMethod:
		return cosem.Enum(uint8(p.sortMethod)), nil
	case AttrSortObject:
		return p.sortObject.Value(), nil
	case AttrEntriesInUse:
		return cosem.DoubleLongUnsigned(uint32(p.buf.Len())), nil
	default:
		return cosem.DoubleLongUnsigned(p.buf.Cap()), nil
	}
}

// SetAttribute implements datamodel.Object. Writing capture_objects or the
// sort parameters clears the buffer; writing profile_entries keeps the
// newest entries that still fit.
func (p *ProfileGeneric) SetAttribute(ctx context.Context, id datamodel.AttributeID, v cosem.Value) error {
	if err := p.CheckSet(ctx, id, v); err != nil {
		return err
	}
	var err error
	switch id {
	case AttrCaptureObjects:
		err = p.setColumns(v)
	case AttrCapturePeriod:
		n, _ := v.Uint()
		p.period = time.Duration(n) * time.Second
		p.schedule(p.clock.Now())
	case AttrSortMethod:
		n, _ := v.Uint()
		m := SortMethod(n)
		if !m.valid() {
			err = fmt.Errorf("%w: sort method %d", datamodel.ErrInvalidValue, n)
		} else if err = checkSortObject(m, p.sortObject, p.columns); err == nil {
			p.sortMethod = m
			p.buf.Reset()
		}
	case AttrSortObject:
		var so datamodel.CaptureObject
		if so, err = datamodel.ParseCaptureObject(v); err == nil {
			if err = checkSortObject(p.sortMethod, so, p.columns); err == nil {
				p.sortObject = so
				p.buf.Reset()
			}
		}
	case AttrProfileEntries:
		n, _ := v.Uint()
		p.buf.Resize(uint32(n))
	}
	if err != nil {
		return p.AttrError(id, err)
	}
	return nil
}

func (p *ProfileGeneric) setColumns(v cosem.Value) error {
	e, _ := v.Elements()
	cols := make([]datamodel.CaptureObject, 0, len(e))
	for _, x := range e {
		co, err := datamodel.ParseCaptureObject(x)
		if err != nil {
			return err
		}
		cols = append(cols, co)
	}
	if err := checkSortObject(p.sortMethod, p.sortObject, cols); err != nil {
		return err
	}
	p.columns = cols
	p.buf.Reset()
	return nil
}

// InvokeMethod implements datamodel.Object.
func (p *ProfileGeneric) InvokeMethod(ctx context.Context, id datamodel.MethodID, _ cosem.Value) (cosem.Value, error) {
	if err := p.CheckInvoke(ctx, id); err != nil {
		return cosem.Value{}, err
	}
	switch id {
	case MethodReset:
		p.Reset()
	case MethodCapture:
		if err := p.Capture(ctx); err != nil {
			return cosem.Value{}, p.MethodError(id, err)
		}
	}
	return cosem.Null(), nil
}

// SaveState implements datamodel.Persistent as structure{capture_objects,
// capture_period, sort_method, sort_object, profile_entries, rows} where
// each row is structure{capture_time, values...}.
func (p *ProfileGeneric) SaveState() (cosem.Value, error) {
	rows := make([]cosem.Value, p.buf.Len())
	for i := range rows {
		e := p.buf.At(i)
		rows[i] = cosem.Structure(append([]cosem.Value{cosem.DateTimeValue(e.CapturedAt)}, e.Values...)...)
	}
	return cosem.Structure(
		p.columnsValue(),
		cosem.DoubleLongUnsigned(uint32(p.period/time.Second)),
		cosem.Enum(uint8(p.sortMethod)),
		p.sortObject.Value(),
		cosem.DoubleLongUnsigned(p.buf.Cap()),
		cosem.Array(rows...),
	), nil
}

// LoadState implements datamodel.Persistent.
func (p *ProfileGeneric) LoadState(state cosem.Value) error {
	e, ok := state.Elements()
	if !ok || len(e) != 6 {
		return fmt.Errorf("%w: profile generic state", datamodel.ErrTypeMismatch)
	}
	list, _ := e[0].Elements()
	cols := make([]datamodel.CaptureObject, 0, len(list))
	for _, x := range list {
		co, err := datamodel.ParseCaptureObject(x)
		if err != nil {
			return err
		}
		cols = append(cols, co)
	}
	period, _ := e[1].Uint()
	sm, _ := e[2].Uint()
	// An unset sort object is saved as all zeros and does not parse.
	so, err := datamodel.ParseCaptureObject(e[3])
	if err != nil {
		so = datamodel.CaptureObject{}
	}
	if err := checkSortObject(SortMethod(sm), so, cols); err != nil || !SortMethod(sm).valid() {
		return fmt.Errorf("%w: profile generic sort state", datamodel.ErrInvalidValue)
	}
	capacity, _ := e[4].Uint()
	rows, _ := e[5].Elements()
	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		vals, _ := r.Elements()
		if len(vals) != len(cols)+1 {
			return fmt.Errorf("%w: profile row width", datamodel.ErrTypeMismatch)
		}
		at, ok := vals[0].DateTime()
		if !ok {
			return fmt.Errorf("%w: profile row capture time", datamodel.ErrTypeMismatch)
		}
		entries = append(entries, Entry{Values: vals[1:], CapturedAt: at})
	}
	p.columns = cols
	p.period = time.Duration(period) * time.Second
	p.sortMethod = SortMethod(sm)
	p.sortObject = so
	p.buf = newRing[Entry](uint32(capacity))
	p.buf.Load(entries)
	p.schedule(p.clock.Now())
	return nil
}

var (
	_ datamodel.Object          = (*ProfileGeneric)(nil)
	_ datamodel.SelectiveReader = (*ProfileGeneric)(nil)
	_ datamodel.Ticker          = (*ProfileGeneric)(nil)
	_ datamodel.Persistent      = (*ProfileGeneric)(nil)
)
