// Package schedule implements the Schedule interface class (class_id 10).
//
// Each entry names a script of a Script Table and the local time of day at
// which it runs, restricted by weekday, special day type and a validity
// period. The host drives evaluation through Tick; every tick executes the
// entries whose switch time passed since the previous tick.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/cosem/pkg/classes/scripttable"
	"github.com/backkem/cosem/pkg/cosem"
	"github.com/backkem/cosem/pkg/datamodel"
	"github.com/backkem/cosem/pkg/obis"
)

// Class constants.
const (
	ClassID = datamodel.ClassSchedule
	Version = 0
)

// Attribute IDs.
const (
	AttrEntries datamodel.AttributeID = 2
)

// Method IDs.
const (
	MethodEnableDisable datamodel.MethodID = 1
	MethodInsert        datamodel.MethodID = 2
	MethodDelete        datamodel.MethodID = 3
)

// ValidityUnlimited as validity window lets a missed entry run however
// late it is evaluated.
const ValidityUnlimited uint16 = 0xFFFF

// MaxCatchUp bounds how far back a tick looks for missed switch times.
const MaxCatchUp = 31 * 24 * time.Hour

// Entry is one schedule_table_entry.
type Entry struct {
	Index          uint16
	Enabled        bool
	Script         obis.Code
	ScriptSelector uint16
	SwitchTime     cosem.Time

	// ValidityWindow is how many minutes after the switch time the entry
	// may still run when it was missed.
	ValidityWindow uint16

	// Weekdays holds 7 bits, Monday first.
	Weekdays cosem.BitString

	// SpecialDays bit n selects special days of day type n.
	SpecialDays cosem.BitString

	BeginDate cosem.Date
	EndDate   cosem.Date
}

// WeekdayMask builds an exec_weekdays bit-string from the given days.
func WeekdayMask(days ...time.Weekday) cosem.BitString {
	bits := make([]bool, 7)
	for _, d := range days {
		bits[(int(d)+6)%7] = true
	}
	return cosem.NewBitString(bits...)
}

// Value encodes e as the 10-element schedule_table_entry structure.
func (e Entry) Value() cosem.Value {
	return cosem.Structure(
		cosem.LongUnsigned(e.Index),
		cosem.Bool(e.Enabled),
		e.Script.Value(),
		cosem.LongUnsigned(e.ScriptSelector),
		cosem.OctetString(e.SwitchTime.Bytes()),
		cosem.LongUnsigned(e.ValidityWindow),
		cosem.BitStringValue(e.Weekdays),
		cosem.BitStringValue(e.SpecialDays),
		cosem.OctetString(e.BeginDate.Bytes()),
		cosem.OctetString(e.EndDate.Bytes()),
	)
}

var entryLayout = [...]cosem.Tag{
	cosem.TagLongUnsigned, cosem.TagBoolean, cosem.TagOctetString, cosem.TagLongUnsigned,
	cosem.TagOctetString, cosem.TagLongUnsigned, cosem.TagBitString, cosem.TagBitString,
	cosem.TagOctetString, cosem.TagOctetString,
}

// ParseEntry decodes a schedule_table_entry.
func ParseEntry(v cosem.Value) (Entry, error) {
	el, ok := v.Elements()
	if v.Tag() != cosem.TagStructure || !ok || len(el) != len(entryLayout) {
		return Entry{}, fmt.Errorf("%w: entry must be structure of %d elements", datamodel.ErrTypeMismatch, len(entryLayout))
	}
	for i, tag := range entryLayout {
		if el[i].Tag() != tag {
			return Entry{}, fmt.Errorf("%w: entry element %d must be %s, got %s", datamodel.ErrTypeMismatch, i+1, tag, el[i].Tag())
		}
	}
	script, err := obis.FromValue(el[2])
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", datamodel.ErrInvalidValue, err)
	}
	switchTime, ok := el[4].Time()
	if !ok {
		return Entry{}, fmt.Errorf("%w: switch_time must hold %d octets", datamodel.ErrInvalidValue, cosem.TimeSize)
	}
	begin, ok1 := el[8].Date()
	end, ok2 := el[9].Date()
	if !ok1 || !ok2 {
		return Entry{}, fmt.Errorf("%w: begin and end dates must hold %d octets", datamodel.ErrInvalidValue, cosem.DateSize)
	}
	idx, _ := el[0].Uint()
	enabled, _ := el[1].Bool()
	sel, _ := el[3].Uint()
	window, _ := el[5].Uint()
	weekdays, _ := el[6].Bits()
	specdays, _ := el[7].Bits()
	e := Entry{
		Index:          uint16(idx),
		Enabled:        enabled,
		Script:         script,
		ScriptSelector: uint16(sel),
		SwitchTime:     switchTime,
		ValidityWindow: uint16(window),
		Weekdays:       weekdays,
		SpecialDays:    specdays,
		BeginDate:      begin,
		EndDate:        end,
	}
	return e, e.validate()
}

func (e Entry) validate() error {
	if err := e.SwitchTime.Validate(); err != nil {
		return fmt.Errorf("%w: entry %d switch_time: %v", datamodel.ErrInvalidValue, e.Index, err)
	}
	if err := e.BeginDate.Validate(); err != nil {
		return fmt.Errorf("%w: entry %d begin_date: %v", datamodel.ErrInvalidValue, e.Index, err)
	}
	if err := e.EndDate.Validate(); err != nil {
		return fmt.Errorf("%w: entry %d end_date: %v", datamodel.ErrInvalidValue, e.Index, err)
	}
	if e.Weekdays.Len != 7 {
		return fmt.Errorf("%w: entry %d exec_weekdays needs 7 bits, got %d", datamodel.ErrInvalidValue, e.Index, e.Weekdays.Len)
	}
	return nil
}

// compareEntries orders by switch time as encoded, then by index.
func compareEntries(a, b Entry) int {
	if c := slices.Compare(a.SwitchTime.Bytes(), b.SwitchTime.Bytes()); c != 0 {
		return c
	}
	switch {
	case a.Index < b.Index:
		return -1
	case a.Index > b.Index:
		return 1
	}
	return 0
}

// DayTypeLookup resolves a date to a special day type.
type DayTypeLookup interface {
	DayType(d cosem.Date) (uint8, bool)
}

// Zone reports the deviation of local time from UTC at an instant. The
// Clock class satisfies it.
type Zone interface {
	Deviation(t time.Time) int16
}

// Config provides the initial state of a Schedule.
type Config struct {
	// LogicalName defaults to 0.0.12.0.0.255.
	LogicalName obis.Code
	Entries     []Entry

	// Resolver finds the script tables named by entries.
	Resolver datamodel.Resolver

	// SpecialDays overrides weekday selection on special days. Optional.
	SpecialDays DayTypeLookup

	// Zone converts tick instants to local time. Optional: if nil, the
	// location of the tick time is used.
	Zone Zone

	// LoggerFactory is the factory for creating loggers.
	// Optional: if nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Schedule implements the Schedule interface class.
type Schedule struct {
	datamodel.Base
	resolver    datamodel.Resolver
	specialDays DayTypeLookup
	zone        Zone
	log         logging.LeveledLogger
	entries     []Entry
	last        time.Time
}

// New creates a Schedule.
func New(cfg Config) (*Schedule, error) {
	if cfg.LogicalName == (obis.Code{}) {
		cfg.LogicalName = obis.New(0, 0, 12, 0, 0, 255)
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("schedule %s: resolver required", cfg.LogicalName)
	}
	entries, err := normalize(cfg.Entries)
	if err != nil {
		return nil, fmt.Errorf("schedule %s: %w", cfg.LogicalName, err)
	}
	s := &Schedule{
		Base: datamodel.NewBase(ClassID, Version, cfg.LogicalName,
			[]datamodel.AttributeEntry{datamodel.NewReadWriteAttribute(AttrEntries, "entries", cosem.TagArray)},
			[]datamodel.MethodEntry{
				datamodel.NewMethodEntry(MethodEnableDisable, "enable_disable"),
				datamodel.NewMethodEntry(MethodInsert, "insert"),
				datamodel.NewMethodEntry(MethodDelete, "delete"),
			},
		),
		resolver:    cfg.Resolver,
		specialDays: cfg.SpecialDays,
		zone:        cfg.Zone,
		entries:     entries,
	}
	if cfg.LoggerFactory != nil {
		s.log = cfg.LoggerFactory.NewLogger("schedule")
	}
	return s, nil
}

func normalize(in []Entry) ([]Entry, error) {
	out := slices.Clone(in)
	seen := make(map[uint16]bool, len(out))
	for _, e := range out {
		if seen[e.Index] {
			return nil, fmt.Errorf("%w: duplicate entry index %d", datamodel.ErrInvalidValue, e.Index)
		}
		seen[e.Index] = true
		if err := e.validate(); err != nil {
			return nil, err
		}
	}
	slices.SortFunc(out, compareEntries)
	return out, nil
}

// Entries returns the entries ordered by switch time.
func (s *Schedule) Entries() []Entry { return slices.Clone(s.entries) }

// Insert adds e, replacing any entry with the same index.
func (s *Schedule) Insert(e Entry) error {
	if err := e.validate(); err != nil {
		return err
	}
	s.entries = slices.DeleteFunc(s.entries, func(x Entry) bool { return x.Index == e.Index })
	i, _ := slices.BinarySearchFunc(s.entries, e, compareEntries)
	s.entries = slices.Insert(s.entries, i, e)
	return nil
}

// Delete removes the entries with first <= index <= last.
func (s *Schedule) Delete(first, last uint16) {
	s.entries = slices.DeleteFunc(s.entries, func(x Entry) bool { return x.Index >= first && x.Index <= last })
}

// SetEnabled enables or disables the entries with first <= index <= last.
func (s *Schedule) SetEnabled(first, last uint16, enabled bool) {
	for i := range s.entries {
		if s.entries[i].Index >= first && s.entries[i].Index <= last {
			s.entries[i].Enabled = enabled
		}
	}
}

// LastEvaluated returns the instant of the previous tick.
func (s *Schedule) LastEvaluated() time.Time { return s.last }

func (s *Schedule) local(t time.Time) time.Time {
	if s.zone == nil {
		return t
	}
	return t.In(time.FixedZone("", -int(s.zone.Deviation(t))*60))
}

// runsOn reports whether e is selected on the local date d.
func (s *Schedule) runsOn(e Entry, d cosem.Date) bool {
	if d.Compare(e.BeginDate) < 0 || d.Compare(e.EndDate) > 0 {
		return false
	}
	if s.specialDays != nil {
		if id, ok := s.specialDays.DayType(d); ok {
			return e.SpecialDays.Bit(int(id))
		}
	}
	return e.Weekdays.Bit(int(d.DayOfWeek) - 1)
}

type firing struct {
	at    time.Time
	entry Entry
}

// occurrences returns the switch times of e on the local day of midnight
// that fall in (from, to]. Unspecified hour or minute repeat the entry
// every hour or minute; unspecified seconds and hundredths count as zero.
func occurrences(e Entry, midnight, from, to time.Time) []time.Time {
	span := func(v uint8, n int) []int {
		if v == cosem.NotSpecified {
			out := make([]int, n)
			for i := range out {
				out[i] = i
			}
			return out
		}
		return []int{int(v)}
	}
	zero := func(v uint8) int {
		if v == cosem.NotSpecified {
			return 0
		}
		return int(v)
	}
	var out []time.Time
	y, m, d := midnight.Date()
	for _, h := range span(e.SwitchTime.Hour, 24) {
		for _, mi := range span(e.SwitchTime.Minute, 60) {
			t := time.Date(y, m, d, h, mi, zero(e.SwitchTime.Second), zero(e.SwitchTime.Hundredths)*10_000_000, midnight.Location())
			if t.After(from) && !t.After(to) {
				out = append(out, t)
			}
		}
	}
	return out
}

func (s *Schedule) due(from, now time.Time) []firing {
	var out []firing
	end := s.local(now)
	day := s.local(from)
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	for !day.After(end) {
		date := cosem.NewDate(day)
		for _, e := range s.entries {
			if !e.Enabled || !s.runsOn(e, date) {
				continue
			}
			for _, at := range occurrences(e, day, from, now) {
				if e.ValidityWindow != ValidityUnlimited && now.Sub(at) > time.Duration(e.ValidityWindow)*time.Minute {
					continue
				}
				out = append(out, firing{at: at, entry: e})
			}
		}
		next := day.AddDate(0, 0, 1)
		day = time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, s.local(next).Location())
	}
	slices.SortStableFunc(out, func(a, b firing) int {
		if c := a.at.Compare(b.at); c != 0 {
			return c
		}
		return compareEntries(a.entry, b.entry)
	})
	return out
}

// Tick implements datamodel.Ticker. It runs every enabled entry whose
// switch time lies after the previous tick and at or before now, in switch
// time order. The first tick only records now. A failing script does not
// stop later entries; all failures are returned joined.
func (s *Schedule) Tick(ctx context.Context, now time.Time) error {
	if s.last.IsZero() || !now.After(s.last) {
		if s.last.IsZero() {
			s.last = now
		}
		return nil
	}
	from := s.last
	if now.Sub(from) > MaxCatchUp {
		from = now.Add(-MaxCatchUp)
	}
	s.last = now
	var errs []error
	for _, f := range s.due(from, now) {
		if s.log != nil {
			s.log.Debugf("%s: entry %d runs script %d of %s (due %s)", s.LogicalName(), f.entry.Index,
				f.entry.ScriptSelector, f.entry.Script, f.at.Format(time.RFC3339))
		}
		if err := s.run(ctx, f.entry); err != nil {
			if s.log != nil {
				s.log.Warnf("%s: entry %d: %v", s.LogicalName(), f.entry.Index, err)
			}
			errs = append(errs, fmt.Errorf("schedule %s entry %d: %w", s.LogicalName(), f.entry.Index, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Schedule) run(ctx context.Context, e Entry) error {
	obj, err := s.resolver.Lookup(scripttable.ClassID, e.Script)
	if err != nil {
		return err
	}
	_, err = obj.InvokeMethod(ctx, scripttable.MethodExecute, cosem.LongUnsigned(e.ScriptSelector))
	return err
}

func (s *Schedule) entriesValue() cosem.Value {
	e := make([]cosem.Value, len(s.entries))
	for i, x := range s.entries {
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

// parseRange decodes structure{long-unsigned, long-unsigned}.
func parseRange(v cosem.Value) (first, last uint16, err error) {
	el, ok := v.Elements()
	if v.Tag() != cosem.TagStructure || !ok || len(el) != 2 ||
		el[0].Tag() != cosem.TagLongUnsigned || el[1].Tag() != cosem.TagLongUnsigned {
		return 0, 0, fmt.Errorf("%w: range must be structure{long-unsigned, long-unsigned}", datamodel.ErrTypeMismatch)
	}
	a, _ := el[0].Uint()
	b, _ := el[1].Uint()
	return uint16(a), uint16(b), nil
}

// enableDisable applies structure{firstA, lastA, firstB, lastB}: entries
// in A are disabled, then entries in B are enabled. A range starting at 0
// is ignored.
func (s *Schedule) enableDisable(v cosem.Value) error {
	el, ok := v.Elements()
	if v.Tag() != cosem.TagStructure || !ok || len(el) != 4 {
		return fmt.Errorf("%w: enable_disable expects structure of 4 long-unsigned", datamodel.ErrTypeMismatch)
	}
	var r [4]uint16
	for i, x := range el {
		if x.Tag() != cosem.TagLongUnsigned {
			return fmt.Errorf("%w: enable_disable expects structure of 4 long-unsigned", datamodel.ErrTypeMismatch)
		}
		n, _ := x.Uint()
		r[i] = uint16(n)
	}
	if r[0] != 0 {
		s.SetEnabled(r[0], r[1], false)
	}
	if r[2] != 0 {
		s.SetEnabled(r[2], r[3], true)
	}
	return nil
}

// GetAttribute implements datamodel.Object.
func (s *Schedule) GetAttribute(ctx context.Context, id datamodel.AttributeID) (cosem.Value, error) {
	if err := s.CheckGet(ctx, id); err != nil {
		return cosem.Value{}, err
	}
	if id == datamodel.AttrLogicalName {
		return s.GetLogicalName(), nil
	}
	return s.entriesValue(), nil
}

// SetAttribute implements datamodel.Object.
func (s *Schedule) SetAttribute(ctx context.Context, id datamodel.AttributeID, v cosem.Value) error {
	if err := s.CheckSet(ctx, id, v); err != nil {
		return err
	}
	entries, err := parseEntries(v)
	if err != nil {
		return s.AttrError(id, err)
	}
	s.entries = entries
	return nil
}

// InvokeMethod implements datamodel.Object.
func (s *Schedule) InvokeMethod(ctx context.Context, id datamodel.MethodID, param cosem.Value) (cosem.Value, error) {
	if err := s.CheckInvoke(ctx, id); err != nil {
		return cosem.Value{}, err
	}
	var err error
	switch id {
	case MethodEnableDisable:
		err = s.enableDisable(param)
	case MethodInsert:
		var e Entry
		if e, err = ParseEntry(param); err == nil {
			err = s.Insert(e)
		}
	case MethodDelete:
		var first, last uint16
		if first, last, err = parseRange(param); err == nil {
			s.Delete(first, last)
		}
	}
	if err != nil {
		return cosem.Value{}, s.MethodError(id, err)
	}
	return cosem.Null(), nil
}

// SaveState implements datamodel.Persistent. The state holds the entries
// and the instant of the last tick, so missed switch times are caught up
// after a restart.
func (s *Schedule) SaveState() (cosem.Value, error) {
	last := cosem.Null()
	if !s.last.IsZero() {
		last = cosem.DateTimeValue(cosem.NewDateTime(s.last.UTC()))
	}
	return cosem.Structure(s.entriesValue(), last), nil
}

// LoadState implements datamodel.Persistent.
func (s *Schedule) LoadState(state cosem.Value) error {
	el, ok := state.Elements()
	if state.Tag() != cosem.TagStructure || !ok || len(el) != 2 {
		return fmt.Errorf("%w: schedule state must be structure{entries, last}", datamodel.ErrTypeMismatch)
	}
	entries, err := parseEntries(el[0])
	if err != nil {
		return err
	}
	var last time.Time
	if !el[1].IsNull() {
		dt, ok := el[1].DateTime()
		if !ok {
			return fmt.Errorf("%w: last tick must be date-time", datamodel.ErrTypeMismatch)
		}
		if last, err = dt.ToTime(); err != nil {
			return fmt.Errorf("%w: last tick: %v", datamodel.ErrInvalidValue, err)
		}
	}
	s.entries = entries
	s.last = last
	return nil
}

var (
	_ datamodel.Object     = (*Schedule)(nil)
	_ datamodel.Ticker     = (*Schedule)(nil)
	_ datamodel.Persistent = (*Schedule)(nil)
)
