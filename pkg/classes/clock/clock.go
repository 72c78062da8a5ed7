// Package clock implements the Clock interface class (class_id 8).
//
// The Clock keeps the device time as an offset over a host TimeSource, so
// adjusting the COSEM time never touches the host clock. Local time is
// derived from the time zone and, when enabled, the daylight saving rule.
package clock

import (
	"context"
	"fmt"
	"time"

	"github.com/backkem/cosem/pkg/cosem"
	"github.com/backkem/cosem/pkg/datamodel"
	"github.com/backkem/cosem/pkg/obis"
)

// Class constants.
const (
	ClassID = datamodel.ClassClock
	Version = 0
)

// Attribute IDs.
const (
	AttrTime         datamodel.AttributeID = 2
	AttrTimeZone     datamodel.AttributeID = 3
	AttrStatus       datamodel.AttributeID = 4
	AttrDSTBegin     datamodel.AttributeID = 5
	AttrDSTEnd       datamodel.AttributeID = 6
	AttrDSTDeviation datamodel.AttributeID = 7
	AttrDSTEnabled   datamodel.AttributeID = 8
	AttrClockBase    datamodel.AttributeID = 9
)

// Method IDs.
const (
	MethodAdjustToQuarter         datamodel.MethodID = 1
	MethodAdjustToMeasuringPeriod datamodel.MethodID = 2
	MethodAdjustToMinute          datamodel.MethodID = 3
	MethodAdjustToPresetTime      datamodel.MethodID = 4
	MethodPresetAdjustingTime     datamodel.MethodID = 5
	MethodShiftTime               datamodel.MethodID = 6
)

// TimeBase is the clock_base enumeration.
type TimeBase uint8

const (
	BaseNotDefined TimeBase = iota
	BaseInternalCrystal
	BaseMains50Hz
	BaseMains60Hz
	BaseGPS
	BaseRadio
)

// MaxShift bounds the shift_time parameter.
const MaxShift = 900 * time.Second

// Config provides the initial state of a Clock.
type Config struct {
	// LogicalName defaults to 0-0:1.0.0.255.
	LogicalName obis.Code

	// TimeSource is the host clock. Defaults to the system clock.
	TimeSource datamodel.TimeSource

	// TimeZone is the deviation of local standard time in minutes, using
	// the date-time convention (UTC = local + deviation).
	TimeZone int16

	// DSTBegin and DSTEnd are the daylight saving transition patterns in
	// local standard time, typically with the year not specified.
	DSTBegin cosem.DateTime
	DSTEnd   cosem.DateTime

	// DSTDeviation is the daylight saving offset in minutes.
	DSTDeviation int8

	DSTEnabled bool

	ClockBase TimeBase

	// Status is the initial clock status, e.g. cosem.StatusInvalid on a
	// device without a battery-backed RTC.
	Status cosem.ClockStatus

	// MinTime and MaxTime bound time adjustments. Zero means unbounded.
	MinTime time.Time
	MaxTime time.Time

	// MeasuringPeriod is the grid for adjust_to_measuring_period.
	// Defaults to 15 minutes.
	MeasuringPeriod time.Duration
}

func (c *Config) applyDefaults() {
	if c.LogicalName == (obis.Code{}) {
		c.LogicalName = obis.Clock
	}
	if c.TimeSource == nil {
		c.TimeSource = datamodel.SystemTime{}
	}
	if c.MeasuringPeriod <= 0 {
		c.MeasuringPeriod = 15 * time.Minute
	}
	if c.DSTBegin == (cosem.DateTime{}) {
		c.DSTBegin = cosem.AnyDateTime()
	}
	if c.DSTEnd == (cosem.DateTime{}) {
		c.DSTEnd = cosem.AnyDateTime()
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := checkTimeZone(int64(c.TimeZone)); err != nil {
		return err
	}
	if err := checkDSTDeviation(int64(c.DSTDeviation)); err != nil {
		return err
	}
	if !c.MinTime.IsZero() && !c.MaxTime.IsZero() && c.MaxTime.Before(c.MinTime) {
		return fmt.Errorf("clock: max time before min time")
	}
	return nil
}

func checkTimeZone(tz int64) error {
	if tz < -840 || tz > 840 {
		return fmt.Errorf("%w: time zone %d outside -840..840 minutes", datamodel.ErrInvalidValue, tz)
	}
	return nil
}

func checkDSTDeviation(d int64) error {
	if d < -120 || d > 120 {
		return fmt.Errorf("%w: daylight saving deviation %d outside -120..120 minutes", datamodel.ErrInvalidValue, d)
	}
	return nil
}

type preset struct {
	time, from, to cosem.DateTime
}

// Clock implements the Clock interface class.
type Clock struct {
	datamodel.Base
	source datamodel.TimeSource
	offset time.Duration
	status cosem.ClockStatus

	timeZone     int16
	dstBegin     cosem.DateTime
	dstEnd       cosem.DateTime
	dstDeviation int8
	dstEnabled   bool
	clockBase    TimeBase

	min, max        time.Time
	measuringPeriod time.Duration
	preset          *preset
}

// New creates a Clock.
func New(cfg Config) (*Clock, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	attrs := []datamodel.AttributeEntry{
		datamodel.NewReadWriteAttribute(AttrTime, "time", cosem.TagDateTime),
		datamodel.NewReadWriteAttribute(AttrTimeZone, "time_zone", cosem.TagLong),
		datamodel.NewReadOnlyAttribute(AttrStatus, "status", cosem.TagUnsigned),
		datamodel.NewReadWriteAttribute(AttrDSTBegin, "daylight_savings_begin", cosem.TagDateTime),
		datamodel.NewReadWriteAttribute(AttrDSTEnd, "daylight_savings_end", cosem.TagDateTime),
		datamodel.NewReadWriteAttribute(AttrDSTDeviation, "daylight_savings_deviation", cosem.TagInteger),
		datamodel.NewReadWriteAttribute(AttrDSTEnabled, "daylight_savings_enabled", cosem.TagBoolean),
		datamodel.NewReadOnlyAttribute(AttrClockBase, "clock_base", cosem.TagEnum),
	}
	methods := []datamodel.MethodEntry{
		datamodel.NewMethodEntry(MethodAdjustToQuarter, "adjust_to_quarter"),
		datamodel.NewMethodEntry(MethodAdjustToMeasuringPeriod, "adjust_to_measuring_period"),
		datamodel.NewMethodEntry(MethodAdjustToMinute, "adjust_to_minute"),
		datamodel.NewMethodEntry(MethodAdjustToPresetTime, "adjust_to_preset_time"),
		datamodel.NewMethodEntry(MethodPresetAdjustingTime, "preset_adjusting_time"),
		datamodel.NewMethodEntry(MethodShiftTime, "shift_time"),
	}
	return &Clock{
		Base:            datamodel.NewBase(ClassID, Version, cfg.LogicalName, attrs, methods),
		source:          cfg.TimeSource,
		status:          cfg.Status,
		timeZone:        cfg.TimeZone,
		dstBegin:        cfg.DSTBegin,
		dstEnd:          cfg.DSTEnd,
		dstDeviation:    cfg.DSTDeviation,
		dstEnabled:      cfg.DSTEnabled,
		clockBase:       cfg.ClockBase,
		min:             cfg.MinTime,
		max:             cfg.MaxTime,
		measuringPeriod: cfg.MeasuringPeriod,
	}, nil
}

// instant returns the current device time.
func (c *Clock) instant() time.Time {
	return c.source.Now().Add(c.offset)
}

// Now implements datamodel.TimeSource. The result is in the clock's
// current local zone.
func (c *Clock) Now() time.Time {
	t := c.instant()
	return t.In(c.location(t))
}

// DateTime implements datamodel.DateTimeSource.
func (c *Clock) DateTime() cosem.DateTime {
	t := c.instant()
	dt := cosem.NewDateTime(t.In(c.location(t)))
	dt.Status = c.status
	if c.InDST(t) {
		dt.Status |= cosem.StatusDST
	}
	return dt
}

// Status returns the clock status without the DST bit.
func (c *Clock) Status() cosem.ClockStatus { return c.status }

// SetStatus replaces the clock status from the device side, e.g. after a
// power failure without RTC backup.
func (c *Clock) SetStatus(s cosem.ClockStatus) { c.status = s &^ cosem.StatusDST }

// Deviation returns the deviation in effect at t, including daylight
// saving.
func (c *Clock) Deviation(t time.Time) int16 {
	if c.InDST(t) {
		return c.timeZone - int16(c.dstDeviation)
	}
	return c.timeZone
}

func (c *Clock) location(t time.Time) *time.Location {
	return time.FixedZone("", -int(c.Deviation(t))*60)
}

func (c *Clock) standardLocation() *time.Location {
	return time.FixedZone("", -int(c.timeZone)*60)
}

// InDST reports whether daylight saving is in effect at t. The begin and
// end patterns are resolved in t's year in local standard time; when end
// comes before begin the season spans the turn of the year.
func (c *Clock) InDST(t time.Time) bool {
	if !c.dstEnabled {
		return false
	}
	loc := c.standardLocation()
	year := t.In(loc).Year()
	begin, ok1 := resolveTransition(c.dstBegin, year, loc)
	end, ok2 := resolveTransition(c.dstEnd, year, loc)
	if !ok1 || !ok2 {
		return false
	}
	if begin.Before(end) {
		return !t.Before(begin) && t.Before(end)
	}
	return !t.Before(begin) || t.Before(end)
}

func resolveTransition(p cosem.DateTime, year int, loc *time.Location) (time.Time, bool) {
	d := p.Date
	if d.Year == cosem.YearNotSpecified {
		d.Year = uint16(year)
	} else if int(d.Year) != year {
		return time.Time{}, false
	}
	r, ok := d.Resolve()
	if !ok {
		return time.Time{}, false
	}
	f := func(v uint8) int {
		if v == cosem.NotSpecified {
			return 0
		}
		return int(v)
	}
	return time.Date(int(r.Year), time.Month(r.Month), int(r.Day),
		f(p.Hour), f(p.Minute), f(p.Second), 0, loc), true
}

// toInstant converts a date-time written by a client. An unspecified
// deviation means the clock's current local time.
func (c *Clock) toInstant(dt cosem.DateTime) (time.Time, error) {
	if !dt.Date.IsSpecified() || !dt.Time.IsSpecified() {
		return time.Time{}, fmt.Errorf("%w: time must be fully specified", datamodel.ErrInvalidValue)
	}
	if dt.Deviation == cosem.DeviationNotSpecified {
		return dt.In(c.location(c.instant())), nil
	}
	return dt.ToTime()
}

// Adjust sets the device time to t. t must lie within the configured
// bounds. A successful adjustment clears the invalid and doubtful status
// bits.
func (c *Clock) Adjust(t time.Time) error {
	if (!c.min.IsZero() && t.Before(c.min)) || (!c.max.IsZero() && t.After(c.max)) {
		return fmt.Errorf("%w: time %s outside allowed range", datamodel.ErrInvalidValue, t.Format(time.RFC3339))
	}
	c.offset = t.Sub(c.source.Now())
	c.status &^= cosem.StatusInvalid | cosem.StatusDoubtful
	return nil
}

// roundLocal rounds the local device time to the nearest multiple of d.
func (c *Clock) roundLocal(d time.Duration) time.Time {
	t := c.Now()
	_, off := t.Zone()
	shift := time.Duration(off) * time.Second
	return t.Add(shift).Round(d).Add(-shift)
}

// GetAttribute implements datamodel.Object.
func (c *Clock) GetAttribute(ctx context.Context, id datamodel.AttributeID) (cosem.Value, error) {
	if err := c.CheckGet(ctx, id); err != nil {
		return cosem.Value{}, err
	}
	switch id {
	case datamodel.AttrLogicalName:
		return c.GetLogicalName(), nil
	case AttrTime:
		return cosem.DateTimeValue(c.DateTime()), nil
	case AttrTimeZone:
		return cosem.Long(c.timeZone), nil
	case AttrStatus:
		return cosem.Unsigned(uint8(c.DateTime().Status)), nil
	case AttrDSTBegin:
		return cosem.DateTimeValue(c.dstBegin), nil
	case AttrDSTEnd:
		return cosem.DateTimeValue(c.dstEnd), nil
	case AttrDSTDeviation:
		return cosem.Integer(c.dstDeviation), nil
	case AttrDSTEnabled:
		return cosem.Bool(c.dstEnabled), nil
	default:
		return cosem.Enum(uint8(c.clockBase)), nil
	}
}

// SetAttribute implements datamodel.Object.
func (c *Clock) SetAttribute(ctx context.Context, id datamodel.AttributeID, v cosem.Value) error {
	if err := c.CheckSet(ctx, id, v); err != nil {
		return err
	}
	var err error
	switch id {
	case AttrTime:
		dt, _ := v.DateTime()
		var t time.Time
		if t, err = c.toInstant(dt); err == nil {
			err = c.Adjust(t)
		}
	case AttrTimeZone:
		n, _ := v.Int()
		if err = checkTimeZone(n); err == nil {
			c.timeZone = int16(n)
		}
	case AttrDSTBegin:
		c.dstBegin, _ = v.DateTime()
	case AttrDSTEnd:
		c.dstEnd, _ = v.DateTime()
	case AttrDSTDeviation:
		n, _ := v.Int()
		if err = checkDSTDeviation(n); err == nil {
			c.dstDeviation = int8(n)
		}
	case AttrDSTEnabled:
		c.dstEnabled, _ = v.Bool()
	}
	if err != nil {
		return c.AttrError(id, err)
	}
	return nil
}

// InvokeMethod implements datamodel.Object.
func (c *Clock) InvokeMethod(ctx context.Context, id datamodel.MethodID, param cosem.Value) (cosem.Value, error) {
	if err := c.CheckInvoke(ctx, id); err != nil {
		return cosem.Value{}, err
	}
	var err error
	switch id {
	case MethodAdjustToQuarter:
		err = c.Adjust(c.roundLocal(15 * time.Minute))
	case MethodAdjustToMeasuringPeriod:
		err = c.Adjust(c.roundLocal(c.measuringPeriod))
	case MethodAdjustToMinute:
		err = c.Adjust(c.roundLocal(time.Minute))
	case MethodAdjustToPresetTime:
		err = c.adjustToPreset()
	case MethodPresetAdjustingTime:
		err = c.presetAdjustingTime(param)
	case MethodShiftTime:
		err = c.shiftTime(param)
	}
	if err != nil {
		return cosem.Value{}, c.MethodError(id, err)
	}
	return cosem.Null(), nil
}

func (c *Clock) presetAdjustingTime(param cosem.Value) error {
	e, ok := param.Elements()
	if param.Tag() != cosem.TagStructure || !ok || len(e) != 3 {
		return fmt.Errorf("%w: preset must be structure{preset_time, validity_interval_start, validity_interval_end}", datamodel.ErrTypeMismatch)
	}
	var p preset
	for i, dst := range []*cosem.DateTime{&p.time, &p.from, &p.to} {
		dt, ok := e[i].DateTime()
		if !ok {
			return fmt.Errorf("%w: preset element %d must be date-time", datamodel.ErrTypeMismatch, i+1)
		}
		*dst = dt
	}
	if _, err := c.toInstant(p.time); err != nil {
		return err
	}
	c.preset = &p
	return nil
}

func (c *Clock) adjustToPreset() error {
	if c.preset == nil {
		return fmt.Errorf("%w: no preset time", datamodel.ErrTemporaryFailure)
	}
	now := c.DateTime()
	if now.Compare(c.preset.from) < 0 || now.Compare(c.preset.to) > 0 {
		return fmt.Errorf("%w: current time outside preset validity interval", datamodel.ErrInvalidValue)
	}
	t, err := c.toInstant(c.preset.time)
	if err != nil {
		return err
	}
	if err := c.Adjust(t); err != nil {
		return err
	}
	c.preset = nil
	return nil
}

func (c *Clock) shiftTime(param cosem.Value) error {
	if param.Tag() != cosem.TagLong {
		return fmt.Errorf("%w: shift_time expects long", datamodel.ErrTypeMismatch)
	}
	n, _ := param.Int()
	d := time.Duration(n) * time.Second
	if d < -MaxShift || d > MaxShift {
		return fmt.Errorf("%w: shift %ds outside -900..900", datamodel.ErrInvalidValue, n)
	}
	return c.Adjust(c.instant().Add(d))
}

// SaveState implements datamodel.Persistent as structure{offset_ms,
// status, time_zone, dst_begin, dst_end, dst_deviation, dst_enabled}.
func (c *Clock) SaveState() (cosem.Value, error) {
	return cosem.Structure(
		cosem.Long64(c.offset.Milliseconds()),
		cosem.Unsigned(uint8(c.status)),
		cosem.Long(c.timeZone),
		cosem.DateTimeValue(c.dstBegin),
		cosem.DateTimeValue(c.dstEnd),
		cosem.Integer(c.dstDeviation),
		cosem.Bool(c.dstEnabled),
	), nil
}

// LoadState implements datamodel.Persistent.
func (c *Clock) LoadState(state cosem.Value) error {
	e, ok := state.Elements()
	if !ok || len(e) != 7 {
		return fmt.Errorf("%w: clock state", datamodel.ErrTypeMismatch)
	}
	off, ok1 := e[0].Int()
	st, ok2 := e[1].Uint()
	tz, ok3 := e[2].Int()
	begin, ok4 := e[3].DateTime()
	end, ok5 := e[4].DateTime()
	dev, ok6 := e[5].Int()
	en, ok7 := e[6].Bool()
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 || !ok7 {
		return fmt.Errorf("%w: clock state", datamodel.ErrTypeMismatch)
	}
	c.offset = time.Duration(off) * time.Millisecond
	c.status = cosem.ClockStatus(st)
	c.timeZone = int16(tz)
	c.dstBegin, c.dstEnd = begin, end
	c.dstDeviation = int8(dev)
	c.dstEnabled = en
	return nil
}

var (
	_ datamodel.Object         = (*Clock)(nil)
	_ datamodel.Persistent     = (*Clock)(nil)
	_ datamodel.DateTimeSource = (*Clock)(nil)
)
