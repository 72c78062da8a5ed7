package cosem

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Encoded sizes of the time-like kinds.
const (
	DateSize     = 5
	TimeSize     = 4
	DateTimeSize = 12
)

// Field values with special meaning in dates and times.
const (
	NotSpecified          uint8  = 0xFF
	YearNotSpecified      uint16 = 0xFFFF
	DeviationNotSpecified int16  = -0x8000

	MonthDSTEnd   uint8 = 0xFD
	MonthDSTBegin uint8 = 0xFE

	DaySecondLast uint8 = 0xFD
	DayLast       uint8 = 0xFE
)

// ClockStatus is the status octet of a date-time.
type ClockStatus uint8

const (
	StatusInvalid       ClockStatus = 0x01
	StatusDoubtful      ClockStatus = 0x02
	StatusDifferentBase ClockStatus = 0x04
	StatusInvalidClock  ClockStatus = 0x08
	StatusDST           ClockStatus = 0x80

	StatusNotSpecified ClockStatus = 0xFF
)

// Has reports whether all bits of f are set.
func (s ClockStatus) Has(f ClockStatus) bool { return s != StatusNotSpecified && s&f == f }

// Date is a calendar date. Any field may hold its not-specified sentinel.
type Date struct {
	Year      uint16
	Month     uint8
	Day       uint8
	DayOfWeek uint8 // 1 = Monday .. 7 = Sunday
}

// Time is a time of day.
type Time struct {
	Hour       uint8
	Minute     uint8
	Second     uint8
	Hundredths uint8
}

// DateTime is a date and time with deviation and clock status.
//
// Deviation is the number of minutes to add to local time to obtain UTC,
// so Central European Time carries -60.
type DateTime struct {
	Date
	Time
	Deviation int16
	Status    ClockStatus
}

// AnyDate returns a date with every field not specified.
func AnyDate() Date {
	return Date{Year: YearNotSpecified, Month: NotSpecified, Day: NotSpecified, DayOfWeek: NotSpecified}
}

// AnyTime returns a time with every field not specified.
func AnyTime() Time {
	return Time{Hour: NotSpecified, Minute: NotSpecified, Second: NotSpecified, Hundredths: NotSpecified}
}

// AnyDateTime returns a date-time with every field not specified.
func AnyDateTime() DateTime {
	return DateTime{Date: AnyDate(), Time: AnyTime(), Deviation: DeviationNotSpecified, Status: StatusNotSpecified}
}

// NewDate returns the date of t.
func NewDate(t time.Time) Date {
	return Date{
		Year:      uint16(t.Year()),
		Month:     uint8(t.Month()),
		Day:       uint8(t.Day()),
		DayOfWeek: weekday(t.Weekday()),
	}
}

// NewTime returns the time of day of t.
func NewTime(t time.Time) Time {
	return Time{
		Hour:       uint8(t.Hour()),
		Minute:     uint8(t.Minute()),
		Second:     uint8(t.Second()),
		Hundredths: uint8(t.Nanosecond() / 10_000_000),
	}
}

// NewDateTime returns the date-time of t in t's location. The deviation is
// taken from the location offset and the DST status bit from t.IsDST.
func NewDateTime(t time.Time) DateTime {
	_, offset := t.Zone()
	dt := DateTime{
		Date:      NewDate(t),
		Time:      NewTime(t),
		Deviation: int16(-offset / 60),
	}
	if t.IsDST() {
		dt.Status |= StatusDST
	}
	return dt
}

func weekday(w time.Weekday) uint8 {
	if w == time.Sunday {
		return 7
	}
	return uint8(w)
}

// Bytes returns the 5-octet encoding of d.
func (d Date) Bytes() []byte {
	b := make([]byte, DateSize)
	d.put(b)
	return b
}

func (d Date) put(b []byte) {
	binary.BigEndian.PutUint16(b[0:2], d.Year)
	b[2] = d.Month
	b[3] = d.Day
	b[4] = d.DayOfWeek
}

// ParseDate decodes a 5-octet date.
func ParseDate(b []byte) (Date, error) {
	if len(b) != DateSize {
		return Date{}, fmt.Errorf("%w: date needs %d octets, got %d", ErrInvalidValue, DateSize, len(b))
	}
	return Date{
		Year:      binary.BigEndian.Uint16(b[0:2]),
		Month:     b[2],
		Day:       b[3],
		DayOfWeek: b[4],
	}, nil
}

// Bytes returns the 4-octet encoding of t.
func (t Time) Bytes() []byte {
	return []byte{t.Hour, t.Minute, t.Second, t.Hundredths}
}

// ParseTime decodes a 4-octet time.
func ParseTime(b []byte) (Time, error) {
	if len(b) != TimeSize {
		return Time{}, fmt.Errorf("%w: time needs %d octets, got %d", ErrInvalidValue, TimeSize, len(b))
	}
	return Time{Hour: b[0], Minute: b[1], Second: b[2], Hundredths: b[3]}, nil
}

// Bytes returns the 12-octet encoding of dt.
func (dt DateTime) Bytes() []byte {
	b := make([]byte, DateTimeSize)
	dt.Date.put(b[0:5])
	copy(b[5:9], dt.Time.Bytes())
	binary.BigEndian.PutUint16(b[9:11], uint16(dt.Deviation))
	b[11] = uint8(dt.Status)
	return b
}

// ParseDateTime decodes a 12-octet date-time.
func ParseDateTime(b []byte) (DateTime, error) {
	if len(b) != DateTimeSize {
		return DateTime{}, fmt.Errorf("%w: date-time needs %d octets, got %d", ErrInvalidValue, DateTimeSize, len(b))
	}
	d, _ := ParseDate(b[0:5])
	t, _ := ParseTime(b[5:9])
	return DateTime{
		Date:      d,
		Time:      t,
		Deviation: int16(binary.BigEndian.Uint16(b[9:11])),
		Status:    ClockStatus(b[11]),
	}, nil
}

// Validate checks every field against its range or sentinel.
func (d Date) Validate() error {
	switch {
	case d.Month != NotSpecified && d.Month != MonthDSTBegin && d.Month != MonthDSTEnd && (d.Month < 1 || d.Month > 12):
		return fmt.Errorf("%w: month %d", ErrInvalidValue, d.Month)
	case d.Day != NotSpecified && d.Day != DayLast && d.Day != DaySecondLast && (d.Day < 1 || d.Day > 31):
		return fmt.Errorf("%w: day of month %d", ErrInvalidValue, d.Day)
	case d.DayOfWeek != NotSpecified && (d.DayOfWeek < 1 || d.DayOfWeek > 7):
		return fmt.Errorf("%w: day of week %d", ErrInvalidValue, d.DayOfWeek)
	}
	return nil
}

// Validate checks every field against its range or sentinel.
func (t Time) Validate() error {
	switch {
	case t.Hour != NotSpecified && t.Hour > 23:
		return fmt.Errorf("%w: hour %d", ErrInvalidValue, t.Hour)
	case t.Minute != NotSpecified && t.Minute > 59:
		return fmt.Errorf("%w: minute %d", ErrInvalidValue, t.Minute)
	case t.Second != NotSpecified && t.Second > 59:
		return fmt.Errorf("%w: second %d", ErrInvalidValue, t.Second)
	case t.Hundredths != NotSpecified && t.Hundredths > 99:
		return fmt.Errorf("%w: hundredths %d", ErrInvalidValue, t.Hundredths)
	}
	return nil
}

// Validate checks the date, time and deviation fields.
func (dt DateTime) Validate() error {
	if err := dt.Date.Validate(); err != nil {
		return err
	}
	if err := dt.Time.Validate(); err != nil {
		return err
	}
	if dt.Deviation != DeviationNotSpecified && (dt.Deviation < -720 || dt.Deviation > 720) {
		return fmt.Errorf("%w: deviation %d", ErrInvalidValue, dt.Deviation)
	}
	return nil
}

// IsSpecified reports whether the date names a single concrete day.
// Day of week is redundant and may be left unspecified.
func (d Date) IsSpecified() bool {
	return d.Year != YearNotSpecified &&
		d.Month >= 1 && d.Month <= 12 &&
		d.Day >= 1 && d.Day <= 31
}

// IsSpecified reports whether hour, minute and second are given.
// Unspecified hundredths count as zero.
func (t Time) IsSpecified() bool {
	return t.Hour != NotSpecified && t.Minute != NotSpecified && t.Second != NotSpecified
}

// IsSpecified reports whether dt names a single instant.
func (dt DateTime) IsSpecified() bool {
	return dt.Date.IsSpecified() && dt.Time.IsSpecified() && dt.Deviation != DeviationNotSpecified
}

// ToTime converts a fully specified date-time to a time.Time in a fixed
// zone derived from the deviation.
func (dt DateTime) ToTime() (time.Time, error) {
	if !dt.IsSpecified() {
		return time.Time{}, ErrNotSpecified
	}
	loc := time.FixedZone("", -int(dt.Deviation)*60)
	return dt.In(loc), nil
}

// In interprets the date and time fields as wall clock time in loc,
// ignoring the deviation. Unspecified hundredths count as zero.
func (dt DateTime) In(loc *time.Location) time.Time {
	hs := 0
	if dt.Hundredths != NotSpecified {
		hs = int(dt.Hundredths)
	}
	return time.Date(int(dt.Year), time.Month(dt.Month), int(dt.Day),
		int(dt.Hour), int(dt.Minute), int(dt.Second), hs*10_000_000, loc)
}

// Equal reports whether two dates agree on every field that both specify.
func (d Date) Equal(o Date) bool {
	return eq16(d.Year, o.Year) && eq8(d.Month, o.Month) &&
		eq8(d.Day, o.Day) && eq8(d.DayOfWeek, o.DayOfWeek)
}

// Equal reports whether two times agree on every field that both specify.
func (t Time) Equal(o Time) bool {
	return eq8(t.Hour, o.Hour) && eq8(t.Minute, o.Minute) &&
		eq8(t.Second, o.Second) && eq8(t.Hundredths, o.Hundredths)
}

// Equal reports whether two date-times agree on every field that both
// specify, including deviation and status.
func (dt DateTime) Equal(o DateTime) bool {
	return dt.Date.Equal(o.Date) && dt.Time.Equal(o.Time) &&
		(dt.Deviation == o.Deviation || dt.Deviation == DeviationNotSpecified || o.Deviation == DeviationNotSpecified) &&
		eq8(uint8(dt.Status), uint8(o.Status))
}

func eq8(a, b uint8) bool { return a == b || a == NotSpecified || b == NotSpecified }
func eq16(a, b uint16) bool { return a == b || a == YearNotSpecified || b == YearNotSpecified }
func cmp8(a, b uint8) int { return cmpField(a == NotSpecified || b == NotSpecified, int(a), int(b)) }
func cmp16(a, b uint16) int { return cmpField(a == YearNotSpecified || b == YearNotSpecified, int(a), int(b)) }
func cmpField(wild bool, a, b int) int {
	switch {
	case wild || a == b:
		return 0
	case a < b:
		return -1
	}
	return 1
}

// Compare orders two dates field by field. Fields unspecified on either
// side are skipped.
func (d Date) Compare(o Date) int {
	if c := cmp16(d.Year, o.Year); c != 0 {
		return c
	}
	if c := cmp8(d.Month, o.Month); c != 0 {
		return c
	}
	return cmp8(d.Day, o.Day)
}

// Compare orders two times field by field, skipping unspecified fields.
func (t Time) Compare(o Time) int {
	for _, c := range [...]int{
		cmp8(t.Hour, o.Hour), cmp8(t.Minute, o.Minute),
		cmp8(t.Second, o.Second), cmp8(t.Hundredths, o.Hundredths),
	} {
		if c != 0 {
			return c
		}
	}
	return 0
}

// Compare orders two date-times. When both name a single instant they are
// compared as instants; otherwise the date and time fields are compared in
// order of significance, skipping fields unspecified on either side.
func (dt DateTime) Compare(o DateTime) int {
	if dt.IsSpecified() && o.IsSpecified() {
		a, _ := dt.ToTime()
		b, _ := o.ToTime()
		return a.Compare(b)
	}
	if c := dt.Date.Compare(o.Date); c != 0 {
		return c
	}
	return dt.Time.Compare(o.Time)
}

// Matches reports whether the concrete date c falls on the pattern d.
// Last-day sentinels resolve against c's month, and a day of month combined
// with a day of week selects the first such weekday on or after that day
// (or on or before it for the last-day sentinels). DST month sentinels
// never match; resolve them with the clock first.
func (d Date) Matches(c Date) bool {
	if !c.IsSpecified() {
		return false
	}
	if d.Year != YearNotSpecified && d.Year != c.Year {
		return false
	}
	switch d.Month {
	case NotSpecified:
	case MonthDSTBegin, MonthDSTEnd:
		return false
	default:
		if d.Month != c.Month {
			return false
		}
	}
	if d.Day == NotSpecified {
		return d.DayOfWeek == NotSpecified || d.DayOfWeek == c.weekday()
	}
	r, ok := Date{Year: c.Year, Month: c.Month, Day: d.Day, DayOfWeek: d.DayOfWeek}.Resolve()
	return ok && r.Day == c.Day
}

// Resolve returns the concrete day named by a date whose year and month
// are specified. ok is false when the pattern names no day in that month.
func (d Date) Resolve() (Date, bool) {
	if d.Year == YearNotSpecified || d.Month < 1 || d.Month > 12 {
		return Date{}, false
	}
	last := daysIn(int(d.Year), time.Month(d.Month))
	day := int(d.Day)
	backward := false
	switch d.Day {
	case NotSpecified:
		return Date{}, false
	case DayLast:
		day, backward = last, true
	case DaySecondLast:
		day, backward = last-1, true
	}
	if day < 1 || day > last {
		return Date{}, false
	}
	if d.DayOfWeek != NotSpecified {
		for {
			wd := weekday(time.Date(int(d.Year), time.Month(d.Month), day, 0, 0, 0, 0, time.UTC).Weekday())
			if wd == d.DayOfWeek {
				break
			}
			if backward {
				day--
			} else {
				day++
			}
			if day < 1 || day > last {
				return Date{}, false
			}
		}
	}
	t := time.Date(int(d.Year), time.Month(d.Month), day, 0, 0, 0, 0, time.UTC)
	return NewDate(t), true
}

func (d Date) weekday() uint8 {
	if d.DayOfWeek != NotSpecified {
		return d.DayOfWeek
	}
	return weekday(time.Date(int(d.Year), time.Month(d.Month), int(d.Day), 0, 0, 0, 0, time.UTC).Weekday())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Matches reports whether the concrete time c agrees with every field t
// specifies.
func (t Time) Matches(c Time) bool {
	return (t.Hour == NotSpecified || t.Hour == c.Hour) &&
		(t.Minute == NotSpecified || t.Minute == c.Minute) &&
		(t.Second == NotSpecified || t.Second == c.Second) &&
		(t.Hundredths == NotSpecified || t.Hundredths == c.Hundredths)
}

// String formats the date as YYYY-MM-DD with * for unspecified fields.
func (d Date) String() string {
	y := "****"
	if d.Year != YearNotSpecified {
		y = fmt.Sprintf("%04d", d.Year)
	}
	return y + "-" + field(d.Month) + "-" + field(d.Day)
}

// String formats the time as hh:mm:ss.cc with * for unspecified fields.
func (t Time) String() string {
	return field(t.Hour) + ":" + field(t.Minute) + ":" + field(t.Second) + "." + field(t.Hundredths)
}

// String formats the date-time with its deviation and status.
func (dt DateTime) String() string {
	dev := "dev=*"
	if dt.Deviation != DeviationNotSpecified {
		dev = fmt.Sprintf("dev=%d", dt.Deviation)
	}
	return fmt.Sprintf("%s %s %s status=%02X", dt.Date, dt.Time, dev, uint8(dt.Status))
}

func field(v uint8) string {
	switch v {
	case NotSpecified:
		return "**"
	case 0xFE:
		return "FE"
	case 0xFD:
		return "FD"
	}
	return fmt.Sprintf("%02d", v)
}
