package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/backkem/cosem/pkg/cosem"
)

var tagsByName = func() map[string]cosem.Tag {
	m := make(map[string]cosem.Tag)
	for t := cosem.TagNull; t <= cosem.TagTime; t++ {
		if name := t.String(); name != "unknown" {
			m[name] = t
		}
	}
	m[cosem.TagDontCare.String()] = cosem.TagDontCare
	return m
}()

// ParseTag resolves a data kind by its IEC 62056-6-2 name, e.g.
// "double-long-unsigned".
func ParseTag(name string) (cosem.Tag, error) {
	t, ok := tagsByName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: unknown data type %q", ErrInvalid, name)
	}
	return t, nil
}

// ParseValue coerces a YAML literal into a value of kind t.
//
// Numbers and booleans accept any literal cast can convert. Octet-strings
// are hex. Dates are "YYYY-MM-DD", times "hh:mm[:ss]" and date-times the
// two joined by a space, with "*" for any field not specified. A nil raw
// gives the zero value of t.
func ParseValue(t cosem.Tag, raw any) (cosem.Value, error) {
	if raw == nil {
		if t == cosem.TagDontCare {
			return cosem.Null(), nil
		}
		return cosem.Zero(t)
	}
	switch t {
	case cosem.TagNull:
		return cosem.Null(), nil
	case cosem.TagBoolean:
		b, err := cast.ToBoolE(raw)
		if err != nil {
			return cosem.Value{}, valueError(t, raw, err)
		}
		return cosem.Bool(b), nil
	case cosem.TagInteger, cosem.TagLong, cosem.TagDoubleLong, cosem.TagLong64:
		n, err := cast.ToInt64E(raw)
		if err != nil {
			return cosem.Value{}, valueError(t, raw, err)
		}
		return cosem.FromInt(t, n)
	case cosem.TagUnsigned, cosem.TagLongUnsigned, cosem.TagDoubleLongUnsigned, cosem.TagLong64Unsigned, cosem.TagEnum:
		n, err := cast.ToUint64E(raw)
		if err != nil {
			return cosem.Value{}, valueError(t, raw, err)
		}
		return cosem.FromUint(t, n)
	case cosem.TagFloat32, cosem.TagFloat64:
		f, err := cast.ToFloat64E(raw)
		if err != nil {
			return cosem.Value{}, valueError(t, raw, err)
		}
		return cosem.FromFloat(t, f)
	case cosem.TagOctetString:
		b, err := parseHex(cast.ToString(raw))
		if err != nil {
			return cosem.Value{}, valueError(t, raw, err)
		}
		return cosem.OctetString(b), nil
	case cosem.TagVisibleString:
		s, err := cast.ToStringE(raw)
		if err != nil {
			return cosem.Value{}, valueError(t, raw, err)
		}
		v := cosem.VisibleString(s)
		return v, v.Validate()
	case cosem.TagUTF8String:
		s, err := cast.ToStringE(raw)
		if err != nil {
			return cosem.Value{}, valueError(t, raw, err)
		}
		return cosem.UTF8String(s), nil
	case cosem.TagDate:
		d, err := ParseDate(cast.ToString(raw))
		if err != nil {
			return cosem.Value{}, err
		}
		return cosem.DateValue(d), nil
	case cosem.TagTime:
		tm, err := ParseTime(cast.ToString(raw))
		if err != nil {
			return cosem.Value{}, err
		}
		return cosem.TimeValue(tm), nil
	case cosem.TagDateTime:
		dt, err := ParseDateTime(cast.ToString(raw))
		if err != nil {
			return cosem.Value{}, err
		}
		return cosem.DateTimeValue(dt), nil
	}
	return cosem.Value{}, fmt.Errorf("%w: no literal form for %s", ErrInvalid, t)
}

func valueError(t cosem.Tag, raw any, err error) error {
	return fmt.Errorf("%w: %v is not a valid %s: %v", ErrInvalid, raw, t, err)
}

func parseHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "").Replace(s)
	return hex.DecodeString(s)
}

var weekdays = map[string]uint8{
	"mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6, "sun": 7,
}

// ParseDate parses "YYYY-MM-DD" with an optional trailing weekday
// ("mon".."sun"). Any field may be "*". The day may also be "last" or
// "last-1" for the last and second last day of the month.
func ParseDate(s string) (cosem.Date, error) {
	d := cosem.AnyDate()
	fields := strings.Fields(s)
	if len(fields) == 0 || len(fields) > 2 {
		return d, fmt.Errorf("%w: date %q", ErrInvalid, s)
	}
	parts := strings.Split(fields[0], "-")
	if len(parts) == 4 && parts[3] == "1" && parts[2] == "last" {
		parts = []string{parts[0], parts[1], "last-1"}
	}
	if len(parts) != 3 {
		return d, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalid, s)
	}
	if parts[0] != "*" {
		y, err := cast.ToUint16E(decimal(parts[0]))
		if err != nil {
			return d, fmt.Errorf("%w: date %q year: %v", ErrInvalid, s, err)
		}
		d.Year = y
	}
	var err error
	if d.Month, err = field(parts[1]); err != nil {
		return d, fmt.Errorf("%w: date %q month: %v", ErrInvalid, s, err)
	}
	switch parts[2] {
	case "last":
		d.Day = cosem.DayLast
	case "last-1":
		d.Day = cosem.DaySecondLast
	default:
		if d.Day, err = field(parts[2]); err != nil {
			return d, fmt.Errorf("%w: date %q day: %v", ErrInvalid, s, err)
		}
	}
	if len(fields) == 2 {
		dow, ok := weekdays[strings.ToLower(fields[1])]
		if !ok {
			return d, fmt.Errorf("%w: date %q weekday %q", ErrInvalid, s, fields[1])
		}
		d.DayOfWeek = dow
	}
	if err := d.Validate(); err != nil {
		return d, fmt.Errorf("%w: date %q: %v", ErrInvalid, s, err)
	}
	return d, nil
}

// ParseTime parses "hh:mm" or "hh:mm:ss". Any field may be "*". Seconds
// default to zero and hundredths are always zero.
func ParseTime(s string) (cosem.Time, error) {
	t := cosem.Time{}
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return t, fmt.Errorf("%w: time %q must be hh:mm[:ss]", ErrInvalid, s)
	}
	var err error
	if t.Hour, err = field(parts[0]); err != nil {
		return t, fmt.Errorf("%w: time %q hour: %v", ErrInvalid, s, err)
	}
	if t.Minute, err = field(parts[1]); err != nil {
		return t, fmt.Errorf("%w: time %q minute: %v", ErrInvalid, s, err)
	}
	if len(parts) == 3 {
		if t.Second, err = field(parts[2]); err != nil {
			return t, fmt.Errorf("%w: time %q second: %v", ErrInvalid, s, err)
		}
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("%w: time %q: %v", ErrInvalid, s, err)
	}
	return t, nil
}

// ParseDateTime parses a date and a time separated by a space, with the
// weekday, if any, between them. Deviation and status are not specified.
func ParseDateTime(s string) (cosem.DateTime, error) {
	fields := strings.Fields(s)
	if len(fields) < 2 || len(fields) > 3 {
		return cosem.DateTime{}, fmt.Errorf("%w: date-time %q", ErrInvalid, s)
	}
	d, err := ParseDate(strings.Join(fields[:len(fields)-1], " "))
	if err != nil {
		return cosem.DateTime{}, err
	}
	t, err := ParseTime(fields[len(fields)-1])
	if err != nil {
		return cosem.DateTime{}, err
	}
	return cosem.DateTime{Date: d, Time: t, Deviation: cosem.DeviationNotSpecified, Status: cosem.StatusNotSpecified}, nil
}

func field(s string) (uint8, error) {
	if s == "*" {
		return cosem.NotSpecified, nil
	}
	return cast.ToUint8E(decimal(s))
}

// decimal strips leading zeros, which cast would read as an octal prefix.
func decimal(s string) string {
	if t := strings.TrimLeft(s, "0"); t != "" {
		return t
	}
	return "0"
}
