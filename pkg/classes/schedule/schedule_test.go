package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backkem/cosem/pkg/classes/data"
	"github.com/backkem/cosem/pkg/classes/scripttable"
	"github.com/backkem/cosem/pkg/cosem"
	"github.com/backkem/cosem/pkg/datamodel"
	"github.com/backkem/cosem/pkg/obis"
)

var errScript = errors.New("script failed")

// recorder stands in for a Script Table and records executed selectors.
type recorder struct {
	datamodel.Base
	calls []uint16
}

func newRecorder() *recorder {
	return &recorder{Base: datamodel.NewBase(scripttable.ClassID, 0, obis.TariffScripts,
		[]datamodel.AttributeEntry{datamodel.NewReadOnlyAttribute(scripttable.AttrScripts, "scripts", cosem.TagArray)},
		[]datamodel.MethodEntry{datamodel.NewMethodEntry(scripttable.MethodExecute, "execute")},
	)}
}

func (r *recorder) GetAttribute(ctx context.Context, id datamodel.AttributeID) (cosem.Value, error) {
	return cosem.Array(), nil
}

func (r *recorder) SetAttribute(ctx context.Context, id datamodel.AttributeID, v cosem.Value) error {
	return datamodel.ErrReadOnly
}

func (r *recorder) InvokeMethod(ctx context.Context, id datamodel.MethodID, param cosem.Value) (cosem.Value, error) {
	n, _ := param.Uint()
	r.calls = append(r.calls, uint16(n))
	if n == 99 {
		return cosem.Value{}, errScript
	}
	return cosem.Null(), nil
}

type dayTypes map[cosem.Date]uint8

func (d dayTypes) DayType(date cosem.Date) (uint8, bool) {
	date.DayOfWeek = cosem.NotSpecified
	id, ok := d[date]
	return id, ok
}

type fixedZone int16

func (z fixedZone) Deviation(time.Time) int16 { return int16(z) }

var (
	weekdays = WeekdayMask(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday)
	everyDay = WeekdayMask(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday)
	noDays   = WeekdayMask()
)

func at(h, m uint8) cosem.Time { return cosem.Time{Hour: h, Minute: m} }

func entry(idx uint16, sw cosem.Time, sel uint16, days cosem.BitString) Entry {
	return Entry{
		Index:          idx,
		Enabled:        true,
		Script:         obis.TariffScripts,
		ScriptSelector: sel,
		SwitchTime:     sw,
		ValidityWindow: ValidityUnlimited,
		Weekdays:       days,
		SpecialDays:    cosem.NewBitString(false, false, false, false, false, false, false, false),
		BeginDate:      cosem.AnyDate(),
		EndDate:        cosem.AnyDate(),
	}
}

func newSchedule(t *testing.T, cfg Config) (*Schedule, *recorder) {
	t.Helper()
	rec := newRecorder()
	reg := datamodel.NewRegistry()
	require.NoError(t, reg.Add(rec))
	cfg.Resolver = reg
	s, err := New(cfg)
	require.NoError(t, err)
	return s, rec
}

func utc(day, h, m int) time.Time { return time.Date(2026, 10, day, h, m, 0, 0, time.UTC) }

func TestSchedule_Tick(t *testing.T) {
	ctx := context.Background()
	s, rec := newSchedule(t, Config{Entries: []Entry{
		entry(2, at(22, 0), 2, everyDay),
		entry(1, at(6, 0), 1, weekdays),
	}})

	// Monday 2026-10-19. The first tick only sets the reference point.
	require.NoError(t, s.Tick(ctx, utc(19, 5, 0)))
	assert.Empty(t, rec.calls)

	require.NoError(t, s.Tick(ctx, utc(19, 6, 30)))
	assert.Equal(t, []uint16{1}, rec.calls)

	require.NoError(t, s.Tick(ctx, utc(19, 22, 0)))
	assert.Equal(t, []uint16{1, 2}, rec.calls)

	// Same instant again does nothing.
	require.NoError(t, s.Tick(ctx, utc(19, 22, 0)))
	assert.Equal(t, []uint16{1, 2}, rec.calls)

	// Catch up Tuesday to Saturday; entry 1 skips Saturday.
	rec.calls = nil
	require.NoError(t, s.Tick(ctx, utc(24, 23, 0)))
	assert.Equal(t, []uint16{1, 2, 1, 2, 1, 2, 1, 2, 2}, rec.calls)
	assert.Equal(t, utc(24, 23, 0), s.LastEvaluated())
}

func TestSchedule_SameSwitchTimeByIndex(t *testing.T) {
	s, rec := newSchedule(t, Config{Entries: []Entry{
		entry(5, at(12, 0), 5, everyDay),
		entry(4, at(12, 0), 4, everyDay),
		entry(6, at(11, 0), 6, everyDay),
	}})
	require.NoError(t, s.Tick(context.Background(), utc(19, 10, 0)))
	require.NoError(t, s.Tick(context.Background(), utc(19, 13, 0)))
	assert.Equal(t, []uint16{6, 4, 5}, rec.calls)
}

func TestSchedule_ValidityWindow(t *testing.T) {
	e := entry(1, at(6, 0), 1, everyDay)
	e.ValidityWindow = 10

	s, rec := newSchedule(t, Config{Entries: []Entry{e}})
	require.NoError(t, s.Tick(context.Background(), utc(19, 5, 0)))
	require.NoError(t, s.Tick(context.Background(), utc(19, 6, 10)))
	assert.Equal(t, []uint16{1}, rec.calls)

	s, rec = newSchedule(t, Config{Entries: []Entry{e}})
	require.NoError(t, s.Tick(context.Background(), utc(19, 5, 0)))
	require.NoError(t, s.Tick(context.Background(), utc(19, 6, 11)))
	assert.Empty(t, rec.calls)
}

func TestSchedule_WildcardHour(t *testing.T) {
	s, rec := newSchedule(t, Config{Entries: []Entry{
		entry(1, cosem.Time{Hour: cosem.NotSpecified, Minute: 30, Second: cosem.NotSpecified, Hundredths: cosem.NotSpecified}, 1, everyDay),
	}})
	require.NoError(t, s.Tick(context.Background(), utc(19, 0, 0)))
	require.NoError(t, s.Tick(context.Background(), utc(19, 3, 0)))
	assert.Equal(t, []uint16{1, 1, 1}, rec.calls)
}

func TestSchedule_SpecialDays(t *testing.T) {
	holiday := entry(6, at(6, 0), 6, noDays)
	holiday.SpecialDays = cosem.NewBitString(false, true)

	s, rec := newSchedule(t, Config{
		Entries:     []Entry{entry(1, at(6, 0), 1, weekdays), holiday},
		SpecialDays: dayTypes{{Year: 2026, Month: 10, Day: 20, DayOfWeek: cosem.NotSpecified}: 1},
	})
	ctx := context.Background()
	require.NoError(t, s.Tick(ctx, utc(19, 0, 0)))
	require.NoError(t, s.Tick(ctx, utc(21, 7, 0)))
	// Monday runs entry 1, Tuesday is special day type 1, Wednesday entry 1.
	assert.Equal(t, []uint16{1, 6, 1}, rec.calls)
}

func TestSchedule_Zone(t *testing.T) {
	s, rec := newSchedule(t, Config{
		Entries: []Entry{entry(1, at(6, 0), 1, everyDay)},
		Zone:    fixedZone(-60),
	})
	ctx := context.Background()
	require.NoError(t, s.Tick(ctx, utc(19, 4, 0)))
	require.NoError(t, s.Tick(ctx, utc(19, 4, 59)))
	assert.Empty(t, rec.calls)
	require.NoError(t, s.Tick(ctx, utc(19, 5, 0)))
	assert.Equal(t, []uint16{1}, rec.calls)
}

func TestSchedule_FailuresDoNotStopLaterEntries(t *testing.T) {
	s, rec := newSchedule(t, Config{Entries: []Entry{
		entry(1, at(6, 0), 99, everyDay),
		entry(2, at(7, 0), 2, everyDay),
	}})
	require.NoError(t, s.Tick(context.Background(), utc(19, 5, 0)))
	err := s.Tick(context.Background(), utc(19, 8, 0))
	assert.ErrorIs(t, err, errScript)
	assert.Equal(t, []uint16{99, 2}, rec.calls)
}

func TestSchedule_ExecutesScriptTable(t *testing.T) {
	reg := datamodel.NewRegistry()
	mode := data.New(data.Config{LogicalName: obis.New(0, 0, 96, 14, 0, 255), Value: cosem.Unsigned(0)})
	table, err := scripttable.New(scripttable.Config{
		LogicalName: obis.TariffScripts,
		Resolver:    reg,
		Scripts: []scripttable.Script{{ID: 3, Actions: []scripttable.Action{{
			Service:     scripttable.ServiceWriteAttribute,
			Class:       data.ClassID,
			LogicalName: mode.LogicalName(),
			Index:       int8(data.AttrValue),
			Parameter:   cosem.Unsigned(3),
		}}}},
	})
	require.NoError(t, err)
	require.NoError(t, reg.Add(mode))
	require.NoError(t, reg.Add(table))

	s, err := New(Config{Resolver: reg, Entries: []Entry{entry(1, at(6, 0), 3, everyDay)}})
	require.NoError(t, err)
	require.NoError(t, s.Tick(context.Background(), utc(19, 5, 0)))
	require.NoError(t, s.Tick(context.Background(), utc(19, 6, 0)))
	assert.True(t, mode.Value().Equal(cosem.Unsigned(3)))
}

func TestSchedule_Methods(t *testing.T) {
	ctx := context.Background()
	s, rec := newSchedule(t, Config{Entries: []Entry{
		entry(1, at(6, 0), 1, everyDay),
		entry(2, at(7, 0), 2, everyDay),
	}})

	_, err := s.InvokeMethod(ctx, MethodEnableDisable, cosem.Structure(
		cosem.LongUnsigned(1), cosem.LongUnsigned(1), cosem.LongUnsigned(0), cosem.LongUnsigned(0)))
	require.NoError(t, err)
	assert.False(t, s.Entries()[0].Enabled)
	assert.True(t, s.Entries()[1].Enabled)

	_, err = s.InvokeMethod(ctx, MethodInsert, entry(3, at(5, 0), 3, everyDay).Value())
	require.NoError(t, err)
	assert.Equal(t, uint16(3), s.Entries()[0].Index)

	_, err = s.InvokeMethod(ctx, MethodDelete, cosem.Structure(cosem.LongUnsigned(2), cosem.LongUnsigned(2)))
	require.NoError(t, err)
	assert.Len(t, s.Entries(), 2)

	require.NoError(t, s.Tick(ctx, utc(19, 0, 0)))
	require.NoError(t, s.Tick(ctx, utc(19, 8, 0)))
	assert.Equal(t, []uint16{3}, rec.calls)

	bad := entry(9, at(6, 0), 1, cosem.NewBitString(true))
	_, err = s.InvokeMethod(ctx, MethodInsert, bad.Value())
	assert.ErrorIs(t, err, datamodel.ErrInvalidValue)

	_, err = s.InvokeMethod(ctx, MethodDelete, cosem.LongUnsigned(2))
	assert.ErrorIs(t, err, datamodel.ErrTypeMismatch)

	_, err = s.InvokeMethod(ctx, MethodEnableDisable, cosem.Structure(cosem.LongUnsigned(1)))
	assert.ErrorIs(t, err, datamodel.ErrTypeMismatch)
}

func TestSchedule_EntriesAttribute(t *testing.T) {
	ctx := context.Background()
	s, _ := newSchedule(t, Config{})

	list := cosem.Array(entry(1, at(6, 0), 1, everyDay).Value(), entry(2, at(5, 0), 2, weekdays).Value())
	require.NoError(t, s.SetAttribute(ctx, AttrEntries, list))
	got, err := s.GetAttribute(ctx, AttrEntries)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())
	first, _ := got.Index(0)
	assert.True(t, first.Equal(entry(2, at(5, 0), 2, weekdays).Value()))

	dup := cosem.Array(entry(1, at(6, 0), 1, everyDay).Value(), entry(1, at(5, 0), 2, everyDay).Value())
	assert.ErrorIs(t, s.SetAttribute(ctx, AttrEntries, dup), datamodel.ErrInvalidValue)
	assert.Len(t, s.Entries(), 2)
}

func TestSchedule_State(t *testing.T) {
	ctx := context.Background()
	s, _ := newSchedule(t, Config{Entries: []Entry{entry(1, at(6, 0), 1, everyDay)}})
	require.NoError(t, s.Tick(ctx, utc(19, 5, 0)))

	state, err := s.SaveState()
	require.NoError(t, err)

	restored, rec := newSchedule(t, Config{})
	require.NoError(t, restored.LoadState(state))
	assert.Equal(t, s.Entries(), restored.Entries())
	assert.True(t, utc(19, 5, 0).Equal(restored.LastEvaluated()))

	// The switch time missed while down runs on the first tick after restore.
	require.NoError(t, restored.Tick(ctx, utc(19, 6, 30)))
	assert.Equal(t, []uint16{1}, rec.calls)
}
