package profilegeneric

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backkem/cosem/pkg/classes/clock"
	"github.com/backkem/cosem/pkg/classes/data"
	"github.com/backkem/cosem/pkg/cosem"
	"github.com/backkem/cosem/pkg/datamodel"
	"github.com/backkem/cosem/pkg/obis"
)

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

var (
	counterName = obis.New(0, 0, 96, 8, 0, 255)
	timeColumn  = datamodel.CaptureObject{Class: clock.ClassID, LogicalName: obis.Clock, Attribute: 2}
	valueColumn = datamodel.CaptureObject{Class: data.ClassID, LogicalName: counterName, Attribute: 2}
)

type fixture struct {
	host    *fixedClock
	clock   *clock.Clock
	counter *data.Data
	reg     *datamodel.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{host: &fixedClock{t: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}}
	var err error
	f.clock, err = clock.New(clock.Config{TimeSource: f.host})
	require.NoError(t, err)
	f.counter = data.New(data.Config{LogicalName: counterName, Value: cosem.DoubleLongUnsigned(0)})
	f.reg = datamodel.NewRegistry()
	require.NoError(t, f.reg.Add(f.clock))
	require.NoError(t, f.reg.Add(f.counter))
	return f
}

func (f *fixture) profile(t *testing.T, cfg Config) *ProfileGeneric {
	t.Helper()
	if cfg.LogicalName == (obis.Code{}) {
		cfg.LogicalName = obis.LoadProfile1
	}
	if cfg.CaptureObjects == nil {
		cfg.CaptureObjects = []datamodel.CaptureObject{timeColumn, valueColumn}
	}
	cfg.Resolver = f.reg
	cfg.TimeSource = f.clock
	cfg.LoggerFactory = logging.NewDefaultLoggerFactory()
	p, err := New(cfg)
	require.NoError(t, err)
	return p
}

// captureSeries captures the given counter values 15 minutes apart.
func (f *fixture) captureSeries(t *testing.T, p *ProfileGeneric, values ...uint32) {
	t.Helper()
	for _, v := range values {
		f.counter.Update(cosem.DoubleLongUnsigned(v))
		require.NoError(t, p.Capture(context.Background()))
		f.host.t = f.host.t.Add(15 * time.Minute)
	}
}

func counterValues(t *testing.T, buf cosem.Value, col int) []uint64 {
	t.Helper()
	rows, ok := buf.Elements()
	require.True(t, ok)
	out := make([]uint64, len(rows))
	for i, r := range rows {
		v, ok := r.Index(col)
		require.True(t, ok)
		out[i], _ = v.Uint()
	}
	return out
}

func TestProfileGeneric_RingBuffer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.profile(t, Config{ProfileEntries: 3})

	f.captureSeries(t, p, 1, 2, 3, 4, 5)

	n, err := p.GetAttribute(ctx, AttrEntriesInUse)
	require.NoError(t, err)
	assert.True(t, n.Equal(cosem.DoubleLongUnsigned(3)))

	buf, err := p.GetAttribute(ctx, AttrBuffer)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 4, 5}, counterValues(t, buf, 1))

	_, err = p.InvokeMethod(ctx, MethodReset, cosem.Integer(0))
	require.NoError(t, err)
	assert.Equal(t, 0, p.EntriesInUse())
}

func TestProfileGeneric_ZeroCapacity(t *testing.T) {
	f := newFixture(t)
	p := f.profile(t, Config{})
	f.captureSeries(t, p, 1, 2)
	assert.Equal(t, 0, p.EntriesInUse())
}

func TestProfileGeneric_CaptureViaMethod(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.profile(t, Config{ProfileEntries: 10})
	f.counter.Update(cosem.DoubleLongUnsigned(42))

	_, err := p.InvokeMethod(ctx, MethodCapture, cosem.Integer(0))
	require.NoError(t, err)
	require.Equal(t, 1, p.EntriesInUse())

	e := p.Entries()[0]
	assert.True(t, e.Values[1].Equal(cosem.DoubleLongUnsigned(42)))
	assert.Equal(t, f.clock.DateTime(), e.CapturedAt)
	assert.True(t, e.Values[0].Equal(cosem.DateTimeValue(f.clock.DateTime())))
}

func TestProfileGeneric_CaptureFailureLeavesBuffer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	missing := datamodel.CaptureObject{Class: data.ClassID, LogicalName: obis.New(0, 0, 96, 9, 9, 255), Attribute: 2}
	p := f.profile(t, Config{ProfileEntries: 5, CaptureObjects: []datamodel.CaptureObject{valueColumn, missing}})

	_, err := p.InvokeMethod(ctx, MethodCapture, cosem.Integer(0))
	assert.ErrorIs(t, err, datamodel.ErrObjectUndefined)
	assert.Equal(t, 0, p.EntriesInUse())
}

func TestProfileGeneric_RangeByTime(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.profile(t, Config{ProfileEntries: 10})
	f.captureSeries(t, p, 10, 20, 30, 40) // 10:00, 10:15, 10:30, 10:45

	at := func(h, m int) cosem.Value {
		return cosem.DateTimeValue(cosem.NewDateTime(time.Date(2024, 6, 1, h, m, 0, 0, time.UTC)))
	}
	sel := func(from, to cosem.Value, cols ...datamodel.CaptureObject) datamodel.AccessSelector {
		return datamodel.AccessSelector{
			Selector:   datamodel.SelectorRange,
			Parameters: datamodel.RangeDescriptor{RestrictingObject: timeColumn, From: from, To: to, Columns: cols}.Value(),
		}
	}

	got, err := p.GetAttributeSelective(ctx, AttrBuffer, sel(at(10, 15), at(10, 30)))
	require.NoError(t, err)
	assert.Equal(t, []uint64{20, 30}, counterValues(t, got, 1))

	got, err = p.GetAttributeSelective(ctx, AttrBuffer, sel(at(11, 0), at(12, 0)))
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
	assert.Equal(t, cosem.TagArray, got.Tag())

	// Column selection keeps only the counter.
	got, err = p.GetAttributeSelective(ctx, AttrBuffer, sel(at(10, 0), at(10, 0), valueColumn))
	require.NoError(t, err)
	assert.True(t, got.Equal(cosem.Array(cosem.Structure(cosem.DoubleLongUnsigned(10)))))

	// Octet-string bounds work like date-time bounds.
	from := cosem.OctetString(cosem.NewDateTime(time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC)).Bytes())
	got, err = p.GetAttributeSelective(ctx, AttrBuffer, sel(from, at(23, 0)))
	require.NoError(t, err)
	assert.Equal(t, []uint64{30, 40}, counterValues(t, got, 1))
}

func TestProfileGeneric_RangeWithoutClockColumn(t *testing.T) {
	f := newFixture(t)
	p := f.profile(t, Config{ProfileEntries: 10, CaptureObjects: []datamodel.CaptureObject{valueColumn}})
	f.captureSeries(t, p, 1, 2, 3)

	rd := datamodel.RangeDescriptor{
		RestrictingObject: timeColumn,
		From:              cosem.DateTimeValue(cosem.NewDateTime(time.Date(2024, 6, 1, 10, 10, 0, 0, time.UTC))),
		To:                cosem.DateTimeValue(cosem.NewDateTime(time.Date(2024, 6, 1, 10, 40, 0, 0, time.UTC))),
	}
	got, err := p.SelectRange(rd)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 3}, counterValues(t, got, 0))

	// Range on the captured value itself.
	rd = datamodel.RangeDescriptor{RestrictingObject: valueColumn, From: cosem.DoubleLongUnsigned(3), To: cosem.DoubleLongUnsigned(9)}
	got, err = p.SelectRange(rd)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3}, counterValues(t, got, 0))

	rd.RestrictingObject = datamodel.CaptureObject{Class: data.ClassID, LogicalName: obis.New(0, 0, 1, 1, 1, 255), Attribute: 2}
	_, err = p.SelectRange(rd)
	assert.ErrorIs(t, err, datamodel.ErrInvalidValue)
}

func TestProfileGeneric_EntrySelector(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.profile(t, Config{ProfileEntries: 10})
	f.captureSeries(t, p, 1, 2, 3, 4)

	tests := []struct {
		name string
		ed   datamodel.EntryDescriptor
		rows int
		cols int
	}{
		{"all", datamodel.EntryDescriptor{FromEntry: 1}, 4, 2},
		{"middle", datamodel.EntryDescriptor{FromEntry: 2, ToEntry: 3}, 2, 2},
		{"past end clamps", datamodel.EntryDescriptor{FromEntry: 3, ToEntry: 99}, 2, 2},
		{"start past end", datamodel.EntryDescriptor{FromEntry: 9, ToEntry: 12}, 0, 0},
		{"second column", datamodel.EntryDescriptor{FromEntry: 1, ToEntry: 0, FromColumn: 2, ToColumn: 2}, 4, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.GetAttributeSelective(ctx, AttrBuffer, datamodel.AccessSelector{
				Selector: datamodel.SelectorEntry, Parameters: tt.ed.Value(),
			})
			require.NoError(t, err)
			require.Equal(t, tt.rows, got.Len())
			if tt.rows > 0 {
				first, _ := got.Index(0)
				assert.Equal(t, tt.cols, first.Len())
			}
		})
	}

	_, err := p.GetAttributeSelective(ctx, AttrBuffer, datamodel.AccessSelector{
		Selector: datamodel.SelectorEntry, Parameters: datamodel.EntryDescriptor{FromEntry: 3, ToEntry: 2}.Value(),
	})
	assert.ErrorIs(t, err, datamodel.ErrInvalidValue)

	_, err = p.GetAttributeSelective(ctx, AttrBuffer, datamodel.AccessSelector{Selector: 9})
	assert.ErrorIs(t, err, datamodel.ErrInvalidValue)
}

func TestProfileGeneric_SortMethods(t *testing.T) {
	tests := []struct {
		method SortMethod
		values []uint32
		want   []uint64
	}{
		{SortFIFO, []uint32{1, 2, 3}, []uint64{2, 3}},
		{SortLIFO, []uint32{1, 2, 3}, []uint64{3, 2}},
		{SortLargest, []uint32{5, 1, 9}, []uint64{9, 5}},
		{SortSmallest, []uint32{5, 1, 9}, []uint64{1, 5}},
		{SortNearestToZero, []uint32{5, 1, 9}, []uint64{1, 5}},
		{SortFarthestFromZero, []uint32{5, 1, 9}, []uint64{9, 5}},
	}
	for _, tt := range tests {
		f := newFixture(t)
		p := f.profile(t, Config{ProfileEntries: 2, SortMethod: tt.method, SortObject: valueColumn})
		f.captureSeries(t, p, tt.values...)
		buf, err := p.GetAttribute(context.Background(), AttrBuffer)
		require.NoError(t, err)
		assert.Equal(t, tt.want, counterValues(t, buf, 1), "sort method %d", tt.method)
	}

	f := newFixture(t)
	_, err := New(Config{LogicalName: obis.LoadProfile1, Resolver: f.reg, SortMethod: SortLargest, SortObject: valueColumn})
	assert.Error(t, err, "sort object must be a capture object")
}

func TestProfileGeneric_LIFOKeepsMostRecent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.profile(t, Config{ProfileEntries: 3, SortMethod: SortLIFO})
	f.captureSeries(t, p, 1, 2, 3, 4, 5)

	buf, err := p.GetAttribute(ctx, AttrBuffer)
	require.NoError(t, err)
	assert.Equal(t, []uint64{5, 4, 3}, counterValues(t, buf, 1))

	first, err := p.SelectEntries(datamodel.EntryDescriptor{FromEntry: 1, ToEntry: 1})
	require.NoError(t, err)
	assert.Equal(t, []uint64{5}, counterValues(t, first, 1))

	// Stored state keeps capture order and restores the same view.
	state, err := p.SaveState()
	require.NoError(t, err)
	other := f.profile(t, Config{})
	require.NoError(t, other.LoadState(state))
	again, err := other.GetAttribute(ctx, AttrBuffer)
	require.NoError(t, err)
	assert.Equal(t, []uint64{5, 4, 3}, counterValues(t, again, 1))
}

func TestProfileGeneric_MaximumProfileEntries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.profile(t, Config{ProfileEntries: 2})
	f.captureSeries(t, p, 1, 2)

	require.NoError(t, p.SetAttribute(ctx, AttrProfileEntries, cosem.DoubleLongUnsigned(math.MaxUint32)))
	got, err := p.GetAttribute(ctx, AttrProfileEntries)
	require.NoError(t, err)
	assert.True(t, got.Equal(cosem.DoubleLongUnsigned(math.MaxUint32)))

	f.captureSeries(t, p, 3)
	assert.Equal(t, 3, p.EntriesInUse())

	big := f.profile(t, Config{ProfileEntries: math.MaxUint32})
	f.captureSeries(t, big, 7)
	assert.Equal(t, 1, big.EntriesInUse())
	state, err := big.SaveState()
	require.NoError(t, err)
	require.NoError(t, p.LoadState(state))
	assert.Equal(t, 1, p.EntriesInUse())
}

func TestProfileGeneric_PeriodicCapture(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.host.t = time.Date(2024, 6, 1, 10, 3, 0, 0, time.UTC)
	p := f.profile(t, Config{ProfileEntries: 10, CapturePeriod: 15 * time.Minute})

	require.NoError(t, p.Tick(ctx, time.Date(2024, 6, 1, 10, 14, 0, 0, time.UTC)))
	assert.Equal(t, 0, p.EntriesInUse())

	require.NoError(t, p.Tick(ctx, time.Date(2024, 6, 1, 10, 15, 0, 0, time.UTC)))
	require.NoError(t, p.Tick(ctx, time.Date(2024, 6, 1, 10, 16, 0, 0, time.UTC)))
	assert.Equal(t, 1, p.EntriesInUse())

	require.NoError(t, p.Tick(ctx, time.Date(2024, 6, 1, 11, 40, 0, 0, time.UTC)))
	assert.Equal(t, 2, p.EntriesInUse())
}

func TestProfileGeneric_SetAttributes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.profile(t, Config{ProfileEntries: 5})
	f.captureSeries(t, p, 1, 2, 3, 4)

	// Shrinking keeps the newest entries.
	require.NoError(t, p.SetAttribute(ctx, AttrProfileEntries, cosem.DoubleLongUnsigned(2)))
	buf, _ := p.GetAttribute(ctx, AttrBuffer)
	assert.Equal(t, []uint64{3, 4}, counterValues(t, buf, 1))

	// New capture objects clear the buffer.
	require.NoError(t, p.SetAttribute(ctx, AttrCaptureObjects, cosem.Array(valueColumn.Value())))
	assert.Equal(t, 0, p.EntriesInUse())
	assert.Equal(t, []datamodel.CaptureObject{valueColumn}, p.CaptureObjects())

	err := p.SetAttribute(ctx, AttrSortMethod, cosem.Enum(3))
	assert.ErrorIs(t, err, datamodel.ErrInvalidValue, "largest needs a sort object")
	require.NoError(t, p.SetAttribute(ctx, AttrSortObject, valueColumn.Value()))
	require.NoError(t, p.SetAttribute(ctx, AttrSortMethod, cosem.Enum(3)))

	err = p.SetAttribute(ctx, AttrEntriesInUse, cosem.DoubleLongUnsigned(0))
	assert.ErrorIs(t, err, datamodel.ErrReadOnly)
	err = p.SetAttribute(ctx, AttrBuffer, cosem.Array())
	assert.ErrorIs(t, err, datamodel.ErrReadOnly)
}

func TestProfileGeneric_State(t *testing.T) {
	f := newFixture(t)
	p := f.profile(t, Config{ProfileEntries: 3, CapturePeriod: time.Hour})
	f.captureSeries(t, p, 7, 8)

	state, err := p.SaveState()
	require.NoError(t, err)

	other := f.profile(t, Config{ProfileEntries: 1})
	require.NoError(t, other.LoadState(state))
	assert.Equal(t, 3, other.Capacity())
	assert.Equal(t, p.Entries(), other.Entries())
	assert.Equal(t, p.CaptureObjects(), other.CaptureObjects())
}
