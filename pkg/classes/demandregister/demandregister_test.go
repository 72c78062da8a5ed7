package demandregister

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backkem/cosem/pkg/cosem"
	"github.com/backkem/cosem/pkg/datamodel"
	"github.com/backkem/cosem/pkg/obis"
)

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

var activePowerDemand = obis.New(1, 0, 1, 4, 0, 255)

func newDemand(t *testing.T, clk *fixedClock, periods uint16) *DemandRegister {
	t.Helper()
	d, err := New(Config{
		LogicalName:     activePowerDemand,
		Type:            cosem.TagDoubleLongUnsigned,
		ScalerUnit:      cosem.ScalerUnit{Unit: cosem.UnitWatt},
		Period:          15 * time.Minute,
		NumberOfPeriods: periods,
		TimeSource:      clk,
	})
	require.NoError(t, err)
	return d
}

func TestDemandRegister_ResetSnapshotsCurrent(t *testing.T) {
	ctx := context.Background()
	clk := &fixedClock{t: time.Date(2024, 5, 1, 10, 3, 0, 0, time.UTC)}
	d := newDemand(t, clk, 1)

	require.NoError(t, d.AddSample(100))
	require.NoError(t, d.AddSample(200))
	assert.True(t, d.CurrentAverage().Equal(cosem.DoubleLongUnsigned(150)))

	_, err := d.InvokeMethod(ctx, MethodReset, cosem.Integer(0))
	require.NoError(t, err)

	last, err := d.GetAttribute(ctx, AttrLastAverage)
	require.NoError(t, err)
	assert.True(t, last.Equal(cosem.DoubleLongUnsigned(150)))

	cur, err := d.GetAttribute(ctx, AttrCurrentAverage)
	require.NoError(t, err)
	assert.True(t, cur.Equal(cosem.DoubleLongUnsigned(0)))

	ct, err := d.GetAttribute(ctx, AttrCaptureTime)
	require.NoError(t, err)
	dt, _ := ct.DateTime()
	assert.Equal(t, cosem.NewDateTime(clk.t), dt)
	assert.Equal(t, clk.t, d.StartTimeCurrent())
}

func TestDemandRegister_TickClosesPeriod(t *testing.T) {
	ctx := context.Background()
	clk := &fixedClock{t: time.Date(2024, 5, 1, 10, 3, 0, 0, time.UTC)}
	d := newDemand(t, clk, 1)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), d.StartTimeCurrent())

	require.NoError(t, d.AddSample(40))
	require.NoError(t, d.Tick(ctx, time.Date(2024, 5, 1, 10, 14, 59, 0, time.UTC)))
	assert.True(t, d.LastAverage().Equal(cosem.DoubleLongUnsigned(0)))

	require.NoError(t, d.Tick(ctx, time.Date(2024, 5, 1, 10, 15, 0, 0, time.UTC)))
	assert.True(t, d.LastAverage().Equal(cosem.DoubleLongUnsigned(40)))
	assert.True(t, d.CurrentAverage().Equal(cosem.DoubleLongUnsigned(0)))
	assert.Equal(t, time.Date(2024, 5, 1, 10, 15, 0, 0, time.UTC), d.StartTimeCurrent())

	// Missed periods are skipped to the latest boundary.
	require.NoError(t, d.Tick(ctx, time.Date(2024, 5, 1, 11, 7, 0, 0, time.UTC)))
	assert.Equal(t, time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC), d.StartTimeCurrent())
}

func TestDemandRegister_SlidingWindow(t *testing.T) {
	ctx := context.Background()
	clk := &fixedClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	d := newDemand(t, clk, 3)

	require.NoError(t, d.AddSample(30))
	require.NoError(t, d.Tick(ctx, time.Date(2024, 5, 1, 10, 15, 0, 0, time.UTC)))
	assert.True(t, d.CurrentAverage().Equal(cosem.DoubleLongUnsigned(30)))

	require.NoError(t, d.AddSample(60))
	assert.True(t, d.CurrentAverage().Equal(cosem.DoubleLongUnsigned(45)))
	require.NoError(t, d.Tick(ctx, time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)))

	require.NoError(t, d.AddSample(90))
	assert.True(t, d.CurrentAverage().Equal(cosem.DoubleLongUnsigned(60)))
	require.NoError(t, d.Tick(ctx, time.Date(2024, 5, 1, 10, 45, 0, 0, time.UTC)))

	// The first sub-period has left the window.
	assert.True(t, d.CurrentAverage().Equal(cosem.DoubleLongUnsigned(75)))
}

func TestDemandRegister_NextPeriod(t *testing.T) {
	ctx := context.Background()
	clk := &fixedClock{t: time.Date(2024, 5, 1, 10, 5, 0, 0, time.UTC)}
	d := newDemand(t, clk, 1)
	require.NoError(t, d.AddSample(10))

	_, err := d.InvokeMethod(ctx, MethodNextPeriod, cosem.Integer(0))
	require.NoError(t, err)
	assert.True(t, d.LastAverage().Equal(cosem.DoubleLongUnsigned(10)))
	assert.Equal(t, clk.t, d.StartTimeCurrent())
}

func TestDemandRegister_SetPeriod(t *testing.T) {
	ctx := context.Background()
	clk := &fixedClock{t: time.Date(2024, 5, 1, 10, 5, 0, 0, time.UTC)}
	d := newDemand(t, clk, 1)

	require.NoError(t, d.SetAttribute(ctx, AttrPeriod, cosem.DoubleLongUnsigned(3600)))
	v, err := d.GetAttribute(ctx, AttrPeriod)
	require.NoError(t, err)
	assert.True(t, v.Equal(cosem.DoubleLongUnsigned(3600)))
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), d.StartTimeCurrent())

	err = d.SetAttribute(ctx, AttrNumberOfPeriods, cosem.LongUnsigned(0))
	assert.ErrorIs(t, err, datamodel.ErrInvalidValue)

	err = d.SetAttribute(ctx, AttrCurrentAverage, cosem.DoubleLongUnsigned(1))
	assert.ErrorIs(t, err, datamodel.ErrReadOnly)
}

func TestDemandRegister_State(t *testing.T) {
	clk := &fixedClock{t: time.Date(2024, 5, 1, 10, 5, 0, 0, time.UTC)}
	d := newDemand(t, clk, 1)
	require.NoError(t, d.AddSample(10))
	d.Reset(clk.t)

	state, err := d.SaveState()
	require.NoError(t, err)

	other := newDemand(t, clk, 1)
	require.NoError(t, other.LoadState(state))
	assert.True(t, other.LastAverage().Equal(cosem.DoubleLongUnsigned(10)))
	assert.True(t, other.StartTimeCurrent().Equal(clk.t))
}

func TestDemandRegister_RequiresNumeric(t *testing.T) {
	_, err := New(Config{LogicalName: activePowerDemand, Type: cosem.TagOctetString})
	assert.Error(t, err)
}
