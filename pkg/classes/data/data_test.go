package data

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backkem/cosem/pkg/cosem"
	"github.com/backkem/cosem/pkg/datamodel"
	"github.com/backkem/cosem/pkg/obis"
)

var deviceID = obis.New(0, 0, 96, 1, 0, 255)

func TestData_GetSet(t *testing.T) {
	ctx := context.Background()
	d := New(Config{LogicalName: deviceID, Value: cosem.VisibleString("SN-0001")})

	assert.Equal(t, ClassID, d.ClassID())
	assert.Equal(t, uint8(Version), d.Version())

	v, err := d.GetAttribute(ctx, AttrValue)
	require.NoError(t, err)
	assert.True(t, v.Equal(cosem.VisibleString("SN-0001")))

	require.NoError(t, d.SetAttribute(ctx, AttrValue, cosem.VisibleString("SN-0002")))
	assert.True(t, d.Value().Equal(cosem.VisibleString("SN-0002")))

	// Kind is fixed by the initial value
	err = d.SetAttribute(ctx, AttrValue, cosem.LongUnsigned(1))
	assert.ErrorIs(t, err, datamodel.ErrTypeMismatch)

	// Invalid visible-string content
	err = d.SetAttribute(ctx, AttrValue, cosem.VisibleString("bad\x00"))
	assert.ErrorIs(t, err, datamodel.ErrInvalidValue)
}

func TestData_AnyKind(t *testing.T) {
	ctx := context.Background()
	d := New(Config{LogicalName: deviceID})

	require.NoError(t, d.SetAttribute(ctx, AttrValue, cosem.LongUnsigned(7)))
	require.NoError(t, d.SetAttribute(ctx, AttrValue, cosem.Structure(cosem.Bool(true))))
}

func TestData_ReadOnly(t *testing.T) {
	ctx := context.Background()
	d := New(Config{LogicalName: deviceID, Value: cosem.Unsigned(1), ReadOnly: true})

	err := d.SetAttribute(ctx, AttrValue, cosem.Unsigned(2))
	assert.ErrorIs(t, err, datamodel.ErrReadOnly)

	d.Update(cosem.Unsigned(3))
	v, err := d.GetAttribute(ctx, AttrValue)
	require.NoError(t, err)
	assert.True(t, v.Equal(cosem.Unsigned(3)))
}

func TestData_NoMethods(t *testing.T) {
	d := New(Config{LogicalName: deviceID})
	_, err := d.InvokeMethod(context.Background(), 1, cosem.Null())
	assert.ErrorIs(t, err, datamodel.ErrUnknownIndex)

	_, err = d.GetAttribute(context.Background(), 3)
	assert.ErrorIs(t, err, datamodel.ErrUnknownIndex)
}

func TestData_State(t *testing.T) {
	d := New(Config{LogicalName: deviceID, Value: cosem.DoubleLongUnsigned(9)})
	state, err := d.SaveState()
	require.NoError(t, err)

	other := New(Config{LogicalName: deviceID})
	require.NoError(t, other.LoadState(state))
	assert.True(t, other.Value().Equal(cosem.DoubleLongUnsigned(9)))
}
