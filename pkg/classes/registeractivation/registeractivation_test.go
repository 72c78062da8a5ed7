package registeractivation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backkem/cosem/pkg/cosem"
	"github.com/backkem/cosem/pkg/datamodel"
	"github.com/backkem/cosem/pkg/obis"
)

var (
	rate1 = datamodel.ObjectDefinition{Class: datamodel.ClassRegister, LogicalName: obis.New(1, 0, 1, 8, 1, 255)}
	rate2 = datamodel.ObjectDefinition{Class: datamodel.ClassRegister, LogicalName: obis.New(1, 0, 1, 8, 2, 255)}
	rate3 = datamodel.ObjectDefinition{Class: datamodel.ClassRegister, LogicalName: obis.New(1, 0, 1, 8, 3, 255)}
)

func newActivation(t *testing.T) *RegisterActivation {
	t.Helper()
	r, err := New(Config{
		LogicalName: obis.New(0, 0, 14, 0, 1, 255),
		Registers:   []datamodel.ObjectDefinition{rate1, rate2, rate3},
		Masks: []Mask{
			{Name: []byte("T1"), Indices: []uint8{1}},
			{Name: []byte("T23"), Indices: []uint8{2, 3}},
		},
		ActiveMask: []byte("T23"),
	})
	require.NoError(t, err)
	return r
}

func TestRegisterActivation_ActiveRegisters(t *testing.T) {
	r := newActivation(t)
	assert.Equal(t, []datamodel.ObjectDefinition{rate2, rate3}, r.ActiveRegisters())
	assert.False(t, r.IsActive(rate1))

	require.NoError(t, r.Activate([]byte("T1")))
	assert.True(t, r.IsActive(rate1))
	assert.False(t, r.IsActive(rate2))

	assert.ErrorIs(t, r.Activate([]byte("nope")), datamodel.ErrInvalidValue)

	require.NoError(t, r.Activate(nil))
	assert.Len(t, r.ActiveRegisters(), 3)
}

func TestRegisterActivation_AddRegister(t *testing.T) {
	ctx := context.Background()
	r := newActivation(t)
	rate4 := datamodel.ObjectDefinition{Class: datamodel.ClassRegister, LogicalName: obis.New(1, 0, 1, 8, 4, 255)}

	_, err := r.InvokeMethod(ctx, MethodAddRegister, rate4.Value())
	require.NoError(t, err)
	assert.Len(t, r.Registers(), 4)

	_, err = r.InvokeMethod(ctx, MethodAddRegister, rate4.Value())
	assert.ErrorIs(t, err, datamodel.ErrInvalidValue)

	_, err = r.InvokeMethod(ctx, MethodAddRegister, cosem.Unsigned(1))
	assert.ErrorIs(t, err, datamodel.ErrTypeMismatch)
}

func TestRegisterActivation_RemoveRegisterReindexesMasks(t *testing.T) {
	ctx := context.Background()
	r := newActivation(t)

	_, err := r.InvokeMethod(ctx, MethodRemoveRegister, rate2.Value())
	require.NoError(t, err)
	assert.Equal(t, []datamodel.ObjectDefinition{rate1, rate3}, r.Registers())
	assert.Equal(t, []datamodel.ObjectDefinition{rate3}, r.ActiveRegisters())

	masks, err := r.GetAttribute(ctx, AttrMaskList)
	require.NoError(t, err)
	want := cosem.Array(
		Mask{Name: []byte("T1"), Indices: []uint8{1}}.Value(),
		Mask{Name: []byte("T23"), Indices: []uint8{2}}.Value(),
	)
	assert.True(t, masks.Equal(want), "mask_list = %v", masks)

	_, err = r.InvokeMethod(ctx, MethodRemoveRegister, rate2.Value())
	assert.ErrorIs(t, err, datamodel.ErrInvalidValue)
}

func TestRegisterActivation_Masks(t *testing.T) {
	ctx := context.Background()
	r := newActivation(t)

	_, err := r.InvokeMethod(ctx, MethodAddMask, Mask{Name: []byte("T1"), Indices: []uint8{1, 2}}.Value())
	require.NoError(t, err)
	require.NoError(t, r.Activate([]byte("T1")))
	assert.Equal(t, []datamodel.ObjectDefinition{rate1, rate2}, r.ActiveRegisters())

	_, err = r.InvokeMethod(ctx, MethodAddMask, Mask{Name: []byte("bad"), Indices: []uint8{9}}.Value())
	assert.ErrorIs(t, err, datamodel.ErrInvalidValue)

	_, err = r.InvokeMethod(ctx, MethodDeleteMask, cosem.OctetString([]byte("T1")))
	require.NoError(t, err)
	assert.Empty(t, r.ActiveMask())

	_, err = r.InvokeMethod(ctx, MethodDeleteMask, cosem.OctetString([]byte("T1")))
	assert.ErrorIs(t, err, datamodel.ErrInvalidValue)
}

func TestRegisterActivation_SetValidates(t *testing.T) {
	ctx := context.Background()
	r := newActivation(t)

	// Shrinking the register list below a mask index is rejected.
	err := r.SetAttribute(ctx, AttrRegisterAssignment, cosem.Array(rate1.Value()))
	assert.ErrorIs(t, err, datamodel.ErrInvalidValue)
	assert.Len(t, r.Registers(), 3)

	require.NoError(t, r.SetAttribute(ctx, AttrActiveMask, cosem.OctetString([]byte("T1"))))
	assert.Equal(t, []byte("T1"), r.ActiveMask())
}

func TestRegisterActivation_State(t *testing.T) {
	r := newActivation(t)
	state, err := r.SaveState()
	require.NoError(t, err)

	other, err := New(Config{LogicalName: r.LogicalName()})
	require.NoError(t, err)
	require.NoError(t, other.LoadState(state))
	assert.Equal(t, r.ActiveRegisters(), other.ActiveRegisters())
}
