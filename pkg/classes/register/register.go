// Package register implements the Register interface class (class_id 3).
//
// A Register holds a process or status value together with the scaler and
// unit needed to interpret it. The physical quantity is value * 10^scaler.
package register

import (
	"context"
	"fmt"

	"github.com/backkem/cosem/pkg/cosem"
	"github.com/backkem/cosem/pkg/datamodel"
	"github.com/backkem/cosem/pkg/obis"
)

// Class constants.
const (
	ClassID = datamodel.ClassRegister
	Version = 0
)

// Attribute IDs.
const (
	AttrValue      datamodel.AttributeID = 2
	AttrScalerUnit datamodel.AttributeID = 3
)

// Method IDs.
const (
	MethodReset datamodel.MethodID = 1
)

// Config provides the initial state of a Register.
type Config struct {
	// LogicalName is the OBIS code of the object.
	LogicalName obis.Code

	// Value is the initial value. Its kind fixes the kind accepted by Set
	// and restored by reset.
	Value cosem.Value

	// ScalerUnit describes how to interpret Value.
	ScalerUnit cosem.ScalerUnit
}

// Register implements the Register interface class.
type Register struct {
	datamodel.Base
	value      cosem.Value
	scalerUnit cosem.ScalerUnit
}

// New creates a Register.
func New(cfg Config) (*Register, error) {
	if !cfg.Value.Tag().IsNumeric() {
		return nil, fmt.Errorf("register %s: value must be numeric, got %s", cfg.LogicalName, cfg.Value.Tag())
	}
	return &Register{
		Base:       datamodel.NewBase(ClassID, Version, cfg.LogicalName, Attributes(cfg.Value.Tag()), Methods()),
		value:      cfg.Value,
		scalerUnit: cfg.ScalerUnit,
	}, nil
}

// Attributes returns the attribute metadata shared by Register and its
// extensions.
func Attributes(valueType cosem.Tag) []datamodel.AttributeEntry {
	return []datamodel.AttributeEntry{
		datamodel.NewReadWriteAttribute(AttrValue, "value", valueType),
		datamodel.NewReadOnlyAttribute(AttrScalerUnit, "scaler_unit", cosem.TagStructure),
	}
}

// Methods returns the method metadata shared by Register and its
// extensions.
func Methods() []datamodel.MethodEntry {
	return []datamodel.MethodEntry{datamodel.NewMethodEntry(MethodReset, "reset")}
}

// ResetValue returns the neutral value of v's kind.
func ResetValue(v cosem.Value) (cosem.Value, error) {
	z, err := cosem.Zero(v.Tag())
	if err != nil {
		return cosem.Value{}, fmt.Errorf("%w: %v", datamodel.ErrTypeMismatch, err)
	}
	return z, nil
}

// Value returns the raw value.
func (r *Register) Value() cosem.Value { return r.value }

// ScalerUnit returns the scaler and unit.
func (r *Register) ScalerUnit() cosem.ScalerUnit { return r.scalerUnit }

// Scaled returns the physical value, value * 10^scaler.
func (r *Register) Scaled() float64 {
	f, _ := r.value.Float()
	return r.scalerUnit.Apply(f)
}

// Update stores a new raw value from the metering side. The kind must
// match the register's kind.
func (r *Register) Update(v cosem.Value) error {
	if v.Tag() != r.value.Tag() {
		return r.AttrError(AttrValue, fmt.Errorf("%w: %s expects %s, got %s", datamodel.ErrTypeMismatch, "value", r.value.Tag(), v.Tag()))
	}
	r.value = v
	return nil
}

// GetAttribute implements datamodel.Object.
func (r *Register) GetAttribute(ctx context.Context, id datamodel.AttributeID) (cosem.Value, error) {
	if err := r.CheckGet(ctx, id); err != nil {
		return cosem.Value{}, err
	}
	switch id {
	case datamodel.AttrLogicalName:
		return r.GetLogicalName(), nil
	case AttrValue:
		return r.value, nil
	default:
		return r.scalerUnit.Value(), nil
	}
}

// SetAttribute implements datamodel.Object.
func (r *Register) SetAttribute(ctx context.Context, id datamodel.AttributeID, v cosem.Value) error {
	if err := r.CheckSet(ctx, id, v); err != nil {
		return err
	}
	r.value = v
	return nil
}

// InvokeMethod implements datamodel.Object.
func (r *Register) InvokeMethod(ctx context.Context, id datamodel.MethodID, _ cosem.Value) (cosem.Value, error) {
	if err := r.CheckInvoke(ctx, id); err != nil {
		return cosem.Value{}, err
	}
	z, err := ResetValue(r.value)
	if err != nil {
		return cosem.Value{}, r.MethodError(id, err)
	}
	r.value = z
	return cosem.Null(), nil
}

// SaveState implements datamodel.Persistent.
func (r *Register) SaveState() (cosem.Value, error) { return r.value, nil }

// LoadState implements datamodel.Persistent.
func (r *Register) LoadState(state cosem.Value) error {
	return r.Update(state)
}

var (
	_ datamodel.Object     = (*Register)(nil)
	_ datamodel.Persistent = (*Register)(nil)
)
