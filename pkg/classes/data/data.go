// Package data implements the Data interface class (class_id 1).
//
// A Data object holds a single value of any kind: configuration
// parameters, identifiers, status words.
package data

import (
	"context"

	"github.com/backkem/cosem/pkg/cosem"
	"github.com/backkem/cosem/pkg/datamodel"
	"github.com/backkem/cosem/pkg/obis"
)

// Class constants.
const (
	ClassID = datamodel.ClassData
	Version = 0
)

// Attribute IDs.
const (
	AttrValue datamodel.AttributeID = 2
)

// Config provides the initial state of a Data object.
type Config struct {
	// LogicalName is the OBIS code of the object.
	LogicalName obis.Code

	// Value is the initial value. Defaults to null-data.
	Value cosem.Value

	// Type restricts the kind of value accepted by Set. Defaults to
	// cosem.TagDontCare (any kind).
	Type cosem.Tag

	// ReadOnly makes the value attribute read-only.
	ReadOnly bool
}

// Data implements the Data interface class.
type Data struct {
	datamodel.Base
	value cosem.Value
}

// New creates a Data object.
func New(cfg Config) *Data {
	t := cfg.Type
	if t == 0 && cfg.Value.IsNull() {
		t = cosem.TagDontCare
	} else if t == 0 {
		t = cfg.Value.Tag()
	}
	access := datamodel.AccessReadWrite
	if cfg.ReadOnly {
		access = datamodel.AccessRead
	}
	return &Data{
		Base: datamodel.NewBase(ClassID, Version, cfg.LogicalName,
			[]datamodel.AttributeEntry{
				{ID: AttrValue, Name: "value", Type: t, Access: access},
			},
			nil,
		),
		value: cfg.Value,
	}
}

// Value returns the current value.
func (d *Data) Value() cosem.Value { return d.value }

// Update replaces the value from the device side, bypassing access rights.
func (d *Data) Update(v cosem.Value) { d.value = v }

// GetAttribute implements datamodel.Object.
func (d *Data) GetAttribute(ctx context.Context, id datamodel.AttributeID) (cosem.Value, error) {
	if err := d.CheckGet(ctx, id); err != nil {
		return cosem.Value{}, err
	}
	if id == datamodel.AttrLogicalName {
		return d.GetLogicalName(), nil
	}
	return d.value, nil
}

// SetAttribute implements datamodel.Object.
func (d *Data) SetAttribute(ctx context.Context, id datamodel.AttributeID, v cosem.Value) error {
	if err := d.CheckSet(ctx, id, v); err != nil {
		return err
	}
	d.value = v
	return nil
}

// InvokeMethod implements datamodel.Object. Data has no methods.
func (d *Data) InvokeMethod(ctx context.Context, id datamodel.MethodID, _ cosem.Value) (cosem.Value, error) {
	return cosem.Value{}, d.CheckInvoke(ctx, id)
}

// SaveState implements datamodel.Persistent.
func (d *Data) SaveState() (cosem.Value, error) { return d.value, nil }

// LoadState implements datamodel.Persistent.
func (d *Data) LoadState(state cosem.Value) error {
	d.value = state
	return nil
}

var (
	_ datamodel.Object     = (*Data)(nil)
	_ datamodel.Persistent = (*Data)(nil)
)
