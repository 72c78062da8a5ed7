// Package extendedregister implements the Extended Register interface class
// (class_id 4): a Register with a status and the time the value was
// captured.
package extendedregister

import (
	"context"
	"fmt"

	"github.com/backkem/cosem/pkg/classes/register"
	"github.com/backkem/cosem/pkg/cosem"
	"github.com/backkem/cosem/pkg/datamodel"
	"github.com/backkem/cosem/pkg/obis"
)

// Class constants.
const (
	ClassID = datamodel.ClassExtendedRegister
	Version = 0
)

// Attribute IDs.
const (
	AttrValue       = register.AttrValue
	AttrScalerUnit  = register.AttrScalerUnit
	AttrStatus      datamodel.AttributeID = 4
	AttrCaptureTime datamodel.AttributeID = 5
)

// Method IDs.
const (
	MethodReset = register.MethodReset
)

// Config provides the initial state of an Extended Register.
type Config struct {
	LogicalName obis.Code
	Value       cosem.Value
	ScalerUnit  cosem.ScalerUnit

	// Status is the initial status. Its kind is fixed; null-data keeps it
	// open to any kind.
	Status cosem.Value

	// TimeSource stamps capture_time. Defaults to the system clock.
	TimeSource datamodel.TimeSource
}

// ExtendedRegister implements the Extended Register interface class.
type ExtendedRegister struct {
	datamodel.Base
	value       cosem.Value
	scalerUnit  cosem.ScalerUnit
	status      cosem.Value
	captureTime cosem.DateTime
	clock       datamodel.TimeSource
}

// New creates an Extended Register. capture_time starts not specified.
func New(cfg Config) (*ExtendedRegister, error) {
	if !cfg.Value.Tag().IsNumeric() {
		return nil, fmt.Errorf("extended register %s: value must be numeric, got %s", cfg.LogicalName, cfg.Value.Tag())
	}
	if cfg.TimeSource == nil {
		cfg.TimeSource = datamodel.SystemTime{}
	}
	statusType := cfg.Status.Tag()
	if cfg.Status.IsNull() {
		statusType = cosem.TagDontCare
	}
	attrs := append(register.Attributes(cfg.Value.Tag()),
		datamodel.NewReadOnlyAttribute(AttrStatus, "status", statusType),
		datamodel.NewReadOnlyAttribute(AttrCaptureTime, "capture_time", cosem.TagDateTime),
	)
	return &ExtendedRegister{
		Base:        datamodel.NewBase(ClassID, Version, cfg.LogicalName, attrs, register.Methods()),
		value:       cfg.Value,
		scalerUnit:  cfg.ScalerUnit,
		status:      cfg.Status,
		captureTime: cosem.AnyDateTime(),
		clock:       cfg.TimeSource,
	}, nil
}

// Value returns the raw value.
func (r *ExtendedRegister) Value() cosem.Value { return r.value }

// Status returns the status value.
func (r *ExtendedRegister) Status() cosem.Value { return r.status }

// CaptureTime returns the time the value was last captured.
func (r *ExtendedRegister) CaptureTime() cosem.DateTime { return r.captureTime }

// Update stores a new value and status captured now. A null status leaves
// the status unchanged.
func (r *ExtendedRegister) Update(v, status cosem.Value) error {
	if v.Tag() != r.value.Tag() {
		return r.AttrError(AttrValue, fmt.Errorf("%w: value expects %s, got %s", datamodel.ErrTypeMismatch, r.value.Tag(), v.Tag()))
	}
	if !status.IsNull() {
		if err := datamodel.FindAttribute(r.Attributes(), AttrStatus).Accepts(status); err != nil {
			return r.AttrError(AttrStatus, err)
		}
		r.status = status
	}
	r.value = v
	r.captureTime = datamodel.CurrentDateTime(r.clock)
	return nil
}

// GetAttribute implements datamodel.Object.
func (r *ExtendedRegister) GetAttribute(ctx context.Context, id datamodel.AttributeID) (cosem.Value, error) {
	if err := r.CheckGet(ctx, id); err != nil {
		return cosem.Value{}, err
	}
	switch id {
	case datamodel.AttrLogicalName:
		return r.GetLogicalName(), nil
	case AttrValue:
		return r.value, nil
	case AttrScalerUnit:
		return r.scalerUnit.Value(), nil
	case AttrStatus:
		return r.status, nil
	default:
		return cosem.DateTimeValue(r.captureTime), nil
	}
}

// SetAttribute implements datamodel.Object. Writing the value stamps the
// capture time.
func (r *ExtendedRegister) SetAttribute(ctx context.Context, id datamodel.AttributeID, v cosem.Value) error {
	if err := r.CheckSet(ctx, id, v); err != nil {
		return err
	}
	r.value = v
	r.captureTime = datamodel.CurrentDateTime(r.clock)
	return nil
}

// InvokeMethod implements datamodel.Object. reset clears the value and
// records the reset time as capture time.
func (r *ExtendedRegister) InvokeMethod(ctx context.Context, id datamodel.MethodID, _ cosem.Value) (cosem.Value, error) {
	if err := r.CheckInvoke(ctx, id); err != nil {
		return cosem.Value{}, err
	}
	z, err := register.ResetValue(r.value)
	if err != nil {
		return cosem.Value{}, r.MethodError(id, err)
	}
	r.value = z
	r.captureTime = datamodel.CurrentDateTime(r.clock)
	return cosem.Null(), nil
}

// SaveState implements datamodel.Persistent as
// structure{value, status, capture_time}.
func (r *ExtendedRegister) SaveState() (cosem.Value, error) {
	return cosem.Structure(r.value, r.status, cosem.DateTimeValue(r.captureTime)), nil
}

// LoadState implements datamodel.Persistent.
func (r *ExtendedRegister) LoadState(state cosem.Value) error {
	e, ok := state.Elements()
	if !ok || len(e) != 3 || e[0].Tag() != r.value.Tag() {
		return fmt.Errorf("%w: extended register state", datamodel.ErrTypeMismatch)
	}
	ct, ok := e[2].DateTime()
	if !ok {
		return fmt.Errorf("%w: extended register capture time", datamodel.ErrTypeMismatch)
	}
	r.value, r.status, r.captureTime = e[0], e[1], ct
	return nil
}

var (
	_ datamodel.Object     = (*ExtendedRegister)(nil)
	_ datamodel.Persistent = (*ExtendedRegister)(nil)
)
