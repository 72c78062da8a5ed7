// Package demandregister implements the Demand Register interface class
// (class_id 5).
//
// The register averages samples over a demand period. With
// number_of_periods greater than one the average slides over that many
// sub-periods. When a period closes the current average becomes the last
// average and a new period starts.
package demandregister

import (
	"context"
	"fmt"
	"time"

	"github.com/backkem/cosem/pkg/classes/register"
	"github.com/backkem/cosem/pkg/cosem"
	"github.com/backkem/cosem/pkg/datamodel"
	"github.com/backkem/cosem/pkg/obis"
)

// Class constants.
const (
	ClassID = datamodel.ClassDemandRegister
	Version = 0
)

// Attribute IDs.
const (
	AttrCurrentAverage   datamodel.AttributeID = 2
	AttrLastAverage      datamodel.AttributeID = 3
	AttrScalerUnit       datamodel.AttributeID = 4
	AttrStatus           datamodel.AttributeID = 5
	AttrCaptureTime      datamodel.AttributeID = 6
	AttrStartTimeCurrent datamodel.AttributeID = 7
	AttrPeriod           datamodel.AttributeID = 8
	AttrNumberOfPeriods  datamodel.AttributeID = 9
)

// Method IDs.
const (
	MethodReset      datamodel.MethodID = 1
	MethodNextPeriod datamodel.MethodID = 2
)

// Config provides the initial state of a Demand Register.
type Config struct {
	LogicalName obis.Code

	// Type is the kind of the average values. Must be numeric.
	Type cosem.Tag

	ScalerUnit cosem.ScalerUnit

	// Period is the demand period. Zero disables period roll-over on tick.
	Period time.Duration

	// NumberOfPeriods is the sliding window length. Defaults to 1.
	NumberOfPeriods uint16

	// TimeSource stamps capture and start times. Defaults to the system clock.
	TimeSource datamodel.TimeSource
}

func (c *Config) applyDefaults() {
	if c.NumberOfPeriods == 0 {
		c.NumberOfPeriods = 1
	}
	if c.TimeSource == nil {
		c.TimeSource = datamodel.SystemTime{}
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if !c.Type.IsNumeric() {
		return fmt.Errorf("demand register %s: type must be numeric, got %s", c.LogicalName, c.Type)
	}
	if c.Period < 0 || c.Period%time.Second != 0 {
		return fmt.Errorf("demand register %s: period must be a whole number of seconds", c.LogicalName)
	}
	return nil
}

// DemandRegister implements the Demand Register interface class.
type DemandRegister struct {
	datamodel.Base
	kind       cosem.Tag
	scalerUnit cosem.ScalerUnit
	clock      datamodel.TimeSource

	current     cosem.Value
	last        cosem.Value
	status      cosem.Value
	captureTime cosem.DateTime
	start       time.Time
	period      time.Duration
	periods     uint16

	// samples of the running sub-period
	sum float64
	n   int
	// averages of closed sub-periods inside the sliding window, oldest first
	window []float64
}

// New creates a Demand Register. The first period starts at the current
// time aligned down to the period.
func New(cfg Config) (*DemandRegister, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	zero, _ := cosem.Zero(cfg.Type)
	attrs := []datamodel.AttributeEntry{
		datamodel.NewReadOnlyAttribute(AttrCurrentAverage, "current_average_value", cfg.Type),
		datamodel.NewReadOnlyAttribute(AttrLastAverage, "last_average_value", cfg.Type),
		datamodel.NewReadOnlyAttribute(AttrScalerUnit, "scaler_unit", cosem.TagStructure),
		datamodel.NewReadOnlyAttribute(AttrStatus, "status", cosem.TagDontCare),
		datamodel.NewReadOnlyAttribute(AttrCaptureTime, "capture_time", cosem.TagDateTime),
		datamodel.NewReadOnlyAttribute(AttrStartTimeCurrent, "start_time_current", cosem.TagDateTime),
		datamodel.NewReadWriteAttribute(AttrPeriod, "period", cosem.TagDoubleLongUnsigned),
		datamodel.NewReadWriteAttribute(AttrNumberOfPeriods, "number_of_periods", cosem.TagLongUnsigned),
	}
	methods := []datamodel.MethodEntry{
		datamodel.NewMethodEntry(MethodReset, "reset"),
		datamodel.NewMethodEntry(MethodNextPeriod, "next_period"),
	}
	d := &DemandRegister{
		Base:        datamodel.NewBase(ClassID, Version, cfg.LogicalName, attrs, methods),
		kind:        cfg.Type,
		scalerUnit:  cfg.ScalerUnit,
		clock:       cfg.TimeSource,
		current:     zero,
		last:        zero,
		captureTime: cosem.AnyDateTime(),
		period:      cfg.Period,
		periods:     cfg.NumberOfPeriods,
	}
	d.start = d.align(cfg.TimeSource.Now())
	return d, nil
}

func (d *DemandRegister) align(t time.Time) time.Time {
	if d.period <= 0 {
		return t
	}
	return t.Truncate(d.period)
}

// CurrentAverage returns current_average_value.
func (d *DemandRegister) CurrentAverage() cosem.Value { return d.current }

// LastAverage returns last_average_value.
func (d *DemandRegister) LastAverage() cosem.Value { return d.last }

// StartTimeCurrent returns the start of the running period.
func (d *DemandRegister) StartTimeCurrent() time.Time { return d.start }

// SetStatus stores the status value from the metering side.
func (d *DemandRegister) SetStatus(v cosem.Value) { d.status = v }

// AddSample feeds one raw sample of the measured quantity into the running
// period and updates current_average_value.
func (d *DemandRegister) AddSample(x float64) error {
	d.sum += x
	d.n++
	return d.recompute()
}

func (d *DemandRegister) recompute() error {
	total, count := 0.0, 0
	for _, a := range d.window {
		total += a
		count++
	}
	if d.n > 0 {
		total += d.sum / float64(d.n)
		count++
	}
	if count == 0 {
		d.current, _ = cosem.Zero(d.kind)
		return nil
	}
	v, err := cosem.FromFloat(d.kind, total/float64(count))
	if err != nil {
		return d.AttrError(AttrCurrentAverage, fmt.Errorf("%w: %v", datamodel.ErrInvalidValue, err))
	}
	d.current = v
	return nil
}

// closePeriod ends the running sub-period at t.
func (d *DemandRegister) closePeriod(t time.Time) error {
	d.last = d.current
	d.captureTime = cosem.NewDateTime(t.In(d.clock.Now().Location()))
	avg := 0.0
	if d.n > 0 {
		avg = d.sum / float64(d.n)
	}
	if d.periods > 1 {
		d.window = append(d.window, avg)
		if len(d.window) > int(d.periods)-1 {
			d.window = d.window[len(d.window)-int(d.periods)+1:]
		}
	} else {
		d.window = d.window[:0]
	}
	d.sum, d.n = 0, 0
	d.start = t
	return d.recompute()
}

// Tick closes the running period once now has passed its end. Periods
// missed entirely are skipped; the new period starts at the last boundary
// not after now.
func (d *DemandRegister) Tick(_ context.Context, now time.Time) error {
	if d.period <= 0 {
		return nil
	}
	end := d.start.Add(d.period)
	if now.Before(end) {
		return nil
	}
	elapsed := now.Sub(d.start)
	boundary := d.start.Add(elapsed - elapsed%d.period)
	return d.closePeriod(boundary)
}

// GetAttribute implements datamodel.Object.
func (d *DemandRegister) GetAttribute(ctx context.Context, id datamodel.AttributeID) (cosem.Value, error) {
	if err := d.CheckGet(ctx, id); err != nil {
		return cosem.Value{}, err
	}
	switch id {
	case datamodel.AttrLogicalName:
		return d.GetLogicalName(), nil
	case AttrCurrentAverage:
		return d.current, nil
	case AttrLastAverage:
		return d.last, nil
	case AttrScalerUnit:
		return d.scalerUnit.Value(), nil
	case AttrStatus:
		return d.status, nil
	case AttrCaptureTime:
		return cosem.DateTimeValue(d.captureTime), nil
	case AttrStartTimeCurrent:
		return cosem.DateTimeValue(cosem.NewDateTime(d.start.In(d.clock.Now().Location()))), nil
	case AttrPeriod:
		return cosem.DoubleLongUnsigned(uint32(d.period / time.Second)), nil
	default:
		return cosem.LongUnsigned(d.periods), nil
	}
}

// SetAttribute implements datamodel.Object. Changing period or
// number_of_periods restarts the running period.
func (d *DemandRegister) SetAttribute(ctx context.Context, id datamodel.AttributeID, v cosem.Value) error {
	if err := d.CheckSet(ctx, id, v); err != nil {
		return err
	}
	n, _ := v.Uint()
	switch id {
	case AttrPeriod:
		d.period = time.Duration(n) * time.Second
	case AttrNumberOfPeriods:
		if n == 0 {
			return d.AttrError(id, fmt.Errorf("%w: number_of_periods must be at least 1", datamodel.ErrInvalidValue))
		}
		d.periods = uint16(n)
	}
	d.window = d.window[:0]
	d.sum, d.n = 0, 0
	d.start = d.align(d.clock.Now())
	return d.recompute()
}

// InvokeMethod implements datamodel.Object.
func (d *DemandRegister) InvokeMethod(ctx context.Context, id datamodel.MethodID, _ cosem.Value) (cosem.Value, error) {
	if err := d.CheckInvoke(ctx, id); err != nil {
		return cosem.Value{}, err
	}
	now := d.clock.Now()
	switch id {
	case MethodReset:
		d.Reset(now)
	case MethodNextPeriod:
		if err := d.closePeriod(now); err != nil {
			return cosem.Value{}, d.MethodError(id, err)
		}
	}
	return cosem.Null(), nil
}

// Reset snapshots current_average_value into last_average_value, clears
// the current average to zero and starts a new period at now.
func (d *DemandRegister) Reset(now time.Time) {
	d.last = d.current
	d.current, _ = register.ResetValue(d.current)
	d.window = d.window[:0]
	d.sum, d.n = 0, 0
	d.captureTime = cosem.NewDateTime(now)
	d.start = now
}

// SaveState implements datamodel.Persistent as structure{current, last,
// status, capture_time, start_time_current, period, number_of_periods}.
func (d *DemandRegister) SaveState() (cosem.Value, error) {
	return cosem.Structure(
		d.current,
		d.last,
		d.status,
		cosem.DateTimeValue(d.captureTime),
		cosem.DateTimeValue(cosem.NewDateTime(d.start)),
		cosem.DoubleLongUnsigned(uint32(d.period/time.Second)),
		cosem.LongUnsigned(d.periods),
	), nil
}

// LoadState implements datamodel.Persistent. The sample accumulator of the
// running period restarts empty.
func (d *DemandRegister) LoadState(state cosem.Value) error {
	e, ok := state.Elements()
	if !ok || len(e) != 7 || e[0].Tag() != d.kind || e[1].Tag() != d.kind {
		return fmt.Errorf("%w: demand register state", datamodel.ErrTypeMismatch)
	}
	ct, ok1 := e[3].DateTime()
	st, ok2 := e[4].DateTime()
	p, ok3 := e[5].Uint()
	n, ok4 := e[6].Uint()
	if !ok1 || !ok2 || !ok3 || !ok4 || n == 0 {
		return fmt.Errorf("%w: demand register state", datamodel.ErrTypeMismatch)
	}
	start, err := st.ToTime()
	if err != nil {
		return fmt.Errorf("%w: start_time_current: %v", datamodel.ErrInvalidValue, err)
	}
	d.current, d.last, d.status, d.captureTime = e[0], e[1], e[2], ct
	d.start = start
	d.period = time.Duration(p) * time.Second
	d.periods = uint16(n)
	d.window = d.window[:0]
	d.sum, d.n = 0, 0
	return nil
}

var (
	_ datamodel.Object     = (*DemandRegister)(nil)
	_ datamodel.Ticker     = (*DemandRegister)(nil)
	_ datamodel.Persistent = (*DemandRegister)(nil)
)
