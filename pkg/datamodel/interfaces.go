package datamodel

import (
	"context"
	"time"

	"github.com/backkem/cosem/pkg/cosem"
	"github.com/backkem/cosem/pkg/obis"
)

// Object is an instance of a COSEM interface class.
//
// The set of implementations is closed: every Object embeds Base, which
// carries the unexported method that seals the interface. Objects are not
// internally synchronized; callers serialize access per instance.
type Object interface {
	// ClassID returns the interface class.
	ClassID() ClassID

	// Version returns the interface class version.
	Version() uint8

	// LogicalName returns the object's OBIS code.
	LogicalName() obis.Code

	// Attributes returns metadata for all attributes, including attribute 1.
	Attributes() []AttributeEntry

	// Methods returns metadata for all methods.
	Methods() []MethodEntry

	// GetAttribute returns the current value of attribute id.
	GetAttribute(ctx context.Context, id AttributeID) (cosem.Value, error)

	// SetAttribute replaces the value of attribute id.
	SetAttribute(ctx context.Context, id AttributeID, v cosem.Value) error

	// InvokeMethod runs method id with param and returns its result,
	// null-data for methods without return data.
	InvokeMethod(ctx context.Context, id MethodID, param cosem.Value) (cosem.Value, error)

	sealed() *Base
}

// SelectiveReader is an optional interface for objects that support
// selective access on some attributes (Profile Generic buffer).
type SelectiveReader interface {
	Object

	// GetAttributeSelective reads attribute id filtered by sel.
	GetAttributeSelective(ctx context.Context, id AttributeID, sel AccessSelector) (cosem.Value, error)
}

// Ticker is an optional interface for objects driven by the clock tick
// (Schedule, Profile Generic periodic capture, Demand Register periods).
type Ticker interface {
	Object

	// Tick advances the object to now.
	Tick(ctx context.Context, now time.Time) error
}

// Persistent is an optional interface for objects whose state survives a
// restart. The state is an opaque value in a shape chosen by the object.
type Persistent interface {
	Object

	// SaveState returns the object's persisted state.
	SaveState() (cosem.Value, error)

	// LoadState restores state produced by SaveState.
	LoadState(state cosem.Value) error
}

// Resolver looks up objects by class and logical name. It is how objects
// that reference other objects (scripts, profiles, activation tables)
// reach them.
type Resolver interface {
	// Lookup returns the object or an error wrapping ErrObjectUndefined.
	Lookup(class ClassID, name obis.Code) (Object, error)
}

// TimeSource supplies the current time.
type TimeSource interface {
	Now() time.Time
}

// DateTimeSource is an optional interface for time sources that can report
// the current time as a COSEM date-time with deviation and clock status.
type DateTimeSource interface {
	TimeSource
	DateTime() cosem.DateTime
}

// ChangeListener is notified when an attribute value changes through a
// Set or as a side effect of an Action.
type ChangeListener interface {
	// OnAttributeChanged is called after the change is applied.
	OnAttributeChanged(ref AttributeRef)
}

// SystemTime is a TimeSource backed by the host clock.
type SystemTime struct{}

// Now returns time.Now().
func (SystemTime) Now() time.Time { return time.Now() }

// CurrentDateTime returns the current time of ts as a date-time, using
// DateTimeSource when ts implements it.
func CurrentDateTime(ts TimeSource) cosem.DateTime {
	if dts, ok := ts.(DateTimeSource); ok {
		return dts.DateTime()
	}
	return cosem.NewDateTime(ts.Now())
}
