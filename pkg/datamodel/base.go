package datamodel

import (
	"context"
	"fmt"

	"github.com/backkem/cosem/pkg/cosem"
	"github.com/backkem/cosem/pkg/obis"
)

// Base provides common functionality for interface class implementations.
// Embed it in every class to get identity, metadata, access checks and the
// logical name attribute.
type Base struct {
	class   ClassID
	version uint8
	name    obis.Code
	attrs   []AttributeEntry
	methods []MethodEntry
}

// NewBase creates a base for a class instance. The logical name attribute
// is prepended to attrs.
func NewBase(class ClassID, version uint8, name obis.Code, attrs []AttributeEntry, methods []MethodEntry) Base {
	all := make([]AttributeEntry, 0, len(attrs)+1)
	all = append(all, LogicalNameAttribute())
	all = append(all, attrs...)
	return Base{class: class, version: version, name: name, attrs: all, methods: methods}
}

func (b *Base) sealed() *Base { return b }

// ClassID returns the interface class.
func (b *Base) ClassID() ClassID { return b.class }

// Version returns the class version.
func (b *Base) Version() uint8 { return b.version }

// LogicalName returns the OBIS code.
func (b *Base) LogicalName() obis.Code { return b.name }

// Attributes returns the attribute metadata.
func (b *Base) Attributes() []AttributeEntry { return b.attrs }

// Methods returns the method metadata.
func (b *Base) Methods() []MethodEntry { return b.methods }

// SetAccess overrides the access mode of an attribute, e.g. to make an
// attribute authenticated-only on a particular instance.
func (b *Base) SetAccess(id AttributeID, access AttributeAccess) {
	if id == AttrLogicalName {
		return
	}
	if a := FindAttribute(b.attrs, id); a != nil {
		a.Access = access
	}
}

// SetMethodAccess overrides the access mode of a method.
func (b *Base) SetMethodAccess(id MethodID, access MethodAccess) {
	if m := FindMethod(b.methods, id); m != nil {
		m.Access = access
	}
}

// AttrError wraps err in an AccessError for attribute id.
func (b *Base) AttrError(id AttributeID, err error) error {
	return &AccessError{Class: b.class, LogicalName: b.name, Index: uint8(id), Err: err}
}

// MethodError wraps err in an AccessError for method id.
func (b *Base) MethodError(id MethodID, err error) error {
	return &AccessError{Class: b.class, LogicalName: b.name, Index: uint8(id), Method: true, Err: err}
}

// CheckGet validates a read of attribute id.
func (b *Base) CheckGet(ctx context.Context, id AttributeID) error {
	a := FindAttribute(b.attrs, id)
	if a == nil {
		return b.AttrError(id, ErrUnknownIndex)
	}
	if !a.Access.CanRead(IsAuthenticated(ctx)) {
		return b.AttrError(id, ErrAccessDenied)
	}
	return nil
}

// CheckSet validates a write of v to attribute id: the index exists, the
// attribute is writable, v has the declared kind and is itself valid.
func (b *Base) CheckSet(ctx context.Context, id AttributeID, v cosem.Value) error {
	a := FindAttribute(b.attrs, id)
	if a == nil {
		return b.AttrError(id, ErrUnknownIndex)
	}
	auth := IsAuthenticated(ctx)
	if id == AttrLogicalName || !a.Access.CanWrite(true) {
		return b.AttrError(id, ErrReadOnly)
	}
	if !a.Access.CanWrite(auth) {
		return b.AttrError(id, ErrAccessDenied)
	}
	if err := a.Accepts(v); err != nil {
		return b.AttrError(id, err)
	}
	if err := v.Validate(); err != nil {
		return b.AttrError(id, fmt.Errorf("%w: %v", ErrInvalidValue, err))
	}
	return nil
}

// CheckInvoke validates an invocation of method id.
func (b *Base) CheckInvoke(ctx context.Context, id MethodID) error {
	m := FindMethod(b.methods, id)
	if m == nil {
		return b.MethodError(id, ErrUnknownIndex)
	}
	if !m.Access.CanInvoke(IsAuthenticated(ctx)) {
		return b.MethodError(id, ErrAccessDenied)
	}
	return nil
}

// GetLogicalName serves attribute 1. Classes call it from GetAttribute
// after CheckGet.
func (b *Base) GetLogicalName() cosem.Value {
	return b.name.Value()
}

// Describe returns structure{class_id, logical_name, attribute values...}
// with one element per readable attribute in index order. Unreadable
// attributes appear as null-data.
func Describe(ctx context.Context, obj Object) (cosem.Value, error) {
	elems := []cosem.Value{cosem.LongUnsigned(uint16(obj.ClassID()))}
	for _, a := range obj.Attributes() {
		if !a.Access.CanRead(IsAuthenticated(ctx)) {
			elems = append(elems, cosem.Null())
			continue
		}
		v, err := obj.GetAttribute(ctx, a.ID)
		if err != nil {
			return cosem.Value{}, err
		}
		elems = append(elems, v)
	}
	return cosem.Structure(elems...), nil
}
