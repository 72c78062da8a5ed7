package datamodel

import (
	"fmt"

	"github.com/backkem/cosem/pkg/cosem"
)

// AttributeEntry describes an attribute's metadata.
// Used for discovery, access checks and type checks on Set.
type AttributeEntry struct {
	// ID is the attribute index.
	ID AttributeID

	// Name is the Blue Book attribute name, e.g. "scaler_unit".
	Name string

	// Type is the expected value kind. cosem.TagDontCare accepts any kind.
	Type cosem.Tag

	// Access is the access mode of the attribute.
	Access AttributeAccess

	// Nullable allows null-data in addition to Type.
	Nullable bool
}

// Accepts checks that v has a kind the attribute can hold. Date and time
// attributes also accept an octet-string of the encoded size.
func (a *AttributeEntry) Accepts(v cosem.Value) error {
	t := v.Tag()
	switch {
	case a.Type == cosem.TagDontCare, a.Type == t:
		return nil
	case a.Nullable && t == cosem.TagNull:
		return nil
	case a.Type.IsTimeLike() && t == cosem.TagOctetString && v.Len() == a.Type.FixedSize():
		return nil
	}
	return fmt.Errorf("%w: %s expects %s, got %s", ErrTypeMismatch, a.Name, a.Type, t)
}

// MethodEntry describes a method's metadata.
type MethodEntry struct {
	// ID is the method index.
	ID MethodID

	// Name is the Blue Book method name, e.g. "reset".
	Name string

	// Access is the access mode of the method.
	Access MethodAccess
}

// LogicalNameAttribute returns the entry for attribute 1.
func LogicalNameAttribute() AttributeEntry {
	return AttributeEntry{ID: AttrLogicalName, Name: "logical_name", Type: cosem.TagOctetString, Access: AccessRead}
}

// NewReadOnlyAttribute creates a read-only attribute entry.
func NewReadOnlyAttribute(id AttributeID, name string, t cosem.Tag) AttributeEntry {
	return AttributeEntry{ID: id, Name: name, Type: t, Access: AccessRead}
}

// NewReadWriteAttribute creates a read-write attribute entry.
func NewReadWriteAttribute(id AttributeID, name string, t cosem.Tag) AttributeEntry {
	return AttributeEntry{ID: id, Name: name, Type: t, Access: AccessReadWrite}
}

// NewMethodEntry creates an accessible method entry.
func NewMethodEntry(id MethodID, name string) MethodEntry {
	return MethodEntry{ID: id, Name: name, Access: MethodAccessible}
}

// FindAttribute searches an attribute list for a specific attribute ID.
// Returns nil if not found.
func FindAttribute(list []AttributeEntry, id AttributeID) *AttributeEntry {
	for i := range list {
		if list[i].ID == id {
			return &list[i]
		}
	}
	return nil
}

// FindMethod searches a method list for a specific method ID.
// Returns nil if not found.
func FindMethod(list []MethodEntry, id MethodID) *MethodEntry {
	for i := range list {
		if list[i].ID == id {
			return &list[i]
		}
	}
	return nil
}
