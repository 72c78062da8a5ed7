package acl

import (
	"github.com/backkem/cosem/pkg/datamodel"
	"github.com/backkem/cosem/pkg/obis"
)

// Target defines which objects an entry grants access to. A nil field
// matches any value; at least one field must be set.
type Target struct {
	Class       *datamodel.ClassID
	LogicalName *obis.Code
}

// NewTargetClass creates a target matching every object of a class.
func NewTargetClass(class datamodel.ClassID) Target {
	return Target{Class: &class}
}

// NewTargetObject creates a target matching one object.
func NewTargetObject(class datamodel.ClassID, ln obis.Code) Target {
	return Target{Class: &class, LogicalName: &ln}
}

// IsEmpty returns true if no fields are set.
func (t Target) IsEmpty() bool {
	return t.Class == nil && t.LogicalName == nil
}

// Matches reports whether the target covers the object.
func (t Target) Matches(class datamodel.ClassID, ln obis.Code) bool {
	if t.Class != nil && *t.Class != class {
		return false
	}
	return t.LogicalName == nil || *t.LogicalName == ln
}

// Entry grants Privilege to Clients on Targets.
//   - Clients: client SAPs (empty = any client)
//   - Targets: objects (empty = every object)
type Entry struct {
	Privilege Privilege
	AuthMode  AuthMode
	Clients   []uint16
	Targets   []Target
}

// RequestPath describes the object an operation addresses.
type RequestPath struct {
	Class       datamodel.ClassID
	LogicalName obis.Code
}
