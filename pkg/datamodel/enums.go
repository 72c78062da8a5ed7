// Package datamodel provides the foundational interfaces and types for the
// COSEM object model (IEC 62056-6-2).
//
// Every COSEM object is an instance of an interface class identified by a
// class id and addressed by a six-octet logical name. Attributes and methods
// are addressed by index; attribute 1 is always the read-only logical name.
// This package sits between the collaborator facade (pkg/service) and the
// concrete classes (pkg/classes/*).
package datamodel

import "fmt"

// ClassID identifies an interface class.
type ClassID uint16

const (
	ClassData               ClassID = 1
	ClassRegister           ClassID = 3
	ClassExtendedRegister   ClassID = 4
	ClassDemandRegister     ClassID = 5
	ClassRegisterActivation ClassID = 6
	ClassProfileGeneric     ClassID = 7
	ClassClock              ClassID = 8
	ClassScriptTable        ClassID = 9
	ClassSchedule           ClassID = 10
	ClassSpecialDaysTable   ClassID = 11
)

// String returns the class name.
func (c ClassID) String() string {
	switch c {
	case ClassData:
		return "Data"
	case ClassRegister:
		return "Register"
	case ClassExtendedRegister:
		return "ExtendedRegister"
	case ClassDemandRegister:
		return "DemandRegister"
	case ClassRegisterActivation:
		return "RegisterActivation"
	case ClassProfileGeneric:
		return "ProfileGeneric"
	case ClassClock:
		return "Clock"
	case ClassScriptTable:
		return "ScriptTable"
	case ClassSchedule:
		return "Schedule"
	case ClassSpecialDaysTable:
		return "SpecialDaysTable"
	default:
		return fmt.Sprintf("Class(%d)", uint16(c))
	}
}

// AttributeID is a 1-based attribute index.
type AttributeID uint8

// MethodID is a 1-based method index.
type MethodID uint8

// AttrLogicalName is the logical name attribute present on every class.
const AttrLogicalName AttributeID = 1

// AttributeAccess is the access mode granted on an attribute.
type AttributeAccess uint8

const (
	AccessNone AttributeAccess = iota
	AccessRead
	AccessWrite
	AccessReadWrite
	AccessAuthenticatedRead
	AccessAuthenticatedWrite
	AccessAuthenticatedReadWrite
)

// String returns the IEC 62056-53 name of the access mode.
func (a AttributeAccess) String() string {
	switch a {
	case AccessNone:
		return "no-access"
	case AccessRead:
		return "read-only"
	case AccessWrite:
		return "write-only"
	case AccessReadWrite:
		return "read-and-write"
	case AccessAuthenticatedRead:
		return "authenticated-read-only"
	case AccessAuthenticatedWrite:
		return "authenticated-write-only"
	case AccessAuthenticatedReadWrite:
		return "authenticated-read-and-write"
	default:
		return "unknown"
	}
}

// CanRead reports whether reads are permitted for an association that is
// or is not authenticated.
func (a AttributeAccess) CanRead(authenticated bool) bool {
	switch a {
	case AccessRead, AccessReadWrite:
		return true
	case AccessAuthenticatedRead, AccessAuthenticatedReadWrite:
		return authenticated
	}
	return false
}

// CanWrite reports whether writes are permitted.
func (a AttributeAccess) CanWrite(authenticated bool) bool {
	switch a {
	case AccessWrite, AccessReadWrite:
		return true
	case AccessAuthenticatedWrite, AccessAuthenticatedReadWrite:
		return authenticated
	}
	return false
}

// MethodAccess is the access mode granted on a method.
type MethodAccess uint8

const (
	MethodNoAccess MethodAccess = iota
	MethodAccessible
	MethodAuthenticatedAccess
)

// String returns the IEC 62056-53 name of the access mode.
func (m MethodAccess) String() string {
	switch m {
	case MethodNoAccess:
		return "no-access"
	case MethodAccessible:
		return "access"
	case MethodAuthenticatedAccess:
		return "authenticated-access"
	default:
		return "unknown"
	}
}

// CanInvoke reports whether the method may be invoked.
func (m MethodAccess) CanInvoke(authenticated bool) bool {
	return m == MethodAccessible || (m == MethodAuthenticatedAccess && authenticated)
}
