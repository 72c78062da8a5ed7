package datamodel

import (
	"errors"
	"fmt"

	"github.com/backkem/cosem/pkg/obis"
)

// Errors returned by object operations. They are reported wrapped in an
// *AccessError naming the object and index.
var (
	// ErrUnknownIndex indicates the attribute or method index does not exist.
	ErrUnknownIndex = errors.New("unknown index")

	// ErrReadOnly indicates the attribute does not accept writes.
	ErrReadOnly = errors.New("read-only")

	// ErrTypeMismatch indicates the value kind does not match the attribute.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrInvalidValue indicates the value has the right kind but is not
	// acceptable (range, uniqueness, bounds).
	ErrInvalidValue = errors.New("invalid value")

	// ErrAccessDenied indicates the association lacks the required access.
	ErrAccessDenied = errors.New("access denied")

	// ErrObjectUndefined indicates no object with the given class and
	// logical name is registered.
	ErrObjectUndefined = errors.New("object undefined")

	// ErrObjectExists indicates an object with the same logical name is
	// already registered.
	ErrObjectExists = errors.New("object already exists")

	// ErrTemporaryFailure indicates the object cannot serve the request now
	// (for example a capture while a capture object is unavailable).
	ErrTemporaryFailure = errors.New("temporary failure")
)

// AccessError reports a failed attribute or method access.
type AccessError struct {
	Class       ClassID
	LogicalName obis.Code
	Index       uint8
	Method      bool
	Err         error
}

func (e *AccessError) Error() string {
	kind := "attribute"
	if e.Method {
		kind = "method"
	}
	return fmt.Sprintf("%s %s %s %d: %v", e.Class, e.LogicalName, kind, e.Index, e.Err)
}

func (e *AccessError) Unwrap() error { return e.Err }

// DataAccessResult is the DLMS result code for Get and Set.
type DataAccessResult uint8

const (
	ResultSuccess              DataAccessResult = 0
	ResultHardwareFault        DataAccessResult = 1
	ResultTemporaryFailure     DataAccessResult = 2
	ResultReadWriteDenied      DataAccessResult = 3
	ResultObjectUndefined      DataAccessResult = 4
	ResultObjectClassMismatch  DataAccessResult = 9
	ResultObjectUnavailable    DataAccessResult = 11
	ResultTypeUnmatched        DataAccessResult = 12
	ResultScopeOfAccessViolate DataAccessResult = 13
	ResultOtherReason          DataAccessResult = 250
)

// String returns the DLMS name of the result.
func (r DataAccessResult) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultHardwareFault:
		return "hardware-fault"
	case ResultTemporaryFailure:
		return "temporary-failure"
	case ResultReadWriteDenied:
		return "read-write-denied"
	case ResultObjectUndefined:
		return "object-undefined"
	case ResultObjectClassMismatch:
		return "object-class-inconsistent"
	case ResultObjectUnavailable:
		return "object-unavailable"
	case ResultTypeUnmatched:
		return "type-unmatched"
	case ResultScopeOfAccessViolate:
		return "scope-of-access-violated"
	default:
		return "other-reason"
	}
}

// ResultFor maps an error from an object operation to the result code
// carried in the response. A nil error maps to success.
func ResultFor(err error) DataAccessResult {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, ErrUnknownIndex), errors.Is(err, ErrObjectUndefined):
		return ResultObjectUndefined
	case errors.Is(err, ErrReadOnly), errors.Is(err, ErrAccessDenied):
		return ResultReadWriteDenied
	case errors.Is(err, ErrTypeMismatch):
		return ResultTypeUnmatched
	case errors.Is(err, ErrInvalidValue):
		return ResultOtherReason
	case errors.Is(err, ErrTemporaryFailure):
		return ResultTemporaryFailure
	}
	return ResultOtherReason
}

// ActionResult is the DLMS result code for Action. The codes share their
// numbering with DataAccessResult.
type ActionResult = DataAccessResult
