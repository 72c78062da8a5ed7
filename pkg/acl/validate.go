package acl

import "errors"

// Validation errors.
var (
	ErrInvalidAuthMode  = errors.New("acl: invalid auth mode")
	ErrInvalidPrivilege = errors.New("acl: invalid privilege")
	ErrInvalidClient    = errors.New("acl: invalid client SAP")
	ErrTargetEmpty      = errors.New("acl: target must have at least one field set")
)

// ValidateEntry checks if an entry is well formed:
//   - Privilege and AuthMode must be defined values
//   - Client SAP 0 (no station) is not a client
//   - Targets must not be empty
func ValidateEntry(entry *Entry) error {
	if !entry.AuthMode.IsValid() {
		return ErrInvalidAuthMode
	}
	if !entry.Privilege.IsValid() {
		return ErrInvalidPrivilege
	}
	for _, c := range entry.Clients {
		if c == 0 {
			return ErrInvalidClient
		}
	}
	for _, t := range entry.Targets {
		if t.IsEmpty() {
			return ErrTargetEmpty
		}
	}
	return nil
}
