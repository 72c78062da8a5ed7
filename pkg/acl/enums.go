package acl

// Privilege defines access privilege levels.
// Higher privileges subsume lower ones (Manage > Operate > View).
type Privilege uint8

const (
	// PrivilegeView allows reading attributes.
	PrivilegeView Privilege = 1

	// PrivilegeOperate allows View plus invoking methods.
	PrivilegeOperate Privilege = 2

	// PrivilegeManage allows Operate plus writing attributes.
	PrivilegeManage Privilege = 3
)

// String returns the privilege name.
func (p Privilege) String() string {
	switch p {
	case PrivilegeView:
		return "view"
	case PrivilegeOperate:
		return "operate"
	case PrivilegeManage:
		return "manage"
	default:
		return "unknown"
	}
}

// IsValid returns true if the privilege is a defined value.
func (p Privilege) IsValid() bool {
	return p >= PrivilegeView && p <= PrivilegeManage
}

// Grants returns true if this privilege level grants the requested privilege.
func (p Privilege) Grants(requested Privilege) bool {
	return p.IsValid() && requested.IsValid() && requested <= p
}

// AuthMode is the authentication an entry requires of the association.
type AuthMode uint8

const (
	// AuthModeUnknown indicates an uninitialized or invalid mode.
	AuthModeUnknown AuthMode = 0

	// AuthModePublic matches any association.
	AuthModePublic AuthMode = 1

	// AuthModeHLS matches only associations that completed HLS.
	AuthModeHLS AuthMode = 2
)

// String returns the auth mode name.
func (m AuthMode) String() string {
	switch m {
	case AuthModePublic:
		return "public"
	case AuthModeHLS:
		return "hls"
	default:
		return "unknown"
	}
}

// IsValid returns true if the auth mode is a defined value (excluding Unknown).
func (m AuthMode) IsValid() bool {
	return m == AuthModePublic || m == AuthModeHLS
}

// Result represents the outcome of an access control check.
type Result uint8

const (
	// ResultDenied indicates no entry granted access.
	ResultDenied Result = iota

	// ResultAllowed indicates access was granted by an entry, or the
	// operation is internal.
	ResultAllowed
)

// String returns the result name.
func (r Result) String() string {
	switch r {
	case ResultDenied:
		return "denied"
	case ResultAllowed:
		return "allowed"
	default:
		return "unknown"
	}
}
