package datamodel

import "context"

// Association describes the application association an operation runs in.
// Operations without an association in their context are internal (run by
// the device itself, e.g. a schedule firing) and have full access.
type Association struct {
	// Authenticated is true after HLS authentication completed.
	Authenticated bool

	// ClientSAP identifies the client, for logging.
	ClientSAP uint16
}

type associationKey struct{}

// WithAssociation attaches an association to ctx.
func WithAssociation(ctx context.Context, a Association) context.Context {
	return context.WithValue(ctx, associationKey{}, a)
}

// AssociationFrom returns the association attached to ctx.
func AssociationFrom(ctx context.Context) (Association, bool) {
	a, ok := ctx.Value(associationKey{}).(Association)
	return a, ok
}

// IsAuthenticated reports whether ctx carries authenticated access.
// Internal operations count as authenticated.
func IsAuthenticated(ctx context.Context) bool {
	a, ok := AssociationFrom(ctx)
	return !ok || a.Authenticated
}
