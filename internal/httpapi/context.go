package httpapi

import (
	"context"

	"github.com/google/uuid"
)

// Identity is the authenticated caller, as established by the upstream auth
// gateway. Authentication mechanics are outside this service; it only
// consumes the verified result.
type Identity struct {
	UserID uuid.UUID
	Email  string
}

type ctxKey struct{}

// WithIdentity returns a context carrying the caller identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IdentityFromContext extracts the caller identity from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
