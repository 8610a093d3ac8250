package auth

import (
	"context"

	"github.com/rawdatain/backoffice/internal/shared"
)

type identityContextKey struct{}

type bearerContextKey struct{}

// WithIdentity stores the identity in context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok || id.UID == "" {
		return Identity{}, false
	}
	return id, true
}

// Require returns the identity or shared.ErrUnauthorized.
func Require(ctx context.Context) (Identity, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return Identity{}, shared.ErrUnauthorized
	}
	return id, nil
}

func withBearer(ctx context.Context) context.Context {
	return context.WithValue(ctx, bearerContextKey{}, true)
}

// ViaBearer reports whether the request authenticated with a bearer token.
func ViaBearer(ctx context.Context) bool {
	v, _ := ctx.Value(bearerContextKey{}).(bool)
	return v
}
