// Package identity verifies session credentials and maps provider claims to
// a stable Identity.
package identity

import (
	"context"
	"errors"
)

// ErrUnauthenticated is the only error verifiers return to callers. Why a
// credential was rejected (malformed, bad signature, expired, provider
// failure) is logged, never surfaced.
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is the verified caller. It lives for one request.
type Identity struct {
	ID     string
	Email  *string
	Claims ClaimSet
}

// Verifier turns a presented credential into an Identity.
type Verifier interface {
	Verify(ctx context.Context, credential string) (Identity, error)
}

type ctxKey struct{}

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext reads the identity attached by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && id.ID != ""
}
