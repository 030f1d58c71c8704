// Package auth carries the caller identity through a request context.
// Identities are issued and validated by the membership service upstream;
// this package only transports them.
package auth

import (
	"context"
	"errors"
)

type identityKey struct{}

// ErrNoIdentity means the context carries no complete identity.
var ErrNoIdentity = errors.New("no identity in context")

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity carried by ctx. Missing fields count
// as no identity at all.
func IdentityFrom(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	if !ok || !id.Valid() {
		return Identity{}, ErrNoIdentity
	}
	return id, nil
}
