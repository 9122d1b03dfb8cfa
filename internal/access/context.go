// ABOUTME: Context plumbing for propagating the authenticated Principal
// ABOUTME: Provides WithPrincipal/FromContext for request-scoped identity

package access

import (
	"context"
)

// principalKey is the key type for storing a Principal in context.Context.
type principalKey struct{}

// WithPrincipal returns a new context with the principal attached.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext retrieves the principal from the context. The second return
// is false if no principal was attached.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// MustFromContext retrieves the principal from the context, panicking if
// not present. Use only where an auth layer is guaranteed to have run.
func MustFromContext(ctx context.Context) Principal {
	p, ok := FromContext(ctx)
	if !ok {
		panic("access: Principal not found in context")
	}
	return p
}
