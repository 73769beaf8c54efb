package authz

import "context"

type contextKey struct{}

var principalKey contextKey

// WithPrincipal adds the principal to the context.
// Returns a new context with the principal set.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext retrieves the principal from the context.
// Returns an anonymous principal if none is set.
func FromContext(ctx context.Context) Principal {
	if p, ok := ctx.Value(principalKey).(Principal); ok {
		return p
	}
	return Principal{}
}
