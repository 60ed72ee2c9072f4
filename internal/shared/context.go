package shared

import (
	"context"

	"github.com/hearth-cms/hearth/internal/access"
)

type sessionContextKey struct{}

type principalContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// ContextWithPrincipal stores the request principal in context.
func ContextWithPrincipal(ctx context.Context, p access.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the request principal. Requests that never
// passed the identity middleware are anonymous with no session.
func PrincipalFromContext(ctx context.Context) access.Principal {
	if p, ok := ctx.Value(principalContextKey{}).(access.Principal); ok {
		return p
	}
	return access.Anonymous("")
}
