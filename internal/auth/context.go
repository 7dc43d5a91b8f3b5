package auth

import "context"

type grantContextKey struct{}

// ContextWithGrant attaches the authenticated grant to the context.
func ContextWithGrant(ctx context.Context, grant Grant) context.Context {
	return context.WithValue(ctx, grantContextKey{}, &grant)
}

// GrantFromContext extracts the authenticated grant from the context.
func GrantFromContext(ctx context.Context) (Grant, bool) {
	if ctx == nil {
		return Grant{}, false
	}
	v, ok := ctx.Value(grantContextKey{}).(*Grant)
	if !ok || v == nil {
		return Grant{}, false
	}
	return *v, true
}

// SubjectFromContext returns the authenticated subject ID, if any.
func SubjectFromContext(ctx context.Context) (string, bool) {
	grant, ok := GrantFromContext(ctx)
	if !ok || grant.SubjectID == "" {
		return "", false
	}
	return grant.SubjectID, true
}
