package shared

import "context"

// Identity describes the authenticated actor attached to a request.
type Identity struct {
	UserID   int64
	Username string
	TokenID  string
	Roles    []string
}

// HasRole reports whether the identity carries the named role.
func (id *Identity) HasRole(name string) bool {
	if id == nil {
		return false
	}
	for _, r := range id.Roles {
		if r == name {
			return true
		}
	}
	return false
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context, or nil when the
// request is anonymous.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	return id
}
