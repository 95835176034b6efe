package auth

import (
	"context"
)

// Principal identifies the caller of a request.
type Principal struct {
	UserID     int64
	Published  bool
	Superadmin bool
}

// Published is the distinguished anonymous principal used for published
// widgets. It bypasses permission filtering entirely; every bypass branch must
// test Principal.Published explicitly.
var PublishedPrincipal = Principal{Published: true}

// EffectiveUserID is the user id used in SQL read-set joins. Published
// requests run as the catalog superuser, matching the provisioning convention
// that user 1 is granted everything.
func (p Principal) EffectiveUserID() int64 {
	if p.Published {
		return 1
	}
	return p.UserID
}

type contextKey string

const principalKey contextKey = "principal"

// ContextWithPrincipal returns a new context carrying the authenticated caller.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext retrieves the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
