// Package authctx carries the verified caller between the HTTP layer and the
// domain services. Services receive a Caller as an explicit argument; the
// context helpers exist only for middleware-to-handler hand-off.
package authctx

import (
	"context"
)

type Role string

const (
	RoleClient    Role = "client"
	RoleVolunteer Role = "volunteer"
	RoleAdmin     Role = "admin"
)

type Caller struct {
	UID   string
	Email string
	Role  Role
}

func (c Caller) IsZero() bool { return c.UID == "" }

func (c Caller) Is(r Role) bool {
	return c.Role == r || c.Role == RoleAdmin
}

// FromClaims builds a Caller from verified token claims. Unknown or missing
// roles fall back to client.
func FromClaims(uid string, claims map[string]any) Caller {
	c := Caller{UID: uid, Role: RoleClient}
	if v, ok := claims["email"].(string); ok {
		c.Email = v
	}
	if v, ok := claims["role"].(string); ok {
		switch Role(v) {
		case RoleVolunteer, RoleAdmin:
			c.Role = Role(v)
		}
	}
	if admin, ok := claims["admin"].(bool); ok && admin {
		c.Role = RoleAdmin
	}
	return c
}

type ctxKey string

const callerKey ctxKey = "caller"

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

func FromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey).(Caller)
	return c, ok && !c.IsZero()
}
