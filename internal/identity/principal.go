// Package identity verifies bearer tokens issued by the auth provider and
// carries the resulting principal through request contexts.
package identity

import (
	"context"

	"github.com/google/uuid"
)

// Principal is the authenticated caller. Tenant membership is looked up
// from UserID; the token itself grants no tenant.
type Principal struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Name   string    `json:"name,omitempty"`
}

type contextKey string

const principalKey contextKey = "principal"

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext extracts the principal from request context
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
