// Package context carries the caller and request identity through
// context.Context.
package context

import (
	"context"
	"slices"
)

// SystemActor is recorded when no user is attached: workers, migrations and
// local runs with auth disabled.
const SystemActor = "system"

// UserContext is the caller as established by the auth middleware.
type UserContext struct {
	UserID      string
	Email       string
	Roles       []string
	LocationIDs []string // stores or kitchens the user works at
}

// HasAnyRole reports whether u holds one of roles.
func (u *UserContext) HasAnyRole(roles ...string) bool {
	if u == nil {
		return false
	}
	return slices.ContainsFunc(u.Roles, func(r string) bool { return slices.Contains(roles, r) })
}

type userKey struct{}

// WithUser attaches u to ctx.
func WithUser(ctx context.Context, u *UserContext) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// GetUser returns the caller, or nil.
func GetUser(ctx context.Context) *UserContext {
	u, _ := ctx.Value(userKey{}).(*UserContext)
	return u
}

// GetUserID returns the caller's id, or "".
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.UserID
	}
	return ""
}

// GetActor is the name stamped on created_by columns and ledger rows.
func GetActor(ctx context.Context) string {
	if uid := GetUserID(ctx); uid != "" {
		return uid
	}
	return SystemActor
}
