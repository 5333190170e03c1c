package middleware

import (
	"github.com/gin-gonic/gin"

	"storeflow/internal/core/apperror"
	appctx "storeflow/internal/core/context"
)

// Roles carried in access tokens.
const (
	RoleAdmin   = "admin"
	RoleKitchen = "kitchen" // production, dispatch, consolidation
	RoleStore   = "store"   // orders, receipts, returns
)

// RequireRole passes users holding any of roles. Admins pass every check.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := append([]string{RoleAdmin}, roles...)
	return func(c *gin.Context) {
		user := appctx.GetUser(c.Request.Context())
		switch {
		case user == nil:
			_ = c.Error(apperror.NewUnauthorized("authentication required"))
		case !user.HasAnyRole(allowed...):
			_ = c.Error(apperror.NewForbidden("insufficient permissions").WithDetail("required_roles", roles))
		default:
			c.Next()
			return
		}
		c.Abort()
	}
}
