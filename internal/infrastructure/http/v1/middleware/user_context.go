package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "storeflow/internal/core/context"
)

// LocalUser runs unauthenticated requests as the system actor with the admin
// role. Used when AUTH_REQUIRED is off, so ledger rows and audit entries still
// name an actor.
func LocalUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if appctx.GetUser(c.Request.Context()) == nil {
			setUser(c, &appctx.UserContext{
				UserID: appctx.SystemActor,
				Roles:  []string{RoleAdmin},
			})
		}
		c.Next()
	}
}
