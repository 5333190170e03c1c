package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"storeflow/internal/core/apperror"
	appctx "storeflow/internal/core/context"
)

// JWTValidator turns a bearer token into the calling user.
type JWTValidator interface {
	ValidateToken(tokenString string) (*appctx.UserContext, error)
}

// Auth rejects requests without a valid bearer token.
func Auth(validator JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, present := bearerToken(c)
		if !present {
			abortUnauthorized(c, "missing bearer token")
			return
		}
		user, err := validator.ValidateToken(token)
		if err != nil || user == nil {
			abortUnauthorized(c, "invalid token")
			return
		}
		setUser(c, user)
		c.Next()
	}
}

// OptionalAuth identifies the caller when a valid token is sent and ignores
// missing or bad tokens.
func OptionalAuth(validator JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			if user, err := validator.ValidateToken(token); err == nil && user != nil {
				setUser(c, user)
			}
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func setUser(c *gin.Context, user *appctx.UserContext) {
	c.Request = c.Request.WithContext(appctx.WithUser(c.Request.Context(), user))
	c.Set("user_id", user.UserID)
}

func abortUnauthorized(c *gin.Context, message string) {
	_ = c.Error(apperror.NewUnauthorized(message))
	c.Abort()
}
