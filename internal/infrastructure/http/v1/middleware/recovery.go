// Package middleware holds the gin middleware of the v1 API.
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"storeflow/internal/core/apperror"
	"storeflow/pkg/logger"
)

// Recovery answers a panic with INTERNAL_ERROR and logs the stack. It is the
// outermost middleware, so ErrorHandler has already unwound when it runs.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			logger.Error(c.Request.Context(), "panic recovered", "panic", p, "route", c.FullPath(), "stack", string(debug.Stack()))
			if c.Writer.Written() {
				c.Abort()
				return
			}
			writeError(c, apperror.NewInternal(fmt.Errorf("panic: %v", p)))
		}()
		c.Next()
	}
}
