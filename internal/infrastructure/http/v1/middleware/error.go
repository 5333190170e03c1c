package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storeflow/internal/core/apperror"
	"storeflow/internal/core/idempotency"
	"storeflow/internal/infrastructure/http/v1/dto"
	"storeflow/internal/infrastructure/http/v1/handlers"
	"storeflow/pkg/logger"
)

// ErrorHandler renders the last error a handler recorded. Messages of 5xx
// errors are replaced; the cause is logged.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		appErr, ok := apperror.AsAppError(err)
		if !ok {
			appErr = apperror.NewInternal(err)
		}
		if appErr.Err != nil || appErr.HTTPStatus >= http.StatusInternalServerError {
			logger.Error(c.Request.Context(), "request failed", "code", appErr.Code, "route", c.FullPath(), "error", err)
		}
		writeError(c, appErr)
	}
}

// writeError sends the error body and records it under the request's
// idempotency key, so a retry sees the same failure.
func writeError(c *gin.Context, appErr *apperror.AppError) {
	body := dto.ErrorResponse{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details}
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		body.Message = "Internal server error"
		body.Details = map[string]any{"request_id": c.GetString(ctxRequestID)}
	}

	if key := c.GetString(handlers.CtxIdempotencyKey); key != "" {
		v, _ := c.Get(handlers.CtxIdempotencyStore)
		if store, ok := v.(idempotency.Store); ok {
			if err := store.FailKey(c.Request.Context(), key, appErr.HTTPStatus, "application/json", body); err != nil {
				logger.Warn(c.Request.Context(), "idempotency key not failed", "key", key, "error", err)
			}
		}
	}
	c.AbortWithStatusJSON(appErr.HTTPStatus, body)
}
