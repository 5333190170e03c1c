// Package handlers adapts the domain services to gin. Handlers report
// failures with c.Error; middleware.ErrorHandler writes the body.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"storeflow/internal/core/apperror"
	"storeflow/internal/core/id"
	"storeflow/internal/core/idempotency"
	"storeflow/internal/infrastructure/http/v1/dto"
	"storeflow/pkg/logger"
)

// Keys under which the idempotency middleware parks the request's key and store.
const (
	CtxIdempotencyKey   = "idempotency_key"
	CtxIdempotencyStore = "idempotency_store"
)

// BaseHandler holds the binding and response helpers every handler embeds.
type BaseHandler struct{}

func NewBaseHandler() *BaseHandler { return &BaseHandler{} }

// Error aborts the request with err.
func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

func (h *BaseHandler) invalid(c *gin.Context, message string, kv ...string) bool {
	e := apperror.NewValidation(message)
	for i := 0; i+1 < len(kv); i += 2 {
		e.WithDetail(kv[i], kv[i+1])
	}
	h.Error(c, e)
	return false
}

// BindJSON decodes and validates the body.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		return h.invalid(c, "invalid request body", "error", err.Error())
	}
	return true
}

// BindOptionalJSON is BindJSON for actions whose body may be empty.
func (h *BaseHandler) BindOptionalJSON(c *gin.Context, obj any) bool {
	return c.Request.ContentLength == 0 || h.BindJSON(c, obj)
}

// BindQuery decodes and validates query parameters.
func (h *BaseHandler) BindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		return h.invalid(c, "invalid query parameters", "error", err.Error())
	}
	return true
}

// PathID parses :id.
func (h *BaseHandler) PathID(c *gin.Context) (id.ID, bool) {
	raw := c.Param("id")
	v, err := id.Parse(raw)
	if err != nil {
		return id.Nil, h.invalid(c, "invalid id format", "id", raw)
	}
	return v, true
}

// OptionalID parses a query value that may be absent.
func (h *BaseHandler) OptionalID(c *gin.Context, field, raw string) (*id.ID, bool) {
	if raw == "" {
		return nil, true
	}
	v, err := id.Parse(raw)
	if err != nil {
		return nil, h.invalid(c, "invalid "+field+" format", field, raw)
	}
	return &v, true
}

// OptionalDate parses a YYYY-MM-DD or RFC 3339 query value that may be absent.
func (h *BaseHandler) OptionalDate(c *gin.Context, field, raw string) (*time.Time, bool) {
	if raw == "" {
		return nil, true
	}
	t, err := dto.ParseDate(raw)
	if err != nil {
		return nil, h.invalid(c, err.Error(), "field", field)
	}
	return &t, true
}

func (h *BaseHandler) OK(c *gin.Context, data any)      { h.respond(c, http.StatusOK, data) }
func (h *BaseHandler) Created(c *gin.Context, data any) { h.respond(c, http.StatusCreated, data) }

// respond writes data and, under an idempotency key, stores it for replay.
func (h *BaseHandler) respond(c *gin.Context, status int, data any) {
	if key := c.GetString(CtxIdempotencyKey); key != "" {
		v, _ := c.Get(CtxIdempotencyStore)
		if store, ok := v.(idempotency.Store); ok {
			if err := store.CompleteKey(c.Request.Context(), key, status, "application/json", data); err != nil {
				logger.Warn(c.Request.Context(), "idempotency key not completed", "key", key, "error", err)
			}
		}
	}
	c.JSON(status, data)
}
