package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"storeflow/internal/core/id"
	"storeflow/internal/domain"
	"storeflow/internal/infrastructure/http/v1/dto"
)

// getDocument handles GET /{documents}/:id.
func getDocument[T any](h *BaseHandler, get func(ctx context.Context, docID id.ID) (*T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		docID, ok := h.PathID(c)
		if !ok {
			return
		}
		doc, err := get(c.Request.Context(), docID)
		if err != nil {
			h.Error(c, err)
			return
		}
		h.OK(c, doc)
	}
}

// documentAction handles POST /{documents}/:id/{action} for actions without a body.
func documentAction[T any](h *BaseHandler, action func(ctx context.Context, docID id.ID) (*T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		docID, ok := h.PathID(c)
		if !ok {
			return
		}
		doc, err := action(c.Request.Context(), docID)
		if err != nil {
			h.Error(c, err)
			return
		}
		h.OK(c, doc)
	}
}

// reasonAction handles POST /{documents}/:id/{action} with an optional {"reason"} body.
func reasonAction[T any](h *BaseHandler, action func(ctx context.Context, docID id.ID, reason string) (*T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		docID, ok := h.PathID(c)
		if !ok {
			return
		}
		var req dto.ReasonRequest
		if !h.BindOptionalJSON(c, &req) {
			return
		}
		doc, err := action(c.Request.Context(), docID, req.Reason)
		if err != nil {
			h.Error(c, err)
			return
		}
		h.OK(c, doc)
	}
}

func listResponse[T any](r domain.ListResult[T]) dto.ListResponse[T] {
	return dto.NewListResponse(r.Items, r.TotalCount, r.Limit, r.Offset)
}
