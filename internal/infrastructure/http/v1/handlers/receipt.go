package handlers

import (
	"github.com/gin-gonic/gin"

	"storeflow/internal/domain/receipts"
	"storeflow/internal/infrastructure/http/v1/dto"
)

// ReceiptHandler handles HTTP requests for goods receipts.
type ReceiptHandler struct {
	*BaseHandler
	service *receipts.Service
}

// NewReceiptHandler creates a new goods receipt handler.
func NewReceiptHandler(base *BaseHandler, service *receipts.Service) *ReceiptHandler {
	return &ReceiptHandler{BaseHandler: base, service: service}
}

// List handles GET /receipts
func (h *ReceiptHandler) List(c *gin.Context) {
	var q dto.ReceiptQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter := receipts.ListFilter{Statuses: q.Statuses(), Limit: q.Limit, Offset: q.Offset}
	var ok bool
	if filter.ShipmentID, ok = h.OptionalID(c, "shipmentId", q.ShipmentID); !ok {
		return
	}

	result, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, listResponse(result))
}

// Create handles POST /receipts
func (h *ReceiptHandler) Create(c *gin.Context) {
	var req dto.CreateReceiptRequest
	if !h.BindJSON(c, &req) {
		return
	}
	rc, err := h.service.Create(c.Request.Context(), req.ToRequest())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, rc)
}

// Get handles GET /receipts/:id
func (h *ReceiptHandler) Get(c *gin.Context) { getDocument(h.BaseHandler, h.service.Get)(c) }

// Confirm handles POST /receipts/:id/confirm
func (h *ReceiptHandler) Confirm(c *gin.Context) {
	documentAction(h.BaseHandler, h.service.Confirm)(c)
}

// Cancel handles POST /receipts/:id/cancel
func (h *ReceiptHandler) Cancel(c *gin.Context) { documentAction(h.BaseHandler, h.service.Cancel)(c) }
