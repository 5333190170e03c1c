package handlers

import (
	"github.com/gin-gonic/gin"

	"storeflow/internal/domain/shipments"
	"storeflow/internal/infrastructure/http/v1/dto"
)

// ShipmentHandler handles HTTP requests for shipments.
type ShipmentHandler struct {
	*BaseHandler
	service *shipments.Service
}

// NewShipmentHandler creates a new shipment handler.
func NewShipmentHandler(base *BaseHandler, service *shipments.Service) *ShipmentHandler {
	return &ShipmentHandler{BaseHandler: base, service: service}
}

// List handles GET /shipments
func (h *ShipmentHandler) List(c *gin.Context) {
	var q dto.ShipmentQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter := shipments.ListFilter{Statuses: q.Statuses(), Limit: q.Limit, Offset: q.Offset}
	var ok bool
	if filter.OrderID, ok = h.OptionalID(c, "orderId", q.OrderID); !ok {
		return
	}
	if filter.FromLocationID, ok = h.OptionalID(c, "fromLocationId", q.FromLocationID); !ok {
		return
	}
	if filter.ToLocationID, ok = h.OptionalID(c, "toLocationId", q.ToLocationID); !ok {
		return
	}

	result, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, listResponse(result))
}

// Create handles POST /shipments
func (h *ShipmentHandler) Create(c *gin.Context) {
	var req dto.CreateShipmentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	sh, err := h.service.Create(c.Request.Context(), req.ToRequest())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, sh)
}

// Get handles GET /shipments/:id
func (h *ShipmentHandler) Get(c *gin.Context) { getDocument(h.BaseHandler, h.service.Get)(c) }

// Pick handles POST /shipments/:id/pick
func (h *ShipmentHandler) Pick(c *gin.Context) { documentAction(h.BaseHandler, h.service.Pick)(c) }

// Dispatch handles POST /shipments/:id/dispatch
func (h *ShipmentHandler) Dispatch(c *gin.Context) {
	documentAction(h.BaseHandler, h.service.Dispatch)(c)
}

// MarkInTransit handles POST /shipments/:id/in-transit
func (h *ShipmentHandler) MarkInTransit(c *gin.Context) {
	documentAction(h.BaseHandler, h.service.MarkInTransit)(c)
}

// Cancel handles POST /shipments/:id/cancel
func (h *ShipmentHandler) Cancel(c *gin.Context) { reasonAction(h.BaseHandler, h.service.Cancel)(c) }
