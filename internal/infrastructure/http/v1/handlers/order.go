package handlers

import (
	"github.com/gin-gonic/gin"

	"storeflow/internal/domain/fulfillment"
	"storeflow/internal/domain/orders"
	"storeflow/internal/infrastructure/http/v1/dto"
)

// OrderHandler handles HTTP requests for internal orders.
type OrderHandler struct {
	*BaseHandler
	service     *orders.Service
	fulfillment *fulfillment.Service
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(base *BaseHandler, service *orders.Service, fulfillmentSvc *fulfillment.Service) *OrderHandler {
	return &OrderHandler{BaseHandler: base, service: service, fulfillment: fulfillmentSvc}
}

// List handles GET /orders
func (h *OrderHandler) List(c *gin.Context) {
	var q dto.OrderQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter := orders.ListFilter{Statuses: q.Statuses(), Limit: q.Limit, Offset: q.Offset}
	var ok bool
	if filter.StoreID, ok = h.OptionalID(c, "storeId", q.StoreID); !ok {
		return
	}
	if filter.DateFrom, ok = h.OptionalDate(c, "dateFrom", q.DateFrom); !ok {
		return
	}
	if filter.DateTo, ok = h.OptionalDate(c, "dateTo", q.DateTo); !ok {
		return
	}

	result, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, listResponse(result))
}

// Create handles POST /orders
func (h *OrderHandler) Create(c *gin.Context) {
	var req dto.CreateOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}
	o, err := h.service.Create(c.Request.Context(), req.ToRequest())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, o)
}

// Get handles GET /orders/:id
func (h *OrderHandler) Get(c *gin.Context) { getDocument(h.BaseHandler, h.service.Get)(c) }

// AddLine handles POST /orders/:id/lines
func (h *OrderHandler) AddLine(c *gin.Context) {
	orderID, ok := h.PathID(c)
	if !ok {
		return
	}
	var req dto.OrderLineRequest
	if !h.BindJSON(c, &req) {
		return
	}
	o, err := h.service.AddLine(c.Request.Context(), orderID, req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, o)
}

// Submit handles POST /orders/:id/submit
func (h *OrderHandler) Submit(c *gin.Context) { documentAction(h.BaseHandler, h.service.Submit)(c) }

// Approve handles POST /orders/:id/approve
func (h *OrderHandler) Approve(c *gin.Context) { documentAction(h.BaseHandler, h.service.Approve)(c) }

// Cancel handles POST /orders/:id/cancel
func (h *OrderHandler) Cancel(c *gin.Context) { documentAction(h.BaseHandler, h.service.Cancel)(c) }

// RecomputeFulfillment handles POST /orders/:id/recompute-fulfillment
func (h *OrderHandler) RecomputeFulfillment(c *gin.Context) {
	documentAction(h.BaseHandler, h.fulfillment.Recompute)(c)
}
