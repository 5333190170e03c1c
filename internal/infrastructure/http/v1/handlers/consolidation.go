package handlers

import (
	"github.com/gin-gonic/gin"

	"storeflow/internal/core/apperror"
	"storeflow/internal/domain/alerts"
	"storeflow/internal/domain/consolidation"
	"storeflow/internal/domain/lots"
	"storeflow/internal/infrastructure/http/v1/dto"
)

// ConsolidationHandler serves consolidation batches.
type ConsolidationHandler struct {
	*BaseHandler
	service *consolidation.Service
}

// NewConsolidationHandler creates a new consolidation handler.
func NewConsolidationHandler(base *BaseHandler, service *consolidation.Service) *ConsolidationHandler {
	return &ConsolidationHandler{BaseHandler: base, service: service}
}

// Generate handles POST /consolidation/generate
func (h *ConsolidationHandler) Generate(c *gin.Context) {
	var req dto.GenerateConsolidationRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if req.DeliveryDate.IsZero() {
		h.Error(c, apperror.NewValidation("deliveryDate is required"))
		return
	}
	summaries, err := h.service.GenerateSummary(c.Request.Context(), req.DeliveryDate.Time)
	if err != nil {
		h.Error(c, err)
		return
	}
	if summaries == nil {
		summaries = []consolidation.Summary{}
	}
	h.Created(c, summaries)
}

// List handles GET /consolidation
func (h *ConsolidationHandler) List(c *gin.Context) {
	var q dto.ConsolidationQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter := consolidation.ListFilter{Limit: q.Limit, Offset: q.Offset}
	var ok bool
	if filter.DeliveryDate, ok = h.OptionalDate(c, "deliveryDate", q.DeliveryDate); !ok {
		return
	}
	if filter.ItemID, ok = h.OptionalID(c, "itemId", q.ItemID); !ok {
		return
	}
	if filter.BatchID, ok = h.OptionalID(c, "batchId", q.BatchID); !ok {
		return
	}

	result, err := h.service.ListSummaries(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, listResponse(result))
}

// AlertHandler serves expiry and low-stock alerts.
type AlertHandler struct {
	*BaseHandler
	service *alerts.Service
}

// NewAlertHandler creates a new alert handler.
func NewAlertHandler(base *BaseHandler, service *alerts.Service) *AlertHandler {
	return &AlertHandler{BaseHandler: base, service: service}
}

// Expiry handles GET /alerts/expiry
func (h *AlertHandler) Expiry(c *gin.Context) {
	var q dto.ExpiryAlertQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter := alerts.ExpiryFilter{Severity: lots.ExpiryLevel(q.Severity)}
	if q.Severity != "" && !filter.Severity.IsValid() {
		h.Error(c, apperror.NewValidation("unknown severity").WithDetail("severity", q.Severity))
		return
	}
	var ok bool
	if filter.LocationID, ok = h.OptionalID(c, "locationId", q.LocationID); !ok {
		return
	}
	if filter.ItemID, ok = h.OptionalID(c, "itemId", q.ItemID); !ok {
		return
	}
	asOf, ok := h.OptionalDate(c, "asOf", q.AsOf)
	if !ok {
		return
	}
	if asOf != nil {
		filter.AsOf = *asOf
	}

	out, err := h.service.ExpiryAlerts(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	if out == nil {
		out = []alerts.ExpiryAlert{}
	}
	h.OK(c, out)
}

// LowStock handles GET /alerts/low-stock
func (h *AlertHandler) LowStock(c *gin.Context) {
	var q dto.LowStockAlertQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter := alerts.LowStockFilter{Severity: alerts.Severity(q.Severity)}
	switch filter.Severity {
	case "", alerts.SeverityCritical, alerts.SeverityHigh, alerts.SeverityMedium:
	default:
		h.Error(c, apperror.NewValidation("unknown severity").WithDetail("severity", q.Severity))
		return
	}
	var ok bool
	if filter.LocationID, ok = h.OptionalID(c, "locationId", q.LocationID); !ok {
		return
	}
	if filter.ItemID, ok = h.OptionalID(c, "itemId", q.ItemID); !ok {
		return
	}

	out, err := h.service.LowStockAlerts(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	if out == nil {
		out = []alerts.LowStockAlert{}
	}
	h.OK(c, out)
}
