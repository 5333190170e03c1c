package handlers

import (
	"github.com/gin-gonic/gin"

	"storeflow/internal/domain/lots"
	"storeflow/internal/infrastructure/http/v1/dto"
)

// LotHandler handles HTTP requests for lots.
type LotHandler struct {
	*BaseHandler
	service *lots.Service
}

// NewLotHandler creates a new lot handler.
func NewLotHandler(base *BaseHandler, service *lots.Service) *LotHandler {
	return &LotHandler{BaseHandler: base, service: service}
}

// List handles GET /lots
func (h *LotHandler) List(c *gin.Context) {
	var q dto.LotQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter := lots.ListFilter{Code: q.Code, Limit: q.Limit, Offset: q.Offset}
	var ok bool
	if filter.ItemID, ok = h.OptionalID(c, "itemId", q.ItemID); !ok {
		return
	}
	if filter.ExpiresBefore, ok = h.OptionalDate(c, "expiresBefore", q.ExpiresBefore); !ok {
		return
	}

	items, total, err := h.service.ListLots(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(items, total, filter.Limit, filter.Offset))
}

// Create handles POST /lots
func (h *LotHandler) Create(c *gin.Context) {
	var req dto.CreateLotRequest
	if !h.BindJSON(c, &req) {
		return
	}
	lot, err := h.service.CreateLot(c.Request.Context(), req.ToRequest())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, lot)
}

// Get handles GET /lots/:id
func (h *LotHandler) Get(c *gin.Context) {
	getDocument(h.BaseHandler, h.service.GetLot)(c)
}

// Update handles PUT /lots/:id
func (h *LotHandler) Update(c *gin.Context) {
	lotID, ok := h.PathID(c)
	if !ok {
		return
	}
	var req dto.UpdateLotRequest
	if !h.BindJSON(c, &req) {
		return
	}
	lot, err := h.service.UpdateLot(c.Request.Context(), lotID, req.LotCode, req.MfgDate.Time, req.ExpDate.Ptr())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, lot)
}
