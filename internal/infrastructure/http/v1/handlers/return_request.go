package handlers

import (
	"github.com/gin-gonic/gin"

	"storeflow/internal/domain/returns"
	"storeflow/internal/infrastructure/http/v1/dto"
)

// ReturnHandler handles HTTP requests for return requests.
type ReturnHandler struct {
	*BaseHandler
	service *returns.Service
}

// NewReturnHandler creates a new return request handler.
func NewReturnHandler(base *BaseHandler, service *returns.Service) *ReturnHandler {
	return &ReturnHandler{BaseHandler: base, service: service}
}

// List handles GET /returns
func (h *ReturnHandler) List(c *gin.Context) {
	var q dto.ReturnQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter := returns.ListFilter{Statuses: q.Statuses(), Limit: q.Limit, Offset: q.Offset}
	var ok bool
	if filter.StoreID, ok = h.OptionalID(c, "storeId", q.StoreID); !ok {
		return
	}

	result, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, listResponse(result))
}

// Create handles POST /returns
func (h *ReturnHandler) Create(c *gin.Context) {
	var req dto.CreateReturnRequest
	if !h.BindJSON(c, &req) {
		return
	}
	r, err := h.service.Create(c.Request.Context(), req.ToRequest())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, r)
}

// Get handles GET /returns/:id
func (h *ReturnHandler) Get(c *gin.Context) { getDocument(h.BaseHandler, h.service.Get)(c) }

// Approve handles POST /returns/:id/approve
func (h *ReturnHandler) Approve(c *gin.Context) { documentAction(h.BaseHandler, h.service.Approve)(c) }

// Reject handles POST /returns/:id/reject
func (h *ReturnHandler) Reject(c *gin.Context) { reasonAction(h.BaseHandler, h.service.Reject)(c) }

// Process handles POST /returns/:id/process
func (h *ReturnHandler) Process(c *gin.Context) { documentAction(h.BaseHandler, h.service.Process)(c) }
