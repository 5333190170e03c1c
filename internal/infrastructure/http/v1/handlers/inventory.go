package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"storeflow/internal/core/apperror"
	"storeflow/internal/core/id"
	"storeflow/internal/core/types"
	"storeflow/internal/domain/ledger"
	"storeflow/internal/infrastructure/http/v1/dto"
)

// InventoryHandler exposes the ledger: balances, history and direct postings.
type InventoryHandler struct {
	*BaseHandler
	service *ledger.Service
}

// NewInventoryHandler creates a new inventory handler.
func NewInventoryHandler(base *BaseHandler, service *ledger.Service) *InventoryHandler {
	return &InventoryHandler{
		BaseHandler: base,
		service:     service,
	}
}

// GetBalances handles GET /inventory/balances
func (h *InventoryHandler) GetBalances(c *gin.Context) {
	var q dto.BalanceQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter := ledger.BalanceFilter{OnlyLots: q.OnlyLots, NonZero: q.NonZero}
	var ok bool
	if filter.LocationID, ok = h.OptionalID(c, "locationId", q.LocationID); !ok {
		return
	}
	if filter.ItemID, ok = h.OptionalID(c, "itemId", q.ItemID); !ok {
		return
	}
	if filter.LotID, ok = h.OptionalID(c, "lotId", q.LotID); !ok {
		return
	}

	balances, err := h.service.ListBalances(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromBalances(balances))
}

// GetTransactions handles GET /inventory/transactions
func (h *InventoryHandler) GetTransactions(c *gin.Context) {
	var q dto.TransactionQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter := ledger.TransactionFilter{RefType: ledger.RefType(q.RefType), Limit: q.Limit}
	if filter.Limit == 0 {
		filter.Limit = ledger.DefaultPageSize
	}
	if q.Kind != "" {
		filter.Kinds = []ledger.Kind{ledger.Kind(q.Kind)}
	}
	if q.RefType != "" && !filter.RefType.IsValid() {
		h.Error(c, apperror.NewValidation("unknown refType").WithDetail("refType", q.RefType))
		return
	}

	var ok bool
	if filter.LocationID, ok = h.OptionalID(c, "locationId", q.LocationID); !ok {
		return
	}
	if filter.ItemID, ok = h.OptionalID(c, "itemId", q.ItemID); !ok {
		return
	}
	if filter.LotID, ok = h.OptionalID(c, "lotId", q.LotID); !ok {
		return
	}
	if filter.RefID, ok = h.OptionalID(c, "refId", q.RefID); !ok {
		return
	}
	if filter.From, ok = h.OptionalDate(c, "from", q.From); !ok {
		return
	}
	if filter.To, ok = h.OptionalDate(c, "to", q.To); !ok {
		return
	}
	if filter.Before, ok = h.OptionalDate(c, "before", q.Before); !ok {
		return
	}
	beforeID, ok := h.OptionalID(c, "beforeId", q.BeforeID)
	if !ok {
		return
	}
	filter.BeforeID = id.FromPtr(beforeID)

	txns, err := h.service.QueryTransactions(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewTransactionPage(txns, filter.Limit))
}

// Adjust handles POST /inventory/adjust
func (h *InventoryHandler) Adjust(c *gin.Context) {
	var req dto.AdjustRequest
	if !h.BindJSON(c, &req) {
		return
	}
	txn, err := h.service.Adjust(c.Request.Context(), req.ToRequest())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromTransaction(*txn))
}

// RecordProduction handles POST /inventory/production
func (h *InventoryHandler) RecordProduction(c *gin.Context) {
	var req dto.ProductionRequest
	if !h.BindJSON(c, &req) {
		return
	}
	txns, err := h.service.RecordProduction(c.Request.Context(), req.ToRequest())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromTransactions(txns))
}

// Reserve handles POST /inventory/reserve
func (h *InventoryHandler) Reserve(c *gin.Context) {
	h.changeReserved(c, h.service.Reserve)
}

// Release handles POST /inventory/release
func (h *InventoryHandler) Release(c *gin.Context) {
	h.changeReserved(c, h.service.Release)
}

func (h *InventoryHandler) changeReserved(c *gin.Context, fn func(ctx context.Context, key ledger.Key, qty types.Quantity) error) {
	var req dto.ReserveRequest
	if !h.BindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	key := req.Key()
	if err := fn(ctx, key, req.Quantity); err != nil {
		h.Error(c, err)
		return
	}
	b, err := h.service.GetBalance(ctx, key)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromBalance(*b))
}
