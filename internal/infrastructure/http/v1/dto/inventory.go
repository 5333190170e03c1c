package dto

import (
	"time"

	"storeflow/internal/core/id"
	"storeflow/internal/core/types"
	"storeflow/internal/domain/ledger"
)

// --- Request DTOs ---

// BalanceQuery filters GET /inventory/balances.
type BalanceQuery struct {
	LocationID string `form:"locationId"`
	ItemID     string `form:"itemId"`
	LotID      string `form:"lotId"`
	OnlyLots   bool   `form:"onlyLots"`
	NonZero    bool   `form:"nonZero"`
}

// TransactionQuery filters GET /inventory/transactions. Before/BeforeID continue
// a previous page.
type TransactionQuery struct {
	LocationID string `form:"locationId"`
	ItemID     string `form:"itemId"`
	LotID      string `form:"lotId"`
	Kind       string `form:"kind"`
	RefType    string `form:"refType"`
	RefID      string `form:"refId"`
	From       string `form:"from"`
	To         string `form:"to"`
	Before     string `form:"before"`
	BeforeID   string `form:"beforeId"`
	Limit      int    `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// KeyRequest names one balance.
type KeyRequest struct {
	LocationID id.ID  `json:"locationId" binding:"required"`
	ItemID     id.ID  `json:"itemId" binding:"required"`
	LotID      *id.ID `json:"lotId,omitempty"`
}

// Key converts the request to a ledger key.
func (r KeyRequest) Key() ledger.Key {
	return ledger.NewKey(r.LocationID, r.ItemID, r.LotID)
}

// AdjustRequest is the body of POST /inventory/adjust.
type AdjustRequest struct {
	KeyRequest
	Quantity types.Quantity `json:"quantity"`
	UOM      string         `json:"uom"`
	Reason   string         `json:"reason" binding:"required"`
}

// ToRequest converts to the ledger request.
func (r *AdjustRequest) ToRequest() ledger.AdjustRequest {
	return ledger.AdjustRequest{Key: r.Key(), Quantity: r.Quantity, UOM: r.UOM, Reason: r.Reason}
}

// ReserveRequest is the body of POST /inventory/reserve and /inventory/release.
type ReserveRequest struct {
	KeyRequest
	Quantity types.Quantity `json:"quantity"`
}

// ProductionLineRequest is one output or ingredient of a production run.
type ProductionLineRequest struct {
	ItemID   id.ID          `json:"itemId" binding:"required"`
	LotID    *id.ID         `json:"lotId,omitempty"`
	Quantity types.Quantity `json:"quantity"`
	UOM      string         `json:"uom"`
}

// ProductionRequest is the body of POST /inventory/production.
type ProductionRequest struct {
	ProductionOrderID *id.ID                  `json:"productionOrderId,omitempty"`
	LocationID        id.ID                   `json:"locationId" binding:"required"`
	Outputs           []ProductionLineRequest `json:"outputs" binding:"required,min=1,dive"`
	Consumed          []ProductionLineRequest `json:"consumed" binding:"dive"`
	Notes             string                  `json:"notes,omitempty"`
}

// ToRequest converts to the ledger request.
func (r *ProductionRequest) ToRequest() ledger.ProductionRequest {
	conv := func(in []ProductionLineRequest) []ledger.ProductionLine {
		out := make([]ledger.ProductionLine, 0, len(in))
		for _, l := range in {
			out = append(out, ledger.ProductionLine{ItemID: l.ItemID, LotID: l.LotID, Quantity: l.Quantity, UOM: l.UOM})
		}
		return out
	}
	return ledger.ProductionRequest{
		ProductionOrderID: r.ProductionOrderID,
		LocationID:        r.LocationID,
		Outputs:           conv(r.Outputs),
		Consumed:          conv(r.Consumed),
		Notes:             r.Notes,
	}
}

// --- Response DTOs ---

// BalanceResponse is one ledger balance.
type BalanceResponse struct {
	LocationID     id.ID          `json:"locationId"`
	ItemID         id.ID          `json:"itemId"`
	LotID          *id.ID         `json:"lotId"`
	OnHand         types.Quantity `json:"onHand"`
	Reserved       types.Quantity `json:"reserved"`
	Available      types.Quantity `json:"available"`
	LastMovementAt *time.Time     `json:"lastMovementAt,omitempty"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// FromBalance maps a balance.
func FromBalance(b ledger.Balance) BalanceResponse {
	return BalanceResponse{
		LocationID:     b.LocationID,
		ItemID:         b.ItemID,
		LotID:          b.Lot(),
		OnHand:         b.OnHand,
		Reserved:       b.Reserved,
		Available:      b.Available(),
		LastMovementAt: b.LastMovementAt,
		UpdatedAt:      b.UpdatedAt,
	}
}

// FromBalances maps balances.
func FromBalances(in []ledger.Balance) []BalanceResponse {
	out := make([]BalanceResponse, 0, len(in))
	for _, b := range in {
		out = append(out, FromBalance(b))
	}
	return out
}

// TransactionResponse is one ledger transaction.
type TransactionResponse struct {
	ID         id.ID          `json:"id"`
	TxnTime    time.Time      `json:"txnTime"`
	LocationID id.ID          `json:"locationId"`
	ItemID     id.ID          `json:"itemId"`
	LotID      *id.ID         `json:"lotId"`
	Quantity   types.Quantity `json:"quantity"`
	UOM        string         `json:"uom"`
	Kind       ledger.Kind    `json:"kind"`
	RefType    ledger.RefType `json:"refType,omitempty"`
	RefID      *id.ID         `json:"refId,omitempty"`
	Actor      string         `json:"actor"`
	Notes      string         `json:"notes,omitempty"`
}

// FromTransaction maps a transaction.
func FromTransaction(t ledger.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:         t.ID,
		TxnTime:    t.TxnTime,
		LocationID: t.LocationID,
		ItemID:     t.ItemID,
		LotID:      t.Lot(),
		Quantity:   t.Quantity,
		UOM:        t.UOM,
		Kind:       t.Kind,
		RefType:    t.RefType,
		RefID:      t.RefID,
		Actor:      t.Actor,
		Notes:      t.Notes,
	}
}

// FromTransactions maps transactions.
func FromTransactions(in []ledger.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(in))
	for _, t := range in {
		out = append(out, FromTransaction(t))
	}
	return out
}

// TransactionPage is a keyset page. NextBefore/NextBeforeID are set when more rows may follow.
type TransactionPage struct {
	Items        []TransactionResponse `json:"items"`
	NextBefore   *time.Time            `json:"nextBefore,omitempty"`
	NextBeforeID *id.ID                `json:"nextBeforeId,omitempty"`
}

// NewTransactionPage builds a page; a full page carries the cursor of its last row.
func NewTransactionPage(txns []ledger.Transaction, limit int) TransactionPage {
	page := TransactionPage{Items: FromTransactions(txns)}
	if limit > 0 && len(txns) == limit {
		last := txns[len(txns)-1]
		page.NextBefore = &last.TxnTime
		page.NextBeforeID = &last.ID
	}
	return page
}
