// Package consolidation rolls pending store demand up per item and nets it against
// available stock to tell the kitchen what to produce.
package consolidation

import (
	"time"

	"storeflow/internal/core/id"
	"storeflow/internal/core/types"
)

// Status classifies an item's production need.
type Status string

const (
	StatusSufficient     Status = "SUFFICIENT"
	StatusPartial        Status = "PARTIAL"
	StatusNeedProduction Status = "NEED_PRODUCTION"
)

// StoreDemand is one order's contribution to an item's total.
type StoreDemand struct {
	StoreID     id.ID          `json:"storeId"`
	OrderID     id.ID          `json:"orderId"`
	OrderNumber string         `json:"orderNumber"`
	Quantity    types.Quantity `json:"quantity"`
}

// Summary is an append-only snapshot of one item's demand for a delivery date.
type Summary struct {
	ID                 id.ID          `json:"id"`
	BatchID            id.ID          `json:"batchId"`
	ConsolidationDate  time.Time      `json:"consolidationDate"`
	DeliveryDate       time.Time      `json:"deliveryDate"`
	ItemID             id.ID          `json:"itemId"`
	UOM                string         `json:"uom"`
	TotalOrdered       types.Quantity `json:"totalOrdered"`
	Stores             []StoreDemand  `json:"stores"`
	AvailableInventory types.Quantity `json:"availableInventory"`
	NeedToProduce      types.Quantity `json:"needToProduce"`
	Status             Status         `json:"status"`
	CreatedBy          string         `json:"createdBy"`
}

// Classify computes need = max(0, ordered - available) and its status.
func Classify(ordered, available types.Quantity) (types.Quantity, Status) {
	need := types.MaxQuantity(0, ordered-available)
	switch {
	case need.IsZero():
		return need, StatusSufficient
	case need < ordered:
		return need, StatusPartial
	default:
		return need, StatusNeedProduction
	}
}

// ListFilter selects stored summaries.
type ListFilter struct {
	DeliveryDate *time.Time // matches the calendar day
	ItemID       *id.ID
	BatchID      *id.ID
	Limit        int
	Offset       int
}
