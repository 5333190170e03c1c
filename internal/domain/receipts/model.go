// Package receipts confirms the arrival of shipped goods at a store.
package receipts

import (
	"context"
	"fmt"
	"time"

	"storeflow/internal/core/apperror"
	"storeflow/internal/core/entity"
	"storeflow/internal/core/id"
	"storeflow/internal/core/types"
)

// Status of a goods receipt.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusReceived  Status = "RECEIVED"
	StatusCancelled Status = "CANCELLED"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusReceived, StatusCancelled:
		return true
	}
	return false
}

// GoodsReceipt records what a store actually accepted from one shipment.
type GoodsReceipt struct {
	entity.BaseDocument

	ShipmentID   id.ID      `json:"shipmentId"`
	ReceivedDate time.Time  `json:"receivedDate"`
	Status       Status     `json:"status"`
	ReceivedBy   string     `json:"receivedBy,omitempty"`
	ConfirmedAt  *time.Time `json:"confirmedAt,omitempty"`
	Notes        string     `json:"notes,omitempty"`

	Lines []Line `json:"lines"`
}

// Line is the received and rejected quantity of one shipment line.
type Line struct {
	ID              id.ID          `json:"id"`
	ReceiptID       id.ID          `json:"receiptId"`
	LineNo          int            `json:"lineNo"`
	ShipmentLineID  id.ID          `json:"shipmentLineId"`
	ItemID          id.ID          `json:"itemId"`
	QtyReceived     types.Quantity `json:"qtyReceived"`
	QtyRejected     types.Quantity `json:"qtyRejected"`
	RejectionReason string         `json:"rejectionReason,omitempty"`
}

// Validate checks receipt invariants that do not need the shipment.
func (r *GoodsReceipt) Validate(_ context.Context) error {
	if id.IsNil(r.ShipmentID) {
		return apperror.NewValidation("shipment is required")
	}
	if len(r.Lines) == 0 {
		return apperror.NewValidation("receipt must have at least one line")
	}
	seen := make(map[id.ID]struct{}, len(r.Lines))
	for i, l := range r.Lines {
		if _, dup := seen[l.ShipmentLineID]; dup {
			return apperror.NewValidation(fmt.Sprintf("line %d: shipment line received twice", i+1)).
				WithDetail("shipment_line_id", l.ShipmentLineID)
		}
		seen[l.ShipmentLineID] = struct{}{}
		if l.QtyReceived.IsNegative() || l.QtyRejected.IsNegative() {
			return apperror.NewValidation(fmt.Sprintf("line %d: quantities must not be negative", i+1))
		}
	}
	return nil
}

// ListFilter selects receipts.
type ListFilter struct {
	Statuses   []Status
	ShipmentID *id.ID
	Limit      int
	Offset     int
}
