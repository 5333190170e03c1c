package dto

import (
	"strings"

	"storeflow/internal/core/id"
	"storeflow/internal/core/types"
	"storeflow/internal/domain/lots"
	"storeflow/internal/domain/orders"
	"storeflow/internal/domain/receipts"
	"storeflow/internal/domain/returns"
	"storeflow/internal/domain/shipments"
)

// --- Lots ---

// CreateLotRequest is the body of POST /lots.
type CreateLotRequest struct {
	ItemID  id.ID  `json:"itemId" binding:"required"`
	LotCode string `json:"lotCode" binding:"required"`
	MfgDate Date   `json:"mfgDate"`
	ExpDate *Date  `json:"expDate,omitempty"`
}

// ToRequest converts to the lots request.
func (r *CreateLotRequest) ToRequest() lots.CreateLotRequest {
	return lots.CreateLotRequest{ItemID: r.ItemID, LotCode: r.LotCode, MfgDate: r.MfgDate.Time, ExpDate: r.ExpDate.Ptr()}
}

// UpdateLotRequest is the body of PUT /lots/:id.
type UpdateLotRequest struct {
	LotCode string `json:"lotCode" binding:"required"`
	MfgDate Date   `json:"mfgDate"`
	ExpDate *Date  `json:"expDate,omitempty"`
}

// LotQuery filters GET /lots.
type LotQuery struct {
	PageQuery
	ItemID        string `form:"itemId"`
	Code          string `form:"code"`
	ExpiresBefore string `form:"expiresBefore"`
}

// --- Orders ---

// OrderLineRequest is one ordered item.
type OrderLineRequest struct {
	ItemID    id.ID          `json:"itemId" binding:"required"`
	Quantity  types.Quantity `json:"quantity"`
	UOM       string         `json:"uom"`
	UnitPrice types.Money    `json:"unitPrice"`
}

// ToInput converts a line request.
func (l OrderLineRequest) ToInput() orders.LineInput {
	return orders.LineInput{ItemID: l.ItemID, Quantity: l.Quantity, UOM: l.UOM, UnitPrice: l.UnitPrice}
}

// CreateOrderRequest is the body of POST /orders.
type CreateOrderRequest struct {
	StoreID   id.ID              `json:"storeId" binding:"required"`
	OrderDate *Date              `json:"orderDate,omitempty"`
	IsUrgent  bool               `json:"isUrgent"`
	Currency  string             `json:"currency,omitempty"`
	Notes     string             `json:"notes,omitempty"`
	Lines     []OrderLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// ToRequest converts to the orders request.
func (r *CreateOrderRequest) ToRequest() orders.CreateRequest {
	req := orders.CreateRequest{
		StoreID:  r.StoreID,
		IsUrgent: r.IsUrgent,
		Currency: r.Currency,
		Notes:    r.Notes,
	}
	if t := r.OrderDate.Ptr(); t != nil {
		req.OrderDate = *t
	}
	for _, l := range r.Lines {
		req.Lines = append(req.Lines, l.ToInput())
	}
	return req
}

// OrderQuery filters GET /orders.
type OrderQuery struct {
	PageQuery
	Status   string `form:"status"` // comma separated
	StoreID  string `form:"storeId"`
	DateFrom string `form:"dateFrom"`
	DateTo   string `form:"dateTo"`
}

// Statuses splits the status filter.
func (q OrderQuery) Statuses() []orders.Status {
	return splitStatuses[orders.Status](q.Status)
}

// --- Shipments ---

// ShipmentLineRequest is one shipped item.
type ShipmentLineRequest struct {
	OrderLineID *id.ID                    `json:"orderLineId,omitempty"`
	ItemID      id.ID                     `json:"itemId" binding:"required"`
	Quantity    types.Quantity            `json:"quantity"`
	UOM         string                    `json:"uom"`
	Lots        []shipments.LotAllocation `json:"lots,omitempty"`
}

// CreateShipmentRequest is the body of POST /shipments.
type CreateShipmentRequest struct {
	OrderID        id.ID                 `json:"orderId" binding:"required"`
	FromLocationID id.ID                 `json:"fromLocationId" binding:"required"`
	ToLocationID   *id.ID                `json:"toLocationId,omitempty"`
	ShipDate       *Date                 `json:"shipDate,omitempty"`
	Notes          string                `json:"notes,omitempty"`
	Lines          []ShipmentLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// ToRequest converts to the shipments request.
func (r *CreateShipmentRequest) ToRequest() shipments.CreateRequest {
	req := shipments.CreateRequest{
		OrderID:        r.OrderID,
		FromLocationID: r.FromLocationID,
		ToLocationID:   id.FromPtr(r.ToLocationID),
		Notes:          r.Notes,
	}
	if t := r.ShipDate.Ptr(); t != nil {
		req.ShipDate = *t
	}
	for _, l := range r.Lines {
		req.Lines = append(req.Lines, shipments.LineInput{
			OrderLineID: l.OrderLineID,
			ItemID:      l.ItemID,
			Quantity:    l.Quantity,
			UOM:         l.UOM,
			Lots:        l.Lots,
		})
	}
	return req
}

// ShipmentQuery filters GET /shipments.
type ShipmentQuery struct {
	PageQuery
	Status         string `form:"status"`
	OrderID        string `form:"orderId"`
	FromLocationID string `form:"fromLocationId"`
	ToLocationID   string `form:"toLocationId"`
}

// Statuses splits the status filter.
func (q ShipmentQuery) Statuses() []shipments.Status {
	return splitStatuses[shipments.Status](q.Status)
}

// --- Receipts ---

// ReceiptLineRequest records what arrived for one shipment line.
type ReceiptLineRequest struct {
	ShipmentLineID  id.ID          `json:"shipmentLineId" binding:"required"`
	QtyReceived     types.Quantity `json:"qtyReceived"`
	QtyRejected     types.Quantity `json:"qtyRejected"`
	RejectionReason string         `json:"rejectionReason,omitempty"`
}

// CreateReceiptRequest is the body of POST /receipts. Without lines the whole shipment is received.
type CreateReceiptRequest struct {
	ShipmentID   id.ID                `json:"shipmentId" binding:"required"`
	ReceivedDate *Date                `json:"receivedDate,omitempty"`
	Notes        string               `json:"notes,omitempty"`
	Lines        []ReceiptLineRequest `json:"lines" binding:"dive"`
}

// ToRequest converts to the receipts request.
func (r *CreateReceiptRequest) ToRequest() receipts.CreateRequest {
	req := receipts.CreateRequest{ShipmentID: r.ShipmentID, Notes: r.Notes}
	if t := r.ReceivedDate.Ptr(); t != nil {
		req.ReceivedDate = *t
	}
	for _, l := range r.Lines {
		req.Lines = append(req.Lines, receipts.LineInput{
			ShipmentLineID:  l.ShipmentLineID,
			QtyReceived:     l.QtyReceived,
			QtyRejected:     l.QtyRejected,
			RejectionReason: l.RejectionReason,
		})
	}
	return req
}

// ReceiptQuery filters GET /receipts.
type ReceiptQuery struct {
	PageQuery
	Status     string `form:"status"`
	ShipmentID string `form:"shipmentId"`
}

// Statuses splits the status filter.
func (q ReceiptQuery) Statuses() []receipts.Status {
	return splitStatuses[receipts.Status](q.Status)
}

// --- Returns ---

// ReturnLineRequest is one returned item.
type ReturnLineRequest struct {
	ItemID      id.ID               `json:"itemId" binding:"required"`
	LotID       *id.ID              `json:"lotId,omitempty"`
	Quantity    types.Quantity      `json:"quantity"`
	UOM         string              `json:"uom"`
	Reason      string              `json:"reason,omitempty"`
	DefectType  returns.DefectType  `json:"defectType,omitempty"`
	Disposition returns.Disposition `json:"disposition,omitempty"`
}

// CreateReturnRequest is the body of POST /returns.
type CreateReturnRequest struct {
	StoreID       id.ID               `json:"storeId" binding:"required"`
	DestinationID *id.ID              `json:"destinationId,omitempty"`
	ShipmentID    *id.ID              `json:"shipmentId,omitempty"`
	Reason        string              `json:"reason,omitempty"`
	Lines         []ReturnLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// ToRequest converts to the returns request.
func (r *CreateReturnRequest) ToRequest() returns.CreateRequest {
	req := returns.CreateRequest{
		StoreID:       r.StoreID,
		DestinationID: r.DestinationID,
		ShipmentID:    r.ShipmentID,
		Reason:        r.Reason,
	}
	for _, l := range r.Lines {
		req.Lines = append(req.Lines, returns.LineInput{
			ItemID:      l.ItemID,
			LotID:       l.LotID,
			Quantity:    l.Quantity,
			UOM:         l.UOM,
			Reason:      l.Reason,
			DefectType:  l.DefectType,
			Disposition: l.Disposition,
		})
	}
	return req
}

// ReturnQuery filters GET /returns.
type ReturnQuery struct {
	PageQuery
	Status  string `form:"status"`
	StoreID string `form:"storeId"`
}

// Statuses splits the status filter.
func (q ReturnQuery) Statuses() []returns.Status {
	return splitStatuses[returns.Status](q.Status)
}

func splitStatuses[S ~string](raw string) []S {
	if raw == "" {
		return nil
	}
	var out []S
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, S(strings.ToUpper(s)))
		}
	}
	return out
}
