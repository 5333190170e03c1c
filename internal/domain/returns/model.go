// Package returns handles goods a store sends back: request, approval, and the stock movement.
package returns

import (
	"context"
	"fmt"
	"time"

	"storeflow/internal/core/apperror"
	"storeflow/internal/core/entity"
	"storeflow/internal/core/id"
	"storeflow/internal/core/types"
)

// Status of a return request.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusCompleted Status = "COMPLETED"
)

var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusCompleted, StatusRejected},
}

// CanTransitionTo reports whether s -> to is in the transition table.
func (s Status) CanTransitionTo(to Status) bool {
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// DefectType says what is wrong with returned goods.
type DefectType string

const (
	DefectDamaged      DefectType = "DAMAGED"
	DefectExpired      DefectType = "EXPIRED"
	DefectWrongItem    DefectType = "WRONG_ITEM"
	DefectQualityIssue DefectType = "QUALITY_ISSUE"
	DefectOther        DefectType = "OTHER"
)

// IsValid reports whether d is a known defect type.
func (d DefectType) IsValid() bool {
	switch d {
	case DefectDamaged, DefectExpired, DefectWrongItem, DefectQualityIssue, DefectOther:
		return true
	}
	return false
}

// Disposition says what happens to returned goods.
type Disposition string

const (
	DispositionRestock          Disposition = "RESTOCK"
	DispositionDestroy          Disposition = "DESTROY"
	DispositionReturnToSupplier Disposition = "RETURN_TO_SUPPLIER"
)

// IsValid reports whether d is a known disposition.
func (d Disposition) IsValid() bool {
	switch d {
	case DispositionRestock, DispositionDestroy, DispositionReturnToSupplier:
		return true
	}
	return false
}

// ReturnRequest is a store's request to send goods back.
type ReturnRequest struct {
	entity.BaseDocument

	StoreID         id.ID      `json:"storeId"`
	DestinationID   *id.ID     `json:"destinationId,omitempty"`
	ShipmentID      *id.ID     `json:"shipmentId,omitempty"`
	Status          Status     `json:"status"`
	Reason          string     `json:"reason"`
	ApprovedBy      string     `json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time `json:"approvedAt,omitempty"`
	RejectionReason string     `json:"rejectionReason,omitempty"`
	ProcessedAt     *time.Time `json:"processedAt,omitempty"`

	Lines []Line `json:"lines"`
}

// Line is one returned item.
type Line struct {
	ID          id.ID          `json:"id"`
	ReturnID    id.ID          `json:"returnId"`
	LineNo      int            `json:"lineNo"`
	ItemID      id.ID          `json:"itemId"`
	LotID       *id.ID         `json:"lotId,omitempty"`
	Quantity    types.Quantity `json:"quantity"`
	UOM         string         `json:"uom"`
	Reason      string         `json:"reason,omitempty"`
	DefectType  DefectType     `json:"defectType"`
	Disposition Disposition    `json:"disposition"`
}

// Validate checks return invariants.
func (r *ReturnRequest) Validate(_ context.Context) error {
	if id.IsNil(r.StoreID) {
		return apperror.NewValidation("store is required")
	}
	if r.DestinationID != nil && *r.DestinationID == r.StoreID {
		return apperror.NewValidation("destination must differ from the returning store")
	}
	if len(r.Lines) == 0 {
		return apperror.NewValidation("return must have at least one line")
	}
	for i, l := range r.Lines {
		if id.IsNil(l.ItemID) {
			return apperror.NewValidation(fmt.Sprintf("line %d: item is required", i+1))
		}
		if !l.Quantity.IsPositive() {
			return apperror.NewValidation(fmt.Sprintf("line %d: quantity must be positive", i+1))
		}
		if !l.DefectType.IsValid() {
			return apperror.NewValidation(fmt.Sprintf("line %d: unknown defect type %q", i+1, l.DefectType))
		}
		if !l.Disposition.IsValid() {
			return apperror.NewValidation(fmt.Sprintf("line %d: unknown disposition %q", i+1, l.Disposition))
		}
	}
	return nil
}

// TransitionTo moves the request to status to, or fails with InvalidTransition.
func (r *ReturnRequest) TransitionTo(to Status) error {
	if !r.Status.CanTransitionTo(to) {
		return apperror.NewInvalidTransition("return request", r.Status, to).WithDetail("return_id", r.ID)
	}
	r.Status = to
	r.Touch()
	return nil
}

// ListFilter selects return requests.
type ListFilter struct {
	Statuses []Status
	StoreID  *id.ID
	Limit    int
	Offset   int
}
