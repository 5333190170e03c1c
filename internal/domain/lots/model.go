// Package lots tracks production and receiving batches and classifies their expiry.
package lots

import (
	"context"
	"math"
	"strings"
	"time"

	"storeflow/internal/core/apperror"
	"storeflow/internal/core/id"
)

// DefaultThresholdDays is the MEDIUM expiry horizon used when none is configured.
const DefaultThresholdDays = 7

// Lot is one batch of one item.
type Lot struct {
	ID        id.ID      `json:"id"`
	ItemID    id.ID      `json:"itemId"`
	LotCode   string     `json:"lotCode"`
	MfgDate   time.Time  `json:"mfgDate"`
	ExpDate   *time.Time `json:"expDate,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Validate checks lot invariants.
func (l *Lot) Validate(_ context.Context) error {
	l.LotCode = strings.TrimSpace(l.LotCode)
	if l.LotCode == "" {
		return apperror.NewValidation("lot code is required")
	}
	if id.IsNil(l.ItemID) {
		return apperror.NewValidation("item is required")
	}
	if l.MfgDate.IsZero() {
		return apperror.NewValidation("manufacture date is required")
	}
	if l.ExpDate != nil && l.ExpDate.Before(l.MfgDate) {
		return apperror.NewValidation("expiry date precedes manufacture date").
			WithDetail("mfg_date", l.MfgDate).
			WithDetail("exp_date", *l.ExpDate)
	}
	return nil
}

// ExpiryLevel classifies how close a lot is to expiry.
type ExpiryLevel string

const (
	ExpiryExpired  ExpiryLevel = "EXPIRED"
	ExpiryCritical ExpiryLevel = "CRITICAL"
	ExpiryHigh     ExpiryLevel = "HIGH"
	ExpiryMedium   ExpiryLevel = "MEDIUM"
	ExpiryNone     ExpiryLevel = "NONE"
)

// Rank orders levels from most to least urgent (EXPIRED = 0).
func (l ExpiryLevel) Rank() int {
	switch l {
	case ExpiryExpired:
		return 0
	case ExpiryCritical:
		return 1
	case ExpiryHigh:
		return 2
	case ExpiryMedium:
		return 3
	default:
		return 4
	}
}

// IsValid reports whether l is a known level.
func (l ExpiryLevel) IsValid() bool {
	switch l {
	case ExpiryExpired, ExpiryCritical, ExpiryHigh, ExpiryMedium, ExpiryNone:
		return true
	}
	return false
}

// DaysUntil returns whole days from asOf to exp, rounded up.
func DaysUntil(exp, asOf time.Time) int {
	return int(math.Ceil(exp.Sub(asOf).Hours() / 24))
}

// ExpiryStatus classifies lot as of asOf. A lot without expiry date is never flagged.
func ExpiryStatus(lot Lot, asOf time.Time, thresholdDays int) ExpiryLevel {
	if lot.ExpDate == nil {
		return ExpiryNone
	}
	return ClassifyDays(DaysUntil(*lot.ExpDate, asOf), thresholdDays)
}

// ClassifyDays maps days-until-expiry onto a level.
func ClassifyDays(days, thresholdDays int) ExpiryLevel {
	switch {
	case days < 0:
		return ExpiryExpired
	case days <= 2:
		return ExpiryCritical
	case days <= 5:
		return ExpiryHigh
	case days <= thresholdDays:
		return ExpiryMedium
	default:
		return ExpiryNone
	}
}

// ListFilter selects lots.
type ListFilter struct {
	ItemID        *id.ID
	Code          string     // prefix match
	ExpiresBefore *time.Time // exp_date < value
	Limit         int
	Offset        int
}
