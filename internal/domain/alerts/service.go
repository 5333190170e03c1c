// Package alerts derives expiry and low-stock alerts from current balances.
// It is a read model: nothing here writes.
package alerts

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"storeflow/internal/core/id"
	"storeflow/internal/core/types"
	"storeflow/internal/domain/ledger"
	"storeflow/internal/domain/lots"
)

// Severity of a low-stock alert.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
)

func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	default:
		return 2
	}
}

// ExpiryAlert is a lot balance close to or past its expiry date.
type ExpiryAlert struct {
	LocationID      id.ID            `json:"locationId"`
	ItemID          id.ID            `json:"itemId"`
	LotID           id.ID            `json:"lotId"`
	LotCode         string           `json:"lotCode"`
	ExpDate         time.Time        `json:"expDate"`
	DaysUntilExpiry int              `json:"daysUntilExpiry"`
	OnHand          types.Quantity   `json:"onHand"`
	Severity        lots.ExpiryLevel `json:"severity"`
}

// LowStockAlert is an item whose available stock at a location is at or below its minimum.
type LowStockAlert struct {
	LocationID id.ID          `json:"locationId"`
	ItemID     id.ID          `json:"itemId"`
	OnHand     types.Quantity `json:"onHand"`
	Reserved   types.Quantity `json:"reserved"`
	Available  types.Quantity `json:"available"`
	Minimum    types.Quantity `json:"minimum"`
	Severity   Severity       `json:"severity"`
}

// ExpiryFilter narrows expiry alerts.
type ExpiryFilter struct {
	LocationID *id.ID
	ItemID     *id.ID
	Severity   lots.ExpiryLevel // empty = any flagged level
	AsOf       time.Time        // defaults to now
}

// LowStockFilter narrows low-stock alerts.
type LowStockFilter struct {
	LocationID *id.ID
	ItemID     *id.ID
	Severity   Severity
}

// Service computes alerts.
type Service struct {
	ledger        *ledger.Service
	lots          *lots.Service
	policy        StockPolicy
	thresholdDays int
}

// NewService creates an alert service. A nil policy means FixedPolicy{DefaultMinimum};
// a non-positive threshold means lots.DefaultThresholdDays.
func NewService(ledgerSvc *ledger.Service, lotSvc *lots.Service, policy StockPolicy, thresholdDays int) *Service {
	if policy == nil {
		policy = FixedPolicy{Min: DefaultMinimum}
	}
	if thresholdDays <= 0 {
		thresholdDays = lots.DefaultThresholdDays
	}
	return &Service{ledger: ledgerSvc, lots: lotSvc, policy: policy, thresholdDays: thresholdDays}
}

// ExpiryAlerts classifies every lot balance with stock on hand, most urgent first.
func (s *Service) ExpiryAlerts(ctx context.Context, filter ExpiryFilter) ([]ExpiryAlert, error) {
	asOf := filter.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	balances, err := s.ledger.ListBalances(ctx, ledger.BalanceFilter{
		LocationID: filter.LocationID,
		ItemID:     filter.ItemID,
		OnlyLots:   true,
		NonZero:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}

	lotIDs := make([]id.ID, 0, len(balances))
	for _, b := range balances {
		lotIDs = append(lotIDs, b.LotID)
	}
	found, err := s.lots.GetMany(ctx, slices.Compact(slices.SortedFunc(slices.Values(lotIDs), id.Compare)))
	if err != nil {
		return nil, fmt.Errorf("load lots: %w", err)
	}

	var out []ExpiryAlert
	for _, b := range balances {
		if !b.OnHand.IsPositive() {
			continue
		}
		lot, ok := found[b.LotID]
		if !ok || lot.ExpDate == nil {
			continue
		}
		level := lots.ExpiryStatus(lot, asOf, s.thresholdDays)
		if level == lots.ExpiryNone || (filter.Severity != "" && level != filter.Severity) {
			continue
		}
		out = append(out, ExpiryAlert{
			LocationID:      b.LocationID,
			ItemID:          b.ItemID,
			LotID:           b.LotID,
			LotCode:         lot.LotCode,
			ExpDate:         *lot.ExpDate,
			DaysUntilExpiry: lots.DaysUntil(*lot.ExpDate, asOf),
			OnHand:          b.OnHand,
			Severity:        level,
		})
	}
	slices.SortFunc(out, func(a, b ExpiryAlert) int {
		return cmp.Or(
			cmp.Compare(a.Severity.Rank(), b.Severity.Rank()),
			cmp.Compare(a.DaysUntilExpiry, b.DaysUntilExpiry),
			id.Compare(a.LotID, b.LotID),
		)
	})
	return out, nil
}

// LowStockAlerts sums balances per location and item and flags those whose
// available quantity is at or below the policy minimum.
func (s *Service) LowStockAlerts(ctx context.Context, filter LowStockFilter) ([]LowStockAlert, error) {
	balances, err := s.ledger.ListBalances(ctx, ledger.BalanceFilter{
		LocationID: filter.LocationID,
		ItemID:     filter.ItemID,
	})
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}

	type posKey struct{ location, item id.ID }
	positions := make(map[posKey]*Position)
	var order []posKey
	for _, b := range balances {
		k := posKey{b.LocationID, b.ItemID}
		p, ok := positions[k]
		if !ok {
			p = &Position{LocationID: b.LocationID, ItemID: b.ItemID}
			positions[k] = p
			order = append(order, k)
		}
		p.OnHand += b.OnHand
		p.Reserved += b.Reserved
	}

	var out []LowStockAlert
	for _, k := range order {
		p := positions[k]
		minimum, err := s.policy.Minimum(ctx, *p)
		if err != nil {
			return nil, err
		}
		available := p.Available()
		if available > minimum {
			continue
		}
		sev := ClassifyLowStock(available, minimum)
		if filter.Severity != "" && sev != filter.Severity {
			continue
		}
		out = append(out, LowStockAlert{
			LocationID: p.LocationID,
			ItemID:     p.ItemID,
			OnHand:     p.OnHand,
			Reserved:   p.Reserved,
			Available:  available,
			Minimum:    minimum,
			Severity:   sev,
		})
	}
	slices.SortFunc(out, func(a, b LowStockAlert) int {
		return cmp.Or(
			cmp.Compare(a.Severity.rank(), b.Severity.rank()),
			cmp.Compare(a.Available, b.Available),
			id.Compare(a.ItemID, b.ItemID),
		)
	})
	return out, nil
}

// ClassifyLowStock bands an available quantity against its minimum:
// CRITICAL at or below zero, HIGH at or below 30% of the minimum, MEDIUM otherwise.
func ClassifyLowStock(available, minimum types.Quantity) Severity {
	switch {
	case available <= 0:
		return SeverityCritical
	case available*10 <= minimum*3:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}
