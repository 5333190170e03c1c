package consolidation

import (
	"context"
	"fmt"
	"slices"
	"time"

	appctx "storeflow/internal/core/context"
	"storeflow/internal/core/id"
	"storeflow/internal/core/tx"
	"storeflow/internal/domain"
	"storeflow/internal/domain/events"
	"storeflow/internal/domain/ledger"
	"storeflow/internal/domain/orders"
	"storeflow/pkg/logger"
)

// pendingStatuses are the order statuses that still count as unmet demand.
var pendingStatuses = []orders.Status{orders.StatusSubmitted, orders.StatusApproved}

// Service generates consolidation summaries. It only reads the ledger.
type Service struct {
	repo      Repository
	orders    *orders.Service
	ledger    *ledger.Service
	txManager tx.Manager
	publisher events.Publisher
	now       func() time.Time
}

// NewService creates a new consolidation service.
func NewService(repo Repository, orderSvc *orders.Service, ledgerSvc *ledger.Service, txManager tx.Manager, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		repo:      repo,
		orders:    orderSvc,
		ledger:    ledgerSvc,
		txManager: txManager,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// GenerateSummary aggregates SUBMITTED and APPROVED orders dated on or before the
// delivery day, writes one summary per item under a new batch id and returns them
// sorted by item.
func (s *Service) GenerateSummary(ctx context.Context, deliveryDate time.Time) ([]Summary, error) {
	day := deliveryDate.UTC().Truncate(24 * time.Hour)
	pending, err := s.orders.FindForConsolidation(ctx, pendingStatuses, day.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("find orders: %w", err)
	}

	byItem := make(map[id.ID]*Summary)
	for _, o := range pending {
		for _, l := range o.Lines {
			sum, ok := byItem[l.ItemID]
			if !ok {
				sum = &Summary{ItemID: l.ItemID, UOM: l.UOM}
				byItem[l.ItemID] = sum
			}
			sum.TotalOrdered += l.Quantity
			sum.Stores = append(sum.Stores, StoreDemand{
				StoreID:     o.StoreID,
				OrderID:     o.ID,
				OrderNumber: o.Number,
				Quantity:    l.Quantity,
			})
		}
	}
	if len(byItem) == 0 {
		logger.Info(ctx, "consolidation found no pending demand", "delivery_date", day.Format(time.DateOnly))
		return []Summary{}, nil
	}

	items := make([]id.ID, 0, len(byItem))
	for item := range byItem {
		items = append(items, item)
	}
	slices.SortFunc(items, id.Compare)

	available, err := s.ledger.AvailableByItem(ctx, items)
	if err != nil {
		return nil, fmt.Errorf("available inventory: %w", err)
	}

	batchID := id.New()
	now := s.now()
	actor := appctx.GetActor(ctx)
	out := make([]Summary, 0, len(items))
	for _, item := range items {
		sum := byItem[item]
		sum.ID = id.New()
		sum.BatchID = batchID
		sum.ConsolidationDate = now
		sum.DeliveryDate = day
		sum.AvailableInventory = available[item]
		sum.NeedToProduce, sum.Status = Classify(sum.TotalOrdered, sum.AvailableInventory)
		sum.CreatedBy = actor
		out = append(out, *sum)
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.InsertSummaries(ctx, out); err != nil {
			return fmt.Errorf("insert summaries: %w", err)
		}
		return s.publisher.Publish(ctx, events.New(events.AggregateConsolidation, batchID, events.ConsolidationGenerated, map[string]any{
			"delivery_date": day.Format(time.DateOnly),
			"items":         len(out),
			"orders":        len(pending),
			"shortfalls":    countShortfalls(out),
		}))
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "consolidation generated", "batch_id", batchID, "delivery_date", day.Format(time.DateOnly), "items", len(out))
	return out, nil
}

func countShortfalls(summaries []Summary) int {
	n := 0
	for _, s := range summaries {
		if s.Status != StatusSufficient {
			n++
		}
	}
	return n
}

// ListSummaries returns stored summaries.
func (s *Service) ListSummaries(ctx context.Context, filter ListFilter) (domain.ListResult[Summary], error) {
	lf := domain.ListFilter{Limit: filter.Limit, Offset: filter.Offset}
	lf.Normalize()
	filter.Limit, filter.Offset = lf.Limit, lf.Offset

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return domain.ListResult[Summary]{}, fmt.Errorf("list summaries: %w", err)
	}
	return domain.ListResult[Summary]{Items: items, TotalCount: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}
