package ledger

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"time"

	"storeflow/internal/core/apperror"
	appctx "storeflow/internal/core/context"
	"storeflow/internal/core/id"
	"storeflow/internal/core/tx"
	"storeflow/internal/core/types"
	"storeflow/pkg/logger"
)

// Service is the single entry point for stock mutations.
type Service struct {
	repo      Repository
	txManager tx.Manager
	now       func() time.Time
}

// NewService creates a new ledger service.
func NewService(repo Repository, txManager tx.Manager) *Service {
	return &Service{
		repo:      repo,
		txManager: txManager,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// PostTransaction applies one signed movement and appends its transaction atomically.
func (s *Service) PostTransaction(ctx context.Context, p Posting) (*Transaction, error) {
	txns, err := s.PostBatch(ctx, []Posting{p})
	if err != nil {
		return nil, err
	}
	return &txns[0], nil
}

// PostBatch applies all postings or none. Balance rows are locked in key order,
// so two batches touching the same keys cannot deadlock.
// When called inside an outer transaction the batch joins it.
func (s *Service) PostBatch(ctx context.Context, postings []Posting) ([]Transaction, error) {
	if len(postings) == 0 {
		return nil, apperror.NewValidation("no postings")
	}
	for i, p := range postings {
		if err := p.Validate(); err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				return nil, appErr.WithDetail("posting", i)
			}
			return nil, err
		}
	}

	var out []Transaction
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		balances, err := s.lockKeys(ctx, postings)
		if err != nil {
			return err
		}

		now := s.now()
		actor := appctx.GetActor(ctx)
		txns := make([]Transaction, 0, len(postings))
		for _, p := range postings {
			b := balances[p.Key]
			if err := apply(b, p.Quantity); err != nil {
				return err
			}
			b.LastMovementAt = &now

			t := Transaction{
				ID:       id.New(),
				TxnTime:  now,
				Key:      p.Key,
				Quantity: p.Quantity,
				UOM:      p.UOM,
				Kind:     p.Kind,
				RefType:  p.RefType,
				RefID:    p.RefID,
				Actor:    p.Actor,
				Notes:    p.Notes,
			}
			if t.Actor == "" {
				t.Actor = actor
			}
			if t.RefType == "" {
				t.RefType = RefOther
			}
			txns = append(txns, t)
		}

		for _, b := range balances {
			b.UpdatedAt = now
			if err := s.repo.SaveBalance(ctx, b); err != nil {
				return fmt.Errorf("save balance %s: %w", b.Key, err)
			}
		}
		if err := s.repo.InsertTransactions(ctx, txns); err != nil {
			return fmt.Errorf("insert transactions: %w", err)
		}
		out = txns
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug(ctx, "ledger batch posted", "count", len(out), "ref_type", out[0].RefType, "ref_id", out[0].RefID)
	return out, nil
}

func (s *Service) lockKeys(ctx context.Context, postings []Posting) (map[Key]*Balance, error) {
	keys := make([]Key, 0, len(postings))
	for _, p := range postings {
		keys = append(keys, p.Key)
	}
	slices.SortFunc(keys, Key.Compare)
	keys = slices.Compact(keys)

	balances := make(map[Key]*Balance, len(keys))
	for _, k := range keys {
		b, err := s.repo.LockBalance(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("lock balance %s: %w", k, err)
		}
		balances[k] = b
	}
	return balances, nil
}

// apply adds delta to b, refusing to push on-hand below the reserved quantity.
func apply(b *Balance, delta types.Quantity) error {
	next := b.OnHand + delta
	if delta.IsNegative() && next < b.Reserved {
		return apperror.NewInsufficientStock(b.Key.String(), delta.Abs().String(), b.Available().String())
	}
	b.OnHand = next
	return nil
}

// GetBalance returns the balance of key; a key that never moved reads as zero.
func (s *Service) GetBalance(ctx context.Context, key Key) (*Balance, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}
	b, err := s.repo.GetBalance(ctx, key)
	if apperror.IsNotFound(err) {
		return &Balance{Key: key}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return b, nil
}

// ListBalances returns balances matching the filter.
func (s *Service) ListBalances(ctx context.Context, filter BalanceFilter) ([]Balance, error) {
	return s.repo.ListBalances(ctx, filter)
}

// AvailableByItem sums on-hand minus reserved over every location and lot of each item.
// Items without balances map to zero.
func (s *Service) AvailableByItem(ctx context.Context, itemIDs []id.ID) (map[id.ID]types.Quantity, error) {
	out := make(map[id.ID]types.Quantity, len(itemIDs))
	for _, item := range itemIDs {
		out[item] = 0
	}
	if len(itemIDs) == 0 {
		return out, nil
	}
	balances, err := s.repo.ListBalances(ctx, BalanceFilter{ItemIDs: itemIDs})
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	for _, b := range balances {
		out[b.ItemID] += b.Available()
	}
	return out, nil
}

// QueryTransactions returns one page, newest first.
func (s *Service) QueryTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	filter.normalize()
	return s.repo.QueryTransactions(ctx, filter)
}

// Transactions lazily walks every transaction matching filter, newest first,
// fetching filter.Limit rows per page. Iteration stops at the first error.
// The sequence is finite and can be restarted by ranging over it again.
func (s *Service) Transactions(ctx context.Context, filter TransactionFilter) iter.Seq2[Transaction, error] {
	return func(yield func(Transaction, error) bool) {
		page := filter
		page.normalize()
		for {
			txns, err := s.repo.QueryTransactions(ctx, page)
			if err != nil {
				yield(Transaction{}, err)
				return
			}
			for _, t := range txns {
				if !yield(t, nil) {
					return
				}
			}
			if len(txns) < page.Limit {
				return
			}
			last := txns[len(txns)-1]
			page.Before = &last.TxnTime
			page.BeforeID = last.ID
		}
	}
}

// AdjustRequest is a manual stock correction.
type AdjustRequest struct {
	Key
	Quantity types.Quantity
	UOM      string
	Reason   string
}

// Adjust posts an ADJUSTMENT. A negative adjustment obeys the same stock rule as any outflow.
func (s *Service) Adjust(ctx context.Context, req AdjustRequest) (*Transaction, error) {
	if req.Reason == "" {
		return nil, apperror.NewValidation("adjustment reason is required")
	}
	refID := id.New()
	t, err := s.PostTransaction(ctx, Posting{
		Key:      req.Key,
		Quantity: req.Quantity,
		UOM:      req.UOM,
		Kind:     KindAdjustment,
		RefType:  RefAdjustment,
		RefID:    &refID,
		Notes:    req.Reason,
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "inventory adjusted", "key", req.Key.String(), "quantity", req.Quantity.String())
	return t, nil
}

// ProductionLine is one finished good or ingredient of a production run.
type ProductionLine struct {
	ItemID   id.ID
	LotID    *id.ID
	Quantity types.Quantity // positive
	UOM      string
}

// ProductionRequest records the outcome of a kitchen production run at one location.
type ProductionRequest struct {
	ProductionOrderID *id.ID
	LocationID        id.ID
	Outputs           []ProductionLine
	Consumed          []ProductionLine
	Notes             string
}

// RecordProduction posts PRODUCTION_IN for outputs and CONSUMPTION for ingredients atomically.
func (s *Service) RecordProduction(ctx context.Context, req ProductionRequest) ([]Transaction, error) {
	if len(req.Outputs) == 0 {
		return nil, apperror.NewValidation("production needs at least one output")
	}
	ref := req.ProductionOrderID
	if ref == nil {
		generated := id.New()
		ref = &generated
	}

	postings := make([]Posting, 0, len(req.Outputs)+len(req.Consumed))
	for _, o := range req.Outputs {
		if !o.Quantity.IsPositive() {
			return nil, apperror.NewValidation("output quantity must be positive")
		}
		postings = append(postings, Posting{
			Key:      NewKey(req.LocationID, o.ItemID, o.LotID),
			Quantity: o.Quantity,
			UOM:      o.UOM,
			Kind:     KindProductionIn,
			RefType:  RefProductionOrder,
			RefID:    ref,
			Notes:    req.Notes,
		})
	}
	for _, c := range req.Consumed {
		if !c.Quantity.IsPositive() {
			return nil, apperror.NewValidation("consumed quantity must be positive")
		}
		postings = append(postings, Posting{
			Key:      NewKey(req.LocationID, c.ItemID, c.LotID),
			Quantity: c.Quantity.Neg(),
			UOM:      c.UOM,
			Kind:     KindConsumption,
			RefType:  RefProductionOrder,
			RefID:    ref,
			Notes:    req.Notes,
		})
	}
	return s.PostBatch(ctx, postings)
}

// Reserve earmarks quantity of key so it no longer counts as available.
func (s *Service) Reserve(ctx context.Context, key Key, qty types.Quantity) error {
	if !qty.IsPositive() {
		return apperror.NewValidation("reserve quantity must be positive")
	}
	return s.changeReserved(ctx, key, qty)
}

// Release returns previously reserved quantity to available.
func (s *Service) Release(ctx context.Context, key Key, qty types.Quantity) error {
	if !qty.IsPositive() {
		return apperror.NewValidation("release quantity must be positive")
	}
	return s.changeReserved(ctx, key, qty.Neg())
}

// ReleaseUpTo releases at most qty of key and returns the quantity actually
// released. Documents give their reservations back through it, so a manual
// release made in between never blocks them.
func (s *Service) ReleaseUpTo(ctx context.Context, key Key, qty types.Quantity) (types.Quantity, error) {
	if !qty.IsPositive() {
		return 0, apperror.NewValidation("release quantity must be positive")
	}
	if err := key.validate(); err != nil {
		return 0, err
	}
	var released types.Quantity
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		b, err := s.repo.LockBalance(ctx, key)
		if err != nil {
			return fmt.Errorf("lock balance %s: %w", key, err)
		}
		released = min(qty, b.Reserved)
		if released <= 0 {
			released = 0
			return nil
		}
		b.Reserved -= released
		b.UpdatedAt = s.now()
		return s.repo.SaveBalance(ctx, b)
	})
	return released, err
}

func (s *Service) changeReserved(ctx context.Context, key Key, delta types.Quantity) error {
	if err := key.validate(); err != nil {
		return err
	}
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		b, err := s.repo.LockBalance(ctx, key)
		if err != nil {
			return fmt.Errorf("lock balance %s: %w", key, err)
		}
		next := b.Reserved + delta
		switch {
		case next > b.OnHand:
			return apperror.NewInsufficientStock(key.String(), delta.String(), b.Available().String())
		case next < 0:
			return apperror.NewValidation("cannot release more than reserved").
				WithDetail("reserved", b.Reserved.String()).
				WithDetail("requested", delta.Abs().String())
		}
		b.Reserved = next
		b.UpdatedAt = s.now()
		return s.repo.SaveBalance(ctx, b)
	})
}
