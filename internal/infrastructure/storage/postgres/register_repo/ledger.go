// Package register_repo provides the PostgreSQL implementation of the inventory
// ledger: the balance register and the transaction log.
package register_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"storeflow/internal/core/apperror"
	"storeflow/internal/core/id"
	"storeflow/internal/core/types"
	"storeflow/internal/domain/ledger"
	"storeflow/internal/infrastructure/storage/postgres"
)

const (
	balancesTable     = "inv_balances"
	transactionsTable = "inv_transactions"
)

var (
	balanceCols     = []string{"location_id", "item_id", "lot_id", "on_hand", "reserved", "last_movement_at", "updated_at"}
	transactionCols = []string{"id", "txn_time", "location_id", "item_id", "lot_id", "quantity", "uom", "kind", "ref_type", "ref_id", "actor", "notes"}
)

type balanceRow struct {
	LocationID     id.ID      `db:"location_id"`
	ItemID         id.ID      `db:"item_id"`
	LotID          *id.ID     `db:"lot_id"`
	OnHand         int64      `db:"on_hand"`
	Reserved       int64      `db:"reserved"`
	LastMovementAt *time.Time `db:"last_movement_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

func (r balanceRow) toDomain() ledger.Balance {
	return ledger.Balance{
		Key:            ledger.NewKey(r.LocationID, r.ItemID, r.LotID),
		OnHand:         types.Quantity(r.OnHand),
		Reserved:       types.Quantity(r.Reserved),
		LastMovementAt: r.LastMovementAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

type transactionRow struct {
	ID         id.ID          `db:"id"`
	TxnTime    time.Time      `db:"txn_time"`
	LocationID id.ID          `db:"location_id"`
	ItemID     id.ID          `db:"item_id"`
	LotID      *id.ID         `db:"lot_id"`
	Quantity   int64          `db:"quantity"`
	UOM        string         `db:"uom"`
	Kind       ledger.Kind    `db:"kind"`
	RefType    ledger.RefType `db:"ref_type"`
	RefID      *id.ID         `db:"ref_id"`
	Actor      string         `db:"actor"`
	Notes      string         `db:"notes"`
}

func (r transactionRow) toDomain() ledger.Transaction {
	return ledger.Transaction{
		ID:       r.ID,
		TxnTime:  r.TxnTime,
		Key:      ledger.NewKey(r.LocationID, r.ItemID, r.LotID),
		Quantity: types.Quantity(r.Quantity),
		UOM:      r.UOM,
		Kind:     r.Kind,
		RefType:  r.RefType,
		RefID:    r.RefID,
		Actor:    r.Actor,
		Notes:    r.Notes,
	}
}

// LedgerRepo implements ledger.Repository.
type LedgerRepo struct {
	txm     *postgres.TxManager
	bulk    *postgres.Bulk
	builder squirrel.StatementBuilderType
}

var _ ledger.Repository = (*LedgerRepo)(nil)

// NewLedgerRepo creates a new ledger repository.
func NewLedgerRepo(txm *postgres.TxManager) *LedgerRepo {
	return &LedgerRepo{
		txm:     txm,
		bulk:    postgres.NewBulk(txm),
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func keyWhere(key ledger.Key) squirrel.And {
	return squirrel.And{
		squirrel.Eq{"location_id": key.LocationID},
		squirrel.Eq{"item_id": key.ItemID},
		squirrel.Expr("lot_id IS NOT DISTINCT FROM ?::uuid", key.Lot()),
	}
}

// LockBalance implements ledger.Repository. The zero row is inserted first so
// that the FOR UPDATE below always has a row to lock.
func (r *LedgerRepo) LockBalance(ctx context.Context, key ledger.Key) (*ledger.Balance, error) {
	tx := r.txm.GetTx(ctx)
	if tx == nil {
		return nil, fmt.Errorf("lock balance: no active transaction")
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO `+balancesTable+` (location_id, item_id, lot_id, on_hand, reserved, updated_at)
		VALUES ($1, $2, $3, 0, 0, $4)
		ON CONFLICT (location_id, item_id, lot_id) DO NOTHING
	`, key.LocationID, key.ItemID, key.Lot(), time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("ensure balance row: %w", err)
	}

	sql, args, err := r.builder.Select(balanceCols...).
		From(balancesTable).
		Where(keyWhere(key)).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row balanceRow
	if err := pgxscan.Get(ctx, tx, &row, sql, args...); err != nil {
		return nil, fmt.Errorf("lock balance %s: %w", key, err)
	}
	b := row.toDomain()
	return &b, nil
}

// SaveBalance implements ledger.Repository.
func (r *LedgerRepo) SaveBalance(ctx context.Context, b *ledger.Balance) error {
	tx := r.txm.GetTx(ctx)
	if tx == nil {
		return fmt.Errorf("save balance: no active transaction")
	}

	sql, args, err := r.builder.Update(balancesTable).
		Set("on_hand", b.OnHand.Int64Scaled()).
		Set("reserved", b.Reserved.Int64Scaled()).
		Set("last_movement_at", b.LastMovementAt).
		Set("updated_at", b.UpdatedAt).
		Where(keyWhere(b.Key)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		if constraint, ok := postgres.CheckViolation(err); ok {
			return apperror.NewInternal(err).WithDetail("constraint", constraint).WithDetail("key", b.Key.String())
		}
		return fmt.Errorf("save balance %s: %w", b.Key, err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("balance", b.Key.String())
	}
	return nil
}

// InsertTransactions implements ledger.Repository using COPY.
func (r *LedgerRepo) InsertTransactions(ctx context.Context, txns []ledger.Transaction) error {
	if len(txns) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(txns))
	for _, t := range txns {
		rows = append(rows, []any{
			t.ID, t.TxnTime, t.LocationID, t.ItemID, t.Lot(),
			t.Quantity.Int64Scaled(), t.UOM, string(t.Kind), string(t.RefType), t.RefID,
			t.Actor, t.Notes,
		})
	}
	if err := r.bulk.Copy(ctx, transactionsTable, transactionCols, rows); err != nil {
		return fmt.Errorf("copy transactions: %w", err)
	}
	return nil
}

// GetBalance implements ledger.Repository.
func (r *LedgerRepo) GetBalance(ctx context.Context, key ledger.Key) (*ledger.Balance, error) {
	sql, args, err := r.builder.Select(balanceCols...).
		From(balancesTable).
		Where(keyWhere(key)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row balanceRow
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("balance", key.String())
		}
		return nil, fmt.Errorf("get balance: %w", err)
	}
	b := row.toDomain()
	return &b, nil
}

// ListBalances implements ledger.Repository.
func (r *LedgerRepo) ListBalances(ctx context.Context, f ledger.BalanceFilter) ([]ledger.Balance, error) {
	q := r.builder.Select(balanceCols...).From(balancesTable)
	if f.LocationID != nil {
		q = q.Where(squirrel.Eq{"location_id": *f.LocationID})
	}
	if f.ItemID != nil {
		q = q.Where(squirrel.Eq{"item_id": *f.ItemID})
	}
	if len(f.ItemIDs) > 0 {
		q = q.Where(squirrel.Eq{"item_id": f.ItemIDs})
	}
	if f.LotID != nil {
		q = q.Where(squirrel.Eq{"lot_id": *f.LotID})
	}
	if f.OnlyLots {
		q = q.Where("lot_id IS NOT NULL")
	}
	if f.NonZero {
		q = q.Where("on_hand <> 0")
	}
	// NULL lot sorts first, like the zero id in ledger.Key.Compare
	q = q.OrderBy("location_id", "item_id", "lot_id NULLS FIRST")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []balanceRow
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	out := make([]ledger.Balance, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

// QueryTransactions implements ledger.Repository with keyset paging on (txn_time, id).
func (r *LedgerRepo) QueryTransactions(ctx context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	q := r.builder.Select(transactionCols...).From(transactionsTable)
	if f.LocationID != nil {
		q = q.Where(squirrel.Eq{"location_id": *f.LocationID})
	}
	if f.ItemID != nil {
		q = q.Where(squirrel.Eq{"item_id": *f.ItemID})
	}
	if f.LotID != nil {
		q = q.Where(squirrel.Eq{"lot_id": *f.LotID})
	}
	if len(f.Kinds) > 0 {
		q = q.Where(squirrel.Eq{"kind": f.Kinds})
	}
	if f.RefType != "" {
		q = q.Where(squirrel.Eq{"ref_type": string(f.RefType)})
	}
	if f.RefID != nil {
		q = q.Where(squirrel.Eq{"ref_id": *f.RefID})
	}
	if f.From != nil {
		q = q.Where(squirrel.GtOrEq{"txn_time": *f.From})
	}
	if f.To != nil {
		q = q.Where(squirrel.Lt{"txn_time": *f.To})
	}
	if f.Before != nil {
		q = q.Where(squirrel.Expr("(txn_time, id) < (?, ?)", *f.Before, f.BeforeID))
	}
	q = q.OrderBy("txn_time DESC", "id DESC")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []transactionRow
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	out := make([]ledger.Transaction, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}
