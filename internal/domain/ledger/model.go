// Package ledger is the inventory ledger: per-key balances and the append-only
// transaction log that explains them. It is the only writer of either.
package ledger

import (
	"fmt"
	"time"

	"storeflow/internal/core/apperror"
	"storeflow/internal/core/id"
	"storeflow/internal/core/types"
)

// Kind classifies a ledger transaction.
type Kind string

const (
	KindReceipt       Kind = "RECEIPT"
	KindIssue         Kind = "ISSUE"
	KindTransferIn    Kind = "TRANSFER_IN"
	KindTransferOut   Kind = "TRANSFER_OUT"
	KindAdjustment    Kind = "ADJUSTMENT"
	KindProductionIn  Kind = "PRODUCTION_IN"
	KindProductionOut Kind = "PRODUCTION_OUT"
	KindConsumption   Kind = "CONSUMPTION"
	KindReturnOut     Kind = "RETURN_OUT"
)

// direction: +1 inbound only, -1 outbound only, 0 either sign.
var kindDirection = map[Kind]int{
	KindReceipt:       1,
	KindTransferIn:    1,
	KindProductionIn:  1,
	KindIssue:         -1,
	KindTransferOut:   -1,
	KindProductionOut: -1,
	KindConsumption:   -1,
	KindReturnOut:     -1,
	KindAdjustment:    0,
}

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	_, ok := kindDirection[k]
	return ok
}

// RefType names the business document that caused a posting.
type RefType string

const (
	RefShipment        RefType = "SHIPMENT"
	RefGoodsReceipt    RefType = "GOODS_RECEIPT"
	RefReturnRequest   RefType = "RETURN_REQUEST"
	RefProductionOrder RefType = "PRODUCTION_ORDER"
	RefAdjustment      RefType = "ADJUSTMENT"
	RefOther           RefType = "OTHER"
)

// IsValid reports whether r is a known reference type.
func (r RefType) IsValid() bool {
	switch r {
	case RefShipment, RefGoodsReceipt, RefReturnRequest, RefProductionOrder, RefAdjustment, RefOther:
		return true
	}
	return false
}

// Key identifies a balance. LotID is id.Nil for lot-less stock.
type Key struct {
	LocationID id.ID
	ItemID     id.ID
	LotID      id.ID
}

// NewKey builds a key from an optional lot.
func NewKey(locationID, itemID id.ID, lotID *id.ID) Key {
	return Key{LocationID: locationID, ItemID: itemID, LotID: id.FromPtr(lotID)}
}

// HasLot reports whether the key is lot-tracked.
func (k Key) HasLot() bool { return !id.IsNil(k.LotID) }

// Lot returns the lot id or nil.
func (k Key) Lot() *id.ID { return id.ToPtr(k.LotID) }

func (k Key) String() string {
	if k.HasLot() {
		return fmt.Sprintf("%s/%s/%s", k.LocationID, k.ItemID, k.LotID)
	}
	return fmt.Sprintf("%s/%s/-", k.LocationID, k.ItemID)
}

// Compare orders keys by location, item, lot. Balance rows are locked in this order.
func (k Key) Compare(o Key) int {
	if c := id.Compare(k.LocationID, o.LocationID); c != 0 {
		return c
	}
	if c := id.Compare(k.ItemID, o.ItemID); c != 0 {
		return c
	}
	return id.Compare(k.LotID, o.LotID)
}

func (k Key) validate() error {
	if id.IsNil(k.LocationID) {
		return apperror.NewValidation("location is required")
	}
	if id.IsNil(k.ItemID) {
		return apperror.NewValidation("item is required")
	}
	return nil
}

// Balance is the materialized on-hand and reserved quantity of a key.
type Balance struct {
	Key
	OnHand         types.Quantity
	Reserved       types.Quantity
	LastMovementAt *time.Time
	UpdatedAt      time.Time
}

// Available is on-hand minus reserved.
func (b Balance) Available() types.Quantity { return b.OnHand - b.Reserved }

// Transaction is an immutable signed movement of one key.
type Transaction struct {
	ID      id.ID
	TxnTime time.Time
	Key
	Quantity types.Quantity
	UOM      string
	Kind     Kind
	RefType  RefType
	RefID    *id.ID
	Actor    string
	Notes    string
}

// Posting is a request to move stock of one key.
type Posting struct {
	Key
	Quantity types.Quantity // signed; negative is an outflow
	UOM      string
	Kind     Kind
	RefType  RefType
	RefID    *id.ID
	Actor    string // defaults to the user in context
	Notes    string
}

// Validate checks the posting in isolation (no balance access).
func (p Posting) Validate() error {
	if err := p.Key.validate(); err != nil {
		return err
	}
	if p.Quantity.IsZero() {
		return apperror.NewValidation("quantity must not be zero").WithDetail("key", p.Key.String())
	}
	dir, ok := kindDirection[p.Kind]
	if !ok {
		return apperror.NewValidation(fmt.Sprintf("unknown transaction kind %q", p.Kind))
	}
	if (dir > 0 && p.Quantity.IsNegative()) || (dir < 0 && p.Quantity.IsPositive()) {
		return apperror.NewValidation(fmt.Sprintf("%s requires a %s quantity", p.Kind, signName(dir))).
			WithDetail("quantity", p.Quantity.String())
	}
	if p.RefType != "" && !p.RefType.IsValid() {
		return apperror.NewValidation(fmt.Sprintf("unknown reference type %q", p.RefType))
	}
	return nil
}

func signName(dir int) string {
	if dir > 0 {
		return "positive"
	}
	return "negative"
}

// BalanceFilter selects balances for read-model queries.
type BalanceFilter struct {
	LocationID *id.ID
	ItemID     *id.ID
	ItemIDs    []id.ID
	LotID      *id.ID
	OnlyLots   bool // lot-tracked balances only
	NonZero    bool // on_hand <> 0
}

// TransactionFilter selects transactions, newest first.
// Before/BeforeID form a keyset cursor: rows strictly older than (Before, BeforeID).
type TransactionFilter struct {
	LocationID *id.ID
	ItemID     *id.ID
	LotID      *id.ID
	Kinds      []Kind
	RefType    RefType
	RefID      *id.ID
	From       *time.Time // inclusive
	To         *time.Time // exclusive
	Before     *time.Time
	BeforeID   id.ID
	Limit      int
}

const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

func (f *TransactionFilter) normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
}
