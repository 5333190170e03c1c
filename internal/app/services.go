// Package app wires repositories into the workflow services. Both storage
// drivers build the same Services value.
package app

import (
	"storeflow/internal/core/numerator"
	"storeflow/internal/core/tx"
	"storeflow/internal/core/types"
	"storeflow/internal/domain/alerts"
	"storeflow/internal/domain/consolidation"
	"storeflow/internal/domain/events"
	"storeflow/internal/domain/fulfillment"
	"storeflow/internal/domain/ledger"
	"storeflow/internal/domain/lots"
	"storeflow/internal/domain/orders"
	"storeflow/internal/domain/receipts"
	"storeflow/internal/domain/returns"
	"storeflow/internal/domain/shipments"
	infranumerator "storeflow/internal/infrastructure/numerator"
	"storeflow/internal/infrastructure/storage/memory"
)

// Repositories is one storage driver's implementation of every repository.
type Repositories struct {
	Ledger        ledger.Repository
	Lots          lots.Repository
	Orders        orders.Repository
	Shipments     shipments.Repository
	Receipts      receipts.Repository
	Returns       returns.Repository
	Consolidation consolidation.Repository
}

// Options tunes service behavior.
type Options struct {
	DefaultCurrency     string
	ExpiryThresholdDays int
	LowStockMin         types.Quantity
	LowStockPolicy      string // CEL expression; overrides LowStockMin
}

// Services is the full set of workflow services.
type Services struct {
	Ledger        *ledger.Service
	Lots          *lots.Service
	Orders        *orders.Service
	Shipments     *shipments.Service
	Receipts      *receipts.Service
	Returns       *returns.Service
	Consolidation *consolidation.Service
	Fulfillment   *fulfillment.Service
	Alerts        *alerts.Service
}

// New builds the services over repos.
func New(repos Repositories, txManager tx.Manager, gen numerator.Generator, publisher events.Publisher, opts Options) (*Services, error) {
	minimum := opts.LowStockMin
	if minimum == 0 {
		minimum = alerts.DefaultMinimum
	}
	policy, err := alerts.NewPolicy(opts.LowStockPolicy, minimum)
	if err != nil {
		return nil, err
	}

	ledgerSvc := ledger.NewService(repos.Ledger, txManager)
	lotSvc := lots.NewService(repos.Lots)
	orderSvc := orders.NewService(repos.Orders, gen, txManager, publisher).WithDefaultCurrency(opts.DefaultCurrency)
	shipmentSvc := shipments.NewService(repos.Shipments, ledgerSvc, orderSvc, lotSvc, gen, txManager, publisher)
	receiptSvc := receipts.NewService(repos.Receipts, ledgerSvc, shipmentSvc, orderSvc, gen, txManager, publisher)

	return &Services{
		Ledger:        ledgerSvc,
		Lots:          lotSvc,
		Orders:        orderSvc,
		Shipments:     shipmentSvc,
		Receipts:      receiptSvc,
		Returns:       returns.NewService(repos.Returns, ledgerSvc, lotSvc, gen, txManager, publisher),
		Consolidation: consolidation.NewService(repos.Consolidation, orderSvc, ledgerSvc, txManager, publisher),
		Fulfillment:   fulfillment.NewService(orderSvc, shipmentSvc, receiptSvc, txManager),
		Alerts:        alerts.NewService(ledgerSvc, lotSvc, policy, opts.ExpiryThresholdDays),
	}, nil
}

// NewMemory builds the services over a fresh memory store.
func NewMemory(opts Options) (*Services, *memory.Store, error) {
	store := memory.New()
	svc, err := New(MemoryRepositories(store), store.TxManager(), infranumerator.NewMemory(), store.Publisher(), opts)
	if err != nil {
		return nil, nil, err
	}
	return svc, store, nil
}

// MemoryRepositories returns the repositories of a memory store.
func MemoryRepositories(store *memory.Store) Repositories {
	return Repositories{
		Ledger:        store.Ledger(),
		Lots:          store.Lots(),
		Orders:        store.Orders(),
		Shipments:     store.Shipments(),
		Receipts:      store.Receipts(),
		Returns:       store.Returns(),
		Consolidation: store.Summaries(),
	}
}
