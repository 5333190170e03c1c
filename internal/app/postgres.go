package app

import (
	"context"

	"storeflow/internal/infrastructure/numerator"
	"storeflow/internal/infrastructure/storage/postgres"
	"storeflow/internal/infrastructure/storage/postgres/catalog_repo"
	"storeflow/internal/infrastructure/storage/postgres/document_repo"
	"storeflow/internal/infrastructure/storage/postgres/register_repo"
	"storeflow/internal/infrastructure/storage/postgres/report_repo"
)

// PostgresRepositories returns the Postgres implementation of every repository.
func PostgresRepositories(txm *postgres.TxManager) Repositories {
	return Repositories{
		Ledger:        register_repo.NewLedgerRepo(txm),
		Lots:          catalog_repo.NewLotRepo(txm),
		Orders:        document_repo.NewOrderRepo(txm),
		Shipments:     document_repo.NewShipmentRepo(txm),
		Receipts:      document_repo.NewGoodsReceiptRepo(txm),
		Returns:       document_repo.NewReturnRepo(txm),
		Consolidation: report_repo.NewSummaryRepo(txm),
	}
}

// NewPostgres builds the services over the transaction manager of a pool. Events go to the outbox and the
// audit trail in the transaction that raised them.
func NewPostgres(txm *postgres.TxManager, opts Options) (*Services, error) {
	trail, err := postgres.NewAuditTrail(txm)
	if err != nil {
		return nil, err
	}
	publisher := postgres.NewAuditedPublisher(postgres.NewOutboxPublisher(txm), trail)
	gen := numerator.NewWithResolver(func(ctx context.Context) numerator.Querier {
		return txm.GetQuerier(ctx)
	})
	return New(PostgresRepositories(txm), txm, gen, publisher, opts)
}
