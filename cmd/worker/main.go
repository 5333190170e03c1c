// Package main is the entry point for the storeflow background worker.
// It relays the transactional outbox and expires idempotency keys.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"storeflow/internal/config"
	"storeflow/internal/infrastructure/storage/postgres"
	"storeflow/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
		Service:     "storeflow-worker",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetDefault(log)

	if cfg.StorageDriver == config.DriverMemory {
		log.Fatal("worker requires the postgres storage driver")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting storeflow worker")

	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxConns = 4
	poolCfg.MinConns = 1
	poolCfg.ApplicationName = "storeflow-worker"
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txm := postgres.NewTxManager(pool).WithStatementTimeout(cfg.DBStatementTime)
	worker := NewWorker(pool, txm, cfg, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// Worker drains the outbox and runs periodic housekeeping.
type Worker struct {
	pool         *postgres.Pool
	relay        *postgres.OutboxRelay
	idempotency  *postgres.IdempotencyStore
	pollInterval time.Duration
	log          *logger.Logger
}

func NewWorker(pool *postgres.Pool, txm *postgres.TxManager, cfg *config.Config, log *logger.Logger) *Worker {
	poll := cfg.OutboxPollInterval
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	return &Worker{
		pool:         pool,
		relay:        postgres.NewOutboxRelay(txm, cfg.OutboxBatchSize, postgres.LogDelivery),
		idempotency:  postgres.NewIdempotencyStore(txm, cfg.IdempotencyTTL),
		pollInterval: poll,
		log:          log.WithComponent("worker"),
	}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	cleanupTicker := time.NewTicker(time.Hour)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processOutbox(ctx)
		case <-cleanupTicker.C:
			w.moveToDLQ(ctx)
			w.cleanupIdempotency(ctx)
			w.pool.LogStats(ctx)
		}
	}
}

func (w *Worker) processOutbox(ctx context.Context) {
	// Drain until a batch publishes nothing.
	for {
		n, err := w.relay.ProcessBatch(ctx)
		if err != nil {
			if ctx.Err() == nil {
				w.log.Errorw("outbox batch failed", "error", err)
			}
			return
		}
		if n > 0 {
			w.log.Debugw("processed outbox batch", "count", n)
		}
		if n == 0 || ctx.Err() != nil {
			return
		}
	}
}

func (w *Worker) moveToDLQ(ctx context.Context) {
	n, err := w.relay.MoveToDLQ(ctx)
	if err != nil {
		w.log.Errorw("failed to move poisoned outbox messages", "error", err)
		return
	}
	if n > 0 {
		w.log.Warnw("moved outbox messages to dead letter queue", "count", n)
	}
}

func (w *Worker) cleanupIdempotency(ctx context.Context) {
	n, err := w.idempotency.CleanupExpired(ctx)
	if err != nil {
		w.log.Errorw("failed to clean up idempotency keys", "error", err)
		return
	}
	if n > 0 {
		w.log.Infow("cleaned up idempotency keys", "count", n)
	}
}
