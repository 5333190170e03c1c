// Package main is the entry point for the storeflow API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"storeflow/internal/app"
	"storeflow/internal/config"
	"storeflow/internal/core/idempotency"
	"storeflow/internal/core/types"
	"storeflow/internal/domain/auth"
	v1 "storeflow/internal/infrastructure/http/v1"
	"storeflow/internal/infrastructure/http/v1/handlers"
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
		Service:     "storeflow-api",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetDefault(log)

	ctx := context.Background()
	log.Infow("starting storeflow server", "storage", cfg.StorageDriver, "env", cfg.Env)

	lowStockMin, err := types.ParseQuantity(cfg.LowStockMin)
	if err != nil {
		log.Fatalw("invalid LOW_STOCK_MIN", "value", cfg.LowStockMin, "error", err)
	}
	opts := app.Options{
		DefaultCurrency:     cfg.DefaultCurrency,
		ExpiryThresholdDays: cfg.ExpiryThresholdDays,
		LowStockMin:         lowStockMin,
		LowStockPolicy:      cfg.LowStockPolicy,
	}

	var (
		services *app.Services
		idem     idempotency.Store
		db       handlers.Pinger
	)

	switch strings.ToLower(cfg.StorageDriver) {
	case config.DriverMemory:
		svc, store, err := app.NewMemory(opts)
		if err != nil {
			log.Fatalw("failed to build services", "error", err)
		}
		services = svc
		if cfg.IdempotencyEnabled {
			idem = store.Idempotency(cfg.IdempotencyTTL)
		}
		log.Warn("memory storage: data is lost on restart")

	default:
		poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
		if cfg.DBMaxConns > 0 {
			poolCfg.MaxConns = cfg.DBMaxConns
		}
		if cfg.DBMinConns > 0 {
			poolCfg.MinConns = cfg.DBMinConns
		}
		if cfg.DBMaxConnIdle > 0 {
			poolCfg.MaxConnIdleTime = cfg.DBMaxConnIdle
		}

		pool, err := postgres.NewPool(ctx, poolCfg)
		if err != nil {
			log.Fatalw("failed to connect to database", "error", err)
		}
		defer pool.Close()

		if err := postgres.Migrate(ctx, pool); err != nil {
			log.Fatalw("failed to apply migrations", "error", err)
		}

		txm := postgres.NewTxManager(pool).WithStatementTimeout(cfg.DBStatementTime)
		services, err = app.NewPostgres(txm, opts)
		if err != nil {
			log.Fatalw("failed to build services", "error", err)
		}
		if cfg.IdempotencyEnabled {
			idem = postgres.NewIdempotencyStore(txm, cfg.IdempotencyTTL)
		}
		db = pool
		log.Info("database connection established")
	}

	jwtService := auth.NewJWTService(auth.DefaultJWTConfig(cfg.JWTSecret))

	router := v1.NewRouter(v1.RouterConfig{
		Services:     services,
		Logger:       log,
		JWTValidator: jwtService,
		AuthRequired: cfg.AuthRequired,
		Idempotency:  idem,
		StorageName:  strings.ToLower(cfg.StorageDriver),
		DB:           db,
		Development:  cfg.IsDevelopment(),
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.Port, "auth_required", cfg.AuthRequired, "idempotency", idem != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
