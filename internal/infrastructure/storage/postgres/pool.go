package postgres

import (
	"context"
	"fmt"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"storeflow/pkg/logger"
)

// PoolConfig sizes the connection pool. Zero values keep pgxpool's defaults.
type PoolConfig struct {
	DSN               string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ApplicationName   string // shown in pg_stat_activity
}

// DefaultPoolConfig is sized for the API server.
func DefaultPoolConfig(dsn string) PoolConfig {
	return PoolConfig{
		DSN:               dsn,
		MaxConns:          25,
		MinConns:          5,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: time.Minute,
		ApplicationName:   "storeflow",
	}
}

// Pool is the shared pgx pool. It satisfies the health handler's Pinger.
type Pool struct {
	*pgxpool.Pool
}

// NewPool connects and pings. Quantities are BIGINT, money columns NUMERIC;
// the latter decode into decimal.Decimal on every connection.
func NewPool(ctx context.Context, cfg PoolConfig) (*Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	setIf(&pc.MaxConns, cfg.MaxConns)
	setIf(&pc.MinConns, cfg.MinConns)
	setIf(&pc.MaxConnLifetime, cfg.MaxConnLifetime)
	setIf(&pc.MaxConnIdleTime, cfg.MaxConnIdleTime)
	setIf(&pc.HealthCheckPeriod, cfg.HealthCheckPeriod)
	if cfg.ApplicationName != "" {
		pc.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}
	pc.AfterConnect = func(_ context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	p, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Pool{Pool: p}, nil
}

func setIf[T int32 | time.Duration](dst *T, v T) {
	if v > 0 {
		*dst = v
	}
}

// LogStats writes a snapshot of pool usage at info level.
func (p *Pool) LogStats(ctx context.Context) {
	s := p.Stat()
	logger.Info(ctx, "database pool",
		"total", s.TotalConns(),
		"acquired", s.AcquiredConns(),
		"idle", s.IdleConns(),
		"max", s.MaxConns(),
		"empty_acquire", s.EmptyAcquireCount(),
	)
}
