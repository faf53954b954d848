// Package database manages the PostgreSQL connection pool and schema.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/valeevte/valora/internal/logging"
)

var ErrIncompleteConfig = errors.New("DB config incomplete: DB_USER/DB_HOST/DB_PORT/DB_NAME must be set")

// Connect opens a pool and pings it. The caller owns the pool and must
// Close it.
func Connect(ctx context.Context, cfg DBConfig) (*pgxpool.Pool, error) {
	if !cfg.complete() {
		return nil, ErrIncompleteConfig
	}
	return ConnectDSN(ctx, cfg.TargetDSN(), cfg.MaxConns, cfg.ConnectTimeout)
}

func ConnectDSN(ctx context.Context, dsn string, maxConns int32, timeout time.Duration) (*pgxpool.Pool, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logging.Info(ctx, "connected to postgres",
		"host", poolCfg.ConnConfig.Host,
		"database", poolCfg.ConnConfig.Database,
		"max_conns", poolCfg.MaxConns,
	)
	return pool, nil
}
