package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/valeevte/valora/internal/logging"
)

const createSchema = `
CREATE TABLE IF NOT EXISTS products (
    id            BIGSERIAL PRIMARY KEY,
    name          VARCHAR(150) NOT NULL,
    initial_price NUMERIC(12, 2) NOT NULL CHECK (initial_price > 0),
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS price_history (
    id          BIGSERIAL PRIMARY KEY,
    product_id  BIGINT NOT NULL REFERENCES products (id) ON DELETE CASCADE,
    price       NUMERIC(12, 2) NOT NULL CHECK (price >= 1),
    recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS price_history_product_id_idx
    ON price_history (product_id, recorded_at);
`

const dropSchema = `
DROP TABLE IF EXISTS price_history;
DROP TABLE IF EXISTS products;
`

// Migrate creates missing tables and indexes.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, createSchema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Reset drops every table and recreates the schema. All data is lost.
func Reset(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, dropSchema); err != nil {
		return fmt.Errorf("drop schema: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		return err
	}
	logging.Warn(ctx, "database schema recreated")
	return nil
}
