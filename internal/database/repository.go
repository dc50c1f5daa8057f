package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cryptohunter/internal/model"
)

// Repository defines the standard interface for database operations.
type Repository interface {
	Migrate(ctx context.Context) error
	LogPriceTicks(ctx context.Context, ticks []model.PriceTick) error
}

const createPriceTicksSQL = `
CREATE TABLE IF NOT EXISTS price_ticks (
	id BIGSERIAL PRIMARY KEY,
	cycle BIGINT NOT NULL,
	taken_at TIMESTAMPTZ NOT NULL,
	asset VARCHAR(64) NOT NULL,
	exchange VARCHAR(64) NOT NULL,
	price_usd DOUBLE PRECISION NOT NULL,
	spread_pct DOUBLE PRECISION NOT NULL,
	source VARCHAR(16) NOT NULL
)`

const createPriceTicksIndexSQL = `
CREATE INDEX IF NOT EXISTS price_ticks_asset_taken_at ON price_ticks (asset, taken_at)`

// PostgresRepository stores the market history in PostgreSQL.
type PostgresRepository struct {
	Pool *pgxpool.Pool
}

// NewPostgresRepository connects to the database at dsn.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("database: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}
	return &PostgresRepository{Pool: pool}, nil
}

// Migrate creates the price_ticks table if it does not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	for _, stmt := range []string{createPriceTicksSQL, createPriceTicksIndexSQL} {
		if _, err := r.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("database: migrate: %w", err)
		}
	}
	return nil
}

// LogPriceTicks inserts all ticks with a single COPY.
func (r *PostgresRepository) LogPriceTicks(ctx context.Context, ticks []model.PriceTick) error {
	if len(ticks) == 0 {
		return nil
	}
	_, err := r.Pool.CopyFrom(ctx,
		pgx.Identifier{"price_ticks"},
		[]string{"cycle", "taken_at", "asset", "exchange", "price_usd", "spread_pct", "source"},
		pgx.CopyFromSlice(len(ticks), func(i int) ([]any, error) {
			t := ticks[i]
			return []any{t.Cycle, t.TakenAt, t.Asset, t.Exchange, t.Price, t.SpreadPct, string(t.Source)}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("database: copy price ticks: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() {
	r.Pool.Close()
}
