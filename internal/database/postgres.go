package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"cardamage/internal/config"
)

// NewPostgresPool builds the process-wide pool once at startup. Handlers and
// repositories receive it explicitly.
func NewPostgresPool(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpen)
	poolConfig.MinConns = int32(cfg.MaxIdle)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.HealthCheckPeriod = 30 * time.Second

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS assessments (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL DEFAULT '',
	before_image_url TEXT NOT NULL,
	after_image_url  TEXT NOT NULL,
	total_cost       DOUBLE PRECISION CHECK (total_cost IS NULL OR total_cost >= 0),
	damages          JSONB NOT NULL DEFAULT '[]'::jsonb,
	status           TEXT NOT NULL DEFAULT 'processing'
	                 CHECK (status IN ('processing', 'completed', 'failed')),
	analysis_result  JSONB,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	completed_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS assessments_created_at_idx ON assessments (created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS assessments_processing_idx ON assessments (created_at) WHERE status = 'processing';
`

// EnsureSchema creates the assessments table and its indexes when missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
