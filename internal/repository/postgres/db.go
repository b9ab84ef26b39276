package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultConnectTimeout = 10 * time.Second

// schema is idempotent so it can run on every start. plan_data is TEXT, not
// JSONB: payloads are stored byte for byte, including key order and \u0000.
const schema = `
CREATE TABLE IF NOT EXISTS shared_plans (
	share_id         VARCHAR(6)  PRIMARY KEY CHECK (share_id ~ '^[A-Z0-9]{6}$'),
	plan_data        TEXT        NOT NULL,
	owner_ref        TEXT,
	is_active        BOOLEAN     NOT NULL DEFAULT TRUE,
	access_count     BIGINT      NOT NULL DEFAULT 0 CHECK (access_count >= 0),
	last_accessed_at TIMESTAMPTZ,
	expires_at       TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
DO $$
BEGIN
	IF EXISTS (SELECT 1 FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = 'shared_plans'
		  AND column_name = 'plan_data' AND data_type = 'jsonb') THEN
		ALTER TABLE shared_plans ALTER COLUMN plan_data TYPE TEXT;
	END IF;
END $$;
CREATE INDEX IF NOT EXISTS idx_shared_plans_owner_ref ON shared_plans (owner_ref);
CREATE INDEX IF NOT EXISTS idx_shared_plans_expires_at ON shared_plans (expires_at);
`

// Connect opens a pgx pool and verifies it with a ping.
func Connect(ctx context.Context, url string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	connectCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// EnsureSchema creates the shared_plans table and its indexes if missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
