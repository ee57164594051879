package infra

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/payments-engine/internal/ledger"
)

// NewPostgresPool configures and returns a PostgreSQL connection pool.
func NewPostgresPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, fmt.Errorf("database url is required")
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

// NewSnapshotStore returns the export store for the given database url. An
// empty url yields an in-memory store and a nil pool. The returned close func
// is always safe to call.
func NewSnapshotStore(ctx context.Context, url string, logger *slog.Logger) (ledger.Store, *pgxpool.Pool, func(), error) {
	if url == "" {
		logger.Info("DATABASE_URL not set; exports kept in memory")
		return ledger.NewInMemory(), nil, func() {}, nil
	}

	pool, err := NewPostgresPool(ctx, url)
	if err != nil {
		return nil, nil, func() {}, err
	}

	store := ledger.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, func() {}, err
	}
	return store, pool, pool.Close, nil
}
