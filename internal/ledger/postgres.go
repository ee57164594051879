package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/payments-engine/internal/account"
)

const schema = `
CREATE TABLE IF NOT EXISTS export_runs (
    id         UUID PRIMARY KEY,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS account_snapshots (
    run_id    UUID    NOT NULL REFERENCES export_runs (id) ON DELETE CASCADE,
    client    INTEGER NOT NULL,
    available NUMERIC NOT NULL,
    held      NUMERIC NOT NULL,
    total     NUMERIC NOT NULL,
    locked    BOOLEAN NOT NULL,
    PRIMARY KEY (run_id, client)
);`

// PostgresStore persists export runs in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the export tables when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveRun writes the run header and every snapshot in a single transaction.
func (s *PostgresStore) SaveRun(ctx context.Context, run Run) error {
	runID, err := uuid.Parse(run.ID)
	if err != nil {
		return fmt.Errorf("parse run id: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	tag, err := tx.Exec(ctx, `INSERT INTO export_runs (id, created_at) VALUES ($1, $2)
        ON CONFLICT (id) DO NOTHING`, runID, run.CreatedAt.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateRun
	}

	batch := &pgx.Batch{}
	for _, snap := range run.Accounts {
		batch.Queue(`INSERT INTO account_snapshots (run_id, client, available, held, total, locked)
            VALUES ($1, $2, $3, $4, $5, $6)`,
			runID, int32(snap.Client), snap.Available, snap.Held, snap.Total, snap.Locked)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert snapshots: %w", err)
	}

	return tx.Commit(ctx)
}

// Run loads an export run with its snapshots ordered by client.
func (s *PostgresStore) Run(ctx context.Context, id string) (Run, error) {
	runID, err := uuid.Parse(id)
	if err != nil {
		return Run{}, ErrRunNotFound
	}

	var createdAt time.Time
	if err := s.db.QueryRow(ctx, `SELECT created_at FROM export_runs WHERE id = $1`, runID).Scan(&createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Run{}, ErrRunNotFound
		}
		return Run{}, err
	}

	rows, err := s.db.Query(ctx, `SELECT client, available::text, held::text, total::text, locked
        FROM account_snapshots WHERE run_id = $1 ORDER BY client`, runID)
	if err != nil {
		return Run{}, err
	}
	defer rows.Close()

	run := Run{ID: runID.String(), CreatedAt: createdAt.UTC(), Accounts: []account.Snapshot{}}
	for rows.Next() {
		var (
			client                 int32
			available, held, total string
			locked                 bool
		)
		if err := rows.Scan(&client, &available, &held, &total, &locked); err != nil {
			return Run{}, err
		}
		snap, err := snapshotFromText(uint16(client), available, held, total, locked)
		if err != nil {
			return Run{}, err
		}
		run.Accounts = append(run.Accounts, snap)
	}
	if err := rows.Err(); err != nil {
		return Run{}, err
	}
	return run, nil
}

func snapshotFromText(client uint16, available, held, total string, locked bool) (account.Snapshot, error) {
	snap := account.Snapshot{Client: client, Locked: locked}
	var err error
	if snap.Available, err = decimal.NewFromString(available); err != nil {
		return account.Snapshot{}, fmt.Errorf("client %d available: %w", client, err)
	}
	if snap.Held, err = decimal.NewFromString(held); err != nil {
		return account.Snapshot{}, fmt.Errorf("client %d held: %w", client, err)
	}
	if snap.Total, err = decimal.NewFromString(total); err != nil {
		return account.Snapshot{}, fmt.Errorf("client %d total: %w", client, err)
	}
	return snap, nil
}
