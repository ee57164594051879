package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/payments-engine/internal/account"
)

var (
	// ErrRunNotFound occurs when no export run exists for the requested id.
	ErrRunNotFound = errors.New("export run not found")

	// ErrDuplicateRun indicates an export run with the same id was already stored.
	ErrDuplicateRun = errors.New("duplicate export run")
)

// Run is one export of the final account snapshots.
type Run struct {
	ID        string             `json:"run_id"`
	CreatedAt time.Time          `json:"created_at"`
	Accounts  []account.Snapshot `json:"accounts"`
}

// Store defines the contract implemented by snapshot export backends (e.g. Postgres).
// Stores are write-once sinks; nothing read back is ever applied to a live account.
type Store interface {
	SaveRun(ctx context.Context, run Run) error
	Run(ctx context.Context, id string) (Run, error)
}

// Export stores snapshots under a freshly generated run id.
func Export(ctx context.Context, store Store, snapshots []account.Snapshot) (Run, error) {
	run := Run{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Accounts:  snapshots,
	}
	if err := store.SaveRun(ctx, run); err != nil {
		return Run{}, fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return run, nil
}
