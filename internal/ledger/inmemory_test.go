package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/payments-engine/internal/account"
)

func sampleSnapshots() []account.Snapshot {
	return []account.Snapshot{
		{Client: 1, Available: decimal.RequireFromString("6.7599"), Held: decimal.Zero, Total: decimal.RequireFromString("6.7599")},
		{Client: 4, Available: decimal.RequireFromString("9"), Held: decimal.Zero, Total: decimal.RequireFromString("9"), Locked: true},
	}
}

func TestInMemoryStore_ExportAndLoad(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	run, err := Export(ctx, store, sampleSnapshots())
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if _, err := uuid.Parse(run.ID); err != nil {
		t.Fatalf("run id %q is not a uuid: %v", run.ID, err)
	}
	if run.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}

	loaded, err := store.Run(ctx, run.ID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(loaded.Accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(loaded.Accounts))
	}
	if !loaded.Accounts[0].Available.Equal(decimal.RequireFromString("6.7599")) {
		t.Fatalf("expected available 6.7599, got %s", loaded.Accounts[0].Available)
	}
	if !loaded.Accounts[1].Locked {
		t.Fatal("expected client 4 to stay locked")
	}
}

func TestInMemoryStore_DuplicateRun(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	run := Run{ID: uuid.NewString(), Accounts: sampleSnapshots()}

	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if err := store.SaveRun(ctx, run); !errors.Is(err, ErrDuplicateRun) {
		t.Fatalf("expected duplicate run error, got %v", err)
	}
}

func TestInMemoryStore_RunNotFound(t *testing.T) {
	if _, err := NewInMemory().Run(context.Background(), uuid.NewString()); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected run not found, got %v", err)
	}
}

func TestInMemoryStore_IsolatesCallerSlices(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	snaps := sampleSnapshots()

	run, err := Export(ctx, store, snaps)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	snaps[0].Locked = true

	loaded, err := store.Run(ctx, run.ID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Accounts[0].Locked {
		t.Fatal("stored run changed after caller mutated its slice")
	}
}

func TestInMemoryStore_ConcurrentExports(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	const workers = 10
	ids := make([]string, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			run, err := Export(ctx, store, sampleSnapshots())
			if err != nil {
				t.Errorf("export %d failed: %v", i, err)
				return
			}
			ids[i] = run.ID
		}(i)
	}
	wg.Wait()

	for i, id := range ids {
		if _, err := store.Run(ctx, id); err != nil {
			t.Fatalf("run %d not stored: %v", i, err)
		}
	}
}
