package engine

import (
	"context"
	"sync"

	"github.com/congo-pay/payments-engine/internal/account"
	"github.com/congo-pay/payments-engine/internal/transaction"
)

// Shared guards an Engine with a single mutex so concurrent callers (HTTP
// handlers) never apply to the same account at once.
type Shared struct {
	mu     sync.Mutex
	engine *Engine
}

// NewShared wraps e. The caller must stop using e directly.
func NewShared(e *Engine) *Shared {
	return &Shared{engine: e}
}

func (s *Shared) Apply(ctx context.Context, tx transaction.Transaction) account.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Apply(ctx, tx)
}

// Run drains src while holding the lock, so a batch is applied without interleaving.
func (s *Shared) Run(ctx context.Context, src Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Run(ctx, src)
}

// ApplyAll applies a whole batch without interleaving other callers.
func (s *Shared) ApplyAll(ctx context.Context, txs []transaction.Transaction) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.ApplyAll(ctx, txs)
}

func (s *Shared) Snapshots() []account.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Snapshots()
}

func (s *Shared) Snapshot(client uint16) (account.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Snapshot(client)
}

func (s *Shared) Audit(client uint16) (account.Audit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Audit(client)
}

func (s *Shared) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Stats()
}
