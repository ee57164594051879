package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/congo-pay/payments-engine/internal/account"
	"github.com/congo-pay/payments-engine/internal/notification"
	"github.com/congo-pay/payments-engine/internal/transaction"
)

// Source yields transactions in input order and returns io.EOF when exhausted.
type Source interface {
	Next() (transaction.Transaction, error)
}

// Stats counts how transactions fared against their accounts.
type Stats struct {
	Applied int `json:"applied"`
	Ignored int `json:"ignored"`
}

// Engine routes transactions to per-client accounts. It owns every account it
// creates and is not safe for concurrent use; see Shared.
type Engine struct {
	policy   account.Policy
	notifier notification.Notifier
	logger   *slog.Logger
	accounts map[uint16]*account.Account
	stats    Stats
}

// New builds an engine whose accounts follow the given dispute policy.
func New(policy account.Policy, notifier notification.Notifier, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		policy:   policy,
		notifier: notifier,
		logger:   logger,
		accounts: make(map[uint16]*account.Account),
	}
}

// Apply routes tx to its client account, creating the account on first sight,
// and returns the resulting snapshot. Rejected transactions are logged and counted.
func (e *Engine) Apply(ctx context.Context, tx transaction.Transaction) account.Snapshot {
	acct, ok := e.accounts[tx.Client]
	if !ok {
		acct = account.New(tx.Client, e.policy)
		e.accounts[tx.Client] = acct
	}

	wasLocked := acct.Locked()
	if err := acct.Apply(tx); err != nil {
		e.stats.Ignored++
		e.logger.DebugContext(ctx, "transaction ignored",
			slog.String("type", tx.Kind.String()),
			slog.Int("client", int(tx.Client)),
			slog.Int64("tx", int64(tx.ID)),
			slog.Any("reason", err),
		)
		return acct.Snapshot()
	}
	e.stats.Applied++

	if !wasLocked && acct.Locked() && e.notifier != nil {
		msg := notification.Message{
			Kind:   notification.KindAccountLocked,
			Client: tx.Client,
			TxID:   tx.ID,
			Body:   fmt.Sprintf("account %d locked after chargeback of tx %d", tx.Client, tx.ID),
		}
		if err := e.notifier.Send(ctx, msg); err != nil {
			e.logger.WarnContext(ctx, "notify account locked", slog.Int("client", int(tx.Client)), slog.Any("error", err))
		}
	}
	return acct.Snapshot()
}

// Run drains src into the engine. It stops at io.EOF, on the first source
// error, or when ctx is done.
func (e *Engine) Run(ctx context.Context, src Source) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read transaction: %w", err)
		}
		e.Apply(ctx, tx)
	}
}

// ApplyAll applies txs in order and returns the counts for this call alone.
func (e *Engine) ApplyAll(ctx context.Context, txs []transaction.Transaction) Stats {
	before := e.stats
	for _, tx := range txs {
		e.Apply(ctx, tx)
	}
	return Stats{
		Applied: e.stats.Applied - before.Applied,
		Ignored: e.stats.Ignored - before.Ignored,
	}
}

// Collect drains src without applying anything, so a source error leaves every
// account untouched.
func Collect(ctx context.Context, src Source) ([]transaction.Transaction, error) {
	var txs []transaction.Transaction
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tx, err := src.Next()
		if errors.Is(err, io.EOF) {
			return txs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read transaction: %w", err)
		}
		txs = append(txs, tx)
	}
}

// Snapshots returns every account, ordered by client id.
func (e *Engine) Snapshots() []account.Snapshot {
	out := make([]account.Snapshot, 0, len(e.accounts))
	for _, acct := range e.accounts {
		out = append(out, acct.Snapshot())
	}
	slices.SortFunc(out, func(a, b account.Snapshot) int {
		return int(a.Client) - int(b.Client)
	})
	return out
}

// Snapshot returns the state of one client account.
func (e *Engine) Snapshot(client uint16) (account.Snapshot, bool) {
	acct, ok := e.accounts[client]
	if !ok {
		return account.Snapshot{}, false
	}
	return acct.Snapshot(), true
}

// Audit returns the bucket ids of one client account.
func (e *Engine) Audit(client uint16) (account.Audit, bool) {
	acct, ok := e.accounts[client]
	if !ok {
		return account.Audit{}, false
	}
	return acct.Audit(), true
}

// Stats returns the applied/ignored counters.
func (e *Engine) Stats() Stats {
	return e.stats
}
