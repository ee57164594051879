package account

import (
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/payments-engine/internal/transaction"
)

var (
	// ErrRejected is wrapped by every error Apply returns. A rejected transaction
	// leaves the account untouched.
	ErrRejected = errors.New("transaction rejected")

	// ErrInsufficientFunds occurs when a withdrawal exceeds the available balance.
	ErrInsufficientFunds = fmt.Errorf("%w: insufficient funds", ErrRejected)

	// ErrUnknownTransaction indicates a dispute, resolve or chargeback referencing
	// a transaction id absent from the account history.
	ErrUnknownTransaction = fmt.Errorf("%w: unknown transaction", ErrRejected)

	// ErrInvalidTransition is returned under the strict policy when the referenced
	// transaction is not in a state that allows the requested step.
	ErrInvalidTransition = fmt.Errorf("%w: invalid transition", ErrRejected)

	// ErrDuplicateTransaction is returned under the strict policy when a deposit or
	// withdrawal reuses an id already in the history.
	ErrDuplicateTransaction = fmt.Errorf("%w: duplicate transaction", ErrRejected)

	// ErrInvalidTransaction covers records that fail shape validation or belong to another client.
	ErrInvalidTransaction = fmt.Errorf("%w: invalid transaction", ErrRejected)
)

// Policy selects how dispute, resolve and chargeback are guarded.
type Policy string

const (
	// PolicyPermissive only requires the referenced id to exist in the history.
	PolicyPermissive Policy = "permissive"
	// PolicyStrict walks each referenced transaction through Normal -> Disputed -> Resolved|ChargedBack.
	PolicyStrict Policy = "strict"
)

// ParsePolicy validates a policy name. The empty string selects PolicyPermissive.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyPermissive:
		return PolicyPermissive, nil
	case PolicyStrict:
		return PolicyStrict, nil
	default:
		return "", fmt.Errorf("unknown dispute policy %q", s)
	}
}

// Status is the lifecycle position of a stored deposit or withdrawal.
type Status string

const (
	StatusNormal      Status = "normal"
	StatusDisputed    Status = "disputed"
	StatusResolved    Status = "resolved"
	StatusChargedBack Status = "charged_back"
)

// Record is a deposit or withdrawal held in the account history.
type Record struct {
	Transaction transaction.Transaction
	Status      Status
}

// Snapshot is the externally visible state of an account.
type Snapshot struct {
	Client    uint16          `json:"client"`
	Available decimal.Decimal `json:"available"`
	Held      decimal.Decimal `json:"held"`
	Total     decimal.Decimal `json:"total"`
	Locked    bool            `json:"locked"`
}

// Audit lists the transaction ids that passed through each bucket, sorted ascending.
type Audit struct {
	Client      uint16   `json:"client"`
	History     []uint32 `json:"history"`
	Disputed    []uint32 `json:"disputed"`
	Resolved    []uint32 `json:"resolved"`
	ChargedBack []uint32 `json:"charged_back"`
}

// Account holds the running balances of one client. It is not safe for
// concurrent use; the owner serialises calls to Apply.
type Account struct {
	client    uint16
	policy    Policy
	available decimal.Decimal
	held      decimal.Decimal
	total     decimal.Decimal
	locked    bool

	history     map[uint32]*Record
	disputed    map[uint32]transaction.Transaction
	resolved    map[uint32]transaction.Transaction
	chargedBack map[uint32]transaction.Transaction
}

// New creates an empty, unlocked account for the client.
func New(client uint16, policy Policy) *Account {
	if policy == "" {
		policy = PolicyPermissive
	}
	return &Account{
		client:      client,
		policy:      policy,
		available:   decimal.Zero,
		held:        decimal.Zero,
		total:       decimal.Zero,
		history:     make(map[uint32]*Record),
		disputed:    make(map[uint32]transaction.Transaction),
		resolved:    make(map[uint32]transaction.Transaction),
		chargedBack: make(map[uint32]transaction.Transaction),
	}
}

// Client returns the owning client id.
func (a *Account) Client() uint16 { return a.client }

// Locked reports whether a chargeback has hit the account.
func (a *Account) Locked() bool { return a.locked }

// Apply advances the account by one transaction. A nil return means the
// balances or buckets changed; otherwise the returned error wraps ErrRejected
// and the account is unchanged. Rejections never stop stream processing.
func (a *Account) Apply(tx transaction.Transaction) error {
	if tx.Client != a.client {
		return fmt.Errorf("%w: client %d routed to account %d", ErrInvalidTransaction, tx.Client, a.client)
	}
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}

	switch tx.Kind {
	case transaction.Deposit:
		return a.deposit(tx)
	case transaction.Withdrawal:
		return a.withdraw(tx)
	case transaction.Dispute:
		return a.dispute(tx)
	case transaction.Resolve:
		return a.resolve(tx)
	case transaction.Chargeback:
		return a.chargeback(tx)
	}
	return ErrInvalidTransaction
}

func (a *Account) deposit(tx transaction.Transaction) error {
	if err := a.checkDuplicate(tx.ID); err != nil {
		return err
	}
	amount := tx.Value()
	a.available = a.available.Add(amount)
	a.total = a.total.Add(amount)
	a.history[tx.ID] = &Record{Transaction: tx, Status: StatusNormal}
	return nil
}

func (a *Account) withdraw(tx transaction.Transaction) error {
	if err := a.checkDuplicate(tx.ID); err != nil {
		return err
	}
	amount := tx.Value()
	if a.available.LessThan(amount) {
		return ErrInsufficientFunds
	}
	a.available = a.available.Sub(amount)
	a.total = a.total.Sub(amount)
	a.history[tx.ID] = &Record{Transaction: tx, Status: StatusNormal}
	return nil
}

func (a *Account) dispute(tx transaction.Transaction) error {
	rec, err := a.reference(tx.ID, StatusNormal)
	if err != nil {
		return err
	}
	amount := rec.Transaction.Value()
	a.available = a.available.Sub(amount)
	a.held = a.held.Add(amount)
	a.disputed[tx.ID] = tx
	rec.Status = StatusDisputed
	return nil
}

func (a *Account) resolve(tx transaction.Transaction) error {
	rec, err := a.reference(tx.ID, StatusDisputed)
	if err != nil {
		return err
	}
	amount := rec.Transaction.Value()
	a.held = a.held.Sub(amount)
	a.available = a.available.Add(amount)
	a.resolved[tx.ID] = tx
	rec.Status = StatusResolved
	return nil
}

func (a *Account) chargeback(tx transaction.Transaction) error {
	rec, err := a.reference(tx.ID, StatusDisputed)
	if err != nil {
		return err
	}
	amount := rec.Transaction.Value()
	a.held = a.held.Sub(amount)
	a.total = a.total.Sub(amount)
	a.locked = true
	a.chargedBack[tx.ID] = tx
	rec.Status = StatusChargedBack
	return nil
}

// reference looks up the original deposit or withdrawal. The required status
// is only enforced under PolicyStrict.
func (a *Account) reference(id uint32, required Status) (*Record, error) {
	rec, ok := a.history[id]
	if !ok {
		return nil, fmt.Errorf("%w: tx %d", ErrUnknownTransaction, id)
	}
	if a.policy == PolicyStrict && rec.Status != required {
		return nil, fmt.Errorf("%w: tx %d is %s, want %s", ErrInvalidTransition, id, rec.Status, required)
	}
	return rec, nil
}

func (a *Account) checkDuplicate(id uint32) error {
	if a.policy != PolicyStrict {
		return nil
	}
	if _, exists := a.history[id]; exists {
		return fmt.Errorf("%w: tx %d", ErrDuplicateTransaction, id)
	}
	return nil
}

// Lookup returns the stored deposit or withdrawal for id.
func (a *Account) Lookup(id uint32) (Record, bool) {
	rec, ok := a.history[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Snapshot returns the current balances.
func (a *Account) Snapshot() Snapshot {
	return Snapshot{
		Client:    a.client,
		Available: a.available,
		Held:      a.held,
		Total:     a.total,
		Locked:    a.locked,
	}
}

// Audit returns the ids recorded in each bucket.
func (a *Account) Audit() Audit {
	return Audit{
		Client:      a.client,
		History:     sortedKeys(a.history),
		Disputed:    sortedKeys(a.disputed),
		Resolved:    sortedKeys(a.resolved),
		ChargedBack: sortedKeys(a.chargedBack),
	}
}

func sortedKeys[V any](m map[uint32]V) []uint32 {
	ids := make([]uint32, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Balanced reports whether total equals available plus held.
func (s Snapshot) Balanced() bool {
	return s.Total.Equal(s.Available.Add(s.Held))
}
