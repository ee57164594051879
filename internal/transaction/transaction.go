package transaction

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownKind is returned when the transaction type is not one of the supported kinds.
	ErrUnknownKind = errors.New("unknown transaction type")

	// ErrMissingAmount indicates a deposit or withdrawal without an amount.
	ErrMissingAmount = errors.New("amount is required")

	// ErrNegativeAmount indicates a deposit or withdrawal with an amount below zero.
	ErrNegativeAmount = errors.New("amount must not be negative")
)

// Kind enumerates the transaction types accepted by the engine.
type Kind uint8

const (
	Deposit Kind = iota + 1
	Withdrawal
	Dispute
	Resolve
	Chargeback
)

var kindNames = map[Kind]string{
	Deposit:    "deposit",
	Withdrawal: "withdrawal",
	Dispute:    "dispute",
	Resolve:    "resolve",
	Chargeback: "chargeback",
}

// ParseKind resolves a kind from its text form. Matching ignores case and surrounding whitespace.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// MovesFunds reports whether the kind carries its own amount (deposit, withdrawal).
func (k Kind) MovesFunds() bool {
	return k == Deposit || k == Withdrawal
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	n, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, k)
	}
	return []byte(n), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Transaction is a single input record. Dispute, resolve and chargeback records
// reference an earlier deposit or withdrawal through ID and never carry their own amount.
type Transaction struct {
	Kind   Kind                `json:"type"`
	Client uint16              `json:"client"`
	ID     uint32              `json:"tx"`
	Amount decimal.NullDecimal `json:"amount"`
}

// Validate checks the record shape before it reaches an account.
func (t Transaction) Validate() error {
	if _, ok := kindNames[t.Kind]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownKind, t.Kind)
	}
	if !t.Kind.MovesFunds() {
		return nil
	}
	if !t.Amount.Valid {
		return fmt.Errorf("%s %d: %w", t.Kind, t.ID, ErrMissingAmount)
	}
	if t.Amount.Decimal.IsNegative() {
		return fmt.Errorf("%s %d: %w", t.Kind, t.ID, ErrNegativeAmount)
	}
	return nil
}

// Value returns the amount, or zero when none is set.
func (t Transaction) Value() decimal.Decimal {
	if !t.Amount.Valid {
		return decimal.Zero
	}
	return t.Amount.Decimal
}

// Parse builds a validated transaction from raw text fields. An empty amount is
// treated as absent; for dispute, resolve and chargeback the amount is ignored.
func Parse(kind, client, id, amount string) (Transaction, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return Transaction{}, err
	}

	c, err := strconv.ParseUint(strings.TrimSpace(client), 10, 16)
	if err != nil {
		return Transaction{}, fmt.Errorf("parse client: %w", err)
	}

	tx, err := strconv.ParseUint(strings.TrimSpace(id), 10, 32)
	if err != nil {
		return Transaction{}, fmt.Errorf("parse tx: %w", err)
	}

	t := Transaction{Kind: k, Client: uint16(c), ID: uint32(tx)}

	if k.MovesFunds() {
		if raw := strings.TrimSpace(amount); raw != "" {
			d, err := decimal.NewFromString(raw)
			if err != nil {
				return Transaction{}, fmt.Errorf("parse amount: %w", err)
			}
			t.Amount = decimal.NewNullDecimal(d)
		}
	}

	if err := t.Validate(); err != nil {
		return Transaction{}, err
	}
	return t, nil
}
