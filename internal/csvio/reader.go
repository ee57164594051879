package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/congo-pay/payments-engine/internal/transaction"
)

// Policy decides what happens to a malformed row.
type Policy string

const (
	// PolicySkip logs the malformed row and continues with the next one.
	PolicySkip Policy = "skip"
	// PolicyFail aborts the read on the first malformed row.
	PolicyFail Policy = "fail"
)

// ParsePolicy validates a row policy name. The empty string selects PolicySkip.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicySkip:
		return PolicySkip, nil
	case PolicyFail:
		return PolicyFail, nil
	default:
		return "", fmt.Errorf("unknown row error policy %q", s)
	}
}

// ErrMissingColumn is returned when the header lacks a required column.
var ErrMissingColumn = errors.New("missing required column")

// RowError reports a malformed input row.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

var requiredColumns = []string{"type", "client", "tx"}

// Reader yields transactions from delimited text with a header row. Column
// counts may vary between rows and every field is trimmed.
type Reader struct {
	csv     *csv.Reader
	policy  Policy
	logger  *slog.Logger
	columns map[string]int
	rows    int
	skipped int
}

// NewReader wraps r. A nil logger discards skip notices.
func NewReader(r io.Reader, policy Policy, logger *slog.Logger) *Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if policy == "" {
		policy = PolicySkip
	}
	return &Reader{csv: cr, policy: policy, logger: logger}
}

// Next returns the next well-formed transaction, or io.EOF once the input is
// exhausted. Under PolicyFail a malformed row is returned as *RowError.
func (r *Reader) Next() (transaction.Transaction, error) {
	if r.columns == nil {
		if err := r.readHeader(); err != nil {
			return transaction.Transaction{}, err
		}
	}

	for {
		record, err := r.csv.Read()
		if errors.Is(err, io.EOF) {
			return transaction.Transaction{}, io.EOF
		}

		var line int
		if err == nil {
			r.rows++
			line, _ = r.csv.FieldPos(0)
			tx, perr := r.parse(record)
			if perr == nil {
				return tx, nil
			}
			err = perr
		} else {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return transaction.Transaction{}, fmt.Errorf("read csv: %w", err)
			}
			r.rows++
			line = perr.StartLine
		}

		rowErr := &RowError{Line: line, Err: err}
		if r.policy == PolicyFail {
			return transaction.Transaction{}, rowErr
		}
		r.skipped++
		r.logger.Warn("skipping malformed row", slog.Int("line", line), slog.Any("error", err))
	}
}

func (r *Reader) readHeader() error {
	header, err := r.csv.Read()
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}
	r.columns = columns
	return nil
}

func (r *Reader) parse(record []string) (transaction.Transaction, error) {
	field := func(name string) string {
		i, ok := r.columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	return transaction.Parse(field("type"), field("client"), field("tx"), field("amount"))
}

// Rows returns the number of data rows read so far, including skipped ones.
func (r *Reader) Rows() int { return r.rows }

// Skipped returns the number of malformed rows dropped under PolicySkip.
func (r *Reader) Skipped() int { return r.skipped }
