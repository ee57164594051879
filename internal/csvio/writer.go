package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/congo-pay/payments-engine/internal/account"
)

// DefaultScale is the number of fractional digits written for balances.
const DefaultScale int32 = 4

var snapshotHeader = []string{"client", "available", "held", "total", "locked"}

// Writer serialises account snapshots as CSV with a header row.
type Writer struct {
	w     io.Writer
	scale int32
}

// NewWriter builds a sink writing decimals with scale fractional digits.
func NewWriter(w io.Writer, scale int32) *Writer {
	if scale < 0 {
		scale = DefaultScale
	}
	return &Writer{w: w, scale: scale}
}

// Write emits the header followed by one row per snapshot, in the given order.
func (w *Writer) Write(snapshots []account.Snapshot) error {
	cw := csv.NewWriter(w.w)
	if err := cw.Write(snapshotHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(snapshotHeader))
	for _, s := range snapshots {
		row[0] = strconv.FormatUint(uint64(s.Client), 10)
		row[1] = s.Available.StringFixed(w.scale)
		row[2] = s.Held.StringFixed(w.scale)
		row[3] = s.Total.StringFixed(w.scale)
		row[4] = strconv.FormatBool(s.Locked)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write client %d: %w", s.Client, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
