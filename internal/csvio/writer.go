package csvio

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/finledger/utxoledger/internal/ledger"
)

// BalanceRow is one output row of the client/available/held/total/locked
// balance table, per spec.md §7.
type BalanceRow struct {
	Client    ledger.ClientID
	Available ledger.Amount
	Held      ledger.Amount
	Total     ledger.Amount
	Locked    bool
}

// Writer renders balance rows to the client,available,held,total,locked
// CSV output contract.
type Writer struct {
	csv       *csv.Writer
	Precision int
}

// NewWriter wraps w. The returned Writer renders amounts at the fixed
// Precision constant; set w.Precision before the first WriteRow call to
// use a different scale.
func NewWriter(w io.Writer) *Writer {
	return &Writer{csv: csv.NewWriter(w), Precision: Precision}
}

// WriteHeader writes the fixed output header row.
func (w *Writer) WriteHeader() error {
	return w.csv.Write([]string{"client", "available", "held", "total", "locked"})
}

// WriteRow renders one client's balance. Amounts are formatted at
// Precision decimal places regardless of how many significant digits
// they carry, matching the original system's fixed four-decimal output.
func (w *Writer) WriteRow(row BalanceRow) error {
	avail, err := row.Available.Float(w.Precision)
	if err != nil {
		return fmt.Errorf("formatting available: %w", err)
	}
	held, err := row.Held.Float(w.Precision)
	if err != nil {
		return fmt.Errorf("formatting held: %w", err)
	}
	total, err := row.Total.Float(w.Precision)
	if err != nil {
		return fmt.Errorf("formatting total: %w", err)
	}

	record := []string{
		fmt.Sprintf("%d", row.Client),
		fmt.Sprintf("%.*f", w.Precision, avail),
		fmt.Sprintf("%.*f", w.Precision, held),
		fmt.Sprintf("%.*f", w.Precision, total),
		fmt.Sprintf("%t", row.Locked),
	}
	return w.csv.Write(record)
}

// Flush flushes any buffered output and returns the first error, if any,
// encountered while writing.
func (w *Writer) Flush() error {
	w.csv.Flush()
	return w.csv.Error()
}

// BalanceRowFromLedgerBalances adapts a ledger.Balances into the output
// row shape: Held folds Disputed into the "held" column (Chargeback is
// retired, not held) and Locked reports whether the account has ever
// been charged back.
func BalanceRowFromLedgerBalances(client ledger.ClientID, bal ledger.Balances) BalanceRow {
	return BalanceRow{
		Client:    client,
		Available: bal.Available,
		Held:      bal.Disputed,
		Total:     bal.Total,
		Locked:    bal.Chargeback.Sign() > 0,
	}
}
