package pgstore

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/finledger/utxoledger/internal/ledger/storage"
	"github.com/finledger/utxoledger/internal/ledger/storage/conformance"
)

// TestConformance runs the shared storage suite against a live Postgres
// instance when LEDGER_PG_DSN is set, and is skipped otherwise so the
// rest of the suite stays runnable without a database.
func TestConformance(t *testing.T) {
	dsn := os.Getenv("LEDGER_PG_DSN")
	if dsn == "" {
		t.Skip("LEDGER_PG_DSN not set; skipping postgres conformance suite")
	}

	conformance.Run(t, "postgres", func(t *testing.T) storage.Store {
		store, err := Open(context.Background(), dsn)
		require.NoError(t, err)
		truncateAll(t, store)
		t.Cleanup(store.Close)
		return store
	})
}

func truncateAll(t *testing.T, s *Store) {
	t.Helper()
	_, err := s.pool.Exec(context.Background(),
		`TRUNCATE ledger_transactions, ledger_utxos, ledger_tx_outputs, ledger_tx_inputs, ledger_references`)
	require.NoError(t, err)
}
