package csvio

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finledger/utxoledger/internal/ledger"
)

func TestWriterRendersBalanceTable(t *testing.T) {
	var buf strings.Builder
	w := NewWriter(&buf)

	require.NoError(t, w.WriteHeader())
	require.NoError(t, w.WriteRow(BalanceRow{
		Client:    1,
		Available: ledger.NewAmount(15000),
		Held:      ledger.NewAmount(0),
		Total:     ledger.NewAmount(15000),
		Locked:    false,
	}))
	require.NoError(t, w.Flush())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "client,available,held,total,locked", lines[0])
	assert.Equal(t, "1,1.5000,0.0000,1.5000,false", lines[1])
}

func TestBalanceRowFromLedgerBalancesLocksOnChargeback(t *testing.T) {
	bal := ledger.Balances{
		Available:  ledger.NewAmount(0),
		Disputed:   ledger.NewAmount(0),
		Chargeback: ledger.NewAmount(500),
		Total:      ledger.NewAmount(0),
	}
	row := BalanceRowFromLedgerBalances(3, bal)
	assert.True(t, row.Locked)
	assert.Equal(t, ledger.ClientID(3), row.Client)
}
