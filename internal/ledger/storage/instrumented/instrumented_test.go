package instrumented_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finledger/utxoledger/internal/ledger"
	"github.com/finledger/utxoledger/internal/ledger/storage/instrumented"
	"github.com/finledger/utxoledger/internal/ledger/storage/memory"
	"github.com/finledger/utxoledger/internal/metrics"
)

// metrics.NewLedger registers its collectors against the global
// Prometheus default registry, so only one of these cases may call it
// per test binary; a second call would panic on duplicate registration.
func TestStoreAndGetUnspentObserveLatencyAndTrackUnspentGauge(t *testing.T) {
	m := metrics.NewLedger()
	store := instrumented.New(memory.New(), m, "memory")
	ctx := context.Background()

	deposit, err := ledger.NewTransaction(nil,
		[]ledger.Output{{SubAccount: ledger.SubAccount{Client: 1, Type: ledger.Main}, Amount: ledger.NewAmount(100)}},
		"dep-1", 1)
	require.NoError(t, err)
	require.NoError(t, store.StoreTx(ctx, deposit))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.UnspentUTXOs))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StorageLatency))

	_, err = store.GetUnspent(ctx, ledger.SubAccount{Client: 1, Type: ledger.Main}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, testutil.CollectAndCount(m.StorageLatency))

	withdrawal, err := ledger.NewTransaction(
		[]ledger.Input{{ID: ledger.UTXOID{TxHash: deposit.Hash, Pos: 0}, Amount: ledger.NewAmount(100)}},
		nil, "w-1", 2)
	require.NoError(t, err)
	require.NoError(t, store.StoreTx(ctx, withdrawal))

	assert.Equal(t, float64(0), testutil.ToFloat64(m.UnspentUTXOs))
}
