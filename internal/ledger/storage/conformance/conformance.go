// Package conformance is a reusable test suite any storage.Store
// implementation must pass, ported from the original Rust prototype's
// storage_test! macro so every backend (memory, bolt, postgres) is
// checked against one shared specification instead of duplicating cases
// per package.
package conformance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finledger/utxoledger/internal/ledger"
	"github.com/finledger/utxoledger/internal/ledger/storage"
)

// Factory constructs a fresh, empty Store for one test case. Backends
// that need teardown (a temp file, a schema reset) should register it
// with t.Cleanup inside the factory.
type Factory func(t *testing.T) storage.Store

func amt(v int64) ledger.Amount { return ledger.NewAmount(v) }

func sa(client uint16, typ ledger.SubAccountType) ledger.SubAccount {
	return ledger.SubAccount{Client: ledger.ClientID(client), Type: typ}
}

func mustTx(t *testing.T, inputs []ledger.Input, outputs []ledger.Output, ref string, ts int64) ledger.Transaction {
	t.Helper()
	tx, err := ledger.NewTransaction(inputs, outputs, ref, ts)
	require.NoError(t, err)
	return tx
}

// Run executes the full conformance suite against the store produced by
// newStore, under the given subtest name prefix.
func Run(t *testing.T, name string, newStore Factory) {
	t.Run(name, func(t *testing.T) {
		t.Run("DepositThenGetUnspent", testDepositThenGetUnspent(newStore))
		t.Run("DuplicateTxRejected", testDuplicateTxRejected(newStore))
		t.Run("DoubleSpendRejected", testDoubleSpendRejected(newStore))
		t.Run("MissingUTXORejected", testMissingUTXORejected(newStore))
		t.Run("MismatchAmountRejected", testMismatchAmountRejected(newStore))
		t.Run("TargetSumEarlyExit", testTargetSumEarlyExit(newStore))
		t.Run("MultiAccountIsolation", testMultiAccountIsolation(newStore))
		t.Run("GetTxByReference", testGetTxByReference(newStore))
		t.Run("DuplicateReferenceRejected", testDuplicateReferenceRejected(newStore))
		t.Run("GetAccountsSortedAndGrouped", testGetAccountsSortedAndGrouped(newStore))
		t.Run("EmptyAccountHasNoUnspent", testEmptyAccountHasNoUnspent(newStore))
	})
}

func testDepositThenGetUnspent(newStore Factory) func(t *testing.T) {
	return func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		tx := mustTx(t, nil, []ledger.Output{{SubAccount: sa(1, ledger.Main), Amount: amt(100)}}, "dep-1", 1)
		require.NoError(t, store.StoreTx(ctx, tx))

		unspent, err := store.GetUnspent(ctx, sa(1, ledger.Main), nil)
		require.NoError(t, err)
		require.Len(t, unspent, 1)
		assert.Equal(t, 0, unspent[0].Amount.Cmp(amt(100)))
		assert.Equal(t, tx.Hash, unspent[0].ID.TxHash)
		assert.Equal(t, uint8(0), unspent[0].ID.Pos)
	}
}

func testDuplicateTxRejected(newStore Factory) func(t *testing.T) {
	return func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		tx := mustTx(t, nil, []ledger.Output{{SubAccount: sa(1, ledger.Main), Amount: amt(50)}}, "dep-1", 1)
		require.NoError(t, store.StoreTx(ctx, tx))
		err := store.StoreTx(ctx, tx)
		assert.ErrorIs(t, err, ledger.ErrDuplicate)
	}
}

func testDoubleSpendRejected(newStore Factory) func(t *testing.T) {
	return func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		dep := mustTx(t, nil, []ledger.Output{{SubAccount: sa(1, ledger.Main), Amount: amt(100)}}, "dep-1", 1)
		require.NoError(t, store.StoreTx(ctx, dep))

		input := ledger.Input{ID: ledger.UTXOID{TxHash: dep.Hash, Pos: 0}, Amount: amt(100)}
		withdrawal1 := mustTx(t, []ledger.Input{input}, nil, "w-1", 2)
		withdrawal2 := mustTx(t, []ledger.Input{input}, nil, "w-2", 3)

		require.NoError(t, store.StoreTx(ctx, withdrawal1))
		err := store.StoreTx(ctx, withdrawal2)
		assert.ErrorIs(t, err, ledger.ErrSpentUTXO)
	}
}

func testMissingUTXORejected(newStore Factory) func(t *testing.T) {
	return func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		ghost := ledger.Input{ID: ledger.UTXOID{TxHash: ledger.TxHash{0xAA}, Pos: 0}, Amount: amt(10)}
		tx := mustTx(t, []ledger.Input{ghost}, nil, "w-ghost", 1)
		err := store.StoreTx(ctx, tx)
		assert.ErrorIs(t, err, ledger.ErrMissingUTXO)
	}
}

func testMismatchAmountRejected(newStore Factory) func(t *testing.T) {
	return func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		dep := mustTx(t, nil, []ledger.Output{{SubAccount: sa(1, ledger.Main), Amount: amt(100)}}, "dep-1", 1)
		require.NoError(t, store.StoreTx(ctx, dep))

		wrong := ledger.Input{ID: ledger.UTXOID{TxHash: dep.Hash, Pos: 0}, Amount: amt(99)}
		tx := mustTx(t, []ledger.Input{wrong}, nil, "w-1", 2)
		err := store.StoreTx(ctx, tx)
		assert.ErrorIs(t, err, ledger.ErrMismatchAmount)
	}
}

func testTargetSumEarlyExit(newStore Factory) func(t *testing.T) {
	return func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		for i, amount := range []int64{10, 20, 30, 40} {
			tx := mustTx(t, nil, []ledger.Output{{SubAccount: sa(1, ledger.Main), Amount: amt(amount)}}, refFor(i), int64(i+1))
			require.NoError(t, store.StoreTx(ctx, tx))
		}

		target := amt(25)
		unspent, err := store.GetUnspent(ctx, sa(1, ledger.Main), &target)
		require.NoError(t, err)

		sum := ledger.ZeroAmount()
		for _, u := range unspent {
			var err error
			sum, err = sum.Add(u.Amount)
			require.NoError(t, err)
		}
		assert.True(t, sum.Cmp(target) >= 0, "running sum must reach target")
		assert.Less(t, len(unspent), 4, "scan must stop before the full unspent set once target is reached")
	}
}

func testMultiAccountIsolation(newStore Factory) func(t *testing.T) {
	return func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		tx1 := mustTx(t, nil, []ledger.Output{{SubAccount: sa(1, ledger.Main), Amount: amt(10)}}, "dep-1", 1)
		tx2 := mustTx(t, nil, []ledger.Output{{SubAccount: sa(2, ledger.Main), Amount: amt(20)}}, "dep-1", 2)
		require.NoError(t, store.StoreTx(ctx, tx1))
		require.NoError(t, store.StoreTx(ctx, tx2))

		u1, err := store.GetUnspent(ctx, sa(1, ledger.Main), nil)
		require.NoError(t, err)
		require.Len(t, u1, 1)
		assert.Equal(t, 0, u1[0].Amount.Cmp(amt(10)))

		u2, err := store.GetUnspent(ctx, sa(2, ledger.Main), nil)
		require.NoError(t, err)
		require.Len(t, u2, 1)
		assert.Equal(t, 0, u2[0].Amount.Cmp(amt(20)))
	}
}

func testGetTxByReference(newStore Factory) func(t *testing.T) {
	return func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		tx := mustTx(t, nil, []ledger.Output{{SubAccount: sa(1, ledger.Main), Amount: amt(10)}}, "dep-1", 1)
		require.NoError(t, store.StoreTx(ctx, tx))

		got, err := store.GetTxByReference(ctx, sa(1, ledger.Main), "dep-1")
		require.NoError(t, err)
		assert.Equal(t, tx.Hash, got.Hash)

		_, err = store.GetTxByReference(ctx, sa(1, ledger.Main), "missing")
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	}
}

func testDuplicateReferenceRejected(newStore Factory) func(t *testing.T) {
	return func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		tx1 := mustTx(t, nil, []ledger.Output{{SubAccount: sa(1, ledger.Main), Amount: amt(10)}}, "dep-1", 1)
		require.NoError(t, store.StoreTx(ctx, tx1))

		tx2 := mustTx(t, nil, []ledger.Output{{SubAccount: sa(1, ledger.Main), Amount: amt(20)}}, "dep-1", 2)
		err := store.StoreTx(ctx, tx2)
		assert.ErrorIs(t, err, ledger.ErrDuplicate)
	}
}

func testGetAccountsSortedAndGrouped(newStore Factory) func(t *testing.T) {
	return func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		txs := []ledger.Transaction{
			mustTx(t, nil, []ledger.Output{{SubAccount: sa(2, ledger.Main), Amount: amt(10)}}, "a", 1),
			mustTx(t, nil, []ledger.Output{{SubAccount: sa(1, ledger.Main), Amount: amt(10)}}, "b", 2),
			mustTx(t, nil, []ledger.Output{{SubAccount: sa(1, ledger.Disputed), Amount: amt(10)}}, "c", 3),
		}
		for _, tx := range txs {
			require.NoError(t, store.StoreTx(ctx, tx))
		}

		it, err := store.GetAccounts(ctx)
		require.NoError(t, err)
		defer it.Close()

		var got []ledger.SubAccount
		for it.Next(ctx) {
			got = append(got, it.Account())
		}
		require.NoError(t, it.Err())

		require.Len(t, got, 3)
		assert.Equal(t, sa(1, ledger.Main), got[0])
		assert.Equal(t, sa(1, ledger.Disputed), got[1])
		assert.Equal(t, sa(2, ledger.Main), got[2])
	}
}

func testEmptyAccountHasNoUnspent(newStore Factory) func(t *testing.T) {
	return func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		unspent, err := store.GetUnspent(ctx, sa(99, ledger.Main), nil)
		require.NoError(t, err)
		assert.Empty(t, unspent)
	}
}

func refFor(i int) string {
	return string(rune('a' + i))
}
