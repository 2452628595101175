package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finledger/utxoledger/internal/ledger"
	"github.com/finledger/utxoledger/internal/ledger/storage/memory"
)

// sequentialClock hands out strictly increasing timestamps so every
// transaction in a test gets a distinct hash without depending on the
// wall clock.
func sequentialClock() ledger.Clock {
	var n int64
	return func() int64 {
		n++
		return n
	}
}

func newTestLedger() *ledger.Ledger {
	store := memory.New()
	return ledger.New(store, sequentialClock(), ledger.Hooks{})
}

func amt(v int64) ledger.Amount { return ledger.NewAmount(v) }

func TestDepositThenOverWithdraw(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()
	client := ledger.ClientID(1)

	require.NoError(t, l.Deposit(ctx, client, "deposit-1", amt(100)))

	bal, err := l.GetBalances(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, 0, bal.Available.Cmp(amt(100)))
	assert.Equal(t, 0, bal.Total.Cmp(amt(100)))

	err = l.Withdraw(ctx, client, "withdraw-1", amt(150))
	assert.ErrorIs(t, err, ledger.ErrNotEnough)

	bal2, err := l.GetBalances(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, 0, bal2.Available.Cmp(amt(100)))
}

func TestPartialWithdrawalWithChange(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()
	client := ledger.ClientID(1)

	require.NoError(t, l.Deposit(ctx, client, "deposit-1", amt(100)))
	require.NoError(t, l.Withdraw(ctx, client, "withdraw-1", amt(60)))

	bal, err := l.GetBalances(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, 0, bal.Available.Cmp(amt(40)))
}

func TestDisputeFreezesFunds(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()
	client := ledger.ClientID(1)

	require.NoError(t, l.Deposit(ctx, client, "deposit-1", amt(100)))
	require.NoError(t, l.Dispute(ctx, client, "deposit-1"))

	bal, err := l.GetBalances(ctx, client)
	require.NoError(t, err)
	assert.True(t, bal.Available.IsZero())
	assert.Equal(t, 0, bal.Disputed.Cmp(amt(100)))
	assert.Equal(t, 0, bal.Total.Cmp(amt(100)))

	err = l.Withdraw(ctx, client, "withdraw-1", amt(1))
	assert.ErrorIs(t, err, ledger.ErrNotEnough)
}

func TestResolveReturnsFunds(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()
	client := ledger.ClientID(1)

	require.NoError(t, l.Deposit(ctx, client, "deposit-1", amt(100)))
	require.NoError(t, l.Dispute(ctx, client, "deposit-1"))
	require.NoError(t, l.Resolve(ctx, client, "deposit-1"))

	bal, err := l.GetBalances(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, 0, bal.Available.Cmp(amt(100)))
	assert.True(t, bal.Disputed.IsZero())

	require.NoError(t, l.Withdraw(ctx, client, "withdraw-1", amt(100)))
}

func TestChargebackRetiresFunds(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()
	client := ledger.ClientID(1)

	require.NoError(t, l.Deposit(ctx, client, "deposit-1", amt(100)))
	require.NoError(t, l.Dispute(ctx, client, "deposit-1"))
	require.NoError(t, l.Chargeback(ctx, client, "deposit-1"))

	bal, err := l.GetBalances(ctx, client)
	require.NoError(t, err)
	assert.True(t, bal.Available.IsZero())
	assert.True(t, bal.Disputed.IsZero())
	assert.Equal(t, 0, bal.Chargeback.Cmp(amt(100)))
	assert.True(t, bal.Total.IsZero())
}

func TestDisputeAfterUTXOShuffle(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()
	client := ledger.ClientID(1)

	require.NoError(t, l.Deposit(ctx, client, "a", amt(10)))
	require.NoError(t, l.Deposit(ctx, client, "b", amt(5)))
	require.NoError(t, l.Withdraw(ctx, client, "w1", amt(11)))
	require.NoError(t, l.Deposit(ctx, client, "c", amt(1)))

	bal, err := l.GetBalances(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, 0, bal.Available.Cmp(amt(5)))

	require.NoError(t, l.Dispute(ctx, client, "b"))

	bal2, err := l.GetBalances(ctx, client)
	require.NoError(t, err)
	assert.True(t, bal2.Available.IsZero())
	assert.Equal(t, 0, bal2.Disputed.Cmp(amt(5)))
}

func TestDuplicateReferenceRejected(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()
	client := ledger.ClientID(1)

	require.NoError(t, l.Deposit(ctx, client, "dup", amt(10)))
	err := l.Deposit(ctx, client, "dup", amt(20))
	assert.ErrorIs(t, err, ledger.ErrDuplicate)

	bal, err := l.GetBalances(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, 0, bal.Available.Cmp(amt(10)))
}

func TestSameReferenceDifferentClients(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	require.NoError(t, l.Deposit(ctx, 1, "dup", amt(10)))
	require.NoError(t, l.Deposit(ctx, 2, "dup", amt(20)))

	bal1, err := l.GetBalances(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, bal1.Available.Cmp(amt(10)))

	bal2, err := l.GetBalances(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, bal2.Available.Cmp(amt(20)))
}

func TestDisputeNonDepositRejected(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()
	client := ledger.ClientID(1)

	require.NoError(t, l.Deposit(ctx, client, "deposit-1", amt(100)))
	require.NoError(t, l.Withdraw(ctx, client, "withdraw-1", amt(100)))

	err := l.Dispute(ctx, client, "withdraw-1")
	assert.ErrorIs(t, err, ledger.ErrWrongType)
}

func TestResolveUnknownReferenceNotFound(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()
	client := ledger.ClientID(1)

	require.NoError(t, l.Deposit(ctx, client, "deposit-1", amt(100)))
	err := l.Resolve(ctx, client, "deposit-1")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestUnderfundedDisputeSweepsAvailableOnly(t *testing.T) {
	ctx := context.Background()
	var shortfalls []ledger.Amount
	store := memory.New()
	l := ledger.New(store, sequentialClock(), ledger.Hooks{
		OnDisputeShortfall: func(_ ledger.ClientID, shortfall ledger.Amount) {
			shortfalls = append(shortfalls, shortfall)
		},
	})
	client := ledger.ClientID(1)

	require.NoError(t, l.Deposit(ctx, client, "deposit-1", amt(100)))
	require.NoError(t, l.Withdraw(ctx, client, "withdraw-1", amt(90)))
	// Only 10 remains available; disputing the original 100 deposit
	// should sweep the 10 into Disputed and report a shortfall of 90,
	// never fabricating a UTXO to cover the gap.
	require.NoError(t, l.Dispute(ctx, client, "deposit-1"))

	bal, err := l.GetBalances(ctx, client)
	require.NoError(t, err)
	assert.True(t, bal.Available.IsZero())
	assert.Equal(t, 0, bal.Disputed.Cmp(amt(10)))

	require.Len(t, shortfalls, 1)
	assert.Equal(t, 0, shortfalls[0].Cmp(amt(90)))
}

func TestMovementBetweenClients(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	require.NoError(t, l.Deposit(ctx, 1, "deposit-1", amt(100)))
	require.NoError(t, l.Movement(ctx, 1, 2, "transfer-1", amt(40)))

	bal1, err := l.GetBalances(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, bal1.Available.Cmp(amt(60)))

	bal2, err := l.GetBalances(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, bal2.Available.Cmp(amt(40)))
}

func TestMovementInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	require.NoError(t, l.Deposit(ctx, 1, "deposit-1", amt(10)))
	err := l.Movement(ctx, 1, 2, "transfer-1", amt(50))
	assert.ErrorIs(t, err, ledger.ErrNotEnough)
}

func TestGetAccountsDedupesClients(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	require.NoError(t, l.Deposit(ctx, 2, "a", amt(10)))
	require.NoError(t, l.Deposit(ctx, 1, "b", amt(10)))
	require.NoError(t, l.Dispute(ctx, 1, "b"))

	clients, err := l.GetAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ledger.ClientID{1, 2}, clients)
}
