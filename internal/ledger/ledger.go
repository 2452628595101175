// Package ledger implements the UTXO-based accounting core: Amount,
// SubAccount, Transaction, and the Ledger orchestration layer above a
// pluggable storage.Store. See SPEC_FULL.md §4 for the full contract.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/finledger/utxoledger/internal/logger"
)

// Store is the subset of storage.Store the ledger core depends on,
// redeclared here (rather than imported) so this package has no import
// dependency on the storage package — storage depends on ledger for its
// types, and Go forbids the cycle the other way. Concrete backends in
// internal/ledger/storage satisfy this interface structurally.
type Store interface {
	StoreTx(ctx context.Context, tx Transaction) error
	GetUnspent(ctx context.Context, sa SubAccount, target *Amount) ([]Input, error)
	GetTxByReference(ctx context.Context, sa SubAccount, reference string) (Transaction, error)
	GetAccounts(ctx context.Context) (AccountIterator, error)
}

// AccountIterator mirrors storage.AccountIterator; redeclared for the
// same reason as Store above.
type AccountIterator interface {
	Next(ctx context.Context) bool
	Account() SubAccount
	Err() error
	Close() error
}

// Clock returns the current time as microseconds since the epoch. The
// Ledger takes one as a constructor argument so tests can supply a
// deterministic clock instead of the wall clock, per spec.md §4.3.
type Clock func() int64

// Ledger is the orchestration layer above a Store: it turns high-level
// operations into one or more Transactions, performs coin selection and
// change-making, and hides sub-accounts from callers.
type Ledger struct {
	store Store
	clock Clock
	log   *zap.Logger
	hooks Hooks
}

// Hooks lets callers (the CLI, tests) observe events the core does not
// otherwise report, such as the under-funded dispute shortfall that is
// deliberately never materialized as a ledger entry.
type Hooks struct {
	OnDisputeShortfall func(client ClientID, shortfall Amount)
}

// New constructs a Ledger over store. clock may be nil to use the
// system wall clock.
func New(store Store, clock Clock, hooks Hooks) *Ledger {
	if clock == nil {
		clock = defaultClock
	}
	return &Ledger{
		store: store,
		clock: clock,
		log:   logger.With(zap.String("component", "ledger")),
		hooks: hooks,
	}
}

// Balances is the aggregated view of a client's three sub-accounts.
type Balances struct {
	Available  Amount
	Disputed   Amount
	Chargeback Amount
	Total      Amount
}

func defaultClock() int64 {
	return nowMicros()
}

// Deposit credits amount to client's Main sub-account under reference.
func (l *Ledger) Deposit(ctx context.Context, client ClientID, reference string, amount Amount) error {
	out := Output{SubAccount: SubAccount{Client: client, Type: Main}, Amount: amount}
	tx, err := NewTransaction(nil, []Output{out}, reference, l.clock())
	if err != nil {
		return err
	}
	return l.commit(ctx, tx)
}

// Withdraw debits amount from client's Main sub-account under
// reference, using the two-transaction exchange+withdrawal pattern
// when the selected inputs exceed amount.
func (l *Ledger) Withdraw(ctx context.Context, client ClientID, reference string, amount Amount) error {
	sa := SubAccount{Client: client, Type: Main}
	inputs, total, err := l.selectInputs(ctx, sa, amount)
	if err != nil {
		return err
	}
	if total.Cmp(amount) < 0 {
		return ErrNotEnough
	}
	if total.Cmp(amount) == 0 {
		tx, err := NewTransaction(inputs, nil, reference, l.clock())
		if err != nil {
			return err
		}
		return l.commit(ctx, tx)
	}

	change, err := total.Sub(amount)
	if err != nil {
		return err
	}
	exchange, err := NewTransaction(inputs, []Output{
		{SubAccount: sa, Amount: amount},
		{SubAccount: sa, Amount: change},
	}, "Exchange for "+reference, l.clock())
	if err != nil {
		return err
	}
	if err := l.commit(ctx, exchange); err != nil {
		return err
	}

	withdrawal, err := NewTransaction([]Input{
		{ID: UTXOID{TxHash: exchange.Hash, Pos: 0}, Amount: amount},
	}, nil, reference, l.clock())
	if err != nil {
		return err
	}
	return l.commit(ctx, withdrawal)
}

// Movement transfers amount from one client's Main sub-account to
// another's, supplementing the distilled spec per SPEC_FULL.md §4.5.
func (l *Ledger) Movement(ctx context.Context, from, to ClientID, reference string, amount Amount) error {
	fromSA := SubAccount{Client: from, Type: Main}
	toSA := SubAccount{Client: to, Type: Main}

	inputs, total, err := l.selectInputs(ctx, fromSA, amount)
	if err != nil {
		return err
	}
	if total.Cmp(amount) < 0 {
		return ErrNotEnough
	}

	ref := "movement:" + reference
	if total.Cmp(amount) == 0 {
		tx, err := NewTransaction(inputs, []Output{{SubAccount: toSA, Amount: amount}}, ref, l.clock())
		if err != nil {
			return err
		}
		return l.commit(ctx, tx)
	}

	change, err := total.Sub(amount)
	if err != nil {
		return err
	}
	exchange, err := NewTransaction(inputs, []Output{
		{SubAccount: fromSA, Amount: amount},
		{SubAccount: fromSA, Amount: change},
	}, "Exchange for "+ref, l.clock())
	if err != nil {
		return err
	}
	if err := l.commit(ctx, exchange); err != nil {
		return err
	}

	movement, err := NewTransaction([]Input{
		{ID: UTXOID{TxHash: exchange.Hash, Pos: 0}, Amount: amount},
	}, []Output{{SubAccount: toSA, Amount: amount}}, ref, l.clock())
	if err != nil {
		return err
	}
	return l.commit(ctx, movement)
}

// Dispute freezes the funds of a previously deposited, undisputed
// reference by moving them from Main to Disputed.
func (l *Ledger) Dispute(ctx context.Context, client ClientID, reference string) error {
	mainSA := SubAccount{Client: client, Type: Main}
	t, err := l.store.GetTxByReference(ctx, mainSA, reference)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if len(t.Inputs) != 0 || len(t.Outputs) != 1 {
		return ErrWrongType
	}
	disputedAmount := t.Outputs[0].Amount

	disputedSA := SubAccount{Client: client, Type: Disputed}
	inputs, avail, err := l.selectInputs(ctx, mainSA, disputedAmount)
	if err != nil {
		return err
	}

	ref := "dispute:" + reference
	switch avail.Cmp(disputedAmount) {
	case 0:
		tx, err := NewTransaction(inputs, []Output{{SubAccount: disputedSA, Amount: disputedAmount}}, ref, l.clock())
		if err != nil {
			return err
		}
		return l.commit(ctx, tx)
	case 1:
		change, err := avail.Sub(disputedAmount)
		if err != nil {
			return err
		}
		tx, err := NewTransaction(inputs, []Output{
			{SubAccount: disputedSA, Amount: disputedAmount},
			{SubAccount: mainSA, Amount: change},
		}, ref, l.clock())
		if err != nil {
			return err
		}
		return l.commit(ctx, tx)
	default:
		// avail < disputedAmount: the under-funded case. Per
		// SPEC_FULL.md §4.5, sweep every currently-unspent Main UTXO
		// into Disputed (a balanced transaction moving avail, not
		// disputed_amount) and report the shortfall out of band. I3
		// forbids fabricating a UTXO to cover the difference.
		shortfall, serr := disputedAmount.Sub(avail)
		if serr != nil {
			return serr
		}
		if avail.IsZero() {
			// Nothing to sweep; still record the shortfall so operators
			// see the investigation has no frozen collateral at all.
			if l.hooks.OnDisputeShortfall != nil {
				l.hooks.OnDisputeShortfall(client, shortfall)
			}
			l.log.Warn("dispute shortfall with no available funds",
				zap.Uint16("client", uint16(client)),
				zap.String("reference", reference),
				zap.String("shortfall", shortfall.String()))
			return nil
		}
		tx, err := NewTransaction(inputs, []Output{{SubAccount: disputedSA, Amount: avail}}, ref, l.clock())
		if err != nil {
			return err
		}
		if err := l.commit(ctx, tx); err != nil {
			return err
		}
		if l.hooks.OnDisputeShortfall != nil {
			l.hooks.OnDisputeShortfall(client, shortfall)
		}
		l.log.Warn("dispute shortfall",
			zap.Uint16("client", uint16(client)),
			zap.String("reference", reference),
			zap.String("shortfall", shortfall.String()))
		return nil
	}
}

// Resolve returns previously disputed funds to Main.
func (l *Ledger) Resolve(ctx context.Context, client ClientID, reference string) error {
	return l.settleDispute(ctx, client, reference, Main, "resolved:")
}

// Chargeback permanently moves previously disputed funds to the
// Chargeback sub-account.
func (l *Ledger) Chargeback(ctx context.Context, client ClientID, reference string) error {
	return l.settleDispute(ctx, client, reference, Chargeback, "chargeback:")
}

// settleDispute implements the shared resolve/chargeback shape: both
// move funds out of Disputed to dest, differing only in destination
// sub-account type and reference prefix.
func (l *Ledger) settleDispute(ctx context.Context, client ClientID, reference string, dest SubAccountType, refPrefix string) error {
	disputedSA := SubAccount{Client: client, Type: Disputed}
	d, err := l.store.GetTxByReference(ctx, disputedSA, "dispute:"+reference)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	amount, err := d.outputAmount(disputedSA)
	if err != nil {
		return err
	}

	inputs, avail, err := l.selectInputs(ctx, disputedSA, amount)
	if err != nil {
		return err
	}
	if avail.Cmp(amount) < 0 {
		// Violates I8 (Disputed only ever drains back to Main or
		// forward to Chargeback, never externally); unreachable under a
		// correct storage backend.
		l.log.Error("disputed sub-account underfunded at settlement",
			zap.Uint16("client", uint16(client)), zap.String("reference", reference))
		return ErrInternal
	}

	destSA := SubAccount{Client: client, Type: dest}
	ref := refPrefix + reference
	var outputs []Output
	if avail.Cmp(amount) == 0 {
		outputs = []Output{{SubAccount: destSA, Amount: amount}}
	} else {
		change, err := avail.Sub(amount)
		if err != nil {
			return err
		}
		outputs = []Output{
			{SubAccount: destSA, Amount: amount},
			{SubAccount: disputedSA, Amount: change},
		}
	}
	tx, err := NewTransaction(inputs, outputs, ref, l.clock())
	if err != nil {
		return err
	}
	return l.commit(ctx, tx)
}

// GetBalances aggregates client's three sub-accounts.
func (l *Ledger) GetBalances(ctx context.Context, client ClientID) (Balances, error) {
	avail, err := l.sumUnspent(ctx, SubAccount{Client: client, Type: Main})
	if err != nil {
		return Balances{}, err
	}
	disp, err := l.sumUnspent(ctx, SubAccount{Client: client, Type: Disputed})
	if err != nil {
		return Balances{}, err
	}
	cb, err := l.sumUnspent(ctx, SubAccount{Client: client, Type: Chargeback})
	if err != nil {
		return Balances{}, err
	}
	total, err := avail.Add(disp)
	if err != nil {
		return Balances{}, ErrMath
	}
	return Balances{Available: avail, Disputed: disp, Chargeback: cb, Total: total}, nil
}

// GetAccounts yields each client id the ledger has ever seen, exactly
// once, in ascending order, by deduplicating storage's sorted
// (client, type) stream with a one-item lookahead.
func (l *Ledger) GetAccounts(ctx context.Context) ([]ClientID, error) {
	it, err := l.store.GetAccounts(ctx)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var result []ClientID
	var last ClientID
	haveLast := false
	for it.Next(ctx) {
		sa := it.Account()
		if !haveLast || sa.Client != last {
			result = append(result, sa.Client)
			last = sa.Client
			haveLast = true
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (l *Ledger) sumUnspent(ctx context.Context, sa SubAccount) (Amount, error) {
	inputs, err := l.store.GetUnspent(ctx, sa, nil)
	if err != nil {
		return Amount{}, err
	}
	sum := ZeroAmount()
	for _, in := range inputs {
		var err error
		sum, err = sum.Add(in.Amount)
		if err != nil {
			return Amount{}, ErrMath
		}
	}
	return sum, nil
}

// selectInputs runs coin selection for sa targeting amount and returns
// the selected inputs along with their actual sum (which may exceed
// amount). Coin-selection policy belongs here, not in storage, per
// spec.md §4.4.
func (l *Ledger) selectInputs(ctx context.Context, sa SubAccount, amount Amount) ([]Input, Amount, error) {
	inputs, err := l.store.GetUnspent(ctx, sa, &amount)
	if err != nil {
		return nil, Amount{}, err
	}
	total := ZeroAmount()
	for _, in := range inputs {
		total, err = total.Add(in.Amount)
		if err != nil {
			return nil, Amount{}, ErrMath
		}
	}
	return inputs, total, nil
}

func (l *Ledger) commit(ctx context.Context, tx Transaction) error {
	if err := l.store.StoreTx(ctx, tx); err != nil {
		return fmt.Errorf("commit %x: %w", tx.Hash, err)
	}
	return nil
}
