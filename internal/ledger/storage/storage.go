// Package storage defines the persistence contract the ledger core is
// built against, grounded on the teacher repo's context-threaded
// Database interface: every operation takes a context.Context and a
// single concrete implementation owns its own concurrency discipline
// internally (a mutex, a database engine's own transactions).
package storage

import (
	"context"

	"github.com/finledger/utxoledger/internal/ledger"
)

// Store is the atomic validate-and-commit contract every backend must
// satisfy. StoreTx is the sole linearization point for writes; the three
// read operations never mutate state.
type Store interface {
	// StoreTx validates tx against the invariants in §4.4 and, if valid,
	// commits it atomically: records the transaction by hash, marks every
	// input UTXO spent, and creates the new output UTXOs with their
	// reference bindings.
	StoreTx(ctx context.Context, tx ledger.Transaction) error

	// GetUnspent returns the unspent UTXOs belonging to sa. If target is
	// non-nil, the scan may stop as soon as the running sum reaches or
	// exceeds *target; a nil target requests the full unspent set.
	GetUnspent(ctx context.Context, sa ledger.SubAccount, target *ledger.Amount) ([]ledger.Input, error)

	// GetTxByReference returns the transaction registered under
	// (sa, reference), or ErrNotFound.
	GetTxByReference(ctx context.Context, sa ledger.SubAccount, reference string) (ledger.Transaction, error)

	// GetAccounts returns every sub-account key storage has ever seen, in
	// ascending (client, type) order. Implementations should stream
	// rather than materialize where the backend allows it; the in-memory
	// backend has no meaningful choice but to snapshot its key set.
	GetAccounts(ctx context.Context) (AccountIterator, error)
}

// AccountIterator is a pull-based, restartable-enough sequence of
// sub-account keys in ascending sorted order. Callers must call Close
// when done, even after Next returns false.
type AccountIterator interface {
	// Next advances the iterator. Returns false at end of sequence or on
	// error; callers must check Err after a false return.
	Next(ctx context.Context) bool
	// Account returns the current element. Only valid after a Next call
	// that returned true.
	Account() ledger.SubAccount
	// Err returns the first error encountered, if any.
	Err() error
	// Close releases any resources the iterator holds open.
	Close() error
}

// ErrNotFound is an alias of ledger.ErrNotFound kept here so storage
// backends can reference it without a second import line; all storage
// errors use the sentinels in package ledger (ErrNotFound,
// ErrDuplicate, ErrMissingUTXO, ErrSpentUTXO, ErrMismatchAmount,
// ErrMath, ErrInternal) so the ledger core and its callers can
// errors.Is against one vocabulary.
var ErrNotFound = ledger.ErrNotFound

// SliceIterator adapts a pre-sorted, already-materialized slice of
// sub-accounts into an AccountIterator. Used by backends (the in-memory
// store, and bolt for the account index) that have no cheaper way to
// produce a sorted stream than building it once and walking it.
type SliceIterator struct {
	items []ledger.SubAccount
	pos   int
	err   error
}

// NewSliceIterator wraps items, which must already be sorted ascending.
func NewSliceIterator(items []ledger.SubAccount) *SliceIterator {
	return &SliceIterator{items: items, pos: -1}
}

func (s *SliceIterator) Next(ctx context.Context) bool {
	if err := ctx.Err(); err != nil {
		s.err = err
		return false
	}
	s.pos++
	return s.pos < len(s.items)
}

func (s *SliceIterator) Account() ledger.SubAccount {
	return s.items[s.pos]
}

func (s *SliceIterator) Err() error { return s.err }

func (s *SliceIterator) Close() error { return nil }
