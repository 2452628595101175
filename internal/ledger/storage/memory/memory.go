// Package memory implements the storage contract entirely in process
// memory, guarded by a single sync.RWMutex as spec.md §5 prescribes:
// writer-exclusive for StoreTx, reader-shared for the read operations.
// Grounded on the teacher repo's UTXOSet (mutex-guarded nested map) and
// on the original Rust prototype's in-memory backend shape.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/finledger/utxoledger/internal/ledger"
	"github.com/finledger/utxoledger/internal/ledger/storage"
)

type utxoRecord struct {
	amount  ledger.Amount
	spent   bool
	spentBy ledger.TxHash
}

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu sync.RWMutex

	// utxos indexes every UTXO ever created by its identifier.
	utxos map[ledger.UTXOID]*utxoRecord

	// bySubAccount keeps each sub-account's UTXO identifiers in creation
	// order; GetUnspent walks this and filters spent_at == nil, per
	// SPEC_FULL.md 4.4.1's choice of the filter approach over the
	// slice-ordering optimization spec.md §9 mentions but does not
	// require.
	bySubAccount map[ledger.SubAccount][]ledger.UTXOID

	// txByHash and refIndex implement I4/I5 uniqueness checks and the
	// get_tx_by_reference lookup.
	txByHash map[ledger.TxHash]ledger.Transaction
	refIndex map[refKey]ledger.TxHash

	// accounts is the set of sub-account keys ever referenced, used to
	// serve GetAccounts in sorted order.
	accounts map[ledger.SubAccount]struct{}
}

type refKey struct {
	sa  ledger.SubAccount
	ref string
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		utxos:        make(map[ledger.UTXOID]*utxoRecord),
		bySubAccount: make(map[ledger.SubAccount][]ledger.UTXOID),
		txByHash:     make(map[ledger.TxHash]ledger.Transaction),
		refIndex:     make(map[refKey]ledger.TxHash),
		accounts:     make(map[ledger.SubAccount]struct{}),
	}
}

// StoreTx implements storage.Store.
func (s *Store) StoreTx(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.txByHash[tx.Hash]; exists {
		return ledger.ErrDuplicate
	}

	for _, out := range tx.Outputs {
		key := refKey{sa: out.SubAccount, ref: tx.Reference}
		if _, exists := s.refIndex[key]; exists {
			return ledger.ErrDuplicate
		}
	}

	for _, in := range tx.Inputs {
		rec, ok := s.utxos[in.ID]
		if !ok {
			return ledger.ErrMissingUTXO
		}
		if rec.spent {
			return ledger.ErrSpentUTXO
		}
		if rec.amount.Cmp(in.Amount) != 0 {
			return ledger.ErrMismatchAmount
		}
	}

	// All validation passed; commit.
	s.txByHash[tx.Hash] = tx

	for _, in := range tx.Inputs {
		rec := s.utxos[in.ID]
		rec.spent = true
		rec.spentBy = tx.Hash
	}

	for pos, out := range tx.Outputs {
		id := ledger.UTXOID{TxHash: tx.Hash, Pos: uint8(pos)}
		s.utxos[id] = &utxoRecord{amount: out.Amount}
		s.bySubAccount[out.SubAccount] = append(s.bySubAccount[out.SubAccount], id)
		s.refIndex[refKey{sa: out.SubAccount, ref: tx.Reference}] = tx.Hash
		s.accounts[out.SubAccount] = struct{}{}
	}

	return nil
}

// GetUnspent implements storage.Store.
func (s *Store) GetUnspent(ctx context.Context, sa ledger.SubAccount, target *ledger.Amount) ([]ledger.Input, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []ledger.Input
	running := ledger.ZeroAmount()

	for _, id := range s.bySubAccount[sa] {
		rec := s.utxos[id]
		if rec.spent {
			continue
		}
		result = append(result, ledger.Input{ID: id, Amount: rec.amount})
		var err error
		running, err = running.Add(rec.amount)
		if err != nil {
			return nil, ledger.ErrMath
		}
		if target != nil && running.Cmp(*target) >= 0 {
			break
		}
	}
	return result, nil
}

// GetTxByReference implements storage.Store.
func (s *Store) GetTxByReference(ctx context.Context, sa ledger.SubAccount, reference string) (ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hash, ok := s.refIndex[refKey{sa: sa, ref: reference}]
	if !ok {
		return ledger.Transaction{}, ledger.ErrNotFound
	}
	tx, ok := s.txByHash[hash]
	if !ok {
		// The reference index pointed at a transaction we don't have;
		// this should be unreachable under correct commit logic above.
		return ledger.Transaction{}, ledger.ErrInternal
	}
	return tx, nil
}

// GetAccounts implements storage.Store.
func (s *Store) GetAccounts(ctx context.Context) (storage.AccountIterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]ledger.SubAccount, 0, len(s.accounts))
	for sa := range s.accounts {
		items = append(items, sa)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Less(items[j]) })
	return storage.NewSliceIterator(items), nil
}
