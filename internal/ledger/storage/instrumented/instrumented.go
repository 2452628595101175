// Package instrumented wraps a storage.Store with the Prometheus
// observability SPEC_FULL.md's metrics module promises: per-backend,
// per-method call latency and a running estimate of the unspent UTXO
// set size. It is a thin decorator rather than a change to any backend,
// grounded on the teacher repo's practice of keeping collectors at the
// call boundary instead of threading them through storage internals.
package instrumented

import (
	"context"
	"time"

	"github.com/finledger/utxoledger/internal/ledger"
	"github.com/finledger/utxoledger/internal/ledger/storage"
	"github.com/finledger/utxoledger/internal/metrics"
)

// Store decorates an inner storage.Store, timing every call for
// StorageLatency and adjusting UnspentUTXOs after each successful
// StoreTx.
type Store struct {
	inner   storage.Store
	metrics *metrics.Ledger
	backend string
}

// New wraps inner, labeling its StorageLatency observations with
// backend (e.g. "memory", "bolt", "postgres").
func New(inner storage.Store, m *metrics.Ledger, backend string) *Store {
	return &Store{inner: inner, metrics: m, backend: backend}
}

func (s *Store) observe(method string, start time.Time) {
	s.metrics.StorageLatency.WithLabelValues(s.backend, method).Observe(time.Since(start).Seconds())
}

// StoreTx implements storage.Store. Net UTXO count per call is
// len(tx.Outputs)-len(tx.Inputs): every committed transaction spends
// its inputs and mints its outputs in the same atomic step, so the
// gauge only needs a delta, never a full-table recount.
func (s *Store) StoreTx(ctx context.Context, tx ledger.Transaction) error {
	start := time.Now()
	err := s.inner.StoreTx(ctx, tx)
	s.observe("StoreTx", start)
	if err == nil {
		s.metrics.UnspentUTXOs.Add(float64(len(tx.Outputs) - len(tx.Inputs)))
	}
	return err
}

// GetUnspent implements storage.Store.
func (s *Store) GetUnspent(ctx context.Context, sa ledger.SubAccount, target *ledger.Amount) ([]ledger.Input, error) {
	start := time.Now()
	defer s.observe("GetUnspent", start)
	return s.inner.GetUnspent(ctx, sa, target)
}

// GetTxByReference implements storage.Store.
func (s *Store) GetTxByReference(ctx context.Context, sa ledger.SubAccount, reference string) (ledger.Transaction, error) {
	start := time.Now()
	defer s.observe("GetTxByReference", start)
	return s.inner.GetTxByReference(ctx, sa, reference)
}

// GetAccounts implements storage.Store.
func (s *Store) GetAccounts(ctx context.Context) (storage.AccountIterator, error) {
	start := time.Now()
	defer s.observe("GetAccounts", start)
	return s.inner.GetAccounts(ctx)
}
