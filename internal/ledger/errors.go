package ledger

import "errors"

// Sentinel errors forming the taxonomy surfaced by the ledger and its
// storage backends. Callers should use errors.Is against these, not
// string comparison.
var (
	// ErrImbalanced: a transaction's input sum does not equal its output sum.
	ErrImbalanced = errors.New("ledger: imbalanced transaction")
	// ErrInvalidFrom: a transaction has empty inputs and outputs, or a
	// non-positive balanced sum.
	ErrInvalidFrom = errors.New("ledger: invalid transaction shape")
	// ErrInvalidTo: reserved for output-side construction errors.
	ErrInvalidTo = errors.New("ledger: invalid transaction destination")

	// ErrNotFound: no transaction registered under the requested reference.
	ErrNotFound = errors.New("ledger: reference not found")
	// ErrWrongType: the referenced transaction cannot be disputed.
	ErrWrongType = errors.New("ledger: wrong transaction type for operation")
	// ErrNotEnough: insufficient unspent funds to satisfy the request.
	ErrNotEnough = errors.New("ledger: insufficient funds")

	// ErrDuplicate: a transaction hash or (sub-account, reference) pair
	// already exists.
	ErrDuplicate = errors.New("ledger: duplicate transaction or reference")
	// ErrMissingUTXO: an input referenced a UTXO identifier storage has
	// never recorded.
	ErrMissingUTXO = errors.New("ledger: missing utxo")
	// ErrSpentUTXO: an input referenced a UTXO already consumed by a
	// prior committed transaction. Retryable.
	ErrSpentUTXO = errors.New("ledger: utxo already spent")
	// ErrMismatchAmount: an input's asserted amount does not match the
	// amount storage has on record for that UTXO.
	ErrMismatchAmount = errors.New("ledger: input amount mismatch")

	// ErrMath: arithmetic overflow, or a non-finite float at a
	// fixed-point conversion boundary.
	ErrMath = errors.New("ledger: arithmetic error")

	// ErrInternal: an invariant that should be unreachable under a
	// correct storage backend was observed.
	ErrInternal = errors.New("ledger: internal invariant violation")
)
