package ledger

import (
	"crypto/sha256"
	"encoding/binary"
)

// TxHash is the SHA-256 content identity of a Transaction.
type TxHash [32]byte

// UTXOID identifies an unspent transaction output: the hash of the
// transaction that produced it and its position within that
// transaction's output list (0..255 outputs per transaction).
type UTXOID struct {
	TxHash TxHash
	Pos    uint8
}

// Bytes packs the identifier into its 33-byte wire form: 32-byte hash
// followed by the 1-byte position, the encoding fed into transaction
// hashing.
func (u UTXOID) Bytes() [33]byte {
	var out [33]byte
	copy(out[:32], u.TxHash[:])
	out[32] = u.Pos
	return out
}

// Input references a UTXO being spent, along with the amount the
// spender asserts it carries. Storage checks this assertion against the
// amount it has on record (I2).
type Input struct {
	ID     UTXOID
	Amount Amount
}

// Output describes a new UTXO a transaction creates: the sub-account it
// credits and the amount it carries.
type Output struct {
	SubAccount SubAccount
	Amount     Amount
}

// Transaction is the ledger's unit of committed history: a set of
// inputs consumed, a set of outputs created, a caller-facing reference
// string unique within a sub-account, and a timestamp. Its Hash is
// computed once at construction and never recomputed.
type Transaction struct {
	Inputs    []Input
	Outputs   []Output
	Reference string
	Timestamp int64 // microseconds since epoch
	Hash      TxHash
}

// NewTransaction builds and validates a Transaction, computing its
// content hash. Construction enforces I3 and I6: the transaction may
// not be empty on both sides, and when both sides are non-empty their
// sums must match and be strictly positive.
func NewTransaction(inputs []Input, outputs []Output, reference string, timestampMicros int64) (Transaction, error) {
	if len(inputs) == 0 && len(outputs) == 0 {
		return Transaction{}, ErrInvalidFrom
	}

	if len(inputs) > 0 && len(outputs) > 0 {
		inSum := ZeroAmount()
		for _, in := range inputs {
			var err error
			inSum, err = inSum.Add(in.Amount)
			if err != nil {
				return Transaction{}, err
			}
		}
		outSum := ZeroAmount()
		for _, out := range outputs {
			var err error
			outSum, err = outSum.Add(out.Amount)
			if err != nil {
				return Transaction{}, err
			}
		}
		if inSum.Cmp(outSum) != 0 {
			return Transaction{}, ErrImbalanced
		}
		if inSum.Sign() <= 0 {
			return Transaction{}, ErrInvalidFrom
		}
	}

	tx := Transaction{
		Inputs:    inputs,
		Outputs:   outputs,
		Reference: reference,
		Timestamp: timestampMicros,
	}
	tx.Hash = tx.computeHash()
	return tx, nil
}

// computeHash implements the §4.3 content digest: SHA-256 of
//
//	SHA-256(inputs-33-byte-encodings concatenated) ||
//	SHA-256(outputs-encodings concatenated)        ||
//	8-byte little-endian timestamp                 ||
//	UTF-8 reference bytes
func (t Transaction) computeHash() TxHash {
	inHasher := sha256.New()
	for _, in := range t.Inputs {
		b := in.ID.Bytes()
		inHasher.Write(b[:])
	}
	inDigest := inHasher.Sum(nil)

	outHasher := sha256.New()
	for _, out := range t.Outputs {
		sa := out.SubAccount.Bytes()
		outHasher.Write(sa[:])
		amt := out.Amount.Bytes()
		outHasher.Write(amt[:])
	}
	outDigest := outHasher.Sum(nil)

	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(t.Timestamp))

	final := sha256.New()
	final.Write(inDigest)
	final.Write(outDigest)
	final.Write(ts[:])
	final.Write([]byte(t.Reference))

	var h TxHash
	copy(h[:], final.Sum(nil))
	return h
}

// outputAmount sums the outputs of t whose sub-account equals sa. Used
// by resolve/chargeback to recover the disputed amount from the
// original dispute transaction without trusting a cached value.
func (t Transaction) outputAmount(sa SubAccount) (Amount, error) {
	sum := ZeroAmount()
	for _, out := range t.Outputs {
		if out.SubAccount == sa {
			var err error
			sum, err = sum.Add(out.Amount)
			if err != nil {
				return Amount{}, err
			}
		}
	}
	return sum, nil
}
