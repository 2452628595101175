// Package boltstore implements the storage contract on top of
// go.etcd.io/bbolt, adapted from the teacher repo's internal/storage/db.go
// (bucket-per-entity, db.Update/db.View closures, composite byte keys) and
// layered with an allegro/bigcache read-through cache in front of
// GetTxByReference, since reference lookups (dispute/resolve/chargeback)
// are the hottest read path in the CSV batch workload and bbolt's own
// page cache does not help across process restarts in the CLI's
// one-shot invocation model.
//
// Five buckets back the store: transactions and utxos are keyed
// canonically (by hash, by bare UTXO id) so point lookups never need to
// know a UTXO's owning sub-account in advance; utxo_index exists solely
// to give GetUnspent an ordered, sub-account-prefixed range to scan, and
// is kept in lockstep with utxos (an entry is written when its UTXO is
// created, deleted the moment it is spent). refs and accounts are
// auxiliary lookup tables.
package boltstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/finledger/utxoledger/internal/ledger"
	"github.com/finledger/utxoledger/internal/ledger/storage"
	"github.com/finledger/utxoledger/internal/logger"
)

var (
	bucketTxs      = []byte("transactions")
	bucketUTXOs    = []byte("utxos")
	bucketIndex    = []byte("utxo_index")
	bucketRefs     = []byte("refs")
	bucketAccounts = []byte("accounts")
)

// Store is a durable, single-process storage.Store backed by a bbolt
// file. bbolt's own single-writer MVCC transactions serve as the
// linearization point spec.md §5 calls for; no additional mutex is
// needed around StoreTx.
type Store struct {
	db    *bbolt.DB
	cache *bigcache.BigCache
}

// Open creates or opens the bbolt file at path and ensures its buckets
// exist, mirroring the teacher's NewDB.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketTxs, bucketUTXOs, bucketIndex, bucketRefs, bucketAccounts} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("creating bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	cache, err := bigcache.New(ctx, bigcache.DefaultConfig(5*time.Minute))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating read-through cache: %w", err)
	}

	return &Store{db: db, cache: cache}, nil
}

// Close releases the underlying bbolt file handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// subAccountKey packs sa as 2-byte big-endian client id followed by the
// type byte, so lexicographic bbolt key ordering equals the ascending
// (client, type) order §4.2 requires. This differs deliberately from
// SubAccount.Bytes(), which is little-endian because it feeds the
// transaction content hash, not an index.
func subAccountKey(sa ledger.SubAccount) []byte {
	key := make([]byte, 3)
	binary.BigEndian.PutUint16(key[0:2], uint16(sa.Client))
	key[2] = byte(sa.Type)
	return key
}

func utxoKey(id ledger.UTXOID) []byte {
	b := id.Bytes()
	return b[:]
}

func refKey(sa ledger.SubAccount, reference string) []byte {
	var buf bytes.Buffer
	buf.Write(subAccountKey(sa))
	buf.WriteByte(0)
	buf.WriteString(reference)
	return buf.Bytes()
}

// indexKey is the bucketIndex key for id under sa: the sub-account
// prefix followed by the UTXO's own canonical key, so an ascending
// cursor walk over the prefix enumerates sa's UTXOs ordered by producing
// transaction hash, then position; creation order is not preserved.
// The canonical record itself lives in bucketUTXOs under utxoKey(id)
// alone; bucketIndex exists purely to make that enumeration possible
// without a full bucketUTXOs scan.
func indexKey(sa ledger.SubAccount, id ledger.UTXOID) []byte {
	return append(append([]byte{}, subAccountKey(sa)...), utxoKey(id)...)
}

type utxoRecord struct {
	Client  ledger.ClientID       `json:"client"`
	Type    ledger.SubAccountType `json:"type"`
	Amount  string                `json:"amount"`
	Spent   bool                  `json:"spent"`
	SpentBy string                `json:"spent_by,omitempty"`
}

func (r utxoRecord) subAccount() ledger.SubAccount {
	return ledger.SubAccount{Client: r.Client, Type: r.Type}
}

type storedTx struct {
	Inputs    []storedInput  `json:"inputs"`
	Outputs   []storedOutput `json:"outputs"`
	Reference string         `json:"reference"`
	Timestamp int64          `json:"timestamp"`
	Hash      string         `json:"hash"`
}

type storedInput struct {
	TxHash string `json:"tx_hash"`
	Pos    uint8  `json:"pos"`
	Amount string `json:"amount"`
}

type storedOutput struct {
	Client ledger.ClientID       `json:"client"`
	Type   ledger.SubAccountType `json:"type"`
	Amount string                `json:"amount"`
}

func encodeTx(tx ledger.Transaction) ([]byte, error) {
	st := storedTx{
		Reference: tx.Reference,
		Timestamp: tx.Timestamp,
		Hash:      fmt.Sprintf("%x", tx.Hash),
	}
	for _, in := range tx.Inputs {
		st.Inputs = append(st.Inputs, storedInput{
			TxHash: fmt.Sprintf("%x", in.ID.TxHash),
			Pos:    in.ID.Pos,
			Amount: in.Amount.String(),
		})
	}
	for _, out := range tx.Outputs {
		st.Outputs = append(st.Outputs, storedOutput{
			Client: out.SubAccount.Client,
			Type:   out.SubAccount.Type,
			Amount: out.Amount.String(),
		})
	}
	return json.Marshal(st)
}

// StoreTx implements storage.Store. Validation happens inside a single
// db.Update closure so the whole validate-then-commit sequence is one
// bbolt transaction: either every bucket write lands, or none does.
func (s *Store) StoreTx(ctx context.Context, tx ledger.Transaction) error {
	return s.db.Update(func(btx *bbolt.Tx) error {
		txs := btx.Bucket(bucketTxs)
		utxos := btx.Bucket(bucketUTXOs)
		idx := btx.Bucket(bucketIndex)
		refs := btx.Bucket(bucketRefs)
		accounts := btx.Bucket(bucketAccounts)

		hashKey := tx.Hash[:]
		if txs.Get(hashKey) != nil {
			return ledger.ErrDuplicate
		}

		for _, out := range tx.Outputs {
			if refs.Get(refKey(out.SubAccount, tx.Reference)) != nil {
				return ledger.ErrDuplicate
			}
		}

		// Every UTXO, spent or not, lives in bucketUTXOs under its own
		// bare utxoKey; bucketIndex is consulted only by GetUnspent's
		// per-sub-account scan, never here.
		spending := make([]utxoRecord, len(tx.Inputs))
		for i, in := range tx.Inputs {
			raw := utxos.Get(utxoKey(in.ID))
			if raw == nil {
				return ledger.ErrMissingUTXO
			}
			var rec utxoRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return fmt.Errorf("%w: decoding utxo record: %v", ledger.ErrInternal, err)
			}
			if rec.Spent {
				return ledger.ErrSpentUTXO
			}
			if rec.Amount != in.Amount.String() {
				return ledger.ErrMismatchAmount
			}
			spending[i] = rec
		}

		data, err := encodeTx(tx)
		if err != nil {
			return fmt.Errorf("%w: encoding transaction: %v", ledger.ErrInternal, err)
		}
		if err := txs.Put(hashKey, data); err != nil {
			return err
		}

		for i, in := range tx.Inputs {
			rec := spending[i]
			rec.Spent = true
			rec.SpentBy = fmt.Sprintf("%x", tx.Hash)
			raw, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := utxos.Put(utxoKey(in.ID), raw); err != nil {
				return err
			}
			if err := idx.Delete(indexKey(rec.subAccount(), in.ID)); err != nil {
				return err
			}
		}

		for pos, out := range tx.Outputs {
			id := ledger.UTXOID{TxHash: tx.Hash, Pos: uint8(pos)}
			rec := utxoRecord{Client: out.SubAccount.Client, Type: out.SubAccount.Type, Amount: out.Amount.String()}
			raw, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := utxos.Put(utxoKey(id), raw); err != nil {
				return err
			}
			saKey := subAccountKey(out.SubAccount)
			if err := idx.Put(indexKey(out.SubAccount, id), []byte{1}); err != nil {
				return err
			}
			if err := refs.Put(refKey(out.SubAccount, tx.Reference), hashKey); err != nil {
				return err
			}
			if err := accounts.Put(saKey, []byte{1}); err != nil {
				return err
			}
		}

		return nil
	})
}

// GetUnspent implements storage.Store by walking bucketIndex's
// sub-account-prefixed key range — built and maintained alongside
// bucketUTXOs in StoreTx so it only ever holds currently-unspent
// members — and resolving each entry's amount from the canonical
// bucketUTXOs record.
func (s *Store) GetUnspent(ctx context.Context, subAccount ledger.SubAccount, target *ledger.Amount) ([]ledger.Input, error) {
	var result []ledger.Input
	running := ledger.ZeroAmount()

	err := s.db.View(func(btx *bbolt.Tx) error {
		utxos := btx.Bucket(bucketUTXOs)
		idx := btx.Bucket(bucketIndex)
		prefix := subAccountKey(subAccount)
		c := idx.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			idBytes := k[len(prefix):]
			var id ledger.UTXOID
			copy(id.TxHash[:], idBytes[:32])
			id.Pos = idBytes[32]

			raw := utxos.Get(utxoKey(id))
			if raw == nil {
				return fmt.Errorf("%w: utxo_index entry with no utxos record for %x/%d", ledger.ErrInternal, id.TxHash, id.Pos)
			}
			var rec utxoRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return fmt.Errorf("%w: decoding utxo record: %v", ledger.ErrInternal, err)
			}
			if rec.Spent {
				continue
			}
			amount, err := amountFromString(rec.Amount)
			if err != nil {
				return err
			}

			result = append(result, ledger.Input{ID: id, Amount: amount})
			var addErr error
			running, addErr = running.Add(amount)
			if addErr != nil {
				return ledger.ErrMath
			}
			if target != nil && running.Cmp(*target) >= 0 {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetTxByReference implements storage.Store, consulting the bigcache
// read-through cache before falling back to bbolt. A successful bbolt
// lookup populates the cache; StoreTx never needs to invalidate it
// because references are write-once (a second StoreTx under the same
// reference fails with ErrDuplicate before any write happens).
func (s *Store) GetTxByReference(ctx context.Context, subAccount ledger.SubAccount, reference string) (ledger.Transaction, error) {
	cacheKey := string(refKey(subAccount, reference))
	if cached, err := s.cache.Get(cacheKey); err == nil {
		var st storedTx
		if jsonErr := json.Unmarshal(cached, &st); jsonErr == nil {
			return decodeTx(st)
		}
	}

	var raw []byte
	err := s.db.View(func(btx *bbolt.Tx) error {
		refs := btx.Bucket(bucketRefs)
		hash := refs.Get(refKey(subAccount, reference))
		if hash == nil {
			return ledger.ErrNotFound
		}
		data := btx.Bucket(bucketTxs).Get(hash)
		if data == nil {
			return ledger.ErrInternal
		}
		raw = append([]byte{}, data...)
		return nil
	})
	if err != nil {
		return ledger.Transaction{}, err
	}

	if err := s.cache.Set(cacheKey, raw); err != nil {
		logger.Warn("bolt store: failed to populate reference cache", zap.Error(err))
	}

	var st storedTx
	if err := json.Unmarshal(raw, &st); err != nil {
		return ledger.Transaction{}, fmt.Errorf("%w: decoding transaction: %v", ledger.ErrInternal, err)
	}
	return decodeTx(st)
}

// GetAccounts implements storage.Store via an ascending bbolt cursor
// walk over the accounts bucket, whose keys already sort in the
// required (client, type) order.
func (s *Store) GetAccounts(ctx context.Context) (storage.AccountIterator, error) {
	var items []ledger.SubAccount
	err := s.db.View(func(btx *bbolt.Tx) error {
		c := btx.Bucket(bucketAccounts).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			items = append(items, ledger.SubAccount{
				Client: ledger.ClientID(binary.BigEndian.Uint16(k[0:2])),
				Type:   ledger.SubAccountType(k[2]),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return storage.NewSliceIterator(items), nil
}

func decodeHash(s string) (ledger.TxHash, error) {
	var h ledger.TxHash
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(h) {
		return h, fmt.Errorf("%w: decoding hash %q", ledger.ErrInternal, s)
	}
	copy(h[:], b)
	return h, nil
}

func amountFromString(s string) (ledger.Amount, error) {
	return ledger.AmountFromString(s)
}

func decodeTx(st storedTx) (ledger.Transaction, error) {
	tx := ledger.Transaction{Reference: st.Reference, Timestamp: st.Timestamp}
	for _, in := range st.Inputs {
		amount, err := amountFromString(in.Amount)
		if err != nil {
			return ledger.Transaction{}, err
		}
		h, err := decodeHash(in.TxHash)
		if err != nil {
			return ledger.Transaction{}, err
		}
		tx.Inputs = append(tx.Inputs, ledger.Input{ID: ledger.UTXOID{TxHash: h, Pos: in.Pos}, Amount: amount})
	}
	for _, out := range st.Outputs {
		amount, err := amountFromString(out.Amount)
		if err != nil {
			return ledger.Transaction{}, err
		}
		tx.Outputs = append(tx.Outputs, ledger.Output{
			SubAccount: ledger.SubAccount{Client: out.Client, Type: out.Type},
			Amount:     amount,
		})
	}
	h, err := decodeHash(st.Hash)
	if err != nil {
		return ledger.Transaction{}, err
	}
	tx.Hash = h
	return tx, nil
}
