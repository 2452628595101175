// Package pgstore implements the storage contract against PostgreSQL
// via jackc/pgx, grounded on the community-bank-platform ledger store
// example in the pack: BeginTx with pgx.ReadCommitted, defer Rollback,
// explicit Commit on the success path. The original prototype's SQL
// backend target was SQLite; no SQLite driver appears anywhere in the
// retrieved example corpus, so this substitutes Postgres, the SQL
// engine the pack's own ledger reference code actually drives. The
// storage.Store contract is identical either way.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finledger/utxoledger/internal/ledger"
	"github.com/finledger/utxoledger/internal/ledger/storage"
)

// Schema is the DDL Open applies on every connect; every statement is
// CREATE ... IF NOT EXISTS, so applying it to an existing database is a
// no-op.
const Schema = `
CREATE TABLE IF NOT EXISTS ledger_transactions (
	hash       bytea PRIMARY KEY,
	reference  text NOT NULL,
	timestamp  bigint NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_utxos (
	tx_hash    bytea NOT NULL,
	pos        smallint NOT NULL,
	client_id  integer NOT NULL,
	sub_type   smallint NOT NULL,
	amount     numeric(40, 0) NOT NULL,
	spent_at   bytea,
	PRIMARY KEY (tx_hash, pos)
);
CREATE INDEX IF NOT EXISTS ledger_utxos_by_account ON ledger_utxos (client_id, sub_type, spent_at);

CREATE TABLE IF NOT EXISTS ledger_tx_outputs (
	tx_hash    bytea NOT NULL,
	pos        smallint NOT NULL,
	client_id  integer NOT NULL,
	sub_type   smallint NOT NULL,
	amount     numeric(40, 0) NOT NULL,
	PRIMARY KEY (tx_hash, pos)
);

CREATE TABLE IF NOT EXISTS ledger_tx_inputs (
	tx_hash      bytea NOT NULL,
	input_tx     bytea NOT NULL,
	input_pos    smallint NOT NULL,
	amount       numeric(40, 0) NOT NULL,
	PRIMARY KEY (tx_hash, input_tx, input_pos)
);

CREATE TABLE IF NOT EXISTS ledger_references (
	client_id  integer NOT NULL,
	sub_type   smallint NOT NULL,
	reference  text NOT NULL,
	tx_hash    bytea NOT NULL,
	PRIMARY KEY (client_id, sub_type, reference)
);
`

// Store is a storage.Store implementation over a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn, applies Schema (idempotent, CREATE TABLE IF NOT
// EXISTS), and returns a ready Store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// StoreTx implements storage.Store. Validation and commit happen inside
// one ReadCommitted transaction; the spend step uses
// UPDATE ... WHERE spent_at IS NULL and checks the affected row count
// instead of a read-then-write, per spec.md §9's note on append-only
// semantics in a SQL backend.
func (s *Store) StoreTx(ctx context.Context, tx ledger.Transaction) error {
	pgtx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer pgtx.Rollback(ctx)

	hashBytes := tx.Hash[:]

	var exists bool
	if err := pgtx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM ledger_transactions WHERE hash=$1)`, hashBytes).Scan(&exists); err != nil {
		return fmt.Errorf("checking duplicate hash: %w", err)
	}
	if exists {
		return ledger.ErrDuplicate
	}

	for _, out := range tx.Outputs {
		var refExists bool
		err := pgtx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM ledger_references WHERE client_id=$1 AND sub_type=$2 AND reference=$3)`,
			int32(out.SubAccount.Client), int16(out.SubAccount.Type), tx.Reference).Scan(&refExists)
		if err != nil {
			return fmt.Errorf("checking duplicate reference: %w", err)
		}
		if refExists {
			return ledger.ErrDuplicate
		}
	}

	for _, in := range tx.Inputs {
		var amountStr string
		var spentAt []byte
		err := pgtx.QueryRow(ctx,
			`SELECT amount::text, spent_at FROM ledger_utxos WHERE tx_hash=$1 AND pos=$2`,
			in.ID.TxHash[:], int16(in.ID.Pos)).Scan(&amountStr, &spentAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.ErrMissingUTXO
		}
		if err != nil {
			return fmt.Errorf("looking up input utxo: %w", err)
		}
		if spentAt != nil {
			return ledger.ErrSpentUTXO
		}
		stored, err := ledger.AmountFromString(amountStr)
		if err != nil {
			return fmt.Errorf("%w: parsing stored amount: %v", ledger.ErrInternal, err)
		}
		if stored.Cmp(in.Amount) != 0 {
			return ledger.ErrMismatchAmount
		}
	}

	if _, err := pgtx.Exec(ctx, `INSERT INTO ledger_transactions (hash, reference, timestamp) VALUES ($1, $2, $3)`,
		hashBytes, tx.Reference, tx.Timestamp); err != nil {
		return fmt.Errorf("inserting transaction: %w", err)
	}

	for _, in := range tx.Inputs {
		tag, err := pgtx.Exec(ctx,
			`UPDATE ledger_utxos SET spent_at=$1 WHERE tx_hash=$2 AND pos=$3 AND spent_at IS NULL`,
			hashBytes, in.ID.TxHash[:], int16(in.ID.Pos))
		if err != nil {
			return fmt.Errorf("marking utxo spent: %w", err)
		}
		if tag.RowsAffected() != 1 {
			// Another writer spent it between our read and this update.
			return ledger.ErrSpentUTXO
		}
		if _, err := pgtx.Exec(ctx,
			`INSERT INTO ledger_tx_inputs (tx_hash, input_tx, input_pos, amount) VALUES ($1, $2, $3, $4)`,
			hashBytes, in.ID.TxHash[:], int16(in.ID.Pos), in.Amount.String()); err != nil {
			return fmt.Errorf("recording input: %w", err)
		}
	}

	for pos, out := range tx.Outputs {
		if _, err := pgtx.Exec(ctx,
			`INSERT INTO ledger_utxos (tx_hash, pos, client_id, sub_type, amount, spent_at) VALUES ($1, $2, $3, $4, $5, NULL)`,
			hashBytes, int16(pos), int32(out.SubAccount.Client), int16(out.SubAccount.Type), out.Amount.String()); err != nil {
			return fmt.Errorf("creating output utxo: %w", err)
		}
		if _, err := pgtx.Exec(ctx,
			`INSERT INTO ledger_tx_outputs (tx_hash, pos, client_id, sub_type, amount) VALUES ($1, $2, $3, $4, $5)`,
			hashBytes, int16(pos), int32(out.SubAccount.Client), int16(out.SubAccount.Type), out.Amount.String()); err != nil {
			return fmt.Errorf("recording output: %w", err)
		}
		if _, err := pgtx.Exec(ctx,
			`INSERT INTO ledger_references (client_id, sub_type, reference, tx_hash) VALUES ($1, $2, $3, $4)`,
			int32(out.SubAccount.Client), int16(out.SubAccount.Type), tx.Reference, hashBytes); err != nil {
			return fmt.Errorf("binding reference: %w", err)
		}
	}

	if err := pgtx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetUnspent implements storage.Store. The target-sum early exit is
// implemented by fetching rows in a stable order and stopping the scan
// client-side once the running sum reaches target, matching the
// storage.Store contract's "may stop early" semantics rather than
// pushing a LIMIT into SQL (which cannot express a running-sum cutoff
// portably).
func (s *Store) GetUnspent(ctx context.Context, sa ledger.SubAccount, target *ledger.Amount) ([]ledger.Input, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tx_hash, pos, amount::text FROM ledger_utxos WHERE client_id=$1 AND sub_type=$2 AND spent_at IS NULL ORDER BY tx_hash, pos`,
		int32(sa.Client), int16(sa.Type))
	if err != nil {
		return nil, fmt.Errorf("querying unspent utxos: %w", err)
	}
	defer rows.Close()

	var result []ledger.Input
	running := ledger.ZeroAmount()
	for rows.Next() {
		var hashBytes []byte
		var pos int16
		var amountStr string
		if err := rows.Scan(&hashBytes, &pos, &amountStr); err != nil {
			return nil, fmt.Errorf("scanning unspent utxo: %w", err)
		}
		amount, err := ledger.AmountFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing amount: %v", ledger.ErrInternal, err)
		}
		var id ledger.UTXOID
		copy(id.TxHash[:], hashBytes)
		id.Pos = uint8(pos)

		result = append(result, ledger.Input{ID: id, Amount: amount})
		running, err = running.Add(amount)
		if err != nil {
			return nil, ledger.ErrMath
		}
		if target != nil && running.Cmp(*target) >= 0 {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating unspent utxos: %w", err)
	}
	return result, nil
}

// GetTxByReference implements storage.Store.
func (s *Store) GetTxByReference(ctx context.Context, sa ledger.SubAccount, reference string) (ledger.Transaction, error) {
	var hashBytes []byte
	err := s.pool.QueryRow(ctx,
		`SELECT tx_hash FROM ledger_references WHERE client_id=$1 AND sub_type=$2 AND reference=$3`,
		int32(sa.Client), int16(sa.Type), reference).Scan(&hashBytes)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Transaction{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("looking up reference: %w", err)
	}

	var ts int64
	var ref string
	if err := s.pool.QueryRow(ctx, `SELECT reference, timestamp FROM ledger_transactions WHERE hash=$1`, hashBytes).Scan(&ref, &ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Transaction{}, ledger.ErrInternal
		}
		return ledger.Transaction{}, fmt.Errorf("loading transaction: %w", err)
	}

	tx := ledger.Transaction{Reference: ref, Timestamp: ts}
	copy(tx.Hash[:], hashBytes)

	inRows, err := s.pool.Query(ctx, `SELECT input_tx, input_pos, amount::text FROM ledger_tx_inputs WHERE tx_hash=$1`, hashBytes)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("loading inputs: %w", err)
	}
	for inRows.Next() {
		var inHash []byte
		var pos int16
		var amountStr string
		if err := inRows.Scan(&inHash, &pos, &amountStr); err != nil {
			inRows.Close()
			return ledger.Transaction{}, fmt.Errorf("scanning input: %w", err)
		}
		amount, err := ledger.AmountFromString(amountStr)
		if err != nil {
			inRows.Close()
			return ledger.Transaction{}, fmt.Errorf("%w: parsing input amount: %v", ledger.ErrInternal, err)
		}
		var id ledger.UTXOID
		copy(id.TxHash[:], inHash)
		id.Pos = uint8(pos)
		tx.Inputs = append(tx.Inputs, ledger.Input{ID: id, Amount: amount})
	}
	inRows.Close()
	if err := inRows.Err(); err != nil {
		return ledger.Transaction{}, fmt.Errorf("iterating inputs: %w", err)
	}

	outRows, err := s.pool.Query(ctx, `SELECT client_id, sub_type, amount::text FROM ledger_tx_outputs WHERE tx_hash=$1 ORDER BY pos`, hashBytes)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("loading outputs: %w", err)
	}
	for outRows.Next() {
		var client uint16
		var subType uint8
		var amountStr string
		if err := outRows.Scan(&client, &subType, &amountStr); err != nil {
			outRows.Close()
			return ledger.Transaction{}, fmt.Errorf("scanning output: %w", err)
		}
		amount, err := ledger.AmountFromString(amountStr)
		if err != nil {
			outRows.Close()
			return ledger.Transaction{}, fmt.Errorf("%w: parsing output amount: %v", ledger.ErrInternal, err)
		}
		tx.Outputs = append(tx.Outputs, ledger.Output{
			SubAccount: ledger.SubAccount{Client: ledger.ClientID(client), Type: ledger.SubAccountType(subType)},
			Amount:     amount,
		})
	}
	outRows.Close()
	if err := outRows.Err(); err != nil {
		return ledger.Transaction{}, fmt.Errorf("iterating outputs: %w", err)
	}

	return tx, nil
}

// GetAccounts implements storage.Store, streaming rows from a single
// ascending-ordered query rather than materializing the full set, the
// backend where the storage.AccountIterator contract can actually avoid
// buffering (unlike the in-memory and bolt backends, which snapshot).
func (s *Store) GetAccounts(ctx context.Context) (storage.AccountIterator, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT client_id, sub_type FROM ledger_tx_outputs ORDER BY client_id, sub_type`)
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	return &rowIterator{rows: rows}, nil
}

type rowIterator struct {
	rows    pgx.Rows
	current ledger.SubAccount
	err     error
}

func (it *rowIterator) Next(ctx context.Context) bool {
	if it.err != nil || ctx.Err() != nil {
		return false
	}
	if !it.rows.Next() {
		it.err = it.rows.Err()
		return false
	}
	var client uint16
	var subType uint8
	if err := it.rows.Scan(&client, &subType); err != nil {
		it.err = err
		return false
	}
	it.current = ledger.SubAccount{Client: ledger.ClientID(client), Type: ledger.SubAccountType(subType)}
	return true
}

func (it *rowIterator) Account() ledger.SubAccount { return it.current }
func (it *rowIterator) Err() error                 { return it.err }
func (it *rowIterator) Close() error                { it.rows.Close(); return nil }
