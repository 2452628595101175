package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransactionRejectsEmpty(t *testing.T) {
	_, err := NewTransaction(nil, nil, "ref", 1)
	assert.ErrorIs(t, err, ErrInvalidFrom)
}

func TestNewTransactionRejectsImbalanced(t *testing.T) {
	inputs := []Input{{ID: UTXOID{Pos: 0}, Amount: NewAmount(10)}}
	outputs := []Output{{SubAccount: SubAccount{Client: 1, Type: Main}, Amount: NewAmount(9)}}
	_, err := NewTransaction(inputs, outputs, "ref", 1)
	assert.ErrorIs(t, err, ErrImbalanced)
}

func TestNewTransactionDeposit(t *testing.T) {
	outputs := []Output{{SubAccount: SubAccount{Client: 1, Type: Main}, Amount: NewAmount(100)}}
	tx, err := NewTransaction(nil, outputs, "deposit-1", 1000)
	require.NoError(t, err)
	assert.NotEqual(t, TxHash{}, tx.Hash)
}

func TestTransactionHashDependsOnReferenceAndTimestamp(t *testing.T) {
	outputs := []Output{{SubAccount: SubAccount{Client: 1, Type: Main}, Amount: NewAmount(100)}}

	tx1, err := NewTransaction(nil, outputs, "ref-a", 1000)
	require.NoError(t, err)
	tx2, err := NewTransaction(nil, outputs, "ref-b", 1000)
	require.NoError(t, err)
	tx3, err := NewTransaction(nil, outputs, "ref-a", 2000)
	require.NoError(t, err)

	assert.NotEqual(t, tx1.Hash, tx2.Hash)
	assert.NotEqual(t, tx1.Hash, tx3.Hash)
}

func TestTransactionHashDeterministic(t *testing.T) {
	outputs := []Output{{SubAccount: SubAccount{Client: 1, Type: Main}, Amount: NewAmount(100)}}
	tx1, err := NewTransaction(nil, outputs, "ref", 1000)
	require.NoError(t, err)
	tx2, err := NewTransaction(nil, outputs, "ref", 1000)
	require.NoError(t, err)
	assert.Equal(t, tx1.Hash, tx2.Hash)
}

func TestUTXOIDBytes(t *testing.T) {
	id := UTXOID{Pos: 7}
	id.TxHash[0] = 0xFF
	b := id.Bytes()
	assert.Equal(t, byte(0xFF), b[0])
	assert.Equal(t, byte(7), b[32])
}
