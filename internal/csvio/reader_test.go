package csvio

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderParsesAllRowKinds(t *testing.T) {
	input := "type, client, tx, amount\n" +
		"deposit, 1, 1, 1.0\n" +
		"deposit, 2, 2, 2.0\n" +
		"deposit, 1, 3, 2.0\n" +
		"withdrawal, 1, 4, 1.5\n" +
		"dispute, 1, 1,\n" +
		"resolve, 1, 1,\n" +
		"chargeback, 1, 1,\n"

	r, err := NewReader(strings.NewReader(input))
	require.NoError(t, err)

	var rows []Row
	for {
		row, err := r.Read()
		if err != nil {
			break
		}
		rows = append(rows, row)
	}
	require.Len(t, rows, 7)

	assert.Equal(t, OpDeposit, rows[0].Type)
	assert.Equal(t, uint16(1), uint16(rows[0].Client))
	require.NotNil(t, rows[0].Amount)
	assert.Equal(t, "10000", rows[0].Amount.String())

	assert.Equal(t, OpDispute, rows[4].Type)
	assert.Nil(t, rows[4].Amount)
}

func TestReaderRejectsMissingHeaderColumn(t *testing.T) {
	_, err := NewReader(strings.NewReader("type, tx\ndeposit, 1\n"))
	assert.Error(t, err)
}

func TestReaderRejectsUnknownType(t *testing.T) {
	r, err := NewReader(strings.NewReader("type, client, tx, amount\nfoo, 1, 1, 1.0\n"))
	require.NoError(t, err)
	_, err = r.Read()
	assert.Error(t, err)
}

func TestReaderRejectsDepositMissingAmount(t *testing.T) {
	r, err := NewReader(strings.NewReader("type, client, tx, amount\ndeposit, 1, 1,\n"))
	require.NoError(t, err)
	_, err = r.Read()
	assert.Error(t, err)
}
