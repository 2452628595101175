package ledger

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountFromFloatTruncatesTowardZero(t *testing.T) {
	a, err := AmountFromFloat(1.999, 0)
	require.NoError(t, err)
	assert.Equal(t, "1", a.String())

	b, err := AmountFromFloat(-1.999, 0)
	require.NoError(t, err)
	assert.Equal(t, "-1", b.String())
}

func TestAmountFromFloatPrecision(t *testing.T) {
	a, err := AmountFromFloat(12.3456, 4)
	require.NoError(t, err)
	assert.Equal(t, "123456", a.String())
}

func TestAmountFromFloatNegativeZero(t *testing.T) {
	a, err := AmountFromFloat(math.Copysign(0, -1), 4)
	require.NoError(t, err)
	assert.True(t, a.IsZero())
}

func TestAmountFromFloatRejectsNonFinite(t *testing.T) {
	_, err := AmountFromFloat(math.NaN(), 4)
	assert.ErrorIs(t, err, ErrMath)

	_, err = AmountFromFloat(math.Inf(1), 4)
	assert.ErrorIs(t, err, ErrMath)
}

func TestAmountRoundTrip(t *testing.T) {
	a, err := AmountFromFloat(42.5, 4)
	require.NoError(t, err)

	f, err := a.Float(4)
	require.NoError(t, err)
	assert.InDelta(t, 42.5, f, 1e-9)
}

func TestAmountAddSubOverflow(t *testing.T) {
	max, err := AmountFromString("170141183460469231731687303715884105727")
	require.NoError(t, err)
	one := NewAmount(1)

	_, err = max.Add(one)
	assert.ErrorIs(t, err, ErrMath)
}

func TestAmountBytesRoundTrip(t *testing.T) {
	a := NewAmount(-12345)
	b := a.Bytes()
	back := amountFromBytes(b)
	assert.Equal(t, 0, a.Cmp(back))
}
