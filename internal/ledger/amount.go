package ledger

import (
	"math"
	"math/big"
)

// Amount is a signed fixed-point quantity in the ledger's smallest
// denomination, backed by a 128-bit integer so that accumulating many
// client-supplied float amounts cannot silently wrap the way a 64-bit
// accumulator could.
type Amount struct {
	v *big.Int
}

var (
	minAmount = new(big.Int).Lsh(big.NewInt(-1), 127)
	maxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
)

// NewAmount builds an Amount from an integer minor-unit value. Cannot fail.
func NewAmount(v int64) Amount {
	return Amount{v: big.NewInt(v)}
}

// AmountFromString parses the decimal integer representation produced
// by Amount.String, used by storage backends that persist amounts as
// text rather than raw bytes.
func AmountFromString(s string) (Amount, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, ErrInternal
	}
	return Amount{v: v}, nil
}

// ZeroAmount is the additive identity.
func ZeroAmount() Amount { return NewAmount(0) }

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool { return a.v.Sign() == 0 }

// Sign returns -1, 0 or 1.
func (a Amount) Sign() int { return a.v.Sign() }

// Cmp compares a to b like big.Int.Cmp.
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(b.v) }

// Add returns a+b, or a Math error on overflow of the 128-bit signed range.
func (a Amount) Add(b Amount) (Amount, error) {
	sum := new(big.Int).Add(a.v, b.v)
	if sum.Cmp(minAmount) < 0 || sum.Cmp(maxAmount) > 0 {
		return Amount{}, ErrMath
	}
	return Amount{v: sum}, nil
}

// Sub returns a-b, or a Math error on overflow of the 128-bit signed range.
func (a Amount) Sub(b Amount) (Amount, error) {
	diff := new(big.Int).Sub(a.v, b.v)
	if diff.Cmp(minAmount) < 0 || diff.Cmp(maxAmount) > 0 {
		return Amount{}, ErrMath
	}
	return Amount{v: diff}, nil
}

// Bytes serialises the amount as 16-byte little-endian two's complement,
// the encoding used in transaction hashing.
func (a Amount) Bytes() [16]byte {
	var out [16]byte
	v := a.v
	if v.Sign() >= 0 {
		b := v.Bytes() // big-endian, minimal length
		for i := 0; i < len(b) && i < 16; i++ {
			out[i] = b[len(b)-1-i]
		}
		return out
	}
	// two's complement of a negative value within 128 bits
	mod := new(big.Int).Lsh(big.NewInt(1), 128)
	twos := new(big.Int).Add(v, mod)
	b := twos.Bytes()
	for i := 0; i < len(b) && i < 16; i++ {
		out[i] = b[len(b)-1-i]
	}
	return out
}

var pow10 = func() [13]*big.Int {
	var t [13]*big.Int
	for i := range t {
		t[i] = new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(i)), nil)
	}
	return t
}()

// AmountFromFloat multiplies value by 10^precision and truncates toward
// zero (never rounds), so the encoded amount never exceeds the nominal
// value of the input. Rejects NaN, Inf, and results outside the 128-bit
// signed range.
func AmountFromFloat(value float64, precision int) (Amount, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Amount{}, ErrMath
	}
	if value == 0 {
		return ZeroAmount(), nil // -0.0 maps to integer 0
	}
	if precision < 0 || precision > 12 {
		return Amount{}, ErrMath
	}

	scale := pow10[precision]

	// Use big.Float for the multiply to retain precision beyond what a
	// naive float64*float64 would, then truncate toward zero.
	bf := new(big.Float).SetPrec(200).SetFloat64(value)
	bf.Mul(bf, new(big.Float).SetPrec(200).SetInt(scale))

	i, _ := bf.Int(nil) // Int truncates toward zero
	if i.Cmp(minAmount) < 0 || i.Cmp(maxAmount) > 0 {
		return Amount{}, ErrMath
	}
	return Amount{v: i}, nil
}

// Float converts the amount back to a float64 divided by 10^precision.
// May lose precision for large magnitudes. Rejects a negative or
// out-of-table precision.
func (a Amount) Float(precision int) (float64, error) {
	if precision < 0 || precision > 12 {
		return 0, ErrMath
	}
	scale := pow10[precision]
	num := new(big.Float).SetPrec(200).SetInt(a.v)
	den := new(big.Float).SetPrec(200).SetInt(scale)
	q := new(big.Float).Quo(num, den)
	f, _ := q.Float64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrMath
	}
	return f, nil
}

// String renders the underlying integer value, mainly for logging.
func (a Amount) String() string {
	if a.v == nil {
		return "0"
	}
	return a.v.String()
}

func amountFromBytes(b [16]byte) Amount {
	be := make([]byte, 16)
	for i := range b {
		be[15-i] = b[i]
	}
	v := new(big.Int).SetBytes(be)
	// if the high bit is set, this is a negative two's-complement value
	if be[0]&0x80 != 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), 128)
		v.Sub(v, mod)
	}
	return Amount{v: v}
}
