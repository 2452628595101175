package ledger

import "encoding/binary"

// SubAccountType discriminates the three buckets of funds a client can
// hold. Ordered Main < Disputed < Chargeback, matching the byte values
// used in the wire encoding and account enumeration order.
type SubAccountType uint8

const (
	Main SubAccountType = iota
	Disputed
	Chargeback
)

func (t SubAccountType) String() string {
	switch t {
	case Main:
		return "main"
	case Disputed:
		return "disputed"
	case Chargeback:
		return "chargeback"
	default:
		return "unknown"
	}
}

// ClientID is the caller-supplied client identifier, an unsigned 16-bit
// integer per the CSV input contract.
type ClientID uint16

// SubAccount is a composite key pairing a client with one of its three
// sub-account buckets. Ordered lexicographically: client id first, then
// type byte, which lets storage enumerate a client's sub-accounts
// contiguously.
type SubAccount struct {
	Client ClientID
	Type   SubAccountType
}

// Less implements the sort order storage.GetAccounts must return:
// ascending by client id, then by type.
func (s SubAccount) Less(o SubAccount) bool {
	if s.Client != o.Client {
		return s.Client < o.Client
	}
	return s.Type < o.Type
}

// Bytes packs the sub-account into its 3-byte little-endian wire form: a
// 16-bit client id followed by the 1-byte type discriminant.
func (s SubAccount) Bytes() [3]byte {
	var out [3]byte
	binary.LittleEndian.PutUint16(out[0:2], uint16(s.Client))
	out[2] = byte(s.Type)
	return out
}
