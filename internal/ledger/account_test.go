package ledger

import "testing"

func TestSubAccountOrdering(t *testing.T) {
	a := SubAccount{Client: 1, Type: Main}
	b := SubAccount{Client: 1, Type: Disputed}
	c := SubAccount{Client: 2, Type: Main}

	if !a.Less(b) {
		t.Errorf("expected %+v < %+v", a, b)
	}
	if !b.Less(c) {
		t.Errorf("expected %+v < %+v", b, c)
	}
	if c.Less(a) {
		t.Errorf("did not expect %+v < %+v", c, a)
	}
}

func TestSubAccountBytes(t *testing.T) {
	sa := SubAccount{Client: 0x0102, Type: Disputed}
	b := sa.Bytes()
	if b[0] != 0x02 || b[1] != 0x01 || b[2] != byte(Disputed) {
		t.Fatalf("unexpected encoding: %v", b)
	}
}
