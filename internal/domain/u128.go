package domain

import (
	"fmt"
	"math/big"
)

// U128 is an unsigned 128-bit integer, used for packed order ids and
// big-vector keys. Stored as two machine words to keep comparisons cheap.
type U128 struct {
	Hi uint64
	Lo uint64
}

// U128FromUint64 widens a uint64.
func U128FromUint64(v uint64) U128 {
	return U128{Lo: v}
}

// U128FromString parses a decimal string.
func U128FromString(s string) (U128, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 || n.BitLen() > 128 {
		return U128{}, fmt.Errorf("invalid u128 %q", s)
	}
	var v U128
	v.Lo = n.Uint64()
	v.Hi = new(big.Int).Rsh(n, 64).Uint64()
	return v, nil
}

// String renders the decimal form.
func (v U128) String() string {
	n := new(big.Int).SetUint64(v.Hi)
	n.Lsh(n, 64)
	n.Or(n, new(big.Int).SetUint64(v.Lo))
	return n.String()
}

// Cmp returns -1, 0 or 1 comparing v to w.
func (v U128) Cmp(w U128) int {
	switch {
	case v.Hi < w.Hi:
		return -1
	case v.Hi > w.Hi:
		return 1
	case v.Lo < w.Lo:
		return -1
	case v.Lo > w.Lo:
		return 1
	}
	return 0
}

// IsZero reports whether v == 0.
func (v U128) IsZero() bool { return v.Hi == 0 && v.Lo == 0 }

// AppendLE appends the 16-byte little-endian encoding.
func (v U128) AppendLE(b []byte) []byte {
	for i := 0; i < 8; i++ {
		b = append(b, byte(v.Lo>>(8*i)))
	}
	for i := 0; i < 8; i++ {
		b = append(b, byte(v.Hi>>(8*i)))
	}
	return b
}

// U128FromLE decodes 16 little-endian bytes.
func U128FromLE(b []byte) (U128, error) {
	if len(b) < 16 {
		return U128{}, fmt.Errorf("u128 needs 16 bytes, have %d", len(b))
	}
	var v U128
	for i := 7; i >= 0; i-- {
		v.Lo = v.Lo<<8 | uint64(b[i])
	}
	for i := 15; i >= 8; i-- {
		v.Hi = v.Hi<<8 | uint64(b[i])
	}
	return v, nil
}
