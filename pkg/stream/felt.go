package stream

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// maxFeltBits is the width of a Starknet field element.
const maxFeltBits = 252

// FieldElement is a Starknet felt stored as 32 big-endian bytes.
type FieldElement [32]byte

// FeltFromHex parses a hex felt with or without the 0x prefix.
// Leading zeros are accepted.
func FeltFromHex(s string) (FieldElement, error) {
	var f FieldElement

	clean := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if clean == "" {
		return f, fmt.Errorf("empty field element")
	}
	clean = strings.TrimLeft(clean, "0")
	if clean == "" {
		return f, nil
	}

	v, err := uint256.FromHex("0x" + clean)
	if err != nil {
		return f, fmt.Errorf("parsing field element %q: %w", s, err)
	}
	if v.BitLen() > maxFeltBits {
		return f, fmt.Errorf("field element %q exceeds %d bits", s, maxFeltBits)
	}

	return FeltFromUint256(v), nil
}

// FeltFromUint256 packs a 256-bit integer into a felt.
func FeltFromUint256(v *uint256.Int) FieldElement {
	return FieldElement(v.Bytes32())
}

// FeltFromUint64 is a convenience constructor used for small values.
func FeltFromUint64(v uint64) FieldElement {
	return FeltFromUint256(uint256.NewInt(v))
}

// FeltFromShortString encodes up to 31 ASCII bytes the way Cairo short
// strings are encoded.
func FeltFromShortString(s string) (FieldElement, error) {
	if len(s) > 31 {
		return FieldElement{}, fmt.Errorf("short string %q longer than 31 bytes", s)
	}
	return FeltFromUint256(new(uint256.Int).SetBytes([]byte(s))), nil
}

// FeltFromLimbs rebuilds a felt from the four fixed64 words used on the
// wire, most significant first.
func FeltFromLimbs(loLo, loHi, hiLo, hiHi uint64) FieldElement {
	var f FieldElement
	binary.BigEndian.PutUint64(f[0:8], loLo)
	binary.BigEndian.PutUint64(f[8:16], loHi)
	binary.BigEndian.PutUint64(f[16:24], hiLo)
	binary.BigEndian.PutUint64(f[24:32], hiHi)
	return f
}

// Limbs splits the felt into the four fixed64 wire words.
func (f FieldElement) Limbs() (loLo, loHi, hiLo, hiHi uint64) {
	return binary.BigEndian.Uint64(f[0:8]),
		binary.BigEndian.Uint64(f[8:16]),
		binary.BigEndian.Uint64(f[16:24]),
		binary.BigEndian.Uint64(f[24:32])
}

// Uint256 returns the felt as an integer.
func (f FieldElement) Uint256() *uint256.Int {
	return new(uint256.Int).SetBytes32(f[:])
}

// Decimal renders the felt as a base-10 string.
func (f FieldElement) Decimal() string {
	return f.Uint256().Dec()
}

// Bytes returns the minimal big-endian encoding. Zero encodes as an empty slice.
func (f FieldElement) Bytes() []byte {
	return f.Uint256().Bytes()
}

// Hex renders the felt as 0x-prefixed hex without leading zeros.
func (f FieldElement) Hex() string {
	return f.Uint256().Hex()
}

func (f FieldElement) String() string {
	return f.Hex()
}
