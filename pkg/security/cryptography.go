package security

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

const privateKeyLength = 32

var (
	ErrInvalidPrivateKey = errors.New("invalid private key")
	ErrInvalidPublicKey  = errors.New("invalid public key")
	ErrInvalidSignature  = errors.New("invalid signature")
)

// CanonicalTWAP is the text that gets hashed for a TWAP value: the value
// truncated toward zero to an unsigned 64-bit integer, in base 10. NaN and
// negative values map to 0; values beyond the uint64 range saturate.
//
// Signing, verification and every outgoing attestation go through this
// function.
func CanonicalTWAP(value float64) string {
	switch {
	case math.IsNaN(value) || value <= 0:
		return "0"
	case value >= math.MaxUint64:
		return strconv.FormatUint(math.MaxUint64, 10)
	default:
		return strconv.FormatUint(uint64(value), 10)
	}
}

// DigestTWAP returns sha256(CanonicalTWAP(value)).
func DigestTWAP(value float64) [32]byte {
	return sha256.Sum256([]byte(CanonicalTWAP(value)))
}

// Signer holds the node's secp256k1 key. It is read-only after
// construction and safe for concurrent use.
type Signer struct {
	key       *secp256k1.PrivateKey
	publicKey string
}

// NewSigner loads a 32-byte hex private key, optionally 0x-prefixed. Zero
// and scalars not below the curve order are rejected.
func NewSigner(privateKeyHex string) (*Signer, error) {
	raw, err := hex.DecodeString(trimHexPrefix(privateKeyHex))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	if len(raw) != privateKeyLength {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidPrivateKey, privateKeyLength, len(raw))
	}

	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetByteSlice(raw); overflow {
		return nil, fmt.Errorf("%w: scalar exceeds curve order", ErrInvalidPrivateKey)
	}
	if scalar.IsZero() {
		return nil, fmt.Errorf("%w: zero scalar", ErrInvalidPrivateKey)
	}

	key := secp256k1.NewPrivateKey(&scalar)
	return &Signer{
		key:       key,
		publicKey: hex.EncodeToString(key.PubKey().SerializeCompressed()),
	}, nil
}

// PublicKey returns the hex-encoded compressed SEC1 public key.
func (s *Signer) PublicKey() string {
	return s.publicKey
}

// SignTWAP signs the digest of value and returns the DER signature as hex.
// Nonces follow RFC 6979, so equal inputs give equal signatures.
func (s *Signer) SignTWAP(value float64) (string, error) {
	digest := DigestTWAP(value)
	sig := ecdsa.Sign(s.key, digest[:])
	return hex.EncodeToString(sig.Serialize()), nil
}

// Verify reports whether sigHex is a valid signature by pubHex over the
// digest of value. Malformed input yields false.
func (s *Signer) Verify(value float64, sigHex, pubHex string) bool {
	return VerifyTWAP(value, sigHex, pubHex) == nil
}

// VerifyTWAP is Verify with the failure reason.
func VerifyTWAP(value float64, sigHex, pubHex string) error {
	pubRaw, err := hex.DecodeString(trimHexPrefix(pubHex))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	pub, err := secp256k1.ParsePubKey(pubRaw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}

	sigRaw, err := hex.DecodeString(trimHexPrefix(sigHex))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	sig, err := ecdsa.ParseDERSignature(sigRaw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	digest := DigestTWAP(value)
	if !sig.Verify(digest[:], pub) {
		return fmt.Errorf("%w: verification failed", ErrInvalidSignature)
	}
	return nil
}

func trimHexPrefix(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:]
	}
	return s
}
