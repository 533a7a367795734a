package security

import (
	"fmt"

	"twap_oracle/pkg/p2p/message"
)

// Validator checks attestations received from peers.
type Validator struct {
	maxPeriod uint64
}

// NewValidator creates a Validator. maxPeriod bounds the accepted period;
// zero means unbounded.
func NewValidator(maxPeriod uint64) *Validator {
	return &Validator{maxPeriod: maxPeriod}
}

// Validate re-derives the digest from the attestation's twap and checks the
// embedded signature against the embedded public key.
func (v *Validator) Validate(msg message.TwapMessage) error {
	if msg.PairID == "" {
		return fmt.Errorf("%w: empty pair_id", message.ErrMalformed)
	}
	if v.maxPeriod > 0 && msg.Period > v.maxPeriod {
		return fmt.Errorf("%w: period %d exceeds %d", message.ErrMalformed, msg.Period, v.maxPeriod)
	}

	value, err := msg.Value()
	if err != nil {
		return err
	}
	return VerifyTWAP(value, msg.Signature, msg.PublicKey)
}
