// Package message defines the attestation payload exchanged on the gossip topic.
package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var ErrMalformed = errors.New("malformed attestation")

// TwapMessage is a signed TWAP attestation. Field names are the wire format
// shared by all nodes and must not change.
type TwapMessage struct {
	PairID    string `json:"pair_id"`
	TWAP      string `json:"twap"`
	Period    uint64 `json:"period"`
	Signature string `json:"signature"`
	Timestamp uint64 `json:"timestamp"`
	PublicKey string `json:"public_key"`
}

// Marshal serializes the message
func (m *TwapMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal decodes a gossip payload.
func Unmarshal(payload []byte) (TwapMessage, error) {
	var m TwapMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return TwapMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}

// Value parses the twap field.
func (m *TwapMessage) Value() (float64, error) {
	v, err := strconv.ParseFloat(m.TWAP, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: twap %q: %v", ErrMalformed, m.TWAP, err)
	}
	return v, nil
}
