package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireFieldNames(t *testing.T) {
	m := TwapMessage{
		PairID:    "BTC/USD",
		TWAP:      "150",
		Period:    3600,
		Signature: "3045",
		Timestamp: 1700000000,
		PublicKey: "02ab",
	}
	b, err := m.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{"pair_id":"BTC/USD","twap":"150","period":3600,
		"signature":"3045","timestamp":1700000000,"public_key":"02ab"}`, string(b))
}

func TestUnmarshal(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		m, err := Unmarshal([]byte(`{"pair_id":"ETH/USD","twap":"2500","period":60,"signature":"aa","timestamp":1,"public_key":"bb"}`))
		require.NoError(t, err)
		assert.Equal(t, "ETH/USD", m.PairID)

		v, err := m.Value()
		require.NoError(t, err)
		assert.Equal(t, 2500.0, v)
	})

	t.Run("NotJSON", func(t *testing.T) {
		_, err := Unmarshal([]byte("hello"))
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("BadTWAP", func(t *testing.T) {
		m := TwapMessage{TWAP: "lots"}
		_, err := m.Value()
		assert.ErrorIs(t, err, ErrMalformed)
	})
}
