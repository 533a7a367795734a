package data

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twap_oracle/pkg/stream"
)

func shortString(t *testing.T, s string) stream.FieldElement {
	t.Helper()
	f, err := stream.FeltFromShortString(s)
	require.NoError(t, err)
	return f
}

func spotEvent(t *testing.T) stream.Event {
	t.Helper()
	from := stream.FeltFromUint64(0x36031d)
	return stream.Event{
		FromAddress: &from,
		Data: []stream.FieldElement{
			stream.FeltFromUint64(1700000000),
			shortString(t, "binance"),
			shortString(t, "pub1"),
			stream.FeltFromUint64(50000_00000000),
			shortString(t, "BTC/USD"),
			stream.FeltFromUint64(1000),
		},
	}
}

func TestFromEvent(t *testing.T) {
	t.Run("SpotEntry", func(t *testing.T) {
		rec, ok := FromEvent(spotEvent(t), 42)
		require.True(t, ok)
		assert.Equal(t, &PriceRecord{
			Timestamp:   "1700000000",
			Source:      "binance",
			Publisher:   "pub1",
			Price:       "5000000000000",
			PairID:      "BTC/USD",
			Volume:      "1000",
			BlockNumber: 42,
		}, rec)
		assert.Equal(t, "spot:BTC/USD", rec.Key(DefaultKeyPrefix))
	})

	t.Run("MissingSender", func(t *testing.T) {
		ev := spotEvent(t)
		ev.FromAddress = nil
		_, ok := FromEvent(ev, 42)
		assert.False(t, ok)
	})

	t.Run("ExtraFieldsIgnored", func(t *testing.T) {
		ev := spotEvent(t)
		ev.Data = append(ev.Data, stream.FeltFromUint64(7))
		rec, ok := FromEvent(ev, 1)
		require.True(t, ok)
		assert.Equal(t, "BTC/USD", rec.PairID)
	})

	t.Run("NonASCIIBytesDropped", func(t *testing.T) {
		ev := spotEvent(t)
		ev.Data[1] = shortString(t, "bin\xffance")
		rec, ok := FromEvent(ev, 1)
		require.True(t, ok)
		assert.Equal(t, "binance", rec.Source)
	})

	t.Run("ZeroIdentifier", func(t *testing.T) {
		ev := spotEvent(t)
		ev.Data[4] = stream.FieldElement{}
		rec, ok := FromEvent(ev, 1)
		require.True(t, ok)
		assert.Equal(t, "", rec.PairID)
	})
}

func TestFromEventShortDataNeverDecodes(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	from := stream.FeltFromUint64(1)

	for i := 0; i < 500; i++ {
		n := rng.Intn(MinEventFields)
		ev := stream.Event{FromAddress: &from, Data: make([]stream.FieldElement, n)}
		for j := range ev.Data {
			ev.Data[j] = stream.FeltFromLimbs(rng.Uint64()>>4, rng.Uint64(), rng.Uint64(), rng.Uint64())
		}

		rec, ok := FromEvent(ev, rng.Uint64())
		require.False(t, ok, "decoded %d fields", n)
		require.Nil(t, rec)
	}
}

func TestFromEventDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	from := stream.FeltFromUint64(1)

	for i := 0; i < 200; i++ {
		ev := stream.Event{FromAddress: &from, Data: make([]stream.FieldElement, MinEventFields+rng.Intn(3))}
		for j := range ev.Data {
			ev.Data[j] = stream.FeltFromLimbs(rng.Uint64()>>4, rng.Uint64(), rng.Uint64(), rng.Uint64())
		}
		block := rng.Uint64()

		first, ok := FromEvent(ev, block)
		require.True(t, ok)
		second, ok := FromEvent(ev, block)
		require.True(t, ok)
		require.Equal(t, first, second)
	}
}
