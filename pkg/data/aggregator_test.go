package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func records(pairs ...string) []PriceRecord {
	out := make([]PriceRecord, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, PriceRecord{Timestamp: pairs[i], Price: pairs[i+1], PairID: "BTC/USD"})
	}
	return out
}

func TestParseRule(t *testing.T) {
	tests := []struct {
		in      string
		want    AggregationRule
		wantErr bool
	}{
		{"", RuleMean, false},
		{"mean", RuleMean, false},
		{" Time_Weighted ", RuleTimeWeighted, false},
		{"median", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRule(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnknownRule)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestAggregateMean(t *testing.T) {
	t.Run("Average", func(t *testing.T) {
		assert.Equal(t, 150.0, Aggregate(RuleMean, records("10", "100", "20", "200"), 30))
	})

	t.Run("UnparseablePriceCountsAsZero", func(t *testing.T) {
		assert.Equal(t, 100.0, Aggregate(RuleMean, records("10", "200", "20", "n/a"), 30))
	})

	t.Run("LargeFixedPoint", func(t *testing.T) {
		got := Aggregate(RuleMean, records("1", "5000000000000", "2", "5000000000002"), 3)
		assert.Equal(t, 5000000000001.0, got)
	})

	t.Run("Empty", func(t *testing.T) {
		assert.Equal(t, 0.0, Aggregate(RuleMean, nil, 0))
	})
}

func TestAggregateTimeWeighted(t *testing.T) {
	t.Run("WeightsByDuration", func(t *testing.T) {
		// 100 held for 30s, 200 held for 10s.
		got := Aggregate(RuleTimeWeighted, records("0", "100", "30", "200"), 40)
		assert.Equal(t, 125.0, got)
	})

	t.Run("ZeroSpanFallsBackToMean", func(t *testing.T) {
		got := Aggregate(RuleTimeWeighted, records("40", "100", "40", "200"), 40)
		assert.Equal(t, 150.0, got)
	})
}
