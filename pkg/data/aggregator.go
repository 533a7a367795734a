package data

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// AggregationRule selects how a window of records becomes one price.
type AggregationRule string

const (
	// RuleMean is the arithmetic mean of the prices in the window. Attestations
	// already signed by deployed nodes use this rule.
	RuleMean AggregationRule = "mean"
	// RuleTimeWeighted weights each price by how long it stayed current: until
	// the next record, or until the end of the window for the last one.
	RuleTimeWeighted AggregationRule = "time_weighted"
)

// ParseRule resolves a configured rule name. Empty selects RuleMean.
func ParseRule(s string) (AggregationRule, error) {
	switch AggregationRule(strings.ToLower(strings.TrimSpace(s))) {
	case "", RuleMean:
		return RuleMean, nil
	case RuleTimeWeighted:
		return RuleTimeWeighted, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRule, s)
	}
}

// Aggregate reduces records, ordered by timestamp, to one price. windowEnd is
// the upper bound of the queried window in unix seconds. It returns 0 for an
// empty slice.
func Aggregate(rule AggregationRule, records []PriceRecord, windowEnd float64) float64 {
	if len(records) == 0 {
		return 0
	}
	if rule == RuleTimeWeighted {
		if v, ok := timeWeighted(records, decimal.NewFromFloat(windowEnd)); ok {
			return v
		}
	}
	return mean(records)
}

func mean(records []PriceRecord) float64 {
	sum := decimal.Zero
	for _, r := range records {
		sum = sum.Add(parseDecimal(r.Price))
	}
	return sum.Div(decimal.NewFromInt(int64(len(records)))).InexactFloat64()
}

// timeWeighted reports false when the records span no time at all.
func timeWeighted(records []PriceRecord, end decimal.Decimal) (float64, bool) {
	var (
		weighted = decimal.Zero
		total    = decimal.Zero
	)
	for i, r := range records {
		next := end
		if i+1 < len(records) {
			next = parseDecimal(records[i+1].Timestamp)
		}
		dt := next.Sub(parseDecimal(r.Timestamp))
		if dt.IsNegative() {
			dt = decimal.Zero
		}
		weighted = weighted.Add(parseDecimal(r.Price).Mul(dt))
		total = total.Add(dt)
	}
	if total.IsZero() {
		return 0, false
	}
	return weighted.Div(total).InexactFloat64(), true
}

// parseDecimal treats unparseable input as zero.
func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
