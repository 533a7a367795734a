package data

import (
	"errors"
	"fmt"
)

// DefaultKeyPrefix is prepended to the pair identifier to form the sorted-set key.
const DefaultKeyPrefix = "spot:"

// Error variables for consistent error handling
var (
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrEmptyPair        = errors.New("pair identifier cannot be empty")
	ErrUnknownRule      = errors.New("unknown aggregation rule")
)

// PriceRecord is one spot entry submitted on chain. The JSON layout is the
// persisted member format and must stay stable.
type PriceRecord struct {
	Timestamp   string `json:"timestamp"`
	Source      string `json:"source"`
	Publisher   string `json:"publisher"`
	Price       string `json:"price"`
	PairID      string `json:"pair_id"`
	Volume      string `json:"volume"`
	BlockNumber uint64 `json:"block_number"`
}

// Key returns the sorted-set key the record is stored under.
func (r PriceRecord) Key(prefix string) string {
	return prefix + r.PairID
}

// StoreError reports a failed time-series store operation.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
