package data

import (
	"context"
	"sync"
)

// MockRepository is an in-memory Repository for tests of dependent packages.
// TWAP results are preset per pair; Err, when set, fails every call.
type MockRepository struct {
	mu      sync.Mutex
	records map[string][]PriceRecord
	twaps   map[string]float64

	Err     error
	PingErr error
}

// Ensure MockRepository implements the Repository interface
var _ Repository = (*MockRepository)(nil)

func NewMockRepository() *MockRepository {
	return &MockRepository{
		records: make(map[string][]PriceRecord),
		twaps:   make(map[string]float64),
	}
}

// SetTWAP fixes the value ComputeTWAP returns for pairID.
func (m *MockRepository) SetTWAP(pairID string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.twaps[pairID] = v
}

// Records returns what was stored for pairID.
func (m *MockRepository) Records(pairID string) []PriceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PriceRecord(nil), m.records[pairID]...)
}

func (m *MockRepository) StoreSpotEntry(ctx context.Context, rec *PriceRecord) error {
	if m.Err != nil {
		return &StoreError{Op: "store", Key: rec.Key(DefaultKeyPrefix), Err: m.Err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.PairID] = append(m.records[rec.PairID], *rec)
	return nil
}

func (m *MockRepository) GetSpotEntries(ctx context.Context, pairID string, start, end *float64) ([]PriceRecord, error) {
	if m.Err != nil {
		return nil, &StoreError{Op: "query", Key: DefaultKeyPrefix + pairID, Err: m.Err}
	}
	return m.Records(pairID), nil
}

func (m *MockRepository) ComputeTWAP(ctx context.Context, pairID string, period uint64) (float64, bool, error) {
	if m.Err != nil {
		return 0, false, &StoreError{Op: "query", Key: DefaultKeyPrefix + pairID, Err: m.Err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.twaps[pairID]
	return v, ok, nil
}

func (m *MockRepository) CheckConnection(ctx context.Context) error {
	if m.PingErr != nil {
		return &StoreError{Op: "ping", Err: m.PingErr}
	}
	return nil
}
