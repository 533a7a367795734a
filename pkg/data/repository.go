package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"twap_oracle/pkg/metrics"
)

// Repository defines the interface for price record persistence
type Repository interface {
	StoreSpotEntry(ctx context.Context, rec *PriceRecord) error
	GetSpotEntries(ctx context.Context, pairID string, start, end *float64) ([]PriceRecord, error)
	ComputeTWAP(ctx context.Context, pairID string, period uint64) (float64, bool, error)
	CheckConnection(ctx context.Context) error
}

// RedisOptions configures a RedisRepository.
type RedisOptions struct {
	URL       string
	KeyPrefix string
	Rule      AggregationRule
}

// RedisRepository implements Repository on Redis sorted sets. Each pair has
// one set; members are record JSON, scores are record timestamps.
type RedisRepository struct {
	client  *redis.Client
	prefix  string
	rule    AggregationRule
	logger  *zap.Logger
	metrics *metrics.Store
	now     func() time.Time
}

var _ Repository = (*RedisRepository)(nil)

// NewRedisRepository creates a repository from a redis:// URL. No connection
// is made until the first command.
func NewRedisRepository(opts RedisOptions, logger *zap.Logger) (*RedisRepository, error) {
	ro, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return newRedisRepository(redis.NewClient(ro), opts, logger), nil
}

func newRedisRepository(client *redis.Client, opts RedisOptions, logger *zap.Logger) *RedisRepository {
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	rule := opts.Rule
	if rule == "" {
		rule = RuleMean
	}
	return &RedisRepository{
		client:  client,
		prefix:  prefix,
		rule:    rule,
		logger:  logger.Named("store"),
		metrics: metrics.NewStore(),
		now:     time.Now,
	}
}

// Close releases the connection pool
func (r *RedisRepository) Close() error {
	return r.client.Close()
}

// StoreSpotEntry adds rec to its pair's sorted set, scored by timestamp.
// Storing a byte-identical record twice leaves one member; the same event seen
// in a different block is stored again.
func (r *RedisRepository) StoreSpotEntry(ctx context.Context, rec *PriceRecord) (err error) {
	started := time.Now()
	defer func() { r.metrics.Observe("store", err, started) }()

	key := rec.Key(r.prefix)
	score, perr := decimal.NewFromString(rec.Timestamp)
	if perr != nil {
		return &StoreError{Op: "store", Key: key, Err: fmt.Errorf("%w %q", ErrInvalidTimestamp, rec.Timestamp)}
	}

	member, merr := json.Marshal(rec)
	if merr != nil {
		return &StoreError{Op: "store", Key: key, Err: fmt.Errorf("encoding record: %w", merr)}
	}

	if zerr := r.client.ZAdd(ctx, key, &redis.Z{
		Score:  score.InexactFloat64(),
		Member: string(member),
	}).Err(); zerr != nil {
		return &StoreError{Op: "store", Key: key, Err: zerr}
	}

	r.logger.Debug("Stored spot entry",
		zap.String("key", key),
		zap.String("timestamp", rec.Timestamp),
		zap.Uint64("block", rec.BlockNumber))
	return nil
}

// GetSpotEntries returns the pair's records ordered by timestamp. When both
// bounds are given only records with start <= timestamp <= end are returned,
// otherwise all of them.
func (r *RedisRepository) GetSpotEntries(ctx context.Context, pairID string, start, end *float64) (recs []PriceRecord, err error) {
	started := time.Now()
	defer func() { r.metrics.Observe("query", err, started) }()

	key := r.prefix + pairID
	if pairID == "" {
		return nil, &StoreError{Op: "query", Key: key, Err: ErrEmptyPair}
	}

	var members []string
	if start != nil && end != nil {
		members, err = r.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
			Min: formatScore(*start),
			Max: formatScore(*end),
		}).Result()
	} else {
		members, err = r.client.ZRange(ctx, key, 0, -1).Result()
	}
	if err != nil {
		return nil, &StoreError{Op: "query", Key: key, Err: err}
	}

	recs = make([]PriceRecord, 0, len(members))
	for _, m := range members {
		var rec PriceRecord
		if err := json.Unmarshal([]byte(m), &rec); err != nil {
			return nil, &StoreError{Op: "query", Key: key, Err: fmt.Errorf("decoding member: %w", err)}
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// ComputeTWAP aggregates the records in [now-period, now]. It reports false
// when the window is empty and fails with ErrEmptyPair when pairID is empty.
func (r *RedisRepository) ComputeTWAP(ctx context.Context, pairID string, period uint64) (float64, bool, error) {
	now := float64(r.now().Unix())
	start := now - float64(period)

	recs, err := r.GetSpotEntries(ctx, pairID, &start, &now)
	if err != nil {
		return 0, false, err
	}
	if len(recs) == 0 {
		return 0, false, nil
	}

	r.metrics.ObserveSamples(len(recs))
	return Aggregate(r.rule, recs, now), true, nil
}

// CheckConnection pings Redis.
func (r *RedisRepository) CheckConnection(ctx context.Context) (err error) {
	started := time.Now()
	defer func() { r.metrics.Observe("ping", err, started) }()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return &StoreError{Op: "ping", Err: err}
	}
	return nil
}

func formatScore(v float64) string {
	return decimal.NewFromFloat(v).String()
}
