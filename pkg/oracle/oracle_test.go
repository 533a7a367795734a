package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"twap_oracle/pkg/data"
	"twap_oracle/pkg/p2p/message"
	"twap_oracle/pkg/security"
)

const testKey = "0x0c28fca386c7a227600b2fe50b7cae11ec86d3bf1fbe471be89827e19d72aa1d"

type failingSigner struct{}

func (failingSigner) SignTWAP(float64) (string, error) { return "", errors.New("hsm offline") }
func (failingSigner) PublicKey() string                { return "" }

func newTestService(t *testing.T, repo data.Repository, queueSize int) (*Service, chan message.TwapMessage, *security.Signer) {
	t.Helper()
	signer, err := security.NewSigner(testKey)
	require.NoError(t, err)
	queue := make(chan message.TwapMessage, queueSize)
	s := NewService(repo, signer, queue, zaptest.NewLogger(t))
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	return s, queue, signer
}

func TestAttest(t *testing.T) {
	t.Run("SignedTruncatedValue", func(t *testing.T) {
		repo := data.NewMockRepository()
		repo.SetTWAP("BTC/USD", 150.7)
		s, _, signer := newTestService(t, repo, 1)

		msg, err := s.Attest(context.Background(), "BTC/USD", 3600)
		require.NoError(t, err)

		assert.Equal(t, "BTC/USD", msg.PairID)
		assert.Equal(t, "150", msg.TWAP)
		assert.Equal(t, uint64(3600), msg.Period)
		assert.Equal(t, uint64(1700000000), msg.Timestamp)
		assert.Equal(t, signer.PublicKey(), msg.PublicKey)
		assert.NoError(t, security.NewValidator(0).Validate(msg))
	})

	t.Run("NoData", func(t *testing.T) {
		s, _, _ := newTestService(t, data.NewMockRepository(), 1)
		_, err := s.Attest(context.Background(), "DOGE/USD", 60)
		assert.ErrorIs(t, err, ErrNoData)
	})

	t.Run("StoreFailure", func(t *testing.T) {
		repo := data.NewMockRepository()
		repo.Err = errors.New("connection refused")
		s, _, _ := newTestService(t, repo, 1)

		_, err := s.Attest(context.Background(), "BTC/USD", 60)
		var storeErr *data.StoreError
		assert.ErrorAs(t, err, &storeErr)
		assert.NotErrorIs(t, err, ErrNoData)
	})

	t.Run("SignFailure", func(t *testing.T) {
		repo := data.NewMockRepository()
		repo.SetTWAP("BTC/USD", 1)
		s := NewService(repo, failingSigner{}, make(chan message.TwapMessage, 1), zaptest.NewLogger(t))

		_, err := s.Attest(context.Background(), "BTC/USD", 60)
		assert.ErrorIs(t, err, ErrSigning)
	})
}

func TestBroadcast(t *testing.T) {
	repo := data.NewMockRepository()
	repo.SetTWAP("BTC/USD", 100)
	s, queue, _ := newTestService(t, repo, 1)

	msg, err := s.AttestAndBroadcast(context.Background(), "BTC/USD", 60)
	require.NoError(t, err)
	assert.Equal(t, msg, <-queue)

	assert.True(t, s.Broadcast(msg))
	assert.False(t, s.Broadcast(msg), "full queue must drop")
}

func TestCheckConnection(t *testing.T) {
	repo := data.NewMockRepository()
	s, _, _ := newTestService(t, repo, 1)
	assert.True(t, s.CheckConnection(context.Background()))

	repo.PingErr = errors.New("down")
	assert.False(t, s.CheckConnection(context.Background()))
}
