package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"twap_oracle/pkg/oracle"
	"twap_oracle/pkg/p2p/message"
)

type fakeAttestor struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeAttestor) AttestAndBroadcast(_ context.Context, pairID string, period uint64) (message.TwapMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%s/%d", pairID, period))
	if f.err != nil {
		return message.TwapMessage{}, f.err
	}
	return message.TwapMessage{PairID: pairID, TWAP: "1", Period: period}, nil
}

func (f *fakeAttestor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestScheduleTask(t *testing.T) {
	scheduler := NewScheduler(2, zaptest.NewLogger(t))
	require.NoError(t, scheduler.Start())
	defer scheduler.Stop()

	noop := func(context.Context) error { return nil }

	t.Run("ValidTask", func(t *testing.T) {
		require.NoError(t, scheduler.ScheduleTask(&Task{ID: "task-1", Schedule: "*/5 * * * *", ExecutionFn: noop}))

		task, err := scheduler.GetTask("task-1")
		require.NoError(t, err)
		assert.Equal(t, TaskStatusPending, task.Status)
		assert.False(t, task.NextRun.IsZero())
	})

	t.Run("InvalidSchedule", func(t *testing.T) {
		assert.Error(t, scheduler.ScheduleTask(&Task{ID: "task-2", Schedule: "invalid", ExecutionFn: noop}))
	})

	t.Run("MissingFunction", func(t *testing.T) {
		assert.Error(t, scheduler.ScheduleTask(&Task{ID: "task-3", Schedule: "@every 1m"}))
	})

	t.Run("DuplicateTask", func(t *testing.T) {
		require.NoError(t, scheduler.ScheduleTask(&Task{ID: "task-4", Schedule: "@every 1m", ExecutionFn: noop}))
		assert.Error(t, scheduler.ScheduleTask(&Task{ID: "task-4", Schedule: "@every 1m", ExecutionFn: noop}))
	})

	t.Run("Unschedule", func(t *testing.T) {
		require.NoError(t, scheduler.UnscheduleTask("task-4"))
		_, err := scheduler.GetTask("task-4")
		assert.Error(t, err)
		assert.Error(t, scheduler.UnscheduleTask("task-4"))
	})
}

func TestExecuteTaskRecordsOutcome(t *testing.T) {
	scheduler := NewScheduler(1, zaptest.NewLogger(t))
	failing := &Task{ID: "failing", Schedule: "@every 1h", ExecutionFn: func(context.Context) error {
		return errors.New("boom")
	}}
	require.NoError(t, scheduler.ScheduleTask(failing))

	scheduler.executeTask(context.Background(), failing)

	task, err := scheduler.GetTask("failing")
	require.NoError(t, err)
	assert.Equal(t, TaskStatusFailed, task.Status)
	assert.EqualError(t, task.Error, "boom")
	assert.False(t, task.LastRun.IsZero())
}

func TestPublishTask(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("Attests", func(t *testing.T) {
		att := &fakeAttestor{}
		task := PublishTask(att, "BTC/USD", 600, "@every 1m", logger)
		assert.Equal(t, "publish:BTC/USD", task.ID)
		require.NoError(t, task.ExecutionFn(context.Background()))
		assert.Equal(t, []string{"BTC/USD/600"}, att.Calls())
	})

	t.Run("NoDataIsNotFailure", func(t *testing.T) {
		att := &fakeAttestor{err: fmt.Errorf("%w for pair X", oracle.ErrNoData)}
		task := PublishTask(att, "X", 60, "@every 1m", logger)
		assert.NoError(t, task.ExecutionFn(context.Background()))
	})

	t.Run("StoreFailure", func(t *testing.T) {
		att := &fakeAttestor{err: errors.New("connection refused")}
		task := PublishTask(att, "BTC/USD", 60, "@every 1m", logger)
		assert.Error(t, task.ExecutionFn(context.Background()))
	})
}

func TestPublisherRuns(t *testing.T) {
	att := &fakeAttestor{}
	pub, err := NewPublisher(att, PublisherConfig{
		Schedule: "@every 1s",
		Pairs:    []string{"BTC/USD", "ETH/USD"},
		Period:   3600,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"publish:BTC/USD", "publish:ETH/USD"}, pub.ListTasks())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pub.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(att.Calls()) >= 2
	}, 5*time.Second, 50*time.Millisecond)
	assert.Contains(t, att.Calls(), "BTC/USD/3600")
	assert.Contains(t, att.Calls(), "ETH/USD/3600")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("publisher did not stop")
	}
}

func TestNewPublisherRejectsBadSchedule(t *testing.T) {
	_, err := NewPublisher(&fakeAttestor{}, PublisherConfig{Schedule: "every minute", Pairs: []string{"BTC/USD"}}, zaptest.NewLogger(t))
	assert.Error(t, err)
}
