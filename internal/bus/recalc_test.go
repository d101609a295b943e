package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockquest/internal/obs"
)

type fakeRecalc struct {
	mu    sync.Mutex
	calls []int64
	err   error
}

func (f *fakeRecalc) Recalculate(_ context.Context, challengeID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, challengeID)
	return f.err
}

func (f *fakeRecalc) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestQueueTryPublishFull(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.TryPublish(RecalcRequest{ChallengeID: 1}))
	assert.ErrorIs(t, q.TryPublish(RecalcRequest{ChallengeID: 2}), ErrQueueFull)
}

func TestQueueTryPublishClosed(t *testing.T) {
	q := NewQueue(4)
	q.Close()
	assert.ErrorIs(t, q.TryPublish(RecalcRequest{ChallengeID: 1}), ErrQueueClosed)
	// Double close must not panic.
	q.Close()
}

func TestDispatcherDeliversAndDrains(t *testing.T) {
	recalc := &fakeRecalc{}
	metrics := obs.NewMetrics()
	d := NewDispatcher(8, recalc, metrics)

	d.Enqueue(RecalcRequest{ChallengeID: 10, SessionID: 1, Reason: "simulation complete"})
	d.Enqueue(RecalcRequest{ChallengeID: 11, SessionID: 2, Reason: "simulation complete"})
	d.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not drain")
	}

	assert.Equal(t, 2, recalc.callCount())
	assert.Equal(t, uint64(2), metrics.Snapshot().RecalcOK)
}

func TestDispatcherSwallowsFailures(t *testing.T) {
	recalc := &fakeRecalc{err: errors.New("leaderboard table locked")}
	metrics := obs.NewMetrics()
	d := NewDispatcher(8, recalc, metrics)

	d.Enqueue(RecalcRequest{ChallengeID: 10, SessionID: 1, Reason: "simulation complete"})
	d.Close()
	d.Run(context.Background())

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.RecalcFailed)
	assert.Equal(t, uint64(0), snap.RecalcOK)
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	recalc := &fakeRecalc{}
	metrics := obs.NewMetrics()
	d := NewDispatcher(1, recalc, metrics)

	// Nothing drains the queue, so the second request is dropped, not blocked.
	d.Enqueue(RecalcRequest{ChallengeID: 10})
	d.Enqueue(RecalcRequest{ChallengeID: 11})

	assert.Equal(t, uint64(1), metrics.Snapshot().RecalcDropped)
}
