// Package bus carries best-effort side-effect requests out of the tick loop.
// Delivery is fire-and-forget with a logged outcome: a full queue drops the
// request and a failed handler is never retried.
package bus

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"stockquest/internal/obs"
)

var (
	ErrQueueFull   = errors.New("recalc queue full")
	ErrQueueClosed = errors.New("recalc queue closed")
)

// RecalcRequest asks for one challenge's leaderboard to be recomputed.
type RecalcRequest struct {
	ChallengeID int64
	SessionID   int64
	Reason      string
	EnqueuedAt  time.Time
}

// Recalculator recomputes the ranking for a challenge.
type Recalculator interface {
	Recalculate(ctx context.Context, challengeID int64) error
}

// Queue is a bounded, non-blocking request queue.
type Queue struct {
	ch     chan RecalcRequest
	closed uint32
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan RecalcRequest, capacity)}
}

// TryPublish enqueues a request without blocking.
func (q *Queue) TryPublish(req RecalcRequest) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}
	select {
	case q.ch <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the queue from accepting new requests.
func (q *Queue) Close() {
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.ch)
	}
}

// Run consumes requests until the context is done or the queue is closed.
func (q *Queue) Run(ctx context.Context, handler func(RecalcRequest)) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-q.ch:
			if !ok {
				return
			}
			handler(req)
		}
	}
}

// Dispatcher drains the queue into a Recalculator. Failures are logged and
// swallowed; that non-retrying contract is the point of the type.
type Dispatcher struct {
	queue   *Queue
	recalc  Recalculator
	metrics *obs.Metrics
}

// NewDispatcher wires a queue to a recalculator.
func NewDispatcher(capacity int, recalc Recalculator, metrics *obs.Metrics) *Dispatcher {
	return &Dispatcher{
		queue:   NewQueue(capacity),
		recalc:  recalc,
		metrics: metrics,
	}
}

// Enqueue hands off a recompute request. A full or closed queue only logs;
// the caller never blocks and never fails.
func (d *Dispatcher) Enqueue(req RecalcRequest) {
	if req.EnqueuedAt.IsZero() {
		req.EnqueuedAt = time.Now()
	}
	if err := d.queue.TryPublish(req); err != nil {
		d.metrics.IncRecalcDropped()
		logs.Warnf("leaderboard recompute dropped for challenge %d (session %d), err: %+v",
			req.ChallengeID, req.SessionID, err)
	}
}

// Run drains requests until ctx is done or Close is called.
func (d *Dispatcher) Run(ctx context.Context) {
	d.queue.Run(ctx, func(req RecalcRequest) {
		if err := d.recalc.Recalculate(ctx, req.ChallengeID); err != nil {
			d.metrics.IncRecalcFailed()
			logs.Warnf("leaderboard recompute failed for challenge %d (session %d, reason %q), err: %+v",
				req.ChallengeID, req.SessionID, req.Reason, err)
			return
		}
		d.metrics.IncRecalcOK()
		logs.Infof("leaderboard recomputed for challenge %d after session %d (%s)",
			req.ChallengeID, req.SessionID, req.Reason)
	})
}

// Close stops intake. Requests already queued still drain through Run.
func (d *Dispatcher) Close() {
	d.queue.Close()
}
