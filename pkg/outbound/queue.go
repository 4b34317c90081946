package outbound

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/astromechza/questionsync/pkg/channel"
)

// DefaultRetryInterval is how long a submission waits before checking readiness again.
const DefaultRetryInterval = time.Second

// Target is the part of a channel the queue needs.
type Target interface {
	IsReady() bool
	Send(payload string) error
}

// Queue holds outbound messages until the target is ready and then sends them in submission order. Readiness is
// polled on a fixed interval with no backoff and no attempt limit; a target that never opens keeps the poll
// running until the queue's context ends.
//
// Payloads are built at send time, so a builder that reads shared context sends the latest value.
type Queue struct {
	ctx      context.Context
	target   Target
	interval time.Duration

	mu      sync.Mutex
	pending []func() string
	polling bool
	// sending is set while Submit sends directly, so nothing overtakes a send that may come back
	sending bool
}

func New(ctx context.Context, target Target, interval time.Duration) *Queue {
	if interval <= 0 {
		interval = DefaultRetryInterval
	}
	return &Queue{ctx: ctx, target: target, interval: interval}
}

// Submit sends the payload produced by build now if the target is ready and nothing is waiting ahead of it,
// otherwise queues it. Sends are fire-and-forget: failures other than the channel not being open are logged and
// the payload is dropped.
func (q *Queue) Submit(build func() string) {
	q.mu.Lock()
	if len(q.pending) == 0 && !q.polling && !q.sending && q.target.IsReady() {
		q.sending = true
		q.mu.Unlock()
		err := q.send(build)
		q.mu.Lock()
		q.sending = false
		q.mu.Unlock()
		if errors.Is(err, channel.ErrChannelNotOpen) {
			q.enqueue(build, true)
		}
		return
	}
	q.mu.Unlock()
	q.enqueue(build, false)
}

// Pending reports how many submissions are waiting for the target.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) enqueue(build func() string, front bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if front {
		q.pending = append([]func() string{build}, q.pending...)
	} else {
		q.pending = append(q.pending, build)
	}
	if !q.polling {
		q.polling = true
		go q.poll()
	}
}

func (q *Queue) send(build func() string) error {
	payload := build()
	err := q.target.Send(payload)
	switch {
	case err == nil:
		slog.Debug("sent outbound message", "bytes", len(payload))
	case errors.Is(err, channel.ErrChannelNotOpen):
	default:
		slog.Error("failed to send outbound message, dropping it", "err", err)
	}
	return err
}

func (q *Queue) poll() {
	t := time.NewTicker(q.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if !q.target.IsReady() {
				slog.Debug("channel not ready, retrying later", "pending", q.Pending(), "interval", q.interval)
				continue
			}
			if q.flush() {
				return
			}
		case <-q.ctx.Done():
			q.mu.Lock()
			q.polling = false
			slog.Info("stopping outbound queue", "abandoned", len(q.pending))
			q.mu.Unlock()
			return
		}
	}
}

// flush sends everything queued and reports whether the queue drained, in which case polling has stopped.
func (q *Queue) flush() bool {
	for {
		q.mu.Lock()
		if q.sending {
			q.mu.Unlock()
			return false
		}
		if len(q.pending) == 0 {
			q.polling = false
			q.mu.Unlock()
			return true
		}
		build := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		if err := q.send(build); errors.Is(err, channel.ErrChannelNotOpen) {
			q.mu.Lock()
			q.pending = append([]func() string{build}, q.pending...)
			q.mu.Unlock()
			return false
		}
	}
}
