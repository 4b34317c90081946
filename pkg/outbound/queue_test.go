package outbound

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/astromechza/questionsync/pkg/channel"
)

type fakeTarget struct {
	ready atomic.Bool
	fail  error

	mu   sync.Mutex
	sent []string
}

func (f *fakeTarget) IsReady() bool {
	return f.ready.Load()
}

func (f *fakeTarget) Send(payload string) error {
	if !f.ready.Load() {
		return channel.ErrChannelNotOpen
	}
	if f.fail != nil {
		return f.fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeTarget) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func static(s string) func() string {
	return func() string { return s }
}

func TestQueue_sends_immediately_when_ready(t *testing.T) {
	target := new(fakeTarget)
	target.ready.Store(true)
	q := New(context.Background(), target, time.Hour)
	q.Submit(static("a"))
	assert.Equal(t, target.Sent(), []string{"a"})
	assert.Equal(t, q.Pending(), 0)
}

func TestQueue_flushes_in_submission_order_once_ready(t *testing.T) {
	target := new(fakeTarget)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := New(ctx, target, 5*time.Millisecond)

	q.Submit(static("p1"))
	q.Submit(static("p2"))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, len(target.Sent()), 0)
	assert.Equal(t, q.Pending(), 2)

	target.ready.Store(true)
	eventually(t, func() bool { return len(target.Sent()) == 2 })
	assert.Equal(t, target.Sent(), []string{"p1", "p2"})
	eventually(t, func() bool { return q.Pending() == 0 })
}

func TestQueue_later_submission_waits_behind_pending(t *testing.T) {
	target := new(fakeTarget)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := New(ctx, target, 5*time.Millisecond)

	q.Submit(static("first"))
	target.ready.Store(true)
	q.Submit(static("second"))
	eventually(t, func() bool { return len(target.Sent()) == 2 })
	assert.Equal(t, target.Sent(), []string{"first", "second"})
}

func TestQueue_builds_payload_at_send_time(t *testing.T) {
	target := new(fakeTarget)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := New(ctx, target, 5*time.Millisecond)

	var current atomic.Value
	current.Store("Q1")
	q.Submit(func() string { return current.Load().(string) })
	current.Store("Q2")
	target.ready.Store(true)

	eventually(t, func() bool { return len(target.Sent()) == 1 })
	assert.Equal(t, target.Sent(), []string{"Q2"})
}

func TestQueue_drops_on_send_failure(t *testing.T) {
	target := &fakeTarget{fail: errors.New("broken pipe")}
	target.ready.Store(true)
	q := New(context.Background(), target, time.Hour)
	q.Submit(static("lost"))
	assert.Equal(t, q.Pending(), 0)
	assert.Equal(t, len(target.Sent()), 0)
}

func TestQueue_stops_polling_with_context(t *testing.T) {
	target := new(fakeTarget)
	ctx, cancel := context.WithCancel(context.Background())
	q := New(ctx, target, 5*time.Millisecond)
	q.Submit(static("never"))
	cancel()
	time.Sleep(20 * time.Millisecond)
	target.ready.Store(true)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, len(target.Sent()), 0)
	assert.Equal(t, q.Pending(), 1)
}

// stallingTarget holds its first send until released and then reports the channel as not open.
type stallingTarget struct {
	fakeTarget
	started chan struct{}
	release chan struct{}
	stalled atomic.Bool
}

func (s *stallingTarget) Send(payload string) error {
	if s.stalled.CompareAndSwap(false, true) {
		close(s.started)
		<-s.release
		return channel.ErrChannelNotOpen
	}
	return s.fakeTarget.Send(payload)
}

func TestQueue_submission_does_not_overtake_send_in_flight(t *testing.T) {
	target := &stallingTarget{started: make(chan struct{}), release: make(chan struct{})}
	target.ready.Store(true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := New(ctx, target, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Submit(static("first"))
	}()
	<-target.started
	q.Submit(static("second"))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, len(target.Sent()), 0)

	close(target.release)
	<-done
	eventually(t, func() bool { return len(target.Sent()) == 2 })
	assert.Equal(t, target.Sent(), []string{"first", "second"})
}
