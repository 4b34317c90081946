package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/astromechza/questionsync/pkg/channel"
	"github.com/astromechza/questionsync/pkg/normalize"
	"github.com/astromechza/questionsync/pkg/notice"
	"github.com/astromechza/questionsync/pkg/outbound"
	"github.com/astromechza/questionsync/pkg/relevance"
	"github.com/astromechza/questionsync/pkg/state"
)

type Options struct {
	Mode          channel.Mode
	URL           string
	Header        http.Header
	RetryInterval time.Duration
	Notifier      notice.Notifier
	HTTPClient    *http.Client
	Dialer        *websocket.Dialer
}

// Stats counts what happened to push messages since the engine was created.
type Stats struct {
	Received    int64
	Applied     int64
	Dropped     int64
	ParseErrors int64
	Notices     int64
}

// Engine connects the push channel to the store: raw messages are normalized, filtered for relevance against the
// current tree and dispatched. It also tells the server which thread is open, through the outbound queue, when
// the channel can carry client messages.
type Engine struct {
	store    *state.Store
	opts     Options
	notifier notice.Notifier

	mu           sync.Mutex
	ch           channel.Channel
	queue        *outbound.Queue
	activeThread string

	received, applied, dropped, parseErrors, notices atomic.Int64
}

func New(store *state.Store, opts Options) *Engine {
	if opts.Notifier == nil {
		opts.Notifier = notice.Log{}
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = outbound.DefaultRetryInterval
	}
	return &Engine{store: store, opts: opts, notifier: opts.Notifier}
}

func (e *Engine) Store() *state.Store {
	return e.store
}

// Start opens the push channel. It returns once the connection attempt has started; use Done to learn when the
// channel has closed. There is no automatic reconnect, see RunWithReconnect.
func (e *Engine) Start(ctx context.Context) error {
	ch, err := channel.Connect(ctx, channel.Options{
		Mode:       e.opts.Mode,
		URL:        e.opts.URL,
		Header:     e.opts.Header,
		OnMessage:  e.HandleMessage,
		HTTPClient: e.opts.HTTPClient,
		Dialer:     e.opts.Dialer,
	})
	if err != nil {
		return fmt.Errorf("failed to connect push channel: %w", err)
	}

	e.mu.Lock()
	if e.queue == nil {
		e.queue = outbound.New(ctx, e, e.opts.RetryInterval)
	}
	e.ch = ch
	resubmit := e.activeThread != ""
	e.mu.Unlock()

	slog.Info("started push channel", "mode", e.opts.Mode, "url", e.opts.URL)
	if resubmit {
		e.submitActiveThread()
	}
	return nil
}

// HandleMessage runs one raw push message through the pipeline. It never fails: bad messages are logged and
// dropped so later ones are still processed.
func (e *Engine) HandleMessage(raw string) {
	e.received.Add(1)
	update, err := normalize.Normalize(raw)
	if err != nil {
		e.parseErrors.Add(1)
		slog.Warn("dropping malformed push message", "err", err, "bytes", len(raw))
		return
	}

	switch update.Kind {
	case normalize.ErrorNotice:
		e.notices.Add(1)
		e.notifier.Notify(update.Message)
		return
	case normalize.Unknown:
		e.dropped.Add(1)
		slog.Warn("dropping push message with unknown update type", "type", update.RawType)
		return
	}

	action, ok := relevance.Accept(update, e.store.GetState())
	if !ok {
		e.dropped.Add(1)
		slog.Debug("push update not relevant to open thread", "kind", update.Kind, "thread", update.Thread.ThreadID())
		return
	}
	e.applied.Add(1)
	e.store.Dispatch(action)
}

// SetActiveThread records the thread the user has open. Over WebSocket the server is told as soon as the channel
// is ready; the message carries whatever thread is active at that moment.
func (e *Engine) SetActiveThread(threadID string) {
	e.mu.Lock()
	changed := e.activeThread != threadID
	e.activeThread = threadID
	started := e.queue != nil
	e.mu.Unlock()

	if changed && started {
		e.submitActiveThread()
	}
}

func (e *Engine) ActiveThread() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeThread
}

func (e *Engine) submitActiveThread() {
	if e.opts.Mode != channel.ModeWebSocket {
		return
	}
	e.mu.Lock()
	queue := e.queue
	e.mu.Unlock()
	queue.Submit(func() string {
		raw, _ := json.Marshal(map[string]string{"questionThreadId": e.ActiveThread()})
		return string(raw)
	})
}

// IsReady and Send make the engine the outbound queue's target, so queued messages follow the channel across
// reconnects.
func (e *Engine) IsReady() bool {
	e.mu.Lock()
	ch := e.ch
	e.mu.Unlock()
	return ch != nil && ch.IsReady()
}

func (e *Engine) Send(payload string) error {
	e.mu.Lock()
	ch := e.ch
	e.mu.Unlock()
	if ch == nil {
		return channel.ErrChannelNotOpen
	}
	return ch.Send(payload)
}

// Done is closed when the current channel closes.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ch == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return e.ch.Done()
}

func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ch == nil {
		return nil
	}
	return e.ch.Err()
}

func (e *Engine) Close() error {
	e.mu.Lock()
	ch := e.ch
	e.mu.Unlock()
	if ch == nil {
		return nil
	}
	return ch.Close()
}

func (e *Engine) Stats() Stats {
	return Stats{
		Received:    e.received.Load(),
		Applied:     e.applied.Load(),
		Dropped:     e.dropped.Load(),
		ParseErrors: e.parseErrors.Load(),
		Notices:     e.notices.Load(),
	}
}

// RunWithReconnect keeps a channel open until ctx ends, reconnecting after a fixed delay whenever it closes. The
// engine itself never reconnects; this loop is for callers that want it.
func (e *Engine) RunWithReconnect(ctx context.Context, delay time.Duration) error {
	for {
		if err := e.Start(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			_ = e.Close()
			<-e.Done()
			return nil
		case <-e.Done():
			slog.Warn("push channel closed, reconnecting", "err", e.Err(), "delay", delay)
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// Wait blocks until the channel closes or ctx ends and returns the reason the channel closed.
func (e *Engine) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.Done():
		if err := e.Err(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}
