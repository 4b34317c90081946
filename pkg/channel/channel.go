package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var (
	// ErrChannelNotOpen is returned by Send while the channel is still connecting or after it closed.
	ErrChannelNotOpen = errors.New("channel is not open")
	// ErrSendUnsupported is returned by Send on receive-only channels.
	ErrSendUnsupported = errors.New("channel does not support sending")
	// ErrStreamEnded is recorded when the server ends the push stream.
	ErrStreamEnded = errors.New("push stream ended")
)

type Mode string

const (
	ModeSSE       Mode = "sse"
	ModeWebSocket Mode = "websocket"
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case ModeSSE, ModeWebSocket:
		return Mode(raw), nil
	default:
		return "", fmt.Errorf("unknown channel mode %q: expected %q or %q", raw, ModeSSE, ModeWebSocket)
	}
}

type ConnectionState int

const (
	Connecting ConnectionState = iota
	Open
	Closed
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	default:
		return "closed"
	}
}

// Channel is one long-lived push connection. Messages are handed to the registered handlers one at a time, in
// arrival order, from the channel's own goroutine. There is no reconnect: once Closed, a Channel stays Closed.
type Channel interface {
	OnMessage(handler func(string))
	Send(payload string) error
	IsReady() bool
	State() ConnectionState
	// Err is the reason the channel closed, nil while it is live or when it was closed deliberately.
	Err() error
	Done() <-chan struct{}
	// Close starts shutting the channel down and returns without waiting; use Done to wait.
	Close() error
}

type Options struct {
	Mode Mode
	URL  string
	// Header is sent with the connect request, e.g. to carry a session cookie.
	Header    http.Header
	OnMessage func(string)

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
}

// Connect returns straight away with a channel in the Connecting state and dials in the background.
func Connect(ctx context.Context, opts Options) (Channel, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("channel url is required")
	}
	switch opts.Mode {
	case ModeSSE:
		return connectSSE(ctx, opts), nil
	case ModeWebSocket:
		return connectWebSocket(ctx, opts), nil
	default:
		return nil, fmt.Errorf("unknown channel mode %q", opts.Mode)
	}
}

// base is the connection bookkeeping shared by both transports.
type base struct {
	mu       sync.Mutex
	state    ConnectionState
	err      error
	closing  bool
	handlers []func(string)
	done     chan struct{}
	cancel   context.CancelFunc
	name     string
}

func newBase(ctx context.Context, name string, onMessage func(string)) (*base, context.Context) {
	innerCtx, cancel := context.WithCancel(ctx)
	b := &base{
		state:  Connecting,
		done:   make(chan struct{}),
		cancel: cancel,
		name:   name,
	}
	if onMessage != nil {
		b.handlers = append(b.handlers, onMessage)
	}
	return b, innerCtx
}

func (b *base) OnMessage(handler func(string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

func (b *base) IsReady() bool {
	return b.State() == Open
}

func (b *base) State() ConnectionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *base) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *base) Done() <-chan struct{} {
	return b.done
}

func (b *base) markOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Connecting {
		b.state = Open
		slog.Info("push channel open", "transport", b.name)
	}
}

func (b *base) markClosing() {
	b.mu.Lock()
	b.closing = true
	b.mu.Unlock()
	b.cancel()
}

// finish moves the channel to Closed exactly once.
func (b *base) finish(err error) {
	b.mu.Lock()
	if b.state == Closed {
		b.mu.Unlock()
		return
	}
	b.state = Closed
	if b.closing {
		err = nil
	}
	b.err = err
	b.mu.Unlock()

	b.cancel()
	if err != nil {
		slog.Error("push channel closed", "transport", b.name, "err", err)
	} else {
		slog.Info("push channel closed", "transport", b.name)
	}
	close(b.done)
}

func (b *base) deliver(message string) {
	b.mu.Lock()
	handlers := append([](func(string))(nil), b.handlers...)
	b.mu.Unlock()
	if len(handlers) == 0 {
		slog.Debug("push message without handler", "transport", b.name, "bytes", len(message))
		return
	}
	for _, handler := range handlers {
		handler(message)
	}
}
