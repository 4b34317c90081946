package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/gorilla/websocket"
)

type collector struct {
	mu       sync.Mutex
	messages []string
	signal   chan struct{}
}

func newCollector() *collector {
	return &collector{signal: make(chan struct{}, 100)}
}

func (c *collector) add(message string) {
	c.mu.Lock()
	c.messages = append(c.messages, message)
	c.mu.Unlock()
	c.signal <- struct{}{}
}

func (c *collector) waitFor(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		c.mu.Lock()
		if len(c.messages) >= n {
			out := append([]string(nil), c.messages...)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		select {
		case <-c.signal:
		case <-deadline:
			t.Fatalf("timed out waiting for %d messages", n)
		}
	}
}

func (c *collector) waitForMessage(t *testing.T, want string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		c.mu.Lock()
		for _, m := range c.messages {
			if m == want {
				c.mu.Unlock()
				return
			}
		}
		c.mu.Unlock()
		select {
		case <-c.signal:
		case <-deadline:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func waitDone(t *testing.T, ch Channel) {
	t.Helper()
	select {
	case <-ch.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for channel to close")
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("websocket")
	assert.Equal(t, err, nil)
	assert.Equal(t, m, ModeWebSocket)
	_, err = ParseMode("carrier-pigeon")
	assert.NotEqual(t, err, nil)
}

func TestConnect_validates_options(t *testing.T) {
	_, err := Connect(context.Background(), Options{Mode: ModeSSE})
	assert.NotEqual(t, err, nil)
	_, err = Connect(context.Background(), Options{Mode: "nope", URL: "http://x"})
	assert.NotEqual(t, err, nil)
}

func TestReadEvents(t *testing.T) {
	stream := strings.Join([]string{
		": keepalive",
		"data: {\"a\":1}",
		"",
		"event: ping",
		"data: ignored",
		"",
		"event: message",
		"data: line one",
		"data: line two",
		"",
		"id: 7",
		"",
		"data:no-space",
		"",
	}, "\n")
	var got []string
	err := readEvents(strings.NewReader(stream), func(s string) { got = append(got, s) })
	assert.Equal(t, errors.Is(err, ErrStreamEnded), true)
	assert.Equal(t, got, []string{`{"a":1}`, "line one\nline two", "no-space"})
}

func TestReadEvents_line_endings(t *testing.T) {
	stream := "data: crlf\r\n\r\ndata: cr\r\rdata: one\ndata: two\r\n\n"
	var got []string
	err := readEvents(strings.NewReader(stream), func(s string) { got = append(got, s) })
	assert.Equal(t, errors.Is(err, ErrStreamEnded), true)
	assert.Equal(t, got, []string{"crlf", "cr", "one\ntwo"})
}

func TestReadEvents_crlf_split_across_reads(t *testing.T) {
	r := iotest.OneByteReader(strings.NewReader("data: a\r\n\r\ndata: b\r\n\r\n"))
	var got []string
	err := readEvents(r, func(s string) { got = append(got, s) })
	assert.Equal(t, errors.Is(err, ErrStreamEnded), true)
	assert.Equal(t, got, []string{"a", "b"})
}

func TestSSE_delivers_in_order_and_is_receive_only(t *testing.T) {
	release := make(chan struct{})
	headers := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for i := 0; i < 3; i++ {
			_, _ = fmt.Fprintf(w, "data: m%d\n\n", i)
		}
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newCollector()
	ch, err := Connect(context.Background(), Options{
		Mode: ModeSSE, URL: srv.URL, OnMessage: c.add,
		Header: http.Header{"Cookie": []string{"session=abc"}},
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, c.waitFor(t, 3), []string{"m0", "m1", "m2"})
	h := <-headers
	assert.Equal(t, h.Get("Accept"), "text/event-stream")
	assert.Equal(t, h.Get("Cookie"), "session=abc")
	assert.Equal(t, ch.IsReady(), true)
	assert.Equal(t, errors.Is(ch.Send("x"), ErrSendUnsupported), true)

	assert.Equal(t, ch.Close(), nil)
	waitDone(t, ch)
	assert.Equal(t, ch.State(), Closed)
	assert.Equal(t, ch.Err(), nil)
	assert.Equal(t, errors.Is(ch.Send("x"), ErrChannelNotOpen), true)
}

func TestSSE_bad_status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	ch, err := Connect(context.Background(), Options{Mode: ModeSSE, URL: srv.URL})
	assert.Equal(t, err, nil)
	waitDone(t, ch)
	var se *StatusError
	assert.Equal(t, errors.As(ch.Err(), &se), true)
	assert.Equal(t, se.Code, http.StatusUnauthorized)
	assert.Equal(t, ch.IsReady(), false)
}

func TestSSE_stream_end_is_terminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, "data: only\n\n")
	}))
	defer srv.Close()

	c := newCollector()
	ch, _ := Connect(context.Background(), Options{Mode: ModeSSE, URL: srv.URL, OnMessage: c.add})
	c.waitFor(t, 1)
	waitDone(t, ch)
	assert.Equal(t, errors.Is(ch.Err(), ErrStreamEnded), true)
}

func TestWebSocket_send_and_receive(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		for {
			_, p, err := conn.ReadMessage()
			if err != nil {
				return
			}
			_ = conn.WriteMessage(websocket.TextMessage, append([]byte("echo:"), p...))
		}
	}))
	defer srv.Close()

	c := newCollector()
	ch, err := Connect(context.Background(), Options{
		Mode: ModeWebSocket, URL: "ws" + strings.TrimPrefix(srv.URL, "http"), OnMessage: c.add,
	})
	assert.Equal(t, err, nil)
	extra := newCollector()
	ch.OnMessage(extra.add)

	c.waitFor(t, 1)
	assert.Equal(t, ch.State(), Open)
	assert.Equal(t, ch.Send(`{"questionThreadId":"Q1"}`), nil)
	assert.Equal(t, c.waitFor(t, 2)[1], `echo:{"questionThreadId":"Q1"}`)
	extra.waitForMessage(t, `echo:{"questionThreadId":"Q1"}`)

	_ = ch.Close()
	waitDone(t, ch)
	assert.Equal(t, ch.Err(), nil)
	assert.Equal(t, errors.Is(ch.Send("late"), ErrChannelNotOpen), true)
}

func TestWebSocket_not_open_before_dial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ch, err := Connect(ctx, Options{Mode: ModeWebSocket, URL: "ws://127.0.0.1:1/unused"})
	assert.Equal(t, err, nil)
	waitDone(t, ch)
	assert.Equal(t, errors.Is(ch.Send("x"), ErrChannelNotOpen), true)
	assert.NotEqual(t, ch.Err(), nil)
}
