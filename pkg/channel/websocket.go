package channel

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeWriteTimeout = time.Second

type webSocketChannel struct {
	*base
	dialer *websocket.Dialer
	header http.Header
	url    string

	writeLock sync.Mutex
	conn      *websocket.Conn
}

func connectWebSocket(ctx context.Context, opts Options) *webSocketChannel {
	b, innerCtx := newBase(ctx, string(ModeWebSocket), opts.OnMessage)
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	c := &webSocketChannel{base: b, dialer: dialer, header: opts.Header, url: opts.URL}
	go c.run(innerCtx)
	return c
}

func (c *webSocketChannel) run(ctx context.Context) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		c.finish(fmt.Errorf("failed to dial: %w", err))
		return
	}
	defer conn.Close()

	c.writeLock.Lock()
	c.conn = conn
	c.writeLock.Unlock()
	c.markOpen()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		if err := readAndDeliverMessage(conn, c.deliver); err != nil {
			c.finish(err)
			return
		}
	}
}

func readAndDeliverMessage(conn *websocket.Conn, deliver func(string)) error {
	mt, p, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read message: %w", err)
	}
	switch mt {
	case websocket.TextMessage, websocket.BinaryMessage:
		deliver(string(p))
	default:
	}
	return nil
}

func (c *webSocketChannel) Send(payload string) error {
	if !c.IsReady() {
		return ErrChannelNotOpen
	}
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (c *webSocketChannel) Close() error {
	c.markClosing()
	c.writeLock.Lock()
	conn := c.conn
	c.writeLock.Unlock()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(closeWriteTimeout))
	}
	return nil
}
