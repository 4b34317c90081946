package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

// sse streams every push to the client. SSE subscribers are not scoped, they receive thread pushes for every
// thread and filter them themselves.
func (s *Server) sse(writer http.ResponseWriter, request *http.Request) {
	flusher, ok := writer.(http.Flusher)
	if !ok {
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	sub := s.hub.subscribe(false)
	defer s.hub.unsubscribe(sub)

	writer.Header().Set("Content-Type", "text/event-stream")
	writer.Header().Set("Cache-Control", "no-cache")
	writer.Header().Set("Connection", "keep-alive")
	writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	t := time.NewTicker(s.heartbeat)
	defer t.Stop()
	for {
		select {
		case <-request.Context().Done():
			return
		case <-t.C:
			if _, err := fmt.Fprint(writer, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case msg := <-sub.ch:
			if _, err := fmt.Fprintf(writer, "data: %s\n\n", msg); err != nil {
				slog.Error("failed to write event", "err", err)
				return
			}
			flusher.Flush()
		}
	}
}

// ws pushes over a WebSocket. The client declares the thread it has open by sending {"questionThreadId": ...};
// thread pushes for other threads are not sent to it.
func (s *Server) ws(writer http.ResponseWriter, request *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	conn, err := upgrader.Upgrade(writer, request, nil)
	if err != nil {
		slog.Error("failed to upgrade", "err", err)
		return
	}
	defer conn.Close()

	sub := s.hub.subscribe(true)
	defer s.hub.unsubscribe(sub)

	ctx, cancel := context.WithCancel(request.Context())
	defer cancel()

	wg := new(sync.WaitGroup)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		for {
			if err := s.readThreadContext(ctx, conn, sub); err != nil {
				var closeErr *websocket.CloseError
				if !errors.As(err, &closeErr) {
					slog.Error(err.Error())
				}
				return
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer conn.Close()
		for {
			select {
			case msg := <-sub.ch:
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					slog.Error("failed to write message", "err", err)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
}

func (s *Server) readThreadContext(ctx context.Context, conn *websocket.Conn, sub *subscriber) error {
	_, p, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read message: %w", err)
	}
	var msg struct {
		QuestionThreadID string `json:"questionThreadId"`
	}
	if err := json.Unmarshal(p, &msg); err != nil {
		slog.Warn("ignoring malformed client message", "err", err)
		return nil
	}
	sub.watch(msg.QuestionThreadID)
	slog.Info("client watching thread", "question", msg.QuestionThreadID)
	if msg.QuestionThreadID == "" {
		return nil
	}
	if _, err := s.database.thread(ctx, msg.QuestionThreadID); errors.Is(err, ErrNotFound) {
		s.hub.sendTo(sub, push{Error: fmt.Sprintf("question thread %s not found", msg.QuestionThreadID)})
	}
	return nil
}
