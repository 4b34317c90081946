package server

import (
	"encoding/json"
	"log/slog"
	"sync"
)

const subscriberBuffer = 64

type subscriber struct {
	ch chan []byte
	// scoped subscribers only receive thread pushes for the thread they declared
	scoped bool

	mu     sync.Mutex
	thread string
}

func (s *subscriber) watch(threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thread = threadID
}

func (s *subscriber) watching() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thread
}

// hub fans pushes out to every connected push channel. A subscriber that falls behind loses messages rather than
// slowing the others down.
type hub struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
}

func newHub() *hub {
	return &hub{subscribers: make(map[*subscriber]struct{})}
}

func (h *hub) subscribe(scoped bool) *subscriber {
	s := &subscriber{ch: make(chan []byte, subscriberBuffer), scoped: scoped}
	h.mu.Lock()
	h.subscribers[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	delete(h.subscribers, s)
	h.mu.Unlock()
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

type push struct {
	UpdateType string `json:"updateType,omitempty"`
	UpdateData any    `json:"updateData,omitempty"`
	Error      string `json:"error,omitempty"`
}

func encodePush(p push) []byte {
	raw, err := json.Marshal(p)
	if err != nil {
		slog.Error("failed to encode push", "type", p.UpdateType, "err", err)
		return nil
	}
	return raw
}

// broadcast sends p to everyone. A non-empty threadID marks a thread push, which scoped subscribers only get
// when they watch that thread.
func (h *hub) broadcast(p push, threadID string) {
	raw := encodePush(p)
	if raw == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subscribers {
		if threadID != "" && s.scoped && s.watching() != threadID {
			continue
		}
		select {
		case s.ch <- raw:
		default:
			slog.Warn("push subscriber is full, dropping message", "type", p.UpdateType)
		}
	}
}

// notifyWatchers sends p only to the scoped subscribers watching threadID. Unscoped subscribers never declared a
// thread, so thread notices are not theirs.
func (h *hub) notifyWatchers(p push, threadID string) {
	raw := encodePush(p)
	if raw == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subscribers {
		if !s.scoped || s.watching() != threadID {
			continue
		}
		select {
		case s.ch <- raw:
		default:
			slog.Warn("push subscriber is full, dropping message", "thread", threadID)
		}
	}
}

func (h *hub) sendTo(s *subscriber, p push) {
	raw := encodePush(p)
	if raw == nil {
		return
	}
	select {
	case s.ch <- raw:
	default:
		slog.Warn("push subscriber is full, dropping message", "type", p.UpdateType)
	}
}
