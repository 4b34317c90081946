package notice

import (
	"log/slog"
	"sync"
)

// Notifier shows a message to the user. Push payloads carrying an error end up here instead of in the state tree.
type Notifier interface {
	Notify(message string)
}

// Log writes notices to the structured log.
type Log struct{}

var _ Notifier = Log{}

func (Log) Notify(message string) {
	slog.Warn("notice", "message", message)
}

// Recorder keeps every notice, most recent last.
type Recorder struct {
	mu       sync.Mutex
	messages []string
}

var _ Notifier = (*Recorder)(nil)

func (r *Recorder) Notify(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

// Multi fans a notice out to several notifiers in order.
type Multi []Notifier

func (m Multi) Notify(message string) {
	for _, n := range m {
		n.Notify(message)
	}
}
