package state

import (
	"sync"
	"sync/atomic"
)

// Listener is called after every transition with the action that caused it and the resulting tree.
type Listener func(action Action, tree *StateTree)

type subscription struct {
	fn     Listener
	active atomic.Bool
}

// Store owns the single StateTree. All changes go through Dispatch and are applied strictly in dispatch order.
//
// A Dispatch issued while another one is being processed (from a listener, or from another goroutine) is queued
// and applied by the goroutine already draining the queue, straight after the current action and its listeners.
// Nested dispatches therefore never recurse, but they also return before their action has been applied.
type Store struct {
	mu            sync.Mutex
	tree          *StateTree
	queue         []Action
	draining      bool
	subscriptions []*subscription
}

func NewStore(initial *StateTree) *Store {
	if initial == nil {
		initial = Initial()
	}
	return &Store{tree: initial}
}

// GetState returns the current tree. Callers must treat it as read-only.
func (s *Store) GetState() *StateTree {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree
}

// Subscribe registers fn to be called after every transition, after all earlier subscribers. The returned func
// removes it again and may be called more than once.
func (s *Store) Subscribe(fn Listener) func() {
	sub := &subscription{fn: fn}
	sub.active.Store(true)

	s.mu.Lock()
	s.subscriptions = append(s.subscriptions, sub)
	s.mu.Unlock()

	return func() {
		if !sub.active.Swap(false) {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, candidate := range s.subscriptions {
			if candidate == sub {
				s.subscriptions = append(s.subscriptions[:i:i], s.subscriptions[i+1:]...)
				break
			}
		}
	}
}

func (s *Store) Dispatch(action Action) {
	s.mu.Lock()
	s.queue = append(s.queue, action)
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	s.mu.Unlock()

	completed := false
	defer func() {
		if !completed {
			// a listener panicked, let the next Dispatch take over the remaining queue
			s.mu.Lock()
			s.draining = false
			s.mu.Unlock()
		}
	}()

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.mu.Unlock()
			completed = true
			return
		}
		next := s.queue[0]
		s.queue[0] = Action{}
		s.queue = s.queue[1:]
		s.tree = Reduce(s.tree, next)
		tree := s.tree
		subscriptions := append([]*subscription(nil), s.subscriptions...)
		s.mu.Unlock()

		for _, sub := range subscriptions {
			if sub.active.Load() {
				sub.fn(next, tree)
			}
		}
	}
}
