package state

import (
	"sync"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestStore_dispatch_then_get_state(t *testing.T) {
	s := NewStore(nil)
	s.Dispatch(TagsUpdatedAction([]Tag{{ID: 1, Text: "go"}}))
	assert.Equal(t, s.GetState().Tags, []Tag{{ID: 1, Text: "go"}})
}

func TestStore_listeners_called_in_subscription_order(t *testing.T) {
	s := NewStore(nil)
	var calls []string
	s.Subscribe(func(action Action, tree *StateTree) { calls = append(calls, "first:"+action.Kind.String()) })
	s.Subscribe(func(action Action, tree *StateTree) { calls = append(calls, "second:"+action.Kind.String()) })

	s.Dispatch(TagsUpdatedAction([]Tag{}))
	s.Dispatch(Action{Kind: ActionKind(77)})

	assert.Equal(t, calls, []string{
		"first:tags_updated", "second:tags_updated",
		"first:unknown(77)", "second:unknown(77)",
	})
}

func TestStore_listener_sees_new_tree(t *testing.T) {
	s := NewStore(nil)
	before := s.GetState()
	var seen *StateTree
	s.Subscribe(func(action Action, tree *StateTree) { seen = tree })
	s.Dispatch(StateRebuildRequestedAction())
	assert.Equal(t, seen == s.GetState(), true)
	assert.Equal(t, seen == before, false)
}

func TestStore_unsubscribe(t *testing.T) {
	s := NewStore(nil)
	count := 0
	unsubscribe := s.Subscribe(func(Action, *StateTree) { count++ })
	s.Dispatch(StateRebuildRequestedAction())
	unsubscribe()
	unsubscribe()
	s.Dispatch(StateRebuildCompletedAction())
	assert.Equal(t, count, 1)
}

func TestStore_reentrant_dispatch_is_deferred_not_recursive(t *testing.T) {
	s := NewStore(nil)
	var order []string
	depth := 0
	s.Subscribe(func(action Action, tree *StateTree) {
		depth++
		defer func() { depth-- }()
		assert.Equal(t, depth, 1)
		order = append(order, action.Kind.String())
		if action.Kind == TagsUpdated {
			s.Dispatch(StateRebuildRequestedAction())
			// not applied until this listener returns
			assert.Equal(t, s.GetState().RefreshNeeded, false)
		}
	})
	s.Subscribe(func(action Action, tree *StateTree) {
		order = append(order, "second:"+action.Kind.String())
	})

	s.Dispatch(TagsUpdatedAction([]Tag{{ID: 1, Text: "go"}}))

	assert.Equal(t, order, []string{
		"tags_updated", "second:tags_updated",
		"state_rebuild_requested", "second:state_rebuild_requested",
	})
	assert.Equal(t, s.GetState().RefreshNeeded, true)
}

func TestStore_recovers_after_listener_panic(t *testing.T) {
	s := NewStore(nil)
	unsubscribe := s.Subscribe(func(Action, *StateTree) { panic("boom") })
	func() {
		defer func() { _ = recover() }()
		s.Dispatch(StateRebuildRequestedAction())
	}()
	unsubscribe()
	s.Dispatch(TagsUpdatedAction([]Tag{{ID: 2, Text: "rust"}}))
	assert.Equal(t, s.GetState().Tags, []Tag{{ID: 2, Text: "rust"}})
	assert.Equal(t, s.GetState().RefreshNeeded, true)
}

func TestStore_concurrent_dispatch_applies_everything(t *testing.T) {
	s := NewStore(nil)
	var mu sync.Mutex
	seen := 0
	s.Subscribe(func(Action, *StateTree) {
		mu.Lock()
		seen++
		mu.Unlock()
	})

	wg := new(sync.WaitGroup)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Dispatch(TagsUpdatedAction([]Tag{{ID: int64(i)}}))
		}(i)
	}
	wg.Wait()
	s.Dispatch(StateRebuildRequestedAction())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, seen, 51)
}
