package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/astromechza/questionsync/pkg/state"
)

// Rebuild re-fetches every slice the store holds and clears the refresh flag. The open thread is refreshed as an
// update rather than a load, so it is ignored if the user navigated elsewhere in the meantime. A thread that no
// longer exists on the server is closed.
//
// If another rebuild is requested while fetching, everything is fetched again before the flag is cleared.
func (c *Client) Rebuild(ctx context.Context) error {
	for {
		generation := c.rebuildRequests.Load()
		if err := c.refetch(ctx); err != nil {
			return err
		}
		if c.rebuildRequests.Load() == generation {
			c.rebuilt.Store(generation)
			c.store.Dispatch(state.StateRebuildCompletedAction())
			return nil
		}
		slog.Info("rebuild requested again while fetching, starting over")
	}
}

func (c *Client) refetch(ctx context.Context) error {
	if _, err := c.FetchTags(ctx); err != nil {
		return fmt.Errorf("failed to rebuild tags: %w", err)
	}
	if _, err := c.FetchQuestions(ctx); err != nil {
		return fmt.Errorf("failed to rebuild questions: %w", err)
	}
	open := c.store.GetState().QuestionThread
	if open == nil {
		return nil
	}
	id := open.ThreadID()
	thread := new(state.QuestionThread)
	if err := c.do(ctx, http.MethodGet, "/api/questionsThread/"+url.PathEscape(id), nil, thread); err != nil {
		var se *StatusError
		if !errors.As(err, &se) || se.Code != http.StatusNotFound {
			return fmt.Errorf("failed to rebuild question thread: %w", err)
		}
		slog.Warn("open question thread no longer exists, closing it", "thread", id)
		if current := c.store.GetState().QuestionThread; current != nil && current.ThreadID() == id {
			c.store.Dispatch(state.QuestionThreadLoadedAction(nil))
		}
		return nil
	}
	if thread.Answers == nil {
		thread.Answers = []state.Answer{}
	}
	c.store.Dispatch(state.QuestionThreadUpdatedAction(thread))
	return nil
}

// WatchRebuild starts a Rebuild whenever the store asks for one. Only one rebuild runs at a time; a request that
// arrives while one is running makes it fetch again. The returned func stops watching.
func (c *Client) WatchRebuild(ctx context.Context) func() {
	return c.store.Subscribe(func(action state.Action, tree *state.StateTree) {
		if action.Kind != state.StateRebuildRequested {
			return
		}
		c.rebuildRequests.Add(1)
		if !c.rebuilding.CompareAndSwap(false, true) {
			return
		}
		go c.rebuildLoop(ctx)
	})
}

func (c *Client) rebuildLoop(ctx context.Context) {
	for {
		err := c.Rebuild(ctx)
		if err != nil {
			slog.Error("failed to rebuild state", "err", err)
		} else {
			slog.Info("rebuilt state")
		}
		c.rebuilding.Store(false)
		// a request may have landed between the completion and releasing the guard
		if err != nil || c.rebuildRequests.Load() == c.rebuilt.Load() {
			return
		}
		if !c.rebuilding.CompareAndSwap(false, true) {
			return
		}
	}
}
