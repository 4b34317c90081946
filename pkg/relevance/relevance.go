package relevance

import (
	"github.com/astromechza/questionsync/pkg/normalize"
	"github.com/astromechza/questionsync/pkg/state"
)

// Accept turns a push update into the action to dispatch, or reports false when the update must not touch the
// tree. The push channel is not scoped to a view, so thread updates are only applied when they are for the thread
// that is currently open.
func Accept(update normalize.Update, tree *state.StateTree) (state.Action, bool) {
	switch update.Kind {
	case normalize.Tags:
		return state.TagsUpdatedAction(update.Tags), true
	case normalize.Questions:
		return state.QuestionsUpdatedAction(update.Questions), true
	case normalize.QuestionThread:
		if tree == nil || tree.QuestionThread == nil || update.Thread == nil {
			return state.Action{}, false
		}
		if update.Thread.ThreadID() != tree.QuestionThread.ThreadID() {
			return state.Action{}, false
		}
		return state.QuestionThreadUpdatedAction(update.Thread), true
	case normalize.StateRebuild:
		return state.StateRebuildRequestedAction(), true
	default:
		// error notices and unknown kinds are not state transitions
		return state.Action{}, false
	}
}
