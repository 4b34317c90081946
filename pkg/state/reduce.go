package state

// Reduce returns the tree that results from applying action to tree. It never modifies tree. Actions it does not
// understand, including ones whose payload has the wrong type, return tree itself.
func Reduce(tree *StateTree, action Action) *StateTree {
	if tree == nil {
		tree = Initial()
	}
	switch action.Kind {
	case TagsUpdated:
		tags, ok := action.Payload.([]Tag)
		if !ok {
			return tree
		}
		next := tree.clone()
		next.Tags = tags
		return next

	case QuestionsUpdated:
		questions, ok := action.Payload.([]QuestionSummary)
		if !ok {
			return tree
		}
		next := tree.clone()
		next.Questions = questions
		return next

	case QuestionThreadLoaded:
		thread, ok := action.Payload.(*QuestionThread)
		if !ok {
			return tree
		}
		next := tree.clone()
		next.QuestionThread = thread
		return next

	case QuestionThreadUpdated:
		thread, ok := action.Payload.(*QuestionThread)
		if !ok || thread == nil || tree.QuestionThread == nil {
			return tree
		}
		if thread.ThreadID() != tree.QuestionThread.ThreadID() {
			return tree
		}
		next := tree.clone()
		next.QuestionThread = thread
		return next

	case StateRebuildRequested:
		next := tree.clone()
		next.RefreshNeeded = true
		return next

	case StateRebuildCompleted:
		next := tree.clone()
		next.RefreshNeeded = false
		return next

	default:
		return tree
	}
}
