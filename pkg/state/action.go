package state

import "fmt"

type ActionKind int

const (
	ActionUnknown ActionKind = iota
	TagsUpdated
	QuestionsUpdated
	QuestionThreadLoaded
	QuestionThreadUpdated
	StateRebuildRequested
	StateRebuildCompleted
)

func (k ActionKind) String() string {
	switch k {
	case TagsUpdated:
		return "tags_updated"
	case QuestionsUpdated:
		return "questions_updated"
	case QuestionThreadLoaded:
		return "question_thread_loaded"
	case QuestionThreadUpdated:
		return "question_thread_updated"
	case StateRebuildRequested:
		return "state_rebuild_requested"
	case StateRebuildCompleted:
		return "state_rebuild_completed"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Action describes a single state transition. Payload holds the value matching Kind: []Tag, []QuestionSummary,
// *QuestionThread, or nil for the rebuild kinds.
type Action struct {
	Kind    ActionKind
	Payload any
}

func TagsUpdatedAction(tags []Tag) Action {
	return Action{Kind: TagsUpdated, Payload: tags}
}

func QuestionsUpdatedAction(questions []QuestionSummary) Action {
	return Action{Kind: QuestionsUpdated, Payload: questions}
}

func QuestionThreadLoadedAction(thread *QuestionThread) Action {
	return Action{Kind: QuestionThreadLoaded, Payload: thread}
}

func QuestionThreadUpdatedAction(thread *QuestionThread) Action {
	return Action{Kind: QuestionThreadUpdated, Payload: thread}
}

func StateRebuildRequestedAction() Action {
	return Action{Kind: StateRebuildRequested}
}

func StateRebuildCompletedAction() Action {
	return Action{Kind: StateRebuildCompleted}
}
