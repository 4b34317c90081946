package state

// Tag is a label that can be attached to questions. Text is unique across tags, but that is checked by whoever
// creates the tag and not by the store.
type Tag struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

type QuestionSummary struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Tags           []Tag  `json:"tags"`
	AuthorFullName string `json:"authorFullName"`
}

type Question struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Details string `json:"details"`
	Tags    []Tag  `json:"tags"`
}

type Answer struct {
	ID       string `json:"id"`
	AuthorID string `json:"authorId"`
	Text     string `json:"text"`
	Votes    int    `json:"votes"`
}

// QuestionThread is a question together with all of its answers.
type QuestionThread struct {
	// ID is only set by pushes that carry the thread id at the top level rather than inside the question.
	ID       string   `json:"id,omitempty"`
	Question Question `json:"question"`
	Answers  []Answer `json:"answers"`
}

// ThreadID returns the identifier used to match pushes against the open thread.
func (t *QuestionThread) ThreadID() string {
	if t == nil {
		return ""
	}
	if t.Question.ID != "" {
		return t.Question.ID
	}
	return t.ID
}

// FindOwnAnswer returns the index of the first answer written by userID, or -1.
func FindOwnAnswer(thread *QuestionThread, userID string) int {
	if thread == nil || userID == "" {
		return -1
	}
	for i, answer := range thread.Answers {
		if answer.AuthorID == userID {
			return i
		}
	}
	return -1
}

// StateTree is the whole client-visible state. A tree is never modified once the store has published it; every
// transition produces a new one.
type StateTree struct {
	Tags           []Tag             `json:"tags"`
	Questions      []QuestionSummary `json:"questions"`
	QuestionThread *QuestionThread   `json:"questionThread"`
	RefreshNeeded  bool              `json:"refreshNeeded"`
}

// Initial is the tree a fresh process starts from.
func Initial() *StateTree {
	return &StateTree{
		Tags:      []Tag{},
		Questions: []QuestionSummary{},
	}
}

func (t *StateTree) clone() *StateTree {
	c := *t
	return &c
}
