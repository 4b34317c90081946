package normalize

import (
	"encoding/json"
	"fmt"

	"github.com/astromechza/questionsync/pkg/state"
)

type Kind int

const (
	Unknown Kind = iota
	Tags
	Questions
	QuestionThread
	StateRebuild
	ErrorNotice
)

func (k Kind) String() string {
	switch k {
	case Tags:
		return "tags"
	case Questions:
		return "questions"
	case QuestionThread:
		return "questionThread"
	case StateRebuild:
		return "stateRebuild"
	case ErrorNotice:
		return "error"
	default:
		return "unknown"
	}
}

// Update is a typed push message. Only the field matching Kind is set.
type Update struct {
	Kind      Kind
	Tags      []state.Tag
	Questions []state.QuestionSummary
	Thread    *state.QuestionThread
	Message   string
	// RawType is the updateType as received, kept for logging Unknown updates.
	RawType string
}

// ParseError is returned for push payloads that are not valid JSON or whose data does not match the declared
// updateType.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse push message (%d bytes): %v", len(e.Raw), e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type envelope struct {
	UpdateType string          `json:"updateType"`
	UpdateData json.RawMessage `json:"updateData"`
	Error      *string         `json:"error"`
}

// Normalize parses one raw push payload of the form {"updateType": ..., "updateData": ...} or {"error": ...}.
func Normalize(raw string) (Update, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return Update{}, &ParseError{Raw: raw, Err: err}
	}
	if env.Error != nil {
		return Update{Kind: ErrorNotice, Message: *env.Error}, nil
	}

	switch env.UpdateType {
	case "tags":
		var tags []state.Tag
		if err := decodeData(env.UpdateData, &tags); err != nil {
			return Update{}, &ParseError{Raw: raw, Err: err}
		}
		if tags == nil {
			tags = []state.Tag{}
		}
		return Update{Kind: Tags, Tags: tags, RawType: env.UpdateType}, nil

	case "questions":
		var questions []state.QuestionSummary
		if err := decodeData(env.UpdateData, &questions); err != nil {
			return Update{}, &ParseError{Raw: raw, Err: err}
		}
		if questions == nil {
			questions = []state.QuestionSummary{}
		}
		return Update{Kind: Questions, Questions: questions, RawType: env.UpdateType}, nil

	case "questionThread":
		thread := new(state.QuestionThread)
		if err := decodeData(env.UpdateData, thread); err != nil {
			return Update{}, &ParseError{Raw: raw, Err: err}
		}
		if thread.ThreadID() == "" {
			return Update{}, &ParseError{Raw: raw, Err: fmt.Errorf("question thread has no id")}
		}
		if thread.Answers == nil {
			thread.Answers = []state.Answer{}
		}
		return Update{Kind: QuestionThread, Thread: thread, RawType: env.UpdateType}, nil

	case "stateRebuild":
		return Update{Kind: StateRebuild, RawType: env.UpdateType}, nil

	default:
		return Update{Kind: Unknown, RawType: env.UpdateType}, nil
	}
}

func decodeData(data json.RawMessage, target any) error {
	if len(data) == 0 {
		return fmt.Errorf("missing updateData")
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to decode updateData: %w", err)
	}
	return nil
}
