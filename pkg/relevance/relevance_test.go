package relevance

import (
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/astromechza/questionsync/pkg/normalize"
	"github.com/astromechza/questionsync/pkg/state"
)

func openThread(id string) *state.StateTree {
	return &state.StateTree{QuestionThread: &state.QuestionThread{Question: state.Question{ID: id}, Answers: []state.Answer{}}}
}

func TestAccept_thread_mismatch_dropped(t *testing.T) {
	u, err := normalize.Normalize(`{"updateType":"questionThread","updateData":{"id":"Q2","answers":[]}}`)
	assert.Equal(t, err, nil)
	_, ok := Accept(u, openThread("Q1"))
	assert.Equal(t, ok, false)
}

func TestAccept_thread_match(t *testing.T) {
	u, _ := normalize.Normalize(`{"updateType":"questionThread","updateData":{"question":{"id":"Q1","title":"new"},"answers":[]}}`)
	action, ok := Accept(u, openThread("Q1"))
	assert.Equal(t, ok, true)
	assert.Equal(t, action.Kind, state.QuestionThreadUpdated)
	assert.Equal(t, action.Payload.(*state.QuestionThread).Question.Title, "new")
}

func TestAccept_thread_without_open_thread(t *testing.T) {
	u, _ := normalize.Normalize(`{"updateType":"questionThread","updateData":{"id":"Q1"}}`)
	_, ok := Accept(u, state.Initial())
	assert.Equal(t, ok, false)
	_, ok = Accept(u, nil)
	assert.Equal(t, ok, false)
}

func TestAccept_other_kinds_always_pass(t *testing.T) {
	tree := openThread("Q1")

	action, ok := Accept(normalize.Update{Kind: normalize.Tags, Tags: []state.Tag{{ID: 1, Text: "go"}}}, tree)
	assert.Equal(t, ok, true)
	assert.Equal(t, action.Kind, state.TagsUpdated)

	action, ok = Accept(normalize.Update{Kind: normalize.Questions, Questions: []state.QuestionSummary{}}, tree)
	assert.Equal(t, ok, true)
	assert.Equal(t, action.Kind, state.QuestionsUpdated)

	action, ok = Accept(normalize.Update{Kind: normalize.StateRebuild}, tree)
	assert.Equal(t, ok, true)
	assert.Equal(t, action.Kind, state.StateRebuildRequested)
}

func TestAccept_notices_are_not_actions(t *testing.T) {
	_, ok := Accept(normalize.Update{Kind: normalize.ErrorNotice, Message: "not found"}, state.Initial())
	assert.Equal(t, ok, false)
	_, ok = Accept(normalize.Update{Kind: normalize.Unknown, RawType: "badges"}, state.Initial())
	assert.Equal(t, ok, false)
}
