package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

func (s *Server) login(writer http.ResponseWriter, request *http.Request) {
	var inputs struct {
		UserID   string `json:"userId"`
		FullName string `json:"fullName"`
	}
	if !decode(writer, request, &inputs) {
		return
	}
	if strings.TrimSpace(inputs.UserID) == "" {
		writer.WriteHeader(http.StatusBadRequest)
		return
	}
	if inputs.FullName == "" {
		inputs.FullName = inputs.UserID
	}
	token, err := s.auth.issue(user{ID: inputs.UserID, FullName: inputs.FullName})
	if err != nil {
		writeError(writer, err)
		return
	}
	http.SetCookie(writer, &http.Cookie{Name: sessionCookie, Value: token, Path: "/", HttpOnly: true})
	writeJSON(writer, map[string]string{"token": token})
}

func (s *Server) getTags(writer http.ResponseWriter, request *http.Request) {
	tags, err := s.database.listTags(request.Context())
	if err != nil {
		writeError(writer, err)
		return
	}
	writeJSON(writer, tags)
}

func (s *Server) getQuestions(writer http.ResponseWriter, request *http.Request) {
	questions, err := s.database.listQuestions(request.Context())
	if err != nil {
		writeError(writer, err)
		return
	}
	writeJSON(writer, questions)
}

func (s *Server) getThread(writer http.ResponseWriter, request *http.Request) {
	thread, err := s.database.thread(request.Context(), mux.Vars(request)["id"])
	if err != nil {
		writeError(writer, err)
		return
	}
	writeJSON(writer, thread)
}

func (s *Server) createTag(writer http.ResponseWriter, request *http.Request) {
	var inputs struct {
		Text string `json:"text"`
	}
	if !decode(writer, request, &inputs) {
		return
	}
	text := strings.TrimSpace(inputs.Text)
	if text == "" {
		writer.WriteHeader(http.StatusBadRequest)
		return
	}
	tag, err := s.database.createTag(request.Context(), text)
	if err != nil {
		writeError(writer, err)
		return
	}
	writeJSON(writer, tag)
	s.pushTags(request.Context())
}

func (s *Server) deleteTag(writer http.ResponseWriter, request *http.Request) {
	var inputs struct {
		ID int64 `json:"id"`
	}
	if !decode(writer, request, &inputs) {
		return
	}
	if err := s.database.deleteTag(request.Context(), inputs.ID); err != nil {
		writeError(writer, err)
		return
	}
	writeJSON(writer, struct{}{})
	s.pushTags(request.Context())
	s.pushQuestions(request.Context())
}

func (s *Server) createQuestion(writer http.ResponseWriter, request *http.Request) {
	var inputs struct {
		Title   string  `json:"title"`
		Tags    []int64 `json:"tags"`
		Details string  `json:"details"`
	}
	if !decode(writer, request, &inputs) {
		return
	}
	id, err := s.database.createQuestion(request.Context(), userFrom(request), inputs.Title, inputs.Details, inputs.Tags)
	if err != nil {
		writeError(writer, err)
		return
	}
	writeJSON(writer, map[string]string{"id": id})
	s.pushQuestions(request.Context())
}

func (s *Server) deleteQuestion(writer http.ResponseWriter, request *http.Request) {
	var inputs struct {
		ID string `json:"id"`
	}
	if !decode(writer, request, &inputs) {
		return
	}
	if err := s.database.deleteQuestion(request.Context(), userFrom(request), inputs.ID); err != nil {
		writeError(writer, err)
		return
	}
	writeJSON(writer, struct{}{})
	s.pushQuestions(request.Context())
	s.hub.notifyWatchers(push{Error: "question " + inputs.ID + " was deleted"}, inputs.ID)
}

type answerInputs struct {
	AnswerID   string `json:"answerId"`
	QuestionID string `json:"questionId"`
	Text       string `json:"text"`
}

func (s *Server) createAnswer(writer http.ResponseWriter, request *http.Request) {
	var inputs answerInputs
	if !decode(writer, request, &inputs) {
		return
	}
	if strings.TrimSpace(inputs.Text) == "" {
		writer.WriteHeader(http.StatusBadRequest)
		return
	}
	id, err := s.database.createAnswer(request.Context(), userFrom(request), inputs.QuestionID, inputs.Text)
	if err != nil {
		writeError(writer, err)
		return
	}
	writeJSON(writer, map[string]string{"id": id})
	s.pushThread(request.Context(), inputs.QuestionID)
}

func (s *Server) updateAnswer(writer http.ResponseWriter, request *http.Request) {
	var inputs answerInputs
	if !decode(writer, request, &inputs) {
		return
	}
	if err := s.database.updateAnswer(request.Context(), userFrom(request), inputs.QuestionID, inputs.AnswerID, inputs.Text); err != nil {
		writeError(writer, err)
		return
	}
	writeJSON(writer, struct{}{})
	s.pushThread(request.Context(), inputs.QuestionID)
}

func (s *Server) deleteAnswer(writer http.ResponseWriter, request *http.Request) {
	var inputs answerInputs
	if !decode(writer, request, &inputs) {
		return
	}
	if err := s.database.deleteAnswer(request.Context(), userFrom(request), inputs.QuestionID, inputs.AnswerID); err != nil {
		writeError(writer, err)
		return
	}
	writeJSON(writer, struct{}{})
	s.pushThread(request.Context(), inputs.QuestionID)
}

func (s *Server) voteHandler(delta int) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		var inputs answerInputs
		if !decode(writer, request, &inputs) {
			return
		}
		if err := s.database.vote(request.Context(), inputs.QuestionID, inputs.AnswerID, delta); err != nil {
			writeError(writer, err)
			return
		}
		writeJSON(writer, struct{}{})
		s.pushThread(request.Context(), inputs.QuestionID)
	}
}

func (s *Server) rebuild(writer http.ResponseWriter, request *http.Request) {
	s.RequestRebuild()
	writeJSON(writer, struct{}{})
}

func (s *Server) pushTags(ctx context.Context) {
	tags, err := s.database.listTags(ctx)
	if err != nil {
		slog.Error("failed to load tags for push", "err", err)
		return
	}
	s.hub.broadcast(push{UpdateType: "tags", UpdateData: tags}, "")
}

func (s *Server) pushQuestions(ctx context.Context) {
	questions, err := s.database.listQuestions(ctx)
	if err != nil {
		slog.Error("failed to load questions for push", "err", err)
		return
	}
	s.hub.broadcast(push{UpdateType: "questions", UpdateData: questions}, "")
}

func (s *Server) pushThread(ctx context.Context, questionID string) {
	thread, err := s.database.thread(ctx, questionID)
	if err != nil {
		slog.Error("failed to load thread for push", "question", questionID, "err", err)
		return
	}
	s.hub.broadcast(push{UpdateType: "questionThread", UpdateData: thread}, questionID)
}
