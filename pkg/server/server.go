package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	_ "github.com/mattn/go-sqlite3"
)

type contextKey struct{}

// Server is a reference implementation of the remote API and both push endpoints, backed by sqlite.
type Server struct {
	database *database
	hub      *hub
	auth     *authenticator
	router   *mux.Router

	heartbeat time.Duration
}

// Open opens (or creates) the sqlite database at path and prepares the schema.
func Open(ctx context.Context, path string, jwtSecret string) (*Server, error) {
	slog.Info("Opening database", "path", path)
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps the foreign_keys pragma in force and makes :memory: databases work
	db.SetMaxOpenConns(1)
	s, err := New(ctx, db, jwtSecret)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func New(ctx context.Context, db *sql.DB, jwtSecret string) (*Server, error) {
	if jwtSecret == "" {
		return nil, errors.New("jwt secret is required")
	}
	s := &Server{
		database:  &database{db: db},
		hub:       newHub(),
		auth:      &authenticator{secret: []byte(jwtSecret), now: time.Now},
		heartbeat: 15 * time.Second,
	}
	if err := s.database.init(ctx); err != nil {
		return nil, err
	}
	slog.Info("Ensured initial tables exist")
	s.router = s.routes()
	return s, nil
}

func (s *Server) Close() error {
	return s.database.db.Close()
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Subscribers is the number of connected push channels.
func (s *Server) Subscribers() int {
	return s.hub.count()
}

// RequestRebuild tells every connected client to re-fetch its state.
func (s *Server) RequestRebuild() {
	s.hub.broadcast(push{UpdateType: "stateRebuild"}, "")
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, writer, request)
			slog.Info("handled", "method", request.Method, "url", request.URL, "duration", m.Duration, "status", m.Code)
		})
	})

	api := r.PathPrefix("/api").Subrouter()
	api.Methods(http.MethodPost).Path("/login").HandlerFunc(s.login)
	api.Methods(http.MethodGet).Path("/tags").HandlerFunc(s.getTags)
	api.Methods(http.MethodGet).Path("/questions").HandlerFunc(s.getQuestions)
	api.Methods(http.MethodGet).Path("/questionsThread/{id}").HandlerFunc(s.getThread)
	api.Methods(http.MethodGet).Path("/sse").HandlerFunc(s.sse)
	api.Methods(http.MethodGet).Path("/ws").HandlerFunc(s.ws)

	authed := api.NewRoute().Subrouter()
	authed.Use(s.requireUser)
	authed.Methods(http.MethodPost).Path("/createTag").HandlerFunc(s.createTag)
	authed.Methods(http.MethodPost).Path("/deleteTag").HandlerFunc(s.deleteTag)
	authed.Methods(http.MethodPost).Path("/createQuestion").HandlerFunc(s.createQuestion)
	authed.Methods(http.MethodPost).Path("/deleteQuestion").HandlerFunc(s.deleteQuestion)
	authed.Methods(http.MethodPost).Path("/createAnswer").HandlerFunc(s.createAnswer)
	authed.Methods(http.MethodPost).Path("/updateAnswer").HandlerFunc(s.updateAnswer)
	authed.Methods(http.MethodPost).Path("/deleteAnswer").HandlerFunc(s.deleteAnswer)
	authed.Methods(http.MethodPost).Path("/upvoteAnswer").HandlerFunc(s.voteHandler(1))
	authed.Methods(http.MethodPost).Path("/downvoteAnswer").HandlerFunc(s.voteHandler(-1))
	authed.Methods(http.MethodPost).Path("/rebuild").HandlerFunc(s.rebuild)
	return r
}

func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		u, err := s.auth.fromRequest(request)
		if err != nil {
			slog.Info("rejected request", "url", request.URL, "err", err)
			writer.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(writer, request.WithContext(context.WithValue(request.Context(), contextKey{}, u)))
	})
}

func userFrom(request *http.Request) user {
	u, _ := request.Context().Value(contextKey{}).(user)
	return u
}

func writeJSON(writer http.ResponseWriter, value any) {
	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(value); err != nil {
		slog.Error("failed to write out", "err", err)
	}
}

func writeError(writer http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writer.WriteHeader(http.StatusNotFound)
	case errors.Is(err, ErrConflict):
		writer.WriteHeader(http.StatusConflict)
	case errors.Is(err, ErrForbidden):
		writer.WriteHeader(http.StatusForbidden)
	default:
		slog.Error("request failed", "err", err)
		writer.WriteHeader(http.StatusInternalServerError)
	}
}

func decode(writer http.ResponseWriter, request *http.Request, target any) bool {
	if err := json.NewDecoder(request.Body).Decode(target); err != nil {
		slog.Error("failed to decode body", "err", err)
		writer.WriteHeader(http.StatusBadRequest)
		return false
	}
	return true
}
