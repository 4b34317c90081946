package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/astromechza/questionsync/pkg/state"
)

var (
	ErrTagExists      = errors.New("tag already exists")
	ErrInvalidRequest = errors.New("invalid request")
)

// StatusError is returned for responses other than 200 that the session guard let through.
type StatusError struct {
	Method string
	Path   string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status code: %d", e.Method, e.Path, e.Code)
}

// ThreadWatcher is told which thread the user has open, so pushes for it can be routed to this session.
type ThreadWatcher interface {
	SetActiveThread(threadID string)
}

// Client issues the request/response calls of the remote API and dispatches the results into the store.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	store   *state.Store
	watcher ThreadWatcher

	mu    sync.Mutex
	token string

	rebuilding      atomic.Bool
	rebuildRequests atomic.Uint64
	rebuilt         atomic.Uint64
}

// New creates a client for the API under baseURL. httpClient should be wrapped by the session guard.
func New(baseURL string, httpClient *http.Client, store *state.Store, watcher ThreadWatcher) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base url: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: u, http: httpClient, store: store, watcher: watcher}, nil
}

// SetThreadWatcher replaces the watcher told about thread navigation.
func (c *Client) SetThreadWatcher(watcher ThreadWatcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watcher = watcher
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// AuthHeader returns the header that authenticates this session, for use on the push channel too.
func (c *Client) AuthHeader() http.Header {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}

func (c *Client) do(ctx context.Context, method string, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(path).String(), reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.AuthHeader() {
		req.Header[k] = v
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to %s %s: %w", strings.ToLower(method), path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// Login asks the server for a session token and keeps it for later requests.
func (c *Client) Login(ctx context.Context, userID string, fullName string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/login", map[string]string{"userId": userID, "fullName": fullName}, &out); err != nil {
		return "", err
	}
	c.SetToken(out.Token)
	return out.Token, nil
}

func (c *Client) FetchTags(ctx context.Context) ([]state.Tag, error) {
	var tags []state.Tag
	if err := c.do(ctx, http.MethodGet, "/api/tags", nil, &tags); err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []state.Tag{}
	}
	c.store.Dispatch(state.TagsUpdatedAction(tags))
	return tags, nil
}

// CreateTag refuses text that matches a tag the store already holds. The new tag reaches the store through the
// push channel.
func (c *Client) CreateTag(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: tag text is empty", ErrInvalidRequest)
	}
	for _, tag := range c.store.GetState().Tags {
		if tag.Text == text {
			return fmt.Errorf("%w: %q", ErrTagExists, text)
		}
	}
	return c.do(ctx, http.MethodPost, "/api/createTag", map[string]string{"text": text}, nil)
}

func (c *Client) DeleteTag(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, "/api/deleteTag", map[string]int64{"id": id}, nil)
}

func (c *Client) FetchQuestions(ctx context.Context) ([]state.QuestionSummary, error) {
	var questions []state.QuestionSummary
	if err := c.do(ctx, http.MethodGet, "/api/questions", nil, &questions); err != nil {
		return nil, err
	}
	if questions == nil {
		questions = []state.QuestionSummary{}
	}
	c.store.Dispatch(state.QuestionsUpdatedAction(questions))
	return questions, nil
}

type NewQuestion struct {
	Title   string  `json:"title"`
	Tags    []int64 `json:"tags"`
	Details string  `json:"details"`
}

func (c *Client) CreateQuestion(ctx context.Context, q NewQuestion) error {
	if strings.TrimSpace(q.Title) == "" || len(q.Tags) == 0 {
		return fmt.Errorf("%w: a question needs a title and at least one tag", ErrInvalidRequest)
	}
	return c.do(ctx, http.MethodPost, "/api/createQuestion", q, nil)
}

func (c *Client) DeleteQuestion(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/deleteQuestion", map[string]string{"id": id}, nil)
}

// LoadQuestionThread fetches a thread and makes it the open one. This is a navigation, so it replaces whatever
// thread the store held.
func (c *Client) LoadQuestionThread(ctx context.Context, id string) (*state.QuestionThread, error) {
	thread := new(state.QuestionThread)
	if err := c.do(ctx, http.MethodGet, "/api/questionsThread/"+url.PathEscape(id), nil, thread); err != nil {
		return nil, err
	}
	if thread.Answers == nil {
		thread.Answers = []state.Answer{}
	}
	c.store.Dispatch(state.QuestionThreadLoadedAction(thread))
	c.mu.Lock()
	watcher := c.watcher
	c.mu.Unlock()
	if watcher != nil {
		watcher.SetActiveThread(thread.ThreadID())
	}
	return thread, nil
}

type answerRef struct {
	AnswerID   string `json:"answerId"`
	QuestionID string `json:"questionId"`
	Text       string `json:"text,omitempty"`
}

// SaveAnswer updates the answer userID already wrote on the open thread, or creates one.
func (c *Client) SaveAnswer(ctx context.Context, userID string, text string) error {
	thread := c.store.GetState().QuestionThread
	if thread == nil {
		return fmt.Errorf("%w: no question thread is open", ErrInvalidRequest)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: answer text is empty", ErrInvalidRequest)
	}
	if i := state.FindOwnAnswer(thread, userID); i >= 0 {
		return c.do(ctx, http.MethodPost, "/api/updateAnswer", answerRef{
			AnswerID: thread.Answers[i].ID, QuestionID: thread.ThreadID(), Text: text,
		}, nil)
	}
	return c.do(ctx, http.MethodPost, "/api/createAnswer", answerRef{QuestionID: thread.ThreadID(), Text: text}, nil)
}

func (c *Client) DeleteAnswer(ctx context.Context, questionID string, answerID string) error {
	return c.do(ctx, http.MethodPost, "/api/deleteAnswer", answerRef{AnswerID: answerID, QuestionID: questionID}, nil)
}

func (c *Client) UpvoteAnswer(ctx context.Context, questionID string, answerID string) error {
	return c.do(ctx, http.MethodPost, "/api/upvoteAnswer", answerRef{AnswerID: answerID, QuestionID: questionID}, nil)
}

func (c *Client) DownvoteAnswer(ctx context.Context, questionID string, answerID string) error {
	return c.do(ctx, http.MethodPost, "/api/downvoteAnswer", answerRef{AnswerID: answerID, QuestionID: questionID}, nil)
}
