package session

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestGuard_redirects_and_rethrows_on_401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/createTag" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var navigated []string
	g := NewGuard(nil, "", NavigatorFunc(func(path string) { navigated = append(navigated, path) }))
	client := g.Client()

	resp, err := client.Get(srv.URL + "/api/tags")
	assert.Equal(t, err, nil)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	_ = resp.Body.Close()
	assert.Equal(t, len(navigated), 0)

	_, err = client.Post(srv.URL+"/api/createTag", "application/json", nil)
	assert.Equal(t, errors.Is(err, ErrUnauthorized), true)
	var authErr *AuthError
	assert.Equal(t, errors.As(err, &authErr), true)
	assert.Equal(t, authErr.Method, http.MethodPost)
	assert.Equal(t, authErr.Status, http.StatusUnauthorized)
	assert.Equal(t, navigated, []string{"/login"})
}

func TestGuard_passes_transport_errors_through(t *testing.T) {
	called := false
	g := NewGuard(nil, "/signin", NavigatorFunc(func(string) { called = true }))
	boom := errors.New("connection refused")
	resp, err := g.Intercept(nil, boom)
	assert.Equal(t, resp == nil, true)
	assert.Equal(t, err, boom)
	assert.Equal(t, called, false)
}

func TestGuard_intercept_without_request(t *testing.T) {
	var navigated string
	g := NewGuard(nil, "/signin", NavigatorFunc(func(path string) { navigated = path }))
	resp := &http.Response{StatusCode: http.StatusUnauthorized, Body: http.NoBody}
	_, err := g.Intercept(resp, nil)
	assert.Equal(t, errors.Is(err, ErrUnauthorized), true)
	assert.Equal(t, navigated, "/signin")

	ok := &http.Response{StatusCode: http.StatusForbidden, Body: http.NoBody, Request: &http.Request{URL: &url.URL{Path: "/x"}}}
	got, err := g.Intercept(ok, nil)
	assert.Equal(t, err, nil)
	assert.Equal(t, got == ok, true)
}
