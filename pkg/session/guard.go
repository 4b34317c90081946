package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// DefaultLoginPath is where users are sent when the server stops accepting their session.
const DefaultLoginPath = "/login"

var ErrUnauthorized = errors.New("unauthorized")

// AuthError is returned for every response carrying 401 after the login redirect has been triggered.
type AuthError struct {
	Method string
	URL    string
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Status, http.StatusText(e.Status))
}

func (e *AuthError) Unwrap() error {
	return ErrUnauthorized
}

// Navigator performs the redirect side effect.
type Navigator interface {
	Navigate(path string)
}

type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) {
	f(path)
}

// Guard is a RoundTripper that watches every exchange for an authentication failure. On 401 it navigates to the
// login path and still fails the request, so callers see the error too.
type Guard struct {
	Base      http.RoundTripper
	LoginPath string
	Navigator Navigator
}

func NewGuard(base http.RoundTripper, loginPath string, navigator Navigator) *Guard {
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	return &Guard{Base: base, LoginPath: loginPath, Navigator: navigator}
}

func (g *Guard) RoundTrip(req *http.Request) (*http.Response, error) {
	base := g.Base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	return g.Intercept(resp, err)
}

// Intercept passes through transport errors and non-401 responses untouched.
func (g *Guard) Intercept(resp *http.Response, err error) (*http.Response, error) {
	if err != nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	authErr := &AuthError{Status: resp.StatusCode}
	if resp.Request != nil {
		authErr.Method = resp.Request.Method
		authErr.URL = resp.Request.URL.String()
	}
	slog.Warn("session rejected, redirecting to login", "url", authErr.URL, "login", g.LoginPath)
	if g.Navigator != nil {
		g.Navigator.Navigate(g.LoginPath)
	}
	return nil, authErr
}

// Client returns an http.Client whose every request goes through the guard.
func (g *Guard) Client() *http.Client {
	return &http.Client{Transport: g}
}
