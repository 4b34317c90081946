package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	sessionCookie   = "session"
	sessionLifetime = 24 * time.Hour
)

type user struct {
	ID       string
	FullName string
}

type sessionClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

type authenticator struct {
	secret []byte
	now    func() time.Time
}

func (a *authenticator) issue(u user) (string, error) {
	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		Name: u.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionLifetime)),
		},
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (a *authenticator) verify(raw string) (user, error) {
	claims := new(sessionClaims)
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return user{}, fmt.Errorf("failed to verify token: %w", err)
	}
	if claims.Subject == "" {
		return user{}, errors.New("token has no subject")
	}
	return user{ID: claims.Subject, FullName: claims.Name}, nil
}

// fromRequest reads the session from the Authorization header or, failing that, the session cookie.
func (a *authenticator) fromRequest(r *http.Request) (user, error) {
	raw := ""
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		raw = strings.TrimPrefix(h, "Bearer ")
	} else if c, err := r.Cookie(sessionCookie); err == nil {
		raw = c.Value
	}
	if raw == "" {
		return user{}, errors.New("no session")
	}
	return a.verify(raw)
}
