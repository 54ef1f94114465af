package auth

import (
	"net/http"
	"strings"

	"authplane/backend/internal/apperr"
)

// TokenExtractor pulls a raw credential out of an inbound request. The HTTP
// layer picks the extractor per route: bearer for access tokens, cookie for
// the refresh token.
type TokenExtractor interface {
	Extract(r *http.Request) (string, error)
}

// BearerExtractor reads the token from the Authorization header.
type BearerExtractor struct{}

func (BearerExtractor) Extract(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", apperr.New(apperr.KindUnauthorized, "missing bearer token")
	}
	return strings.TrimSpace(h[len(prefix):]), nil
}

// CookieExtractor reads the refresh token from its httpOnly cookie.
type CookieExtractor struct {
	// Name of the cookie carrying the refresh token.
	Name string
}

func (e CookieExtractor) Extract(r *http.Request) (string, error) {
	c, err := r.Cookie(e.Name)
	if err != nil || c.Value == "" {
		return "", apperr.New(apperr.KindUnauthorized, "missing refresh cookie")
	}
	return c.Value, nil
}
