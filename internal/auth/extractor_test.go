package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBearerExtractor(t *testing.T) {
	e := BearerExtractor{}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer abc.def.ghi")
	got, err := e.Extract(r)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "abc.def.ghi" {
		t.Fatalf("token = %q", got)
	}

	for _, header := range []string{"", "Basic abc", "Bearer", "Bearer "} {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		if _, err := e.Extract(r); err == nil {
			t.Fatalf("header %q should not yield a token", header)
		}
	}
}

func TestCookieExtractor(t *testing.T) {
	e := CookieExtractor{Name: "refreshToken"}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "refreshToken", Value: "abc.def.ghi"})
	got, err := e.Extract(r)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "abc.def.ghi" {
		t.Fatalf("token = %q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := e.Extract(r); err == nil {
		t.Fatal("missing cookie should not yield a token")
	}
}
