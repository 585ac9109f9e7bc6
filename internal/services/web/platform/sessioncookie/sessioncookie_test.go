package sessioncookie

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRead(t *testing.T) {
	t.Parallel()

	jar := Jar{}
	if _, ok := jar.Read(nil); ok {
		t.Fatalf("expected nil request to have no session cookie")
	}

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	if _, ok := jar.Read(req); ok {
		t.Fatalf("expected missing cookie")
	}

	req.AddCookie(&http.Cookie{Name: DefaultName, Value: "  ws-1  "})
	value, ok := jar.Read(req)
	if !ok {
		t.Fatalf("expected cookie to be present")
	}
	if value != "ws-1" {
		t.Fatalf("value = %q, want %q", value, "ws-1")
	}
}

func TestWriteMarksSecureOnHTTPS(t *testing.T) {
	t.Parallel()

	jar := Jar{Name: "sid", MaxAge: time.Hour}
	req := httptest.NewRequest(http.MethodGet, "https://app.example.test", nil)
	rr := httptest.NewRecorder()
	jar.Write(rr, req, "ws-1")

	cookie, err := http.ParseSetCookie(rr.Header().Get("Set-Cookie"))
	if err != nil {
		t.Fatalf("ParseSetCookie() error = %v", err)
	}
	if cookie.Name != "sid" || cookie.Value != "ws-1" {
		t.Fatalf("cookie = %s=%s", cookie.Name, cookie.Value)
	}
	if !cookie.Secure || !cookie.HttpOnly {
		t.Fatalf("cookie flags secure=%t httponly=%t", cookie.Secure, cookie.HttpOnly)
	}
	if cookie.MaxAge != 3600 {
		t.Fatalf("MaxAge = %d, want 3600", cookie.MaxAge)
	}
}

func TestWriteOverPlainHTTPIsNotSecure(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "http://app.example.test", nil)
	rr := httptest.NewRecorder()
	Jar{}.Write(rr, req, "ws-1")

	cookie, err := http.ParseSetCookie(rr.Header().Get("Set-Cookie"))
	if err != nil {
		t.Fatalf("ParseSetCookie() error = %v", err)
	}
	if cookie.Secure {
		t.Fatalf("expected non-secure cookie for http request")
	}
}
