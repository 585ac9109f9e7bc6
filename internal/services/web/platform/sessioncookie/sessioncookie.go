// Package sessioncookie centralizes web session cookie behavior.
package sessioncookie

import (
	"net/http"
	"strings"
	"time"

	"github.com/louisbranch/reqflash/internal/services/web/platform/requestmeta"
)

// DefaultName is the canonical web session cookie name.
const DefaultName = "reqflash_session"

// Jar reads and writes the session cookie.
type Jar struct {
	// Name overrides DefaultName.
	Name string
	// Policy decides whether the cookie is marked Secure.
	Policy requestmeta.SchemePolicy
	// MaxAge bounds cookie lifetime; zero keeps a browser-session cookie.
	MaxAge time.Duration
}

func (j Jar) name() string {
	if name := strings.TrimSpace(j.Name); name != "" {
		return name
	}
	return DefaultName
}

// Read returns the trimmed session cookie value when present.
func (j Jar) Read(r *http.Request) (string, bool) {
	if r == nil {
		return "", false
	}
	cookie, err := r.Cookie(j.name())
	if err != nil || cookie == nil {
		return "", false
	}
	value := strings.TrimSpace(cookie.Value)
	if value == "" {
		return "", false
	}
	return value, true
}

// Write sets the session cookie for the current request context.
func (j Jar) Write(w http.ResponseWriter, r *http.Request, sessionID string) {
	if w == nil {
		return
	}
	cookie := j.base(r)
	cookie.Value = strings.TrimSpace(sessionID)
	if j.MaxAge > 0 {
		cookie.MaxAge = int(j.MaxAge / time.Second)
	}
	http.SetCookie(w, cookie)
}

func (j Jar) base(r *http.Request) *http.Cookie {
	return &http.Cookie{
		Name:     j.name(),
		Path:     "/",
		HttpOnly: true,
		Secure:   requestmeta.IsHTTPSWithPolicy(r, j.Policy),
		SameSite: http.SameSiteLaxMode,
	}
}
