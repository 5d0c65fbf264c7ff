package handler

import (
	"net/http"
	"time"
)

const (
	SessionCookie      = "session"
	AccessCookie       = "jwt"
	SessionTokenHeader = "X-Session-Token"
)

// Cookies sets and clears the session and access token cookies.
type Cookies struct {
	Secure bool
}

func (c Cookies) set(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c Cookies) SetSession(w http.ResponseWriter, token string, expiresAt time.Time) {
	c.set(w, SessionCookie, token, time.Until(expiresAt))
}

func (c Cookies) SetAccess(w http.ResponseWriter, jwt string, ttl time.Duration) {
	c.set(w, AccessCookie, jwt, ttl)
}

func (c Cookies) Clear(w http.ResponseWriter) {
	for _, name := range []string{AccessCookie, SessionCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Secure:   c.Secure,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// SessionToken returns the session token from the session cookie or the
// X-Session-Token header.
func SessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return r.Header.Get(SessionTokenHeader)
}
