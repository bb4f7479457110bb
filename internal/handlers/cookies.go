package handlers

import (
	"net/http"
	"time"
)

const (
	principalCookieName = "authgate_session"
	stateCookieName     = "authgate_oauth_state"
)

// CookieConfig controls the cookies set during the OAuth2 flow.
type CookieConfig struct {
	// Secure marks cookies HTTPS-only; set it when BASE_URL is https.
	Secure       bool
	PrincipalTTL time.Duration
	StateTTL     time.Duration
}

func (c CookieConfig) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   c.Secure,
		// Lax so the cookie survives the top-level redirect back from GitHub.
		SameSite: http.SameSiteLaxMode,
	}
}

func (c CookieConfig) setPrincipal(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, c.cookie(principalCookieName, sessionID, c.PrincipalTTL))
}

func (c CookieConfig) setState(w http.ResponseWriter, state string) {
	http.SetCookie(w, c.cookie(stateCookieName, state, c.StateTTL))
}

func (c CookieConfig) clear(w http.ResponseWriter, name string) {
	cookie := c.cookie(name, "", 0)
	cookie.MaxAge = -1
	http.SetCookie(w, cookie)
}

func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
