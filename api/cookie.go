package api

import (
	"net/http"
	"time"
)

// CookieConfig configures the session cookie.
type CookieConfig struct {
	Name   string
	Domain string
	MaxAge time.Duration
	// Production sets Secure and SameSite=None for cross-site frontends; otherwise the
	// cookie is SameSite=Lax and not Secure.
	Production bool
}

func (c CookieConfig) withDefaults() CookieConfig {
	if c.Name == "" {
		c.Name = "token"
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 7 * 24 * time.Hour
	}
	return c
}

func (c CookieConfig) sameSite() http.SameSite {
	if c.Production {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func (h *handler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     "/",
		Domain:   h.cookie.Domain,
		MaxAge:   int(h.cookie.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Production,
		SameSite: h.cookie.sameSite(),
	})
}

func (h *handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		Domain:   h.cookie.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Production,
		SameSite: h.cookie.sameSite(),
	})
}
