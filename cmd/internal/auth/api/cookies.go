package authapi

import (
	"net/http"
	"time"

	"parley/cmd/internal/auth/session"
)

func (h *Handler) setTokenCookies(w http.ResponseWriter, pair session.Pair) {
	h.setCookie(w, AccessCookieName, pair.AccessToken, pair.AccessExp)
	h.setCookie(w, RefreshCookieName, pair.RefreshToken, pair.RefreshExp)
}

func (h *Handler) clearTokenCookies(w http.ResponseWriter) {
	for _, name := range []string{AccessCookieName, RefreshCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     h.cfg.CookiePath,
			Domain:   h.cfg.CookieDomain,
			Expires:  time.Unix(0, 0).UTC(),
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.cfg.CookieSecure,
			SameSite: h.cfg.CookieSameSite,
		})
	}
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, exp time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  exp,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
}
