package handler

import (
	"net/http"
	"time"

	"github.com/oceanheart-ai/passport/internal/domain"
	"github.com/oceanheart-ai/passport/internal/session"
)

// setAuthCookies writes the primary bearer-token cookie and the
// session-ID cookie after a successful sign-up or sign-in. The legacy
// cookie name is never written, only accepted on read.
func setAuthCookies(w http.ResponseWriter, result *domain.SignInResult, parentDomain string, isSecure bool) {
	maxAge := int(time.Until(result.ExpiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = session.MaxAge
	}

	http.SetCookie(w, &http.Cookie{
		Name:     session.BearerCookieName,
		Value:    result.BearerToken,
		Path:     session.CookiePath,
		Domain:   parentDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     session.IDCookieName,
		Value:    result.SessionToken,
		Path:     session.CookiePath,
		Domain:   parentDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearAuthCookies expires every cookie the middleware reads identity
// from, including the legacy name, so a stale browser cookie jar
// cannot resurrect a signed-out session.
func clearAuthCookies(w http.ResponseWriter, parentDomain string, isSecure bool) {
	for _, name := range []string{session.BearerCookieName, session.LegacyBearerCookieName, session.IDCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     session.CookiePath,
			Domain:   parentDomain,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   isSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// sessionTokenFromRequest returns the raw session token the browser
// presented in the session-ID cookie, or "" when that cookie is absent.
// The bearer cookie is not consulted.
func sessionTokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(session.IDCookieName); err == nil {
		return c.Value
	}
	return ""
}
