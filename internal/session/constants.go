// Package session provides shared cookie constants used by both the
// handler and middleware packages. It exists so those two packages
// can agree on cookie names and attributes without importing each
// other.
package session

const (
	// BearerCookieName is the primary cookie carrying a signed bearer token.
	BearerCookieName = "oh_session"

	// LegacyBearerCookieName is accepted on read for backward
	// compatibility with a prior deployment; it is never written.
	LegacyBearerCookieName = "lukaut_session"

	// IDCookieName is the cookie carrying an opaque session token,
	// resolved against the session store.
	IDCookieName = "session_id"

	// CSRFCookieName carries the signed CSRF synchronizer value.
	CSRFCookieName = "csrf_token"

	// CookiePath ensures cookies are sent with all requests.
	CookiePath = "/"

	// MaxAge is the default lifetime, in seconds, of the bearer and
	// session-ID cookies (7 days). This mirrors the default session
	// lifetime and can be overridden by SESSION_LIFETIME.
	MaxAge = 7 * 24 * 60 * 60

	// CSRFMaxAge is the lifetime, in seconds, of the CSRF cookie (24 hours).
	CSRFMaxAge = 24 * 60 * 60
)
