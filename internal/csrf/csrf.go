// Package csrf implements the synchronizer-token CSRF defense used on
// the browser (cookie-driven) surface. The API surface is exempt: it
// authenticates with bearer tokens, never cookies, from the browser.
//
// The cookie value is self-verifying: 32 random bytes plus an
// HMAC-SHA256 signature over those bytes, base64url-encoded. The same
// value is echoed back by the client in a form field or header. On an
// unsafe-method request the handler requires:
//
//  1. the cookie is present
//  2. a client-supplied token is present
//  3. the two are equal, compared in constant time
//  4. the cookie's embedded signature verifies against the CSRF secret
//
// Because the cookie verifies itself, the server does not need to
// track issued tokens anywhere.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"net/http"

	"github.com/oceanheart-ai/passport/internal/session"
)

const (
	// FormFieldName is the name of the CSRF token form field.
	FormFieldName = "csrf_token"

	// HeaderName is the header accepted as an alternative to the form field.
	HeaderName = "X-CSRF-Token"

	// randomBytes is the number of random bytes embedded in a token,
	// matching the 256-bit floor used elsewhere for tokens.
	randomBytes = 32
)

// Codec issues and verifies self-verifying CSRF tokens signed with secret.
type Codec struct {
	secret []byte
}

// New creates a Codec using secret as the HMAC key.
func New(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// Generate produces a new signed token: base64url(random || hmac(random)).
func (c *Codec) Generate() (string, error) {
	buf := make([]byte, randomBytes+sha256.Size)
	if _, err := rand.Read(buf[:randomBytes]); err != nil {
		return "", err
	}
	sig := c.sign(buf[:randomBytes])
	copy(buf[randomBytes:], sig)
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (c *Codec) sign(random []byte) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(random)
	return mac.Sum(nil)
}

// Verify reports whether token is well-formed and its embedded
// signature matches the CSRF secret.
func (c *Codec) Verify(token string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != randomBytes+sha256.Size {
		return false
	}
	want := c.sign(raw[:randomBytes])
	return hmac.Equal(raw[randomBytes:], want)
}

// =============================================================================
// Cookie Management
// =============================================================================

// SetCookie sets the CSRF token cookie on the response.
func SetCookie(w http.ResponseWriter, token string, isSecure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CSRFCookieName,
		Value:    token,
		Path:     session.CookiePath,
		MaxAge:   session.CSRFMaxAge,
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// GetTokenFromRequest retrieves the CSRF token from the request cookie.
// Returns empty string if the cookie doesn't exist.
func GetTokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(session.CSRFCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// clientToken reads the caller-supplied token from the header first,
// falling back to the form field.
func clientToken(r *http.Request) string {
	if h := r.Header.Get(HeaderName); h != "" {
		return h
	}
	return r.FormValue(FormFieldName)
}

// EnsureToken returns the request's existing CSRF token if the cookie
// carries a validly signed one, otherwise it mints and sets a new one.
// Handlers call this on safe methods (GET) to seed the form/cookie.
func (c *Codec) EnsureToken(w http.ResponseWriter, r *http.Request, isSecure bool) string {
	if existing := GetTokenFromRequest(r); existing != "" && c.Verify(existing) {
		return existing
	}

	token, err := c.Generate()
	if err != nil {
		panic("csrf: failed to generate token: " + err.Error())
	}
	SetCookie(w, token, isSecure)
	return token
}

// ValidateRequest checks an unsafe-method request against the
// synchronizer-token contract: cookie and client-supplied token both
// present, equal in constant time, and the cookie's signature valid.
func (c *Codec) ValidateRequest(r *http.Request) bool {
	cookieToken := GetTokenFromRequest(r)
	submitted := clientToken(r)

	if cookieToken == "" || submitted == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(cookieToken), []byte(submitted)) != 1 {
		return false
	}
	return c.Verify(cookieToken)
}
