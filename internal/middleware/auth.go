// Package middleware contains HTTP middleware for the passport service.
//
// Middleware functions follow the standard Go pattern of wrapping
// http.Handler. They are designed to be composed using the Stack helper.
package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/oceanheart-ai/passport/internal/auth"
	"github.com/oceanheart-ai/passport/internal/domain"
	"github.com/oceanheart-ai/passport/internal/handler"
	"github.com/oceanheart-ai/passport/internal/service"
	"github.com/oceanheart-ai/passport/internal/session"
)

// =============================================================================
// Auth Middleware Configuration
// =============================================================================

// AuthMiddleware resolves caller identity for every request and enforces
// the authenticated/admin guard policies described below.
type AuthMiddleware struct {
	auth     service.AuthService
	logger   *slog.Logger
	isSecure bool // whether to set Secure on cookies (true in production)
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
func NewAuthMiddleware(authService service.AuthService, logger *slog.Logger, isSecure bool) *AuthMiddleware {
	return &AuthMiddleware{
		auth:     authService,
		logger:   logger,
		isSecure: isSecure,
	}
}

// =============================================================================
// WithUser Middleware
// =============================================================================

// WithUser resolves the caller's identity and attaches it to the request
// context, trying each source in order and stopping at the first success:
//
//  1. Authorization: Bearer <token> header
//  2. Primary session cookie (bearer token)
//  3. Legacy session cookie (bearer token, read-only compat)
//  4. Session-ID cookie (opaque session lookup)
//
// It never rejects a request; handlers that require a user use RequireUser
// or RequireAdmin further down the chain.
func (m *AuthMiddleware) WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := m.resolve(r); user != nil {
			r = r.WithContext(auth.SetUser(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}

func (m *AuthMiddleware) resolve(r *http.Request) *domain.User {
	ctx := r.Context()

	if tok := bearerFromHeader(r); tok != "" {
		if u, err := m.auth.ResolveFromToken(ctx, tok); err == nil {
			return u
		}
	}

	if c, err := r.Cookie(session.BearerCookieName); err == nil && c.Value != "" {
		if u, err := m.auth.ResolveFromToken(ctx, c.Value); err == nil {
			return u
		}
	}

	if c, err := r.Cookie(session.LegacyBearerCookieName); err == nil && c.Value != "" {
		if u, err := m.auth.ResolveFromToken(ctx, c.Value); err == nil {
			return u
		}
	}

	if c, err := r.Cookie(session.IDCookieName); err == nil && c.Value != "" {
		if u, err := m.auth.ResolveFromSession(ctx, c.Value); err == nil {
			return u
		}
	}

	return nil
}

func bearerFromHeader(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return h[len(prefix):]
	}
	return ""
}

// =============================================================================
// RequireUser Middleware
// =============================================================================

// RequireUser requires a caller resolved by WithUser. Unauthenticated API
// requests get a 401 JSON body; unauthenticated browser requests are
// redirected to /sign_in with a sanitized returnTo parameter.
//
// IMPORTANT: must run after WithUser in the chain.
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := auth.GetUserFromRequest(r)
		if user == nil {
			if isAPIRequest(r) {
				handler.UnauthorizedResponse(w, r, m.logger)
				return
			}

			returnTo := r.URL.Path
			if r.URL.RawQuery != "" {
				returnTo += "?" + r.URL.RawQuery
			}
			http.Redirect(w, r, "/sign_in?returnTo="+url.QueryEscape(returnTo), http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// RequireAdmin Middleware
// =============================================================================

// RequireAdmin requires a caller resolved by WithUser with the admin role.
// A non-admin caller gets 403 (API) or 404 (browser, to avoid revealing
// the admin surface exists).
//
// IMPORTANT: must run after WithUser in the chain.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := auth.GetUserFromRequest(r)
		if user == nil {
			if isAPIRequest(r) {
				handler.UnauthorizedResponse(w, r, m.logger)
				return
			}
			http.Redirect(w, r, "/sign_in", http.StatusSeeOther)
			return
		}

		if user.Role != domain.RoleAdmin {
			if isAPIRequest(r) {
				handler.ForbiddenResponse(w, r, m.logger)
				return
			}
			handler.NotFoundResponse(w, r, m.logger)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Request Helpers
// =============================================================================

// isAPIRequest determines if the request expects a JSON response.
//
// Checks:
// 1. URL path starts with /api/
// 2. Accept header contains application/json
// 3. Content-Type is application/json
func isAPIRequest(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}

	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}

	return false
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided: the first middleware in
// the slice is the outermost, running first on the request and last on
// the response.
//
// Example:
//
//	stack := Stack(loggingMw, authMw.WithUser, authMw.RequireUser)
//	mux.Handle("GET /settings", stack(settingsHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// =============================================================================
// Compile-time checks
// =============================================================================

var (
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).WithUser
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireUser
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireAdmin
)
