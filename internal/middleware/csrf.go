package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/oceanheart-ai/passport/internal/csrf"
	"github.com/oceanheart-ai/passport/internal/domain"
	"github.com/oceanheart-ai/passport/internal/handler"
)

// CSRFMiddleware applies the synchronizer-token check to browser
// mutating requests. The API surface is exempt: it is bearer-token
// authenticated and never cookie-driven from the browser.
type CSRFMiddleware struct {
	codec    *csrf.Codec
	logger   *slog.Logger
	isSecure bool
}

// NewCSRFMiddleware creates CSRF middleware backed by codec.
func NewCSRFMiddleware(codec *csrf.Codec, logger *slog.Logger, isSecure bool) *CSRFMiddleware {
	return &CSRFMiddleware{codec: codec, logger: logger, isSecure: isSecure}
}

// Protect issues a token on safe methods and validates it on unsafe
// ones, skipping API routes entirely.
func (m *CSRFMiddleware) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}

		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			m.codec.EnsureToken(w, r, m.isSecure)
		default:
			if !m.codec.ValidateRequest(r) {
				handler.ErrorResponse(w, r, m.logger, domain.Forbidden("csrf.validate", "invalid or missing CSRF token"))
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}
