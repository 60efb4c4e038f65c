package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/oceanheart-ai/passport/internal/auth"
	"github.com/oceanheart-ai/passport/internal/clientip"
	"github.com/oceanheart-ai/passport/internal/domain"
	"github.com/oceanheart-ai/passport/internal/service"
)

// APIHandler serves the bearer-authenticated, CSRF-exempt /api/auth/*
// surface consumed by sibling services rather than a browser.
type APIHandler struct {
	auth   service.AuthService
	logger *slog.Logger
}

// NewAPIHandler wires an APIHandler.
func NewAPIHandler(authService service.AuthService, logger *slog.Logger) *APIHandler {
	return &APIHandler{auth: authService, logger: logger}
}

type apiUser struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

func toAPIUser(u *domain.User) apiUser {
	return apiUser{UserID: u.ID.String(), Email: u.Email, Role: string(u.Role)}
}

// writeAPIError writes the flat {success:false, error, message} shape
// the API surface uses, distinct from the browser surface's error
// envelope. shortCode is a PascalCase machine-readable code.
func writeAPIError(w http.ResponseWriter, status int, shortCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   shortCode,
		"message": message,
	})
}

// shortCodeFor maps a domain error to the API's short error code and
// HTTP status. Credential failures always collapse to the same opaque
// code regardless of whether the account exists.
func shortCodeFor(op string, err error) (status int, code, message string) {
	switch domain.ErrorCode(err) {
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized, "InvalidCredentials", "Invalid email or password"
	case domain.EFORBIDDEN:
		return http.StatusForbidden, "Forbidden", "You don't have permission to perform this action"
	case domain.ENOTFOUND:
		return http.StatusNotFound, "NotFound", "The requested resource was not found"
	case domain.ECONFLICT:
		return http.StatusConflict, "Conflict", "The resource already exists"
	case domain.ERATELIMIT:
		return http.StatusTooManyRequests, "RateLimited", "Too many requests, try again later"
	case domain.EINVALID:
		return http.StatusUnprocessableEntity, "InvalidRequest", "The request could not be processed"
	default:
		return http.StatusInternalServerError, "InternalError", "An unexpected error occurred"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// bearerFromRequest extracts a token from the Authorization header
// ("Bearer <token>") or, failing that, a JSON request body field.
func bearerFromRequest(r *http.Request, bodyToken string) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if rest, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return bodyToken
}

// =============================================================================
// POST /api/auth/signin
// =============================================================================

func (h *APIHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAPIError(w, http.StatusBadRequest, "InvalidRequest", "Malformed JSON body")
		return
	}

	req := signInRequest{Email: body.Email, Password: body.Password}
	if err := validate.Struct(req); err != nil {
		writeAPIError(w, http.StatusUnprocessableEntity, "InvalidRequest", "Email and password are required")
		return
	}

	result, err := h.auth.SignIn(r.Context(), domain.SignInParams{Email: body.Email, Password: body.Password}, domain.RequestContext{
		IPAddress: clientip.Of(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		status, code, message := shortCodeFor("signin", err)
		writeAPIError(w, status, code, message)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   result.BearerToken,
		"user":    toAPIUser(result.User),
	})
}

// =============================================================================
// DELETE /api/auth/signout
// =============================================================================

func (h *APIHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if sessionToken := sessionTokenFromRequest(r); sessionToken != "" {
		if err := h.auth.SignOut(r.Context(), sessionToken); err != nil {
			h.logger.Warn("sign-out failed", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// =============================================================================
// POST /api/auth/verify
// =============================================================================

func (h *APIHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	token := bearerFromRequest(r, body.Token)
	if token == "" {
		writeAPIError(w, http.StatusUnauthorized, "InvalidCredentials", "No token provided")
		return
	}

	user, err := h.auth.ResolveFromToken(r.Context(), token)
	if err != nil {
		status, code, message := shortCodeFor("verify", err)
		writeAPIError(w, status, code, message)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"valid": true,
		"user":  toAPIUser(user),
	})
}

// =============================================================================
// POST /api/auth/refresh
// =============================================================================

func (h *APIHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	token := bearerFromRequest(r, body.Token)
	if token == "" {
		writeAPIError(w, http.StatusUnauthorized, "InvalidCredentials", "No token provided")
		return
	}

	newToken, _, err := h.auth.Refresh(r.Context(), token)
	if err != nil {
		status, code, message := shortCodeFor("refresh", err)
		writeAPIError(w, status, code, message)
		return
	}

	user, err := h.auth.ResolveFromToken(r.Context(), newToken)
	if err != nil {
		status, code, message := shortCodeFor("refresh", err)
		writeAPIError(w, status, code, message)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   newToken,
		"user":    toAPIUser(user),
	})
}

// =============================================================================
// GET /api/auth/user
// =============================================================================

func (h *APIHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromRequest(r)
	if user == nil {
		writeAPIError(w, http.StatusUnauthorized, "InvalidCredentials", "Not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": toAPIUser(user)})
}

// =============================================================================
// POST /api/auth/password/reset-request
// =============================================================================

func (h *APIHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAPIError(w, http.StatusBadRequest, "InvalidRequest", "Malformed JSON body")
		return
	}

	// Always reports success, even for an unknown address, so the
	// response cannot be used to enumerate registered emails.
	if err := h.auth.RequestPasswordReset(r.Context(), body.Email); err != nil {
		h.logger.Warn("password reset request failed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// =============================================================================
// POST /api/auth/password/reset
// =============================================================================

func (h *APIHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAPIError(w, http.StatusBadRequest, "InvalidRequest", "Malformed JSON body")
		return
	}

	req := resetPasswordRequest{Token: body.Token, NewPassword: body.Password}
	if err := validate.Struct(req); err != nil {
		writeAPIError(w, http.StatusUnprocessableEntity, "InvalidRequest", "Token and a new password of at least 8 characters are required")
		return
	}

	if err := h.auth.ResetPassword(r.Context(), domain.ResetPasswordParams{Token: body.Token, NewPassword: body.Password}); err != nil {
		status, code, message := shortCodeFor("password.reset", err)
		writeAPIError(w, status, code, message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
