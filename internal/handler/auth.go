// Package handler contains the HTTP handlers for the authentication
// core: the browser (HTML + redirects) surface, the JSON API surface,
// and the admin user-management surface.
package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/oceanheart-ai/passport/internal/auth"
	"github.com/oceanheart-ai/passport/internal/clientip"
	"github.com/oceanheart-ai/passport/internal/csrf"
	"github.com/oceanheart-ai/passport/internal/domain"
	"github.com/oceanheart-ai/passport/internal/service"
)

// RateLimiter is the subset of middleware.AuthRateLimiter the auth
// handler needs to adjust bucket state around credential attempts. It
// is declared here, not imported, because middleware imports handler
// for its error-response helpers; *middleware.AuthRateLimiter
// satisfies this interface structurally.
type RateLimiter interface {
	ResetSignIn(ip string)
}

// Flash is a short-lived message rendered once on the next page view.
type Flash struct {
	Type    string // "success", "error", or "info"
	Message string
}

// AuthHandler serves the browser-facing sign-up, sign-in, sign-out,
// password-reset, and email-verification routes.
type AuthHandler struct {
	auth         service.AuthService
	renderer     *Renderer
	logger       *slog.Logger
	rateLimiter  RateLimiter
	parentDomain string
	isSecure     bool
}

// NewAuthHandler wires an AuthHandler. rateLimiter may be nil, in
// which case no bucket adjustment happens around sign-in attempts.
func NewAuthHandler(
	authService service.AuthService,
	renderer *Renderer,
	logger *slog.Logger,
	rateLimiter RateLimiter,
	parentDomain string,
	isSecure bool,
) *AuthHandler {
	return &AuthHandler{
		auth:         authService,
		renderer:     renderer,
		logger:       logger,
		rateLimiter:  rateLimiter,
		parentDomain: parentDomain,
		isSecure:     isSecure,
	}
}

type authPageData struct {
	Title     string
	CSRFToken string
	ReturnTo  string
	Form      map[string]string
	Errors    map[string]string
	Flash     *Flash
}

func csrfTokenFromContext(r *http.Request) string {
	return csrf.GetTokenFromRequest(r)
}

// =============================================================================
// GET/POST /sign_in
// =============================================================================

func (h *AuthHandler) ShowSignIn(w http.ResponseWriter, r *http.Request) {
	if user := auth.GetUserFromRequest(r); user != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	data := authPageData{
		Title:     "Sign in",
		CSRFToken: csrfTokenFromContext(r),
		ReturnTo:  sanitizeReturnTo(r.URL.Query().Get("returnTo"), h.parentDomain),
		Form:      map[string]string{},
		Errors:    map[string]string{},
	}
	h.renderer.Render(w, http.StatusOK, "sign_in", data)
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderSignInError(w, r, nil, map[string]string{"_": "invalid form submission"})
		return
	}

	email := strings.TrimSpace(r.FormValue("email"))
	pw := r.FormValue("password")
	returnTo := sanitizeReturnTo(r.FormValue("returnTo"), h.parentDomain)
	form := map[string]string{"Email": email}

	req := signInRequest{Email: email, Password: pw}
	if err := validate.Struct(req); err != nil {
		h.renderSignInError(w, r, form, fieldErrors(err))
		return
	}

	ip := clientip.Of(r)
	result, err := h.auth.SignIn(r.Context(), domain.SignInParams{Email: email, Password: pw}, domain.RequestContext{
		IPAddress: ip,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.logger.Info("sign-in failed", "email", email)
		h.renderSignInError(w, r, form, map[string]string{"_": "Invalid email or password"})
		return
	}
	if h.rateLimiter != nil {
		h.rateLimiter.ResetSignIn(ip)
	}

	setAuthCookies(w, result, h.parentDomain, h.isSecure)
	http.Redirect(w, r, returnTo, http.StatusSeeOther)
}

func (h *AuthHandler) renderSignInError(w http.ResponseWriter, r *http.Request, form, errs map[string]string) {
	if form == nil {
		form = map[string]string{}
	}
	data := authPageData{
		Title:     "Sign in",
		CSRFToken: csrfTokenFromContext(r),
		ReturnTo:  sanitizeReturnTo(r.FormValue("returnTo"), h.parentDomain),
		Form:      form,
		Errors:    errs,
	}
	h.renderer.Render(w, http.StatusUnauthorized, "sign_in", data)
}

// =============================================================================
// GET/POST /sign_up
// =============================================================================

func (h *AuthHandler) ShowSignUp(w http.ResponseWriter, r *http.Request) {
	if user := auth.GetUserFromRequest(r); user != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	data := authPageData{
		Title:     "Sign up",
		CSRFToken: csrfTokenFromContext(r),
		ReturnTo:  sanitizeReturnTo(r.URL.Query().Get("returnTo"), h.parentDomain),
		Form:      map[string]string{},
		Errors:    map[string]string{},
	}
	h.renderer.Render(w, http.StatusOK, "sign_up", data)
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderSignUpError(w, r, nil, map[string]string{"_": "invalid form submission"})
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	email := strings.TrimSpace(r.FormValue("email"))
	pw := r.FormValue("password")
	returnTo := sanitizeReturnTo(r.FormValue("returnTo"), h.parentDomain)
	form := map[string]string{"Email": email, "Name": name}

	req := signUpRequest{Email: email, Password: pw, Name: name}
	if err := validate.Struct(req); err != nil {
		h.renderSignUpError(w, r, form, fieldErrors(err))
		return
	}

	user, err := h.auth.SignUp(r.Context(), domain.SignUpParams{Email: email, Password: pw, Name: name})
	if err != nil {
		if domain.ErrorCode(err) == domain.ECONFLICT {
			h.renderSignUpError(w, r, form, map[string]string{"email": "An account with this email already exists"})
			return
		}
		h.logger.Error("sign-up failed", "error", err, "email", email)
		h.renderSignUpError(w, r, form, map[string]string{"_": "Could not create your account. Please try again."})
		return
	}

	result, err := h.auth.SignIn(r.Context(), domain.SignInParams{Email: user.Email, Password: pw}, domain.RequestContext{
		IPAddress: clientip.Of(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.logger.Error("auto-signin after sign-up failed", "error", err, "email", email)
		http.Redirect(w, r, "/sign_in", http.StatusSeeOther)
		return
	}

	setAuthCookies(w, result, h.parentDomain, h.isSecure)
	http.Redirect(w, r, returnTo, http.StatusSeeOther)
}

func (h *AuthHandler) renderSignUpError(w http.ResponseWriter, r *http.Request, form, errs map[string]string) {
	if form == nil {
		form = map[string]string{}
	}
	data := authPageData{
		Title:     "Sign up",
		CSRFToken: csrfTokenFromContext(r),
		ReturnTo:  sanitizeReturnTo(r.FormValue("returnTo"), h.parentDomain),
		Form:      form,
		Errors:    errs,
	}
	h.renderer.Render(w, http.StatusUnprocessableEntity, "sign_up", data)
}

// =============================================================================
// POST /sign_out
// =============================================================================

func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if token := sessionTokenFromRequest(r); token != "" {
		if err := h.auth.SignOut(r.Context(), token); err != nil {
			h.logger.Warn("sign-out failed", "error", err)
		}
	}
	clearAuthCookies(w, h.parentDomain, h.isSecure)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// =============================================================================
// GET /
// =============================================================================

type dashboardPageData struct {
	Title     string
	CSRFToken string
	Flash     *Flash
	User      *domain.User
}

func (h *AuthHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromRequest(r)
	data := dashboardPageData{
		Title:     "Passport",
		CSRFToken: csrfTokenFromContext(r),
		User:      user,
	}
	h.renderer.Render(w, http.StatusOK, "dashboard", data)
}

// =============================================================================
// GET/POST /reset_password, GET/POST /reset_password/{token}
// =============================================================================

func (h *AuthHandler) ShowRequestReset(w http.ResponseWriter, r *http.Request) {
	data := authPageData{
		Title:     "Reset password",
		CSRFToken: csrfTokenFromContext(r),
		Form:      map[string]string{},
		Errors:    map[string]string{},
	}
	h.renderer.Render(w, http.StatusOK, "reset_request", data)
}

func (h *AuthHandler) RequestReset(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.Render(w, http.StatusBadRequest, "reset_request", authPageData{
			Title: "Reset password", CSRFToken: csrfTokenFromContext(r),
			Form: map[string]string{}, Errors: map[string]string{"_": "invalid form submission"},
		})
		return
	}
	email := strings.TrimSpace(r.FormValue("email"))

	// Always succeeds from the caller's perspective, even when the
	// address is unknown or the dispatch fails internally.
	if err := h.auth.RequestPasswordReset(r.Context(), email); err != nil {
		h.logger.Warn("password reset request failed", "error", err)
	}

	data := authPageData{
		Title:     "Reset password",
		CSRFToken: csrfTokenFromContext(r),
		Form:      map[string]string{"Email": email},
		Errors:    map[string]string{},
		Flash:     &Flash{Type: "info", Message: "If that address is registered, a reset link is on its way."},
	}
	h.renderer.Render(w, http.StatusOK, "reset_request", data)
}

type resetPasswordPageData struct {
	Title     string
	CSRFToken string
	Token     string
	Errors    map[string]string
	Flash     *Flash
}

func (h *AuthHandler) ShowResetPassword(w http.ResponseWriter, r *http.Request, token string) {
	data := resetPasswordPageData{
		Title:     "Choose a new password",
		CSRFToken: csrfTokenFromContext(r),
		Token:     token,
		Errors:    map[string]string{},
	}
	h.renderer.Render(w, http.StatusOK, "reset_password", data)
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request, token string) {
	if err := r.ParseForm(); err != nil {
		h.renderer.Render(w, http.StatusBadRequest, "reset_password", resetPasswordPageData{
			Title: "Choose a new password", CSRFToken: csrfTokenFromContext(r), Token: token,
			Errors: map[string]string{"_": "invalid form submission"},
		})
		return
	}
	newPassword := r.FormValue("password")

	req := resetPasswordRequest{Token: token, NewPassword: newPassword}
	if err := validate.Struct(req); err != nil {
		h.renderer.Render(w, http.StatusUnprocessableEntity, "reset_password", resetPasswordPageData{
			Title: "Choose a new password", CSRFToken: csrfTokenFromContext(r), Token: token,
			Errors: fieldErrors(err),
		})
		return
	}

	if err := h.auth.ResetPassword(r.Context(), domain.ResetPasswordParams{Token: token, NewPassword: newPassword}); err != nil {
		h.renderer.Render(w, http.StatusUnprocessableEntity, "reset_password", resetPasswordPageData{
			Title: "Choose a new password", CSRFToken: csrfTokenFromContext(r), Token: token,
			Errors: map[string]string{"_": "That reset link is invalid or has expired."},
		})
		return
	}

	http.Redirect(w, r, "/sign_in", http.StatusSeeOther)
}

// =============================================================================
// GET /verify_email/{token}
// =============================================================================

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request, token string) {
	if err := h.auth.VerifyEmail(r.Context(), token); err != nil {
		h.logger.Info("email verification failed", "error", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
