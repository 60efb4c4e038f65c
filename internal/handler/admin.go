package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/oceanheart-ai/passport/internal/auth"
	"github.com/oceanheart-ai/passport/internal/domain"
	"github.com/oceanheart-ai/passport/internal/service"
)

const adminUsersPageSize = 25

// AdminHandler serves the admin-only user-management surface: a
// paginated list, a detail page, role toggling, and deletion, each
// guarded against an admin acting on their own account.
type AdminHandler struct {
	auth     service.AuthService
	renderer *Renderer
	logger   *slog.Logger
}

// NewAdminHandler wires an AdminHandler.
func NewAdminHandler(authService service.AuthService, renderer *Renderer, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{auth: authService, renderer: renderer, logger: logger}
}

type adminUserRow struct {
	ID            uuid.UUID
	Email         string
	Role          domain.Role
	EmailVerified bool
}

type adminUsersPageData struct {
	Title      string
	CSRFToken  string
	Search     string
	Role       string
	Users      []adminUserRow
	Page       int
	TotalPages int
	Total      int
}

// UsersList renders the paginated user list, narrowed by the optional
// q (email substring) and role query parameters.
func (h *AdminHandler) UsersList(w http.ResponseWriter, r *http.Request) {
	page := 1
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	offset := (page - 1) * adminUsersPageSize

	search := r.URL.Query().Get("q")
	role := domain.Role(r.URL.Query().Get("role"))
	filter := domain.UserListFilter{Search: search, Role: role}

	users, total, err := h.auth.ListUsers(r.Context(), filter, adminUsersPageSize, offset)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	rows := make([]adminUserRow, 0, len(users))
	for _, u := range users {
		rows = append(rows, adminUserRow{ID: u.ID, Email: u.Email, Role: u.Role, EmailVerified: u.EmailVerified})
	}

	totalPages := (total + adminUsersPageSize - 1) / adminUsersPageSize
	if totalPages < 1 {
		totalPages = 1
	}

	data := adminUsersPageData{
		Title:      "Users",
		CSRFToken:  csrfTokenFromContext(r),
		Search:     search,
		Role:       string(role),
		Users:      rows,
		Page:       page,
		TotalPages: totalPages,
		Total:      total,
	}
	h.renderer.Render(w, http.StatusOK, "admin_users", data)
}

type adminUserDetailPageData struct {
	Title      string
	CSRFToken  string
	TargetUser *domain.User
	IsSelf     bool
}

// UserDetail renders a single user's admin detail page.
func (h *AdminHandler) UserDetail(w http.ResponseWriter, r *http.Request, id string) {
	targetID, err := uuid.Parse(id)
	if err != nil {
		NotFoundResponse(w, r, h.logger)
		return
	}

	target, err := h.auth.GetByID(r.Context(), targetID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	actor := auth.GetUserFromRequest(r)
	data := adminUserDetailPageData{
		Title:      target.DisplayName(),
		CSRFToken:  csrfTokenFromContext(r),
		TargetUser: target,
		IsSelf:     actor != nil && actor.ID == target.ID,
	}
	h.renderer.Render(w, http.StatusOK, "admin_user_detail", data)
}

// ToggleRole flips a user between "user" and "admin". An admin cannot
// change their own role, which would risk leaving no admin behind.
func (h *AdminHandler) ToggleRole(w http.ResponseWriter, r *http.Request, id string) {
	actor := auth.GetUserFromRequest(r)
	targetID, err := uuid.Parse(id)
	if err != nil {
		NotFoundResponse(w, r, h.logger)
		return
	}

	if actor != nil && actor.ID == targetID {
		ErrorResponse(w, r, h.logger, domain.Forbidden("AdminHandler.ToggleRole", "Cannot modify your own role"))
		return
	}

	if _, err := h.auth.AdminToggleRole(r.Context(), actor.ID, targetID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	http.Redirect(w, r, "/admin/users/"+id, http.StatusSeeOther)
}

// DeleteUser removes a user's account. An admin cannot delete their
// own account through this endpoint.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request, id string) {
	actor := auth.GetUserFromRequest(r)
	targetID, err := uuid.Parse(id)
	if err != nil {
		NotFoundResponse(w, r, h.logger)
		return
	}

	if actor != nil && actor.ID == targetID {
		ErrorResponse(w, r, h.logger, domain.Forbidden("AdminHandler.DeleteUser", "Cannot delete your own account"))
		return
	}

	if err := h.auth.AdminDeleteUser(r.Context(), actor.ID, targetID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
}
