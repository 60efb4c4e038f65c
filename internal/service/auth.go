// Package service contains the business logic layer.
//
// AuthService orchestrates the password hasher, token codec, and
// user/session/token stores into the identity operations the rest of
// the system depends on: account creation, sign-in, sign-out, token
// refresh, identity resolution, password management, and the admin
// user-management operations.
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/oceanheart-ai/passport/internal/domain"
	"github.com/oceanheart-ai/passport/internal/email"
	"github.com/oceanheart-ai/passport/internal/password"
	"github.com/oceanheart-ai/passport/internal/store"
	"github.com/oceanheart-ai/passport/internal/token"
)

// SessionTokenBytes is the number of random bytes in a raw session
// token, giving 256 bits of entropy (well above the 128-bit floor).
const SessionTokenBytes = 32

// DefaultSessionDuration is used when UserServiceConfig.SessionDuration is zero.
const DefaultSessionDuration = 7 * 24 * time.Hour

const (
	minSessionDuration = 15 * time.Minute
	maxSessionDuration = 30 * 24 * time.Hour
)

// normalizeSessionDuration clamps a configured session duration into
// a sane range, falling back to DefaultSessionDuration for zero.
func normalizeSessionDuration(d time.Duration) time.Duration {
	if d == 0 {
		return DefaultSessionDuration
	}
	if d < minSessionDuration {
		return minSessionDuration
	}
	if d > maxSessionDuration {
		return maxSessionDuration
	}
	return d
}

// UserServiceConfig configures the AuthService implementation.
type UserServiceConfig struct {
	SessionDuration time.Duration
}

// AuthService defines the identity operations exposed to handlers.
type AuthService interface {
	SignUp(ctx context.Context, params domain.SignUpParams) (*domain.User, error)
	SignIn(ctx context.Context, params domain.SignInParams, rc domain.RequestContext) (*domain.SignInResult, error)
	SignOut(ctx context.Context, sessionToken string) error
	Refresh(ctx context.Context, bearerToken string) (string, time.Time, error)
	ResolveFromToken(ctx context.Context, bearerToken string) (*domain.User, error)
	ResolveFromSession(ctx context.Context, sessionToken string) (*domain.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	ChangePassword(ctx context.Context, params domain.PasswordChangeParams) error
	UpdateProfile(ctx context.Context, params domain.ProfileUpdateParams) error

	RequestPasswordReset(ctx context.Context, emailAddr string) error
	ResetPassword(ctx context.Context, params domain.ResetPasswordParams) error
	VerifyEmail(ctx context.Context, rawToken string) error
	ResendVerification(ctx context.Context, emailAddr string) error

	ListUsers(ctx context.Context, filter domain.UserListFilter, limit, offset int) ([]*domain.User, int, error)
	AdminToggleRole(ctx context.Context, actorID, targetID uuid.UUID) (*domain.User, error)
	AdminDeleteUser(ctx context.Context, actorID, targetID uuid.UUID) error

	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

type authService struct {
	users    store.UserStore
	sessions store.SessionStore
	tokens   store.TokenStore
	codec    *token.Codec
	email    email.EmailService
	logger   *slog.Logger
	cfg      UserServiceConfig
}

// NewAuthService wires the stores, token codec, and email service into
// an AuthService.
func NewAuthService(
	users store.UserStore,
	sessions store.SessionStore,
	tokens store.TokenStore,
	codec *token.Codec,
	emailSvc email.EmailService,
	logger *slog.Logger,
	cfg UserServiceConfig,
) AuthService {
	cfg.SessionDuration = normalizeSessionDuration(cfg.SessionDuration)
	return &authService{
		users: users, sessions: sessions, tokens: tokens,
		codec: codec, email: emailSvc, logger: logger, cfg: cfg,
	}
}

var _ AuthService = (*authService)(nil)

var emailCaser = cases.Fold() // Unicode-safe case folding for email comparison/normalization

func normalizeEmail(raw string) string {
	return emailCaser.String(strings.TrimSpace(raw))
}

// -----------------------------------------------------------------------
// Sign up / sign in / sign out
// -----------------------------------------------------------------------

func (s *authService) SignUp(ctx context.Context, params domain.SignUpParams) (*domain.User, error) {
	const op = "AuthService.SignUp"

	params.Email = normalizeEmail(params.Email)
	params.Name = strings.TrimSpace(params.Name)

	if err := validateEmail(params.Email); err != nil {
		return nil, domain.Wrap(err, domain.EINVALID, op, "invalid email address")
	}
	if err := password.Validate(params.Password); err != nil {
		return nil, domain.Wrap(err, domain.EINVALID, op, "invalid password")
	}

	hash, err := password.Hash(params.Password)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to hash password")
	}

	now := time.Now()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        params.Email,
		PasswordHash: hash,
		Name:         params.Name,
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	if s.tokens != nil && s.email != nil {
		if err := s.dispatchVerificationEmail(ctx, user); err != nil {
			s.logger.Warn("failed to dispatch verification email", "user_id", user.ID, "error", err)
		}
	}

	s.logger.Info("user signed up", "user_id", user.ID, "email", user.Email)
	user.PasswordHash = ""
	return user, nil
}

func (s *authService) SignIn(ctx context.Context, params domain.SignInParams, rc domain.RequestContext) (*domain.SignInResult, error) {
	const op = "AuthService.SignIn"

	normalizedEmail := normalizeEmail(params.Email)
	user, err := s.users.FindByEmail(ctx, normalizedEmail)
	found := err == nil

	if !password.VerifyOrDummy(userPasswordHash(user), found, params.Password) {
		return nil, domain.Unauthorized(op, "invalid email or password")
	}

	rawToken, err := generateRandomToken(SessionTokenBytes)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to generate session token")
	}
	expiresAt := time.Now().Add(s.cfg.SessionDuration)

	sess := &domain.Session{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: hashToken(rawToken),
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, domain.Internal(err, op, "failed to create session")
	}

	bearer, bearerExp, err := s.codec.Issue(user.ID, user.Email)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to issue bearer token")
	}
	if bearerExp.Before(expiresAt) {
		expiresAt = bearerExp
	}

	s.logger.Info("user signed in", "user_id", user.ID)
	user.PasswordHash = ""
	return &domain.SignInResult{
		User:         user,
		SessionToken: rawToken,
		BearerToken:  bearer,
		ExpiresAt:    expiresAt,
	}, nil
}

// userPasswordHash returns u.PasswordHash, or "" when u is nil. Paired
// with found=false this drives password.VerifyOrDummy's dummy-hash path.
func userPasswordHash(u *domain.User) string {
	if u == nil {
		return ""
	}
	return u.PasswordHash
}

func (s *authService) SignOut(ctx context.Context, sessionToken string) error {
	if sessionToken == "" {
		return nil
	}
	sess, err := s.sessions.FindByTokenHash(ctx, hashToken(sessionToken))
	if err != nil {
		return nil // idempotent
	}
	if err := s.sessions.Delete(ctx, sess.ID); err != nil {
		s.logger.Warn("failed to delete session on sign out", "error", err)
	}
	return nil
}

// -----------------------------------------------------------------------
// Refresh and resolution
// -----------------------------------------------------------------------

func (s *authService) Refresh(ctx context.Context, bearerToken string) (string, time.Time, error) {
	const op = "AuthService.Refresh"
	claims, err := s.codec.Verify(bearerToken)
	if err != nil {
		return "", time.Time{}, domain.Unauthorized(op, "invalid or expired token")
	}
	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return "", time.Time{}, domain.Unauthorized(op, "invalid or expired token")
	}
	return s.codec.Issue(user.ID, user.Email)
}

func (s *authService) ResolveFromToken(ctx context.Context, bearerToken string) (*domain.User, error) {
	const op = "AuthService.ResolveFromToken"
	claims, err := s.codec.Verify(bearerToken)
	if err != nil {
		return nil, domain.Unauthorized(op, "invalid or expired token")
	}
	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, domain.Unauthorized(op, "invalid or expired token")
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *authService) ResolveFromSession(ctx context.Context, sessionToken string) (*domain.User, error) {
	const op = "AuthService.ResolveFromSession"
	if sessionToken == "" {
		return nil, domain.Unauthorized(op, "invalid or expired session")
	}
	sess, err := s.sessions.FindByTokenHash(ctx, hashToken(sessionToken))
	if err != nil {
		return nil, domain.Unauthorized(op, "invalid or expired session")
	}
	user, err := s.users.FindByID(ctx, sess.UserID)
	if err != nil {
		return nil, domain.Unauthorized(op, "invalid or expired session")
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *authService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	const op = "AuthService.GetByID"
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.NotFound(op, "user", id.String())
		}
		return nil, err
	}
	user.PasswordHash = ""
	return user, nil
}

// -----------------------------------------------------------------------
// Profile and password management
// -----------------------------------------------------------------------

func (s *authService) UpdateProfile(ctx context.Context, params domain.ProfileUpdateParams) error {
	const op = "AuthService.UpdateProfile"
	params.Name = strings.TrimSpace(params.Name)
	if params.Name == "" {
		return domain.Invalid(op, "name is required")
	}
	if _, err := s.users.FindByID(ctx, params.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.NotFound(op, "user", params.UserID.String())
		}
		return err
	}
	return nil
}

func (s *authService) ChangePassword(ctx context.Context, params domain.PasswordChangeParams) error {
	const op = "AuthService.ChangePassword"

	if err := password.Validate(params.NewPassword); err != nil {
		return domain.Wrap(err, domain.EINVALID, op, "invalid new password")
	}

	user, err := s.users.FindByID(ctx, params.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.NotFound(op, "user", params.UserID.String())
		}
		return err
	}
	if !password.Verify(user.PasswordHash, params.CurrentPassword) {
		return domain.Unauthorized(op, "current password is incorrect")
	}

	hash, err := password.Hash(params.NewPassword)
	if err != nil {
		return domain.Internal(err, op, "failed to hash new password")
	}
	if err := s.users.UpdatePasswordHash(ctx, params.UserID, hash); err != nil {
		return domain.Internal(err, op, "failed to update password")
	}

	if err := s.sessions.DeleteForUser(ctx, params.UserID); err != nil {
		s.logger.Warn("failed to revoke sessions after password change", "user_id", params.UserID, "error", err)
	}

	s.logger.Info("password changed", "user_id", params.UserID)
	return nil
}

// -----------------------------------------------------------------------
// Email verification and password reset
// -----------------------------------------------------------------------

const genericVerificationError = "invalid or expired verification link"
const genericResetError = "invalid or expired reset link"

func (s *authService) dispatchVerificationEmail(ctx context.Context, user *domain.User) error {
	rawToken, err := generateRandomToken(domain.TokenBytes)
	if err != nil {
		return err
	}
	t := &domain.EmailVerificationToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: hashToken(rawToken),
		ExpiresAt: time.Now().Add(domain.EmailVerificationTokenDuration),
		CreatedAt: time.Now(),
	}
	if err := s.tokens.DeleteVerificationTokensForUser(ctx, user.ID); err != nil {
		return err
	}
	if err := s.tokens.CreateVerificationToken(ctx, t); err != nil {
		return err
	}
	return s.email.SendVerificationEmail(ctx, user.Email, user.DisplayName(), rawToken)
}

func (s *authService) VerifyEmail(ctx context.Context, rawToken string) error {
	const op = "AuthService.VerifyEmail"
	if len(rawToken) != domain.TokenBytes*2 {
		return domain.Invalid(op, genericVerificationError)
	}
	t, err := s.tokens.FindVerificationToken(ctx, hashToken(rawToken))
	if err != nil {
		return domain.Invalid(op, genericVerificationError)
	}
	if t.IsExpired() {
		return domain.Invalid(op, genericVerificationError)
	}
	now := time.Now()
	if err := s.users.UpdateEmailVerified(ctx, t.UserID, &now); err != nil {
		return domain.Internal(err, op, "failed to mark email verified")
	}
	if err := s.tokens.DeleteVerificationTokensForUser(ctx, t.UserID); err != nil {
		s.logger.Warn("failed to clean up verification tokens", "user_id", t.UserID, "error", err)
	}
	return nil
}

func (s *authService) ResendVerification(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)
	user, err := s.users.FindByEmail(ctx, emailAddr)
	if err != nil || user.EmailVerified {
		return nil // enumeration-resistant: always succeeds
	}
	if err := s.dispatchVerificationEmail(ctx, user); err != nil {
		s.logger.Warn("failed to resend verification email", "email", emailAddr, "error", err)
	}
	return nil
}

func (s *authService) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)
	user, err := s.users.FindByEmail(ctx, emailAddr)
	if err != nil {
		return nil // enumeration-resistant: always succeeds
	}

	rawToken, err := generateRandomToken(domain.TokenBytes)
	if err != nil {
		s.logger.Warn("failed to generate reset token", "error", err)
		return nil
	}
	t := &domain.PasswordResetToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: hashToken(rawToken),
		ExpiresAt: time.Now().Add(domain.PasswordResetTokenDuration),
		CreatedAt: time.Now(),
	}
	if err := s.tokens.CreateResetToken(ctx, t); err != nil {
		s.logger.Warn("failed to store reset token", "error", err)
		return nil
	}
	if err := s.email.SendPasswordResetEmail(ctx, user.Email, user.DisplayName(), rawToken); err != nil {
		s.logger.Warn("failed to send reset email", "error", err)
	}
	return nil
}

func (s *authService) ResetPassword(ctx context.Context, params domain.ResetPasswordParams) error {
	const op = "AuthService.ResetPassword"
	if len(params.Token) != domain.TokenBytes*2 {
		return domain.Invalid(op, genericResetError)
	}
	if err := password.Validate(params.NewPassword); err != nil {
		return domain.Wrap(err, domain.EINVALID, op, "invalid new password")
	}

	t, err := s.tokens.FindResetToken(ctx, hashToken(params.Token))
	if err != nil || !t.IsValid() {
		return domain.Invalid(op, genericResetError)
	}

	hash, err := password.Hash(params.NewPassword)
	if err != nil {
		return domain.Internal(err, op, "failed to hash new password")
	}
	if err := s.users.UpdatePasswordHash(ctx, t.UserID, hash); err != nil {
		return domain.Internal(err, op, "failed to update password")
	}
	if err := s.tokens.MarkResetTokenUsed(ctx, t.ID); err != nil {
		s.logger.Warn("failed to mark reset token used", "error", err)
	}
	if err := s.sessions.DeleteForUser(ctx, t.UserID); err != nil {
		s.logger.Warn("failed to revoke sessions after password reset", "user_id", t.UserID, "error", err)
	}
	return nil
}

// -----------------------------------------------------------------------
// Admin operations
// -----------------------------------------------------------------------

func (s *authService) ListUsers(ctx context.Context, filter domain.UserListFilter, limit, offset int) ([]*domain.User, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	users, err := s.users.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, domain.Internal(err, "AuthService.ListUsers", "failed to list users")
	}
	total, err := s.users.Count(ctx, filter)
	if err != nil {
		return nil, 0, domain.Internal(err, "AuthService.ListUsers", "failed to count users")
	}
	for _, u := range users {
		u.PasswordHash = ""
	}
	return users, total, nil
}

// AdminToggleRole flips a user between RoleUser and RoleAdmin. An admin
// may not change their own role, so the last admin standing can never
// accidentally lock themselves out.
func (s *authService) AdminToggleRole(ctx context.Context, actorID, targetID uuid.UUID) (*domain.User, error) {
	const op = "AuthService.AdminToggleRole"
	if actorID == targetID {
		return nil, domain.Forbidden(op, "admins cannot change their own role")
	}
	target, err := s.users.FindByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.NotFound(op, "user", targetID.String())
		}
		return nil, err
	}
	newRole := domain.RoleAdmin
	if target.Role == domain.RoleAdmin {
		newRole = domain.RoleUser
	}
	if err := s.users.UpdateRole(ctx, targetID, newRole); err != nil {
		return nil, domain.Internal(err, op, "failed to update role")
	}
	target.Role = newRole
	target.PasswordHash = ""
	s.logger.Info("admin toggled role", "actor_id", actorID, "target_id", targetID, "new_role", newRole)
	return target, nil
}

// AdminDeleteUser removes a user account. An admin may not delete
// their own account through this path.
func (s *authService) AdminDeleteUser(ctx context.Context, actorID, targetID uuid.UUID) error {
	const op = "AuthService.AdminDeleteUser"
	if actorID == targetID {
		return domain.Forbidden(op, "admins cannot delete their own account")
	}
	if err := s.users.Delete(ctx, targetID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.NotFound(op, "user", targetID.String())
		}
		return domain.Internal(err, op, "failed to delete user")
	}
	s.logger.Info("admin deleted user", "actor_id", actorID, "target_id", targetID)
	return nil
}

func (s *authService) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		return 0, domain.Internal(err, "AuthService.DeleteExpiredSessions", "failed to delete expired sessions")
	}
	return n, nil
}

// -----------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------

func generateRandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func validateEmail(addr string) error {
	if addr == "" {
		return domain.Invalid("", "email is required")
	}
	if len(addr) > 254 {
		return domain.Invalid("", "email must be 254 characters or less")
	}
	at := strings.IndexByte(addr, '@')
	if at <= 0 || at == len(addr)-1 || strings.Count(addr, "@") != 1 {
		return domain.Invalid("", "email must be a single address with an @ and a domain")
	}
	if !strings.Contains(addr[at+1:], ".") {
		return domain.Invalid("", "email domain must contain a dot")
	}
	if strings.Contains(addr, "..") {
		return domain.Invalid("", "email cannot contain consecutive dots")
	}
	return nil
}

// compile-time assertion that language.Und stays imported for future
// locale-aware folding; cases.Fold() alone is locale independent today.
var _ = language.Und
