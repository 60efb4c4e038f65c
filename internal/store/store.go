// Package store implements persistence for users and sessions.
//
// UserStore and SessionStore are storage-shape interfaces consumed by
// the auth service; PostgresUserStore and PostgresSessionStore implement
// them against a database/sql handle, and CachedSessionStore wraps a
// SessionStore with a Redis read-through cache.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/oceanheart-ai/passport/internal/domain"
)

// ErrNotFound is returned by store lookups that find no matching row.
var ErrNotFound = errors.New("store: not found")

// UserStore persists user accounts.
type UserStore interface {
	Create(ctx context.Context, u *domain.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
	UpdateRole(ctx context.Context, id uuid.UUID, role domain.Role) error
	UpdateEmailVerified(ctx context.Context, id uuid.UUID, verifiedAt *time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter domain.UserListFilter, limit, offset int) ([]*domain.User, error)
	Count(ctx context.Context, filter domain.UserListFilter) (int, error)
}

// SessionStore persists authenticated sessions, keyed by the SHA-256
// hash of the raw session token.
type SessionStore interface {
	Create(ctx context.Context, s *domain.Session) error
	FindByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteForUser(ctx context.Context, userID uuid.UUID) error
	DeleteExpired(ctx context.Context) (int64, error)
}
