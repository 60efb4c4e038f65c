package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/oceanheart-ai/passport/internal/domain"
)

// TokenStore persists email verification and password reset tokens.
type TokenStore interface {
	CreateVerificationToken(ctx context.Context, t *domain.EmailVerificationToken) error
	FindVerificationToken(ctx context.Context, tokenHash string) (*domain.EmailVerificationToken, error)
	DeleteVerificationTokensForUser(ctx context.Context, userID uuid.UUID) error

	CreateResetToken(ctx context.Context, t *domain.PasswordResetToken) error
	FindResetToken(ctx context.Context, tokenHash string) (*domain.PasswordResetToken, error)
	MarkResetTokenUsed(ctx context.Context, id uuid.UUID) error
	DeleteResetTokensForUser(ctx context.Context, userID uuid.UUID) error
}

// PostgresTokenStore implements TokenStore.
type PostgresTokenStore struct {
	db *sql.DB
}

// NewPostgresTokenStore wraps an already-opened database handle.
func NewPostgresTokenStore(db *sql.DB) *PostgresTokenStore {
	return &PostgresTokenStore{db: db}
}

var _ TokenStore = (*PostgresTokenStore)(nil)

func (s *PostgresTokenStore) CreateVerificationToken(ctx context.Context, t *domain.EmailVerificationToken) error {
	const q = `
		INSERT INTO email_verification_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := s.db.ExecContext(ctx, q, t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("store.verification_token.create: %w", err)
	}
	return nil
}

func (s *PostgresTokenStore) FindVerificationToken(ctx context.Context, tokenHash string) (*domain.EmailVerificationToken, error) {
	const q = `
		SELECT id, user_id, token_hash, expires_at, created_at
		FROM email_verification_tokens WHERE token_hash = $1`
	row := s.db.QueryRowContext(ctx, q, tokenHash)
	var t domain.EmailVerificationToken
	if err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store.verification_token.find: %w", err)
	}
	return &t, nil
}

func (s *PostgresTokenStore) DeleteVerificationTokensForUser(ctx context.Context, userID uuid.UUID) error {
	const q = `DELETE FROM email_verification_tokens WHERE user_id = $1`
	_, err := s.db.ExecContext(ctx, q, userID)
	if err != nil {
		return fmt.Errorf("store.verification_token.delete_for_user: %w", err)
	}
	return nil
}

func (s *PostgresTokenStore) CreateResetToken(ctx context.Context, t *domain.PasswordResetToken) error {
	const q = `
		INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at, used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.db.ExecContext(ctx, q, t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.UsedAt, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("store.reset_token.create: %w", err)
	}
	return nil
}

func (s *PostgresTokenStore) FindResetToken(ctx context.Context, tokenHash string) (*domain.PasswordResetToken, error) {
	const q = `
		SELECT id, user_id, token_hash, expires_at, used_at, created_at
		FROM password_reset_tokens WHERE token_hash = $1`
	row := s.db.QueryRowContext(ctx, q, tokenHash)
	var t domain.PasswordResetToken
	if err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.UsedAt, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store.reset_token.find: %w", err)
	}
	return &t, nil
}

func (s *PostgresTokenStore) MarkResetTokenUsed(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE password_reset_tokens SET used_at = now() WHERE id = $1`
	return execAffecting(ctx, s.db, "store.reset_token.mark_used", q, id)
}

func (s *PostgresTokenStore) DeleteResetTokensForUser(ctx context.Context, userID uuid.UUID) error {
	const q = `DELETE FROM password_reset_tokens WHERE user_id = $1`
	_, err := s.db.ExecContext(ctx, q, userID)
	if err != nil {
		return fmt.Errorf("store.reset_token.delete_for_user: %w", err)
	}
	return nil
}
