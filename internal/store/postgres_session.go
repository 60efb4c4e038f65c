package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/oceanheart-ai/passport/internal/domain"
)

// PostgresSessionStore implements SessionStore against a database/sql
// handle backed by the pgx stdlib driver.
type PostgresSessionStore struct {
	db *sql.DB
}

// NewPostgresSessionStore wraps an already-opened database handle.
func NewPostgresSessionStore(db *sql.DB) *PostgresSessionStore {
	return &PostgresSessionStore{db: db}
}

var _ SessionStore = (*PostgresSessionStore)(nil)

func (s *PostgresSessionStore) Create(ctx context.Context, sess *domain.Session) error {
	const q = `
		INSERT INTO sessions (id, user_id, token_hash, ip_address, user_agent, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.db.ExecContext(ctx, q,
		sess.ID, sess.UserID, sess.TokenHash, sess.IPAddress, sess.UserAgent, sess.ExpiresAt, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("store.session.create: %w", err)
	}
	return nil
}

// FindByTokenHash returns the session matching the hash. An expired
// session is treated as absent even though the row may still exist,
// so the caller never needs a separate expiry check.
func (s *PostgresSessionStore) FindByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	const q = `
		SELECT id, user_id, token_hash, ip_address, user_agent, expires_at, created_at
		FROM sessions WHERE token_hash = $1 AND expires_at > now()`
	row := s.db.QueryRowContext(ctx, q, tokenHash)
	var sess domain.Session
	err := row.Scan(&sess.ID, &sess.UserID, &sess.TokenHash, &sess.IPAddress, &sess.UserAgent, &sess.ExpiresAt, &sess.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store.session.find: %w", err)
	}
	return &sess, nil
}

func (s *PostgresSessionStore) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM sessions WHERE id = $1`
	_, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("store.session.delete: %w", err)
	}
	return nil
}

func (s *PostgresSessionStore) DeleteForUser(ctx context.Context, userID uuid.UUID) error {
	const q = `DELETE FROM sessions WHERE user_id = $1`
	_, err := s.db.ExecContext(ctx, q, userID)
	if err != nil {
		return fmt.Errorf("store.session.delete_for_user: %w", err)
	}
	return nil
}

func (s *PostgresSessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	const q = `DELETE FROM sessions WHERE expires_at <= now()`
	res, err := s.db.ExecContext(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("store.session.delete_expired: %w", err)
	}
	return res.RowsAffected()
}
