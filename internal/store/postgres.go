package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oceanheart-ai/passport/internal/domain"
)

// PostgresUserStore implements UserStore against a database/sql handle
// backed by the pgx stdlib driver.
type PostgresUserStore struct {
	db *sql.DB
}

// NewPostgresUserStore wraps an already-opened database handle.
func NewPostgresUserStore(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

var _ UserStore = (*PostgresUserStore)(nil)

func (s *PostgresUserStore) Create(ctx context.Context, u *domain.User) error {
	const q = `
		INSERT INTO users (id, email, password_hash, name, role, email_verified, email_verified_at, created_at, updated_at)
		VALUES ($1, lower($2), $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.db.ExecContext(ctx, q,
		u.ID, u.Email, u.PasswordHash, u.Name, u.Role, u.EmailVerified, u.EmailVerifiedAt, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Conflict("store.user.create", "an account with this email already exists")
		}
		return fmt.Errorf("store.user.create: %w", err)
	}
	return nil
}

func (s *PostgresUserStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	const q = `
		SELECT id, email, password_hash, name, role, email_verified, email_verified_at, created_at, updated_at
		FROM users WHERE id = $1`
	return scanUser(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresUserStore) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	const q = `
		SELECT id, email, password_hash, name, role, email_verified, email_verified_at, created_at, updated_at
		FROM users WHERE email = lower($1)`
	return scanUser(s.db.QueryRowContext(ctx, q, email))
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role,
		&u.EmailVerified, &u.EmailVerifiedAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store.user.scan: %w", err)
	}
	return &u, nil
}

func (s *PostgresUserStore) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	const q = `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`
	return execAffecting(ctx, s.db, "store.user.update_password", q, id, hash)
}

func (s *PostgresUserStore) UpdateRole(ctx context.Context, id uuid.UUID, role domain.Role) error {
	const q = `UPDATE users SET role = $2, updated_at = now() WHERE id = $1`
	return execAffecting(ctx, s.db, "store.user.update_role", q, id, role)
}

func (s *PostgresUserStore) UpdateEmailVerified(ctx context.Context, id uuid.UUID, verifiedAt *time.Time) error {
	const q = `UPDATE users SET email_verified = true, email_verified_at = $2, updated_at = now() WHERE id = $1`
	return execAffecting(ctx, s.db, "store.user.update_email_verified", q, id, verifiedAt)
}

func (s *PostgresUserStore) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM users WHERE id = $1`
	return execAffecting(ctx, s.db, "store.user.delete", q, id)
}

// userListWhere builds the WHERE clause and its positional arguments
// shared by List and Count, numbering placeholders from $1.
func userListWhere(filter domain.UserListFilter) (string, []any) {
	var clauses []string
	var args []any

	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		clauses = append(clauses, fmt.Sprintf("lower(email) LIKE $%d", len(args)))
	}
	if filter.Role != "" {
		args = append(args, filter.Role)
		clauses = append(clauses, fmt.Sprintf("role = $%d", len(args)))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func (s *PostgresUserStore) List(ctx context.Context, filter domain.UserListFilter, limit, offset int) ([]*domain.User, error) {
	where, args := userListWhere(filter)
	args = append(args, limit, offset)
	q := fmt.Sprintf(`
		SELECT id, email, password_hash, name, role, email_verified, email_verified_at, created_at, updated_at
		FROM users %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store.user.list: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role,
			&u.EmailVerified, &u.EmailVerifiedAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store.user.list: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

func (s *PostgresUserStore) Count(ctx context.Context, filter domain.UserListFilter) (int, error) {
	where, args := userListWhere(filter)
	q := fmt.Sprintf(`SELECT COUNT(*) FROM users %s`, where)
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("store.user.count: %w", err)
	}
	return n, nil
}

func execAffecting(ctx context.Context, db *sql.DB, op, q string, args ...any) error {
	res, err := db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	// pgx/stdlib surfaces an error implementing SQLState(); 23505 is unique_violation.
	type pgErr interface{ SQLState() string }
	var pe pgErr
	if errors.As(err, &pe) {
		return pe.SQLState() == "23505"
	}
	return false
}
