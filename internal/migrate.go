package internal

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// advisoryLockKey is an arbitrary constant used as the pg_advisory_lock
// key so that concurrently starting replicas serialize around running
// migrations instead of racing goose.
const advisoryLockKey = 8817234

// RunMigrations applies pending goose migrations, holding a session-level
// Postgres advisory lock for the duration so that multiple replicas
// starting at once don't run goose.Up concurrently against the same
// database.
func RunMigrations(db *sql.DB) error {
	ctx := context.Background()

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockKey)

	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	return goose.Up(db, "migrations")
}
