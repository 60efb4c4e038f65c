// Command passportctl is the operator CLI for the authentication
// core: sweeping expired sessions and bootstrapping the first admin
// account, both of which sit outside any HTTP route.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/oceanheart-ai/passport/internal"
	"github.com/oceanheart-ai/passport/internal/domain"
	"github.com/oceanheart-ai/passport/internal/email"
	"github.com/oceanheart-ai/passport/internal/service"
	"github.com/oceanheart-ai/passport/internal/store"
	"github.com/oceanheart-ai/passport/internal/token"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func run(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: passportctl <sweep-sessions|promote-admin> [args]")
	}

	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	switch args[0] {
	case "sweep-sessions":
		return sweepSessions(ctx, db, cfg, logger)
	case "promote-admin":
		if len(args) < 2 {
			return fmt.Errorf("usage: passportctl promote-admin <email>")
		}
		return promoteAdmin(ctx, db, args[1])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func sweepSessions(ctx context.Context, db *sql.DB, cfg *internal.Config, logger *slog.Logger) error {
	userStore := store.NewPostgresUserStore(db)
	sessionStore := store.NewPostgresSessionStore(db)
	tokenStore := store.NewPostgresTokenStore(db)
	tokenCodec := token.New(token.Config{SigningSecret: cfg.SigningSecret, Issuer: cfg.TokenIssuer})
	emailService := email.NewNoopEmailService()

	authService := service.NewAuthService(
		userStore, sessionStore, tokenStore, tokenCodec, emailService, logger,
		service.UserServiceConfig{SessionDuration: cfg.SessionLifetime},
	)

	count, err := authService.DeleteExpiredSessions(ctx)
	if err != nil {
		return fmt.Errorf("sweep-sessions failed: %w", err)
	}
	fmt.Printf("swept %d expired session(s)\n", count)
	return nil
}

func promoteAdmin(ctx context.Context, db *sql.DB, emailAddr string) error {
	userStore := store.NewPostgresUserStore(db)

	user, err := userStore.FindByEmail(ctx, emailAddr)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", emailAddr, err)
	}
	if user.Role == domain.RoleAdmin {
		fmt.Printf("%s is already an admin\n", emailAddr)
		return nil
	}
	if err := userStore.UpdateRole(ctx, user.ID, domain.RoleAdmin); err != nil {
		return fmt.Errorf("promote %s: %w", emailAddr, err)
	}
	fmt.Printf("promoted %s to admin\n", emailAddr)
	return nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
