package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/oceanheart-ai/passport/internal"
	"github.com/oceanheart-ai/passport/internal/csrf"
	"github.com/oceanheart-ai/passport/internal/email"
	"github.com/oceanheart-ai/passport/internal/handler"
	"github.com/oceanheart-ai/passport/internal/middleware"
	"github.com/oceanheart-ai/passport/internal/service"
	"github.com/oceanheart-ai/passport/internal/store"
	"github.com/oceanheart-ai/passport/internal/token"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// errMigration marks a startup failure as a migration failure, so main
// can exit 2 for it instead of the generic startup exit code 1.
var errMigration = errors.New("migration")

func run() error {
	ctx := context.Background()

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

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if err := internal.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w: %w", errMigration, err)
	}
	logger.Info("database ready")

	userStore := store.NewPostgresUserStore(db)
	var sessionStore store.SessionStore = store.NewPostgresSessionStore(db)
	tokenStore := store.NewPostgresTokenStore(db)

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		redisClient := redis.NewClient(opt)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		sessionStore = store.NewCachedSessionStore(sessionStore, redisClient, cfg.SessionLifetime, logger)
		logger.Info("session cache enabled", "backend", "redis")
	}

	tokenCodec := token.New(token.Config{
		SigningSecret: cfg.SigningSecret,
		Issuer:        cfg.TokenIssuer,
	})

	emailService, err := email.NewSMTPEmailService(
		email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		},
		cfg.BaseURL,
		"web/templates/email",
		logger,
	)
	if err != nil {
		return fmt.Errorf("email service initialization failed: %w", err)
	}
	logger.Info("email service initialized", "host", cfg.SMTPHost, "port", cfg.SMTPPort)

	authService := service.NewAuthService(
		userStore,
		sessionStore,
		tokenStore,
		tokenCodec,
		emailService,
		logger,
		service.UserServiceConfig{SessionDuration: cfg.SessionLifetime},
	)

	if len(cfg.AdminEmails) > 0 {
		logger.Info("admin bootstrap emails configured, promote with passportctl", "count", len(cfg.AdminEmails))
	}

	isSecure := cfg.IsSecure()

	authMw := middleware.NewAuthMiddleware(authService, logger, isSecure)
	rateLimiter := middleware.NewAuthRateLimiter(middleware.AuthRateLimitConfig{
		SignInLimit:  cfg.RateLimitSignInLimit,
		SignInWindow: cfg.RateLimitSignInWindow,
	}, logger)
	csrfCodec := csrf.New(cfg.CSRFSecret)
	csrfMw := middleware.NewCSRFMiddleware(csrfCodec, logger, isSecure)

	renderer, err := handler.NewRenderer(logger)
	if err != nil {
		return fmt.Errorf("renderer initialization failed: %w", err)
	}

	authHandler := handler.NewAuthHandler(authService, renderer, logger, rateLimiter, cfg.CookieParentDomain, isSecure)
	apiHandler := handler.NewAPIHandler(authService, logger)
	adminHandler := handler.NewAdminHandler(authService, renderer, logger)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	browser := middleware.Stack(authMw.WithUser, csrfMw.Protect)
	requireAdmin := middleware.Stack(authMw.WithUser, csrfMw.Protect, authMw.RequireAdmin)

	mux.Handle("GET /", browser(http.HandlerFunc(authHandler.Dashboard)))

	mux.Handle("GET /sign_in", browser(http.HandlerFunc(authHandler.ShowSignIn)))
	mux.Handle("POST /sign_in", rateLimiter.LimitSignIn(browser(http.HandlerFunc(authHandler.SignIn))))
	mux.Handle("GET /sign_up", browser(http.HandlerFunc(authHandler.ShowSignUp)))
	mux.Handle("POST /sign_up", rateLimiter.LimitSignUp(browser(http.HandlerFunc(authHandler.SignUp))))
	mux.Handle("POST /sign_out", browser(http.HandlerFunc(authHandler.SignOut)))
	mux.Handle("DELETE /sign_out", browser(http.HandlerFunc(authHandler.SignOut)))

	mux.Handle("GET /reset_password", browser(http.HandlerFunc(authHandler.ShowRequestReset)))
	mux.Handle("POST /reset_password", rateLimiter.LimitPasswordReset(browser(http.HandlerFunc(authHandler.RequestReset))))
	mux.Handle("GET /reset_password/{token}", browser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHandler.ShowResetPassword(w, r, r.PathValue("token"))
	})))
	mux.Handle("POST /reset_password/{token}", browser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHandler.ResetPassword(w, r, r.PathValue("token"))
	})))
	mux.Handle("GET /verify_email/{token}", browser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHandler.VerifyEmail(w, r, r.PathValue("token"))
	})))

	mux.Handle("GET /admin/users", requireAdmin(http.HandlerFunc(adminHandler.UsersList)))
	mux.Handle("GET /admin/users/{id}", requireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		adminHandler.UserDetail(w, r, r.PathValue("id"))
	})))
	mux.Handle("POST /admin/users/{id}/toggle_role", requireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		adminHandler.ToggleRole(w, r, r.PathValue("id"))
	})))
	mux.Handle("DELETE /admin/users/{id}", requireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		adminHandler.DeleteUser(w, r, r.PathValue("id"))
	})))
	mux.Handle("POST /admin/users/{id}/delete", requireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		adminHandler.DeleteUser(w, r, r.PathValue("id"))
	})))

	corsMw := cors.Handler(cors.Options{
		AllowOriginFunc:  parentDomainOriginFunc(cfg.CookieParentDomain),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	apiMux := http.NewServeMux()
	apiMux.Handle("POST /signin", rateLimiter.LimitSignIn(http.HandlerFunc(apiHandler.SignIn)))
	apiMux.HandleFunc("DELETE /signout", apiHandler.SignOut)
	apiMux.HandleFunc("POST /verify", apiHandler.Verify)
	apiMux.HandleFunc("POST /refresh", apiHandler.Refresh)
	apiMux.HandleFunc("GET /user", apiHandler.CurrentUser)
	apiMux.HandleFunc("POST /password/reset-request", apiHandler.RequestPasswordReset)
	apiMux.HandleFunc("POST /password/reset", apiHandler.ResetPassword)

	mux.Handle("/api/auth/", corsMw(authMw.WithUser(http.StripPrefix("/api/auth", apiMux))))

	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure)
	rootHandler := middleware.Stack(securityMw.Handler, loggingMw.Handler)(mux)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: rootHandler,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
		}
	}()

	<-sigChan
	logger.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("graceful shutdown complete")
	return nil
}

// parentDomainOriginFunc allows an origin that is either the bare
// parent domain or a single-label subdomain of it, mirroring the
// returnTo allowlist. No wildcard is ever accepted alongside credentials.
func parentDomainOriginFunc(parentDomain string) func(r *http.Request, origin string) bool {
	bare := strings.TrimPrefix(parentDomain, ".")
	return func(r *http.Request, origin string) bool {
		if bare == "" {
			return false
		}
		host := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		if host == bare {
			return true
		}
		if strings.HasSuffix(host, "."+bare) {
			label := strings.TrimSuffix(host, "."+bare)
			return label != "" && !strings.Contains(label, ".")
		}
		return false
	}
}

func main() {
	if err := run(); err != nil {
		log.Print(err)
		if errors.Is(err, errMigration) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
