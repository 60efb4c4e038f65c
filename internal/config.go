package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime configuration for the authentication core.
// Values are read from the environment; NewConfig applies the defaults
// and required-field checks described by the deployment contract.
type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	SigningSecret string
	CSRFSecret    string
	TokenIssuer   string

	CookieParentDomain string

	SessionLifetime time.Duration

	RateLimitSignInLimit  int
	RateLimitSignInWindow time.Duration

	// RedisURL enables the session read-through cache when non-empty.
	// Empty disables the cache and the session store talks to Postgres
	// directly.
	RedisURL string

	// SMTP configuration for verification and password-reset email.
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string

	// BaseURL is used to build links embedded in transactional email.
	BaseURL string

	// AdminEmails is read from ADMIN_EMAILS and only reported at startup;
	// no role is granted from it. Admins are promoted with
	// `passportctl promote-admin`.
	AdminEmails []string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists, in every environment.
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnvInt("LISTEN_PORT", 3000),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		SessionLifetime: getEnvDuration("SESSION_LIFETIME", 7*24*time.Hour),

		RateLimitSignInLimit:  getEnvInt("RATE_LIMIT_SIGNIN_LIMIT", 10),
		RateLimitSignInWindow: getEnvDuration("RATE_LIMIT_SIGNIN_WINDOW", 3*time.Minute),

		RedisURL: getEnv("REDIS_URL", ""),

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnvInt("SMTP_PORT", 1025),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@oceanheart.ai"),
		SMTPFromName: getEnv("SMTP_FROM_NAME", "Passport"),

		BaseURL: getEnv("BASE_URL", "http://localhost:3000"),
	}

	adminEmailsStr := getEnv("ADMIN_EMAILS", "")
	if adminEmailsStr != "" {
		for _, email := range strings.Split(adminEmailsStr, ",") {
			trimmed := strings.TrimSpace(strings.ToLower(email))
			if trimmed != "" {
				cfg.AdminEmails = append(cfg.AdminEmails, trimmed)
			}
		}
	}

	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg.SigningSecret = os.Getenv("SIGNING_SECRET")
	if cfg.SigningSecret == "" {
		return nil, fmt.Errorf("SIGNING_SECRET is required")
	}

	cfg.TokenIssuer = os.Getenv("TOKEN_ISSUER")
	if cfg.TokenIssuer == "" {
		return nil, fmt.Errorf("TOKEN_ISSUER is required")
	}

	cfg.CookieParentDomain = os.Getenv("COOKIE_PARENT_DOMAIN")
	if cfg.CookieParentDomain == "" {
		return nil, fmt.Errorf("COOKIE_PARENT_DOMAIN is required")
	}

	cfg.Env = os.Getenv("ENVIRONMENT")
	switch cfg.Env {
	case "development", "test", "production":
	default:
		return nil, fmt.Errorf("ENVIRONMENT must be one of development, test, production, got: %s", cfg.Env)
	}

	// CSRF_SECRET falls back to the token signing secret when unset,
	// per the deployment contract.
	cfg.CSRFSecret = getEnv("CSRF_SECRET", cfg.SigningSecret)

	return cfg, nil
}

// IsSecure reports whether cookies should carry the Secure attribute.
func (c *Config) IsSecure() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
