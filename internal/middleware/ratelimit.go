package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/oceanheart-ai/passport/internal/clientip"
)

// =============================================================================
// Rate Limiter
// =============================================================================

// RateLimiter is a token-bucket limiter keyed by (endpoint label, client
// IP), backed by golang.org/x/time/rate. Each key gets its own bucket of
// the configured capacity, refilling at capacity/window per second.
type RateLimiter struct {
	capacity int
	window   time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter    *rate.Limiter
	lastSeenAt time.Time
}

// NewRateLimiter creates a limiter with the given bucket capacity and
// refill window, and starts its background sweeper.
func NewRateLimiter(capacity int, window time.Duration, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		capacity: capacity,
		window:   window,
		logger:   logger,
		buckets:  make(map[string]*bucket),
	}
	go rl.sweep()
	return rl
}

func (rl *RateLimiter) refillRate() rate.Limit {
	return rate.Limit(float64(rl.capacity) / rl.window.Seconds())
}

// Allow reports whether a request keyed by (label, ip) may proceed,
// consuming one token from that key's bucket if so.
func (rl *RateLimiter) Allow(label, ip string) bool {
	return rl.bucketFor(label, ip).limiter.Allow()
}

// RecordFailure consumes a token without the caller having already
// checked Allow; used to weight failed attempts more heavily than an
// initial request where the caller wants to call Allow first and then
// debit again on failure.
func (rl *RateLimiter) RecordFailure(label, ip string) {
	rl.bucketFor(label, ip).limiter.Allow()
}

// Reset replenishes a key's bucket to full, used after a successful
// sign-in so the next attempt from the same IP isn't penalized by
// earlier failures.
func (rl *RateLimiter) Reset(label, ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, label+"|"+ip)
}

// RetryAfter returns a conservative estimate of how long the caller
// should wait before the bucket has a token available again.
func (rl *RateLimiter) RetryAfter(label, ip string) time.Duration {
	b := rl.bucketFor(label, ip)
	reservation := b.limiter.Reserve()
	defer reservation.Cancel()
	return reservation.Delay()
}

func (rl *RateLimiter) bucketFor(label, ip string) *bucket {
	key := label + "|" + ip

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.refillRate(), rl.capacity)}
		rl.buckets[key] = b
	}
	b.lastSeenAt = time.Now()
	return b
}

// sweep evicts buckets idle for more than twice the refill window, so
// memory doesn't grow unbounded with one-off clients.
func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-2 * rl.window)
		rl.mu.Lock()
		for key, b := range rl.buckets {
			if b.lastSeenAt.Before(cutoff) {
				delete(rl.buckets, key)
			}
		}
		rl.mu.Unlock()
	}
}

// =============================================================================
// Rate Limit Middleware
// =============================================================================

// RateLimitMiddleware wraps a rate limiter for use as HTTP middleware
// guarding a single labeled endpoint.
type RateLimitMiddleware struct {
	limiter *RateLimiter
	label   string
	logger  *slog.Logger
}

// NewRateLimitMiddleware creates rate-limit middleware for one endpoint
// label, sharing the given limiter's bucket pool.
func NewRateLimitMiddleware(limiter *RateLimiter, label string, logger *slog.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter, label: label, logger: logger}
}

// Limit returns middleware that rate limits requests by client IP.
func (m *RateLimitMiddleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := getClientIP(r)

		if !m.limiter.Allow(m.label, clientIP) {
			m.logger.Warn("rate limit exceeded",
				"label", m.label,
				"ip", clientIP,
				"path", r.URL.Path,
			)

			retryAfter := int(m.limiter.RetryAfter(m.label, clientIP).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

			if isAPIRequest(r) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "rate_limit_exceeded",
					"message": "Too many requests. Please try again later.",
				})
			} else {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Too Many Requests</title></head>
<body>
<h1>Too Many Requests</h1>
<p>You have made too many requests. Please wait a moment and try again.</p>
</body>
</html>`))
			}
			return
		}

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Auth Rate Limiter
// =============================================================================

// AuthRateLimiter groups the labeled limiters guarding the credential
// endpoints. Sign-in gets the spec's configurable limit; sign-up and
// password reset reuse sane fixed defaults.
type AuthRateLimiter struct {
	signIn         *RateLimiter
	signUp         *RateLimiter
	passwordReset  *RateLimiter
	logger         *slog.Logger
}

// AuthRateLimitConfig configures the sign-in limiter from environment.
type AuthRateLimitConfig struct {
	SignInLimit  int
	SignInWindow time.Duration
}

const (
	defaultSignInLimit  = 10
	defaultSignInWindow = 3 * time.Minute
)

// NewAuthRateLimiter creates rate limiters for the credential endpoints.
func NewAuthRateLimiter(cfg AuthRateLimitConfig, logger *slog.Logger) *AuthRateLimiter {
	limit := cfg.SignInLimit
	if limit <= 0 {
		limit = defaultSignInLimit
	}
	window := cfg.SignInWindow
	if window <= 0 {
		window = defaultSignInWindow
	}

	return &AuthRateLimiter{
		signIn:        NewRateLimiter(limit, window, logger),
		signUp:        NewRateLimiter(5, time.Hour, logger),
		passwordReset: NewRateLimiter(5, time.Hour, logger),
		logger:        logger,
	}
}

// LimitSignIn returns middleware for rate limiting sign-in attempts.
func (a *AuthRateLimiter) LimitSignIn(next http.Handler) http.Handler {
	return NewRateLimitMiddleware(a.signIn, "sign_in", a.logger).Limit(next)
}

// LimitSignUp returns middleware for rate limiting sign-up attempts.
func (a *AuthRateLimiter) LimitSignUp(next http.Handler) http.Handler {
	return NewRateLimitMiddleware(a.signUp, "sign_up", a.logger).Limit(next)
}

// LimitPasswordReset returns middleware for rate limiting password reset requests.
func (a *AuthRateLimiter) LimitPasswordReset(next http.Handler) http.Handler {
	return NewRateLimitMiddleware(a.passwordReset, "password_reset", a.logger).Limit(next)
}

// ResetSignIn replenishes the sign-in bucket for an IP after success.
func (a *AuthRateLimiter) ResetSignIn(ip string) {
	a.signIn.Reset("sign_in", ip)
}

// =============================================================================
// Helpers
// =============================================================================

// getClientIP extracts the client IP from the request, considering proxy headers.
func getClientIP(r *http.Request) string {
	return clientip.Of(r)
}
