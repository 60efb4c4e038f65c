package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

// =============================================================================
// RateLimiter Tests
// =============================================================================

func TestNewRateLimiter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	rl := NewRateLimiter(5, time.Minute, logger)

	if rl == nil {
		t.Fatal("expected rate limiter to be created")
	}
	if rl.capacity != 5 {
		t.Errorf("expected capacity=5, got %d", rl.capacity)
	}
	if rl.window != time.Minute {
		t.Errorf("expected window=1m, got %v", rl.window)
	}
}

func TestRateLimiter_Allow_UnderLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	rl := NewRateLimiter(5, time.Minute, logger)

	for i := 0; i < 5; i++ {
		if !rl.Allow("sign_in", "192.168.1.1") {
			t.Errorf("request %d should be allowed", i+1)
		}
	}
}

func TestRateLimiter_Allow_AtLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	rl := NewRateLimiter(5, time.Minute, logger)

	for i := 0; i < 5; i++ {
		rl.Allow("sign_in", "192.168.1.1")
	}

	if rl.Allow("sign_in", "192.168.1.1") {
		t.Error("6th request should be denied")
	}
}

func TestRateLimiter_Allow_DifferentIPs(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	rl := NewRateLimiter(2, time.Minute, logger)

	rl.Allow("sign_in", "192.168.1.1")
	rl.Allow("sign_in", "192.168.1.1")
	if rl.Allow("sign_in", "192.168.1.1") {
		t.Error("IP 1 should be rate limited")
	}

	if !rl.Allow("sign_in", "192.168.1.2") {
		t.Error("IP 2 should not be rate limited")
	}
	if !rl.Allow("sign_in", "192.168.1.2") {
		t.Error("IP 2 should still not be rate limited")
	}
	if rl.Allow("sign_in", "192.168.1.2") {
		t.Error("IP 2 should now be rate limited")
	}
}

func TestRateLimiter_Allow_DifferentLabels(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	rl := NewRateLimiter(1, time.Minute, logger)

	if !rl.Allow("sign_in", "192.168.1.1") {
		t.Error("first sign_in request should be allowed")
	}
	if rl.Allow("sign_in", "192.168.1.1") {
		t.Error("second sign_in request should be denied")
	}
	if !rl.Allow("sign_up", "192.168.1.1") {
		t.Error("sign_up has its own bucket and should be allowed")
	}
}

func TestRateLimiter_RecordFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	rl := NewRateLimiter(5, time.Minute, logger)

	for i := 0; i < 5; i++ {
		rl.RecordFailure("sign_in", "192.168.1.1")
	}

	if rl.Allow("sign_in", "192.168.1.1") {
		t.Error("should be blocked after 5 failures")
	}
}

func TestRateLimiter_Reset(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	rl := NewRateLimiter(2, time.Minute, logger)

	rl.Allow("sign_in", "192.168.1.1")
	rl.Allow("sign_in", "192.168.1.1")
	if rl.Allow("sign_in", "192.168.1.1") {
		t.Error("should be rate limited")
	}

	rl.Reset("sign_in", "192.168.1.1")

	if !rl.Allow("sign_in", "192.168.1.1") {
		t.Error("should be allowed after reset")
	}
}

// =============================================================================
// RateLimitMiddleware Tests
// =============================================================================

func TestRateLimitMiddleware_AllowsRequests(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	rl := NewRateLimiter(5, time.Minute, logger)
	mw := NewRateLimitMiddleware(rl, "sign_in", logger)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := mw.Limit(handler)

	req := httptest.NewRequest("POST", "/sign_in", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}

func TestRateLimitMiddleware_BlocksAfterLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	rl := NewRateLimiter(2, time.Minute, logger)
	mw := NewRateLimitMiddleware(rl, "sign_in", logger)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := mw.Limit(handler)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/sign_in", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rec := httptest.NewRecorder()

		wrapped.ServeHTTP(rec, req)

		if i < 2 && rec.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if i == 2 && rec.Code != http.StatusTooManyRequests {
			t.Errorf("request %d: expected 429, got %d", i+1, rec.Code)
		}
	}
}

func TestRateLimitMiddleware_RetryAfterHeader(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	rl := NewRateLimiter(1, time.Minute, logger)
	mw := NewRateLimitMiddleware(rl, "sign_in", logger)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := mw.Limit(handler)

	req := httptest.NewRequest("POST", "/sign_in", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	req = httptest.NewRequest("POST", "/sign_in", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	rec = httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header to be set")
	}
}

func TestRateLimitMiddleware_HTMLResponse(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	rl := NewRateLimiter(1, time.Minute, logger)
	mw := NewRateLimitMiddleware(rl, "sign_in", logger)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := mw.Limit(handler)

	req := httptest.NewRequest("POST", "/sign_in", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	req = httptest.NewRequest("POST", "/sign_in", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	req.Header.Set("Accept", "text/html")
	rec = httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "text/html; charset=utf-8" {
		t.Errorf("expected text/html content type, got %s", rec.Header().Get("Content-Type"))
	}
}

func TestRateLimitMiddleware_JSONResponse(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	rl := NewRateLimiter(1, time.Minute, logger)
	mw := NewRateLimitMiddleware(rl, "sign_in", logger)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := mw.Limit(handler)

	req := httptest.NewRequest("POST", "/api/auth/sign_in", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	req = httptest.NewRequest("POST", "/api/auth/sign_in", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	rec = httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("expected application/json content type, got %s", rec.Header().Get("Content-Type"))
	}
}

func TestRateLimitMiddleware_XForwardedFor(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	rl := NewRateLimiter(2, time.Minute, logger)
	mw := NewRateLimitMiddleware(rl, "sign_in", logger)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := mw.Limit(handler)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/sign_in", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		req.Header.Set("X-Forwarded-For", "203.0.113.195, 70.41.3.18, 150.172.238.178")
		rec := httptest.NewRecorder()

		wrapped.ServeHTTP(rec, req)

		if i < 2 && rec.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if i == 2 && rec.Code != http.StatusTooManyRequests {
			t.Errorf("request %d: expected 429, got %d", i+1, rec.Code)
		}
	}
}

func TestRateLimitMiddleware_XRealIP(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	rl := NewRateLimiter(2, time.Minute, logger)
	mw := NewRateLimitMiddleware(rl, "sign_in", logger)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := mw.Limit(handler)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/sign_in", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		req.Header.Set("X-Real-IP", "203.0.113.195")
		rec := httptest.NewRecorder()

		wrapped.ServeHTTP(rec, req)

		if i < 2 && rec.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if i == 2 && rec.Code != http.StatusTooManyRequests {
			t.Errorf("request %d: expected 429, got %d", i+1, rec.Code)
		}
	}
}

// =============================================================================
// AuthRateLimiter Tests
// =============================================================================

func TestNewAuthRateLimiter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	arl := NewAuthRateLimiter(AuthRateLimitConfig{SignInLimit: 5, SignInWindow: 15 * time.Minute}, logger)

	if arl == nil {
		t.Fatal("expected auth rate limiter to be created")
	}
	if arl.signIn == nil {
		t.Error("expected sign-in limiter to be created")
	}
	if arl.signUp == nil {
		t.Error("expected sign-up limiter to be created")
	}
	if arl.passwordReset == nil {
		t.Error("expected password reset limiter to be created")
	}
}

func TestAuthRateLimiter_DefaultsWhenUnconfigured(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	arl := NewAuthRateLimiter(AuthRateLimitConfig{}, logger)

	if arl.signIn.capacity != defaultSignInLimit {
		t.Errorf("capacity = %d, want default %d", arl.signIn.capacity, defaultSignInLimit)
	}
	if arl.signIn.window != defaultSignInWindow {
		t.Errorf("window = %v, want default %v", arl.signIn.window, defaultSignInWindow)
	}
}

func TestAuthRateLimiter_SignIn(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	arl := NewAuthRateLimiter(AuthRateLimitConfig{SignInLimit: 5, SignInWindow: 15 * time.Minute}, logger)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := arl.LimitSignIn(handler)

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest("POST", "/sign_in", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rec := httptest.NewRecorder()

		wrapped.ServeHTTP(rec, req)

		if i < 5 && rec.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if i == 5 && rec.Code != http.StatusTooManyRequests {
			t.Errorf("request %d: expected 429, got %d", i+1, rec.Code)
		}
	}
}

// TestAuthRateLimiter_OneDebitPerRequest guards against double-debiting
// the sign-in bucket: LimitSignIn's Allow() is the only token consumer
// per request, so any mix of successful and failed attempts must allow
// exactly SignInLimit requests through before the bucket trips 429.
func TestAuthRateLimiter_OneDebitPerRequest(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	arl := NewAuthRateLimiter(AuthRateLimitConfig{SignInLimit: 10, SignInWindow: 15 * time.Minute}, logger)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Simulate a failed sign-in: the handler no longer debits an
		// extra token on this path, only LimitSignIn's Allow() does.
		w.WriteHeader(http.StatusUnauthorized)
	})
	wrapped := arl.LimitSignIn(handler)

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest("POST", "/sign_in", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rec := httptest.NewRecorder()

		wrapped.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("request %d: expected 401, got %d", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest("POST", "/sign_in", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 on the 11th attempt, got %d", rec.Code)
	}
}

func TestAuthRateLimiter_ResetOnSuccess(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	arl := NewAuthRateLimiter(AuthRateLimitConfig{SignInLimit: 5, SignInWindow: 15 * time.Minute}, logger)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/sign_in", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rec := httptest.NewRecorder()
		arl.LimitSignIn(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})).ServeHTTP(rec, req)
	}
	arl.ResetSignIn("192.168.1.1")

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := arl.LimitSignIn(handler)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("POST", "/sign_in", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rec := httptest.NewRecorder()

		wrapped.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("request %d: expected 200 after reset, got %d", i+1, rec.Code)
		}
	}
}
