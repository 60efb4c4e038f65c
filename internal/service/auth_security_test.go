package service

import (
	"context"
	"strings"
	"testing"

	"github.com/oceanheart-ai/passport/internal/domain"
)

// TestVerifyEmailGenericErrorMessages checks that a malformed token, an
// expired token, and an unknown token all surface the same message, so
// a caller learns nothing about which case occurred.
func TestVerifyEmailGenericErrorMessages(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	ctx := context.Background()

	cases := []string{
		"short",
		strings.Repeat("a", 100),
		strings.Repeat("a", domain.TokenBytes*2), // well-formed but unknown
	}
	for _, tok := range cases {
		err := svc.VerifyEmail(ctx, tok)
		if err == nil {
			t.Fatalf("expected an error for token %q", tok)
		}
		if domain.ErrorMessage(err) != genericVerificationError {
			t.Errorf("token %q: message = %q, want %q", tok, domain.ErrorMessage(err), genericVerificationError)
		}
	}
}

// TestResetPasswordGenericErrorMessages mirrors the verification case
// for the password-reset token.
func TestResetPasswordGenericErrorMessages(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	ctx := context.Background()

	cases := []string{
		"short",
		strings.Repeat("b", domain.TokenBytes*2),
	}
	for _, tok := range cases {
		err := svc.ResetPassword(ctx, domain.ResetPasswordParams{Token: tok, NewPassword: "newpassword123"})
		if err == nil {
			t.Fatalf("expected an error for token %q", tok)
		}
		if domain.ErrorMessage(err) != genericResetError {
			t.Errorf("token %q: message = %q, want %q", tok, domain.ErrorMessage(err), genericResetError)
		}
	}
}

// TestRequestPasswordResetAlwaysSucceeds verifies the enumeration-resistant
// contract: requesting a reset for an email that doesn't exist returns no
// error, same as for one that does.
func TestRequestPasswordResetAlwaysSucceeds(t *testing.T) {
	svc, _, _, _, emails := newTestService()
	ctx := context.Background()

	if _, err := svc.SignUp(ctx, domain.SignUpParams{Email: "dave@example.com", Password: "correcthorsebattery", Name: "Dave"}); err != nil {
		t.Fatalf("SignUp returned error: %v", err)
	}

	if err := svc.RequestPasswordReset(ctx, "dave@example.com"); err != nil {
		t.Errorf("expected no error for a known email, got %v", err)
	}
	if err := svc.RequestPasswordReset(ctx, "nobody@example.com"); err != nil {
		t.Errorf("expected no error for an unknown email, got %v", err)
	}

	resets := 0
	for _, s := range emails.Sent {
		if strings.HasPrefix(s, "reset:") {
			resets++
		}
	}
	if resets != 1 {
		t.Errorf("expected exactly one reset email sent, got %d", resets)
	}
}

// TestVerifyEmailRoundTrip exercises the full sign-up -> verify flow.
func TestVerifyEmailRoundTrip(t *testing.T) {
	svc, users, _, _, emails := newTestService()
	ctx := context.Background()

	user, err := svc.SignUp(ctx, domain.SignUpParams{Email: "erin@example.com", Password: "correcthorsebattery", Name: "Erin"})
	if err != nil {
		t.Fatalf("SignUp returned error: %v", err)
	}

	stored, err := users.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if stored.EmailVerified {
		t.Error("a freshly created account should not start verified")
	}
	if emails.LastVerifyToken == "" {
		t.Fatal("expected a verification token to have been dispatched")
	}

	if err := svc.VerifyEmail(ctx, emails.LastVerifyToken); err != nil {
		t.Fatalf("VerifyEmail returned error: %v", err)
	}

	stored, err = users.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if !stored.EmailVerified {
		t.Error("expected the account to be verified after VerifyEmail")
	}
}
