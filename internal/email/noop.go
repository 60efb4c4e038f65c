package email

import "context"

// NoopEmailService discards every send. It backs CLI tools and tests
// that construct an AuthService but never exercise an email-sending
// path.
type NoopEmailService struct{}

func NewNoopEmailService() *NoopEmailService { return &NoopEmailService{} }

func (NoopEmailService) SendVerificationEmail(ctx context.Context, to, name, token string) error {
	return nil
}

func (NoopEmailService) SendPasswordResetEmail(ctx context.Context, to, name, token string) error {
	return nil
}
