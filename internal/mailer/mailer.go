// Package mailer is the boundary to the email delivery collaborator.
// Actual delivery happens outside this service, the default implementation
// only records what would have been sent.
package mailer

import (
	"context"

	"studyhub/internal/logger"
)

type Mailer interface {
	SendPasswordReset(ctx context.Context, email string, resetToken string) error
	SendEmailVerification(ctx context.Context, email string, verifyToken string) error
}

// LogMailer writes outgoing mail to the log instead of delivering it
type LogMailer struct {
	Logger logger.Logger
}

func (m LogMailer) SendPasswordReset(ctx context.Context, email string, resetToken string) error {
	m.Logger.Info("password reset mail requested", "email", email, "token", resetToken)
	return nil
}

func (m LogMailer) SendEmailVerification(ctx context.Context, email string, verifyToken string) error {
	m.Logger.Info("email verification mail requested", "email", email, "token", verifyToken)
	return nil
}
