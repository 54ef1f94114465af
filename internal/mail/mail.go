// Package mail hands mail jobs to the delivery pipeline. Rendering and SMTP
// live in a separate worker; this package only publishes the payloads it
// consumes.
package mail

import "context"

// VerificationMail asks the worker to send the email verification link.
type VerificationMail struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	VerifyURL string `json:"verifyUrl"`
}

// ResetPasswordMail asks the worker to send the password reset link.
type ResetPasswordMail struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	ResetURL string `json:"resetUrl"`
}

// Producer publishes mail jobs. Callers use it best-effort: log and ignore errors.
type Producer interface {
	SendVerification(ctx context.Context, m *VerificationMail) error
	SendResetPassword(ctx context.Context, m *ResetPasswordMail) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
