// Package queue defines message payloads exchanged over the message
// broker. Mail delivery is an external collaborator: the auth core only
// publishes events describing what to send.
package queue

// Queue names consumed by the mail worker.
const (
	QueueMailVerification  = "mail.verification"
	QueueMailPasswordReset = "mail.password_reset"
	QueueMailRecoveryCodes = "mail.recovery_codes"
)

// MailVerificationEvent asks the mail worker to deliver an email
// verification link. The token is the plaintext single-use value; only its
// hash is stored server-side.
type MailVerificationEvent struct {
	UserID uint64 `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Token  string `json:"token"`
}

// MailPasswordResetEvent asks the mail worker to deliver a password reset
// link.
type MailPasswordResetEvent struct {
	UserID uint64 `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Token  string `json:"token"`
}

// MailRecoveryCodesEvent notifies the user that their two-factor recovery
// codes were regenerated. Codes themselves are never sent by mail.
type MailRecoveryCodesEvent struct {
	UserID uint64 `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}
