// Package auth implements the credential, token and second-factor
// primitives behind the authentication endpoints: peppered password
// hashing, signed access tokens, opaque refresh tokens, TOTP and one-time
// recovery codes.
package auth

import "errors"

// Sentinel errors form the externally observable failure taxonomy.
// Handlers translate these into HTTP responses; anything not listed here
// surfaces as a 500 untouched. Bad-signature, expired and revoked token
// conditions all collapse into ErrTokenInvalid so a response never reveals
// which check failed.
var (
	// ErrInvalidCredentials covers unknown email and wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrTokenInvalid covers missing, malformed, expired and revoked tokens.
	ErrTokenInvalid = errors.New("invalid or expired token")

	// ErrTokenReuse flags a rotation attempt on a refresh token whose cache
	// mirror is gone while its ledger row has not expired — a likely replay.
	// Surfaced with a distinct message; it carries no enumeration risk.
	ErrTokenReuse = errors.New("token has been revoked")

	// ErrAccountDisabled is returned for deactivated accounts. Not
	// security-sensitive, so it is surfaced distinctly.
	ErrAccountDisabled = errors.New("account disabled")

	// ErrTwoFactorRequired is not a failure: login succeeded on the password
	// but a TOTP code must be supplied before tokens are issued.
	ErrTwoFactorRequired = errors.New("two-factor code required")

	// ErrTwoFactorInvalid covers wrong, expired and replayed TOTP codes.
	ErrTwoFactorInvalid = errors.New("invalid two-factor code")

	// ErrRecoveryInvalid is returned when no unused recovery code matches.
	ErrRecoveryInvalid = errors.New("invalid recovery code")
)
