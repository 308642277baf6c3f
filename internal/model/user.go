package model

import "time"

// Roles stored in users.role. The access token carries the role at issue
// time; authorization middleware re-checks it against this enumeration.
const (
	RoleUser      = "USER"
	RoleModerator = "MODERATOR"
	RoleAdmin     = "ADMIN"
)

// User mirrors the 'users' table. PasswordHash is nil for accounts created
// through an OAuth provider that never set a password. TOTPSecret is set
// during two-factor setup but twoFactorEnabled only flips after the first
// successful verification. LastTOTPStep records the most recent accepted
// TOTP time-step so a code cannot be replayed within its validity window.
type User struct {
	ID              uint64
	Email           string
	PasswordHash    *string
	Name            string
	Role            string
	IsActive        bool
	IsEmailVerified bool
	ConsentGiven    bool
	ConsentAt       *time.Time
	TOTPSecret      *string
	TOTPEnabled     bool
	LastTOTPStep    int64
	GoogleID        *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RefreshToken models an entry in the `refresh_tokens` table. Each refresh
// token belongs to a user and carries metadata for expiry and revocation.
// The plain token is never stored; only its SHA-256 hash. Rows are never
// deleted (except by user-deletion cascade): revocation sets RevokedAt.
type RefreshToken struct {
	ID        uint64
	UserID    uint64
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	UserAgent string
	IP        string
	CreatedAt time.Time
}

// Active reports whether the token is neither revoked nor expired at now.
func (t RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// RecoveryCode stores the one-way hash of a single-use backup code for
// bypassing TOTP. Ten rows are created when two-factor is enabled; a row
// is consumed by setting UsedAt.
type RecoveryCode struct {
	ID        uint64
	UserID    uint64
	CodeHash  string
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Purposes stored in temporary_tokens.purpose.
const (
	PurposeEmailVerify   = "email_verify"
	PurposePasswordReset = "password_reset"
)

// TemporaryToken is a single-purpose opaque token (email verification,
// password reset). Requesting a new token invalidates prior unused rows of
// the same purpose for the same user.
type TemporaryToken struct {
	ID        uint64
	UserID    uint64
	Purpose   string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}
