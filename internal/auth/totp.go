package auth

import (
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const totpPeriod = 30 // seconds per time step (RFC 6238 default)

// TOTPManager generates authenticator secrets and verifies time-based
// codes within a tolerance window. It holds no per-user state; the secret
// and the last accepted time-step live on the user row.
type TOTPManager struct {
	issuer string
	skew   uint // accepted steps of drift on either side of now
}

// NewTOTPManager returns a TOTPManager labelled with issuer. skew is the
// number of adjacent time steps accepted around the current one.
func NewTOTPManager(issuer string, skew uint) *TOTPManager {
	return &TOTPManager{issuer: issuer, skew: skew}
}

// GenerateSecret produces a fresh random secret for account, base32-encoded
// for compatibility with standard authenticator apps, along with the
// otpauth:// provisioning URI to render as a QR code.
func (m *TOTPManager) GenerateSecret(account string) (secret, uri string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.issuer,
		AccountName: account,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

// VerifyCode checks code against secret at now, tolerating the configured
// skew. It returns the matched time-step so callers can persist it and
// reject a replay of the same code within its validity window. The check
// walks each candidate step with zero skew; the library compares codes in
// constant time.
func (m *TOTPManager) VerifyCode(secret, code string, now time.Time) (bool, int64) {
	base := now.Unix() / totpPeriod
	for offset := -int64(m.skew); offset <= int64(m.skew); offset++ {
		step := base + offset
		if step < 0 {
			continue
		}
		at := time.Unix(step*totpPeriod, 0).UTC()
		ok, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
			Period:    totpPeriod,
			Skew:      0,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		})
		if err == nil && ok {
			return true, step
		}
	}
	return false, 0
}
