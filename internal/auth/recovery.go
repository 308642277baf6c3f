package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// RecoveryCodeCount is how many backup codes are issued when two-factor
// authentication is enabled. Each code works exactly once.
const RecoveryCodeCount = 10

// recoveryAlphabet avoids characters users confuse when reading codes off
// a printout (no 0/O, 1/I/L).
const recoveryAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const recoveryGroupLen = 5

// GenerateRecoveryCodes returns RecoveryCodeCount fresh codes in the form
// XXXXX-XXXXX. The plaintext is shown to the user exactly once; only
// hashes are ever persisted.
func GenerateRecoveryCodes() ([]string, error) {
	codes := make([]string, 0, RecoveryCodeCount)
	for i := 0; i < RecoveryCodeCount; i++ {
		code, err := recoveryCode()
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

func recoveryCode() (string, error) {
	buf := make([]byte, recoveryGroupLen*2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, 0, recoveryGroupLen*2+1)
	for i, b := range buf {
		if i == recoveryGroupLen {
			out = append(out, '-')
		}
		out = append(out, recoveryAlphabet[int(b)%len(recoveryAlphabet)])
	}
	return string(out), nil
}

// HashRecoveryCode returns the hex SHA-256 digest of code mixed with the
// site pepper. Codes have far less entropy than refresh tokens, so the
// pepper keeps leaked hashes from being brute-forced offline.
func HashRecoveryCode(code, pepper string) string {
	sum := sha256.Sum256([]byte(code + pepper))
	return hex.EncodeToString(sum[:])
}
