package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecret(t *testing.T) {
	m := NewTOTPManager("StudyHall", 1)

	secret, uri, err := m.GenerateSecret("alice@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, secret)
	assert.True(t, strings.HasPrefix(uri, "otpauth://totp/"))
	assert.Contains(t, uri, "StudyHall")

	secret2, _, err := m.GenerateSecret("alice@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, secret, secret2)
}

func TestVerifyCodeWithinWindow(t *testing.T) {
	m := NewTOTPManager("StudyHall", 1)
	secret, _, err := m.GenerateSecret("bob@example.com")
	require.NoError(t, err)

	// Fixed instant, aligned mid-step so drift cases are unambiguous.
	now := time.Unix(1_700_000_015, 0).UTC()

	code, err := totp.GenerateCode(secret, now)
	require.NoError(t, err)

	ok, step := m.VerifyCode(secret, code, now)
	assert.True(t, ok)
	assert.Equal(t, now.Unix()/30, step)

	// A code from the adjacent step on either side still passes with skew 1.
	for _, drift := range []time.Duration{-30 * time.Second, 30 * time.Second} {
		at := now.Add(drift)
		code, err := totp.GenerateCode(secret, at)
		require.NoError(t, err)

		ok, step := m.VerifyCode(secret, code, now)
		assert.True(t, ok, "drift %v", drift)
		assert.Equal(t, at.Unix()/30, step, "drift %v", drift)
	}
}

func TestVerifyCodeOutsideWindow(t *testing.T) {
	m := NewTOTPManager("StudyHall", 1)
	secret, _, err := m.GenerateSecret("bob@example.com")
	require.NoError(t, err)

	now := time.Unix(1_700_000_015, 0).UTC()

	for _, drift := range []time.Duration{-60 * time.Second, 60 * time.Second} {
		code, err := totp.GenerateCode(secret, now.Add(drift))
		require.NoError(t, err)

		ok, _ := m.VerifyCode(secret, code, now)
		assert.False(t, ok, "drift %v", drift)
	}
}

func TestVerifyCodeZeroSkew(t *testing.T) {
	m := NewTOTPManager("StudyHall", 0)
	secret, _, err := m.GenerateSecret("carol@example.com")
	require.NoError(t, err)

	now := time.Unix(1_700_000_015, 0).UTC()

	code, err := totp.GenerateCode(secret, now)
	require.NoError(t, err)
	ok, _ := m.VerifyCode(secret, code, now)
	assert.True(t, ok)

	code, err = totp.GenerateCode(secret, now.Add(30*time.Second))
	require.NoError(t, err)
	ok, _ = m.VerifyCode(secret, code, now)
	assert.False(t, ok)
}

func TestVerifyCodeRejectsJunk(t *testing.T) {
	m := NewTOTPManager("StudyHall", 1)
	secret, _, err := m.GenerateSecret("dave@example.com")
	require.NoError(t, err)

	now := time.Now()
	for _, code := range []string{"", "000000", "abcdef", "12345", "1234567"} {
		ok, _ := m.VerifyCode(secret, code, now)
		// "000000" could collide with the real code in principle; the
		// odds are one in a million per step, negligible for a test run.
		assert.False(t, ok, "code %q", code)
	}
}
