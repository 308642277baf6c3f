package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHasherRoundTrip(t *testing.T) {
	h := NewHasher("pepper-123", bcrypt.MinCost)

	hash, err := h.Hash("correct horse battery staple")
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	assert.True(t, h.Verify(hash, "correct horse battery staple"))
	assert.False(t, h.Verify(hash, "wrong password"))
	assert.False(t, h.Verify(hash, ""))
}

func TestHasherPepperRequired(t *testing.T) {
	// A hash created with one pepper must not verify under another, even
	// with the right password. Rows alone are useless without the env
	// secret.
	a := NewHasher("pepper-a", bcrypt.MinCost)
	b := NewHasher("pepper-b", bcrypt.MinCost)

	hash, err := a.Hash("secret")
	require.NoError(t, err)

	assert.True(t, a.Verify(hash, "secret"))
	assert.False(t, b.Verify(hash, "secret"))
}

func TestHasherHashesAreSalted(t *testing.T) {
	h := NewHasher("pepper", bcrypt.MinCost)

	h1, err := h.Hash("same input")
	require.NoError(t, err)
	h2, err := h.Hash("same input")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestNewHasherClampsCost(t *testing.T) {
	// Out-of-range costs fall back to the bcrypt default instead of
	// failing at hash time.
	h := NewHasher("p", 99)
	hash, err := h.Hash("x")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
}

func TestHasherVerifyGarbageHash(t *testing.T) {
	h := NewHasher("pepper", bcrypt.MinCost)
	assert.False(t, h.Verify("not-a-bcrypt-hash", "anything"))
}
