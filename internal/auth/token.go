package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessToken is a signed, self-contained JWT along with its expiry. It is
// verified by signature and expiry alone — never looked up in a store —
// which keeps verification stateless at the cost of revocation lagging by
// at most its own short lifetime.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// RefreshToken is an opaque high-entropy random string with no embedded
// claims; all of its semantics live in the refresh_tokens ledger. Only a
// SHA-256 hash of Raw is ever persisted.
type RefreshToken struct {
	Raw string
	Exp time.Time
}

// Claims carried by an access token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs access tokens and generates refresh tokens. It is
// stateless except for the signing secret and the configured lifetimes.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenIssuer builds a TokenIssuer from the signing secret and lifetimes.
func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// RefreshTTL exposes the configured refresh lifetime for ledger bookkeeping.
func (i *TokenIssuer) RefreshTTL() time.Duration { return i.refreshTTL }

// NewAccessToken builds and signs an HS256 JWT bound to the user's current
// role. Claims: sub, role, exp, iat, jti.
func (i *TokenIssuer) NewAccessToken(userID uint64, role string) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(i.accessTTL)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(i.secret)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies signature and expiry and returns the claims.
// Every failure mode maps to ErrTokenInvalid.
func (i *TokenIssuer) ParseAccessToken(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return i.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// NewRefreshToken returns a cryptographically secure random token and its
// expiry. 48 random bytes hex-encoded gives 384 bits of entropy.
func (i *TokenIssuer) NewRefreshToken() (RefreshToken, error) {
	raw, err := randomHex(48)
	if err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{
		Raw: raw,
		Exp: time.Now().UTC().Add(i.refreshTTL),
	}, nil
}

// HashRefreshRaw returns the SHA-256 hash of a raw refresh token as a hex
// string. Storing only the hash means stolen ledger rows cannot be
// presented back to the refresh endpoint.
func HashRefreshRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// NewOpaqueToken generates a random token for single-purpose flows
// (email verification, password reset).
func NewOpaqueToken() (string, error) {
	return randomHex(32)
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// SubjectID parses the numeric user id out of a sub claim.
func SubjectID(sub string) (uint64, error) {
	return strconv.ParseUint(sub, 10, 64)
}
