package auth

import "golang.org/x/crypto/bcrypt"

// Hasher hashes and verifies passwords with bcrypt. A site-wide pepper is
// appended to the password before hashing, so database rows alone are not
// enough to mount an offline attack. The pepper lives only in the
// environment and is never stored next to a hash.
type Hasher struct {
	pepper string
	cost   int
}

// NewHasher returns a Hasher with the given pepper and bcrypt cost.
func NewHasher(pepper string, cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{pepper: pepper, cost: cost}
}

// Hash returns the bcrypt hash of the peppered password.
func (h *Hasher) Hash(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain+h.pepper), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether plain matches hash. bcrypt's comparison is
// constant-time; a mismatch is a boolean outcome, not an error, so callers
// cannot accidentally distinguish "user not found" from "bad password".
func (h *Hasher) Verify(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain+h.pepper)) == nil
}
