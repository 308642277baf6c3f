// Package session ties the durable refresh-token ledger to its ephemeral
// Redis mirror. The ledger (MySQL) is the only source of truth for
// revocation; the cache is a derived, best-effort mirror used for
// low-latency checks, instant mass revocation and replay detection. If
// Redis is down the manager degrades to ledger-only checks: fail open on
// the cache, fail closed on the ledger.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/studyhall/studyhall-api/internal/auth"
	"github.com/studyhall/studyhall-api/internal/model"
	"github.com/studyhall/studyhall-api/internal/repository"
)

// Pair is the result of issuing or rotating a session: a signed access
// token and a fresh opaque refresh token.
type Pair struct {
	Access  auth.AccessToken
	Refresh auth.RefreshToken
}

// Device is the request metadata recorded on every ledger row.
type Device struct {
	UserAgent string
	IP        string
}

// Manager issues, rotates and revokes refresh tokens across both stores.
type Manager struct {
	ledger *repository.TokenRepo
	users  *repository.UserRepo
	cache  *redis.Client // nil when Redis is unavailable
	issuer *auth.TokenIssuer
	log    *zap.Logger
}

// NewManager wires the manager. cache may be nil; every cache interaction
// then degrades as documented on the package.
func NewManager(ledger *repository.TokenRepo, users *repository.UserRepo, cache *redis.Client, issuer *auth.TokenIssuer, log *zap.Logger) *Manager {
	return &Manager{ledger: ledger, users: users, cache: cache, issuer: issuer, log: log}
}

func cacheKey(userID uint64, tokenHash string) string {
	return fmt.Sprintf("session:%d:%s", userID, tokenHash)
}

// Issue mints a new access/refresh pair for the user: ledger row first,
// then the cache mirror with the same remaining TTL, then the signed
// access token bound to the user's current role.
func (m *Manager) Issue(ctx context.Context, user model.User, dev Device) (Pair, error) {
	refresh, err := m.issuer.NewRefreshToken()
	if err != nil {
		return Pair{}, err
	}
	hash := auth.HashRefreshRaw(refresh.Raw)
	if err := m.ledger.Store(ctx, user.ID, hash, refresh.Exp, dev.UserAgent, dev.IP); err != nil {
		return Pair{}, err
	}
	m.mirror(ctx, user.ID, hash, refresh.Exp)

	access, err := m.issuer.NewAccessToken(user.ID, user.Role)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Access: access, Refresh: refresh}, nil
}

// Rotate exchanges a refresh token for a new pair, retiring the old one.
//
// State checks run against the ledger first: a missing, revoked or expired
// row fails with the collapsed ErrTokenInvalid so the response never
// reveals which. An inactive owner fails with ErrAccountDisabled. Then the
// cache is consulted: the mirror entry is deleted the instant a token is
// rotated or logged out, so a present-and-unexpired ledger row whose
// mirror is absent means someone is replaying a token the legitimate
// client already spent — the row is revoked on the spot and the call
// fails with ErrTokenReuse.
//
// Revocation and reissue run in one ledger transaction; the losing side of
// a concurrent rotation race finds the row already revoked and fails
// closed rather than double-issuing.
func (m *Manager) Rotate(ctx context.Context, raw string, dev Device) (model.User, Pair, error) {
	hash := auth.HashRefreshRaw(raw)

	row, err := m.ledger.GetByHash(ctx, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, Pair{}, auth.ErrTokenInvalid
	}
	if err != nil {
		return model.User{}, Pair{}, err
	}
	now := time.Now().UTC()
	if !row.Active(now) {
		return model.User{}, Pair{}, auth.ErrTokenInvalid
	}

	user, err := m.users.GetByID(ctx, row.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, Pair{}, auth.ErrTokenInvalid
	}
	if err != nil {
		return model.User{}, Pair{}, err
	}
	if !user.IsActive {
		return model.User{}, Pair{}, auth.ErrAccountDisabled
	}

	if m.cache != nil {
		n, err := m.cache.Exists(ctx, cacheKey(user.ID, hash)).Result()
		switch {
		case err != nil:
			// Cache unreachable: skip the replay check rather than refuse
			// all authentication.
			m.log.Warn("session cache unavailable, ledger-only rotation",
				zap.Uint64("user_id", user.ID), zap.Error(err))
		case n == 0:
			// Ledger says active, mirror is gone: replay of a spent token.
			if err := m.ledger.Revoke(ctx, hash); err != nil && !errors.Is(err, repository.ErrAlreadyRevoked) {
				return model.User{}, Pair{}, err
			}
			m.log.Warn("refresh token reuse detected",
				zap.Uint64("user_id", user.ID), zap.String("ip", dev.IP))
			return model.User{}, Pair{}, auth.ErrTokenReuse
		}
	}

	refresh, err := m.issuer.NewRefreshToken()
	if err != nil {
		return model.User{}, Pair{}, err
	}
	newHash := auth.HashRefreshRaw(refresh.Raw)
	err = m.ledger.Rotate(ctx, hash, user.ID, newHash, refresh.Exp, dev.UserAgent, dev.IP)
	if errors.Is(err, repository.ErrAlreadyRevoked) {
		// Lost a race with a concurrent rotation of the same token.
		return model.User{}, Pair{}, auth.ErrTokenInvalid
	}
	if err != nil {
		return model.User{}, Pair{}, err
	}

	m.dropMirror(ctx, user.ID, hash)
	m.mirror(ctx, user.ID, newHash, refresh.Exp)

	access, err := m.issuer.NewAccessToken(user.ID, user.Role)
	if err != nil {
		return model.User{}, Pair{}, err
	}
	return user, Pair{Access: access, Refresh: refresh}, nil
}

// Logout revokes the single session identified by the raw refresh token
// and eagerly drops its mirror so the cache reflects "no longer usable"
// immediately.
func (m *Manager) Logout(ctx context.Context, raw string) error {
	hash := auth.HashRefreshRaw(raw)
	row, err := m.ledger.GetByHash(ctx, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return auth.ErrTokenInvalid
	}
	if err != nil {
		return err
	}
	if err := m.ledger.Revoke(ctx, hash); err != nil {
		if errors.Is(err, repository.ErrAlreadyRevoked) {
			return auth.ErrTokenInvalid
		}
		return err
	}
	m.dropMirror(ctx, row.UserID, hash)
	return nil
}

// LogoutAll revokes every active session the user holds. Mirror keys are
// collected before the ledger update so they can be deleted afterwards.
func (m *Manager) LogoutAll(ctx context.Context, userID uint64) error {
	active, err := m.ledger.ListActiveForUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := m.ledger.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}
	for _, t := range active {
		m.dropMirror(ctx, userID, t.TokenHash)
	}
	return nil
}

// ListSessions returns the user's active sessions for the device overview.
func (m *Manager) ListSessions(ctx context.Context, userID uint64) ([]model.RefreshToken, error) {
	return m.ledger.ListActiveForUser(ctx, userID)
}

// mirror writes the cache entry with TTL equal to the token's remaining
// lifetime. Failure is logged, never fatal: presence in the cache is an
// optimization and a replay signal, not the source of truth.
func (m *Manager) mirror(ctx context.Context, userID uint64, tokenHash string, exp time.Time) {
	if m.cache == nil {
		return
	}
	ttl := time.Until(exp)
	if ttl <= 0 {
		return
	}
	if err := m.cache.Set(ctx, cacheKey(userID, tokenHash), "1", ttl).Err(); err != nil {
		m.log.Warn("session cache set failed", zap.Uint64("user_id", userID), zap.Error(err))
	}
}

func (m *Manager) dropMirror(ctx context.Context, userID uint64, tokenHash string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Del(ctx, cacheKey(userID, tokenHash)).Err(); err != nil {
		m.log.Warn("session cache delete failed", zap.Uint64("user_id", userID), zap.Error(err))
	}
}
