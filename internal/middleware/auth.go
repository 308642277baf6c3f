// Package middleware provides the request guards: bearer-token
// authentication and the layered precondition checks (role, verified
// email, consent) that protected routes compose on top of it.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/studyhall/studyhall-api/internal/auth"
	"github.com/studyhall/studyhall-api/internal/model"
)

// UserLoader is the point lookup the gate performs on every authenticated
// request. Defined here so middleware tests can stub it without a database.
type UserLoader interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

const identityKey = "identity"

// Gate resolves access tokens to user identities and enforces layered
// preconditions. Verification, consent and active-account state are read
// from the freshly fetched user row, never from token claims: those flags
// can change between token issuance and use, and a point lookup is cheaper
// than staleness.
type Gate struct {
	issuer *auth.TokenIssuer
	users  UserLoader
}

// NewGate builds the gate from the token verifier and the user lookup.
func NewGate(issuer *auth.TokenIssuer, users UserLoader) *Gate {
	return &Gate{issuer: issuer, users: users}
}

// resolve verifies the bearer token and re-fetches the user. Every failure
// collapses into auth.ErrTokenInvalid except a disabled account: a revoked
// or deactivated user must not act on a still-valid access token.
func (g *Gate) resolve(c echo.Context) (model.User, error) {
	header := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return model.User{}, auth.ErrTokenInvalid
	}
	claims, err := g.issuer.ParseAccessToken(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		return model.User{}, auth.ErrTokenInvalid
	}
	id, err := auth.SubjectID(claims.Subject)
	if err != nil {
		return model.User{}, auth.ErrTokenInvalid
	}
	user, err := g.users.GetByID(c.Request().Context(), id)
	if err != nil {
		return model.User{}, auth.ErrTokenInvalid
	}
	if !user.IsActive {
		return model.User{}, auth.ErrAccountDisabled
	}
	return user, nil
}

// Authenticate requires a valid bearer token and an active account. The
// 401 message is uniform: no signature-vs-expiry distinction leaks.
func (g *Gate) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := g.resolve(c)
		if err == auth.ErrAccountDisabled {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": auth.ErrAccountDisabled.Error()})
		}
		if err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": auth.ErrTokenInvalid.Error()})
		}
		c.Set(identityKey, user)
		return next(c)
	}
}

// OptionalAuth resolves the identity when a usable token is present and
// silently leaves the request unauthenticated otherwise. For endpoints
// that personalize output without requiring login.
func (g *Gate) OptionalAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if user, err := g.resolve(c); err == nil {
			c.Set(identityKey, user)
		}
		return next(c)
	}
}

// RequireRole allows only the listed roles through. Must be applied after
// Authenticate; an unresolved identity is a 401, a wrong role a 403.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, ok := FromContext(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": auth.ErrTokenInvalid.Error()})
			}
			if !allowed[user.Role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient role"})
			}
			return next(c)
		}
	}
}

// RequireAdmin admits ADMIN only.
func RequireAdmin() echo.MiddlewareFunc {
	return RequireRole(model.RoleAdmin)
}

// RequireModerator admits MODERATOR and ADMIN.
func RequireModerator() echo.MiddlewareFunc {
	return RequireRole(model.RoleModerator, model.RoleAdmin)
}

// RequireVerifiedEmail rejects users whose email is not verified. The flag
// comes from the per-request user fetch, so flipping it false after a
// token was issued locks the user out immediately.
func RequireVerifiedEmail() echo.MiddlewareFunc {
	return requireFlag(func(u model.User) bool { return u.IsEmailVerified }, "email not verified")
}

// RequireConsent rejects users who have not accepted the terms.
func RequireConsent() echo.MiddlewareFunc {
	return requireFlag(func(u model.User) bool { return u.ConsentGiven }, "consent required")
}

func requireFlag(pred func(model.User) bool, msg string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, ok := FromContext(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": auth.ErrTokenInvalid.Error()})
			}
			if !pred(user) {
				// 403 names the failed precondition: actionable, not sensitive.
				return c.JSON(http.StatusForbidden, echo.Map{"error": msg})
			}
			return next(c)
		}
	}
}

// FromContext returns the identity resolved by Authenticate or
// OptionalAuth.
func FromContext(c echo.Context) (model.User, bool) {
	user, ok := c.Get(identityKey).(model.User)
	return user, ok
}
