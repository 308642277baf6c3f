package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/studyhall/studyhall-api/internal/auth"
	"github.com/studyhall/studyhall-api/internal/middleware"
)

type sessionPart struct {
	ID        uint64    `json:"id"`
	UserAgent string    `json:"user_agent"`
	IP        string    `json:"ip"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c echo.Context) error {
	user, ok := middleware.FromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": auth.ErrTokenInvalid.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":                user.ID,
		"email":             user.Email,
		"name":              user.Name,
		"role":              user.Role,
		"is_email_verified": user.IsEmailVerified,
		"consent_given":     user.ConsentGiven,
		"two_factor":        user.TOTPEnabled,
		"created_at":        user.CreatedAt,
	})
}

// ListSessions lists the user's currently active sessions with device
// metadata. Token hashes are not exposed.
func (h *AuthHandler) ListSessions(c echo.Context) error {
	user, ok := middleware.FromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": auth.ErrTokenInvalid.Error()})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	tokens, err := h.Sessions.ListSessions(ctx, user.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list sessions failed"})
	}
	out := make([]sessionPart, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, sessionPart{
			ID:        t.ID,
			UserAgent: t.UserAgent,
			IP:        t.IP,
			CreatedAt: t.CreatedAt,
			ExpiresAt: t.ExpiresAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": out})
}

// GrantConsent records the user's acceptance of the terms with a
// timestamp.
func (h *AuthHandler) GrantConsent(c echo.Context) error {
	user, ok := middleware.FromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": auth.ErrTokenInvalid.Error()})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Users.SetConsent(ctx, user.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "consent update failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteAccount removes the account. Sessions are revoked first so the
// cache mirror empties immediately; the user row deletion cascades over
// refresh tokens, recovery codes and temporary tokens.
func (h *AuthHandler) DeleteAccount(c echo.Context) error {
	user, ok := middleware.FromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": auth.ErrTokenInvalid.Error()})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Sessions.LogoutAll(ctx, user.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	if err := h.Users.Delete(ctx, user.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	return c.NoContent(http.StatusNoContent)
}
