package handler

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/studyhall/studyhall-api/internal/auth"
	"github.com/studyhall/studyhall-api/internal/config"
	"github.com/studyhall/studyhall-api/internal/oauth"
	"github.com/studyhall/studyhall-api/internal/repository"
	"github.com/studyhall/studyhall-api/internal/session"
)

const (
	stateCookie      = "oauth_state"
	invitationCookie = "oauth_invitation"
	oauthCookieTTL   = 600 // seconds; scoped to one provider round trip
)

// OAuthHandler drives the redirect-based provider login. CSRF state and
// the invitation code under verification travel in short-lived httpOnly
// cookies; nothing about the round trip is persisted server-side, so no
// cleanup job exists. Failures redirect back to the frontend with an
// error marker rather than surfacing provider internals to the client.
type OAuthHandler struct {
	Cfg      config.Config
	Provider oauth.Provider
	Users    *repository.UserRepo
	Sessions *session.Manager
	Log      *zap.Logger
}

// Start begins the Google round trip. A valid invitation code is required
// up front so the provider consent screen is never shown to uninvited
// visitors.
func (h *OAuthHandler) Start(c echo.Context) error {
	if h.Provider == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "oauth not configured"})
	}
	invitation := strings.TrimSpace(c.QueryParam("invitation_code"))
	if invitation != h.Cfg.InvitationCode {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "invalid invitation code"})
	}

	state, err := auth.NewOpaqueToken()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "state generation failed"})
	}
	setOAuthCookie(c, stateCookie, state)
	setOAuthCookie(c, invitationCookie, invitation)

	return c.Redirect(http.StatusTemporaryRedirect, h.Provider.AuthURL(state))
}

// Callback finishes the round trip: state-cookie equality, invitation
// re-check, code exchange, then link-or-create and the same session issue
// path as a password login. Cookies are cleared no matter the outcome.
func (h *OAuthHandler) Callback(c echo.Context) error {
	if h.Provider == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "oauth not configured"})
	}
	stateCk, errState := c.Cookie(stateCookie)
	invCk, errInv := c.Cookie(invitationCookie)
	clearOAuthCookie(c, stateCookie)
	clearOAuthCookie(c, invitationCookie)

	state := c.QueryParam("state")
	if errState != nil || state == "" ||
		subtle.ConstantTimeCompare([]byte(stateCk.Value), []byte(state)) != 1 {
		return h.redirectError(c, "state_mismatch")
	}
	if errInv != nil || invCk.Value != h.Cfg.InvitationCode {
		return h.redirectError(c, "invalid_invitation")
	}
	code := c.QueryParam("code")
	if code == "" {
		return h.redirectError(c, "missing_code")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	identity, err := h.Provider.Exchange(ctx, code)
	if err != nil {
		h.Log.Warn("oauth exchange failed", zap.Error(err))
		return h.redirectError(c, "exchange_failed")
	}

	user, err := h.Users.GetByEmail(ctx, identity.Email)
	switch {
	case err == nil:
		if !user.IsActive {
			return h.redirectError(c, "account_disabled")
		}
		// Same email, no provider link yet: link in place, never duplicate.
		if user.GoogleID == nil {
			if err := h.Users.LinkGoogle(ctx, user.ID, identity.ProviderID); err != nil {
				return h.redirectError(c, "link_failed")
			}
		}
	case errors.Is(err, repository.ErrNotFound):
		// Provider-verified emails are trusted as verified.
		uid, err := h.Users.CreateOAuthUser(ctx, identity.Email, identity.Name, identity.ProviderID)
		if err != nil {
			return h.redirectError(c, "create_failed")
		}
		user, err = h.Users.GetByID(ctx, uid)
		if err != nil {
			return h.redirectError(c, "create_failed")
		}
	default:
		return h.redirectError(c, "lookup_failed")
	}

	pair, err := h.Sessions.Issue(ctx, user, session.Device{
		UserAgent: c.Request().UserAgent(),
		IP:        c.RealIP(),
	})
	if err != nil {
		return h.redirectError(c, "issue_failed")
	}

	// Tokens ride the fragment so they never hit server logs on the
	// frontend host.
	v := url.Values{}
	v.Set("access_token", pair.Access.Token)
	v.Set("refresh_token", pair.Refresh.Raw)
	return c.Redirect(http.StatusTemporaryRedirect,
		h.Cfg.FrontendURL+"/oauth/complete#"+v.Encode())
}

func (h *OAuthHandler) redirectError(c echo.Context, marker string) error {
	return c.Redirect(http.StatusTemporaryRedirect,
		h.Cfg.FrontendURL+"/login?error="+url.QueryEscape(marker))
}

func setOAuthCookie(c echo.Context, name, value string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   oauthCookieTTL,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(oauthCookieTTL * time.Second),
	})
}

func clearOAuthCookie(c echo.Context, name string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
