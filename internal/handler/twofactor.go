package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/studyhall/studyhall-api/internal/auth"
	"github.com/studyhall/studyhall-api/internal/middleware"
	"github.com/studyhall/studyhall-api/internal/queue"
)

type totpCodeReq struct {
	Code string `json:"code"`
}

// Setup2FA begins the two-phase enable: a secret is generated and stored
// on the user row, but two-factor stays off until a code is verified. The
// secret and provisioning URI are returned for the authenticator app.
func (h *AuthHandler) Setup2FA(c echo.Context) error {
	user, ok := middleware.FromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": auth.ErrTokenInvalid.Error()})
	}
	if user.TOTPEnabled {
		return c.JSON(http.StatusConflict, echo.Map{"error": "two-factor already enabled"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	secret, uri, err := h.TOTP.GenerateSecret(user.Email)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "setup failed"})
	}
	if err := h.Users.SetTOTPSecret(ctx, user.ID, secret); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "setup failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"secret":      secret,
		"otpauth_url": uri,
	})
}

// Verify2FA completes the enable: a valid code flips the flag and mints
// ten recovery codes. The codes are written before the flag flips so an
// enabled account always has backups; their plaintext appears in this
// response exactly once and is never persisted in recoverable form.
func (h *AuthHandler) Verify2FA(c echo.Context) error {
	user, ok := middleware.FromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": auth.ErrTokenInvalid.Error()})
	}
	if user.TOTPEnabled {
		return c.JSON(http.StatusConflict, echo.Map{"error": "two-factor already enabled"})
	}
	if user.TOTPSecret == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "run setup first"})
	}

	var req totpCodeReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	ok2, step := h.TOTP.VerifyCode(*user.TOTPSecret, strings.TrimSpace(req.Code), time.Now().UTC())
	if !ok2 {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": auth.ErrTwoFactorInvalid.Error()})
	}

	codes, err := auth.GenerateRecoveryCodes()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "enable failed"})
	}
	hashes := make([]string, len(codes))
	for i, code := range codes {
		hashes[i] = auth.HashRecoveryCode(code, h.Cfg.PasswordPepper)
	}
	if err := h.Recovery.Replace(ctx, user.ID, hashes); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "enable failed"})
	}
	if err := h.Users.EnableTOTP(ctx, user.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "enable failed"})
	}
	if err := h.Users.AdvanceTOTPStep(ctx, user.ID, step); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "enable failed"})
	}
	_ = h.Mail.Publish(ctx, queue.QueueMailRecoveryCodes, queue.MailRecoveryCodesEvent{
		UserID: user.ID, Email: user.Email, Name: user.Name,
	})
	return c.JSON(http.StatusOK, echo.Map{
		"enabled":        true,
		"recovery_codes": codes,
	})
}

// Disable2FA turns two-factor off. A currently valid code is required; on
// success the secret, the flag and every recovery code are cleared so no
// stale backups survive a disable/re-enable cycle.
func (h *AuthHandler) Disable2FA(c echo.Context) error {
	user, ok := middleware.FromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": auth.ErrTokenInvalid.Error()})
	}
	if !user.TOTPEnabled || user.TOTPSecret == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "two-factor not enabled"})
	}

	var req totpCodeReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.verifyTOTP(ctx, user, req.Code); err != nil {
		if errors.Is(err, auth.ErrTwoFactorInvalid) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": auth.ErrTwoFactorInvalid.Error()})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "disable failed"})
	}
	if err := h.Users.DisableTOTP(ctx, user.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "disable failed"})
	}
	if err := h.Recovery.DeleteAllForUser(ctx, user.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "disable failed"})
	}
	return c.NoContent(http.StatusNoContent)
}
