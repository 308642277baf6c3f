// Package handler implements the HTTP surface of the auth service. Each
// handler binds and validates input, delegates to the session manager and
// repositories, and maps sentinel errors to HTTP responses at this
// boundary only.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/studyhall/studyhall-api/internal/auth"
	"github.com/studyhall/studyhall-api/internal/config"
	"github.com/studyhall/studyhall-api/internal/middleware"
	"github.com/studyhall/studyhall-api/internal/model"
	"github.com/studyhall/studyhall-api/internal/queue"
	"github.com/studyhall/studyhall-api/internal/repository"
	"github.com/studyhall/studyhall-api/internal/session"
)

const dbTimeout = 5 * time.Second

// tempTokenTTL bounds email-verification and password-reset tokens.
const tempTokenTTL = time.Hour

// dummyHash keeps password verification running even when the email is
// unknown, so response timing does not reveal whether an account exists.
const dummyHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// AuthHandler bundles dependencies for the credential endpoints.
type AuthHandler struct {
	Cfg        config.Config
	Users      *repository.UserRepo
	Sessions   *session.Manager
	Hasher     *auth.Hasher
	TOTP       *auth.TOTPManager
	Recovery   *repository.RecoveryCodeRepo
	TempTokens *repository.TempTokenRepo
	Mail       *queue.Publisher
	Log        *zap.Logger
}

// ----- DTOs -----

type registerReq struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	InvitationCode string `json:"invitation_code"`
	Name           string `json:"name"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type recoveryReq struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	RecoveryCode string `json:"recovery_code"`
}
type verifyEmailReq struct {
	Token string `json:"token"`
}
type resetRequestReq struct {
	Email string `json:"email"`
}
type resetConfirmReq struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}
type authResp struct {
	User           userPart  `json:"user"`
	Access         tokenPart `json:"access"`
	Refresh        tokenPart `json:"refresh"`
	RecoveryCodes  []string  `json:"recovery_codes,omitempty"`
	RemainingCodes *int      `json:"remaining_recovery_codes,omitempty"`
}

func newAuthResp(u model.User, pair session.Pair) authResp {
	return authResp{
		User:    userPart{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role},
		Access:  tokenPart{Token: pair.Access.Token, Expires: pair.Access.Exp},
		Refresh: tokenPart{Token: pair.Refresh.Raw, Expires: pair.Refresh.Exp},
	}
}

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), dbTimeout)
}

func device(c echo.Context) session.Device {
	return session.Device{
		UserAgent: c.Request().UserAgent(),
		IP:        c.RealIP(),
	}
}

// Register creates a user and returns a token pair immediately. A valid
// invitation code is required; the email must be unused.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}
	if req.InvitationCode != h.Cfg.InvitationCode {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "invalid invitation code"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	hash, err := h.Hasher.Hash(req.Password)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}
	uid, err := h.Users.Create(ctx, req.Email, hash, strings.TrimSpace(req.Name), model.RoleUser)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}
	user, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}

	pair, err := h.Sessions.Issue(ctx, user, device(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}
	return c.JSON(http.StatusCreated, newAuthResp(user, pair))
}

// Login verifies the password and, when two-factor is enabled, the TOTP
// code. A correct password with a missing code yields a success-shaped
// {"requires_2fa":true} response and no tokens. Wrong email, wrong
// password and wrong code all produce the same 401.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	user, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Burn the same hashing cost as a real verification.
			h.Hasher.Verify(dummyHash, req.Password)
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": auth.ErrInvalidCredentials.Error()})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if user.PasswordHash == nil || !h.Hasher.Verify(*user.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": auth.ErrInvalidCredentials.Error()})
	}
	if !user.IsActive {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": auth.ErrAccountDisabled.Error()})
	}

	if user.TOTPEnabled {
		if strings.TrimSpace(req.TOTPCode) == "" {
			return c.JSON(http.StatusOK, echo.Map{"requires_2fa": true})
		}
		if err := h.verifyTOTP(ctx, user, req.TOTPCode); err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": auth.ErrTwoFactorInvalid.Error()})
		}
	}

	pair, err := h.Sessions.Issue(ctx, user, device(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}
	return c.JSON(http.StatusOK, newAuthResp(user, pair))
}

// verifyTOTP checks the code within the drift window and advances the
// replay marker: a code for a time-step at or before the last accepted one
// is rejected even if it would otherwise validate.
func (h *AuthHandler) verifyTOTP(ctx context.Context, user model.User, code string) error {
	if user.TOTPSecret == nil {
		return auth.ErrTwoFactorInvalid
	}
	ok, step := h.TOTP.VerifyCode(*user.TOTPSecret, strings.TrimSpace(code), time.Now().UTC())
	if !ok || step <= user.LastTOTPStep {
		return auth.ErrTwoFactorInvalid
	}
	return h.Users.AdvanceTOTPStep(ctx, user.ID, step)
}

// Refresh rotates a refresh token: the presented token is retired and a
// new pair issued. Missing, expired, revoked and already-rotated tokens
// collapse into one 401; a detected replay gets the distinct revoked
// message; a disabled account is surfaced as such.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	user, pair, err := h.Sessions.Rotate(ctx, strings.TrimSpace(req.RefreshToken), device(c))
	switch {
	case errors.Is(err, auth.ErrTokenReuse):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": auth.ErrTokenReuse.Error()})
	case errors.Is(err, auth.ErrAccountDisabled):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": auth.ErrAccountDisabled.Error()})
	case errors.Is(err, auth.ErrTokenInvalid):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": auth.ErrTokenInvalid.Error()})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "refresh failed"})
	}
	return c.JSON(http.StatusOK, newAuthResp(user, pair))
}

// Logout revokes one session when a refresh token is supplied, or every
// session of the authenticated user when none is. Requires at least one of
// the two.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	refreshToken := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := reqCtx(c)
	defer cancel()

	if refreshToken != "" {
		if err := h.Sessions.Logout(ctx, refreshToken); err != nil {
			if errors.Is(err, auth.ErrTokenInvalid) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": auth.ErrTokenInvalid.Error()})
			}
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
		}
		return c.NoContent(http.StatusNoContent)
	}

	if user, ok := middleware.FromContext(c); ok {
		if err := h.Sessions.LogoutAll(ctx, user.ID); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
		}
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "provide Authorization header or refresh_token"})
}

// RecoveryLogin authenticates with password plus a one-time recovery code,
// for users who lost their authenticator device. The matched code is
// consumed; the response reports how many unused codes remain.
func (h *AuthHandler) RecoveryLogin(c echo.Context) error {
	var req recoveryReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	code := strings.ToUpper(strings.TrimSpace(req.RecoveryCode))
	if req.Email == "" || req.Password == "" || code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password/recovery_code required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	user, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.Hasher.Verify(dummyHash, req.Password)
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": auth.ErrInvalidCredentials.Error()})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if user.PasswordHash == nil || !h.Hasher.Verify(*user.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": auth.ErrInvalidCredentials.Error()})
	}
	if !user.IsActive {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": auth.ErrAccountDisabled.Error()})
	}

	remaining, err := h.Recovery.Consume(ctx, user.ID, auth.HashRecoveryCode(code, h.Cfg.PasswordPepper))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": auth.ErrRecoveryInvalid.Error()})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "recovery failed"})
	}

	pair, err := h.Sessions.Issue(ctx, user, device(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}
	resp := newAuthResp(user, pair)
	resp.RemainingCodes = &remaining
	return c.JSON(http.StatusOK, resp)
}

// RequestEmailVerification issues a fresh verification token for the
// authenticated user and hands delivery to the mail worker. A new request
// supersedes any outstanding token.
func (h *AuthHandler) RequestEmailVerification(c echo.Context) error {
	user, ok := middleware.FromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": auth.ErrTokenInvalid.Error()})
	}
	if user.IsEmailVerified {
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already verified"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	token, err := auth.NewOpaqueToken()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token generation failed"})
	}
	exp := time.Now().UTC().Add(tempTokenTTL)
	if err := h.TempTokens.Create(ctx, user.ID, model.PurposeEmailVerify, auth.HashRefreshRaw(token), exp); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token store failed"})
	}
	_ = h.Mail.Publish(ctx, queue.QueueMailVerification, queue.MailVerificationEvent{
		UserID: user.ID, Email: user.Email, Name: user.Name, Token: token,
	})
	return c.NoContent(http.StatusAccepted)
}

// VerifyEmail consumes a verification token and flips the flag.
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	var req verifyEmailReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	uid, err := h.TempTokens.Consume(ctx, model.PurposeEmailVerify, auth.HashRefreshRaw(strings.TrimSpace(req.Token)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": auth.ErrTokenInvalid.Error()})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "verification failed"})
	}
	if err := h.Users.SetEmailVerified(ctx, uid); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "verification failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// RequestPasswordReset issues a reset token when the email belongs to an
// account. The response is 202 either way so the endpoint cannot be used
// to enumerate accounts.
func (h *AuthHandler) RequestPasswordReset(c echo.Context) error {
	var req resetRequestReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	user, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		return c.NoContent(http.StatusAccepted)
	}
	token, err := auth.NewOpaqueToken()
	if err != nil {
		return c.NoContent(http.StatusAccepted)
	}
	exp := time.Now().UTC().Add(tempTokenTTL)
	if err := h.TempTokens.Create(ctx, user.ID, model.PurposePasswordReset, auth.HashRefreshRaw(token), exp); err != nil {
		h.Log.Error("password reset token store failed", zap.Uint64("user_id", user.ID), zap.Error(err))
		return c.NoContent(http.StatusAccepted)
	}
	_ = h.Mail.Publish(ctx, queue.QueueMailPasswordReset, queue.MailPasswordResetEvent{
		UserID: user.ID, Email: user.Email, Name: user.Name, Token: token,
	})
	return c.NoContent(http.StatusAccepted)
}

// ConfirmPasswordReset consumes a reset token, replaces the password and
// revokes every session the user holds.
func (h *AuthHandler) ConfirmPasswordReset(c echo.Context) error {
	var req resetConfirmReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Token) == "" || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token/new_password required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	uid, err := h.TempTokens.Consume(ctx, model.PurposePasswordReset, auth.HashRefreshRaw(strings.TrimSpace(req.Token)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": auth.ErrTokenInvalid.Error()})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reset failed"})
	}
	hash, err := h.Hasher.Hash(req.NewPassword)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reset failed"})
	}
	if err := h.Users.UpdatePassword(ctx, uid, hash); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reset failed"})
	}
	// A password reset means the old credential may be compromised; drop
	// every session.
	if err := h.Sessions.LogoutAll(ctx, uid); err != nil {
		h.Log.Error("revoking sessions after reset failed", zap.Uint64("user_id", uid), zap.Error(err))
	}
	return c.NoContent(http.StatusNoContent)
}
