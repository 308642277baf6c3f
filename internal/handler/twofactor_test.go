package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhall/studyhall-api/internal/auth"
	"github.com/studyhall/studyhall-api/internal/model"
)

func postJSONAs(t *testing.T, handler echo.HandlerFunc, path, body string, user model.User) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("identity", user)
	require.NoError(t, handler(c))
	return rec
}

func TestSetup2FAStoresPendingSecret(t *testing.T) {
	f := newAuthFixture(t)
	user := model.User{ID: 7, Email: "alice@example.com", Role: model.RoleUser, IsActive: true}

	f.mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE users SET totp_secret=? WHERE id=?")).
		WithArgs(sqlmock.AnyArg(), uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := postJSONAs(t, f.handler.Setup2FA, "/v1/2fa/setup", `{}`, user)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Secret     string `json:"secret"`
		OtpauthURL string `json:"otpauth_url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Secret)
	assert.True(t, strings.HasPrefix(resp.OtpauthURL, "otpauth://totp/"))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSetup2FAAlreadyEnabled(t *testing.T) {
	f := newAuthFixture(t)
	user := model.User{ID: 7, Email: "alice@example.com", IsActive: true, TOTPEnabled: true}

	rec := postJSONAs(t, f.handler.Setup2FA, "/v1/2fa/setup", `{}`, user)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestVerify2FAEnablesAndReturnsRecoveryCodes(t *testing.T) {
	f := newAuthFixture(t)
	secret := "JBSWY3DPEHPK3PXP"
	user := model.User{ID: 7, Email: "alice@example.com", IsActive: true, TOTPSecret: &secret}

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	// Recovery hashes land before the flag flips.
	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM recovery_codes WHERE user_id=?")).
		WithArgs(uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	for i := 0; i < auth.RecoveryCodeCount; i++ {
		f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO recovery_codes (user_id, code_hash) VALUES (?,?)")).
			WithArgs(uint64(7), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(int64(i+1), 1))
	}
	f.mock.ExpectCommit()
	f.mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET totp_enabled=1 WHERE id=?")).
		WithArgs(uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE users SET last_totp_step=? WHERE id=? AND last_totp_step < ?")).
		WithArgs(sqlmock.AnyArg(), uint64(7), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := postJSONAs(t, f.handler.Verify2FA, "/v1/2fa/verify", `{"code":"`+code+`"}`, user)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Enabled       bool     `json:"enabled"`
		RecoveryCodes []string `json:"recovery_codes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Enabled)
	assert.Len(t, resp.RecoveryCodes, auth.RecoveryCodeCount)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestVerify2FAWrongCode(t *testing.T) {
	f := newAuthFixture(t)
	secret := "JBSWY3DPEHPK3PXP"
	user := model.User{ID: 7, Email: "alice@example.com", IsActive: true, TOTPSecret: &secret}

	rec := postJSONAs(t, f.handler.Verify2FA, "/v1/2fa/verify", `{"code":"000001"}`, user)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerify2FAWithoutSetup(t *testing.T) {
	f := newAuthFixture(t)
	user := model.User{ID: 7, Email: "alice@example.com", IsActive: true}

	rec := postJSONAs(t, f.handler.Verify2FA, "/v1/2fa/verify", `{"code":"123456"}`, user)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDisable2FAClearsEverything(t *testing.T) {
	f := newAuthFixture(t)
	secret := "JBSWY3DPEHPK3PXP"
	user := model.User{ID: 7, Email: "alice@example.com", IsActive: true, TOTPEnabled: true, TOTPSecret: &secret}

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	f.mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE users SET last_totp_step=? WHERE id=? AND last_totp_step < ?")).
		WithArgs(sqlmock.AnyArg(), uint64(7), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE users SET totp_secret=NULL, totp_enabled=0, last_totp_step=0 WHERE id=?")).
		WithArgs(uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM recovery_codes WHERE user_id=?")).
		WithArgs(uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 10))

	rec := postJSONAs(t, f.handler.Disable2FA, "/v1/2fa/disable", `{"code":"`+code+`"}`, user)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDisable2FANotEnabled(t *testing.T) {
	f := newAuthFixture(t)
	user := model.User{ID: 7, Email: "alice@example.com", IsActive: true}

	rec := postJSONAs(t, f.handler.Disable2FA, "/v1/2fa/disable", `{"code":"123456"}`, user)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
