package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (sqlmock.Sqlmock, *TokenRepo) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return mock, NewTokenRepo(db)
}

const tokenColumns = "id,user_id,token_hash,expires_at,revoked_at,user_agent,ip,created_at"

func tokenRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "revoked_at", "user_agent", "ip", "created_at"})
}

func TestTokenRepoStore(t *testing.T) {
	mock, repo := newMock(t)
	exp := time.Now().Add(time.Hour)

	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at, user_agent, ip) VALUES (?,?,?,?,?)")).
		WithArgs(uint64(7), "hash-a", exp, "agent", "1.2.3.4").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Store(context.Background(), 7, "hash-a", exp, "agent", "1.2.3.4")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepoGetByHash(t *testing.T) {
	mock, repo := newMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT "+tokenColumns+" FROM refresh_tokens WHERE token_hash=? LIMIT 1")).
		WithArgs("hash-a").
		WillReturnRows(tokenRows().
			AddRow(3, 7, "hash-a", now.Add(time.Hour), nil, "agent", "1.2.3.4", now))

	tok, err := repo.GetByHash(context.Background(), "hash-a")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), tok.ID)
	assert.Equal(t, uint64(7), tok.UserID)
	assert.Nil(t, tok.RevokedAt)
	assert.True(t, tok.Active(now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepoGetByHashRevoked(t *testing.T) {
	mock, repo := newMock(t)
	now := time.Now()
	revoked := now.Add(-time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT "+tokenColumns+" FROM refresh_tokens WHERE token_hash=? LIMIT 1")).
		WithArgs("hash-b").
		WillReturnRows(tokenRows().
			AddRow(4, 7, "hash-b", now.Add(time.Hour), revoked, "agent", "1.2.3.4", now))

	tok, err := repo.GetByHash(context.Background(), "hash-b")
	require.NoError(t, err)
	require.NotNil(t, tok.RevokedAt)
	assert.False(t, tok.Active(now))
}

func TestTokenRepoGetByHashNotFound(t *testing.T) {
	mock, repo := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT "+tokenColumns+" FROM refresh_tokens WHERE token_hash=? LIMIT 1")).
		WithArgs("missing").
		WillReturnRows(tokenRows())

	_, err := repo.GetByHash(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTokenRepoRevoke(t *testing.T) {
	mock, repo := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE refresh_tokens SET revoked_at=NOW() WHERE token_hash=? AND revoked_at IS NULL")).
		WithArgs("hash-a").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Revoke(context.Background(), "hash-a"))
}

func TestTokenRepoRevokeAlreadyRevoked(t *testing.T) {
	mock, repo := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE refresh_tokens SET revoked_at=NOW() WHERE token_hash=? AND revoked_at IS NULL")).
		WithArgs("hash-a").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Revoke(context.Background(), "hash-a")
	assert.ErrorIs(t, err, ErrAlreadyRevoked)
}

func TestTokenRepoRotate(t *testing.T) {
	mock, repo := newMock(t)
	exp := time.Now().Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE refresh_tokens SET revoked_at=NOW() WHERE token_hash=? AND revoked_at IS NULL")).
		WithArgs("old-hash").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at, user_agent, ip) VALUES (?,?,?,?,?)")).
		WithArgs(uint64(7), "new-hash", exp, "agent", "1.2.3.4").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	err := repo.Rotate(context.Background(), "old-hash", 7, "new-hash", exp, "agent", "1.2.3.4")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepoRotateSingleUse(t *testing.T) {
	// Second rotation of the same token hits zero affected rows: the
	// transaction rolls back and no replacement is inserted.
	mock, repo := newMock(t)
	exp := time.Now().Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE refresh_tokens SET revoked_at=NOW() WHERE token_hash=? AND revoked_at IS NULL")).
		WithArgs("old-hash").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Rotate(context.Background(), "old-hash", 7, "new-hash", exp, "agent", "1.2.3.4")
	assert.ErrorIs(t, err, ErrAlreadyRevoked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepoRevokeAllForUser(t *testing.T) {
	mock, repo := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE refresh_tokens SET revoked_at=NOW() WHERE user_id=? AND revoked_at IS NULL")).
		WithArgs(uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, repo.RevokeAllForUser(context.Background(), 7))
}

func TestTokenRepoListActiveForUser(t *testing.T) {
	mock, repo := newMock(t)
	now := time.Now()

	mock.ExpectQuery("SELECT .+ FROM refresh_tokens WHERE user_id=\\? AND revoked_at IS NULL AND expires_at > NOW\\(\\)").
		WithArgs(uint64(7)).
		WillReturnRows(tokenRows().
			AddRow(2, 7, "hash-b", now.Add(time.Hour), nil, "phone", "2.2.2.2", now).
			AddRow(1, 7, "hash-a", now.Add(time.Hour), nil, "laptop", "1.1.1.1", now.Add(-time.Hour)))

	tokens, err := repo.ListActiveForUser(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "phone", tokens[0].UserAgent)
	assert.Equal(t, "laptop", tokens[1].UserAgent)
}
