package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecoveryMock(t *testing.T) (sqlmock.Sqlmock, *RecoveryCodeRepo) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return mock, NewRecoveryCodeRepo(db)
}

func TestRecoveryCodeReplace(t *testing.T) {
	mock, repo := newRecoveryMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM recovery_codes WHERE user_id=?")).
		WithArgs(uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 10))
	for _, h := range []string{"h1", "h2", "h3"} {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO recovery_codes (user_id, code_hash) VALUES (?,?)")).
			WithArgs(uint64(7), h).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	err := repo.Replace(context.Background(), 7, []string{"h1", "h2", "h3"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecoveryCodeConsume(t *testing.T) {
	mock, repo := newRecoveryMock(t)

	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE recovery_codes SET used_at=NOW() WHERE user_id=? AND code_hash=? AND used_at IS NULL")).
		WithArgs(uint64(7), "hash-a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT COUNT(*) FROM recovery_codes WHERE user_id=? AND used_at IS NULL")).
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(9))

	remaining, err := repo.Consume(context.Background(), 7, "hash-a")
	require.NoError(t, err)
	assert.Equal(t, 9, remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecoveryCodeConsumeSpentOrUnknown(t *testing.T) {
	// A spent code and a code that never existed look identical to the
	// caller: both come back ErrNotFound with no remaining count.
	mock, repo := newRecoveryMock(t)

	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE recovery_codes SET used_at=NOW() WHERE user_id=? AND code_hash=? AND used_at IS NULL")).
		WithArgs(uint64(7), "hash-x").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.Consume(context.Background(), 7, "hash-x")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecoveryCodeDeleteAllForUser(t *testing.T) {
	mock, repo := newRecoveryMock(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM recovery_codes WHERE user_id=?")).
		WithArgs(uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 10))

	require.NoError(t, repo.DeleteAllForUser(context.Background(), 7))
}
