package repository

import (
	"context"
	"database/sql"
	"time"
)

// TempTokenRepo persists single-purpose opaque tokens (email verification,
// password reset). Tokens are stored hashed, consumed once, and superseded
// when a fresh one is requested for the same purpose.
type TempTokenRepo struct{ DB *sql.DB }

func NewTempTokenRepo(db *sql.DB) *TempTokenRepo { return &TempTokenRepo{DB: db} }

// Create invalidates any outstanding tokens of the same purpose for the
// user and inserts the new one, atomically.
func (r *TempTokenRepo) Create(ctx context.Context, userID uint64, purpose, tokenHash string, exp time.Time) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"UPDATE temporary_tokens SET used_at=NOW() WHERE user_id=? AND purpose=? AND used_at IS NULL",
		userID, purpose); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO temporary_tokens (user_id, purpose, token_hash, expires_at) VALUES (?,?,?,?)",
		userID, purpose, tokenHash, exp); err != nil {
		return err
	}
	return tx.Commit()
}

// Consume resolves an unused, unexpired token to its owner and marks it
// used. The guarded update keeps two concurrent submissions of the same
// token from both succeeding.
func (r *TempTokenRepo) Consume(ctx context.Context, purpose, tokenHash string) (uint64, error) {
	var (
		id     uint64
		userID uint64
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, user_id FROM temporary_tokens WHERE token_hash=? AND purpose=? AND used_at IS NULL AND expires_at > NOW() LIMIT 1",
		tokenHash, purpose).Scan(&id, &userID)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE temporary_tokens SET used_at=NOW() WHERE id=? AND used_at IS NULL", id)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	return userID, nil
}
