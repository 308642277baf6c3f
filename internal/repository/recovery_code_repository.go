package repository

import (
	"context"
	"database/sql"
)

// RecoveryCodeRepo persists the one-way hashes of two-factor backup codes.
type RecoveryCodeRepo struct{ DB *sql.DB }

func NewRecoveryCodeRepo(db *sql.DB) *RecoveryCodeRepo { return &RecoveryCodeRepo{DB: db} }

// Replace drops every code the user has (used or not) and inserts the new
// batch in one transaction. Called when two-factor is enabled; a
// disable/re-enable cycle therefore never leaves stale backups behind.
func (r *RecoveryCodeRepo) Replace(ctx context.Context, userID uint64, hashes []string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM recovery_codes WHERE user_id=?", userID); err != nil {
		return err
	}
	for _, h := range hashes {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO recovery_codes (user_id, code_hash) VALUES (?,?)", userID, h); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Consume marks the matching unused code as used and returns how many
// unused codes remain. ErrNotFound means no unused code matched — the
// caller must not learn whether the code was wrong, already spent or never
// existed.
func (r *RecoveryCodeRepo) Consume(ctx context.Context, userID uint64, codeHash string) (int, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE recovery_codes SET used_at=NOW() WHERE user_id=? AND code_hash=? AND used_at IS NULL",
		userID, codeHash)
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
	var remaining int
	err = r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM recovery_codes WHERE user_id=? AND used_at IS NULL",
		userID).Scan(&remaining)
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// DeleteAllForUser removes every code, used or not. Called on two-factor
// disable.
func (r *RecoveryCodeRepo) DeleteAllForUser(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM recovery_codes WHERE user_id=?", userID)
	return err
}
