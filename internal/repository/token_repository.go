package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/studyhall/studyhall-api/internal/model"
)

// TokenRepo is the durable ledger of every refresh token ever issued. Rows
// record owner, expiry, revocation timestamp and device metadata; the raw
// token never touches the database, only its SHA-256 hash. Rows are never
// deleted outside the user-deletion cascade — revocation is an update.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// Store inserts a refresh token row.
func (r *TokenRepo) Store(ctx context.Context, userID uint64, tokenHash string, exp time.Time, userAgent, ip string) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at, user_agent, ip) VALUES (?,?,?,?,?)",
		userID, tokenHash, exp, userAgent, ip)
	return err
}

// GetByHash returns the ledger row for a token hash regardless of its
// state; rotation needs to distinguish missing, revoked and expired rows.
func (r *TokenRepo) GetByHash(ctx context.Context, tokenHash string) (model.RefreshToken, error) {
	var (
		t         model.RefreshToken
		revokedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,user_id,token_hash,expires_at,revoked_at,user_agent,ip,created_at FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &revokedAt, &t.UserAgent, &t.IP, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return model.RefreshToken{}, ErrNotFound
	}
	if err != nil {
		return model.RefreshToken{}, err
	}
	if revokedAt.Valid {
		at := revokedAt.Time
		t.RevokedAt = &at
	}
	return t, nil
}

// Revoke marks a token as revoked. Returns ErrAlreadyRevoked when the row
// was already flipped, which callers use to fail closed under concurrent
// rotation of the same token.
func (r *TokenRepo) Revoke(ctx context.Context, tokenHash string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=NOW() WHERE token_hash=? AND revoked_at IS NULL",
		tokenHash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyRevoked
	}
	return nil
}

// Rotate revokes the presented token and inserts its replacement inside a
// single transaction, so a crash cannot strand the client with a revoked
// token and no successor. The guarded update makes rotation single-use: a
// concurrent attempt on the same token sees zero affected rows and fails.
func (r *TokenRepo) Rotate(ctx context.Context, oldHash string, userID uint64, newHash string, exp time.Time, userAgent, ip string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=NOW() WHERE token_hash=? AND revoked_at IS NULL",
		oldHash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyRevoked
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at, user_agent, ip) VALUES (?,?,?,?,?)",
		userID, newHash, exp, userAgent, ip); err != nil {
		return err
	}
	return tx.Commit()
}

// RevokeAllForUser revokes every active token the user holds.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=NOW() WHERE user_id=? AND revoked_at IS NULL",
		userID)
	return err
}

// ListActiveForUser returns the user's currently active sessions with
// device metadata, newest first.
func (r *TokenRepo) ListActiveForUser(ctx context.Context, userID uint64) ([]model.RefreshToken, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,user_id,token_hash,expires_at,revoked_at,user_agent,ip,created_at FROM refresh_tokens "+
			"WHERE user_id=? AND revoked_at IS NULL AND expires_at > NOW() ORDER BY created_at DESC",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tokens []model.RefreshToken
	for rows.Next() {
		var (
			t         model.RefreshToken
			revokedAt sql.NullTime
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &revokedAt, &t.UserAgent, &t.IP, &t.CreatedAt); err != nil {
			return nil, err
		}
		if revokedAt.Valid {
			at := revokedAt.Time
			t.RevokedAt = &at
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}
