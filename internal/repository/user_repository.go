package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/studyhall/studyhall-api/internal/model"
)

const userColumns = "id,email,password_hash,name,role,is_active,is_email_verified," +
	"consent_given,consent_at,totp_secret,totp_enabled,last_totp_step,google_id,created_at,updated_at"

// UserRepo persists user rows. Password hashing happens in the auth layer;
// this repository only ever sees finished hashes.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create inserts a password-credentialed user and returns its ID.
func (r *UserRepo) Create(ctx context.Context, email, passwordHash, name, role string) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, name, role) VALUES (?,?,?,?)",
		normalizeEmail(email), passwordHash, name, role)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// CreateOAuthUser inserts a user that arrived through an identity provider:
// no password hash, provider-verified email trusted as verified.
func (r *UserRepo) CreateOAuthUser(ctx context.Context, email, name, googleID string) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, name, role, is_email_verified, google_id) VALUES (?,?,?,1,?)",
		normalizeEmail(email), name, model.RoleUser, googleID)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", normalizeEmail(email)))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// UpdatePassword replaces the stored password hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, passwordHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash=? WHERE id=?", passwordHash, id)
	return err
}

// SetEmailVerified flips the verification flag.
func (r *UserRepo) SetEmailVerified(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET is_email_verified=1 WHERE id=?", id)
	return err
}

// SetConsent records the user's consent with a timestamp.
func (r *UserRepo) SetConsent(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET consent_given=1, consent_at=NOW() WHERE id=?", id)
	return err
}

// SetTOTPSecret stores a pending authenticator secret. The secret lands on
// the row before two-factor is confirmed enabled (two-phase enable).
func (r *UserRepo) SetTOTPSecret(ctx context.Context, id uint64, secret string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET totp_secret=? WHERE id=?", secret, id)
	return err
}

// EnableTOTP confirms two-factor after the first successful code.
func (r *UserRepo) EnableTOTP(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET totp_enabled=1 WHERE id=?", id)
	return err
}

// DisableTOTP clears the secret, the enabled flag and the replay marker.
func (r *UserRepo) DisableTOTP(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET totp_secret=NULL, totp_enabled=0, last_totp_step=0 WHERE id=?", id)
	return err
}

// AdvanceTOTPStep records the accepted time-step so the same code cannot be
// replayed. The guard keeps a stale write from moving the marker backwards.
func (r *UserRepo) AdvanceTOTPStep(ctx context.Context, id uint64, step int64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET last_totp_step=? WHERE id=? AND last_totp_step < ?", step, id, step)
	return err
}

// LinkGoogle attaches a provider id to an existing account.
func (r *UserRepo) LinkGoogle(ctx context.Context, id uint64, googleID string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET google_id=? WHERE id=?", googleID, id)
	return err
}

// Deactivate disables the account. Outstanding access tokens keep working
// for at most their remaining lifetime; the authenticate middleware
// re-checks is_active on every request.
func (r *UserRepo) Deactivate(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET is_active=0 WHERE id=?", id)
	return err
}

// Delete removes the user; refresh tokens, recovery codes and temporary
// tokens go with it via ON DELETE CASCADE.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	return err
}

// List returns users ordered by id for the admin surface.
func (r *UserRepo) List(ctx context.Context, limit, offset int) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY id LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func (r *UserRepo) scanOne(row *sql.Row) (model.User, error) {
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return model.User{}, ErrNotFound
	}
	return u, err
}

func scanUser(s rowScanner) (model.User, error) {
	var (
		u          model.User
		pwHash     sql.NullString
		consentAt  sql.NullTime
		totpSecret sql.NullString
		googleID   sql.NullString
	)
	err := s.Scan(&u.ID, &u.Email, &pwHash, &u.Name, &u.Role, &u.IsActive,
		&u.IsEmailVerified, &u.ConsentGiven, &consentAt, &totpSecret,
		&u.TOTPEnabled, &u.LastTOTPStep, &googleID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	if pwHash.Valid {
		u.PasswordHash = &pwHash.String
	}
	if consentAt.Valid {
		t := consentAt.Time
		u.ConsentAt = &t
	}
	if totpSecret.Valid {
		u.TOTPSecret = &totpSecret.String
	}
	if googleID.Valid {
		u.GoogleID = &googleID.String
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MySQL reports unique-key violations as error 1062.
func isDuplicate(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "1062")
}
