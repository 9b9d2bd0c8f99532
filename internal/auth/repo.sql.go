package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatewarden/gatewarden/internal/shared"
)

// Repository implements RepositoryPort using PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

// FindByIdentifier fetches a user by username or email. The identifier is
// matched against both columns so login accepts either.
func (r *Repository) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, username, email, password_hash, is_active, created_at, last_login_at
		FROM users
		WHERE username = $1 OR email = $1`, identifier)
	return scanUser(row)
}

// GetUser fetches a user by ID.
func (r *Repository) GetUser(ctx context.Context, userID int64) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, username, email, password_hash, is_active, created_at, last_login_at
		FROM users
		WHERE id = $1`, userID)
	return scanUser(row)
}

// TouchLastLogin records a successful authentication.
func (r *Repository) TouchLastLogin(ctx context.Context, userID int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, userID, at.UTC())
	return err
}

// InsertToken persists a newly issued token record.
func (r *Repository) InsertToken(ctx context.Context, rec TokenRecord) error {
	var parent any
	if rec.ParentJTI != "" {
		parent = rec.ParentJTI
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO auth_tokens (jti, user_id, token_type, parent_jti, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.JTI, rec.UserID, rec.TokenType, parent, rec.IssuedAt.UTC(), rec.ExpiresAt.UTC())
	return err
}

// RevokeToken marks a jti and every descendant in its rotation chain as
// revoked. Already revoked or unknown jtis yield an empty result, keeping
// the operation idempotent.
func (r *Repository) RevokeToken(ctx context.Context, jti string, at time.Time) ([]TokenRecord, error) {
	rows, err := r.pool.Query(ctx, `
		WITH RECURSIVE chain AS (
			SELECT jti FROM auth_tokens WHERE jti = $1
			UNION ALL
			SELECT t.jti FROM auth_tokens t JOIN chain c ON t.parent_jti = c.jti
		)
		UPDATE auth_tokens SET revoked_at = $2
		WHERE jti IN (SELECT jti FROM chain) AND revoked_at IS NULL
		RETURNING jti, user_id, token_type, COALESCE(parent_jti, ''), issued_at, expires_at, revoked_at`,
		jti, at.UTC())
	if err != nil {
		return nil, err
	}
	return collectTokenRecords(rows)
}

// RevokeUserTokens revokes every live token belonging to a user.
func (r *Repository) RevokeUserTokens(ctx context.Context, userID int64, at time.Time) ([]TokenRecord, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE auth_tokens SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		RETURNING jti, user_id, token_type, COALESCE(parent_jti, ''), issued_at, expires_at, revoked_at`,
		userID, at.UTC())
	if err != nil {
		return nil, err
	}
	return collectTokenRecords(rows)
}

// PurgeExpiredTokens deletes token records whose expiry is long past. Run
// from the maintenance worker; live verification never consults these rows.
func (r *Repository) PurgeExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM auth_tokens WHERE expires_at < $1`, before.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanUser(row pgx.Row) (*User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.IsActive, &user.CreatedAt, &user.LastLoginAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func collectTokenRecords(rows pgx.Rows) ([]TokenRecord, error) {
	defer rows.Close()
	var records []TokenRecord
	for rows.Next() {
		var rec TokenRecord
		if err := rows.Scan(&rec.JTI, &rec.UserID, &rec.TokenType, &rec.ParentJTI, &rec.IssuedAt, &rec.ExpiresAt, &rec.RevokedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
