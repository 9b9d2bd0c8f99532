package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatewarden/gatewarden/internal/platform/db"
	"github.com/gatewarden/gatewarden/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

const userColumns = `id, username, email, is_active, created_at, updated_at, last_login_at`

// CreateUserWithRole inserts the account row and the default role grant in
// one transaction. A missing role name aborts the registration rather than
// leaving a roleless account behind.
func (r *Repository) CreateUserWithRole(ctx context.Context, username, email, passwordHash, roleName string) (User, error) {
	var user User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO users (username, email, password_hash, is_active)
			VALUES ($1, $2, $3, TRUE)
			RETURNING `+userColumns, username, email, passwordHash)
		if err := scanUser(row, &user); err != nil {
			return mapPgError(err)
		}

		var roleID int64
		err := tx.QueryRow(ctx, `SELECT id FROM roles WHERE name = $1 AND is_active`, roleName).Scan(&roleID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("users: default role %q not found: %w", roleName, shared.ErrNotFound)
			}
			return err
		}
		_, err = tx.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, user.ID, roleID)
		return err
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	var user User
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err := scanUser(row, &user); err != nil {
		return User{}, mapPgError(err)
	}
	return user, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (User, error) {
	var user User
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	if err := scanUser(row, &user); err != nil {
		return User{}, mapPgError(err)
	}
	return user, nil
}

func (r *Repository) ListUsers(ctx context.Context, page shared.Pagination) ([]User, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY id
		LIMIT $1 OFFSET $2`, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var user User
		if err := scanUser(rows, &user); err != nil {
			return nil, 0, err
		}
		out = append(out, user)
	}
	return out, total, rows.Err()
}

func (r *Repository) UpdateEmail(ctx context.Context, id int64, email string) (User, error) {
	var user User
	row := r.pool.QueryRow(ctx, `
		UPDATE users SET email = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns, id, email)
	if err := scanUser(row, &user); err != nil {
		return User{}, mapPgError(err)
	}
	return user, nil
}

func (r *Repository) SetActive(ctx context.Context, id int64, active bool) (User, error) {
	var user User
	row := r.pool.QueryRow(ctx, `
		UPDATE users SET is_active = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns, id, active)
	if err := scanUser(row, &user); err != nil {
		return User{}, mapPgError(err)
	}
	return user, nil
}

func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *Repository) GetPasswordHash(ctx context.Context, id int64) (string, error) {
	var hash string
	err := r.pool.QueryRow(ctx, `SELECT password_hash FROM users WHERE id = $1`, id).Scan(&hash)
	if err != nil {
		return "", mapPgError(err)
	}
	return hash, nil
}

func (r *Repository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, user *User) error {
	return row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.LastLoginAt,
	)
}

func mapPgError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrDuplicate
	}
	return err
}
