package users

import (
	"context"

	"github.com/gatewarden/gatewarden/internal/shared"
)

// RepositoryPort defines persistence operations for accounts.
type RepositoryPort interface {
	// CreateUserWithRole inserts the account and its initial role grant in
	// one transaction: a user never exists without its default role.
	CreateUserWithRole(ctx context.Context, username, email, passwordHash, roleName string) (User, error)

	GetUser(ctx context.Context, id int64) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	ListUsers(ctx context.Context, page shared.Pagination) ([]User, int, error)

	UpdateEmail(ctx context.Context, id int64, email string) (User, error)
	SetActive(ctx context.Context, id int64, active bool) (User, error)
	DeleteUser(ctx context.Context, id int64) error

	GetPasswordHash(ctx context.Context, id int64) (string, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}
