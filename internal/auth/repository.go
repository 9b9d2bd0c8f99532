package auth

import (
	"context"
	"time"
)

// RepositoryPort defines persistence operations for the auth module.
type RepositoryPort interface {
	TokenStore

	FindByIdentifier(ctx context.Context, identifier string) (*User, error)
	TouchLastLogin(ctx context.Context, userID int64, at time.Time) error
	GetUser(ctx context.Context, userID int64) (*User, error)
}
