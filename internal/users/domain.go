// Package users manages account lifecycle: registration, profile access,
// activation state and password changes.
package users

import "time"

// User is an account as exposed to callers. The password hash never leaves
// the package.
type User struct {
	ID          int64
	Username    string
	Email       string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt *time.Time
}
