package rbac

import "time"

// WildcardAction grants every action on a permission's resource when a role
// holds (resource, "*"). There is no resource-level wildcard.
const WildcardAction = "*"

// Role represents a named, mutable bundle of permissions.
type Role struct {
	ID          int64
	Name        string
	Description string
	IsSystem    bool
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission represents an atomic (resource, action) capability.
type Permission struct {
	ID          int64
	Resource    string
	Action      string
	Description string
	IsActive    bool
	CreatedAt   time.Time
}

// Name renders the canonical resource:action identifier.
func (p Permission) Name() string {
	return p.Resource + ":" + p.Action
}

// PermissionName builds the canonical identifier for a pair.
func PermissionName(resource, action string) string {
	return resource + ":" + action
}

// Assignment ties a permission to a role.
type Assignment struct {
	RoleID       int64
	PermissionID int64
	CreatedAt    time.Time
}

// UserRole links a user to a role.
type UserRole struct {
	UserID    int64
	RoleID    int64
	CreatedAt time.Time
}

// Decision is the outcome of a permission evaluation.
type Decision bool

// Evaluation outcomes. Absence of a grant is a plain Deny, not an error.
const (
	Allow Decision = true
	Deny  Decision = false
)
