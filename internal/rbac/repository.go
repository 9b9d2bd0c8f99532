package rbac

import "context"

// GraphData is the raw material for one permission graph snapshot: every
// user→role edge whose role is active, every active permission name held by
// an active role, the names of all active roles, and the IDs of roles
// matching the configured super-admin name.
type GraphData struct {
	UserRoles       []UserRole
	RolePermissions map[int64][]string
	RoleNames       map[int64]string
	SuperAdminRoles []int64
}

// RepositoryPort defines data access methods for roles, permissions and
// their associations.
type RepositoryPort interface {
	LoadGraphData(ctx context.Context, superAdminRole string) (*GraphData, error)

	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	CreateRole(ctx context.Context, name, description string) (Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string, active bool) (Role, error)
	DeleteRole(ctx context.Context, id int64) error

	ListPermissions(ctx context.Context) ([]Permission, error)
	GetPermission(ctx context.Context, id int64) (Permission, error)
	CreatePermission(ctx context.Context, resource, action, description string) (Permission, error)
	UpdatePermission(ctx context.Context, id int64, description string, active bool) (Permission, error)
	DeletePermission(ctx context.Context, id int64) error

	ListRolePermissions(ctx context.Context, roleID int64) ([]Permission, error)
	AttachPermission(ctx context.Context, roleID, permissionID int64) error
	DetachPermission(ctx context.Context, roleID, permissionID int64) error

	ListUserRoles(ctx context.Context, userID int64) ([]Role, error)
	AssignRole(ctx context.Context, userID, roleID int64) error
	RemoveRole(ctx context.Context, userID, roleID int64) error
}
