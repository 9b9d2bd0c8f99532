package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

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

// LoadGraphData reads everything the permission graph needs in one pass.
// Inactive roles and inactive permissions are filtered at the source so the
// snapshot never has to re-check them.
func (r *Repository) LoadGraphData(ctx context.Context, superAdminRole string) (*GraphData, error) {
	data := &GraphData{
		RolePermissions: make(map[int64][]string),
		RoleNames:       make(map[int64]string),
	}

	rows, err := r.pool.Query(ctx, `
		SELECT ur.user_id, ur.role_id
		FROM user_roles ur
		JOIN roles ro ON ro.id = ur.role_id
		WHERE ro.is_active`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var edge UserRole
		if err := rows.Scan(&edge.UserID, &edge.RoleID); err != nil {
			return nil, err
		}
		data.UserRoles = append(data.UserRoles, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	permRows, err := r.pool.Query(ctx, `
		SELECT rp.role_id, p.resource, p.action
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		JOIN roles ro ON ro.id = rp.role_id
		WHERE p.is_active AND ro.is_active`)
	if err != nil {
		return nil, err
	}
	defer permRows.Close()
	for permRows.Next() {
		var roleID int64
		var resource, action string
		if err := permRows.Scan(&roleID, &resource, &action); err != nil {
			return nil, err
		}
		data.RolePermissions[roleID] = append(data.RolePermissions[roleID], PermissionName(resource, action))
	}
	if err := permRows.Err(); err != nil {
		return nil, err
	}

	nameRows, err := r.pool.Query(ctx, `SELECT id, name FROM roles WHERE is_active`)
	if err != nil {
		return nil, err
	}
	defer nameRows.Close()
	for nameRows.Next() {
		var id int64
		var name string
		if err := nameRows.Scan(&id, &name); err != nil {
			return nil, err
		}
		data.RoleNames[id] = name
		if name == superAdminRole {
			data.SuperAdminRoles = append(data.SuperAdminRoles, id)
		}
	}
	if err := nameRows.Err(); err != nil {
		return nil, err
	}

	return data, nil
}

// ListRoles returns all roles ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, is_system, is_active, created_at, updated_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by ID.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, description, is_system, is_active, created_at, updated_at FROM roles WHERE id = $1`, id)
	return scanRoleRow(row)
}

// GetRoleByName fetches a role by its unique name.
func (r *Repository) GetRoleByName(ctx context.Context, name string) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, description, is_system, is_active, created_at, updated_at FROM roles WHERE name = $1`, name)
	return scanRoleRow(row)
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, name, description string) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, description, is_system, is_active, created_at, updated_at)
		VALUES ($1, $2, FALSE, TRUE, NOW(), NOW())
		RETURNING id, name, description, is_system, is_active, created_at, updated_at`, name, description)
	role, err := scanRoleRow(row)
	if err != nil {
		return Role{}, mapPgError(err)
	}
	return role, nil
}

// UpdateRole updates name, description and active flag of a role.
func (r *Repository) UpdateRole(ctx context.Context, id int64, name, description string, active bool) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE roles SET name = $2, description = $3, is_active = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING id, name, description, is_system, is_active, created_at, updated_at`, id, name, description, active)
	role, err := scanRoleRow(row)
	if err != nil {
		return Role{}, mapPgError(err)
	}
	return role, nil
}

// DeleteRole removes a non-system role. Association rows cascade via the
// user_roles and role_permissions foreign keys.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1 AND NOT is_system`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListPermissions returns all permissions ordered by resource then action.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, resource, action, description, is_active, created_at FROM permissions ORDER BY resource, action`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

// GetPermission fetches a permission by ID.
func (r *Repository) GetPermission(ctx context.Context, id int64) (Permission, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, resource, action, description, is_active, created_at FROM permissions WHERE id = $1`, id)
	return scanPermissionRow(row)
}

// CreatePermission inserts a new (resource, action) capability.
func (r *Repository) CreatePermission(ctx context.Context, resource, action, description string) (Permission, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (resource, action, description, is_active, created_at)
		VALUES ($1, $2, $3, TRUE, NOW())
		RETURNING id, resource, action, description, is_active, created_at`, resource, action, description)
	perm, err := scanPermissionRow(row)
	if err != nil {
		return Permission{}, mapPgError(err)
	}
	return perm, nil
}

// UpdatePermission updates description and active flag. The (resource,
// action) pair itself is immutable; replace means delete plus create.
func (r *Repository) UpdatePermission(ctx context.Context, id int64, description string, active bool) (Permission, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE permissions SET description = $2, is_active = $3 WHERE id = $1
		RETURNING id, resource, action, description, is_active, created_at`, id, description, active)
	return scanPermissionRow(row)
}

// DeletePermission removes a permission and its role links.
func (r *Repository) DeletePermission(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListRolePermissions returns the permissions directly linked to a role.
func (r *Repository) ListRolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.resource, p.action, p.description, p.is_active, p.created_at
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
		ORDER BY p.resource, p.action`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

// AttachPermission links a permission to a role. Duplicate links are ignored.
func (r *Repository) AttachPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (role_id, permission_id) DO NOTHING`, roleID, permissionID)
	return err
}

// DetachPermission unlinks a permission from a role.
func (r *Repository) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	return err
}

// ListUserRoles returns all roles held by a user.
func (r *Repository) ListUserRoles(ctx context.Context, userID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ro.id, ro.name, ro.description, ro.is_system, ro.is_active, ro.created_at, ro.updated_at
		FROM roles ro
		JOIN user_roles ur ON ur.role_id = ro.id
		WHERE ur.user_id = $1
		ORDER BY ro.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// AssignRole links a role to a user. Duplicate links are ignored.
func (r *Repository) AssignRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, role_id) DO NOTHING`, userID, roleID)
	return err
}

// RemoveRole unlinks a role from a user.
func (r *Repository) RemoveRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.IsSystem, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

func scanRoleRow(row pgx.Row) (Role, error) {
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

func scanPermission(row rowScanner) (Permission, error) {
	var perm Permission
	err := row.Scan(&perm.ID, &perm.Resource, &perm.Action, &perm.Description, &perm.IsActive, &perm.CreatedAt)
	return perm, err
}

func scanPermissionRow(row pgx.Row) (Permission, error) {
	perm, err := scanPermission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.ErrNotFound
		}
		return Permission{}, err
	}
	return perm, nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrDuplicate
	}
	return err
}
